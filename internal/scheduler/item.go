// Copyright 2025 James Ross
package scheduler

import (
	"math"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// State is the total order an Item moves through: Immature < Ready <
// InProgress < Expired < Failed < Completed.
type State int

const (
	Immature State = iota
	Ready
	InProgress
	Expired
	Failed
	Completed
)

func (s State) String() string {
	switch s {
	case Immature:
		return "immature"
	case Ready:
		return "ready"
	case InProgress:
		return "in_progress"
	case Expired:
		return "expired"
	case Failed:
		return "failed"
	case Completed:
		return "completed"
	default:
		return "unknown"
	}
}

// ItemSpec is the set of recognized push options, matching the original
// ItemSpec TypedDict: unset fields take their documented defaults.
type ItemSpec struct {
	Payload                 any
	Priority                float64
	MinimumFractionalPrio   *float64
	Cost                    int
	AgingFactor             *float64
	Matures                 *time.Time
	Deadline                *time.Time
	MaxRetries              *int
	BackoffFactor           *float64
	BaseRetryDelay          *time.Duration
	Jitter                  *float64
	Group                   string
	Dependencies            []string
}

// Item is a single unit of scheduled work.
type Item struct {
	ID           string
	Payload      any
	Priority     float64
	MinFracPrio  float64
	Cost         int
	AgingFactor  float64
	Enqueued     time.Time
	Matures      time.Time
	Deadline     time.Time
	MaxRetries   int
	BackoffFactor float64
	BaseRetryDelay time.Duration
	Jitter       float64
	Group        string
	Dependencies []string

	Retries    int
	LastPopped *time.Time
	State      State

	rng *rand.Rand
}

// NewItem validates and constructs an Item from a push spec. now is the
// construction timestamp, supplied by the caller so tests are deterministic.
func NewItem(spec ItemSpec, now time.Time) (*Item, error) {
	if spec.Priority < 0 {
		return nil, newErr(KindInvalidItem, "", "priority must be non-negative")
	}

	it := &Item{
		ID:             uuid.NewString(),
		Payload:        spec.Payload,
		Priority:       spec.Priority,
		MinFracPrio:    0.1,
		Cost:           1,
		AgingFactor:    0.9,
		Enqueued:       now,
		MaxRetries:     3,
		BackoffFactor:  2.0,
		BaseRetryDelay: 100 * time.Millisecond,
		Jitter:         0.1,
		Group:          spec.Group,
		Dependencies:   spec.Dependencies,
		rng:            rand.New(rand.NewSource(now.UnixNano())),
	}
	if spec.MinimumFractionalPrio != nil {
		it.MinFracPrio = *spec.MinimumFractionalPrio
	}
	if spec.Cost != 0 {
		it.Cost = spec.Cost
	}
	if spec.AgingFactor != nil {
		it.AgingFactor = *spec.AgingFactor
	}
	if spec.MaxRetries != nil {
		it.MaxRetries = *spec.MaxRetries
	}
	if spec.BackoffFactor != nil {
		it.BackoffFactor = *spec.BackoffFactor
	}
	if spec.BaseRetryDelay != nil {
		it.BaseRetryDelay = *spec.BaseRetryDelay
	}
	if spec.Jitter != nil {
		it.Jitter = *spec.Jitter
	}
	if it.Jitter < 0 || it.Jitter > 1 {
		return nil, newErr(KindInvalidItem, it.ID, "jitter must be in [0, 1]")
	}

	if spec.Matures != nil {
		it.Matures = *spec.Matures
	} else {
		it.Matures = now
	}
	if spec.Deadline != nil {
		it.Deadline = *spec.Deadline
	} else {
		it.Deadline = now.Add(52 * 7 * 24 * time.Hour)
	}
	if it.Deadline.Before(it.Matures) {
		return nil, newErr(KindInvalidWindow, it.ID, "deadline is before maturation")
	}

	it.updateMatureTime()

	if !it.Matures.After(now) {
		it.State = Ready
	} else {
		it.State = Immature
	}
	return it, nil
}

// updateMatureTime applies the retry backoff delay to push Matures forward,
// mirroring item.py's update_mature_time. It is a no-op before the first retry.
func (it *Item) updateMatureTime() {
	if it.Retries <= 0 {
		return
	}
	jitter := 0.0
	if it.Jitter > 0 {
		jitter = (it.rng.Float64() - 0.5) * it.Jitter
	}
	factor := 1.0
	for i := 0; i < it.Retries; i++ {
		factor *= it.BackoffFactor
	}
	delaySeconds := it.BaseRetryDelay.Seconds() * factor * (1 + jitter)
	delay := time.Duration(delaySeconds * float64(time.Second))

	base := it.Enqueued
	if it.LastPopped != nil {
		base = *it.LastPopped
	}
	earliest := base.Add(delay)
	if earliest.After(it.Matures) {
		it.Matures = earliest
	}
}

// Age is the elapsed time since enqueue, evaluated at `now`.
func (it *Item) Age(now time.Time) time.Duration {
	return now.Sub(it.Enqueued)
}

// EffectivePriority computes the time-decayed, deadline-pressured priority
// used to order the priority heap. Higher values pop sooner.
func (it *Item) EffectivePriority(now time.Time) float64 {
	ageSeconds := it.Age(now).Seconds()
	if ageSeconds < 0 {
		ageSeconds = 0
	}
	eff := it.Priority * math.Pow(it.AgingFactor, ageSeconds)

	window := it.Deadline.Sub(it.Enqueued).Seconds()
	if window > 0 {
		eff *= 1 - ageSeconds/window
	}
	return (1-it.MinFracPrio)*eff + it.MinFracPrio
}

// retry applies the adopted resolution for the retry-accounting Open Issue:
// check first, increment only if an attempt remains. Returns
// ErrRetryLimitExceeded (with the item's id) once retries are exhausted.
func (it *Item) retry() error {
	if it.Retries >= it.MaxRetries {
		return newErr(KindRetryLimitExceeded, it.ID, "no retry attempts remain")
	}
	it.Retries++
	it.updateMatureTime()
	return nil
}
