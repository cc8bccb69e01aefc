// Copyright 2025 James Ross

// doopctl is a thin demonstration shell over the scheduler and blob store
// cores, in the spirit of the teacher's cmd/job-queue-system: it loads
// config, builds a logger, and dispatches to a handful of subcommands. It
// is not a service — no HTTP, no persistence daemon, no capture proxy;
// those stay out of scope per spec.md §1.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/flyingrobots/doop/internal/blobstore"
	"github.com/flyingrobots/doop/internal/breaker"
	"github.com/flyingrobots/doop/internal/config"
	"github.com/flyingrobots/doop/internal/kvstore"
	"github.com/flyingrobots/doop/internal/obs"
	"github.com/flyingrobots/doop/internal/scheduler"

	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	var configPath string
	var showVersion bool
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/doop.yaml", "Path to YAML config")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: doopctl <push|pop|store-blob|retrieve-blob|delete-blob> [-config path] [args...]")
		os.Exit(2)
	}
	subcommand := os.Args[1]
	_ = fs.Parse(os.Args[2:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch subcommand {
	case "push", "pop":
		runScheduler(ctx, subcommand, fs.Args(), cfg, logger)
	case "store-blob", "retrieve-blob", "delete-blob":
		runBlobstore(ctx, subcommand, fs.Args(), cfg, logger)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", subcommand)
		os.Exit(2)
	}
}

func runScheduler(_ context.Context, subcommand string, args []string, cfg *config.Config, logger *zap.Logger) {
	q := scheduler.New(logger)

	switch subcommand {
	case "push":
		priority := 0.0
		if len(args) > 0 {
			fmt.Sscanf(args[0], "%f", &priority)
		}
		id, err := q.Push(scheduler.ItemSpec{
			Payload:     map[string]any{"cli": true},
			Priority:    priority,
			AgingFactor: &cfg.Scheduler.DefaultAgingFactor,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "push failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(id)
	case "pop":
		it, err := q.Pop()
		if err != nil {
			fmt.Fprintf(os.Stderr, "pop failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s priority=%v state=%s\n", it.ID, it.Priority, it.State)
	}
}

func runBlobstore(ctx context.Context, subcommand string, args []string, cfg *config.Config, logger *zap.Logger) {
	store, err := buildKVStore(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build kv store: %v\n", err)
		os.Exit(1)
	}
	chunker := buildChunker(cfg)
	bs := blobstore.New(chunker, store, logger)

	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "expected an identifier argument")
		os.Exit(2)
	}
	identifier := args[0]

	switch subcommand {
	case "store-blob":
		data, err := os.ReadFile(args[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "read input: %v\n", err)
			os.Exit(1)
		}
		if err := bs.StoreBlob(ctx, identifier, data, nil); err != nil {
			fmt.Fprintf(os.Stderr, "store-blob failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("stored", identifier)
	case "retrieve-blob":
		data, err := bs.RetrieveBlob(ctx, identifier)
		if err != nil {
			fmt.Fprintf(os.Stderr, "retrieve-blob failed: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(data)
	case "delete-blob":
		if err := bs.DeleteBlob(ctx, identifier); err != nil {
			fmt.Fprintf(os.Stderr, "delete-blob failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("deleted", identifier)
	}
}

func buildChunker(cfg *config.Config) blobstore.Chunker {
	c := cfg.Blobstore.Chunking
	if c.Strategy == "fixed" {
		return blobstore.NewFixedSizeChunker(c.FixedSize)
	}
	mask := uint32(1<<uint(c.FastCDCMaskBits)) - 1
	return blobstore.NewFastCDCChunker(c.FastCDCMin, c.FastCDCAvg, c.FastCDCMax, mask, nil)
}

func buildKVStore(cfg *config.Config, logger *zap.Logger) (kvstore.Store, error) {
	switch cfg.Blobstore.KV.Strategy {
	case "memory":
		return kvstore.NewMemoryStore(), nil
	case "lru":
		return kvstore.NewLRUStore(cfg.Blobstore.KV.LRUSize)
	case "sqlite":
		return kvstore.NewSQLiteStore(cfg.Blobstore.KV.SQLitePath)
	case "redis":
		return redisStore(cfg, logger), nil
	case "hybrid":
		local, err := kvstore.NewLRUStore(cfg.Blobstore.KV.LRUSize)
		if err != nil {
			return nil, err
		}
		var remote kvstore.Store
		if cfg.Blobstore.KV.HybridRemote == "sqlite" {
			remote, err = kvstore.NewSQLiteStore(cfg.Blobstore.KV.SQLitePath)
			if err != nil {
				return nil, err
			}
		} else {
			remote = redisStore(cfg, logger)
		}
		return kvstore.NewHybridStore(remote, local)
	default:
		return kvstore.NewMemoryStore(), nil
	}
}

func redisStore(cfg *config.Config, _ *zap.Logger) kvstore.Store {
	client := redis.NewClient(&redis.Options{Addr: cfg.Blobstore.KV.RedisAddr})
	bc := cfg.Blobstore.CircuitBreaker
	if !bc.Enabled {
		return kvstore.NewRedisStore(client, cfg.Blobstore.KV.RedisPrefix)
	}
	cb := breaker.New(bc.Window, bc.CooldownPeriod, bc.FailureThreshold, bc.MinSamples)
	return kvstore.NewRedisStoreWithBreaker(client, cfg.Blobstore.KV.RedisPrefix, cb)
}

