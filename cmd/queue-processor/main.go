// Command queue-processor runs the worker loop that drains the
// processing queue (spec §4.8, §6 "queue-processor CLI").
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"

	"github.com/ignite/eventflow/internal/adapter"
	"github.com/ignite/eventflow/internal/config"
	"github.com/ignite/eventflow/internal/pkg/distlock"
	"github.com/ignite/eventflow/internal/processor"
	"github.com/ignite/eventflow/internal/queue"
	"github.com/ignite/eventflow/internal/queue/redisindex"
	"github.com/ignite/eventflow/internal/registry"
	"github.com/ignite/eventflow/internal/router"
	"github.com/ignite/eventflow/internal/store/postgres"
	"github.com/ignite/eventflow/internal/worker"
)

const reapLockKey = "eventflow:queue:reaper"

func main() {
	once := flag.Bool("once", false, "drain one batch per worker then exit")
	workers := flag.Int("workers", 0, "number of concurrent worker loops (0 = config default)")
	batchSize := flag.Int("batch-size", 0, "jobs claimed per leaseBatch call (0 = config default)")
	sleepSecs := flag.Int("sleep", 0, "idle sleep in seconds after an empty batch (0 = config default)")
	maxRuntimeSecs := flag.Int("max-runtime", 0, "exit after this many seconds (0 = unbounded)")
	flag.Parse()

	log.Println("starting eventflow queue processor")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db, err := postgres.Open(cfg.Database.DSN, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetimeDuration())
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	store := postgres.New(db)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	var idx queue.Index
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			log.Fatalf("invalid redis url: %v", err)
		}
		redisClient = redis.NewClient(opts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("warning: redis ping failed (%v) — falling back to PG advisory locks", err)
			redisClient = nil
		} else {
			idx = redisindex.New(redisClient, "")
		}
	}

	rt, err := router.New(ctx, store)
	if err != nil {
		log.Fatalf("failed to load router caches: %v", err)
	}
	emailRegistry := registry.NewEmailValidationRegistry(store, cfg.Validation.CacheTTL())
	factory := adapter.NewFactory()
	q := queue.New(store, idx)
	executor := processor.NewExecutor(store, rt, factory, q, store, emailRegistry, store)

	numWorkers := *workers
	if numWorkers <= 0 {
		numWorkers = cfg.Worker.Workers
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}

	workerCfg := worker.Config{
		BatchSize:     *batchSize,
		LeaseDuration: cfg.Queue.LeaseDuration(),
		Sleep:         cfg.Worker.SleepInterval(),
		Once:          *once,
		ReapInterval:  cfg.Queue.ReapInterval(),
		ReapGrace:     cfg.Queue.ReapGrace(),
	}
	if workerCfg.BatchSize <= 0 {
		workerCfg.BatchSize = cfg.Queue.BatchSize
	}
	if *sleepSecs > 0 {
		workerCfg.Sleep = time.Duration(*sleepSecs) * time.Second
	}
	if *maxRuntimeSecs > 0 {
		workerCfg.MaxRuntime = time.Duration(*maxRuntimeSecs) * time.Second
	} else if cfg.Worker.MaxRuntime > 0 {
		workerCfg.MaxRuntime = time.Duration(cfg.Worker.MaxRuntime) * time.Second
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-done
		log.Println("shutting down queue processor...")
		cancel()
	}()

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		reapLock := distlock.NewLock(redisClient, db, reapLockKey, cfg.Queue.ReapInterval())
		w := worker.New(q, executor, reapLock, workerCfg)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				log.Printf("worker %s exited with error: %v", w.ID(), err)
			}
		}()
	}

	wg.Wait()
	if redisClient != nil {
		redisClient.Close()
	}
	log.Println("queue processor stopped")
}
