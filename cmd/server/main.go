// Command server runs the HTTP intake surface described in spec §6:
// lead/purchase submission, health, and stats (SPEC_FULL §4.11).
package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/ignite/eventflow/internal/api"
	"github.com/ignite/eventflow/internal/config"
	"github.com/ignite/eventflow/internal/linker"
	"github.com/ignite/eventflow/internal/processor"
	"github.com/ignite/eventflow/internal/queue"
	"github.com/ignite/eventflow/internal/queue/redisindex"
	"github.com/ignite/eventflow/internal/registry"
	"github.com/ignite/eventflow/internal/router"
	"github.com/ignite/eventflow/internal/store/postgres"
	"github.com/ignite/eventflow/internal/validator"
)

// checkPortAvailable verifies the target port is not already in use,
// so a stale process doesn't silently swallow traffic meant for this one.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %w", port, addr, err)
	}
	ln.Close()
	return nil
}

// statsAdapter satisfies api.StatsProvider over postgres.Store without
// binding the api package to the postgres package directly.
type statsAdapter struct{ store *postgres.Store }

func (a statsAdapter) Stats(ctx context.Context, since time.Time) (api.Stats, error) {
	s, err := a.store.Stats(ctx, since)
	if err != nil {
		return api.Stats{}, err
	}
	return api.Stats{
		EventsReceived: s.EventsReceived,
		EventsBlocked:  s.EventsBlocked,
		JobsCompleted:  s.JobsCompleted,
		JobsFailed:     s.JobsFailed,
		JobsPending:    s.JobsPending,
		RevenueGross:   s.RevenueGross,
	}, nil
}

func main() {
	log.Println("starting eventflow intake server")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("pre-flight check failed: %v", err)
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
			log.Printf("warning: redis ping failed (%v) — queue readiness index disabled", err)
			redisClient = nil
		} else {
			idx = redisindex.New(redisClient, "")
			log.Println("redis connected: queue readiness index enabled")
		}
	}

	rt, err := router.New(ctx, store)
	if err != nil {
		log.Fatalf("failed to load router caches: %v", err)
	}

	botRegistry := registry.NewBotRegistry(store)
	emailRegistry := registry.NewEmailValidationRegistry(store, cfg.Validation.CacheTTL())
	v := validator.New(botRegistry, emailRegistry, nil)
	link := linker.New(store)
	q := queue.New(store, idx)

	intake := processor.NewIntake(store, v, link, rt, q, store, cfg.Validation.DailyLimitOrDefault())

	health := api.NewHealthChecker(store, q, func() bool { return rt.PlatformCount() > 0 })
	handlers := api.NewHandlers(intake, health, statsAdapter{store: store})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", host, port),
		Handler:      handlers.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-done
	log.Println("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}
	log.Println("server stopped")
}
