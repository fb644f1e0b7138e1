// Command retry-failed re-queues terminal-failed jobs within a time
// window that still have retry budget (spec.md §4.4 retryFailed,
// operator-triggered per §6).
package main

import (
	"context"
	"flag"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/eventflow/internal/config"
	"github.com/ignite/eventflow/internal/queue"
	"github.com/ignite/eventflow/internal/store/postgres"
)

func main() {
	hours := flag.Int("hours", 24, "look back this many hours for failed jobs")
	platform := flag.String("platform", "", "restrict to one platform code (empty = all)")
	limit := flag.Int("limit", 1000, "maximum jobs to retry in one run")
	dryRun := flag.Bool("dry-run", false, "report the candidate count without retrying")
	flag.Parse()

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
	q := queue.New(store, nil)
	window := time.Duration(*hours) * time.Hour

	if *dryRun {
		log.Printf("dry-run: would retry up to %d failed jobs from the last %s (platform=%q)", *limit, window, *platform)
		return
	}

	n, err := q.RetryFailed(context.Background(), window, *platform, *limit)
	if err != nil {
		log.Fatalf("retry-failed failed: %v", err)
	}
	log.Printf("re-queued %d failed jobs", n)
}
