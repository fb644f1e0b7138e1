// Command cleanup runs the operator-triggered maintenance tasks listed
// in spec.md §6: queue/log/budget pruning, the stuck-lease reaper,
// archival to S3, Snowflake analytics export, and VACUUM.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/eventflow/internal/analytics"
	"github.com/ignite/eventflow/internal/archive"
	"github.com/ignite/eventflow/internal/config"
	"github.com/ignite/eventflow/internal/store/postgres"
)

var allTasks = []string{"queue", "stuck", "logs", "ratelimit", "archive", "optimize", "analytics"}

func main() {
	task := flag.String("task", "all", "queue|stuck|logs|ratelimit|archive|optimize|analytics|all")
	dryRun := flag.Bool("dry-run", false, "report what would happen without making changes")
	days := flag.Int("days", 30, "retention threshold in days for the selected task")
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
	ctx := context.Background()
	olderThan := time.Duration(*days) * 24 * time.Hour

	tasks := allTasks
	if *task != "all" {
		tasks = strings.Split(*task, ",")
	}

	for _, t := range tasks {
		if err := runTask(ctx, store, cfg, strings.TrimSpace(t), olderThan, *dryRun); err != nil {
			log.Fatalf("task %q failed: %v", t, err)
		}
	}
	log.Println("cleanup complete")
}

func runTask(ctx context.Context, store *postgres.Store, cfg *config.Config, task string, olderThan time.Duration, dryRun bool) error {
	switch task {
	case "queue":
		return runCount("queue", dryRun, func() (int64, error) { return store.Cleanup(ctx, olderThan) })
	case "stuck":
		return runCount("stuck", dryRun, func() (int64, error) { return store.ReapStuck(ctx, cfg.Queue.ReapGrace()) })
	case "logs":
		return runCount("logs", dryRun, func() (int64, error) { return store.CleanupProcessingLog(ctx, olderThan) })
	case "ratelimit":
		return runCount("ratelimit", dryRun, func() (int64, error) { return store.CleanupValidationBudget(ctx, olderThan) })
	case "archive":
		return runArchive(ctx, store, cfg, olderThan, dryRun)
	case "optimize":
		return runOptimize(ctx, store, dryRun)
	case "analytics":
		return runAnalytics(ctx, store, cfg, dryRun)
	default:
		return fmt.Errorf("unknown task %q", task)
	}
}

func runCount(name string, dryRun bool, fn func() (int64, error)) error {
	if dryRun {
		log.Printf("[%s] dry-run: skipping", name)
		return nil
	}
	n, err := fn()
	if err != nil {
		return err
	}
	log.Printf("[%s] affected %d rows", name, n)
	return nil
}

const archiveBatchSize = 5000

func runArchive(ctx context.Context, store *postgres.Store, cfg *config.Config, olderThan time.Duration, dryRun bool) error {
	arc, err := archive.New(ctx, cfg.Archive.Bucket, cfg.Archive.Region, cfg.Archive.Profile)
	if err != nil {
		return err
	}
	if !arc.Enabled() {
		log.Println("[archive] no bucket configured — skipping")
		return nil
	}

	before := time.Now().Add(-olderThan)

	events, err := store.ArchivableEvents(ctx, before, archiveBatchSize)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		key := fmt.Sprintf("events/%s.json", time.Now().UTC().Format("2006-01-02"))
		if dryRun {
			log.Printf("[archive] dry-run: would write %d events to %s", len(events), key)
		} else {
			if err := arc.Put(ctx, key, events); err != nil {
				return err
			}
			ids := make([]int64, len(events))
			for i, e := range events {
				ids[i] = e.ID
			}
			if err := store.DeleteArchivedEvents(ctx, ids); err != nil {
				return err
			}
			log.Printf("[archive] archived and deleted %d events", len(events))
		}
	}

	jobs, err := store.ArchivableJobs(ctx, before, archiveBatchSize)
	if err != nil {
		return err
	}
	if len(jobs) > 0 {
		key := fmt.Sprintf("jobs/%s.json", time.Now().UTC().Format("2006-01-02"))
		if dryRun {
			log.Printf("[archive] dry-run: would write %d jobs to %s", len(jobs), key)
		} else {
			if err := arc.Put(ctx, key, jobs); err != nil {
				return err
			}
			ids := make([]int64, len(jobs))
			for i, j := range jobs {
				ids[i] = j.ID
			}
			if err := store.DeleteArchivedJobs(ctx, ids); err != nil {
				return err
			}
			log.Printf("[archive] archived and deleted %d jobs", len(jobs))
		}
	}

	return nil
}

func runOptimize(ctx context.Context, store *postgres.Store, dryRun bool) error {
	if dryRun {
		log.Println("[optimize] dry-run: skipping VACUUM ANALYZE")
		return nil
	}
	for _, table := range []string{"events", "processing_queue", "processing_log"} {
		if _, err := store.DB().ExecContext(ctx, "VACUUM ANALYZE "+table); err != nil {
			return fmt.Errorf("vacuum %s: %w", table, err)
		}
	}
	log.Println("[optimize] VACUUM ANALYZE complete")
	return nil
}

func runAnalytics(ctx context.Context, store *postgres.Store, cfg *config.Config, dryRun bool) error {
	exporter, err := analytics.NewExporter(analytics.Config{
		Account:   cfg.Snowflake.Account,
		User:      cfg.Snowflake.User,
		Password:  cfg.Snowflake.Password,
		Database:  cfg.Snowflake.Database,
		Schema:    cfg.Snowflake.Schema,
		Warehouse: cfg.Snowflake.Warehouse,
	})
	if err != nil {
		return err
	}
	if exporter == nil {
		log.Println("[analytics] no Snowflake account configured — skipping")
		return nil
	}
	defer exporter.Close()

	yesterday := time.Now().Add(-24 * time.Hour)
	rollup, err := store.Rollup(ctx, yesterday)
	if err != nil {
		return err
	}

	if dryRun {
		log.Printf("[analytics] dry-run: would push rollup for %s (events=%d)", rollup.Date.Format("2006-01-02"), sumCounts(rollup.EventsByType))
		return nil
	}

	if err := exporter.PushDailyRollup(ctx, analytics.Rollup{
		Date:           rollup.Date,
		EventsByType:   rollup.EventsByType,
		EventsByStatus: rollup.EventsByStatus,
		JobsByStatus:   rollup.JobsByStatus,
		RevenueGross:   rollup.RevenueGross,
	}); err != nil {
		return err
	}
	log.Printf("[analytics] pushed rollup for %s", rollup.Date.Format("2006-01-02"))
	return nil
}

func sumCounts(m map[string]int64) int64 {
	var total int64
	for _, n := range m {
		total += n
	}
	return total
}
