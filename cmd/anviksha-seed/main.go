// The anviksha-seed command loads synthetic CI/CD pipeline events into the
// event store for development and demos. It drops the collection, inserts a
// week of realistic events, and creates the common query indexes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/sync/errgroup"

	"github.com/firmsoil/anviksha/internal/config"
	"github.com/firmsoil/anviksha/internal/storage"
)

// eventKind pairs an event type with its typical duration. Kinds with a zero
// base duration always record 0 seconds.
type eventKind struct {
	name         string
	baseDuration int // seconds
}

var eventKinds = []eventKind{
	{"Pull Request Created", 0},
	{"Code Review / Approval", 3600},
	{"SonarQube Code Quality Scan Started", 0},
	{"SonarQube Code Quality Scan Completed", 120},
	{"Build Stage Started", 0},
	{"Unit Tests Completed", 60},
	{"Integration Tests Completed", 300},
	{"Vulnerability Scan Started", 0},
	{"Vulnerability Scan Failed", 0},
	{"SAST Security Scan Started", 0},
	{"SAST Security Scan Completed", 900},
	{"Artifact Published (Container)", 30},
	{"Pre-Prod Deployment Started", 0},
	{"Manual Approval Required", 0},
	{"Manual Approval Denied", 0},
	{"Production Deployment Started", 0},
	{"Production Deployment Finished", 180},
	{"Service Monitoring Started", 0},
	{"Rollback Initiated", 0},
	{"Rollback Finished", 150},
}

var (
	users   = []string{"John Smith", "Jane Doe", "SystemUser-CI", "DeveloperX"}
	sources = []string{"GitLab", "Jenkins", "Security Tool", "Harness"}
)

const batchSize = 250

func main() {
	count := flag.Int("count", 100, "number of events to generate")
	days := flag.Int("days", 7, "spread events over the last N days")
	keep := flag.Bool("keep", false, "keep existing documents instead of dropping the collection")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if err := run(context.Background(), logger, *count, *days, *keep); err != nil {
		logger.Error("seed failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, count, days int, keep bool) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := storage.New(ctx, cfg.MongoURI, cfg.DatabaseName, logger)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer db.Close(context.Background())

	if !keep {
		if err := db.DropCollection(ctx, cfg.Collection); err != nil {
			return err
		}
		logger.Info("dropped collection", "collection", cfg.Collection)
	}

	events := generateEvents(time.Now().AddDate(0, 0, -days), count)

	// Insert in parallel batches.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for start := 0; start < len(events); start += batchSize {
		end := min(start+batchSize, len(events))
		batch := events[start:end]
		g.Go(func() error {
			return db.InsertEvents(gctx, cfg.Collection, batch)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if err := db.EnsureEventIndexes(ctx, cfg.Collection); err != nil {
		return err
	}

	logger.Info("seed complete", "collection", cfg.Collection, "events", len(events))
	return nil
}

// generateEvents produces count events spaced 5-60 minutes apart from start,
// with duration noise of up to half the base in either direction.
func generateEvents(start time.Time, count int) []any {
	events := make([]any, 0, count)
	current := start
	for i := 0; i < count; i++ {
		kind := eventKinds[rand.Intn(len(eventKinds))]

		duration := 0
		if kind.baseDuration > 0 {
			variation := rand.Intn(kind.baseDuration+1) - kind.baseDuration/2
			duration = max(1, kind.baseDuration+variation)
		}

		current = current.Add(time.Duration(5+rand.Intn(56)) * time.Minute)

		branch, environment := "feature-branch", "dev"
		if isProd(kind.name) {
			branch, environment = "main", "prod"
		}

		events = append(events, bson.M{
			"event_type":       kind.name,
			"event_timestamp":  current,
			"user":             users[rand.Intn(len(users))],
			"source":           sources[rand.Intn(len(sources))],
			"duration_seconds": duration,
			"pipeline_id":      fmt.Sprintf("pipeline-%d", 100+rand.Intn(6)),
			"metadata": bson.M{
				"branch":      branch,
				"environment": environment,
			},
		})
	}
	return events
}

func isProd(eventType string) bool {
	return strings.Contains(eventType, "Prod")
}
