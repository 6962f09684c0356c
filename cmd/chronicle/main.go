// Command chronicle runs the event-store tooling: the projection worker,
// schema migrations, checkpoint replay, and a full-log payload audit.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/Mindburn-Labs/chronicle/pkg/config"
	"github.com/Mindburn-Labs/chronicle/pkg/domain/workspace"
	"github.com/Mindburn-Labs/chronicle/pkg/eventstore"
	"github.com/Mindburn-Labs/chronicle/pkg/observability"
	"github.com/Mindburn-Labs/chronicle/pkg/projection"
	"github.com/Mindburn-Labs/chronicle/pkg/readmodel"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stderr)
		return 2
	}

	switch args[1] {
	case "worker":
		return runWorkerCmd(stdout, stderr)
	case "migrate":
		return runMigrateCmd(stdout, stderr)
	case "replay":
		return runReplayCmd(args[2:], stdout, stderr)
	case "verify":
		return runVerifyCmd(stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "Unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "Usage: chronicle <command>")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "Commands:")
	_, _ = fmt.Fprintln(w, "  worker            Run the projection worker until SIGINT/SIGTERM")
	_, _ = fmt.Fprintln(w, "  migrate           Apply the database schema")
	_, _ = fmt.Fprintln(w, "  replay <tenant>   Reset a tenant's checkpoints to force a full replay")
	_, _ = fmt.Fprintln(w, "  verify            Re-validate every persisted event payload")
	_, _ = fmt.Fprintln(w, "  help              Show this help")
}

func openDB(cfg *config.Config) (*sql.DB, eventstore.Dialect, error) {
	dialect := eventstore.DialectSQLite
	if cfg.DatabaseDriver == "postgres" {
		dialect = eventstore.DialectPostgres
	}
	db, err := sql.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, dialect, fmt.Errorf("open database: %w", err)
	}
	return db, dialect, nil
}

func runWorkerCmd(stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Config error: %v\n", err)
		return 2
	}
	logger := observability.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics, err := observability.NewMetrics(ctx, &observability.Config{
		ServiceName:  "chronicle",
		Environment:  "production",
		OTLPEndpoint: cfg.OTLPEndpoint,
		Interval:     15 * time.Second,
		Enabled:      cfg.MetricsEnabled,
		Insecure:     true,
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Metrics init failed: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := metrics.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics shutdown failed", "error", err)
		}
	}()

	db, dialect, err := openDB(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()
	if err := db.PingContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "Database ping failed: %v\n", err)
		return 1
	}
	if err := eventstore.Migrate(ctx, db); err != nil {
		_, _ = fmt.Fprintf(stderr, "Migration failed: %v\n", err)
		return 1
	}

	registry, err := workspace.Registry()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Schema registry failed: %v\n", err)
		return 1
	}

	var cache *readmodel.WorkspaceCache
	if cfg.RedisAddr != "" {
		cache = readmodel.NewWorkspaceCache(cfg.RedisAddr, "", 0, time.Hour)
		if err := cache.Ping(ctx); err != nil {
			_, _ = fmt.Fprintf(stderr, "Redis ping failed: %v\n", err)
			return 1
		}
		defer func() { _ = cache.Close() }()
	}

	store := eventstore.NewSQLStore(db, registry, dialect, metrics)
	repo := readmodel.NewWorkspaceRepository(db)
	worker := projection.NewWorker(
		store, registry,
		projection.NewSQLCheckpointStore(db),
		projection.NewSQLDeadLetterStore(db),
		readmodel.Handlers(repo, cache),
		projection.Config{PollInterval: cfg.PollInterval, BatchSize: cfg.BatchSize},
		logger, metrics,
	)

	_, _ = fmt.Fprintln(stdout, "chronicle worker started; press ctrl+c to stop")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		_, _ = fmt.Fprintf(stderr, "Worker failed: %v\n", err)
		return 1
	}
	return 0
}

func runMigrateCmd(stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Config error: %v\n", err)
		return 2
	}
	db, _, err := openDB(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	if err := eventstore.Migrate(ctx, db); err != nil {
		_, _ = fmt.Fprintf(stderr, "Migration failed: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "Schema up to date")
	return 0
}

// runReplayCmd deletes a tenant's checkpoints. The next worker pass
// re-delivers the tenant's whole log, which is safe because handlers
// are idempotent.
func runReplayCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 || args[0] == "" {
		_, _ = fmt.Fprintln(stderr, "Usage: chronicle replay <tenant>")
		return 2
	}
	tenantID := args[0]

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Config error: %v\n", err)
		return 2
	}
	db, _, err := openDB(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	ctx := context.Background()
	if err := projection.NewSQLCheckpointStore(db).Reset(ctx, tenantID); err != nil {
		_, _ = fmt.Fprintf(stderr, "Replay failed: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "Checkpoints reset for tenant %s; replay starts on the next worker pass\n", tenantID)
	return 0
}

// runVerifyCmd re-validates every persisted payload against the schema
// registry and reports offenders without touching them.
func runVerifyCmd(stdout, stderr io.Writer) int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Config error: %v\n", err)
		return 2
	}
	db, dialect, err := openDB(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer func() { _ = db.Close() }()

	registry, err := workspace.Registry()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Schema registry failed: %v\n", err)
		return 1
	}
	store := eventstore.NewSQLStore(db, registry, dialect, nil)

	ctx := context.Background()
	var scanned, invalid int
	err = store.ScanAll(ctx, func(evt eventstore.StoredEvent) error {
		scanned++
		if _, verr := registry.Validate(evt.EventType, evt.TypeVersion, evt.Payload); verr != nil {
			invalid++
			_, _ = fmt.Fprintf(stderr, "INVALID %s/%s v%d event %s: %s\n",
				evt.TenantID, evt.StreamID, evt.Version, evt.EventID, verr.Message)
		}
		return nil
	})
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Verify failed: %v\n", err)
		return 1
	}

	_, _ = fmt.Fprintf(stdout, "Scanned %d events, %d invalid\n", scanned, invalid)
	if invalid > 0 {
		return 1
	}
	return 0
}
