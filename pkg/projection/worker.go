package projection

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/Mindburn-Labs/chronicle/pkg/eventstore"
	"github.com/Mindburn-Labs/chronicle/pkg/observability"
	"github.com/Mindburn-Labs/chronicle/pkg/schema"
)

// Handler applies one validated event to a read model. Delivery is
// at-least-once: a crash between handler success and checkpoint write
// replays the event on restart, so handlers must be idempotent.
type Handler func(ctx context.Context, evt eventstore.StoredEvent) error

// Source is the worker's view of the persisted log.
type Source interface {
	Tenants(ctx context.Context) ([]string, error)
	EventsByType(ctx context.Context, tenantID, eventType string, after eventstore.Cursor, limit int) ([]eventstore.StoredEvent, error)
}

// Config tunes the worker loop.
type Config struct {
	PollInterval time.Duration // sleep between passes
	BatchSize    int           // max events fetched per (tenant, projection) per pass
}

// DefaultConfig matches the worker's historical tuning.
func DefaultConfig() Config {
	return Config{PollInterval: time.Second, BatchSize: 100}
}

// Worker is the single projection worker. One pass visits every tenant
// crossed with every registered projection; for modest tenant counts the
// full scan is acceptable, beyond that the pass needs partitioning or an
// append-driven wake-up. Running two workers concurrently is not
// protected against and causes duplicate handler invocations.
//
// Poison policy: when an event fails validation or its handler, the
// worker dead-letters it and stops that (tenant, projection) batch
// without advancing the checkpoint. The event is retried on every later
// pass until it succeeds or an operator intervenes; later events of the
// same type stay queued behind it so per-(tenant, type) order is never
// violated. Other projections and tenants are unaffected.
type Worker struct {
	source      Source
	registry    *schema.Registry
	checkpoints CheckpointStore
	deadLetters DeadLetterStore
	handlers    map[string]Handler
	projections []string // handler keys, sorted for deterministic passes
	cfg         Config
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewWorker wires the worker. Handlers map event type to handler; the
// registered event types define the set of projections.
func NewWorker(
	source Source,
	registry *schema.Registry,
	checkpoints CheckpointStore,
	deadLetters DeadLetterStore,
	handlers map[string]Handler,
	cfg Config,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	projections := make([]string, 0, len(handlers))
	for eventType := range handlers {
		projections = append(projections, eventType)
	}
	sort.Strings(projections)

	return &Worker{
		source:      source,
		registry:    registry,
		checkpoints: checkpoints,
		deadLetters: deadLetters,
		handlers:    handlers,
		projections: projections,
		cfg:         cfg,
		logger:      logger.With("component", "projection-worker"),
		metrics:     metrics,
	}
}

// Run executes passes until ctx is canceled, then returns ctx.Err().
// Infrastructure errors inside a pass are logged and the loop continues;
// nothing short of cancellation stops the worker.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.InfoContext(ctx, "projection worker started",
		"projections", len(w.projections),
		"poll_interval", w.cfg.PollInterval.String(),
		"batch_size", w.cfg.BatchSize)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.InfoContext(ctx, "projection worker stopping")
			return ctx.Err()
		case <-timer.C:
		}

		if err := w.RunPass(ctx); err != nil {
			if ctx.Err() != nil {
				w.logger.InfoContext(ctx, "projection worker stopping")
				return ctx.Err()
			}
			w.logger.ErrorContext(ctx, "projection pass failed", "error", err)
		}
		timer.Reset(w.cfg.PollInterval)
	}
}

// RunPass executes one full scan over tenants x projections. Exposed so
// tests and the CLI can drive single passes deterministically.
func (w *Worker) RunPass(ctx context.Context) error {
	tenants, err := w.source.Tenants(ctx)
	if err != nil {
		return err
	}

	for _, tenantID := range tenants {
		for _, eventType := range w.projections {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := w.runProjection(ctx, tenantID, eventType); err != nil {
				return err
			}
		}
	}
	return nil
}

// runProjection drains one batch for one (tenant, projection) pair,
// strictly in (occurred_at, event_id) order.
func (w *Worker) runProjection(ctx context.Context, tenantID, eventType string) error {
	cursor, err := w.checkpoints.Load(ctx, tenantID, eventType)
	if err != nil {
		return err
	}

	events, err := w.source.EventsByType(ctx, tenantID, eventType, cursor, w.cfg.BatchSize)
	if err != nil {
		return err
	}

	handler := w.handlers[eventType]
	for _, evt := range events {
		if err := ctx.Err(); err != nil {
			return err
		}

		validated, verr := w.registry.Validate(evt.EventType, evt.TypeVersion, evt.Payload)
		if verr != nil {
			if err := w.deadLetter(ctx, evt, verr.Error()); err != nil {
				return err
			}
			w.logger.WarnContext(ctx, "event failed validation",
				"tenant_id", evt.TenantID,
				"event_id", evt.EventID,
				"event_type", evt.EventType,
				"correlation_id", evt.CorrelationID)
			return nil // checkpoint stays before the poison event
		}
		evt.Payload = validated

		if err := handler(ctx, evt); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if dlErr := w.deadLetter(ctx, evt, err.Error()); dlErr != nil {
				return dlErr
			}
			w.logger.ErrorContext(ctx, "projection handler failed",
				"tenant_id", evt.TenantID,
				"event_id", evt.EventID,
				"event_type", evt.EventType,
				"request_id", evt.RequestID,
				"correlation_id", evt.CorrelationID,
				"error", err)
			return nil // retried next pass; no retry budget, no backoff
		}

		// Advance durably before touching the next event.
		next := eventstore.Cursor{OccurredAt: evt.OccurredAt, EventID: evt.EventID}
		if err := w.checkpoints.Save(ctx, tenantID, eventType, next); err != nil {
			return err
		}
		w.metrics.RecordProcessed(ctx, eventType)
	}
	return nil
}

func (w *Worker) deadLetter(ctx context.Context, evt eventstore.StoredEvent, reason string) error {
	w.metrics.RecordDeadLetter(ctx, evt.EventType, reason)
	return w.deadLetters.Insert(ctx, DeadLetter{
		TenantID:      evt.TenantID,
		EventID:       evt.EventID,
		EventType:     evt.EventType,
		Reason:        reason,
		OccurredAt:    evt.OccurredAt,
		CorrelationID: evt.CorrelationID,
	})
}
