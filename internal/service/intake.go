package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"basegraph.app/pagebot/common/logger"
	"basegraph.app/pagebot/internal/domain"
	"basegraph.app/pagebot/internal/queue"
)

// Submitter hands a webhook batch off for asynchronous evaluation. It
// returns once the batch is accepted, not once it is evaluated.
type Submitter interface {
	Submit(ctx context.Context, events []domain.Event) error
}

// InlineSubmitter evaluates batches on a background goroutine in this process.
type InlineSubmitter struct {
	engine EngineService
	logger *slog.Logger
	wg     sync.WaitGroup
}

func NewInlineSubmitter(engine EngineService, logger *slog.Logger) *InlineSubmitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &InlineSubmitter{engine: engine, logger: logger}
}

func (s *InlineSubmitter) Submit(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	// The request context ends with the response; keep its values only.
	ctx = context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for _, ev := range events {
			if _, err := s.engine.Ingest(ctx, ev); err != nil {
				s.logger.WarnContext(ctx, "event not evaluated",
					"error", err,
					"tenant_id", ev.TenantID,
					"item_id", ev.ItemID)
			}
		}
	}()
	return nil
}

// Wait blocks until every submitted batch has been evaluated.
func (s *InlineSubmitter) Wait() {
	s.wg.Wait()
}

// StreamSubmitter appends events to the intake stream for the worker.
type StreamSubmitter struct {
	producer queue.Producer
}

func NewStreamSubmitter(producer queue.Producer) *StreamSubmitter {
	return &StreamSubmitter{producer: producer}
}

func (s *StreamSubmitter) Submit(ctx context.Context, events []domain.Event) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "pagebot.intake"})
	traceID := ""
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	var errs []error
	for _, ev := range events {
		if err := Validate(ev); err != nil {
			slog.WarnContext(ctx, "dropping invalid event", "error", err)
			continue
		}
		msg := queue.EventMessage{Event: ev, TraceID: traceID}
		if err := s.producer.Enqueue(ctx, msg); err != nil {
			errs = append(errs, fmt.Errorf("enqueue %s: %w", ev.ItemID, err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
