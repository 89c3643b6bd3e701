package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"basegraph.app/pagebot/common/logger"
	"basegraph.app/pagebot/internal/metrics"
	"basegraph.app/pagebot/internal/queue"
	"basegraph.app/pagebot/internal/service"
)

type Config struct {
	MaxAttempts int
	// ErrorBackoff is the pause after a failed read. Defaults to one second.
	ErrorBackoff time.Duration
}

// Worker feeds intake stream messages into the engine.
type Worker struct {
	consumer Consumer
	ingester Ingester
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, ingester Ingester, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = time.Second
	}
	return &Worker{
		consumer:  consumer,
		ingester:  ingester,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "pagebot.worker"})
	slog.InfoContext(ctx, "worker started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
		}

		if err := w.processOneBatch(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.ErrorContext(ctx, "batch processing error", "error", err)
			select {
			case <-ctx.Done():
			case <-w.stopCh:
			case <-time.After(w.cfg.ErrorBackoff):
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		w.Handle(ctx, msg)
	}
	return nil
}

// Handle evaluates one message and settles it on the stream: ack on
// success, requeue or dead-letter on failure. The reclaimer reuses it.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: logger.Ptr(msg.ID),
		TenantID:  logger.Ptr(msg.Event.TenantID),
		ItemID:    logger.Ptr(msg.Event.ItemID),
	})

	err := w.processMessageSafe(ctx, msg)
	if err == nil {
		metrics.StreamMessages.WithLabelValues("processed").Inc()
		if ackErr := w.consumer.Ack(ctx, msg); ackErr != nil {
			// The reclaimer will redeliver it; admission rejects the repeat.
			slog.WarnContext(ctx, "failed to ACK message", "error", ackErr)
		}
		return
	}

	slog.ErrorContext(ctx, "message processing failed",
		"error", err,
		"attempt", msg.Attempt)
	w.handleFailedMessage(ctx, msg, err)
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing",
				"panic", r,
				"stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.processMessage(ctx, msg)
}

func (w *Worker) processMessage(ctx context.Context, msg queue.Message) error {
	ctx, span := logger.ContinueTrace(ctx, msg.TraceID, "worker.process_message",
		attribute.String("messaging.message.id", msg.ID),
		attribute.Int("pagebot.attempt", msg.Attempt),
	)
	defer span.End()

	decision, err := w.ingester.Ingest(ctx, msg.Event)
	if err != nil {
		span.Fail(err)
		return err
	}

	slog.DebugContext(ctx, "message evaluated",
		"delivery_id", msg.DeliveryID,
		"decision", decision.Label())
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if permanent(err) || msg.Attempt >= w.cfg.MaxAttempts {
		metrics.StreamMessages.WithLabelValues("dead_lettered").Inc()
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	metrics.StreamMessages.WithLabelValues("requeued").Inc()
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}

// permanent errors will fail the same way on every attempt.
func permanent(err error) bool {
	return errors.Is(err, service.ErrInvalidEvent) || errors.Is(err, service.ErrUnknownTenant)
}
