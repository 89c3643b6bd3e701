package worker

import (
	"context"
	"time"

	"basegraph.app/pagebot/internal/admission"
	"basegraph.app/pagebot/internal/domain"
	"basegraph.app/pagebot/internal/queue"
)

// Consumer abstracts the intake stream for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Claim(ctx context.Context, minIdle time.Duration, count int64) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// Ingester runs admission for one event.
type Ingester interface {
	Ingest(ctx context.Context, ev domain.Event) (admission.Decision, error)
}
