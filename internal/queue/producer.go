package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"basegraph.app/pagebot/internal/domain"
)

// EventMessage is one webhook event on its way to the worker.
type EventMessage struct {
	Event   domain.Event
	TraceID string
	Attempt int
}

type Producer interface {
	Enqueue(ctx context.Context, msg EventMessage) error
}

type ProducerConfig struct {
	Stream string
	// MaxLen caps the stream approximately. Zero leaves it unbounded.
	MaxLen int64
}

// RedisProducer appends events to the intake stream. It does not own the
// client.
type RedisProducer struct {
	client *redis.Client
	cfg    ProducerConfig
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, cfg ProducerConfig, logger *slog.Logger) *RedisProducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisProducer{client: client, cfg: cfg, logger: logger}
}

func (p *RedisProducer) Enqueue(ctx context.Context, msg EventMessage) error {
	deliveryID := uuid.NewString()

	args := &redis.XAddArgs{
		Stream: p.cfg.Stream,
		Values: eventValues(msg.Event, deliveryID, msg.TraceID, msg.Attempt),
	}
	if p.cfg.MaxLen > 0 {
		args.MaxLen = p.cfg.MaxLen
		args.Approx = true
	}

	entryID, err := p.client.XAdd(ctx, args).Result()
	if err != nil {
		return fmt.Errorf("xadd %s (item %s): %w", p.cfg.Stream, msg.Event.ItemID, err)
	}

	p.logger.DebugContext(ctx, "event handed to worker",
		"entry_id", entryID,
		"delivery_id", deliveryID,
		"tenant_id", msg.Event.TenantID,
		"item_id", msg.Event.ItemID,
		"kind", msg.Event.Kind)
	return nil
}
