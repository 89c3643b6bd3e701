package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"basegraph.app/pagebot/internal/admission"
	"basegraph.app/pagebot/internal/domain"
	"basegraph.app/pagebot/internal/metrics"
	"basegraph.app/pagebot/internal/tenant"
)

var (
	ErrUnknownTenant = tenant.ErrUnknownTenant
	ErrInvalidEvent  = errors.New("invalid event")
)

// Evaluator is what the engine needs from the admission pipeline.
type Evaluator interface {
	Evaluate(ctx context.Context, st *tenant.State, ev domain.Event) admission.Decision
}

type EngineService interface {
	// Ingest routes ev to its tenant and runs admission. A rejection is a
	// decision, not an error; errors mean the event could not be evaluated.
	Ingest(ctx context.Context, ev domain.Event) (admission.Decision, error)
}

type engineService struct {
	registry  *tenant.Registry
	evaluator Evaluator
	logger    *slog.Logger
}

func NewEngineService(registry *tenant.Registry, evaluator Evaluator, logger *slog.Logger) EngineService {
	if logger == nil {
		logger = slog.Default()
	}
	return &engineService{
		registry:  registry,
		evaluator: evaluator,
		logger:    logger,
	}
}

func (s *engineService) Ingest(ctx context.Context, ev domain.Event) (admission.Decision, error) {
	if err := Validate(ev); err != nil {
		return admission.Decision{}, err
	}
	metrics.EventsReceived.WithLabelValues(ev.TenantID, string(ev.Kind)).Inc()

	st, err := s.registry.Get(ev.TenantID)
	if err != nil {
		if errors.Is(err, tenant.ErrUnknownTenant) {
			s.logger.WarnContext(ctx, "event for unconfigured tenant", "tenant_id", ev.TenantID, "item_id", ev.ItemID)
		}
		return admission.Decision{}, fmt.Errorf("resolving tenant: %w", err)
	}

	return s.evaluator.Evaluate(ctx, st, ev), nil
}

// Validate rejects events admission cannot reason about.
func Validate(ev domain.Event) error {
	switch {
	case ev.TenantID == "":
		return fmt.Errorf("%w: missing tenant id", ErrInvalidEvent)
	case ev.ItemID == "":
		return fmt.Errorf("%w: missing item id", ErrInvalidEvent)
	case !ev.Kind.Valid():
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, ev.Kind)
	case ev.Kind == domain.EventKindReply && ev.ParentID == "":
		return fmt.Errorf("%w: reply without parent", ErrInvalidEvent)
	}
	return nil
}
