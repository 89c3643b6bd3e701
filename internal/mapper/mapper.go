package mapper

import (
	"context"
	"errors"

	"basegraph.app/pagebot/internal/domain"
)

var ErrUnsupportedObject = errors.New("unsupported webhook object")

// EventMapper turns a raw webhook body into engine events.
type EventMapper interface {
	Map(ctx context.Context, body []byte) ([]domain.Event, error)
}
