package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"basegraph.app/pagebot/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ActionLogStore records every task the engine carried out
type ActionLogStore interface {
	Create(ctx context.Context, log *model.ActionLog) error
	GetByID(ctx context.Context, id int64) (*model.ActionLog, error)
	ListByTenant(ctx context.Context, tenantID string, limit int32) ([]model.ActionLog, error)
}
