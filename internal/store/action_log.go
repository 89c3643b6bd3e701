package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"basegraph.app/pagebot/internal/model"
)

const actionLogColumns = `id, tenant_id, task_id, task_type, item_id, target_id, thread_id,
status, remote_id, message, error, due_at, started_at, finished_at`

type actionLogStore struct {
	db DBTX
}

func NewActionLogStore(db DBTX) ActionLogStore {
	return &actionLogStore{db: db}
}

func (s *actionLogStore) Create(ctx context.Context, log *model.ActionLog) error {
	_, err := s.db.Exec(ctx, `insert into action_log(`+actionLogColumns+`)
values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		log.ID, log.TenantID, log.TaskID, log.TaskType, log.ItemID, log.TargetID, log.ThreadID,
		string(log.Status), log.RemoteID, log.Message, log.Error, log.DueAt, log.StartedAt, log.FinishedAt,
	)
	return err
}

func (s *actionLogStore) GetByID(ctx context.Context, id int64) (*model.ActionLog, error) {
	row := s.db.QueryRow(ctx, `select `+actionLogColumns+` from action_log where id = $1`, id)
	log, err := scanActionLog(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return log, nil
}

func (s *actionLogStore) ListByTenant(ctx context.Context, tenantID string, limit int32) ([]model.ActionLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `select `+actionLogColumns+` from action_log
where tenant_id = $1
order by finished_at desc
limit $2`, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]model.ActionLog, 0, limit)
	for rows.Next() {
		log, err := scanActionLog(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *log)
	}
	return result, rows.Err()
}

func scanActionLog(row pgx.Row) (*model.ActionLog, error) {
	var (
		log    model.ActionLog
		status string
	)
	if err := row.Scan(
		&log.ID, &log.TenantID, &log.TaskID, &log.TaskType, &log.ItemID, &log.TargetID, &log.ThreadID,
		&status, &log.RemoteID, &log.Message, &log.Error, &log.DueAt, &log.StartedAt, &log.FinishedAt,
	); err != nil {
		return nil, err
	}
	log.Status = model.ActionStatus(status)
	return &log, nil
}
