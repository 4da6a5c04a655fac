package postgres

import (
	"context"
	"database/sql"
	"time"

	database "github.com/r3e-network/flowlayer/infrastructure/database"
	"github.com/r3e-network/flowlayer/engine/model"
)

type taskRow struct {
	ID           string       `db:"id"`
	ExecutionID  string       `db:"execution_id"`
	Name         string       `db:"name"`
	Assignee     string       `db:"assignee"`
	FormKey      string       `db:"form_key"`
	Status       string       `db:"status"`
	CreateTime   time.Time    `db:"create_time"`
	ClaimTime    sql.NullTime `db:"claim_time"`
	CompleteTime sql.NullTime `db:"complete_time"`
}

func (r taskRow) toModel() *model.Task {
	t := &model.Task{
		ID:          r.ID,
		ExecutionID: r.ExecutionID,
		Name:        r.Name,
		Assignee:    r.Assignee,
		FormKey:     r.FormKey,
		Status:      model.TaskStatus(r.Status),
		CreateTime:  r.CreateTime,
	}
	if r.ClaimTime.Valid {
		t.ClaimTime = r.ClaimTime.Time
	}
	if r.CompleteTime.Valid {
		t.CompleteTime = r.CompleteTime.Time
	}
	return t
}

func fromTask(t *model.Task) taskRow {
	row := taskRow{
		ID:          t.ID,
		ExecutionID: t.ExecutionID,
		Name:        t.Name,
		Assignee:    t.Assignee,
		FormKey:     t.FormKey,
		Status:      string(t.Status),
		CreateTime:  t.CreateTime,
	}
	if !t.ClaimTime.IsZero() {
		row.ClaimTime = sql.NullTime{Time: t.ClaimTime, Valid: true}
	}
	if !t.CompleteTime.IsZero() {
		row.CompleteTime = sql.NullTime{Time: t.CompleteTime, Valid: true}
	}
	return row
}

func (s *Store) CreateTask(ctx context.Context, t *model.Task) error {
	row := fromTask(t)
	_, err := s.Querier(ctx).NamedExecContext(ctx, `
		INSERT INTO tasks (id, execution_id, name, assignee, form_key, status, create_time, claim_time, complete_time)
		VALUES (:id, :execution_id, :name, :assignee, :form_key, :status, :create_time, :claim_time, :complete_time)
	`, row)
	return err
}

func (s *Store) GetTask(ctx context.Context, id string) (*model.Task, error) {
	var row taskRow
	err := s.Querier(ctx).GetContext(ctx, &row, `
		SELECT id, execution_id, name, assignee, form_key, status, create_time, claim_time, complete_time
		FROM tasks WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, database.NewNotFoundError("Task", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Store) UpdateTask(ctx context.Context, t *model.Task) error {
	row := fromTask(t)
	_, err := s.Querier(ctx).NamedExecContext(ctx, `
		UPDATE tasks SET assignee = :assignee, status = :status, claim_time = :claim_time, complete_time = :complete_time
		WHERE id = :id
	`, row)
	return err
}

func (s *Store) ListTasksByAssignee(ctx context.Context, assignee string) ([]*model.Task, error) {
	var rows []taskRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT id, execution_id, name, assignee, form_key, status, create_time, claim_time, complete_time
		FROM tasks WHERE assignee = $1
	`, assignee); err != nil {
		return nil, err
	}
	out := make([]*model.Task, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}
