package postgres

import (
	"context"
	"database/sql"
	"time"

	database "github.com/r3e-network/flowlayer/infrastructure/database"
	"github.com/r3e-network/flowlayer/engine/model"
)

type instanceRow struct {
	ID                  string       `db:"id"`
	ProcessDefinitionID string       `db:"process_definition_id"`
	BusinessKey         string       `db:"business_key"`
	Status              string       `db:"status"`
	RootExecutionID     string       `db:"root_execution_id"`
	StartTime           time.Time    `db:"start_time"`
	EndTime             sql.NullTime `db:"end_time"`
}

func (r instanceRow) toModel() *model.ProcessInstance {
	pi := &model.ProcessInstance{
		ID:                  r.ID,
		ProcessDefinitionID: r.ProcessDefinitionID,
		BusinessKey:         r.BusinessKey,
		Status:              model.ProcessInstanceStatus(r.Status),
		RootExecutionID:     r.RootExecutionID,
		StartTime:           r.StartTime,
	}
	if r.EndTime.Valid {
		pi.EndTime = r.EndTime.Time
	}
	return pi
}

func fromInstance(pi *model.ProcessInstance) instanceRow {
	row := instanceRow{
		ID:                  pi.ID,
		ProcessDefinitionID: pi.ProcessDefinitionID,
		BusinessKey:         pi.BusinessKey,
		Status:              string(pi.Status),
		RootExecutionID:     pi.RootExecutionID,
		StartTime:           pi.StartTime,
	}
	if !pi.EndTime.IsZero() {
		row.EndTime = sql.NullTime{Time: pi.EndTime, Valid: true}
	}
	return row
}

func (s *Store) CreateInstance(ctx context.Context, pi *model.ProcessInstance) error {
	row := fromInstance(pi)
	_, err := s.Querier(ctx).NamedExecContext(ctx, `
		INSERT INTO process_instances (id, process_definition_id, business_key, status, root_execution_id, start_time, end_time)
		VALUES (:id, :process_definition_id, :business_key, :status, :root_execution_id, :start_time, :end_time)
	`, row)
	return err
}

func (s *Store) GetInstance(ctx context.Context, id string) (*model.ProcessInstance, error) {
	var row instanceRow
	err := s.Querier(ctx).GetContext(ctx, &row, `
		SELECT id, process_definition_id, business_key, status, root_execution_id, start_time, end_time
		FROM process_instances WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, database.NewNotFoundError("ProcessInstance", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Store) UpdateInstance(ctx context.Context, pi *model.ProcessInstance) error {
	row := fromInstance(pi)
	_, err := s.Querier(ctx).NamedExecContext(ctx, `
		UPDATE process_instances SET
			status = :status, root_execution_id = :root_execution_id, end_time = :end_time
		WHERE id = :id
	`, row)
	return err
}

func (s *Store) ListInstancesByDefinition(ctx context.Context, processDefinitionID string, limit, offset int) ([]*model.ProcessInstance, error) {
	limit = database.ValidateLimit(limit, 50, 1000)
	offset = database.ValidateOffset(offset)
	var rows []instanceRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT id, process_definition_id, business_key, status, root_execution_id, start_time, end_time
		FROM process_instances WHERE process_definition_id = $1
		ORDER BY start_time DESC LIMIT $2 OFFSET $3
	`, processDefinitionID, limit, offset); err != nil {
		return nil, err
	}
	out := make([]*model.ProcessInstance, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}
