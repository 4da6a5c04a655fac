package postgres

import (
	"context"
	"database/sql"
	"time"

	database "github.com/r3e-network/flowlayer/infrastructure/database"
	"github.com/r3e-network/flowlayer/engine/model"
)

type executionRow struct {
	ID                string    `db:"id"`
	ProcessInstanceID string    `db:"process_instance_id"`
	ParentExecutionID string    `db:"parent_execution_id"`
	ElementID         string    `db:"element_id"`
	Status            string    `db:"status"`
	IsScope           bool      `db:"is_scope"`
	VariableScopeID   string    `db:"variable_scope_id"`
	RetryCount        int       `db:"retry_count"`
	IncidentMessage   string    `db:"incident_message"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (r executionRow) toModel() *model.Execution {
	return &model.Execution{
		ID:                r.ID,
		ProcessInstanceID: r.ProcessInstanceID,
		ParentExecutionID: r.ParentExecutionID,
		ElementID:         r.ElementID,
		Status:            model.ExecutionStatus(r.Status),
		IsScope:           r.IsScope,
		VariableScopeID:   r.VariableScopeID,
		RetryCount:        r.RetryCount,
		IncidentMessage:   r.IncidentMessage,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func fromExecution(e *model.Execution) executionRow {
	return executionRow{
		ID:                e.ID,
		ProcessInstanceID: e.ProcessInstanceID,
		ParentExecutionID: e.ParentExecutionID,
		ElementID:         e.ElementID,
		Status:            string(e.Status),
		IsScope:           e.IsScope,
		VariableScopeID:   e.VariableScopeID,
		RetryCount:        e.RetryCount,
		IncidentMessage:   e.IncidentMessage,
		CreatedAt:         e.CreatedAt,
		UpdatedAt:         e.UpdatedAt,
	}
}

func (s *Store) CreateExecution(ctx context.Context, e *model.Execution) error {
	row := fromExecution(e)
	_, err := s.Querier(ctx).NamedExecContext(ctx, `
		INSERT INTO executions (id, process_instance_id, parent_execution_id, element_id, status, is_scope, variable_scope_id, retry_count, incident_message, created_at, updated_at)
		VALUES (:id, :process_instance_id, :parent_execution_id, :element_id, :status, :is_scope, :variable_scope_id, :retry_count, :incident_message, :created_at, :updated_at)
	`, row)
	return err
}

func (s *Store) GetExecution(ctx context.Context, id string) (*model.Execution, error) {
	var row executionRow
	err := s.Querier(ctx).GetContext(ctx, &row, `
		SELECT id, process_instance_id, parent_execution_id, element_id, status, is_scope, variable_scope_id, retry_count, incident_message, created_at, updated_at
		FROM executions WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, database.NewNotFoundError("Execution", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Store) UpdateExecution(ctx context.Context, e *model.Execution) error {
	row := fromExecution(e)
	_, err := s.Querier(ctx).NamedExecContext(ctx, `
		UPDATE executions SET
			status = :status, is_scope = :is_scope, variable_scope_id = :variable_scope_id,
			retry_count = :retry_count, incident_message = :incident_message, updated_at = :updated_at
		WHERE id = :id
	`, row)
	return err
}

func (s *Store) DeleteExecution(ctx context.Context, id string) error {
	return ctxExec(ctx, s.Querier(ctx), `DELETE FROM executions WHERE id = $1`, id)
}

func (s *Store) ListExecutionsByProcessInstance(ctx context.Context, processInstanceID string) ([]*model.Execution, error) {
	var rows []executionRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT id, process_instance_id, parent_execution_id, element_id, status, is_scope, variable_scope_id, retry_count, incident_message, created_at, updated_at
		FROM executions WHERE process_instance_id = $1
	`, processInstanceID); err != nil {
		return nil, err
	}
	out := make([]*model.Execution, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *Store) ListExecutionChildren(ctx context.Context, parentExecutionID string) ([]*model.Execution, error) {
	var rows []executionRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT id, process_instance_id, parent_execution_id, element_id, status, is_scope, variable_scope_id, retry_count, incident_message, created_at, updated_at
		FROM executions WHERE parent_execution_id = $1
	`, parentExecutionID); err != nil {
		return nil, err
	}
	out := make([]*model.Execution, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}
