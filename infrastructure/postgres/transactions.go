package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	database "github.com/r3e-network/flowlayer/infrastructure/database"
	"github.com/r3e-network/flowlayer/engine/model"
)

func (s *Store) CreateTxScope(ctx context.Context, sc *model.TransactionScope) error {
	return ctxExec(ctx, s.Querier(ctx), `
		INSERT INTO transaction_scopes (id, process_instance_id, execution_id, status)
		VALUES ($1, $2, $3, $4)
	`, sc.ID, sc.ProcessInstanceID, sc.ExecutionID, string(sc.Status))
}

func (s *Store) loadTxScope(ctx context.Context, query string, arg string) (*model.TransactionScope, error) {
	var row struct {
		ID                string `db:"id"`
		ProcessInstanceID string `db:"process_instance_id"`
		ExecutionID       string `db:"execution_id"`
		Status            string `db:"status"`
	}
	if err := s.Querier(ctx).GetContext(ctx, &row, query, arg); err != nil {
		if err == sql.ErrNoRows {
			return nil, database.NewNotFoundError("TransactionScope", arg)
		}
		return nil, err
	}
	var handlerRows []struct {
		ActivityID    string `db:"activity_id"`
		HandlerElemID string `db:"handler_elem_id"`
		ExecutionID   string `db:"execution_id"`
		ScopeSnapshot []byte `db:"scope_snapshot"`
	}
	if err := s.Querier(ctx).SelectContext(ctx, &handlerRows, `
		SELECT activity_id, handler_elem_id, execution_id, scope_snapshot
		FROM compensation_handlers WHERE scope_id = $1 ORDER BY position ASC
	`, row.ID); err != nil {
		return nil, err
	}
	handlers := make([]model.CompensationHandler, len(handlerRows))
	for i, h := range handlerRows {
		var snapshot map[string]interface{}
		if len(h.ScopeSnapshot) > 0 {
			if err := json.Unmarshal(h.ScopeSnapshot, &snapshot); err != nil {
				return nil, err
			}
		}
		handlers[i] = model.CompensationHandler{
			ActivityID:    h.ActivityID,
			HandlerElemID: h.HandlerElemID,
			ExecutionID:   h.ExecutionID,
			ScopeSnapshot: snapshot,
		}
	}
	return &model.TransactionScope{
		ID:                row.ID,
		ProcessInstanceID: row.ProcessInstanceID,
		ExecutionID:       row.ExecutionID,
		Status:            model.TransactionScopeStatus(row.Status),
		Handlers:          handlers,
	}, nil
}

func (s *Store) GetTxScope(ctx context.Context, id string) (*model.TransactionScope, error) {
	return s.loadTxScope(ctx, `SELECT id, process_instance_id, execution_id, status FROM transaction_scopes WHERE id = $1`, id)
}

func (s *Store) GetTxScopeByExecution(ctx context.Context, executionID string) (*model.TransactionScope, error) {
	return s.loadTxScope(ctx, `SELECT id, process_instance_id, execution_id, status FROM transaction_scopes WHERE execution_id = $1`, executionID)
}

func (s *Store) UpdateTxScope(ctx context.Context, sc *model.TransactionScope) error {
	if err := ctxExec(ctx, s.Querier(ctx), `UPDATE transaction_scopes SET status = $2 WHERE id = $1`, sc.ID, string(sc.Status)); err != nil {
		return err
	}
	if sc.Handlers == nil {
		return ctxExec(ctx, s.Querier(ctx), `DELETE FROM compensation_handlers WHERE scope_id = $1`, sc.ID)
	}
	for _, h := range sc.Handlers {
		if err := s.AppendTxHandler(ctx, sc.ID, h); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) AppendTxHandler(ctx context.Context, scopeID string, h model.CompensationHandler) error {
	snapshot, err := json.Marshal(h.ScopeSnapshot)
	if err != nil {
		return err
	}
	return ctxExec(ctx, s.Querier(ctx), `
		INSERT INTO compensation_handlers (scope_id, activity_id, handler_elem_id, execution_id, scope_snapshot)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (scope_id, activity_id) DO UPDATE SET handler_elem_id = $3, execution_id = $4, scope_snapshot = $5, position = DEFAULT
	`, scopeID, h.ActivityID, h.HandlerElemID, h.ExecutionID, snapshot)
}
