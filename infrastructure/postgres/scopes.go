package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	database "github.com/r3e-network/flowlayer/infrastructure/database"
	"github.com/r3e-network/flowlayer/engine/model"
)

type varScopeRow struct {
	ID                string `db:"id"`
	ParentScopeID     string `db:"parent_scope_id"`
	ProcessInstanceID string `db:"process_instance_id"`
	ExecutionID       string `db:"execution_id"`
}

func (r varScopeRow) toModel() *model.VariableScope {
	return &model.VariableScope{
		ID:                r.ID,
		ParentScopeID:     r.ParentScopeID,
		ProcessInstanceID: r.ProcessInstanceID,
		ExecutionID:       r.ExecutionID,
	}
}

func (s *Store) CreateVarScope(ctx context.Context, sc *model.VariableScope) error {
	return ctxExec(ctx, s.Querier(ctx), `
		INSERT INTO variable_scopes (id, parent_scope_id, process_instance_id, execution_id)
		VALUES ($1, $2, $3, $4)
	`, sc.ID, nullableString(sc.ParentScopeID), sc.ProcessInstanceID, nullableString(sc.ExecutionID))
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func (s *Store) GetVarScope(ctx context.Context, id string) (*model.VariableScope, error) {
	var row varScopeRow
	err := s.Querier(ctx).GetContext(ctx, &row, `
		SELECT id, COALESCE(parent_scope_id, '') AS parent_scope_id, process_instance_id, COALESCE(execution_id, '') AS execution_id
		FROM variable_scopes WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, database.NewNotFoundError("VariableScope", id)
	}
	if err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (s *Store) VarScopeChildren(ctx context.Context, parentScopeID string) ([]*model.VariableScope, error) {
	var rows []varScopeRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT id, COALESCE(parent_scope_id, '') AS parent_scope_id, process_instance_id, COALESCE(execution_id, '') AS execution_id
		FROM variable_scopes WHERE parent_scope_id = $1
	`, parentScopeID); err != nil {
		return nil, err
	}
	out := make([]*model.VariableScope, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *Store) DeleteVarScope(ctx context.Context, id string) error {
	if err := ctxExec(ctx, s.Querier(ctx), `DELETE FROM variables WHERE scope_id = $1`, id); err != nil {
		return err
	}
	return ctxExec(ctx, s.Querier(ctx), `DELETE FROM variable_scopes WHERE id = $1`, id)
}

func (s *Store) SetVariable(ctx context.Context, v *model.Variable) error {
	value, err := json.Marshal(v.Value)
	if err != nil {
		return err
	}
	return ctxExec(ctx, s.Querier(ctx), `
		INSERT INTO variables (scope_id, name, value, revision)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (scope_id, name) DO UPDATE SET value = $3, revision = $4
	`, v.ScopeID, v.Name, value, v.Revision)
}

func (s *Store) GetVariable(ctx context.Context, scopeID, name string) (*model.Variable, bool, error) {
	var row struct {
		Value    []byte `db:"value"`
		Revision int    `db:"revision"`
	}
	err := s.Querier(ctx).GetContext(ctx, &row, `SELECT value, revision FROM variables WHERE scope_id = $1 AND name = $2`, scopeID, name)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var value interface{}
	if err := json.Unmarshal(row.Value, &value); err != nil {
		return nil, false, err
	}
	return &model.Variable{ScopeID: scopeID, Name: name, Value: value, Revision: row.Revision}, true, nil
}

func (s *Store) ListVariables(ctx context.Context, scopeID string) ([]*model.Variable, error) {
	var rows []struct {
		Name     string `db:"name"`
		Value    []byte `db:"value"`
		Revision int    `db:"revision"`
	}
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `SELECT name, value, revision FROM variables WHERE scope_id = $1`, scopeID); err != nil {
		return nil, err
	}
	out := make([]*model.Variable, len(rows))
	for i, r := range rows {
		var value interface{}
		if err := json.Unmarshal(r.Value, &value); err != nil {
			return nil, err
		}
		out[i] = &model.Variable{ScopeID: scopeID, Name: r.Name, Value: value, Revision: r.Revision}
	}
	return out, nil
}

func (s *Store) DeleteVariables(ctx context.Context, scopeID string) error {
	return ctxExec(ctx, s.Querier(ctx), `DELETE FROM variables WHERE scope_id = $1`, scopeID)
}
