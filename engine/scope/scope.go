// Package scope implements the variable-scope tree: creation, lookup with
// child-overrides-parent resolution, and idempotent recursive destruction.
// A Repository is the only collaborator; scope never talks to
// the database directly so it can be exercised against an in-memory fake.
package scope

import (
	"context"

	"github.com/google/uuid"

	engerr "github.com/r3e-network/flowlayer/infrastructure/errors"
	"github.com/r3e-network/flowlayer/engine/model"
)

// Repository is the persistence contract scope depends on.
type Repository interface {
	CreateScope(ctx context.Context, s *model.VariableScope) error
	GetScope(ctx context.Context, id string) (*model.VariableScope, error)
	ChildrenOf(ctx context.Context, parentScopeID string) ([]*model.VariableScope, error)
	DeleteScope(ctx context.Context, id string) error

	SetVariable(ctx context.Context, v *model.Variable) error
	GetVariable(ctx context.Context, scopeID, name string) (*model.Variable, bool, error)
	ListVariables(ctx context.Context, scopeID string) ([]*model.Variable, error)
	DeleteVariables(ctx context.Context, scopeID string) error
}

// Manager operates on the variable-scope tree.
type Manager struct {
	repo Repository
}

// New constructs a Manager bound to repo.
func New(repo Repository) *Manager {
	return &Manager{repo: repo}
}

// CreateScope creates a new scope, optionally nested under parentScopeID.
// A non-existent parent is rejected (NotFound) — the acyclicity invariant
// holds structurally because a scope can only ever name an already-created
// parent, never a parent created after it or itself.
func (m *Manager) CreateScope(ctx context.Context, processInstanceID, executionID, parentScopeID string) (*model.VariableScope, error) {
	if parentScopeID != "" {
		if _, err := m.repo.GetScope(ctx, parentScopeID); err != nil {
			return nil, err
		}
	}
	s := &model.VariableScope{
		ID:                uuid.NewString(),
		ParentScopeID:     parentScopeID,
		ProcessInstanceID: processInstanceID,
		ExecutionID:       executionID,
	}
	if err := m.repo.CreateScope(ctx, s); err != nil {
		return nil, engerr.Internal("create scope", err)
	}
	return s, nil
}

// SetVariable writes a variable directly in scopeID (never an ancestor —
// callers that want "set in the scope that already has this variable"
// should resolve first, then set on that scope's ID).
func (m *Manager) SetVariable(ctx context.Context, scopeID, name string, value interface{}) error {
	existing, ok, err := m.repo.GetVariable(ctx, scopeID, name)
	if err != nil {
		return err
	}
	revision := 1
	if ok {
		revision = existing.Revision + 1
	}
	return m.repo.SetVariable(ctx, &model.Variable{ScopeID: scopeID, Name: name, Value: value, Revision: revision})
}

// GetVariable resolves name starting at scopeID and walking up through
// ancestors, returning the first match (child overrides parent).
func (m *Manager) GetVariable(ctx context.Context, scopeID, name string) (interface{}, bool, error) {
	id := scopeID
	for id != "" {
		v, ok, err := m.repo.GetVariable(ctx, id, name)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return v.Value, true, nil
		}
		s, err := m.repo.GetScope(ctx, id)
		if err != nil {
			return nil, false, err
		}
		id = s.ParentScopeID
	}
	return nil, false, nil
}

// GetVariables returns the merged variable map visible from scopeID: every
// ancestor's variables, with closer scopes overriding farther ones. This is
// the map handed to engine/expr for condition and expression evaluation.
func (m *Manager) GetVariables(ctx context.Context, scopeID string) (map[string]interface{}, error) {
	chain, err := m.ancestry(ctx, scopeID)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]interface{})
	// Walk root-to-leaf so nearer scopes overwrite farther ones.
	for i := len(chain) - 1; i >= 0; i-- {
		vars, err := m.repo.ListVariables(ctx, chain[i])
		if err != nil {
			return nil, err
		}
		for _, v := range vars {
			merged[v.Name] = v.Value
		}
	}
	return merged, nil
}

func (m *Manager) ancestry(ctx context.Context, scopeID string) ([]string, error) {
	var chain []string
	id := scopeID
	for id != "" {
		chain = append(chain, id)
		s, err := m.repo.GetScope(ctx, id)
		if err != nil {
			return nil, err
		}
		id = s.ParentScopeID
	}
	return chain, nil
}

// CopyVariables copies the merged variable map visible from srcScopeID into
// dstScopeID directly (used when a sub-process or event sub-process starts
// a fresh scope that should see a snapshot of its parent's variables).
func (m *Manager) CopyVariables(ctx context.Context, srcScopeID, dstScopeID string) error {
	vars, err := m.GetVariables(ctx, srcScopeID)
	if err != nil {
		return err
	}
	for name, value := range vars {
		if err := m.SetVariable(ctx, dstScopeID, name, value); err != nil {
			return err
		}
	}
	return nil
}

// DestroyScope recursively deletes scopeID and every descendant, along with
// their variables. It is idempotent: destroying an already-gone scope is a
// no-op, not an error, since scope teardown can race with an outer
// instance-level cancellation that already swept it.
func (m *Manager) DestroyScope(ctx context.Context, scopeID string) error {
	if _, err := m.repo.GetScope(ctx, scopeID); err != nil {
		if engerr.Is(err, engerr.KindNotFound) {
			return nil
		}
		return err
	}
	children, err := m.repo.ChildrenOf(ctx, scopeID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := m.DestroyScope(ctx, c.ID); err != nil {
			return err
		}
	}
	if err := m.repo.DeleteVariables(ctx, scopeID); err != nil {
		return err
	}
	return m.repo.DeleteScope(ctx, scopeID)
}
