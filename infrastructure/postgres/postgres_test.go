package postgres

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/r3e-network/flowlayer/engine/model"
)

func TestStore_WithTx_CommitsOnSuccess(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO variable_scopes`).
		WithArgs("scope-1", nil, "inst-1", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		return s.CreateVarScope(ctx, mockScope("scope-1", "inst-1"))
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTx_RollsBackOnError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO variable_scopes`).
		WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		return s.CreateVarScope(ctx, mockScope("scope-1", "inst-1"))
	})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

// TestStore_WithTx_IsReentrant confirms a nested WithTx call running inside
// an already-open transaction never opens a second one: only one
// ExpectBegin/ExpectCommit pair is set up, and both the outer and inner
// writes must land inside it for the test to pass.
func TestStore_WithTx_IsReentrant(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO variable_scopes`).
		WithArgs("scope-outer", nil, "inst-1", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO variable_scopes`).
		WithArgs("scope-inner", nil, "inst-1", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := s.WithTx(context.Background(), func(ctx context.Context) error {
		if err := s.CreateVarScope(ctx, mockScope("scope-outer", "inst-1")); err != nil {
			return err
		}
		return s.WithTx(ctx, func(ctx context.Context) error {
			return s.CreateVarScope(ctx, mockScope("scope-inner", "inst-1"))
		})
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Querier_FallsBackToPoolOutsideTransaction(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`INSERT INTO variable_scopes`).
		WithArgs("scope-1", nil, "inst-1", nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.CreateVarScope(context.Background(), mockScope("scope-1", "inst-1"))
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func mockScope(id, processInstanceID string) *model.VariableScope {
	return &model.VariableScope{ID: id, ProcessInstanceID: processInstanceID}
}
