package postgres

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	database "github.com/r3e-network/flowlayer/infrastructure/database"
	"github.com/r3e-network/flowlayer/engine/model"
)

// newMockStore wires a Store to a sqlmock connection instead of a live
// Postgres instance, the way the teacher's neo_provider_test.go and
// migrations_test.go exercise database/sql call sites without one.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &Store{db: sqlx.NewDb(db, "postgres")}, mock
}

func TestCreateInstance_InsertsRow(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectExec(`INSERT INTO process_instances`).
		WithArgs("inst-1", "def-1", "bk-1", "ACTIVE", "root-1", now, nil).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := s.CreateInstance(context.Background(), &model.ProcessInstance{
		ID:                  "inst-1",
		ProcessDefinitionID: "def-1",
		BusinessKey:         "bk-1",
		Status:              model.InstanceActive,
		RootExecutionID:     "root-1",
		StartTime:           now,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetInstance_ScansFoundRow(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, process_definition_id, business_key, status, root_execution_id, start_time, end_time`).
		WithArgs("inst-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "process_definition_id", "business_key", "status", "root_execution_id", "start_time", "end_time"}).
			AddRow("inst-1", "def-1", "bk-1", "ACTIVE", "root-1", now, nil))

	got, err := s.GetInstance(context.Background(), "inst-1")
	require.NoError(t, err)
	require.Equal(t, "inst-1", got.ID)
	require.Equal(t, model.InstanceActive, got.Status)
	require.True(t, got.EndTime.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetInstance_NotFoundMapsToDatabaseError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT id, process_definition_id, business_key, status, root_execution_id, start_time, end_time`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "process_definition_id", "business_key", "status", "root_execution_id", "start_time", "end_time"}))

	_, err := s.GetInstance(context.Background(), "missing")
	require.Error(t, err)
	require.True(t, database.IsNotFound(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateInstance_UpdatesStatusAndEndTime(t *testing.T) {
	s, mock := newMockStore(t)
	end := time.Now().UTC()
	mock.ExpectExec(`UPDATE process_instances SET`).
		WithArgs("COMPLETED", "root-1", end, "inst-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := s.UpdateInstance(context.Background(), &model.ProcessInstance{
		ID:              "inst-1",
		Status:          model.InstanceCompleted,
		RootExecutionID: "root-1",
		EndTime:         end,
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListInstancesByDefinition_ClampsLimitAndScansRows(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, process_definition_id, business_key, status, root_execution_id, start_time, end_time`).
		WithArgs("def-1", 50, 0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "process_definition_id", "business_key", "status", "root_execution_id", "start_time", "end_time"}).
			AddRow("inst-1", "def-1", "", "ACTIVE", "root-1", now, nil).
			AddRow("inst-2", "def-1", "", "COMPLETED", "root-2", now, now))

	got, err := s.ListInstancesByDefinition(context.Background(), "def-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "inst-1", got[0].ID)
	require.False(t, got[1].EndTime.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}
