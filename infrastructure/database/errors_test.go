package database_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/flowlayer/infrastructure/database"
)

func TestValidateID_RejectsEmptyAndOversizedIDs(t *testing.T) {
	require.Error(t, database.ValidateID(""))
	require.Error(t, database.ValidateID(strings.Repeat("a", 129)))
}

func TestValidateID_AcceptsUUIDAndAlphanumericKeys(t *testing.T) {
	require.NoError(t, database.ValidateID("3fa85f64-5717-4562-b3fc-2c963f66afa6"))
	require.NoError(t, database.ValidateID("order-approval-process_v2"))
}

func TestValidateID_RejectsDisallowedCharacters(t *testing.T) {
	require.Error(t, database.ValidateID("drop table; --"))
}

func TestValidateLimit_FallsBackToDefaultAndCapsAtMax(t *testing.T) {
	require.Equal(t, 50, database.ValidateLimit(0, 50, 1000))
	require.Equal(t, 50, database.ValidateLimit(-5, 50, 1000))
	require.Equal(t, 1000, database.ValidateLimit(5000, 50, 1000))
	require.Equal(t, 200, database.ValidateLimit(200, 50, 1000))
}

func TestValidateOffset_ClampsNegativeToZero(t *testing.T) {
	require.Equal(t, 0, database.ValidateOffset(-10))
	require.Equal(t, 10, database.ValidateOffset(10))
}

func TestSanitizeString_StripsControlCharsAndTrims(t *testing.T) {
	require.Equal(t, "hello world", database.SanitizeString("  hello\x00 world\x01  "))
}

func TestValidateStatus_RejectsUnknownValue(t *testing.T) {
	require.Error(t, database.ValidateStatus("BOGUS", []string{"ACTIVE", "SUSPENDED"}))
	require.NoError(t, database.ValidateStatus("ACTIVE", []string{"ACTIVE", "SUSPENDED"}))
}

func TestIsNotFound_MatchesSentinelAndEngineErrorKind(t *testing.T) {
	err := database.NewNotFoundError("ProcessInstance", "pi-1")
	require.True(t, database.IsNotFound(err))
}
