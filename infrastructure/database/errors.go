// Package database holds the repository-facing helpers shared by every
// Postgres-backed store: input validation, pagination, and the bridge
// between the engine's Kind-tagged errors and database/sql sentinel errors.
package database

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	engerr "github.com/r3e-network/flowlayer/infrastructure/errors"
)

// =============================================================================
// Standard Error Types
// =============================================================================

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyExists is returned when trying to create a duplicate record.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrConflict is returned when there's a conflict (e.g., concurrent modification).
	ErrConflict = errors.New("conflict")
)

// NotFoundError wraps ErrNotFound with context; NewNotFoundError returns it
// wrapped in an *errors.EngineError of Kind NotFound, so callers can branch
// on either the sentinel or the Kind.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s with id '%s' not found", e.Entity, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Entity)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NewNotFoundError creates a new NotFoundError and logs it under the engine's
// Kind taxonomy by wrapping it as an *errors.EngineError.
func NewNotFoundError(entity, id string) error {
	return engerr.Wrap(engerr.KindNotFound, "not found", &NotFoundError{Entity: entity, ID: id}).
		WithDetails("entity", entity).
		WithDetails("id", id)
}

// IsNotFound checks if an error is a not found error, by sentinel or Kind.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || engerr.Is(err, engerr.KindNotFound)
}

// IsAlreadyExists checks if an error is an already exists error.
func IsAlreadyExists(err error) bool {
	return errors.Is(err, ErrAlreadyExists)
}

// IsInvalidInput checks if an error is an invalid input error.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// =============================================================================
// Input Validation
// =============================================================================

var (
	// uuidRegex matches UUID format (with or without hyphens) — entity IDs
	// throughout the engine (instances, executions, scopes, subscriptions).
	uuidRegex = regexp.MustCompile(`^[a-fA-F0-9]{8}-?[a-fA-F0-9]{4}-?[a-fA-F0-9]{4}-?[a-fA-F0-9]{4}-?[a-fA-F0-9]{12}$`)

	// alphanumericRegex matches alphanumeric strings with hyphens and
	// underscores — deploy-assigned process/element IDs, which are not UUIDs.
	alphanumericRegex = regexp.MustCompile(`^[a-zA-Z0-9_:-]+$`)
)

// ValidateID validates an ID string (UUID or alphanumeric element/process key).
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidInput)
	}
	if len(id) > 128 {
		return fmt.Errorf("%w: id too long", ErrInvalidInput)
	}
	if !uuidRegex.MatchString(id) && !alphanumericRegex.MatchString(id) {
		return fmt.Errorf("%w: invalid id format", ErrInvalidInput)
	}
	return nil
}

// ValidateLimit validates and normalizes a limit parameter.
func ValidateLimit(limit, defaultLimit, maxLimit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// ValidateOffset validates an offset parameter.
func ValidateOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

// SanitizeString removes control characters from a string (e.g. before
// storing a user-supplied task comment or incident note).
func SanitizeString(s string) string {
	s = strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}

// ValidateStatus validates a status string against an enum.
func ValidateStatus(status string, validStatuses []string) error {
	if status == "" {
		return fmt.Errorf("%w: status cannot be empty", ErrInvalidInput)
	}
	for _, valid := range validStatuses {
		if status == valid {
			return nil
		}
	}
	return fmt.Errorf("%w: invalid status '%s'", ErrInvalidInput, status)
}

// =============================================================================
// Pagination
// =============================================================================

// PaginationParams holds pagination parameters.
type PaginationParams struct {
	Limit  int
	Offset int
}

// DefaultPagination returns default pagination parameters.
func DefaultPagination() PaginationParams {
	return PaginationParams{
		Limit:  50,
		Offset: 0,
	}
}

// NewPagination creates validated pagination parameters.
func NewPagination(limit, offset int) PaginationParams {
	return PaginationParams{
		Limit:  ValidateLimit(limit, 50, 1000),
		Offset: ValidateOffset(offset),
	}
}
