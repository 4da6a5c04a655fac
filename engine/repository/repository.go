// Package repository declares the persistence contracts the runtime facade
// and scheduler depend on for ProcessInstance/Execution/Task/History state,
// plus a Clock abstraction so tests can run the scheduler and timer logic
// deterministically. The scope/subscription/compensation/outbox packages
// each declare their own narrower Repository interface inline (idiomatic
// Go: accept the interface you need, not a shared god-interface) — this
// package covers the remaining entities those don't own.
package repository

import (
	"context"
	"time"

	"github.com/r3e-network/flowlayer/engine/model"
)

// Clock abstracts wall-clock time so the scheduler, timer polling, and
// outbox janitor can be driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock, backed by time.Now.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// ProcessDefinitionRepository stores deploy-time process definitions.
type ProcessDefinitionRepository interface {
	Save(ctx context.Context, pd *model.ProcessDefinition) error
	Get(ctx context.Context, id string) (*model.ProcessDefinition, error)
	GetLatestByKey(ctx context.Context, key string) (*model.ProcessDefinition, error)
}

// ProcessInstanceRepository stores process-instance state.
type ProcessInstanceRepository interface {
	Create(ctx context.Context, pi *model.ProcessInstance) error
	Get(ctx context.Context, id string) (*model.ProcessInstance, error)
	Update(ctx context.Context, pi *model.ProcessInstance) error
	ListByDefinition(ctx context.Context, processDefinitionID string, limit, offset int) ([]*model.ProcessInstance, error)
}

// ExecutionRepository stores token state.
type ExecutionRepository interface {
	Create(ctx context.Context, e *model.Execution) error
	Get(ctx context.Context, id string) (*model.Execution, error)
	Update(ctx context.Context, e *model.Execution) error
	Delete(ctx context.Context, id string) error
	ListByProcessInstance(ctx context.Context, processInstanceID string) ([]*model.Execution, error)
	ListChildren(ctx context.Context, parentExecutionID string) ([]*model.Execution, error)
}

// TaskRepository stores user-task state.
type TaskRepository interface {
	Create(ctx context.Context, t *model.Task) error
	Get(ctx context.Context, id string) (*model.Task, error)
	Update(ctx context.Context, t *model.Task) error
	ListByAssignee(ctx context.Context, assignee string) ([]*model.Task, error)
}

// HistoryRepository serves the read-only history query surface (§4.G
// supplemented feature), projected off the LifecycleEvent stream by a
// subscriber that is itself not a new write path.
type HistoryRepository interface {
	InstancesByDefinition(ctx context.Context, processDefinitionID string, limit, offset int) ([]*model.ProcessInstance, error)
	ActivitiesByInstance(ctx context.Context, processInstanceID string) ([]HistoryActivity, error)
	TasksByAssignee(ctx context.Context, assignee string) ([]*model.Task, error)
}

// HistoryActivity is one completed (or still-running) activity record
// projected from ACTIVITY_STARTED/ACTIVITY_COMPLETED lifecycle events.
type HistoryActivity struct {
	ProcessInstanceID string
	ExecutionID       string
	ElementID         string
	StartTime         time.Time
	EndTime           time.Time
}
