// Package compensation implements the transaction sub-process lifecycle and
// its LIFO compensation unwind, adapted from the teacher's
// infrastructure/transaction Transaction/Step rollback — generalized from
// "roll back executed steps of one call" to "roll back completed activities
// of one transaction scope, addressable independently of process control
// flow and resumable across a crash" (the handler stack is persisted, not
// held in a local slice).
package compensation

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	engerr "github.com/r3e-network/flowlayer/infrastructure/errors"
	"github.com/r3e-network/flowlayer/engine/model"
)

// Repository is the persistence contract the manager depends on.
type Repository interface {
	CreateScope(ctx context.Context, s *model.TransactionScope) error
	GetScope(ctx context.Context, id string) (*model.TransactionScope, error)
	GetScopeByExecution(ctx context.Context, executionID string) (*model.TransactionScope, error)
	UpdateScope(ctx context.Context, s *model.TransactionScope) error
	AppendHandler(ctx context.Context, scopeID string, h model.CompensationHandler) error
}

// HandlerInvoker runs one compensation handler element against the
// execution/scope snapshot it was registered with. Implemented by
// engine/scheduler, which knows how to dispatch into the element graph;
// compensation itself stays graph-agnostic.
type HandlerInvoker func(ctx context.Context, h model.CompensationHandler) error

// Manager drives the TransactionScope state machine: ACTIVE while the
// transaction's activities run, COMPENSATING while the LIFO unwind runs,
// and terminally CANCELLED (compensated) or DONE (committed).
type Manager struct {
	repo Repository
	log  *logrus.Entry
}

// New constructs a Manager bound to repo.
func New(repo Repository, log *logrus.Entry) *Manager {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Manager{repo: repo, log: log}
}

// Begin creates a new ACTIVE transaction scope for an executing transaction
// sub-process or event sub-process.
func (m *Manager) Begin(ctx context.Context, processInstanceID, executionID string) (*model.TransactionScope, error) {
	s := &model.TransactionScope{
		ID:                uuid.NewString(),
		ProcessInstanceID: processInstanceID,
		ExecutionID:       executionID,
		Status:            model.TxScopeActive,
	}
	if err := m.repo.CreateScope(ctx, s); err != nil {
		return nil, engerr.Internal("begin transaction scope", err)
	}
	return s, nil
}

// GetScopeByExecution looks up the transaction scope rooted at executionID,
// returning a NotFound EngineError if executionID never began one.
func (m *Manager) GetScopeByExecution(ctx context.Context, executionID string) (*model.TransactionScope, error) {
	return m.repo.GetScopeByExecution(ctx, executionID)
}

// AddCompensationHandler registers (or replaces, by ActivityID) the
// compensation handler for a completed activity. Upsert-by-activity means a
// loop back into the same activity (a cycle inside the transaction)
// re-registers its handler at the current top of the stack (it is now the
// newest registration) rather than accumulating stale duplicates.
func (m *Manager) AddCompensationHandler(ctx context.Context, scopeID string, h model.CompensationHandler) error {
	scope, err := m.repo.GetScope(ctx, scopeID)
	if err != nil {
		return err
	}
	for i, existing := range scope.Handlers {
		if existing.ActivityID == h.ActivityID {
			scope.Handlers = append(scope.Handlers[:i:i], scope.Handlers[i+1:]...)
			if err := m.repo.UpdateScope(ctx, scope); err != nil {
				return err
			}
			break
		}
	}
	return m.repo.AppendHandler(ctx, scopeID, h)
}

// TriggerCompensation walks the scope's handler stack in reverse
// (last-registered activity compensates first) invoking each through
// invoke. A handler failure is logged and compensation continues with the
// next handler — best-effort unwind, matching the teacher's rollback loop,
// because an unwound transaction cannot be retried from the middle.
func (m *Manager) TriggerCompensation(ctx context.Context, scopeID string, invoke HandlerInvoker) error {
	scope, err := m.repo.GetScope(ctx, scopeID)
	if err != nil {
		return err
	}
	// A DONE scope with handlers is an event scope (see ConvertToEventScope)
	// and can still be unwound; a DONE scope without handlers committed.
	if scope.Status == model.TxScopeCancelled || (scope.Status == model.TxScopeDone && len(scope.Handlers) == 0) {
		return nil
	}
	scope.Status = model.TxScopeCompensating
	if err := m.repo.UpdateScope(ctx, scope); err != nil {
		return engerr.Internal("mark scope compensating", err)
	}

	for i := len(scope.Handlers) - 1; i >= 0; i-- {
		h := scope.Handlers[i]
		if err := invoke(ctx, h); err != nil {
			m.log.WithFields(logrus.Fields{
				"scopeId":    scopeID,
				"activityId": h.ActivityID,
			}).WithError(err).Error("compensation handler failed, continuing unwind")
		}
	}

	scope.Status = model.TxScopeCancelled
	scope.Handlers = nil
	return m.repo.UpdateScope(ctx, scope)
}

// Complete marks the scope DONE (no compensation needed — the transaction
// reached its normal end event).
func (m *Manager) Complete(ctx context.Context, scopeID string) error {
	scope, err := m.repo.GetScope(ctx, scopeID)
	if err != nil {
		return err
	}
	scope.Status = model.TxScopeDone
	scope.Handlers = nil
	return m.repo.UpdateScope(ctx, scope)
}

// CancelPolicy names one of the decision table's cells (Open Question
// resolution: compensation-subscription retention on cancel).
type CancelPolicy string

const (
	CancelEndEvent              CancelPolicy = "endEventCancel"
	CancelBoundaryInterrupting  CancelPolicy = "boundaryInterrupting"
	CancelBoundaryNonInterrupt  CancelPolicy = "boundaryNonInterrupting"
	CancelExplicitAPI           CancelPolicy = "explicitApiCancel"
)

// ShouldCompensate applies the decision table: end-event cancel and
// explicit API cancel with triggerCompensation=true compensate; interrupting
// boundary cancel with triggerCompensation=true compensates; everything
// else (including the non-interrupting boundary default) retains
// subscriptions and skips compensation here, converting the scope to an
// event scope instead via ConvertToEventScope.
func ShouldCompensate(policy CancelPolicy, triggerCompensation bool) (bool, error) {
	switch policy {
	case CancelEndEvent:
		return true, nil
	case CancelExplicitAPI:
		return triggerCompensation, nil
	case CancelBoundaryInterrupting:
		return triggerCompensation, nil
	case CancelBoundaryNonInterrupt:
		if triggerCompensation {
			return false, engerr.BpmnError("AmbiguousCancelPolicy", "non-interrupting boundary cannot request compensation")
		}
		return false, nil
	default:
		return false, engerr.BpmnError("AmbiguousCancelPolicy", "unknown cancel policy "+string(policy))
	}
}

// ConvertToEventScope retains the scope's handler stack (it is not cleared)
// so a later explicit compensation throw still finds the handlers, marking
// the scope DONE from the transaction's own perspective — the handlers now
// live on as a plain compensation-event target, not as an active
// transaction.
func (m *Manager) ConvertToEventScope(ctx context.Context, scopeID string) error {
	scope, err := m.repo.GetScope(ctx, scopeID)
	if err != nil {
		return err
	}
	scope.Status = model.TxScopeDone
	return m.repo.UpdateScope(ctx, scope)
}
