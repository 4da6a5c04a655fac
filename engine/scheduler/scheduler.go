// Package scheduler implements the token-flow interpreter (§4.F): the
// cooperative, single-logical-owner-per-instance driver that dequeues work
// items, executes one element's behavior per work unit inside a retry
// envelope, and persists the result. Grounded on the teacher's
// services/automation Scheduler (ticker+stopCh loop, per-key state guarded
// by a mutex) generalized from "poll triggers on an interval" to "advance
// one execution through the element graph with per-instance serialization",
// and on infrastructure/resilience.Retry for the work-unit retry envelope.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/r3e-network/flowlayer/engine/compensation"
	engerr "github.com/r3e-network/flowlayer/infrastructure/errors"
	"github.com/r3e-network/flowlayer/engine/eventsubprocess"
	"github.com/r3e-network/flowlayer/engine/expr"
	"github.com/r3e-network/flowlayer/engine/model"
	"github.com/r3e-network/flowlayer/engine/outbox"
	"github.com/r3e-network/flowlayer/engine/repository"
	"github.com/r3e-network/flowlayer/engine/scope"
	"github.com/r3e-network/flowlayer/engine/scripting"
	"github.com/r3e-network/flowlayer/engine/subscription"
	"github.com/r3e-network/flowlayer/infrastructure/resilience"
	"github.com/r3e-network/flowlayer/pkg/metrics"
)

// Action enumerates what a work unit asks the interpreter to do to an
// execution.
type Action string

const (
	ActionContinue        Action = "CONTINUE"
	ActionTrigger         Action = "TRIGGER"
	ActionCompleteTask    Action = "COMPLETE_TASK"
	ActionCancel          Action = "CANCEL"
	ActionCompensate      Action = "COMPENSATE"
	ActionResumeFromTimer Action = "RESUME_FROM_TIMER"
)

// WorkItem is one unit the scheduler's Submit drives through one database
// transaction's worth of work.
type WorkItem struct {
	ExecutionID       string
	ProcessInstanceID string
	Action            Action
	EventType         model.EventType
	EventName         string
	EventPayload      interface{}
	TaskVariables     map[string]interface{}
	TaskID            string
}

// ServiceTaskHandler calls an external worker for a serviceTask's topic,
// synchronously, within the work-unit transaction. Implemented by the
// embedding process; the core never hard-wires a transport (see
// SPEC_FULL's domain-stack note on why no broker client lives here).
type ServiceTaskHandler func(ctx context.Context, topic string, variables map[string]interface{}) (map[string]interface{}, error)

// outcomeKind is the tagged-variant Outcome §4.F's element behaviors return.
type outcomeKind int

const (
	outLeaveTo outcomeKind = iota
	outWait
	outFork
	outJoin
	outTerminate
	outFail
)

type outcome struct {
	kind outcomeKind
	next []string
	err  error
}

func leaveTo(ids ...string) outcome { return outcome{kind: outLeaveTo, next: ids} }
func wait() outcome                 { return outcome{kind: outWait} }
func fork(ids ...string) outcome    { return outcome{kind: outFork, next: ids} }
func join() outcome                 { return outcome{kind: outJoin} }
func terminate() outcome            { return outcome{kind: outTerminate} }
func fail(err error) outcome        { return outcome{kind: outFail, err: err} }

// behavior is the dispatch-table signature: one function per ElementKind,
// matching §9's "tagged variant + dispatch table" design note. Parameter
// order matches a method expression's shape ((*Scheduler).behaviorXxx has
// the receiver first) so the dispatch table can hold bound method values
// directly instead of wrapping each one in a closure.
type behavior func(s *Scheduler, ctx context.Context, exec *model.Execution, el *model.Element, vars map[string]interface{}) (outcome, error)

// Repositories groups the entity repositories the scheduler owns directly
// (definition/instance/execution/task); scope/subscription/compensation
// manage their own narrower repository dependencies internally.
type Repositories struct {
	Definitions repository.ProcessDefinitionRepository
	Instances   repository.ProcessInstanceRepository
	Executions  repository.ExecutionRepository
	Tasks       repository.TaskRepository
}

// TxRunner gives a work unit's state mutations and its outbox append the
// same-transaction guarantee §4.F requires ("each work unit is processed
// in one database transaction ... exactly one outbox row appended in the
// same transaction that mutated core state"). WithTx must be reentrant:
// a call nested inside an already-open transaction runs fn directly
// against it rather than opening a second one, so wrapping an outer
// operation that itself calls into an already-wrapped one (e.g.
// resumeSubscriptionLocked delegating to submitLocked) never risks a
// self-deadlock over the same rows on the same connection.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// noopTxRunner is the default TxRunner: it runs fn with no surrounding
// transaction. Used with engine/repository.Memory, which already mutates
// in place synchronously under the scheduler's per-instance lock and has
// no transaction boundary to offer.
type noopTxRunner struct{}

func (noopTxRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Config configures the work-unit retry policy.
type Config struct {
	RetryConfig resilience.RetryConfig
}

// DefaultConfig returns the default work-unit retry envelope.
func DefaultConfig() Config {
	return Config{RetryConfig: resilience.DefaultRetryConfig()}
}

// Scheduler is the token-flow interpreter.
type Scheduler struct {
	repos    Repositories
	scopes   *scope.Manager
	subs     *subscription.Registry
	comp     *compensation.Manager
	eventSP  *eventsubprocess.Manager
	script   *scripting.Engine
	outRepo  outbox.Repository
	clock    repository.Clock
	log      *zap.Logger
	cfg      Config
	txRunner TxRunner

	serviceTask ServiceTaskHandler

	dispatch map[model.ElementKind]behavior

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New constructs a Scheduler. serviceTaskHandler may be nil; serviceTask
// elements then always fail with a BpmnError.
func New(
	repos Repositories,
	scopes *scope.Manager,
	subs *subscription.Registry,
	comp *compensation.Manager,
	script *scripting.Engine,
	outRepo outbox.Repository,
	clock repository.Clock,
	serviceTaskHandler ServiceTaskHandler,
	log *zap.Logger,
	cfg Config,
	txRunner TxRunner,
) *Scheduler {
	if clock == nil {
		clock = repository.SystemClock{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.RetryConfig.MaxAttempts <= 0 {
		cfg = DefaultConfig()
	}
	if txRunner == nil {
		txRunner = noopTxRunner{}
	}
	s := &Scheduler{
		repos:       repos,
		scopes:      scopes,
		subs:        subs,
		comp:        comp,
		script:      script,
		outRepo:     outRepo,
		clock:       clock,
		log:         log,
		cfg:         cfg,
		txRunner:    txRunner,
		serviceTask: serviceTaskHandler,
		locks:       make(map[string]*sync.Mutex),
	}
	s.eventSP = eventsubprocess.New(s.spawnEventSubProcess)
	s.dispatch = map[model.ElementKind]behavior{
		model.ElementStartEvent:        (*Scheduler).behaviorStartEvent,
		model.ElementEndEvent:          (*Scheduler).behaviorEndEvent,
		model.ElementExclusiveGateway:  (*Scheduler).behaviorExclusiveGateway,
		model.ElementInclusiveGateway:  (*Scheduler).behaviorInclusiveGateway,
		model.ElementParallelGateway:   (*Scheduler).behaviorParallelGateway,
		model.ElementUserTask:          (*Scheduler).behaviorUserTask,
		model.ElementServiceTask:       (*Scheduler).behaviorServiceTask,
		model.ElementScriptTask:        (*Scheduler).behaviorScriptTask,
		model.ElementSubProcess:        (*Scheduler).behaviorSubProcess,
		model.ElementEventSubProcess:   (*Scheduler).behaviorNoIncoming,
		model.ElementTransaction:       (*Scheduler).behaviorTransaction,
		model.ElementBoundaryEvent:     (*Scheduler).behaviorNoIncoming,
		model.ElementIntermediateCatch: (*Scheduler).behaviorIntermediateCatch,
		model.ElementIntermediateThrow: (*Scheduler).behaviorIntermediateThrow,
	}
	return s
}

// instanceLock returns (creating if needed) the mutex serializing every
// work unit for one process instance — the primary serialization invariant
// §4.F names: at most one worker at a time advances a given instance.
func (s *Scheduler) instanceLock(processInstanceID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[processInstanceID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[processInstanceID] = l
	}
	return l
}

// Submit drives item through the retry envelope, serialized per instance.
// A work unit that keeps failing past the retry budget records the error as
// the execution's IncidentMessage, appends an INCIDENT_RAISED lifecycle
// event and returns the error to the caller. The execution's Status is not
// changed (there is no FAILED execution status); a later ResolveIncident
// call retries, skips or cancels it.
func (s *Scheduler) Submit(ctx context.Context, item WorkItem) error {
	lock := s.instanceLock(item.ProcessInstanceID)
	lock.Lock()
	defer lock.Unlock()
	return s.submitLocked(ctx, item)
}

// submitLocked is Submit's body, factored out so callers that already hold
// the instance lock (resumeSubscription, which must evaluate a matched
// subscription and submit its resulting work item as one atomic step) can
// drive a work unit without deadlocking on Submit's own lock acquisition.
func (s *Scheduler) submitLocked(ctx context.Context, item WorkItem) error {
	start := time.Now()
	elementType := "unknown"
	attempts := 0
	err := resilience.Retry(ctx, s.cfg.RetryConfig, func() error {
		attempts++
		if attempts > 1 {
			metrics.RecordWorkUnitRetry(elementType)
		}
		return s.txRunner.WithTx(ctx, func(ctx context.Context) error {
			et, werr := s.runWorkUnit(ctx, item)
			elementType = et
			return werr
		})
	})
	metrics.RecordWorkUnit(elementType, outcomeLabel(err), time.Since(start))

	if err != nil {
		return s.raiseIncident(ctx, item, elementType, err)
	}
	if cerr := s.checkConditionalSubscriptions(ctx, item.ProcessInstanceID); cerr != nil {
		s.log.Error("conditional subscription re-evaluation failed", zap.Error(cerr), zap.String("processInstanceId", item.ProcessInstanceID))
	}
	return nil
}

// checkConditionalSubscriptions re-evaluates every open CONDITIONAL
// subscription for processInstanceID after a work unit's variable changes
// have settled, resuming any whose gating expression now evaluates true
// (§4.C). Runs with the instance lock already held by the caller.
func (s *Scheduler) checkConditionalSubscriptions(ctx context.Context, processInstanceID string) error {
	subs, err := s.subs.FindByProcessInstance(ctx, processInstanceID)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if sub.EventType != model.EventConditional || sub.Configuration == "" {
			continue
		}
		exec, err := s.repos.Executions.Get(ctx, sub.ExecutionID)
		if err != nil {
			return err
		}
		vars, err := s.scopes.GetVariables(ctx, exec.VariableScopeID)
		if err != nil {
			return err
		}
		matched, err := evaluateVars(ctx, sub.Configuration, vars)
		if err != nil {
			return err
		}
		if matched {
			if err := s.resumeSubscriptionLocked(ctx, sub, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func outcomeLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// raiseIncident records cause as the execution's IncidentMessage (leaving
// its Status unchanged), appends the INCIDENT_RAISED lifecycle event and
// returns cause, completing the retry-exhaustion path §4.F
// describes as "wait for human/admin action via an external resume call".
func (s *Scheduler) raiseIncident(ctx context.Context, item WorkItem, elementType string, cause error) error {
	kind := "Internal"
	if ee := engerr.As(cause); ee != nil {
		kind = string(ee.Kind)
	}
	metrics.RecordIncident(elementType, kind)

	if terr := s.txRunner.WithTx(ctx, func(ctx context.Context) error {
		exec, gerr := s.repos.Executions.Get(ctx, item.ExecutionID)
		if gerr == nil {
			exec.IncidentMessage = cause.Error()
			exec.UpdatedAt = s.clock.Now()
			_ = s.repos.Executions.Update(ctx, exec)
		}
		return s.appendLifecycle(ctx, item.ProcessInstanceID, item.ExecutionID, "INCIDENT_RAISED", map[string]interface{}{
			"executionId": item.ExecutionID,
			"error":       cause.Error(),
			"errorKind":   kind,
		})
	}); terr != nil {
		s.log.Error("failed to append incident lifecycle event", zap.Error(terr))
	}
	return cause
}

// ResolveIncident is the supplemented incident-resume API: RETRY re-submits
// the same execution as a CONTINUE work unit; SKIP leaves via the element's
// first outgoing flow without re-running its behavior; CANCEL tears the
// execution down via Cancel.
type IncidentAction string

const (
	IncidentRetry  IncidentAction = "RETRY"
	IncidentSkip   IncidentAction = "SKIP"
	IncidentCancel IncidentAction = "CANCEL"
)

func (s *Scheduler) ResolveIncident(ctx context.Context, executionID string, action IncidentAction) error {
	exec, err := s.repos.Executions.Get(ctx, executionID)
	if err != nil {
		return err
	}
	switch action {
	case IncidentRetry:
		exec.IncidentMessage = ""
		exec.RetryCount = 0
		if err := s.repos.Executions.Update(ctx, exec); err != nil {
			return err
		}
		return s.Submit(ctx, WorkItem{ExecutionID: executionID, ProcessInstanceID: exec.ProcessInstanceID, Action: ActionContinue})
	case IncidentSkip:
		def, err := s.definitionFor(ctx, exec)
		if err != nil {
			return err
		}
		el := def.Elements[exec.ElementID]
		if el == nil || len(el.Outgoing) == 0 {
			return engerr.BpmnError("NoOutgoingFlow", "cannot skip "+exec.ElementID+": no outgoing flow")
		}
		flow := def.Flows[el.Outgoing[0]]
		exec.IncidentMessage = ""
		exec.ElementID = flow.TargetRef
		exec.UpdatedAt = s.clock.Now()
		if err := s.repos.Executions.Update(ctx, exec); err != nil {
			return err
		}
		return s.Submit(ctx, WorkItem{ExecutionID: executionID, ProcessInstanceID: exec.ProcessInstanceID, Action: ActionContinue})
	case IncidentCancel:
		return s.Cancel(ctx, executionID, "incident cancelled by operator")
	default:
		return engerr.New(engerr.KindInternal, "unknown incident action "+string(action))
	}
}

// runWorkUnit executes exactly one work unit: load, dispatch, persist. The
// returned element-type label feeds the work_units_total/retries metrics
// even on early-return error paths.
func (s *Scheduler) runWorkUnit(ctx context.Context, item WorkItem) (string, error) {
	exec, err := s.repos.Executions.Get(ctx, item.ExecutionID)
	if err != nil {
		return "unknown", err
	}
	def, err := s.definitionFor(ctx, exec)
	if err != nil {
		return "unknown", err
	}
	el, ok := def.Elements[exec.ElementID]
	if !ok {
		return "unknown", engerr.New(engerr.KindInternal, "execution references unknown element "+exec.ElementID)
	}

	switch item.Action {
	case ActionCompleteTask:
		return string(el.Kind), s.completeTaskWorkUnit(ctx, exec, el, item)
	case ActionCancel:
		return string(el.Kind), s.Cancel(ctx, exec.ID, "cancel work item")
	case ActionCompensate:
		return string(el.Kind), s.compensateWorkUnit(ctx, exec)
	case ActionTrigger, ActionResumeFromTimer:
		return string(el.Kind), s.triggerWorkUnit(ctx, exec, el, item)
	default:
		return string(el.Kind), s.advance(ctx, exec, el)
	}
}

func (s *Scheduler) definitionFor(ctx context.Context, exec *model.Execution) (*model.ProcessDefinition, error) {
	inst, err := s.repos.Instances.Get(ctx, exec.ProcessInstanceID)
	if err != nil {
		return nil, err
	}
	return s.repos.Definitions.Get(ctx, inst.ProcessDefinitionID)
}

// advance dispatches el's behavior and applies the resulting Outcome.
func (s *Scheduler) advance(ctx context.Context, exec *model.Execution, el *model.Element) error {
	fn, ok := s.dispatch[el.Kind]
	if !ok {
		return engerr.New(engerr.KindInternal, "no behavior registered for element kind "+string(el.Kind))
	}
	vars, err := s.scopes.GetVariables(ctx, exec.VariableScopeID)
	if err != nil {
		return err
	}
	out, err := fn(s, ctx, exec, el, vars)
	if err != nil {
		return err
	}
	return s.applyOutcome(ctx, exec, el, out)
}

func (s *Scheduler) applyOutcome(ctx context.Context, exec *model.Execution, el *model.Element, out outcome) error {
	def, err := s.definitionFor(ctx, exec)
	if err != nil {
		return err
	}
	switch out.kind {
	case outWait:
		exec.Status = model.ExecutionWaiting
		exec.UpdatedAt = s.clock.Now()
		return s.repos.Executions.Update(ctx, exec)

	case outTerminate:
		return s.completeInstance(ctx, exec.ProcessInstanceID, model.InstanceTerminated)

	case outFail:
		return out.err

	case outLeaveTo:
		if err := s.maybeRegisterCompensation(ctx, exec, el); err != nil {
			return err
		}
		if len(out.next) == 0 {
			return s.endExecution(ctx, exec)
		}
		first := out.next[0]
		exec.ElementID = first
		exec.Status = model.ExecutionActive
		exec.UpdatedAt = s.clock.Now()
		if err := s.repos.Executions.Update(ctx, exec); err != nil {
			return err
		}
		if err := s.appendActivityEvent(ctx, exec, "ACTIVITY_STARTED", def.Elements[first]); err != nil {
			return err
		}
		if err := s.armBoundaryEvents(ctx, exec, def, first); err != nil {
			return err
		}
		for _, extra := range out.next[1:] {
			if _, err := s.spawnChild(ctx, exec, extra); err != nil {
				return err
			}
		}
		return s.advance(ctx, exec, def.Elements[first])

	case outFork:
		for _, target := range out.next {
			if _, err := s.spawnChild(ctx, exec, target); err != nil {
				return err
			}
		}
		return s.endExecution(ctx, exec)

	case outJoin:
		return s.endExecution(ctx, exec)
	}
	return nil
}

// spawnChild creates a child execution of parent positioned at elementID,
// sharing parent's variable scope (parallel-gateway fork semantics).
func (s *Scheduler) spawnChild(ctx context.Context, parent *model.Execution, elementID string) (*model.Execution, error) {
	child := &model.Execution{
		ID:                uuid.NewString(),
		ProcessInstanceID: parent.ProcessInstanceID,
		ParentExecutionID: parent.ID,
		ElementID:         elementID,
		Status:            model.ExecutionActive,
		VariableScopeID:   parent.VariableScopeID,
		CreatedAt:         s.clock.Now(),
		UpdatedAt:         s.clock.Now(),
	}
	if err := s.repos.Executions.Create(ctx, child); err != nil {
		return nil, err
	}
	def, err := s.definitionFor(ctx, parent)
	if err != nil {
		return nil, err
	}
	if err := s.appendActivityEvent(ctx, child, "ACTIVITY_STARTED", def.Elements[elementID]); err != nil {
		return nil, err
	}
	if err := s.armBoundaryEvents(ctx, child, def, elementID); err != nil {
		return nil, err
	}
	return child, s.advance(ctx, child, def.Elements[elementID])
}

// armBoundaryEvents registers a subscription for every boundary event
// attached to hostElementID, keyed by the boundary element's own ID so a
// later Signal/DeliverMessage/timer match resolves straight back to it
// (§4.F's "Boundary event (interrupting)"/"(non-interrupting)" behaviors).
func (s *Scheduler) armBoundaryEvents(ctx context.Context, exec *model.Execution, def *model.ProcessDefinition, hostElementID string) error {
	for _, el := range def.Elements {
		if el.Kind != model.ElementBoundaryEvent || el.AttachedToRef != hostElementID {
			continue
		}
		if _, err := s.subs.Create(ctx, exec.ProcessInstanceID, exec.ID, el.ID, el.EventType, el.EventName, el.Timer, el.Condition, s.clock.Now()); err != nil {
			return err
		}
	}
	return nil
}

// maybeRegisterCompensation registers el's compensation handler (if any)
// against the transaction scope enclosing exec, snapshotting exec's current
// variables so the LIFO unwind (engine/compensation) can replay them later
// against the state the activity actually completed with (§4.D). A no-op
// when exec isn't inside any transaction scope.
func (s *Scheduler) maybeRegisterCompensation(ctx context.Context, exec *model.Execution, el *model.Element) error {
	if el.CompensationHandlerRef == "" {
		return nil
	}
	ts, err := s.findEnclosingTxScope(ctx, exec)
	if err != nil {
		if engerr.Is(err, engerr.KindNotFound) {
			return nil
		}
		return err
	}
	vars, err := s.scopes.GetVariables(ctx, exec.VariableScopeID)
	if err != nil {
		return err
	}
	return s.comp.AddCompensationHandler(ctx, ts.ID, model.CompensationHandler{
		ActivityID:    el.ID,
		HandlerElemID: el.CompensationHandlerRef,
		ExecutionID:   exec.ID,
		ScopeSnapshot: vars,
	})
}

// endExecution marks exec ENDED, destroys its subscriptions, and if it was
// the instance's last active execution, completes the instance.
func (s *Scheduler) endExecution(ctx context.Context, exec *model.Execution) error {
	def, err := s.definitionFor(ctx, exec)
	if err != nil {
		return err
	}
	if el, ok := def.Elements[exec.ElementID]; ok {
		if err := s.appendActivityEvent(ctx, exec, "ACTIVITY_COMPLETED", el); err != nil {
			return err
		}
	}
	exec.Status = model.ExecutionEnded
	exec.UpdatedAt = s.clock.Now()
	if err := s.repos.Executions.Update(ctx, exec); err != nil {
		return err
	}
	if err := s.subs.DeleteByExecution(ctx, exec.ID); err != nil {
		return err
	}

	siblings, err := s.repos.Executions.ListByProcessInstance(ctx, exec.ProcessInstanceID)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		if sib.Status != model.ExecutionEnded {
			return nil
		}
	}
	return s.completeInstance(ctx, exec.ProcessInstanceID, model.InstanceCompleted)
}

func (s *Scheduler) completeInstance(ctx context.Context, processInstanceID string, status model.ProcessInstanceStatus) error {
	inst, err := s.repos.Instances.Get(ctx, processInstanceID)
	if err != nil {
		return err
	}
	if inst.Status == model.InstanceCompleted || inst.Status == model.InstanceTerminated {
		return nil
	}
	inst.Status = status
	inst.EndTime = s.clock.Now()
	if err := s.repos.Instances.Update(ctx, inst); err != nil {
		return err
	}
	if err := s.subs.DeleteByProcessInstance(ctx, processInstanceID); err != nil {
		return err
	}
	eventType := "PROCESS_INSTANCE_END"
	if status == model.InstanceTerminated {
		eventType = "PROCESS_TERMINATED"
	}
	return s.appendLifecycle(ctx, processInstanceID, "", eventType, map[string]interface{}{"status": string(status)})
}

func (s *Scheduler) appendActivityEvent(ctx context.Context, exec *model.Execution, eventType string, el *model.Element) error {
	payload := map[string]interface{}{"executionId": exec.ID, "elementId": exec.ElementID}
	if el != nil {
		payload["elementType"] = string(el.Kind)
	}
	return s.appendLifecycle(ctx, exec.ProcessInstanceID, exec.ID, eventType, payload)
}

func (s *Scheduler) appendLifecycle(ctx context.Context, processInstanceID, executionID, eventType string, payload interface{}) error {
	ev, err := outbox.NewEvent(uuid.NewString(), processInstanceID, executionID, eventType, payload, s.clock.Now())
	if err != nil {
		return err
	}
	return s.outRepo.Append(ctx, ev)
}

func evaluateVars(ctx context.Context, expression string, vars map[string]interface{}) (bool, error) {
	return expr.EvaluateBool(ctx, expression, vars)
}
