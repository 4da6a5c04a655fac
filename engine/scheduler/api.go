package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/r3e-network/flowlayer/engine/compensation"
	"github.com/r3e-network/flowlayer/engine/eventsubprocess"
	engerr "github.com/r3e-network/flowlayer/infrastructure/errors"
	"github.com/r3e-network/flowlayer/engine/model"
)

// completeTaskWorkUnit applies a COMPLETE_TASK work item: merge submitted
// variables into the execution's scope, mark the task COMPLETED, and leave
// via the user task's outgoing flows without re-running its own behavior
// (which would just create a second task).
func (s *Scheduler) completeTaskWorkUnit(ctx context.Context, exec *model.Execution, el *model.Element, item WorkItem) error {
	task, err := s.repos.Tasks.Get(ctx, item.TaskID)
	if err != nil {
		return err
	}
	if task.Status == model.TaskCompleted {
		return engerr.Conflict("task " + item.TaskID + " is already completed")
	}
	for name, value := range item.TaskVariables {
		if err := s.scopes.SetVariable(ctx, exec.VariableScopeID, name, value); err != nil {
			return err
		}
	}
	task.Status = model.TaskCompleted
	task.CompleteTime = s.clock.Now()
	if err := s.repos.Tasks.Update(ctx, task); err != nil {
		return err
	}
	if err := s.appendLifecycle(ctx, exec.ProcessInstanceID, exec.ID, "TASK_COMPLETED", map[string]interface{}{"taskId": task.ID}); err != nil {
		return err
	}
	targets, err := s.outgoingTargets(ctx, exec, el)
	if err != nil {
		return err
	}
	return s.applyOutcome(ctx, exec, el, leaveTo(targets...))
}

// Cancel tears exec and every descendant execution down: clears open
// subscriptions, destroys the owned variable scope (if any), and marks the
// execution ENDED with an ACTIVITY_CANCELLED lifecycle event. It does not complete the
// instance — callers driving an instance-level cancel do that separately
// (see CancelInstance). Compensation is not triggered; callers that need the
// cancel-vs-compensate decision table applied use CancelCompensate.
func (s *Scheduler) Cancel(ctx context.Context, executionID, reason string) error {
	return s.txRunner.WithTx(ctx, func(ctx context.Context) error {
		return s.cancelExec(ctx, executionID, reason, compensation.CancelExplicitAPI, false)
	})
}

// CancelCompensate cancels exec the same way Cancel does, but first applies
// §4.D's cancel-vs-compensate decision table to any transaction scope exec
// (or a descendant) began: an active scope is either unwound via
// TriggerCompensation or converted to a retained event scope via
// ConvertToEventScope, instead of being silently abandoned.
func (s *Scheduler) CancelCompensate(ctx context.Context, executionID, reason string) error {
	return s.txRunner.WithTx(ctx, func(ctx context.Context) error {
		return s.cancelExec(ctx, executionID, reason, compensation.CancelExplicitAPI, true)
	})
}

func (s *Scheduler) cancelExec(ctx context.Context, executionID, reason string, policy compensation.CancelPolicy, triggerCompensation bool) error {
	return s.cancelExecKeepingScope(ctx, executionID, reason, policy, triggerCompensation, false)
}

// cancelExecKeepingScope is cancelExec with one extra knob: when keepScope is
// true, executionID's own variable scope survives the cancellation instead of
// being destroyed. resumeBoundaryEvent needs this for an interrupting
// boundary event attached directly to the process root — there is no parent
// execution to fall back to for the spawned continuation, so the
// continuation inherits the host's own scope via spawnChild, and destroying
// that scope out from under it here would leave the continuation pointing at
// a dead VariableScopeID. keepScope never propagates to children: a child's
// own scope has no such continuation depending on it.
func (s *Scheduler) cancelExecKeepingScope(ctx context.Context, executionID, reason string, policy compensation.CancelPolicy, triggerCompensation, keepScope bool) error {
	exec, err := s.repos.Executions.Get(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status == model.ExecutionEnded {
		return nil
	}
	children, err := s.repos.Executions.ListChildren(ctx, executionID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := s.cancelExec(ctx, c.ID, reason, policy, triggerCompensation); err != nil {
			return err
		}
	}
	if err := s.settleTransactionScope(ctx, executionID, policy, triggerCompensation); err != nil {
		return err
	}
	if err := s.subs.DeleteByExecution(ctx, executionID); err != nil {
		return err
	}
	if !keepScope && exec.IsScope && exec.VariableScopeID != "" {
		if err := s.scopes.DestroyScope(ctx, exec.VariableScopeID); err != nil {
			return err
		}
	}
	exec.Status = model.ExecutionEnded
	exec.UpdatedAt = s.clock.Now()
	if err := s.repos.Executions.Update(ctx, exec); err != nil {
		return err
	}
	return s.appendLifecycle(ctx, exec.ProcessInstanceID, executionID, "ACTIVITY_CANCELLED", map[string]interface{}{"reason": reason})
}

// settleTransactionScope is a no-op when executionID never began a
// transaction scope, or the scope already finished; otherwise it resolves
// the scope per the cancel-vs-compensate decision table before the
// execution itself is torn down.
func (s *Scheduler) settleTransactionScope(ctx context.Context, executionID string, policy compensation.CancelPolicy, triggerCompensation bool) error {
	ts, err := s.comp.GetScopeByExecution(ctx, executionID)
	if err != nil {
		if engerr.Is(err, engerr.KindNotFound) {
			return nil
		}
		return err
	}
	if ts.Status != model.TxScopeActive {
		return nil
	}
	compensate, err := compensation.ShouldCompensate(policy, triggerCompensation)
	if err != nil {
		return err
	}
	if compensate {
		return s.comp.TriggerCompensation(ctx, ts.ID, s.makeHandlerInvoker())
	}
	return s.comp.ConvertToEventScope(ctx, ts.ID)
}

// compensateWorkUnit applies an explicit COMPENSATE work item: trigger the
// unwind of the transaction scope enclosing exec.
func (s *Scheduler) compensateWorkUnit(ctx context.Context, exec *model.Execution) error {
	return s.triggerTransactionCancel(ctx, exec, false)
}

// triggerWorkUnit resumes a WAITING execution whose open subscription just
// matched (a timer firing, or a signal/message delivered by external API).
// Per the subscription-uniqueness invariant a waiting execution has at most
// one relevant open subscription, so clearing all of them is safe.
func (s *Scheduler) triggerWorkUnit(ctx context.Context, exec *model.Execution, el *model.Element, item WorkItem) error {
	if err := s.subs.DeleteByExecution(ctx, exec.ID); err != nil {
		return err
	}
	if item.EventPayload != nil {
		if err := s.scopes.SetVariable(ctx, exec.VariableScopeID, "eventData", item.EventPayload); err != nil {
			return err
		}
	}
	eventType := "TIMER_FIRED"
	if item.EventType != model.EventTimer {
		eventType = string(item.EventType) + "_RECEIVED"
	}
	if err := s.appendLifecycle(ctx, exec.ProcessInstanceID, exec.ID, eventType, map[string]interface{}{"eventName": item.EventName}); err != nil {
		return err
	}
	targets, err := s.outgoingTargets(ctx, exec, el)
	if err != nil {
		return err
	}
	return s.applyOutcome(ctx, exec, el, leaveTo(targets...))
}

// spawnEventSubProcess is the eventsubprocess.ScopeFactory: it opens a fresh
// child scope seeded with a snapshot of the parent's variables and creates
// the new execution positioned at the matched start event.
func (s *Scheduler) spawnEventSubProcess(ctx context.Context, parentExecutionID, startElementID string) (string, string, error) {
	parent, err := s.repos.Executions.Get(ctx, parentExecutionID)
	if err != nil {
		return "", "", err
	}
	childScope, err := s.scopes.CreateScope(ctx, parent.ProcessInstanceID, parentExecutionID, parent.VariableScopeID)
	if err != nil {
		return "", "", err
	}
	if err := s.scopes.CopyVariables(ctx, parent.VariableScopeID, childScope.ID); err != nil {
		return "", "", err
	}
	now := s.clock.Now()
	child := &model.Execution{
		ID:                uuid.NewString(),
		ProcessInstanceID: parent.ProcessInstanceID,
		ParentExecutionID: parentExecutionID,
		ElementID:         startElementID,
		Status:            model.ExecutionActive,
		IsScope:           true,
		VariableScopeID:   childScope.ID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repos.Executions.Create(ctx, child); err != nil {
		return "", "", err
	}
	return child.ID, childScope.ID, nil
}

// findEnclosingTxScope walks exec's parent-execution chain looking for the
// nearest ancestor (inclusive) that began a transaction scope.
func (s *Scheduler) findEnclosingTxScope(ctx context.Context, exec *model.Execution) (*model.TransactionScope, error) {
	id := exec.ID
	for id != "" {
		ts, err := s.comp.GetScopeByExecution(ctx, id)
		if err == nil {
			return ts, nil
		}
		if !engerr.Is(err, engerr.KindNotFound) {
			return nil, err
		}
		cur, gerr := s.repos.Executions.Get(ctx, id)
		if gerr != nil {
			return nil, gerr
		}
		id = cur.ParentExecutionID
	}
	return nil, engerr.NotFound("TransactionScope", exec.ID)
}

// triggerTransactionCancel drives the LIFO compensation unwind of the
// transaction scope enclosing exec.
func (s *Scheduler) triggerTransactionCancel(ctx context.Context, exec *model.Execution, isCancel bool) error {
	ts, err := s.findEnclosingTxScope(ctx, exec)
	if err != nil {
		return err
	}
	if err := s.comp.TriggerCompensation(ctx, ts.ID, s.makeHandlerInvoker()); err != nil {
		return err
	}
	return s.appendLifecycle(ctx, exec.ProcessInstanceID, exec.ID, "COMPENSATION_TRIGGERED", map[string]interface{}{"scopeId": ts.ID, "cancel": isCancel})
}

// makeHandlerInvoker builds the compensation.HandlerInvoker the Manager
// calls for each registered handler, in LIFO order: it re-runs the
// handler's element (script or service task) against the snapshot of
// variables taken when the handler was registered.
func (s *Scheduler) makeHandlerInvoker() compensation.HandlerInvoker {
	return func(ctx context.Context, h model.CompensationHandler) error {
		exec, err := s.repos.Executions.Get(ctx, h.ExecutionID)
		if err != nil {
			return err
		}
		def, err := s.definitionFor(ctx, exec)
		if err != nil {
			return err
		}
		handlerEl, ok := def.Elements[h.HandlerElemID]
		if !ok {
			return engerr.New(engerr.KindInternal, "unknown compensation handler element "+h.HandlerElemID)
		}
		switch handlerEl.Kind {
		case model.ElementScriptTask:
			if _, err := s.script.Execute(ctx, handlerEl.ScriptRef, h.ScopeSnapshot); err != nil {
				return err
			}
		case model.ElementServiceTask:
			if s.serviceTask == nil {
				return engerr.BpmnError("NoServiceTaskHandler", "no handler for compensation topic "+handlerEl.ServiceTaskTopic)
			}
			if _, err := s.serviceTask(ctx, handlerEl.ServiceTaskTopic, h.ScopeSnapshot); err != nil {
				return err
			}
		}
		return s.appendLifecycle(ctx, exec.ProcessInstanceID, h.ExecutionID, "COMPENSATION_HANDLER_INVOKED", map[string]interface{}{"activityId": h.ActivityID})
	}
}

// resumeSubscription routes a matched subscription to the boundary-event
// path, the generic TRIGGER work-unit path (intermediate catch events), or,
// when the subscription belongs to an eventSubProcess, through the event
// sub-process manager, which may interrupt the enclosing scope. It acquires
// the same per-instance lock Submit does — Signal/DeliverMessage/the timer
// poll all resume through here, and §4.F/§5 require at most one worker at a
// time advancing a given instance, the same invariant Submit enforces for
// ordinary work items.
func (s *Scheduler) resumeSubscription(ctx context.Context, sub *model.EventSubscription, payload interface{}) error {
	lock := s.instanceLock(sub.ProcessInstanceID)
	lock.Lock()
	defer lock.Unlock()
	return s.resumeSubscriptionLocked(ctx, sub, payload)
}

// resumeSubscriptionLocked is resumeSubscription's body, factored out so a
// caller that already holds the instance lock (checkConditionalSubscriptions,
// running inside submitLocked) can resume a matched subscription without
// deadlocking on resumeSubscription's own lock acquisition.
func (s *Scheduler) resumeSubscriptionLocked(ctx context.Context, sub *model.EventSubscription, payload interface{}) error {
	hostExec, err := s.repos.Executions.Get(ctx, sub.ExecutionID)
	if err != nil {
		return err
	}
	def, err := s.definitionFor(ctx, hostExec)
	if err != nil {
		return err
	}
	el, ok := def.Elements[sub.ActivityID]
	if !ok {
		return engerr.New(engerr.KindInternal, "subscription references unknown element "+sub.ActivityID)
	}

	if el.Kind == model.ElementBoundaryEvent {
		return s.txRunner.WithTx(ctx, func(ctx context.Context) error {
			return s.resumeBoundaryEvent(ctx, hostExec, el, payload)
		})
	}

	if el.Kind != model.ElementEventSubProcess {
		return s.submitLocked(ctx, WorkItem{
			ExecutionID:       sub.ExecutionID,
			ProcessInstanceID: sub.ProcessInstanceID,
			Action:            ActionTrigger,
			EventType:         sub.EventType,
			EventName:         sub.EventName,
			EventPayload:      payload,
		})
	}

	return s.txRunner.WithTx(ctx, func(ctx context.Context) error {
		grandChildren := elementsByID(def, el.Children)
		starts := eventsubprocess.Register(grandChildren)
		vars, err := s.scopes.GetVariables(ctx, hostExec.VariableScopeID)
		if err != nil {
			return err
		}
		result, err := s.eventSP.Trigger(ctx, hostExec.ID, starts, sub.EventType, sub.EventName, payload, func(scopeID, name string, value interface{}) error {
			return s.scopes.SetVariable(ctx, scopeID, name, value)
		}, vars)
		if err != nil {
			return err
		}
		if result == nil {
			return nil
		}
		if result.IsInterrupting {
			if err := s.cancelExec(ctx, hostExec.ID, "interrupted by event sub-process", compensation.CancelExplicitAPI, false); err != nil {
				return err
			}
		}
		return s.submitLocked(ctx, WorkItem{ExecutionID: result.ExecutionID, ProcessInstanceID: hostExec.ProcessInstanceID, Action: ActionContinue})
	})
}

// resumeBoundaryEvent fires a matched boundary-event subscription (§4.F): an
// interrupting boundary cancels the host activity — applying the
// cancel-vs-compensate decision table to any transaction scope the host
// itself began — before leaving via the boundary's outgoing flow; a
// non-interrupting boundary spawns a parallel branch and leaves the host
// activity (and its subscription) untouched, so a recurring or repeatedly
// delivered event can fire it again.
func (s *Scheduler) resumeBoundaryEvent(ctx context.Context, hostExec *model.Execution, boundaryEl *model.Element, payload interface{}) error {
	targets, err := s.outgoingTargets(ctx, hostExec, boundaryEl)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return engerr.BpmnError("NoOutgoingFlow", "boundary event "+boundaryEl.ID+" has no outgoing flow")
	}
	if payload != nil {
		if err := s.scopes.SetVariable(ctx, hostExec.VariableScopeID, "eventData", payload); err != nil {
			return err
		}
	}
	if err := s.appendLifecycle(ctx, hostExec.ProcessInstanceID, hostExec.ID, "BOUNDARY_"+string(boundaryEl.EventType)+"_FIRED", map[string]interface{}{"boundaryId": boundaryEl.ID}); err != nil {
		return err
	}

	spawnFrom := hostExec
	if boundaryEl.CancelActivity {
		keepScope := false
		if hostExec.IsScope {
			if hostExec.ParentExecutionID != "" {
				if parent, perr := s.repos.Executions.Get(ctx, hostExec.ParentExecutionID); perr == nil {
					spawnFrom = parent
				}
			} else {
				// hostExec owns the process root scope and has no parent to
				// reattach to: the continuation spawned below stays on
				// hostExec's own scope, so cancelling hostExec must not
				// destroy it.
				keepScope = true
			}
		}
		if err := s.cancelExecKeepingScope(ctx, hostExec.ID, "interrupting boundary event "+boundaryEl.ID, compensation.CancelBoundaryInterrupting, boundaryEl.TriggerCompensation, keepScope); err != nil {
			return err
		}
	}
	_, err = s.spawnChild(ctx, spawnFrom, targets[0])
	return err
}

// StartProcess creates a new ProcessInstance rooted at def's first
// non-event-triggered start event, seeds the root scope with variables, and
// submits the first work unit.
func (s *Scheduler) StartProcess(ctx context.Context, def *model.ProcessDefinition, businessKey string, variables map[string]interface{}) (*model.ProcessInstance, error) {
	if len(def.StartEventIDs) == 0 {
		return nil, engerr.BpmnError("NoStartEvent", "process definition "+def.ID+" has no start event")
	}
	now := s.clock.Now()
	inst := &model.ProcessInstance{
		ID:                  uuid.NewString(),
		ProcessDefinitionID: def.ID,
		BusinessKey:         businessKey,
		Status:              model.InstanceActive,
		StartTime:           now,
	}
	startElementID := def.StartEventIDs[0]
	root := &model.Execution{
		ID:                uuid.NewString(),
		ProcessInstanceID: inst.ID,
		ElementID:         startElementID,
		Status:            model.ExecutionActive,
		IsScope:           true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	inst.RootExecutionID = root.ID

	err := s.txRunner.WithTx(ctx, func(ctx context.Context) error {
		rootScope, err := s.scopes.CreateScope(ctx, inst.ID, "", "")
		if err != nil {
			return err
		}
		root.VariableScopeID = rootScope.ID
		for name, value := range variables {
			if err := s.scopes.SetVariable(ctx, rootScope.ID, name, value); err != nil {
				return err
			}
		}
		if err := s.repos.Instances.Create(ctx, inst); err != nil {
			return err
		}
		if err := s.repos.Executions.Create(ctx, root); err != nil {
			return err
		}
		if err := s.appendLifecycle(ctx, inst.ID, root.ID, "PROCESS_INSTANCE_START", map[string]interface{}{"definitionId": def.ID, "businessKey": businessKey}); err != nil {
			return err
		}
		if err := s.appendActivityEvent(ctx, root, "ACTIVITY_STARTED", def.Elements[startElementID]); err != nil {
			return err
		}
		if err := s.armBoundaryEvents(ctx, root, def, startElementID); err != nil {
			return err
		}
		return s.registerEventSubProcesses(ctx, root, def, def.RootChildren)
	})
	if err != nil {
		return nil, err
	}
	if err := s.Submit(ctx, WorkItem{ExecutionID: root.ID, ProcessInstanceID: inst.ID, Action: ActionContinue}); err != nil {
		return inst, err
	}
	return inst, nil
}

// Signal broadcasts signalName to every open SIGNAL subscription. If
// processInstanceID is non-empty, delivery is narrowed to that instance.
func (s *Scheduler) Signal(ctx context.Context, signalName string, payload interface{}, processInstanceID string) error {
	subs, err := s.subs.Broadcast(ctx, model.EventSignal, signalName)
	if err != nil {
		return err
	}
	for _, sub := range subs {
		if processInstanceID != "" && sub.ProcessInstanceID != processInstanceID {
			continue
		}
		if err := s.resumeSubscription(ctx, sub, payload); err != nil {
			return err
		}
	}
	return nil
}

// DeliverMessage delivers messageName to the oldest open MESSAGE
// subscription (at-most-once correlation — §4.F leaves fan-out policy to
// the event type; a message is expected to target a single waiting
// execution).
func (s *Scheduler) DeliverMessage(ctx context.Context, messageName string, payload interface{}) error {
	subs, err := s.subs.Broadcast(ctx, model.EventMessage, messageName)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}
	return s.resumeSubscription(ctx, subs[0], payload)
}

// CompleteTask resolves taskID to its owning execution and submits a
// COMPLETE_TASK work item.
func (s *Scheduler) CompleteTask(ctx context.Context, taskID string, variables map[string]interface{}) error {
	task, err := s.repos.Tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	exec, err := s.repos.Executions.Get(ctx, task.ExecutionID)
	if err != nil {
		return err
	}
	return s.Submit(ctx, WorkItem{
		ExecutionID:       exec.ID,
		ProcessInstanceID: exec.ProcessInstanceID,
		Action:            ActionCompleteTask,
		TaskVariables:     variables,
		TaskID:            taskID,
	})
}

// ClaimTask assigns an unclaimed task to user.
func (s *Scheduler) ClaimTask(ctx context.Context, taskID, user string) error {
	task, err := s.repos.Tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}
	if task.Status == model.TaskCompleted {
		return engerr.Conflict("cannot claim a completed task")
	}
	task.Assignee = user
	task.Status = model.TaskClaimed
	task.ClaimTime = s.clock.Now()
	return s.repos.Tasks.Update(ctx, task)
}

// Suspend moves an ACTIVE instance to SUSPENDED; timers/subscriptions stay
// open but the scheduler will not be asked to advance it (the caller is
// responsible for not submitting work items against a suspended instance).
func (s *Scheduler) Suspend(ctx context.Context, processInstanceID string) error {
	inst, err := s.repos.Instances.Get(ctx, processInstanceID)
	if err != nil {
		return err
	}
	if inst.Status != model.InstanceActive {
		return engerr.Conflict("process instance is not ACTIVE")
	}
	inst.Status = model.InstanceSuspended
	return s.repos.Instances.Update(ctx, inst)
}

// Resume moves a SUSPENDED instance back to ACTIVE.
func (s *Scheduler) Resume(ctx context.Context, processInstanceID string) error {
	inst, err := s.repos.Instances.Get(ctx, processInstanceID)
	if err != nil {
		return err
	}
	if inst.Status != model.InstanceSuspended {
		return engerr.Conflict("process instance is not SUSPENDED")
	}
	inst.Status = model.InstanceActive
	return s.repos.Instances.Update(ctx, inst)
}

// CancelInstance cancels every execution of processInstanceID (recursively,
// from the root) and marks the instance TERMINATED. Compensation is not
// triggered; use CancelInstanceCompensate to unwind any open transaction
// scope before terminating.
func (s *Scheduler) CancelInstance(ctx context.Context, processInstanceID, reason string) error {
	return s.cancelInstance(ctx, processInstanceID, reason, false)
}

// CancelInstanceCompensate cancels the instance the same way CancelInstance
// does, but applies §4.D's cancel-vs-compensate decision table to any open
// transaction scope first.
func (s *Scheduler) CancelInstanceCompensate(ctx context.Context, processInstanceID, reason string) error {
	return s.cancelInstance(ctx, processInstanceID, reason, true)
}

func (s *Scheduler) cancelInstance(ctx context.Context, processInstanceID, reason string, triggerCompensation bool) error {
	return s.txRunner.WithTx(ctx, func(ctx context.Context) error {
		inst, err := s.repos.Instances.Get(ctx, processInstanceID)
		if err != nil {
			return err
		}
		if inst.RootExecutionID != "" {
			if err := s.cancelExec(ctx, inst.RootExecutionID, reason, compensation.CancelExplicitAPI, triggerCompensation); err != nil {
				return err
			}
		}
		return s.completeInstance(ctx, processInstanceID, model.InstanceTerminated)
	})
}

// TriggerCompensationAPI is the external explicit-compensation entry point
// (§6): it finds the transaction scope for processInstanceID — narrowed to
// one whose handler stack contains activityID, when given — and triggers
// its unwind.
func (s *Scheduler) TriggerCompensationAPI(ctx context.Context, processInstanceID, activityID string) error {
	execs, err := s.repos.Executions.ListByProcessInstance(ctx, processInstanceID)
	if err != nil {
		return err
	}
	for _, e := range execs {
		ts, err := s.comp.GetScopeByExecution(ctx, e.ID)
		if err != nil {
			continue
		}
		if activityID != "" {
			found := false
			for _, h := range ts.Handlers {
				if h.ActivityID == activityID {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		return s.comp.TriggerCompensation(ctx, ts.ID, s.makeHandlerInvoker())
	}
	return engerr.NotFound("TransactionScope", processInstanceID)
}

// RunTimerPoll polls for due TIMER subscriptions on interval until ctx is
// cancelled, submitting a RESUME_FROM_TIMER work item for each — the same
// ticker-driven loop idiom as the outbox publisher.
func (s *Scheduler) RunTimerPoll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			due, err := s.subs.FindDue(ctx, s.clock.Now(), 100)
			if err != nil {
				s.log.Error("timer poll failed", zap.Error(err))
				continue
			}
			for _, sub := range due {
				if err := s.resumeSubscription(ctx, sub, nil); err != nil {
					s.log.Error("timer resume failed", zap.Error(err), zap.String("subscriptionId", sub.ID))
				}
			}
		}
	}
}
