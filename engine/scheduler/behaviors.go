package scheduler

import (
	"context"

	"github.com/google/uuid"

	engerr "github.com/r3e-network/flowlayer/infrastructure/errors"
	"github.com/r3e-network/flowlayer/engine/eventsubprocess"
	"github.com/r3e-network/flowlayer/engine/model"
)

// outgoingTargets resolves el's outgoing sequence flows to their target
// element IDs, in author order.
func (s *Scheduler) outgoingTargets(ctx context.Context, exec *model.Execution, el *model.Element) ([]string, error) {
	def, err := s.definitionFor(ctx, exec)
	if err != nil {
		return nil, err
	}
	targets := make([]string, 0, len(el.Outgoing))
	for _, fid := range el.Outgoing {
		if f, ok := def.Flows[fid]; ok {
			targets = append(targets, f.TargetRef)
		}
	}
	return targets, nil
}

func (s *Scheduler) behaviorStartEvent(ctx context.Context, exec *model.Execution, el *model.Element, vars map[string]interface{}) (outcome, error) {
	targets, err := s.outgoingTargets(ctx, exec, el)
	if err != nil {
		return outcome{}, err
	}
	return leaveTo(targets...), nil
}

// behaviorEndEvent applies the end-event variants §4.F names: a cancel end
// event (inside a transaction) and a compensation end event both drive the
// enclosing transaction scope's LIFO unwind; an error end event hands off
// to throwError, which looks for a catching boundary subscription in the
// same process instance (the oldest match, not the nearest enclosing
// one); the plain case just leaves
// (which, with no outgoing flow, ends the execution).
func (s *Scheduler) behaviorEndEvent(ctx context.Context, exec *model.Execution, el *model.Element, vars map[string]interface{}) (outcome, error) {
	switch {
	case el.CancelEndEvent:
		if err := s.triggerTransactionCancel(ctx, exec, true); err != nil {
			return outcome{}, err
		}
		return leaveTo(), nil

	case el.EventType == model.EventCompensation:
		if err := s.triggerTransactionCancel(ctx, exec, false); err != nil {
			return outcome{}, err
		}
		return leaveTo(), nil

	case el.EventType == model.EventError:
		caught, err := s.throwError(ctx, exec, el.EventName, vars)
		if err != nil {
			return outcome{}, err
		}
		if caught {
			return outcome{kind: outJoin}, nil
		}
		return outcome{}, engerr.BpmnError("UnhandledError", "no catching boundary for error "+el.EventName)

	default:
		return leaveTo(), nil
	}
}

// behaviorExclusiveGateway: evaluates outgoing flows in author order, first
// satisfied condition wins; an unconditional flow is treated as always
// satisfied; the flow marked IsDefault is used only if nothing else matched.
func (s *Scheduler) behaviorExclusiveGateway(ctx context.Context, exec *model.Execution, el *model.Element, vars map[string]interface{}) (outcome, error) {
	def, err := s.definitionFor(ctx, exec)
	if err != nil {
		return outcome{}, err
	}
	var defaultTarget string
	for _, fid := range el.Outgoing {
		f, ok := def.Flows[fid]
		if !ok {
			continue
		}
		if f.IsDefault {
			defaultTarget = f.TargetRef
			continue
		}
		if f.Condition == "" {
			return leaveTo(f.TargetRef), nil
		}
		matched, err := evaluateVars(ctx, f.Condition, vars)
		if err != nil {
			return outcome{}, err
		}
		if matched {
			return leaveTo(f.TargetRef), nil
		}
	}
	if defaultTarget != "" {
		return leaveTo(defaultTarget), nil
	}
	return outcome{}, engerr.BpmnError("NoOutgoingFlow", "exclusive gateway "+el.ID+" has no satisfied condition and no default flow")
}

// behaviorInclusiveGateway diverges onto every outgoing flow whose condition
// is satisfied (plus the default if none matched), and converges once every
// other active execution in the instance is either already past this
// gateway or structurally unable to reach it (§4.F's "structural
// reachability" convergence rule, backed by ProcessDefinition.Reachable).
func (s *Scheduler) behaviorInclusiveGateway(ctx context.Context, exec *model.Execution, el *model.Element, vars map[string]interface{}) (outcome, error) {
	if len(el.Incoming) <= 1 {
		def, err := s.definitionFor(ctx, exec)
		if err != nil {
			return outcome{}, err
		}
		var targets []string
		var defaultTarget string
		for _, fid := range el.Outgoing {
			f, ok := def.Flows[fid]
			if !ok {
				continue
			}
			if f.IsDefault {
				defaultTarget = f.TargetRef
				continue
			}
			if f.Condition == "" {
				targets = append(targets, f.TargetRef)
				continue
			}
			matched, err := evaluateVars(ctx, f.Condition, vars)
			if err != nil {
				return outcome{}, err
			}
			if matched {
				targets = append(targets, f.TargetRef)
			}
		}
		if len(targets) == 0 {
			if defaultTarget == "" {
				return outcome{}, engerr.BpmnError("NoOutgoingFlow", "inclusive gateway "+el.ID+" has no satisfied condition and no default flow")
			}
			targets = []string{defaultTarget}
		}
		return fork(targets...), nil
	}

	def, err := s.definitionFor(ctx, exec)
	if err != nil {
		return outcome{}, err
	}
	last, err := s.gatewayConverge(ctx, exec, func(otherElementID string) bool {
		return def.Reachable(otherElementID, el.ID)
	})
	if err != nil {
		return outcome{}, err
	}
	if !last {
		return join(), nil
	}
	targets, err := s.outgoingTargets(ctx, exec, el)
	if err != nil {
		return outcome{}, err
	}
	return leaveTo(targets...), nil
}

// behaviorParallelGateway forks one child per outgoing flow (AND-split) and
// converges only once every sibling branch has arrived (AND-join) — no
// reachability check, since a parallel gateway's every incoming branch is
// always expected.
func (s *Scheduler) behaviorParallelGateway(ctx context.Context, exec *model.Execution, el *model.Element, vars map[string]interface{}) (outcome, error) {
	if len(el.Incoming) <= 1 {
		targets, err := s.outgoingTargets(ctx, exec, el)
		if err != nil {
			return outcome{}, err
		}
		return fork(targets...), nil
	}
	last, err := s.gatewayConverge(ctx, exec, nil)
	if err != nil {
		return outcome{}, err
	}
	if !last {
		return join(), nil
	}
	targets, err := s.outgoingTargets(ctx, exec, el)
	if err != nil {
		return outcome{}, err
	}
	return leaveTo(targets...), nil
}

// gatewayConverge reports whether exec is the last branch to arrive at a
// converging gateway: true once no other active sibling execution either
// sits at the gateway already or (per reachable, when non-nil) can still
// reach it. reachable == nil means "any other active sibling blocks" (the
// parallel-gateway AND-join rule); reachable != nil means "only siblings
// that can structurally still reach this gateway block" (the inclusive
// gateway's OR-join rule).
func (s *Scheduler) gatewayConverge(ctx context.Context, exec *model.Execution, reachable func(otherElementID string) bool) (bool, error) {
	siblings, err := s.repos.Executions.ListByProcessInstance(ctx, exec.ProcessInstanceID)
	if err != nil {
		return false, err
	}
	for _, sib := range siblings {
		if sib.ID == exec.ID || sib.Status == model.ExecutionEnded {
			continue
		}
		if reachable == nil {
			return false, nil
		}
		if reachable(sib.ElementID) {
			return false, nil
		}
	}
	return true, nil
}

func (s *Scheduler) behaviorUserTask(ctx context.Context, exec *model.Execution, el *model.Element, vars map[string]interface{}) (outcome, error) {
	task := &model.Task{
		ID:          uuid.NewString(),
		ExecutionID: exec.ID,
		Name:        el.Name,
		FormKey:     el.ID,
		Status:      model.TaskCreated,
		CreateTime:  s.clock.Now(),
	}
	if err := s.repos.Tasks.Create(ctx, task); err != nil {
		return outcome{}, err
	}
	if err := s.appendLifecycle(ctx, exec.ProcessInstanceID, exec.ID, "TASK_CREATED", map[string]interface{}{"taskId": task.ID, "name": el.Name}); err != nil {
		return outcome{}, err
	}
	return wait(), nil
}

func (s *Scheduler) behaviorServiceTask(ctx context.Context, exec *model.Execution, el *model.Element, vars map[string]interface{}) (outcome, error) {
	if s.serviceTask == nil {
		return outcome{}, engerr.BpmnError("NoServiceTaskHandler", "no handler registered for topic "+el.ServiceTaskTopic)
	}
	result, err := s.serviceTask(ctx, el.ServiceTaskTopic, vars)
	if err != nil {
		return outcome{}, engerr.Wrap(engerr.KindBpmnError, "service task "+el.ID+" failed", err)
	}
	for name, value := range result {
		if err := s.scopes.SetVariable(ctx, exec.VariableScopeID, name, value); err != nil {
			return outcome{}, err
		}
	}
	targets, err := s.outgoingTargets(ctx, exec, el)
	if err != nil {
		return outcome{}, err
	}
	return leaveTo(targets...), nil
}

func (s *Scheduler) behaviorScriptTask(ctx context.Context, exec *model.Execution, el *model.Element, vars map[string]interface{}) (outcome, error) {
	result, err := s.script.Execute(ctx, el.ScriptRef, vars)
	if err != nil {
		return outcome{}, err
	}
	if el.ScriptResultVar != "" {
		if err := s.scopes.SetVariable(ctx, exec.VariableScopeID, el.ScriptResultVar, result.Value); err != nil {
			return outcome{}, err
		}
	}
	targets, err := s.outgoingTargets(ctx, exec, el)
	if err != nil {
		return outcome{}, err
	}
	return leaveTo(targets...), nil
}

// behaviorSubProcess opens a child variable scope, rehomes exec onto it, and
// registers any event sub-processes nested directly inside before entering
// the container's own (non-event-triggered) start event.
func (s *Scheduler) behaviorSubProcess(ctx context.Context, exec *model.Execution, el *model.Element, vars map[string]interface{}) (outcome, error) {
	def, err := s.definitionFor(ctx, exec)
	if err != nil {
		return outcome{}, err
	}
	startID := firstOwnStartEvent(def, el)
	if startID == "" {
		return outcome{}, engerr.BpmnError("NoStartEvent", "sub-process "+el.ID+" has no start event")
	}
	childScope, err := s.scopes.CreateScope(ctx, exec.ProcessInstanceID, exec.ID, exec.VariableScopeID)
	if err != nil {
		return outcome{}, err
	}
	exec.IsScope = true
	exec.VariableScopeID = childScope.ID
	exec.UpdatedAt = s.clock.Now()
	if err := s.repos.Executions.Update(ctx, exec); err != nil {
		return outcome{}, err
	}
	if err := s.registerEventSubProcesses(ctx, exec, def, el.Children); err != nil {
		return outcome{}, err
	}
	return leaveTo(startID), nil
}

// behaviorTransaction opens a sub-process scope the same way behaviorSubProcess
// does, then begins a compensation TransactionScope rooted at exec.
func (s *Scheduler) behaviorTransaction(ctx context.Context, exec *model.Execution, el *model.Element, vars map[string]interface{}) (outcome, error) {
	out, err := s.behaviorSubProcess(ctx, exec, el, vars)
	if err != nil {
		return outcome{}, err
	}
	if _, err := s.comp.Begin(ctx, exec.ProcessInstanceID, exec.ID); err != nil {
		return outcome{}, err
	}
	return out, nil
}

// behaviorNoIncoming covers element kinds that the token-flow interpreter
// never enters via a plain sequence flow (event sub-processes are entered
// through eventsubprocess.Manager.Trigger; boundary events are entered
// through a matched subscription, never a LEAVE_TO).
func (s *Scheduler) behaviorNoIncoming(ctx context.Context, exec *model.Execution, el *model.Element, vars map[string]interface{}) (outcome, error) {
	return outcome{}, engerr.New(engerr.KindInternal, string(el.Kind)+" "+el.ID+" cannot be entered via a sequence flow")
}

func (s *Scheduler) behaviorIntermediateCatch(ctx context.Context, exec *model.Execution, el *model.Element, vars map[string]interface{}) (outcome, error) {
	if _, err := s.subs.Create(ctx, exec.ProcessInstanceID, exec.ID, el.ID, el.EventType, el.EventName, el.Timer, el.Condition, s.clock.Now()); err != nil {
		return outcome{}, err
	}
	return wait(), nil
}

// behaviorIntermediateThrow throws a compensation, signal, or message event.
// Compensation drives the enclosing transaction scope's unwind synchronously;
// signal/message fan-out to other waiting executions is the external API's
// job (Signal/DeliverMessage) — here we only record the throw and leave.
func (s *Scheduler) behaviorIntermediateThrow(ctx context.Context, exec *model.Execution, el *model.Element, vars map[string]interface{}) (outcome, error) {
	switch el.EventType {
	case model.EventCompensation:
		if err := s.triggerTransactionCancel(ctx, exec, false); err != nil {
			return outcome{}, err
		}
	case "":
	default:
		if err := s.appendLifecycle(ctx, exec.ProcessInstanceID, exec.ID, "THROW_"+string(el.EventType), map[string]interface{}{"eventName": el.EventName}); err != nil {
			return outcome{}, err
		}
	}
	targets, err := s.outgoingTargets(ctx, exec, el)
	if err != nil {
		return outcome{}, err
	}
	return leaveTo(targets...), nil
}

func firstOwnStartEvent(def *model.ProcessDefinition, container *model.Element) string {
	for _, cid := range container.Children {
		if c, ok := def.Elements[cid]; ok && c.Kind == model.ElementStartEvent && !c.TriggeredByEvent {
			return c.ID
		}
	}
	return ""
}

// registerEventSubProcesses arms every eventSubProcess nested directly
// inside container as open subscriptions on containerExec, so Signal and
// DeliverMessage can find and trigger them through resumeSubscription.
func (s *Scheduler) registerEventSubProcesses(ctx context.Context, containerExec *model.Execution, def *model.ProcessDefinition, childIDs []string) error {
	for _, cid := range childIDs {
		child, ok := def.Elements[cid]
		if !ok || child.Kind != model.ElementEventSubProcess {
			continue
		}
		grandChildren := elementsByID(def, child.Children)
		if err := eventsubprocess.Validate(child, grandChildren); err != nil {
			return err
		}
		for _, start := range eventsubprocess.Register(grandChildren) {
			if _, err := s.subs.Create(ctx, containerExec.ProcessInstanceID, containerExec.ID, child.ID, start.EventType, start.EventName, nil, "", s.clock.Now()); err != nil {
				return err
			}
		}
	}
	return nil
}

func elementsByID(def *model.ProcessDefinition, ids []string) []*model.Element {
	els := make([]*model.Element, 0, len(ids))
	for _, id := range ids {
		if e, ok := def.Elements[id]; ok {
			els = append(els, e)
		}
	}
	return els
}

// throwError takes the oldest ERROR subscription catching errorName in
// exec's process instance (how deeply the catching boundary encloses the
// throw site is not considered), cancels its host activity, and resumes
// from the boundary's outgoing flow.
// Reports (false, nil) when nothing catches, letting the caller fail as
// unhandled.
func (s *Scheduler) throwError(ctx context.Context, exec *model.Execution, errorName string, vars map[string]interface{}) (bool, error) {
	subs, err := s.subs.Broadcast(ctx, model.EventError, errorName)
	if err != nil {
		return false, err
	}
	var target *model.EventSubscription
	for _, sub := range subs {
		if sub.ProcessInstanceID == exec.ProcessInstanceID {
			target = sub
			break
		}
	}
	if target == nil {
		return false, nil
	}
	hostExec, err := s.repos.Executions.Get(ctx, target.ExecutionID)
	if err != nil {
		return false, err
	}
	def, err := s.definitionFor(ctx, hostExec)
	if err != nil {
		return false, err
	}
	boundaryEl, ok := def.Elements[target.ActivityID]
	if !ok {
		return false, engerr.New(engerr.KindInternal, "error subscription references unknown boundary "+target.ActivityID)
	}
	targets, err := s.outgoingTargets(ctx, hostExec, boundaryEl)
	if err != nil {
		return false, err
	}
	if err := s.Cancel(ctx, hostExec.ID, "error boundary "+errorName); err != nil {
		return false, err
	}
	if len(targets) == 0 {
		return false, engerr.BpmnError("NoOutgoingFlow", "error boundary "+target.ActivityID+" has no outgoing flow")
	}
	if _, err := s.spawnChild(ctx, hostExec, targets[0]); err != nil {
		return false, err
	}
	return true, nil
}
