// Package runtime is the engine's external operation surface (§6): a thin
// ProcessRuntime facade over engine/scheduler so callers (cmd/engineworker,
// or any future caller) depend on one narrow type instead of reaching into
// the scheduler/scope/subscription/compensation packages directly. Every
// method here is a direct forward — the facade adds no behavior of its
// own, matching the teacher's thin service-entrypoint style (see
// services/automation's exported methods wrapping its internal scheduler).
package runtime

import (
	"context"

	"github.com/r3e-network/flowlayer/engine/model"
	"github.com/r3e-network/flowlayer/engine/repository"
	"github.com/r3e-network/flowlayer/engine/scheduler"
)

// ProcessRuntime is the engine's external API: deploy definitions, start
// instances, deliver events, complete tasks, and manage instance lifecycle.
type ProcessRuntime struct {
	sched *scheduler.Scheduler
	defs  repository.ProcessDefinitionRepository
}

// New constructs a ProcessRuntime bound to sched for execution and defs for
// deploy-time definition storage.
func New(sched *scheduler.Scheduler, defs repository.ProcessDefinitionRepository) *ProcessRuntime {
	return &ProcessRuntime{sched: sched, defs: defs}
}

// Deploy persists a process definition, making it eligible for StartProcess
// by key (the latest version wins). It does no validation of its own; flow
// references are checked when the definition is built with
// model.NewProcessDefinition.
func (r *ProcessRuntime) Deploy(ctx context.Context, def *model.ProcessDefinition) error {
	return r.defs.Save(ctx, def)
}

// DefinitionByKey returns the latest deployed version of key.
func (r *ProcessRuntime) DefinitionByKey(ctx context.Context, key string) (*model.ProcessDefinition, error) {
	return r.defs.GetLatestByKey(ctx, key)
}

// StartProcess instantiates the latest version of key and runs it to its
// first wait point.
func (r *ProcessRuntime) StartProcess(ctx context.Context, key, businessKey string, variables map[string]interface{}) (*model.ProcessInstance, error) {
	def, err := r.defs.GetLatestByKey(ctx, key)
	if err != nil {
		return nil, err
	}
	return r.sched.StartProcess(ctx, def, businessKey, variables)
}

// Signal broadcasts a BPMN signal event to every waiting subscriber,
// optionally scoped to one process instance.
func (r *ProcessRuntime) Signal(ctx context.Context, signalName string, payload interface{}, processInstanceID string) error {
	return r.sched.Signal(ctx, signalName, payload, processInstanceID)
}

// DeliverMessage delivers a BPMN message event to its single waiting
// subscriber (first-match, per §4.C's message semantics).
func (r *ProcessRuntime) DeliverMessage(ctx context.Context, messageName string, payload interface{}) error {
	return r.sched.DeliverMessage(ctx, messageName, payload)
}

// CompleteTask completes a user task, merging variables into its
// execution's scope before advancing past it.
func (r *ProcessRuntime) CompleteTask(ctx context.Context, taskID string, variables map[string]interface{}) error {
	return r.sched.CompleteTask(ctx, taskID, variables)
}

// ClaimTask assigns a CREATED task to user.
func (r *ProcessRuntime) ClaimTask(ctx context.Context, taskID, user string) error {
	return r.sched.ClaimTask(ctx, taskID, user)
}

// Suspend marks a process instance SUSPENDED until Resume. The scheduler
// does not reject work units submitted for a suspended instance.
func (r *ProcessRuntime) Suspend(ctx context.Context, processInstanceID string) error {
	return r.sched.Suspend(ctx, processInstanceID)
}

// Resume reactivates a suspended process instance.
func (r *ProcessRuntime) Resume(ctx context.Context, processInstanceID string) error {
	return r.sched.Resume(ctx, processInstanceID)
}

// Cancel terminates a process instance and its whole execution tree
// without running compensation. Use CancelCompensate to unwind an open
// transaction scope first.
func (r *ProcessRuntime) Cancel(ctx context.Context, processInstanceID, reason string) error {
	return r.sched.CancelInstance(ctx, processInstanceID, reason)
}

// CancelCompensate terminates a process instance the same way Cancel does,
// but first applies §4.D's cancel-vs-compensate decision table to any
// transaction scope still open in the instance, unwinding it via
// TriggerCompensation instead of abandoning it.
func (r *ProcessRuntime) CancelCompensate(ctx context.Context, processInstanceID, reason string) error {
	return r.sched.CancelInstanceCompensate(ctx, processInstanceID, reason)
}

// TriggerCompensation runs the LIFO compensation unwind for the
// transaction scope whose handler stack contains activityID (or, if
// activityID is empty, the first transaction scope found among the
// instance's executions, whatever its status).
func (r *ProcessRuntime) TriggerCompensation(ctx context.Context, processInstanceID, activityID string) error {
	return r.sched.TriggerCompensationAPI(ctx, processInstanceID, activityID)
}

// ResolveIncident is the supplemented operator API: retry, skip, or cancel
// an execution whose retry budget was exhausted.
func (r *ProcessRuntime) ResolveIncident(ctx context.Context, executionID string, action scheduler.IncidentAction) error {
	return r.sched.ResolveIncident(ctx, executionID, action)
}
