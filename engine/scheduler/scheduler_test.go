package scheduler_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/flowlayer/engine/compensation"
	"github.com/r3e-network/flowlayer/engine/model"
	"github.com/r3e-network/flowlayer/engine/repository"
	"github.com/r3e-network/flowlayer/engine/scheduler"
	"github.com/r3e-network/flowlayer/engine/scope"
	"github.com/r3e-network/flowlayer/engine/scripting"
	"github.com/r3e-network/flowlayer/engine/subscription"
)

// newScheduler wires a Scheduler against a single shared in-memory store,
// the same adapter-per-repository pattern infrastructure/postgres mirrors.
func newScheduler(t *testing.T) (*scheduler.Scheduler, *repository.Memory) {
	t.Helper()
	mem := repository.NewMemory()
	repos := scheduler.Repositories{
		Definitions: repository.NewDefinitionStore(mem),
		Instances:   repository.NewInstanceStore(mem),
		Executions:  repository.NewExecutionStore(mem),
		Tasks:       repository.NewTaskStore(mem),
	}
	scopes := scope.New(repository.NewVarScopeStore(mem))
	subs := subscription.New(repository.NewSubscriptionStore(mem))
	comp := compensation.New(repository.NewTxScopeStore(mem), nil)
	script := scripting.New()
	s := scheduler.New(repos, scopes, subs, comp, script, repository.NewOutboxStore(mem), nil, nil, nil, scheduler.Config{}, nil)
	return s, mem
}

func linearFlow(t *testing.T) *model.ProcessDefinition {
	t.Helper()
	elements := map[string]*model.Element{
		"start": {ID: "start", Kind: model.ElementStartEvent, Outgoing: []string{"f1"}},
		"end":   {ID: "end", Kind: model.ElementEndEvent, Incoming: []string{"f1"}},
	}
	flows := map[string]*model.SequenceFlow{
		"f1": {ID: "f1", SourceRef: "start", TargetRef: "end"},
	}
	def, err := model.NewProcessDefinition("def-1", "linear", 1, "Linear", elements, flows)
	require.NoError(t, err)
	return def
}

func TestStartProcess_LinearFlowCompletesInstance(t *testing.T) {
	ctx := context.Background()
	s, mem := newScheduler(t)
	def := linearFlow(t)
	require.NoError(t, mem.SaveDefinition(ctx, def))

	inst, err := s.StartProcess(ctx, def, "order-1", map[string]interface{}{"amount": 100})
	require.NoError(t, err)

	got, err := mem.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, model.InstanceCompleted, got.Status)
}

func exclusiveGatewayFlow(t *testing.T) *model.ProcessDefinition {
	t.Helper()
	elements := map[string]*model.Element{
		"start": {ID: "start", Kind: model.ElementStartEvent, Outgoing: []string{"f1"}},
		"gw":    {ID: "gw", Kind: model.ElementExclusiveGateway, Incoming: []string{"f1"}, Outgoing: []string{"fYes", "fNo"}, DefaultFlow: "fNo"},
		"endY":  {ID: "endY", Kind: model.ElementEndEvent, Incoming: []string{"fYes"}},
		"endN":  {ID: "endN", Kind: model.ElementEndEvent, Incoming: []string{"fNo"}},
	}
	flows := map[string]*model.SequenceFlow{
		"f1":   {ID: "f1", SourceRef: "start", TargetRef: "gw"},
		"fYes": {ID: "fYes", SourceRef: "gw", TargetRef: "endY", Condition: "${approved == true}"},
		"fNo":  {ID: "fNo", SourceRef: "gw", TargetRef: "endN", IsDefault: true},
	}
	def, err := model.NewProcessDefinition("def-2", "xor", 1, "XOR", elements, flows)
	require.NoError(t, err)
	return def
}

func TestStartProcess_ExclusiveGatewayTakesConditionMatch(t *testing.T) {
	ctx := context.Background()
	s, mem := newScheduler(t)
	def := exclusiveGatewayFlow(t)
	require.NoError(t, mem.SaveDefinition(ctx, def))

	inst, err := s.StartProcess(ctx, def, "", map[string]interface{}{"approved": true})
	require.NoError(t, err)

	execs, err := mem.ListExecutionsByProcessInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	require.Equal(t, "endY", execs[0].ElementID)
}

func TestStartProcess_ExclusiveGatewayFallsBackToDefaultFlow(t *testing.T) {
	ctx := context.Background()
	s, mem := newScheduler(t)
	def := exclusiveGatewayFlow(t)
	require.NoError(t, mem.SaveDefinition(ctx, def))

	inst, err := s.StartProcess(ctx, def, "", map[string]interface{}{"approved": false})
	require.NoError(t, err)

	execs, err := mem.ListExecutionsByProcessInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	require.Equal(t, "endN", execs[0].ElementID)
}

func userTaskFlow(t *testing.T) *model.ProcessDefinition {
	t.Helper()
	elements := map[string]*model.Element{
		"start": {ID: "start", Kind: model.ElementStartEvent, Outgoing: []string{"f1"}},
		"task":  {ID: "task", Kind: model.ElementUserTask, Incoming: []string{"f1"}, Outgoing: []string{"f2"}},
		"end":   {ID: "end", Kind: model.ElementEndEvent, Incoming: []string{"f2"}},
	}
	flows := map[string]*model.SequenceFlow{
		"f1": {ID: "f1", SourceRef: "start", TargetRef: "task"},
		"f2": {ID: "f2", SourceRef: "task", TargetRef: "end"},
	}
	def, err := model.NewProcessDefinition("def-3", "usertask", 1, "UserTask", elements, flows)
	require.NoError(t, err)
	return def
}

func TestCompleteTask_AdvancesPastUserTaskAndCompletesInstance(t *testing.T) {
	ctx := context.Background()
	s, mem := newScheduler(t)
	def := userTaskFlow(t)
	require.NoError(t, mem.SaveDefinition(ctx, def))

	inst, err := s.StartProcess(ctx, def, "", nil)
	require.NoError(t, err)

	execs, err := mem.ListExecutionsByProcessInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	require.Equal(t, "task", execs[0].ElementID)

	tasks, err := mem.ListTasksByAssignee(ctx, "")
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	require.NoError(t, s.CompleteTask(ctx, tasks[0].ID, map[string]interface{}{"approved": true}))

	got, err := mem.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, model.InstanceCompleted, got.Status)
}

func TestCompleteTask_RejectsAlreadyCompletedTask(t *testing.T) {
	ctx := context.Background()
	s, mem := newScheduler(t)
	def := userTaskFlow(t)
	require.NoError(t, mem.SaveDefinition(ctx, def))

	inst, err := s.StartProcess(ctx, def, "", nil)
	require.NoError(t, err)

	_, err = mem.ListExecutionsByProcessInstance(ctx, inst.ID)
	require.NoError(t, err)
	tasks, err := mem.ListTasksByAssignee(ctx, "")
	require.NoError(t, err)

	require.NoError(t, s.CompleteTask(ctx, tasks[0].ID, nil))
	require.Error(t, s.CompleteTask(ctx, tasks[0].ID, nil))
}

func TestSignal_UnmatchedSignalLeavesInstanceUntouched(t *testing.T) {
	ctx := context.Background()
	s, mem := newScheduler(t)
	def := userTaskFlow(t)
	require.NoError(t, mem.SaveDefinition(ctx, def))

	inst, err := s.StartProcess(ctx, def, "", nil)
	require.NoError(t, err)

	require.NoError(t, s.Signal(ctx, "unrelated-signal", nil, inst.ID))

	got, err := mem.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, model.InstanceActive, got.Status, "a signal matching no subscription leaves the instance untouched")
}

// userTaskWithBoundaryFlow attaches a SIGNAL boundary event "bnd" to "task",
// leaving via "escalate" on the cancelActivity parameter passed in.
func userTaskWithBoundaryFlow(t *testing.T, cancelActivity bool) *model.ProcessDefinition {
	t.Helper()
	elements := map[string]*model.Element{
		"start": {ID: "start", Kind: model.ElementStartEvent, Outgoing: []string{"f1"}},
		"task":  {ID: "task", Kind: model.ElementUserTask, Incoming: []string{"f1"}, Outgoing: []string{"f2"}},
		"end":   {ID: "end", Kind: model.ElementEndEvent, Incoming: []string{"f2"}},
		"bnd": {
			ID: "bnd", Kind: model.ElementBoundaryEvent,
			AttachedToRef:  "task",
			CancelActivity: cancelActivity,
			EventType:      model.EventSignal,
			EventName:      "risk-alert",
			Outgoing:       []string{"f3"},
		},
		"escalate": {ID: "escalate", Kind: model.ElementEndEvent, Incoming: []string{"f3"}},
	}
	flows := map[string]*model.SequenceFlow{
		"f1": {ID: "f1", SourceRef: "start", TargetRef: "task"},
		"f2": {ID: "f2", SourceRef: "task", TargetRef: "end"},
		"f3": {ID: "f3", SourceRef: "bnd", TargetRef: "escalate"},
	}
	def, err := model.NewProcessDefinition("def-bnd", "boundary", 1, "Boundary", elements, flows)
	require.NoError(t, err)
	return def
}

func TestSignal_InterruptingBoundaryEventCancelsHostAndLeavesViaItsOwnFlow(t *testing.T) {
	ctx := context.Background()
	s, mem := newScheduler(t)
	def := userTaskWithBoundaryFlow(t, true)
	require.NoError(t, mem.SaveDefinition(ctx, def))

	inst, err := s.StartProcess(ctx, def, "", nil)
	require.NoError(t, err)

	require.NoError(t, s.Signal(ctx, "risk-alert", nil, inst.ID))

	execs, err := mem.ListExecutionsByProcessInstance(ctx, inst.ID)
	require.NoError(t, err)
	var sawTaskCancelled, sawEscalate bool
	for _, e := range execs {
		if e.ElementID == "task" {
			require.Equal(t, model.ExecutionEnded, e.Status, "interrupting boundary event must cancel its host activity")
			sawTaskCancelled = true
		}
		if e.ElementID == "escalate" {
			sawEscalate = true
		}
	}
	require.True(t, sawTaskCancelled)
	require.True(t, sawEscalate, "interrupting boundary event must leave via its own outgoing flow")

	got, err := mem.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, model.InstanceCompleted, got.Status)
}

func TestSignal_NonInterruptingBoundaryEventSpawnsBranchAndLeavesHostRunning(t *testing.T) {
	ctx := context.Background()
	s, mem := newScheduler(t)
	def := userTaskWithBoundaryFlow(t, false)
	require.NoError(t, mem.SaveDefinition(ctx, def))

	inst, err := s.StartProcess(ctx, def, "", nil)
	require.NoError(t, err)

	require.NoError(t, s.Signal(ctx, "risk-alert", nil, inst.ID))

	execs, err := mem.ListExecutionsByProcessInstance(ctx, inst.ID)
	require.NoError(t, err)
	var sawTaskStillActive, sawEscalate bool
	for _, e := range execs {
		if e.ElementID == "task" {
			require.Equal(t, model.ExecutionWaiting, e.Status, "non-interrupting boundary event must not touch its host activity")
			sawTaskStillActive = true
		}
		if e.ElementID == "escalate" {
			sawEscalate = true
		}
	}
	require.True(t, sawTaskStillActive)
	require.True(t, sawEscalate, "non-interrupting boundary event must still spawn its branch")

	got, err := mem.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, model.InstanceActive, got.Status, "the host branch is still running the instance as a whole stays active")
}

func TestSuspendResume_RejectsWrongStateTransitions(t *testing.T) {
	ctx := context.Background()
	s, mem := newScheduler(t)
	def := userTaskFlow(t)
	require.NoError(t, mem.SaveDefinition(ctx, def))

	inst, err := s.StartProcess(ctx, def, "", nil)
	require.NoError(t, err)

	require.NoError(t, s.Suspend(ctx, inst.ID))
	require.Error(t, s.Suspend(ctx, inst.ID), "cannot suspend an already-SUSPENDED instance")

	require.NoError(t, s.Resume(ctx, inst.ID))
	require.Error(t, s.Resume(ctx, inst.ID), "cannot resume an already-ACTIVE instance")
}

func TestCancelInstance_TerminatesAndEndsRootExecution(t *testing.T) {
	ctx := context.Background()
	s, mem := newScheduler(t)
	def := userTaskFlow(t)
	require.NoError(t, mem.SaveDefinition(ctx, def))

	inst, err := s.StartProcess(ctx, def, "", nil)
	require.NoError(t, err)

	require.NoError(t, s.CancelInstance(ctx, inst.ID, "operator abort"))

	got, err := mem.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Equal(t, model.InstanceTerminated, got.Status)

	execs, err := mem.ListExecutionsByProcessInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	require.Equal(t, model.ExecutionEnded, execs[0].Status)
}
