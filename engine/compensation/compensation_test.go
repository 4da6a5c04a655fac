package compensation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/flowlayer/engine/compensation"
	"github.com/r3e-network/flowlayer/engine/model"
	"github.com/r3e-network/flowlayer/engine/repository"
)

func newManager() *compensation.Manager {
	mem := repository.NewMemory()
	return compensation.New(repository.NewTxScopeStore(mem), nil)
}

func TestTriggerCompensation_UnwindsInReverseRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	scopeModel, err := m.Begin(ctx, "pi-1", "exec-tx")
	require.NoError(t, err)

	require.NoError(t, m.AddCompensationHandler(ctx, scopeModel.ID, model.CompensationHandler{ActivityID: "a1", HandlerElemID: "comp1"}))
	require.NoError(t, m.AddCompensationHandler(ctx, scopeModel.ID, model.CompensationHandler{ActivityID: "a2", HandlerElemID: "comp2"}))
	require.NoError(t, m.AddCompensationHandler(ctx, scopeModel.ID, model.CompensationHandler{ActivityID: "a3", HandlerElemID: "comp3"}))

	var invoked []string
	err = m.TriggerCompensation(ctx, scopeModel.ID, func(ctx context.Context, h model.CompensationHandler) error {
		invoked = append(invoked, h.ActivityID)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a3", "a2", "a1"}, invoked, "last-registered activity compensates first")
}

func TestTriggerCompensation_ContinuesUnwindAfterHandlerFailure(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	scopeModel, err := m.Begin(ctx, "pi-1", "exec-tx")
	require.NoError(t, err)
	require.NoError(t, m.AddCompensationHandler(ctx, scopeModel.ID, model.CompensationHandler{ActivityID: "a1"}))
	require.NoError(t, m.AddCompensationHandler(ctx, scopeModel.ID, model.CompensationHandler{ActivityID: "a2"}))

	var invoked []string
	err = m.TriggerCompensation(ctx, scopeModel.ID, func(ctx context.Context, h model.CompensationHandler) error {
		invoked = append(invoked, h.ActivityID)
		if h.ActivityID == "a2" {
			return context.DeadlineExceeded
		}
		return nil
	})
	require.NoError(t, err, "a failed handler does not abort the unwind")
	require.Equal(t, []string{"a2", "a1"}, invoked)
}

func TestTriggerCompensation_IsIdempotentOnceCancelled(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	scopeModel, err := m.Begin(ctx, "pi-1", "exec-tx")
	require.NoError(t, err)
	require.NoError(t, m.AddCompensationHandler(ctx, scopeModel.ID, model.CompensationHandler{ActivityID: "a1"}))

	calls := 0
	invoke := func(ctx context.Context, h model.CompensationHandler) error {
		calls++
		return nil
	}
	require.NoError(t, m.TriggerCompensation(ctx, scopeModel.ID, invoke))
	require.NoError(t, m.TriggerCompensation(ctx, scopeModel.ID, invoke), "already-cancelled scope is a no-op")
	require.Equal(t, 1, calls)
}

func TestAddCompensationHandler_UpsertsByActivityAtCurrentPosition(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	scopeModel, err := m.Begin(ctx, "pi-1", "exec-tx")
	require.NoError(t, err)

	require.NoError(t, m.AddCompensationHandler(ctx, scopeModel.ID, model.CompensationHandler{ActivityID: "a1", HandlerElemID: "first-pass"}))
	require.NoError(t, m.AddCompensationHandler(ctx, scopeModel.ID, model.CompensationHandler{ActivityID: "a2"}))
	// a1 loops back around (e.g. inside a cycle) and re-registers.
	require.NoError(t, m.AddCompensationHandler(ctx, scopeModel.ID, model.CompensationHandler{ActivityID: "a1", HandlerElemID: "second-pass"}))

	var invoked []string
	err = m.TriggerCompensation(ctx, scopeModel.ID, func(ctx context.Context, h model.CompensationHandler) error {
		invoked = append(invoked, h.ActivityID+":"+h.HandlerElemID)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"a1:second-pass", "a2:"}, invoked, "re-registration moves the handler to the top of the stack, not appends a duplicate")
}

func TestComplete_ClearsHandlersAndMarksDone(t *testing.T) {
	ctx := context.Background()
	m := newManager()

	scopeModel, err := m.Begin(ctx, "pi-1", "exec-tx")
	require.NoError(t, err)
	require.NoError(t, m.AddCompensationHandler(ctx, scopeModel.ID, model.CompensationHandler{ActivityID: "a1"}))
	require.NoError(t, m.Complete(ctx, scopeModel.ID))

	// A later compensation attempt invokes nothing: the scope is DONE.
	calls := 0
	err = m.TriggerCompensation(ctx, scopeModel.ID, func(ctx context.Context, h model.CompensationHandler) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	require.Zero(t, calls)
}

func TestShouldCompensate_DecisionTable(t *testing.T) {
	cases := []struct {
		name                string
		policy              compensation.CancelPolicy
		triggerCompensation bool
		want                bool
		wantErr             bool
	}{
		{"end event always compensates", compensation.CancelEndEvent, false, true, false},
		{"explicit API honors the flag (on)", compensation.CancelExplicitAPI, true, true, false},
		{"explicit API honors the flag (off)", compensation.CancelExplicitAPI, false, false, false},
		{"interrupting boundary honors the flag", compensation.CancelBoundaryInterrupting, true, true, false},
		{"non-interrupting boundary default retains", compensation.CancelBoundaryNonInterrupt, false, false, false},
		{"non-interrupting boundary cannot request compensation", compensation.CancelBoundaryNonInterrupt, true, false, true},
		{"unknown policy rejected", compensation.CancelPolicy("bogus"), false, false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := compensation.ShouldCompensate(tc.policy, tc.triggerCompensation)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
