package eventsubprocess_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/flowlayer/engine/eventsubprocess"
	"github.com/r3e-network/flowlayer/engine/model"
)

func TestValidate_RejectsNonEventSubProcessElement(t *testing.T) {
	el := &model.Element{ID: "sp1", Kind: model.ElementSubProcess}
	require.Error(t, eventsubprocess.Validate(el, nil))
}

func TestValidate_RejectsNoStartEvent(t *testing.T) {
	el := &model.Element{ID: "esp1", Kind: model.ElementEventSubProcess}
	require.Error(t, eventsubprocess.Validate(el, nil))
}

func TestValidate_RejectsUntypedStartEvent(t *testing.T) {
	el := &model.Element{ID: "esp1", Kind: model.ElementEventSubProcess}
	children := []*model.Element{
		{ID: "start1", Kind: model.ElementStartEvent, TriggeredByEvent: true},
	}
	require.Error(t, eventsubprocess.Validate(el, children))
}

func TestValidate_AcceptsTypedStartEvent(t *testing.T) {
	el := &model.Element{ID: "esp1", Kind: model.ElementEventSubProcess}
	children := []*model.Element{
		{ID: "start1", Kind: model.ElementStartEvent, TriggeredByEvent: true, EventType: model.EventSignal, EventName: "abort"},
	}
	require.NoError(t, eventsubprocess.Validate(el, children))
}

func TestRegister_IgnoresNonTriggeredStartEvents(t *testing.T) {
	children := []*model.Element{
		{ID: "plain-start", Kind: model.ElementStartEvent, TriggeredByEvent: false},
		{ID: "event-start", Kind: model.ElementStartEvent, TriggeredByEvent: true, EventType: model.EventSignal, EventName: "abort"},
		{ID: "task1", Kind: model.ElementUserTask},
	}
	starts := eventsubprocess.Register(children)
	require.Len(t, starts, 1)
	require.Equal(t, "event-start", starts[0].ElementID)
}

func TestTrigger_SpawnsOnMatchingEventAndSeedsEventData(t *testing.T) {
	ctx := context.Background()
	starts := []eventsubprocess.StartEvent{
		{ElementID: "start1", EventType: model.EventSignal, EventName: "abort", IsInterrupting: true},
	}
	var seededScope, seededName string
	var seededValue interface{}
	m := eventsubprocess.New(func(ctx context.Context, parentExecutionID, startElementID string) (string, string, error) {
		require.Equal(t, "start1", startElementID)
		return "exec-child", "scope-child", nil
	})

	result, err := m.Trigger(ctx, "exec-parent", starts, model.EventSignal, "abort", map[string]string{"reason": "risk"}, func(scopeID, name string, value interface{}) error {
		seededScope, seededName, seededValue = scopeID, name, value
		return nil
	}, nil)

	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, "exec-child", result.ExecutionID)
	require.True(t, result.IsInterrupting)
	require.Equal(t, "scope-child", seededScope)
	require.Equal(t, "eventData", seededName)
	require.Equal(t, map[string]string{"reason": "risk"}, seededValue)
}

func TestTrigger_ReturnsNilOnNoMatch(t *testing.T) {
	ctx := context.Background()
	starts := []eventsubprocess.StartEvent{
		{ElementID: "start1", EventType: model.EventSignal, EventName: "abort"},
	}
	m := eventsubprocess.New(func(ctx context.Context, parentExecutionID, startElementID string) (string, string, error) {
		t.Fatal("spawn must not be called when nothing matches")
		return "", "", nil
	})

	result, err := m.Trigger(ctx, "exec-parent", starts, model.EventSignal, "other-signal", nil, nil, nil)
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestTrigger_SkipsMatchWhoseConditionFails(t *testing.T) {
	ctx := context.Background()
	starts := []eventsubprocess.StartEvent{
		{ElementID: "start1", EventType: model.EventSignal, EventName: "abort", Condition: "${amount > 1000}"},
	}
	m := eventsubprocess.New(func(ctx context.Context, parentExecutionID, startElementID string) (string, string, error) {
		t.Fatal("spawn must not be called when the conditional gate fails")
		return "", "", nil
	})

	result, err := m.Trigger(ctx, "exec-parent", starts, model.EventSignal, "abort", nil, nil, map[string]interface{}{"amount": 10})
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestTrigger_PropagatesSpawnError(t *testing.T) {
	ctx := context.Background()
	starts := []eventsubprocess.StartEvent{
		{ElementID: "start1", EventType: model.EventSignal, EventName: "abort"},
	}
	m := eventsubprocess.New(func(ctx context.Context, parentExecutionID, startElementID string) (string, string, error) {
		return "", "", errors.New("store unavailable")
	})

	_, err := m.Trigger(ctx, "exec-parent", starts, model.EventSignal, "abort", nil, nil, nil)
	require.Error(t, err)
}
