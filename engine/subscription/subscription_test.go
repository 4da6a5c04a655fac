package subscription_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/flowlayer/engine/model"
	"github.com/r3e-network/flowlayer/engine/repository"
	"github.com/r3e-network/flowlayer/engine/subscription"
)

func newRegistry() *subscription.Registry {
	mem := repository.NewMemory()
	return subscription.New(repository.NewSubscriptionStore(mem))
}

func TestCreate_RejectsDuplicateSubscriptionForSameActivity(t *testing.T) {
	ctx := context.Background()
	r := newRegistry()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := r.Create(ctx, "pi-1", "exec-1", "boundary1", model.EventSignal, "risk-alert", nil, "", now)
	require.NoError(t, err)

	_, err = r.Create(ctx, "pi-1", "exec-1", "boundary1", model.EventSignal, "risk-alert", nil, "", now)
	require.Error(t, err, "the same execution/activity/eventType triple must not double-arm")
}

func TestCreate_AllowsDifferentActivitiesOnSameExecution(t *testing.T) {
	ctx := context.Background()
	r := newRegistry()
	now := time.Now()

	_, err := r.Create(ctx, "pi-1", "exec-1", "boundary1", model.EventSignal, "sig-a", nil, "", now)
	require.NoError(t, err)
	_, err = r.Create(ctx, "pi-1", "exec-1", "boundary2", model.EventMessage, "msg-a", nil, "", now)
	require.NoError(t, err)
}

func TestCreate_Timer_AbsoluteDueTime(t *testing.T) {
	ctx := context.Background()
	r := newRegistry()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	due := now.Add(time.Hour)

	sub, err := r.Create(ctx, "pi-1", "exec-1", "timer1", model.EventTimer, "", &model.TimerDefinition{DueTime: due}, "", now)
	require.NoError(t, err)
	require.True(t, sub.DueAt.Equal(due))
}

func TestCreate_Timer_CronResolvesNextOccurrence(t *testing.T) {
	ctx := context.Background()
	r := newRegistry()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	sub, err := r.Create(ctx, "pi-1", "exec-1", "timer1", model.EventTimer, "", &model.TimerDefinition{Cron: "0 0 * * *"}, "", now)
	require.NoError(t, err)
	require.True(t, sub.DueAt.After(now))
}

func TestCreate_Timer_RejectsMissingDefinition(t *testing.T) {
	ctx := context.Background()
	r := newRegistry()

	_, err := r.Create(ctx, "pi-1", "exec-1", "timer1", model.EventTimer, "", nil, "", time.Now())
	require.Error(t, err)
}

func TestCreate_Conditional_StoresGatingExpressionInConfiguration(t *testing.T) {
	ctx := context.Background()
	r := newRegistry()

	sub, err := r.Create(ctx, "pi-1", "exec-1", "cond1", model.EventConditional, "", nil, "${amount > 1000}", time.Now())
	require.NoError(t, err)
	require.Equal(t, "${amount > 1000}", sub.Configuration)
}

func TestBroadcast_ReturnsMatchesOldestFirst(t *testing.T) {
	ctx := context.Background()
	r := newRegistry()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := r.Create(ctx, "pi-1", "exec-2", "b2", model.EventSignal, "sig", nil, "", t0.Add(2*time.Second))
	require.NoError(t, err)
	_, err = r.Create(ctx, "pi-1", "exec-1", "b1", model.EventSignal, "sig", nil, "", t0)
	require.NoError(t, err)
	_, err = r.Create(ctx, "pi-1", "exec-3", "b3", model.EventSignal, "sig", nil, "", t0.Add(time.Second))
	require.NoError(t, err)

	matches, err := r.Broadcast(ctx, model.EventSignal, "sig")
	require.NoError(t, err)
	require.Len(t, matches, 3)
	require.Equal(t, "exec-1", matches[0].ExecutionID)
	require.Equal(t, "exec-3", matches[1].ExecutionID)
	require.Equal(t, "exec-2", matches[2].ExecutionID)
}

func TestBroadcast_DoesNotMatchDifferentEventName(t *testing.T) {
	ctx := context.Background()
	r := newRegistry()
	now := time.Now()

	_, err := r.Create(ctx, "pi-1", "exec-1", "b1", model.EventSignal, "sig-a", nil, "", now)
	require.NoError(t, err)

	matches, err := r.Broadcast(ctx, model.EventSignal, "sig-b")
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestFindDue_OnlyReturnsPastDueTimers(t *testing.T) {
	ctx := context.Background()
	r := newRegistry()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := r.Create(ctx, "pi-1", "exec-1", "t1", model.EventTimer, "", &model.TimerDefinition{DueTime: t0.Add(-time.Minute)}, "", t0.Add(-2*time.Minute))
	require.NoError(t, err)
	_, err = r.Create(ctx, "pi-1", "exec-2", "t2", model.EventTimer, "", &model.TimerDefinition{DueTime: t0.Add(time.Hour)}, "", t0.Add(-2*time.Minute))
	require.NoError(t, err)

	due, err := r.FindDue(ctx, t0, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "exec-1", due[0].ExecutionID)
}

func TestDeleteByExecution_RemovesOnlyThatExecutionsSubscriptions(t *testing.T) {
	ctx := context.Background()
	r := newRegistry()
	now := time.Now()

	_, err := r.Create(ctx, "pi-1", "exec-1", "b1", model.EventSignal, "sig", nil, "", now)
	require.NoError(t, err)
	_, err = r.Create(ctx, "pi-1", "exec-2", "b2", model.EventSignal, "sig", nil, "", now)
	require.NoError(t, err)

	require.NoError(t, r.DeleteByExecution(ctx, "exec-1"))

	matches, err := r.Broadcast(ctx, model.EventSignal, "sig")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, "exec-2", matches[0].ExecutionID)
}
