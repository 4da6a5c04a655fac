package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/r3e-network/flowlayer/engine/outbox"
	"github.com/r3e-network/flowlayer/engine/repository"
)

type fakeBus struct {
	mu        sync.Mutex
	published []string
	failTopic string
}

func (b *fakeBus) Publish(ctx context.Context, topic string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if topic == b.failTopic {
		return errors.New("bus unavailable")
	}
	b.published = append(b.published, topic)
	return nil
}

func newRepo() outbox.Repository {
	return repository.NewOutboxStore(repository.NewMemory())
}

func TestNewEvent_ContentHashIsStableForSamePayload(t *testing.T) {
	now := time.Now()
	e1, err := outbox.NewEvent("id-1", "pi-1", "exec-1", "ACTIVITY_STARTED", map[string]string{"elementId": "task1"}, now)
	require.NoError(t, err)
	e2, err := outbox.NewEvent("id-2", "pi-1", "exec-1", "ACTIVITY_STARTED", map[string]string{"elementId": "task1"}, now)
	require.NoError(t, err)
	require.Equal(t, e1.ContentHash, e2.ContentHash, "identical payloads hash identically regardless of row id")
}

func TestPublishOnce_MarksPublishedOnSuccess(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	bus := &fakeBus{}
	p := outbox.NewPublisher(repo, bus, nil, outbox.Config{BatchSize: 10, PublishRatePerSec: 0})

	e, err := outbox.NewEvent("id-1", "pi-1", "exec-1", "PROCESS_INSTANCE_START", map[string]string{}, time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, e))

	n, err := p.PublishOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, []string{"process.started"}, bus.published)

	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	require.Zero(t, pending)
}

func TestPublishOnce_MarksFailedAndIncrementsRetryCount(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	bus := &fakeBus{failTopic: "process.started"}
	p := outbox.NewPublisher(repo, bus, nil, outbox.Config{BatchSize: 10})

	e, err := outbox.NewEvent("id-1", "pi-1", "exec-1", "PROCESS_INSTANCE_START", map[string]string{}, time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, e))

	n, err := p.PublishOnce(ctx)
	require.NoError(t, err)
	require.Zero(t, n)

	dead, err := p.DeadLettered(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	require.Equal(t, 1, dead[0].RetryCount)
}

func TestResetRetryable_ReArmsRowsBelowMaxRetries(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	bus := &fakeBus{failTopic: "process.started"}
	p := outbox.NewPublisher(repo, bus, nil, outbox.Config{BatchSize: 10, MaxRetries: 3})

	e, err := outbox.NewEvent("id-1", "pi-1", "exec-1", "PROCESS_INSTANCE_START", map[string]string{}, time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, e))
	_, err = p.PublishOnce(ctx)
	require.NoError(t, err)

	n, err := p.ResetRetryable(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	pending, err := repo.CountPending(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, pending)
}

func TestResetRetryable_LeavesExhaustedRowsDeadLettered(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	bus := &fakeBus{failTopic: "process.started"}
	p := outbox.NewPublisher(repo, bus, nil, outbox.Config{BatchSize: 10, MaxRetries: 1})

	e, err := outbox.NewEvent("id-1", "pi-1", "exec-1", "PROCESS_INSTANCE_START", map[string]string{}, time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, e))
	_, err = p.PublishOnce(ctx)
	require.NoError(t, err)

	n, err := p.ResetRetryable(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "a row at its retry budget is not re-armed")

	dead, err := p.DeadLettered(ctx, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
}

func TestPublishOnce_CustomEventTopicFallsBackToEventCode(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	bus := &fakeBus{}
	p := outbox.NewPublisher(repo, bus, nil, outbox.Config{BatchSize: 10})

	e, err := outbox.NewEvent("id-1", "pi-1", "exec-1", "CUSTOM", map[string]string{"eventCode": "riskFlag"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, e))

	_, err = p.PublishOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"custom.riskFlag"}, bus.published)
}

func TestRunJanitor_DeletesOnlyPublishedRowsOlderThanRetention(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()
	bus := &fakeBus{}
	p := outbox.NewPublisher(repo, bus, nil, outbox.Config{BatchSize: 10})

	old, err := outbox.NewEvent("id-old", "pi-1", "exec-1", "PROCESS_STARTED", map[string]string{}, time.Now().Add(-48*time.Hour))
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, old))
	_, err = p.PublishOnce(ctx)
	require.NoError(t, err)
	// The janitor ages rows by publish time, so back-date the publish.
	require.NoError(t, repo.MarkPublished(ctx, "id-old", time.Now().Add(-48*time.Hour)))

	n, err := p.RunJanitor(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestClaimPending_DoesNotReturnAlreadyClaimedRows(t *testing.T) {
	ctx := context.Background()
	repo := newRepo()

	e, err := outbox.NewEvent("id-1", "pi-1", "exec-1", "PROCESS_STARTED", map[string]string{}, time.Now())
	require.NoError(t, err)
	require.NoError(t, repo.Append(ctx, e))

	first, err := repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, first, 1)

	second, err := repo.ClaimPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, second, "a claimed row is not handed out again until reset")
}
