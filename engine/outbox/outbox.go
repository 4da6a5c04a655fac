// Package outbox implements the lifecycle-event outbox: lifecycle events
// are appended in the same database transaction as the state change they
// describe, then published at-least-once by a background publisher loop.
// Grounded on the teacher's system/events.Dispatcher (worker-pool-over-a-
// channel shape) and system/events/store_postgres.go (CREATE TABLE IF NOT
// EXISTS JSONB row store) — generalized from "fan blockchain events out to
// in-process handlers" to "drain a durable PENDING queue to an external
// bus with retry, rate limiting, and dead-lettering."
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"

	engerr "github.com/r3e-network/flowlayer/infrastructure/errors"
	"github.com/r3e-network/flowlayer/engine/model"
	"github.com/r3e-network/flowlayer/pkg/metrics"
)

// Repository is the persistence contract the publisher depends on.
type Repository interface {
	Append(ctx context.Context, e *model.LifecycleEvent) error
	ClaimPending(ctx context.Context, limit int) ([]*model.LifecycleEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	MarkFailed(ctx context.Context, id string, retryCount int) error
	ResetRetryable(ctx context.Context, maxRetries int) (int, error)
	DeadLettered(ctx context.Context, limit int) ([]*model.LifecycleEvent, error)
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int, error)
	CountPending(ctx context.Context) (int, error)
}

// Bus is the abstract transport a caller's adapter owns; the engine core
// depends on this interface, never on a concrete broker client (see
// SPEC_FULL's domain-stack note on why go-redis is not wired here).
type Bus interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// staticTopics maps well-known lifecycle event types to a fixed topic. Keys
// match the event-type strings the scheduler actually appends (see
// scheduler.go/api.go's model.NewEvent call sites), not a BPMN vocabulary.
var staticTopics = map[string]string{
	"PROCESS_INSTANCE_START":       "process.started",
	"PROCESS_INSTANCE_END":         "process.completed",
	"PROCESS_TERMINATED":           "process.terminated",
	"ACTIVITY_STARTED":             "activity.started",
	"ACTIVITY_COMPLETED":           "activity.completed",
	"ACTIVITY_CANCELLED":           "activity.cancelled",
	"TASK_CREATED":                 "task.created",
	"TASK_COMPLETED":               "task.completed",
	"INCIDENT_RAISED":              "incident.raised",
	"COMPENSATION_TRIGGERED":       "compensation.triggered",
	"COMPENSATION_HANDLER_INVOKED": "compensation.handler_invoked",
}

// resolveTopic maps an event to its bus topic. CUSTOM events resolve to a
// topic built from the payload's eventCode field, read cheaply via gjson
// rather than a full json.Unmarshal; any other unmapped event type falls
// back to a fixed "event.unknown" topic rather than being mistaken for a
// CUSTOM event.
func resolveTopic(e *model.LifecycleEvent) string {
	if topic, ok := staticTopics[e.EventType]; ok {
		return topic
	}
	if e.EventType != "CUSTOM" {
		return "event.unknown"
	}
	code := gjson.GetBytes(e.Payload, "eventCode").String()
	if code == "" {
		code = "unknown"
	}
	return "custom." + code
}

// ContentHash returns the blake2b-256 hash of payload, stored alongside the
// row's id so a downstream consumer can cross-check at-least-once delivery
// against payload drift, not just the dedup id.
func ContentHash(payload []byte) [32]byte {
	return blake2b.Sum256(payload)
}

// NewEvent builds a LifecycleEvent ready to append in the same transaction
// as the state change it describes.
func NewEvent(id, processInstanceID, executionID, eventType string, payload interface{}, now time.Time) (*model.LifecycleEvent, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, engerr.Internal("marshal lifecycle event payload", err)
	}
	return &model.LifecycleEvent{
		ID:                id,
		ProcessInstanceID: processInstanceID,
		ExecutionID:       executionID,
		EventType:         eventType,
		Payload:           raw,
		ContentHash:       ContentHash(raw),
		Status:            model.OutboxPending,
		CreateTime:        now,
	}, nil
}

// Publisher drains PENDING rows to Bus, retries FAILED rows until
// OutboxConfig.MaxRetries, and dead-letters exhausted rows permanently.
type Publisher struct {
	repo       Repository
	bus        Bus
	log        *logrus.Entry
	limiter    *rate.Limiter
	batchSize  int
	maxRetries int
}

// Config configures a Publisher.
type Config struct {
	BatchSize         int
	MaxRetries        int
	PublishRatePerSec float64
}

// NewPublisher constructs a Publisher.
func NewPublisher(repo Repository, bus Bus, log *logrus.Entry, cfg Config) *Publisher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 8
	}
	limit := rate.Limit(cfg.PublishRatePerSec)
	if cfg.PublishRatePerSec <= 0 {
		limit = rate.Inf
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Publisher{
		repo:       repo,
		bus:        bus,
		log:        log,
		limiter:    rate.NewLimiter(limit, cfg.BatchSize),
		batchSize:  cfg.BatchSize,
		maxRetries: cfg.MaxRetries,
	}
}

// PublishOnce claims up to batchSize PENDING rows and attempts to publish
// each, rate-limited against the bus. Returns the number published.
func (p *Publisher) PublishOnce(ctx context.Context) (int, error) {
	start := time.Now()
	rows, err := p.repo.ClaimPending(ctx, p.batchSize)
	if err != nil {
		return 0, engerr.Internal("claim pending outbox rows", err)
	}

	published := 0
	for _, row := range rows {
		if err := p.limiter.Wait(ctx); err != nil {
			return published, err
		}
		topic := resolveTopic(row)
		if err := p.bus.Publish(ctx, topic, row.Payload); err != nil {
			row.RetryCount++
			if markErr := p.repo.MarkFailed(ctx, row.ID, row.RetryCount); markErr != nil {
				p.log.WithError(markErr).Error("failed to mark outbox row failed")
			}
			p.log.WithFields(logrus.Fields{"eventId": row.ID, "topic": topic, "retryCount": row.RetryCount}).
				WithError(err).Warn("outbox publish failed")
			metrics.RecordOutboxPublish("error", time.Since(start))
			continue
		}
		if err := p.repo.MarkPublished(ctx, row.ID, time.Now()); err != nil {
			p.log.WithError(err).Error("failed to mark outbox row published")
			continue
		}
		published++
		metrics.RecordOutboxPublish("ok", time.Since(start))
	}

	if n, err := p.repo.CountPending(ctx); err == nil {
		metrics.SetOutboxBacklog(n)
	}
	return published, nil
}

// ResetRetryable re-arms FAILED rows with RetryCount below maxRetries back
// to PENDING so PublishOnce picks them up again; rows beyond the budget are
// left FAILED permanently (dead-lettered) and surfaced via DeadLettered.
func (p *Publisher) ResetRetryable(ctx context.Context) (int, error) {
	return p.repo.ResetRetryable(ctx, p.maxRetries)
}

// DeadLettered returns up to limit FAILED rows. It does not filter by retry
// budget: rows that exhausted maxRetries are listed together with FAILED
// rows that ResetRetryable has not yet re-armed to PENDING.
func (p *Publisher) DeadLettered(ctx context.Context, limit int) ([]*model.LifecycleEvent, error) {
	return p.repo.DeadLettered(ctx, limit)
}

// RunJanitor deletes PUBLISHED rows older than retention, once.
func (p *Publisher) RunJanitor(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	return p.repo.DeletePublishedBefore(ctx, cutoff)
}

// Run drives the publish tick, retry-reset tick, and janitor tick loops
// until ctx is cancelled. Each loop runs on its own ticker, matching the
// teacher's ticker+stopCh idiom (services/automation's Scheduler) rather
// than a single loop juggling three timers.
func (p *Publisher) Run(ctx context.Context, tick, retryTick, janitorTick, retention time.Duration) {
	publishTicker := time.NewTicker(tick)
	retryTicker := time.NewTicker(retryTick)
	janitorTicker := time.NewTicker(janitorTick)
	defer publishTicker.Stop()
	defer retryTicker.Stop()
	defer janitorTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-publishTicker.C:
			if _, err := p.PublishOnce(ctx); err != nil {
				p.log.WithError(err).Error("outbox publish tick failed")
			}
		case <-retryTicker.C:
			if n, err := p.ResetRetryable(ctx); err != nil {
				p.log.WithError(err).Error("outbox retry-reset tick failed")
			} else if n > 0 {
				p.log.WithField("count", n).Info("outbox rows re-armed for retry")
			}
		case <-janitorTicker.C:
			if n, err := p.RunJanitor(ctx, retention); err != nil {
				p.log.WithError(err).Error("outbox janitor tick failed")
			} else if n > 0 {
				p.log.WithField("count", n).Info("outbox janitor deleted published rows")
			}
		}
	}
}
