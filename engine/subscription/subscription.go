// Package subscription implements the event-subscription registry: timer,
// signal, message, conditional, error and compensation subscriptions that
// tie a waiting execution to the event that will resume it. Grounded on the
// teacher's automation-trigger registration/lookup shape (trigger IDs keyed
// by type, cyclic schedules parsed once at registration time) generalized
// from "chain trigger" semantics to BPMN event subscriptions.
package subscription

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	engerr "github.com/r3e-network/flowlayer/infrastructure/errors"
	"github.com/r3e-network/flowlayer/engine/model"
)

// Repository is the persistence contract the registry depends on.
type Repository interface {
	Create(ctx context.Context, sub *model.EventSubscription) error
	DeleteByProcessInstance(ctx context.Context, processInstanceID string) error
	DeleteByExecution(ctx context.Context, executionID string) error
	FindByProcessInstance(ctx context.Context, processInstanceID string) ([]*model.EventSubscription, error)
	FindByEventNameAndType(ctx context.Context, eventType model.EventType, eventName string) ([]*model.EventSubscription, error)
	FindDue(ctx context.Context, asOf time.Time, limit int) ([]*model.EventSubscription, error)
	CountOpen(ctx context.Context) (map[model.EventType]int, error)
}

// cronParser is the standard 5-field dialect (no seconds field) per the
// Open Question resolution: deploy-time definitions carry either an
// absolute dueTime or a cron expression in this dialect.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Registry manages event subscriptions.
type Registry struct {
	repo Repository
}

// New constructs a Registry bound to repo.
func New(repo Repository) *Registry {
	return &Registry{repo: repo}
}

// Create registers a new subscription. For TIMER subscriptions it resolves
// DueAt from the element's TimerDefinition: an absolute DueTime is used
// as-is; a Cron expression is parsed and its next occurrence after now is
// used. For CONDITIONAL subscriptions, condition is stored verbatim in
// Configuration so a later variable-change check (engine/scheduler's
// checkConditionalSubscriptions) can re-evaluate it. A subscription that
// already exists for the same (executionID, activityID, eventType) is
// rejected as a Conflict — the uniqueness invariant the token-flow
// interpreter relies on to avoid double-arming a boundary event across a
// crash-restart.
func (r *Registry) Create(ctx context.Context, processInstanceID, executionID, activityID string, eventType model.EventType, eventName string, timer *model.TimerDefinition, condition string, now time.Time) (*model.EventSubscription, error) {
	existing, err := r.repo.FindByProcessInstance(ctx, processInstanceID)
	if err != nil {
		return nil, err
	}
	for _, s := range existing {
		if s.ExecutionID == executionID && s.ActivityID == activityID && s.EventType == eventType {
			return nil, engerr.Conflict(fmt.Sprintf("subscription already exists for activity %s", activityID))
		}
	}

	sub := &model.EventSubscription{
		ID:                uuid.NewString(),
		ProcessInstanceID: processInstanceID,
		ExecutionID:       executionID,
		ActivityID:        activityID,
		EventType:         eventType,
		EventName:         eventName,
		CreatedAt:         now,
	}

	switch eventType {
	case model.EventTimer:
		due, configuration, err := resolveDueAt(timer, now)
		if err != nil {
			return nil, engerr.SubscriptionCreateFailed(eventName, err)
		}
		sub.DueAt = due
		sub.Configuration = configuration
	case model.EventConditional:
		sub.Configuration = condition
	}

	if err := r.repo.Create(ctx, sub); err != nil {
		return nil, engerr.SubscriptionCreateFailed(eventName, err)
	}
	return sub, nil
}

func resolveDueAt(timer *model.TimerDefinition, now time.Time) (time.Time, string, error) {
	if timer == nil {
		return time.Time{}, "", fmt.Errorf("timer subscription requires a TimerDefinition")
	}
	if !timer.DueTime.IsZero() {
		return timer.DueTime, timer.DueTime.Format(time.RFC3339), nil
	}
	if strings.TrimSpace(timer.Cron) == "" {
		return time.Time{}, "", fmt.Errorf("timer definition has neither dueTime nor cron")
	}
	schedule, err := cronParser.Parse(timer.Cron)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("parse cron %q: %w", timer.Cron, err)
	}
	return schedule.Next(now), timer.Cron, nil
}

// DeleteByProcessInstance removes every subscription for an instance — used
// when an instance completes or is cancelled.
func (r *Registry) DeleteByProcessInstance(ctx context.Context, processInstanceID string) error {
	return r.repo.DeleteByProcessInstance(ctx, processInstanceID)
}

// DeleteByExecution removes every subscription owned by a single execution,
// used when a boundary event's host activity completes normally (the
// boundary's subscription is no longer relevant).
func (r *Registry) DeleteByExecution(ctx context.Context, executionID string) error {
	return r.repo.DeleteByExecution(ctx, executionID)
}

// FindByProcessInstance lists every open subscription for an instance.
func (r *Registry) FindByProcessInstance(ctx context.Context, processInstanceID string) ([]*model.EventSubscription, error) {
	return r.repo.FindByProcessInstance(ctx, processInstanceID)
}

// Broadcast finds every subscription matching (eventType, eventName). A
// SIGNAL fans out to all matches (broadcast semantics); a MESSAGE is
// expected to match at most one execution per correlation but the registry
// itself does not enforce that — the caller (engine/scheduler) applies
// whatever fan-out policy the event type calls for. Results are returned in
// subscription-creation order so a caller applying at-most-once delivery
// picks deterministically (oldest first) rather than arbitrarily.
func (r *Registry) Broadcast(ctx context.Context, eventType model.EventType, eventName string) ([]*model.EventSubscription, error) {
	matches, err := r.repo.FindByEventNameAndType(ctx, eventType, eventName)
	if err != nil {
		return nil, err
	}
	sortByCreatedAt(matches)
	return matches, nil
}

// FindDue returns up to limit TIMER subscriptions whose DueAt has passed,
// ordered oldest-first so the scheduler's polling loop drains a backlog
// fairly instead of starving older timers behind newer ones.
func (r *Registry) FindDue(ctx context.Context, asOf time.Time, limit int) ([]*model.EventSubscription, error) {
	due, err := r.repo.FindDue(ctx, asOf, limit)
	if err != nil {
		return nil, err
	}
	sortByCreatedAt(due)
	return due, nil
}

// CountOpen reports the number of open subscriptions per event type, for
// the subscriptions_open gauge.
func (r *Registry) CountOpen(ctx context.Context) (map[model.EventType]int, error) {
	return r.repo.CountOpen(ctx)
}

func sortByCreatedAt(subs []*model.EventSubscription) {
	for i := 1; i < len(subs); i++ {
		for j := i; j > 0 && subs[j].CreatedAt.Before(subs[j-1].CreatedAt); j-- {
			subs[j], subs[j-1] = subs[j-1], subs[j]
		}
	}
}
