package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/r3e-network/flowlayer/engine/model"
)

type subscriptionRow struct {
	ID                string       `db:"id"`
	ProcessInstanceID string       `db:"process_instance_id"`
	ExecutionID       string       `db:"execution_id"`
	ActivityID        string       `db:"activity_id"`
	EventType         string       `db:"event_type"`
	EventName         string       `db:"event_name"`
	Configuration     string       `db:"configuration"`
	DueAt             sql.NullTime `db:"due_at"`
	CreatedAt         time.Time    `db:"created_at"`
}

func (r subscriptionRow) toModel() *model.EventSubscription {
	sub := &model.EventSubscription{
		ID:                r.ID,
		ProcessInstanceID: r.ProcessInstanceID,
		ExecutionID:       r.ExecutionID,
		ActivityID:        r.ActivityID,
		EventType:         model.EventType(r.EventType),
		EventName:         r.EventName,
		Configuration:     r.Configuration,
		CreatedAt:         r.CreatedAt,
	}
	if r.DueAt.Valid {
		sub.DueAt = r.DueAt.Time
	}
	return sub
}

func (s *Store) CreateSubscription(ctx context.Context, sub *model.EventSubscription) error {
	var dueAt interface{}
	if !sub.DueAt.IsZero() {
		dueAt = sub.DueAt
	}
	return ctxExec(ctx, s.Querier(ctx), `
		INSERT INTO event_subscriptions (id, process_instance_id, execution_id, activity_id, event_type, event_name, configuration, due_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, sub.ID, sub.ProcessInstanceID, sub.ExecutionID, sub.ActivityID, string(sub.EventType), sub.EventName, sub.Configuration, dueAt, sub.CreatedAt)
}

func (s *Store) DeleteSubscriptionsByProcessInstance(ctx context.Context, processInstanceID string) error {
	return ctxExec(ctx, s.Querier(ctx), `DELETE FROM event_subscriptions WHERE process_instance_id = $1`, processInstanceID)
}

func (s *Store) DeleteSubscriptionsByExecution(ctx context.Context, executionID string) error {
	return ctxExec(ctx, s.Querier(ctx), `DELETE FROM event_subscriptions WHERE execution_id = $1`, executionID)
}

func (s *Store) listSubscriptions(ctx context.Context, query string, args ...interface{}) ([]*model.EventSubscription, error) {
	var rows []subscriptionRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]*model.EventSubscription, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

const subscriptionColumns = `id, process_instance_id, execution_id, activity_id, event_type, event_name, configuration, due_at, created_at`

func (s *Store) FindSubscriptionsByProcessInstance(ctx context.Context, processInstanceID string) ([]*model.EventSubscription, error) {
	return s.listSubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM event_subscriptions WHERE process_instance_id = $1`, processInstanceID)
}

func (s *Store) FindSubscriptionsByEventNameAndType(ctx context.Context, eventType model.EventType, eventName string) ([]*model.EventSubscription, error) {
	return s.listSubscriptions(ctx, `SELECT `+subscriptionColumns+` FROM event_subscriptions WHERE event_type = $1 AND event_name = $2 ORDER BY created_at ASC`, string(eventType), eventName)
}

func (s *Store) FindDueSubscriptions(ctx context.Context, asOf time.Time, limit int) ([]*model.EventSubscription, error) {
	return s.listSubscriptions(ctx, `
		SELECT `+subscriptionColumns+` FROM event_subscriptions
		WHERE due_at IS NOT NULL AND due_at <= $1
		ORDER BY due_at ASC LIMIT $2
	`, asOf, limit)
}

func (s *Store) CountOpenSubscriptions(ctx context.Context) (map[model.EventType]int, error) {
	var rows []struct {
		EventType string `db:"event_type"`
		Count     int    `db:"count"`
	}
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `SELECT event_type, count(*) AS count FROM event_subscriptions GROUP BY event_type`); err != nil {
		return nil, err
	}
	out := make(map[model.EventType]int, len(rows))
	for _, r := range rows {
		out[model.EventType(r.EventType)] = r.Count
	}
	return out, nil
}
