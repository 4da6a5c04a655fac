package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/r3e-network/flowlayer/engine/model"
)

type outboxRow struct {
	ID                string       `db:"id"`
	ProcessInstanceID string       `db:"process_instance_id"`
	ExecutionID       string       `db:"execution_id"`
	EventType         string       `db:"event_type"`
	Payload           []byte       `db:"payload"`
	ContentHash       []byte       `db:"content_hash"`
	Status            string       `db:"status"`
	RetryCount        int          `db:"retry_count"`
	CreateTime        time.Time    `db:"create_time"`
	PublishedTime     sql.NullTime `db:"published_time"`
}

func (r outboxRow) toModel() *model.LifecycleEvent {
	e := &model.LifecycleEvent{
		ID:                r.ID,
		ProcessInstanceID: r.ProcessInstanceID,
		ExecutionID:       r.ExecutionID,
		EventType:         r.EventType,
		Payload:           r.Payload,
		Status:            model.OutboxStatus(r.Status),
		RetryCount:        r.RetryCount,
		CreateTime:        r.CreateTime,
	}
	copy(e.ContentHash[:], r.ContentHash)
	if r.PublishedTime.Valid {
		e.PublishedTime = r.PublishedTime.Time
	}
	return e
}

const outboxColumns = `id, process_instance_id, execution_id, event_type, payload, content_hash, status, retry_count, create_time, published_time`

func (s *Store) Append(ctx context.Context, e *model.LifecycleEvent) error {
	return ctxExec(ctx, s.Querier(ctx), `
		INSERT INTO outbox_events (id, process_instance_id, execution_id, event_type, payload, content_hash, status, retry_count, create_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.ProcessInstanceID, nullableString(e.ExecutionID), e.EventType, e.Payload, e.ContentHash[:], string(e.Status), e.RetryCount, e.CreateTime)
}

// ClaimPending selects and atomically marks up to limit PENDING rows
// CLAIMED in one transaction (SELECT ... FOR UPDATE SKIP LOCKED, then an
// UPDATE of the selected ids), so multiple
// publisher processes can drain the same table without double-publishing.
func (s *Store) ClaimPending(ctx context.Context, limit int) ([]*model.LifecycleEvent, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var rows []outboxRow
	if err := tx.SelectContext(ctx, &rows, `
		SELECT `+outboxColumns+` FROM outbox_events
		WHERE status = 'PENDING'
		ORDER BY create_time ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, tx.Commit()
	}
	ids := make([]string, len(rows))
	for i, r := range rows {
		ids[i] = r.ID
	}
	if _, err := tx.ExecContext(ctx, `UPDATE outbox_events SET status = $2 WHERE id = ANY($1)`, pq.Array(ids), string(model.OutboxClaimed)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	out := make([]*model.LifecycleEvent, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *Store) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	return ctxExec(ctx, s.Querier(ctx), `UPDATE outbox_events SET status = 'PUBLISHED', published_time = $2 WHERE id = $1`, id, publishedAt)
}

func (s *Store) MarkFailed(ctx context.Context, id string, retryCount int) error {
	return ctxExec(ctx, s.Querier(ctx), `UPDATE outbox_events SET status = 'FAILED', retry_count = $2 WHERE id = $1`, id, retryCount)
}

func (s *Store) ResetRetryable(ctx context.Context, maxRetries int) (int, error) {
	res, err := s.Querier(ctx).ExecContext(ctx, `
		UPDATE outbox_events SET status = 'PENDING' WHERE status = 'FAILED' AND retry_count < $1
	`, maxRetries)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) DeadLettered(ctx context.Context, limit int) ([]*model.LifecycleEvent, error) {
	var rows []outboxRow
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT `+outboxColumns+` FROM outbox_events
		WHERE status = 'FAILED' ORDER BY create_time ASC LIMIT $1
	`, limit); err != nil {
		return nil, err
	}
	out := make([]*model.LifecycleEvent, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

func (s *Store) DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.Querier(ctx).ExecContext(ctx, `DELETE FROM outbox_events WHERE status = 'PUBLISHED' AND published_time < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *Store) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.Querier(ctx).GetContext(ctx, &n, `SELECT count(*) FROM outbox_events WHERE status = 'PENDING'`)
	return n, err
}
