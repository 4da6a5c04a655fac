// History queries are read-only projections off the outbox_events table
// (ACTIVITY_STARTED/ACTIVITY_COMPLETED rows), not a separate write path —
// matching engine/repository.HistoryRepository's doc comment.
package postgres

import (
	"context"
	"time"

	"github.com/tidwall/gjson"

	"github.com/r3e-network/flowlayer/engine/repository"
)

func (s *Store) ActivitiesByInstance(ctx context.Context, processInstanceID string) ([]repository.HistoryActivity, error) {
	var rows []struct {
		ExecutionID string    `db:"execution_id"`
		EventType   string    `db:"event_type"`
		Payload     []byte    `db:"payload"`
		CreateTime  time.Time `db:"create_time"`
	}
	if err := s.Querier(ctx).SelectContext(ctx, &rows, `
		SELECT execution_id, event_type, payload, create_time FROM outbox_events
		WHERE process_instance_id = $1 AND event_type IN ('ACTIVITY_STARTED', 'ACTIVITY_COMPLETED')
		ORDER BY create_time ASC
	`, processInstanceID); err != nil {
		return nil, err
	}

	byExecution := make(map[string]*repository.HistoryActivity)
	var order []string
	for _, r := range rows {
		act, ok := byExecution[r.ExecutionID]
		if !ok {
			act = &repository.HistoryActivity{ProcessInstanceID: processInstanceID, ExecutionID: r.ExecutionID}
			act.ElementID = gjson.GetBytes(r.Payload, "elementId").String()
			byExecution[r.ExecutionID] = act
			order = append(order, r.ExecutionID)
		}
		switch r.EventType {
		case "ACTIVITY_STARTED":
			act.StartTime = r.CreateTime
		case "ACTIVITY_COMPLETED":
			act.EndTime = r.CreateTime
		}
	}
	out := make([]repository.HistoryActivity, 0, len(order))
	for _, id := range order {
		out = append(out, *byExecution[id])
	}
	return out, nil
}
