package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Writer appends lifecycle events inside the caller's transaction, so the
// audit trail commits or rolls back together with the primary mutation.
type Writer struct {
	DB  *sql.DB
	Now func() time.Time
}

type EventPayload map[string]any

// Event types recorded by the engine.
const (
	TypeProjectCreated   = "project.created"
	TypeProjectAssigned  = "project.assigned"
	TypeProjectCompleted = "project.completed"
	TypeProjectCancelled = "project.cancelled"
	TypeQuoteSubmitted   = "quote.submitted"
	TypeQuoteUpdated     = "quote.updated"
	TypeQuoteWithdrawn   = "quote.withdrawn"
	TypeConversationNew  = "conversation.created"
	TypeMessagePosted    = "message.posted"
)

func (w Writer) Append(ctx context.Context, tx *sql.Tx, evtType, projectID, entityKind, entityID, actorID string, payload EventPayload) error {
	now := w.Now
	if now == nil {
		now = time.Now
	}
	ts := now().UTC().Format(time.RFC3339)
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO events(ts,type,project_id,entity_kind,entity_id,actor_id,payload_json) VALUES (?,?,?,?,?,?,?)`,
		ts, evtType, nullable(projectID), entityKind, nullable(entityID), actorID, string(data))
	return err
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
