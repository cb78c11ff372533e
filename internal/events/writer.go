package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Event types appended by the engine.
const (
	AuthorCreated    = "author.created"
	AuthorReassigned = "author.boss.reassigned"
	TaskCreated      = "task.created"
	TaskStateUpdated = "task.state.updated"
	PostCreated      = "post.created"
	CommentCreated   = "comment.created"
)

// Entity kinds.
const (
	KindAuthor  = "author"
	KindTask    = "task"
	KindPost    = "post"
	KindComment = "comment"
)

type Payload map[string]any

// Record is one change to append to the log.
type Record struct {
	Type       string
	EntityKind string
	EntityID   int64
	Actor      string
	Payload    Payload
}

// Writer appends records inside the caller's transaction so an event exists
// if and only if its change was committed.
type Writer struct {
	Now func() time.Time
}

func (w Writer) Append(ctx context.Context, tx *sql.Tx, r Record) error {
	if r.Type == "" || r.EntityKind == "" {
		return errors.New("event type and entity kind are required")
	}
	if r.Actor == "" {
		return fmt.Errorf("event %s: actor is required", r.Type)
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	payload := r.Payload
	if payload == nil {
		payload = Payload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("event %s payload: %w", r.Type, err)
	}
	var entityID any
	if r.EntityID != 0 {
		entityID = strconv.FormatInt(r.EntityID, 10)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO events(ts, type, entity_kind, entity_id, actor_id, payload_json) VALUES (?, ?, ?, ?, ?, ?)`,
		now().UTC().Format(time.RFC3339), r.Type, r.EntityKind, entityID, r.Actor, string(data))
	if err != nil {
		return fmt.Errorf("append %s event: %w", r.Type, err)
	}
	return nil
}
