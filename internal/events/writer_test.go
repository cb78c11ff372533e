package events

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"orgchart/internal/db"
	"orgchart/internal/migrate"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

func TestAppendWritesRow(t *testing.T) {
	ctx := context.Background()
	conn := openDB(t)
	fixed := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	w := Writer{Now: func() time.Time { return fixed }}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := w.Append(ctx, tx, Record{Type: TaskStateUpdated, EntityKind: KindTask, EntityID: 9, Actor: "ops", Payload: Payload{"to": "finished"}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	var ts, typ, kind, actor, payload string
	var entityID sql.NullString
	err = conn.QueryRowContext(ctx, `SELECT ts, type, entity_kind, entity_id, actor_id, payload_json FROM events`).
		Scan(&ts, &typ, &kind, &entityID, &actor, &payload)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if ts != "2025-03-01T11:00:00Z" || typ != TaskStateUpdated || kind != KindTask || entityID.String != "9" || actor != "ops" {
		t.Fatalf("unexpected row: %s %s %s %v %s", ts, typ, kind, entityID, actor)
	}
	if payload != `{"to":"finished"}` {
		t.Fatalf("unexpected payload %s", payload)
	}
}

func TestAppendRolledBackWithChange(t *testing.T) {
	ctx := context.Background()
	conn := openDB(t)
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := (Writer{}).Append(ctx, tx, Record{Type: AuthorCreated, EntityKind: KindAuthor, Actor: "seed"}); err != nil {
		t.Fatalf("append: %v", err)
	}
	tx.Rollback()
	var n int
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no events after rollback, got %d", n)
	}
}

func TestAppendRejectsIncompleteRecords(t *testing.T) {
	ctx := context.Background()
	conn := openDB(t)
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	defer tx.Rollback()
	cases := []Record{
		{EntityKind: KindPost, Actor: "a"},
		{Type: PostCreated, Actor: "a"},
		{Type: PostCreated, EntityKind: KindPost},
	}
	for _, r := range cases {
		if err := (Writer{}).Append(ctx, tx, r); err == nil {
			t.Fatalf("expected error for %+v", r)
		}
	}
}
