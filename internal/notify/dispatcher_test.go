package notify_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"gigline/internal/db"
	"gigline/internal/domain"
	"gigline/internal/fault"
	"gigline/internal/migrate"
	"gigline/internal/notify"
	"gigline/internal/repo"
)

func newDispatcher(t *testing.T) (*notify.Dispatcher, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	d := notify.New(repo.Repo{DB: conn}, log.New(io.Discard, "", 0), 2, 16)
	d.Now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return d, context.Background()
}

func TestDispatchPersistsPerRecipient(t *testing.T) {
	d, ctx := newDispatcher(t)
	d.Dispatch([]string{"alice", "bob", ""}, domain.CategoryJob, "Project assigned", "details", map[string]string{"project_id": "p1"})
	d.Flush()

	for _, user := range []string{"alice", "bob"} {
		items, err := d.List(ctx, user, 10)
		if err != nil {
			t.Fatalf("list %s: %v", user, err)
		}
		if len(items) != 1 {
			t.Fatalf("%s has %d records, want 1", user, len(items))
		}
		n := items[0]
		if n.Category != domain.CategoryJob || n.Title != "Project assigned" || n.Metadata["project_id"] != "p1" {
			t.Fatalf("unexpected record: %+v", n)
		}
		if n.IsRead || n.IsSeen {
			t.Fatalf("new record should be unread and unseen: %+v", n)
		}
	}
}

func TestDispatchRejectsUnknownCategory(t *testing.T) {
	d, ctx := newDispatcher(t)
	d.Dispatch([]string{"alice"}, domain.NotificationCategory("marketing"), "spam", "", nil)
	d.Flush()
	items, err := d.List(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("unknown category persisted %d records", len(items))
	}
}

func TestCountsReadAndSeen(t *testing.T) {
	d, ctx := newDispatcher(t)
	d.Dispatch([]string{"alice"}, domain.CategoryQuote, "one", "", nil)
	d.Dispatch([]string{"alice"}, domain.CategoryQuote, "two", "", nil)
	d.Dispatch([]string{"alice"}, domain.CategoryQuote, "three", "", nil)
	d.Flush()

	counts, err := d.Counts(ctx, "alice")
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts.Total != 3 || counts.Unread != 3 || counts.Unseen != 3 {
		t.Fatalf("counts = %+v", counts)
	}

	items, _ := d.List(ctx, "alice", 10)
	if err := d.MarkRead(ctx, items[0].ID, "alice"); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	// Idempotent.
	if err := d.MarkRead(ctx, items[0].ID, "alice"); err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	if err := d.MarkAllSeen(ctx, "alice"); err != nil {
		t.Fatalf("mark all seen: %v", err)
	}
	counts, _ = d.Counts(ctx, "alice")
	if counts.Total != 3 || counts.Unread != 2 || counts.Unseen != 0 {
		t.Fatalf("counts after read+seen = %+v", counts)
	}

	if err := d.MarkAllRead(ctx, "alice"); err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	counts, _ = d.Counts(ctx, "alice")
	if counts.Unread != 0 {
		t.Fatalf("unread after mark-all = %d", counts.Unread)
	}
}

func TestOwnershipChecks(t *testing.T) {
	d, ctx := newDispatcher(t)
	d.Dispatch([]string{"alice"}, domain.CategorySystem, "hello", "", nil)
	d.Flush()
	items, _ := d.List(ctx, "alice", 10)

	var fe fault.ForbiddenError
	if err := d.MarkRead(ctx, items[0].ID, "bob"); !errors.As(err, &fe) {
		t.Fatalf("expected forbidden for foreign mark-read, got %v", err)
	}
	if err := d.SoftDelete(ctx, items[0].ID, "bob"); !errors.As(err, &fe) {
		t.Fatalf("expected forbidden for foreign delete, got %v", err)
	}
	var nf fault.NotFoundError
	if err := d.MarkRead(ctx, "missing", "alice"); !errors.As(err, &nf) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSoftDeleteAndSweep(t *testing.T) {
	d, ctx := newDispatcher(t)
	d.Dispatch([]string{"alice"}, domain.CategorySystem, "keep", "", nil)
	d.Dispatch([]string{"alice"}, domain.CategorySystem, "drop", "", nil)
	d.Flush()

	items, _ := d.List(ctx, "alice", 10)
	var dropID string
	for _, n := range items {
		if n.Title == "drop" {
			dropID = n.ID
		}
	}
	if err := d.SoftDelete(ctx, dropID, "alice"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	items, _ = d.List(ctx, "alice", 10)
	if len(items) != 1 || items[0].Title != "keep" {
		t.Fatalf("soft-deleted record still listed: %+v", items)
	}
	counts, _ := d.Counts(ctx, "alice")
	if counts.Total != 1 {
		t.Fatalf("counts include deleted record: %+v", counts)
	}

	removed, err := d.Sweep(ctx, 90*24*time.Hour)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if removed != 1 {
		t.Fatalf("sweep removed %d, want 1", removed)
	}
}
