package push

import (
	"log/slog"
	"testing"
	"time"

	"fridgeio/internal/database"
	"fridgeio/internal/docstore"
	"fridgeio/internal/model"
	"fridgeio/internal/store"
)

type fakeSender struct {
	sent []sentNotification
}

type sentNotification struct {
	identity string
	n        Notification
}

func (f *fakeSender) SendToIdentity(identity string, n Notification) {
	f.sent = append(f.sent, sentNotification{identity, n})
}

func setupScheduler(t *testing.T) (*Scheduler, *docstore.Store, *fakeSender) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.Default()
	docs := docstore.New(db, logger)
	sender := &fakeSender{}
	sched := NewScheduler(docs, sender, store.NewPushStore(db), time.Minute, logger)
	return sched, docs, sender
}

func addGrocery(t *testing.T, docs *docstore.Store, path, name, owner string, expiry time.Time) string {
	t.Helper()
	g := model.Grocery{Name: name, Category: model.CategoryDairy, Expiry: expiry, Amount: "1", Owner: owner}
	id, err := docs.Add(path, g.Fields())
	if err != nil {
		t.Fatalf("add grocery: %v", err)
	}
	return id
}

func TestSweepSendsForItemsInWindow(t *testing.T) {
	sched, docs, sender := setupScheduler(t)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	addGrocery(t, docs, "users/u1/groceries", "milk", "alice", now.Add(6*time.Hour))
	addGrocery(t, docs, "users/u1/groceries", "rice", "alice", now.Add(30*24*time.Hour))
	addGrocery(t, docs, "users/u2/groceries", "yoghurt", "bob", now.Add(23*time.Hour))
	// Already expired: no reminder.
	addGrocery(t, docs, "users/u2/groceries", "old cheese", "bob", now.Add(-time.Hour))

	if err := sched.Sweep(now); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("sent %d notifications, want 2: %v", len(sender.sent), sender.sent)
	}
	if sender.sent[0].identity != "alice" || sender.sent[1].identity != "bob" {
		t.Errorf("recipients = %s, %s", sender.sent[0].identity, sender.sent[1].identity)
	}
	if got := sender.sent[0].n.Body; got == "" {
		t.Error("notification body is empty")
	}
}

func TestSweepSendsOncePerItem(t *testing.T) {
	sched, docs, sender := setupScheduler(t)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	addGrocery(t, docs, "users/u1/groceries", "milk", "alice", now.Add(6*time.Hour))

	if err := sched.Sweep(now); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if err := sched.Sweep(now.Add(time.Hour)); err != nil {
		t.Fatalf("second sweep: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(sender.sent))
	}
}

func TestChangedExpiryRearmsReminder(t *testing.T) {
	sched, docs, sender := setupScheduler(t)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	id := addGrocery(t, docs, "users/u1/groceries", "milk", "alice", now.Add(6*time.Hour))
	if err := sched.Sweep(now); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	// Pushing the expiry out and letting it come due again fires a second
	// reminder, since the sent key includes the expiry.
	newExpiry := now.Add(48 * time.Hour)
	if err := docs.Update("users/u1/groceries", id, map[string]any{
		"expiry": newExpiry.UTC().Format(time.RFC3339),
	}); err != nil {
		t.Fatalf("update expiry: %v", err)
	}

	if err := sched.Sweep(now.Add(36 * time.Hour)); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("sent %d notifications, want 2", len(sender.sent))
	}
}

func TestSweepSkipsMalformedDocuments(t *testing.T) {
	sched, docs, sender := setupScheduler(t)
	now := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	if _, err := docs.Add("users/u1/groceries", map[string]any{"name": 42}); err != nil {
		t.Fatalf("add malformed doc: %v", err)
	}
	addGrocery(t, docs, "users/u1/groceries", "milk", "alice", now.Add(6*time.Hour))

	if err := sched.Sweep(now); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(sender.sent))
	}
}
