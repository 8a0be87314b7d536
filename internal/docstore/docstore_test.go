package docstore

import (
	"log/slog"
	"testing"
	"time"

	"fridgeio/internal/database"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db, slog.Default())
}

func nextBatch(t *testing.T, sub *Subscription) Batch {
	t.Helper()
	select {
	case batch, ok := <-sub.Updates():
		if !ok {
			t.Fatal("subscription closed unexpectedly")
		}
		return batch
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
		return nil
	}
}

func TestAddGetList(t *testing.T) {
	s := setupTestStore(t)

	id1, err := s.Add("users/u1/groceries", map[string]any{"name": "Milk"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	id2, err := s.Add("users/u1/groceries", map[string]any{"name": "Eggs"})
	if err != nil {
		t.Fatalf("add: %v", err)
	}

	doc, err := s.Get("users/u1/groceries", id1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Fields["name"] != "Milk" {
		t.Errorf("name = %v, want Milk", doc.Fields["name"])
	}

	docs, err := s.List("users/u1/groceries")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(docs) != 2 {
		t.Fatalf("expected 2 docs, got %d", len(docs))
	}
	// Insertion order.
	if docs[0].ID != id1 || docs[1].ID != id2 {
		t.Errorf("order = [%s %s], want [%s %s]", docs[0].ID, docs[1].ID, id1, id2)
	}
}

func TestUpdateMergesFields(t *testing.T) {
	s := setupTestStore(t)

	id, _ := s.Add("users/u1/groceries", map[string]any{"name": "Milk", "order": 0})
	if err := s.Update("users/u1/groceries", id, map[string]any{"order": 3}); err != nil {
		t.Fatalf("update: %v", err)
	}

	doc, _ := s.Get("users/u1/groceries", id)
	if doc.Fields["name"] != "Milk" {
		t.Errorf("name clobbered by partial update: %v", doc.Fields["name"])
	}
	if doc.Fields["order"] != float64(3) {
		t.Errorf("order = %v, want 3", doc.Fields["order"])
	}
}

func TestUpdateMissingDocument(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Update("users/u1/groceries", "nope", map[string]any{"order": 1}); err == nil {
		t.Fatal("expected error for missing document")
	}
}

func TestSubscribeReplaysSnapshot(t *testing.T) {
	s := setupTestStore(t)

	s.Add("users/u1/groceries", map[string]any{"name": "Milk"})
	s.Add("users/u1/groceries", map[string]any{"name": "Eggs"})

	sub, err := s.Subscribe("users/u1/groceries")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	batch := nextBatch(t, sub)
	if len(batch) != 2 {
		t.Fatalf("initial batch size = %d, want 2", len(batch))
	}
	for _, change := range batch {
		if change.Kind != ChangeAdded {
			t.Errorf("initial change kind = %v, want added", change.Kind)
		}
	}
	if batch[0].Doc.Fields["name"] != "Milk" {
		t.Errorf("first doc = %v", batch[0].Doc.Fields)
	}
}

func TestSubscribeEmptyCollection(t *testing.T) {
	s := setupTestStore(t)

	sub, err := s.Subscribe("users/u1/groceries")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	batch := nextBatch(t, sub)
	if len(batch) != 0 {
		t.Fatalf("expected empty initial batch, got %d changes", len(batch))
	}
}

func TestLiveChanges(t *testing.T) {
	s := setupTestStore(t)

	sub, _ := s.Subscribe("users/u1/groceries")
	defer sub.Close()
	nextBatch(t, sub) // drain initial snapshot

	id, _ := s.Add("users/u1/groceries", map[string]any{"name": "Milk"})
	batch := nextBatch(t, sub)
	if len(batch) != 1 || batch[0].Kind != ChangeAdded || batch[0].Doc.ID != id {
		t.Fatalf("added batch = %+v", batch)
	}

	s.Update("users/u1/groceries", id, map[string]any{"name": "Oat Milk"})
	batch = nextBatch(t, sub)
	if len(batch) != 1 || batch[0].Kind != ChangeModified {
		t.Fatalf("modified batch = %+v", batch)
	}
	if batch[0].Doc.Fields["name"] != "Oat Milk" {
		t.Errorf("modified doc carries stale fields: %v", batch[0].Doc.Fields)
	}
}

func TestRemovalReportsPriorIndex(t *testing.T) {
	s := setupTestStore(t)

	id1, _ := s.Add("users/u1/groceries", map[string]any{"name": "Milk"})
	id2, _ := s.Add("users/u1/groceries", map[string]any{"name": "Eggs"})
	id3, _ := s.Add("users/u1/groceries", map[string]any{"name": "Butter"})

	sub, _ := s.Subscribe("users/u1/groceries")
	defer sub.Close()
	nextBatch(t, sub)

	// Middle element: prior index 1.
	if err := s.Delete("users/u1/groceries", id2); err != nil {
		t.Fatalf("delete: %v", err)
	}
	batch := nextBatch(t, sub)
	if batch[0].Kind != ChangeRemoved || batch[0].OldIndex != 1 {
		t.Fatalf("removal = %+v, want removed at old index 1", batch[0])
	}

	// After the removal, id3 shifted down to index 1.
	s.Delete("users/u1/groceries", id3)
	batch = nextBatch(t, sub)
	if batch[0].OldIndex != 1 {
		t.Fatalf("second removal old index = %d, want 1", batch[0].OldIndex)
	}

	s.Delete("users/u1/groceries", id1)
	batch = nextBatch(t, sub)
	if batch[0].OldIndex != 0 {
		t.Fatalf("last removal old index = %d, want 0", batch[0].OldIndex)
	}
}

func TestDeleteMissingDocument(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Delete("users/u1/groceries", "nope"); err == nil {
		t.Fatal("expected error for missing document")
	}
}

func TestSubscriptionIsolationByPath(t *testing.T) {
	s := setupTestStore(t)

	sub, _ := s.Subscribe("users/u1/groceries")
	defer sub.Close()
	nextBatch(t, sub)

	s.Add("users/u2/groceries", map[string]any{"name": "Not yours"})

	select {
	case batch := <-sub.Updates():
		t.Fatalf("received foreign-collection batch: %+v", batch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCloseStopsDelivery(t *testing.T) {
	s := setupTestStore(t)

	sub, _ := s.Subscribe("users/u1/groceries")
	nextBatch(t, sub)
	sub.Close()
	sub.Close() // second close is a no-op

	if _, ok := <-sub.Updates(); ok {
		t.Fatal("expected closed channel")
	}

	// Writes after close must not panic.
	if _, err := s.Add("users/u1/groceries", map[string]any{"name": "Milk"}); err != nil {
		t.Fatalf("add after close: %v", err)
	}
}

func TestSlowSubscriberFeedClosed(t *testing.T) {
	s := setupTestStore(t)

	sub, err := s.Subscribe("users/u1/groceries")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	// Never read; the initial snapshot plus these writes overflow the
	// buffer and the store must close the feed rather than let the
	// subscriber serve a silently diverged view.
	for i := 0; i <= subscriptionBuffer; i++ {
		if _, err := s.Add("users/u1/groceries", map[string]any{"order": i}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	for {
		var open bool
		select {
		case _, open = <-sub.Updates():
		case <-time.After(2 * time.Second):
			t.Fatal("feed never closed for slow subscriber")
		}
		if !open {
			break
		}
	}
	sub.Close() // closing an already dropped feed is a no-op

	// A fresh subscription starts from a complete snapshot.
	fresh, err := s.Subscribe("users/u1/groceries")
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	defer fresh.Close()
	batch := nextBatch(t, fresh)
	if len(batch) != subscriptionBuffer+1 {
		t.Fatalf("fresh snapshot size = %d, want %d", len(batch), subscriptionBuffer+1)
	}
}

func TestCollections(t *testing.T) {
	s := setupTestStore(t)

	s.Add("users/u1/groceries", map[string]any{"name": "Milk"})
	s.Add("users/u2/groceries", map[string]any{"name": "Eggs"})
	s.Add("users/u1/groceryLists", map[string]any{"name": "Bake"})

	paths, err := s.Collections("users/%/groceries")
	if err != nil {
		t.Fatalf("collections: %v", err)
	}
	if len(paths) != 2 {
		t.Fatalf("paths = %v, want 2 grocery collections", paths)
	}
	for _, p := range paths {
		if p == "users/u1/groceryLists" {
			t.Errorf("pattern matched list collection %q", p)
		}
	}
}
