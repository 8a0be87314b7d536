package favorites

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"fridgeio/internal/model"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), slog.Default())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func recipe(name string) model.RecipeResult {
	return model.RecipeResult{
		Name:            name,
		IngredientLines: []string{"some ingredient"},
		Calories:        100,
	}
}

func TestAddListRemove(t *testing.T) {
	s := setupStore(t)

	if err := s.Add("u1", recipe("Omelette")); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.Add("u1", recipe("Pancakes")); err != nil {
		t.Fatalf("add: %v", err)
	}
	// Duplicate name is a no-op.
	if err := s.Add("u1", recipe("Omelette")); err != nil {
		t.Fatalf("add duplicate: %v", err)
	}

	favs, err := s.List("u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(favs) != 2 || favs[0].Name != "Omelette" || favs[1].Name != "Pancakes" {
		t.Fatalf("favs = %v", favs)
	}

	if err := s.Remove("u1", "Omelette"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove("u1", "NotThere"); err != nil {
		t.Fatalf("remove absent: %v", err)
	}

	favs, _ = s.List("u1")
	if len(favs) != 1 || favs[0].Name != "Pancakes" {
		t.Fatalf("favs after remove = %v", favs)
	}
}

func TestListEmptyUser(t *testing.T) {
	s := setupStore(t)

	favs, err := s.List("nobody")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(favs) != 0 {
		t.Fatalf("favs = %v, want empty", favs)
	}
}

func TestToggle(t *testing.T) {
	s := setupStore(t)

	on, err := s.Toggle("u1", recipe("Omelette"))
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !on {
		t.Fatal("first toggle should favourite")
	}

	if fav, _ := s.IsFavorite("u1", "Omelette"); !fav {
		t.Fatal("expected favourite after toggle on")
	}

	on, err = s.Toggle("u1", recipe("Omelette"))
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if on {
		t.Fatal("second toggle should unfavourite")
	}
	if fav, _ := s.IsFavorite("u1", "Omelette"); fav {
		t.Fatal("expected not favourite after toggle off")
	}
}

func TestUsersAreIsolated(t *testing.T) {
	s := setupStore(t)

	s.Add("u1", recipe("Omelette"))
	s.Add("u2", recipe("Pancakes"))

	u1, _ := s.List("u1")
	u2, _ := s.List("u2")
	if len(u1) != 1 || u1[0].Name != "Omelette" {
		t.Errorf("u1 favs = %v", u1)
	}
	if len(u2) != 1 || u2[0].Name != "Pancakes" {
		t.Errorf("u2 favs = %v", u2)
	}
}

func TestCorruptFileResets(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(dir, slog.Default())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "u1.json"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	favs, err := s.List("u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(favs) != 0 {
		t.Fatalf("favs = %v, want empty after reset", favs)
	}

	// The store stays writable.
	if err := s.Add("u1", recipe("Omelette")); err != nil {
		t.Fatalf("add after corrupt read: %v", err)
	}
}

func TestDelete(t *testing.T) {
	s := setupStore(t)

	s.Add("u1", recipe("Omelette"))
	if err := s.Delete("u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	favs, _ := s.List("u1")
	if len(favs) != 0 {
		t.Fatalf("favs = %v after delete", favs)
	}
	// Deleting an absent file is a no-op.
	if err := s.Delete("nobody"); err != nil {
		t.Fatalf("delete absent: %v", err)
	}
}

func TestConcurrentToggles(t *testing.T) {
	s := setupStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			name := string(rune('A' + n))
			if err := s.Add("u1", recipe(name)); err != nil {
				t.Errorf("add %s: %v", name, err)
			}
		}(i)
	}
	wg.Wait()

	favs, err := s.List("u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(favs) != 8 {
		t.Fatalf("got %d favourites, want 8", len(favs))
	}
}
