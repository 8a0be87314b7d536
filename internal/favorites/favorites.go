package favorites

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"fridgeio/internal/model"
)

// Store keeps each user's favourite recipes in a JSON file on disk, one file
// per identity. Recipes are identified by name. File access goes through an
// advisory lock so concurrent requests for the same user serialize their
// read-modify-write cycles.
type Store struct {
	dir    string
	logger *slog.Logger
}

func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create favourites dir: %w", err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

func (s *Store) dataPath(identity string) string {
	return filepath.Join(s.dir, identity+".json")
}

func (s *Store) lockPath(identity string) string {
	return filepath.Join(s.dir, identity+".lock")
}

// List returns the user's favourites in the order they were added. A user
// with no favourites file has an empty list.
func (s *Store) List(identity string) ([]model.RecipeResult, error) {
	lock := flock.New(s.lockPath(identity))
	if err := lock.RLock(); err != nil {
		return nil, fmt.Errorf("lock favourites: %w", err)
	}
	defer lock.Unlock()

	return s.read(identity)
}

// Add appends a recipe to the user's favourites. Adding a recipe whose name
// is already present is a no-op.
func (s *Store) Add(identity string, recipe model.RecipeResult) error {
	_, err := s.update(identity, func(favs []model.RecipeResult) []model.RecipeResult {
		for _, f := range favs {
			if f.Name == recipe.Name {
				return favs
			}
		}
		return append(favs, recipe)
	})
	return err
}

// Remove drops the recipe with the given name. Removing an absent name is a
// no-op.
func (s *Store) Remove(identity, name string) error {
	_, err := s.update(identity, func(favs []model.RecipeResult) []model.RecipeResult {
		kept := favs[:0]
		for _, f := range favs {
			if f.Name != name {
				kept = append(kept, f)
			}
		}
		return kept
	})
	return err
}

// Toggle adds the recipe if absent and removes it if present. It reports
// whether the recipe is a favourite after the call.
func (s *Store) Toggle(identity string, recipe model.RecipeResult) (bool, error) {
	favorited := false
	_, err := s.update(identity, func(favs []model.RecipeResult) []model.RecipeResult {
		for i, f := range favs {
			if f.Name == recipe.Name {
				return append(favs[:i], favs[i+1:]...)
			}
		}
		favorited = true
		return append(favs, recipe)
	})
	return favorited, err
}

// IsFavorite reports whether a recipe name is in the user's favourites.
func (s *Store) IsFavorite(identity, name string) (bool, error) {
	favs, err := s.List(identity)
	if err != nil {
		return false, err
	}
	for _, f := range favs {
		if f.Name == name {
			return true, nil
		}
	}
	return false, nil
}

// Delete removes the user's favourites file entirely. Used when the account
// is deleted.
func (s *Store) Delete(identity string) error {
	lock := flock.New(s.lockPath(identity))
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock favourites: %w", err)
	}
	defer lock.Unlock()

	if err := os.Remove(s.dataPath(identity)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove favourites: %w", err)
	}
	return nil
}

// update runs one locked read-modify-write cycle.
func (s *Store) update(identity string, mutate func([]model.RecipeResult) []model.RecipeResult) ([]model.RecipeResult, error) {
	lock := flock.New(s.lockPath(identity))
	if err := lock.Lock(); err != nil {
		return nil, fmt.Errorf("lock favourites: %w", err)
	}
	defer lock.Unlock()

	favs, err := s.read(identity)
	if err != nil {
		return nil, err
	}

	favs = mutate(favs)
	if err := s.write(identity, favs); err != nil {
		return nil, err
	}
	return favs, nil
}

func (s *Store) read(identity string) ([]model.RecipeResult, error) {
	data, err := os.ReadFile(s.dataPath(identity))
	if errors.Is(err, fs.ErrNotExist) {
		return []model.RecipeResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read favourites: %w", err)
	}

	var favs []model.RecipeResult
	if err := json.Unmarshal(data, &favs); err != nil {
		// A corrupt file loses the favourites rather than wedging every
		// request for this user.
		s.logger.Error("corrupt favourites file, resetting", "identity", identity, "error", err)
		return []model.RecipeResult{}, nil
	}
	return favs, nil
}

func (s *Store) write(identity string, favs []model.RecipeResult) error {
	data, err := json.MarshalIndent(favs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal favourites: %w", err)
	}

	tmp := s.dataPath(identity) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write favourites: %w", err)
	}
	if err := os.Rename(tmp, s.dataPath(identity)); err != nil {
		return fmt.Errorf("replace favourites: %w", err)
	}
	return nil
}
