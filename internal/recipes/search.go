package recipes

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"fridgeio/internal/model"
)

const (
	// targetResults is how many suggestions a pantry search tries to gather
	// before returning.
	targetResults = 20
	// maxPages bounds the number of randomized pages fetched when the
	// service keeps returning recipes that miss the pantry threshold.
	maxPages = 8
)

// Searcher runs pantry-driven recipe searches. Only one search is in flight
// at a time: starting a new one cancels the previous, so a burst of searches
// settles on the latest.
type Searcher struct {
	client *Client
	logger *slog.Logger

	mu      sync.Mutex
	current *inflight
}

type inflight struct {
	cancel context.CancelFunc
}

func NewSearcher(client *Client, logger *slog.Logger) *Searcher {
	return &Searcher{client: client, logger: logger}
}

// SearchByPantry gathers recipes whose ingredient lines overlap the given
// grocery names. It fetches randomized pages until it has targetResults
// unique recipes or runs out of pages. Recipes are deduplicated by name.
func (s *Searcher) SearchByPantry(ctx context.Context, groceryNames []string) ([]model.RecipeResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	token := &inflight{cancel: cancel}

	s.mu.Lock()
	if s.current != nil {
		s.current.cancel()
	}
	s.current = token
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		if s.current == token {
			s.current = nil
		}
		s.mu.Unlock()
	}()

	query := strings.Join(groceryNames, " ")

	seen := make(map[string]struct{})
	var results []model.RecipeResult

	for page := 0; page < maxPages && len(results) < targetResults; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		hits, err := s.client.Search(ctx, query)
		if err != nil {
			return nil, err
		}

		added := 0
		for _, recipe := range hits {
			if !MatchesPantry(groceryNames, recipe) {
				continue
			}
			if _, dup := seen[recipe.Name]; dup {
				continue
			}
			seen[recipe.Name] = struct{}{}
			results = append(results, recipe)
			added++
			if len(results) >= targetResults {
				break
			}
		}

		s.logger.Debug("pantry search page",
			"page", page, "hits", len(hits), "added", added, "total", len(results))

		// A page with no hits at all means further random pages are
		// unlikely to help.
		if len(hits) == 0 {
			break
		}
	}

	return results, nil
}
