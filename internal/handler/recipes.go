package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"fridgeio/internal/auth"
	"fridgeio/internal/controller"
	"fridgeio/internal/favorites"
	"fridgeio/internal/model"
	"fridgeio/internal/recipes"
)

type RecipesHandler struct {
	client    *recipes.Client
	searcher  *recipes.Searcher
	favorites *favorites.Store
	registry  *controller.Registry
	logger    *slog.Logger
}

func NewRecipesHandler(
	client *recipes.Client,
	searcher *recipes.Searcher,
	favStore *favorites.Store,
	registry *controller.Registry,
	logger *slog.Logger,
) *RecipesHandler {
	return &RecipesHandler{
		client:    client,
		searcher:  searcher,
		favorites: favStore,
		registry:  registry,
		logger:    logger,
	}
}

// recipeView decorates a search result with the caller's favourite flag.
type recipeView struct {
	model.RecipeResult
	Favorite bool `json:"favorite"`
}

func (h *RecipesHandler) decorate(identity string, results []model.RecipeResult) []recipeView {
	favs, err := h.favorites.List(identity)
	if err != nil {
		h.logger.Error("load favourites", "error", err)
		favs = nil
	}
	byName := make(map[string]struct{}, len(favs))
	for _, f := range favs {
		byName[f.Name] = struct{}{}
	}

	views := make([]recipeView, len(results))
	for i, r := range results {
		_, fav := byName[r.Name]
		views[i] = recipeView{RecipeResult: r, Favorite: fav}
	}
	return views
}

// Search runs a free-text recipe search.
func (h *RecipesHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		respondError(w, http.StatusBadRequest, "Query parameter q is required.")
		return
	}

	results, err := h.client.Search(r.Context(), query)
	if err != nil {
		h.logger.Error("recipe search", "error", err)
		respondError(w, http.StatusBadGateway, "Recipe search is unavailable right now.")
		return
	}
	respondJSON(w, http.StatusOK, h.decorate(auth.Identity(r.Context()), results))
}

// Pantry suggests recipes matching the caller's current groceries.
func (h *RecipesHandler) Pantry(w http.ResponseWriter, r *http.Request) {
	identity := auth.Identity(r.Context())

	groceries := h.registry.GetOrResume(identity).Groceries()
	if len(groceries) == 0 {
		respondJSON(w, http.StatusOK, []recipeView{})
		return
	}

	names := make([]string, len(groceries))
	for i, g := range groceries {
		names[i] = g.Name
	}

	results, err := h.searcher.SearchByPantry(r.Context(), names)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Superseded by a newer search.
			respondError(w, http.StatusConflict, "Search superseded by a newer request.")
			return
		}
		h.logger.Error("pantry search", "error", err)
		respondError(w, http.StatusBadGateway, "Recipe search is unavailable right now.")
		return
	}
	respondJSON(w, http.StatusOK, h.decorate(identity, results))
}

// Favorites returns the caller's saved recipes.
func (h *RecipesHandler) Favorites(w http.ResponseWriter, r *http.Request) {
	favs, err := h.favorites.List(auth.Identity(r.Context()))
	if err != nil {
		h.logger.Error("list favourites", "error", err)
		respondError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	respondJSON(w, http.StatusOK, favs)
}

// ToggleFavorite flips a recipe in or out of the caller's favourites.
func (h *RecipesHandler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	var recipe model.RecipeResult
	if err := decodeJSON(r, &recipe); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if recipe.Name == "" {
		respondError(w, http.StatusBadRequest, "Recipe name is required.")
		return
	}

	favorited, err := h.favorites.Toggle(auth.Identity(r.Context()), recipe)
	if err != nil {
		h.logger.Error("toggle favourite", "error", err)
		respondError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"favorite": favorited})
}
