package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"fridgeio/internal/auth"
	"fridgeio/internal/controller"
)

type GroceryListHandler struct {
	registry *controller.Registry
	logger   *slog.Logger
}

func NewGroceryListHandler(registry *controller.Registry, logger *slog.Logger) *GroceryListHandler {
	return &GroceryListHandler{registry: registry, logger: logger}
}

func (h *GroceryListHandler) controllerFor(r *http.Request) *controller.Controller {
	return h.registry.GetOrResume(auth.Identity(r.Context()))
}

func (h *GroceryListHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.controllerFor(r).GroceryLists())
}

type listRequest struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func (h *GroceryListHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req listRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respondError(w, http.StatusBadRequest, "Name is required.")
		return
	}

	list, err := h.controllerFor(r).AddGroceryList(req.Name, req.Items)
	if err != nil {
		h.respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, list)
}

type listItemsRequest struct {
	Items []string `json:"items"`
}

// Update replaces a list's line items. The name is fixed at creation.
func (h *GroceryListHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req listItemsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.controllerFor(r).EditGroceryList(r.PathValue("id"), req.Items); err != nil {
		h.respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *GroceryListHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.controllerFor(r).DeleteGroceryList(r.PathValue("id")); err != nil {
		h.respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *GroceryListHandler) respondOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, controller.ErrNotSignedIn):
		respondError(w, http.StatusUnauthorized, "Not signed in.")
	case errors.Is(err, controller.ErrDuplicateListName):
		respondError(w, http.StatusConflict, err.Error())
	case strings.Contains(err.Error(), "no document"):
		respondError(w, http.StatusNotFound, "No such grocery list.")
	default:
		h.logger.Error("grocery list operation", "error", err)
		respondError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
	}
}
