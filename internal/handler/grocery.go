package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"fridgeio/internal/auth"
	"fridgeio/internal/controller"
	"fridgeio/internal/model"
)

type GroceryHandler struct {
	registry *controller.Registry
	logger   *slog.Logger
}

func NewGroceryHandler(registry *controller.Registry, logger *slog.Logger) *GroceryHandler {
	return &GroceryHandler{registry: registry, logger: logger}
}

func (h *GroceryHandler) controllerFor(r *http.Request) *controller.Controller {
	return h.registry.GetOrResume(auth.Identity(r.Context()))
}

func (h *GroceryHandler) List(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.controllerFor(r).Groceries())
}

type groceryRequest struct {
	Name     string `json:"name"`
	Category int    `json:"category"`
	Expiry   string `json:"expiry"`
	Amount   string `json:"amount"`
}

func (req *groceryRequest) validate() (model.Category, time.Time, string) {
	if strings.TrimSpace(req.Name) == "" {
		return 0, time.Time{}, "Name is required."
	}
	category := model.Category(req.Category)
	if !category.Valid() {
		return 0, time.Time{}, "Unknown category."
	}
	expiry, err := time.Parse(time.RFC3339, req.Expiry)
	if err != nil {
		return 0, time.Time{}, "Expiry must be an RFC 3339 timestamp."
	}
	return category, expiry, ""
}

func (h *GroceryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req groceryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	category, expiry, msg := req.validate()
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	g, err := h.controllerFor(r).AddGrocery(req.Name, category, expiry, req.Amount)
	if err != nil {
		h.respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, g)
}

func (h *GroceryHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req groceryRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	category, expiry, msg := req.validate()
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	if err := h.controllerFor(r).EditGrocery(r.PathValue("id"), req.Name, category, expiry, req.Amount); err != nil {
		h.respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *GroceryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.controllerFor(r).DeleteGrocery(r.PathValue("id")); err != nil {
		h.respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type moveRequest struct {
	To int `json:"to"`
}

func (h *GroceryHandler) Move(w http.ResponseWriter, r *http.Request) {
	var req moveRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.controllerFor(r).MoveGrocery(r.PathValue("id"), req.To); err != nil {
		h.respondOpError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "moved"})
}

func (h *GroceryHandler) respondOpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, controller.ErrNotSignedIn):
		respondError(w, http.StatusUnauthorized, "Not signed in.")
	case strings.Contains(err.Error(), "no grocery"):
		respondError(w, http.StatusNotFound, "No such grocery.")
	case strings.Contains(err.Error(), "out of range"):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("grocery operation", "error", err)
		respondError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
	}
}
