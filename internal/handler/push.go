package handler

import (
	"log/slog"
	"net/http"

	"fridgeio/internal/auth"
	"fridgeio/internal/push"
	"fridgeio/internal/store"
)

type PushHandler struct {
	service *push.Service
	subs    *store.PushStore
	logger  *slog.Logger
}

func NewPushHandler(service *push.Service, subs *store.PushStore, logger *slog.Logger) *PushHandler {
	return &PushHandler{service: service, subs: subs, logger: logger}
}

// PublicKey hands out the VAPID public key browsers subscribe with.
func (h *PushHandler) PublicKey(w http.ResponseWriter, r *http.Request) {
	if !h.service.Configured() {
		respondError(w, http.StatusNotImplemented, "Push notifications are not configured.")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"publicKey": h.service.PublicKey()})
}

type subscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

func (h *PushHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Endpoint == "" || req.Keys.P256dh == "" || req.Keys.Auth == "" {
		respondError(w, http.StatusBadRequest, "Endpoint and keys are required.")
		return
	}

	identity := auth.Identity(r.Context())
	if err := h.subs.Save(identity, req.Endpoint, req.Keys.P256dh, req.Keys.Auth); err != nil {
		h.logger.Error("save push subscription", "error", err)
		respondError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "subscribed"})
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (h *PushHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.subs.DeleteEndpoint(req.Endpoint); err != nil {
		h.logger.Error("delete push subscription", "error", err)
		respondError(w, http.StatusInternalServerError, "Something went wrong. Please try again.")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}
