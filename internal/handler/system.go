package handler

import (
	"log/slog"
	"net/http"

	"fridgeio/internal/backup"
)

type SystemHandler struct {
	backups *backup.Manager
	logger  *slog.Logger
}

func NewSystemHandler(backups *backup.Manager, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{backups: backups, logger: logger}
}

func (h *SystemHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *SystemHandler) BackupStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.backups.Status())
}

func (h *SystemHandler) RunBackup(w http.ResponseWriter, r *http.Request) {
	if !h.backups.Enabled() {
		respondError(w, http.StatusNotImplemented, "Backups are not configured.")
		return
	}

	key, err := h.backups.RunNow(r.Context())
	if err != nil {
		h.logger.Error("manual backup", "error", err)
		respondError(w, http.StatusInternalServerError, "Backup failed.")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"key": key})
}
