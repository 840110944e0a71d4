package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	middleware "github.com/markdave123-py/smartbot/internal/api/middlewares"
	"github.com/markdave123-py/smartbot/internal/services"
)

type HistoryHandler struct {
	history *services.HistoryService
	logger  *zap.Logger
}

func NewHistoryHandler(history *services.HistoryService, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{history: history, logger: logger.Named("history")}
}

func (h *HistoryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	out, err := h.history.History(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HistoryHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	out, err := h.history.Export(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HistoryHandler) Clear(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	n, err := h.history.Clear(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"message": "Chat history cleared", "deleted": n})
}

func (h *HistoryHandler) DeleteOne(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	if err := h.history.DeleteRecord(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Message deleted"})
}

func (h *HistoryHandler) Analytics(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.UserIDFromContext(r.Context())
	out, err := h.history.Analytics(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
