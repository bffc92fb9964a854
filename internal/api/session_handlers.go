package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/yegors/interview-scribe/internal/storage/sqlite"
	"github.com/yegors/interview-scribe/pkg/logger"
)

// HandleWebSocket subscribes a websocket connection to a session's progress
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		http.Error(w, "Missing session ID", http.StatusBadRequest)
		return
	}

	h.logger.Debug("WebSocket connection request received", logger.String("session_id", sessionID))
	h.sockets.HandleSession(w, r, sessionID)
}

// GetProgress returns the latest progress event of a session
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	ev, ok := h.progress.Snapshot(sessionID)
	if !ok {
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: "no progress for session " + sessionID})
		return
	}
	WriteJSON(w, http.StatusOK, ev)
}

// GetJobs returns recorded jobs with pagination
func (h *Handler) GetJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePaginationParams(r)

	jobs, err := h.jobs.List(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("Failed to retrieve jobs", logger.Error(err))
		http.Error(w, "Failed to retrieve jobs", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"timestamp": time.Now(),
		"count":     len(jobs),
		"jobs":      jobs,
	})
}

// GetJob returns a single job
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	job, err := h.jobs.Get(r.Context(), id)
	if errors.Is(err, sqlite.ErrJobNotFound) {
		WriteJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
		return
	}
	if err != nil {
		h.logger.Error("Failed to retrieve job", logger.String("id", id), logger.Error(err))
		http.Error(w, "Failed to retrieve job", http.StatusInternalServerError)
		return
	}

	WriteJSON(w, http.StatusOK, job)
}

func parsePaginationParams(r *http.Request) (int, int) {
	limit := 100 // Default limit
	offset := 0  // Default offset

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = l
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	return limit, offset
}
