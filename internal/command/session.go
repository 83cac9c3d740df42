package command

import (
	"net/http"

	"github.com/ashureev/desktop-core/internal/domain"
	"github.com/go-chi/chi/v5"
)

type createSessionRequest struct {
	AppName   string  `json:"appName"`
	UserID    string  `json:"userId"`
	SessionID *string `json:"sessionId,omitempty"`
}

// SessionCreate creates (or idempotently returns) a session.
func (h *Handler) SessionCreate(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AppName == "" || req.UserID == "" {
		Error(w, http.StatusBadRequest, "appName and userId are required")
		return
	}

	session, err := h.store.CreateSession(r.Context(), req.AppName, req.UserID, req.SessionID)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, session)
}

// SessionList lists sessions for an app/user pair.
func (h *Handler) SessionList(w http.ResponseWriter, r *http.Request) {
	appName := r.URL.Query().Get("appName")
	userID := r.URL.Query().Get("userId")
	if appName == "" || userID == "" {
		Error(w, http.StatusBadRequest, "appName and userId query params are required")
		return
	}

	sessions, err := h.store.ListSessions(r.Context(), appName, userID)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, sessions)
}

// SessionDelete deletes a session and its messages.
func (h *Handler) SessionDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	deleted, err := h.store.DeleteSession(r.Context(), id)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	JSON(w, http.StatusOK, domain.NewAck(true, "session deleted"))
}

// SessionMessagesGet returns a session's full message history.
func (h *Handler) SessionMessagesGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	messages, err := h.store.MessagesGet(r.Context(), id)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, messages)
}

type appendMessageRequest struct {
	Role   string `json:"role"`
	Text   string `json:"text"`
	Status string `json:"status"`
}

// SessionMessagesAppend appends one message to a session's history.
func (h *Handler) SessionMessagesAppend(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req appendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Role == "" || req.Text == "" {
		Error(w, http.StatusBadRequest, "role and text are required")
		return
	}

	message, err := h.store.MessageAppend(r.Context(), id, req.Role, req.Text, req.Status)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, message)
}

// SessionPhaseGet reports a session's current phase.
func (h *Handler) SessionPhaseGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	phase, _, err := h.store.PhaseGet(r.Context(), id)
	if err != nil {
		Error(w, http.StatusNotFound, err.Error())
		return
	}
	JSON(w, http.StatusOK, map[string]domain.SessionPhase{"phase": phase})
}

type setPhaseRequest struct {
	Phase    domain.SessionPhase `json:"phase"`
	ReadOnly bool                `json:"readOnly"`
}

// SessionPhaseSet overwrites a session's phase and read-only flag.
func (h *Handler) SessionPhaseSet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	var req setPhaseRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.store.PhaseSet(r.Context(), id, req.Phase, req.ReadOnly); err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, domain.NewAck(true, "phase updated"))
}
