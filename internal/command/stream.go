package command

import (
	"context"
	"net/http"

	"github.com/ashureev/desktop-core/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type streamRunRequest struct {
	RequestID string         `json:"requestId,omitempty"`
	AppName   string         `json:"appName"`
	UserID    string         `json:"userId"`
	SessionID string         `json:"sessionId"`
	Message   string         `json:"message"`
	Mode      domain.RunMode `json:"mode"`
}

func streamChannel(requestID string) string {
	return "agent-stream:" + requestID
}

// StreamRun validates the requested run against the session's current
// phase, then launches the agent run in the background and returns
// immediately; the frontend follows the run by subscribing to
// StreamEvents with the same request id.
func (h *Handler) StreamRun(w http.ResponseWriter, r *http.Request) {
	var req streamRunRequest
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.AppName == "" || req.UserID == "" || req.SessionID == "" || req.Message == "" {
		Error(w, http.StatusBadRequest, "appName, userId, sessionId and message are required")
		return
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}

	if err := h.store.ValidateRunMode(r.Context(), req.SessionID, req.Mode); err != nil {
		Error(w, http.StatusConflict, err.Error())
		return
	}
	if err := h.ensureHealthy(r.Context()); err != nil {
		Error(w, http.StatusBadGateway, err.Error())
		return
	}
	if req.Mode == domain.RunModeApprove {
		if err := h.store.PhaseSet(r.Context(), req.SessionID, domain.PhaseRunning, true); err != nil {
			Error(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	h.requests.register(req.RequestID, cancel)

	go func() {
		defer cancel()
		defer h.requests.forget(req.RequestID)

		emit := func(event any) { h.hub.publish(streamChannel(req.RequestID), event) }
		outcome := h.runner.Run(runCtx, req.RequestID, req.AppName, req.UserID, req.SessionID, req.Message, emit)

		phase, readOnly := domain.PhaseAfterRun(req.Mode, outcome.Completed)
		_ = h.store.PhaseSet(context.Background(), req.SessionID, phase, readOnly)
	}()

	JSON(w, http.StatusAccepted, map[string]string{"requestId": req.RequestID})
}

// StreamCancel cancels an in-flight run, if one is still running.
func (h *Handler) StreamCancel(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	if h.requests.cancel(requestID) {
		JSON(w, http.StatusOK, domain.NewAck(true, "cancellation requested"))
		return
	}
	JSON(w, http.StatusOK, domain.NewAck(false, "no in-flight run for this request id"))
}

// StreamEvents exposes one run's normalized event stream over SSE.
func (h *Handler) StreamEvents(w http.ResponseWriter, r *http.Request) {
	requestID := chi.URLParam(r, "requestID")
	serveSSE(w, r, h.hub, streamChannel(requestID))
}
