package command

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ashureev/desktop-core/internal/domain"
)

const statusPollInterval = 2 * time.Second

// BackendStart starts (or restarts) the supervised agent backend.
func (h *Handler) BackendStart(w http.ResponseWriter, r *http.Request) {
	var override domain.BackendStartConfig
	if err := decodeJSON(r, &override); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	keys, err := h.creds.GetEnv()
	if err != nil {
		Error(w, http.StatusInternalServerError, "could not read credentials: "+err.Error())
		return
	}

	status, err := h.supervisor.Start(r.Context(), override, keys)
	if err != nil {
		Error(w, http.StatusBadGateway, err.Error())
		return
	}
	h.hub.publish(channelBackendStatus, status)
	JSON(w, http.StatusOK, status)
}

// BackendStop tears down the supervised agent backend, if running.
func (h *Handler) BackendStop(w http.ResponseWriter, r *http.Request) {
	status := h.supervisor.Stop(r.Context())
	h.hub.publish(channelBackendStatus, status)
	JSON(w, http.StatusOK, status)
}

// BackendStatus reports the current observed backend status.
func (h *Handler) BackendStatus(w http.ResponseWriter, r *http.Request) {
	status, exitedNow := h.supervisor.Status(r.Context())
	if exitedNow {
		h.hub.publish(channelBackendExited, status)
	}
	JSON(w, http.StatusOK, status)
}

// BackendStatusStream streams the backend-status channel over SSE.
// Events published on backend-exited are not part of this feed.
func (h *Handler) BackendStatusStream(w http.ResponseWriter, r *http.Request) {
	serveSSE(w, r, h.hub, channelBackendStatus)
}

// BackendListApps lists the agent apps the backend discovered.
func (h *Handler) BackendListApps(w http.ResponseWriter, r *http.Request) {
	if err := h.ensureHealthy(r.Context()); err != nil {
		Error(w, http.StatusBadGateway, err.Error())
		return
	}
	apps, err := h.supervisor.ListApps(r.Context())
	if err != nil {
		Error(w, http.StatusBadGateway, err.Error())
		return
	}
	JSON(w, http.StatusOK, apps)
}

// ensureHealthy requires the supervisor to be running and healthy,
// auto-restarting it once (force_restart=true) when it is not. Used by
// any command whose precondition is "supervisor running".
func (h *Handler) ensureHealthy(ctx context.Context) error {
	status, _ := h.supervisor.Status(ctx)
	if status.Running && status.Health {
		return nil
	}

	keys, err := h.creds.GetEnv()
	if err != nil {
		return err
	}
	force := true
	status, err = h.supervisor.Start(ctx, domain.BackendStartConfig{ForceRestart: &force}, keys)
	if err != nil {
		return err
	}
	h.hub.publish(channelBackendStatus, status)
	if !status.Running || !status.Health {
		return fmt.Errorf("backend is not healthy after restart")
	}
	return nil
}

const (
	channelBackendStatus = "backend-status"
	channelBackendExited = "backend-exited"
)

// WatchBackend polls the supervisor until ctx is cancelled, publishing
// a backend-status event on every poll and a backend-exited event the
// moment an unexpected exit is observed. Run this once from main as a
// background goroutine.
func (h *Handler) WatchBackend(ctx context.Context) {
	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, exitedNow := h.supervisor.Status(ctx)
			h.hub.publish(channelBackendStatus, status)
			if exitedNow {
				h.hub.publish(channelBackendExited, status)
			}
		}
	}
}
