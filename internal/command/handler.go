// Package command implements the HTTP command surface the desktop
// frontend drives: backend lifecycle, session CRUD, agent streaming,
// and credential management, each exposed as a small JSON endpoint or,
// for the status/streaming cases, a server-sent events feed.
package command

import (
	"encoding/json"
	"net/http"

	"github.com/ashureev/desktop-core/internal/credstore"
	"github.com/ashureev/desktop-core/internal/sessionstore"
	"github.com/ashureev/desktop-core/internal/streambridge"
	"github.com/ashureev/desktop-core/internal/supervisor"
	"github.com/go-chi/chi/v5"
)

// Handler wires the command surface's HTTP endpoints to the backend
// supervisor, session store, credential store and streaming bridge.
type Handler struct {
	supervisor *supervisor.Supervisor
	store      *sessionstore.Store
	creds      *credstore.Store
	runner     *streambridge.Runner
	hub        *broadcastHub
	requests   *requestRegistry
}

// NewHandler builds a Handler from its concrete dependencies.
func NewHandler(sup *supervisor.Supervisor, store *sessionstore.Store, creds *credstore.Store) *Handler {
	return &Handler{
		supervisor: sup,
		store:      store,
		creds:      creds,
		runner:     streambridge.NewRunner(sup, store),
		hub:        newBroadcastHub(),
		requests:   newRequestRegistry(),
	}
}

// RegisterRoutes mounts every command under /api.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/backend", func(r chi.Router) {
		r.Post("/start", h.BackendStart)
		r.Post("/stop", h.BackendStop)
		r.Get("/status", h.BackendStatus)
		r.Get("/status/stream", h.BackendStatusStream)
		r.Get("/apps", h.BackendListApps)
	})

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", h.SessionCreate)
		r.Get("/", h.SessionList)
		r.Delete("/{sessionID}", h.SessionDelete)
		r.Get("/{sessionID}/messages", h.SessionMessagesGet)
		r.Post("/{sessionID}/messages", h.SessionMessagesAppend)
		r.Get("/{sessionID}/phase", h.SessionPhaseGet)
		r.Post("/{sessionID}/phase", h.SessionPhaseSet)
	})

	r.Route("/api/stream", func(r chi.Router) {
		r.Post("/run", h.StreamRun)
		r.Post("/{requestID}/cancel", h.StreamCancel)
		r.Get("/{requestID}", h.StreamEvents)
	})

	r.Route("/api/keys", func(r chi.Router) {
		r.Post("/", h.KeysSet)
		r.Get("/", h.KeysGetMasked)
		r.Delete("/", h.KeysClear)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if err.Error() == "EOF" {
			return nil
		}
		return err
	}
	return nil
}
