package command

import (
	"net/http"

	"github.com/ashureev/desktop-core/internal/credstore"
	"github.com/ashureev/desktop-core/internal/domain"
)

// KeysSet upserts whichever credential fields are provided.
func (h *Handler) KeysSet(w http.ResponseWriter, r *http.Request) {
	var req domain.KeysInput
	if err := decodeJSON(r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.creds.Set(credstore.SetInput{
		GoogleAPIKey: req.GoogleAPIKey,
		BraveAPIKey:  req.BraveAPIKey,
		GeminiAPIKey: req.GeminiAPIKey,
	}); err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, domain.NewAck(true, "credentials updated"))
}

// KeysGetMasked reports which credentials are set, with masked previews.
func (h *Handler) KeysGetMasked(w http.ResponseWriter, r *http.Request) {
	presence, err := h.creds.Presence()
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, presence)
}

// KeysClear removes every stored credential.
func (h *Handler) KeysClear(w http.ResponseWriter, r *http.Request) {
	if err := h.creds.Clear(); err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	JSON(w, http.StatusOK, domain.NewAck(true, "credentials cleared"))
}
