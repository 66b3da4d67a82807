package api

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// IssueToken issues a bearer token for a dashboard or CLI client. The
// request itself must authenticate with the configured API key; the token
// can then be used instead of the key until it expires.
func (h *Handler) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Client   string `json:"client"`
		TTLHours int    `json:"ttl_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Client == "" {
		http.Error(w, "client is required", http.StatusBadRequest)
		return
	}

	ttl := 24 * time.Hour
	if req.TTLHours > 0 {
		ttl = time.Duration(req.TTLHours) * time.Hour
	}

	token, err := h.tokens.GenerateToken(req.Client, ttl)
	if err != nil {
		log.Printf("Error issuing token for %s: %v", req.Client, err)
		http.Error(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"client":     req.Client,
		"token":      token,
		"expires_at": time.Now().Add(ttl),
	})
}

// RevokeToken invalidates a client's token
func (h *Handler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	h.tokens.RevokeToken(mux.Vars(r)["client"])
	w.WriteHeader(http.StatusNoContent)
}
