package handler

import (
	"encoding/json"
	"net/http"

	"github.com/kasb-api/internal/domain"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// AuthEnvelope wraps responses from flows that may issue tokens. Tokens
// themselves travel in cookies, never in the body.
type AuthEnvelope struct {
	Message     string           `json:"message,omitempty"`
	User        *domain.UserView `json:"user,omitempty"`
	MFARequired bool             `json:"mfaRequired,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// SessionEnvelope wraps current-session responses.
type SessionEnvelope struct {
	Session *domain.SessionView `json:"session,omitempty"`
	User    *domain.UserView    `json:"user,omitempty"`
	Error   string              `json:"error,omitempty"`
}

// SessionListEnvelope wraps own-session listings.
type SessionListEnvelope struct {
	Sessions []domain.SessionView `json:"sessions"`
	Error    string               `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, MessageEnvelope{Error: msg})
}
