package domain

import "time"

// Session anchors the validity window of one logical login. A refresh token
// carries only the session id; deleting the record invalidates the token
// immediately. Expiry is enforced lazily on read, not by a sweeper.
type Session struct {
	SessionID string    `dynamodbav:"session_id"`
	UserID    string    `dynamodbav:"user_id"`
	UserAgent string    `dynamodbav:"user_agent"`
	CreatedAt time.Time `dynamodbav:"created_at"`
	ExpiresAt int64     `dynamodbav:"expires_at"` // Unix seconds
}

// Expired reports whether the session is logically dead at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return s.ExpiresAt <= now.Unix()
}

// SessionView is the externally visible projection of a Session.
type SessionView struct {
	SessionID string    `json:"id"`
	UserAgent string    `json:"user_agent"`
	CreatedAt time.Time `json:"created"`
	ExpiresAt int64     `json:"expires_at"`
}

func (s *Session) View() *SessionView {
	if s == nil {
		return nil
	}
	return &SessionView{
		SessionID: s.SessionID,
		UserAgent: s.UserAgent,
		CreatedAt: s.CreatedAt,
		ExpiresAt: s.ExpiresAt,
	}
}
