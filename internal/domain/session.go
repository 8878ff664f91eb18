package domain

import "time"

// Session is the per-conversation state held between turns. The Handle is
// the opaque session id issued by the assistant backend; an empty handle
// means the next turn starts a fresh backend session.
type Session struct {
	ID           string          `json:"id"`
	Key          ConversationKey `json:"key"`
	Handle       string          `json:"handle,omitempty"`
	Busy         bool            `json:"busy"`
	TurnCount    int             `json:"turnCount"`
	CreatedAt    time.Time       `json:"createdAt"`
	LastActivity time.Time       `json:"lastActivity"`
}

// IdleSince reports whether the session has been untouched for longer
// than ttl as of now.
func (s Session) IdleSince(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastActivity) > ttl
}
