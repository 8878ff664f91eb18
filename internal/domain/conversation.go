// Package domain holds the shared types for conversations, sessions, and
// channel messages.
package domain

// Scope selects how inbound events are grouped into conversations.
type Scope string

const (
	// ScopeThread groups by channel + thread (falling back to the chat
	// itself when the platform has no threads). Everyone in a thread
	// shares one assistant session.
	ScopeThread Scope = "thread"

	// ScopeSender groups by channel + sender, giving each user their own
	// assistant session per chat.
	ScopeSender Scope = "sender"
)

// ConversationKey identifies one logical conversation with the bot.
// Immutable once derived from an inbound event.
type ConversationKey struct {
	ChannelID string `json:"channelId"`
	ChatID    string `json:"chatId"`
	ThreadID  string `json:"threadId,omitempty"`
	SenderID  string `json:"senderId,omitempty"`
}

// String returns the canonical form used as a map and database key.
func (k ConversationKey) String() string {
	s := k.ChannelID + "/" + k.ChatID
	if k.ThreadID != "" {
		s += "/t:" + k.ThreadID
	}
	if k.SenderID != "" {
		s += "/u:" + k.SenderID
	}
	return s
}

// KeyFor derives the ConversationKey for an event under the given scope.
func KeyFor(ev MentionEvent, scope Scope) ConversationKey {
	key := ConversationKey{
		ChannelID: ev.ChannelID,
		ChatID:    ev.ChatID,
	}
	switch scope {
	case ScopeSender:
		key.SenderID = ev.AuthorID
	default:
		key.ThreadID = ev.ThreadID
	}
	return key
}
