package domain

import "context"

// ChannelStatus reports the runtime state of a channel.
type ChannelStatus struct {
	ChannelID string `json:"channelId"`
	Connected bool   `json:"connected"`
	Running   bool   `json:"running"`
	LastError string `json:"lastError,omitempty"`
}

// Channel is a chat-platform connection that surfaces mentions of the bot
// and delivers replies. Subscription mechanics stay inside the
// implementation; the relay only sees MentionEvents and OutboundMessages.
type Channel interface {
	// ID returns the channel identifier (e.g. "irc").
	ID() string

	// Start connects and begins listening. Blocks until ctx is done or
	// the connection fails permanently.
	Start(ctx context.Context) error

	// Stop disconnects gracefully.
	Stop(ctx context.Context) error

	// Send delivers one outbound message.
	Send(ctx context.Context, msg OutboundMessage) error

	// OnMention registers the handler invoked for each mention of the bot.
	OnMention(handler func(ev MentionEvent))

	// OnReset registers the handler invoked when a user asks for a
	// conversation reset.
	OnReset(handler func(ev MentionEvent))
}
