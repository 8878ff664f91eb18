package domain

import "time"

// ChatType classifies where a mention happened.
type ChatType string

const (
	ChatTypeDM     ChatType = "dm"
	ChatTypeGroup  ChatType = "group"
	ChatTypeThread ChatType = "thread"
)

// MentionEvent is an inbound message addressed at the bot, with the
// bot-address prefix already stripped by the channel.
type MentionEvent struct {
	ID         string    `json:"id"`
	ChannelID  string    `json:"channelId"`
	ChatID     string    `json:"chatId"`
	ThreadID   string    `json:"threadId,omitempty"`
	AuthorID   string    `json:"authorId"`
	AuthorName string    `json:"authorName,omitempty"`
	ChatType   ChatType  `json:"chatType"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// OutboundMessage is a reply chunk to be delivered by a channel.
type OutboundMessage struct {
	ChannelID string `json:"channelId"`
	To        string `json:"to"`
	Body      string `json:"body"`
	ThreadID  string `json:"threadId,omitempty"`
	ReplyToID string `json:"replyToId,omitempty"`
}

// ReplyTarget resolves where a channel should deliver replies for an event.
func (ev MentionEvent) ReplyTarget() string {
	if ev.ChatType == ChatTypeDM {
		return ev.AuthorID
	}
	return ev.ChatID
}
