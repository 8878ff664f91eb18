package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConversationKeyString(t *testing.T) {
	tests := []struct {
		name string
		key  ConversationKey
		want string
	}{
		{
			name: "channel and chat only",
			key:  ConversationKey{ChannelID: "irc", ChatID: "#dev"},
			want: "irc/#dev",
		},
		{
			name: "with thread",
			key:  ConversationKey{ChannelID: "irc", ChatID: "#dev", ThreadID: "42"},
			want: "irc/#dev/t:42",
		},
		{
			name: "with sender",
			key:  ConversationKey{ChannelID: "irc", ChatID: "#dev", SenderID: "alice"},
			want: "irc/#dev/u:alice",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.key.String())
		})
	}
}

func TestKeyForScopes(t *testing.T) {
	ev := MentionEvent{
		ChannelID: "irc",
		ChatID:    "#dev",
		ThreadID:  "42",
		AuthorID:  "alice",
	}

	byThread := KeyFor(ev, ScopeThread)
	assert.Equal(t, "42", byThread.ThreadID)
	assert.Empty(t, byThread.SenderID)

	bySender := KeyFor(ev, ScopeSender)
	assert.Equal(t, "alice", bySender.SenderID)
	assert.Empty(t, bySender.ThreadID)

	// Same event, different scopes, different conversations.
	assert.NotEqual(t, byThread.String(), bySender.String())
}

func TestKeyForSameThreadSharedAcrossSenders(t *testing.T) {
	a := MentionEvent{ChannelID: "irc", ChatID: "#dev", ThreadID: "7", AuthorID: "alice"}
	b := MentionEvent{ChannelID: "irc", ChatID: "#dev", ThreadID: "7", AuthorID: "bob"}
	assert.Equal(t, KeyFor(a, ScopeThread), KeyFor(b, ScopeThread))
}

func TestSessionIdleSince(t *testing.T) {
	now := time.Now()
	s := Session{LastActivity: now.Add(-31 * time.Minute)}
	assert.True(t, s.IdleSince(now, 30*time.Minute))
	assert.False(t, s.IdleSince(now, time.Hour))
}

func TestReplyTarget(t *testing.T) {
	dm := MentionEvent{ChatType: ChatTypeDM, AuthorID: "alice", ChatID: "alice"}
	assert.Equal(t, "alice", dm.ReplyTarget())

	group := MentionEvent{ChatType: ChatTypeGroup, AuthorID: "alice", ChatID: "#dev"}
	assert.Equal(t, "#dev", group.ReplyTarget())
}
