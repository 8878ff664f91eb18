package relay

import (
	"fmt"
	"strings"
	"time"

	"github.com/voidlock/squire/internal/domain"
)

// buildSystemPrompt combines the configured personality with the
// conversational context for one turn.
func buildSystemPrompt(personality string, ev domain.MentionEvent) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Current date: %s\n", time.Now().Format("2006-01-02"))
	if ev.ChannelID != "" {
		fmt.Fprintf(&b, "Channel: %s\n", ev.ChannelID)
	}
	if ev.ChatType != "" {
		fmt.Fprintf(&b, "Chat type: %s\n", ev.ChatType)
	}
	name := ev.AuthorName
	if name == "" {
		name = ev.AuthorID
	}
	if name != "" {
		fmt.Fprintf(&b, "User: %s\n", name)
	}
	b.WriteString("\nYou are replying inside a chat client; keep responses chat-sized.\n")

	if personality != "" {
		b.WriteString("\n")
		b.WriteString(personality)
		b.WriteString("\n")
	}

	return b.String()
}
