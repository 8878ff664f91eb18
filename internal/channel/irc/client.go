// Package irc implements the IRC chat channel using the girc library.
package irc

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/girc"

	"github.com/voidlock/squire/internal/config"
	"github.com/voidlock/squire/internal/domain"
	"github.com/voidlock/squire/internal/logging"
)

const resetCommand = "!reset"

// Channel implements domain.Channel for IRC.
type Channel struct {
	cfg    config.IRCConfig
	client *girc.Client
	log    *logging.Logger

	mu        sync.RWMutex
	onMention func(ev domain.MentionEvent)
	onReset   func(ev domain.MentionEvent)
	running   bool
	lastErr   string
}

// New creates an IRC channel from configuration.
func New(cfg config.IRCConfig, log *logging.Logger) *Channel {
	return &Channel{
		cfg: cfg,
		log: log.Sub("irc"),
	}
}

func (c *Channel) ID() string { return "irc" }

func (c *Channel) OnMention(handler func(ev domain.MentionEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMention = handler
}

func (c *Channel) OnReset(handler func(ev domain.MentionEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReset = handler
}

// Status returns the current runtime status.
func (c *Channel) Status() domain.ChannelStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return domain.ChannelStatus{
		ChannelID: "irc",
		Connected: c.client != nil && c.client.IsConnected(),
		Running:   c.running,
		LastError: c.lastErr,
	}
}

// Start connects to the IRC server and begins processing messages.
func (c *Channel) Start(ctx context.Context) error {
	port := c.cfg.Port
	if port == 0 {
		if c.cfg.UseTLS {
			port = 6697
		} else {
			port = 6667
		}
	}

	gircCfg := girc.Config{
		Server:  c.cfg.Server,
		Port:    port,
		Nick:    c.cfg.Nick,
		User:    c.cfg.Nick,
		Name:    "squire",
		SSL:     c.cfg.UseTLS,
		Version: "squire/1.0",
	}

	if c.cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{
			ServerName: c.cfg.Server,
		}
	}

	if c.cfg.SASL && c.cfg.Password != "" {
		gircCfg.SASL = &girc.SASLPlain{
			User: c.cfg.Nick,
			Pass: c.cfg.Password,
		}
	} else if c.cfg.Password != "" {
		gircCfg.ServerPass = c.cfg.Password
	}

	c.client = girc.New(gircCfg)
	c.client.Handlers.Add(girc.CONNECTED, c.onConnected)
	c.client.Handlers.Add(girc.PRIVMSG, c.onPrivmsg)
	c.client.Handlers.Add(girc.DISCONNECTED, c.onDisconnected)

	c.mu.Lock()
	c.running = true
	c.lastErr = ""
	c.mu.Unlock()

	c.log.Info().
		Str("server", c.cfg.Server).
		Int("port", port).
		Str("nick", c.cfg.Nick).
		Strs("channels", c.cfg.Channels).
		Bool("tls", c.cfg.UseTLS).
		Msg("connecting to IRC")

	// Run connection in a goroutine — Connect() blocks
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.client.Connect()
	}()

	select {
	case err := <-errCh:
		c.mu.Lock()
		c.running = false
		if err != nil {
			c.lastErr = err.Error()
		}
		c.mu.Unlock()
		if err != nil {
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		c.client.Close()
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return ctx.Err()
	}
}

// Stop gracefully disconnects from the IRC server.
func (c *Channel) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil && c.client.IsConnected() {
		c.log.Info().Msg("disconnecting from IRC")
		c.client.Quit("squire shutting down")
	}
	c.running = false
	return nil
}

// Send delivers a message to an IRC channel or user.
func (c *Channel) Send(ctx context.Context, msg domain.OutboundMessage) error {
	if c.client == nil || !c.client.IsConnected() {
		return fmt.Errorf("irc: not connected")
	}
	if msg.To == "" {
		return fmt.Errorf("irc: no target specified")
	}

	// IRC has a ~512 byte line limit and no embedded newlines.
	lines := splitMessage(msg.Body, 400)
	for _, line := range lines {
		c.client.Cmd.Message(msg.To, line)
	}

	c.log.Debug().
		Str("to", msg.To).
		Int("lines", len(lines)).
		Msg("sent IRC message")
	return nil
}

func (c *Channel) onConnected(_ *girc.Client, e girc.Event) {
	c.log.Info().Str("nick", c.client.GetNick()).Msg("connected to IRC")
	for _, ch := range c.cfg.Channels {
		c.log.Info().Str("channel", ch).Msg("joining channel")
		c.client.Cmd.Join(ch)
	}
}

func (c *Channel) onPrivmsg(_ *girc.Client, e girc.Event) {
	if e.Source == nil {
		return
	}
	// Ignore messages from ourselves
	if e.Source.Name == c.client.GetNick() {
		return
	}

	body := e.Last()
	if e.IsAction() {
		body = e.StripAction()
	}

	if e.IsFromChannel() {
		// In a channel the bot only reacts when addressed by nick.
		text, mentioned := StripMention(body, c.client.GetNick())
		if !mentioned {
			return
		}
		c.dispatch(e.Source.Name, e.Params[0], domain.ChatTypeGroup, text)
		return
	}

	// Direct messages are implicitly addressed to the bot.
	text, _ := StripMention(body, c.client.GetNick())
	c.dispatch(e.Source.Name, e.Source.Name, domain.ChatTypeDM, text)
}

func (c *Channel) dispatch(from, chatID string, chatType domain.ChatType, text string) {
	ev := domain.MentionEvent{
		ID:         uuid.New().String(),
		ChannelID:  "irc",
		ChatID:     chatID,
		AuthorID:   from,
		AuthorName: from,
		ChatType:   chatType,
		Text:       text,
		Timestamp:  time.Now(),
	}

	c.mu.RLock()
	onMention := c.onMention
	onReset := c.onReset
	c.mu.RUnlock()

	if strings.EqualFold(strings.TrimSpace(text), resetCommand) {
		if onReset != nil {
			onReset(ev)
		}
		return
	}
	if onMention != nil {
		onMention(ev)
	}
}

func (c *Channel) onDisconnected(_ *girc.Client, e girc.Event) {
	c.log.Warn().Msg("disconnected from IRC")
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

// StripMention removes a leading "nick:" or "nick," address from the
// message and reports whether the bot was addressed at all. Messages that
// merely contain the nick mid-sentence do not count as mentions.
func StripMention(body, nick string) (string, bool) {
	trimmed := strings.TrimSpace(body)
	lower := strings.ToLower(trimmed)
	ln := strings.ToLower(nick)

	for _, sep := range []string{":", ","} {
		if strings.HasPrefix(lower, ln+sep) {
			return strings.TrimSpace(trimmed[len(nick)+len(sep):]), true
		}
	}
	if lower == ln {
		return "", true
	}
	// Bare "nick rest of message" addressing.
	if strings.HasPrefix(lower, ln+" ") {
		return strings.TrimSpace(trimmed[len(nick)+1:]), true
	}
	return trimmed, false
}

// splitMessage breaks a long message into chunks suitable for IRC.
// Each newline in the input produces a separate chunk because IRC
// PRIVMSG does not support embedded newlines. Blank lines are dropped:
// an empty PRIVMSG body is invalid. Lines longer than maxLen are
// further split at the byte boundary.
func splitMessage(text string, maxLen int) []string {
	var chunks []string
	for _, line := range strings.Split(text, "\n") {
		for len(line) > maxLen {
			chunks = append(chunks, line[:maxLen])
			line = line[maxLen:]
		}
		if line != "" {
			chunks = append(chunks, line)
		}
	}
	return chunks
}
