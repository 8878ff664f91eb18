package channel

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/voidlock/squire/internal/domain"
	"github.com/voidlock/squire/internal/logging"
)

// StreamerConfig controls when buffered fragments are flushed to a channel.
type StreamerConfig struct {
	// MaxBufferBytes triggers a flush when the buffer reaches this size.
	// Default: 300 bytes.
	MaxBufferBytes int

	// IdleTimeout triggers a flush when no new fragment arrives within
	// this duration. Default: 2 seconds.
	IdleTimeout time.Duration
}

// Streamer batches assistant fragments per conversation and delivers them
// to the owning channel at natural text boundaries (paragraph, sentence,
// size limit, idle timeout). Fragment order is preserved per conversation.
type Streamer struct {
	cfg      StreamerConfig
	registry *Registry
	log      *logging.Logger

	mu       sync.Mutex
	flushers map[string]*flusher
}

// NewStreamer creates a streamer that routes output through the registry.
func NewStreamer(cfg StreamerConfig, registry *Registry, log *logging.Logger) *Streamer {
	if cfg.MaxBufferBytes <= 0 {
		cfg.MaxBufferBytes = 300
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Second
	}
	return &Streamer{
		cfg:      cfg,
		registry: registry,
		log:      log.Sub("streamer"),
		flushers: make(map[string]*flusher),
	}
}

// Emit appends one fragment for the conversation, flushing whenever a
// boundary is crossed.
func (s *Streamer) Emit(ctx context.Context, key domain.ConversationKey, fragment string) error {
	f, err := s.flusherFor(ctx, key)
	if err != nil {
		return err
	}
	f.onFragment(fragment)
	return nil
}

// EmitError delivers a notice immediately. Anything already buffered for
// the conversation is flushed first so the notice lands after the partial
// output.
func (s *Streamer) EmitError(ctx context.Context, key domain.ConversationKey, message string) {
	f, err := s.flusherFor(ctx, key)
	if err != nil {
		s.log.Error().Err(err).Str("conversation", key.String()).Msg("cannot deliver notice")
		return
	}
	f.finish()
	f.send(message)
}

// Flush drains the conversation's buffer at end of turn.
func (s *Streamer) Flush(ctx context.Context, key domain.ConversationKey) {
	s.mu.Lock()
	f := s.flushers[key.String()]
	delete(s.flushers, key.String())
	s.mu.Unlock()
	if f != nil {
		f.finish()
	}
}

func (s *Streamer) flusherFor(ctx context.Context, key domain.ConversationKey) (*flusher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.flushers[key.String()]; ok {
		return f, nil
	}
	ch, ok := s.registry.Get(key.ChannelID)
	if !ok {
		return nil, &UnknownChannelError{ChannelID: key.ChannelID}
	}
	f := &flusher{
		cfg:      s.cfg,
		ch:       ch,
		ctx:      ctx,
		target:   key.ChatID,
		threadID: key.ThreadID,
		log:      s.log,
	}
	s.flushers[key.String()] = f
	return f, nil
}

// UnknownChannelError reports output routed to an unregistered channel.
type UnknownChannelError struct {
	ChannelID string
}

func (e *UnknownChannelError) Error() string {
	return "no such channel: " + e.ChannelID
}

// flusher accumulates fragments for one conversation and sends them as
// chat-sized chunks.
type flusher struct {
	cfg      StreamerConfig
	ch       domain.Channel
	ctx      context.Context
	target   string
	threadID string
	log      *logging.Logger

	mu    sync.Mutex
	buf   strings.Builder
	timer *time.Timer
}

// onFragment appends a fragment and flushes if a boundary is reached.
func (f *flusher) onFragment(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.buf.WriteString(text)

	// Reset idle timer
	if f.timer != nil {
		f.timer.Stop()
	}
	f.timer = time.AfterFunc(f.cfg.IdleTimeout, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.flushLocked()
	})

	f.checkFlushLocked()
}

// finish sends any remaining buffered content. Call after the turn ends.
func (f *flusher) finish() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timer != nil {
		f.timer.Stop()
	}
	f.flushLocked()
}

// send delivers one chunk immediately, bypassing the buffer.
func (f *flusher) send(body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendLocked(body)
}

// checkFlushLocked examines the buffer for natural flush boundaries.
func (f *flusher) checkFlushLocked() {
	content := f.buf.String()

	// Size threshold
	if len(content) >= f.cfg.MaxBufferBytes {
		f.flushLocked()
		return
	}

	// Paragraph boundary: double newline
	if idx := strings.LastIndex(content, "\n\n"); idx >= 0 {
		f.flushAtLocked(idx + 2)
		return
	}

	// Sentence boundary
	if pos := lastSentenceEnd(content); pos > 0 {
		f.flushAtLocked(pos)
		return
	}
}

// flushAtLocked sends the first pos bytes of the buffer and keeps the rest.
func (f *flusher) flushAtLocked(pos int) {
	content := f.buf.String()
	if pos > len(content) {
		pos = len(content)
	}
	toSend := strings.TrimSpace(content[:pos])
	if toSend == "" {
		return
	}

	f.sendLocked(toSend)

	remainder := content[pos:]
	f.buf.Reset()
	f.buf.WriteString(remainder)
}

// flushLocked sends the entire buffer.
func (f *flusher) flushLocked() {
	content := strings.TrimSpace(f.buf.String())
	if content == "" {
		return
	}
	f.sendLocked(content)
	f.buf.Reset()
}

// sendLocked delivers one chunk via the channel.
func (f *flusher) sendLocked(body string) {
	msg := domain.OutboundMessage{
		ChannelID: f.ch.ID(),
		To:        f.target,
		Body:      body,
		ThreadID:  f.threadID,
	}
	if err := f.ch.Send(f.ctx, msg); err != nil {
		f.log.Error().Err(err).
			Str("channel", f.ch.ID()).
			Str("to", f.target).
			Msg("failed to send stream chunk")
	}
}

// lastSentenceEnd returns the byte position just past the last sentence-ending
// punctuation (. ! ?) that is followed by a space or newline. Returns -1 if no
// suitable boundary is found or the buffer is too small (< 40 bytes).
func lastSentenceEnd(s string) int {
	best := -1
	for i := 0; i < len(s)-1; i++ {
		if (s[i] == '.' || s[i] == '!' || s[i] == '?') &&
			(s[i+1] == ' ' || s[i+1] == '\n') {
			best = i + 1
		}
	}
	if best > 40 {
		return best
	}
	return -1
}
