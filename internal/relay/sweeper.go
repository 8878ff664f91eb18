package relay

import (
	"context"
	"time"

	"github.com/voidlock/squire/internal/logging"
)

// Sweeper periodically evicts sessions idle for longer than the configured
// TTL. It runs beside the orchestrator, never inside a turn.
type Sweeper struct {
	store    SessionStore
	ttl      time.Duration
	interval time.Duration
	log      *logging.Logger
}

// NewSweeper creates a sweeper. interval <= 0 defaults to ttl/4, floored
// at one minute.
func NewSweeper(store SessionStore, ttl, interval time.Duration, log *logging.Logger) *Sweeper {
	if interval <= 0 {
		interval = ttl / 4
		if interval < time.Minute {
			interval = time.Minute
		}
	}
	return &Sweeper{
		store:    store,
		ttl:      ttl,
		interval: interval,
		log:      log.Sub("relay.sweeper"),
	}
}

// Run sweeps until ctx is cancelled. TTL <= 0 disables sweeping and
// returns immediately.
func (s *Sweeper) Run(ctx context.Context) {
	if s.ttl <= 0 {
		s.log.Info().Msg("session TTL disabled, sweeper not running")
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("ttl", s.ttl).Dur("interval", s.interval).Msg("sweeper running")
	for {
		select {
		case <-ticker.C:
			if n := s.store.EvictIdle(s.ttl); n > 0 {
				s.log.Info().Int("evicted", n).Msg("idle sessions evicted")
			}
		case <-ctx.Done():
			return
		}
	}
}
