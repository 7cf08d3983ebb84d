package housekeeping

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultInterval is the time between purge runs.
	DefaultInterval = 10 * time.Minute

	// StaleBufferAge is how long a sealed buffer may linger before it is
	// treated as left behind by a crash.
	StaleBufferAge = 10 * time.Minute
)

// BufferPurger deletes sealed buffers older than a cutoff.
type BufferPurger interface {
	PurgeStaleBuffers(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service removes sealed buffers that never became listings.
type Service struct {
	store    BufferPurger
	interval time.Duration
	now      func() time.Time
}

// NewService creates a housekeeping service. An interval of zero disables
// the in-process ticker.
func NewService(store BufferPurger, interval time.Duration) *Service {
	return &Service{
		store:    store,
		interval: interval,
		now:      time.Now,
	}
}

// PurgeStaleBuffers runs one purge and returns the number of buffers removed.
// It is safe to call at any interval.
func (s *Service) PurgeStaleBuffers(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-StaleBufferAge)
	n, err := s.store.PurgeStaleBuffers(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Info().Int64("purged", n).Time("cutoff", cutoff).Msg("purged stale buffers")
	}
	return n, nil
}

// Run purges on every tick until ctx is cancelled. Purge errors are logged and
// do not stop the loop.
func (s *Service) Run(ctx context.Context) error {
	if s.interval <= 0 {
		log.Info().Msg("in-process buffer purge disabled")
		return nil
	}

	log.Info().Dur("interval", s.interval).Msg("starting housekeeping service")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("housekeeping service stopped")
			return nil
		case <-ticker.C:
			if _, err := s.PurgeStaleBuffers(ctx); err != nil {
				log.Error().Err(err).Msg("failed to purge stale buffers")
			}
		}
	}
}
