package store

import (
	"context"
	"time"
)

// Require blocks until the store is fully loaded: count is known and at
// least count records are held. It wakes on every Reduce and otherwise
// re-checks once per throttle interval. There is no deadline other than
// ctx; a caller that waits before any page is fetched waits until some
// other caller starts a load.
func (s *Store[K]) Require(ctx context.Context) error {
	var ticker *time.Ticker
	for {
		s.mu.RLock()
		done := s.loadedLocked()
		changed := s.changed
		s.mu.RUnlock()

		if done {
			if ticker != nil {
				ticker.Stop()
			}
			return nil
		}
		if ticker == nil {
			ticker = time.NewTicker(s.opts.throttle)
		}

		select {
		case <-changed:
		case <-ticker.C:
		case <-ctx.Done():
			ticker.Stop()
			return ctx.Err()
		}
	}
}
