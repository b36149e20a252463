package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// retryInterval is how long the failover waits after a primary failure
// before probing it again.
const retryInterval = time.Minute

// FailoverRepository serves sessions from the primary until it fails, then
// from the fallback, probing the primary again after a cooldown. Sessions
// written to one side during an outage are not replayed to the other; a user
// caught by the switch simply reads Idle, which every workflow treats as a
// legitimate starting point.
type FailoverRepository struct {
	primary  Repository
	fallback Repository
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

// NewFailoverRepository fronts primary with fallback.
func NewFailoverRepository(primary, fallback Repository, logger *zerolog.Logger) *FailoverRepository {
	return &FailoverRepository{primary: primary, fallback: fallback, logger: logger}
}

func (r *FailoverRepository) Get(ctx context.Context, userID int64) (*Session, error) {
	if r.usePrimary() {
		sess, err := r.primary.Get(ctx, userID)
		if err == nil {
			r.markUp()
			return sess, nil
		}
		r.markDown(err)
	}
	return r.fallback.Get(ctx, userID)
}

func (r *FailoverRepository) Set(ctx context.Context, s *Session) error {
	if r.usePrimary() {
		if err := r.primary.Set(ctx, s); err == nil {
			r.markUp()
			return nil
		} else {
			r.markDown(err)
		}
	}
	return r.fallback.Set(ctx, s)
}

func (r *FailoverRepository) Clear(ctx context.Context, userID int64) error {
	if r.usePrimary() {
		if err := r.primary.Clear(ctx, userID); err == nil {
			r.markUp()
			return nil
		} else {
			r.markDown(err)
		}
	}
	return r.fallback.Clear(ctx, userID)
}

// usePrimary reports whether this call should try the primary: either it is
// believed healthy, or the cooldown expired and it is time to probe.
func (r *FailoverRepository) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if time.Since(r.lastCheck) >= retryInterval {
		r.lastCheck = time.Now()
		return true
	}
	return false
}

func (r *FailoverRepository) markUp() {
	if r.isDown.CompareAndSwap(true, false) {
		r.logger.Info().Msg("session primary recovered")
	}
}

func (r *FailoverRepository) markDown(err error) {
	r.mu.Lock()
	r.lastCheck = time.Now()
	r.mu.Unlock()
	if r.isDown.CompareAndSwap(false, true) {
		r.logger.Warn().Err(err).Msg("session primary unavailable, serving from fallback")
	}
}
