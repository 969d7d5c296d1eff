package resources

import (
	"context"
	"math/rand"
	"time"

	"github.com/danjacques/gofslock/fslock"

	"github.com/shopfloor/umpire/internal/logger"
)

const (
	// lockGiveUpTimeout bounds how long a caller waits for the repository lock.
	lockGiveUpTimeout = 2 * time.Minute
	// lockRetryDelay is the base delay between lock attempts, with jitter on top.
	lockRetryDelay = 200 * time.Millisecond
)

// lockFS grabs a lock file and returns a function that releases it.
// Contention is expected to be short (single writes), so the blocker retries
// with a small jittered delay until the context deadline.
func lockFS(ctx context.Context, path string) (unlock func() error, err error) {
	ctx, cancel := context.WithTimeout(ctx, lockGiveUpTimeout)
	defer cancel()

	attempt := 0

	l := fslock.L{
		Path: path,
		Block: fslock.Blocker(func() error {
			attempt++
			delay := lockRetryDelay + time.Duration(rand.Int63n(int64(lockRetryDelay))) //nolint:gosec // Jitter, not crypto.
			logger.WarnKV(ctx, "Repository is locked, retrying",
				"attempt", attempt, "delay", delay.String())

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
				return nil
			}
		}),
	}

	handle, err := l.Lock()
	if err != nil {
		return nil, err
	}

	return handle.Unlock, nil
}
