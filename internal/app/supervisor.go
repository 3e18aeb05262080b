package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const (
	restartBackoff = 200 * time.Millisecond
	maxRestarts    = 5
)

// supervise runs a background loop and restarts it after a panic or
// unexpected error, with a fixed backoff and a bounded attempt count. A loop
// that returns nil or stops with the context is done for good.
func supervise(ctx context.Context, logger *zerolog.Logger, name string, run func(context.Context) error) {
	restarts := 0
	for {
		if ctx.Err() != nil {
			return
		}

		err := func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("worker panic: %v", r)
				}
			}()
			return run(ctx)
		}()

		if err == nil || errors.Is(err, context.Canceled) || ctx.Err() != nil {
			logger.Debug().Str("worker", name).Msg("worker stopped")
			return
		}

		restarts++
		if restarts > maxRestarts {
			logger.Error().Err(err).Str("worker", name).Msg("worker exceeded restart budget, giving up")
			return
		}

		logger.Warn().Err(err).Str("worker", name).Int("restart", restarts).Msg("worker crashed, restarting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(restartBackoff):
		}
	}
}
