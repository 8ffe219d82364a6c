package app

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/five82/metricdeck/internal/api"
	"github.com/five82/metricdeck/internal/session"
	"github.com/five82/metricdeck/internal/state"
)

const (
	defaultPollInterval = 60 * time.Second
	retryInterval       = 2 * time.Second
	maxBackoff          = 30 * time.Second
)

// PeriodFetcher lists the periods with data. *api.Client implements it.
type PeriodFetcher interface {
	FetchAvailablePeriods(ctx context.Context) ([]api.Period, error)
}

// StatusSource reports whether a session is active. *session.Store implements it.
type StatusSource interface {
	Status() session.Status
}

// StartPoller launches a background goroutine that refreshes the period list
// at a fixed cadence while a session is active. A receive on wake starts the
// next poll immediately. After a failure it retries sooner with exponential
// backoff. It returns immediately.
func StartPoller(ctx context.Context, store *state.Store, client PeriodFetcher, sess StatusSource, wake <-chan struct{}, interval time.Duration, logger zerolog.Logger) {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	logger = logger.With().Str("component", "poller").Logger()
	go func() {
		for {
			wait := interval
			if sess.Status() == session.Authenticated {
				if err := refresh(ctx, store, client); err != nil {
					logger.Warn().Err(err).Msg("period poll failed")
					wait = retryWait(store.Snapshot().ConsecutiveFailures, interval)
				}
			}
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-wake:
				timer.Stop()
				logger.Debug().Msg("signed in, polling now")
			case <-timer.C:
			}
		}
	}()
}

// signInSignal returns a channel that receives whenever sess goes from
// signed out to signed in. Token refreshes do not count as a sign-in.
func signInSignal(sess *session.Store) <-chan struct{} {
	wake := make(chan struct{}, 1)
	var signedIn atomic.Bool
	signedIn.Store(isSignedIn(sess.Status()))
	sess.OnChange(func(s session.Session) {
		now := isSignedIn(s.Status)
		if now && !signedIn.Swap(now) {
			select {
			case wake <- struct{}{}:
			default:
			}
			return
		}
		signedIn.Store(now)
	})
	return wake
}

func isSignedIn(s session.Status) bool {
	return s == session.Authenticated || s == session.Refreshing
}

func refresh(ctx context.Context, store *state.Store, client PeriodFetcher) error {
	periods, err := client.FetchAvailablePeriods(ctx)
	if err != nil {
		store.Update(nil, err)
		return err
	}
	store.Update(periods, nil)
	return nil
}

// retryWait is the delay before the poll that follows the given number of
// consecutive failures. The first retry waits retryInterval.
func retryWait(failures int, interval time.Duration) time.Duration {
	return min(calculateBackoff(failures-1, retryInterval), interval)
}

// calculateBackoff doubles base per consecutive failure, capped at maxBackoff.
func calculateBackoff(failures int, base time.Duration) time.Duration {
	if failures <= 0 {
		return base
	}
	if failures > 16 {
		return maxBackoff
	}
	backoff := base << failures
	if backoff > maxBackoff || backoff <= 0 {
		return maxBackoff
	}
	return backoff
}
