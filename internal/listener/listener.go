package listener

import (
	"context"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

// Invalidator drops data cached from the backend.
type Invalidator interface {
	Invalidate()
}

// Source is the settings store side of the listener.
type Source interface {
	PgxPool() *pgxpool.Pool
	ListenChannel() string
}

// ListenAndInvalidate waits for settings-change notifications and drops the
// given caches so a base URL change made by any instance applies at once.
// It reconnects with jittered backoff until ctx is done.
func ListenAndInvalidate(ctx context.Context, src Source, channel string, baseBackoff time.Duration, targets ...Invalidator) {
	if channel == "" {
		channel = src.ListenChannel()
	}
	for {
		err := listen(ctx, src.PgxPool(), channel, targets)
		if ctx.Err() != nil {
			log.Info().Msg("listener stopped")
			return
		}
		backoff := jitter(baseBackoff)
		log.Error().Err(err).Dur("retry_in", backoff).Msg("settings listener error")
		select {
		case <-ctx.Done():
			log.Info().Msg("listener stopped")
			return
		case <-time.After(backoff):
		}
	}
}

func listen(ctx context.Context, pool *pgxpool.Pool, channel string, targets []Invalidator) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	if _, err = conn.Exec(ctx, "LISTEN "+pgx.Identifier{channel}.Sanitize()); err != nil {
		return err
	}
	log.Info().Str("channel", channel).Msg("listening for settings changes")
	return drain(ctx, conn.Conn(), targets)
}

type notifier interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
}

// drain invalidates on every notification until the connection fails.
func drain(ctx context.Context, n notifier, targets []Invalidator) error {
	for {
		ntf, err := n.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		log.Info().Str("channel", ntf.Channel).Str("key", ntf.Payload).Msg("settings changed; invalidating caches")
		Invalidate(targets...)
	}
}

// Invalidate calls Invalidate on every target.
func Invalidate(targets ...Invalidator) {
	for _, t := range targets {
		t.Invalidate()
	}
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Second
	}
	factor := 0.5 + rand.Float64() // 0.5x-1.5x
	return time.Duration(float64(base) * factor)
}
