package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Options selects and configures a Store backend.
type Options struct {
	Driver  string // "sqlite" or "postgres"
	DSN     string
	Retries int           // connection attempts before giving up; <= 0 means 1
	Delay   time.Duration // pause between attempts
}

// Open connects to the configured backend, waiting for it to accept
// connections. Each failed attempt is logged; after the last one Open
// returns an error wrapping ErrNotReady.
func Open(ctx context.Context, opts Options, log *slog.Logger) (Store, error) {
	if log == nil {
		log = slog.Default()
	}

	var connect func() (Store, error)
	switch opts.Driver {
	case "sqlite", "":
		connect = func() (Store, error) { return NewSQLite(opts.DSN) }
	case "postgres":
		connect = func() (Store, error) { return NewPostgres(opts.DSN) }
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, opts.Driver)
	}

	attempts := opts.Retries
	if attempts <= 0 {
		attempts = 1
	}

	log.Info("waiting for database", "driver", opts.Driver, "attempts", attempts)
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		store, err := connect()
		if err == nil {
			log.Info("database is ready", "attempt", attempt)
			return store, nil
		}
		lastErr = err
		log.Warn("database not ready yet", "attempt", attempt, "of", attempts, "error", err)

		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrNotReady, ctx.Err())
		case <-time.After(opts.Delay):
		}
	}

	return nil, fmt.Errorf("%w after %d attempts: %w", ErrNotReady, attempts, lastErr)
}
