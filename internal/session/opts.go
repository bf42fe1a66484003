package session

import (
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Option customises a Session.
type Option func(*Session)

// WithClock replaces the clock used to name commits.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		s.now = now
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.Logger = logger
		}
	}
}

// openDB opens the state database, creating its directory if needed.
func openDB(path string) (*badger.DB, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	opts := badger.DefaultOptions(path).
		WithNumVersionsToKeep(1).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return db, nil
}
