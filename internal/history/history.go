// Package history persists an audit trail of destination uploads: which
// pages were created, what was appended to them, and how each unit fared.
// It backs the /history command.
package history

import (
	"context"
	"errors"
	"strings"
	"time"

	logx "notibot/pkg/logx"
)

var ErrDisabled = errors.New("history disabled")

// Config configures the store.
//
// Driver values:
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", history is disabled and Open returns a
// no-op store.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Entry records one destination operation. Keep it compact and
// schema-stable.
type Entry struct {
	At          time.Time
	SubmitterID int64
	PageID      string
	// Kind is "page" (created), "text", "file" or "link".
	Kind  string
	Name  string
	OK    bool
	Error string
}

type Store interface {
	Append(ctx context.Context, e Entry) error
	Recent(ctx context.Context, submitterID int64, limit int) ([]Entry, error)
	Close() error
}

// Open initializes the configured store. Disabled history yields a no-op
// store, never nil.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nopStore{}, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	switch driver {
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown history driver: " + driver)
	}
}

// Nop returns a store that records nothing.
func Nop() Store { return nopStore{} }

type nopStore struct{}

func (nopStore) Append(ctx context.Context, e Entry) error { return nil }
func (nopStore) Recent(ctx context.Context, submitterID int64, limit int) ([]Entry, error) {
	return nil, nil
}
func (nopStore) Close() error { return nil }
