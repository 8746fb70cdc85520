// Package store persists the snapshot.
//
// FileStore is the primary store: one JSON document on disk, replaced
// atomically on every save. Cache is a sqlite key-value database used as the
// fallback store and as the home of legacy per-collection records.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/muchacho/personal-manager/internal/schema"
)

var (
	// ErrNotFound means the store holds no document yet.
	ErrNotFound = errors.New("no stored snapshot")

	// ErrUnavailable means the backing medium could not be read or written.
	// Callers may retry or warn; it is never reported as an empty snapshot.
	ErrUnavailable = errors.New("store unavailable")

	// ErrMalformed means a document exists but could not be parsed.
	ErrMalformed = errors.New("malformed document")
)

// Store loads and saves whole snapshots.
type Store interface {
	// Load returns the stored snapshot exactly as persisted (not migrated).
	Load(ctx context.Context) (*schema.Snapshot, error)
	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap *schema.Snapshot) error
}

// Timestamped is implemented by stores that know when they were last written.
type Timestamped interface {
	LastWritten(ctx context.Context) (time.Time, error)
}

// MalformedError describes an unparsable document and where it was preserved.
type MalformedError struct {
	Location   string
	BackupPath string
	Err        error
}

func (e *MalformedError) Error() string {
	if e.BackupPath != "" {
		return fmt.Sprintf("malformed document in %s (preserved as %s): %v", e.Location, e.BackupPath, e.Err)
	}
	return fmt.Sprintf("malformed document in %s: %v", e.Location, e.Err)
}

func (e *MalformedError) Unwrap() error { return e.Err }

// Is reports ErrMalformed as a match.
func (e *MalformedError) Is(target error) bool { return target == ErrMalformed }

func unavailable(format string, err error, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, errors.Join(ErrUnavailable, err))...)
}
