package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/muchacho/personal-manager/internal/schema"
)

// DefaultFileName is the data file name inside the data directory.
const DefaultFileName = "data.json"

// FileStore keeps the snapshot in a single JSON file.
//
// Writes go to path+".tmp" and are renamed into place, so a reader in another
// process sees either the old or the new document, never a partial one.
// There is no cross-process locking: the last rename wins.
type FileStore struct {
	path   string
	logger *log.Logger
	now    func() time.Time
}

// NewFileStore returns a store for the document at path.
// If logger is nil, a default logger writing to stderr is used.
func NewFileStore(path string, logger *log.Logger) *FileStore {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}
	return &FileStore{path: path, logger: logger, now: time.Now}
}

// Path returns the document path.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads and parses the document.
//
// A missing file yields ErrNotFound. An unparsable file is copied to
// "<path>.corrupt-<timestamp>" before a *MalformedError is returned, so the
// next save cannot destroy it.
func (s *FileStore) Load(ctx context.Context) (*schema.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// #nosec G304 - path comes from configuration
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, unavailable("failed to read data file %s", err, s.path)
	}

	snap, err := schema.Decode(data)
	if err != nil {
		backup, berr := s.preserve(data)
		if berr != nil {
			s.logger.Printf("Warning: could not back up malformed %s: %v", s.path, berr)
		} else {
			s.logger.Printf("Preserved malformed %s as %s", s.path, backup)
		}
		return nil, &MalformedError{Location: s.path, BackupPath: backup, Err: err}
	}
	return snap, nil
}

// Save writes the document atomically with 2-space indentation.
func (s *FileStore) Save(ctx context.Context, snap *schema.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := snap.Encode()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return unavailable("failed to create data directory", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return unavailable("failed to write temp file", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return unavailable("failed to rename temp file", err)
	}
	return nil
}

// LastWritten returns the modification time of the document.
func (s *FileStore) LastWritten(ctx context.Context) (time.Time, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return time.Time{}, ErrNotFound
		}
		return time.Time{}, unavailable("failed to stat data file %s", err, s.path)
	}
	return info.ModTime(), nil
}

func (s *FileStore) preserve(data []byte) (string, error) {
	backup := fmt.Sprintf("%s.corrupt-%s", s.path, s.now().Format("20060102-150405"))
	if err := os.WriteFile(backup, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	return backup, nil
}
