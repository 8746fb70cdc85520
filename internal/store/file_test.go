package store

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/muchacho/personal-manager/internal/schema"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// testFileStore returns a FileStore rooted in a temp directory.
func testFileStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), DefaultFileName), quietLogger())
}

func TestFileStore_LoadMissing(t *testing.T) {
	s := testFileStore(t)

	_, err := s.Load(context.Background())
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
}

func TestFileStore_SaveLoad(t *testing.T) {
	ctx := context.Background()
	s := testFileStore(t)

	snap := schema.New()
	snap.Todos = append(snap.Todos, schema.Todo{ID: "t1", Text: "Pay rent", Status: schema.StatusTodo, Priority: schema.PriorityHigh})

	if err := s.Save(ctx, snap); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if len(got.Todos) != 1 || got.Todos[0].Text != "Pay rent" {
		t.Errorf("unexpected todos: %+v", got.Todos)
	}
	if got.SchemaVersion != schema.CurrentVersion {
		t.Errorf("SchemaVersion = %d", got.SchemaVersion)
	}

	// No temp file is left behind
	if _, err := os.Stat(s.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind after Save()")
	}

	data, _ := os.ReadFile(s.Path())
	if !strings.Contains(string(data), "\n  \"todos\"") {
		t.Error("document should be written with 2-space indentation")
	}
}

func TestFileStore_MalformedIsPreserved(t *testing.T) {
	ctx := context.Background()
	s := testFileStore(t)
	s.now = func() time.Time { return time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC) }

	if err := os.WriteFile(s.Path(), []byte("{\"todos\": [oops"), 0600); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	_, err := s.Load(ctx)
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("Load() error = %v, want ErrMalformed", err)
	}

	var merr *MalformedError
	if !errors.As(err, &merr) {
		t.Fatalf("error is not a *MalformedError: %T", err)
	}
	want := s.Path() + ".corrupt-20261019-083000"
	if merr.BackupPath != want {
		t.Errorf("BackupPath = %q, want %q", merr.BackupPath, want)
	}
	backup, err := os.ReadFile(want)
	if err != nil {
		t.Fatalf("backup not written: %v", err)
	}
	if string(backup) != "{\"todos\": [oops" {
		t.Errorf("backup content = %q", backup)
	}
}

func TestFileStore_Unavailable(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// A regular file where the data directory should be.
	blocker := filepath.Join(dir, "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatalf("failed to write blocker: %v", err)
	}
	s := NewFileStore(filepath.Join(blocker, DefaultFileName), quietLogger())

	if err := s.Save(ctx, schema.New()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Save() error = %v, want ErrUnavailable", err)
	}

	// A directory where the data file should be.
	d := NewFileStore(dir, quietLogger())
	if _, err := d.Load(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Load() error = %v, want ErrUnavailable", err)
	}
}

func TestFileStore_LastWritten(t *testing.T) {
	ctx := context.Background()
	s := testFileStore(t)

	if _, err := s.LastWritten(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("LastWritten() on missing file = %v, want ErrNotFound", err)
	}

	before := time.Now().Add(-time.Second)
	if err := s.Save(ctx, schema.New()); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	ts, err := s.LastWritten(ctx)
	if err != nil {
		t.Fatalf("LastWritten() failed: %v", err)
	}
	if ts.Before(before) {
		t.Errorf("LastWritten() = %v, expected after %v", ts, before)
	}
}

func TestFileStore_CanceledContext(t *testing.T) {
	s := testFileStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Save(ctx, schema.New()); !errors.Is(err, context.Canceled) {
		t.Errorf("Save() error = %v, want context.Canceled", err)
	}
}

type failingStore struct{ err error }

func (f failingStore) Load(context.Context) (*schema.Snapshot, error) { return nil, f.err }
func (f failingStore) Save(context.Context, *schema.Snapshot) error   { return f.err }

func TestFallback_Save(t *testing.T) {
	ctx := context.Background()

	t.Run("primary ok", func(t *testing.T) {
		primary := testFileStore(t)
		secondary := testFileStore(t)
		f := NewFallback(primary, secondary, quietLogger())

		if err := f.Save(ctx, schema.New()); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
		if _, err := secondary.Load(ctx); !errors.Is(err, ErrNotFound) {
			t.Error("secondary should not be written when primary succeeds")
		}
	})

	t.Run("primary unavailable", func(t *testing.T) {
		secondary := testFileStore(t)
		f := NewFallback(failingStore{err: errors.Join(ErrUnavailable, errors.New("disk full"))}, secondary, quietLogger())

		err := f.Save(ctx, schema.New())
		if !errors.Is(err, ErrDegraded) {
			t.Fatalf("Save() error = %v, want ErrDegraded", err)
		}
		if _, err := secondary.Load(ctx); err != nil {
			t.Errorf("secondary not written: %v", err)
		}
	})

	t.Run("other errors pass through", func(t *testing.T) {
		secondary := testFileStore(t)
		boom := errors.New("boom")
		f := NewFallback(failingStore{err: boom}, secondary, quietLogger())

		if err := f.Save(ctx, schema.New()); !errors.Is(err, boom) {
			t.Errorf("Save() error = %v, want boom", err)
		}
	})
}
