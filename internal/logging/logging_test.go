package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSinkWritesFileAndStderr(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "pm.log")
	var stderr bytes.Buffer

	sink, err := Open(Options{File: path, MaxSizeMB: 1, Stderr: &stderr})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	sink.Logger("store").Printf("saved %d records", 3)
	if err := sink.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), "[store] ") || !strings.Contains(string(data), "saved 3 records") {
		t.Errorf("unexpected log file content: %q", data)
	}
	if !strings.Contains(stderr.String(), "saved 3 records") {
		t.Errorf("stderr missing line: %q", stderr.String())
	}
}

func TestQuietSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pm.log")
	var stderr bytes.Buffer

	sink, err := Open(Options{File: path, Quiet: true, Stderr: &stderr})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer sink.Close()
	sink.Logger("worker").Println("hello")

	if stderr.Len() != 0 {
		t.Errorf("quiet sink wrote to stderr: %q", stderr.String())
	}
}

func TestDiscard(t *testing.T) {
	sink, err := Open(Options{Quiet: true})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	sink.Logger("x").Println("nothing")
	if err := sink.Close(); err != nil {
		t.Errorf("Close on file-less sink failed: %v", err)
	}
	Discard().Logger("y").Println("nothing either")
}

func TestOpenFailsWhenLogDirCannotBeCreated(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}

	sink, err := Open(Options{File: filepath.Join(blocker, "logs", "pm.log")})
	if err == nil {
		t.Fatal("expected an error when the log directory is a file")
	}
	if sink != nil {
		t.Error("expected no sink on error")
	}
}
