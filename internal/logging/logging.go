// Package logging builds the per-component *log.Logger values used across
// pm. Output goes to a size-rotated log file and, unless quiet, to stderr.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures the log sink.
type Options struct {
	// File is the log file path; empty disables file logging.
	File       string
	MaxSizeMB  int
	MaxBackups int
	// Quiet keeps log lines off stderr.
	Quiet bool
	// Stderr overrides os.Stderr, for tests.
	Stderr io.Writer
}

// Sink is a shared log destination.
type Sink struct {
	out     io.Writer
	rotator *lumberjack.Logger
}

// Open creates the sink described by opts. It fails when the log
// directory cannot be created.
func Open(opts Options) (*Sink, error) {
	var writers []io.Writer
	s := &Sink{}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		s.rotator = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			Compress:   true,
		}
		writers = append(writers, s.rotator)
	}
	if !opts.Quiet {
		stderr := opts.Stderr
		if stderr == nil {
			stderr = os.Stderr
		}
		writers = append(writers, stderr)
	}

	switch len(writers) {
	case 0:
		s.out = io.Discard
	case 1:
		s.out = writers[0]
	default:
		s.out = io.MultiWriter(writers...)
	}
	return s, nil
}

// Discard returns a sink that drops everything.
func Discard() *Sink {
	return &Sink{out: io.Discard}
}

// Logger returns a logger prefixed with [component].
func (s *Sink) Logger(component string) *log.Logger {
	return log.New(s.out, "["+component+"] ", log.LstdFlags)
}

// Writer returns the underlying writer.
func (s *Sink) Writer() io.Writer { return s.out }

// Close flushes and closes the log file.
func (s *Sink) Close() error {
	if s.rotator == nil {
		return nil
	}
	return s.rotator.Close()
}
