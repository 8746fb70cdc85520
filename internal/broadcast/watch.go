package broadcast

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/muchacho/personal-manager/internal/schema"
)

// WatchConfig holds FileWatcher configuration.
type WatchConfig struct {
	// Debounce is how long the file must stay quiet before it is reloaded.
	Debounce time.Duration
	Logger   *log.Logger
}

// DefaultWatchConfig returns the default watcher configuration.
func DefaultWatchConfig() *WatchConfig {
	return &WatchConfig{
		Debounce: 100 * time.Millisecond,
		Logger:   log.New(os.Stderr, "[watch] ", log.LstdFlags),
	}
}

// FileWatcher turns changes to the shared data file into envelopes. It
// implements Channel: Publish records what this window wrote so the
// resulting file event is not reported back.
type FileWatcher struct {
	path   string
	config *WatchConfig

	watcher *fsnotify.Watcher
	events  chan Envelope
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	stopped bool
	changed time.Time // zero when nothing is queued
	own     []byte
}

// NewFileWatcher creates a watcher for the data file at path. Call Start to
// begin watching.
func NewFileWatcher(path string, config *WatchConfig) (*FileWatcher, error) {
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	if config == nil {
		config = DefaultWatchConfig()
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultWatchConfig().Debounce
	}
	if config.Logger == nil {
		config.Logger = DefaultWatchConfig().Logger
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &FileWatcher{
		path:    abs,
		config:  config,
		watcher: watcher,
		events:  make(chan Envelope, 10),
		done:    make(chan struct{}),
	}, nil
}

// Path returns the watched file.
func (fw *FileWatcher) Path() string { return fw.path }

// Start watches the file's directory. The file itself need not exist yet.
func (fw *FileWatcher) Start() error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.running {
		return fmt.Errorf("watcher already running")
	}
	if fw.stopped {
		return ErrClosed
	}

	dir := filepath.Dir(fw.path)
	if err := fw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	fw.running = true
	fw.wg.Add(2)
	go fw.processEvents()
	go fw.processQueue()
	return nil
}

// IsRunning reports whether the watcher is active.
func (fw *FileWatcher) IsRunning() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.running
}

// Publish implements Channel.
func (fw *FileWatcher) Publish(ctx context.Context, env Envelope) error {
	if env.Snapshot == nil {
		return nil
	}
	data, err := env.Snapshot.Encode()
	if err != nil {
		return err
	}
	fw.mu.Lock()
	fw.own = data
	fw.mu.Unlock()
	return nil
}

// Envelopes implements Channel.
func (fw *FileWatcher) Envelopes() <-chan Envelope { return fw.events }

// Close implements Channel.
func (fw *FileWatcher) Close() error { return fw.Stop() }

// Stop stops watching and closes the envelope channel.
func (fw *FileWatcher) Stop() error {
	fw.mu.Lock()
	if fw.stopped {
		fw.mu.Unlock()
		return nil
	}
	fw.stopped = true
	fw.running = false
	fw.mu.Unlock()

	close(fw.done)
	err := fw.watcher.Close()
	fw.wg.Wait()
	close(fw.events)

	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (fw *FileWatcher) processEvents() {
	defer fw.wg.Done()

	for {
		select {
		case <-fw.done:
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !fw.relevant(event) {
				continue
			}
			fw.mu.Lock()
			fw.changed = time.Now()
			fw.mu.Unlock()

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.config.Logger.Printf("Watcher error: %v", err)
		}
	}
}

func (fw *FileWatcher) relevant(event fsnotify.Event) bool {
	abs, err := filepath.Abs(event.Name)
	if err != nil || abs != fw.path {
		return false
	}
	// the atomic save lands as Create (rename onto the path) on most platforms
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename)
}

func (fw *FileWatcher) processQueue() {
	defer fw.wg.Done()

	ticker := time.NewTicker(fw.config.Debounce)
	defer ticker.Stop()

	for {
		select {
		case <-fw.done:
			return
		case <-ticker.C:
			fw.mu.Lock()
			due := !fw.changed.IsZero() && time.Since(fw.changed) >= fw.config.Debounce
			if due {
				fw.changed = time.Time{}
			}
			fw.mu.Unlock()

			if due {
				fw.reload()
			}
		}
	}
}

func (fw *FileWatcher) reload() {
	data, err := os.ReadFile(fw.path)
	if err != nil {
		if !os.IsNotExist(err) {
			fw.config.Logger.Printf("Warning: failed to read %s: %v", fw.path, err)
		}
		return
	}

	fw.mu.Lock()
	own := bytes.Equal(bytes.TrimSpace(data), bytes.TrimSpace(fw.own))
	fw.mu.Unlock()
	if own {
		return
	}

	snap, err := schema.Decode(data)
	if err != nil {
		fw.config.Logger.Printf("Warning: ignoring unreadable change to %s: %v", fw.path, err)
		return
	}
	snap.SetDefaults()

	env := Envelope{Origin: "file:" + fw.path, SentAt: time.Now().UTC(), Snapshot: snap}
	select {
	case fw.events <- env:
		fw.config.Logger.Printf("Reloaded %s (%d records)", filepath.Base(fw.path), snap.RecordCount())
	case <-fw.done:
	}
}
