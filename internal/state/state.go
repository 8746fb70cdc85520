// Package state owns the in-memory snapshot of one window.
//
// A Controller is the only writer. Every mutation is a Reducer applied to a
// private copy, swapped in, saved and then broadcast to sibling windows.
// Snapshots received from siblings are merged with ApplyRemote, which keeps
// per-window UI preferences.
package state

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/muchacho/personal-manager/internal/broadcast"
	"github.com/muchacho/personal-manager/internal/migrate"
	"github.com/muchacho/personal-manager/internal/schema"
	"github.com/muchacho/personal-manager/internal/store"
)

var (
	// ErrNotBooted is returned by operations that need Boot to have run.
	ErrNotBooted = errors.New("state not booted")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("state controller closed")
)

// Config holds the collaborators of a Controller.
type Config struct {
	// Sources are read by Boot in precedence order. When empty, Store is
	// the only source.
	Sources []migrate.Source
	Policy  migrate.Policy
	// WriteBack receives recovered data at boot. Defaults to Store.
	WriteBack store.Store

	// Store receives every save.
	Store store.Store

	// Channel, when set, carries snapshots to and from sibling windows.
	Channel broadcast.Channel
	// Origin identifies this window on the channel.
	Origin string

	// OnRemote is called with the merged snapshot after a sibling update
	// was applied. It runs on the listener goroutine.
	OnRemote func(*schema.Snapshot)

	Env    Env
	Logger *log.Logger
}

// DefaultConfig returns a configuration with a fresh window id and a stderr
// logger. Store must still be set.
func DefaultConfig() *Config {
	return &Config{
		Policy: migrate.PreferNewest,
		Origin: schema.NewID(),
		Logger: log.New(os.Stderr, "[state] ", log.LstdFlags),
	}
}

// Controller owns the snapshot of one window.
type Controller struct {
	config *Config
	env    Env
	logger *log.Logger

	seq    *broadcast.Sequencer
	filter *broadcast.Filter

	mu     sync.Mutex
	snap   *schema.Snapshot
	boot   *migrate.Result
	closed bool

	listenOnce sync.Once
	cancel     context.CancelFunc
	done       chan struct{}
}

// New creates a controller. Boot must be called before use.
func New(config *Config) (*Controller, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Store == nil {
		return nil, errors.New("state: no store configured")
	}
	logger := config.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[state] ", log.LstdFlags)
	}
	origin := config.Origin
	if origin == "" {
		origin = schema.NewID()
		config.Origin = origin
	}
	return &Controller{
		config: config,
		env:    config.Env.withDefaults(),
		logger: logger,
		seq:    broadcast.NewSequencer(origin),
		filter: broadcast.NewFilter(origin),
	}, nil
}

// Origin returns the window id.
func (c *Controller) Origin() string { return c.config.Origin }

// NewID returns a record id from the controller's generator.
func (c *Controller) NewID() string { return c.env.NewID() }

// Boot loads the snapshot from the configured sources, running migrations
// and the precedence rule. It runs once; later calls return the first result.
func (c *Controller) Boot(ctx context.Context) (*migrate.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.boot != nil {
		return c.boot, nil
	}

	sources := c.config.Sources
	if len(sources) == 0 {
		sources = []migrate.Source{migrate.NewStoreSource(migrate.SourceFile, c.config.Store)}
	}
	writeBack := c.config.WriteBack
	if writeBack == nil {
		writeBack = c.config.Store
	}

	res, err := migrate.Bootstrap(ctx, sources, migrate.Options{
		Policy:    c.config.Policy,
		WriteBack: writeBack,
		Env:       migrate.Env{NewID: c.env.NewID, Now: c.env.Now},
		Logger:    c.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to boot state: %w", err)
	}
	res.Snapshot.SetDefaults()
	c.snap = res.Snapshot
	c.boot = res
	return res, nil
}

// Booted reports whether Boot has completed.
func (c *Controller) Booted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap != nil
}

// Snapshot returns a deep copy of the current state.
func (c *Controller) Snapshot() (*schema.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return nil, ErrNotBooted
	}
	return c.snap.Clone()
}

// View calls fn with the current state. fn must not modify or retain it.
func (c *Controller) View(fn func(s *schema.Snapshot)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap == nil {
		return ErrNotBooted
	}
	fn(c.snap)
	return nil
}

// Update applies r, then saves and broadcasts the result. If r fails the
// state is unchanged. A failed save keeps the new state in memory, returns
// the error and broadcasts nothing; a degraded save (fallback store) is
// logged and treated as saved.
func (c *Controller) Update(ctx context.Context, r Reducer) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.snap == nil {
		return ErrNotBooted
	}

	next, err := c.snap.Clone()
	if err != nil {
		return err
	}
	if err := r(next, c.env); err != nil {
		return err
	}
	c.snap = next
	return c.saveLocked(ctx)
}

// Save persists and broadcasts the current state without changing it.
func (c *Controller) Save(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.snap == nil {
		return ErrNotBooted
	}
	return c.saveLocked(ctx)
}

func (c *Controller) saveLocked(ctx context.Context) error {
	c.snap.SchemaVersion = schema.CurrentVersion
	if err := c.config.Store.Save(ctx, c.snap); err != nil {
		if !errors.Is(err, store.ErrDegraded) {
			return fmt.Errorf("failed to save state: %w", err)
		}
		c.logger.Printf("Warning: %v", err)
	}

	if c.config.Channel == nil {
		return nil
	}
	// c.snap is never mutated in place, so it can be shared with receivers.
	env := c.seq.Next(c.snap)
	if err := c.config.Channel.Publish(ctx, env); err != nil {
		c.logger.Printf("Warning: failed to broadcast seq %d: %v", env.Seq, err)
	}
	return nil
}

// ApplyRemote merges a sibling's snapshot into this window. It returns false
// when the envelope is ignored (own origin, stale sequence or no data). The
// merged state is not saved again; the sender already did.
func (c *Controller) ApplyRemote(env broadcast.Envelope) (bool, error) {
	if !c.filter.Accept(env) {
		return false, nil
	}

	remote, err := env.Snapshot.Clone()
	if err != nil {
		return false, err
	}
	if remote.SchemaVersion < schema.CurrentVersion {
		if _, err := migrate.Migrate(remote, migrate.Env{NewID: c.env.NewID, Now: c.env.Now}); err != nil {
			return false, fmt.Errorf("failed to migrate snapshot from %s: %w", env.Origin, err)
		}
	}
	remote.SetDefaults()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false, ErrClosed
	}
	if c.snap == nil {
		return false, ErrNotBooted
	}

	next, err := c.snap.Clone()
	if err != nil {
		return false, err
	}
	merge(next, remote)
	c.snap = next
	return true, nil
}

// merge copies the shared collections of src into dst. Theme, tab and
// derived fields stay as they are in dst.
func merge(dst, src *schema.Snapshot) {
	dst.Todos = src.Todos
	dst.Passwords = src.Passwords
	dst.APIs = src.APIs
	dst.Cards = src.Cards
	dst.Videos = src.Videos
	dst.Books = src.Books
	dst.Notes = src.Notes
	dst.Events = src.Events
	dst.Layout = src.Layout
}

// Listen starts applying envelopes from the channel until ctx is done or
// the channel closes. It is a no-op without a channel or on repeat calls.
func (c *Controller) Listen(ctx context.Context) {
	if c.config.Channel == nil {
		return
	}
	c.listenOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			cancel()
			return
		}
		c.cancel = cancel
		c.done = make(chan struct{})
		c.mu.Unlock()
		go c.listen(ctx, c.done)
	})
}

func (c *Controller) listen(ctx context.Context, done chan struct{}) {
	defer close(done)
	envelopes := c.config.Channel.Envelopes()
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-envelopes:
			if !ok {
				return
			}
			applied, err := c.ApplyRemote(env)
			if err != nil {
				c.logger.Printf("Warning: ignoring update from %s: %v", env.Origin, err)
				continue
			}
			if !applied {
				continue
			}
			if c.config.OnRemote != nil {
				if snap, err := c.Snapshot(); err == nil {
					c.config.OnRemote(snap)
				}
			}
		}
	}
}

// Close stops the listener and closes the channel. The store is left open.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel, done := c.cancel, c.done
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	if c.config.Channel != nil {
		return c.config.Channel.Close()
	}
	return nil
}
