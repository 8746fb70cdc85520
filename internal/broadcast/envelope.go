// Package broadcast propagates saved snapshots between windows that share a
// data directory.
//
// A window publishes an Envelope after every successful save. Channels
// deliver envelopes from other windows only; Filter drops a window's own
// echoes and anything older than what was already seen from the same origin.
// Receivers overwrite their collections wholesale, so the last broadcast
// observed wins.
//
// Three channels are provided: Bus for windows inside one process, Hub and
// Client for windows in separate processes talking through a websocket
// relay, and FileWatcher for windows that only share the data file.
package broadcast

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/muchacho/personal-manager/internal/schema"
)

// ErrClosed is returned when publishing on a closed channel.
var ErrClosed = errors.New("broadcast channel closed")

// Envelope wraps a snapshot with its sender and sequence number.
type Envelope struct {
	Origin   string           `json:"origin"`
	Seq      uint64           `json:"seq"`
	SentAt   time.Time        `json:"sentAt"`
	Snapshot *schema.Snapshot `json:"snapshot"`
}

// Channel is one window's connection to its siblings.
type Channel interface {
	// Publish sends env to every other window.
	Publish(ctx context.Context, env Envelope) error
	// Envelopes delivers envelopes from other windows. It is closed by Close.
	Envelopes() <-chan Envelope
	Close() error
}

// Sequencer stamps outgoing envelopes for one origin.
type Sequencer struct {
	origin string
	seq    atomic.Uint64
	now    func() time.Time
}

// NewSequencer creates a sequencer for origin.
func NewSequencer(origin string) *Sequencer {
	return &Sequencer{origin: origin, now: time.Now}
}

// Origin returns the window id.
func (s *Sequencer) Origin() string { return s.origin }

// Next wraps snap in a new envelope.
func (s *Sequencer) Next(snap *schema.Snapshot) Envelope {
	return Envelope{
		Origin:   s.origin,
		Seq:      s.seq.Add(1),
		SentAt:   s.now().UTC(),
		Snapshot: snap,
	}
}

// Filter decides which incoming envelopes a window applies.
type Filter struct {
	self string

	mu   sync.Mutex
	last map[string]uint64
}

// NewFilter creates a filter for the window self.
func NewFilter(self string) *Filter {
	return &Filter{self: self, last: make(map[string]uint64)}
}

// Accept reports whether env should be applied. Envelopes from self, without
// a snapshot, or not newer than the last accepted one from the same origin
// are rejected. Envelopes with Seq 0 are unordered and always accepted.
func (f *Filter) Accept(env Envelope) bool {
	if env.Snapshot == nil || (env.Origin != "" && env.Origin == f.self) {
		return false
	}
	if env.Seq == 0 {
		return true
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if env.Seq <= f.last[env.Origin] {
		return false
	}
	f.last[env.Origin] = env.Seq
	return true
}
