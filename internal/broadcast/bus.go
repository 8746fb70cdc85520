package broadcast

import (
	"context"
	"log"
	"os"
	"sync"
)

// Bus connects windows living in the same process.
type Bus struct {
	mu        sync.RWMutex
	endpoints map[*Endpoint]bool
	logger    *log.Logger
}

// NewBus creates an empty bus. A nil logger writes to stderr.
func NewBus(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.New(os.Stderr, "[broadcast] ", log.LstdFlags)
	}
	return &Bus{endpoints: make(map[*Endpoint]bool), logger: logger}
}

// Join attaches a window to the bus.
func (b *Bus) Join(origin string) *Endpoint {
	e := &Endpoint{bus: b, origin: origin, ch: make(chan Envelope, 100)}
	b.mu.Lock()
	b.endpoints[e] = true
	b.mu.Unlock()
	return e
}

// Size returns the number of attached windows.
func (b *Bus) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.endpoints)
}

func (b *Bus) publish(from *Endpoint, env Envelope) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for e := range b.endpoints {
		if e == from {
			continue
		}
		select {
		case e.ch <- env:
		default:
			b.logger.Printf("Warning: window %s is not draining broadcasts, dropping seq %d from %s", e.origin, env.Seq, env.Origin)
		}
	}
}

func (b *Bus) leave(e *Endpoint) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.endpoints[e] {
		return false
	}
	delete(b.endpoints, e)
	close(e.ch)
	return true
}

// Endpoint is one window's view of a Bus. It implements Channel.
type Endpoint struct {
	bus    *Bus
	origin string
	ch     chan Envelope
	closed sync.Once
	done   bool
	mu     sync.Mutex
}

// Publish implements Channel.
func (e *Endpoint) Publish(ctx context.Context, env Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	done := e.done
	e.mu.Unlock()
	if done {
		return ErrClosed
	}
	e.bus.publish(e, env)
	return nil
}

// Envelopes implements Channel.
func (e *Endpoint) Envelopes() <-chan Envelope { return e.ch }

// Close implements Channel.
func (e *Endpoint) Close() error {
	e.closed.Do(func() {
		e.mu.Lock()
		e.done = true
		e.mu.Unlock()
		e.bus.leave(e)
	})
	return nil
}
