// Package dispatch provides a future-based request/response facade over the
// compute worker.
//
// Each Dispatch sends one request and returns a Future that settles exactly
// once: with the matching response, with the worker's ERROR, or with
// ErrClosed when the dispatcher shuts down. In the default mode requests are
// matched to responses by a generated correlation id, so any number of
// requests of the same type may be in flight.
//
// ModeByResponseType keeps one pending request per response type, as older
// builds did. A second request of the same type supersedes the first, whose
// future settles with ErrSuperseded instead of hanging.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/muchacho/personal-manager/internal/protocol"
)

var (
	ErrClosed             = errors.New("dispatcher closed")
	ErrSuperseded         = errors.New("request superseded by a newer request of the same type")
	ErrUnexpectedResponse = errors.New("unexpected response")
	ErrUnknownType        = errors.New("unknown request type")
)

// WorkerError is the failure reported by an ERROR message.
type WorkerError struct {
	Request protocol.Type
	ID      string
	Message string
}

func (e *WorkerError) Error() string {
	if e.Request == "" {
		return "worker error: " + e.Message
	}
	return fmt.Sprintf("worker error (%s): %s", e.Request, e.Message)
}

// Transport carries requests to a worker and responses back.
// *worker.Worker implements it.
type Transport interface {
	Send(ctx context.Context, msg protocol.Message) error
	Responses() <-chan protocol.Message
}

// Mode selects how responses are matched to pending requests.
type Mode int

const (
	// ModeCorrelated matches on the request id echoed by the worker.
	ModeCorrelated Mode = iota
	// ModeByResponseType matches on response type alone.
	ModeByResponseType
)

func (m Mode) String() string {
	if m == ModeByResponseType {
		return "by-type"
	}
	return "correlated"
}

// Notifier receives every worker error, whether or not a pending request
// could be matched to it.
type Notifier func(err *WorkerError)

// Config holds dispatcher configuration.
type Config struct {
	Mode     Mode
	Notifier Notifier
	Logger   *log.Logger
	NewID    func() string
}

// DefaultConfig returns a correlated dispatcher configuration.
func DefaultConfig() Config {
	return Config{
		Mode:   ModeCorrelated,
		Logger: log.New(os.Stderr, "[dispatch] ", log.LstdFlags),
		NewID:  uuid.NewString,
	}
}

// Result is the outcome of one request. Exactly one of Data and Err is set.
type Result struct {
	Type protocol.Type
	Data json.RawMessage
	Err  error
}

// Decode unmarshals the response payload into v, or returns Err.
func (r Result) Decode(v any) error {
	if r.Err != nil {
		return r.Err
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", r.Type, err)
	}
	return nil
}

// Future is a pending request.
type Future struct {
	id      string
	request protocol.Type
	match   func(json.RawMessage) bool

	once sync.Once
	done chan struct{}
	res  Result
}

func newFuture(id string, request protocol.Type) *Future {
	return &Future{id: id, request: request, done: make(chan struct{})}
}

// ID returns the request's correlation id.
func (f *Future) ID() string { return f.id }

// Request returns the request type.
func (f *Future) Request() protocol.Type { return f.request }

// Done is closed once the future has settled.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the future settles or ctx is done. A canceled wait
// leaves the request pending; it still settles later.
func (f *Future) Wait(ctx context.Context) Result {
	select {
	case <-f.done:
		return f.res
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

// settle reports whether this call settled the future.
func (f *Future) settle(r Result) bool {
	settled := false
	f.once.Do(func() {
		f.res = r
		settled = true
		close(f.done)
	})
	return settled
}

// Option adjusts a single dispatch.
type Option func(*Future)

// WithMatch attaches a check on the response payload. In ModeByResponseType
// a response failing the check is dropped and the request stays pending; in
// ModeCorrelated it settles the request with ErrUnexpectedResponse.
func WithMatch(match func(data json.RawMessage) bool) Option {
	return func(f *Future) { f.match = match }
}

// Dispatcher sends requests over a Transport and settles their futures.
type Dispatcher struct {
	transport Transport
	cfg       Config
	logger    *log.Logger

	mu      sync.Mutex
	pending map[string]*Future
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a correlated dispatcher and starts reading responses.
func New(t Transport) *Dispatcher {
	return NewWithConfig(t, DefaultConfig())
}

// NewWithConfig creates a dispatcher and starts reading responses.
func NewWithConfig(t Transport, cfg Config) *Dispatcher {
	def := DefaultConfig()
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.NewID == nil {
		cfg.NewID = def.NewID
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		transport: t,
		cfg:       cfg,
		logger:    cfg.Logger,
		pending:   make(map[string]*Future),
		ctx:       ctx,
		cancel:    cancel,
	}
	d.wg.Add(1)
	go d.receiveLoop()
	return d
}

// Mode returns the matching mode.
func (d *Dispatcher) Mode() Mode { return d.cfg.Mode }

// Pending returns the number of unsettled requests.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Dispatch sends a request and returns its future. An error means the
// request was never sent.
func (d *Dispatcher) Dispatch(ctx context.Context, typ protocol.Type, payload any, opts ...Option) (*Future, error) {
	rt, ok := protocol.ResponseType(typ)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, typ)
	}

	id := d.cfg.NewID()
	msg, err := protocol.NewMessage(typ, id, payload)
	if err != nil {
		return nil, err
	}

	f := newFuture(id, typ)
	for _, opt := range opts {
		opt(f)
	}
	key := d.key(id, rt)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	if prev, ok := d.pending[key]; ok {
		prev.settle(Result{Type: rt, Err: ErrSuperseded})
		d.logger.Printf("Warning: %s request %s superseded by %s", typ, prev.id, id)
	}
	d.pending[key] = f
	d.mu.Unlock()

	if err := d.transport.Send(ctx, msg); err != nil {
		d.remove(key, f)
		f.settle(Result{Err: err})
		return nil, fmt.Errorf("failed to send %s request: %w", typ, err)
	}
	return f, nil
}

// Call dispatches a request, waits for it and decodes the response into T.
func Call[T any](ctx context.Context, d *Dispatcher, typ protocol.Type, payload any, opts ...Option) (T, error) {
	var out T
	f, err := d.Dispatch(ctx, typ, payload, opts...)
	if err != nil {
		return out, err
	}
	err = f.Wait(ctx).Decode(&out)
	return out, err
}

// Close settles every pending request with ErrClosed and stops reading
// responses. The transport is left open.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	d.failAll(ErrClosed)
}

func (d *Dispatcher) key(id string, responseType protocol.Type) string {
	if d.cfg.Mode == ModeByResponseType {
		return string(responseType)
	}
	return id
}

func (d *Dispatcher) remove(key string, f *Future) {
	d.mu.Lock()
	if d.pending[key] == f {
		delete(d.pending, key)
	}
	d.mu.Unlock()
}

func (d *Dispatcher) failAll(err error) {
	d.mu.Lock()
	pending := d.pending
	d.pending = make(map[string]*Future)
	d.mu.Unlock()

	for _, f := range pending {
		f.settle(Result{Err: err})
	}
}

func (d *Dispatcher) receiveLoop() {
	defer d.wg.Done()
	responses := d.transport.Responses()
	for {
		select {
		case <-d.ctx.Done():
			return
		case msg, ok := <-responses:
			if !ok {
				d.mu.Lock()
				d.closed = true
				d.mu.Unlock()
				d.failAll(ErrClosed)
				return
			}
			d.deliver(msg)
		}
	}
}

func (d *Dispatcher) deliver(msg protocol.Message) {
	if msg.Type == protocol.Error {
		d.deliverError(msg)
		return
	}

	key := msg.ID
	if d.cfg.Mode == ModeByResponseType {
		key = string(msg.Type)
	}

	d.mu.Lock()
	f, ok := d.pending[key]
	if !ok {
		d.mu.Unlock()
		d.logger.Printf("Warning: dropping %s response %s with no pending request", msg.Type, msg.ID)
		return
	}

	want, _ := protocol.ResponseType(f.request)
	var res Result
	switch {
	case msg.Type != want:
		res = Result{Type: msg.Type, Err: fmt.Errorf("%w: got %s for %s request", ErrUnexpectedResponse, msg.Type, f.request)}
	case f.match != nil && !f.match(msg.Data):
		if d.cfg.Mode == ModeByResponseType {
			d.mu.Unlock()
			d.logger.Printf("Warning: dropping %s response %s not matching pending request %s", msg.Type, msg.ID, f.id)
			return
		}
		res = Result{Type: msg.Type, Err: fmt.Errorf("%w: %s payload does not match request %s", ErrUnexpectedResponse, msg.Type, f.id)}
	default:
		res = Result{Type: msg.Type, Data: msg.Data}
	}
	delete(d.pending, key)
	d.mu.Unlock()

	f.settle(res)
}

func (d *Dispatcher) deliverError(msg protocol.Message) {
	werr := &WorkerError{Request: msg.Request, ID: msg.ID, Message: msg.Error}
	d.logger.Printf("Error: %v", werr)
	if d.cfg.Notifier != nil {
		d.cfg.Notifier(werr)
	}

	key := msg.ID
	if d.cfg.Mode == ModeByResponseType {
		rt, ok := protocol.ResponseType(msg.Request)
		if !ok {
			return
		}
		key = string(rt)
	}

	d.mu.Lock()
	f, ok := d.pending[key]
	if ok {
		delete(d.pending, key)
	}
	d.mu.Unlock()

	if ok {
		f.settle(Result{Type: protocol.Error, Err: werr})
	}
}
