package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/muchacho/personal-manager/internal/protocol"
	"github.com/muchacho/personal-manager/internal/schema"
)

// ErrStopped is returned by Send once the worker has been stopped.
var ErrStopped = errors.New("worker stopped")

// Config holds worker configuration.
type Config struct {
	Summarizer Summarizer
	Embedder   EmbedderLoader
	QueueSize  int
	Logger     *log.Logger
	Now        func() time.Time
}

// DefaultConfig returns the default worker configuration: extractive
// summaries and the hashing embedder.
func DefaultConfig() Config {
	return Config{
		Summarizer: Extractive{},
		Embedder: func(context.Context) (Embedder, error) {
			return NewHashEmbedder(DefaultHashDims), nil
		},
		QueueSize: 64,
		Logger:    log.New(os.Stderr, "[worker] ", log.LstdFlags),
		Now:       time.Now,
	}
}

// Worker handles compute requests one at a time on its own goroutine.
// Requests go in through Send and every request produces exactly one
// message on Responses: its result, or an ERROR carrying the request id.
type Worker struct {
	cfg    Config
	logger *log.Logger

	inbox  chan protocol.Message
	outbox chan protocol.Message

	embedMu  sync.Mutex
	embedder Embedder

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	stopped bool
}

// New creates a worker with the default configuration.
func New() *Worker {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a worker. Zero fields take their defaults.
func NewWithConfig(cfg Config) *Worker {
	def := DefaultConfig()
	if cfg.Summarizer == nil {
		cfg.Summarizer = def.Summarizer
	}
	if cfg.Embedder == nil {
		cfg.Embedder = def.Embedder
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		cfg:    cfg,
		logger: cfg.Logger,
		inbox:  make(chan protocol.Message, cfg.QueueSize),
		outbox: make(chan protocol.Message, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the processing goroutine. Calling it twice is a no-op.
func (w *Worker) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running || w.stopped {
		return
	}
	w.running = true
	w.wg.Add(1)
	go w.loop()
}

// Stop terminates the worker and closes the response channel. Requests
// still queued are dropped without a response.
func (w *Worker) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	running := w.running
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	if !running {
		// loop never ran, so nobody else closes it
		close(w.outbox)
	}
}

// IsRunning reports whether the worker is processing requests.
func (w *Worker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running && !w.stopped
}

// Send queues a request. It blocks while the queue is full.
func (w *Worker) Send(ctx context.Context, msg protocol.Message) error {
	select {
	case <-w.ctx.Done():
		return ErrStopped
	default:
	}
	select {
	case w.inbox <- msg:
		return nil
	case <-w.ctx.Done():
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Responses returns the channel results and errors are delivered on. It is
// closed after Stop.
func (w *Worker) Responses() <-chan protocol.Message {
	return w.outbox
}

func (w *Worker) loop() {
	defer w.wg.Done()
	defer close(w.outbox)

	for {
		select {
		case <-w.ctx.Done():
			return
		case req := <-w.inbox:
			resp := w.Handle(w.ctx, req)
			select {
			case w.outbox <- resp:
			case <-w.ctx.Done():
				return
			}
		}
	}
}

// Handle processes one request synchronously. It never panics: a failure,
// including a panic inside a handler, becomes an ERROR message.
func (w *Worker) Handle(ctx context.Context, req protocol.Message) (resp protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Printf("Error: %s request %s panicked: %v", req.Type, req.ID, r)
			resp = protocol.NewError(req, fmt.Errorf("internal error: %v", r))
		}
	}()

	data, err := w.handle(ctx, req)
	if err != nil {
		w.logger.Printf("Error: %s request %s failed: %v", req.Type, req.ID, err)
		return protocol.NewError(req, err)
	}

	rt, _ := protocol.ResponseType(req.Type)
	out, err := protocol.NewMessage(rt, req.ID, data)
	if err != nil {
		return protocol.NewError(req, err)
	}
	return out
}

func (w *Worker) handle(ctx context.Context, req protocol.Message) (any, error) {
	switch req.Type {
	case protocol.Summarize:
		var p protocol.SummarizeRequest
		if err := req.Decode(&p); err != nil {
			return nil, err
		}
		summary, err := w.cfg.Summarizer.Summarize(ctx, p.Text, p.Sentences)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			w.logger.Printf("Warning: summarizer failed, using extractive summary: %v", err)
			summary = Summarize(p.Text, p.Sentences)
		}
		return protocol.SummarizeResponse{ID: p.ID, Summary: summary}, nil

	case protocol.AnalyzeAll:
		var p protocol.AnalyzeRequest
		if err := req.Decode(&p); err != nil {
			return nil, err
		}
		return AnalyzeStrategy(p.Notes), nil

	case protocol.PrioritizeTodos:
		var p protocol.PrioritizeRequest
		if err := req.Decode(&p); err != nil {
			return nil, err
		}
		now := p.Now
		if now.IsZero() {
			now = w.cfg.Now()
		}
		return PrioritizeTodos(p.Todos, now), nil

	case protocol.SecurityHealth:
		var p protocol.SecurityRequest
		if err := req.Decode(&p); err != nil {
			return nil, err
		}
		return CheckSecurityHealth(p.Passwords), nil

	case protocol.DailyBriefing:
		var p protocol.BriefingRequest
		if err := req.Decode(&p); err != nil {
			return nil, err
		}
		today := p.Today
		if today == "" {
			today = w.cfg.Now().UTC().Format(schema.DateLayout)
		}
		return Briefing(p.Todos, p.Notes, today), nil

	case protocol.FindSimilar:
		var p protocol.SimilarRequest
		if err := req.Decode(&p); err != nil {
			return nil, err
		}
		return w.findSimilar(ctx, p)

	case protocol.GetEmbedding:
		var p protocol.EmbeddingRequest
		if err := req.Decode(&p); err != nil {
			return nil, err
		}
		emb, err := w.embed(ctx, p.Text)
		if err != nil {
			return nil, err
		}
		return protocol.EmbeddingResponse{ID: p.ID, Embedding: emb}, nil
	}
	return nil, fmt.Errorf("unknown request type %q", req.Type)
}

func (w *Worker) findSimilar(ctx context.Context, p protocol.SimilarRequest) ([]schema.Similarity, error) {
	if len(p.Texts) < 2 {
		return []schema.Similarity{}, nil
	}
	vecs := make([][]float64, len(p.Texts))
	for i, text := range p.Texts {
		v, err := w.embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	var ids []string
	if len(p.IDs) > 1 {
		ids = p.IDs[1:]
	}
	return RankSimilar(vecs[0], vecs[1:], ids), nil
}

func (w *Worker) embed(ctx context.Context, text string) ([]float64, error) {
	e, err := w.loadEmbedder(ctx)
	if err != nil {
		return nil, err
	}
	return e.Embed(ctx, text)
}

// loadEmbedder returns the cached embedder, loading it on first use.
func (w *Worker) loadEmbedder(ctx context.Context) (Embedder, error) {
	w.embedMu.Lock()
	defer w.embedMu.Unlock()
	if w.embedder != nil {
		return w.embedder, nil
	}
	e, err := w.cfg.Embedder(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load embedder: %w", err)
	}
	if e == nil {
		return nil, errors.New("failed to load embedder: loader returned nil")
	}
	w.embedder = e
	w.logger.Printf("Embedder loaded")
	return e, nil
}
