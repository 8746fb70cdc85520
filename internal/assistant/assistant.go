// Package assistant runs the AI features of pm. Each operation reads what it
// needs from the state controller, sends one request through the dispatcher
// to the compute worker and stores the answer with a reducer.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/muchacho/personal-manager/internal/dispatch"
	"github.com/muchacho/personal-manager/internal/protocol"
	"github.com/muchacho/personal-manager/internal/schema"
	"github.com/muchacho/personal-manager/internal/state"
)

// Decrypter opens vault values. *vault.Cipher implements it.
type Decrypter interface {
	Decrypt(ciphertext string) string
}

// Config holds the collaborators of an Assistant.
type Config struct {
	State      *state.Controller
	Dispatcher *dispatch.Dispatcher

	// Cipher, when set, decrypts passwords before the security check.
	// Without it the check runs on stored ciphertext.
	Cipher Decrypter

	// Sentences is the summary length; 0 uses the worker default.
	Sentences int

	Now    func() time.Time
	Logger *log.Logger
}

// Assistant issues worker requests on behalf of one window.
type Assistant struct {
	cfg    Config
	logger *log.Logger
}

// New creates an assistant.
func New(cfg Config) (*Assistant, error) {
	if cfg.State == nil {
		return nil, errors.New("assistant: no state controller")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("assistant: no dispatcher")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stderr, "[assistant] ", log.LstdFlags)
	}
	return &Assistant{cfg: cfg, logger: logger}, nil
}

// matchID accepts responses whose payload carries id. It guards the
// by-type dispatcher against a response meant for another note.
func matchID(id string) dispatch.Option {
	return dispatch.WithMatch(func(data json.RawMessage) bool {
		var p struct {
			ID string `json:"id"`
		}
		return json.Unmarshal(data, &p) == nil && p.ID == id
	})
}

func (a *Assistant) note(id string) (schema.Note, error) {
	var (
		n     schema.Note
		found bool
	)
	err := a.cfg.State.View(func(s *schema.Snapshot) {
		if p, ok := state.Notes.Find(s, id); ok {
			n, found = *p, true
		}
	})
	if err != nil {
		return n, err
	}
	if !found {
		return n, fmt.Errorf("note %s: %w", id, state.ErrNoRecord)
	}
	return n, nil
}

// SummarizeNote summarizes a note's content and stores it as the note's
// AI summary.
func (a *Assistant) SummarizeNote(ctx context.Context, id string) (string, error) {
	n, err := a.note(id)
	if err != nil {
		return "", err
	}
	resp, err := dispatch.Call[protocol.SummarizeResponse](ctx, a.cfg.Dispatcher, protocol.Summarize,
		protocol.SummarizeRequest{ID: id, Text: n.Content, Sentences: a.cfg.Sentences}, matchID(id))
	if err != nil {
		return "", fmt.Errorf("failed to summarize note %s: %w", id, err)
	}
	if err := a.cfg.State.Update(ctx, state.SetNoteSummary(id, resp.Summary)); err != nil {
		return resp.Summary, fmt.Errorf("failed to store summary: %w", err)
	}
	return resp.Summary, nil
}

// AnalyzeAllNotes runs the strategy analysis over every note.
func (a *Assistant) AnalyzeAllNotes(ctx context.Context) (schema.Analysis, error) {
	var notes []schema.Note
	if err := a.cfg.State.View(func(s *schema.Snapshot) {
		notes = s.Notes
	}); err != nil {
		return schema.Analysis{}, err
	}
	analysis, err := dispatch.Call[schema.Analysis](ctx, a.cfg.Dispatcher, protocol.AnalyzeAll,
		protocol.AnalyzeRequest{Notes: notes})
	if err != nil {
		return schema.Analysis{}, fmt.Errorf("failed to analyze notes: %w", err)
	}
	if err := a.cfg.State.Update(ctx, state.SetAnalysis(analysis)); err != nil {
		return analysis, fmt.Errorf("failed to store analysis: %w", err)
	}
	return analysis, nil
}

// PrioritizeTodos scores every todo and stores the sorted list.
func (a *Assistant) PrioritizeTodos(ctx context.Context) ([]schema.Todo, error) {
	var todos []schema.Todo
	if err := a.cfg.State.View(func(s *schema.Snapshot) {
		todos = s.Todos
	}); err != nil {
		return nil, err
	}
	ranked, err := dispatch.Call[[]schema.Todo](ctx, a.cfg.Dispatcher, protocol.PrioritizeTodos,
		protocol.PrioritizeRequest{Todos: todos, Now: a.cfg.Now()})
	if err != nil {
		return nil, fmt.Errorf("failed to prioritize todos: %w", err)
	}
	if err := a.cfg.State.Update(ctx, state.SetPrioritized(ranked)); err != nil {
		return ranked, fmt.Errorf("failed to store priorities: %w", err)
	}
	return ranked, nil
}

// CheckSecurityHealth scores the password vault.
func (a *Assistant) CheckSecurityHealth(ctx context.Context) (schema.SecurityReport, error) {
	var passwords []schema.Password
	if err := a.cfg.State.View(func(s *schema.Snapshot) {
		passwords = make([]schema.Password, len(s.Passwords))
		for i, p := range s.Passwords {
			// only the secret is needed
			passwords[i] = schema.Password{ID: p.ID, Title: p.Title, Pass: p.Pass}
			if a.cfg.Cipher != nil {
				passwords[i].Pass = a.cfg.Cipher.Decrypt(p.Pass)
			}
		}
	}); err != nil {
		return schema.SecurityReport{}, err
	}
	report, err := dispatch.Call[schema.SecurityReport](ctx, a.cfg.Dispatcher, protocol.SecurityHealth,
		protocol.SecurityRequest{Passwords: passwords})
	if err != nil {
		return schema.SecurityReport{}, fmt.Errorf("failed to check password health: %w", err)
	}
	if err := a.cfg.State.Update(ctx, state.SetSecurityHealth(report)); err != nil {
		return report, fmt.Errorf("failed to store security report: %w", err)
	}
	return report, nil
}

// DailyBriefing builds the greeting text for today.
func (a *Assistant) DailyBriefing(ctx context.Context) (string, error) {
	var req protocol.BriefingRequest
	if err := a.cfg.State.View(func(s *schema.Snapshot) {
		req = protocol.BriefingRequest{
			Todos: s.Todos,
			Notes: s.Notes,
			Today: a.cfg.Now().UTC().Format(schema.DateLayout),
		}
	}); err != nil {
		return "", err
	}
	text, err := dispatch.Call[string](ctx, a.cfg.Dispatcher, protocol.DailyBriefing, req)
	if err != nil {
		return "", fmt.Errorf("failed to build briefing: %w", err)
	}
	if err := a.cfg.State.Update(ctx, state.SetBriefing(text)); err != nil {
		return text, fmt.Errorf("failed to store briefing: %w", err)
	}
	return text, nil
}

// FindSimilarNotes ranks the other notes by similarity to note id. Nothing
// is stored.
func (a *Assistant) FindSimilarNotes(ctx context.Context, id string) ([]schema.Similarity, error) {
	var (
		req   protocol.SimilarRequest
		found bool
	)
	if err := a.cfg.State.View(func(s *schema.Snapshot) {
		target, ok := state.Notes.Find(s, id)
		if !ok {
			return
		}
		found = true
		req.Texts = append(req.Texts, target.Content)
		req.IDs = append(req.IDs, target.ID)
		for _, n := range s.Notes {
			if n.ID == id {
				continue
			}
			req.Texts = append(req.Texts, n.Content)
			req.IDs = append(req.IDs, n.ID)
		}
	}); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("note %s: %w", id, state.ErrNoRecord)
	}
	sims, err := dispatch.Call[[]schema.Similarity](ctx, a.cfg.Dispatcher, protocol.FindSimilar, req)
	if err != nil {
		return nil, fmt.Errorf("failed to find similar notes: %w", err)
	}
	return sims, nil
}

// GenerateEmbedding computes and stores the embedding of a note.
func (a *Assistant) GenerateEmbedding(ctx context.Context, id string) ([]float64, error) {
	n, err := a.note(id)
	if err != nil {
		return nil, err
	}
	resp, err := dispatch.Call[protocol.EmbeddingResponse](ctx, a.cfg.Dispatcher, protocol.GetEmbedding,
		protocol.EmbeddingRequest{ID: id, Text: n.Content}, matchID(id))
	if err != nil {
		return nil, fmt.Errorf("failed to embed note %s: %w", id, err)
	}
	if err := a.cfg.State.Update(ctx, state.SetNoteEmbedding(id, resp.Embedding)); err != nil {
		return resp.Embedding, fmt.Errorf("failed to store embedding: %w", err)
	}
	return resp.Embedding, nil
}

// Dashboard is the result of Refresh.
type Dashboard struct {
	Briefing    string
	Prioritized []schema.Todo
	Security    schema.SecurityReport
	Analysis    schema.Analysis
}

// Refresh runs the briefing, prioritization, security check and analysis
// concurrently. The first failure cancels the rest.
func (a *Assistant) Refresh(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		d.Briefing, err = a.DailyBriefing(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.Prioritized, err = a.PrioritizeTodos(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.Security, err = a.CheckSecurityHealth(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		d.Analysis, err = a.AnalyzeAllNotes(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	a.logger.Printf("Dashboard refreshed: %d todos ranked, security score %d", len(d.Prioritized), d.Security.Score)
	return &d, nil
}
