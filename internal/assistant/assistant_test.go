package assistant

import (
	"bytes"
	"context"
	"io"
	"log"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muchacho/personal-manager/internal/dispatch"
	"github.com/muchacho/personal-manager/internal/schema"
	"github.com/muchacho/personal-manager/internal/state"
	"github.com/muchacho/personal-manager/internal/store"
	"github.com/muchacho/personal-manager/internal/vault"
	"github.com/muchacho/personal-manager/internal/worker"
)

var testNow = time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC)

func quietLogger() *log.Logger { return log.New(io.Discard, "", 0) }

type harness struct {
	assistant  *Assistant
	state      *state.Controller
	dispatcher *dispatch.Dispatcher
	file       *store.FileStore
}

func newHarness(t *testing.T, cipher Decrypter, seed ...state.Reducer) *harness {
	t.Helper()
	ctx := context.Background()

	file := store.NewFileStore(filepath.Join(t.TempDir(), "data.json"), quietLogger())
	ctrl, err := state.New(&state.Config{
		Store:  file,
		Origin: "test",
		Env:    state.Env{Now: func() time.Time { return testNow }},
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	_, err = ctrl.Boot(ctx)
	require.NoError(t, err)
	if len(seed) > 0 {
		require.NoError(t, ctrl.Update(ctx, state.Chain(seed...)))
	}

	w := worker.NewWithConfig(worker.Config{
		Logger: quietLogger(),
		Now:    func() time.Time { return testNow },
	})
	w.Start()
	d := dispatch.NewWithConfig(w, dispatch.Config{Logger: quietLogger()})
	t.Cleanup(func() {
		d.Close()
		w.Stop()
		_ = ctrl.Close()
	})

	a, err := New(Config{
		State:      ctrl,
		Dispatcher: d,
		Cipher:     cipher,
		Now:        func() time.Time { return testNow },
		Logger:     quietLogger(),
	})
	require.NoError(t, err)
	return &harness{assistant: a, state: ctrl, dispatcher: d, file: file}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestPrioritizeTodos_OverdueHighPriority(t *testing.T) {
	h := newHarness(t, nil,
		state.Todos.Add(schema.Todo{ID: "t1", Text: "Pay rent", Priority: schema.PriorityHigh, DueDate: "2026-10-18"}),
		state.Todos.Add(schema.Todo{ID: "t2", Text: "Water plants", Priority: schema.PriorityLow}),
	)
	ctx := testContext(t)

	ranked, err := h.assistant.PrioritizeTodos(ctx)
	require.NoError(t, err)
	require.Len(t, ranked, 2)
	assert.Equal(t, "t1", ranked[0].ID)
	require.NotNil(t, ranked[0].AIScore)
	assert.GreaterOrEqual(t, *ranked[0].AIScore, 30.0)

	stored, err := h.file.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, stored.PrioritizedTodos)
	assert.Equal(t, "t1", (*stored.PrioritizedTodos)[0].ID)
	for _, td := range stored.Todos {
		assert.NotNil(t, td.AIScore, "todo %s has no score", td.ID)
	}
}

func TestCheckSecurityHealth_DuplicateCiphertext(t *testing.T) {
	const sealed = "q8Xr0Jm3vB1kTz9yL2wPaa=="
	h := newHarness(t, nil,
		state.Passwords.Add(schema.Password{ID: "p1", Title: "mail", Pass: sealed}),
		state.Passwords.Add(schema.Password{ID: "p2", Title: "bank", Pass: sealed}),
	)

	report, err := h.assistant.CheckSecurityHealth(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, 80, report.Score)
	assert.Equal(t, []string{"1 duplicate passwords detected."}, report.Risks)

	require.NoError(t, h.state.View(func(s *schema.Snapshot) {
		require.NotNil(t, s.SecurityHealth)
		assert.Equal(t, 80, s.SecurityHealth.Score)
	}))
}

func TestCheckSecurityHealth_DecryptsFirst(t *testing.T) {
	c, err := vault.New("hunter2", bytes.Repeat([]byte{7}, vault.SaltSize), quietLogger())
	require.NoError(t, err)

	long1, err := c.Encrypt("correct horse battery staple")
	require.NoError(t, err)
	long2, err := c.Encrypt("correct horse battery staple")
	require.NoError(t, err)
	short, err := c.Encrypt("abc123")
	require.NoError(t, err)
	require.NotEqual(t, long1, long2)

	h := newHarness(t, c,
		state.Passwords.Add(schema.Password{ID: "p1", Title: "a", Pass: long1}),
		state.Passwords.Add(schema.Password{ID: "p2", Title: "b", Pass: long2}),
		state.Passwords.Add(schema.Password{ID: "p3", Title: "c", Pass: short}),
	)

	report, err := h.assistant.CheckSecurityHealth(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, 70, report.Score)
	assert.Contains(t, report.Risks, "1 duplicate passwords detected.")
	assert.Contains(t, report.Risks, "1 passwords seem too short or weak.")

	// plaintext never reaches the stored document
	require.NoError(t, h.state.View(func(s *schema.Snapshot) {
		for _, p := range s.Passwords {
			assert.NotContains(t, p.Pass, "horse")
		}
	}))
}

func TestSummarizeNote(t *testing.T) {
	content := "RSI crossed 70 on AAPL. I took profit at the open. The trend stayed strong. Volume was light. Next week looks quiet."
	h := newHarness(t, nil, state.Notes.Add(schema.Note{ID: "n1", Title: "AAPL", Content: content}))
	ctx := testContext(t)

	summary, err := h.assistant.SummarizeNote(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, worker.Summarize(content, worker.DefaultSummarySentences), summary)

	stored, err := h.file.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, summary, stored.Notes[0].AISummary)
}

func TestSummarizeNote_Missing(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.assistant.SummarizeNote(testContext(t), "nope")
	assert.ErrorIs(t, err, state.ErrNoRecord)
}

func TestConcurrentSummariesDoNotClobber(t *testing.T) {
	h := newHarness(t, nil,
		state.Notes.Add(schema.Note{ID: "n1", Content: "Alpha one. Alpha two. Alpha three. Alpha four."}),
		state.Notes.Add(schema.Note{ID: "n2", Content: "Beta one. Beta two. Beta three. Beta four."}),
	)
	ctx := testContext(t)

	var wg sync.WaitGroup
	results := make(map[string]string)
	var mu sync.Mutex
	for _, id := range []string{"n1", "n2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			s, err := h.assistant.SummarizeNote(ctx, id)
			assert.NoError(t, err)
			mu.Lock()
			results[id] = s
			mu.Unlock()
		}(id)
	}
	wg.Wait()

	assert.Contains(t, results["n1"], "Alpha")
	assert.Contains(t, results["n2"], "Beta")
	require.NoError(t, h.state.View(func(s *schema.Snapshot) {
		for _, n := range s.Notes {
			assert.NotEmpty(t, n.AISummary, "note %s lost its summary", n.ID)
		}
	}))
}

func TestAnalyzeAllNotes(t *testing.T) {
	h := newHarness(t, nil,
		state.Notes.Add(schema.Note{ID: "n1", Content: "RSI divergence on AAPL, nice profit"}),
		state.Notes.Add(schema.Note{ID: "n2", Content: "Bull flag breakout on TSLA"}),
	)

	analysis, err := h.assistant.AnalyzeAllNotes(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, 1, analysis.Indicators["RSI"])
	assert.Equal(t, 1, analysis.Tickers["AAPL"])
	assert.Equal(t, 1, analysis.Patterns["Bull Flag"])
	assert.NotContains(t, analysis.Tickers, "RSI")

	require.NoError(t, h.state.View(func(s *schema.Snapshot) {
		require.NotNil(t, s.AIAnalysis)
		assert.Equal(t, 1, s.AIAnalysis.Tickers["TSLA"])
	}))
}

func TestDailyBriefing(t *testing.T) {
	h := newHarness(t, nil,
		state.Todos.Add(schema.Todo{Text: "late", DueDate: "2026-10-01"}),
		state.Todos.Add(schema.Todo{Text: "today", DueDate: "2026-10-19"}),
		state.Todos.Add(schema.Todo{Text: "finished", DueDate: "2026-10-01", Status: schema.StatusDone}),
		state.Notes.Add(schema.Note{Title: "Older"}),
		state.Notes.Add(schema.Note{Title: "Gap fill plan"}),
	)

	text, err := h.assistant.DailyBriefing(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, `Good day! You have 1 tasks due today and 1 overdue items. Your latest strategy note is "Gap fill plan". `, text)

	require.NoError(t, h.state.View(func(s *schema.Snapshot) {
		require.NotNil(t, s.DailyBriefing)
		assert.Equal(t, text, *s.DailyBriefing)
	}))
}

func TestFindSimilarNotes(t *testing.T) {
	h := newHarness(t, nil,
		state.Notes.Add(schema.Note{ID: "a", Content: "gold futures rallied after the fed meeting"}),
		state.Notes.Add(schema.Note{ID: "b", Content: "gold futures rallied after the fed meeting"}),
		state.Notes.Add(schema.Note{ID: "c", Content: "remember to buy milk and eggs"}),
	)

	sims, err := h.assistant.FindSimilarNotes(testContext(t), "a")
	require.NoError(t, err)
	var twin *schema.Similarity
	for i, s := range sims {
		assert.NotEqual(t, "a", s.ID)
		if s.ID == "b" {
			twin = &sims[i]
		}
	}
	require.NotNil(t, twin, "identical note not reported: %v", sims)
	assert.InDelta(t, 1.0, twin.Score, 1e-9)

	_, err = h.assistant.FindSimilarNotes(testContext(t), "missing")
	assert.ErrorIs(t, err, state.ErrNoRecord)
}

func TestGenerateEmbedding(t *testing.T) {
	h := newHarness(t, nil, state.Notes.Add(schema.Note{ID: "n1", Content: "mean reversion on SPY"}))

	vec, err := h.assistant.GenerateEmbedding(testContext(t), "n1")
	require.NoError(t, err)
	assert.Len(t, vec, worker.DefaultHashDims)

	require.NoError(t, h.state.View(func(s *schema.Snapshot) {
		assert.Equal(t, vec, s.Notes[0].Embedding)
	}))
}

func TestRefresh(t *testing.T) {
	h := newHarness(t, nil,
		state.Todos.Add(schema.Todo{Text: "Pay rent", Priority: schema.PriorityHigh, DueDate: "2026-10-18"}),
		state.Notes.Add(schema.Note{Title: "Plan", Content: "MACD cross on NVDA"}),
		state.Passwords.Add(schema.Password{Title: "mail", Pass: "short"}),
	)

	d, err := h.assistant.Refresh(testContext(t))
	require.NoError(t, err)
	assert.Contains(t, d.Briefing, "1 overdue items")
	assert.Len(t, d.Prioritized, 1)
	assert.Equal(t, 90, d.Security.Score)
	assert.Equal(t, 1, d.Analysis.Indicators["MACD"])

	snap, err := h.state.Snapshot()
	require.NoError(t, err)
	assert.NotNil(t, snap.DailyBriefing)
	assert.NotNil(t, snap.PrioritizedTodos)
	assert.NotNil(t, snap.SecurityHealth)
	assert.NotNil(t, snap.AIAnalysis)
}

func TestDispatcherClosed(t *testing.T) {
	h := newHarness(t, nil, state.Notes.Add(schema.Note{ID: "n1", Content: "x"}))
	h.dispatcher.Close()

	_, err := h.assistant.SummarizeNote(testContext(t), "n1")
	assert.ErrorIs(t, err, dispatch.ErrClosed)
	_, err = h.assistant.AnalyzeAllNotes(testContext(t))
	assert.ErrorIs(t, err, dispatch.ErrClosed)
}
