package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/muchacho/personal-manager/internal/schema"
)

var (
	// ErrNoRecord is returned by reducers that target an id that does not exist.
	ErrNoRecord = errors.New("record not found")

	// ErrDuplicateID is returned when adding a record whose id is already taken.
	ErrDuplicateID = errors.New("duplicate record id")
)

// Env supplies ids and time to reducers.
type Env struct {
	Now   func() time.Time
	NewID func() string
}

func (e Env) withDefaults() Env {
	if e.Now == nil {
		e.Now = time.Now
	}
	if e.NewID == nil {
		e.NewID = schema.NewID
	}
	return e
}

// Reducer mutates a snapshot. It runs against a private copy, so a reducer
// that returns an error leaves the controller's state untouched.
type Reducer func(s *schema.Snapshot, env Env) error

// Chain runs reducers in order and stops at the first error.
func Chain(reducers ...Reducer) Reducer {
	return func(s *schema.Snapshot, env Env) error {
		for _, r := range reducers {
			if err := r(s, env); err != nil {
				return err
			}
		}
		return nil
	}
}

// Collection describes one record list of the snapshot. Added records go to
// the head of the list unless AppendOnAdd is set. Collections with
// MoveOnEdit also move an edited record to the head, the way notes and vault
// entries behave.
type Collection[T any] struct {
	Name        string
	MoveOnEdit  bool
	AppendOnAdd bool

	list  func(s *schema.Snapshot) *[]T
	id    func(r *T) *string
	stamp func(r *T, now time.Time)
	// created marks a new record; defaults to stamp.
	created func(r *T, now time.Time)
}

var (
	Todos = Collection[schema.Todo]{
		Name:  "todos",
		list:  func(s *schema.Snapshot) *[]schema.Todo { return &s.Todos },
		id:    func(r *schema.Todo) *string { return &r.ID },
		stamp: func(r *schema.Todo, now time.Time) { r.UpdatedAt = now },
		created: func(r *schema.Todo, now time.Time) {
			if r.Status == "" {
				r.Status = schema.StatusTodo
			}
			if r.Priority == "" {
				r.Priority = schema.PriorityMedium
			}
			r.Done = r.Status == schema.StatusDone
			r.UpdatedAt = now
		},
	}

	Passwords = Collection[schema.Password]{
		Name:       "passwords",
		MoveOnEdit: true,
		list:       func(s *schema.Snapshot) *[]schema.Password { return &s.Passwords },
		id:         func(r *schema.Password) *string { return &r.ID },
		stamp:      func(r *schema.Password, now time.Time) { r.UpdatedAt = now },
	}

	APIs = Collection[schema.APIKey]{
		Name:  "apis",
		list:  func(s *schema.Snapshot) *[]schema.APIKey { return &s.APIs },
		id:    func(r *schema.APIKey) *string { return &r.ID },
		stamp: func(r *schema.APIKey, now time.Time) { r.UpdatedAt = now },
	}

	Cards = Collection[schema.Card]{
		Name:  "cards",
		list:  func(s *schema.Snapshot) *[]schema.Card { return &s.Cards },
		id:    func(r *schema.Card) *string { return &r.ID },
		stamp: func(r *schema.Card, now time.Time) { r.UpdatedAt = now },
	}

	Videos = Collection[schema.Video]{
		Name:       "videos",
		MoveOnEdit: true,
		list:       func(s *schema.Snapshot) *[]schema.Video { return &s.Videos },
		id:         func(r *schema.Video) *string { return &r.ID },
		stamp:      func(r *schema.Video, now time.Time) { r.UpdatedAt = now },
	}

	Books = Collection[schema.Book]{
		Name:  "books",
		list:  func(s *schema.Snapshot) *[]schema.Book { return &s.Books },
		id:    func(r *schema.Book) *string { return &r.ID },
		stamp: func(r *schema.Book, now time.Time) { r.UpdatedAt = now },
		created: func(r *schema.Book, now time.Time) {
			if r.Notes == nil {
				r.Notes = []schema.BookNote{}
			}
			r.UpdatedAt = now
		},
	}

	Notes = Collection[schema.Note]{
		Name:       "notes",
		MoveOnEdit: true,
		list:       func(s *schema.Snapshot) *[]schema.Note { return &s.Notes },
		id:         func(r *schema.Note) *string { return &r.ID },
		stamp:      func(r *schema.Note, now time.Time) { r.UpdatedAt = now },
		created: func(r *schema.Note, now time.Time) {
			if r.Date.IsZero() {
				r.Date = now
			}
			r.UpdatedAt = now
		},
	}

	// Events keep creation order; listings sort by start.
	Events = Collection[schema.Event]{
		Name:        "events",
		AppendOnAdd: true,
		list:        func(s *schema.Snapshot) *[]schema.Event { return &s.Events },
		id:          func(r *schema.Event) *string { return &r.ID },
		stamp:       func(r *schema.Event, now time.Time) {},
		created: func(r *schema.Event, now time.Time) {
			if r.Type == "" {
				r.Type = schema.EventSchedule
			}
			if r.Color == "" {
				r.Color = schema.DefaultColor(r.Type)
			}
			if r.Created.IsZero() {
				r.Created = now
			}
		},
	}
)

func (c Collection[T]) index(s *schema.Snapshot, id string) int {
	items := *c.list(s)
	for i := range items {
		if *c.id(&items[i]) == id {
			return i
		}
	}
	return -1
}

// Find returns a pointer into s for the record with id.
func (c Collection[T]) Find(s *schema.Snapshot, id string) (*T, bool) {
	i := c.index(s, id)
	if i < 0 {
		return nil, false
	}
	return &(*c.list(s))[i], true
}

// Add puts rec at the head of the list, or at the tail with AppendOnAdd.
// An empty id is filled in.
func (c Collection[T]) Add(rec T) Reducer {
	return func(s *schema.Snapshot, env Env) error {
		idp := c.id(&rec)
		if *idp == "" {
			*idp = env.NewID()
		} else if c.index(s, *idp) >= 0 {
			return fmt.Errorf("%s %s: %w", c.Name, *idp, ErrDuplicateID)
		}
		now := env.Now().UTC()
		if c.created != nil {
			c.created(&rec, now)
		} else {
			c.stamp(&rec, now)
		}
		items := c.list(s)
		if c.AppendOnAdd {
			*items = append(*items, rec)
			return nil
		}
		*items = append([]T{rec}, *items...)
		return nil
	}
}

// Edit applies fn to the record with id and stamps it.
func (c Collection[T]) Edit(id string, fn func(r *T) error) Reducer {
	return func(s *schema.Snapshot, env Env) error {
		i := c.index(s, id)
		if i < 0 {
			return fmt.Errorf("%s %s: %w", c.Name, id, ErrNoRecord)
		}
		items := c.list(s)
		rec := (*items)[i]
		if err := fn(&rec); err != nil {
			return err
		}
		*c.id(&rec) = id
		c.stamp(&rec, env.Now().UTC())

		if !c.MoveOnEdit || i == 0 {
			(*items)[i] = rec
			return nil
		}
		rest := append((*items)[:i:i], (*items)[i+1:]...)
		*items = append([]T{rec}, rest...)
		return nil
	}
}

// Delete removes the record with id.
func (c Collection[T]) Delete(id string) Reducer {
	return func(s *schema.Snapshot, _ Env) error {
		i := c.index(s, id)
		if i < 0 {
			return fmt.Errorf("%s %s: %w", c.Name, id, ErrNoRecord)
		}
		items := c.list(s)
		*items = append((*items)[:i:i], (*items)[i+1:]...)
		return nil
	}
}

// SetTodoStatus moves a todo to another column and keeps Done in sync.
func SetTodoStatus(id string, status schema.Status) Reducer {
	return Todos.Edit(id, func(t *schema.Todo) error {
		if !status.Valid() {
			return fmt.Errorf("invalid status %q", status)
		}
		t.SetStatus(status)
		return nil
	})
}

// SetBookPage records reading progress.
func SetBookPage(id string, page int) Reducer {
	return Books.Edit(id, func(b *schema.Book) error {
		if page < 0 || (b.TotalPages > 0 && page > b.TotalPages) {
			return fmt.Errorf("page %d outside 0..%d", page, b.TotalPages)
		}
		b.CurrentPage = page
		return nil
	})
}

// AddBookNote puts a highlight at the head of a book's notes.
func AddBookNote(bookID string, note schema.BookNote) Reducer {
	return func(s *schema.Snapshot, env Env) error {
		book, ok := Books.Find(s, bookID)
		if !ok {
			return fmt.Errorf("books %s: %w", bookID, ErrNoRecord)
		}
		now := env.Now().UTC()
		if note.ID == "" {
			note.ID = env.NewID()
		}
		if note.CreatedAt.IsZero() {
			note.CreatedAt = now
		}
		book.Notes = append([]schema.BookNote{note}, book.Notes...)
		book.UpdatedAt = now
		return nil
	}
}

// EditBookNote applies fn to a highlight and moves it to the head of the
// book's notes.
func EditBookNote(bookID, noteID string, fn func(n *schema.BookNote) error) Reducer {
	return func(s *schema.Snapshot, env Env) error {
		book, ok := Books.Find(s, bookID)
		if !ok {
			return fmt.Errorf("books %s: %w", bookID, ErrNoRecord)
		}
		for i := range book.Notes {
			if book.Notes[i].ID != noteID {
				continue
			}
			note := book.Notes[i]
			if err := fn(&note); err != nil {
				return err
			}
			note.ID = noteID
			rest := append(book.Notes[:i:i], book.Notes[i+1:]...)
			book.Notes = append([]schema.BookNote{note}, rest...)
			book.UpdatedAt = env.Now().UTC()
			return nil
		}
		return fmt.Errorf("book note %s: %w", noteID, ErrNoRecord)
	}
}

// DeleteBookNote removes a highlight from a book.
func DeleteBookNote(bookID, noteID string) Reducer {
	return func(s *schema.Snapshot, env Env) error {
		book, ok := Books.Find(s, bookID)
		if !ok {
			return fmt.Errorf("books %s: %w", bookID, ErrNoRecord)
		}
		for i := range book.Notes {
			if book.Notes[i].ID == noteID {
				book.Notes = append(book.Notes[:i:i], book.Notes[i+1:]...)
				book.UpdatedAt = env.Now().UTC()
				return nil
			}
		}
		return fmt.Errorf("book note %s: %w", noteID, ErrNoRecord)
	}
}

// SetNoteSummary stores a worker summary on a note. The note is not moved or
// stamped; the summary is derived data.
func SetNoteSummary(id, summary string) Reducer {
	return func(s *schema.Snapshot, _ Env) error {
		n, ok := Notes.Find(s, id)
		if !ok {
			return fmt.Errorf("notes %s: %w", id, ErrNoRecord)
		}
		n.AISummary = summary
		return nil
	}
}

// SetNoteEmbedding stores an embedding vector on a note.
func SetNoteEmbedding(id string, vec []float64) Reducer {
	return func(s *schema.Snapshot, _ Env) error {
		n, ok := Notes.Find(s, id)
		if !ok {
			return fmt.Errorf("notes %s: %w", id, ErrNoRecord)
		}
		n.Embedding = append([]float64(nil), vec...)
		return nil
	}
}

// SetLayout picks the layout of a tab.
func SetLayout(tab, layout string) Reducer {
	return func(s *schema.Snapshot, _ Env) error {
		if _, ok := schema.DefaultLayouts[tab]; !ok {
			return fmt.Errorf("unknown tab %q", tab)
		}
		if layout == "" {
			return errors.New("layout cannot be empty")
		}
		if s.Layout == nil {
			s.Layout = map[string]string{}
		}
		s.Layout[tab] = layout
		return nil
	}
}

func SetTheme(theme string) Reducer {
	return func(s *schema.Snapshot, _ Env) error {
		s.Theme = theme
		return nil
	}
}

func SetTab(tab string) Reducer {
	return func(s *schema.Snapshot, _ Env) error {
		s.Tab = tab
		return nil
	}
}

func SetAnalysis(a schema.Analysis) Reducer {
	return func(s *schema.Snapshot, _ Env) error {
		s.AIAnalysis = &a
		return nil
	}
}

// SetPrioritized stores the scored todo list and copies each score onto the
// matching todo.
func SetPrioritized(todos []schema.Todo) Reducer {
	return func(s *schema.Snapshot, _ Env) error {
		scores := make(map[string]*float64, len(todos))
		for _, t := range todos {
			if t.AIScore != nil {
				v := *t.AIScore
				scores[t.ID] = &v
			}
		}
		for i := range s.Todos {
			if sc, ok := scores[s.Todos[i].ID]; ok {
				s.Todos[i].AIScore = sc
			}
		}
		list := append([]schema.Todo{}, todos...)
		s.PrioritizedTodos = &list
		return nil
	}
}

func SetSecurityHealth(r schema.SecurityReport) Reducer {
	return func(s *schema.Snapshot, _ Env) error {
		if r.Risks == nil {
			r.Risks = []string{}
		}
		s.SecurityHealth = &r
		return nil
	}
}

func SetBriefing(text string) Reducer {
	return func(s *schema.Snapshot, _ Env) error {
		s.DailyBriefing = &text
		return nil
	}
}
