package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a Todo.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusDone       Status = "done"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusDone:
		return true
	}
	return false
}

// Priority is the user-assigned importance tier of a Todo.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// EventType classifies a calendar Event.
type EventType string

const (
	EventSchedule EventType = "schedule"
	EventReminder EventType = "reminder"
	EventTask     EventType = "task"
)

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool {
	switch t {
	case EventSchedule, EventReminder, EventTask:
		return true
	}
	return false
}

// Default event colors per type, and the palette offered when creating one.
const (
	ColorSchedule = "#3b82f6"
	ColorReminder = "#f59e0b"
	ColorTask     = "#10b981"
)

// EventPalette lists the colors a user can pick for an event.
var EventPalette = []string{"#3b82f6", "#ef4444", "#10b981", "#f59e0b", "#8b5cf6"}

// DefaultColor returns the color assigned to events of type t when none is given.
func DefaultColor(t EventType) string {
	switch t {
	case EventReminder:
		return ColorReminder
	case EventTask:
		return ColorTask
	default:
		return ColorSchedule
	}
}

// DateLayout is the calendar-date format used for Todo due dates.
const DateLayout = "2006-01-02"

// NewID returns a fresh record identifier.
func NewID() string {
	return uuid.NewString()
}

// Todo is a single task on the todo list.
type Todo struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Status   Status   `json:"status,omitempty"`
	Done     bool     `json:"done"` // mirrors Status == done for older readers
	Priority Priority `json:"priority,omitempty"`
	DueDate  string   `json:"dueDate,omitempty"` // YYYY-MM-DD

	AIScore   *float64  `json:"aiScore,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// IsDone reports whether the todo is completed under either representation.
func (t *Todo) IsDone() bool {
	return t.Status == StatusDone || t.Done
}

// SetStatus updates Status and keeps the legacy Done flag in sync.
func (t *Todo) SetStatus(s Status) {
	t.Status = s
	t.Done = s == StatusDone
}

// SecurityQuestion is a recovery question stored with a password. A is ciphertext.
type SecurityQuestion struct {
	Q string `json:"q"`
	A string `json:"a"`
}

// Password is a vault login entry. Pass and every question answer are ciphertext.
type Password struct {
	ID        string             `json:"id"`
	Title     string             `json:"title"`
	User      string             `json:"user,omitempty"`
	Pass      string             `json:"pass"`
	Questions []SecurityQuestion `json:"qs,omitempty"`
	Notes     string             `json:"notes,omitempty"`
	UpdatedAt time.Time          `json:"updatedAt,omitzero"`
}

// APIKey is a stored API credential. Key and Secret are ciphertext.
type APIKey struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	Secret    string    `json:"secret,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Card is a stored payment card. Number and CVV are ciphertext; Last4 is kept
// in clear for display.
type Card struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Number    string    `json:"number"`
	Last4     string    `json:"last4,omitempty"`
	Exp       string    `json:"exp,omitempty"`
	CVV       string    `json:"cvv"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// Video tracks progress through a show or film.
type Video struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Season    string    `json:"season,omitempty"`
	Episode   string    `json:"episode,omitempty"`
	Time      string    `json:"time,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// PageRef is the page a book note refers to, as typed by the user. It is
// written as a string; numbers are accepted when reading.
type PageRef string

// PageNumber converts a page number, 0 meaning no page.
func PageNumber(n int) PageRef {
	if n <= 0 {
		return ""
	}
	return PageRef(strconv.Itoa(n))
}

// UnmarshalJSON accepts a string, a number or null.
func (p *PageRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*p = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = PageRef(s)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("invalid page %s: %w", data, err)
		}
		*p = PageRef(n.String())
	}
	return nil
}

// BookNote is a highlight or annotation inside a Book.
type BookNote struct {
	ID             string    `json:"id"`
	Page           PageRef   `json:"page,omitempty"`
	Highlight      string    `json:"highlight,omitempty"`
	HighlightColor string    `json:"highlightColor,omitempty"`
	Note           string    `json:"note,omitempty"`
	IsImportant    bool      `json:"isImportant,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitzero"`
}

// Book tracks reading progress and owns its highlights, newest first.
type Book struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Author      string     `json:"author,omitempty"`
	CurrentPage int        `json:"currentPage"`
	TotalPages  int        `json:"totalPages"`
	Notes       []BookNote `json:"notes"`
	UpdatedAt   time.Time  `json:"updatedAt,omitzero"`
}

// Progress returns the reading progress in percent, 0 when the page count is unknown.
func (b *Book) Progress() int {
	if b.TotalPages <= 0 {
		return 0
	}
	p := b.CurrentPage * 100 / b.TotalPages
	if p > 100 {
		return 100
	}
	return p
}

// Note is a free-form note. AISummary and Embedding are derived and may be absent.
type Note struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Content    string    `json:"content"`
	Category   string    `json:"category,omitempty"`
	Color      string    `json:"color,omitempty"`
	Pinned     bool      `json:"pinned,omitempty"`
	IsMarkdown bool      `json:"isMarkdown,omitempty"`
	AISummary  string    `json:"aiSummary,omitempty"`
	Embedding  []float64 `json:"embedding,omitempty"`
	Date       time.Time `json:"date,omitzero"`
	UpdatedAt  time.Time `json:"updatedAt,omitzero"`
}

// Event is a calendar entry. Start is kept as entered (datetime-local or a
// bare time of day for recurring schedule items).
type Event struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Start       string    `json:"start"`
	Type        EventType `json:"type"`
	Color       string    `json:"color,omitempty"`
	Description string    `json:"description,omitempty"`
	Created     time.Time `json:"created,omitzero"`
}

// LegacyScheduleItem is a weekly timetable entry from before events existed.
// Older builds wrote the label under "title", some under "task".
type LegacyScheduleItem struct {
	ID    string `json:"id,omitempty"`
	Title string `json:"title,omitempty"`
	Task  string `json:"task,omitempty"`
	Day   string `json:"day,omitempty"`
	Time  string `json:"time,omitempty"`
}

// Label returns the display label of the item.
func (l LegacyScheduleItem) Label() string {
	if l.Title != "" {
		return l.Title
	}
	return l.Task
}

// LegacyReminder is a reminder entry from before events existed.
type LegacyReminder struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
	Time string `json:"time,omitempty"`
}

// Sentiment tallies notes mentioning wins and losses.
type Sentiment struct {
	Win  int `json:"win"`
	Loss int `json:"loss"`
}

// Analysis is the strategy analysis over all notes.
type Analysis struct {
	Indicators map[string]int `json:"indicators"`
	Tickers    map[string]int `json:"tickers"`
	Patterns   map[string]int `json:"patterns"`
	Sentiment  Sentiment      `json:"sentiment"`
}

// SecurityReport is the password health result.
type SecurityReport struct {
	Score int      `json:"score"`
	Risks []string `json:"risks"`
}

// Similarity pairs a note id with its similarity to a target note.
type Similarity struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}
