package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CurrentVersion is the schemaVersion written by this build.
//
//	0 - unversioned, todos may carry only the legacy "done" flag
//	1 - todo status populated
//	2 - schedule and reminders folded into events
//	3 - all collections and layout defaults present
const CurrentVersion = 3

// Default UI preferences.
const (
	DefaultTheme = "dark"
	DefaultTab   = "todos"
)

// DefaultLayouts maps each tab to its initial layout identifier.
var DefaultLayouts = map[string]string{
	"todos":      "1x1-v",
	"securities": "list",
	"videos":     "grid",
	"books":      "grid",
	"notes":      "grid",
}

// Snapshot is the complete persisted document.
//
// Derived fields are pointers: nil means "not yet computed" and is omitted
// from the JSON, while a non-nil empty value means "computed, nothing found".
type Snapshot struct {
	SchemaVersion int `json:"schemaVersion"`

	Todos     []Todo     `json:"todos"`
	Passwords []Password `json:"passwords"`
	APIs      []APIKey   `json:"apis"`
	Cards     []Card     `json:"cards"`
	Videos    []Video    `json:"videos"`
	Books     []Book     `json:"books"`
	Notes     []Note     `json:"notes"`
	Events    []Event    `json:"events"`

	Layout map[string]string `json:"layout"`
	Theme  string            `json:"theme,omitempty"`
	Tab    string            `json:"tab,omitempty"`

	// Read from pre-events documents only; cleared once folded into Events.
	Schedule  []LegacyScheduleItem `json:"schedule,omitempty"`
	Reminders []LegacyReminder     `json:"reminders,omitempty"`

	AIAnalysis       *Analysis       `json:"aiAnalysis,omitempty"`
	PrioritizedTodos *[]Todo         `json:"prioritizedTodos,omitempty"`
	SecurityHealth   *SecurityReport `json:"securityHealth,omitempty"`
	DailyBriefing    *string         `json:"dailyBriefing,omitempty"`
}

// New returns an empty snapshot at the current schema version.
func New() *Snapshot {
	s := &Snapshot{SchemaVersion: CurrentVersion}
	s.SetDefaults()
	return s
}

// SetDefaults backfills absent collections with empty ones and fills in
// layout and UI defaults. Derived fields are left untouched.
func (s *Snapshot) SetDefaults() {
	if s.Todos == nil {
		s.Todos = []Todo{}
	}
	if s.Passwords == nil {
		s.Passwords = []Password{}
	}
	if s.APIs == nil {
		s.APIs = []APIKey{}
	}
	if s.Cards == nil {
		s.Cards = []Card{}
	}
	if s.Videos == nil {
		s.Videos = []Video{}
	}
	if s.Books == nil {
		s.Books = []Book{}
	}
	for i := range s.Books {
		if s.Books[i].Notes == nil {
			s.Books[i].Notes = []BookNote{}
		}
	}
	if s.Notes == nil {
		s.Notes = []Note{}
	}
	if s.Events == nil {
		s.Events = []Event{}
	}
	if s.Layout == nil {
		s.Layout = make(map[string]string, len(DefaultLayouts))
	}
	for tab, layout := range DefaultLayouts {
		if _, ok := s.Layout[tab]; !ok {
			s.Layout[tab] = layout
		}
	}
	if s.Theme == "" {
		s.Theme = DefaultTheme
	}
	if s.Tab == "" {
		s.Tab = DefaultTab
	}
}

// RecordCount returns the number of top-level user records.
func (s *Snapshot) RecordCount() int {
	return len(s.Todos) + len(s.Passwords) + len(s.APIs) + len(s.Cards) +
		len(s.Videos) + len(s.Books) + len(s.Notes) + len(s.Events)
}

// Validate checks id uniqueness per collection and enum values.
func (s *Snapshot) Validate() error {
	if s.SchemaVersion < 0 || s.SchemaVersion > CurrentVersion {
		return fmt.Errorf("schemaVersion must be between 0 and %d (got %d)", CurrentVersion, s.SchemaVersion)
	}

	todoIDs := make([]string, len(s.Todos))
	for i, t := range s.Todos {
		todoIDs[i] = t.ID
		if t.Status != "" && !t.Status.Valid() {
			return fmt.Errorf("todo %s: invalid status %q", t.ID, t.Status)
		}
		if t.Priority != "" && !t.Priority.Valid() {
			return fmt.Errorf("todo %s: invalid priority %q", t.ID, t.Priority)
		}
	}
	if err := uniqueIDs("todos", todoIDs); err != nil {
		return err
	}

	if err := uniqueIDs("passwords", collectIDs(s.Passwords, func(p Password) string { return p.ID })); err != nil {
		return err
	}
	if err := uniqueIDs("apis", collectIDs(s.APIs, func(a APIKey) string { return a.ID })); err != nil {
		return err
	}
	if err := uniqueIDs("cards", collectIDs(s.Cards, func(c Card) string { return c.ID })); err != nil {
		return err
	}
	if err := uniqueIDs("videos", collectIDs(s.Videos, func(v Video) string { return v.ID })); err != nil {
		return err
	}
	if err := uniqueIDs("books", collectIDs(s.Books, func(b Book) string { return b.ID })); err != nil {
		return err
	}
	for _, b := range s.Books {
		if err := uniqueIDs("book "+b.ID+" notes", collectIDs(b.Notes, func(n BookNote) string { return n.ID })); err != nil {
			return err
		}
	}
	if err := uniqueIDs("notes", collectIDs(s.Notes, func(n Note) string { return n.ID })); err != nil {
		return err
	}

	eventIDs := make([]string, len(s.Events))
	for i, e := range s.Events {
		eventIDs[i] = e.ID
		if !e.Type.Valid() {
			return fmt.Errorf("event %s: invalid type %q", e.ID, e.Type)
		}
	}
	return uniqueIDs("events", eventIDs)
}

func collectIDs[T any](items []T, id func(T) string) []string {
	ids := make([]string, len(items))
	for i, it := range items {
		ids[i] = id(it)
	}
	return ids
}

func uniqueIDs(collection string, ids []string) error {
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id == "" {
			return fmt.Errorf("%s: record with empty id", collection)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%s: duplicate id %s", collection, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Clone returns a deep copy. The copy goes through JSON so nothing is shared
// with the receiver, matching what crosses a process or goroutine boundary.
func (s *Snapshot) Clone() (*Snapshot, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	var c Snapshot
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &c, nil
}

// Encode renders the snapshot as indented JSON, the on-disk format.
func (s *Snapshot) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	return data, nil
}

// Decode parses a persisted document. It does not migrate or validate;
// a document without schemaVersion decodes as version 0.
func Decode(data []byte) (*Snapshot, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty document")
	}
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	return &s, nil
}
