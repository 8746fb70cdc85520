package migrate

import (
	"fmt"
	"time"

	"github.com/muchacho/personal-manager/internal/schema"
)

// Env supplies the non-deterministic inputs a step may need.
type Env struct {
	NewID func() string
	Now   func() time.Time
}

// DefaultEnv uses random UUIDs and the wall clock.
func DefaultEnv() Env {
	return Env{NewID: schema.NewID, Now: time.Now}
}

func (e Env) withDefaults() Env {
	if e.NewID == nil {
		e.NewID = schema.NewID
	}
	if e.Now == nil {
		e.Now = time.Now
	}
	return e
}

// Step upgrades a snapshot from one schema version to the next.
type Step struct {
	From  int
	To    int
	Name  string
	Apply func(s *schema.Snapshot, env Env)
}

// Steps is the ordered version chain, one step per version.
var Steps = []Step{
	{From: 0, To: 1, Name: "todo-status", Apply: todoStatus},
	{From: 1, To: 2, Name: "events", Apply: foldEvents},
	{From: 2, To: 3, Name: "backfill", Apply: backfill},
}

// Migrate walks s up to schema.CurrentVersion in place and returns the names
// of the steps it applied. A document already at the current version gets
// only the backfill of absent collections, so Migrate is idempotent.
func Migrate(s *schema.Snapshot, env Env) ([]string, error) {
	if s.SchemaVersion > schema.CurrentVersion {
		return nil, fmt.Errorf("document schemaVersion %d is newer than supported %d", s.SchemaVersion, schema.CurrentVersion)
	}
	if s.SchemaVersion < 0 {
		return nil, fmt.Errorf("invalid schemaVersion %d", s.SchemaVersion)
	}
	env = env.withDefaults()

	var applied []string
	for _, step := range Steps {
		if s.SchemaVersion != step.From {
			continue
		}
		step.Apply(s, env)
		s.SchemaVersion = step.To
		applied = append(applied, step.Name)
	}
	s.SetDefaults()
	return applied, nil
}

// todoStatus derives status from the legacy done flag and keeps both in sync.
func todoStatus(s *schema.Snapshot, _ Env) {
	for i := range s.Todos {
		t := &s.Todos[i]
		if t.Status == "" {
			if t.Done {
				t.Status = schema.StatusDone
			} else {
				t.Status = schema.StatusTodo
			}
		}
		t.Done = t.Status == schema.StatusDone
	}
}

// foldEvents synthesizes events from the legacy schedule and reminders lists.
// If events already exist they are left untouched and the legacy lists are
// kept verbatim but never read again.
func foldEvents(s *schema.Snapshot, env Env) {
	if s.Events != nil {
		return
	}

	created := env.Now().UTC()
	events := make([]schema.Event, 0, len(s.Schedule)+len(s.Reminders))
	for _, item := range s.Schedule {
		ev := schema.Event{
			ID:      env.NewID(),
			Title:   item.Label(),
			Start:   item.Time,
			Type:    schema.EventSchedule,
			Color:   schema.ColorSchedule,
			Created: created,
		}
		if item.Day != "" {
			ev.Description = "Every " + item.Day
		}
		events = append(events, ev)
	}
	for _, r := range s.Reminders {
		events = append(events, schema.Event{
			ID:      env.NewID(),
			Title:   r.Text,
			Start:   r.Time,
			Type:    schema.EventReminder,
			Color:   schema.ColorReminder,
			Created: created,
		})
	}

	s.Events = events
	s.Schedule = nil
	s.Reminders = nil
}

func backfill(s *schema.Snapshot, _ Env) {
	s.SetDefaults()
}
