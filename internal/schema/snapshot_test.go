package schema

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestSnapshot_Validate(t *testing.T) {
	tests := []struct {
		name    string
		snap    Snapshot
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid snapshot",
			snap: Snapshot{
				SchemaVersion: CurrentVersion,
				Todos:         []Todo{{ID: "a", Text: "x", Status: StatusTodo, Priority: PriorityHigh}},
				Events:        []Event{{ID: "e", Title: "Gym", Type: EventSchedule}},
			},
		},
		{
			name: "duplicate todo id",
			snap: Snapshot{
				Todos: []Todo{{ID: "a"}, {ID: "a"}},
			},
			wantErr: true,
			errMsg:  "todos: duplicate id a",
		},
		{
			name: "empty password id",
			snap: Snapshot{
				Passwords: []Password{{Title: "mail"}},
			},
			wantErr: true,
			errMsg:  "passwords: record with empty id",
		},
		{
			name: "invalid status",
			snap: Snapshot{
				Todos: []Todo{{ID: "a", Status: "blocked"}},
			},
			wantErr: true,
			errMsg:  "invalid status",
		},
		{
			name: "invalid priority",
			snap: Snapshot{
				Todos: []Todo{{ID: "a", Priority: "p0"}},
			},
			wantErr: true,
			errMsg:  "invalid priority",
		},
		{
			name: "invalid event type",
			snap: Snapshot{
				Events: []Event{{ID: "e", Type: "meeting"}},
			},
			wantErr: true,
			errMsg:  "invalid type",
		},
		{
			name: "duplicate book note id",
			snap: Snapshot{
				Books: []Book{{ID: "b", Notes: []BookNote{{ID: "n"}, {ID: "n"}}}},
			},
			wantErr: true,
			errMsg:  "book b notes: duplicate id n",
		},
		{
			name:    "version from the future",
			snap:    Snapshot{SchemaVersion: CurrentVersion + 1},
			wantErr: true,
			errMsg:  "schemaVersion must be between",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.snap.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr && !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.errMsg)
			}
		})
	}
}

func TestSnapshot_SetDefaults(t *testing.T) {
	s := &Snapshot{
		Layout: map[string]string{"notes": "list"},
		Books:  []Book{{ID: "b"}},
	}
	s.SetDefaults()

	if s.Todos == nil || s.Passwords == nil || s.APIs == nil || s.Cards == nil ||
		s.Videos == nil || s.Books == nil || s.Notes == nil || s.Events == nil {
		t.Fatal("SetDefaults() left a nil collection")
	}
	if s.Books[0].Notes == nil {
		t.Error("SetDefaults() left book notes nil")
	}
	if s.Layout["notes"] != "list" {
		t.Errorf("existing layout overwritten: got %q", s.Layout["notes"])
	}
	if s.Layout["todos"] != "1x1-v" || s.Layout["securities"] != "list" {
		t.Errorf("layout defaults missing: %v", s.Layout)
	}
	if s.Theme != DefaultTheme || s.Tab != DefaultTab {
		t.Errorf("UI defaults = %q/%q", s.Theme, s.Tab)
	}
	if s.AIAnalysis != nil || s.PrioritizedTodos != nil || s.SecurityHealth != nil || s.DailyBriefing != nil {
		t.Error("SetDefaults() must not touch derived fields")
	}
}

func TestSnapshot_DerivedFieldsRoundTrip(t *testing.T) {
	empty := []Todo{}
	s := New()
	s.PrioritizedTodos = &empty

	data, err := s.Encode()
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	if strings.Contains(string(data), "aiAnalysis") {
		t.Error("absent derived field should be omitted")
	}

	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if got.PrioritizedTodos == nil {
		t.Fatal("computed-empty derived field decoded as absent")
	}
	if len(*got.PrioritizedTodos) != 0 {
		t.Errorf("expected empty prioritized list, got %d", len(*got.PrioritizedTodos))
	}
	if got.AIAnalysis != nil {
		t.Error("absent derived field decoded as present")
	}
}

func TestDecode_LegacyDocument(t *testing.T) {
	doc := `{
		"todos": [{"id": "t1", "text": "Pay rent", "done": true, "updatedAt": "2024-03-01T10:00:00.000Z"}],
		"schedule": [{"task": "Gym", "time": "07:00"}],
		"reminders": [{"id": "r1", "text": "Call mom", "time": "18:00"}]
	}`

	s, err := Decode([]byte(doc))
	if err != nil {
		t.Fatalf("Decode() failed: %v", err)
	}
	if s.SchemaVersion != 0 {
		t.Errorf("expected version 0, got %d", s.SchemaVersion)
	}
	if !s.Todos[0].IsDone() {
		t.Error("legacy done flag lost")
	}
	want := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if !s.Todos[0].UpdatedAt.Equal(want) {
		t.Errorf("updatedAt = %v, want %v", s.Todos[0].UpdatedAt, want)
	}
	if s.Schedule[0].Label() != "Gym" {
		t.Errorf("schedule label = %q", s.Schedule[0].Label())
	}
	if s.Events != nil {
		t.Error("events should be absent in a legacy document")
	}
}

func TestDecode_Malformed(t *testing.T) {
	for _, doc := range []string{"", "   ", "{not json", `{"todos": 5}`} {
		if _, err := Decode([]byte(doc)); err == nil {
			t.Errorf("Decode(%q) should fail", doc)
		}
	}
}

func TestSnapshot_CloneIsDeep(t *testing.T) {
	s := New()
	s.Notes = append(s.Notes, Note{ID: "n", Title: "t", Embedding: []float64{1, 2}})

	c, err := s.Clone()
	if err != nil {
		t.Fatalf("Clone() failed: %v", err)
	}
	c.Notes[0].Embedding[0] = 99
	c.Layout["todos"] = "changed"

	if s.Notes[0].Embedding[0] != 1 {
		t.Error("clone shares embedding backing array")
	}
	if s.Layout["todos"] != "1x1-v" {
		t.Error("clone shares layout map")
	}
}

func TestTodo_SetStatusKeepsDoneInSync(t *testing.T) {
	var td Todo
	td.SetStatus(StatusDone)
	if !td.Done {
		t.Error("Done should be true after SetStatus(done)")
	}
	td.SetStatus(StatusInProgress)
	if td.Done {
		t.Error("Done should be false after leaving done")
	}

	data, _ := json.Marshal(td)
	if !strings.Contains(string(data), `"done":false`) {
		t.Errorf("done flag not persisted: %s", data)
	}
}

func TestBook_Progress(t *testing.T) {
	tests := []struct {
		current, total, want int
	}{
		{0, 0, 0},
		{50, 200, 25},
		{300, 200, 100},
	}
	for _, tt := range tests {
		b := Book{CurrentPage: tt.current, TotalPages: tt.total}
		if got := b.Progress(); got != tt.want {
			t.Errorf("Progress(%d/%d) = %d, want %d", tt.current, tt.total, got, tt.want)
		}
	}
}

func TestDefaultColor(t *testing.T) {
	if DefaultColor(EventSchedule) != ColorSchedule {
		t.Error("schedule color")
	}
	if DefaultColor(EventReminder) != ColorReminder {
		t.Error("reminder color")
	}
	if DefaultColor(EventTask) != ColorTask {
		t.Error("task color")
	}
}

func TestBookNote_PageForms(t *testing.T) {
	tests := []struct {
		name string
		json string
		want PageRef
	}{
		{"string", `{"id":"n","page":"42"}`, "42"},
		{"number", `{"id":"n","page":42}`, "42"},
		{"null", `{"id":"n","page":null}`, ""},
		{"absent", `{"id":"n"}`, ""},
		{"free text", `{"id":"n","page":"xii"}`, "xii"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n BookNote
			if err := json.Unmarshal([]byte(tt.json), &n); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if n.Page != tt.want {
				t.Errorf("Page = %q, want %q", n.Page, tt.want)
			}
		})
	}

	var n BookNote
	if err := json.Unmarshal([]byte(`{"page":true}`), &n); err == nil {
		t.Error("expected an error for a boolean page")
	}

	out, err := json.Marshal(BookNote{ID: "n", Page: PageNumber(42)})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(out), `"page":"42"`) {
		t.Errorf("page not written as a string: %s", out)
	}
	if PageNumber(0) != "" {
		t.Error("PageNumber(0) should be empty")
	}
}
