package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/muchacho/personal-manager/internal/schema"
)

func sampleSnapshot() *schema.Snapshot {
	s := schema.New()
	s.Todos = []schema.Todo{{ID: "t1", Text: "Pay rent", Status: schema.StatusTodo, Priority: schema.PriorityHigh, DueDate: "2026-10-18"}}
	return s
}

func TestEncodeSnapshotJSON(t *testing.T) {
	data, err := encodeSnapshot(sampleSnapshot(), "json")
	if err != nil {
		t.Fatalf("encodeSnapshot failed: %v", err)
	}
	back, err := schema.Decode(data)
	if err != nil {
		t.Fatalf("exported JSON does not decode: %v", err)
	}
	if len(back.Todos) != 1 || back.Todos[0].Text != "Pay rent" {
		t.Errorf("unexpected todos: %+v", back.Todos)
	}
}

func TestEncodeSnapshotYAMLKeepsKeys(t *testing.T) {
	data, err := encodeSnapshot(sampleSnapshot(), "yaml")
	if err != nil {
		t.Fatalf("encodeSnapshot failed: %v", err)
	}
	if !strings.Contains(string(data), "schemaVersion:") || !strings.Contains(string(data), "dueDate:") {
		t.Errorf("yaml output missing document keys:\n%s", data)
	}

	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("yaml does not parse: %v", err)
	}
	todos, ok := doc["todos"].([]any)
	if !ok || len(todos) != 1 {
		t.Fatalf("todos = %#v", doc["todos"])
	}
}

func TestEncodeSnapshotTOML(t *testing.T) {
	data, err := encodeSnapshot(schema.New(), "toml")
	if err != nil {
		t.Fatalf("encodeSnapshot failed: %v", err)
	}

	var doc map[string]any
	if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
		t.Fatalf("toml does not parse: %v\n%s", err, data)
	}
	if doc["theme"] != schema.DefaultTheme {
		t.Errorf("theme = %v", doc["theme"])
	}
	layout, ok := doc["layout"].(map[string]any)
	if !ok || layout["todos"] != "1x1-v" {
		t.Errorf("layout = %#v", doc["layout"])
	}
}

func TestEncodeSnapshotUnknownFormat(t *testing.T) {
	if _, err := encodeSnapshot(schema.New(), "xml"); err == nil {
		t.Fatal("expected an error for xml")
	}
}

func TestResolveID(t *testing.T) {
	ids := []string{"abc123", "abd456", "zzz"}
	if got := resolveID("todo", ids, "abc"); got != "abc123" {
		t.Errorf("resolveID(abc) = %q", got)
	}
	if got := resolveID("todo", ids, "zzz"); got != "zzz" {
		t.Errorf("resolveID(zzz) = %q", got)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("0123456789"); got != "01234567" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID = %q", got)
	}
}
