package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/muchacho/personal-manager/internal/schema"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func snapshotWithTodo(text string) *schema.Snapshot {
	s := schema.New()
	s.Todos = []schema.Todo{{ID: schema.NewID(), Text: text, Status: schema.StatusTodo}}
	return s
}

func receive(t *testing.T, ch <-chan Envelope) Envelope {
	t.Helper()
	select {
	case env, ok := <-ch:
		if !ok {
			t.Fatal("channel closed")
		}
		return env
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}
	return Envelope{}
}

func expectNothing(t *testing.T, ch <-chan Envelope, wait time.Duration) {
	t.Helper()
	select {
	case env := <-ch:
		t.Fatalf("unexpected envelope from %s seq %d", env.Origin, env.Seq)
	case <-time.After(wait):
	}
}

func TestFilter(t *testing.T) {
	f := NewFilter("w1")
	snap := schema.New()

	tests := []struct {
		name string
		env  Envelope
		want bool
	}{
		{"own echo", Envelope{Origin: "w1", Seq: 1, Snapshot: snap}, false},
		{"no snapshot", Envelope{Origin: "w2", Seq: 1}, false},
		{"first from w2", Envelope{Origin: "w2", Seq: 2, Snapshot: snap}, true},
		{"stale from w2", Envelope{Origin: "w2", Seq: 1, Snapshot: snap}, false},
		{"repeat from w2", Envelope{Origin: "w2", Seq: 2, Snapshot: snap}, false},
		{"newer from w2", Envelope{Origin: "w2", Seq: 3, Snapshot: snap}, true},
		{"independent origin", Envelope{Origin: "w3", Seq: 1, Snapshot: snap}, true},
		{"unordered", Envelope{Origin: "file:/x", Snapshot: snap}, true},
		{"unordered again", Envelope{Origin: "file:/x", Snapshot: snap}, true},
	}
	for _, tt := range tests {
		if got := f.Accept(tt.env); got != tt.want {
			t.Errorf("%s: Accept = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSequencer(t *testing.T) {
	s := NewSequencer("w1")
	a := s.Next(schema.New())
	b := s.Next(schema.New())
	if a.Origin != "w1" || a.Seq != 1 || b.Seq != 2 {
		t.Errorf("unexpected envelopes: %+v %+v", a, b)
	}
	if a.SentAt.IsZero() {
		t.Error("SentAt not set")
	}
}

func TestBusDeliversToOthersOnly(t *testing.T) {
	bus := NewBus(quietLogger())
	w1 := bus.Join("w1")
	w2 := bus.Join("w2")
	w3 := bus.Join("w3")
	defer w1.Close()
	defer w2.Close()
	defer w3.Close()

	if bus.Size() != 3 {
		t.Fatalf("Expected 3 windows, got %d", bus.Size())
	}

	env := NewSequencer("w1").Next(snapshotWithTodo("from w1"))
	if err := w1.Publish(context.Background(), env); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for _, ep := range []*Endpoint{w2, w3} {
		got := receive(t, ep.Envelopes())
		if got.Snapshot.Todos[0].Text != "from w1" {
			t.Errorf("window %s got %q", ep.origin, got.Snapshot.Todos[0].Text)
		}
	}
	expectNothing(t, w1.Envelopes(), 50*time.Millisecond)
}

func TestBusClose(t *testing.T) {
	bus := NewBus(quietLogger())
	w1 := bus.Join("w1")
	w2 := bus.Join("w2")

	if err := w2.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	_ = w2.Close()

	if _, ok := <-w2.Envelopes(); ok {
		t.Error("closed endpoint channel should be closed")
	}
	if err := w2.Publish(context.Background(), Envelope{}); err != ErrClosed {
		t.Errorf("Publish after close = %v, want ErrClosed", err)
	}
	if err := w1.Publish(context.Background(), NewSequencer("w1").Next(schema.New())); err != nil {
		t.Errorf("Publish to bus with departed window failed: %v", err)
	}
	if bus.Size() != 1 {
		t.Errorf("Expected 1 window, got %d", bus.Size())
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(&HubConfig{Addr: "127.0.0.1:0", Logger: quietLogger()})
	if err := hub.Start(); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	t.Cleanup(func() { _ = hub.Stop() })
	return hub
}

func dialHub(t *testing.T, hub *Hub) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, hub.URL(), quietLogger())
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d clients, got %d", n, hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubRelaysBetweenWindows(t *testing.T) {
	hub := startHub(t)
	a := dialHub(t, hub)
	b := dialHub(t, hub)
	c := dialHub(t, hub)
	waitForClients(t, hub, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	env := NewSequencer("a").Next(snapshotWithTodo("relayed"))
	if err := a.Publish(ctx, env); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	for _, cl := range []*Client{b, c} {
		got := receive(t, cl.Envelopes())
		if got.Origin != "a" || got.Seq != 1 {
			t.Errorf("unexpected envelope header: %s/%d", got.Origin, got.Seq)
		}
		if got.Snapshot == nil || got.Snapshot.Todos[0].Text != "relayed" {
			t.Errorf("snapshot not relayed intact: %+v", got.Snapshot)
		}
	}
	expectNothing(t, a.Envelopes(), 100*time.Millisecond)
}

func TestHubHealth(t *testing.T) {
	hub := startHub(t)
	dialHub(t, hub)
	waitForClients(t, hub, 1)

	resp, err := http.Get("http://" + hub.Addr() + "/health")
	if err != nil {
		t.Fatalf("health request failed: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode health: %v", err)
	}
	if body["status"] != "ok" || body["clients"] != float64(1) {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := startHub(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	header := http.Header{}
	header.Set("Origin", "http://evil.example")
	conn, resp, err := websocket.Dial(ctx, hub.URL(), &websocket.DialOptions{HTTPHeader: header})
	if err == nil {
		_ = conn.CloseNow()
		t.Fatal("expected upgrade from a foreign origin to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("expected 403, got %v", resp)
	}
	if hub.ClientCount() != 0 {
		t.Errorf("foreign origin registered as a client")
	}

	// Go clients send no Origin header and are still accepted.
	dialHub(t, hub)
	waitForClients(t, hub, 1)
}

func TestClientClosedOnHubStop(t *testing.T) {
	hub := NewHub(&HubConfig{Addr: "127.0.0.1:0", Logger: quietLogger()})
	if err := hub.Start(); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}
	c := dialHub(t, hub)
	waitForClients(t, hub, 1)

	if err := hub.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case _, ok := <-c.Envelopes():
		if ok {
			t.Error("expected envelope channel to close")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("client did not notice hub shutdown")
	}
}

func TestFileWatcherStartStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	fw, err := NewFileWatcher(path, &WatchConfig{Debounce: 20 * time.Millisecond, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	if fw.IsRunning() {
		t.Error("new watcher should not be running")
	}
	if err := fw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := fw.Start(); err == nil {
		t.Error("second Start should fail")
	}
	if err := fw.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := fw.Stop(); err != nil {
		t.Fatalf("second Stop failed: %v", err)
	}
	if fw.IsRunning() {
		t.Error("watcher should not be running after Stop")
	}
}

func writeSnapshot(t *testing.T, path string, s *schema.Snapshot) []byte {
	t.Helper()
	data, err := s.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatalf("rename failed: %v", err)
	}
	return data
}

func TestFileWatcherReportsForeignWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	fw, err := NewFileWatcher(path, &WatchConfig{Debounce: 20 * time.Millisecond, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	if err := fw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer fw.Stop()

	writeSnapshot(t, path, snapshotWithTodo("written elsewhere"))

	env := receive(t, fw.Envelopes())
	if env.Snapshot.Todos[0].Text != "written elsewhere" {
		t.Errorf("got %q", env.Snapshot.Todos[0].Text)
	}
	if env.Origin != "file:"+fw.Path() {
		t.Errorf("origin = %q", env.Origin)
	}
}

func TestFileWatcherSkipsOwnWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.json")
	fw, err := NewFileWatcher(path, &WatchConfig{Debounce: 20 * time.Millisecond, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	if err := fw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer fw.Stop()

	own := snapshotWithTodo("mine")
	if err := fw.Publish(context.Background(), NewSequencer("w1").Next(own)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	writeSnapshot(t, path, own)
	expectNothing(t, fw.Envelopes(), 200*time.Millisecond)
}

func TestFileWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	fw, err := NewFileWatcher(filepath.Join(dir, "data.json"), &WatchConfig{Debounce: 20 * time.Millisecond, Logger: quietLogger()})
	if err != nil {
		t.Fatalf("NewFileWatcher failed: %v", err)
	}
	if err := fw.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer fw.Stop()

	writeSnapshot(t, filepath.Join(dir, "other.json"), snapshotWithTodo("x"))
	expectNothing(t, fw.Envelopes(), 200*time.Millisecond)
}
