package main

import (
	"context"
	"reflect"
	"testing"

	"github.com/muchacho/personal-manager/internal/broadcast"
)

func TestRunCleanupsMostRecentFirst(t *testing.T) {
	var order []int
	onExit(func() { order = append(order, 1) })
	onExit(func() { order = append(order, 2) })

	runCleanups()
	if want := []int{2, 1}; !reflect.DeepEqual(order, want) {
		t.Errorf("cleanup order = %v, want %v", order, want)
	}

	runCleanups()
	if len(order) != 2 {
		t.Errorf("cleanups ran again: %v", order)
	}
}

type countingChannel struct {
	closed int
}

func (c *countingChannel) Publish(context.Context, broadcast.Envelope) error { return nil }
func (c *countingChannel) Envelopes() <-chan broadcast.Envelope           { return nil }
func (c *countingChannel) Close() error {
	c.closed++
	return nil
}

func TestAppCloseOnlyOnce(t *testing.T) {
	ch := &countingChannel{}
	a := &app{channel: ch}
	onExit(a.close)

	a.close()
	runCleanups()
	if ch.closed != 1 {
		t.Errorf("channel closed %d times, want 1", ch.closed)
	}
}

func TestRecordCommandsRegistered(t *testing.T) {
	paths := [][]string{
		{"vault", "edit"},
		{"api", "rm"},
		{"card", "rm"},
		{"book", "rm"},
		{"book", "note", "edit"},
		{"book", "note", "rm"},
		{"video", "rm"},
	}
	for _, path := range paths {
		cmd, rest, err := rootCmd.Find(path)
		if err != nil || cmd == nil {
			t.Errorf("pm %v: %v", path, err)
			continue
		}
		if len(rest) != 0 || cmd.Name() != path[len(path)-1] {
			t.Errorf("pm %v not registered (got %q, rest %v)", path, cmd.CommandPath(), rest)
		}
	}
	if f := bookNoteEditCmd.Flags().Lookup("important"); f == nil {
		t.Error("book note edit has no --important flag")
	}
}
