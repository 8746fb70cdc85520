package state_test

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/muchacho/personal-manager/internal/schema"
	"github.com/muchacho/personal-manager/internal/state"
	"github.com/muchacho/personal-manager/internal/store"
)

// Example_reducers boots a controller on an empty data file and applies a
// few mutations. New records go to the head of their collection.
func Example_reducers() {
	dir, err := os.MkdirTemp("", "pm-example")
	if err != nil {
		log.Fatal(err)
	}
	defer os.RemoveAll(dir)

	quiet := log.New(io.Discard, "", 0)
	cfg := state.DefaultConfig()
	cfg.Store = store.NewFileStore(filepath.Join(dir, "data.json"), quiet)
	cfg.Logger = quiet

	ctrl, err := state.New(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer ctrl.Close()

	ctx := context.Background()
	res, err := ctrl.Boot(ctx)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println("fresh:", res.Fresh)

	err = ctrl.Update(ctx, state.Chain(
		state.Todos.Add(schema.Todo{ID: "t1", Text: "Pay rent"}),
		state.Todos.Add(schema.Todo{ID: "t2", Text: "Call the bank"}),
		state.SetTodoStatus("t1", schema.StatusDone),
	))
	if err != nil {
		log.Fatal(err)
	}

	_ = ctrl.View(func(s *schema.Snapshot) {
		for _, t := range s.Todos {
			fmt.Printf("%s %s done=%v\n", t.ID, t.Text, t.Done)
		}
	})

	// Output:
	// fresh: true
	// t2 Call the bank done=false
	// t1 Pay rent done=true
}
