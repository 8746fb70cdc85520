package dispatch_test

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/muchacho/personal-manager/internal/dispatch"
	"github.com/muchacho/personal-manager/internal/protocol"
	"github.com/muchacho/personal-manager/internal/worker"
)

// Example_call sends one summarize request to a running worker and waits
// for the typed response.
func Example_call() {
	quiet := log.New(io.Discard, "", 0)

	wcfg := worker.DefaultConfig()
	wcfg.Logger = quiet
	w := worker.NewWithConfig(wcfg)
	w.Start()
	defer w.Stop()

	dcfg := dispatch.DefaultConfig()
	dcfg.Logger = quiet
	d := dispatch.NewWithConfig(w, dcfg)
	defer d.Close()

	resp, err := dispatch.Call[protocol.SummarizeResponse](context.Background(), d, protocol.Summarize,
		protocol.SummarizeRequest{
			ID:        "n1",
			Text:      "Call the bank. The budget review needs the budget numbers.",
			Sentences: 1,
		})
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(resp.ID)
	fmt.Println(resp.Summary)

	// Output:
	// n1
	// The budget review needs the budget numbers.
}
