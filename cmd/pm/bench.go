package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/muchacho/personal-manager/internal/benchmark"
	"github.com/muchacho/personal-manager/internal/dispatch"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "maint",
	Short:   "Load-test the AI dispatcher with concurrent callers",
	Long: `Start a compute worker and send it summarize requests from many
concurrent callers, then report latency, throughput and how each request
settled.

Modes:
  compare     - Run correlated and by-type matching, show both (default)
  correlated  - Match responses on request id only
  by-type     - Match responses on response type only

Examples:
  pm bench
  pm bench --callers 64 --requests 50
  pm bench --mode by-type --json
`,
	Run: runBench,
}

func init() {
	benchCmd.Flags().Int("callers", 16, "Number of concurrent callers")
	benchCmd.Flags().Int("requests", 25, "Requests per caller")
	benchCmd.Flags().Int("sentences", 12, "Sentences per generated note")
	benchCmd.Flags().String("mode", "compare", "Benchmark mode: compare, correlated, or by-type")
	benchCmd.Flags().Bool("json", false, "Output results as JSON")
	rootCmd.AddCommand(benchCmd)
}

func runBench(cmd *cobra.Command, args []string) {
	bcfg := benchmark.DefaultConfig()
	bcfg.Callers, _ = cmd.Flags().GetInt("callers")
	bcfg.RequestsPerCaller, _ = cmd.Flags().GetInt("requests")
	bcfg.Sentences, _ = cmd.Flags().GetInt("sentences")
	mode, _ := cmd.Flags().GetString("mode")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	ctx := context.Background()
	var out any
	switch mode {
	case "compare":
		c, err := benchmark.Compare(ctx, bcfg)
		if err != nil {
			fatal("%v", err)
		}
		if !jsonOutput {
			benchmark.PrintComparison(os.Stdout, c)
			return
		}
		out = c
	case "correlated", "by-type":
		if mode == "by-type" {
			bcfg.Mode = dispatch.ModeByResponseType
		}
		res, err := benchmark.Run(ctx, bcfg)
		if err != nil {
			fatal("%v", err)
		}
		if !jsonOutput {
			benchmark.PrintResult(os.Stdout, res)
			return
		}
		out = res
	default:
		fatal("--mode must be 'compare', 'correlated', or 'by-type'")
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fatal("failed to encode results: %v", err)
	}
}
