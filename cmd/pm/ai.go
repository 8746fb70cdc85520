package main

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/muchacho/personal-manager/internal/schema"
	"github.com/muchacho/personal-manager/internal/ui"
)

const aiTimeout = 2 * time.Minute

var aiCmd = &cobra.Command{
	Use:     "ai",
	GroupID: "ai",
	Short:   "Run AI helpers on the background worker",
	Long: `Run AI helpers. Requests are dispatched to a background compute worker
and the results are stored with your data, so other windows see them too.`,
}

// withAssistant opens the app, starts the worker and bounds the call.
func withAssistant(fn func(ctx context.Context, a *app)) {
	withApp(func(ctx context.Context, a *app) {
		ctx, cancel := context.WithTimeout(ctx, aiTimeout)
		defer cancel()
		a.startAssistant()
		fn(ctx, a)
	})
}

var aiSummarizeCmd = &cobra.Command{
	Use:   "summarize <note-id>",
	Short: "Summarize a note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withAssistant(func(ctx context.Context, a *app) {
			id := resolveNote(a, args[0])
			summary, err := a.assistant.SummarizeNote(ctx, id)
			if err != nil {
				fatal("%v", err)
			}
			fmt.Printf("%s %s\n", ui.RenderAccent("Summary:"), summary)
		})
	},
}

var aiAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze trading strategy mentions across all notes",
	Run: func(cmd *cobra.Command, args []string) {
		withAssistant(func(ctx context.Context, a *app) {
			res, err := a.assistant.AnalyzeAllNotes(ctx)
			if err != nil {
				fatal("%v", err)
			}
			printCounts("Indicators", res.Indicators)
			printCounts("Patterns", res.Patterns)
			printCounts("Tickers", res.Tickers)
			fmt.Printf("%s %s wins, %s losses\n", ui.RenderHeader("Sentiment"),
				ui.RenderPass(strconv.Itoa(res.Sentiment.Win)), ui.RenderFail(strconv.Itoa(res.Sentiment.Loss)))
		})
	},
}

var aiPrioritizeCmd = &cobra.Command{
	Use:   "prioritize",
	Short: "Score and rank todos",
	Run: func(cmd *cobra.Command, args []string) {
		withAssistant(func(ctx context.Context, a *app) {
			ranked, err := a.assistant.PrioritizeTodos(ctx)
			if err != nil {
				fatal("%v", err)
			}
			printRanked(ranked)
		})
	},
}

var aiSecurityCmd = &cobra.Command{
	Use:   "security",
	Short: "Check password health",
	Run: func(cmd *cobra.Command, args []string) {
		withAssistant(func(ctx context.Context, a *app) {
			report, err := a.assistant.CheckSecurityHealth(ctx)
			if err != nil {
				fatal("%v", err)
			}
			printSecurity(report)
		})
	},
}

var aiBriefingCmd = &cobra.Command{
	Use:   "briefing",
	Short: "Show today's briefing",
	Run: func(cmd *cobra.Command, args []string) {
		withAssistant(func(ctx context.Context, a *app) {
			text, err := a.assistant.DailyBriefing(ctx)
			if err != nil {
				fatal("%v", err)
			}
			fmt.Println(text)
		})
	},
}

var aiSimilarCmd = &cobra.Command{
	Use:   "similar <note-id>",
	Short: "Find notes similar to a note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withAssistant(func(ctx context.Context, a *app) {
			id := resolveNote(a, args[0])
			sims, err := a.assistant.FindSimilarNotes(ctx, id)
			if err != nil {
				fatal("%v", err)
			}
			if len(sims) == 0 {
				fmt.Println(ui.RenderMuted("No similar notes."))
				return
			}
			titles := map[string]string{}
			a.view(func(s *schema.Snapshot) {
				for _, n := range s.Notes {
					titles[n.ID] = n.Title
				}
			})
			rows := make([][]string, 0, len(sims))
			for _, sim := range sims {
				rows = append(rows, []string{shortID(sim.ID), titles[sim.ID], strconv.FormatFloat(sim.Score, 'f', 3, 64)})
			}
			fmt.Println(ui.Table([]string{"ID", "Title", "Similarity"}, rows))
		})
	},
}

var aiEmbedCmd = &cobra.Command{
	Use:   "embed <note-id>",
	Short: "Compute and store the embedding of a note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withAssistant(func(ctx context.Context, a *app) {
			id := resolveNote(a, args[0])
			vec, err := a.assistant.GenerateEmbedding(ctx, id)
			if err != nil {
				fatal("%v", err)
			}
			done("Stored %d-dimensional embedding for %s", len(vec), shortID(id))
		})
	},
}

var aiRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the dashboard: briefing, priorities, security and analysis",
	Run: func(cmd *cobra.Command, args []string) {
		withAssistant(func(ctx context.Context, a *app) {
			d, err := a.assistant.Refresh(ctx)
			if err != nil {
				fatal("%v", err)
			}
			fmt.Println(d.Briefing)
			fmt.Println()
			printRanked(d.Prioritized)
			printSecurity(d.Security)
		})
	},
}

func printCounts(title string, counts map[string]int) {
	fmt.Println(ui.RenderHeader(title))
	if len(counts) == 0 {
		fmt.Println(ui.RenderMuted("  none"))
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	for _, k := range keys {
		fmt.Printf("  %-20s %d\n", k, counts[k])
	}
}

func printRanked(todos []schema.Todo) {
	if len(todos) == 0 {
		fmt.Println(ui.RenderMuted("No tasks prioritized yet."))
		return
	}
	rows := make([][]string, 0, len(todos))
	for _, t := range todos {
		score := "0"
		if t.AIScore != nil {
			score = strconv.FormatFloat(*t.AIScore, 'f', 0, 64)
		}
		rows = append(rows, []string{score, string(t.Priority), t.DueDate, t.Text})
	}
	fmt.Println(ui.Table([]string{"Score", "Priority", "Due", "Text"}, rows))
}

func printSecurity(r schema.SecurityReport) {
	fmt.Printf("%s %s/100\n", ui.RenderHeader("Vault health"), ui.RenderScore(r.Score))
	for _, risk := range r.Risks {
		fmt.Printf("  %s %s\n", ui.RenderWarn("⚠"), risk)
	}
}

func init() {
	aiCmd.AddCommand(aiSummarizeCmd)
	aiCmd.AddCommand(aiAnalyzeCmd)
	aiCmd.AddCommand(aiPrioritizeCmd)
	aiCmd.AddCommand(aiSecurityCmd)
	aiCmd.AddCommand(aiBriefingCmd)
	aiCmd.AddCommand(aiSimilarCmd)
	aiCmd.AddCommand(aiEmbedCmd)
	aiCmd.AddCommand(aiRefreshCmd)
	rootCmd.AddCommand(aiCmd)
}
