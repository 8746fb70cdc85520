package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muchacho/personal-manager/internal/schema"
	"github.com/muchacho/personal-manager/internal/state"
	"github.com/muchacho/personal-manager/internal/ui"
)

var todoCmd = &cobra.Command{
	Use:     "todo",
	GroupID: "data",
	Short:   "Manage the todo board",
}

var todoAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a todo",
	Long: `Add a todo to the top of the board.

The due date accepts YYYY-MM-DD or natural language:
  pm todo add "Pay rent" --priority high --due "next friday"`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		priority, _ := cmd.Flags().GetString("priority")
		dueText, _ := cmd.Flags().GetString("due")

		p := schema.Priority(priority)
		if !p.Valid() {
			fatal("invalid priority %q (want low, medium or high)", priority)
		}
		due, err := ui.ParseDate(dueText, time.Now())
		if err != nil {
			fatal("%v", err)
		}

		withApp(func(ctx context.Context, a *app) {
			id := a.state.NewID()
			a.update(ctx, state.Todos.Add(schema.Todo{
				ID:       id,
				Text:     strings.Join(args, " "),
				Priority: p,
				DueDate:  due,
			}))
			done("Added todo %s", ui.RenderAccent(shortID(id)))
		})
	},
}

var todoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List todos",
	Run: func(cmd *cobra.Command, args []string) {
		status, _ := cmd.Flags().GetString("status")
		withApp(func(ctx context.Context, a *app) {
			a.view(func(s *schema.Snapshot) {
				var rows [][]string
				for _, t := range s.Todos {
					if status != "" && string(t.Status) != status {
						continue
					}
					score := ""
					if t.AIScore != nil {
						score = strconv.FormatFloat(*t.AIScore, 'f', 0, 64)
					}
					rows = append(rows, []string{shortID(t.ID), renderStatus(t.Status), string(t.Priority), t.DueDate, score, t.Text})
				}
				if len(rows) == 0 {
					fmt.Println(ui.RenderMuted("No todos."))
					return
				}
				fmt.Println(ui.Table([]string{"ID", "Status", "Priority", "Due", "Score", "Text"}, rows))
			})
		})
	},
}

var todoStatusCmd = &cobra.Command{
	Use:   "status <id> <todo|in-progress|done>",
	Short: "Move a todo to another column",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			id := resolveTodo(a, args[0])
			a.update(ctx, state.SetTodoStatus(id, schema.Status(args[1])))
			done("Todo %s is now %s", shortID(id), args[1])
		})
	},
}

var todoEditCmd = &cobra.Command{
	Use:   "edit <id> <text>",
	Short: "Change the text of a todo",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			id := resolveTodo(a, args[0])
			text := strings.Join(args[1:], " ")
			a.update(ctx, state.Todos.Edit(id, func(t *schema.Todo) error {
				t.Text = text
				return nil
			}))
			done("Updated todo %s", shortID(id))
		})
	},
}

var todoRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a todo",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			id := resolveTodo(a, args[0])
			a.update(ctx, state.Todos.Delete(id))
			done("Deleted todo %s", shortID(id))
		})
	},
}

func resolveTodo(a *app, prefix string) string {
	var ids []string
	a.view(func(s *schema.Snapshot) {
		for _, t := range s.Todos {
			ids = append(ids, t.ID)
		}
	})
	return resolveID("todo", ids, prefix)
}

func renderStatus(s schema.Status) string {
	switch s {
	case schema.StatusDone:
		return ui.RenderPass(string(s))
	case schema.StatusInProgress:
		return ui.RenderWarn(string(s))
	default:
		return string(s)
	}
}

func init() {
	todoAddCmd.Flags().StringP("priority", "p", string(schema.PriorityMedium), "Priority (low, medium, high)")
	todoAddCmd.Flags().StringP("due", "d", "", "Due date (YYYY-MM-DD or e.g. \"tomorrow\")")
	todoListCmd.Flags().String("status", "", "Only show todos with this status")

	todoCmd.AddCommand(todoAddCmd)
	todoCmd.AddCommand(todoListCmd)
	todoCmd.AddCommand(todoStatusCmd)
	todoCmd.AddCommand(todoEditCmd)
	todoCmd.AddCommand(todoRmCmd)
	rootCmd.AddCommand(todoCmd)
}
