package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/muchacho/personal-manager/internal/schema"
	"github.com/muchacho/personal-manager/internal/state"
	"github.com/muchacho/personal-manager/internal/ui"
)

var noteCmd = &cobra.Command{
	Use:     "note",
	GroupID: "data",
	Short:   "Manage notes",
}

var noteAddCmd = &cobra.Command{
	Use:   "add <title> <content>",
	Short: "Add a note",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		category, _ := cmd.Flags().GetString("category")
		color, _ := cmd.Flags().GetString("color")
		markdown, _ := cmd.Flags().GetBool("markdown")

		withApp(func(ctx context.Context, a *app) {
			id := a.state.NewID()
			a.update(ctx, state.Notes.Add(schema.Note{
				ID:         id,
				Title:      args[0],
				Content:    strings.Join(args[1:], " "),
				Category:   category,
				Color:      color,
				IsMarkdown: markdown,
			}))
			done("Added note %s", ui.RenderAccent(shortID(id)))
		})
	},
}

var noteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, pinned first",
	Run: func(cmd *cobra.Command, args []string) {
		category, _ := cmd.Flags().GetString("category")
		withApp(func(ctx context.Context, a *app) {
			a.view(func(s *schema.Snapshot) {
				var pinned, rest [][]string
				for _, n := range s.Notes {
					if category != "" && n.Category != category {
						continue
					}
					row := []string{shortID(n.ID), ui.RenderColor(n.Color, n.Title), n.Category, n.UpdatedAt.Local().Format("2006-01-02"), n.AISummary}
					if n.Pinned {
						row[1] = "📌 " + row[1]
						pinned = append(pinned, row)
					} else {
						rest = append(rest, row)
					}
				}
				rows := append(pinned, rest...)
				if len(rows) == 0 {
					fmt.Println(ui.RenderMuted("No notes."))
					return
				}
				fmt.Println(ui.Table([]string{"ID", "Title", "Category", "Updated", "Summary"}, rows))
			})
		})
	},
}

var noteEditCmd = &cobra.Command{
	Use:   "edit <id>",
	Short: "Edit a note and move it to the top",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		withApp(func(ctx context.Context, a *app) {
			id := resolveNote(a, args[0])
			a.update(ctx, state.Notes.Edit(id, func(n *schema.Note) error {
				if flags.Changed("title") {
					n.Title, _ = flags.GetString("title")
				}
				if flags.Changed("content") {
					n.Content, _ = flags.GetString("content")
					// the old summary no longer describes the note
					n.AISummary = ""
					n.Embedding = nil
				}
				if flags.Changed("category") {
					n.Category, _ = flags.GetString("category")
				}
				if flags.Changed("color") {
					n.Color, _ = flags.GetString("color")
				}
				if flags.Changed("pin") {
					n.Pinned, _ = flags.GetBool("pin")
				}
				return nil
			}))
			done("Updated note %s", shortID(id))
		})
	},
}

var noteRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a note",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			id := resolveNote(a, args[0])
			a.update(ctx, state.Notes.Delete(id))
			done("Deleted note %s", shortID(id))
		})
	},
}

func resolveNote(a *app, prefix string) string {
	var ids []string
	a.view(func(s *schema.Snapshot) {
		for _, n := range s.Notes {
			ids = append(ids, n.ID)
		}
	})
	return resolveID("note", ids, prefix)
}

func init() {
	noteAddCmd.Flags().String("category", "", "Category")
	noteAddCmd.Flags().String("color", "", "Color (hex)")
	noteAddCmd.Flags().Bool("markdown", false, "Content is markdown")
	noteListCmd.Flags().String("category", "", "Only show notes in this category")

	noteEditCmd.Flags().String("title", "", "New title")
	noteEditCmd.Flags().String("content", "", "New content")
	noteEditCmd.Flags().String("category", "", "New category")
	noteEditCmd.Flags().String("color", "", "New color")
	noteEditCmd.Flags().Bool("pin", false, "Pin or unpin (--pin=false)")

	noteCmd.AddCommand(noteAddCmd)
	noteCmd.AddCommand(noteListCmd)
	noteCmd.AddCommand(noteEditCmd)
	noteCmd.AddCommand(noteRmCmd)
	rootCmd.AddCommand(noteCmd)
}
