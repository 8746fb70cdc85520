package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/muchacho/personal-manager/internal/schema"
	"github.com/muchacho/personal-manager/internal/state"
	"github.com/muchacho/personal-manager/internal/ui"
)

var bookCmd = &cobra.Command{
	Use:     "book",
	GroupID: "data",
	Short:   "Track books and highlights",
}

var bookAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add a book",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		author, _ := cmd.Flags().GetString("author")
		pages, _ := cmd.Flags().GetInt("pages")
		withApp(func(ctx context.Context, a *app) {
			id := a.state.NewID()
			a.update(ctx, state.Books.Add(schema.Book{ID: id, Title: args[0], Author: author, TotalPages: pages}))
			done("Added book %s", ui.RenderAccent(shortID(id)))
		})
	},
}

var bookListCmd = &cobra.Command{
	Use:   "list",
	Short: "List books with reading progress",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			a.view(func(s *schema.Snapshot) {
				if len(s.Books) == 0 {
					fmt.Println(ui.RenderMuted("No books."))
					return
				}
				rows := make([][]string, 0, len(s.Books))
				for _, b := range s.Books {
					progress := fmt.Sprintf("%d/%d (%d%%)", b.CurrentPage, b.TotalPages, b.Progress())
					rows = append(rows, []string{shortID(b.ID), b.Title, b.Author, progress, strconv.Itoa(len(b.Notes))})
				}
				fmt.Println(ui.Table([]string{"ID", "Title", "Author", "Progress", "Highlights"}, rows))
			})
		})
	},
}

var bookPageCmd = &cobra.Command{
	Use:   "page <id> <page>",
	Short: "Record the current page",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		page, err := strconv.Atoi(args[1])
		if err != nil {
			fatal("invalid page %q", args[1])
		}
		withApp(func(ctx context.Context, a *app) {
			id := resolveBook(a, args[0])
			a.update(ctx, state.SetBookPage(id, page))
			done("Book %s at page %d", shortID(id), page)
		})
	},
}

var bookHighlightCmd = &cobra.Command{
	Use:   "highlight <id> <text>",
	Short: "Add a highlight to a book",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		page, _ := cmd.Flags().GetInt("page")
		note, _ := cmd.Flags().GetString("note")
		color, _ := cmd.Flags().GetString("color")
		important, _ := cmd.Flags().GetBool("important")

		withApp(func(ctx context.Context, a *app) {
			id := resolveBook(a, args[0])
			a.update(ctx, state.AddBookNote(id, schema.BookNote{
				Page:           schema.PageNumber(page),
				Highlight:      args[1],
				HighlightColor: color,
				Note:           note,
				IsImportant:    important,
			}))
			done("Added highlight to %s", shortID(id))
		})
	},
}

var bookRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a book and its highlights",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			id := resolveBook(a, args[0])
			a.update(ctx, state.Books.Delete(id))
			done("Deleted book %s", shortID(id))
		})
	},
}

var bookNoteCmd = &cobra.Command{
	Use:   "note",
	Short: "Change or delete highlights",
}

var bookNoteEditCmd = &cobra.Command{
	Use:   "edit <book> <note>",
	Short: "Change a highlight's note",
	Long: `Change a highlight. Only the flags given are applied; the highlight
moves to the top of the book.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		flags := cmd.Flags()
		note, _ := flags.GetString("note")
		color, _ := flags.GetString("color")
		important, _ := flags.GetBool("important")

		withApp(func(ctx context.Context, a *app) {
			bookID, noteID := resolveBookNote(a, args[0], args[1])
			a.update(ctx, state.EditBookNote(bookID, noteID, func(n *schema.BookNote) error {
				if flags.Changed("note") {
					n.Note = note
				}
				if flags.Changed("color") {
					n.HighlightColor = color
				}
				if flags.Changed("important") {
					n.IsImportant = important
				}
				return nil
			}))
			done("Updated highlight %s", shortID(noteID))
		})
	},
}

var bookNoteRmCmd = &cobra.Command{
	Use:   "rm <book> <note>",
	Short: "Delete a highlight",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			bookID, noteID := resolveBookNote(a, args[0], args[1])
			a.update(ctx, state.DeleteBookNote(bookID, noteID))
			done("Deleted highlight %s", shortID(noteID))
		})
	},
}

func resolveBook(a *app, prefix string) string {
	var ids []string
	a.view(func(s *schema.Snapshot) {
		for _, b := range s.Books {
			ids = append(ids, b.ID)
		}
	})
	return resolveID("book", ids, prefix)
}

func resolveBookNote(a *app, bookPrefix, notePrefix string) (string, string) {
	bookID := resolveBook(a, bookPrefix)
	var ids []string
	a.view(func(s *schema.Snapshot) {
		if b, ok := state.Books.Find(s, bookID); ok {
			for _, n := range b.Notes {
				ids = append(ids, n.ID)
			}
		}
	})
	return bookID, resolveID("highlight", ids, notePrefix)
}

var videoCmd = &cobra.Command{
	Use:     "video",
	GroupID: "data",
	Short:   "Track shows and films",
}

var videoAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add or update a show",
	Long: `Add a show. If a show with the same title exists it is updated and
moved to the top instead.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		season, _ := cmd.Flags().GetString("season")
		episode, _ := cmd.Flags().GetString("episode")
		at, _ := cmd.Flags().GetString("time")
		notes, _ := cmd.Flags().GetString("notes")

		withApp(func(ctx context.Context, a *app) {
			var existing string
			a.view(func(s *schema.Snapshot) {
				for _, vid := range s.Videos {
					if vid.Title == args[0] {
						existing = vid.ID
						return
					}
				}
			})
			if existing != "" {
				a.update(ctx, state.Videos.Edit(existing, func(vid *schema.Video) error {
					vid.Season, vid.Episode, vid.Time = season, episode, at
					if notes != "" {
						vid.Notes = notes
					}
					return nil
				}))
				done("Updated %s", ui.RenderAccent(args[0]))
				return
			}
			a.update(ctx, state.Videos.Add(schema.Video{
				ID: a.state.NewID(), Title: args[0], Season: season, Episode: episode, Time: at, Notes: notes,
			}))
			done("Added %s", ui.RenderAccent(args[0]))
		})
	},
}

var videoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List shows, most recently watched first",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			a.view(func(s *schema.Snapshot) {
				if len(s.Videos) == 0 {
					fmt.Println(ui.RenderMuted("No videos."))
					return
				}
				rows := make([][]string, 0, len(s.Videos))
				for _, vid := range s.Videos {
					rows = append(rows, []string{shortID(vid.ID), vid.Title, vid.Season, vid.Episode, vid.Time})
				}
				fmt.Println(ui.Table([]string{"ID", "Title", "Season", "Episode", "Time"}, rows))
			})
		})
	},
}

var videoRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a show",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			var ids []string
			a.view(func(s *schema.Snapshot) {
				for _, vid := range s.Videos {
					ids = append(ids, vid.ID)
				}
			})
			id := resolveID("video", ids, args[0])
			a.update(ctx, state.Videos.Delete(id))
			done("Deleted video %s", shortID(id))
		})
	},
}

func init() {
	bookAddCmd.Flags().String("author", "", "Author")
	bookAddCmd.Flags().Int("pages", 0, "Total pages")
	bookHighlightCmd.Flags().Int("page", 0, "Page number")
	bookHighlightCmd.Flags().String("note", "", "Your note on the highlight")
	bookHighlightCmd.Flags().String("color", "", "Highlight color")
	bookHighlightCmd.Flags().Bool("important", false, "Mark as important")

	bookNoteEditCmd.Flags().String("note", "", "Your note on the highlight")
	bookNoteEditCmd.Flags().String("color", "", "Highlight color")
	bookNoteEditCmd.Flags().Bool("important", false, "Mark as important")

	videoAddCmd.Flags().String("season", "", "Season")
	videoAddCmd.Flags().String("episode", "", "Episode")
	videoAddCmd.Flags().String("time", "", "Timestamp reached, e.g. 00:42:10")
	videoAddCmd.Flags().String("notes", "", "Notes")

	bookCmd.AddCommand(bookAddCmd)
	bookCmd.AddCommand(bookListCmd)
	bookCmd.AddCommand(bookPageCmd)
	bookCmd.AddCommand(bookHighlightCmd)
	bookCmd.AddCommand(bookRmCmd)
	bookNoteCmd.AddCommand(bookNoteEditCmd)
	bookNoteCmd.AddCommand(bookNoteRmCmd)
	bookCmd.AddCommand(bookNoteCmd)
	videoCmd.AddCommand(videoAddCmd)
	videoCmd.AddCommand(videoListCmd)
	videoCmd.AddCommand(videoRmCmd)
	rootCmd.AddCommand(bookCmd)
	rootCmd.AddCommand(videoCmd)
}
