package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/muchacho/personal-manager/internal/schema"
	"github.com/muchacho/personal-manager/internal/state"
	"github.com/muchacho/personal-manager/internal/ui"
)

var eventCmd = &cobra.Command{
	Use:     "event",
	GroupID: "data",
	Short:   "Manage calendar events",
}

var eventAddCmd = &cobra.Command{
	Use:   "add <title>",
	Short: "Add an event",
	Long: `Add a calendar event. The start is a datetime, natural language, or a
bare HH:MM for a recurring schedule item:

  pm event add Gym --at 07:00
  pm event add Dentist --at "tomorrow 9am" --type reminder`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		at, _ := cmd.Flags().GetString("at")
		typ, _ := cmd.Flags().GetString("type")
		color, _ := cmd.Flags().GetString("color")
		desc, _ := cmd.Flags().GetString("description")

		et := schema.EventType(typ)
		if !et.Valid() {
			fatal("invalid type %q (want schedule, reminder or task)", typ)
		}
		start, err := ui.ParseStart(at, time.Now())
		if err != nil {
			fatal("%v", err)
		}

		withApp(func(ctx context.Context, a *app) {
			id := a.state.NewID()
			a.update(ctx, state.Events.Add(schema.Event{
				ID:          id,
				Title:       strings.Join(args, " "),
				Start:       start,
				Type:        et,
				Color:       color,
				Description: desc,
			}))
			done("Added %s at %s", ui.RenderAccent(strings.Join(args, " ")), start)
		})
	},
}

var eventListCmd = &cobra.Command{
	Use:   "list",
	Short: "List events by start",
	Run: func(cmd *cobra.Command, args []string) {
		typ, _ := cmd.Flags().GetString("type")
		withApp(func(ctx context.Context, a *app) {
			a.view(func(s *schema.Snapshot) {
				events := make([]schema.Event, 0, len(s.Events))
				for _, e := range s.Events {
					if typ == "" || string(e.Type) == typ {
						events = append(events, e)
					}
				}
				if len(events) == 0 {
					fmt.Println(ui.RenderMuted("No events."))
					return
				}
				// recurring HH:MM items sort before dated ones
				sort.SliceStable(events, func(i, j int) bool { return events[i].Start < events[j].Start })
				rows := make([][]string, 0, len(events))
				for _, e := range events {
					rows = append(rows, []string{shortID(e.ID), e.Start, ui.RenderColor(e.Color, string(e.Type)), e.Title})
				}
				fmt.Println(ui.Table([]string{"ID", "Start", "Type", "Title"}, rows))
			})
		})
	},
}

var eventRmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete an event",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			var ids []string
			a.view(func(s *schema.Snapshot) {
				for _, e := range s.Events {
					ids = append(ids, e.ID)
				}
			})
			id := resolveID("event", ids, args[0])
			a.update(ctx, state.Events.Delete(id))
			done("Deleted event %s", shortID(id))
		})
	},
}

var layoutCmd = &cobra.Command{
	Use:     "layout",
	GroupID: "data",
	Short:   "Show or set per-tab layouts",
}

var layoutShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the layout of every tab",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			a.view(func(s *schema.Snapshot) {
				tabs := make([]string, 0, len(s.Layout))
				for tab := range s.Layout {
					tabs = append(tabs, tab)
				}
				sort.Strings(tabs)
				rows := make([][]string, 0, len(tabs))
				for _, tab := range tabs {
					rows = append(rows, []string{tab, s.Layout[tab]})
				}
				fmt.Println(ui.Table([]string{"Tab", "Layout"}, rows))
				fmt.Printf("Theme: %s   Tab: %s\n", s.Theme, s.Tab)
			})
		})
	},
}

var layoutSetCmd = &cobra.Command{
	Use:   "set <tab> <layout>",
	Short: "Set the layout of a tab",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			a.update(ctx, state.SetLayout(args[0], args[1]))
			done("Layout of %s set to %s", args[0], args[1])
		})
	},
}

var themeCmd = &cobra.Command{
	Use:     "theme <dark|light>",
	GroupID: "data",
	Short:   "Set the color theme of this window",
	Args:    cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			a.update(ctx, state.SetTheme(args[0]))
			done("Theme set to %s", args[0])
		})
	},
}

func init() {
	eventAddCmd.Flags().String("at", "", "Start (YYYY-MM-DDTHH:MM, HH:MM, or e.g. \"friday 7pm\")")
	eventAddCmd.Flags().String("type", string(schema.EventSchedule), "Type (schedule, reminder, task)")
	eventAddCmd.Flags().String("color", "", "Color (hex); defaults by type")
	eventAddCmd.Flags().String("description", "", "Description")
	_ = eventAddCmd.MarkFlagRequired("at")
	eventListCmd.Flags().String("type", "", "Only show events of this type")

	eventCmd.AddCommand(eventAddCmd)
	eventCmd.AddCommand(eventListCmd)
	eventCmd.AddCommand(eventRmCmd)
	layoutCmd.AddCommand(layoutShowCmd)
	layoutCmd.AddCommand(layoutSetCmd)
	rootCmd.AddCommand(eventCmd)
	rootCmd.AddCommand(layoutCmd)
	rootCmd.AddCommand(themeCmd)
}
