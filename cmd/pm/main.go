package main

import (
	"fmt"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/muchacho/personal-manager/internal/config"
	"github.com/muchacho/personal-manager/internal/logging"
	"github.com/muchacho/personal-manager/internal/ui"
)

var (
	v       = config.New()
	cfgFile string
	cfg     *config.Config
	sink    *logging.Sink
)

var rootCmd = &cobra.Command{
	Use:   "pm",
	Short: "Personal manager: todos, vault, notes, books, videos and calendar",
	Long: `pm keeps todos, passwords, API keys, cards, notes, books, videos and
calendar events in one local document, with AI helpers that run on a
background worker.

Data lives in the data directory (see 'pm status'). Every change is saved
and broadcast to other pm windows connected to the same hub.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		loaded, err := config.Load(v, cfgFile)
		if err != nil {
			fatal("%v", err)
		}
		cfg = loaded
		opened, err := logging.Open(logging.Options{
			File:       cfg.LogPath(),
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			Quiet:      cfg.Log.Quiet,
		})
		if err != nil {
			fatal("%v", err)
		}
		sink = opened
		if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
			ui.DisableColor()
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if sink != nil {
			_ = sink.Close()
		}
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Records:"},
		&cobra.Group{ID: "vault", Title: "Vault:"},
		&cobra.Group{ID: "ai", Title: "AI helpers:"},
		&cobra.Group{ID: "sync", Title: "Storage and sync:"},
		&cobra.Group{ID: "maint", Title: "Maintenance:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default: pm.yaml in the user config dir)")
	flags.String("data-dir", "", "Data directory")
	flags.String("window", "", "Window id used when broadcasting changes")
	flags.String("hub", "", "Hub URL to broadcast changes to (ws://host:port/ws)")
	flags.Bool("quiet", true, "Keep log lines off stderr")
	flags.Bool("no-color", false, "Disable colored output")

	_ = v.BindPFlag("data_dir", flags.Lookup("data-dir"))
	_ = v.BindPFlag("window.id", flags.Lookup("window"))
	_ = v.BindPFlag("hub.url", flags.Lookup("hub"))
	_ = v.BindPFlag("log.quiet", flags.Lookup("quiet"))
}

var (
	cleanupMu sync.Mutex
	cleanups  []func()
)

// onExit registers fn to run before fatal exits.
func onExit(fn func()) {
	cleanupMu.Lock()
	cleanups = append(cleanups, fn)
	cleanupMu.Unlock()
}

// runCleanups runs the registered functions, most recent first, and forgets them.
func runCleanups() {
	cleanupMu.Lock()
	fns := cleanups
	cleanups = nil
	cleanupMu.Unlock()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// fatal prints an error, closes open stores and exits 1.
func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderFail("Error:"), fmt.Sprintf(format, args...))
	runCleanups()
	if sink != nil {
		_ = sink.Close()
	}
	os.Exit(1)
}

func warn(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "%s %s\n", ui.RenderWarn("⚠"), fmt.Sprintf(format, args...))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
