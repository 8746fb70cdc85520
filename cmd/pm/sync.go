package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/muchacho/personal-manager/internal/broadcast"
	"github.com/muchacho/personal-manager/internal/schema"
	"github.com/muchacho/personal-manager/internal/ui"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "sync",
	Short:   "Load every data source, upgrade it and report conflicts",
	Long: `Read the data file, the fallback cache and legacy records, upgrade each
to the current schema and pick one by the configured precedence
(newest, primary or fallback). Sources that were not used are listed as
conflicts. With --save the upgraded document is written back.`,
	Run: func(cmd *cobra.Command, args []string) {
		save, _ := cmd.Flags().GetBool("save")
		withApp(func(ctx context.Context, a *app) {
			res := a.boot
			if res.Fresh {
				fmt.Printf("%s No stored data, starting fresh\n", ui.RenderWarn("⚠"))
			} else {
				fmt.Printf("%s Loaded from %s\n", ui.RenderPass("✓"), ui.RenderAccent(res.Source))
			}
			if len(res.Applied) > 0 {
				fmt.Printf("   Steps applied: %v\n", res.Applied)
			} else {
				fmt.Printf("   Already at schema version %d\n", schema.CurrentVersion)
			}
			if res.WroteBack {
				fmt.Printf("   Recovered data written back to %s\n", a.file.Path())
			}
			for _, c := range res.Conflicts {
				fmt.Printf("   %s %s\n", ui.RenderWarn("conflict"), c)
			}
			if save {
				if err := a.state.Save(ctx); err != nil {
					fatal("%v", err)
				}
				done("Saved %s", a.file.Path())
			}
		})
	},
}

var exportCmd = &cobra.Command{
	Use:     "export",
	GroupID: "sync",
	Short:   "Export all data as JSON, YAML or TOML",
	Run: func(cmd *cobra.Command, args []string) {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		withApp(func(ctx context.Context, a *app) {
			snap, err := a.state.Snapshot()
			if err != nil {
				fatal("%v", err)
			}
			data, err := encodeSnapshot(snap, format)
			if err != nil {
				fatal("%v", err)
			}
			if output == "" || output == "-" {
				_, _ = os.Stdout.Write(data)
				return
			}
			if err := os.WriteFile(output, data, 0600); err != nil {
				fatal("failed to write %s: %v", output, err)
			}
			done("Exported %d records to %s", snap.RecordCount(), output)
		})
	},
}

// encodeSnapshot renders snap in format. YAML and TOML keep the JSON key
// names of the document.
func encodeSnapshot(snap *schema.Snapshot, format string) ([]byte, error) {
	data, err := snap.Encode()
	if err != nil {
		return nil, err
	}
	if format == "json" {
		return append(data, '\n'), nil
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to re-read snapshot: %w", err)
	}
	switch format {
	case "yaml":
		out, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to encode yaml: %w", err)
		}
		return out, nil
	case "toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
			return nil, fmt.Errorf("failed to encode toml: %w", err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unknown format %q (want json, yaml or toml)", format)
}

var hubCmd = &cobra.Command{
	Use:     "hub",
	GroupID: "sync",
	Short:   "Run the broadcast hub that relays changes between windows",
	Long: `Run a WebSocket hub. Every pm process started with --hub (or hub.url)
sends its saved snapshots here and the hub relays them to the others.

  pm hub --addr 127.0.0.1:7878
  pm watch --hub ws://127.0.0.1:7878/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		hcfg := broadcast.DefaultHubConfig()
		hcfg.Addr = cfg.Hub.Addr
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			hcfg.Addr = addr
		}
		hcfg.Logger = sink.Logger("hub")

		hub := broadcast.NewHub(hcfg)
		if err := hub.Start(); err != nil {
			fatal("failed to start hub: %v", err)
		}

		fmt.Printf("%s Hub listening on %s\n", ui.RenderAccent("🚀"), hub.Addr())
		fmt.Printf("   WebSocket endpoint: %s\n", hub.URL())
		fmt.Printf("   Health check: http://%s/health\n", hub.Addr())
		fmt.Println("\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		<-ctx.Done()

		fmt.Println("\nShutting down hub...")
		if err := hub.Stop(); err != nil {
			fatal("error during shutdown: %v", err)
		}
		fmt.Println("Hub stopped")
	},
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	GroupID: "sync",
	Short:   "Follow changes made by other windows",
	Long: `Stay open and print a line whenever another window changes the data.
Changes arrive from the hub when one is configured, otherwise from the data
file itself.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		var opts appOptions
		source := cfg.Hub.URL
		if cfg.Hub.URL == "" {
			wcfg := broadcast.DefaultWatchConfig()
			wcfg.Debounce = cfg.Watch.Debounce
			wcfg.Logger = sink.Logger("watch")
			fw, err := broadcast.NewFileWatcher(cfg.DataPath(), wcfg)
			if err != nil {
				fatal("%v", err)
			}
			if err := fw.Start(); err != nil {
				fatal("%v", err)
			}
			opts.Channel = fw
			source = fw.Path()
		}
		opts.OnRemote = func(s *schema.Snapshot) {
			printChange(os.Stdout, s)
		}

		a := openApp(ctx, opts)
		defer a.close()
		a.state.Listen(ctx)

		fmt.Printf("%s Watching %s as window %s\n", ui.RenderAccent("👀"), source, shortID(a.state.Origin()))
		fmt.Println("Press Ctrl+C to stop...")
		<-ctx.Done()
		fmt.Println()
	},
}

func printChange(w io.Writer, s *schema.Snapshot) {
	fmt.Fprintf(w, "%s %s  todos %d  notes %d  passwords %d  books %d  videos %d  events %d\n",
		ui.RenderMuted(time.Now().Format("15:04:05")), ui.RenderPass("updated"),
		len(s.Todos), len(s.Notes), len(s.Passwords), len(s.Books), len(s.Videos), len(s.Events))
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show configuration, storage locations and record counts",
	Run: func(cmd *cobra.Command, args []string) {
		withApp(func(ctx context.Context, a *app) {
			fmt.Printf("\n%s Personal manager status\n\n", ui.RenderAccent("📊"))
			configFile := cfg.File
			if configFile == "" {
				configFile = ui.RenderMuted("(defaults)")
			}
			fmt.Printf("Config:     %s\n", configFile)
			fmt.Printf("Data:       %s\n", a.file.Path())
			if a.cache != nil {
				fmt.Printf("Cache:      %s\n", a.cache.Path())
			}
			fmt.Printf("Log:        %s\n", cfg.LogPath())
			fmt.Printf("Precedence: %s\n", cfg.Precedence)
			fmt.Printf("Window:     %s\n", a.state.Origin())
			if cfg.Hub.URL != "" {
				fmt.Printf("Hub:        %s\n", cfg.Hub.URL)
			}
			source := a.boot.Source
			if a.boot.Fresh {
				source = "fresh"
			}
			fmt.Printf("Loaded:     %s\n\n", source)

			a.view(func(s *schema.Snapshot) {
				rows := [][]string{
					{"todos", fmt.Sprint(len(s.Todos))},
					{"passwords", fmt.Sprint(len(s.Passwords))},
					{"apis", fmt.Sprint(len(s.APIs))},
					{"cards", fmt.Sprint(len(s.Cards))},
					{"notes", fmt.Sprint(len(s.Notes))},
					{"books", fmt.Sprint(len(s.Books))},
					{"videos", fmt.Sprint(len(s.Videos))},
					{"events", fmt.Sprint(len(s.Events))},
				}
				fmt.Println(ui.Table([]string{"Collection", "Records"}, rows))
				fmt.Printf("Schema version: %d\n", s.SchemaVersion)
				if s.SecurityHealth != nil {
					fmt.Printf("Vault health:   %s/100\n", ui.RenderScore(s.SecurityHealth.Score))
				}
			})
			if n := len(a.boot.Conflicts); n > 0 {
				fmt.Printf("\n%s %d source conflicts, see 'pm migrate'\n", ui.RenderWarn("⚠"), n)
			}
			fmt.Println()
		})
	},
}

func init() {
	migrateCmd.Flags().Bool("save", false, "Write the upgraded document back")
	exportCmd.Flags().StringP("format", "f", "json", "Output format (json, yaml, toml)")
	exportCmd.Flags().StringP("output", "o", "", "Output file (default stdout)")
	hubCmd.Flags().String("addr", "", "Listen address (default hub.addr)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(hubCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(statusCmd)
}
