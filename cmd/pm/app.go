package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"

	"github.com/muchacho/personal-manager/internal/assistant"
	"github.com/muchacho/personal-manager/internal/broadcast"
	"github.com/muchacho/personal-manager/internal/config"
	"github.com/muchacho/personal-manager/internal/dispatch"
	"github.com/muchacho/personal-manager/internal/migrate"
	"github.com/muchacho/personal-manager/internal/schema"
	"github.com/muchacho/personal-manager/internal/state"
	"github.com/muchacho/personal-manager/internal/store"
	"github.com/muchacho/personal-manager/internal/ui"
	"github.com/muchacho/personal-manager/internal/vault"
	"github.com/muchacho/personal-manager/internal/worker"
)

// app wires the core packages for one command invocation.
type app struct {
	file    *store.FileStore
	cache   *store.Cache
	state   *state.Controller
	channel broadcast.Channel
	boot    *migrate.Result

	worker     *worker.Worker
	dispatcher *dispatch.Dispatcher
	assistant  *assistant.Assistant
	cipher     *vault.Cipher

	closeOnce sync.Once
}

// appOptions overrides parts of the default wiring.
type appOptions struct {
	// Channel replaces the hub client.
	Channel  broadcast.Channel
	OnRemote func(*schema.Snapshot)
}

// openApp boots the state controller from the configured sources. The
// cache and hub are optional; failures there are reported and skipped.
func openApp(ctx context.Context, opts appOptions) *app {
	a := &app{file: store.NewFileStore(cfg.DataPath(), sink.Logger("store"))}
	onExit(a.close)

	sources := []migrate.Source{migrate.NewStoreSource(migrate.SourceFile, a.file)}
	var primary store.Store = a.file

	cache, err := store.OpenCache(cfg.CachePath(), sink.Logger("store"))
	if err != nil {
		warn("fallback cache unavailable: %v", err)
	} else {
		a.cache = cache
		sources = append(sources,
			migrate.NewStoreSource(migrate.SourceCache, cache),
			migrate.NewLegacySource(cache),
		)
		primary = store.NewFallback(a.file, cache, sink.Logger("store"))
	}

	policy, err := migrate.ParsePolicy(cfg.Precedence)
	if err != nil {
		fatal("%v", err)
	}

	a.channel = opts.Channel
	if a.channel == nil && cfg.Hub.URL != "" {
		client, err := broadcast.Dial(ctx, cfg.Hub.URL, sink.Logger("broadcast"))
		if err != nil {
			warn("not broadcasting, hub unreachable: %v", err)
		} else {
			a.channel = client
		}
	}

	ctrl, err := state.New(&state.Config{
		Sources:   sources,
		Policy:    policy,
		WriteBack: a.file,
		Store:     primary,
		Channel:   a.channel,
		Origin:    cfg.Window.ID,
		OnRemote:  opts.OnRemote,
		Logger:    sink.Logger("state"),
	})
	if err != nil {
		fatal("%v", err)
	}
	a.state = ctrl

	res, err := ctrl.Boot(ctx)
	if err != nil {
		a.close()
		fatal("%v", err)
	}
	a.boot = res
	if res.WriteBackErr != nil {
		warn("recovered data from %s but could not write it back: %v", res.Source, res.WriteBackErr)
	}
	return a
}

// startAssistant starts the compute worker and the dispatcher in front of it.
func (a *app) startAssistant() *assistant.Assistant {
	if a.assistant != nil {
		return a.assistant
	}

	wcfg := worker.DefaultConfig()
	wcfg.Logger = sink.Logger("worker")
	if cfg.AI.Summarizer == config.SummarizerAnthropic {
		s, err := worker.NewAnthropicSummarizer(cfg.AI.AnthropicAPIKey, cfg.AI.AnthropicModel)
		if err != nil {
			warn("using extractive summaries: %v", err)
		} else {
			wcfg.Summarizer = s
		}
	}
	switch cfg.AI.Embedder {
	case config.EmbedderWasm:
		path := cfg.AI.WasmModel
		wcfg.Embedder = func(ctx context.Context) (worker.Embedder, error) {
			return worker.LoadWasmEmbedder(ctx, path)
		}
	default:
		dims := cfg.AI.HashDims
		wcfg.Embedder = func(context.Context) (worker.Embedder, error) {
			return worker.NewHashEmbedder(dims), nil
		}
	}

	a.worker = worker.NewWithConfig(wcfg)
	a.worker.Start()

	dcfg := dispatch.DefaultConfig()
	dcfg.Logger = sink.Logger("dispatch")
	if cfg.Dispatch.Mode == config.DispatchByType {
		dcfg.Mode = dispatch.ModeByResponseType
	}
	dcfg.Notifier = func(err *dispatch.WorkerError) {
		warn("AI error: %s", err.Message)
	}
	a.dispatcher = dispatch.NewWithConfig(a.worker, dcfg)

	acfg := assistant.Config{
		State:      a.state,
		Dispatcher: a.dispatcher,
		Logger:     sink.Logger("assistant"),
	}
	// the security check compares plaintext when a passphrase is configured
	if a.cipher != nil {
		acfg.Cipher = a.cipher
	} else if cfg.Vault.Passphrase != "" {
		acfg.Cipher = a.openCipher()
	}
	ai, err := assistant.New(acfg)
	if err != nil {
		fatal("%v", err)
	}
	a.assistant = ai
	return ai
}

// openCipher derives the vault key, prompting for the passphrase when it is
// not configured.
func (a *app) openCipher() *vault.Cipher {
	if a.cipher != nil {
		return a.cipher
	}
	passphrase := cfg.Vault.Passphrase
	if passphrase == "" {
		p, err := promptPassphrase()
		if err != nil {
			fatal("%v", err)
		}
		passphrase = p
	}
	salt, err := vault.LoadOrCreateSalt(cfg.SaltPath())
	if err != nil {
		fatal("%v", err)
	}
	c, err := vault.New(passphrase, salt, sink.Logger("vault"))
	if err != nil {
		fatal("%v", err)
	}
	a.cipher = c
	return c
}

func promptPassphrase() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no vault passphrase: set PM_VAULT_PASSPHRASE or run in a terminal")
	}
	fmt.Fprint(os.Stderr, "Vault passphrase: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	p := strings.TrimSpace(string(raw))
	if p == "" {
		return "", vault.ErrEmptyPassphrase
	}
	return p, nil
}

// update applies r and reports a degraded or failed save.
func (a *app) update(ctx context.Context, r state.Reducer) {
	if err := a.state.Update(ctx, r); err != nil {
		fatal("%v", err)
	}
}

func (a *app) view(fn func(s *schema.Snapshot)) {
	if err := a.state.View(fn); err != nil {
		fatal("%v", err)
	}
}

// close stops the worker and closes the stores. It is safe to call twice.
func (a *app) close() {
	a.closeOnce.Do(a.shutdown)
}

func (a *app) shutdown() {
	if a.dispatcher != nil {
		a.dispatcher.Close()
	}
	if a.worker != nil {
		a.worker.Stop()
	}
	if a.state != nil {
		_ = a.state.Close()
	} else if a.channel != nil {
		_ = a.channel.Close()
	}
	if a.cache != nil {
		_ = a.cache.Close()
	}
}

// withApp runs fn with an open app and closes it afterwards.
func withApp(fn func(ctx context.Context, a *app)) {
	ctx := context.Background()
	a := openApp(ctx, appOptions{})
	defer a.close()
	fn(ctx, a)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// resolveID accepts a full id or a unique prefix of one.
func resolveID(kind string, ids []string, prefix string) string {
	var match string
	for _, id := range ids {
		if id == prefix {
			return id
		}
		if strings.HasPrefix(id, prefix) {
			if match != "" {
				fatal("%s id %q is ambiguous", kind, prefix)
			}
			match = id
		}
	}
	if match == "" {
		fatal("no %s with id %q", kind, prefix)
	}
	return match
}

func done(format string, args ...any) {
	fmt.Printf("%s %s\n", ui.RenderPass("✓"), fmt.Sprintf(format, args...))
}
