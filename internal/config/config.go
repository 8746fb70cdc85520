// Package config loads pm settings from defaults, an optional config file,
// PM_* environment variables and command-line flags, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment overrides: data_dir is PM_DATA_DIR,
// log.file is PM_LOG_FILE.
const EnvPrefix = "PM"

// ConfigName is the config file base name; yaml, toml and json are accepted.
const ConfigName = "pm"

// Config is the resolved configuration.
type Config struct {
	DataDir    string `mapstructure:"data_dir"`
	DataFile   string `mapstructure:"data_file"`
	CacheFile  string `mapstructure:"cache_file"`
	Precedence string `mapstructure:"precedence"`

	Log      LogConfig      `mapstructure:"log"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Hub      HubConfig      `mapstructure:"hub"`
	Window   WindowConfig   `mapstructure:"window"`
	AI       AIConfig       `mapstructure:"ai"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`

	// File is the config file that was read, empty if none.
	File string `mapstructure:"-"`
}

type LogConfig struct {
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	Quiet      bool   `mapstructure:"quiet"`
}

type VaultConfig struct {
	Passphrase string `mapstructure:"passphrase"`
}

type HubConfig struct {
	Addr string `mapstructure:"addr"`
	URL  string `mapstructure:"url"`
}

type WindowConfig struct {
	ID string `mapstructure:"id"`
}

type AIConfig struct {
	Summarizer      string `mapstructure:"summarizer"`
	AnthropicModel  string `mapstructure:"anthropic_model"`
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	Embedder        string `mapstructure:"embedder"`
	WasmModel       string `mapstructure:"wasm_model"`
	HashDims        int    `mapstructure:"hash_dims"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce"`
}

type DispatchConfig struct {
	Mode string `mapstructure:"mode"`
}

// Summarizer and embedder names.
const (
	SummarizerExtractive = "extractive"
	SummarizerAnthropic  = "anthropic"
	EmbedderHash         = "hash"
	EmbedderWasm         = "wasm"
	DispatchCorrelated   = "correlated"
	DispatchByType       = "by-type"
)

// DefaultDataDir returns the per-user data directory.
func DefaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "personal-manager")
	}
	return ".personal-manager"
}

// SetDefaults registers every key with its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("data_file", "data.json")
	v.SetDefault("cache_file", "cache.db")
	v.SetDefault("precedence", "newest")

	v.SetDefault("log.file", "pm.log")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.quiet", true)

	v.SetDefault("vault.passphrase", "")

	v.SetDefault("hub.addr", "127.0.0.1:7878")
	v.SetDefault("hub.url", "")

	v.SetDefault("window.id", "")

	v.SetDefault("ai.summarizer", SummarizerExtractive)
	v.SetDefault("ai.anthropic_model", "claude-3-5-haiku-latest")
	v.SetDefault("ai.anthropic_api_key", "")
	v.SetDefault("ai.embedder", EmbedderHash)
	v.SetDefault("ai.wasm_model", "")
	v.SetDefault("ai.hash_dims", 256)

	v.SetDefault("watch.debounce", 100*time.Millisecond)

	v.SetDefault("dispatch.mode", DispatchCorrelated)
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("ai.anthropic_api_key", "PM_AI_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY")
	return v
}

// Load reads the config file (explicit path, or pm.* in the user config
// directory or the working directory) and resolves the final settings.
// A missing config file is not an error.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(ConfigName)
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "pm"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.DataDir = expandHome(cfg.DataDir)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks enumerated settings.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir cannot be empty")
	}
	if c.DataFile == "" {
		return fmt.Errorf("data_file cannot be empty")
	}
	switch c.AI.Summarizer {
	case SummarizerExtractive, SummarizerAnthropic:
	default:
		return fmt.Errorf("invalid ai.summarizer %q (want %s or %s)", c.AI.Summarizer, SummarizerExtractive, SummarizerAnthropic)
	}
	switch c.AI.Embedder {
	case EmbedderHash, EmbedderWasm:
	default:
		return fmt.Errorf("invalid ai.embedder %q (want %s or %s)", c.AI.Embedder, EmbedderHash, EmbedderWasm)
	}
	if c.AI.Embedder == EmbedderWasm && c.AI.WasmModel == "" {
		return fmt.Errorf("ai.wasm_model is required when ai.embedder is %s", EmbedderWasm)
	}
	switch c.Dispatch.Mode {
	case DispatchCorrelated, DispatchByType:
	default:
		return fmt.Errorf("invalid dispatch.mode %q (want %s or %s)", c.Dispatch.Mode, DispatchCorrelated, DispatchByType)
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce cannot be negative")
	}
	return nil
}

// DataPath returns the primary data file.
func (c *Config) DataPath() string { return c.resolve(c.DataFile) }

// CachePath returns the fallback cache database.
func (c *Config) CachePath() string { return c.resolve(c.CacheFile) }

// LogPath returns the log file, empty when file logging is off.
func (c *Config) LogPath() string {
	if c.Log.File == "" {
		return ""
	}
	return c.resolve(c.Log.File)
}

// SaltPath returns the vault salt file.
func (c *Config) SaltPath() string { return c.resolve("vault.salt") }

func (c *Config) resolve(name string) string {
	name = expandHome(name)
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
