package platform

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config is the file form of the session options, read by the CLI.
type Config struct {
	Workspace string        `yaml:"workspace" toml:"workspace"`
	Relay     RelayConfig   `yaml:"relay" toml:"relay"`
	Pages     PagesConfig   `yaml:"pages" toml:"pages"`
	Client    ClientConfig  `yaml:"client" toml:"client"`
	Session   SessionConfig `yaml:"session" toml:"session"`
	Log       LogConfig     `yaml:"log" toml:"log"`
}

// RelayConfig locates the relay. URL is used by clients, Addr by `canopy relay`.
type RelayConfig struct {
	URL            string `yaml:"url" toml:"url"`
	Addr           string `yaml:"addr" toml:"addr"`
	ConnectTimeout string `yaml:"connect_timeout" toml:"connect_timeout"`
	Insecure       bool   `yaml:"insecure" toml:"insecure"`
}

// PagesConfig describes the page directory.
type PagesConfig struct {
	Dir       string `yaml:"dir" toml:"dir"`
	Pattern   string `yaml:"pattern" toml:"pattern"`
	SystemDir string `yaml:"system_dir" toml:"system_dir"`
	NoCache   bool   `yaml:"no_cache" toml:"no_cache"`
}

// ClientConfig identifies this client to peers.
type ClientConfig struct {
	ID   string `yaml:"id" toml:"id"`
	Name string `yaml:"name" toml:"name"`
}

// SessionConfig tunes the session engine.
type SessionConfig struct {
	SyncTimeout string `yaml:"sync_timeout" toml:"sync_timeout"`
	EventBuffer int    `yaml:"event_buffer" toml:"event_buffer"`
}

// LogConfig selects the CLI log handler.
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`   // debug, info, warn, error
	Format string `yaml:"format" toml:"format"` // text, json
}

// DefaultConfig returns the configuration used when no file is found.
func DefaultConfig() *Config {
	return &Config{
		Workspace: "default",
		Relay:     RelayConfig{Addr: ":4000"},
		Pages:     PagesConfig{Dir: "."},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads a YAML or TOML file, chosen by extension, over the defaults.
// Relative page directories are resolved against the file's directory.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if cfg.Pages.Dir != "" && !filepath.IsAbs(cfg.Pages.Dir) {
		cfg.Pages.Dir = filepath.Join(filepath.Dir(path), cfg.Pages.Dir)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields that are parsed lazily.
func (c *Config) Validate() error {
	if _, err := parseDuration(c.Relay.ConnectTimeout); err != nil {
		return fmt.Errorf("relay.connect_timeout: %w", err)
	}
	if _, err := parseDuration(c.Session.SyncTimeout); err != nil {
		return fmt.Errorf("session.sync_timeout: %w", err)
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format: unknown format %q", c.Log.Format)
	}
	return nil
}

// Options converts the config into session options.
func (c *Config) Options() []Option {
	opts := []Option{
		WithWorkspace(c.Workspace),
		WithClientID(c.Client.ID),
		WithClientName(c.Client.Name),
		WithInsecureSkipVerify(c.Relay.Insecure),
		WithPattern(c.Pages.Pattern),
		WithSystemDir(c.Pages.SystemDir),
		WithNoCache(c.Pages.NoCache),
		WithEventBuffer(c.Session.EventBuffer),
	}
	if c.Relay.URL != "" {
		opts = append(opts, WithRelayURL(c.Relay.URL))
	}
	if c.Pages.Dir != "" {
		opts = append(opts, WithPagesDir(c.Pages.Dir))
	}
	if d, _ := parseDuration(c.Relay.ConnectTimeout); d > 0 {
		opts = append(opts, WithConnectTimeout(d))
	}
	if d, _ := parseDuration(c.Session.SyncTimeout); d > 0 {
		opts = append(opts, WithSyncTimeout(d))
	}
	return opts
}

// Logger builds the slog logger described by the config.
func (c *Config) Logger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(c.Log.Level)
	handlerOpts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

// ParseLevel maps a level name to slog. An empty name means info.
func ParseLevel(name string) (slog.Level, error) {
	var level slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
