package app

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/rancher/cherry-pick-helper/internal/orchestrator"
)

const (
	envPrefix      = "CHERRY_PICK_"
	configDirName  = "cherry-pick-helper"
	configFileName = "config.yaml"
)

// Config captures the runtime controls for the helper.
type Config struct {
	RepositoryPath  string        `koanf:"repository_path"`
	Remote          string        `koanf:"remote"`
	SinceMonths     int           `koanf:"since_months"`
	IgnoreUntracked bool          `koanf:"ignore_untracked"`
	GitBinary       string        `koanf:"git_binary"`
	NetworkTimeout  time.Duration `koanf:"network_timeout"`
	DryRun          bool          `koanf:"dry_run"`
	LogLevel        string        `koanf:"log_level"`
	LogFormat       string        `koanf:"log_format"`
	GitHub          GitHubConfig  `koanf:"github"`
}

// GitHubConfig holds the optional GitHub API settings. Leaving BaseURL and
// UploadURL empty targets github.com.
type GitHubConfig struct {
	Token     string `koanf:"token"`
	BaseURL   string `koanf:"base_url"`
	UploadURL string `koanf:"upload_url"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		Remote:         "origin",
		SinceMonths:    orchestrator.DefaultSinceMonths,
		GitBinary:      "git",
		NetworkTimeout: 2 * time.Minute,
		LogLevel:       "info",
		LogFormat:      "text",
	}
}

// DefaultConfigPath returns <user config dir>/cherry-pick-helper/config.yaml.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config dir: %w", err)
	}
	return filepath.Join(dir, configDirName, configFileName), nil
}

// Load reads configuration from the given YAML file path and environment
// variables. A missing file is not an error.
// Priority: environment variables > file > defaults.
func Load(path string) (Config, error) {
	k, err := loadFile(path)
	if err != nil {
		return Config{}, err
	}

	// CHERRY_PICK_GITHUB__TOKEN -> github.token
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return Config{}, fmt.Errorf("loading env config: %w", err)
	}

	cfg, err := unmarshal(k)
	if err != nil {
		return Config{}, err
	}
	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
	}
	return cfg, nil
}

// LoadFile reads defaults and the YAML file only. The config subcommands edit
// what this returns so environment overrides never end up on disk.
func LoadFile(path string) (Config, error) {
	k, err := loadFile(path)
	if err != nil {
		return Config{}, err
	}
	return unmarshal(k)
}

// LoadFromReader reads configuration from an io.Reader containing YAML.
// Environment variables are not applied.
func LoadFromReader(r io.Reader) (Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	k := koanf.New(".")
	_ = k.Load(confmap.Provider(DefaultConfig().toMap(), "."), nil)

	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return unmarshal(k)
}

func loadFile(path string) (*koanf.Koanf, error) {
	k := koanf.New(".")

	// confmap.Provider wraps an in-memory map and never fails.
	_ = k.Load(confmap.Provider(DefaultConfig().toMap(), "."), nil)

	if path == "" {
		return k, nil
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading config %s: %w", path, err)
		}
	}
	return k, nil
}

func unmarshal(k *koanf.Koanf) (Config, error) {
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML, creating the parent
// directory. The file holds a token, so it is written 0600.
func Save(path string, cfg Config) error {
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return err
	}

	k := koanf.New(".")
	_ = k.Load(confmap.Provider(cfg.toMap(), "."), nil)
	data, err := k.Marshal(yaml.Parser())
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// Redacted returns a copy safe to print: the token keeps its last four
// characters.
func (c Config) Redacted() Config {
	if token := c.GitHub.Token; token != "" {
		if len(token) > 4 {
			c.GitHub.Token = "****" + token[len(token)-4:]
		} else {
			c.GitHub.Token = "****"
		}
	}
	return c
}

// OrchestratorConfig maps the settings the core needs.
func (c Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		Remote:             c.Remote,
		DefaultSinceMonths: c.SinceMonths,
		IgnoreUntracked:    c.IgnoreUntracked,
	}
}

func (c Config) toMap() map[string]any {
	return map[string]any{
		"repository_path":   c.RepositoryPath,
		"remote":            c.Remote,
		"since_months":      c.SinceMonths,
		"ignore_untracked":  c.IgnoreUntracked,
		"git_binary":        c.GitBinary,
		"network_timeout":   c.NetworkTimeout.String(),
		"dry_run":           c.DryRun,
		"log_level":         c.LogLevel,
		"log_format":        c.LogFormat,
		"github.token":      c.GitHub.Token,
		"github.base_url":   c.GitHub.BaseURL,
		"github.upload_url": c.GitHub.UploadURL,
	}
}

func (c *Config) normalize() {
	c.RepositoryPath = strings.TrimSpace(c.RepositoryPath)
	c.Remote = strings.TrimSpace(c.Remote)
	c.GitBinary = strings.TrimSpace(c.GitBinary)
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.GitHub.Token = strings.TrimSpace(c.GitHub.Token)
	c.GitHub.BaseURL = strings.TrimSpace(c.GitHub.BaseURL)
	c.GitHub.UploadURL = strings.TrimSpace(c.GitHub.UploadURL)
}

func (c Config) validate() error {
	if c.Remote == "" || strings.ContainsAny(c.Remote, " \t/") {
		return fmt.Errorf("remote must be a plain remote name: %q", c.Remote)
	}
	if c.SinceMonths < 1 {
		return fmt.Errorf("since_months must be at least 1, got %d", c.SinceMonths)
	}
	if c.GitBinary == "" {
		return errors.New("git_binary must not be empty")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.LogFormat {
	case "", "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}

	if (c.GitHub.BaseURL == "") != (c.GitHub.UploadURL == "") {
		return errors.New("github.base_url and github.upload_url must be set together")
	}
	for _, raw := range []string{c.GitHub.BaseURL, c.GitHub.UploadURL} {
		if raw == "" {
			continue
		}
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid github url %q", raw)
		}
	}
	return nil
}
