package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	DefaultClientPath = "~/.config/habitctl/config.toml"
	defaultAPIURL     = "http://127.0.0.1:3333"
	defaultLogDir     = "~/.local/share/habitctl/logs"
)

// Client is the habitctl configuration.
type Client struct {
	APIURL          string
	Email           string
	CacheTTL        time.Duration
	RequestCooldown time.Duration
	PollInterval    time.Duration
	HTTPCacheTTL    time.Duration
	UseDashboard    bool
	LogDir          string
	Debug           bool

	path string
}

type rawClient struct {
	APIURL          string `toml:"api_url"`
	Email           string `toml:"email,omitempty"`
	CacheTTL        string `toml:"cache_ttl,omitempty"`
	RequestCooldown string `toml:"request_cooldown,omitempty"`
	PollInterval    string `toml:"poll_interval,omitempty"`
	HTTPCacheTTL    string `toml:"http_cache_ttl,omitempty"`
	UseDashboard    *bool  `toml:"use_dashboard,omitempty"`
	LogDir          string `toml:"log_dir,omitempty"`
	Debug           bool   `toml:"debug,omitempty"`
}

func DefaultClient() Client {
	return Client{
		APIURL:          defaultAPIURL,
		CacheTTL:        30 * time.Minute,
		RequestCooldown: 5 * time.Minute,
		PollInterval:    30 * time.Minute,
		UseDashboard:    true,
		LogDir:          mustExpand(defaultLogDir),
	}
}

// LoadClient parses the client config, falling back to defaults when the
// file is missing.
func LoadClient(path string) (Client, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Client{}, err
	}
	cfg := DefaultClient()
	cfg.path = resolved

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Client{}, fmt.Errorf("read config: %w", err)
	}

	var raw rawClient
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Client{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.APIURL); v != "" {
		cfg.APIURL = v
	}
	cfg.Email = strings.TrimSpace(raw.Email)
	if raw.UseDashboard != nil {
		cfg.UseDashboard = *raw.UseDashboard
	}
	cfg.Debug = raw.Debug
	if v := strings.TrimSpace(raw.LogDir); v != "" {
		cfg.LogDir = mustExpand(v)
	}

	durations := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"cache_ttl", raw.CacheTTL, &cfg.CacheTTL},
		{"request_cooldown", raw.RequestCooldown, &cfg.RequestCooldown},
		{"poll_interval", raw.PollInterval, &cfg.PollInterval},
		{"http_cache_ttl", raw.HTTPCacheTTL, &cfg.HTTPCacheTTL},
	}
	for _, d := range durations {
		if strings.TrimSpace(d.raw) == "" {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil || parsed < 0 {
			return Client{}, fmt.Errorf("parse config: invalid %s %q", d.name, d.raw)
		}
		*d.dst = parsed
	}
	return cfg, nil
}

func (c Client) Path() string { return c.path }

// Save writes the config back to the path it was loaded from.
func (c Client) Save() error {
	if c.path == "" {
		return errors.New("config path is not set")
	}
	raw := rawClient{
		APIURL:          c.APIURL,
		Email:           c.Email,
		CacheTTL:        c.CacheTTL.String(),
		RequestCooldown: c.RequestCooldown.String(),
		PollInterval:    c.PollInterval.String(),
		UseDashboard:    &c.UseDashboard,
		LogDir:          c.LogDir,
		Debug:           c.Debug,
	}
	if c.HTTPCacheTTL > 0 {
		raw.HTTPCacheTTL = c.HTTPCacheTTL.String()
	}
	data, err := toml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(DefaultClientPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
