package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config holds all application configuration
type Config struct {
	Reporter ReporterConfig `toml:"reporter"`
	Web      WebConfig      `toml:"web"`
	HostLink HostLinkConfig `toml:"hostlink"`
	Journal  JournalConfig  `toml:"journal"`
	Follow   FollowConfig   `toml:"follow"`

	Notifications NotificationsConfig `toml:"notifications"`
}

// ReporterConfig holds session settings
type ReporterConfig struct {
	HoverDelay          Duration `toml:"hover_delay"`
	TooltipDelay        Duration `toml:"tooltip_delay"`
	ScaledMessageLength int      `toml:"scaled_message_length"`
	InboxSize           int      `toml:"inbox_size"`
}

// WebConfig holds web API settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// HostLinkConfig holds the host runner WebSocket settings
type HostLinkConfig struct {
	Path              string   `toml:"path"`
	HeartbeatInterval Duration `toml:"heartbeat_interval"`
	HeartbeatTimeout  Duration `toml:"heartbeat_timeout"`
}

// JournalConfig holds event journal settings
type JournalConfig struct {
	Enabled      bool     `toml:"enabled"`
	DatabasePath string   `toml:"database_path"`
	Retention    Duration `toml:"retention"`
	PruneCron    string   `toml:"prune_cron"`
}

// FollowConfig holds settings for tailing event files
type FollowConfig struct {
	Debounce Duration `toml:"debounce"`
}

// NotificationsConfig holds run-settled notification settings
type NotificationsConfig struct {
	Desktop      bool   `toml:"desktop"`
	SlackWebhook string `toml:"slack_webhook"`
}

// Duration is a time.Duration written as a string such as "50ms"
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Reporter: ReporterConfig{
			HoverDelay:          Duration{50 * time.Millisecond},
			TooltipDelay:        Duration{1500 * time.Millisecond},
			ScaledMessageLength: 100,
			InboxSize:           256,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		HostLink: HostLinkConfig{
			Path:              "/ws/host",
			HeartbeatInterval: Duration{30 * time.Second},
			HeartbeatTimeout:  Duration{90 * time.Second},
		},
		Journal: JournalConfig{
			Enabled:      false,
			DatabasePath: filepath.Join(home, ".live-reporter", "journal.db"),
			Retention:    Duration{7 * 24 * time.Hour},
			PruneCron:    "0 3 * * *",
		},
		Follow: FollowConfig{
			Debounce: Duration{100 * time.Millisecond},
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.Journal.DatabasePath = ExpandPath(cfg.Journal.DatabasePath)

	return cfg, nil
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "live-reporter", "config.toml")
}
