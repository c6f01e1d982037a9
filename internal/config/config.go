package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Integration   IntegrationConfig   `toml:"integration" yaml:"integration"`
	Build         BuildConfig         `toml:"build" yaml:"build"`
	Workspace     WorkspaceConfig     `toml:"workspace" yaml:"workspace"`
	Store         StoreConfig         `toml:"store" yaml:"store"`
	Notifications NotificationsConfig `toml:"notifications" yaml:"notifications"`
	Schedule      ScheduleConfig      `toml:"schedule" yaml:"schedule"`
}

// IntegrationConfig selects the integration branch and policy
type IntegrationConfig struct {
	Branch         string   `toml:"branch" yaml:"branch"`
	Remote         string   `toml:"remote" yaml:"remote"`
	Strategy       string   `toml:"strategy" yaml:"strategy"`
	Behaviours     []string `toml:"behaviours" yaml:"behaviours"`
	RequiredResult string   `toml:"required_result" yaml:"required_result"`
}

// BuildConfig describes the build run against the integrated workspace
type BuildConfig struct {
	Command          string            `toml:"command" yaml:"command"`
	UnstableExitCode int               `toml:"unstable_exit_code" yaml:"unstable_exit_code"`
	Timeout          Duration          `toml:"timeout" yaml:"timeout"`
	Env              map[string]string `toml:"env" yaml:"env"`
}

// WorkspaceConfig locates the working copy
type WorkspaceConfig struct {
	Dir    string `toml:"dir" yaml:"dir"`
	GitExe string `toml:"git_exe" yaml:"git_exe"`
}

// StoreConfig holds run history settings
type StoreConfig struct {
	DatabasePath string `toml:"database_path" yaml:"database_path"`
}

// NotificationsConfig holds notification settings
type NotificationsConfig struct {
	SlackWebhook string `toml:"slack_webhook" yaml:"slack_webhook"`
	Desktop      bool   `toml:"desktop" yaml:"desktop"`
}

// ScheduleConfig drives the watch command
type ScheduleConfig struct {
	Cron             string `toml:"cron" yaml:"cron"`
	CandidatePattern string `toml:"candidate_pattern" yaml:"candidate_pattern"`
}

// Duration is a time.Duration written as "90s" or "1h" in config files
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	s := strings.TrimSpace(string(text))
	if s == "" {
		d.Duration = 0
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = v
	return nil
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Integration: IntegrationConfig{
			Branch:         "master",
			Remote:         "origin",
			Strategy:       "squash",
			Behaviours:     []string{"rollback-on-failure"},
			RequiredResult: "success",
		},
		Build: BuildConfig{
			Timeout: Duration{time.Hour},
		},
		Workspace: WorkspaceConfig{
			Dir:    ".",
			GitExe: "git",
		},
		Store: StoreConfig{
			DatabasePath: filepath.Join(home, ".preint", "runs.db"),
		},
		Schedule: ScheduleConfig{
			Cron:             "*/5 * * * *",
			CandidatePattern: "ready/*",
		},
	}
}

// Load reads configuration from a TOML file (or YAML, by extension),
// falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	// Expand paths
	cfg.Workspace.Dir = ExpandPath(cfg.Workspace.Dir)
	cfg.Store.DatabasePath = ExpandPath(cfg.Store.DatabasePath)

	return cfg, nil
}

// Save writes the configuration as TOML
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
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
	return filepath.Join(home, ".config", "preint", "config.toml")
}

// LocalConfigName is the per-repository config file name
const LocalConfigName = ".preint.toml"

// FindLocalConfig walks up from the working directory looking for
// LocalConfigName. Returns "" if none is found.
func FindLocalConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, LocalConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
