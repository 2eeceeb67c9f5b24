// Package config loads and validates the bot configuration: the root
// bot.yaml plus the message templates and command table it points at.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Config is the fully loaded, validated configuration.
type Config struct {
	Chat     ChatConfig `yaml:"chat"`
	Auth     AuthConfig `yaml:"auth"`
	Schedule Schedule   `yaml:"schedule"`

	// MessagesPath and CommandsPath are resolved relative to bot.yaml.
	MessagesPath string `yaml:"messages_path"`
	CommandsPath string `yaml:"commands_path"`

	// HTTPPort serves the health and status endpoints.
	HTTPPort int `yaml:"http_port"`

	// Loaded from MessagesPath and CommandsPath during Initialize.
	Messages Messages                 `yaml:"-"`
	Commands map[string]CommandConfig `yaml:"-"`
}

// ChatConfig configures the chat platform adapter. Secrets are resolved
// through env var indirection so tokens never live in YAML.
type ChatConfig struct {
	TokenEnv string `yaml:"token_env"`
	Username string `yaml:"username"`
	IconURL  string `yaml:"icon_url"`
	// ReportingChannel receives escalation reports. Optional; when empty
	// the report post is skipped.
	ReportingChannel string `yaml:"reporting_channel"`

	Token string `yaml:"-"`
}

// AuthConfig configures the 2FA adapter.
type AuthConfig struct {
	Host              string `yaml:"host"`
	IntegrationKeyEnv string `yaml:"ikey_env"`
	SecretKeyEnv      string `yaml:"skey_env"`

	IntegrationKey string `yaml:"-"`
	SecretKey      string `yaml:"-"`
}

// Schedule holds the timing knobs of the coordinator.
type Schedule struct {
	// Timezone is the IANA zone business hours are computed in.
	Timezone string `yaml:"timezone"`
	// EscalationTime bounds how long a user may sit on an alert.
	EscalationTime Duration `yaml:"escalation_time"`
	// BackoffTime is the auto-ignore window after a confirmed alert.
	BackoffTime Duration `yaml:"backoff_time"`
	// TaskPollInterval is the cadence of new-task polling.
	TaskPollInterval Duration `yaml:"task_poll_interval"`
}

func defaultConfig() Config {
	return Config{
		Chat: ChatConfig{
			TokenEnv: "SLACK_TOKEN",
			Username: "triagebot",
		},
		Auth: AuthConfig{
			IntegrationKeyEnv: "DUO_IKEY",
			SecretKeyEnv:      "DUO_SKEY",
		},
		Schedule: Schedule{
			Timezone:         "America/Los_Angeles",
			EscalationTime:   Duration(2 * time.Hour),
			BackoffTime:      Duration(21 * time.Hour),
			TaskPollInterval: Duration(time.Minute),
		},
		MessagesPath: "messages.yaml",
		CommandsPath: "commands.yaml",
		HTTPPort:     8080,
	}
}

// Initialize loads bot.yaml plus the message and command files it names,
// applies defaults, resolves secrets from the environment, and validates.
// Any failure here is fatal at startup.
func Initialize(path string) (*Config, error) {
	log := slog.With("config", path)
	log.Info("Initializing configuration")

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(path, ErrConfigNotFound)
		}
		return nil, NewLoadError(path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}

	defaults := defaultConfig()
	if err := mergo.Merge(&cfg, defaults); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("merging defaults: %w", err))
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	cfg.Messages, err = LoadMessages(resolvePath(dir, cfg.MessagesPath))
	if err != nil {
		return nil, err
	}
	cfg.Commands, err = LoadCommands(resolvePath(dir, cfg.CommandsPath))
	if err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	log.Info("Configuration initialized",
		"messages", len(cfg.Messages),
		"commands", len(cfg.Commands),
		"timezone", cfg.Schedule.Timezone)
	return &cfg, nil
}

func (c *Config) resolveSecrets() error {
	c.Chat.Token = os.Getenv(c.Chat.TokenEnv)
	c.Auth.IntegrationKey = os.Getenv(c.Auth.IntegrationKeyEnv)
	c.Auth.SecretKey = os.Getenv(c.Auth.SecretKeyEnv)
	return nil
}

func (c *Config) validate() error {
	if c.Chat.Token == "" {
		return fmt.Errorf("%w: chat token (env %s)", ErrMissingRequiredField, c.Chat.TokenEnv)
	}
	if c.Schedule.EscalationTime == 0 {
		return fmt.Errorf("%w: schedule.escalation_time", ErrMissingRequiredField)
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("%w: schedule.timezone %q: %v", ErrInvalidValue, c.Schedule.Timezone, err)
	}
	return nil
}

// Location returns the configured business-hours timezone. validate has
// already established that it parses.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func resolvePath(dir, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
