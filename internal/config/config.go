package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config models claimbot.yml.
type Config struct {
	Scheduler struct {
		IntervalSeconds      int    `yaml:"interval_seconds"`
		NearDeadlineLeadTime string `yaml:"near_deadline_lead_time"`
	} `yaml:"scheduler"`
	Messages struct {
		ClaimRequest  string `yaml:"claim_request"`
		Clarification string `yaml:"clarification"`
		HalfTime      string `yaml:"half_time_reminder"`
		NearDeadline  string `yaml:"near_deadline_reminder"`
	} `yaml:"messages"`
	Intents struct {
		Accept  []string `yaml:"accept"`
		Decline []string `yaml:"decline"`
	} `yaml:"intents"`
}

// Interval returns the scheduler polling interval.
func (c *Config) Interval() time.Duration {
	if c.Scheduler.IntervalSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Scheduler.IntervalSeconds) * time.Second
}

// NearDeadlineLead returns how long before the deadline the near-deadline
// reminder fires.
func (c *Config) NearDeadlineLead() time.Duration {
	d, err := time.ParseDuration(c.Scheduler.NearDeadlineLeadTime)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Scheduler.IntervalSeconds < 0 {
		return fmt.Errorf("config.scheduler.interval_seconds must not be negative")
	}
	if c.Scheduler.NearDeadlineLeadTime != "" {
		if _, err := time.ParseDuration(c.Scheduler.NearDeadlineLeadTime); err != nil {
			return fmt.Errorf("config.scheduler.near_deadline_lead_time: %w", err)
		}
	}
	for _, p := range c.Intents.Accept {
		if p == "" {
			return fmt.Errorf("config.intents.accept contains an empty phrase")
		}
	}
	for _, p := range c.Intents.Decline {
		if p == "" {
			return fmt.Errorf("config.intents.decline contains an empty phrase")
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "claimbot.yml")
}

// Load reads and validates config from workspace, falling back to defaults
// when the file does not exist.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GenerateDefault returns the default config YAML for `cb config init`.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `scheduler:
  interval_seconds: 60
  near_deadline_lead_time: 24h

messages:
  claim_request: "Hi %s! The task \"%s\" was assigned to the bot and the owner sheet points at you. Can you take it? Reply yes or no."
  clarification: "Sorry, I couldn't tell whether that was a yes or a no for \"%s\". Could you reply with a simple yes or no?"
  half_time_reminder: "Friendly nudge: the task \"%s\" is still waiting for an owner and half the time to its deadline is gone."
  near_deadline_reminder: "Heads up: the task \"%s\" is close to its deadline and still has no confirmed owner."

intents:
  accept: []
  decline: []
`
