package config

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	// Operator is the ID of the user allowed to drive campaigns
	// (a Slack user ID or a Telegram chat ID, depending on the driver).
	Operator string `json:"operator"`

	Roster    RosterConfig    `json:"roster"`
	Transport TransportConfig `json:"transport"`
	Campaign  CampaignConfig  `json:"campaign"`
	Server    ServerConfig    `json:"server"`
	Logging   LoggingConfig   `json:"logging"`

	// Storage is the optional analytics store. Nil means disabled.
	Storage   *StorageConfig   `json:"storage,omitempty"`
	Analytics *AnalyticsConfig `json:"analytics,omitempty"`
}

type RosterConfig struct {
	Path string `json:"path"`
}

type TransportConfig struct {
	// Driver selects the delivery backend: "slack" or "telegram".
	Driver        string `json:"driver"`
	SlackToken    string `json:"slack_token,omitempty"`
	TelegramToken string `json:"telegram_token,omitempty"`

	// NotifyTarget is the address operator notifications go to
	// (confirmation and completion messages). Empty disables them.
	NotifyTarget string `json:"notify_target,omitempty"`
}

// CampaignConfig controls defaults for campaign runs.
//
// All durations are Go duration strings (e.g. "500ms", "1s").
type CampaignConfig struct {
	DefaultTemplate string `json:"default_template,omitempty"`

	// Pace is the minimum interval between consecutive sends. Default "1s".
	Pace string `json:"pace,omitempty"`

	// Timezone is an IANA name used to display and parse schedule times.
	// Default: the host's local zone.
	Timezone string `json:"timezone,omitempty"`
}

type ServerConfig struct {
	Addr string `json:"addr"`

	// SlackSigningSecret verifies slash-command requests. Empty disables
	// verification (local development only).
	SlackSigningSecret string `json:"slack_signing_secret,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileTarget `json:"file"`
}

type FileTarget struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// StorageConfig controls the optional analytics store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./outreach.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

type AnalyticsConfig struct {
	// PruneSpec is a cron expression for the retention sweep. Default "0 4 * * *".
	PruneSpec string `json:"prune_spec,omitempty"`
	// Retention is a Go duration string; records older than this are pruned.
	Retention string `json:"retention,omitempty"`
}

// Validate checks cross-field constraints that the decoder cannot.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Operator) == "" {
		return fmt.Errorf("operator is required")
	}
	if strings.TrimSpace(c.Roster.Path) == "" {
		return fmt.Errorf("roster.path is required")
	}
	switch strings.ToLower(strings.TrimSpace(c.Transport.Driver)) {
	case "slack":
		if strings.TrimSpace(c.Transport.SlackToken) == "" {
			return fmt.Errorf("transport.slack_token is required for the slack driver")
		}
	case "telegram":
		if strings.TrimSpace(c.Transport.TelegramToken) == "" {
			return fmt.Errorf("transport.telegram_token is required for the telegram driver")
		}
	default:
		return fmt.Errorf("transport.driver must be \"slack\" or \"telegram\"")
	}
	if _, err := ParseDurationField("campaign.pace", c.Campaign.Pace); err != nil {
		return err
	}
	if tz := strings.TrimSpace(c.Campaign.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("campaign.timezone: %w", err)
		}
	}
	if c.Storage != nil {
		if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	if c.Analytics != nil {
		if _, err := ParseDurationField("analytics.retention", c.Analytics.Retention); err != nil {
			return err
		}
	}
	return nil
}

// PaceDuration resolves campaign.pace with its default.
func (c *Config) PaceDuration() (time.Duration, error) {
	return ParseDurationOrDefault("campaign.pace", c.Campaign.Pace, time.Second)
}

// Location resolves campaign.timezone, falling back to the host zone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Campaign.Timezone)
	if tz == "" {
		return time.Local, nil
	}
	return time.LoadLocation(tz)
}
