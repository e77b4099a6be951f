// Package config loads and validates configuration at startup.
// Fail-fast: if a required setting is missing, the process exits with an error.
//
// Settings come from an optional YAML file (LIFECYCLE_CONFIG), then from the
// environment, which wins. A .env file in the working directory is loaded
// into the environment first.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/naoum-youssef/talentbridgeV2-sub001/internal/lifecycle"
)

const configPathEnv = "LIFECYCLE_CONFIG"

// Config holds all runtime configuration for the lifecycle service.
type Config struct {
	Env         string `yaml:"env"`
	LogLevel    string `yaml:"logLevel"`
	HTTPPort    string `yaml:"httpPort"`
	GRPCPort    string `yaml:"grpcPort"`
	Store       string `yaml:"store"`
	DatabaseURL string `yaml:"databaseUrl"`
	DBMaxConns  int32  `yaml:"dbMaxConns"`
	RedisURL    string `yaml:"redisUrl"`

	Notifications NotificationConfig  `yaml:"notifications"`
	Schedule      ScheduleConfig      `yaml:"schedule"`
	Documents     DocumentConfig      `yaml:"documents"`
	Policy        map[string][]string `yaml:"policy"`
}

// NotificationConfig tunes the dispatch pipeline.
type NotificationConfig struct {
	TTL             time.Duration     `yaml:"ttl"`
	QueueVisibility time.Duration     `yaml:"queueVisibility"`
	Workers         int               `yaml:"workers"`
	Webhooks        map[string]string `yaml:"webhooks"`
	WebhookTimeout  time.Duration     `yaml:"webhookTimeout"`
	RatePerSecond   float64           `yaml:"ratePerSecond"`
	Burst           int               `yaml:"burst"`

	// BroadcastTimeout bounds the live board publish after a transition.
	BroadcastTimeout time.Duration `yaml:"broadcastTimeout"`
}

// ScheduleConfig holds the cron specs of the periodic triggers.
type ScheduleConfig struct {
	Relay          string        `yaml:"relay"`
	Reminders      string        `yaml:"reminders"`
	ReminderWindow time.Duration `yaml:"reminderWindow"`
	Purge          string        `yaml:"purge"`
}

// DocumentConfig points at the asset bucket used to verify uploads.
type DocumentConfig struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// Load reads the optional config file and environment variables and returns a
// validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaults()
	if path := os.Getenv(configPathEnv); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Env:      "development",
		LogLevel: "info",
		HTTPPort: "8083",
		GRPCPort: "9093",
		Store:    "postgres",
		Notifications: NotificationConfig{
			TTL:              30 * 24 * time.Hour,
			QueueVisibility:  30 * time.Second,
			Workers:          2,
			WebhookTimeout:   5 * time.Second,
			RatePerSecond:    20,
			Burst:            5,
			BroadcastTimeout: 2 * time.Second,
		},
		Schedule: ScheduleConfig{
			Relay:          "@every 2s",
			Reminders:      "*/5 * * * *",
			ReminderWindow: 24 * time.Hour,
			Purge:          "0 3 * * *",
		},
	}
}

func (c *Config) applyEnv() error {
	setString(&c.Env, "APP_ENV")
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.HTTPPort, "LIFECYCLE_PORT")
	setString(&c.GRPCPort, "LIFECYCLE_GRPC_PORT")
	setString(&c.Store, "LIFECYCLE_STORE")
	setString(&c.DatabaseURL, "DATABASE_URL")
	setString(&c.RedisURL, "REDIS_URL")
	setString(&c.Documents.Bucket, "DOCUMENTS_BUCKET")
	setString(&c.Documents.Region, "AWS_REGION")
	setString(&c.Documents.Endpoint, "S3_ENDPOINT")
	setString(&c.Schedule.Relay, "RELAY_SCHEDULE")
	setString(&c.Schedule.Reminders, "REMINDER_SCHEDULE")
	setString(&c.Schedule.Purge, "PURGE_SCHEDULE")

	for ch, env := range map[string]string{
		"email": "EMAIL_WEBHOOK_URL",
		"push":  "PUSH_WEBHOOK_URL",
		"sms":   "SMS_WEBHOOK_URL",
	} {
		if v := os.Getenv(env); v != "" {
			if c.Notifications.Webhooks == nil {
				c.Notifications.Webhooks = map[string]string{}
			}
			c.Notifications.Webhooks[ch] = v
		}
	}

	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return fmt.Errorf("DB_MAX_CONNS: %w", err)
		}
		c.DBMaxConns = int32(n)
	}
	if v := os.Getenv("NOTIFICATION_TTL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("NOTIFICATION_TTL: %w", err)
		}
		c.Notifications.TTL = d
	}
	if v := os.Getenv("NOTIFY_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("NOTIFY_WORKERS: %w", err)
		}
		c.Notifications.Workers = n
	}
	return nil
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func (c *Config) validate() error {
	switch c.Store {
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store %q (want postgres or memory)", c.Store)
	}
	if c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Notifications.TTL <= 0 {
		return fmt.Errorf("notification ttl must be positive")
	}
	if c.Notifications.Workers < 1 {
		return fmt.Errorf("at least one notification worker is required")
	}
	if c.Notifications.RatePerSecond <= 0 {
		return fmt.Errorf("notification ratePerSecond must be positive, got %v", c.Notifications.RatePerSecond)
	}
	if c.Notifications.Burst < 1 {
		return fmt.Errorf("notification burst must be at least 1, got %d", c.Notifications.Burst)
	}
	if c.Notifications.BroadcastTimeout <= 0 {
		return fmt.Errorf("notification broadcastTimeout must be positive")
	}
	for ch := range c.Notifications.Webhooks {
		switch ch {
		case "email", "push", "sms":
		default:
			return fmt.Errorf("unknown webhook channel %q", ch)
		}
	}
	if _, err := c.TransitionPolicy(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	return nil
}

// TransitionPolicy returns the configured transition policy, or the default
// one when the file does not override it.
func (c *Config) TransitionPolicy() (lifecycle.Policy, error) {
	if len(c.Policy) == 0 {
		return lifecycle.DefaultPolicy(), nil
	}
	edges := make(map[lifecycle.Status][]lifecycle.Status, len(c.Policy))
	for from, targets := range c.Policy {
		for _, to := range targets {
			edges[lifecycle.Status(from)] = append(edges[lifecycle.Status(from)], lifecycle.Status(to))
		}
		if len(targets) == 0 {
			edges[lifecycle.Status(from)] = nil
		}
	}
	return lifecycle.NewPolicy(edges)
}
