// Package config loads runtime configuration from the environment, an
// optional .env file, and an optional YAML file. Environment variables always
// win over the YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/heraldhq/herald/internal/scheduler"
)

type Config struct {
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
	Port        int    `yaml:"port" env:"PORT"`
	PostgresURL string `yaml:"postgres_url" env:"POSTGRES_URL"`

	EmailServiceURL        string `yaml:"email_service_url" env:"EMAIL_SERVICE_URL"`
	EmailServiceTimeoutMs  int    `yaml:"email_service_timeout" env:"EMAIL_SERVICE_TIMEOUT"`
	EmailServiceMaxRetries int    `yaml:"email_service_max_retries" env:"EMAIL_SERVICE_MAX_RETRIES"`
	EmailServiceRetryDelay int    `yaml:"email_service_retry_delay" env:"EMAIL_SERVICE_RETRY_DELAY"`

	CircuitBreakerThreshold uint32 `yaml:"circuit_breaker_threshold" env:"CIRCUIT_BREAKER_THRESHOLD"`
	CircuitBreakerResetMs   int    `yaml:"circuit_breaker_reset_ms" env:"CIRCUIT_BREAKER_RESET_MS"`

	BirthdayCheckCron     string `yaml:"birthday_check_cron" env:"BIRTHDAY_CHECK_CRON"`
	BirthdayMessageHour   int    `yaml:"birthday_message_hour" env:"BIRTHDAY_MESSAGE_HOUR"`
	BirthdayMessageMinute int    `yaml:"birthday_message_minute" env:"BIRTHDAY_MESSAGE_MINUTE"`

	MessageProcessCron  string `yaml:"message_process_cron" env:"MESSAGE_PROCESS_CRON"`
	MessageMaxRetries   int    `yaml:"message_max_retries" env:"MESSAGE_MAX_RETRIES"`
	MessageBatchLimit   int    `yaml:"message_batch_limit" env:"MESSAGE_BATCH_LIMIT"`
	MessageLeaseSeconds int    `yaml:"message_lease_seconds" env:"MESSAGE_LEASE_SECONDS"`
}

type ParseOptions struct {
	// YAMLPath is an optional config file; missing file is not an error
	// unless the path was set explicitly.
	YAMLPath string
	// DotEnvPath defaults to ".env" in the working directory.
	DotEnvPath string
}

func Parse(opts ParseOptions) (*Config, error) {
	cfg := &Config{}
	cfg.initDefaults()

	dotEnvPath := opts.DotEnvPath
	if dotEnvPath == "" {
		dotEnvPath = ".env"
	}
	if err := godotenv.Load(dotEnvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		if opts.DotEnvPath != "" {
			return nil, fmt.Errorf("loading env file %s: %w", dotEnvPath, err)
		}
	}

	if opts.YAMLPath != "" {
		data, err := os.ReadFile(opts.YAMLPath)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", opts.YAMLPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", opts.YAMLPath, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) initDefaults() {
	c.LogLevel = "info"
	c.Port = 8080
	c.EmailServiceTimeoutMs = 10000
	c.EmailServiceMaxRetries = 3
	c.EmailServiceRetryDelay = 2000
	c.CircuitBreakerThreshold = 5
	c.CircuitBreakerResetMs = 60000
	c.BirthdayCheckCron = "*/5 * * * *"
	c.BirthdayMessageHour = 9
	c.BirthdayMessageMinute = 0
	c.MessageProcessCron = "* * * * *"
	c.MessageMaxRetries = 3
	c.MessageBatchLimit = 100
	c.MessageLeaseSeconds = 300
}

func (c *Config) Validate() error {
	if c.PostgresURL == "" {
		return errors.New("POSTGRES_URL is required")
	}
	if c.EmailServiceURL == "" {
		return errors.New("EMAIL_SERVICE_URL is required")
	}
	if c.BirthdayMessageHour < 0 || c.BirthdayMessageHour > 23 {
		return fmt.Errorf("BIRTHDAY_MESSAGE_HOUR out of range: %d", c.BirthdayMessageHour)
	}
	if c.BirthdayMessageMinute < 0 || c.BirthdayMessageMinute > 59 {
		return fmt.Errorf("BIRTHDAY_MESSAGE_MINUTE out of range: %d", c.BirthdayMessageMinute)
	}
	if c.EmailServiceMaxRetries < 0 {
		return fmt.Errorf("EMAIL_SERVICE_MAX_RETRIES must be non-negative: %d", c.EmailServiceMaxRetries)
	}
	if c.MessageMaxRetries < 0 {
		return fmt.Errorf("MESSAGE_MAX_RETRIES must be non-negative: %d", c.MessageMaxRetries)
	}
	if c.MessageBatchLimit < 1 {
		return fmt.Errorf("MESSAGE_BATCH_LIMIT must be positive: %d", c.MessageBatchLimit)
	}
	if c.MessageLeaseSeconds < 1 {
		return fmt.Errorf("MESSAGE_LEASE_SECONDS must be positive: %d", c.MessageLeaseSeconds)
	}
	if _, err := scheduler.ParseInterval(c.BirthdayCheckCron); err != nil {
		return fmt.Errorf("BIRTHDAY_CHECK_CRON: %w", err)
	}
	if _, err := scheduler.ParseInterval(c.MessageProcessCron); err != nil {
		return fmt.Errorf("MESSAGE_PROCESS_CRON: %w", err)
	}
	return nil
}

func (c *Config) EmailTimeout() time.Duration {
	return time.Duration(c.EmailServiceTimeoutMs) * time.Millisecond
}

func (c *Config) EmailRetryDelay() time.Duration {
	return time.Duration(c.EmailServiceRetryDelay) * time.Millisecond
}

func (c *Config) BreakerReset() time.Duration {
	return time.Duration(c.CircuitBreakerResetMs) * time.Millisecond
}

func (c *Config) LeaseDuration() time.Duration {
	return time.Duration(c.MessageLeaseSeconds) * time.Second
}

// MaterializeInterval and ProcessInterval are pre-validated in Validate, so
// failures here indicate the config was mutated after Parse.
func (c *Config) MaterializeInterval() (time.Duration, error) {
	return scheduler.ParseInterval(c.BirthdayCheckCron)
}

func (c *Config) ProcessInterval() (time.Duration, error) {
	return scheduler.ParseInterval(c.MessageProcessCron)
}
