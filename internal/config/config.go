package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Cursor store kinds for updates.cursor_store.
const (
	CursorMemory   = "memory"
	CursorBolt     = "bolt"
	CursorPostgres = "postgres"
)

// Config holds the application's configuration.
type Config struct {
	Telegram struct {
		BotToken           string  `yaml:"bot_token"`
		ChatID             int64   `yaml:"chat_id"`
		APIEndpoint        string  `yaml:"api_endpoint"`
		RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`
		RateLimitBurst     int     `yaml:"rate_limit_burst"`
	} `yaml:"telegram"`
	Notify struct {
		Levels  []int `yaml:"levels"`
		Pokemon []int `yaml:"pokemon"`
	} `yaml:"notify"`
	Locale    string         `yaml:"locale"`
	Timezone  float64        `yaml:"timezone"`
	StaticDir string         `yaml:"static_dir"`
	Stickers  map[int]string `yaml:"stickers"`
	Server    struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Updates struct {
		BaseDelaySeconds       int64  `yaml:"base_delay_seconds"`
		MaxDelaySeconds        int64  `yaml:"max_delay_seconds"`
		LongPollTimeoutSeconds int    `yaml:"long_poll_timeout_seconds"`
		CursorStore            string `yaml:"cursor_store"`
		BoltPath               string `yaml:"bolt_path"`
	} `yaml:"updates"`
	Database struct {
		URL string `yaml:"url"`
	} `yaml:"database"`
	Admin struct {
		Enabled       bool   `yaml:"enabled"`
		Username      string `yaml:"username"`
		PasswordHash  string `yaml:"password_hash"`
		JWTSecret     string `yaml:"jwt_secret"`
		TokenTTLHours int    `yaml:"token_ttl_hours"`
	} `yaml:"admin"`
	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// LoadConfig reads configuration from the specified YAML file.
// ${VAR} references are expanded from the environment before decoding.
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	config := &Config{}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Telegram.RateLimitPerSecond <= 0 {
		c.Telegram.RateLimitPerSecond = 20
	}
	if c.Telegram.RateLimitBurst <= 0 {
		c.Telegram.RateLimitBurst = 1
	}
	if c.Locale == "" {
		c.Locale = "en"
	}
	if c.StaticDir == "" {
		c.StaticDir = "static"
	}
	if c.Server.Port == "" {
		c.Server.Port = ":4000"
	}
	if c.Updates.BaseDelaySeconds <= 0 {
		c.Updates.BaseDelaySeconds = 1
	}
	if c.Updates.MaxDelaySeconds <= 0 {
		c.Updates.MaxDelaySeconds = 60
	}
	if c.Updates.LongPollTimeoutSeconds < 0 {
		c.Updates.LongPollTimeoutSeconds = 0
	}
	if c.Updates.CursorStore == "" {
		c.Updates.CursorStore = CursorMemory
	}
	if c.Updates.CursorStore == CursorBolt && c.Updates.BoltPath == "" {
		c.Updates.BoltPath = "data/cursor.db"
	}
	if c.Admin.TokenTTLHours <= 0 {
		c.Admin.TokenTTLHours = 24
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate reports settings the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Telegram.BotToken == "" {
		errs = append(errs, errors.New("telegram.bot_token is required"))
	}
	if c.Telegram.ChatID == 0 {
		errs = append(errs, errors.New("telegram.chat_id is required"))
	}
	if c.Updates.MaxDelaySeconds < c.Updates.BaseDelaySeconds {
		errs = append(errs, errors.New("updates.max_delay_seconds must not be below base_delay_seconds"))
	}
	switch c.Updates.CursorStore {
	case CursorMemory, CursorBolt:
	case CursorPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres cursor store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown updates.cursor_store %q", c.Updates.CursorStore))
	}
	if c.Admin.Enabled {
		if c.Admin.Username == "" || c.Admin.PasswordHash == "" {
			errs = append(errs, errors.New("admin.username and admin.password_hash are required when admin is enabled"))
		}
		if c.Admin.JWTSecret == "" {
			errs = append(errs, errors.New("admin.jwt_secret is required when admin is enabled"))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// BaseDelay is the reconcile delay after a clean cycle.
func (c *Config) BaseDelay() time.Duration {
	return time.Duration(c.Updates.BaseDelaySeconds) * time.Second
}

// MaxDelay caps the reconcile backoff.
func (c *Config) MaxDelay() time.Duration {
	return time.Duration(c.Updates.MaxDelaySeconds) * time.Second
}

// TokenTTL is the lifetime of admin API tokens.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Admin.TokenTTLHours) * time.Hour
}
