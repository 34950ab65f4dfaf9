package config

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/timebot/core/config"
	coredatabase "github.com/m3rciful/timebot/core/database"
)

// DataAPIConfig points the bot at the data-access service.
type DataAPIConfig struct {
	BaseURL        string `yaml:"base_url" envconfig:"DATA_API_URL"`
	TimeoutSeconds int    `yaml:"timeout_seconds" envconfig:"DATA_API_TIMEOUT_SECONDS"`
	RetryAttempts  int    `yaml:"retry_attempts" envconfig:"DATA_API_RETRY_ATTEMPTS"`
}

// Timeout returns the per-request timeout.
func (c DataAPIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DialogConfig holds the activity-recording business rules.
type DialogConfig struct {
	IdleTimeoutMinutes   int    `yaml:"idle_timeout_minutes" envconfig:"DIALOG_IDLE_TIMEOUT_MINUTES"`
	MaxAgeHours          int    `yaml:"max_age_hours" envconfig:"DIALOG_MAX_AGE_HOURS"`
	MinDescriptionLength int    `yaml:"min_description_length" envconfig:"DIALOG_MIN_DESCRIPTION_LENGTH"`
	DefaultTimezone      string `yaml:"default_timezone" envconfig:"DIALOG_DEFAULT_TIMEZONE"`
	BusyWaitMS           int    `yaml:"busy_wait_ms" envconfig:"DIALOG_BUSY_WAIT_MS"`
}

// IdleTimeout returns the inactivity window of a dialog.
func (c DialogConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

// MaxAge returns how far back a start or end time may lie.
func (c DialogConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeHours) * time.Hour
}

// BusyWait returns how long a call waits for a concurrent transition.
func (c DialogConfig) BusyWait() time.Duration {
	return time.Duration(c.BusyWaitMS) * time.Millisecond
}

// ServerConfig configures the data-access HTTP listener.
type ServerConfig struct {
	Listen              string `yaml:"listen" envconfig:"API_LISTEN"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds" envconfig:"API_READ_TIMEOUT_SECONDS"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds" envconfig:"API_WRITE_TIMEOUT_SECONDS"`
	// DefaultCategories are seeded for every newly registered user.
	DefaultCategories []string `yaml:"default_categories"`
}

const (
	defaultDataAPITimeout       = 10
	defaultDataAPIRetries       = 2
	defaultIdleTimeoutMinutes   = 15
	defaultMaxAgeHours          = 24
	defaultMinDescriptionLength = 3
	defaultTimezone             = "Europe/Moscow"
	defaultBusyWaitMS           = 3000
	defaultListen               = ":8080"
	defaultServerTimeout        = 15
	defaultDBMaxConnections     = 10
)

// DefaultCategories are the categories new users start with, as
// "emoji name" pairs.
var DefaultCategories = []string{"💼 Работа", "📚 Учёба", "🏃 Спорт", "🏠 Дом", "🎮 Отдых"}

// AppConfig aggregates the core configuration and the application sections.
type AppConfig struct {
	coreconfig.Config `yaml:",inline"`

	Database coredatabase.Config `yaml:"database"`
	DataAPI  DataAPIConfig       `yaml:"data_api"`
	Dialog   DialogConfig        `yaml:"dialog"`
	Server   ServerConfig        `yaml:"server"`
}

// CoreConfig exposes the embedded core configuration.
func (c *AppConfig) CoreConfig() *coreconfig.Config {
	if c == nil {
		return nil
	}
	return &c.Config
}

// Load reads the bot configuration. The Telegram section and the data API
// base URL are required.
func Load(path string) (*AppConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return nil, err
	}
	if err := cfg.normalizeDataAPI(); err != nil {
		return nil, err
	}
	if err := cfg.normalizeDialog(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadAPI reads the data-access service configuration. Telegram settings are
// ignored.
func LoadAPI(path string) (*AppConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.normalizeDatabase(); err != nil {
		return nil, err
	}
	cfg.normalizeServer()
	return cfg, nil
}

func read(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := coreconfig.Read(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *AppConfig) normalizeDataAPI() error {
	c.DataAPI.BaseURL = strings.TrimRight(strings.TrimSpace(c.DataAPI.BaseURL), "/")
	if c.DataAPI.BaseURL == "" {
		return fmt.Errorf("data_api.base_url is required")
	}
	if !strings.HasPrefix(c.DataAPI.BaseURL, "http://") && !strings.HasPrefix(c.DataAPI.BaseURL, "https://") {
		return fmt.Errorf("data_api.base_url must be an http(s) URL, got %q", c.DataAPI.BaseURL)
	}
	if c.DataAPI.TimeoutSeconds <= 0 {
		c.DataAPI.TimeoutSeconds = defaultDataAPITimeout
	}
	if c.DataAPI.RetryAttempts == 0 {
		c.DataAPI.RetryAttempts = defaultDataAPIRetries
	}
	return nil
}

func (c *AppConfig) normalizeDialog() error {
	d := &c.Dialog
	if d.IdleTimeoutMinutes == 0 {
		d.IdleTimeoutMinutes = defaultIdleTimeoutMinutes
	}
	if d.IdleTimeoutMinutes < 0 {
		return fmt.Errorf("dialog.idle_timeout_minutes must be > 0")
	}
	if d.MaxAgeHours == 0 {
		d.MaxAgeHours = defaultMaxAgeHours
	}
	if d.MaxAgeHours < 0 {
		return fmt.Errorf("dialog.max_age_hours must be > 0")
	}
	if d.MinDescriptionLength <= 0 {
		d.MinDescriptionLength = defaultMinDescriptionLength
	}
	if d.BusyWaitMS <= 0 {
		d.BusyWaitMS = defaultBusyWaitMS
	}
	d.DefaultTimezone = strings.TrimSpace(d.DefaultTimezone)
	if d.DefaultTimezone == "" {
		d.DefaultTimezone = defaultTimezone
	}
	if _, err := time.LoadLocation(d.DefaultTimezone); err != nil {
		return fmt.Errorf("dialog.default_timezone %q: %w", d.DefaultTimezone, err)
	}
	return nil
}

func (c *AppConfig) normalizeDatabase() error {
	db := &c.Database
	if strings.TrimSpace(db.Host) == "" {
		return fmt.Errorf("database.host is required")
	}
	if strings.TrimSpace(db.Name) == "" {
		return fmt.Errorf("database.name is required")
	}
	if db.Port == "" {
		db.Port = "5432"
	}
	if db.SSLMode == "" {
		db.SSLMode = "disable"
	}
	if db.MaxConnections <= 0 {
		db.MaxConnections = defaultDBMaxConnections
	}
	if db.MigrationsDir == "" {
		db.MigrationsDir = coredatabase.DefaultMigrationsDir
	}
	return nil
}

func (c *AppConfig) normalizeServer() {
	s := &c.Server
	s.Listen = strings.TrimSpace(s.Listen)
	if s.Listen == "" {
		s.Listen = defaultListen
	}
	if s.ReadTimeoutSeconds <= 0 {
		s.ReadTimeoutSeconds = defaultServerTimeout
	}
	if s.WriteTimeoutSeconds <= 0 {
		s.WriteTimeoutSeconds = defaultServerTimeout
	}
	if len(s.DefaultCategories) == 0 {
		s.DefaultCategories = append([]string(nil), DefaultCategories...)
	}
}
