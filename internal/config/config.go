package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"fintrack/internal/log"
	"fintrack/internal/period"
)

type Config struct {
	// HTTP Server
	Port string `toml:"port"`

	// Database
	SQLiteDBPath string `toml:"sqlite_db_path"`

	// AMQP
	AMQPURL          string `toml:"amqp_url"`
	AMQPExchange     string `toml:"amqp_exchange"`
	AMQPNotifyQueue  string `toml:"amqp_notify_queue"`
	AMQPChangesQueue string `toml:"amqp_changes_queue"`

	// Calendar defaults for users without settings
	FinancialStartDay int    `toml:"financial_start_day"`
	PeriodRange       int    `toml:"period_range"`
	Locale            string `toml:"locale"`

	// Projection cache
	CacheSize int           `toml:"cache_size"`
	CacheTTL  time.Duration `toml:"-"`

	// Reminders
	NotifyLeadDays     int           `toml:"notify_lead_days"`
	NotifyPollInterval time.Duration `toml:"-"`

	// Google Sheets export
	GoogleSpreadsheetID string `toml:"google_spreadsheet_id"`
	GoogleExportSheet   string `toml:"google_export_sheet"`

	// Request limits
	WriteRatePerMinute int `toml:"write_rate_per_minute"`
	MaxPeriodDays      int `toml:"max_period_days"`

	LogLevel string `toml:"log_level"`
}

// fileOverlay holds the duration keys of a TOML config file, which are
// written as Go duration strings ("5m").
type fileOverlay struct {
	CacheTTL           string `toml:"cache_ttl"`
	NotifyPollInterval string `toml:"notify_poll_interval"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Port:               "8081",
		SQLiteDBPath:       "./data/fintrack.db",
		AMQPExchange:       "fintrack",
		AMQPNotifyQueue:    "notifications",
		AMQPChangesQueue:   "document_changes",
		FinancialStartDay:  1,
		PeriodRange:        period.DefaultRange,
		Locale:             period.DefaultLocale,
		CacheSize:          256,
		CacheTTL:           5 * time.Minute,
		NotifyLeadDays:     3,
		NotifyPollInterval: time.Minute,
		GoogleExportSheet:  "Transactions",
		WriteRatePerMinute: 120,
		MaxPeriodDays:      5 * 366,
		LogLevel:           "info",
	}
}

// Load builds the configuration from defaults, the TOML file named by
// CONFIG_FILE when set, and finally environment variables.
func Load() (*Config, error) {
	cfg := Defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	var overlay fileOverlay
	if err := toml.Unmarshal(data, &overlay); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if overlay.CacheTTL != "" {
		d, err := time.ParseDuration(overlay.CacheTTL)
		if err != nil {
			return fmt.Errorf("config file %s: cache_ttl: %w", path, err)
		}
		c.CacheTTL = d
	}
	if overlay.NotifyPollInterval != "" {
		d, err := time.ParseDuration(overlay.NotifyPollInterval)
		if err != nil {
			return fmt.Errorf("config file %s: notify_poll_interval: %w", path, err)
		}
		c.NotifyPollInterval = d
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Port = getEnv("PORT", c.Port)
	c.SQLiteDBPath = getEnv("SQLITE_DB_PATH", c.SQLiteDBPath)

	c.AMQPURL = getEnv("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = getEnv("AMQP_EXCHANGE", c.AMQPExchange)
	c.AMQPNotifyQueue = getEnv("AMQP_NOTIFY_QUEUE", c.AMQPNotifyQueue)
	c.AMQPChangesQueue = getEnv("AMQP_CHANGES_QUEUE", c.AMQPChangesQueue)

	c.FinancialStartDay = getEnvInt("FINANCIAL_START_DAY", c.FinancialStartDay)
	c.PeriodRange = getEnvInt("PERIOD_RANGE", c.PeriodRange)
	c.Locale = getEnv("LOCALE", c.Locale)

	c.CacheSize = getEnvInt("CACHE_SIZE", c.CacheSize)
	c.CacheTTL = getEnvDuration("CACHE_TTL", c.CacheTTL)

	c.NotifyLeadDays = getEnvInt("NOTIFY_LEAD_DAYS", c.NotifyLeadDays)
	c.NotifyPollInterval = getEnvDuration("NOTIFY_POLL_INTERVAL", c.NotifyPollInterval)

	c.GoogleSpreadsheetID = getEnv("GOOGLE_SPREADSHEET_ID", c.GoogleSpreadsheetID)
	c.GoogleExportSheet = getEnv("GOOGLE_EXPORT_SHEET", c.GoogleExportSheet)

	c.WriteRatePerMinute = getEnvInt("WRITE_RATE_PER_MINUTE", c.WriteRatePerMinute)
	c.MaxPeriodDays = getEnvInt("MAX_PERIOD_DAYS", c.MaxPeriodDays)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
}

// LoggerConfig returns the logging configuration for component.
func (c *Config) LoggerConfig(component string) log.Config {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(c.LogLevel)
	lc.Component = component
	return lc
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	// Validate port
	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	// AMQP is optional; when configured it needs an exchange and queues
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPNotifyQueue == "" {
			errors = append(errors, "AMQP notify queue name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPChangesQueue == "" {
			errors = append(errors, "AMQP changes queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.FinancialStartDay < 1 || c.FinancialStartDay > 31 {
		errors = append(errors, fmt.Sprintf("invalid financial start day %d: must be between 1 and 31", c.FinancialStartDay))
	}
	if c.PeriodRange < 0 || c.PeriodRange > 24 {
		errors = append(errors, fmt.Sprintf("invalid period range %d: must be between 0 and 24", c.PeriodRange))
	}
	if c.Locale == "" {
		errors = append(errors, "locale cannot be empty")
	}

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be positive", c.CacheTTL))
	}

	if c.NotifyLeadDays < 0 || c.NotifyLeadDays > 31 {
		errors = append(errors, fmt.Sprintf("invalid notify lead days %d: must be between 0 and 31", c.NotifyLeadDays))
	}
	if c.NotifyPollInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid notify poll interval %v: must be at least 1 second", c.NotifyPollInterval))
	} else if c.NotifyPollInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid notify poll interval %v: must be at most 24 hours", c.NotifyPollInterval))
	}

	if c.GoogleSpreadsheetID != "" && c.GoogleExportSheet == "" {
		errors = append(errors, "Google export sheet name is required when a spreadsheet ID is set")
	}

	if c.WriteRatePerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid write rate %d: must be at least 1 per minute", c.WriteRatePerMinute))
	}
	if c.MaxPeriodDays < 31 {
		errors = append(errors, fmt.Sprintf("invalid max period days %d: must be at least 31", c.MaxPeriodDays))
	}

	// Return combined errors
	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
