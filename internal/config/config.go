// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	_ "time/tzdata" // site.timezone must resolve in minimal containers

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. TRADEFAIR_DB_DSN.
const EnvPrefix = "TRADEFAIR"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Site     SiteConfig     `mapstructure:"site"`
	Scraping ScrapingConfig `mapstructure:"scraping"`
	Filter   FilterConfig   `mapstructure:"filter"`
	Mapping  MappingConfig  `mapstructure:"mapping"`
	Parsers  ParsersConfig  `mapstructure:"parsers"`
	DB       DBConfig       `mapstructure:"db"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Schedule ScheduleConfig `mapstructure:"schedule"`
	Server   ServerConfig   `mapstructure:"server"`
}

// SiteConfig points the crawler at the trade-fair website.
type SiteConfig struct {
	BaseURL         string `mapstructure:"base_url"`
	EventsSearchURL string `mapstructure:"events_search_url"`
	DataSourceName  string `mapstructure:"data_source_name"`
	// Timezone defines "today" for the future-event filter and date fallbacks.
	Timezone string `mapstructure:"timezone"`
}

// ScrapingConfig controls fetch retries and politeness delays.
type ScrapingConfig struct {
	MaxRetries           int           `mapstructure:"max_retries"`
	Timeout              time.Duration `mapstructure:"timeout"`
	RetryDelay           time.Duration `mapstructure:"retry_delay"`
	DelayBetweenRequests time.Duration `mapstructure:"delay_between_requests"`
	PageDelay            time.Duration `mapstructure:"page_delay"`
	MaxPages             int           `mapstructure:"max_pages"`
	MaxRequestsPerSecond float64       `mapstructure:"max_requests_per_second"`
	UserAgent            string        `mapstructure:"user_agent"`
	FetchDetails         bool          `mapstructure:"fetch_details"`
}

// FilterConfig narrows which events a run touches.
type FilterConfig struct {
	FutureOnly bool     `mapstructure:"future_only"`
	EventSlugs []string `mapstructure:"event_slugs"`
}

// MappingConfig holds dimension ids used when no lookup/create path applies.
type MappingConfig struct {
	DefaultCountryID    int64 `mapstructure:"default_country_id"`
	DefaultIndustryID   int64 `mapstructure:"default_industry_id"`
	DefaultDataSourceID int64 `mapstructure:"default_data_source_id"`
}

// ParserRoute binds a domain substring to a registered detail parser.
type ParserRoute struct {
	Domain string `mapstructure:"domain"`
	Parser string `mapstructure:"parser"`
}

// ParsersConfig selects detail-page extractors by domain.
type ParsersConfig struct {
	Default string        `mapstructure:"default"`
	Mapping []ParserRoute `mapstructure:"mapping"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// LoggingConfig toggles zap development features and the log file.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	File        string `mapstructure:"file"`
}

// MetricsConfig configures batch metric delivery.
type MetricsConfig struct {
	PushgatewayURL string `mapstructure:"pushgateway_url"`
	JobName        string `mapstructure:"job_name"`
}

// ScheduleConfig drives the long-running schedule command.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// ServerConfig controls the health/metrics listener used by the scheduler.
type ServerConfig struct {
	Port   int    `mapstructure:"port"`
	APIKey string `mapstructure:"api_key"`
}

// Load builds a Config from .env files, disk and environment.
func Load(path string) (Config, error) {
	if err := loadEnvFiles(); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if len(cfg.Parsers.Mapping) == 0 {
		cfg.Parsers.Mapping = []ParserRoute{{Domain: "targikielce.pl", Parser: "targi_kielce"}}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadEnvFiles loads ENV_FILE when set, otherwise .env.local and .env.
// Missing files are not an error.
func loadEnvFiles() error {
	if envFile := os.Getenv("ENV_FILE"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file %s: %w", envFile, err)
		}
		return nil
	}
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("site.base_url", "https://www.targikielce.pl")
	v.SetDefault("site.events_search_url", "https://www.targikielce.pl/api/events/search?pageIndex=1&count=500")
	v.SetDefault("site.data_source_name", "targikielce.pl")
	v.SetDefault("site.timezone", "Europe/Warsaw")
	v.SetDefault("scraping.max_retries", 3)
	v.SetDefault("scraping.timeout", "30s")
	v.SetDefault("scraping.retry_delay", "1s")
	v.SetDefault("scraping.delay_between_requests", "1s")
	v.SetDefault("scraping.page_delay", "300ms")
	v.SetDefault("scraping.max_pages", 20)
	v.SetDefault("scraping.max_requests_per_second", 0)
	v.SetDefault("scraping.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) "+
			"Chrome/91.0.4472.124 Safari/537.36")
	v.SetDefault("scraping.fetch_details", false)
	v.SetDefault("filter.future_only", true)
	v.SetDefault("filter.event_slugs", []string{})
	v.SetDefault("mapping.default_country_id", 1)
	v.SetDefault("mapping.default_industry_id", 1)
	v.SetDefault("mapping.default_data_source_id", 1)
	v.SetDefault("parsers.default", "targi_kielce")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 2)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "logs/tradefair-crawler.log")
	v.SetDefault("metrics.pushgateway_url", "")
	v.SetDefault("metrics.job_name", "tradefair_crawler")
	v.SetDefault("schedule.cron", "0 3 * * *")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
}

// Location returns the configured site timezone, UTC when unset.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Site.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Site.BaseURL == "" {
		return fmt.Errorf("site.base_url must be set")
	}
	if c.Site.EventsSearchURL == "" {
		return fmt.Errorf("site.events_search_url must be set")
	}
	if c.Site.DataSourceName == "" {
		return fmt.Errorf("site.data_source_name must be set")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		return fmt.Errorf("site.timezone: %w", err)
	}
	if c.Scraping.MaxRetries <= 0 {
		return fmt.Errorf("scraping.max_retries must be > 0")
	}
	if c.Scraping.Timeout <= 0 {
		return fmt.Errorf("scraping.timeout must be > 0")
	}
	if c.Scraping.RetryDelay < 0 || c.Scraping.DelayBetweenRequests < 0 || c.Scraping.PageDelay < 0 {
		return fmt.Errorf("scraping delays must be >= 0")
	}
	if c.Scraping.MaxPages <= 0 {
		return fmt.Errorf("scraping.max_pages must be > 0")
	}
	if c.Scraping.MaxRequestsPerSecond < 0 {
		return fmt.Errorf("scraping.max_requests_per_second must be >= 0")
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	for _, route := range c.Parsers.Mapping {
		if route.Domain == "" || route.Parser == "" {
			return fmt.Errorf("parsers.mapping entries need both domain and parser")
		}
	}
	return nil
}

// RequireDSN reports whether a database DSN is configured; commands that touch
// the store call it before connecting.
func (c Config) RequireDSN() error {
	if strings.TrimSpace(c.DB.DSN) == "" {
		return fmt.Errorf("db.dsn is required (set %s_DB_DSN)", EnvPrefix)
	}
	return nil
}
