package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Log      LogConfig
	HTTP     HTTPConfig
	ERP      ERPConfig
	Sync     SyncConfig
	Jobs     JobsConfig
	Webhook  WebhookConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings for the idempotency store
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds settings for operator-token verification
type JWTConfig struct {
	Secret          string
	Issuer          string
	TokenExpiration time.Duration
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	TrustedProxies []string
}

// ERPConfig holds the external ERP connection settings
type ERPConfig struct {
	BaseURL        string
	ClientID       string
	ClientSecret   string
	WebhookSecret  string
	RequestTimeout time.Duration
	PageSize       int
}

// SyncConfig holds reconciliation scheduling settings
type SyncConfig struct {
	// Mode is "polling" or "webhook"
	Mode string

	// BusinessHoursInterval applies Mon-Fri between BusinessHoursStart and
	// BusinessHoursEnd; OffHoursInterval applies otherwise.
	BusinessHoursInterval time.Duration
	OffHoursInterval      time.Duration
	BusinessHoursStart    int // hour of day, local time
	BusinessHoursEnd      int

	// FullSyncInterval is the low-frequency full-pass backstop
	FullSyncInterval time.Duration

	RunTimeout       time.Duration
	RateLimitRetries int
	RateLimitBackoff time.Duration

	SyncOnStartup bool

	// ContactEmailFallback allows matching customers by contact-person
	// email during reconciliation. Off by default.
	ContactEmailFallback bool
}

// JobsConfig holds push-queue settings
type JobsConfig struct {
	DrainInterval      time.Duration
	BatchSize          int
	AttemptTimeout     time.Duration
	CleanupEnabled     bool
	CleanupInterval    time.Duration
	CompletedRetention time.Duration
}

// WebhookConfig holds inbound webhook settings
type WebhookConfig struct {
	EventLogCapacity int
	MaxConcurrent    int
}

// Load loads configuration from TOML file and environment variables.
// Priority (highest to lowest):
// 1. Environment variables with STOREFRONT_ prefix (e.g., STOREFRONT_DATABASE_PASSWORD)
// 2. config.toml
// 3. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./backend")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:          v.GetString("jwt.secret"),
			Issuer:          v.GetString("jwt.issuer"),
			TokenExpiration: v.GetDuration("jwt.token_expiration"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
		},
		ERP: ERPConfig{
			BaseURL:        v.GetString("erp.base_url"),
			ClientID:       v.GetString("erp.client_id"),
			ClientSecret:   v.GetString("erp.client_secret"),
			WebhookSecret:  v.GetString("erp.webhook_secret"),
			RequestTimeout: v.GetDuration("erp.request_timeout"),
			PageSize:       v.GetInt("erp.page_size"),
		},
		Sync: SyncConfig{
			Mode:                  v.GetString("sync.mode"),
			BusinessHoursInterval: v.GetDuration("sync.business_hours_interval"),
			OffHoursInterval:      v.GetDuration("sync.off_hours_interval"),
			BusinessHoursStart:    v.GetInt("sync.business_hours_start"),
			BusinessHoursEnd:      v.GetInt("sync.business_hours_end"),
			FullSyncInterval:      v.GetDuration("sync.full_sync_interval"),
			RunTimeout:            v.GetDuration("sync.run_timeout"),
			RateLimitRetries:      v.GetInt("sync.rate_limit_retries"),
			RateLimitBackoff:      v.GetDuration("sync.rate_limit_backoff"),
			SyncOnStartup:         v.GetBool("sync.sync_on_startup"),
			ContactEmailFallback:  v.GetBool("sync.contact_email_fallback"),
		},
		Jobs: JobsConfig{
			DrainInterval:      v.GetDuration("jobs.drain_interval"),
			BatchSize:          v.GetInt("jobs.batch_size"),
			AttemptTimeout:     v.GetDuration("jobs.attempt_timeout"),
			CleanupEnabled:     v.GetBool("jobs.cleanup_enabled"),
			CleanupInterval:    v.GetDuration("jobs.cleanup_interval"),
			CompletedRetention: v.GetDuration("jobs.completed_retention"),
		},
		Webhook: WebhookConfig{
			EventLogCapacity: v.GetInt("webhook.event_log_capacity"),
			MaxConcurrent:    v.GetInt("webhook.max_concurrent"),
		},
	}

	applyDefaults(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "storefront-backend"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.App.Port == "" {
		cfg.App.Port = "8080"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "storefront"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 25
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 5
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 60
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 30
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.JWT.Issuer == "" {
		cfg.JWT.Issuer = "storefront-backend"
	}
	if cfg.JWT.TokenExpiration == 0 {
		cfg.JWT.TokenExpiration = 8 * time.Hour
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		cfg.HTTP.WriteTimeout = 15 * time.Second
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxHeaderBytes == 0 {
		cfg.HTTP.MaxHeaderBytes = 1 << 20 // 1MB
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20 // 1MB, webhook payloads are small
	}
	if cfg.ERP.RequestTimeout == 0 {
		cfg.ERP.RequestTimeout = 30 * time.Second
	}
	if cfg.ERP.PageSize == 0 {
		cfg.ERP.PageSize = 100
	}
	if cfg.Sync.Mode == "" {
		cfg.Sync.Mode = "polling"
	}
	if cfg.Sync.BusinessHoursInterval == 0 {
		cfg.Sync.BusinessHoursInterval = 15 * time.Minute
	}
	if cfg.Sync.OffHoursInterval == 0 {
		cfg.Sync.OffHoursInterval = 2 * time.Hour
	}
	if cfg.Sync.BusinessHoursStart == 0 {
		cfg.Sync.BusinessHoursStart = 7
	}
	if cfg.Sync.BusinessHoursEnd == 0 {
		cfg.Sync.BusinessHoursEnd = 18
	}
	if cfg.Sync.FullSyncInterval == 0 {
		cfg.Sync.FullSyncInterval = 168 * time.Hour
	}
	if cfg.Sync.RunTimeout == 0 {
		cfg.Sync.RunTimeout = 10 * time.Minute
	}
	if cfg.Sync.RateLimitRetries == 0 {
		cfg.Sync.RateLimitRetries = 3
	}
	if cfg.Sync.RateLimitBackoff == 0 {
		cfg.Sync.RateLimitBackoff = 5 * time.Second
	}
	if cfg.Jobs.DrainInterval == 0 {
		cfg.Jobs.DrainInterval = time.Minute
	}
	if cfg.Jobs.BatchSize == 0 {
		cfg.Jobs.BatchSize = 20
	}
	if cfg.Jobs.AttemptTimeout == 0 {
		cfg.Jobs.AttemptTimeout = 30 * time.Second
	}
	if cfg.Jobs.CleanupInterval == 0 {
		cfg.Jobs.CleanupInterval = time.Hour
	}
	if cfg.Jobs.CompletedRetention == 0 {
		cfg.Jobs.CompletedRetention = 168 * time.Hour
	}
	if cfg.Webhook.EventLogCapacity == 0 {
		cfg.Webhook.EventLogCapacity = 200
	}
	if cfg.Webhook.MaxConcurrent == 0 {
		cfg.Webhook.MaxConcurrent = 4
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	if c.Sync.Mode != "polling" && c.Sync.Mode != "webhook" {
		return fmt.Errorf("sync.mode must be 'polling' or 'webhook', got %q", c.Sync.Mode)
	}
	if c.Sync.BusinessHoursStart < 0 || c.Sync.BusinessHoursStart > 23 ||
		c.Sync.BusinessHoursEnd < 0 || c.Sync.BusinessHoursEnd > 23 {
		return fmt.Errorf("sync business hours must be within 0-23")
	}
	if c.Sync.BusinessHoursStart >= c.Sync.BusinessHoursEnd {
		return fmt.Errorf("sync.business_hours_start must be before sync.business_hours_end")
	}

	// Production-specific validations
	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("jwt.secret is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("jwt.secret must be at least 32 characters in production")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.ERP.BaseURL == "" {
			return fmt.Errorf("erp.base_url is required in production")
		}
		if c.ERP.ClientID == "" || c.ERP.ClientSecret == "" {
			return fmt.Errorf("erp.client_id and erp.client_secret are required in production")
		}
		if c.ERP.WebhookSecret == "" {
			return fmt.Errorf("erp.webhook_secret is required in production")
		}
	}

	return nil
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Addr returns the Redis address
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}
