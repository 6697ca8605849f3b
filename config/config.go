// Package config handles loading and validation of application configuration
// from environment variables (optionally seeded from a .env file).
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/matrix-portfolio/portfolio-api/logger"
	"github.com/spf13/viper"
)

// Environment represents the application's running environment (development or production).
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"

	minAdminTokenLength = 16
)

// Store drivers.
const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreBadger   = "badger"
)

// Email providers.
const (
	EmailProviderNone   = "none"
	EmailProviderResend = "resend"
	EmailProviderSMTP   = "smtp"
)

// ServerConfig holds server-specific configuration.
type ServerConfig struct {
	Environment    Environment `mapstructure:"ENVIRONMENT" yaml:"environment"`
	Port           string      `mapstructure:"PORT" yaml:"port"`
	AllowedOrigins []string    `mapstructure:"ALLOWED_ORIGINS" yaml:"allowed_origins"`
	Version        string      `mapstructure:"VERSION" yaml:"version"`
	// AdminToken is the bearer secret guarding the submission listing.
	AdminToken string `mapstructure:"ADMIN_TOKEN" yaml:"admin_token"`
	// TrustedProxies is a list of CIDR ranges or IPs of trusted reverse proxies.
	// If empty, X-Forwarded-For headers are ignored entirely.
	TrustedProxies         []string `mapstructure:"TRUSTED_PROXIES" yaml:"trusted_proxies"`
	MaxBodyBytes           int64    `mapstructure:"MAX_BODY_BYTES" yaml:"max_body_bytes"`
	ShutdownTimeoutSeconds int      `mapstructure:"SHUTDOWN_TIMEOUT_SECONDS" yaml:"shutdown_timeout_seconds"`
}

// StoreConfig selects and configures the submission store.
type StoreConfig struct {
	Driver                string `mapstructure:"DRIVER" yaml:"driver"`
	MongoURI              string `mapstructure:"MONGO_URI" yaml:"mongo_uri"`
	MongoDatabase         string `mapstructure:"MONGO_DATABASE" yaml:"mongo_database"`
	MongoCollection       string `mapstructure:"MONGO_COLLECTION" yaml:"mongo_collection"`
	BadgerPath            string `mapstructure:"BADGER_PATH" yaml:"badger_path"`
	ConnectTimeoutSeconds int    `mapstructure:"CONNECT_TIMEOUT_SECONDS" yaml:"connect_timeout_seconds"`
	OpTimeoutSeconds      int    `mapstructure:"OP_TIMEOUT_SECONDS" yaml:"op_timeout_seconds"`
}

// ConnectTimeout returns the initial connection timeout.
func (c StoreConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSeconds) * time.Second
}

// OpTimeout returns the per-operation timeout applied by every store.
func (c StoreConfig) OpTimeout() time.Duration {
	return time.Duration(c.OpTimeoutSeconds) * time.Second
}

// DatabaseConfig holds PostgreSQL connection details for the postgres store driver.
type DatabaseConfig struct {
	Host           string `mapstructure:"HOST" yaml:"host"`
	Port           int    `mapstructure:"PORT" yaml:"port"`
	User           string `mapstructure:"USER" yaml:"user"`
	Password       string `mapstructure:"PASSWORD" yaml:"password"`
	Name           string `mapstructure:"NAME" yaml:"name"`
	SSLMode        string `mapstructure:"SSL_MODE" yaml:"ssl_mode"`
	MaxConnections int32  `mapstructure:"MAX_CONNECTIONS" yaml:"max_connections"`
}

// URL returns a postgres:// connection URL suitable for pgx and golang-migrate.
func (c *DatabaseConfig) URL() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		sslmode,
	)
}

// RedisConfig holds Redis connection details. An empty Address selects the
// in-process rate limiter.
type RedisConfig struct {
	Address  string `mapstructure:"ADDRESS" yaml:"address"`
	Password string `mapstructure:"PASSWORD" yaml:"password"`
	DB       int    `mapstructure:"DB" yaml:"db"`
	UseTLS   bool   `mapstructure:"USE_TLS" yaml:"use_tls"`
	PoolSize int    `mapstructure:"POOL_SIZE" yaml:"pool_size"`
}

// RateLimitConfig holds the two admission-control windows.
type RateLimitConfig struct {
	GeneralRequests      int `mapstructure:"GENERAL_REQUESTS" yaml:"general_requests"`
	GeneralWindowSeconds int `mapstructure:"GENERAL_WINDOW_SECONDS" yaml:"general_window_seconds"`
	ContactRequests      int `mapstructure:"CONTACT_REQUESTS" yaml:"contact_requests"`
	ContactWindowSeconds int `mapstructure:"CONTACT_WINDOW_SECONDS" yaml:"contact_window_seconds"`
}

func (c RateLimitConfig) GeneralWindow() time.Duration {
	return time.Duration(c.GeneralWindowSeconds) * time.Second
}

func (c RateLimitConfig) ContactWindow() time.Duration {
	return time.Duration(c.ContactWindowSeconds) * time.Second
}

// EmailConfig holds configuration for sending notification emails.
type EmailConfig struct {
	Provider     string `mapstructure:"PROVIDER" yaml:"provider"`
	FromAddress  string `mapstructure:"FROM_ADDRESS" yaml:"from_address"`
	FromName     string `mapstructure:"FROM_NAME" yaml:"from_name"`
	NotifyTo     string `mapstructure:"NOTIFY_TO" yaml:"notify_to"`
	ResendAPIKey string `mapstructure:"RESEND_API_KEY" yaml:"resend_api_key"`
	SMTPHost     string `mapstructure:"SMTP_HOST" yaml:"smtp_host"`
	SMTPPort     int    `mapstructure:"SMTP_PORT" yaml:"smtp_port"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME" yaml:"smtp_username"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD" yaml:"smtp_password"`
	// SendConfirmation also mails a receipt to the submitter.
	SendConfirmation   bool `mapstructure:"SEND_CONFIRMATION" yaml:"send_confirmation"`
	SendTimeoutSeconds int  `mapstructure:"SEND_TIMEOUT_SECONDS" yaml:"send_timeout_seconds"`
}

// Enabled reports whether a mail transport is configured.
func (c EmailConfig) Enabled() bool {
	return c.Provider != "" && c.Provider != EmailProviderNone
}

// Recipient is the owner mailbox notified about new submissions.
func (c EmailConfig) Recipient() string {
	if c.NotifyTo != "" {
		return c.NotifyTo
	}
	return c.FromAddress
}

func (c EmailConfig) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSeconds) * time.Second
}

// WorkerPoolConfig holds configuration for the notification worker pool.
type WorkerPoolConfig struct {
	MaxWorkers             int `mapstructure:"MAX_WORKERS" yaml:"max_workers"`
	QueueSize              int `mapstructure:"QUEUE_SIZE" yaml:"queue_size"`
	JobTimeoutSeconds      int `mapstructure:"JOB_TIMEOUT_SECONDS" yaml:"job_timeout_seconds"`
	ShutdownTimeoutSeconds int `mapstructure:"SHUTDOWN_TIMEOUT_SECONDS" yaml:"shutdown_timeout_seconds"`
}

// Config aggregates all application configuration sections.
type Config struct {
	Server     ServerConfig     `mapstructure:"SERVER" yaml:"server"`
	Store      StoreConfig      `mapstructure:"STORE" yaml:"store"`
	Database   DatabaseConfig   `mapstructure:"DATABASE" yaml:"database"`
	Redis      RedisConfig      `mapstructure:"REDIS" yaml:"redis"`
	RateLimit  RateLimitConfig  `mapstructure:"RATE_LIMIT" yaml:"rate_limit"`
	Email      EmailConfig      `mapstructure:"EMAIL" yaml:"email"`
	WorkerPool WorkerPoolConfig `mapstructure:"WORKER_POOL" yaml:"worker_pool"`
}

// IsDevelopment returns true if the application is running in development environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == EnvDevelopment
}

// IsProduction returns true if the application is running in production environment.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == EnvProduction
}

// bindEnvVars binds environment variables to config keys.
// Format: []{configKey, envVar, fallbackEnvVar...}
func bindEnvVars(v *viper.Viper, bindings [][]string) error {
	for _, b := range bindings {
		if err := v.BindEnv(b...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", b[0], err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER.ENVIRONMENT", EnvDevelopment)
	v.SetDefault("SERVER.PORT", "5000")
	v.SetDefault("SERVER.ALLOWED_ORIGINS", []string{
		"https://matrix-portfolio-1.onrender.com",
		"http://localhost:3000",
		"http://localhost:5173",
	})
	v.SetDefault("SERVER.VERSION", "2.0.0")
	v.SetDefault("SERVER.TRUSTED_PROXIES", []string{})
	v.SetDefault("SERVER.MAX_BODY_BYTES", 10<<20)
	v.SetDefault("SERVER.SHUTDOWN_TIMEOUT_SECONDS", 15)

	v.SetDefault("STORE.DRIVER", StoreMongo)
	v.SetDefault("STORE.MONGO_DATABASE", "portfolio")
	v.SetDefault("STORE.MONGO_COLLECTION", "contacts")
	v.SetDefault("STORE.BADGER_PATH", "./data/submissions")
	v.SetDefault("STORE.CONNECT_TIMEOUT_SECONDS", 10)
	v.SetDefault("STORE.OP_TIMEOUT_SECONDS", 5)

	v.SetDefault("DATABASE.HOST", "localhost")
	v.SetDefault("DATABASE.PORT", 5432)
	v.SetDefault("DATABASE.USER", "postgres")
	v.SetDefault("DATABASE.PASSWORD", "")
	v.SetDefault("DATABASE.NAME", "portfolio")
	v.SetDefault("DATABASE.SSL_MODE", "disable")
	v.SetDefault("DATABASE.MAX_CONNECTIONS", 5)

	v.SetDefault("REDIS.ADDRESS", "")
	v.SetDefault("REDIS.PASSWORD", "")
	v.SetDefault("REDIS.DB", 0)
	v.SetDefault("REDIS.USE_TLS", false)
	v.SetDefault("REDIS.POOL_SIZE", 3)

	v.SetDefault("RATE_LIMIT.GENERAL_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT.GENERAL_WINDOW_SECONDS", 15*60)
	v.SetDefault("RATE_LIMIT.CONTACT_REQUESTS", 5)
	v.SetDefault("RATE_LIMIT.CONTACT_WINDOW_SECONDS", 60*60)

	v.SetDefault("EMAIL.PROVIDER", EmailProviderNone)
	v.SetDefault("EMAIL.FROM_NAME", "Matrix Portfolio")
	v.SetDefault("EMAIL.SMTP_HOST", "smtp.gmail.com")
	v.SetDefault("EMAIL.SMTP_PORT", 587)
	v.SetDefault("EMAIL.SEND_CONFIRMATION", false)
	v.SetDefault("EMAIL.SEND_TIMEOUT_SECONDS", 10)

	v.SetDefault("WORKER_POOL.MAX_WORKERS", 2)
	v.SetDefault("WORKER_POOL.QUEUE_SIZE", 100)
	v.SetDefault("WORKER_POOL.JOB_TIMEOUT_SECONDS", 30)
	v.SetDefault("WORKER_POOL.SHUTDOWN_TIMEOUT_SECONDS", 10)

	v.SetDefault("LOG_LEVEL", "info")
}

var envBindings = [][]string{
	// Server config
	{"SERVER.ENVIRONMENT", "SERVER_ENVIRONMENT"},
	{"SERVER.PORT", "PORT"},
	{"SERVER.ALLOWED_ORIGINS", "ALLOWED_ORIGINS"},
	{"SERVER.VERSION", "APP_VERSION"},
	{"SERVER.ADMIN_TOKEN", "ADMIN_TOKEN"},
	{"SERVER.TRUSTED_PROXIES", "TRUSTED_PROXIES"},
	{"SERVER.MAX_BODY_BYTES", "MAX_BODY_BYTES"},
	{"SERVER.SHUTDOWN_TIMEOUT_SECONDS", "SHUTDOWN_TIMEOUT_SECONDS"},
	// Store config
	{"STORE.DRIVER", "STORE_DRIVER"},
	{"STORE.MONGO_URI", "MONGO_URI"},
	{"STORE.MONGO_DATABASE", "MONGO_DATABASE"},
	{"STORE.MONGO_COLLECTION", "MONGO_COLLECTION"},
	{"STORE.BADGER_PATH", "BADGER_PATH"},
	{"STORE.CONNECT_TIMEOUT_SECONDS", "STORE_CONNECT_TIMEOUT_SECONDS"},
	{"STORE.OP_TIMEOUT_SECONDS", "STORE_OP_TIMEOUT_SECONDS"},
	// Database config
	{"DATABASE.HOST", "DB_HOST"},
	{"DATABASE.PORT", "DB_PORT"},
	{"DATABASE.USER", "DB_USER"},
	{"DATABASE.PASSWORD", "DB_PASSWORD"},
	{"DATABASE.NAME", "DB_NAME"},
	{"DATABASE.SSL_MODE", "DB_SSL_MODE"},
	{"DATABASE.MAX_CONNECTIONS", "DB_MAX_CONNECTIONS"},
	// Redis config
	{"REDIS.ADDRESS", "REDIS_ADDRESS"},
	{"REDIS.PASSWORD", "REDIS_PASSWORD"},
	{"REDIS.DB", "REDIS_DB"},
	{"REDIS.USE_TLS", "REDIS_USE_TLS"},
	{"REDIS.POOL_SIZE", "REDIS_POOL_SIZE"},
	// Rate limit config
	{"RATE_LIMIT.GENERAL_REQUESTS", "RATE_LIMIT_GENERAL_REQUESTS"},
	{"RATE_LIMIT.GENERAL_WINDOW_SECONDS", "RATE_LIMIT_GENERAL_WINDOW_SECONDS"},
	{"RATE_LIMIT.CONTACT_REQUESTS", "RATE_LIMIT_CONTACT_REQUESTS"},
	{"RATE_LIMIT.CONTACT_WINDOW_SECONDS", "RATE_LIMIT_CONTACT_WINDOW_SECONDS"},
	// Email config; GMAIL_USER/GMAIL_PASS keep old deployments working.
	{"EMAIL.PROVIDER", "EMAIL_PROVIDER"},
	{"EMAIL.FROM_ADDRESS", "EMAIL_FROM_ADDRESS", "GMAIL_USER"},
	{"EMAIL.FROM_NAME", "EMAIL_FROM_NAME"},
	{"EMAIL.NOTIFY_TO", "EMAIL_NOTIFY_TO"},
	{"EMAIL.RESEND_API_KEY", "RESEND_API_KEY"},
	{"EMAIL.SMTP_HOST", "SMTP_HOST"},
	{"EMAIL.SMTP_PORT", "SMTP_PORT"},
	{"EMAIL.SMTP_USERNAME", "SMTP_USERNAME", "GMAIL_USER"},
	{"EMAIL.SMTP_PASSWORD", "SMTP_PASSWORD", "GMAIL_PASS"},
	{"EMAIL.SEND_CONFIRMATION", "EMAIL_SEND_CONFIRMATION"},
	{"EMAIL.SEND_TIMEOUT_SECONDS", "EMAIL_SEND_TIMEOUT_SECONDS"},
	// WorkerPool config
	{"WORKER_POOL.MAX_WORKERS", "WORKER_POOL_MAX_WORKERS"},
	{"WORKER_POOL.QUEUE_SIZE", "WORKER_POOL_QUEUE_SIZE"},
	{"WORKER_POOL.JOB_TIMEOUT_SECONDS", "WORKER_POOL_JOB_TIMEOUT_SECONDS"},
	{"WORKER_POOL.SHUTDOWN_TIMEOUT_SECONDS", "WORKER_POOL_SHUTDOWN_TIMEOUT_SECONDS"},
}

// LoadConfig loads configuration from a .env file (if present) and the
// environment, applies defaults, and validates the result.
func LoadConfig() (*Config, error) {
	// A missing .env file is the normal case in deployed environments.
	_ = godotenv.Load()

	v := viper.New()
	log := logger.GetLogger()

	setDefaults(v)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := bindEnvVars(v, envBindings); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal failed: %w", err)
	}
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)
	cfg.Server.TrustedProxies = splitList(cfg.Server.TrustedProxies)

	if os.Getenv("EMAIL_PROVIDER") == "" && cfg.Email.SMTPPassword != "" {
		// Legacy deployments only set GMAIL_USER/GMAIL_PASS.
		cfg.Email.Provider = EmailProviderSMTP
	}

	log.Infow("Configuration loaded",
		"environment", cfg.Server.Environment,
		"server_port", cfg.Server.Port,
		"store_driver", cfg.Store.Driver,
		"allowed_origins", cfg.Server.AllowedOrigins,
		"trusted_proxies", cfg.Server.TrustedProxies,
		"redis_enabled", cfg.Redis.Address != "",
		"email_provider", cfg.Email.Provider,
	)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	log.Info("Configuration validated successfully")
	return &cfg, nil
}

// splitList normalizes list values that arrive from the environment as a
// single comma-separated string.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validateConfig checks if the loaded configuration values are valid.
func validateConfig(cfg *Config) error {
	log := logger.GetLogger()

	if cfg.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if cfg.Server.AdminToken == "" {
		log.Warn("ADMIN_TOKEN is not set; the submission listing will reject every request")
	} else if len(cfg.Server.AdminToken) < minAdminTokenLength && cfg.IsProduction() {
		return fmt.Errorf("admin token must be at least %d characters long in production", minAdminTokenLength)
	}
	for _, origin := range cfg.Server.AllowedOrigins {
		if origin == "*" {
			if cfg.IsProduction() {
				return fmt.Errorf("wildcard allowed origin is not permitted in production")
			}
			continue
		}
		if _, err := url.ParseRequestURI(origin); err != nil {
			return fmt.Errorf("invalid allowed origin '%s': %w", origin, err)
		}
	}
	if cfg.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("max body bytes must be positive")
	}

	switch cfg.Store.Driver {
	case StoreMongo:
		if cfg.Store.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required for the mongo store driver")
		}
		if cfg.Store.MongoDatabase == "" || cfg.Store.MongoCollection == "" {
			return fmt.Errorf("mongo database and collection are required")
		}
	case StorePostgres:
		if cfg.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if cfg.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if cfg.Database.Name == "" {
			return fmt.Errorf("database name is required")
		}
		if cfg.Database.Password == "" {
			log.Warn("Database password is not set. Ensure this is intended (e.g., using trusted auth).")
		}
	case StoreBadger:
		if cfg.Store.BadgerPath == "" {
			return fmt.Errorf("badger path is required for the badger store driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if cfg.Store.ConnectTimeoutSeconds <= 0 || cfg.Store.OpTimeoutSeconds <= 0 {
		return fmt.Errorf("store timeouts must be positive")
	}

	if cfg.Redis.Address == "" {
		log.Info("REDIS_ADDRESS not set; rate limits are tracked in process memory")
	}

	if cfg.RateLimit.GeneralRequests <= 0 || cfg.RateLimit.GeneralWindowSeconds <= 0 {
		return fmt.Errorf("general rate limit requests and window must be positive")
	}
	if cfg.RateLimit.ContactRequests <= 0 || cfg.RateLimit.ContactWindowSeconds <= 0 {
		return fmt.Errorf("contact rate limit requests and window must be positive")
	}

	if err := validateEmailConfig(&cfg.Email); err != nil {
		return err
	}

	if cfg.WorkerPool.MaxWorkers <= 0 {
		return fmt.Errorf("worker pool max workers must be positive")
	}
	if cfg.WorkerPool.QueueSize <= 0 {
		return fmt.Errorf("worker pool queue size must be positive")
	}
	if cfg.WorkerPool.JobTimeoutSeconds <= 0 || cfg.WorkerPool.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("worker pool timeouts must be positive")
	}

	return nil
}

// validateEmailConfig checks the mail transport settings. Incomplete settings
// disable notification instead of failing startup, since notification is
// best effort.
func validateEmailConfig(email *EmailConfig) error {
	log := logger.GetLogger()

	switch email.Provider {
	case "", EmailProviderNone:
		email.Provider = EmailProviderNone
		return nil
	case EmailProviderResend:
		if email.ResendAPIKey == "" || email.FromAddress == "" {
			log.Warn("Resend provider selected without RESEND_API_KEY or EMAIL_FROM_ADDRESS; notifications disabled")
			email.Provider = EmailProviderNone
		}
	case EmailProviderSMTP:
		if email.SMTPHost == "" || email.SMTPUsername == "" || email.SMTPPassword == "" || email.FromAddress == "" {
			log.Warn("SMTP provider selected without host or credentials; notifications disabled")
			email.Provider = EmailProviderNone
		}
	default:
		return fmt.Errorf("unknown email provider %q", email.Provider)
	}

	if email.SendTimeoutSeconds <= 0 {
		return fmt.Errorf("email send timeout must be positive")
	}
	return nil
}
