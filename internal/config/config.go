package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	JWT           JWTConfig           `yaml:"jwt"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Billing       BillingConfig       `yaml:"billing"`
	Webhook       WebhookConfig       `yaml:"webhook"`
	Log           LogConfig           `yaml:"log"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
}

// ServerConfig contains HTTP and gRPC listener settings
type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// DatabaseConfig contains PostgreSQL connection settings. Driver is
// "postgres" (lib/pq), "pgx" (pgx stdlib) or "memory" for local runs.
type DatabaseConfig struct {
	Driver            string `yaml:"driver"`
	Host              string `yaml:"host"`
	Port              int    `yaml:"port"`
	User              string `yaml:"user"`
	Password          string `yaml:"password"`
	Database          string `yaml:"database"`
	SSLMode           string `yaml:"ssl_mode"`
	MaxOpenConns      int    `yaml:"max_open_conns"`
	MaxIdleConns      int    `yaml:"max_idle_conns"`
	TxTimeoutSeconds  int    `yaml:"tx_timeout_seconds"`
	LockTimeoutMillis int    `yaml:"lock_timeout_ms"`
	MigrationsDir     string `yaml:"migrations_dir"`
	SeedFile          string `yaml:"seed_file"` // memory driver only
}

// JWTConfig contains the shared secret of the auth collaborator
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// NotificationsConfig contains notice delivery settings
type NotificationsConfig struct {
	Provider       string `yaml:"provider"` // "sendgrid" or "log"
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
	ClubName       string `yaml:"club_name"`
	FrontendURL    string `yaml:"frontend_url"`
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
	MaxRetries     int    `yaml:"max_retries"`
	LowBalanceMin  int    `yaml:"low_balance_min"`
	LowBalanceMax  int    `yaml:"low_balance_max"`
}

// BillingConfig contains payment settings
type BillingConfig struct {
	PendingPaymentTTLHours int    `yaml:"pending_payment_ttl_hours"`
	ReturnURL              string `yaml:"return_url"`
	CheckoutURL            string `yaml:"checkout_url"`
}

// WebhookConfig limits the unauthenticated webhook endpoint
type WebhookConfig struct {
	RatePerSecond float64 `yaml:"rate_per_second"`
	Burst         int     `yaml:"burst"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	AuditLedger            string `yaml:"audit_ledger"`
	ExpireStalePayments    string `yaml:"expire_stale_payments"`
	PurgeReadNotifications string `yaml:"purge_read_notifications"`
}

// Load reads configuration from a YAML file. A .env file next to the
// process, if present, is loaded first so its values act as env overrides.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Notifications
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Notifications.SendGridAPIKey = val
	}
	if val := os.Getenv("EMAIL_FROM"); val != "" {
		c.Notifications.FromEmail = val
	}
	if val := os.Getenv("FRONTEND_URL"); val != "" {
		c.Notifications.FrontendURL = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate checks if the configuration is valid and fills defaults
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.GRPCPort == 0 {
		c.Server.GRPCPort = c.Server.Port + 1
	}
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.Server.GRPCPort)
	}

	// Database validation
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	switch c.Database.Driver {
	case "postgres", "pgx":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.TxTimeoutSeconds <= 0 {
		c.Database.TxTimeoutSeconds = 5
	}
	if c.Database.LockTimeoutMillis <= 0 {
		c.Database.LockTimeoutMillis = 2000
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.MigrationsDir == "" {
		c.Database.MigrationsDir = "migrations"
	}

	// JWT validation
	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	// Notifications
	if c.Notifications.Provider == "" {
		c.Notifications.Provider = "log"
	}
	switch c.Notifications.Provider {
	case "log":
	case "sendgrid":
		if c.Notifications.SendGridAPIKey == "" {
			return fmt.Errorf("sendgrid api key is required for the sendgrid provider")
		}
		if c.Notifications.FromEmail == "" {
			return fmt.Errorf("notification sender address is required")
		}
	default:
		return fmt.Errorf("unsupported notification provider: %s", c.Notifications.Provider)
	}
	if c.Notifications.ClubName == "" {
		c.Notifications.ClubName = "Vityaz sports club"
	}
	if c.Notifications.Workers <= 0 {
		c.Notifications.Workers = 3
	}
	if c.Notifications.QueueSize <= 0 {
		c.Notifications.QueueSize = 256
	}
	if c.Notifications.MaxRetries < 0 {
		return fmt.Errorf("notification max retries must not be negative")
	}
	if c.Notifications.MaxRetries == 0 {
		c.Notifications.MaxRetries = 3
	}
	if c.Notifications.LowBalanceMin == 0 && c.Notifications.LowBalanceMax == 0 {
		c.Notifications.LowBalanceMin = 1
		c.Notifications.LowBalanceMax = 3
	}
	if c.Notifications.LowBalanceMin < 1 || c.Notifications.LowBalanceMax < c.Notifications.LowBalanceMin {
		return fmt.Errorf("invalid low balance band: %d..%d", c.Notifications.LowBalanceMin, c.Notifications.LowBalanceMax)
	}

	// Billing defaults
	if c.Billing.PendingPaymentTTLHours <= 0 {
		c.Billing.PendingPaymentTTLHours = 24
	}

	// Webhook defaults
	if c.Webhook.RatePerSecond <= 0 {
		c.Webhook.RatePerSecond = 50
	}
	if c.Webhook.Burst <= 0 {
		c.Webhook.Burst = 100
	}

	// Scheduler defaults
	if c.Scheduler.AuditLedger == "" {
		c.Scheduler.AuditLedger = "0 0 3 * * *" // 3 AM UTC
	}
	if c.Scheduler.ExpireStalePayments == "" {
		c.Scheduler.ExpireStalePayments = "0 */15 * * * *" // every 15 minutes
	}
	if c.Scheduler.PurgeReadNotifications == "" {
		c.Scheduler.PurgeReadNotifications = "0 30 4 * * 0" // Sundays 4:30 AM UTC
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetGRPCAddress returns the gRPC health server address
func (c *Config) GetGRPCAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.GRPCPort)
}

func (c *Config) TxTimeout() time.Duration {
	return time.Duration(c.Database.TxTimeoutSeconds) * time.Second
}

func (c *Config) LockTimeout() time.Duration {
	return time.Duration(c.Database.LockTimeoutMillis) * time.Millisecond
}

func (c *Config) PendingPaymentTTL() time.Duration {
	return time.Duration(c.Billing.PendingPaymentTTLHours) * time.Hour
}
