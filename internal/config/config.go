package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/sungwon/newsletter/internal/queue"
	"github.com/sungwon/newsletter/internal/scheduler"
)

// Delivery modes.
const (
	DeliveryModeSync  = "sync"
	DeliveryModeAsync = "async"
)

// Config holds all application configuration.
type Config struct {
	API       APIConfig        `mapstructure:"api"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Logging   LoggingConfig    `mapstructure:"logging"`
	Scheduler scheduler.Config `mapstructure:"scheduler"`
	Delivery  DeliveryConfig   `mapstructure:"delivery"`
	Provider  ProviderConfig   `mapstructure:"provider"`
	Queue     queue.Config     `mapstructure:"queue"`
}

// APIConfig holds REST API server configuration.
type APIConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Addr returns the listen address.
func (c APIConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url"`
	PoolMin        int32         `mapstructure:"pool_min"`
	PoolMax        int32         `mapstructure:"pool_max"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	Migrate        bool          `mapstructure:"migrate"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

// DeliveryConfig controls how fired jobs are delivered.
type DeliveryConfig struct {
	Mode          string        `mapstructure:"mode"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	SenderAddress string        `mapstructure:"sender_address"`
	SenderName    string        `mapstructure:"sender_name"`
	Brand         string        `mapstructure:"brand"`
}

// ProviderConfig selects the outbound mail transport.
type ProviderConfig struct {
	Type         string        `mapstructure:"type"`
	APIKey       string        `mapstructure:"api_key"`
	Endpoint     string        `mapstructure:"endpoint"`
	Domain       string        `mapstructure:"domain"`
	Timeout      time.Duration `mapstructure:"timeout"`
	SMTPHost     string        `mapstructure:"smtp_host"`
	SMTPPort     int           `mapstructure:"smtp_port"`
	SMTPUsername string        `mapstructure:"smtp_username"`
	SMTPPassword string        `mapstructure:"smtp_password"`
	SMTPStartTLS bool          `mapstructure:"smtp_starttls"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.read_timeout", 10*time.Second)
	v.SetDefault("api.write_timeout", 10*time.Second)
	v.SetDefault("api.shutdown_timeout", 15*time.Second)

	v.SetDefault("database.pool_min", 2)
	v.SetDefault("database.pool_max", 10)
	v.SetDefault("database.connect_timeout", 5*time.Second)
	v.SetDefault("database.migrate", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("scheduler.reconcile_interval", 10*time.Minute)
	v.SetDefault("scheduler.shutdown_timeout", 30*time.Second)

	v.SetDefault("delivery.mode", DeliveryModeSync)
	v.SetDefault("delivery.retry_delay", 5*time.Second)
	v.SetDefault("delivery.max_attempts", 2)
	v.SetDefault("delivery.rate_per_second", 0)
	v.SetDefault("delivery.sender_address", "newsletter@localhost")
	v.SetDefault("delivery.sender_name", "")
	v.SetDefault("delivery.brand", "Newsletter Service")

	v.SetDefault("provider.type", "stdout")
	v.SetDefault("provider.api_key", "")
	v.SetDefault("provider.endpoint", "")
	v.SetDefault("provider.domain", "")
	v.SetDefault("provider.timeout", 30*time.Second)
	v.SetDefault("provider.smtp_host", "")
	v.SetDefault("provider.smtp_port", 587)
	v.SetDefault("provider.smtp_username", "")
	v.SetDefault("provider.smtp_password", "")
	v.SetDefault("provider.smtp_starttls", true)

	q := queue.DefaultConfig()
	v.SetDefault("queue.redis_addr", q.RedisAddr)
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", q.RedisDB)
	v.SetDefault("queue.stream_name", q.StreamName)
	v.SetDefault("queue.group_name", q.GroupName)
	v.SetDefault("queue.worker_count", q.WorkerCount)
	v.SetDefault("queue.block_timeout", q.BlockTimeout)
	v.SetDefault("queue.process_timeout", q.ProcessTimeout)
	v.SetDefault("queue.shutdown_timeout", q.ShutdownTimeout)
	v.SetDefault("queue.max_retries", q.MaxRetries)
	v.SetDefault("queue.embedded_workers", false)
}

// Load reads configuration from the given config directory path.
// It looks for a file named "config.yaml" in that directory.
// Environment variables with prefix NEWSLETTER_ override file values.
// For example, NEWSLETTER_DATABASE_URL overrides database.url.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	v.SetEnvPrefix("NEWSLETTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks cross-field constraints that defaults cannot express.
func (c *Config) Validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		errs = append(errs, fmt.Errorf("api.port %d out of range", c.API.Port))
	}
	switch c.Delivery.Mode {
	case DeliveryModeSync, DeliveryModeAsync:
	default:
		errs = append(errs, fmt.Errorf("delivery.mode must be %q or %q, got %q", DeliveryModeSync, DeliveryModeAsync, c.Delivery.Mode))
	}
	if c.Delivery.MaxAttempts < 1 {
		errs = append(errs, errors.New("delivery.max_attempts must be at least 1"))
	}
	if c.Delivery.RetryDelay < 0 {
		errs = append(errs, errors.New("delivery.retry_delay must not be negative"))
	}
	if c.Scheduler.ReconcileInterval <= 0 {
		errs = append(errs, errors.New("scheduler.reconcile_interval must be positive"))
	}

	return errors.Join(errs...)
}
