package queue

import "time"

// Config holds configuration for the Redis-backed delivery queue.
type Config struct {
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	StreamName      string        `mapstructure:"stream_name"`
	GroupName       string        `mapstructure:"group_name"`
	WorkerCount     int           `mapstructure:"worker_count"`
	BlockTimeout    time.Duration `mapstructure:"block_timeout"`
	ProcessTimeout  time.Duration `mapstructure:"process_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxRetries      int           `mapstructure:"max_retries"`

	// EmbeddedWorkers runs the worker pool inside the API server process.
	EmbeddedWorkers bool `mapstructure:"embedded_workers"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RedisAddr:       "localhost:6379",
		RedisDB:         0,
		StreamName:      "newsletter:deliveries",
		GroupName:       "newsletter-workers",
		WorkerCount:     4,
		BlockTimeout:    5 * time.Second,
		ProcessTimeout:  30 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		MaxRetries:      3,
	}
}
