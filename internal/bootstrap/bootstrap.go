// Package bootstrap provides the startup wiring shared by the server and
// worker binaries: database connection with retry, schema migration,
// provider selection and pool metrics.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"github.com/sungwon/newsletter/internal/config"
	"github.com/sungwon/newsletter/internal/delivery"
	"github.com/sungwon/newsletter/internal/metrics"
	"github.com/sungwon/newsletter/internal/provider"
	"github.com/sungwon/newsletter/internal/storage"
	"github.com/sungwon/newsletter/migrations"
)

const (
	connectBackoffBase = time.Second
	connectMaxRetries  = 6
)

// ConnectDatabase opens the connection pool, retrying with a Fibonacci
// backoff while PostgreSQL comes up, and applies migrations when enabled.
func ConnectDatabase(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*storage.DB, error) {
	var db *storage.DB
	backoff := retry.WithMaxRetries(connectMaxRetries, retry.NewFibonacci(connectBackoffBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		d, err := storage.NewDB(ctx, cfg.URL, cfg.PoolMin, cfg.PoolMax, cfg.ConnectTimeout)
		if err != nil {
			log.Warn().Err(err).Msg("database not ready, retrying")
			return retry.RetryableError(err)
		}
		db = d
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	if cfg.Migrate {
		if err := migrations.Run(db.Pool, log); err != nil {
			db.Close()
			return nil, err
		}
	}
	return db, nil
}

// ProviderConfig maps the configuration section onto the provider package.
func ProviderConfig(cfg config.ProviderConfig) provider.ProviderConfig {
	return provider.ProviderConfig{
		Type:         cfg.Type,
		APIKey:       cfg.APIKey,
		Endpoint:     cfg.Endpoint,
		Timeout:      cfg.Timeout,
		Domain:       cfg.Domain,
		SMTPHost:     cfg.SMTPHost,
		SMTPPort:     cfg.SMTPPort,
		SMTPUsername: cfg.SMTPUsername,
		SMTPPassword: cfg.SMTPPassword,
		SMTPStartTLS: cfg.SMTPStartTLS,
	}
}

// ExecutorConfig maps the delivery section onto the executor settings.
func ExecutorConfig(cfg config.DeliveryConfig) delivery.Config {
	return delivery.Config{
		RetryDelay:    cfg.RetryDelay,
		MaxAttempts:   cfg.MaxAttempts,
		RatePerSecond: cfg.RatePerSecond,
		SenderAddress: cfg.SenderAddress,
		SenderName:    cfg.SenderName,
	}
}

// NewExecutor builds the delivery executor with the configured provider.
func NewExecutor(cfg *config.Config, queries storage.Querier, log zerolog.Logger) (*delivery.Executor, error) {
	pcfg := ProviderConfig(cfg.Provider)
	if pcfg.Timeout <= 0 {
		pcfg.Timeout = 30 * time.Second
	}
	p, err := provider.NewProvider(pcfg, provider.NewHTTPClient(pcfg.Timeout))
	if err != nil {
		return nil, err
	}
	log.Info().Str("provider", p.GetName()).Msg("mail provider configured")

	return delivery.NewExecutor(
		queries,
		p,
		delivery.NewRenderer(cfg.Delivery.Brand),
		ExecutorConfig(cfg.Delivery),
		log.With().Str("component", "executor").Logger(),
	), nil
}

// PoolStatter reports connection pool usage.
type PoolStatter interface {
	PoolStats() (acquired, idle int32)
}

// ReportPoolStats updates the connection pool gauges every interval until
// ctx is done.
func ReportPoolStats(ctx context.Context, db PoolStatter, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		recordPoolStats(db)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func recordPoolStats(db PoolStatter) {
	acquired, idle := db.PoolStats()
	metrics.DBConnectionsActive.Set(float64(acquired))
	metrics.DBConnectionsIdle.Set(float64(idle))
}
