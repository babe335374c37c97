// Package repomanager opens the configured account store and runs units of
// work against it. Every engine operation goes through WithinTx, which hands
// the callback a repository bound to a single transaction so that the
// read-check-write sequence of the operation is atomic.
package repomanager

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/accountkeeper/internal/config"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/repositories/accounts"
)

// TxFunc is one unit of work. It may be run more than once when the store
// reports a retryable conflict, so it must not have side effects outside
// repo other than assigning results.
type TxFunc func(ctx context.Context, repo accounts.Repository) error

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	// WithinTx commits the work of fn when it returns nil and discards it
	// otherwise. fn's error is returned unchanged.
	WithinTx(ctx context.Context, fn TxFunc) error
	Close() error
}

// Open connects to the store selected by cfg and brings its schema up to
// date. Migration progress is reported to logger.
func Open(ctx context.Context, cfg *config.Config, logger logging.Logger) (RepositoryManager, error) {
	var (
		m   RepositoryManager
		err error
	)

	switch cfg.StoreDriver {
	case config.DriverPostgres, config.DriverSQLite:
		var sm *SQLRepositoryManager
		if cfg.StoreDriver == config.DriverPostgres {
			sm, err = NewPostgresRepositoryManager(ctx, cfg.DatabaseDSN)
		} else {
			sm, err = NewSQLiteRepositoryManager(ctx, cfg.DatabaseDSN)
		}
		if err == nil {
			sm.SetLogger(logger)
			m = sm
		}
	case config.DriverRedis:
		m, err = NewRedisRepositoryManager(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
	if err != nil {
		return nil, err
	}

	if err := m.RunMigrations(ctx); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}
	return m, nil
}
