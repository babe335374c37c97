package repomanager

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/accountkeeper/internal/repositories/accounts"
	"github.com/redis/go-redis/v9"
)

// maxRedisRetries bounds optimistic-lock retries of one unit of work.
const maxRedisRetries = 4

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// RedisRepositoryManager runs units of work as WATCH/MULTI/EXEC rounds.
type RedisRepositoryManager struct {
	client *redis.Client
	prefix string
}

func NewRedisRepositoryManager(ctx context.Context, opts RedisOptions) (*RedisRepositoryManager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping error: %w", err)
	}
	return newRedisManager(client, opts.Prefix), nil
}

func newRedisManager(client *redis.Client, prefix string) *RedisRepositoryManager {
	return &RedisRepositoryManager{client: client, prefix: prefix}
}

// RunMigrations is a no-op; records are schemaless JSON values.
func (m *RedisRepositoryManager) RunMigrations(context.Context) error {
	return nil
}

func (m *RedisRepositoryManager) WithinTx(ctx context.Context, fn TxFunc) error {
	for i := 0; i < maxRedisRetries; i++ {
		err := m.client.Watch(ctx, func(tx *redis.Tx) error {
			repo := accounts.NewRedisRepository(tx, m.prefix)
			if err := fn(ctx, repo); err != nil {
				return err
			}
			return repo.Flush(ctx)
		})
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("redis error: %d attempts: %w", maxRedisRetries, redis.TxFailedErr)
}

func (m *RedisRepositoryManager) Close() error {
	return m.client.Close()
}
