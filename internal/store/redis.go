package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"priceradar/internal/config"
	"priceradar/pkg/models"
	"priceradar/pkg/utils"
)

const (
	runKeyPrefix = "priceradar:run:"
	latestRunKey = "priceradar:run:latest"
	runTTL       = 7 * 24 * time.Hour
)

// RedisStore persists crawl runs in Redis, keeping a pointer to the
// latest run alongside per-run keys.
type RedisStore struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewRedisStore creates a Redis-backed run store.
func NewRedisStore(cfg *config.Config) (*RedisStore, error) {
	opts, err := redis.ParseURL(cfg.Store.Redis)
	if err != nil {
		opts = &redis.Options{
			Addr: "localhost:6379",
			DB:   cfg.Store.RedisDB,
		}
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	return &RedisStore{
		client: redis.NewClient(opts),
		logger: utils.GetLogger(),
	}, nil
}

// Ping tests the Redis connection.
func (rs *RedisStore) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// SaveRun stores the run under its own key and updates the latest
// pointer.
func (rs *RedisStore) SaveRun(ctx context.Context, run *models.CrawlRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal crawl run: %w", err)
	}

	key := runKeyPrefix + run.ID
	if err := rs.client.Set(ctx, key, data, runTTL).Err(); err != nil {
		return fmt.Errorf("failed to store crawl run: %w", err)
	}
	if err := rs.client.Set(ctx, latestRunKey, run.ID, runTTL).Err(); err != nil {
		return fmt.Errorf("failed to update latest run pointer: %w", err)
	}

	rs.logger.WithFields(logrus.Fields{
		"run_id": run.ID,
		"key":    key,
	}).Info("Crawl run saved to redis")
	return nil
}

// LatestRun loads the run the latest pointer refers to.
func (rs *RedisStore) LatestRun(ctx context.Context) (*models.CrawlRun, error) {
	id, err := rs.client.Get(ctx, latestRunKey).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("no crawl runs recorded")
		}
		return nil, fmt.Errorf("failed to read latest run pointer: %w", err)
	}

	data, err := rs.client.Get(ctx, runKeyPrefix+id).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("latest run %s has expired", id)
		}
		return nil, fmt.Errorf("failed to read crawl run: %w", err)
	}

	var run models.CrawlRun
	if err := json.Unmarshal([]byte(data), &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal crawl run: %w", err)
	}
	return &run, nil
}

// Close closes the Redis connection.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
