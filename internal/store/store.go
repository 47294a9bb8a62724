package store

import (
	"context"
	"fmt"

	"priceradar/internal/config"
	"priceradar/pkg/models"
)

// RunStore persists completed crawl runs.
type RunStore interface {
	SaveRun(ctx context.Context, run *models.CrawlRun) error
	LatestRun(ctx context.Context) (*models.CrawlRun, error)
	Close() error
}

// New creates the run store selected by configuration.
func New(cfg *config.Config) (RunStore, error) {
	switch cfg.Store.Backend {
	case "file":
		return NewFileStore(cfg.Store.Path)
	case "redis":
		return NewRedisStore(cfg)
	case "none":
		return &nopStore{}, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Store.Backend)
	}
}

type nopStore struct{}

func (n *nopStore) SaveRun(ctx context.Context, run *models.CrawlRun) error { return nil }
func (n *nopStore) LatestRun(ctx context.Context) (*models.CrawlRun, error) {
	return nil, fmt.Errorf("run persistence is disabled")
}
func (n *nopStore) Close() error { return nil }
