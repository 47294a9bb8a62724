package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"priceradar/pkg/models"
	"priceradar/pkg/utils"
)

// FileStore writes each crawl run as a timestamped JSON file in a
// results directory.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	logger *logrus.Logger
}

// NewFileStore creates the results directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "results"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create results directory: %w", err)
	}
	return &FileStore{
		dir:    dir,
		logger: utils.GetLogger(),
	}, nil
}

// SaveRun writes the run to crawl_<started>_<id-prefix>.json.
func (fs *FileStore) SaveRun(ctx context.Context, run *models.CrawlRun) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal crawl run: %w", err)
	}

	name := fmt.Sprintf("crawl_%s_%s.json",
		run.StartedAt.Format("20060102_150405"),
		idPrefix(run.ID))
	path := filepath.Join(fs.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write crawl run file: %w", err)
	}

	fs.logger.WithFields(logrus.Fields{
		"run_id": run.ID,
		"path":   path,
	}).Info("Crawl run saved to file")
	return nil
}

// LatestRun reads the most recently named run file. File names embed
// the start timestamp, so lexical order is chronological order.
func (fs *FileStore) LatestRun(ctx context.Context) (*models.CrawlRun, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read results directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "crawl_") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("no crawl runs recorded")
	}
	sort.Strings(names)

	data, err := os.ReadFile(filepath.Join(fs.dir, names[len(names)-1]))
	if err != nil {
		return nil, fmt.Errorf("failed to read crawl run file: %w", err)
	}

	var run models.CrawlRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal crawl run: %w", err)
	}
	return &run, nil
}

// Close is a no-op for the file store.
func (fs *FileStore) Close() error { return nil }

func idPrefix(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
