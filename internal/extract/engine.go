package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"priceradar/internal/config"
	"priceradar/internal/session"
	"priceradar/pkg/models"
	"priceradar/pkg/utils"
)

// rateLimitMarkers are page texts that signal the storefront is
// throttling or blocking us.
var rateLimitMarkers = []string{"403", "系统繁忙", "出了点小差", "访问太频繁"}

// searchSelectors is the ladder tried to focus the storefront's search
// entry point.
var searchSelectors = []string{
	`input[placeholder*="搜"]`,
	`input[placeholder*="商"]`,
	`[class*="search"] input`,
	`[class*="search"]`,
}

// Engine is the deterministic extraction layer: given a session already
// in a usable state, it performs one product search and parses the
// structured results. It never dismisses popups and never touches the
// delivery address — those are the navigation agent's concerns.
type Engine struct {
	config   *config.Config
	platform models.Platform
	logger   *logrus.Logger
}

// NewEngine creates an extraction engine for the configured platform.
func NewEngine(cfg *config.Config) *Engine {
	return &Engine{
		config:   cfg,
		platform: models.Platforms[cfg.Crawler.Platform],
		logger:   utils.GetLogger(),
	}
}

// Extract searches the storefront for the query and parses the results.
func (e *Engine) Extract(ctx context.Context, sess *session.Session, query models.ProductQuery) ([]models.Result, error) {
	started := time.Now()
	e.logger.WithFields(logrus.Fields{
		"query":    query,
		"platform": e.platform.Key,
	}).Info("Starting extraction")

	if err := e.search(ctx, sess, query); err != nil {
		return nil, err
	}

	// Throttling pages replace the result list wholesale; check the
	// rendered text before bothering with selectors.
	text, err := sess.VisibleText()
	if err != nil {
		return nil, utils.NewExtractionError(utils.ExtractLayoutMismatch, fmt.Sprintf("failed to read results page: %v", err))
	}
	for _, marker := range rateLimitMarkers {
		if strings.Contains(text, marker) {
			return nil, utils.NewExtractionError(utils.ExtractRateLimited, fmt.Sprintf("throttling marker %q on results page", marker))
		}
	}

	html, err := sess.HTML()
	if err != nil {
		return nil, utils.NewExtractionError(utils.ExtractLayoutMismatch, fmt.Sprintf("failed to read results HTML: %v", err))
	}

	results, err := ParseCards(html, query, e.platform.Key, time.Now())
	if err != nil {
		return nil, err
	}

	e.logger.WithFields(logrus.Fields{
		"query":    query,
		"results":  len(results),
		"duration": time.Since(started),
	}).Info("Extraction completed")
	return results, nil
}

// search brings the session to the storefront search results for the
// query: ensure the home page, focus the search box, type, submit.
func (e *Engine) search(ctx context.Context, sess *session.Session, query models.ProductQuery) error {
	host := strings.TrimPrefix(strings.TrimPrefix(e.platform.H5URL, "https://"), "http://")
	if !strings.Contains(sess.CurrentURL(), host) {
		if err := sess.Navigate(ctx, e.platform.H5URL, e.config.Crawler.Timeout); err != nil {
			return utils.NewExtractionError(utils.ExtractLayoutMismatch, fmt.Sprintf("failed to open storefront: %v", err))
		}
		time.Sleep(2 * time.Second)
	}

	focused := false
	for _, selector := range searchSelectors {
		if err := sess.Click(selector); err == nil {
			focused = true
			break
		}
	}
	if !focused {
		return utils.NewExtractionError(utils.ExtractLayoutMismatch, "no search entry point on page")
	}
	time.Sleep(1 * time.Second)

	if err := sess.Type("input", string(query)); err != nil {
		return utils.NewExtractionError(utils.ExtractLayoutMismatch, fmt.Sprintf("failed to type query: %v", err))
	}

	// Prefer the explicit search button, fall back to Enter.
	if err := sess.ClickByText("搜索"); err != nil {
		if err := sess.PressEnter(); err != nil {
			return utils.NewExtractionError(utils.ExtractLayoutMismatch, fmt.Sprintf("failed to submit search: %v", err))
		}
	}

	// Result rendering is client-side and slow on the mobile storefront.
	select {
	case <-time.After(4 * time.Second):
	case <-ctx.Done():
		return utils.NewExtractionError(utils.ExtractLayoutMismatch, "cancelled while waiting for results")
	}

	return nil
}
