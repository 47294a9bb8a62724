package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"priceradar/pkg/models"
)

type fakeRuns struct {
	run *models.CrawlRun
}

func (f *fakeRuns) SaveRun(ctx context.Context, run *models.CrawlRun) error { return nil }
func (f *fakeRuns) LatestRun(ctx context.Context) (*models.CrawlRun, error) {
	if f.run == nil {
		return nil, errors.New("no crawl runs recorded")
	}
	return f.run, nil
}
func (f *fakeRuns) Close() error { return nil }

type fakeReporter struct{}

func (f *fakeReporter) Status() map[string]interface{} {
	return map[string]interface{}{"state": "crawling", "platform": "meituan"}
}

func testEcho(runs *fakeRuns) *echo.Echo {
	e := echo.New()
	registerRoutes(e, runs, &fakeReporter{})
	return e
}

func doGet(t *testing.T, e *echo.Echo, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestHealthEndpoint(t *testing.T) {
	rec, body := doGet(t, testEcho(&fakeRuns{}), "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
}

func TestStatusEndpoint(t *testing.T) {
	rec, body := doGet(t, testEcho(&fakeRuns{}), "/status")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "crawling", body["state"])
	assert.Equal(t, "meituan", body["platform"])
}

func TestLatestRunEndpoint(t *testing.T) {
	runs := &fakeRuns{run: &models.CrawlRun{
		ID:       "run-1",
		Platform: "meituan",
		Queries:  []models.ProductQuery{"红牛250ml"},
		Outcomes: []models.QueryOutcome{{Query: "红牛250ml", Results: []models.Result{{Price: 6}}}},
	}}

	rec, body := doGet(t, testEcho(runs), "/runs/latest")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "run-1", body["id"])

	rec, body = doGet(t, testEcho(&fakeRuns{}), "/runs/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, body["error"], "no crawl runs")
}

func TestUsageEndpoint(t *testing.T) {
	runs := &fakeRuns{run: &models.CrawlRun{
		ID:    "run-1",
		Usage: models.UsageRecord{Provider: "anthropic", AgentCalls: 4, EstimatedCostUSD: 0.12},
	}}

	rec, body := doGet(t, testEcho(runs), "/usage")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "anthropic", body["provider"])
	assert.InDelta(t, 4, body["agent_calls"].(float64), 0.001)
}
