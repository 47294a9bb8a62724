package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"priceradar/internal/api"
	"priceradar/internal/config"
	"priceradar/internal/orchestrator"
	"priceradar/internal/store"
	"priceradar/pkg/models"
	"priceradar/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	locationName := flag.String("location", "", "pilot location name to crawl")
	products := flag.String("products", "", "comma-separated product queries (default: monitored SKU list)")
	platform := flag.String("platform", "", "storefront platform (meituan, eleme)")
	useAI := flag.Bool("use-ai", true, "use the AI navigation agent when credentials are available")
	headless := flag.Bool("headless", true, "run the browser headless")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *platform != "" {
		cfg.Crawler.Platform = *platform
	}
	cfg.Crawler.UseAI = *useAI
	cfg.Crawler.Headless = *headless

	utils.ConfigureLogger(cfg.Logging.Level, cfg.Logging.Format)
	logger := utils.GetLogger()
	logger.Info("Starting price radar crawler")

	loc := models.DefaultLocation
	if *locationName != "" {
		found, ok := models.LocationByName(*locationName)
		if !ok {
			logger.WithField("location", *locationName).Fatal("Unknown pilot location")
		}
		loc = found
	}

	queries := parseProducts(*products)

	orch, err := orchestrator.New(cfg)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create orchestrator")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan
		logger.Info("Shutdown signal received, finishing up...")
		cancel()
	}()

	var statusServer *api.Server
	if cfg.Server.Enabled {
		runs, err := store.New(cfg)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create run store for status API")
		}
		statusServer = api.NewServer(cfg, runs, orch)
		go func() {
			if err := statusServer.Start(); err != nil {
				logger.WithError(err).Error("Status API stopped")
			}
		}()
		defer func() {
			if err := statusServer.Shutdown(context.Background()); err != nil {
				logger.WithError(err).Warn("Status API shutdown failed")
			}
		}()
	}

	defer func() {
		if err := orch.Close(context.Background()); err != nil {
			logger.WithError(err).Error("Failed to close crawl run cleanly")
		}
	}()

	if err := orch.Init(ctx, loc); err != nil {
		logger.WithError(err).Fatal("Initialization failed")
	}
	if err := orch.SetLocation(ctx); err != nil {
		logger.WithError(err).Fatal("Could not establish delivery location")
	}

	run, err := orch.Crawl(ctx, queries)
	if err != nil {
		logger.WithError(err).Fatal("Crawl failed")
	}

	output, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		logger.WithError(err).Fatal("Failed to render crawl run")
	}
	fmt.Println(string(output))

	logger.WithFields(map[string]interface{}{
		"queries": len(run.Queries),
		"results": run.ResultCount(),
		"cost":    fmt.Sprintf("$%.4f", run.Usage.EstimatedCostUSD),
	}).Info("Done")
}

// parseProducts splits the -products flag into queries, falling back to
// the default monitored list when empty.
func parseProducts(raw string) []models.ProductQuery {
	if raw == "" {
		return nil
	}
	var queries []models.ProductQuery
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			queries = append(queries, models.ProductQuery(trimmed))
		}
	}
	return queries
}
