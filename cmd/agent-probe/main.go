package main

import (
	"context"
	"flag"
	"log"
	"time"

	"priceradar/internal/agent"
	"priceradar/internal/config"
	"priceradar/internal/session"
	"priceradar/pkg/models"
	"priceradar/pkg/utils"
)

// agent-probe runs a single navigation goal against a live browser so a
// provider or prompt change can be checked without a full crawl.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	provider := flag.String("provider", "", "agent provider to probe (default: configured provider)")
	goalKind := flag.String("goal", "set_location", "goal to resolve: set_location, dismiss_blockers, recover_from_error")
	locationName := flag.String("location", "", "pilot location name for set_location")
	errorKind := flag.String("error", "rate_limited", "failure kind for recover_from_error")
	headless := flag.Bool("headless", false, "run the browser headless")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *provider != "" {
		cfg.LLM.Provider = *provider
	}
	cfg.Crawler.UseAI = true

	utils.ConfigureLogger("debug", cfg.Logging.Format)
	logger := utils.GetLogger()

	mode := cfg.ResolveAI()
	if !mode.Enabled {
		logger.Fatal("No agent provider credentials configured")
	}

	nav, err := agent.New(cfg, mode)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create agent provider")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := nav.Healthy(ctx); err != nil {
		logger.WithError(err).Fatal("Provider health check failed")
	}
	logger.WithField("provider", nav.Name()).Info("Provider healthy")

	loc := models.DefaultLocation
	if *locationName != "" {
		found, ok := models.LocationByName(*locationName)
		if !ok {
			logger.WithField("location", *locationName).Fatal("Unknown pilot location")
		}
		loc = found
	}

	var goal models.NavigationGoal
	switch *goalKind {
	case "set_location":
		goal = models.SetLocationGoal(loc)
	case "dismiss_blockers":
		goal = models.DismissBlockersGoal()
	case "recover_from_error":
		goal = models.RecoverGoal(*errorKind)
	default:
		logger.WithField("goal", *goalKind).Fatal("Unknown goal kind")
	}

	manager := session.NewManager(cfg)
	sess, err := manager.Acquire(ctx, loc, *headless)
	if err != nil {
		logger.WithError(err).Fatal("Failed to acquire browser session")
	}
	defer manager.Release(sess)

	platform := models.Platforms[cfg.Crawler.Platform]
	if err := sess.Navigate(ctx, platform.H5URL, cfg.Crawler.Timeout); err != nil {
		logger.WithError(err).Fatal("Failed to open storefront")
	}

	started := time.Now()
	if err := nav.Resolve(ctx, sess, goal); err != nil {
		logger.WithError(err).Fatal("Goal failed")
	}

	logger.WithFields(map[string]interface{}{
		"goal":     goal.Describe(),
		"duration": utils.FormatDuration(time.Since(started)),
	}).Info("Goal resolved")
}
