package captcha

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/2captcha/2captcha-go"
	"github.com/sirupsen/logrus"
	"priceradar/internal/config"
	"priceradar/pkg/utils"
)

// Solver solves verification challenges encountered during crawling.
type Solver interface {
	SolveGeeTest(ctx context.Context, gt, challenge, pageURL string) (string, error)
	SolveRecaptcha(ctx context.Context, siteKey, pageURL string) (string, error)
	Enabled() bool
	IsHealthy() bool
}

// TwoCaptchaSolver implements 2CAPTCHA service integration using the
// official library.
type TwoCaptchaSolver struct {
	config *config.Config
	client *api2captcha.Client
	logger *logrus.Logger
}

// NewTwoCaptchaSolver creates a new 2CAPTCHA solver instance.
func NewTwoCaptchaSolver(cfg *config.Config) *TwoCaptchaSolver {
	logger := utils.GetLogger().WithField("component", "2captcha").Logger

	if cfg.Captcha.APIKey == "" {
		logger.Warn("2CAPTCHA API key not configured - captcha solving will be disabled")
	} else {
		logger.WithField("api_key_length", len(cfg.Captcha.APIKey)).Info("2CAPTCHA solver initialized with API key")
	}

	client := api2captcha.NewClient(cfg.Captcha.APIKey)
	client.DefaultTimeout = int(cfg.Captcha.Timeout.Seconds())
	client.RecaptchaTimeout = int(cfg.Captcha.Timeout.Seconds())
	client.PollingInterval = 5

	return &TwoCaptchaSolver{
		config: cfg,
		client: client,
		logger: logger,
	}
}

// Enabled reports whether auto-solving is configured and switched on.
func (tcs *TwoCaptchaSolver) Enabled() bool {
	return tcs.config.Captcha.AutoSolve && tcs.config.Captcha.APIKey != ""
}

// SolveGeeTest solves a GeeTest slider challenge using 2CAPTCHA. Both
// meituan and eleme storefronts gate suspicious sessions behind GeeTest
// style verification.
func (tcs *TwoCaptchaSolver) SolveGeeTest(ctx context.Context, gt, challenge, pageURL string) (string, error) {
	if !tcs.Enabled() {
		return "", fmt.Errorf("captcha auto-solve is disabled")
	}

	tcs.logger.WithFields(logrus.Fields{
		"gt":       gt,
		"page_url": pageURL,
	}).Info("Starting GeeTest solving with 2CAPTCHA")

	startTime := time.Now()

	captcha := api2captcha.GeeTest{
		GT:        gt,
		Challenge: challenge,
		Url:       pageURL,
	}

	req := captcha.ToRequest()
	code, _, err := tcs.client.Solve(req)
	if err != nil {
		tcs.logger.WithFields(logrus.Fields{
			"gt":       gt,
			"page_url": pageURL,
			"error":    err.Error(),
		}).Error("Failed to solve GeeTest challenge")
		return "", fmt.Errorf("failed to solve GeeTest challenge: %w", err)
	}

	tcs.logger.WithFields(logrus.Fields{
		"gt":           gt,
		"page_url":     pageURL,
		"solving_time": time.Since(startTime),
	}).Info("Successfully solved GeeTest challenge")

	return code, nil
}

// SolveRecaptcha solves a reCAPTCHA v2 challenge using 2CAPTCHA.
func (tcs *TwoCaptchaSolver) SolveRecaptcha(ctx context.Context, siteKey, pageURL string) (string, error) {
	if !tcs.Enabled() {
		return "", fmt.Errorf("captcha auto-solve is disabled")
	}

	tcs.logger.WithFields(logrus.Fields{
		"site_key": siteKey,
		"page_url": pageURL,
	}).Info("Starting reCAPTCHA solving with 2CAPTCHA")

	startTime := time.Now()

	captcha := api2captcha.ReCaptcha{
		SiteKey: siteKey,
		Url:     pageURL,
	}

	req := captcha.ToRequest()
	code, _, err := tcs.client.Solve(req)
	if err != nil {
		tcs.logger.WithFields(logrus.Fields{
			"site_key": siteKey,
			"page_url": pageURL,
			"error":    err.Error(),
		}).Error("Failed to solve reCAPTCHA")
		return "", fmt.Errorf("failed to solve reCAPTCHA: %w", err)
	}

	tcs.logger.WithFields(logrus.Fields{
		"site_key":     siteKey,
		"page_url":     pageURL,
		"solving_time": time.Since(startTime),
	}).Info("Successfully solved reCAPTCHA")

	return code, nil
}

// IsHealthy checks if the 2CAPTCHA service is reachable and the API key
// is valid by querying the account balance.
func (tcs *TwoCaptchaSolver) IsHealthy() bool {
	if tcs.config.Captcha.APIKey == "" {
		tcs.logger.Debug("2CAPTCHA health check failed: no API key configured")
		return false
	}

	balance, err := tcs.client.GetBalance()
	if err != nil {
		tcs.logger.WithField("error", err.Error()).Error("2CAPTCHA health check failed - API call error")
		return false
	}

	tcs.logger.WithField("balance", balance).Info("2CAPTCHA health check successful")
	return balance >= 0
}

// Challenge describes a verification challenge found on a storefront
// page.
type Challenge struct {
	Kind    string // "geetest", "recaptcha", "slider"
	SiteKey string // gt value for GeeTest, site key for reCAPTCHA
}

// verificationMarkers are page text fragments that indicate the
// storefront has interposed a verification page. Both platforms use
// Chinese-language challenge pages.
var verificationMarkers = []string{
	"拖动滑块",
	"安全验证",
	"请完成验证",
	"滑动验证",
	"yoda",
	"verify",
}

// DetectChallenge inspects page content for a verification challenge.
func DetectChallenge(pageContent string) (*Challenge, bool) {
	lower := strings.ToLower(pageContent)

	if strings.Contains(lower, "geetest") || strings.Contains(lower, "gt_captcha") {
		if gt := extractGeeTestGT(pageContent); gt != "" {
			return &Challenge{Kind: "geetest", SiteKey: gt}, true
		}
		return &Challenge{Kind: "geetest"}, true
	}

	if strings.Contains(lower, "g-recaptcha") || strings.Contains(lower, "recaptcha") {
		if key := extractRecaptchaSiteKey(pageContent); key != "" {
			return &Challenge{Kind: "recaptcha", SiteKey: key}, true
		}
	}

	for _, marker := range verificationMarkers {
		if strings.Contains(lower, marker) {
			return &Challenge{Kind: "slider"}, true
		}
	}

	return nil, false
}

// extractGeeTestGT extracts the GeeTest gt parameter from HTML content.
func extractGeeTestGT(html string) string {
	patterns := []string{
		`"gt"\s*:\s*"([0-9a-f]{32})"`,
		`'gt'\s*:\s*'([0-9a-f]{32})'`,
		`gt=([0-9a-f]{32})`,
	}

	for _, pattern := range patterns {
		if matches := utils.FindRegexMatch(html, pattern); len(matches) > 1 {
			return matches[1]
		}
	}
	return ""
}

// extractRecaptchaSiteKey extracts the reCAPTCHA site key from HTML
// content.
func extractRecaptchaSiteKey(html string) string {
	patterns := []string{
		`data-sitekey="([^"]+)"`,
		`data-sitekey='([^']+)'`,
		`"sitekey"\s*:\s*"([^"]+)"`,
	}

	for _, pattern := range patterns {
		if matches := utils.FindRegexMatch(html, pattern); len(matches) > 1 {
			return matches[1]
		}
	}
	return ""
}
