package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/sirupsen/logrus"

	"priceradar/internal/config"
	"priceradar/pkg/models"
	"priceradar/pkg/utils"
)

// launchFunc builds a ready-to-drive session. Replaceable in tests.
type launchFunc func(ctx context.Context, loc models.Location, headless bool) (*Session, error)

// Manager owns the lifecycle of at most one browser session. Acquiring
// a second session before releasing the first is an error.
type Manager struct {
	config *config.Config
	logger *logrus.Logger
	launch launchFunc

	mu     sync.Mutex
	active *Session
}

// NewManager creates a session manager for the given configuration.
func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		config: cfg,
		logger: utils.GetLogger(),
	}
	m.launch = m.launchBrowser
	return m
}

// Acquire launches a browser session prepared for the given delivery
// location. Fails with SessionAlreadyOpen if a session is live.
func (m *Manager) Acquire(ctx context.Context, loc models.Location, headless bool) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil {
		return nil, utils.NewSessionError(utils.SessionAlreadyOpen, "a session is already open for this orchestrator")
	}

	sess, err := m.launch(ctx, loc, headless)
	if err != nil {
		return nil, utils.NewSessionError(utils.SessionInitFailed, err.Error())
	}

	m.active = sess
	m.logger.WithFields(logrus.Fields{
		"location": loc.Name,
		"headless": headless,
	}).Info("Browser session acquired")
	return sess, nil
}

// Release tears down a session. Idempotent and safe to call after
// partial failure or with a session that is already released.
func (m *Manager) Release(sess *Session) {
	if sess == nil {
		return
	}

	m.mu.Lock()
	if m.active == sess {
		m.active = nil
	}
	m.mu.Unlock()

	sess.close()
	m.logger.Debug("Browser session released")
}

// launchBrowser starts a stealth Chromium tuned for the mobile
// storefront: mobile viewport and user agent, geolocation pinned to the
// delivery target, automation fingerprints masked.
func (m *Manager) launchBrowser(ctx context.Context, loc models.Location, headless bool) (*Session, error) {
	l := launcher.New().
		Headless(headless).
		NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("disable-gpu").
		Set("lang", m.config.Browser.Locale)

	if chromePath := resolveChromePath(m.config.Browser.ChromePath); chromePath != "" {
		l = l.Bin(chromePath)
		m.logger.WithField("chrome_path", chromePath).Debug("Using system Chrome browser")
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	sess := &Session{
		browser:   browser,
		cleanup:   l.Cleanup,
		createdAt: time.Now(),
	}

	page, err := m.preparePage(browser, loc)
	if err != nil {
		sess.close()
		return nil, err
	}
	sess.page = page

	return sess, nil
}

// preparePage creates the stealth page and applies the mobile emulation
// profile used for every crawl.
func (m *Manager) preparePage(browser *rod.Browser, loc models.Location) (*rod.Page, error) {
	var page *rod.Page
	var err error

	if m.config.Browser.StealthMode {
		page, err = stealth.Page(browser)
	} else {
		page, err = browser.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             m.config.Browser.ViewportW,
		Height:            m.config.Browser.ViewportH,
		DeviceScaleFactor: 3,
		Mobile:            true,
	}); err != nil {
		m.logger.WithError(err).Warn("Failed to set mobile viewport")
	}

	if m.config.Browser.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
			UserAgent:      m.config.Browser.UserAgent,
			AcceptLanguage: m.config.Browser.Locale,
		}); err != nil {
			m.logger.WithError(err).Warn("Failed to set user agent")
		}
	}

	lat, lon, accuracy := loc.Latitude, loc.Longitude, float64(50)
	if gErr := (proto.EmulationSetGeolocationOverride{
		Latitude:  &lat,
		Longitude: &lon,
		Accuracy:  &accuracy,
	}).Call(page); gErr != nil {
		m.logger.WithError(gErr).Warn("Failed to override geolocation")
	}

	if m.config.Browser.Timezone != "" {
		if tzErr := (proto.EmulationSetTimezoneOverride{
			TimezoneID: m.config.Browser.Timezone,
		}).Call(page); tzErr != nil {
			m.logger.WithError(tzErr).Warn("Failed to override timezone")
		}
	}

	// Mask the remaining automation fingerprints stealth does not cover.
	fingerprintJS := fmt.Sprintf(`() => {
		Object.defineProperty(navigator, 'webdriver', { get: () => undefined });
		Object.defineProperty(navigator, 'plugins', { get: () => [1, 2, 3] });
		Object.defineProperty(navigator, 'languages', { get: () => ['%s', '%s'] });
	}`, m.config.Browser.Locale, localePrimary(m.config.Browser.Locale))

	if jsErr := rod.Try(func() {
		page.MustEvalOnNewDocument(fingerprintJS)
	}); jsErr != nil {
		m.logger.WithError(jsErr).Warn("Failed to inject fingerprint overrides")
	}

	return page, nil
}

// localePrimary returns the primary language subtag of a BCP 47 locale,
// "zh" for "zh-CN".
func localePrimary(locale string) string {
	if len(locale) < 2 {
		return locale
	}
	return locale[:2]
}

// resolveChromePath finds the Chrome/Chromium binary to launch: the
// configured path when it exists, else a system-installed one.
func resolveChromePath(configured string) string {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured
		}
	}

	commonPaths := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
		"/usr/bin/google-chrome-stable",
		"/opt/google/chrome/chrome",
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	}

	for _, path := range commonPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}
