package orchestrator

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

// Selector ladders for the storefront address picker. Class names on
// both platforms are minified but keep stable substrings.
var (
	addressEntrySelectors = []string{
		`[class*="address"]`,
		`[class*="location"]`,
		`[class*="poi"]`,
	}
	addressInputSelectors = []string{
		`input[placeholder*="地址"]`,
		`input[placeholder*="搜"]`,
		`input`,
	}
	suggestionSelectors = []string{
		`[class*="suggest"] li`,
		`[class*="poi"] li`,
		`[class*="list"] li`,
	}
)

const locatorAttempts = 2

// DeterministicLocator sets the delivery address with a fixed selector
// script instead of the AI agent. It is the fallback path and the only
// path when AI is off.
type DeterministicLocator struct {
	config   *config.Config
	platform models.Platform
	logger   *logrus.Logger
	sleep    func(time.Duration)
}

// NewDeterministicLocator creates the fallback locator for the
// configured platform.
func NewDeterministicLocator(cfg *config.Config) *DeterministicLocator {
	return &DeterministicLocator{
		config:   cfg,
		platform: models.Platforms[cfg.Crawler.Platform],
		logger:   utils.GetLogger(),
		sleep:    time.Sleep,
	}
}

// SetLocation walks the address picker: open it, search the target
// address, take the first suggestion, then confirm the storefront
// header reflects the address. Two attempts, then LocationError.
func (d *DeterministicLocator) SetLocation(ctx context.Context, sess *session.Session, loc models.Location) error {
	var lastErr error

	for attempt := 1; attempt <= locatorAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		d.logger.WithFields(logrus.Fields{
			"location": loc.Name,
			"attempt":  attempt,
		}).Info("Setting delivery location deterministically")

		if err := d.setOnce(ctx, sess, loc); err != nil {
			lastErr = err
			d.logger.WithError(err).Warn("Deterministic location attempt failed")
			continue
		}

		if d.confirm(sess, loc) {
			d.logger.WithField("location", loc.Name).Info("Delivery location confirmed")
			return nil
		}
		lastErr = fmt.Errorf("storefront header does not reflect address %q", loc.Address)
	}

	return utils.NewLocationError(utils.LocationUnstable, lastErr.Error())
}

func (d *DeterministicLocator) setOnce(ctx context.Context, sess *session.Session, loc models.Location) error {
	if err := sess.Navigate(ctx, d.platform.H5URL, d.config.Crawler.Timeout); err != nil {
		return err
	}
	sess.DismissOverlays()

	if err := clickFirst(sess, addressEntrySelectors); err != nil {
		// Some storefront variants label the picker with the current city.
		if err := sess.ClickByText(loc.City); err != nil {
			return fmt.Errorf("address picker not found: %w", err)
		}
	}
	d.sleep(time.Second)

	if err := typeFirst(sess, addressInputSelectors, loc.Address); err != nil {
		return fmt.Errorf("address input not found: %w", err)
	}
	_ = sess.PressEnter()
	d.sleep(1500 * time.Millisecond)

	if err := clickFirst(sess, suggestionSelectors); err != nil {
		// Fall back to clicking a suggestion containing the street name.
		if err := sess.ClickByText(streetFragment(loc)); err != nil {
			return fmt.Errorf("no address suggestion to pick: %w", err)
		}
	}
	d.sleep(2 * time.Second)
	return nil
}

// confirm checks that the rendered page mentions the target address.
func (d *DeterministicLocator) confirm(sess *session.Session, loc models.Location) bool {
	text, err := sess.VisibleText()
	if err != nil {
		return false
	}
	fragment := streetFragment(loc)
	return strings.Contains(text, fragment) || strings.Contains(text, loc.Name)
}

// streetFragment extracts the street part of the address, the piece the
// storefront header actually displays.
func streetFragment(loc models.Location) string {
	if idx := strings.LastIndex(loc.Address, "区"); idx >= 0 {
		if frag := loc.Address[idx+len("区"):]; frag != "" {
			return frag
		}
	}
	if loc.Name != "" {
		return loc.Name
	}
	return loc.Address
}

func clickFirst(sess *session.Session, selectors []string) error {
	var lastErr error
	for _, sel := range selectors {
		if err := sess.Click(sel); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}

func typeFirst(sess *session.Session, selectors []string, text string) error {
	var lastErr error
	for _, sel := range selectors {
		if err := sess.Type(sel, text); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return lastErr
}
