package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
)

// Session represents one live browser context. It is owned exclusively
// by the orchestrator for the duration of a crawl run; the navigation
// agent and the extraction engine borrow it one at a time, never
// concurrently.
type Session struct {
	browser   *rod.Browser
	page      *rod.Page
	cleanup   func()
	createdAt time.Time
	closeOnce sync.Once
}

// CreatedAt returns when the session was acquired.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Navigate drives the page to the given URL and waits for the load
// event, bounded by timeout.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := rod.Try(func() {
		s.page.Context(navCtx).MustNavigate(url).MustWaitLoad()
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Reload reloads the current page and waits for it to load.
func (s *Session) Reload() error {
	return rod.Try(func() {
		s.page.MustReload().MustWaitLoad()
	})
}

// CurrentURL returns the URL of the current page, or "" on failure.
func (s *Session) CurrentURL() string {
	var url string
	_ = rod.Try(func() {
		url = s.page.MustInfo().URL
	})
	return url
}

// HTML returns the full HTML content of the current page.
func (s *Session) HTML() (string, error) {
	var html string
	err := rod.Try(func() {
		html = s.page.MustHTML()
	})
	if err != nil {
		return "", fmt.Errorf("failed to get page HTML: %w", err)
	}
	return html, nil
}

// VisibleText returns the rendered text of the page body.
func (s *Session) VisibleText() (string, error) {
	var text string
	err := rod.Try(func() {
		text = s.page.MustEval(`() => document.body ? document.body.innerText : ""`).Str()
	})
	if err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	return text, nil
}

// Click clicks the first element matching the CSS selector.
func (s *Session) Click(selector string) error {
	err := rod.Try(func() {
		s.page.MustElement(selector).MustClick()
	})
	if err != nil {
		return fmt.Errorf("failed to click %q: %w", selector, err)
	}
	return nil
}

// ClickByText clicks the first element whose text matches the given
// string.
func (s *Session) ClickByText(text string) error {
	err := rod.Try(func() {
		s.page.MustElementR("*", text).MustClick()
	})
	if err != nil {
		return fmt.Errorf("failed to click element with text %q: %w", text, err)
	}
	return nil
}

// Type focuses the first element matching the selector, clears it and
// types the text.
func (s *Session) Type(selector, text string) error {
	err := rod.Try(func() {
		el := s.page.MustElement(selector)
		el.MustClick()
		el.MustSelectAllText()
		el.MustInput(text)
	})
	if err != nil {
		return fmt.Errorf("failed to type into %q: %w", selector, err)
	}
	return nil
}

// PressEnter sends an Enter keystroke to the page.
func (s *Session) PressEnter() error {
	return rod.Try(func() {
		s.page.Keyboard.MustType(input.Enter)
	})
}

// PressEscape sends an Escape keystroke to the page.
func (s *Session) PressEscape() error {
	return rod.Try(func() {
		s.page.Keyboard.MustType(input.Escape)
	})
}

// overlayCloseSelectors match the close affordances of the storefront's
// promotional dialogs and masks.
var overlayCloseSelectors = []string{
	`[class*="close"]`,
	`[class*="Close"]`,
	`[class*="mask"]`,
	`[class*="dialog-cancel"]`,
}

// DismissOverlays makes a best-effort pass at closing small blocking
// dialogs: it clicks visible close buttons no larger than a thumb
// target, then presses Escape. Errors are swallowed; overlays that
// survive are the navigation agent's problem.
func (s *Session) DismissOverlays() {
	for _, selector := range overlayCloseSelectors {
		_ = rod.Try(func() {
			elements := s.page.MustElements(selector)
			handled := 0
			for _, el := range elements {
				if handled >= 3 {
					break
				}
				if !el.MustVisible() {
					continue
				}
				size := el.MustEval(`() => ({w: this.offsetWidth, h: this.offsetHeight})`)
				if size.Get("w").Int() < 100 && size.Get("h").Int() < 100 {
					el.MustClick()
					handled++
					time.Sleep(300 * time.Millisecond)
				}
			}
		})
	}
	_ = s.PressEscape()
	time.Sleep(200 * time.Millisecond)
}

// Snapshot returns a compact textual description of the current page
// for the navigation agent: URL, title, trimmed visible text and an
// inventory of clickable elements with workable selectors.
func (s *Session) Snapshot(maxTextChars int) (string, error) {
	var snapshot string
	err := rod.Try(func() {
		snapshot = s.page.MustEval(snapshotJS, maxTextChars).Str()
	})
	if err != nil {
		return "", fmt.Errorf("failed to snapshot page: %w", err)
	}
	return strings.TrimSpace(snapshot), nil
}

const snapshotJS = `(maxChars) => {
	const lines = [];
	lines.push("URL: " + location.href);
	lines.push("TITLE: " + document.title);

	const clickable = [];
	const candidates = document.querySelectorAll(
		'a, button, input, [role="button"], [class*="btn"], [class*="close"], [class*="item"], [class*="poi"], [class*="suggest"]');
	let idx = 0;
	for (const el of candidates) {
		if (idx >= 40) break;
		const rect = el.getBoundingClientRect();
		if (rect.width === 0 || rect.height === 0) continue;
		const text = (el.innerText || el.value || el.placeholder || "").trim().slice(0, 40);
		let sel = el.tagName.toLowerCase();
		if (el.id) sel += "#" + el.id;
		else if (el.className && typeof el.className === "string") {
			const cls = el.className.trim().split(/\s+/).slice(0, 2).join(".");
			if (cls) sel += "." + cls;
		}
		clickable.push("  [" + idx + "] " + sel + " :: " + text);
		idx++;
	}
	lines.push("CLICKABLE:");
	lines.push(clickable.join("\n"));

	const text = document.body ? document.body.innerText : "";
	lines.push("TEXT:");
	lines.push(text.replace(/\n{2,}/g, "\n").slice(0, maxChars));
	return lines.join("\n");
}`

// close tears the session down; safe to call multiple times.
func (s *Session) close() {
	s.closeOnce.Do(func() {
		if s.page != nil {
			_ = rod.Try(func() { s.page.MustClose() })
		}
		if s.browser != nil {
			_ = rod.Try(func() { s.browser.MustClose() })
		}
		if s.cleanup != nil {
			s.cleanup()
		}
	})
}
