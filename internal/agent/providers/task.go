package providers

import (
	"encoding/json"
	"fmt"
	"strings"

	"priceradar/pkg/models"
)

// Action is one browser step the model asks the loop to perform, or the
// final verdict when Action is "done".
type Action struct {
	Action   string `json:"action"`
	Selector string `json:"selector,omitempty"`
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
	Seconds  int    `json:"seconds,omitempty"`
	Verdict  string `json:"verdict,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

const (
	VerdictSuccess = "SUCCESS"
	VerdictFailed  = "FAILED"
	VerdictCaptcha = "CAPTCHA"
)

// goalInstructions renders the storefront-specific task for a goal.
func goalInstructions(goal models.NavigationGoal, platform models.Platform) string {
	switch goal.Kind {
	case models.GoalSetLocation:
		return fmt.Sprintf(`Set the delivery address on the %s mobile storefront (%s).

Steps:
1. If the storefront home page is not open, navigate to %s.
2. Close any dialog, banner or mask blocking the page (click its close button or press Escape).
3. Tap the address bar at the top of the page.
4. If a city picker appears, choose "%s".
5. Type "%s" into the address search box.
6. Tap the first matching search suggestion.
7. Confirm the home page shows an address containing "%s".

The page is in Chinese. On a 403 or error page, reload and retry. Leave a second or two between steps.`,
			platform.Name, platform.H5URL, platform.H5URL,
			goal.Location.City, goal.Location.Address, goal.Location.Address)

	case models.GoalDismissBlockers:
		return `Close every dialog, coupon banner, app-download prompt or mask currently blocking the page so its main content is usable again. Do not navigate away and do not change the delivery address.`

	case models.GoalRecover:
		return fmt.Sprintf(`The deterministic crawler hit a %q failure on this page. Bring the page back to a usable storefront state: dismiss blockers, reload on error pages, and wait out transient throttling screens. Do not change the delivery address.`, goal.ErrorKind)

	default:
		return fmt.Sprintf("Reach the goal %q on the current page.", goal.Kind)
	}
}

// BuildPrompt renders one step of the agent conversation: the task, the
// action protocol, the page snapshot and the outcome of the previous
// step.
func BuildPrompt(goal models.NavigationGoal, platform models.Platform, snapshot string, step, maxSteps int, lastError string) string {
	var b strings.Builder

	b.WriteString("You are a browser automation agent.\n\nTASK:\n")
	b.WriteString(goalInstructions(goal, platform))
	b.WriteString(fmt.Sprintf("\n\nThis is step %d of at most %d. Reply with exactly ONE JSON object and nothing else, choosing one action:\n", step+1, maxSteps))
	b.WriteString(`{"action":"click","selector":"<css selector>"}
{"action":"click","text":"<visible text of the element>"}
{"action":"type","selector":"<css selector>","text":"<text to type>"}
{"action":"navigate","url":"<url>"}
{"action":"wait","seconds":<1-10>}
{"action":"dismiss"}
{"action":"done","verdict":"SUCCESS","detail":"<what confirms success>"}
{"action":"done","verdict":"FAILED","detail":"<why>"}
{"action":"done","verdict":"CAPTCHA","detail":"<what you see>"}
`)
	b.WriteString("\nUse \"done\" with CAPTCHA when a human verification challenge blocks progress.\n")

	if lastError != "" {
		b.WriteString("\nPREVIOUS STEP FAILED: ")
		b.WriteString(lastError)
		b.WriteString("\n")
	}

	b.WriteString("\nCURRENT PAGE:\n")
	b.WriteString(snapshot)

	return b.String()
}

// ParseAction parses the model's reply into an Action, tolerating
// markdown code fences around the JSON object.
func ParseAction(reply string) (Action, error) {
	text := StripFences(reply)

	var action Action
	if err := json.Unmarshal([]byte(text), &action); err != nil {
		return Action{}, fmt.Errorf("failed to parse agent reply as JSON action: %w", err)
	}
	if action.Action == "" {
		return Action{}, fmt.Errorf("agent reply has no action field")
	}
	return action, nil
}

// StripFences removes a surrounding markdown code block if present.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSuffix(text, "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}
