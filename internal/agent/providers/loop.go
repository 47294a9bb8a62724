package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"priceradar/internal/session"
	"priceradar/pkg/models"
	"priceradar/pkg/utils"
)

// chatFunc sends one prompt to the backing model and returns its text
// reply. Implementations classify their transport failures as
// *utils.AgentError before returning.
type chatFunc func(ctx context.Context, prompt string) (string, error)

const snapshotChars = 4000

// resolveGoal runs the observe-decide-act loop shared by every
// provider: snapshot the page, ask the model for the next action,
// execute it, until the model declares a verdict or the step budget
// runs out.
func resolveGoal(ctx context.Context, sess *session.Session, goal models.NavigationGoal, platform models.Platform, chat chatFunc, maxSteps int, logger *logrus.Entry) error {
	lastError := ""

	for step := 0; step < maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return utils.NewAgentError(utils.AgentTimeout, err.Error())
		}

		snapshot, err := sess.Snapshot(snapshotChars)
		if err != nil {
			return utils.NewAgentError(utils.AgentUnreachable, fmt.Sprintf("page snapshot failed: %v", err))
		}

		reply, err := chat(ctx, BuildPrompt(goal, platform, snapshot, step, maxSteps, lastError))
		if err != nil {
			return err
		}

		action, err := ParseAction(reply)
		if err != nil {
			return utils.NewAgentError(utils.AgentGoalNotUnderstood, err.Error())
		}

		logger.WithFields(logrus.Fields{
			"step":   step + 1,
			"action": action.Action,
			"goal":   goal.Describe(),
		}).Debug("Agent step")

		if action.Action == "done" {
			switch action.Verdict {
			case VerdictSuccess:
				return nil
			case VerdictCaptcha:
				return utils.NewAgentError(utils.AgentUnreachable, "captcha challenge reported: "+action.Detail)
			case VerdictFailed:
				return utils.NewAgentError(utils.AgentUnreachable, action.Detail)
			default:
				return utils.NewAgentError(utils.AgentGoalNotUnderstood, "unknown verdict: "+action.Verdict)
			}
		}

		lastError = ""
		if execErr := executeAction(ctx, sess, action); execErr != nil {
			// Feed the failure back so the model can pick another element.
			lastError = execErr.Error()
			logger.WithError(execErr).Debug("Agent action failed")
		}
	}

	return utils.NewAgentError(utils.AgentTimeout, fmt.Sprintf("goal not reached within %d steps", maxSteps))
}

// executeAction performs one model-chosen action against the session.
func executeAction(ctx context.Context, sess *session.Session, action Action) error {
	switch action.Action {
	case "click":
		if action.Selector != "" {
			return sess.Click(action.Selector)
		}
		return sess.ClickByText(action.Text)
	case "type":
		return sess.Type(action.Selector, action.Text)
	case "navigate":
		return sess.Navigate(ctx, action.URL, 30*time.Second)
	case "wait":
		seconds := action.Seconds
		if seconds < 1 {
			seconds = 1
		}
		if seconds > 10 {
			seconds = 10
		}
		select {
		case <-time.After(time.Duration(seconds) * time.Second):
		case <-ctx.Done():
		}
		return nil
	case "dismiss":
		sess.DismissOverlays()
		return nil
	default:
		return fmt.Errorf("unsupported action %q", action.Action)
	}
}
