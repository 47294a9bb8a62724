package models

import "fmt"

// GoalKind tags the variant of a NavigationGoal.
type GoalKind string

const (
	GoalSetLocation     GoalKind = "set_location"
	GoalDismissBlockers GoalKind = "dismiss_blockers"
	GoalRecover         GoalKind = "recover_from_error"
)

// NavigationGoal is a tagged request to the navigation agent. It is
// created per orchestration step and discarded after resolution.
type NavigationGoal struct {
	Kind GoalKind
	// Location is set for GoalSetLocation.
	Location Location
	// ErrorKind is set for GoalRecover and names the failure the agent
	// should recover from (e.g. "rate_limited", "layout_mismatch").
	ErrorKind string
}

// SetLocationGoal builds a goal asking the agent to set the delivery
// address to the given location.
func SetLocationGoal(loc Location) NavigationGoal {
	return NavigationGoal{Kind: GoalSetLocation, Location: loc}
}

// DismissBlockersGoal builds a goal asking the agent to close any
// dialog, banner or mask blocking the page.
func DismissBlockersGoal() NavigationGoal {
	return NavigationGoal{Kind: GoalDismissBlockers}
}

// RecoverGoal builds a goal asking the agent to bring the page back to
// a usable state after the named failure.
func RecoverGoal(errorKind string) NavigationGoal {
	return NavigationGoal{Kind: GoalRecover, ErrorKind: errorKind}
}

// Describe renders the goal as a short human-readable label used in
// logs and usage records.
func (g NavigationGoal) Describe() string {
	switch g.Kind {
	case GoalSetLocation:
		return fmt.Sprintf("set_location(%s %s)", g.Location.City, g.Location.Address)
	case GoalRecover:
		return fmt.Sprintf("recover_from_error(%s)", g.ErrorKind)
	default:
		return string(g.Kind)
	}
}
