package agent

import (
	"context"

	"priceradar/internal/session"
	"priceradar/pkg/models"
)

// Provider is the navigation agent capability: given a live session and
// a goal, drive the browser until the goal is reached or fails. The
// orchestrator depends only on this interface, never on a specific LLM
// backend.
type Provider interface {
	// Resolve drives the session toward the goal. Failures are reported
	// as *utils.AgentError so the orchestrator can apply its retry and
	// fallback policy.
	Resolve(ctx context.Context, sess *session.Session, goal models.NavigationGoal) error

	// Healthy checks if the provider is reachable and authenticated.
	Healthy(ctx context.Context) error

	// Name returns the provider identifier (anthropic, deepseek, openai).
	Name() string
}
