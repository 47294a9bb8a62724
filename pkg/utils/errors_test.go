package utils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentErrorRetryable(t *testing.T) {
	tests := []struct {
		kind      AgentErrorKind
		retryable bool
	}{
		{AgentUnreachable, true},
		{AgentTimeout, true},
		{AgentGoalNotUnderstood, true},
		{AgentProviderAuth, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			err := NewAgentError(tt.kind, "boom")
			assert.Equal(t, tt.retryable, err.Retryable())
		})
	}
}

func TestErrorKindSurvivesWrapping(t *testing.T) {
	base := NewExtractionError(ExtractRateLimited, "403 page")
	wrapped := fmt.Errorf("query failed: %w", fmt.Errorf("attempt 2: %w", base))

	ee, ok := AsExtractionError(wrapped)
	require.True(t, ok)
	assert.Equal(t, ExtractRateLimited, ee.Kind)

	_, ok = AsAgentError(wrapped)
	assert.False(t, ok)
}

func TestFailKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"extraction kind is bare", NewExtractionError(ExtractEmptyResult, ""), "empty_result"},
		{"agent kind is prefixed", NewAgentError(AgentTimeout, ""), "agent_timeout"},
		{"session kind is prefixed", NewSessionError(SessionInitFailed, ""), "session_init_failed"},
		{"location kind is prefixed", NewLocationError(LocationUnstable, ""), "location_unstable"},
		{"wrapped keeps kind", fmt.Errorf("outer: %w", NewAgentError(AgentProviderAuth, "")), "agent_provider_auth"},
		{"plain error is unknown", fmt.Errorf("boom"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, FailKind(tt.err))
		})
	}
}
