package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sirupsen/logrus"

	"priceradar/internal/config"
	"priceradar/internal/session"
	"priceradar/pkg/models"
	"priceradar/pkg/utils"
)

// AnthropicProvider drives the navigation loop with Claude.
type AnthropicProvider struct {
	client   anthropic.Client
	config   *config.Config
	platform models.Platform
	logger   *logrus.Entry
}

// NewAnthropicProvider creates a Claude-backed navigation agent.
func NewAnthropicProvider(cfg *config.Config, apiKey string) *AnthropicProvider {
	return &AnthropicProvider{
		client:   anthropic.NewClient(option.WithAPIKey(apiKey)),
		config:   cfg,
		platform: models.Platforms[cfg.Crawler.Platform],
		logger:   utils.GetLogger().WithField("provider", "anthropic"),
	}
}

// Resolve drives the session toward the goal using the shared agent loop.
func (p *AnthropicProvider) Resolve(ctx context.Context, sess *session.Session, goal models.NavigationGoal) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.LLM.Timeout)
	defer cancel()

	p.logger.WithField("goal", goal.Describe()).Info("Resolving navigation goal with Claude")
	return resolveGoal(ctx, sess, goal, p.platform, p.chat, p.config.Crawler.MaxAgentSteps, p.logger)
}

// chat sends one prompt to the Messages API and returns the text reply.
func (p *AnthropicProvider) chat(ctx context.Context, prompt string) (string, error) {
	model := anthropic.ModelClaude3_7SonnetLatest
	if p.config.LLM.Model != "" {
		model = anthropic.Model(p.config.LLM.Model)
	}

	response, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       model,
		MaxTokens:   int64(p.config.LLM.MaxTokens),
		Temperature: anthropic.Float(float64(p.config.LLM.Temperature)),
		Messages: []anthropic.MessageParam{{
			Content: []anthropic.ContentBlockParamUnion{{
				OfText: &anthropic.TextBlockParam{Text: prompt},
			}},
			Role: anthropic.MessageParamRoleUser,
		}},
	})
	if err != nil {
		return "", classifyProviderErr(err)
	}

	if len(response.Content) == 0 {
		return "", utils.NewAgentError(utils.AgentGoalNotUnderstood, "empty response from Claude")
	}

	var text string
	for _, content := range response.Content {
		text = content.AsText().Text
		break
	}
	if text == "" {
		return "", utils.NewAgentError(utils.AgentGoalNotUnderstood, "no text content in Claude response")
	}

	return text, nil
}

// Healthy checks if the Claude API is reachable with the configured key.
func (p *AnthropicProvider) Healthy(ctx context.Context) error {
	_, err := p.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.ModelClaude3_7SonnetLatest,
		MaxTokens: 16,
		Messages: []anthropic.MessageParam{{
			Content: []anthropic.ContentBlockParamUnion{{
				OfText: &anthropic.TextBlockParam{Text: "Hello"},
			}},
			Role: anthropic.MessageParamRoleUser,
		}},
	})
	if err != nil {
		return fmt.Errorf("claude health check failed: %w", err)
	}
	return nil
}

// Name returns the provider identifier.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// classifyProviderErr maps a transport or API failure to the agent
// error taxonomy.
func classifyProviderErr(err error) *utils.AgentError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return utils.NewAgentError(utils.AgentTimeout, err.Error())
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	if strings.Contains(msg, "401") || strings.Contains(msg, "403") ||
		strings.Contains(lower, "authentication") || strings.Contains(lower, "invalid api key") ||
		strings.Contains(lower, "invalid x-api-key") {
		return utils.NewAgentError(utils.AgentProviderAuth, msg)
	}

	return utils.NewAgentError(utils.AgentUnreachable, msg)
}
