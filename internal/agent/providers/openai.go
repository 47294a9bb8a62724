package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sirupsen/logrus"

	"priceradar/internal/config"
	"priceradar/internal/session"
	"priceradar/pkg/models"
	"priceradar/pkg/utils"
)

const (
	deepseekBaseURL = "https://api.deepseek.com/v1"
	openaiBaseURL   = "https://api.openai.com/v1"

	deepseekDefaultModel = "deepseek-chat"
	openaiDefaultModel   = "gpt-4o"
)

// chatMessage is a single message in a chat-completions request.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest is the request payload of the chat-completions endpoint.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
	Stream      bool          `json:"stream"`
}

// chatResponse is the subset of the chat-completions response we read.
type chatResponse struct {
	Choices []struct {
		FinishReason string      `json:"finish_reason"`
		Message      chatMessage `json:"message"`
	} `json:"choices"`
}

// ChatCompletionsProvider drives the navigation loop with any backend
// exposing the OpenAI chat-completions wire format. DeepSeek and OpenAI
// are variants of this provider differing only in base URL and default
// model.
type ChatCompletionsProvider struct {
	name     string
	baseURL  string
	apiKey   string
	model    string
	config   *config.Config
	platform models.Platform
	client   *http.Client
	logger   *logrus.Entry
}

// NewDeepSeekProvider creates a DeepSeek-backed navigation agent.
func NewDeepSeekProvider(cfg *config.Config, apiKey string) *ChatCompletionsProvider {
	return newChatCompletionsProvider(cfg, "deepseek", deepseekBaseURL, deepseekDefaultModel, apiKey)
}

// NewOpenAIProvider creates a GPT-backed navigation agent.
func NewOpenAIProvider(cfg *config.Config, apiKey string) *ChatCompletionsProvider {
	return newChatCompletionsProvider(cfg, "openai", openaiBaseURL, openaiDefaultModel, apiKey)
}

func newChatCompletionsProvider(cfg *config.Config, name, baseURL, defaultModel, apiKey string) *ChatCompletionsProvider {
	model := cfg.LLM.Model
	if model == "" {
		model = defaultModel
	}

	return &ChatCompletionsProvider{
		name:     name,
		baseURL:  baseURL,
		apiKey:   apiKey,
		model:    model,
		config:   cfg,
		platform: models.Platforms[cfg.Crawler.Platform],
		client:   &http.Client{Timeout: cfg.LLM.Timeout},
		logger:   utils.GetLogger().WithField("provider", name),
	}
}

// Resolve drives the session toward the goal using the shared agent loop.
func (p *ChatCompletionsProvider) Resolve(ctx context.Context, sess *session.Session, goal models.NavigationGoal) error {
	ctx, cancel := context.WithTimeout(ctx, p.config.LLM.Timeout)
	defer cancel()

	p.logger.WithField("goal", goal.Describe()).Info("Resolving navigation goal")
	return resolveGoal(ctx, sess, goal, p.platform, p.chat, p.config.Crawler.MaxAgentSteps, p.logger)
}

// chat sends one prompt to the chat-completions endpoint and returns
// the text reply.
func (p *ChatCompletionsProvider) chat(ctx context.Context, prompt string) (string, error) {
	payload := chatRequest{
		Model:       p.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: float64(p.config.LLM.Temperature),
		MaxTokens:   p.config.LLM.MaxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", utils.NewAgentError(utils.AgentGoalNotUnderstood, fmt.Sprintf("failed to encode request: %v", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", utils.NewAgentError(utils.AgentUnreachable, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", classifyProviderErr(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", utils.NewAgentError(utils.AgentUnreachable, err.Error())
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", utils.NewAgentError(utils.AgentProviderAuth, fmt.Sprintf("%s returned status %d", p.name, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return "", utils.NewAgentError(utils.AgentUnreachable, fmt.Sprintf("%s returned status %d: %s", p.name, resp.StatusCode, truncate(string(data), 200)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", utils.NewAgentError(utils.AgentGoalNotUnderstood, fmt.Sprintf("failed to decode response: %v", err))
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", utils.NewAgentError(utils.AgentGoalNotUnderstood, "empty completion from "+p.name)
	}

	return parsed.Choices[0].Message.Content, nil
}

// Healthy checks if the endpoint is reachable with the configured key.
func (p *ChatCompletionsProvider) Healthy(ctx context.Context) error {
	if _, err := p.chat(ctx, "Reply with OK."); err != nil {
		return fmt.Errorf("%s health check failed: %w", p.name, err)
	}
	return nil
}

// Name returns the provider identifier.
func (p *ChatCompletionsProvider) Name() string {
	return p.name
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
