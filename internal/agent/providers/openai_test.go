package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"priceradar/internal/config"
	"priceradar/pkg/utils"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Crawler.Platform = "meituan"
	cfg.Crawler.MaxAgentSteps = 5
	cfg.LLM.MaxTokens = 1000
	cfg.LLM.Temperature = 0.1
	cfg.LLM.Timeout = 5 * time.Second
	return cfg
}

func chatReply(content string) string {
	resp := map[string]interface{}{
		"choices": []map[string]interface{}{
			{"finish_reason": "stop", "message": map[string]string{"role": "assistant", "content": content}},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestChatCompletionsProviderChat(t *testing.T) {
	t.Run("returns completion text", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/chat/completions", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

			var req chatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "deepseek-chat", req.Model)
			require.Len(t, req.Messages, 1)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(chatReply(`{"action":"dismiss"}`)))
		}))
		defer srv.Close()

		p := NewDeepSeekProvider(testConfig(t), "sk-test")
		p.baseURL = srv.URL

		reply, err := p.chat(context.Background(), "prompt")
		require.NoError(t, err)
		assert.Equal(t, `{"action":"dismiss"}`, reply)
	})

	t.Run("401 is a provider auth failure", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		defer srv.Close()

		p := NewOpenAIProvider(testConfig(t), "sk-bad")
		p.baseURL = srv.URL

		_, err := p.chat(context.Background(), "prompt")
		ae, ok := utils.AsAgentError(err)
		require.True(t, ok)
		assert.Equal(t, utils.AgentProviderAuth, ae.Kind)
		assert.False(t, ae.Retryable())
	})

	t.Run("server error is unreachable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		p := NewDeepSeekProvider(testConfig(t), "sk-test")
		p.baseURL = srv.URL

		_, err := p.chat(context.Background(), "prompt")
		ae, ok := utils.AsAgentError(err)
		require.True(t, ok)
		assert.Equal(t, utils.AgentUnreachable, ae.Kind)
		assert.True(t, ae.Retryable())
	})

	t.Run("empty choices is goal not understood", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer srv.Close()

		p := NewDeepSeekProvider(testConfig(t), "sk-test")
		p.baseURL = srv.URL

		_, err := p.chat(context.Background(), "prompt")
		ae, ok := utils.AsAgentError(err)
		require.True(t, ok)
		assert.Equal(t, utils.AgentGoalNotUnderstood, ae.Kind)
	})

	t.Run("connection refused is unreachable", func(t *testing.T) {
		p := NewDeepSeekProvider(testConfig(t), "sk-test")
		p.baseURL = "http://127.0.0.1:1"

		_, err := p.chat(context.Background(), "prompt")
		ae, ok := utils.AsAgentError(err)
		require.True(t, ok)
		assert.Equal(t, utils.AgentUnreachable, ae.Kind)
	})
}

func TestProviderNamesAndModels(t *testing.T) {
	cfg := testConfig(t)

	assert.Equal(t, "deepseek", NewDeepSeekProvider(cfg, "k").Name())
	assert.Equal(t, "openai", NewOpenAIProvider(cfg, "k").Name())
	assert.Equal(t, "deepseek-chat", NewDeepSeekProvider(cfg, "k").model)
	assert.Equal(t, "gpt-4o", NewOpenAIProvider(cfg, "k").model)

	cfg.LLM.Model = "custom-model"
	assert.Equal(t, "custom-model", NewDeepSeekProvider(cfg, "k").model)
}
