package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "meituan", cfg.Crawler.Platform)
	assert.True(t, cfg.Crawler.UseAI)
	assert.Equal(t, 3, cfg.Crawler.MaxAttempts)
	assert.Equal(t, 25, cfg.Crawler.MaxAgentSteps)
	assert.Equal(t, 2*time.Second, cfg.Crawler.BackoffBase)
	assert.Equal(t, 60*time.Second, cfg.Crawler.BackoffMax)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, 375, cfg.Browser.ViewportW)
	assert.Equal(t, "zh-CN", cfg.Browser.Locale)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, 20, cfg.Throttle.RatePerMinute)
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
crawler:
  platform: eleme
  use_ai: false
  max_attempts: 5
llm:
  provider: deepseek
store:
  backend: none
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "eleme", cfg.Crawler.Platform)
	assert.False(t, cfg.Crawler.UseAI)
	assert.Equal(t, 5, cfg.Crawler.MaxAttempts)
	assert.Equal(t, "deepseek", cfg.LLM.Provider)
	assert.Equal(t, "none", cfg.Store.Backend)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PLATFORM", "eleme")
	t.Setenv("USE_AI", "false")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("STORE_BACKEND", "none")
	t.Setenv("CHROME_BIN", "/opt/chromium/chrome")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "eleme", cfg.Crawler.Platform)
	assert.False(t, cfg.Crawler.UseAI)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, "sk-test", cfg.LLM.OpenAIAPIKey)
	assert.Equal(t, "none", cfg.Store.Backend)
	assert.Equal(t, "/opt/chromium/chrome", cfg.Browser.ChromePath)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("TEST_API_KEY", "secret")

	assert.Equal(t, "key: secret", expandEnvVars("key: ${TEST_API_KEY}"))
	assert.Equal(t, "key: secret", expandEnvVars("key: $TEST_API_KEY"))
	assert.Equal(t, "key: ", expandEnvVars("key: ${UNSET_VAR_XYZ}"), "unset vars expand to empty")
}

func TestValidateRejectsBadDelays(t *testing.T) {
	cfg := &Config{}
	cfg.setDefaults()
	cfg.Crawler.QueryDelayMin = 10 * time.Second
	cfg.Crawler.QueryDelayMax = 2 * time.Second

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "query_delay_max")
}

func TestValidateRejectsUnknownProvider(t *testing.T) {
	cfg := &Config{}
	cfg.setDefaults()
	cfg.LLM.Provider = "mystery"

	assert.Error(t, cfg.Validate())
}

func TestResolveAI(t *testing.T) {
	tests := []struct {
		name         string
		useAI        bool
		provider     string
		anthropicKey string
		deepseekKey  string
		wantEnabled  bool
		wantProvider string
		wantDowngrad bool
	}{
		{
			name:  "ai off",
			useAI: false,
		},
		{
			name:         "requested provider has key",
			useAI:        true,
			provider:     "anthropic",
			anthropicKey: "sk-ant",
			wantEnabled:  true,
			wantProvider: "anthropic",
		},
		{
			name:         "falls back to provider with key",
			useAI:        true,
			provider:     "anthropic",
			deepseekKey:  "sk-deep",
			wantEnabled:  true,
			wantProvider: "deepseek",
		},
		{
			name:         "no keys downgrades",
			useAI:        true,
			provider:     "anthropic",
			wantDowngrad: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			cfg.setDefaults()
			cfg.Crawler.UseAI = tt.useAI
			cfg.LLM.Provider = tt.provider
			cfg.LLM.AnthropicAPIKey = tt.anthropicKey
			cfg.LLM.DeepseekAPIKey = tt.deepseekKey

			mode := cfg.ResolveAI()
			assert.Equal(t, tt.wantEnabled, mode.Enabled)
			assert.Equal(t, tt.wantProvider, mode.Provider)
			assert.Equal(t, tt.wantDowngrad, mode.Downgraded)
		})
	}
}

func TestAPIKeyFor(t *testing.T) {
	cfg := &Config{}
	cfg.LLM.AnthropicAPIKey = "a"
	cfg.LLM.DeepseekAPIKey = "d"
	cfg.LLM.OpenAIAPIKey = "o"

	assert.Equal(t, "a", cfg.APIKeyFor("anthropic"))
	assert.Equal(t, "d", cfg.APIKeyFor("deepseek"))
	assert.Equal(t, "o", cfg.APIKeyFor("openai"))
	assert.Equal(t, "", cfg.APIKeyFor("mystery"))
}
