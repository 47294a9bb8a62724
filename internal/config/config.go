package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration. It is constructed
// once at process start and passed into the orchestrator; no other
// component reads ambient environment state directly.
type Config struct {
	Crawler struct {
		Platform      string        `yaml:"platform" validate:"required"`
		UseAI         bool          `yaml:"use_ai"`
		Headless      bool          `yaml:"headless"`
		MaxAttempts   int           `yaml:"max_attempts" validate:"gte=1"`
		MaxAgentSteps int           `yaml:"max_agent_steps" validate:"gte=1"`
		BackoffBase   time.Duration `yaml:"backoff_base"`
		BackoffMax    time.Duration `yaml:"backoff_max"`
		QueryDelayMin time.Duration `yaml:"query_delay_min"`
		QueryDelayMax time.Duration `yaml:"query_delay_max"`
		Timeout       time.Duration `yaml:"timeout"`
	} `yaml:"crawler"`

	LLM struct {
		Provider        string        `yaml:"provider" validate:"oneof=anthropic deepseek openai"`
		AnthropicAPIKey string        `yaml:"anthropic_api_key"`
		DeepseekAPIKey  string        `yaml:"deepseek_api_key"`
		OpenAIAPIKey    string        `yaml:"openai_api_key"`
		Model           string        `yaml:"model"`
		MaxTokens       int           `yaml:"max_tokens"`
		Temperature     float32       `yaml:"temperature"`
		Timeout         time.Duration `yaml:"timeout"`
	} `yaml:"llm"`

	Browser struct {
		UserAgent    string `yaml:"user_agent"`
		ChromePath   string `yaml:"chrome_path"`
		ViewportW    int    `yaml:"viewport_width"`
		ViewportH    int    `yaml:"viewport_height"`
		Locale       string `yaml:"locale"`
		Timezone     string `yaml:"timezone"`
		StealthMode  bool   `yaml:"stealth_mode"`
		SlowMotionMS int    `yaml:"slow_motion_ms"`
	} `yaml:"browser"`

	Throttle struct {
		RatePerMinute int           `yaml:"rate_per_minute" validate:"gte=1"`
		Burst         int           `yaml:"burst" validate:"gte=1"`
		MaxFailures   int           `yaml:"max_failures" validate:"gte=1"`
		ResetTimeout  time.Duration `yaml:"reset_timeout"`
	} `yaml:"throttle"`

	Captcha struct {
		Provider  string        `yaml:"provider"`
		APIKey    string        `yaml:"api_key"`
		Timeout   time.Duration `yaml:"timeout"`
		AutoSolve bool          `yaml:"auto_solve"`
	} `yaml:"captcha"`

	Store struct {
		Backend string        `yaml:"backend" validate:"oneof=file redis none"`
		Path    string        `yaml:"path"`
		Redis   string        `yaml:"redis_url"`
		RedisDB int           `yaml:"redis_db"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"store"`

	Server struct {
		Enabled bool   `yaml:"enabled"`
		Host    string `yaml:"host"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// AIMode is the resolved AI configuration for one run.
type AIMode struct {
	Enabled    bool
	Provider   string
	APIKey     string
	Downgraded bool
}

// expandEnvVars expands environment variables in a string using ${VAR} or $VAR syntax
func expandEnvVars(s string) string {
	// ${VAR} expands to empty when unset, so an unconfigured key stays
	// an absent key instead of a literal placeholder.
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	s = re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})

	re2 := regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)
	s = re2.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[1:]
		if val := os.Getenv(varName); val != "" {
			return val
		}
		return match
	})

	return s
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	_ = godotenv.Load()

	config := &Config{}
	config.setDefaults()

	// Load from YAML file if it exists
	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			yamlContent := expandEnvVars(string(data))
			if err := yaml.Unmarshal([]byte(yamlContent), config); err != nil {
				return nil, err
			}
		}
	}

	// Override with environment variables
	config.loadFromEnv()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) setDefaults() {
	c.Crawler.Platform = "meituan"
	c.Crawler.UseAI = true
	c.Crawler.Headless = true
	c.Crawler.MaxAttempts = 3
	c.Crawler.MaxAgentSteps = 25
	c.Crawler.BackoffBase = 2 * time.Second
	c.Crawler.BackoffMax = 60 * time.Second
	c.Crawler.QueryDelayMin = 2 * time.Second
	c.Crawler.QueryDelayMax = 5 * time.Second
	c.Crawler.Timeout = 30 * time.Second

	c.LLM.Provider = "anthropic"
	c.LLM.Model = ""
	c.LLM.MaxTokens = 1000
	c.LLM.Temperature = 0.1
	c.LLM.Timeout = 120 * time.Second

	c.Browser.UserAgent = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
	c.Browser.ViewportW = 375
	c.Browser.ViewportH = 812
	c.Browser.Locale = "zh-CN"
	c.Browser.Timezone = "Asia/Shanghai"
	c.Browser.StealthMode = true
	c.Browser.SlowMotionMS = 50

	c.Throttle.RatePerMinute = 20
	c.Throttle.Burst = 5
	c.Throttle.MaxFailures = 5
	c.Throttle.ResetTimeout = 30 * time.Second

	c.Captcha.Provider = "2captcha"
	c.Captcha.Timeout = 120 * time.Second
	c.Captcha.AutoSolve = false

	c.Store.Backend = "file"
	c.Store.Path = "data"
	c.Store.Redis = "redis://localhost:6379"
	c.Store.Timeout = 5 * time.Second

	c.Server.Host = "0.0.0.0"
	c.Server.Port = 8080

	c.Logging.Level = "info"
	c.Logging.Format = "text"
}

// loadFromEnv loads configuration from environment variables.
func (c *Config) loadFromEnv() {
	if v := os.Getenv("PLATFORM"); v != "" {
		c.Crawler.Platform = v
	}

	if v := os.Getenv("USE_AI"); v != "" {
		c.Crawler.UseAI = v == "true" || v == "1"
	}

	if v := os.Getenv("HEADLESS"); v != "" {
		c.Crawler.Headless = v == "true" || v == "1"
	}

	if v := os.Getenv("LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		c.LLM.Model = v
	}

	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		c.LLM.AnthropicAPIKey = v
	}

	if v := os.Getenv("DEEPSEEK_API_KEY"); v != "" {
		c.LLM.DeepseekAPIKey = v
	}

	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.LLM.OpenAIAPIKey = v
	}

	if v := os.Getenv("CHROME_BIN"); v != "" {
		c.Browser.ChromePath = v
	}

	if v := os.Getenv("CAPTCHA_API_KEY"); v != "" {
		c.Captcha.APIKey = v
	}

	// Also support 2CAPTCHA_API_KEY for compatibility
	if v := os.Getenv("2CAPTCHA_API_KEY"); v != "" {
		c.Captcha.APIKey = v
	}

	if v := os.Getenv("STORE_BACKEND"); v != "" {
		c.Store.Backend = v
	}

	if v := os.Getenv("STORE_PATH"); v != "" {
		c.Store.Path = v
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Store.Redis = v
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Store.RedisDB = db
		}
	}

	if v := os.Getenv("SERVER_ENABLED"); v != "" {
		c.Server.Enabled = v == "true" || v == "1"
	}

	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Crawler.QueryDelayMax < c.Crawler.QueryDelayMin {
		return fmt.Errorf("invalid configuration: query_delay_max is below query_delay_min")
	}
	return nil
}

// APIKeyFor returns the configured API key for the given provider.
func (c *Config) APIKeyFor(provider string) string {
	switch provider {
	case "anthropic":
		return c.LLM.AnthropicAPIKey
	case "deepseek":
		return c.LLM.DeepseekAPIKey
	case "openai":
		return c.LLM.OpenAIAPIKey
	default:
		return ""
	}
}

// ResolveAI decides whether the AI agent is available for this run.
// When the requested provider has no credentials, another provider with
// credentials is selected; when none has credentials, AI mode is
// downgraded to off rather than failing. The downgrade is reported so
// the run can record it.
func (c *Config) ResolveAI() AIMode {
	if !c.Crawler.UseAI {
		return AIMode{}
	}

	if key := c.APIKeyFor(c.LLM.Provider); key != "" {
		return AIMode{Enabled: true, Provider: c.LLM.Provider, APIKey: key}
	}

	for _, provider := range []string{"anthropic", "deepseek", "openai"} {
		if key := c.APIKeyFor(provider); key != "" {
			return AIMode{Enabled: true, Provider: provider, APIKey: key}
		}
	}

	return AIMode{Downgraded: true}
}
