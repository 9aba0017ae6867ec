package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"prompt_json_structurer/structurer"
)

const (
	ProviderGroq     = "groq"
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderMock     = "mock"

	DefaultAPIKeyEnv  = "GROQ_API_KEY"
	legacyAPIKeyEnv   = "VITE_GROQ_API_KEY"
	DefaultServerAddr = ":8080"
	defaultTimeout    = 60
)

// Config holds the application settings.
type Config struct {
	LLM        LLMConfig `json:"llm" yaml:"llm"`
	ServerAddr string    `json:"server_addr,omitempty" yaml:"server_addr,omitempty"`
	LogLevel   string    `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	// Session limits for the HTTP server; zero means the server default.
	MaxSessions        int `json:"max_sessions,omitempty" yaml:"max_sessions,omitempty"`
	SessionIdleMinutes int `json:"session_idle_minutes,omitempty" yaml:"session_idle_minutes,omitempty"`
}

// LLMConfig selects and configures the completion provider.
type LLMConfig struct {
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	APIKey   string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// APIKeyEnv names the environment variable holding the key when APIKey is empty.
	APIKeyEnv      string `json:"api_key_env,omitempty" yaml:"api_key_env,omitempty"`
	BaseURL        string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`
}

// Load reads .env into the environment, then the config file at path when
// one is given (.yaml/.yml as YAML, anything else as JSON), and fills
// defaults. The result is not validated; call Validate before use.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, &cfg)
		default:
			err = json.Unmarshal(data, &cfg)
		}
		if err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderGroq
	}
	c.LLM.Provider = strings.ToLower(strings.TrimSpace(c.LLM.Provider))
	if c.LLM.Model == "" && c.LLM.Provider == ProviderGroq {
		c.LLM.Model = structurer.DefaultModel
	}
	if c.LLM.BaseURL == "" && c.LLM.Provider == ProviderGroq {
		c.LLM.BaseURL = structurer.DefaultGroqBaseURL
	}
	if c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = DefaultAPIKeyEnv
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = firstNonEmpty(
			strings.TrimSpace(os.Getenv(c.LLM.APIKeyEnv)),
			strings.TrimSpace(os.Getenv(legacyAPIKeyEnv)),
		)
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultTimeout
	}
	if c.ServerAddr == "" {
		c.ServerAddr = DefaultServerAddr
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate reports configuration that would make every request fail.
func (c Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderMock:
		return nil
	case ProviderGroq, ProviderOpenAI:
	case ProviderDeepSeek:
		// DeepSeek exposes an OpenAI-compatible API only at its own endpoint.
		if c.LLM.BaseURL == "" {
			return errors.New("llm provider deepseek requires base_url (OpenAI-compatible endpoint)")
		}
	default:
		return fmt.Errorf("llm provider %s not supported", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("llm provider %s requires a model", c.LLM.Provider)
	}
	if c.LLM.APIKey == "" {
		return fmt.Errorf("%w: set %s in your .env file or llm.api_key in the config", structurer.ErrMissingAPIKey, c.LLM.APIKeyEnv)
	}
	return nil
}

// Settings converts the LLM section for the structurer clients.
func (c Config) Settings() structurer.LLMSettings {
	return structurer.LLMSettings{
		Provider: c.LLM.Provider,
		Model:    c.LLM.Model,
		APIKey:   c.LLM.APIKey,
		BaseURL:  c.LLM.BaseURL,
		Timeout:  time.Duration(c.LLM.TimeoutSeconds) * time.Second,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
