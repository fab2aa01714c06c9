package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g. CONSULT_SERVER_PORT.
const EnvPrefix = "CONSULT"

var defaults = map[string]any{
	"server.port":             8080,
	"server.log_level":        "info",
	"server.shutdown_timeout": 15 * time.Second,

	"database.driver":       "postgres",
	"database.url":          "",
	"database.auto_migrate": false,

	"auth.jwt_secret":             "",
	"auth.token_lifetime_minutes": 60,

	"llm.providers":           []string{"gemini", "openrouter"},
	"llm.timeout":             60 * time.Second,
	"llm.gemini_api_key":      "",
	"llm.gemini_model":        "gemini-1.5-flash",
	"llm.openrouter_api_key":  "",
	"llm.openrouter_model":    "meta-llama/llama-3.1-8b-instruct:free",
	"llm.openrouter_base_url": "https://openrouter.ai/api/v1",
	"llm.site_url":            "https://defineconsult.com",
	"llm.app_name":            "Define Consult",
	"llm.ollama_base_url":     "http://localhost:11434",
	"llm.ollama_model":        "llama3.1",

	"queue.backend":         "memory",
	"queue.name":            "consult",
	"queue.concurrency":     4,
	"queue.buffer_size":     100,
	"queue.retry_delay":     60 * time.Second,
	"queue.max_attempts":    3,
	"queue.retention":       24 * time.Hour,
	"queue.embedded_worker": true,
	"queue.redis_addr":      "",
	"queue.redis_password":  "",
	"queue.redis_db":        0,
	"queue.amqp_url":        "",

	"cors.allowed_origins": []string{},
}

// Load reads configuration from defaults, an optional config.yaml in the
// working directory, and CONSULT_-prefixed environment variables, in
// increasing order of precedence. The result is validated before return.
func Load() (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct tags and the rules that span fields.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	for _, p := range c.LLM.Providers {
		switch p {
		case "gemini":
			if c.LLM.GeminiAPIKey == "" {
				return errors.New("config validation failed: llm.gemini_api_key is required when gemini is enabled")
			}
		case "openrouter":
			if c.LLM.OpenRouterAPIKey == "" {
				return errors.New(
					"config validation failed: llm.openrouter_api_key is required when openrouter is enabled",
				)
			}
		}
	}
	if slices.Contains(c.LLM.Providers, "ollama") && c.LLM.OllamaBaseURL == "" {
		return errors.New("config validation failed: llm.ollama_base_url is required when ollama is enabled")
	}
	return nil
}
