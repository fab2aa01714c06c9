package config

import "time"

// Config holds all application configuration, grouped by concern.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"     validate:"required"`
	LLM      LLMConfig      `mapstructure:"llm"      validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"    validate:"required"`
	CORS     CORSConfig     `mapstructure:"cors"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"             validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level"        validate:"required,oneof=debug info warn error fatal"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// DatabaseConfig selects and configures the record store.
type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"       validate:"required,oneof=postgres sqlite"`
	URL         string `mapstructure:"url"          validate:"required"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// AuthConfig contains bearer token settings.
type AuthConfig struct {
	JWTSecret            string `mapstructure:"jwt_secret"             validate:"required,min=32"`
	TokenLifetimeMinutes int    `mapstructure:"token_lifetime_minutes" validate:"required,gt=0"`
}

// LLMConfig lists the providers to try, in order, and their credentials.
type LLMConfig struct {
	Providers []string      `mapstructure:"providers" validate:"required,min=1,dive,oneof=gemini openrouter ollama"`
	Timeout   time.Duration `mapstructure:"timeout"   validate:"gt=0"`

	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	GeminiModel  string `mapstructure:"gemini_model"`

	OpenRouterAPIKey  string `mapstructure:"openrouter_api_key"`
	OpenRouterModel   string `mapstructure:"openrouter_model"`
	OpenRouterBaseURL string `mapstructure:"openrouter_base_url" validate:"omitempty,url"`
	SiteURL           string `mapstructure:"site_url"`
	AppName           string `mapstructure:"app_name"`

	OllamaBaseURL string `mapstructure:"ollama_base_url" validate:"omitempty,url"`
	OllamaModel   string `mapstructure:"ollama_model"`
}

// QueueConfig selects the task queue backend and its retry policy.
type QueueConfig struct {
	Backend        string        `mapstructure:"backend"         validate:"required,oneof=memory asynq rabbitmq"`
	Name           string        `mapstructure:"name"            validate:"required"`
	Concurrency    int           `mapstructure:"concurrency"     validate:"gt=0"`
	BufferSize     int           `mapstructure:"buffer_size"     validate:"gt=0"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"     validate:"gte=0"`
	MaxAttempts    int           `mapstructure:"max_attempts"    validate:"gt=0"`
	Retention      time.Duration `mapstructure:"retention"       validate:"gte=0"`
	EmbeddedWorker bool          `mapstructure:"embedded_worker"`

	RedisAddr     string `mapstructure:"redis_addr"     validate:"required_if=Backend asynq,required_if=Backend rabbitmq"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"       validate:"gte=0"`
	AMQPURL       string `mapstructure:"amqp_url"       validate:"required_if=Backend rabbitmq"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}
