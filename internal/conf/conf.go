package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"

	"github.com/anthropics/ruabot/internal/biz/usecase"
)

// Config represents application configuration
type Config struct {
	// OneBot transport configuration
	OneBot OneBotConfig

	// LLM configuration
	LLM LLMConfig

	// Database configuration
	DB DBConfig

	// MCP tool backend configuration (optional)
	MCP MCPConfig

	// Learning fan-out configuration
	Learning LearningConfig

	// Prompts configuration (loaded from YAML)
	Prompts *PromptsConfig

	// Debug mode
	Debug bool `env:"DEBUG"`
}

// OneBotConfig contains the OneBot v11 transport configuration
type OneBotConfig struct {
	// WSURL is the forward-WebSocket endpoint of the OneBot implementation
	WSURL       string `env:"ONEBOT_WS_URL" envDefault:"ws://127.0.0.1:6700"`
	AccessToken string `env:"ONEBOT_ACCESS_TOKEN"`
	// BotUserID is the bot's own QQ number, used for mention detection
	BotUserID string `env:"ONEBOT_BOT_USER_ID"`
	BotName   string `env:"BOT_NAME"`
}

// LLMConfig contains the OpenAI-compatible LLM configuration
type LLMConfig struct {
	APIKey  string `env:"LLM_API_KEY"`
	BaseURL string `env:"LLM_BASE_URL"`
	Model   string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`
	// ThinkLevel selects the expression selector path: simple or advanced
	ThinkLevel string `env:"LLM_THINK_LEVEL" envDefault:"simple"`
	// StickerUseLLM switches sticker usage inference from keyword
	// heuristics to an LLM call
	StickerUseLLM bool `env:"STICKER_USE_LLM"`
}

// DBConfig contains database configuration
type DBConfig struct {
	Path string `env:"DB_PATH"`
}

// MCPConfig contains the MCP tool server configuration
type MCPConfig struct {
	ServerPath string `env:"MCP_SERVER_PATH"`
}

// LearningConfig sizes the background learning fan-out
type LearningConfig struct {
	Workers   int `env:"LEARNING_WORKERS" envDefault:"3"`
	QueueSize int `env:"LEARNING_QUEUE_SIZE" envDefault:"256"`
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if cfg.DB.Path == "" {
		homeDir, _ := os.UserHomeDir()
		cfg.DB.Path = filepath.Join(homeDir, ".ruabot", "ruabot.db")
	}

	prompts, err := LoadPromptsConfig(os.Getenv("PROMPTS_CONFIG_PATH"))
	if err != nil {
		return nil, fmt.Errorf("load prompts config: %w", err)
	}
	cfg.Prompts = prompts

	return cfg, nil
}

// ToPromptConfig converts to the usecase prompt configuration
func (c *Config) ToPromptConfig() usecase.PromptConfig {
	cfg := usecase.DefaultPromptConfig
	if c.OneBot.BotName != "" {
		cfg.BotName = c.OneBot.BotName
	}
	if c.Prompts == nil {
		return cfg
	}
	if c.Prompts.Bot.Name != "" {
		cfg.BotName = c.Prompts.Bot.Name
	}
	if c.Prompts.Bot.Persona != "" {
		cfg.Persona = c.Prompts.Bot.Persona
	}
	if c.Prompts.Planner.Guidelines != "" {
		cfg.PlannerGuidelines = c.Prompts.Planner.Guidelines
	}
	if c.Prompts.Replyer.SpeakInstruction != "" {
		cfg.SpeakInstruction = c.Prompts.Replyer.SpeakInstruction
	}
	if c.Prompts.Replyer.ApologyText != "" {
		cfg.ApologyText = c.Prompts.Replyer.ApologyText
	}
	return cfg
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return &ConfigError{Field: "LLM_API_KEY", Message: "required"}
	}
	if c.OneBot.WSURL == "" {
		return &ConfigError{Field: "ONEBOT_WS_URL", Message: "required"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
