package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/anthropics/ruabot/internal/biz/usecase"
)

// PromptsConfig contains all prompt configurations loaded from YAML
type PromptsConfig struct {
	Bot     BotPrompts     `yaml:"bot"`
	Planner PlannerPrompts `yaml:"planner"`
	Replyer ReplyerPrompts `yaml:"replyer"`
}

// BotPrompts describes the bot's identity
type BotPrompts struct {
	Name    string `yaml:"name"`
	Persona string `yaml:"persona"`
}

// PlannerPrompts contains planner prompts
type PlannerPrompts struct {
	Guidelines string `yaml:"guidelines"`
}

// ReplyerPrompts contains reply generation prompts
type ReplyerPrompts struct {
	SpeakInstruction string `yaml:"speak_instruction"`
	ApologyText      string `yaml:"apology_text"`
}

// LoadPromptsConfig loads prompts configuration from a YAML file. With an
// empty path a set of conventional locations is tried; a missing file
// yields the defaults, not an error.
func LoadPromptsConfig(configPath string) (*PromptsConfig, error) {
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/prompts.yaml",
			"/etc/ruabot/prompts.yaml",
		}
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "prompts.yaml"))
		}
		if wd, err := os.Getwd(); err == nil {
			paths = append(paths, filepath.Join(wd, "configs", "prompts.yaml"))
		}
	}

	var data []byte
	for _, p := range paths {
		if p == "" {
			continue
		}
		if b, err := os.ReadFile(p); err == nil {
			data = b
			break
		}
	}
	if data == nil {
		return DefaultPromptsConfig(), nil
	}

	var config PromptsConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse prompts.yaml: %w", err)
	}
	config.fillDefaults()
	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *PromptsConfig) fillDefaults() {
	defaults := DefaultPromptsConfig()

	if c.Bot.Name == "" {
		c.Bot.Name = defaults.Bot.Name
	}
	if c.Bot.Persona == "" {
		c.Bot.Persona = defaults.Bot.Persona
	}
	if c.Planner.Guidelines == "" {
		c.Planner.Guidelines = defaults.Planner.Guidelines
	}
	if c.Replyer.SpeakInstruction == "" {
		c.Replyer.SpeakInstruction = defaults.Replyer.SpeakInstruction
	}
	if c.Replyer.ApologyText == "" {
		c.Replyer.ApologyText = defaults.Replyer.ApologyText
	}
}

// DefaultPromptsConfig returns the default prompts configuration
func DefaultPromptsConfig() *PromptsConfig {
	base := usecase.DefaultPromptConfig
	return &PromptsConfig{
		Bot: BotPrompts{
			Name:    base.BotName,
			Persona: base.Persona,
		},
		Planner: PlannerPrompts{
			Guidelines: base.PlannerGuidelines,
		},
		Replyer: ReplyerPrompts{
			SpeakInstruction: base.SpeakInstruction,
			ApologyText:      base.ApologyText,
		},
	}
}
