package usecase

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
)

// ConfigUsecase resolves layered chat configuration: global first, then the
// group or user layer on top. Present keys win, even explicitly empty ones.
type ConfigUsecase struct {
	configRepo repo.ConfigRepo
	log        *zap.SugaredLogger
}

// NewConfigUsecase creates a config resolver
func NewConfigUsecase(configRepo repo.ConfigRepo, log *zap.SugaredLogger) *ConfigUsecase {
	return &ConfigUsecase{configRepo: configRepo, log: log}
}

// resolvedLayer merges the global layer with the chat-scoped layer
func (uc *ConfigUsecase) resolvedLayer(ctx context.Context, chatID string) domain.ConfigLayer {
	global := domain.ConfigLayer{}
	if uc.configRepo != nil {
		if layer, err := uc.configRepo.GetLayer(ctx, repo.ConfigTypeGlobal, ""); err != nil {
			uc.log.Warnw("read global config layer", "err", err)
		} else if layer != nil {
			global = layer
		}
	}

	configType, targetID := scopeForChat(chatID)
	if uc.configRepo == nil || targetID == "" {
		return global
	}
	local, err := uc.configRepo.GetLayer(ctx, configType, targetID)
	if err != nil {
		uc.log.Warnw("read chat config layer", "chat", chatID, "err", err)
		return global
	}
	if local == nil {
		return global
	}
	return domain.ResolveLayers(global, local)
}

// ChatConfig resolves the behavior config for a chat
func (uc *ConfigUsecase) ChatConfig(ctx context.Context, chatID string) *domain.ChatConfig {
	layer := uc.resolvedLayer(ctx, chatID)
	cfg := domain.DefaultChatConfig()
	if layer == nil {
		return cfg
	}

	if v, ok := layer["enabled"].(bool); ok {
		cfg.Enabled = v
	}
	if v, ok := layer["trigger_mode"].(string); ok {
		cfg.TriggerMode = v
	}
	if v, ok := layer["trigger_command"].(string); ok {
		cfg.TriggerCommand = v
	}
	if v, ok := asFloat(layer["talk_value"]); ok {
		cfg.TalkValue = v
	}
	if v, ok := asFloat(layer["frequency_adjust"]); ok {
		cfg.FrequencyAdjust = v
	}
	if v, ok := layer["stream_enabled"].(bool); ok {
		cfg.StreamEnabled = v
	}
	if v, ok := layer["tools_enabled"].(bool); ok {
		cfg.ToolsEnabled = v
	}
	if tools, ok := layer["enabled_tools"].([]any); ok {
		for _, t := range tools {
			if name, ok := t.(string); ok {
				cfg.EnabledTools = append(cfg.EnabledTools, name)
			}
		}
	}
	return cfg
}

// LearningSettings resolves per-feature learning flags for a chat
func (uc *ConfigUsecase) LearningSettings(ctx context.Context, chatID string) domain.LearningSettings {
	layer := uc.resolvedLayer(ctx, chatID)
	sub, _ := layer["learning"].(map[string]any)
	if sub == nil {
		if typed, ok := layer["learning"].(domain.ConfigLayer); ok {
			sub = typed
		}
	}
	return domain.LearningSettingsFromLayer(domain.ConfigLayer(sub))
}

// scopeForChat maps a chat key to its config scope
func scopeForChat(chatID string) (configType, targetID string) {
	switch {
	case strings.HasPrefix(chatID, "group:"):
		return repo.ConfigTypeGroup, strings.TrimPrefix(chatID, "group:")
	case strings.HasPrefix(chatID, "user:"):
		return repo.ConfigTypeUser, strings.TrimPrefix(chatID, "user:")
	}
	return repo.ConfigTypeGlobal, ""
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
