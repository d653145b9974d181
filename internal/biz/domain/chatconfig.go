package domain

// Trigger modes for the frequency controller.
const (
	TriggerModeCommand  = "command"
	TriggerModeMaxToken = "maxtoken"
)

// Engagement probability clamps.
const (
	MinFrequencyAdjust = 0.1
	MaxFrequencyAdjust = 5.0
	MinTalkValue       = 0.001
)

// ConfigLayer is one raw configuration layer (global, group or user).
// Values are scalars or nested ConfigLayer maps.
type ConfigLayer map[string]any

// ResolveLayers merges local over parent. A key present in local always
// wins, including explicit empty values; nested maps are merged
// recursively. Neither input is mutated.
func ResolveLayers(parent, local ConfigLayer) ConfigLayer {
	result := make(ConfigLayer, len(parent)+len(local))
	for k, v := range parent {
		result[k] = v
	}
	for k, v := range local {
		localMap, localOK := asLayer(v)
		parentMap, parentOK := asLayer(result[k])
		if localOK && parentOK {
			result[k] = ResolveLayers(parentMap, localMap)
			continue
		}
		result[k] = v
	}
	return result
}

func asLayer(v any) (ConfigLayer, bool) {
	switch m := v.(type) {
	case ConfigLayer:
		return m, true
	case map[string]any:
		return ConfigLayer(m), true
	}
	return nil, false
}

// ChatConfig is the resolved per-chat behavior configuration
type ChatConfig struct {
	Enabled         bool
	TriggerMode     string
	TriggerCommand  string
	TalkValue       float64
	FrequencyAdjust float64
	StreamEnabled   bool
	ToolsEnabled    bool
	EnabledTools    []string
}

// EngagementProbability returns the clamped reply probability for
// MaxToken mode.
func (c *ChatConfig) EngagementProbability() float64 {
	talk := c.TalkValue
	if talk <= 0 {
		talk = MinTalkValue
	}
	adjust := c.FrequencyAdjust
	if adjust < MinFrequencyAdjust {
		adjust = MinFrequencyAdjust
	}
	if adjust > MaxFrequencyAdjust {
		adjust = MaxFrequencyAdjust
	}
	p := talk * adjust
	if p > 1 {
		p = 1
	}
	return p
}

// DefaultChatConfig returns the config used when no layer is stored
func DefaultChatConfig() *ChatConfig {
	return &ChatConfig{
		Enabled:         true,
		TriggerMode:     TriggerModeCommand,
		TalkValue:       0.1,
		FrequencyAdjust: 1.0,
	}
}

// LearningSettings holds per-feature learning flags for one chat
type LearningSettings struct {
	ExpressionLearning bool
	UseExpressions     bool
	AutoCheck          bool
	JargonLearning     bool
	StickerLearning    bool
	KnowledgeGraph     bool
	HeartFlow          bool
	PersonProfiling    bool
	GroupProfiling     bool
	Summarization      bool
}

// DefaultLearningSettings enables everything, matching the global defaults
func DefaultLearningSettings() LearningSettings {
	return LearningSettings{
		ExpressionLearning: true,
		UseExpressions:     true,
		AutoCheck:          true,
		JargonLearning:     true,
		StickerLearning:    true,
		KnowledgeGraph:     true,
		HeartFlow:          true,
		PersonProfiling:    true,
		GroupProfiling:     true,
		Summarization:      true,
	}
}

// LearningSettingsFromLayer reads feature flags out of a resolved layer.
// Missing features keep their defaults.
func LearningSettingsFromLayer(layer ConfigLayer) LearningSettings {
	settings := DefaultLearningSettings()
	if layer == nil {
		return settings
	}
	settings.ExpressionLearning = featureEnabled(layer, "expression_learning", settings.ExpressionLearning)
	settings.UseExpressions = featureFlag(layer, "expression_learning", "use_expressions", settings.UseExpressions)
	settings.AutoCheck = featureFlag(layer, "expression_learning", "auto_check", settings.AutoCheck)
	settings.JargonLearning = featureEnabled(layer, "jargon_learning", settings.JargonLearning)
	settings.StickerLearning = featureEnabled(layer, "sticker_learning", settings.StickerLearning)
	settings.KnowledgeGraph = featureEnabled(layer, "knowledge_graph", settings.KnowledgeGraph)
	settings.HeartFlow = featureEnabled(layer, "heartflow", settings.HeartFlow)
	settings.PersonProfiling = featureEnabled(layer, "person_profiling", settings.PersonProfiling)
	settings.GroupProfiling = featureEnabled(layer, "group_profiling", settings.GroupProfiling)
	settings.Summarization = featureEnabled(layer, "summarization", settings.Summarization)
	return settings
}

func featureEnabled(layer ConfigLayer, feature string, fallback bool) bool {
	return featureFlag(layer, feature, "enabled", fallback)
}

func featureFlag(layer ConfigLayer, feature, key string, fallback bool) bool {
	sub, ok := asLayer(layer[feature])
	if !ok {
		return fallback
	}
	v, ok := sub[key]
	if !ok {
		return fallback
	}
	b, ok := v.(bool)
	if !ok {
		return fallback
	}
	return b
}
