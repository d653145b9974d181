package domain

import (
	"math"
	"testing"
)

func TestResolveLayers_LocalWins(t *testing.T) {
	parent := ConfigLayer{
		"trigger_mode":    "command",
		"trigger_command": "/bot",
		"talk_value":      0.2,
	}
	local := ConfigLayer{
		"trigger_mode":    "maxtoken",
		"trigger_command": "", // explicit empty must override
	}

	merged := ResolveLayers(parent, local)

	if merged["trigger_mode"] != "maxtoken" {
		t.Errorf("trigger_mode = %v", merged["trigger_mode"])
	}
	if merged["trigger_command"] != "" {
		t.Errorf("explicit empty string must win, got %v", merged["trigger_command"])
	}
	if merged["talk_value"] != 0.2 {
		t.Errorf("unset key must inherit, got %v", merged["talk_value"])
	}
}

func TestResolveLayers_NestedMerge(t *testing.T) {
	parent := ConfigLayer{
		"expression_learning": ConfigLayer{"enabled": true, "auto_check": true},
	}
	local := ConfigLayer{
		"expression_learning": ConfigLayer{"enabled": false},
	}

	merged := ResolveLayers(parent, local)

	settings := LearningSettingsFromLayer(merged)
	if settings.ExpressionLearning {
		t.Error("local disabled flag must win")
	}
	if !settings.AutoCheck {
		t.Error("auto_check must inherit from parent")
	}
}

func TestResolveLayers_DoesNotMutateInputs(t *testing.T) {
	parent := ConfigLayer{"a": 1}
	local := ConfigLayer{"a": 2, "b": 3}
	_ = ResolveLayers(parent, local)
	if parent["a"] != 1 || len(parent) != 1 {
		t.Error("parent layer was mutated")
	}
}

func TestEngagementProbability_Clamps(t *testing.T) {
	cases := []struct {
		talk, adjust, want float64
	}{
		{0.1, 1.0, 0.1},
		{0.5, 5.0, 1.0},  // product clamped to 1
		{0.5, 9.0, 1.0},  // adjust clamped to 5
		{0.2, 0.01, 0.02}, // adjust clamped to 0.1
	}
	for _, tc := range cases {
		cfg := &ChatConfig{TalkValue: tc.talk, FrequencyAdjust: tc.adjust}
		if got := cfg.EngagementProbability(); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("EngagementProbability(talk=%v adjust=%v) = %v, want %v", tc.talk, tc.adjust, got, tc.want)
		}
	}

	// Zero talk value clamps to a tiny positive probability
	cfg := &ChatConfig{TalkValue: 0, FrequencyAdjust: 1}
	if p := cfg.EngagementProbability(); p <= 0 {
		t.Errorf("probability must stay positive, got %v", p)
	}
}

func TestPlanHistory_Bounded(t *testing.T) {
	h := &PlanHistory{}
	for i := 0; i < 25; i++ {
		h.Add(&ActionPlan{ActionType: ActionWait})
	}
	if h.Len() != MaxPlanHistory {
		t.Errorf("history length = %d, want %d", h.Len(), MaxPlanHistory)
	}
	if got := len(h.Recent(3)); got != 3 {
		t.Errorf("Recent(3) returned %d plans", got)
	}
}
