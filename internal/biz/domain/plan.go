package domain

import "time"

// ActionType is the kind of action the planner may choose
type ActionType string

const (
	ActionReply        ActionType = "reply"
	ActionWait         ActionType = "wait"
	ActionCompleteTalk ActionType = "complete_talk"
)

// MaxPlanHistory bounds the retained planning history per chat.
const MaxPlanHistory = 10

// ActionPlan is one planned action. Plans are ephemeral; only a short
// rolling history is kept in memory for prompt continuity.
type ActionPlan struct {
	ActionType      ActionType
	Reasoning       string
	TargetMessageID string
	ActionData      map[string]any
	PlannedAt       time.Time
}

// IsValidActionType checks whether s names a known action
func IsValidActionType(s string) bool {
	switch ActionType(s) {
	case ActionReply, ActionWait, ActionCompleteTalk:
		return true
	}
	return false
}

// PlanHistory is a bounded rolling list of past plans for one chat
type PlanHistory struct {
	plans []*ActionPlan
}

// Add appends plans, trimming to MaxPlanHistory newest entries
func (h *PlanHistory) Add(plans ...*ActionPlan) {
	h.plans = append(h.plans, plans...)
	if len(h.plans) > MaxPlanHistory {
		h.plans = h.plans[len(h.plans)-MaxPlanHistory:]
	}
}

// Recent returns up to n newest plans, oldest first
func (h *PlanHistory) Recent(n int) []*ActionPlan {
	if n <= 0 || len(h.plans) == 0 {
		return nil
	}
	if n > len(h.plans) {
		n = len(h.plans)
	}
	return h.plans[len(h.plans)-n:]
}

// Len returns the number of retained plans
func (h *PlanHistory) Len() int {
	return len(h.plans)
}
