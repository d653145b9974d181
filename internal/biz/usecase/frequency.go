package usecase

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz/domain"
)

// GroupReplyCooldown is the anti-spam floor between replies in one group.
const GroupReplyCooldown = 10 * time.Second

// Reply-ratio hard cap: skip when replies exceed this share of recent
// messages and more than minRepliesForCap replies have been sent.
const (
	replyRatioCap    = 0.30
	minRepliesForCap = 2
)

// chatCounters holds the humanization state for one chat
type chatCounters struct {
	mu                 sync.Mutex
	messageCount       int
	replyCount         int
	consecutiveNoReply int
	lastReplyTime      time.Time
}

// GateDecision is the frequency controller's verdict for one message
type GateDecision struct {
	Proceed bool
	Reason  string
	// Content is the message text after trigger-command stripping
	Content string
	// AdvisoryThreshold is passed to the planner as context, not enforced
	AdvisoryThreshold int
}

// FrequencyUsecase decides whether the pipeline runs for a message.
// Counters are guarded by a per-chat mutex so near-simultaneous deliveries
// for the same chat cannot interleave updates.
type FrequencyUsecase struct {
	log  *zap.SugaredLogger
	rand *rand.Rand
	now  func() time.Time

	mu       sync.Mutex
	counters map[string]*chatCounters
}

// NewFrequencyUsecase creates a frequency controller
func NewFrequencyUsecase(log *zap.SugaredLogger) *FrequencyUsecase {
	return &FrequencyUsecase{
		log:      log,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		counters: make(map[string]*chatCounters),
	}
}

// WithRand replaces the random source, for deterministic tests
func (uc *FrequencyUsecase) WithRand(r *rand.Rand) *FrequencyUsecase {
	uc.rand = r
	return uc
}

// WithClock replaces the time source, for deterministic tests
func (uc *FrequencyUsecase) WithClock(now func() time.Time) *FrequencyUsecase {
	uc.now = now
	return uc
}

func (uc *FrequencyUsecase) chat(chatID string) *chatCounters {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	c, ok := uc.counters[chatID]
	if !ok {
		c = &chatCounters{}
		uc.counters[chatID] = c
	}
	return c
}

// Evaluate applies the per-chat gate to one inbound message
func (uc *FrequencyUsecase) Evaluate(chatID string, cfg *domain.ChatConfig, content string, isGroup, mentioned bool) GateDecision {
	if cfg == nil || !cfg.Enabled {
		return GateDecision{Reason: "chat disabled"}
	}

	if cfg.TriggerMode != domain.TriggerModeMaxToken {
		return uc.evaluateCommand(cfg, content)
	}
	return uc.evaluateMaxToken(chatID, cfg, content, isGroup, mentioned)
}

// evaluateCommand requires the configured trigger prefix and strips it
func (uc *FrequencyUsecase) evaluateCommand(cfg *domain.ChatConfig, content string) GateDecision {
	trigger := cfg.TriggerCommand
	if trigger == "" {
		return GateDecision{Reason: "command mode without trigger"}
	}
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, trigger) {
		return GateDecision{Reason: "no trigger prefix"}
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, trigger))
	if rest == "" {
		return GateDecision{Reason: "empty command"}
	}
	return GateDecision{Proceed: true, Reason: "trigger command", Content: rest, AdvisoryThreshold: 1}
}

func (uc *FrequencyUsecase) evaluateMaxToken(chatID string, cfg *domain.ChatConfig, content string, isGroup, mentioned bool) GateDecision {
	c := uc.chat(chatID)
	c.mu.Lock()
	defer c.mu.Unlock()

	c.messageCount++
	threshold := uc.dynamicThresholdLocked(c)
	decision := GateDecision{Content: content, AdvisoryThreshold: threshold}

	// Explicit mentions always engage, including during cooldown
	if mentioned {
		decision.Proceed = true
		decision.Reason = "mentioned"
		return decision
	}

	if isGroup && !c.lastReplyTime.IsZero() && uc.now().Sub(c.lastReplyTime) < GroupReplyCooldown {
		decision.Reason = "reply cooldown"
		return decision
	}

	if c.replyCount > minRepliesForCap && c.messageCount > 0 {
		ratio := float64(c.replyCount) / float64(c.messageCount)
		if ratio > replyRatioCap {
			decision.Reason = "reply ratio cap"
			return decision
		}
	}

	p := cfg.EngagementProbability()
	if uc.rand.Float64() >= p {
		decision.Reason = "probability roll"
		return decision
	}

	decision.Proceed = true
	decision.Reason = "probability engaged"
	return decision
}

// dynamicThresholdLocked computes the advisory consecutive-message threshold
// from the no-reply streak. Callers hold c.mu.
func (uc *FrequencyUsecase) dynamicThresholdLocked(c *chatCounters) int {
	switch {
	case c.consecutiveNoReply >= 5:
		return 2
	case c.consecutiveNoReply >= 3:
		if uc.rand.Intn(2) == 0 {
			return 1
		}
		return 2
	default:
		return 1
	}
}

// AdvisoryThreshold exposes the current threshold for planner context
func (uc *FrequencyUsecase) AdvisoryThreshold(chatID string) int {
	c := uc.chat(chatID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return uc.dynamicThresholdLocked(c)
}

// RecordReply resets the no-reply streak after an actual reply
func (uc *FrequencyUsecase) RecordReply(chatID string) {
	c := uc.chat(chatID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replyCount++
	c.consecutiveNoReply = 0
	c.lastReplyTime = uc.now()
}

// RecordNoReply bumps the streak after a pipeline run that produced no reply
func (uc *FrequencyUsecase) RecordNoReply(chatID string) {
	c := uc.chat(chatID)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.consecutiveNoReply++
}

// Counters returns a snapshot for planner context and diagnostics
func (uc *FrequencyUsecase) Counters(chatID string) (messageCount, replyCount, consecutiveNoReply int) {
	c := uc.chat(chatID)
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messageCount, c.replyCount, c.consecutiveNoReply
}
