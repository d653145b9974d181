package usecase

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz/domain"
)

// chatFlow is the rolling HeartFlow state for one chat
type chatFlow struct {
	mu           sync.Mutex
	window       []domain.FlowMessage // bounded at domain.FlowWindowSize
	participants map[string]time.Time // userID -> last seen
	lastBotReply time.Time
}

// HeartFlowUsecase tracks per-chat atmosphere from recent traffic. Its
// outputs are advisory: they feed the planner prompt and reply pacing, the
// frequency gate and planner keep final authority.
type HeartFlowUsecase struct {
	log *zap.SugaredLogger
	now func() time.Time

	mu    sync.Mutex
	flows map[string]*chatFlow
}

// NewHeartFlowUsecase creates an atmosphere tracker
func NewHeartFlowUsecase(log *zap.SugaredLogger) *HeartFlowUsecase {
	return &HeartFlowUsecase{
		log:   log,
		now:   time.Now,
		flows: make(map[string]*chatFlow),
	}
}

// WithClock replaces the time source, for deterministic tests
func (uc *HeartFlowUsecase) WithClock(now func() time.Time) *HeartFlowUsecase {
	uc.now = now
	return uc
}

func (uc *HeartFlowUsecase) flow(chatID string) *chatFlow {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	f, ok := uc.flows[chatID]
	if !ok {
		f = &chatFlow{participants: make(map[string]time.Time)}
		uc.flows[chatID] = f
	}
	return f
}

// RecordMessage appends a message to the chat's rolling window
func (uc *HeartFlowUsecase) RecordMessage(chatID, userID, content string, isBot bool) {
	now := uc.now()
	f := uc.flow(chatID)
	f.mu.Lock()
	defer f.mu.Unlock()

	f.window = append(f.window, domain.FlowMessage{
		UserID:  userID,
		Content: content,
		IsBot:   isBot,
		Time:    now,
	})
	if len(f.window) > domain.FlowWindowSize {
		f.window = f.window[len(f.window)-domain.FlowWindowSize:]
	}

	if isBot {
		f.lastBotReply = now
	} else {
		f.participants[userID] = now
	}

	// Prune participants idle past the timeout
	for id, seen := range f.participants {
		if now.Sub(seen) > domain.ParticipantIdleTimeout {
			delete(f.participants, id)
		}
	}
}

// DetectAtmosphere classifies the chat from its trailing-window rate
func (uc *HeartFlowUsecase) DetectAtmosphere(chatID string) domain.Atmosphere {
	f := uc.flow(chatID)
	f.mu.Lock()
	defer f.mu.Unlock()
	return domain.ClassifyAtmosphere(uc.rateLocked(f))
}

// rateLocked computes msgs/min over the recent messages, using the span
// from the oldest recent message to now so a short burst is not diluted
// by the full window length. Callers hold f.mu.
func (uc *HeartFlowUsecase) rateLocked(f *chatFlow) float64 {
	now := uc.now()
	cutoff := now.Add(-domain.AtmosphereWindow)
	var oldest time.Time
	count := 0
	for _, m := range f.window {
		if !m.Time.After(cutoff) {
			continue
		}
		if count == 0 {
			oldest = m.Time
		}
		count++
	}
	if count < 2 {
		return 0
	}
	span := now.Sub(oldest)
	if span <= 0 {
		return 0
	}
	return float64(count) / span.Minutes()
}

// ShouldReply applies per-atmosphere heuristics. The returned reason is
// advisory context for the planner.
func (uc *HeartFlowUsecase) ShouldReply(chatID string, isGroup, mentioned bool) (bool, string) {
	if mentioned {
		return true, "被提及，应该回应"
	}
	if !isGroup {
		return true, "私聊消息，应该回应"
	}

	f := uc.flow(chatID)
	f.mu.Lock()
	defer f.mu.Unlock()

	atmosphere := domain.ClassifyAtmosphere(uc.rateLocked(f))
	idle := time.Duration(0)
	if !f.lastBotReply.IsZero() {
		idle = uc.now().Sub(f.lastBotReply)
	} else {
		idle = domain.ParticipantIdleTimeout + time.Second
	}

	switch atmosphere {
	case domain.AtmosphereSilent:
		if idle >= 300*time.Second {
			return true, "群里很安静，可以主动开启话题"
		}
		return false, "群里安静，刚说过话，再等等"
	case domain.AtmosphereCalm:
		if idle >= 120*time.Second {
			return true, "节奏平缓，可以自然地插话"
		}
		return false, "节奏平缓，不用急着说话"
	case domain.AtmosphereActive:
		if idle >= 60*time.Second {
			return true, "讨论活跃，可以参与"
		}
		return false, "讨论活跃，刚说过话，先听听"
	case domain.AtmosphereHeated:
		if idle >= 180*time.Second {
			return true, "讨论热烈，偶尔参与一下"
		}
		return false, "讨论热烈，人多话多，少说为妙"
	default: // chaotic
		if idle >= 300*time.Second {
			return true, "刷屏中，实在太久没说话才插一句"
		}
		return false, "刷屏中，保持沉默"
	}
}

// OptimalDelay suggests the pre-reply pause for the chat's current state
func (uc *HeartFlowUsecase) OptimalDelay(chatID string, isGroup bool) time.Duration {
	return domain.OptimalDelay(uc.DetectAtmosphere(chatID), isGroup)
}

// ContextSnapshot summarizes flow state for the planner prompt
func (uc *HeartFlowUsecase) ContextSnapshot(chatID string) string {
	f := uc.flow(chatID)
	f.mu.Lock()
	defer f.mu.Unlock()

	rate := uc.rateLocked(f)
	atmosphere := domain.ClassifyAtmosphere(rate)
	return fmt.Sprintf("当前氛围: %s (%.1f 条/分钟), 活跃人数: %d",
		atmosphere, rate, len(f.participants))
}
