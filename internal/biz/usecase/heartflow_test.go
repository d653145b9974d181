package usecase

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/anthropics/ruabot/internal/biz/domain"
)

func TestDetectAtmosphereFromRate(t *testing.T) {
	now := time.Now()
	uc := NewHeartFlowUsecase(testLogger()).WithClock(func() time.Time { return now })

	// 15 messages spread over ~4.7 minutes is ~3 msgs/min
	for i := 0; i < 15; i++ {
		uc.RecordMessage("group:1", fmt.Sprintf("u%d", i%4), "msg", false)
		if i < 14 {
			now = now.Add(20 * time.Second)
		}
	}
	assert.Equal(t, domain.AtmosphereActive, uc.DetectAtmosphere("group:1"))
}

func TestDetectAtmosphereShortBurst(t *testing.T) {
	start := time.Now()
	now := start
	uc := NewHeartFlowUsecase(testLogger()).WithClock(func() time.Time { return now })

	// 3 messages inside the trailing 60 seconds must read as 3 msgs/min,
	// not get diluted by the full 5-minute window
	for i := 0; i < 3; i++ {
		now = start.Add(time.Duration(i) * 20 * time.Second)
		uc.RecordMessage("group:1", fmt.Sprintf("u%d", i), "msg", false)
	}
	now = start.Add(60 * time.Second)
	assert.Equal(t, domain.AtmosphereActive, uc.DetectAtmosphere("group:1"))
}

func TestDetectAtmosphereSingleMessageStaysSilent(t *testing.T) {
	now := time.Now()
	uc := NewHeartFlowUsecase(testLogger()).WithClock(func() time.Time { return now })

	uc.RecordMessage("group:1", "u1", "msg", false)
	now = now.Add(30 * time.Second)
	assert.Equal(t, domain.AtmosphereSilent, uc.DetectAtmosphere("group:1"))
}

func TestDetectAtmosphereSilentByDefault(t *testing.T) {
	uc := NewHeartFlowUsecase(testLogger())
	assert.Equal(t, domain.AtmosphereSilent, uc.DetectAtmosphere("group:1"))
}

func TestShouldReplyMentionedAlwaysTrue(t *testing.T) {
	uc := NewHeartFlowUsecase(testLogger())
	ok, _ := uc.ShouldReply("group:1", true, true)
	assert.True(t, ok)
}

func TestShouldReplyPrivateAlwaysTrue(t *testing.T) {
	uc := NewHeartFlowUsecase(testLogger())
	ok, _ := uc.ShouldReply("user:9", false, false)
	assert.True(t, ok)
}

func TestShouldReplyRespectsIdleAfterBotReply(t *testing.T) {
	now := time.Now()
	uc := NewHeartFlowUsecase(testLogger()).WithClock(func() time.Time { return now })

	// Active chat, bot just spoke
	for i := 0; i < 10; i++ {
		uc.RecordMessage("group:1", "u1", "msg", false)
		now = now.Add(20 * time.Second)
	}
	uc.RecordMessage("group:1", "bot", "reply", true)

	now = now.Add(time.Second)
	ok, _ := uc.ShouldReply("group:1", true, false)
	assert.False(t, ok)

	now = now.Add(60 * time.Second)
	ok, _ = uc.ShouldReply("group:1", true, false)
	assert.True(t, ok)
}

func TestOptimalDelayVariesByAtmosphere(t *testing.T) {
	now := time.Now()
	uc := NewHeartFlowUsecase(testLogger()).WithClock(func() time.Time { return now })

	assert.Equal(t, 2*time.Second, uc.OptimalDelay("group:1", true))

	for i := 0; i < 60; i++ {
		uc.RecordMessage("group:1", "u1", "msg", false)
		now = now.Add(2 * time.Second)
	}
	assert.Equal(t, 200*time.Millisecond, uc.OptimalDelay("group:1", true))

	assert.Equal(t, 500*time.Millisecond, uc.OptimalDelay("user:9", false))
}

func TestParticipantPruning(t *testing.T) {
	now := time.Now()
	uc := NewHeartFlowUsecase(testLogger()).WithClock(func() time.Time { return now })

	uc.RecordMessage("group:1", "u1", "msg", false)
	now = now.Add(domain.ParticipantIdleTimeout + time.Second)
	uc.RecordMessage("group:1", "u2", "msg", false)

	snapshot := uc.ContextSnapshot("group:1")
	assert.Contains(t, snapshot, "活跃人数: 1")
}

func TestFlowWindowBounded(t *testing.T) {
	now := time.Now()
	uc := NewHeartFlowUsecase(testLogger()).WithClock(func() time.Time { return now })

	for i := 0; i < domain.FlowWindowSize*2; i++ {
		uc.RecordMessage("group:1", "u1", "msg", false)
		now = now.Add(2 * time.Second)
	}
	// 100 recorded but only the newest 50 retained, a 2s-spaced stream
	// well over the chaotic rate
	assert.Equal(t, domain.AtmosphereChaotic, uc.DetectAtmosphere("group:1"))
}
