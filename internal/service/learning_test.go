package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
	"github.com/anthropics/ruabot/internal/biz/usecase"
)

func newTestLearning(configUC *usecase.ConfigUsecase, llm *mockLLM, msgs *mockMessageRepo, know *mockKnowledgeRepo, workers, queueSize int) *LearningService {
	log := testLogger()
	return NewLearningService(
		configUC,
		usecase.NewExpressionLearnerUsecase(llm, &mockExpressionRepo{}, msgs, usecase.DefaultPromptConfig, log),
		usecase.NewJargonMinerUsecase(llm, &mockJargonRepo{}, msgs, usecase.DefaultPromptConfig, log),
		usecase.NewStickerLearnerUsecase(llm, &mockStickerRepo{}, false, usecase.DefaultPromptConfig, log),
		usecase.NewKnowledgeExtractorUsecase(llm, know, log),
		usecase.NewProfilerUsecase(llm, &mockProfileRepo{}, msgs, usecase.DefaultPromptConfig, log),
		usecase.NewSummarizerUsecase(llm, &mockSummaryRepo{}, msgs, usecase.DefaultPromptConfig, log),
		msgs,
		workers, queueSize,
		log,
	)
}

func TestDispatchAfterStopReturnsFalse(t *testing.T) {
	configUC := usecase.NewConfigUsecase(&mockConfigRepo{}, testLogger())
	svc := newTestLearning(configUC, &mockLLM{}, &mockMessageRepo{}, &mockKnowledgeRepo{}, 1, 8)

	svc.Start(context.Background())
	svc.Stop()

	assert.False(t, svc.Dispatch("group:1", &domain.MessageRecord{MessageID: "m1"}))
}

func TestDispatchDropsWhenQueueFull(t *testing.T) {
	configUC := usecase.NewConfigUsecase(&mockConfigRepo{}, testLogger())
	// Workers never started, so the buffer fills up
	svc := newTestLearning(configUC, &mockLLM{}, &mockMessageRepo{}, &mockKnowledgeRepo{}, 1, 2)

	assert.True(t, svc.Dispatch("group:1", &domain.MessageRecord{MessageID: "m1"}))
	assert.True(t, svc.Dispatch("group:1", &domain.MessageRecord{MessageID: "m2"}))
	assert.False(t, svc.Dispatch("group:1", &domain.MessageRecord{MessageID: "m3"}))
}

func TestLearningExtractsKnowledgeWhenEnabled(t *testing.T) {
	configs := &mockConfigRepo{}
	// Leave only the knowledge graph on so the scripted LLM response is
	// consumed by exactly one step.
	require.NoError(t, configs.SaveLayer(context.Background(), repo.ConfigTypeGlobal, "", domain.ConfigLayer{
		"learning": map[string]any{
			"expression_learning": map[string]any{"enabled": false},
			"jargon_learning":     map[string]any{"enabled": false},
			"sticker_learning":    map[string]any{"enabled": false},
			"person_profiling":    map[string]any{"enabled": false},
			"summarization":       map[string]any{"enabled": false},
		},
	}))
	configUC := usecase.NewConfigUsecase(configs, testLogger())

	llm := &mockLLM{responses: []string{
		`[{"subject": "小明", "predicate": "喜欢", "object": "机械键盘", "confidence": 0.9}]`,
	}}
	know := &mockKnowledgeRepo{}
	svc := newTestLearning(configUC, llm, &mockMessageRepo{}, know, 1, 8)
	svc.Start(context.Background())

	msg := &domain.MessageRecord{
		MessageID: "m1",
		ChatID:    "group:1",
		UserID:    "9",
		PlainText: "我最近换了一把机械键盘，手感真的完全不一样",
		Time:      time.Now(),
	}
	require.True(t, svc.Dispatch("group:1", msg))
	svc.Stop()

	assert.Equal(t, 1, know.tripleCount())
	assert.Equal(t, 1, llm.callCount())
}

func TestLearningSkipsDisabledFeatures(t *testing.T) {
	configs := &mockConfigRepo{}
	require.NoError(t, configs.SaveLayer(context.Background(), repo.ConfigTypeGlobal, "", domain.ConfigLayer{
		"learning": map[string]any{
			"expression_learning": map[string]any{"enabled": false},
			"jargon_learning":     map[string]any{"enabled": false},
			"sticker_learning":    map[string]any{"enabled": false},
			"knowledge_graph":     map[string]any{"enabled": false},
			"person_profiling":    map[string]any{"enabled": false},
			"summarization":       map[string]any{"enabled": false},
		},
	}))
	configUC := usecase.NewConfigUsecase(configs, testLogger())

	llm := &mockLLM{err: fmt.Errorf("should not be called")}
	svc := newTestLearning(configUC, llm, &mockMessageRepo{}, &mockKnowledgeRepo{}, 1, 8)
	svc.Start(context.Background())

	require.True(t, svc.Dispatch("group:1", &domain.MessageRecord{
		MessageID: "m1",
		ChatID:    "group:1",
		PlainText: "这条消息不会触发任何学习",
		Time:      time.Now(),
	}))
	svc.Stop()

	assert.Equal(t, 0, llm.callCount())
}
