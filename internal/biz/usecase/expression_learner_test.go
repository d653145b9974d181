package usecase

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropics/ruabot/internal/biz/domain"
)

func seedChat(msgs *mockMessageRepo, chatID string, lines ...string) {
	for i, line := range lines {
		msgs.messages = append(msgs.messages, &domain.MessageRecord{
			ID:           int64(i + 1),
			MessageID:    "m",
			ChatID:       chatID,
			UserID:       "u1",
			UserNickname: "阿强",
			PlainText:    line,
			Time:         time.Now(),
		})
	}
}

func TestExpressionLearnerCreatesApprovedEntries(t *testing.T) {
	llm := &mockLLM{responses: []string{
		`[{"situation": "有人吐槽", "style": "跟着玩梗", "source_line": "阿强: 绷不住了"}]`,
	}}
	exprs := &mockExpressionRepo{}
	msgs := &mockMessageRepo{}
	seedChat(msgs, "group:1", "绷不住了", "哈哈哈")

	uc := NewExpressionLearnerUsecase(llm, exprs, msgs, DefaultPromptConfig, testLogger())
	require.NoError(t, uc.Learn(context.Background(), "group:1"))

	require.Len(t, exprs.expressions, 1)
	e := exprs.expressions[0]
	assert.Equal(t, "有人吐槽", e.Situation)
	assert.True(t, e.Checked)
	assert.False(t, e.Rejected)
	assert.Equal(t, 1, e.Count)
	assert.Equal(t, "ai", e.ModifiedBy)
}

func TestExpressionLearnerIncrementsExisting(t *testing.T) {
	llm := &mockLLM{responses: []string{
		`[{"situation": "有人吐槽", "style": "跟着玩梗", "source_line": "x"}]`,
	}}
	exprs := &mockExpressionRepo{}
	exprs.expressions = append(exprs.expressions, &domain.Expression{
		ID: 1, ChatID: "group:1", Situation: "有人吐槽", Style: "跟着玩梗", Count: 3, Checked: true,
	})
	msgs := &mockMessageRepo{}
	seedChat(msgs, "group:1", "又绷不住了")

	uc := NewExpressionLearnerUsecase(llm, exprs, msgs, DefaultPromptConfig, testLogger())
	require.NoError(t, uc.Learn(context.Background(), "group:1"))

	require.Len(t, exprs.expressions, 1)
	assert.Equal(t, 4, exprs.expressions[0].Count)
}

func TestExpressionLearnerFiltersOversizeAndBotSourced(t *testing.T) {
	long := strings.Repeat("长", domain.MaxExpressionFieldLen+1)
	llm := &mockLLM{responses: []string{
		`[{"situation": "` + long + `", "style": "s", "source_line": "x"},
		  {"situation": "来自机器人", "style": "s", "source_line": "(你): 我说的"},
		  {"situation": "正常", "style": "正常风格", "source_line": "阿强: ok"}]`,
	}}
	exprs := &mockExpressionRepo{}
	msgs := &mockMessageRepo{}
	seedChat(msgs, "group:1", "ok")

	uc := NewExpressionLearnerUsecase(llm, exprs, msgs, DefaultPromptConfig, testLogger())
	require.NoError(t, uc.Learn(context.Background(), "group:1"))

	require.Len(t, exprs.expressions, 1)
	assert.Equal(t, "正常", exprs.expressions[0].Situation)
}

func TestExpressionLearnerToleratesUnparseableResponse(t *testing.T) {
	llm := &mockLLM{responses: []string{"我没找到什么说话习惯。"}}
	exprs := &mockExpressionRepo{}
	msgs := &mockMessageRepo{}
	seedChat(msgs, "group:1", "随便聊聊")

	uc := NewExpressionLearnerUsecase(llm, exprs, msgs, DefaultPromptConfig, testLogger())
	require.NoError(t, uc.Learn(context.Background(), "group:1"))
	assert.Empty(t, exprs.expressions)
}

func TestExpressionLearnerSkipsEmptyChat(t *testing.T) {
	llm := &mockLLM{}
	uc := NewExpressionLearnerUsecase(llm, &mockExpressionRepo{}, &mockMessageRepo{}, DefaultPromptConfig, testLogger())

	require.NoError(t, uc.Learn(context.Background(), "group:1"))
	assert.Zero(t, llm.callCount())
}
