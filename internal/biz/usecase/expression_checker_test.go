package usecase

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropics/ruabot/internal/biz/domain"
)

func seedUnchecked(exprs *mockExpressionRepo, pairs ...[2]string) {
	for i, p := range pairs {
		exprs.expressions = append(exprs.expressions, &domain.Expression{
			ID:        int64(i + 1),
			ChatID:    "group:1",
			Situation: p[0],
			Style:     p[1],
			Count:     1,
		})
	}
}

func TestCheckMarksVerdicts(t *testing.T) {
	exprs := &mockExpressionRepo{}
	seedUnchecked(exprs,
		[2]string{"有人开玩笑", "跟着起哄"},
		[2]string{"！！！", "？？？"},
	)
	llm := &mockLLM{responses: []string{
		`[{"index": 1, "valid": true}, {"index": 2, "valid": false}]`,
	}}

	uc := NewExpressionCheckerUsecase(llm, exprs, testLogger())
	require.NoError(t, uc.Check(context.Background()))

	assert.True(t, exprs.expressions[0].Checked)
	assert.False(t, exprs.expressions[0].Rejected)
	assert.True(t, exprs.expressions[1].Checked)
	assert.True(t, exprs.expressions[1].Rejected)
	assert.Equal(t, "auto_checker", exprs.expressions[0].ModifiedBy)
}

func TestCheckNothingPendingMakesNoCalls(t *testing.T) {
	exprs := &mockExpressionRepo{}
	exprs.expressions = append(exprs.expressions, &domain.Expression{
		ID: 1, ChatID: "group:1", Situation: "打招呼", Style: "嗨", Checked: true,
	})
	llm := &mockLLM{err: fmt.Errorf("should not be called")}

	uc := NewExpressionCheckerUsecase(llm, exprs, testLogger())
	require.NoError(t, uc.Check(context.Background()))
	assert.Equal(t, 0, llm.callCount())
}

func TestCheckFailedBatchStaysUnchecked(t *testing.T) {
	exprs := &mockExpressionRepo{}
	seedUnchecked(exprs, [2]string{"有人问问题", "直接给答案"})
	llm := &mockLLM{responses: []string{"这不是 JSON"}}

	uc := NewExpressionCheckerUsecase(llm, exprs, testLogger())
	require.NoError(t, uc.Check(context.Background()))

	assert.False(t, exprs.expressions[0].Checked)
}

func TestCheckIgnoresOutOfRangeIndex(t *testing.T) {
	exprs := &mockExpressionRepo{}
	seedUnchecked(exprs, [2]string{"有人告别", "说晚安"})
	llm := &mockLLM{responses: []string{
		`[{"index": 7, "valid": false}, {"index": 1, "valid": true}]`,
	}}

	uc := NewExpressionCheckerUsecase(llm, exprs, testLogger())
	require.NoError(t, uc.Check(context.Background()))

	assert.True(t, exprs.expressions[0].Checked)
	assert.False(t, exprs.expressions[0].Rejected)
}
