package usecase

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
	"github.com/anthropics/ruabot/internal/jsonx"
)

// Selector think levels.
const (
	ThinkLevelSimple   = "simple"
	ThinkLevelAdvanced = "advanced"
)

const (
	simpleSelectCount   = 5
	advancedSelectCount = 8
	// advancedMinCandidates is the pool size below which the LLM pass is
	// pointless and the simple path runs instead
	advancedMinCandidates = 10
	selectorPoolLimit     = 50
)

// ExpressionSelector picks learned expressions to inject into a reply
// prompt. The simple path is a cheap weighted draw; the advanced path asks
// the LLM to score a shortlist and falls back to simple on any failure.
type ExpressionSelector struct {
	exprs      repo.ExpressionRepo
	llm        repo.LLMRepo
	thinkLevel string
	log        *zap.SugaredLogger
	rand       *rand.Rand
}

// NewExpressionSelector creates a selector
func NewExpressionSelector(exprs repo.ExpressionRepo, llm repo.LLMRepo, thinkLevel string, log *zap.SugaredLogger) *ExpressionSelector {
	return &ExpressionSelector{
		exprs:      exprs,
		llm:        llm,
		thinkLevel: thinkLevel,
		log:        log,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand replaces the random source, for deterministic tests
func (s *ExpressionSelector) WithRand(r *rand.Rand) *ExpressionSelector {
	s.rand = r
	return s
}

// Select returns a bounded set of expressions for the chat and bumps the
// reuse counter of each returned expression
func (s *ExpressionSelector) Select(ctx context.Context, chatID string) ([]*domain.Expression, error) {
	pool, err := s.exprs.UsableExpressions(ctx, chatID, 1, selectorPoolLimit)
	if err != nil {
		return nil, fmt.Errorf("load usable expressions: %w", err)
	}
	if len(pool) == 0 {
		return nil, nil
	}

	var picked []*domain.Expression
	if s.thinkLevel == ThinkLevelAdvanced && len(pool) >= advancedMinCandidates {
		picked = s.selectAdvanced(ctx, pool)
	}
	if picked == nil {
		picked = s.selectSimple(pool, simpleSelectCount)
	}

	for _, e := range picked {
		if err := s.exprs.IncrementExpression(ctx, e.ChatID, e.Situation, e.Style); err != nil {
			s.log.Warnw("bump expression count", "chat", chatID, "err", err)
		}
	}
	return picked, nil
}

// selectSimple draws up to n expressions weighted by reuse count
func (s *ExpressionSelector) selectSimple(pool []*domain.Expression, n int) []*domain.Expression {
	if len(pool) <= n {
		out := make([]*domain.Expression, len(pool))
		copy(out, pool)
		return out
	}

	remaining := make([]*domain.Expression, len(pool))
	copy(remaining, pool)
	var out []*domain.Expression
	for len(out) < n && len(remaining) > 0 {
		total := 0
		for _, e := range remaining {
			total += e.Count
		}
		roll := s.rand.Intn(total)
		idx := 0
		for i, e := range remaining {
			roll -= e.Count
			if roll < 0 {
				idx = i
				break
			}
		}
		out = append(out, remaining[idx])
		remaining = append(remaining[:idx], remaining[idx+1:]...)
	}
	return out
}

// selectAdvanced asks the LLM to pick the most relevant expressions by
// index. Returns nil to signal fallback to the simple path.
func (s *ExpressionSelector) selectAdvanced(ctx context.Context, pool []*domain.Expression) []*domain.Expression {
	if s.llm == nil {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("下面是一个群里学到的说话习惯，选出最通用、最有特色的几条。\n\n")
	for i, e := range pool {
		sb.WriteString(fmt.Sprintf("%d. 当%s时，%s（出现 %d 次）\n", i+1, e.Situation, e.Style, e.Count))
	}
	sb.WriteString(fmt.Sprintf("\n输出一个 JSON 数组，内容是选中的编号，最多 %d 个，例如 [1, 4, 7]。", advancedSelectCount))

	result, err := s.llm.ChatCompletion(ctx, &repo.ChatRequest{
		Messages:    []repo.ChatMessage{{Role: repo.RoleUser, Content: sb.String()}},
		Temperature: 0.2,
		MaxTokens:   200,
	})
	if err != nil {
		s.log.Debugw("advanced expression selection failed", "err", err)
		return nil
	}

	var indices []int
	if res := jsonx.ExtractArray(result.Content, &indices); !res.OK {
		s.log.Debugw("unparseable selection indices", "reason", res.Reason)
		return nil
	}

	seen := make(map[int]bool)
	var out []*domain.Expression
	for _, idx := range indices {
		if idx < 1 || idx > len(pool) || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, pool[idx-1])
		if len(out) >= advancedSelectCount {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
