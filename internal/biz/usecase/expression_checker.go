package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
	"github.com/anthropics/ruabot/internal/jsonx"
)

const (
	checkFetchLimit = 50
	checkBatchSize  = 5
)

// ExpressionCheckerUsecase reviews unchecked expressions with the LLM and
// marks each one approved or rejected. Entry is serialized per process;
// evaluation batches are paced to respect upstream API quotas.
type ExpressionCheckerUsecase struct {
	llm     repo.LLMRepo
	exprs   repo.ExpressionRepo
	log     *zap.SugaredLogger
	limiter *rate.Limiter

	mu sync.Mutex
}

// NewExpressionCheckerUsecase creates an expression auto-checker
func NewExpressionCheckerUsecase(llm repo.LLMRepo, exprs repo.ExpressionRepo, log *zap.SugaredLogger) *ExpressionCheckerUsecase {
	return &ExpressionCheckerUsecase{
		llm:     llm,
		exprs:   exprs,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// verdict is the wire shape of one evaluation result
type verdict struct {
	Index int  `json:"index"`
	Valid bool `json:"valid"`
}

// Check runs one review pass over pending expressions. A batch that fails
// to evaluate stays unchecked for the next pass.
func (uc *ExpressionCheckerUsecase) Check(ctx context.Context) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	unchecked, err := uc.exprs.UncheckedExpressions(ctx, checkFetchLimit)
	if err != nil {
		return fmt.Errorf("load unchecked expressions: %w", err)
	}
	if len(unchecked) == 0 {
		return nil
	}

	accepted, rejected := 0, 0
	for start := 0; start < len(unchecked); start += checkBatchSize {
		end := start + checkBatchSize
		if end > len(unchecked) {
			end = len(unchecked)
		}
		batch := unchecked[start:end]

		if err := uc.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("check pacing: %w", err)
		}
		verdicts, err := uc.evaluate(ctx, batch)
		if err != nil {
			uc.log.Warnw("expression batch evaluation failed", "size", len(batch), "err", err)
			continue
		}
		for _, v := range verdicts {
			if v.Index < 1 || v.Index > len(batch) {
				continue
			}
			expr := batch[v.Index-1]
			if err := uc.exprs.SetExpressionReview(ctx, expr.ID, true, !v.Valid, "auto_checker"); err != nil {
				uc.log.Warnw("save expression review", "id", expr.ID, "err", err)
				continue
			}
			if v.Valid {
				accepted++
			} else {
				rejected++
			}
		}
	}
	uc.log.Infow("expression check pass done", "found", len(unchecked), "accepted", accepted, "rejected", rejected)
	return nil
}

// evaluate asks the LLM to judge one batch of expressions
func (uc *ExpressionCheckerUsecase) evaluate(ctx context.Context, batch []*domain.Expression) ([]verdict, error) {
	var sb strings.Builder
	for i, e := range batch {
		sb.WriteString(fmt.Sprintf("%d. 场合: %s / 说法: %s\n", i+1, e.Situation, e.Style))
	}

	prompt := fmt.Sprintf(`评估这些从群聊中学到的表达习惯，判断每条是否是有意义的说话方式。

%s
无意义的例子：纯标点、乱码、场合和说法对不上、太泛（比如"平时/正常说话"）。

输出 JSON 数组，每条一个判断: [{"index": 1, "valid": true}]`, sb.String())

	result, err := uc.llm.ChatCompletion(ctx, &repo.ChatRequest{
		Messages:    []repo.ChatMessage{{Role: repo.RoleUser, Content: prompt}},
		Temperature: 0.2,
		MaxTokens:   400,
	})
	if err != nil {
		return nil, err
	}

	var verdicts []verdict
	if res := jsonx.ExtractArray(result.Content, &verdicts); !res.OK {
		return nil, fmt.Errorf("unparseable verdicts: %s", res.Reason)
	}
	return verdicts, nil
}
