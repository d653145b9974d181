package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
	"github.com/anthropics/ruabot/internal/jsonx"
)

const (
	expressionBatchSize = 25
	maxLearnedPerBatch  = 10
)

// ExpressionLearnerUsecase distills speaking-style rules from recent chat
// messages. Entry is serialized per process so two learning passes cannot
// race on read-modify-write upserts of the same row.
type ExpressionLearnerUsecase struct {
	llm   repo.LLMRepo
	exprs repo.ExpressionRepo
	msgs  repo.MessageRepo
	cfg   PromptConfig
	log   *zap.SugaredLogger

	mu sync.Mutex
}

// NewExpressionLearnerUsecase creates an expression learner
func NewExpressionLearnerUsecase(llm repo.LLMRepo, exprs repo.ExpressionRepo, msgs repo.MessageRepo, cfg PromptConfig, log *zap.SugaredLogger) *ExpressionLearnerUsecase {
	return &ExpressionLearnerUsecase{llm: llm, exprs: exprs, msgs: msgs, cfg: cfg, log: log}
}

// learnedExpression is the wire shape of one learned entry
type learnedExpression struct {
	Situation  string `json:"situation"`
	Style      string `json:"style"`
	SourceLine string `json:"source_line"`
}

// Learn runs one learning pass over the chat's recent messages
func (uc *ExpressionLearnerUsecase) Learn(ctx context.Context, chatID string) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	messages, err := uc.msgs.RecentMessages(ctx, chatID, expressionBatchSize, false)
	if err != nil {
		return fmt.Errorf("load recent messages: %w", err)
	}

	transcript := uc.transcript(messages)
	if transcript == "" {
		return nil
	}

	result, err := uc.llm.ChatCompletion(ctx, &repo.ChatRequest{
		Messages:    []repo.ChatMessage{{Role: repo.RoleUser, Content: uc.buildPrompt(transcript)}},
		Temperature: 0.3,
		MaxTokens:   1000,
	})
	if err != nil {
		return fmt.Errorf("expression learning call: %w", err)
	}

	var learned []learnedExpression
	if res := jsonx.ExtractArray(result.Content, &learned); !res.OK {
		uc.log.Debugw("no parseable expressions", "chat", chatID, "reason", res.Reason)
		return nil
	}

	saved := 0
	for _, entry := range learned {
		if saved >= maxLearnedPerBatch {
			break
		}
		if !uc.acceptable(entry) {
			continue
		}
		if err := uc.upsert(ctx, chatID, entry); err != nil {
			uc.log.Warnw("save expression", "chat", chatID, "err", err)
			continue
		}
		saved++
	}
	uc.log.Debugw("expression learning pass done", "chat", chatID, "learned", saved)
	return nil
}

// transcript renders non-empty messages with the bot's lines behind the
// placeholder so the model does not learn the bot's own habits back
func (uc *ExpressionLearnerUsecase) transcript(messages []*domain.MessageRecord) string {
	var sb strings.Builder
	for _, m := range messages {
		text := strings.TrimSpace(m.PlainText)
		if text == "" {
			continue
		}
		name := m.SenderLabel()
		if m.IsBotMessage {
			name = uc.cfg.BotPlaceholder
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", name, text))
	}
	return sb.String()
}

func (uc *ExpressionLearnerUsecase) buildPrompt(transcript string) string {
	return fmt.Sprintf(`下面是一段群聊记录。总结出 3 到 10 条群友的说话习惯。

%s
要求：
- situation 描述什么场合，style 描述怎么说，都要简短（不超过15个字）
- source_line 填你参考的那一句原文
- 不要总结 %s 的发言
- 输出 JSON 数组: [{"situation": "...", "style": "...", "source_line": "..."}]`, transcript, uc.cfg.BotPlaceholder)
}

// acceptable filters oversize entries and anything sourced from the bot
func (uc *ExpressionLearnerUsecase) acceptable(entry learnedExpression) bool {
	if entry.Situation == "" || entry.Style == "" {
		return false
	}
	if len([]rune(entry.Situation)) > domain.MaxExpressionFieldLen ||
		len([]rune(entry.Style)) > domain.MaxExpressionFieldLen {
		return false
	}
	if strings.Contains(entry.SourceLine, uc.cfg.BotPlaceholder) {
		return false
	}
	return true
}

// upsert increments an existing rule or creates a new auto-approved one
func (uc *ExpressionLearnerUsecase) upsert(ctx context.Context, chatID string, entry learnedExpression) error {
	existing, err := uc.exprs.FindExpression(ctx, chatID, entry.Situation, entry.Style)
	if err != nil {
		return fmt.Errorf("find expression: %w", err)
	}
	if existing != nil {
		return uc.exprs.IncrementExpression(ctx, chatID, entry.Situation, entry.Style)
	}

	now := time.Now()
	return uc.exprs.SaveExpression(ctx, &domain.Expression{
		Situation:      entry.Situation,
		Style:          entry.Style,
		ChatID:         chatID,
		ContentList:    []string{entry.SourceLine},
		Count:          1,
		LastActiveTime: now,
		CreateDate:     now,
		Checked:        true,
		ModifiedBy:     "ai",
	})
}
