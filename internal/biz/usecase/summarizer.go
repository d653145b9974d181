package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
	"github.com/anthropics/ruabot/internal/jsonx"
)

const summaryBatchSize = 100

// SummarizerUsecase periodically condenses chat segments into digests. A
// per-chat TryLock skips overlapping runs instead of queueing them.
type SummarizerUsecase struct {
	llm       repo.LLMRepo
	summaries repo.SummaryRepo
	msgs      repo.MessageRepo
	cfg       PromptConfig
	log       *zap.SugaredLogger
	now       func() time.Time
	locks     *keyedMutex
}

// NewSummarizerUsecase creates a summarizer
func NewSummarizerUsecase(llm repo.LLMRepo, summaries repo.SummaryRepo, msgs repo.MessageRepo, cfg PromptConfig, log *zap.SugaredLogger) *SummarizerUsecase {
	return &SummarizerUsecase{
		llm:       llm,
		summaries: summaries,
		msgs:      msgs,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		locks:     newKeyedMutex(),
	}
}

// WithClock replaces the time source, for deterministic tests
func (uc *SummarizerUsecase) WithClock(now func() time.Time) *SummarizerUsecase {
	uc.now = now
	return uc
}

// digest is the wire shape of one summarization result
type digest struct {
	Theme        string   `json:"theme"`
	Summary      string   `json:"summary"`
	Keywords     []string `json:"keywords"`
	KeyPoints    []string `json:"key_points"`
	Participants []string `json:"participants"`
}

// Summarize condenses messages since the last digest. Without force it
// requires MinMessagesForSummary buffered messages and SummaryInterval
// elapsed since the previous digest.
func (uc *SummarizerUsecase) Summarize(ctx context.Context, chatID string, force bool) error {
	lock := uc.locks.get(chatID)
	if !lock.TryLock() {
		uc.log.Debugw("summarization already running", "chat", chatID)
		return nil
	}
	defer lock.Unlock()

	lastEnd, err := uc.summaries.LastSummaryEnd(ctx, chatID)
	if err != nil {
		return fmt.Errorf("load last summary end: %w", err)
	}
	if !force && !lastEnd.IsZero() && uc.now().Sub(lastEnd) < domain.SummaryInterval {
		return nil
	}

	messages, err := uc.msgs.MessagesSince(ctx, chatID, lastEnd, summaryBatchSize)
	if err != nil {
		return fmt.Errorf("load messages since last summary: %w", err)
	}
	if !force && len(messages) < domain.MinMessagesForSummary {
		return nil
	}
	if len(messages) == 0 {
		return nil
	}

	// The previous digest gives the model continuity across segments
	continuity := ""
	if prior, err := uc.summaries.RecentSummaries(ctx, chatID, 1); err != nil {
		uc.log.Warnw("load previous summary", "chat", chatID, "err", err)
	} else if len(prior) > 0 && prior[0].Summary != "" {
		continuity = fmt.Sprintf("上一段聊天的总结，供衔接:\n%s\n\n", prior[0].Summary)
	}

	transcript := domain.FormatTranscript(messages, uc.cfg.BotPlaceholder)
	prompt := fmt.Sprintf(`总结这段群聊。

%s%s
输出 JSON:
{"theme": "主题", "summary": "两三句的概括", "keywords": ["关键词"], "key_points": ["要点"], "participants": ["参与者"]}`, continuity, transcript)

	result, err := uc.llm.ChatCompletion(ctx, &repo.ChatRequest{
		Messages:    []repo.ChatMessage{{Role: repo.RoleUser, Content: prompt}},
		Temperature: 0.3,
		MaxTokens:   800,
	})
	if err != nil {
		return fmt.Errorf("summarization call: %w", err)
	}

	var parsed digest
	if res := jsonx.ExtractObject(result.Content, &parsed); !res.OK {
		uc.log.Debugw("unparseable digest", "chat", chatID, "reason", res.Reason)
		return nil
	}
	if parsed.Summary == "" {
		return nil
	}

	summary := &domain.ChatHistorySummary{
		ChatID:       chatID,
		StartTime:    messages[0].Time,
		EndTime:      messages[len(messages)-1].Time,
		OriginalText: transcript,
		Summary:      parsed.Summary,
		Theme:        parsed.Theme,
		Participants: parsed.Participants,
		Keywords:     parsed.Keywords,
		KeyPoints:    parsed.KeyPoints,
		CreatedAt:    uc.now(),
	}
	if err := uc.summaries.SaveSummary(ctx, summary); err != nil {
		return fmt.Errorf("save summary: %w", err)
	}
	uc.log.Infow("chat summarized", "chat", chatID, "messages", len(messages), "theme", parsed.Theme)
	return nil
}
