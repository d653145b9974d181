package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
	"github.com/anthropics/ruabot/internal/jsonx"
)

// KnowledgeExtractorUsecase pulls subject-predicate-object facts out of
// qualifying chat messages
type KnowledgeExtractorUsecase struct {
	llm       repo.LLMRepo
	knowledge repo.KnowledgeRepo
	log       *zap.SugaredLogger
}

// NewKnowledgeExtractorUsecase creates a knowledge extractor
func NewKnowledgeExtractorUsecase(llm repo.LLMRepo, knowledge repo.KnowledgeRepo, log *zap.SugaredLogger) *KnowledgeExtractorUsecase {
	return &KnowledgeExtractorUsecase{llm: llm, knowledge: knowledge, log: log}
}

// extractedTriple is the wire shape of one extracted fact
type extractedTriple struct {
	Subject     string  `json:"subject"`
	SubjectType string  `json:"subject_type"`
	Predicate   string  `json:"predicate"`
	Object      string  `json:"object"`
	ObjectType  string  `json:"object_type"`
	Confidence  float64 `json:"confidence"`
}

// Qualifies reports whether a message is worth extracting from
func (uc *KnowledgeExtractorUsecase) Qualifies(msg *domain.MessageRecord) bool {
	return !msg.IsBotMessage && len([]rune(strings.TrimSpace(msg.PlainText))) > domain.MinKnowledgeTextLen
}

// Extract mines triples from one message and records entity mentions
func (uc *KnowledgeExtractorUsecase) Extract(ctx context.Context, msg *domain.MessageRecord) error {
	if !uc.Qualifies(msg) {
		return nil
	}

	prompt := fmt.Sprintf(`从这句话中提取事实三元组（主语-谓语-宾语）：

%s: %s

要求：
- 最多 %d 条，只提取明确陈述的事实
- confidence 是 0 到 1 的小数
- subject_type/object_type 可选，如 person/place/thing
- 输出 JSON 数组: [{"subject": "...", "predicate": "...", "object": "...", "confidence": 0.9}]
- 没有可提取的就输出 []`, msg.SenderLabel(), msg.PlainText, domain.MaxTriplesPerMessage)

	result, err := uc.llm.ChatCompletion(ctx, &repo.ChatRequest{
		Messages:    []repo.ChatMessage{{Role: repo.RoleUser, Content: prompt}},
		Temperature: 0.2,
		MaxTokens:   600,
	})
	if err != nil {
		return fmt.Errorf("knowledge extraction call: %w", err)
	}

	var triples []extractedTriple
	if res := jsonx.ExtractArray(result.Content, &triples); !res.OK {
		uc.log.Debugw("no parseable triples", "chat", msg.ChatID, "reason", res.Reason)
		return nil
	}

	saved := 0
	for _, t := range triples {
		if saved >= domain.MaxTriplesPerMessage {
			break
		}
		if t.Subject == "" || t.Predicate == "" || t.Object == "" {
			continue
		}
		if t.Confidence <= 0 || t.Confidence > 1 {
			t.Confidence = domain.DefaultTripleConfidence
		}
		triple := &domain.KnowledgeTriple{
			Subject:       t.Subject,
			SubjectType:   t.SubjectType,
			Predicate:     t.Predicate,
			Object:        t.Object,
			ObjectType:    t.ObjectType,
			Confidence:    t.Confidence,
			SourceChatID:  msg.ChatID,
			SourceMessage: msg.MessageID,
			CreatedAt:     time.Now(),
		}
		if err := uc.knowledge.SaveTriple(ctx, triple); err != nil {
			uc.log.Warnw("save triple", "chat", msg.ChatID, "err", err)
			continue
		}
		saved++

		if err := uc.knowledge.UpsertEntity(ctx, t.Subject, t.SubjectType); err != nil {
			uc.log.Warnw("upsert subject entity", "name", t.Subject, "err", err)
		}
		if err := uc.knowledge.UpsertEntity(ctx, t.Object, t.ObjectType); err != nil {
			uc.log.Warnw("upsert object entity", "name", t.Object, "err", err)
		}
	}
	return nil
}
