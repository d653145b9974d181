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

const jargonBatchSize = 30

// noInfoMarker is the model's signal that it cannot infer anything useful.
// A round that sees it aborts without recording an inference.
const noInfoMarker = "no_info"

// JargonMinerUsecase mines candidate slang terms from recent messages and
// runs dual inference when a term's count crosses a threshold. Entry is
// serialized per process; inference batches are paced to respect upstream
// API quotas.
type JargonMinerUsecase struct {
	llm     repo.LLMRepo
	jargons repo.JargonRepo
	msgs    repo.MessageRepo
	cfg     PromptConfig
	log     *zap.SugaredLogger
	limiter *rate.Limiter

	mu sync.Mutex
}

// NewJargonMinerUsecase creates a jargon miner
func NewJargonMinerUsecase(llm repo.LLMRepo, jargons repo.JargonRepo, msgs repo.MessageRepo, cfg PromptConfig, log *zap.SugaredLogger) *JargonMinerUsecase {
	return &JargonMinerUsecase{
		llm:     llm,
		jargons: jargons,
		msgs:    msgs,
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// Mine runs one mining pass over the chat's recent messages
func (uc *JargonMinerUsecase) Mine(ctx context.Context, chatID string) error {
	uc.mu.Lock()
	defer uc.mu.Unlock()

	messages, err := uc.msgs.RecentMessages(ctx, chatID, jargonBatchSize, false)
	if err != nil {
		return fmt.Errorf("load recent messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	candidates, err := uc.mineCandidates(ctx, messages)
	if err != nil {
		return fmt.Errorf("mine candidates: %w", err)
	}

	for _, term := range candidates {
		contexts := uc.gatherContexts(term, messages)
		if len(contexts) == 0 {
			continue
		}
		jargon, err := uc.upsert(ctx, chatID, term, contexts)
		if err != nil {
			uc.log.Warnw("upsert jargon", "chat", chatID, "term", term, "err", err)
			continue
		}
		if !domain.ShouldInferMeaning(jargon.Count, jargon.LastInferenceCount) {
			continue
		}
		if err := uc.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("inference pacing: %w", err)
		}
		if err := uc.dualInference(ctx, jargon); err != nil {
			uc.log.Warnw("jargon inference", "chat", chatID, "term", term, "err", err)
		}
	}
	return nil
}

// mineCandidates asks the LLM for short terms with no obvious meaning
func (uc *JargonMinerUsecase) mineCandidates(ctx context.Context, messages []*domain.MessageRecord) ([]string, error) {
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

	prompt := fmt.Sprintf(`下面是一段群聊记录。找出其中可能是"黑话"的词：没有字面意义、圈内才懂的短词。

%s
要求：
- 每个词 %d 到 %d 个字
- 排除人名、标点、语气词、常用词，以及 %s
- 最多 %d 个
- 输出 JSON 数组: ["词1", "词2"]，没有就输出 []`,
		sb.String(), domain.MinJargonLen, domain.MaxJargonLen, uc.cfg.BotPlaceholder, domain.MaxJargonCandidates)

	result, err := uc.llm.ChatCompletion(ctx, &repo.ChatRequest{
		Messages:    []repo.ChatMessage{{Role: repo.RoleUser, Content: prompt}},
		Temperature: 0.3,
		MaxTokens:   500,
	})
	if err != nil {
		return nil, err
	}

	var raw []string
	if res := jsonx.ExtractArray(result.Content, &raw); !res.OK {
		uc.log.Debugw("no parseable jargon candidates", "reason", res.Reason)
		return nil, nil
	}

	var out []string
	for _, term := range raw {
		term = strings.TrimSpace(term)
		runes := len([]rune(term))
		if runes < domain.MinJargonLen || runes > domain.MaxJargonLen {
			continue
		}
		out = append(out, term)
		if len(out) >= domain.MaxJargonCandidates {
			break
		}
	}
	return out, nil
}

// gatherContexts collects up to ContextsPerOccurrence lines containing term
func (uc *JargonMinerUsecase) gatherContexts(term string, messages []*domain.MessageRecord) []string {
	var out []string
	for _, m := range messages {
		if m.IsBotMessage || !strings.Contains(m.PlainText, term) {
			continue
		}
		out = append(out, fmt.Sprintf("%s: %s", m.SenderLabel(), m.PlainText))
		if len(out) >= domain.ContextsPerOccurrence {
			break
		}
	}
	return out
}

// upsert accumulates count and contexts for one sighting of a term
func (uc *JargonMinerUsecase) upsert(ctx context.Context, chatID, term string, contexts []string) (*domain.Jargon, error) {
	jargon, err := uc.jargons.FindJargon(ctx, chatID, term)
	if err != nil {
		return nil, fmt.Errorf("find jargon: %w", err)
	}
	if jargon == nil {
		jargon = &domain.Jargon{
			Content: term,
			ChatID:  chatID,
			Count:   len(contexts),
		}
		jargon.AddContexts(contexts)
	} else {
		jargon.Count += len(contexts)
		jargon.AddContexts(contexts)
	}
	if err := uc.jargons.SaveJargon(ctx, jargon); err != nil {
		return nil, fmt.Errorf("save jargon: %w", err)
	}
	return jargon, nil
}

// inferenceResult is the wire shape of one meaning inference
type inferenceResult struct {
	Meaning    string `json:"meaning"`
	Confidence string `json:"confidence"`
}

// dualInference infers the term's meaning with and without context and
// compares the two: similar meanings mean the term is an ordinary word,
// divergent meanings mean it is true jargon.
func (uc *JargonMinerUsecase) dualInference(ctx context.Context, jargon *domain.Jargon) error {
	withCtx, err := uc.inferWithContext(ctx, jargon)
	if err != nil {
		return err
	}
	if withCtx == nil {
		uc.log.Debugw("context inference gave no info", "term", jargon.Content)
		return nil
	}

	bare, err := uc.inferBare(ctx, jargon.Content)
	if err != nil {
		return err
	}
	if bare == nil {
		uc.log.Debugw("bare inference gave no info", "term", jargon.Content)
		return nil
	}

	similar, err := uc.judgeSimilar(ctx, jargon.Content, withCtx.Meaning, bare.Meaning)
	if err != nil {
		return err
	}

	now := time.Now().Unix()
	isJargon := !similar
	count := jargon.Count
	jargon.IsJargon = &isJargon
	jargon.LastInferenceCount = &count
	jargon.InferenceWithCtx = &domain.JargonInference{Meaning: withCtx.Meaning, Confidence: withCtx.Confidence, InferredAt: now}
	jargon.InferenceBare = &domain.JargonInference{Meaning: bare.Meaning, Confidence: bare.Confidence, InferredAt: now}
	if isJargon {
		jargon.Meaning = withCtx.Meaning
	}
	// Terminal only after an inference actually landed; a no_info round
	// at the last rung leaves the term open for another try.
	if jargon.Count >= domain.JargonCompleteCount {
		jargon.IsComplete = true
	}

	if err := uc.jargons.SaveJargon(ctx, jargon); err != nil {
		return fmt.Errorf("save inference: %w", err)
	}
	uc.log.Infow("jargon inferred", "term", jargon.Content, "count", count, "is_jargon", isJargon)
	return nil
}

func (uc *JargonMinerUsecase) inferWithContext(ctx context.Context, jargon *domain.Jargon) (*inferenceResult, error) {
	contexts := jargon.RawContent
	if len(contexts) > domain.ContextsForInference {
		contexts = contexts[len(contexts)-domain.ContextsForInference:]
	}
	prompt := fmt.Sprintf(`根据这些聊天记录，推断"%s"在这个群里的意思。

%s

输出 JSON: {"meaning": "...", "confidence": "high|medium|low"}
如果完全推断不出来，输出 {"meaning": "%s"}`,
		jargon.Content, strings.Join(contexts, "\n"), noInfoMarker)
	return uc.infer(ctx, prompt)
}

func (uc *JargonMinerUsecase) inferBare(ctx context.Context, term string) (*inferenceResult, error) {
	prompt := fmt.Sprintf(`不看任何上下文，"%s"这个词是什么意思？

输出 JSON: {"meaning": "...", "confidence": "high|medium|low"}
如果这个词没有通用含义，输出 {"meaning": "%s"}`, term, noInfoMarker)
	return uc.infer(ctx, prompt)
}

// infer runs one meaning inference; a no_info answer returns (nil, nil)
func (uc *JargonMinerUsecase) infer(ctx context.Context, prompt string) (*inferenceResult, error) {
	result, err := uc.llm.ChatCompletion(ctx, &repo.ChatRequest{
		Messages:    []repo.ChatMessage{{Role: repo.RoleUser, Content: prompt}},
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		return nil, err
	}
	var parsed inferenceResult
	if res := jsonx.ExtractObject(result.Content, &parsed); !res.OK {
		return nil, fmt.Errorf("unparseable inference: %s", res.Reason)
	}
	meaning := strings.TrimSpace(parsed.Meaning)
	if meaning == "" || strings.Contains(strings.ToLower(meaning), noInfoMarker) {
		return nil, nil
	}
	parsed.Meaning = meaning
	return &parsed, nil
}

func (uc *JargonMinerUsecase) judgeSimilar(ctx context.Context, term, withCtx, bare string) (bool, error) {
	prompt := fmt.Sprintf(`对于"%s"这个词，有两种解释：
A（根据聊天记录推断）: %s
B（不看上下文的通用含义）: %s

这两种解释是否指向同一个意思？输出 JSON: {"similar": true} 或 {"similar": false}`, term, withCtx, bare)

	result, err := uc.llm.ChatCompletion(ctx, &repo.ChatRequest{
		Messages:    []repo.ChatMessage{{Role: repo.RoleUser, Content: prompt}},
		Temperature: 0.1,
		MaxTokens:   100,
	})
	if err != nil {
		return false, err
	}
	var parsed struct {
		Similar bool `json:"similar"`
	}
	if res := jsonx.ExtractObject(result.Content, &parsed); !res.OK {
		return false, fmt.Errorf("unparseable similarity judgment: %s", res.Reason)
	}
	return parsed.Similar, nil
}
