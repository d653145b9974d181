package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
)

// Replyer LLM call parameters.
const (
	replyTemperature = 0.9
	replyMaxTokens   = 800
)

const knownJargonLimit = 20

// argTagRe strips leftover tool-call XML fragments some models emit inline.
var argTagRe = regexp.MustCompile(`(?s)<arg_key>.*?</arg_key>|<arg_value>.*?</arg_value>|</?arg_key>|</?arg_value>`)

// atArtifactRe strips CQ-style at markers from generated text.
var atArtifactRe = regexp.MustCompile(`\[CQ:at[^\]]*\]`)

// ReplyContext carries everything the replyer needs for one reply
type ReplyContext struct {
	ChatID          string
	IsGroup         bool
	TargetMessageID string
	// PlanReasoning is the planner's stated reason for replying
	PlanReasoning string
	Messages      []*domain.MessageRecord
	Config        *domain.ChatConfig
}

// ReplyResult is one generated reply
type ReplyResult struct {
	Text string
	// Apologized marks a fallback reply after an LLM failure
	Apologized bool
	ToolCalls  []repo.ToolCall
}

// ReplyerUsecase turns a planner reply action into actual text. Prompt
// layers that need a lookup are built concurrently; a failed layer is
// dropped rather than failing the reply.
type ReplyerUsecase struct {
	llm      repo.LLMRepo
	jargons  repo.JargonRepo
	msgs     repo.MessageRepo
	selector *ExpressionSelector
	tools    repo.ToolRunner
	cfg      PromptConfig
	log      *zap.SugaredLogger
	now      func() time.Time
}

// NewReplyerUsecase creates a replyer. tools may be nil when no tool
// backend is configured.
func NewReplyerUsecase(
	llm repo.LLMRepo,
	jargons repo.JargonRepo,
	msgs repo.MessageRepo,
	selector *ExpressionSelector,
	tools repo.ToolRunner,
	cfg PromptConfig,
	log *zap.SugaredLogger,
) *ReplyerUsecase {
	return &ReplyerUsecase{
		llm:      llm,
		jargons:  jargons,
		msgs:     msgs,
		selector: selector,
		tools:    tools,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

// GenerateReply produces the reply text for one reply action. It never
// returns an error: an LLM failure degrades to the configured apology.
func (uc *ReplyerUsecase) GenerateReply(ctx context.Context, rctx *ReplyContext) *ReplyResult {
	prompt := uc.buildPrompt(ctx, rctx)

	req := &repo.ChatRequest{
		Messages:    []repo.ChatMessage{{Role: repo.RoleUser, Content: prompt}},
		Temperature: replyTemperature,
		MaxTokens:   replyMaxTokens,
	}
	if rctx.Config != nil && rctx.Config.ToolsEnabled && uc.tools != nil {
		req.Tools = uc.tools.Tools(rctx.Config.EnabledTools)
	}

	streaming := rctx.Config != nil && rctx.Config.StreamEnabled && len(req.Tools) == 0
	text, toolCalls, err := uc.complete(ctx, req, streaming)
	if err != nil {
		uc.log.Warnw("reply generation failed", "chat", rctx.ChatID, "err", err)
		return &ReplyResult{Text: uc.cfg.ApologyText, Apologized: true}
	}

	if len(toolCalls) > 0 {
		text, err = uc.runToolRound(ctx, req, toolCalls)
		if err != nil {
			uc.log.Warnw("tool round failed", "chat", rctx.ChatID, "err", err)
			return &ReplyResult{Text: uc.cfg.ApologyText, Apologized: true, ToolCalls: toolCalls}
		}
	}

	text = CleanReplyText(text)
	if text == "" {
		return &ReplyResult{Text: uc.cfg.ApologyText, Apologized: true, ToolCalls: toolCalls}
	}
	return &ReplyResult{Text: text, ToolCalls: toolCalls}
}

// complete performs the LLM call, collecting a stream when requested
func (uc *ReplyerUsecase) complete(ctx context.Context, req *repo.ChatRequest, streaming bool) (string, []repo.ToolCall, error) {
	if streaming {
		ch, err := uc.llm.ChatCompletionStream(ctx, req)
		if err != nil {
			return "", nil, err
		}
		var sb strings.Builder
		for chunk := range ch {
			if chunk.Err != nil {
				return "", nil, chunk.Err
			}
			sb.WriteString(chunk.Delta)
		}
		return sb.String(), nil, nil
	}

	result, err := uc.llm.ChatCompletion(ctx, req)
	if err != nil {
		return "", nil, err
	}
	return result.Content, result.ToolCalls, nil
}

// runToolRound executes requested tool calls and asks the model to finish
// with their results in context
func (uc *ReplyerUsecase) runToolRound(ctx context.Context, req *repo.ChatRequest, calls []repo.ToolCall) (string, error) {
	var sb strings.Builder
	sb.WriteString("工具调用结果：\n")
	for _, call := range calls {
		result, err := uc.tools.RunTool(ctx, call)
		if err != nil {
			uc.log.Warnw("tool call failed", "tool", call.Name, "err", err)
			result = fmt.Sprintf("(工具 %s 调用失败)", call.Name)
		}
		sb.WriteString(fmt.Sprintf("- %s: %s\n", call.Name, result))
	}
	sb.WriteString("\n根据结果，直接输出你要说的话。")

	followUp := &repo.ChatRequest{
		Messages: append(append([]repo.ChatMessage{}, req.Messages...),
			repo.ChatMessage{Role: repo.RoleUser, Content: sb.String()}),
		Temperature: replyTemperature,
		MaxTokens:   replyMaxTokens,
	}
	result, err := uc.llm.ChatCompletion(ctx, followUp)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// buildPrompt assembles the reply prompt. The jargon and expression layers
// are looked up concurrently; layer order in the prompt is fixed.
func (uc *ReplyerUsecase) buildPrompt(ctx context.Context, rctx *ReplyContext) string {
	var jargonLayer, exprLayer string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		jargonLayer = uc.jargonLayer(gctx, rctx.ChatID)
		return nil
	})
	g.Go(func() error {
		exprLayer = uc.expressionLayer(gctx, rctx.ChatID)
		return nil
	})
	_ = g.Wait()

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("你是\"%s\"。%s\n\n", uc.cfg.BotName, uc.cfg.Persona))

	if jargonLayer != "" {
		sb.WriteString(jargonLayer)
		sb.WriteString("\n")
	}
	if exprLayer != "" {
		sb.WriteString(exprLayer)
		sb.WriteString("\n")
	}

	sb.WriteString("## 最近的聊天记录\n")
	for _, m := range rctx.Messages {
		name := m.SenderLabel()
		if m.IsBotMessage {
			name = uc.cfg.BotPlaceholder
		}
		sb.WriteString(fmt.Sprintf("[%s] %s: %s\n", m.Time.Format("15:04:05"), name, m.PlainText))
	}

	if target := uc.findTarget(rctx); target != nil {
		sb.WriteString(fmt.Sprintf("\n你要回应的是 %s 说的: %s\n", target.SenderLabel(), target.PlainText))
	}
	if rctx.PlanReasoning != "" {
		sb.WriteString(fmt.Sprintf("你决定回复的原因: %s\n", rctx.PlanReasoning))
	}

	sb.WriteString("\n")
	sb.WriteString(uc.cfg.SpeakInstruction)
	return sb.String()
}

func (uc *ReplyerUsecase) findTarget(rctx *ReplyContext) *domain.MessageRecord {
	if rctx.TargetMessageID == "" {
		return nil
	}
	for i := len(rctx.Messages) - 1; i >= 0; i-- {
		if rctx.Messages[i].MessageID == rctx.TargetMessageID {
			return rctx.Messages[i]
		}
	}
	return nil
}

func (uc *ReplyerUsecase) jargonLayer(ctx context.Context, chatID string) string {
	if uc.jargons == nil {
		return ""
	}
	jargons, err := uc.jargons.KnownJargons(ctx, chatID, knownJargonLimit)
	if err != nil {
		uc.log.Warnw("load known jargons", "chat", chatID, "err", err)
		return ""
	}
	if len(jargons) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## 这个群的黑话\n")
	for _, j := range jargons {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", j.Content, j.Meaning))
	}
	return sb.String()
}

func (uc *ReplyerUsecase) expressionLayer(ctx context.Context, chatID string) string {
	if uc.selector == nil {
		return ""
	}
	exprs, err := uc.selector.Select(ctx, chatID)
	if err != nil {
		uc.log.Warnw("select expressions", "chat", chatID, "err", err)
		return ""
	}
	if len(exprs) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("## 群里的说话习惯\n")
	for _, e := range exprs {
		sb.WriteString(fmt.Sprintf("- 当%s时，%s\n", e.Situation, e.Style))
	}
	return sb.String()
}

// RecordBotMessage persists the bot's own outgoing message so learning and
// context see both sides of the conversation
func (uc *ReplyerUsecase) RecordBotMessage(ctx context.Context, chatID, groupID, messageID, text string) error {
	if messageID == "" {
		messageID = uuid.NewString()
	}
	record := &domain.MessageRecord{
		MessageID:    messageID,
		ChatID:       chatID,
		UserID:       "bot",
		UserNickname: uc.cfg.BotName,
		PlainText:    text,
		GroupID:      groupID,
		Time:         uc.now(),
		IsBotMessage: true,
	}
	if err := uc.msgs.SaveMessage(ctx, record); err != nil {
		return fmt.Errorf("save bot message: %w", err)
	}
	return nil
}

// CleanReplyText strips model artifacts: tool-call XML fragments, CQ at
// markers, wrapping quotes, and self-naming prefixes.
func CleanReplyText(text string) string {
	text = argTagRe.ReplaceAllString(text, "")
	text = atArtifactRe.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)

	// Models sometimes quote the whole reply or prefix their own name
	if len(text) >= 2 {
		for _, pair := range [][2]string{{`"`, `"`}, {"“", "”"}, {"「", "」"}} {
			if strings.HasPrefix(text, pair[0]) && strings.HasSuffix(text, pair[1]) {
				text = strings.TrimSuffix(strings.TrimPrefix(text, pair[0]), pair[1])
				break
			}
		}
	}
	if idx := strings.Index(text, "："); idx > 0 && idx <= 12 && !strings.ContainsAny(text[:idx], " \n") {
		text = text[idx+len("："):]
	}
	return strings.TrimSpace(text)
}
