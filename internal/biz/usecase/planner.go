package usecase

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
	"github.com/anthropics/ruabot/internal/jsonx"
)

// Planner LLM call parameters.
const (
	plannerTemperature = 0.4
	plannerMaxTokens   = 1000
)

// PlanContext carries the advisory state the planner reasons over
type PlanContext struct {
	ChatID            string
	Atmosphere        string
	// FlowAdvice is the heartflow verdict on speaking up right now. It is
	// advisory context only; the planner keeps final authority.
	FlowAdvice        string
	AdvisoryThreshold int
	MessageCount      int
	ReplyCount        int
	ConsecutiveNoRep  int
	Mentioned         bool
}

// PlannerUsecase chooses the next actions for a chat via a single
// reasoning-then-acting LLM call
type PlannerUsecase struct {
	llm repo.LLMRepo
	cfg PromptConfig
	log *zap.SugaredLogger
	now func() time.Time

	mu        sync.Mutex
	histories map[string]*domain.PlanHistory
}

// NewPlannerUsecase creates a planner
func NewPlannerUsecase(llm repo.LLMRepo, cfg PromptConfig, log *zap.SugaredLogger) *PlannerUsecase {
	return &PlannerUsecase{
		llm:       llm,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		histories: make(map[string]*domain.PlanHistory),
	}
}

func (uc *PlannerUsecase) history(chatID string) *domain.PlanHistory {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	h, ok := uc.histories[chatID]
	if !ok {
		h = &domain.PlanHistory{}
		uc.histories[chatID] = h
	}
	return h
}

// PlanActions asks the LLM to choose 1..N actions for the chat. It never
// fails: any LLM or parse problem degrades to a single complete_talk.
func (uc *PlannerUsecase) PlanActions(ctx context.Context, pctx *PlanContext, messages []*domain.MessageRecord) []*domain.ActionPlan {
	prompt := uc.buildPrompt(pctx, messages)

	result, err := uc.llm.ChatCompletion(ctx, &repo.ChatRequest{
		Messages:    []repo.ChatMessage{{Role: repo.RoleUser, Content: prompt}},
		Temperature: plannerTemperature,
		MaxTokens:   plannerMaxTokens,
	})
	if err != nil {
		uc.log.Warnw("planner llm call failed", "chat", pctx.ChatID, "err", err)
		return uc.fallback(pctx.ChatID)
	}

	plans := uc.parseActions(result.Content, messages)
	if len(plans) == 0 {
		uc.log.Debugw("planner produced no parseable actions", "chat", pctx.ChatID)
		return uc.fallback(pctx.ChatID)
	}

	uc.history(pctx.ChatID).Add(plans...)
	return plans
}

func (uc *PlannerUsecase) fallback(chatID string) []*domain.ActionPlan {
	plan := &domain.ActionPlan{
		ActionType: domain.ActionCompleteTalk,
		Reasoning:  "planning failed, pausing",
		PlannedAt:  uc.now(),
	}
	uc.history(chatID).Add(plan)
	return []*domain.ActionPlan{plan}
}

func (uc *PlannerUsecase) buildPrompt(pctx *PlanContext, messages []*domain.MessageRecord) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("你是群聊机器人\"%s\"的决策模块。先思考，再用 JSON 给出行动。\n\n", uc.cfg.BotName))

	sb.WriteString("## 当前状态\n")
	sb.WriteString(fmt.Sprintf("- 时间: %s\n", uc.now().Format("2006-01-02 15:04:05")))
	if pctx.Atmosphere != "" {
		sb.WriteString(fmt.Sprintf("- %s\n", pctx.Atmosphere))
	}
	if pctx.FlowAdvice != "" {
		sb.WriteString(fmt.Sprintf("- 心流判断: %s\n", pctx.FlowAdvice))
	}
	sb.WriteString(fmt.Sprintf("- 最近消息数: %d, 已回复数: %d, 连续未回复: %d\n",
		pctx.MessageCount, pctx.ReplyCount, pctx.ConsecutiveNoRep))
	sb.WriteString(fmt.Sprintf("- 建议再观察 %d 条消息后再考虑发言（仅供参考）\n", pctx.AdvisoryThreshold))
	if pctx.Mentioned {
		sb.WriteString("- 有人@了你\n")
	}

	sb.WriteString("\n## 最近的消息\n")
	for i, m := range messages {
		name := m.SenderLabel()
		if m.IsBotMessage {
			name = uc.cfg.BotPlaceholder
		}
		sb.WriteString(fmt.Sprintf("m%d [%s] %s: %s\n", i+1, m.Time.Format("15:04:05"), name, m.PlainText))
	}

	if recent := uc.history(pctx.ChatID).Recent(3); len(recent) > 0 {
		sb.WriteString("\n## 你之前的决策\n")
		for _, p := range recent {
			sb.WriteString(fmt.Sprintf("- %s: %s\n", p.ActionType, p.Reasoning))
		}
	}

	sb.WriteString(`
## 可选行动
每个行动用一个 json 代码块表示，可以输出多个：

` + "```json" + `
{"action": "reply", "reasoning": "为什么回复", "target_message_id": "m3"}
` + "```" + `
` + "```json" + `
{"action": "wait", "reasoning": "为什么等待"}
` + "```" + `
` + "```json" + `
{"action": "complete_talk", "reasoning": "为什么结束这轮关注"}
` + "```" + `

`)
	sb.WriteString(uc.cfg.PlannerGuidelines)
	sb.WriteString("\n\n先写出你的思考，然后输出行动的 json 代码块。")

	return sb.String()
}

// plannedAction is the wire shape of one action block
type plannedAction struct {
	Action          string         `json:"action"`
	ActionType      string         `json:"action_type"`
	Reasoning       string         `json:"reasoning"`
	TargetMessageID string         `json:"target_message_id"`
	ActionData      map[string]any `json:"action_data"`
}

// parseActions extracts action blocks from the planner response. Blocks
// that fail both strict and repair parsing are skipped individually.
func (uc *PlannerUsecase) parseActions(response string, messages []*domain.MessageRecord) []*domain.ActionPlan {
	var plans []*domain.ActionPlan
	for _, block := range jsonx.FencedBlocks(response) {
		var pa plannedAction
		if res := jsonx.Decode(block, &pa); !res.OK {
			uc.log.Debugw("skipping unparseable action block", "reason", res.Reason)
			continue
		}
		actionType := pa.Action
		if actionType == "" {
			actionType = pa.ActionType
		}
		if !domain.IsValidActionType(actionType) {
			continue
		}
		plans = append(plans, &domain.ActionPlan{
			ActionType:      domain.ActionType(actionType),
			Reasoning:       pa.Reasoning,
			TargetMessageID: uc.resolveTarget(pa.TargetMessageID, messages),
			ActionData:      pa.ActionData,
			PlannedAt:       uc.now(),
		})
	}
	return plans
}

// resolveTarget maps an m<N> label back to a real message ID. Unresolvable
// targets default to the newest message.
func (uc *PlannerUsecase) resolveTarget(target string, messages []*domain.MessageRecord) string {
	if len(messages) == 0 {
		return ""
	}
	latest := messages[len(messages)-1].MessageID

	target = strings.TrimSpace(target)
	if !strings.HasPrefix(target, "m") {
		return latest
	}
	idx, err := strconv.Atoi(target[1:])
	if err != nil || idx < 1 || idx > len(messages) {
		return latest
	}
	return messages[idx-1].MessageID
}

// RecentPlans exposes the retained history for orchestrator diagnostics
func (uc *PlannerUsecase) RecentPlans(chatID string, n int) []*domain.ActionPlan {
	return uc.history(chatID).Recent(n)
}
