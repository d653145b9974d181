package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
	"github.com/anthropics/ruabot/internal/biz/usecase"
)

const (
	dedupCacheSize   = 512
	recentWindowSize = 20

	thinkInterval    = 3 * time.Second
	thinkStopTimeout = 10 * time.Second
)

// skipPhrases short-circuit the pipeline without a reply
var skipPhrases = []string{"别回我", "不要回复", "别回复", "不用回"}

// InboundMessage is one normalized message from the transport
type InboundMessage struct {
	MessageID  string
	ChatID     string
	GroupID    string
	UserID     string
	Nickname   string
	Cardname   string
	PlainText  string
	RawMessage string
	Time       time.Time
	IsGroup    bool
	Mentioned  bool
}

// HandlerService drives the message pipeline: record, gate, plan, reply.
// Handling is serialized per chat so plans never interleave.
type HandlerService struct {
	configUC  *usecase.ConfigUsecase
	freqUC    *usecase.FrequencyUsecase
	heartflow *usecase.HeartFlowUsecase
	planner   *usecase.PlannerUsecase
	replyer   *usecase.ReplyerUsecase
	msgs      repo.MessageRepo
	transport repo.TransportRepo
	learning  *LearningService
	log       *zap.SugaredLogger

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	seenMu    sync.Mutex
	seen      map[string]bool
	seenOrder []string

	thinkMu  sync.Mutex
	thinkers map[string]*thinker
}

// NewHandlerService creates the orchestrator
func NewHandlerService(
	configUC *usecase.ConfigUsecase,
	freqUC *usecase.FrequencyUsecase,
	heartflow *usecase.HeartFlowUsecase,
	planner *usecase.PlannerUsecase,
	replyer *usecase.ReplyerUsecase,
	msgs repo.MessageRepo,
	transport repo.TransportRepo,
	learning *LearningService,
	log *zap.SugaredLogger,
) *HandlerService {
	return &HandlerService{
		configUC:  configUC,
		freqUC:    freqUC,
		heartflow: heartflow,
		planner:   planner,
		replyer:   replyer,
		msgs:      msgs,
		transport: transport,
		learning:  learning,
		log:       log,
		locks:     make(map[string]*sync.Mutex),
		seen:      make(map[string]bool),
		thinkers:  make(map[string]*thinker),
	}
}

func (s *HandlerService) chatLock(chatID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[chatID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[chatID] = lock
	}
	return lock
}

// alreadySeen dedups by message ID with a bounded FIFO cache
func (s *HandlerService) alreadySeen(messageID string) bool {
	if messageID == "" {
		return false
	}
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	if s.seen[messageID] {
		return true
	}
	s.seen[messageID] = true
	s.seenOrder = append(s.seenOrder, messageID)
	if len(s.seenOrder) > dedupCacheSize {
		delete(s.seen, s.seenOrder[0])
		s.seenOrder = s.seenOrder[1:]
	}
	return false
}

func isSkipRequest(text string) bool {
	for _, phrase := range skipPhrases {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// HandleMessage processes one inbound message end to end
func (s *HandlerService) HandleMessage(ctx context.Context, msg *InboundMessage) {
	if s.alreadySeen(msg.MessageID) {
		return
	}

	lock := s.chatLock(msg.ChatID)
	lock.Lock()
	defer lock.Unlock()

	record := &domain.MessageRecord{
		MessageID:    msg.MessageID,
		ChatID:       msg.ChatID,
		UserID:       msg.UserID,
		UserNickname: msg.Nickname,
		UserCardname: msg.Cardname,
		PlainText:    msg.PlainText,
		RawMessage:   msg.RawMessage,
		GroupID:      msg.GroupID,
		Time:         msg.Time,
	}
	if err := s.msgs.SaveMessage(ctx, record); err != nil {
		s.log.Errorw("failed to record message", "chat", msg.ChatID, "err", err)
	}
	s.heartflow.RecordMessage(msg.ChatID, msg.UserID, msg.PlainText, false)
	defer s.learning.Dispatch(msg.ChatID, record)

	cfg := s.configUC.ChatConfig(ctx, msg.ChatID)
	if !cfg.Enabled {
		return
	}

	if isSkipRequest(msg.PlainText) {
		s.log.Debugw("skip requested by user", "chat", msg.ChatID)
		return
	}

	gate := s.freqUC.Evaluate(msg.ChatID, cfg, msg.PlainText, msg.IsGroup, msg.Mentioned)
	if !gate.Proceed {
		s.log.Debugw("gated", "chat", msg.ChatID, "reason", gate.Reason)
		return
	}

	// The heartflow verdict is advisory context for the planner, never a
	// gate of its own.
	_, flowAdvice := s.heartflow.ShouldReply(msg.ChatID, msg.IsGroup, msg.Mentioned)

	if !s.pause(ctx, s.heartflow.OptimalDelay(msg.ChatID, msg.IsGroup)) {
		return
	}

	s.runPlan(ctx, msg.ChatID, msg.IsGroup, msg.Mentioned, cfg, gate.AdvisoryThreshold, flowAdvice)
}

// pause sleeps for the humanization delay, abandoning the turn on shutdown
func (s *HandlerService) pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// runPlan asks the planner for actions and executes them in order. It
// reports whether a reply was sent and whether the planner closed the talk.
func (s *HandlerService) runPlan(ctx context.Context, chatID string, isGroup, mentioned bool, cfg *domain.ChatConfig, advisory int, flowAdvice string) (replied, completed bool) {
	messages, err := s.msgs.RecentMessages(ctx, chatID, recentWindowSize, false)
	if err != nil {
		s.log.Errorw("failed to load recent messages", "chat", chatID, "err", err)
		return false, true
	}
	if len(messages) == 0 {
		return false, true
	}

	msgCount, replyCount, noReplyStreak := s.freqUC.Counters(chatID)
	pctx := &usecase.PlanContext{
		ChatID:            chatID,
		Atmosphere:        s.heartflow.ContextSnapshot(chatID),
		FlowAdvice:        flowAdvice,
		AdvisoryThreshold: advisory,
		MessageCount:      msgCount,
		ReplyCount:        replyCount,
		ConsecutiveNoRep:  noReplyStreak,
		Mentioned:         mentioned,
	}

	for _, plan := range s.planner.PlanActions(ctx, pctx, messages) {
		switch plan.ActionType {
		case domain.ActionReply:
			if s.executeReply(ctx, chatID, isGroup, cfg, plan, messages) {
				replied = true
			}
		case domain.ActionWait:
			s.log.Debugw("planner chose to wait", "chat", chatID, "reason", plan.Reasoning)
		case domain.ActionCompleteTalk:
			s.log.Debugw("planner closed the talk", "chat", chatID, "reason", plan.Reasoning)
			if !replied {
				s.freqUC.RecordNoReply(chatID)
			}
			return replied, true
		}
	}
	if !replied {
		s.freqUC.RecordNoReply(chatID)
	}
	return replied, false
}

func (s *HandlerService) executeReply(ctx context.Context, chatID string, isGroup bool, cfg *domain.ChatConfig, plan *domain.ActionPlan, messages []*domain.MessageRecord) bool {
	result := s.replyer.GenerateReply(ctx, &usecase.ReplyContext{
		ChatID:          chatID,
		IsGroup:         isGroup,
		TargetMessageID: plan.TargetMessageID,
		PlanReasoning:   plan.Reasoning,
		Messages:        messages,
		Config:          cfg,
	})
	if result.Text == "" {
		return false
	}

	sent, err := s.send(ctx, chatID, isGroup, result.Text)
	if err != nil {
		s.log.Errorw("failed to send reply", "chat", chatID, "err", err)
		return false
	}

	groupID := strings.TrimPrefix(chatID, "group:")
	if !isGroup {
		groupID = ""
	}
	if err := s.replyer.RecordBotMessage(ctx, chatID, groupID, sent.MessageID, result.Text); err != nil {
		s.log.Warnw("failed to record bot message", "chat", chatID, "err", err)
	}
	s.heartflow.RecordMessage(chatID, "", result.Text, true)
	s.freqUC.RecordReply(chatID)
	return true
}

func (s *HandlerService) send(ctx context.Context, chatID string, isGroup bool, text string) (*repo.SendResult, error) {
	if isGroup {
		return s.transport.SendGroupMessage(ctx, strings.TrimPrefix(chatID, "group:"), text)
	}
	return s.transport.SendPrivateMessage(ctx, strings.TrimPrefix(chatID, "user:"), text)
}
