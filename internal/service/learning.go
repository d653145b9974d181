package service

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
	"github.com/anthropics/ruabot/internal/biz/usecase"
)

// Platform tag used in profile keys.
const platformQQ = "qq"

const learnerBatchLimit = 60

type learningTask struct {
	chatID  string
	message *domain.MessageRecord
}

// LearningService fans each handled message out to the learning workers
// through a bounded queue. A full queue drops the task; learning is best
// effort and must never block the reply path.
type LearningService struct {
	configUC    *usecase.ConfigUsecase
	expressions *usecase.ExpressionLearnerUsecase
	jargons     *usecase.JargonMinerUsecase
	stickers    *usecase.StickerLearnerUsecase
	knowledge   *usecase.KnowledgeExtractorUsecase
	profiler    *usecase.ProfilerUsecase
	summarizer  *usecase.SummarizerUsecase
	msgs        repo.MessageRepo
	log         *zap.SugaredLogger

	queue   chan learningTask
	workers int
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
}

// NewLearningService creates the learning fan-out
func NewLearningService(
	configUC *usecase.ConfigUsecase,
	expressions *usecase.ExpressionLearnerUsecase,
	jargons *usecase.JargonMinerUsecase,
	stickers *usecase.StickerLearnerUsecase,
	knowledge *usecase.KnowledgeExtractorUsecase,
	profiler *usecase.ProfilerUsecase,
	summarizer *usecase.SummarizerUsecase,
	msgs repo.MessageRepo,
	workers, queueSize int,
	log *zap.SugaredLogger,
) *LearningService {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &LearningService{
		configUC:    configUC,
		expressions: expressions,
		jargons:     jargons,
		stickers:    stickers,
		knowledge:   knowledge,
		profiler:    profiler,
		summarizer:  summarizer,
		msgs:        msgs,
		log:         log,
		queue:       make(chan learningTask, queueSize),
		workers:     workers,
	}
}

// Start launches the worker pool
func (s *LearningService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}
	s.log.Infow("learning workers started", "workers", s.workers, "queue", cap(s.queue))
}

// Stop drains the queue and waits for in-flight tasks
func (s *LearningService) Stop() {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	close(s.queue)
	s.wg.Wait()
	s.log.Infow("learning workers stopped")
}

// Dispatch enqueues one message for learning. Returns false when the queue
// is full or the service is stopped.
func (s *LearningService) Dispatch(chatID string, msg *domain.MessageRecord) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	select {
	case s.queue <- learningTask{chatID: chatID, message: msg}:
		return true
	default:
		s.log.Warnw("learning queue full, dropping task", "chat", chatID)
		return false
	}
}

func (s *LearningService) worker(ctx context.Context) {
	defer s.wg.Done()
	for task := range s.queue {
		s.process(ctx, task)
	}
}

func (s *LearningService) process(ctx context.Context, task learningTask) {
	settings := s.configUC.LearningSettings(ctx, task.chatID)

	if settings.ExpressionLearning {
		s.runStep(task.chatID, "expression", func() error {
			return s.expressions.Learn(ctx, task.chatID)
		})
	}
	if settings.JargonLearning {
		s.runStep(task.chatID, "jargon", func() error {
			return s.jargons.Mine(ctx, task.chatID)
		})
	}
	if settings.StickerLearning && task.message != nil {
		s.runStep(task.chatID, "sticker", func() error {
			return s.learnStickers(ctx, task)
		})
	}
	if settings.KnowledgeGraph && task.message != nil && s.knowledge.Qualifies(task.message) {
		s.runStep(task.chatID, "knowledge", func() error {
			return s.knowledge.Extract(ctx, task.message)
		})
	}
	if settings.PersonProfiling && task.message != nil && !task.message.IsBotMessage {
		s.runStep(task.chatID, "person profile", func() error {
			return s.profiler.ProfilePerson(ctx, platformQQ, task.chatID, task.message.UserID)
		})
	}
	if settings.Summarization {
		s.runStep(task.chatID, "summary", func() error {
			return s.summarizer.Summarize(ctx, task.chatID, false)
		})
	}
}

// learnStickers locates the triggering message in recent history so the
// sticker learner gets its surrounding context window.
func (s *LearningService) learnStickers(ctx context.Context, task learningTask) error {
	messages, err := s.msgs.RecentMessages(ctx, task.chatID, learnerBatchLimit, false)
	if err != nil {
		return err
	}
	index := len(messages) - 1
	for i, m := range messages {
		if m.MessageID == task.message.MessageID {
			index = i
			break
		}
	}
	if index < 0 {
		return nil
	}
	return s.stickers.Learn(ctx, task.chatID, messages, index)
}

// runStep isolates one learning step: a panic or error is logged and the
// remaining steps still run.
func (s *LearningService) runStep(chatID, name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorw("learning step panicked", "chat", chatID, "step", name, "panic", r)
		}
	}()
	if err := fn(); err != nil {
		s.log.Warnw("learning step failed", "chat", chatID, "step", name, "err", err)
	}
}
