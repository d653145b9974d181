package service

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
	"github.com/anthropics/ruabot/internal/biz/usecase"
)

const activeChatWindow = time.Hour

// CronRunner drives the periodic maintenance passes: chat summaries and
// group profiles for recently active chats.
type CronRunner struct {
	configUC   *usecase.ConfigUsecase
	summarizer *usecase.SummarizerUsecase
	profiler   *usecase.ProfilerUsecase
	checker    *usecase.ExpressionCheckerUsecase
	msgs       repo.MessageRepo
	log        *zap.SugaredLogger

	cron *cron.Cron
}

// NewCronRunner creates the runner
func NewCronRunner(
	configUC *usecase.ConfigUsecase,
	summarizer *usecase.SummarizerUsecase,
	profiler *usecase.ProfilerUsecase,
	checker *usecase.ExpressionCheckerUsecase,
	msgs repo.MessageRepo,
	log *zap.SugaredLogger,
) *CronRunner {
	return &CronRunner{
		configUC:   configUC,
		summarizer: summarizer,
		profiler:   profiler,
		checker:    checker,
		msgs:       msgs,
		log:        log,
		cron:       cron.New(),
	}
}

// Start registers the sweep schedules and starts the scheduler
func (r *CronRunner) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc("@every 10m", func() { r.summarySweep(ctx) }); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc("@every 30m", func() { r.profileSweep(ctx) }); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc("@every 20m", func() { r.checkSweep(ctx) }); err != nil {
		return err
	}
	r.cron.Start()
	r.log.Infow("cron runner started")
	return nil
}

// Stop stops the scheduler and waits for running jobs
func (r *CronRunner) Stop() {
	<-r.cron.Stop().Done()
	r.log.Infow("cron runner stopped")
}

func (r *CronRunner) activeChats(ctx context.Context) []string {
	chats, err := r.msgs.ActiveChats(ctx, time.Now().Add(-activeChatWindow))
	if err != nil {
		r.log.Warnw("failed to list active chats", "err", err)
		return nil
	}
	return chats
}

func (r *CronRunner) summarySweep(ctx context.Context) {
	for _, chatID := range r.activeChats(ctx) {
		settings := r.configUC.LearningSettings(ctx, chatID)
		if !settings.Summarization {
			continue
		}
		if err := r.summarizer.Summarize(ctx, chatID, false); err != nil {
			r.log.Warnw("summary sweep failed", "chat", chatID, "err", err)
		}
	}
}

// checkSweep reviews pending expressions, gated by the global auto-check flag
func (r *CronRunner) checkSweep(ctx context.Context) {
	settings := r.configUC.LearningSettings(ctx, "")
	if !settings.AutoCheck {
		return
	}
	if err := r.checker.Check(ctx); err != nil {
		r.log.Warnw("expression check sweep failed", "err", err)
	}
}

func (r *CronRunner) profileSweep(ctx context.Context) {
	for _, chatID := range r.activeChats(ctx) {
		if !domain.IsGroupChat(chatID) {
			continue
		}
		settings := r.configUC.LearningSettings(ctx, chatID)
		if !settings.GroupProfiling {
			continue
		}
		if err := r.profiler.ProfileGroup(ctx, platformQQ, chatID); err != nil {
			r.log.Warnw("profile sweep failed", "chat", chatID, "err", err)
		}
	}
}
