package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz"
	"github.com/anthropics/ruabot/internal/biz/repo"
	"github.com/anthropics/ruabot/internal/biz/usecase"
	"github.com/anthropics/ruabot/internal/conf"
	"github.com/anthropics/ruabot/internal/data"
	"github.com/anthropics/ruabot/internal/infra/mcptool"
	"github.com/anthropics/ruabot/internal/infra/onebot"
	"github.com/anthropics/ruabot/internal/server"
	"github.com/anthropics/ruabot/internal/service"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := conf.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := newLogger(cfg.Debug)
	defer logger.Sync()
	sugar := logger.Sugar()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repos, err := data.NewRepositories(cfg.DB.Path)
	if err != nil {
		sugar.Fatalw("failed to open database", "path", cfg.DB.Path, "err", err)
	}
	defer repos.Close()
	sugar.Infow("database ready", "path", cfg.DB.Path)

	llm := data.NewLLMRepo(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)

	var tools repo.ToolRunner
	if cfg.MCP.ServerPath != "" {
		mcpClient, err := mcptool.NewClient(ctx, cfg.MCP.ServerPath, sugar)
		if err != nil {
			sugar.Warnw("mcp server unavailable, tools disabled", "err", err)
		} else {
			tools = mcpClient
			defer mcpClient.Close()
		}
	}

	botClient := onebot.NewClient(cfg.OneBot.WSURL, cfg.OneBot.AccessToken, sugar)
	transport := data.NewTransportRepo(botClient)

	promptCfg := cfg.ToPromptConfig()
	selector := usecase.NewExpressionSelector(repos.Expression, llm, cfg.LLM.ThinkLevel, sugar)

	ucs := &biz.Usecases{
		Config:     usecase.NewConfigUsecase(repos.Config, sugar),
		Frequency:  usecase.NewFrequencyUsecase(sugar),
		HeartFlow:  usecase.NewHeartFlowUsecase(sugar),
		Planner:    usecase.NewPlannerUsecase(llm, promptCfg, sugar),
		Replyer:    usecase.NewReplyerUsecase(llm, repos.Jargon, repos.Message, selector, tools, promptCfg, sugar),
		Expression: usecase.NewExpressionLearnerUsecase(llm, repos.Expression, repos.Message, promptCfg, sugar),
		Jargon:     usecase.NewJargonMinerUsecase(llm, repos.Jargon, repos.Message, promptCfg, sugar),
		Sticker:    usecase.NewStickerLearnerUsecase(llm, repos.Sticker, cfg.LLM.StickerUseLLM, promptCfg, sugar),
		Knowledge:  usecase.NewKnowledgeExtractorUsecase(llm, repos.Knowledge, sugar),
		Profiler:   usecase.NewProfilerUsecase(llm, repos.Profile, repos.Message, promptCfg, sugar),
		Summarizer: usecase.NewSummarizerUsecase(llm, repos.Summary, repos.Message, promptCfg, sugar),
		Checker:    usecase.NewExpressionCheckerUsecase(llm, repos.Expression, sugar),
	}

	learning := service.NewLearningService(
		ucs.Config, ucs.Expression, ucs.Jargon, ucs.Sticker, ucs.Knowledge,
		ucs.Profiler, ucs.Summarizer, repos.Message,
		cfg.Learning.Workers, cfg.Learning.QueueSize, sugar,
	)
	learning.Start(ctx)

	handler := service.NewHandlerService(
		ucs.Config, ucs.Frequency, ucs.HeartFlow, ucs.Planner, ucs.Replyer,
		repos.Message, transport, learning, sugar,
	)

	cronRunner := service.NewCronRunner(ucs.Config, ucs.Summarizer, ucs.Profiler, ucs.Checker, repos.Message, sugar)
	if err := cronRunner.Start(ctx); err != nil {
		sugar.Fatalw("failed to start cron runner", "err", err)
	}

	srv := server.NewOneBotServer(botClient, handler, cfg.OneBot.BotUserID, sugar)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		sugar.Infow("shutting down")
		cancel()
	}()

	sugar.Infow("ruabot starting", "ws", cfg.OneBot.WSURL, "model", cfg.LLM.Model)
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		sugar.Errorw("server stopped", "err", err)
	}

	cronRunner.Stop()
	learning.Stop()
	sugar.Infow("ruabot stopped")
}

func newLogger(debug bool) *zap.Logger {
	if debug {
		logger, err := zap.NewDevelopment()
		if err != nil {
			log.Fatalf("Failed to build logger: %v", err)
		}
		return logger
	}
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	return logger
}
