package biz

import (
	"github.com/anthropics/ruabot/internal/biz/usecase"
)

// Usecases contains all usecases
type Usecases struct {
	Config     *usecase.ConfigUsecase
	Frequency  *usecase.FrequencyUsecase
	HeartFlow  *usecase.HeartFlowUsecase
	Planner    *usecase.PlannerUsecase
	Replyer    *usecase.ReplyerUsecase
	Expression *usecase.ExpressionLearnerUsecase
	Jargon     *usecase.JargonMinerUsecase
	Sticker    *usecase.StickerLearnerUsecase
	Knowledge  *usecase.KnowledgeExtractorUsecase
	Profiler   *usecase.ProfilerUsecase
	Summarizer *usecase.SummarizerUsecase
	Checker    *usecase.ExpressionCheckerUsecase
}
