package usecase

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
	"github.com/anthropics/ruabot/internal/jsonx"
)

// stickerContextRadius is the number of messages kept on each side of the
// message carrying the marker.
const stickerContextRadius = 5

// CQ-code patterns for expressive elements inside raw messages.
var (
	cqImageRe   = regexp.MustCompile(`\[CQ:image(?:,[^\]]*?)?(?:,file=([^,\]]+))?(?:,url=([^,\]]+))?[^\]]*\]`)
	cqFaceRe    = regexp.MustCompile(`\[CQ:face,id=(\d+)[^\]]*\]`)
	cqStickerRe = regexp.MustCompile(`\[CQ:sticker,id=([^,\]]+)[^\]]*\]`)
)

// StickerLearnerUsecase learns when and why expressive elements are used.
// useLLM=false keeps it on cheap keyword heuristics.
type StickerLearnerUsecase struct {
	llm      repo.LLMRepo
	stickers repo.StickerRepo
	cfg      PromptConfig
	log      *zap.SugaredLogger
	useLLM   bool
}

// NewStickerLearnerUsecase creates a sticker learner
func NewStickerLearnerUsecase(llm repo.LLMRepo, stickers repo.StickerRepo, useLLM bool, cfg PromptConfig, log *zap.SugaredLogger) *StickerLearnerUsecase {
	return &StickerLearnerUsecase{llm: llm, stickers: stickers, cfg: cfg, useLLM: useLLM, log: log}
}

// ExtractMarkers finds expressive-element markers in a raw message
func ExtractMarkers(raw string) []domain.StickerMarker {
	var markers []domain.StickerMarker

	for _, m := range cqImageRe.FindAllStringSubmatch(raw, -1) {
		marker := domain.StickerMarker{Type: domain.StickerTypeImage, File: m[1], URL: m[2]}
		marker.Identifier = marker.File
		if marker.Identifier == "" {
			marker.Identifier = marker.URL
		}
		if marker.Identifier != "" {
			markers = append(markers, marker)
		}
	}
	for _, m := range cqFaceRe.FindAllStringSubmatch(raw, -1) {
		markers = append(markers, domain.StickerMarker{Type: domain.StickerTypeFace, Identifier: m[1]})
	}
	for _, m := range cqStickerRe.FindAllStringSubmatch(raw, -1) {
		markers = append(markers, domain.StickerMarker{Type: domain.StickerTypeSticker, Identifier: m[1]})
	}
	for _, r := range raw {
		if isEmojiRune(r) {
			markers = append(markers, domain.StickerMarker{Type: domain.StickerTypeEmoji, Identifier: string(r)})
		}
	}
	return markers
}

// isEmojiRune covers the common emoji planes, not every Unicode symbol
func isEmojiRune(r rune) bool {
	switch {
	case r >= 0x1F300 && r <= 0x1FAFF:
		return true
	case r >= 0x2600 && r <= 0x27BF:
		return true
	}
	return false
}

// Learn processes one message's markers with the surrounding transcript.
// messages is the chat window containing the message at msgIndex.
func (uc *StickerLearnerUsecase) Learn(ctx context.Context, chatID string, messages []*domain.MessageRecord, msgIndex int) error {
	if msgIndex < 0 || msgIndex >= len(messages) {
		return fmt.Errorf("message index %d out of range", msgIndex)
	}
	markers := ExtractMarkers(messages[msgIndex].RawMessage)
	if len(markers) == 0 {
		return nil
	}

	window := contextWindow(messages, msgIndex, stickerContextRadius)
	contextText := domain.FormatTranscript(window, uc.cfg.BotPlaceholder)

	for _, marker := range markers {
		situation, emotion := uc.inferUsage(ctx, marker, contextText)
		if err := uc.upsert(ctx, chatID, marker, situation, emotion, contextText); err != nil {
			uc.log.Warnw("save sticker", "chat", chatID, "type", marker.Type, "err", err)
		}
	}
	return nil
}

func contextWindow(messages []*domain.MessageRecord, center, radius int) []*domain.MessageRecord {
	lo := center - radius
	if lo < 0 {
		lo = 0
	}
	hi := center + radius + 1
	if hi > len(messages) {
		hi = len(messages)
	}
	return messages[lo:hi]
}

// inferUsage determines (situation, emotion), via keyword heuristics or an
// LLM call. Failures fall back to the heuristic result.
func (uc *StickerLearnerUsecase) inferUsage(ctx context.Context, marker domain.StickerMarker, contextText string) (string, string) {
	situation, emotion := heuristicUsage(contextText)
	if !uc.useLLM || uc.llm == nil {
		return situation, emotion
	}

	prompt := fmt.Sprintf(`群聊中有人发了一个%s。根据上下文，判断它的使用场合和表达的情绪。

上下文：
%s

输出 JSON: {"situation": "...", "emotion": "..."}，都要简短。`, markerLabel(marker), contextText)

	result, err := uc.llm.ChatCompletion(ctx, &repo.ChatRequest{
		Messages:    []repo.ChatMessage{{Role: repo.RoleUser, Content: prompt}},
		Temperature: 0.3,
		MaxTokens:   200,
	})
	if err != nil {
		uc.log.Debugw("sticker inference failed, keeping heuristic", "err", err)
		return situation, emotion
	}

	var parsed struct {
		Situation string `json:"situation"`
		Emotion   string `json:"emotion"`
	}
	if res := jsonx.ExtractObject(result.Content, &parsed); !res.OK {
		return situation, emotion
	}
	if parsed.Situation != "" {
		situation = parsed.Situation
	}
	if parsed.Emotion != "" {
		emotion = parsed.Emotion
	}
	return situation, emotion
}

func markerLabel(marker domain.StickerMarker) string {
	switch marker.Type {
	case domain.StickerTypeFace:
		return "QQ表情"
	case domain.StickerTypeEmoji:
		return fmt.Sprintf("emoji %s", marker.Identifier)
	case domain.StickerTypeSticker:
		return "贴纸"
	default:
		return "表情图片"
	}
}

// heuristicUsage is the cheap keyword classifier used without an LLM
func heuristicUsage(contextText string) (situation, emotion string) {
	switch {
	case strings.ContainsAny(contextText, "哈嘿") || strings.Contains(contextText, "笑"):
		return "玩笑场合", "开心"
	case strings.Contains(contextText, "?") || strings.Contains(contextText, "？"):
		return "有人提问", "疑惑"
	case strings.Contains(contextText, "!") || strings.Contains(contextText, "！"):
		return "情绪高涨", "激动"
	default:
		return "日常闲聊", "平静"
	}
}

// upsert creates or updates the sticker keyed by (type, chat, identifier)
func (uc *StickerLearnerUsecase) upsert(ctx context.Context, chatID string, marker domain.StickerMarker, situation, emotion, contextText string) error {
	sticker, err := uc.stickers.FindSticker(ctx, chatID, marker.Type, marker.Identifier)
	if err != nil {
		return fmt.Errorf("find sticker: %w", err)
	}
	now := time.Now()
	if sticker == nil {
		sticker = &domain.Sticker{
			StickerType: marker.Type,
			StickerID:   marker.Identifier,
			StickerURL:  marker.URL,
			StickerFile: marker.File,
			ChatID:      chatID,
			CreateDate:  now,
		}
	}
	sticker.Situation = situation
	sticker.Emotion = emotion
	sticker.Count++
	sticker.LastActiveTime = now
	sticker.AddContext(contextText)

	if err := uc.stickers.SaveSticker(ctx, sticker); err != nil {
		return fmt.Errorf("save sticker: %w", err)
	}
	return nil
}
