package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
	"github.com/anthropics/ruabot/internal/jsonx"
)

const profileBatchSize = 50

// keyedMutex hands out one mutex per key. TryLock lets callers skip a run
// instead of queueing behind one already in flight.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*sync.Mutex)}
}

func (k *keyedMutex) get(key string) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	return m
}

// ProfilerUsecase maintains long-lived person and group impressions.
// Overlapping runs for the same key are skipped, not queued.
type ProfilerUsecase struct {
	llm      repo.LLMRepo
	profiles repo.ProfileRepo
	msgs     repo.MessageRepo
	cfg      PromptConfig
	log      *zap.SugaredLogger
	locks    *keyedMutex
}

// NewProfilerUsecase creates a profiler
func NewProfilerUsecase(llm repo.LLMRepo, profiles repo.ProfileRepo, msgs repo.MessageRepo, cfg PromptConfig, log *zap.SugaredLogger) *ProfilerUsecase {
	return &ProfilerUsecase{
		llm:      llm,
		profiles: profiles,
		msgs:     msgs,
		cfg:      cfg,
		log:      log,
		locks:    newKeyedMutex(),
	}
}

// personImpression is the wire shape of one person profiling result
type personImpression struct {
	Nickname     string   `json:"nickname"`
	NameReason   string   `json:"name_reason"`
	MemoryPoints []string `json:"memory_points"`
}

// ProfilePerson refreshes the impression of one user in one chat. Requires
// at least MinMessagesForPersonProfile recent messages from them.
func (uc *ProfilerUsecase) ProfilePerson(ctx context.Context, platform, chatID, userID string) error {
	personID := domain.PersonID(platform, userID)
	lock := uc.locks.get("person:" + personID)
	if !lock.TryLock() {
		uc.log.Debugw("person profiling already running", "person", personID)
		return nil
	}
	defer lock.Unlock()

	messages, err := uc.msgs.RecentMessagesByUser(ctx, chatID, userID, profileBatchSize)
	if err != nil {
		return fmt.Errorf("load user messages: %w", err)
	}
	if len(messages) < domain.MinMessagesForPersonProfile {
		return nil
	}

	var sb strings.Builder
	for _, m := range messages {
		sb.WriteString(fmt.Sprintf("[%s] %s\n", m.Time.Format("01-02 15:04"), m.PlainText))
	}

	prompt := fmt.Sprintf(`根据用户"%s"最近的发言，更新你对这个人的印象。

%s
输出 JSON: {"nickname": "给这个人起的简短代称", "name_reason": "为什么这么叫", "memory_points": ["印象点1", "印象点2", "印象点3"]}
memory_points 给 3 到 5 条，都要简短具体。`, messages[len(messages)-1].SenderLabel(), sb.String())

	result, err := uc.llm.ChatCompletion(ctx, &repo.ChatRequest{
		Messages:    []repo.ChatMessage{{Role: repo.RoleUser, Content: prompt}},
		Temperature: 0.5,
		MaxTokens:   500,
	})
	if err != nil {
		return fmt.Errorf("person profiling call: %w", err)
	}

	var impression personImpression
	if res := jsonx.ExtractObject(result.Content, &impression); !res.OK {
		uc.log.Debugw("unparseable person impression", "person", personID, "reason", res.Reason)
		return nil
	}

	profile, err := uc.profiles.GetPerson(ctx, personID)
	if err != nil {
		return fmt.Errorf("load person profile: %w", err)
	}
	now := time.Now()
	if profile == nil {
		profile = &domain.PersonProfile{
			PersonID:  personID,
			Platform:  platform,
			UserID:    userID,
			KnowSince: now,
		}
	}
	profile.PersonName = messages[len(messages)-1].SenderLabel()
	if impression.Nickname != "" {
		profile.Nickname = impression.Nickname
		profile.NameReason = impression.NameReason
	}
	profile.AddMemoryPoints(impression.MemoryPoints)
	profile.IsKnown = true
	profile.LastKnow = now

	if err := uc.profiles.SavePerson(ctx, profile); err != nil {
		return fmt.Errorf("save person profile: %w", err)
	}
	uc.log.Debugw("person profile updated", "person", personID, "points", len(profile.MemoryPoints))
	return nil
}

// groupImpression is the wire shape of one group profiling result
type groupImpression struct {
	Impression string `json:"impression"`
	Topic      string `json:"topic"`
}

// ProfileGroup refreshes the impression of one group chat. Requires at
// least MinMessagesForGroupProfile recent messages. The member list is
// derived from recent non-bot senders.
func (uc *ProfilerUsecase) ProfileGroup(ctx context.Context, platform, chatID string) error {
	lock := uc.locks.get("group:" + chatID)
	if !lock.TryLock() {
		uc.log.Debugw("group profiling already running", "chat", chatID)
		return nil
	}
	defer lock.Unlock()

	messages, err := uc.msgs.RecentMessages(ctx, chatID, profileBatchSize, false)
	if err != nil {
		return fmt.Errorf("load group messages: %w", err)
	}
	if len(messages) < domain.MinMessagesForGroupProfile {
		return nil
	}

	groupID := strings.TrimPrefix(chatID, "group:")
	seen := make(map[string]bool)
	var members []string
	var sb strings.Builder
	for _, m := range messages {
		if !m.IsBotMessage && !seen[m.UserID] {
			seen[m.UserID] = true
			members = append(members, m.SenderLabel())
		}
		sb.WriteString(m.FormatLine(uc.cfg.BotPlaceholder))
		sb.WriteString("\n")
	}

	prompt := fmt.Sprintf(`根据这个群最近的聊天记录，总结你对这个群的印象和当前话题。

%s
输出 JSON: {"impression": "对群的整体印象，一两句", "topic": "最近在聊什么"}`, sb.String())

	result, err := uc.llm.ChatCompletion(ctx, &repo.ChatRequest{
		Messages:    []repo.ChatMessage{{Role: repo.RoleUser, Content: prompt}},
		Temperature: 0.5,
		MaxTokens:   400,
	})
	if err != nil {
		return fmt.Errorf("group profiling call: %w", err)
	}

	var impression groupImpression
	if res := jsonx.ExtractObject(result.Content, &impression); !res.OK {
		uc.log.Debugw("unparseable group impression", "chat", chatID, "reason", res.Reason)
		return nil
	}

	profile, err := uc.profiles.GetGroup(ctx, groupID)
	if err != nil {
		return fmt.Errorf("load group profile: %w", err)
	}
	now := time.Now()
	if profile == nil {
		profile = &domain.GroupProfile{
			GroupID:    groupID,
			Platform:   platform,
			CreateTime: now,
		}
	}
	if impression.Impression != "" {
		profile.Impression = impression.Impression
	}
	if impression.Topic != "" {
		profile.Topic = impression.Topic
	}
	profile.MemberList = members
	profile.MemberCount = len(members)
	profile.LastActive = now

	if err := uc.profiles.SaveGroup(ctx, profile); err != nil {
		return fmt.Errorf("save group profile: %w", err)
	}
	return nil
}
