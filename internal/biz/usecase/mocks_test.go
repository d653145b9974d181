package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz/domain"
	"github.com/anthropics/ruabot/internal/biz/repo"
)

// mockLLM replays scripted responses; Respond overrides the script
type mockLLM struct {
	mu        sync.Mutex
	responses []string
	calls     []*repo.ChatRequest
	err       error
	Respond   func(req *repo.ChatRequest) (string, error)
}

func (m *mockLLM) ChatCompletion(ctx context.Context, req *repo.ChatRequest) (*repo.ChatResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, req)
	if m.Respond != nil {
		content, err := m.Respond(req)
		if err != nil {
			return nil, err
		}
		return &repo.ChatResult{Content: content}, nil
	}
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, fmt.Errorf("mockLLM: no scripted response")
	}
	content := m.responses[0]
	m.responses = m.responses[1:]
	return &repo.ChatResult{Content: content}, nil
}

func (m *mockLLM) ChatCompletionStream(ctx context.Context, req *repo.ChatRequest) (<-chan repo.StreamChunk, error) {
	result, err := m.ChatCompletion(ctx, req)
	if err != nil {
		return nil, err
	}
	ch := make(chan repo.StreamChunk, 1)
	ch <- repo.StreamChunk{Delta: result.Content}
	close(ch)
	return ch, nil
}

func (m *mockLLM) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockLLM) call(i int) *repo.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[i]
}

// mockMessageRepo is an in-memory MessageRepo
type mockMessageRepo struct {
	mu       sync.Mutex
	messages []*domain.MessageRecord
}

func (m *mockMessageRepo) SaveMessage(ctx context.Context, msg *domain.MessageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg.ID = int64(len(m.messages) + 1)
	m.messages = append(m.messages, msg)
	return nil
}

func (m *mockMessageRepo) RecentMessages(ctx context.Context, chatID string, limit int, excludeBot bool) ([]*domain.MessageRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.MessageRecord
	for _, msg := range m.messages {
		if msg.ChatID != chatID {
			continue
		}
		if excludeBot && msg.IsBotMessage {
			continue
		}
		out = append(out, msg)
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *mockMessageRepo) MessagesSince(ctx context.Context, chatID string, since time.Time, limit int) ([]*domain.MessageRecord, error) {
	all, _ := m.RecentMessages(ctx, chatID, 0, false)
	var out []*domain.MessageRecord
	for _, msg := range all {
		if msg.Time.After(since) {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *mockMessageRepo) RecentMessagesByUser(ctx context.Context, chatID, userID string, limit int) ([]*domain.MessageRecord, error) {
	all, _ := m.RecentMessages(ctx, chatID, 0, false)
	var out []*domain.MessageRecord
	for _, msg := range all {
		if msg.UserID == userID {
			out = append(out, msg)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *mockMessageRepo) ActiveChats(ctx context.Context, since time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, msg := range m.messages {
		if msg.Time.After(since) && !seen[msg.ChatID] {
			seen[msg.ChatID] = true
			out = append(out, msg.ChatID)
		}
	}
	return out, nil
}

func (m *mockMessageRepo) Close() error { return nil }

// mockExpressionRepo is an in-memory ExpressionRepo
type mockExpressionRepo struct {
	mu          sync.Mutex
	expressions []*domain.Expression
}

func (m *mockExpressionRepo) FindExpression(ctx context.Context, chatID, situation, style string) (*domain.Expression, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.expressions {
		if e.ChatID == chatID && e.Situation == situation && e.Style == style {
			return e, nil
		}
	}
	return nil, nil
}

func (m *mockExpressionRepo) SaveExpression(ctx context.Context, expr *domain.Expression) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.expressions {
		if e.ChatID == expr.ChatID && e.Situation == expr.Situation && e.Style == expr.Style {
			m.expressions[i] = expr
			return nil
		}
	}
	expr.ID = int64(len(m.expressions) + 1)
	m.expressions = append(m.expressions, expr)
	return nil
}

func (m *mockExpressionRepo) IncrementExpression(ctx context.Context, chatID, situation, style string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.expressions {
		if e.ChatID == chatID && e.Situation == situation && e.Style == style {
			e.Count++
			e.LastActiveTime = time.Now()
			return nil
		}
	}
	return nil
}

func (m *mockExpressionRepo) UsableExpressions(ctx context.Context, chatID string, minCount, limit int) ([]*domain.Expression, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Expression
	for _, e := range m.expressions {
		if e.ChatID == chatID && e.Usable() && e.Count > minCount {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockExpressionRepo) UncheckedExpressions(ctx context.Context, limit int) ([]*domain.Expression, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Expression
	for _, e := range m.expressions {
		if !e.Checked {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockExpressionRepo) SetExpressionReview(ctx context.Context, id int64, checked, rejected bool, modifiedBy string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.expressions {
		if e.ID == id {
			e.Checked = checked
			e.Rejected = rejected
			e.ModifiedBy = modifiedBy
		}
	}
	return nil
}

// mockJargonRepo is an in-memory JargonRepo
type mockJargonRepo struct {
	mu      sync.Mutex
	jargons []*domain.Jargon
}

func (m *mockJargonRepo) FindJargon(ctx context.Context, chatID, content string) (*domain.Jargon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jargons {
		if j.ChatID == chatID && j.Content == content {
			return j, nil
		}
	}
	return nil, nil
}

func (m *mockJargonRepo) SaveJargon(ctx context.Context, j *domain.Jargon) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.jargons {
		if existing.ChatID == j.ChatID && existing.Content == j.Content {
			m.jargons[i] = j
			return nil
		}
	}
	j.ID = int64(len(m.jargons) + 1)
	m.jargons = append(m.jargons, j)
	return nil
}

func (m *mockJargonRepo) KnownJargons(ctx context.Context, chatID string, limit int) ([]*domain.Jargon, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Jargon
	for _, j := range m.jargons {
		if j.ChatID == chatID && j.IsJargon != nil && *j.IsJargon && j.Meaning != "" {
			out = append(out, j)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mockStickerRepo is an in-memory StickerRepo
type mockStickerRepo struct {
	mu       sync.Mutex
	stickers []*domain.Sticker
}

func (m *mockStickerRepo) FindSticker(ctx context.Context, chatID, stickerType, stickerID string) (*domain.Sticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.stickers {
		if s.ChatID == chatID && s.StickerType == stickerType && s.StickerID == stickerID {
			return s, nil
		}
	}
	return nil, nil
}

func (m *mockStickerRepo) SaveSticker(ctx context.Context, sticker *domain.Sticker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, s := range m.stickers {
		if s.ChatID == sticker.ChatID && s.StickerType == sticker.StickerType && s.StickerID == sticker.StickerID {
			m.stickers[i] = sticker
			return nil
		}
	}
	sticker.ID = int64(len(m.stickers) + 1)
	m.stickers = append(m.stickers, sticker)
	return nil
}

func (m *mockStickerRepo) UsableStickers(ctx context.Context, chatID string, limit int) ([]*domain.Sticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Sticker
	for _, s := range m.stickers {
		if s.ChatID == chatID && !s.Rejected {
			out = append(out, s)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mockKnowledgeRepo is an in-memory KnowledgeRepo
type mockKnowledgeRepo struct {
	mu       sync.Mutex
	triples  []*domain.KnowledgeTriple
	entities map[string]*domain.Entity
}

func (m *mockKnowledgeRepo) SaveTriple(ctx context.Context, triple *domain.KnowledgeTriple) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	triple.ID = int64(len(m.triples) + 1)
	m.triples = append(m.triples, triple)
	return nil
}

func (m *mockKnowledgeRepo) UpsertEntity(ctx context.Context, name, entityType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.entities == nil {
		m.entities = make(map[string]*domain.Entity)
	}
	if e, ok := m.entities[name]; ok {
		e.MentionCount++
		return nil
	}
	m.entities[name] = &domain.Entity{Name: name, Type: entityType, MentionCount: 1}
	return nil
}

func (m *mockKnowledgeRepo) TriplesBySubject(ctx context.Context, subject string, limit int) ([]*domain.KnowledgeTriple, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.KnowledgeTriple
	for _, t := range m.triples {
		if t.Subject == subject {
			out = append(out, t)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mockProfileRepo is an in-memory ProfileRepo
type mockProfileRepo struct {
	mu      sync.Mutex
	persons map[string]*domain.PersonProfile
	groups  map[string]*domain.GroupProfile
}

func (m *mockProfileRepo) GetPerson(ctx context.Context, personID string) (*domain.PersonProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.persons[personID], nil
}

func (m *mockProfileRepo) SavePerson(ctx context.Context, p *domain.PersonProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.persons == nil {
		m.persons = make(map[string]*domain.PersonProfile)
	}
	m.persons[p.PersonID] = p
	return nil
}

func (m *mockProfileRepo) GetGroup(ctx context.Context, groupID string) (*domain.GroupProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.groups[groupID], nil
}

func (m *mockProfileRepo) SaveGroup(ctx context.Context, g *domain.GroupProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.groups == nil {
		m.groups = make(map[string]*domain.GroupProfile)
	}
	m.groups[g.GroupID] = g
	return nil
}

// mockSummaryRepo is an in-memory SummaryRepo
type mockSummaryRepo struct {
	mu        sync.Mutex
	summaries []*domain.ChatHistorySummary
}

func (m *mockSummaryRepo) SaveSummary(ctx context.Context, s *domain.ChatHistorySummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = int64(len(m.summaries) + 1)
	m.summaries = append(m.summaries, s)
	return nil
}

func (m *mockSummaryRepo) LastSummaryEnd(ctx context.Context, chatID string) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest time.Time
	for _, s := range m.summaries {
		if s.ChatID == chatID && s.EndTime.After(latest) {
			latest = s.EndTime
		}
	}
	return latest, nil
}

func (m *mockSummaryRepo) RecentSummaries(ctx context.Context, chatID string, limit int) ([]*domain.ChatHistorySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ChatHistorySummary
	for i := len(m.summaries) - 1; i >= 0; i-- {
		if m.summaries[i].ChatID == chatID {
			out = append(out, m.summaries[i])
		}
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// mockConfigRepo is an in-memory ConfigRepo
type mockConfigRepo struct {
	mu     sync.Mutex
	layers map[string]domain.ConfigLayer
}

func configKey(configType, targetID string) string {
	return configType + "/" + targetID
}

func (m *mockConfigRepo) GetLayer(ctx context.Context, configType, targetID string) (domain.ConfigLayer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.layers[configKey(configType, targetID)], nil
}

func (m *mockConfigRepo) SaveLayer(ctx context.Context, configType, targetID string, layer domain.ConfigLayer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.layers == nil {
		m.layers = make(map[string]domain.ConfigLayer)
	}
	m.layers[configKey(configType, targetID)] = layer
	return nil
}

func testLogger() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
