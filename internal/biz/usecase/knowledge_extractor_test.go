package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anthropics/ruabot/internal/biz/domain"
)

func knowledgeMessage(text string, isBot bool) *domain.MessageRecord {
	return &domain.MessageRecord{
		MessageID:    "m1",
		ChatID:       "group:1",
		UserID:       "u1",
		UserNickname: "阿强",
		PlainText:    text,
		Time:         time.Now(),
		IsBotMessage: isBot,
	}
}

func TestQualifies(t *testing.T) {
	uc := NewKnowledgeExtractorUsecase(nil, nil, testLogger())

	assert.True(t, uc.Qualifies(knowledgeMessage("我上周搬到杭州了，在西湖边上班", false)))
	assert.False(t, uc.Qualifies(knowledgeMessage("短句", false)))
	assert.False(t, uc.Qualifies(knowledgeMessage("我上周搬到杭州了，在西湖边上班", true)))
}

func TestExtractSavesTriplesAndEntities(t *testing.T) {
	llm := &mockLLM{responses: []string{
		`[{"subject": "阿强", "subject_type": "person", "predicate": "住在", "object": "杭州", "object_type": "place", "confidence": 0.9}]`,
	}}
	knowledge := &mockKnowledgeRepo{}
	uc := NewKnowledgeExtractorUsecase(llm, knowledge, testLogger())

	err := uc.Extract(context.Background(), knowledgeMessage("我上周搬到杭州了，在西湖边上班", false))
	require.NoError(t, err)

	require.Len(t, knowledge.triples, 1)
	assert.Equal(t, "阿强", knowledge.triples[0].Subject)
	assert.Equal(t, 0.9, knowledge.triples[0].Confidence)
	assert.Equal(t, 1, knowledge.entities["阿强"].MentionCount)
	assert.Equal(t, 1, knowledge.entities["杭州"].MentionCount)
}

func TestExtractDefaultsConfidence(t *testing.T) {
	llm := &mockLLM{responses: []string{
		`[{"subject": "s", "predicate": "p", "object": "o"}]`,
	}}
	knowledge := &mockKnowledgeRepo{}
	uc := NewKnowledgeExtractorUsecase(llm, knowledge, testLogger())

	require.NoError(t, uc.Extract(context.Background(), knowledgeMessage("一条足够长的非机器人消息内容", false)))
	require.Len(t, knowledge.triples, 1)
	assert.Equal(t, domain.DefaultTripleConfidence, knowledge.triples[0].Confidence)
}

func TestExtractCapsTripleCount(t *testing.T) {
	llm := &mockLLM{responses: []string{
		`[{"subject": "a", "predicate": "p", "object": "1"},
		  {"subject": "b", "predicate": "p", "object": "2"},
		  {"subject": "c", "predicate": "p", "object": "3"},
		  {"subject": "d", "predicate": "p", "object": "4"},
		  {"subject": "e", "predicate": "p", "object": "5"},
		  {"subject": "f", "predicate": "p", "object": "6"}]`,
	}}
	knowledge := &mockKnowledgeRepo{}
	uc := NewKnowledgeExtractorUsecase(llm, knowledge, testLogger())

	require.NoError(t, uc.Extract(context.Background(), knowledgeMessage("一条足够长的非机器人消息内容", false)))
	assert.Len(t, knowledge.triples, domain.MaxTriplesPerMessage)
}

func TestExtractSkipsIncompleteTriples(t *testing.T) {
	llm := &mockLLM{responses: []string{
		`[{"subject": "", "predicate": "p", "object": "o"},
		  {"subject": "s", "predicate": "p", "object": "o"}]`,
	}}
	knowledge := &mockKnowledgeRepo{}
	uc := NewKnowledgeExtractorUsecase(llm, knowledge, testLogger())

	require.NoError(t, uc.Extract(context.Background(), knowledgeMessage("一条足够长的非机器人消息内容", false)))
	assert.Len(t, knowledge.triples, 1)
}

func TestExtractSkipsUnqualifiedMessage(t *testing.T) {
	llm := &mockLLM{}
	uc := NewKnowledgeExtractorUsecase(llm, &mockKnowledgeRepo{}, testLogger())

	require.NoError(t, uc.Extract(context.Background(), knowledgeMessage("短句", false)))
	assert.Zero(t, llm.callCount())
}
