package jsonx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObject_Strict(t *testing.T) {
	var out map[string]any
	res := ExtractObject(`Here is the result: {"theme": "晚饭", "count": 3} hope it helps`, &out)
	require.True(t, res.OK)
	assert.False(t, res.Repaired)
	assert.Equal(t, "晚饭", out["theme"])
}

func TestExtractObject_RepairTrailingComma(t *testing.T) {
	var out map[string]any
	res := ExtractObject(`{"a": 1, "b": 2,}`, &out)
	require.True(t, res.OK)
	assert.True(t, res.Repaired)
	assert.Len(t, out, 2)
}

func TestExtractObject_RepairUnquotedKeys(t *testing.T) {
	var out map[string]any
	res := ExtractObject(`{impression: "热闹的群", topic: "游戏"}`, &out)
	require.True(t, res.OK)
	assert.True(t, res.Repaired)
	assert.Equal(t, "热闹的群", out["impression"])
}

func TestExtractObject_Truncated(t *testing.T) {
	var out map[string]any
	res := ExtractObject(`{"triples": [{"subject": "小明", "predicate": "喜欢"`, &out)
	require.True(t, res.OK)
	assert.True(t, res.Repaired)
}

func TestExtractObject_NoPayload(t *testing.T) {
	var out map[string]any
	res := ExtractObject(`no json here at all`, &out)
	assert.False(t, res.OK)
	assert.Equal(t, FailNoPayload, res.Reason)
}

func TestExtractObject_Unfixable(t *testing.T) {
	var out map[string]any
	res := ExtractObject(`{"a": }}}{{{ total garbage ::::`, &out)
	assert.False(t, res.OK)
	assert.Equal(t, FailSyntax, res.Reason)
}

func TestExtractArray(t *testing.T) {
	var out []string
	res := ExtractArray(`candidates: ["泥嚎", "awsl", "yyds"]`, &out)
	require.True(t, res.OK)
	assert.Equal(t, []string{"泥嚎", "awsl", "yyds"}, out)
}

func TestFencedBlocks(t *testing.T) {
	text := "I think we should reply.\n```json\n{\"action\": \"reply\"}\n```\nthen wait\n```json\n{\"action\": \"wait\"}\n```"
	blocks := FencedBlocks(text)
	require.Len(t, blocks, 2)
	assert.Contains(t, blocks[0], `"reply"`)
	assert.Contains(t, blocks[1], `"wait"`)
}

func TestFencedBlocks_BareFence(t *testing.T) {
	blocks := FencedBlocks("```\n{\"x\": 1}\n```")
	require.Len(t, blocks, 1)
}

func TestDecode_IgnoresStringDelimiters(t *testing.T) {
	var out map[string]any
	res := ExtractObject(`{"text": "brace } inside string"}`, &out)
	require.True(t, res.OK)
	assert.False(t, res.Repaired)
	assert.Equal(t, "brace } inside string", out["text"])
}
