package repo

import (
	"context"
	"encoding/json"
)

// Chat message roles, matching the OpenAI-compatible wire contract.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is one message in an LLM conversation
type ChatMessage struct {
	Role    string
	Content string
}

// ToolDef describes one callable tool offered to the model
type ToolDef struct {
	Name        string
	Description string
	InputSchema json.RawMessage
}

// ToolCall is one tool invocation requested by the model
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// ChatRequest is one LLM call
type ChatRequest struct {
	Messages    []ChatMessage
	Temperature float32
	MaxTokens   int
	Tools       []ToolDef
}

// ChatResult is the model's answer: plain text, or tool calls to execute
type ChatResult struct {
	Content   string
	ToolCalls []ToolCall
}

// StreamChunk is one delta of a streaming response
type StreamChunk struct {
	Delta string
	Err   error
}

// LLMRepo is the opaque language-model capability
type LLMRepo interface {
	// ChatCompletion performs one non-streaming call
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResult, error)

	// ChatCompletionStream performs one streaming call; the channel closes
	// when the response ends. A transport failure arrives as a chunk with
	// Err set.
	ChatCompletionStream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
}

// ToolRunner executes tool calls the model requested
type ToolRunner interface {
	// Tools lists the available tool definitions, optionally filtered by name
	Tools(enabled []string) []ToolDef

	// RunTool executes one call and returns its text result
	RunTool(ctx context.Context, call ToolCall) (string, error)

	Close() error
}
