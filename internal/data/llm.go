package data

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"

	"github.com/anthropics/ruabot/internal/biz/repo"
)

// llmRepo adapts an OpenAI-compatible endpoint to the LLM interface
type llmRepo struct {
	client *openai.Client
	model  string
}

// NewLLMRepo creates an LLM repository against an OpenAI-compatible API.
// baseURL may be empty for the default endpoint.
func NewLLMRepo(apiKey, baseURL, model string) repo.LLMRepo {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &llmRepo{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (r *llmRepo) ChatCompletion(ctx context.Context, req *repo.ChatRequest) (*repo.ChatResult, error) {
	resp, err := r.client.CreateChatCompletion(ctx, r.toOpenAIRequest(req))
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}

	choice := resp.Choices[0]
	result := &repo.ChatResult{Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		result.ToolCalls = append(result.ToolCalls, repo.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return result, nil
}

func (r *llmRepo) ChatCompletionStream(ctx context.Context, req *repo.ChatRequest) (<-chan repo.StreamChunk, error) {
	stream, err := r.client.CreateChatCompletionStream(ctx, r.toOpenAIRequest(req))
	if err != nil {
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}

	out := make(chan repo.StreamChunk)
	go func() {
		defer close(out)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				out <- repo.StreamChunk{Err: err}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			delta := resp.Choices[0].Delta.Content
			if delta == "" {
				continue
			}
			select {
			case out <- repo.StreamChunk{Delta: delta}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (r *llmRepo) toOpenAIRequest(req *repo.ChatRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	var tools []openai.Tool
	for _, t := range req.Tools {
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}

	return openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Tools:       tools,
	}
}
