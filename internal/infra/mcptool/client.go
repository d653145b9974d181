package mcptool

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/anthropics/ruabot/internal/biz/repo"
)

const connectTimeout = 10 * time.Second

// Client runs tools on an external MCP server over stdio
type Client struct {
	session *mcp.ClientSession
	tools   []repo.ToolDef
	log     *zap.SugaredLogger
}

// NewClient starts the MCP server process and snapshots its tool list
func NewClient(ctx context.Context, serverPath string, log *zap.SugaredLogger) (*Client, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client := mcp.NewClient(&mcp.Implementation{
		Name:    "ruabot",
		Version: "0.1.0",
	}, nil)

	transport := &mcp.CommandTransport{Command: exec.Command(serverPath)}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect mcp server: %w", err)
	}

	c := &Client{session: session, log: log}
	if err := c.snapshotTools(ctx); err != nil {
		session.Close()
		return nil, err
	}
	log.Infow("mcp server connected", "path", serverPath, "tools", len(c.tools))
	return c, nil
}

func (c *Client) snapshotTools(ctx context.Context) error {
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return fmt.Errorf("list mcp tools: %w", err)
		}
		if tool == nil || tool.Name == "" {
			continue
		}
		var schema json.RawMessage
		if tool.InputSchema != nil {
			if b, err := json.Marshal(tool.InputSchema); err == nil {
				schema = b
			}
		}
		c.tools = append(c.tools, repo.ToolDef{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schema,
		})
	}
	return nil
}

// Tools returns tool definitions, optionally filtered by name
func (c *Client) Tools(enabled []string) []repo.ToolDef {
	if len(enabled) == 0 {
		return c.tools
	}
	allowed := make(map[string]bool, len(enabled))
	for _, name := range enabled {
		allowed[name] = true
	}
	var filtered []repo.ToolDef
	for _, t := range c.tools {
		if allowed[t.Name] {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// RunTool executes one tool call and returns its text output
func (c *Client) RunTool(ctx context.Context, call repo.ToolCall) (string, error) {
	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", fmt.Errorf("decode tool arguments for %s: %w", call.Name, err)
		}
	}

	result, err := c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      call.Name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", call.Name, err)
	}

	var sb strings.Builder
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	if result.IsError {
		return "", fmt.Errorf("tool %s failed: %s", call.Name, sb.String())
	}
	return sb.String(), nil
}

// Close shuts down the MCP session and server process
func (c *Client) Close() error {
	return c.session.Close()
}

var _ repo.ToolRunner = (*Client)(nil)
