package tasks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"voicedesk/app/config"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/samber/oops"
	"github.com/tmc/langchaingo/tools"
)

const mcpInitTimeout = time.Minute

type toolCaller interface {
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
}

// mcpAction runs a task through a tool of a remote MCP server.
type mcpAction struct {
	client toolCaller
	tool   mcp.Tool
}

func (m *mcpAction) Name() string {
	return m.tool.Name
}

func (m *mcpAction) Description() string {
	return m.tool.Description
}

func (m *mcpAction) Call(ctx context.Context, input string) (string, error) {
	callRequest := mcp.CallToolRequest{
		Request: mcp.Request{
			Method: "tools/call",
		},
	}
	callRequest.Params.Name = m.tool.Name

	var args map[string]any
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("%w: invalid input JSON: %w", ErrRejected, err)
	}
	callRequest.Params.Arguments = args

	response, err := m.client.CallTool(ctx, callRequest)
	if err != nil {
		return "", fmt.Errorf("MCP tool call failed: %w", err)
	}

	var result strings.Builder
	for _, content := range response.Content {
		if textContent, ok := mcp.AsTextContent(content); ok {
			result.WriteString(textContent.Text)
			result.WriteString("\n")
		}
	}

	text := strings.TrimSpace(result.String())
	if response.IsError {
		return "", fmt.Errorf("MCP tool %s returned an error: %s", m.tool.Name, text)
	}

	return text, nil
}

// connectMCP starts the configured action server and returns its tools as actions.
// A tool is used for the task type equal to its name.
func connectMCP(ctx context.Context, cfg config.MCP) (client.MCPClient, []tools.Tool, error) {
	mcpClient, err := client.NewStdioMCPClient(cfg.Command, nil, cfg.Args...)
	if err != nil {
		return nil, nil, oops.In("tasks").Wrapf(err, "failed to start MCP server %s", cfg.Command)
	}

	ctx, cancel := context.WithTimeout(ctx, mcpInitTimeout)
	defer cancel()

	initRequest := mcp.InitializeRequest{}
	initRequest.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initRequest.Params.ClientInfo = mcp.Implementation{
		Name:    "voicedesk",
		Version: "1.0.0",
	}

	if _, err = mcpClient.Initialize(ctx, initRequest); err != nil {
		_ = mcpClient.Close()
		return nil, nil, oops.In("tasks").Wrapf(err, "failed to initialize MCP client")
	}

	toolsResponse, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		_ = mcpClient.Close()
		return nil, nil, oops.In("tasks").Wrapf(err, "failed to list MCP tools")
	}

	return mcpClient, adaptTools(mcpClient, toolsResponse.Tools), nil
}

func adaptTools(caller toolCaller, mcpTools []mcp.Tool) []tools.Tool {
	result := make([]tools.Tool, 0, len(mcpTools))

	for _, tool := range mcpTools {
		result = append(result, &mcpAction{
			client: caller,
			tool:   tool,
		})
	}

	return result
}
