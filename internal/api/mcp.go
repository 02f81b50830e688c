package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// MCPDeps holds the dependencies for the MCP tool surface.
type MCPDeps struct {
	Chat    Replier
	Refresh Refresher
}

// NewMCPServer creates an MCP server exposing the assistant as tools, so
// MCP clients can chat with a user's context or force a cache refresh.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"uplift",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithInstructions("uplift — task and mood companion. Chat with a user's task/mood context or refresh their cached data."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("chat",
			mcp.WithDescription("Send a message on behalf of a user and get a context-aware assistant reply."),
			mcp.WithString("user_id", mcp.Description("User identifier"), mcp.Required()),
			mcp.WithString("message", mcp.Description("The user's message"), mcp.Required()),
		),
		mcpChat(deps),
	)

	s.AddTool(
		mcp.NewTool("refresh_user",
			mcp.WithDescription("Force a synchronous refresh of a user's cached tasks and moods."),
			mcp.WithString("user_id", mcp.Description("User identifier"), mcp.Required()),
		),
		mcpRefreshUser(deps),
	)

	return s
}

func mcpChat(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}
		message, err := req.RequireString("message")
		if err != nil {
			return mcpError("message is required"), nil
		}

		reply, err := deps.Chat.Reply(ctx, userID, message)
		if err != nil {
			return mcpError(fmt.Sprintf("chat failed: %v", err)), nil
		}
		return mcp.NewToolResultText(reply), nil
	}
}

func mcpRefreshUser(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		userID, err := req.RequireString("user_id")
		if err != nil {
			return mcpError("user_id is required"), nil
		}

		snap, err := deps.Refresh.RefreshSync(ctx, userID)
		if err != nil {
			return mcpError(fmt.Sprintf("refresh failed: %v", err)), nil
		}

		out, err := json.Marshal(map[string]any{
			"user_id":    userID,
			"status":     snap.Status,
			"fetched_at": snap.FetchedAt,
			"tasks":      len(snap.Tasks),
			"moods":      len(snap.Moods),
		})
		if err != nil {
			return mcpError(fmt.Sprintf("encoding result: %v", err)), nil
		}
		return mcp.NewToolResultText(string(out)), nil
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
