package mcpadapter

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/core/ports"
)

const (
	serverName    = "agri-assistant"
	serverVersion = "1.0.0"
)

// Tools exposes the chat service as MCP tools.
type Tools struct {
	chat ports.ChatService
}

func NewTools(chat ports.ChatService) *Tools {
	return &Tools{chat: chat}
}

// NewServer registers ask_agri and classify_query on a fresh MCP server.
func NewServer(tools *Tools) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("ask_agri",
		mcp.WithDescription("Answer an agricultural question about crops, government schemes, policies or subsidies. "+
			"Pass session_id from a previous answer to continue a conversation."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The farmer's question in plain language.")),
		mcp.WithString("session_id", mcp.Description("Conversation id returned by an earlier call.")),
	), tools.AskAgri)

	s.AddTool(mcp.NewTool("classify_query",
		mcp.WithDescription("Show which knowledge backends a question would be routed to, with the raw heuristic scores."),
		mcp.WithString("question", mcp.Required(), mcp.Description("The question to classify.")),
	), tools.ClassifyQuery)

	return s
}

func (t *Tools) AskAgri(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	answer, err := t.chat.Ask(ctx, req.GetString("session_id", ""), question)
	if err != nil {
		if domain.IsKind(err, domain.ErrInvalidInput) {
			return mcp.NewToolResultError(err.Error()), nil
		}
		slog.Error("mcp_tool_failed", "tool", "ask_agri", "error", err)
		return mcp.NewToolResultErrorFromErr("ask_agri failed", err), nil
	}
	return jsonResult(answer)
}

func (t *Tools) ClassifyQuery(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := req.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(t.chat.Classify(question))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(raw)), nil
}
