package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
)

type chatStub struct {
	err       error
	sessionID string
}

func (s *chatStub) Ask(_ context.Context, sessionID, question string) (*domain.ChatAnswer, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.sessionID = sessionID
	return &domain.ChatAnswer{SessionID: "s-1", Route: domain.RouteRetrievalOnly, Answer: "[Documents]\nSow in June."}, nil
}

func (s *chatStub) History(context.Context, string) ([]domain.ConversationTurn, error) { return nil, nil }
func (s *chatStub) EndSession(context.Context, string) error                          { return nil }
func (s *chatStub) Classify(string) domain.ClassificationScores {
	return domain.ClassificationScores{Route: domain.RouteHybrid, GraphScore: 1, RetrievalScore: 1}
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("expected one content item, got %d", len(res.Content))
	}
	text, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", res.Content[0])
	}
	return text.Text
}

func TestAskAgriReturnsAnswerJSON(t *testing.T) {
	chat := &chatStub{}
	res, err := NewTools(chat).AskAgri(context.Background(), callRequest("ask_agri", map[string]any{
		"question":   "when to sow rice",
		"session_id": "s-0",
	}))
	if err != nil {
		t.Fatalf("AskAgri() error = %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(t, res))
	}
	var answer domain.ChatAnswer
	if err := json.Unmarshal([]byte(resultText(t, res)), &answer); err != nil {
		t.Fatalf("decode answer: %v", err)
	}
	if answer.Route != domain.RouteRetrievalOnly || chat.sessionID != "s-0" {
		t.Fatalf("unexpected answer %+v / session %q", answer, chat.sessionID)
	}
}

func TestAskAgriMissingQuestionIsToolError(t *testing.T) {
	res, err := NewTools(&chatStub{}).AskAgri(context.Background(), callRequest("ask_agri", map[string]any{}))
	if err != nil {
		t.Fatalf("AskAgri() error = %v", err)
	}
	if !res.IsError {
		t.Fatal("expected tool error for missing question")
	}
}

func TestAskAgriServiceFailureIsToolError(t *testing.T) {
	res, err := NewTools(&chatStub{err: errors.New("boom")}).AskAgri(context.Background(), callRequest("ask_agri", map[string]any{"question": "x"}))
	if err != nil {
		t.Fatalf("AskAgri() error = %v", err)
	}
	if !res.IsError {
		t.Fatal("expected tool error")
	}
}

func TestClassifyQuery(t *testing.T) {
	res, err := NewTools(&chatStub{}).ClassifyQuery(context.Background(), callRequest("classify_query", map[string]any{"question": "rice scheme"}))
	if err != nil {
		t.Fatalf("ClassifyQuery() error = %v", err)
	}
	var scores domain.ClassificationScores
	if err := json.Unmarshal([]byte(resultText(t, res)), &scores); err != nil {
		t.Fatalf("decode scores: %v", err)
	}
	if scores.Route != domain.RouteHybrid {
		t.Fatalf("unexpected scores: %+v", scores)
	}
}

func TestNewServerRegistersTools(t *testing.T) {
	s := NewServer(NewTools(&chatStub{}))
	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	for _, name := range []string{`"ask_agri"`, `"classify_query"`} {
		if !strings.Contains(string(raw), name) {
			t.Fatalf("tool %s missing from tools/list: %s", name, raw)
		}
	}
}
