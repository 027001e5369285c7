package httpadapter

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/kirillkom/agri-assistant/internal/config"
	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/observability/metrics"
)

type chatFake struct {
	err        error
	historyErr error
	asked      []string
}

func (f *chatFake) Ask(_ context.Context, sessionID, question string) (*domain.ChatAnswer, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.asked = append(f.asked, question)
	if sessionID == "" {
		sessionID = "generated"
	}
	return &domain.ChatAnswer{
		SessionID: sessionID,
		Route:     domain.RouteHybrid,
		Answer:    "[Knowledge Graph]\nRice --[COVERED_BY]--> PMFBY",
		Entities:  domain.Entities{Crops: []string{"rice"}},
	}, nil
}

func (f *chatFake) History(_ context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return []domain.ConversationTurn{{Input: "q", Output: "a", RecordedAt: time.Unix(0, 0).UTC()}}, nil
}

func (f *chatFake) EndSession(_ context.Context, sessionID string) error {
	return f.historyErr
}

func (f *chatFake) Classify(question string) domain.ClassificationScores {
	return domain.ClassificationScores{Route: domain.RouteGraphOnly, GraphScore: 2}
}

type graphFake struct{ err error }

func (f graphFake) Stats(context.Context) (domain.GraphStats, error) {
	if f.err != nil {
		return domain.GraphStats{}, f.err
	}
	return domain.GraphStats{Nodes: map[string]int64{"Scheme": 3}, TotalNodes: 3}, nil
}

type eligibilityFake struct{}

func (eligibilityFake) Check(_ context.Context, p domain.FarmerProfile) ([]string, error) {
	if p.State == "Punjab" {
		return []string{"PM-KISAN"}, nil
	}
	return nil, nil
}

type ingestFake struct{ err error }

func (f ingestFake) Upload(_ context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "upload", io.EOF)
	}
	now := time.Now().UTC()
	return &domain.Document{
		ID:          "doc-1",
		Filename:    filename,
		MimeType:    mimeType,
		StoragePath: "doc-1_" + filename,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

type docsFake struct{ err error }

func (f docsFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Document{ID: id, Filename: "rice.pdf", MimeType: "application/pdf", Status: domain.StatusReady}, nil
}

func defaultServices() Services {
	return Services{
		Chat:        &chatFake{},
		Graph:       graphFake{},
		Eligibility: eligibilityFake{},
		Ingest:      ingestFake{},
		Documents:   docsFake{},
	}
}

func newTestHandler(t *testing.T, cfg config.Config, svc Services) http.Handler {
	t.Helper()
	rt, err := NewRouter(cfg, svc, metrics.NewHTTPServerMetrics("api-test"))
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	h, err := rt.Handler()
	if err != nil {
		t.Fatalf("Handler() error = %v", err)
	}
	return h
}
