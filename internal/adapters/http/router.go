package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/agri-assistant/internal/config"
	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/core/ports"
	"github.com/kirillkom/agri-assistant/internal/observability/metrics"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 64 << 20
)

// Services are the inbound ports the API exposes. Graph, Eligibility and the
// document ports may be nil; their endpoints then answer 503.
type Services struct {
	Chat        ports.ChatService
	Graph       ports.GraphInspector
	Eligibility ports.EligibilityChecker
	Ingest      ports.DocumentIngestor
	Documents   ports.DocumentReader
}

type Router struct {
	cfg      config.Config
	svc      Services
	metrics  *metrics.HTTPServerMetrics
	validate *requestValidator
}

func NewRouter(cfg config.Config, svc Services, m *metrics.HTTPServerMetrics) (*Router, error) {
	if svc.Chat == nil {
		return nil, errors.New("chat service is required")
	}
	v, err := newRequestValidator(context.Background())
	if err != nil {
		return nil, err
	}
	return &Router{cfg: cfg, svc: svc, metrics: m, validate: v}, nil
}

// Handler assembles the mux. /healthz and /metrics bypass auth and traffic control.
func (rt *Router) Handler() (http.Handler, error) {
	api := http.NewServeMux()
	routes := []struct {
		method, path string
		h            http.HandlerFunc
	}{
		{http.MethodPost, "/v1/chat", rt.chat},
		{http.MethodPost, "/v1/classify", rt.classify},
		{http.MethodGet, "/v1/sessions/{session_id}/history", rt.sessionHistory},
		{http.MethodDelete, "/v1/sessions/{session_id}", rt.endSession},
		{http.MethodGet, "/v1/graph/stats", rt.graphStats},
		{http.MethodPost, "/v1/eligibility", rt.checkEligibility},
		{http.MethodPost, "/v1/documents", rt.uploadDocument},
		{http.MethodGet, "/v1/documents/{document_id}", rt.getDocument},
	}
	for _, route := range routes {
		h, err := rt.validate.wrap(route.method, route.path, route.h)
		if err != nil {
			return nil, err
		}
		api.HandleFunc(route.method+" "+route.path, h)
	}

	var onReject func(string)
	if rt.metrics != nil {
		onReject = rt.metrics.RecordRejected
	}
	var v1 http.Handler = api
	v1 = backpressureMiddleware(v1, rt.cfg.MaxInFlight, rt.cfg.BackpressureWait, onReject)
	v1 = rateLimitMiddleware(v1, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst, onReject)
	v1 = bearerAuthMiddleware(v1, rt.cfg.APIKey)

	root := http.NewServeMux()
	root.HandleFunc("GET /healthz", rt.healthz)
	if rt.metrics != nil {
		root.Handle("GET /metrics", rt.metrics.Handler())
	}
	root.Handle("/v1/", v1)

	var h http.Handler = root
	if rt.metrics != nil {
		h = rt.metrics.Middleware(h)
	}
	h = accessLogMiddleware(h)
	h = requestIDMiddleware(h)
	return h, nil
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) chat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question  string `json:"question"`
		SessionID string `json:"session_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	answer, err := rt.svc.Chat.Ask(r.Context(), req.SessionID, req.Question)
	if err != nil {
		rt.writeDomainError(w, r, "chat", err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (rt *Router) classify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Question string `json:"question"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, rt.svc.Chat.Classify(req.Question))
}

func (rt *Router) sessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session_id")
	turns, err := rt.svc.Chat.History(r.Context(), sessionID)
	if err != nil {
		rt.writeDomainError(w, r, "session history", err)
		return
	}
	if turns == nil {
		turns = []domain.ConversationTurn{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	})
}

func (rt *Router) endSession(w http.ResponseWriter, r *http.Request) {
	if err := rt.svc.Chat.EndSession(r.Context(), r.PathValue("session_id")); err != nil {
		rt.writeDomainError(w, r, "end session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (rt *Router) graphStats(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Graph == nil {
		writeError(w, http.StatusServiceUnavailable, "knowledge graph is not configured")
		return
	}
	stats, err := rt.svc.Graph.Stats(r.Context())
	if err != nil {
		rt.writeDomainError(w, r, "graph stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (rt *Router) checkEligibility(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Eligibility == nil {
		writeError(w, http.StatusServiceUnavailable, "policy catalog is not configured")
		return
	}
	var profile domain.FarmerProfile
	if !decodeJSON(w, r, &profile) {
		return
	}
	policies, err := rt.svc.Eligibility.Check(r.Context(), profile)
	if err != nil {
		rt.writeDomainError(w, r, "eligibility", err)
		return
	}
	if policies == nil {
		policies = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"policies": policies})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Ingest == nil {
		writeError(w, http.StatusServiceUnavailable, "document ingestion is not configured")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBody)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	doc, err := rt.svc.Ingest.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		rt.writeDomainError(w, r, "upload document", err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocument(w http.ResponseWriter, r *http.Request) {
	if rt.svc.Documents == nil {
		writeError(w, http.StatusServiceUnavailable, "document store is not configured")
		return
	}
	doc, err := rt.svc.Documents.GetByID(r.Context(), r.PathValue("document_id"))
	if err != nil {
		rt.writeDomainError(w, r, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"operation", operation,
			"status", status,
			"error", err,
		)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "5")
	}
	writeError(w, status, err.Error())
}

// decodeJSON writes the 400 itself and reports whether decoding succeeded.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "request body is required")
			return false
		}
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json: %v", err))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// Server wraps the handler with the timeouts used by cmd/api.
func Server(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		// Hybrid answers can take the full retrieval budget plus generation.
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}
}
