package serpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/kirillkom/agri-assistant/internal/core/domain"
	"github.com/kirillkom/agri-assistant/internal/infrastructure/resilience"
)

const (
	serviceName    = "serpapi"
	DefaultBaseURL = "https://serpapi.com/search.json"
)

// Client runs Google searches through SerpAPI.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	exec       *resilience.Executor
}

func New(baseURL, apiKey string, timeout time.Duration, exec *resilience.Executor) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    baseURL,
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
		exec:       exec,
	}
}

type searchResponse struct {
	Error          string `json:"error"`
	OrganicResults []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic_results"`
}

// Search returns at most maxResults organic hits. A missing key, an exhausted
// quota or a rejected key yields an empty slice and no error.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]domain.WebResult, error) {
	if c.apiKey == "" {
		slog.Warn("web_search_skipped", "reason", "api key is not configured")
		return nil, nil
	}
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", query)
	params.Set("num", strconv.Itoa(maxResults))
	params.Set("api_key", c.apiKey)
	endpoint := c.baseURL + "?" + params.Encode()

	parsed, err := resilience.Call(ctx, c.exec, serviceName+".search", func(callCtx context.Context) (*searchResponse, error) {
		return c.fetch(callCtx, endpoint)
	}, resilience.ClassifyRemoteError)
	if err != nil {
		return nil, resilience.WrapTemporary(serviceName+" search", err, resilience.ClassifyRemoteError)
	}
	if parsed == nil {
		return nil, nil
	}
	if parsed.Error != "" {
		slog.Warn("web_search_rejected", "error", parsed.Error)
		return nil, nil
	}

	out := make([]domain.WebResult, 0, min(maxResults, len(parsed.OrganicResults)))
	for _, r := range parsed.OrganicResults {
		if len(out) == maxResults {
			break
		}
		hit := domain.WebResult{
			Title:   CleanText(r.Title),
			Snippet: CleanText(r.Snippet),
			URL:     strings.TrimSpace(r.Link),
		}
		if hit.Title == "" && hit.Snippet == "" {
			continue
		}
		out = append(out, hit)
	}
	return out, nil
}

// fetch returns nil without error for key and quota rejections.
func (c *Client) fetch(ctx context.Context, endpoint string) (*searchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", c.redact(err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("serpapi request: %w", c.redact(err))
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusTooManyRequests:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Warn("web_search_rejected", "status", resp.StatusCode, "body", strings.TrimSpace(string(body)))
		return nil, nil
	}
	if resp.StatusCode >= 300 {
		return nil, resilience.NewStatusError(serviceName, "search", resp)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode serpapi response: %w", err)
	}
	return &parsed, nil
}

// redact drops the query string, which carries the api key, from URL errors.
func (c *Client) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = c.baseURL
	}
	return err
}

// CleanText strips markup and entities from a snippet and collapses whitespace.
func CleanText(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.Join(strings.Fields(s), " ")
	}
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			b.WriteByte(' ')
		}
	}
}
