package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	pkgerrors "github.com/wlyh514/discord-llmvc-bot/pkg/errors"
	"github.com/wlyh514/discord-llmvc-bot/pkg/httputil"
	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
)

const (
	duckDuckGoBaseURL = "https://api.duckduckgo.com/"
	maxSearchResults  = 3
)

// SearchResult is one web search hit.
type SearchResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Searcher runs web searches for the web_search tool.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// DuckDuckGo queries the DuckDuckGo instant answer API.
type DuckDuckGo struct {
	client  *http.Client
	baseURL string
}

// DuckDuckGoOption configures DuckDuckGo.
type DuckDuckGoOption func(*DuckDuckGo)

// WithSearchBaseURL overrides the API endpoint.
func WithSearchBaseURL(u string) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		d.baseURL = u
	}
}

// WithSearchClient sets the HTTP client.
func WithSearchClient(c *http.Client) DuckDuckGoOption {
	return func(d *DuckDuckGo) {
		d.client = c
	}
}

// NewDuckDuckGo creates a searcher.
func NewDuckDuckGo(opts ...DuckDuckGoOption) *DuckDuckGo {
	d := &DuckDuckGo{
		client:  httputil.NewHTTPClient(httputil.DefaultToolTimeout),
		baseURL: duckDuckGoBaseURL,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	Answer        string     `json:"Answer"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

// Search returns at most three results for query.
func (d *DuckDuckGo) Search(ctx context.Context, query string) ([]SearchResult, error) {
	q := url.Values{}
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	q.Set("skip_disambig", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"?"+q.Encode(), http.NoBody)
	if err != nil {
		return nil, pkgerrors.New("search", "Search", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, pkgerrors.New("search", "Search", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, pkgerrors.New("search", "Search", fmt.Errorf("unexpected status %s", resp.Status)).
			WithStatusCode(resp.StatusCode)
	}

	var body ddgResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, pkgerrors.New("search", "Search", fmt.Errorf("decode response: %w", err))
	}

	results := make([]SearchResult, 0, maxSearchResults)
	if body.Answer != "" {
		results = append(results, SearchResult{Title: body.Heading, Snippet: body.Answer})
	}
	if body.AbstractText != "" {
		results = append(results, SearchResult{Title: body.Heading, Link: body.AbstractURL, Snippet: body.AbstractText})
	}
	results = appendTopics(results, body.RelatedTopics)
	if len(results) > maxSearchResults {
		results = results[:maxSearchResults]
	}

	logger.DebugContext(ctx, "web search finished", "query", query, "results", len(results))
	return results, nil
}

func appendTopics(out []SearchResult, topics []ddgTopic) []SearchResult {
	for _, t := range topics {
		if len(out) >= maxSearchResults {
			return out
		}
		if len(t.Topics) > 0 {
			out = appendTopics(out, t.Topics)
			continue
		}
		if t.Text == "" {
			continue
		}
		title, _, _ := strings.Cut(t.Text, " - ")
		out = append(out, SearchResult{Title: title, Link: t.FirstURL, Snippet: t.Text})
	}
	return out
}
