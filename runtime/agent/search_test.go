package agent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/wlyh514/discord-llmvc-bot/pkg/errors"
)

func TestDuckDuckGo_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "golang release", r.URL.Query().Get("q"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"Heading": "Go",
			"AbstractText": "Go is a programming language.",
			"AbstractURL": "https://go.dev",
			"RelatedTopics": [
				{"Text": "Go 1.25 - latest release", "FirstURL": "https://go.dev/doc/go1.25"},
				{"Name": "group", "Topics": [
					{"Text": "Gopher - mascot", "FirstURL": "https://go.dev/blog/gopher"},
					{"Text": "Too many", "FirstURL": "https://example.com"}
				]}
			]
		}`))
	}))
	defer server.Close()

	results, err := NewDuckDuckGo(WithSearchBaseURL(server.URL+"/")).Search(context.Background(), "golang release")
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, SearchResult{Title: "Go", Link: "https://go.dev", Snippet: "Go is a programming language."}, results[0])
	assert.Equal(t, "Go 1.25", results[1].Title)
	assert.Equal(t, "https://go.dev/blog/gopher", results[2].Link)
}

func TestDuckDuckGo_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	_, err := NewDuckDuckGo(WithSearchBaseURL(server.URL+"/"), WithSearchClient(server.Client())).
		Search(context.Background(), "anything")

	var ce *pkgerrors.ContextualError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, http.StatusServiceUnavailable, ce.StatusCode)
	assert.Equal(t, "search", ce.Component)
}
