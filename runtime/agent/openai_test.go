package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/wlyh514/discord-llmvc-bot/pkg/errors"
)

type fakeCompletions struct {
	t         *testing.T
	mu        sync.Mutex
	responses []string
	requests  []map[string]any
	status    int
}

func (f *fakeCompletions) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
		http.NotFound(w, r)
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		f.t.Errorf("decode request: %v", err)
	}

	f.mu.Lock()
	f.requests = append(f.requests, body)
	status := f.status
	var resp string
	if len(f.responses) > 0 {
		resp, f.responses = f.responses[0], f.responses[1:]
	} else {
		resp = textResponse("<NULL>")
	}
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":{"message":"server exploded","type":"server_error"}}`))
		return
	}
	_, _ = w.Write([]byte(resp))
}

func (f *fakeCompletions) got() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.requests...)
}

func completion(message map[string]any, finish string) string {
	out, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o",
		"choices": []any{map[string]any{"index": 0, "finish_reason": finish, "message": message}},
		"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	})
	return string(out)
}

func textResponse(content string) string {
	return completion(map[string]any{"role": "assistant", "content": content}, "stop")
}

func toolResponse(calls ...[2]string) string {
	tcs := make([]any, 0, len(calls))
	for i, c := range calls {
		tcs = append(tcs, map[string]any{
			"id":       "call_" + string(rune('a'+i)),
			"type":     "function",
			"function": map[string]any{"name": c[0], "arguments": c[1]},
		})
	}
	return completion(map[string]any{"role": "assistant", "content": nil, "tool_calls": tcs}, "tool_calls")
}

type fakeSearcher struct {
	queries []string
}

func (s *fakeSearcher) Search(_ context.Context, q string) ([]SearchResult, error) {
	s.queries = append(s.queries, q)
	return []SearchResult{{Title: "Sunny", Link: "https://weather.example", Snippet: "25C"}}, nil
}

func newTestAgent(t *testing.T, fake *fakeCompletions, cfg Config, opts ...OpenAIOption) *OpenAIAgent {
	t.Helper()
	fake.t = t
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)
	opts = append([]OpenAIOption{WithBaseURL(server.URL + "/v1/"), WithHTTPClient(server.Client())}, opts...)
	return NewOpenAI("sk-test", cfg, opts...)
}

func collectActions(t *testing.T, a Agent, input string) ([]Action, error) {
	t.Helper()
	var actions []Action
	for action, err := range a.Invoke(context.Background(), input) {
		if err != nil {
			return actions, err
		}
		actions = append(actions, action)
	}
	return actions, nil
}

const voiceReply = `{"voice":{"recipients":["u1"],"transcription":"Hello!"}}`

func TestOpenAIAgent_Reply(t *testing.T) {
	fake := &fakeCompletions{responses: []string{toolResponse([2]string{ActionReply, voiceReply})}}
	a := newTestAgent(t, fake, DefaultConfig())

	actions, err := collectActions(t, a, "(u1,alice):hey GPT")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionReply, actions[0].Name)
	assert.JSONEq(t, voiceReply, string(actions[0].Args))

	reqs := fake.got()
	require.Len(t, reqs, 1)
	assert.Equal(t, "gpt-4o", reqs[0]["model"])
	assert.EqualValues(t, 0, reqs[0]["temperature"])
	assert.Len(t, reqs[0]["tools"], 2)

	msgs := reqs[0]["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "(u1,alice):hey GPT", msgs[1].(map[string]any)["content"])

	// user, assistant call, tool result
	assert.Equal(t, 3, a.historyLen())
}

func TestOpenAIAgent_SearchThenReply(t *testing.T) {
	search := `{"searchQuery":"weather today","responseToUser":"Checking the weather, please stand by."}`
	fake := &fakeCompletions{responses: []string{
		toolResponse([2]string{ActionWebSearch, search}),
		toolResponse([2]string{ActionReply, voiceReply}),
	}}
	searcher := &fakeSearcher{}
	a := newTestAgent(t, fake, DefaultConfig(), WithSearcher(searcher))

	actions, err := collectActions(t, a, "(u1,alice):what's the weather")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, ActionWebSearch, actions[0].Name)
	assert.Equal(t, ActionReply, actions[1].Name)
	assert.Equal(t, []string{"weather today"}, searcher.queries)

	reqs := fake.got()
	require.Len(t, reqs, 2)
	msgs := reqs[1]["messages"].([]any)
	last := msgs[len(msgs)-1].(map[string]any)
	assert.Equal(t, "tool", last["role"])
	assert.Contains(t, last["content"], "Sunny")
}

func TestOpenAIAgent_NullMeansNoActions(t *testing.T) {
	fake := &fakeCompletions{responses: []string{textResponse("<NULL>")}}
	a := newTestAgent(t, fake, DefaultConfig())

	actions, err := collectActions(t, a, "(u1,alice):talking to bob")
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Equal(t, 2, a.historyLen())
}

func TestOpenAIAgent_RepairsFaultyCall(t *testing.T) {
	fake := &fakeCompletions{responses: []string{
		textResponse(`functions.reply({voice: {recipients: ["u1"], transcription: "Hi"}})`),
	}}
	a := newTestAgent(t, fake, DefaultConfig())

	actions, err := collectActions(t, a, "(u1,alice):hey")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	reply, err := DecodeReply(actions[0].Args)
	require.NoError(t, err)
	assert.Equal(t, "Hi", reply.Voice.Transcription)
}

func TestOpenAIAgent_ErrorNotRetried(t *testing.T) {
	fake := &fakeCompletions{status: http.StatusInternalServerError}
	a := newTestAgent(t, fake, DefaultConfig())

	actions, err := collectActions(t, a, "(u1,alice):hey")
	require.Error(t, err)
	assert.Empty(t, actions)
	assert.Len(t, fake.got(), 1)

	var ce *pkgerrors.ContextualError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "agent", ce.Component)
	assert.Equal(t, http.StatusInternalServerError, ce.StatusCode)
	assert.Equal(t, DefaultConfig().Model, ce.Details["model"])
	assert.Equal(t, "agent", pkgerrors.ComponentOf(err))
}

func TestOpenAIAgent_KeepsHistoryAcrossTurns(t *testing.T) {
	fake := &fakeCompletions{}
	a := newTestAgent(t, fake, DefaultConfig())

	_, err := collectActions(t, a, "(u1,alice):first")
	require.NoError(t, err)
	_, err = collectActions(t, a, "(u1,alice):second")
	require.NoError(t, err)

	reqs := fake.got()
	require.Len(t, reqs, 2)
	// system, user, assistant, user
	assert.Len(t, reqs[1]["messages"], 4)
}

func TestOpenAIAgent_TrimsHistoryAtUserBoundary(t *testing.T) {
	fake := &fakeCompletions{}
	cfg := DefaultConfig()
	cfg.MaxHistory = 3
	a := newTestAgent(t, fake, cfg)

	for _, in := range []string{"one", "two", "three"} {
		_, err := collectActions(t, a, in)
		require.NoError(t, err)
	}
	// Each turn adds a user and an assistant message; trimming keeps whole
	// exchanges only.
	assert.Equal(t, 2, a.historyLen())
}

func TestOpenAIAgent_StopsAtMaxSteps(t *testing.T) {
	search := `{"searchQuery":"q","responseToUser":"hold on"}`
	fake := &fakeCompletions{responses: []string{
		toolResponse([2]string{ActionWebSearch, search}),
		toolResponse([2]string{ActionWebSearch, search}),
		toolResponse([2]string{ActionWebSearch, search}),
	}}
	cfg := DefaultConfig()
	cfg.MaxSteps = 2
	a := newTestAgent(t, fake, cfg)

	actions, err := collectActions(t, a, "loop")
	require.NoError(t, err)
	assert.Len(t, actions, 2)
	assert.Len(t, fake.got(), 2)
}

func TestOpenAIAgent_ConsumerStops(t *testing.T) {
	search := `{"searchQuery":"q","responseToUser":"hold on"}`
	fake := &fakeCompletions{responses: []string{
		toolResponse([2]string{ActionWebSearch, search}, [2]string{ActionReply, voiceReply}),
	}}
	searcher := &fakeSearcher{}
	a := newTestAgent(t, fake, DefaultConfig(), WithSearcher(searcher))

	for range a.Invoke(context.Background(), "x") {
		break
	}
	assert.Len(t, fake.got(), 1)
	assert.Empty(t, searcher.queries)
	// user, assistant, two tool results
	assert.Equal(t, 4, a.historyLen())
}
