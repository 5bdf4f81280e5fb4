package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	pkgerrors "github.com/wlyh514/discord-llmvc-bot/pkg/errors"
	"github.com/wlyh514/discord-llmvc-bot/pkg/httputil"
	"github.com/wlyh514/discord-llmvc-bot/runtime/logger"
)

const (
	replyToolResult    = "reply received by users."
	nullResponseMarker = "<NULL>"
)

var errNoChoices = errors.New("model returned no choices")

type toolCall struct {
	ID        string
	Name      string
	Arguments string
}

// OpenAIOption configures an OpenAIAgent.
type OpenAIOption func(*openAIOptions)

type openAIOptions struct {
	baseURL  string
	client   *http.Client
	searcher Searcher
}

// WithBaseURL points the agent at an OpenAI-compatible endpoint.
func WithBaseURL(u string) OpenAIOption {
	return func(o *openAIOptions) {
		o.baseURL = u
	}
}

// WithHTTPClient sets the HTTP client used for model calls.
func WithHTTPClient(c *http.Client) OpenAIOption {
	return func(o *openAIOptions) {
		o.client = c
	}
}

// WithSearcher sets the backend of the web_search tool.
func WithSearcher(s Searcher) OpenAIOption {
	return func(o *openAIOptions) {
		o.searcher = s
	}
}

// OpenAIAgent is a chat-completions tool loop with in-memory conversation
// history. One agent serves one session; calls to Invoke are serialized.
type OpenAIAgent struct {
	client   openai.Client
	cfg      Config
	searcher Searcher
	tools    []openai.ChatCompletionToolParam

	mu      sync.Mutex
	history []openai.ChatCompletionMessageParamUnion
}

var _ Agent = (*OpenAIAgent)(nil)

// NewOpenAI creates an agent.
//
//nolint:gocritic // hugeParam: config is copied once at construction
func NewOpenAI(apiKey string, cfg Config, opts ...OpenAIOption) *OpenAIAgent {
	o := openAIOptions{client: httputil.NewHTTPClient(httputil.DefaultProviderTimeout)}
	for _, opt := range opts {
		opt(&o)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(o.client),
		// A failed turn is discarded, never retried.
		option.WithMaxRetries(0),
	}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}

	return &OpenAIAgent{
		client:   openai.NewClient(reqOpts...),
		cfg:      cfg.withDefaults(),
		searcher: o.searcher,
		tools:    toolParams(),
	}
}

func toolParams() []openai.ChatCompletionToolParam {
	defs := []struct {
		name, description, schema string
	}{
		{
			ActionReply,
			"Reply to a user in the transcript. This is the only method to let your response be seen by the users.",
			replySchemaJSON,
		},
		{
			ActionWebSearch,
			"A search engine. Useful for when you need to answer questions about current events. Input should be a search query.",
			webSearchSchemaJSON,
		},
	}

	out := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, d := range defs {
		var params openai.FunctionParameters
		if err := json.Unmarshal([]byte(d.schema), &params); err != nil {
			panic(fmt.Sprintf("invalid built-in tool schema %s: %v", d.name, err))
		}
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        d.name,
				Description: param.NewOpt(d.description),
				Parameters:  params,
			},
		})
	}
	return out
}

// Invoke appends input to the conversation and runs the tool loop. Every
// tool call is yielded as an Action before the tool runs, so a web_search
// notice can be spoken while the search is in progress. The loop ends when
// a step calls only reply, when the model calls no tool, or after MaxSteps.
func (a *OpenAIAgent) Invoke(ctx context.Context, input string) iter.Seq2[Action, error] {
	return func(yield func(Action, error) bool) {
		a.mu.Lock()
		defer a.mu.Unlock()
		defer a.trimHistory()

		a.history = append(a.history, openai.UserMessage(input))

		for range a.cfg.MaxSteps {
			calls, err := a.step(ctx)
			if err != nil {
				yield(Action{}, err)
				return
			}
			if len(calls) == 0 {
				return
			}

			onlyActions := true
			stopped := false
			for _, call := range calls {
				if !stopped && !yield(Action{Name: call.Name, Args: json.RawMessage(call.Arguments)}, nil) {
					stopped = true
				}
				result := "cancelled"
				if !stopped {
					result = a.runTool(ctx, call)
				}
				a.history = append(a.history, openai.ToolMessage(result, call.ID))
				if call.Name != ActionReply {
					onlyActions = false
				}
			}
			if stopped || onlyActions {
				return
			}
		}
		logger.WarnContext(ctx, "agent stopped after max steps", "max_steps", a.cfg.MaxSteps)
	}
}

// Reset forgets the conversation.
func (a *OpenAIAgent) Reset() {
	a.mu.Lock()
	a.history = nil
	a.mu.Unlock()
}

func (a *OpenAIAgent) step(ctx context.Context) ([]toolCall, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(a.history)+1)
	messages = append(messages, openai.SystemMessage(a.cfg.SystemPrompt))
	messages = append(messages, a.history...)

	params := openai.ChatCompletionNewParams{
		Messages:    messages,
		Model:       a.cfg.Model,
		Tools:       a.tools,
		Temperature: param.NewOpt(a.cfg.Temperature),
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	logger.AgentCall(ctx, a.cfg.Model, len(messages), len(a.tools))
	resp, err := a.client.Chat.Completions.New(callCtx, params)
	if err != nil {
		logger.AgentError(ctx, a.cfg.Model, err)
		ce := pkgerrors.New("agent", "Invoke", err).WithDetails(map[string]any{"model": a.cfg.Model})
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			ce = ce.WithStatusCode(apiErr.StatusCode)
		}
		return nil, ce
	}
	if len(resp.Choices) == 0 {
		return nil, pkgerrors.New("agent", "Invoke", errNoChoices).WithDetails(map[string]any{"model": a.cfg.Model})
	}

	msg := resp.Choices[0].Message
	content := msg.Content
	calls := make([]toolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		calls = append(calls, toolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: tc.Function.Arguments})
	}
	if len(calls) == 0 {
		if rc, ok := repairFunctionCall(content); ok {
			logger.DebugContext(ctx, "recovered tool call from assistant text", "tool", rc.Name)
			calls = append(calls, toolCall{ID: "call_" + uuid.NewString(), Name: rc.Name, Arguments: string(rc.Args)})
			content = rc.Rest
		}
	}

	a.history = append(a.history, assistantMessage(content, calls))
	logger.AgentResponse(ctx, a.cfg.Model, len(calls), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return calls, nil
}

func assistantMessage(content string, calls []toolCall) openai.ChatCompletionMessageParamUnion {
	if content == "" && len(calls) == 0 {
		content = nullResponseMarker
	}
	msg := openai.ChatCompletionAssistantMessageParam{}
	if content != "" {
		msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{OfString: param.NewOpt(content)}
	}
	for _, c := range calls {
		msg.ToolCalls = append(msg.ToolCalls, openai.ChatCompletionMessageToolCallParam{
			ID: c.ID,
			Function: openai.ChatCompletionMessageToolCallFunctionParam{
				Name:      c.Name,
				Arguments: c.Arguments,
			},
		})
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}

func (a *OpenAIAgent) runTool(ctx context.Context, call toolCall) string {
	switch call.Name {
	case ActionReply:
		return replyToolResult
	case ActionWebSearch:
		var args struct {
			SearchQuery string `json:"searchQuery"`
		}
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil || args.SearchQuery == "" {
			return "invalid arguments: searchQuery is required"
		}
		if a.searcher == nil {
			return "web search is unavailable"
		}
		results, err := a.searcher.Search(ctx, args.SearchQuery)
		if err != nil {
			logger.WarnContext(ctx, "web search failed", "error", err)
			return "search failed: " + err.Error()
		}
		out, _ := json.Marshal(results)
		return string(out)
	default:
		return fmt.Sprintf("unknown tool %q", call.Name)
	}
}

// trimHistory drops the oldest exchanges so at most MaxHistory messages
// remain. The kept history always starts at a user message so tool results
// never lose their assistant call.
func (a *OpenAIAgent) trimHistory() {
	if len(a.history) <= a.cfg.MaxHistory {
		return
	}
	cut := len(a.history) - a.cfg.MaxHistory
	for cut < len(a.history) && a.history[cut].OfUser == nil {
		cut++
	}
	a.history = append([]openai.ChatCompletionMessageParamUnion(nil), a.history[cut:]...)
}

// historyLen returns the number of retained messages.
func (a *OpenAIAgent) historyLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.history)
}
