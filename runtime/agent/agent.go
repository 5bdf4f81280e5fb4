// Package agent turns a sealed conversation turn into a sequence of actions
// by calling a tool-using language model.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"time"
)

// Action names.
const (
	// ActionReply delivers a text and/or voice reply.
	ActionReply = "reply"
	// ActionWebSearch searches the web; its args carry a notice to speak
	// while the search runs.
	ActionWebSearch = "web_search"
)

// ErrMalformedAction is returned when an action's arguments do not match
// its schema.
var ErrMalformedAction = errors.New("malformed action")

// Action is one tool invocation yielded by the agent.
type Action struct {
	Name string
	Args json.RawMessage
}

// Agent produces the actions for one turn. The sequence ends when the agent
// yields no further actions; an empty sequence means no response. A yielded
// error ends the sequence.
type Agent interface {
	Invoke(ctx context.Context, input string) iter.Seq2[Action, error]
}

// Config is the per-session agent configuration.
type Config struct {
	Model        string
	Temperature  float64
	SystemPrompt string
	// MaxSteps bounds model calls per turn.
	MaxSteps int
	// MaxHistory bounds retained conversation messages, system prompt excluded.
	MaxHistory int
	// Timeout bounds each model call.
	Timeout time.Duration
}

// Defaults.
const (
	DefaultModel      = "gpt-4o"
	DefaultMaxSteps   = 4
	DefaultMaxHistory = 60
	DefaultTimeout    = 60 * time.Second
)

// DefaultSystemPrompt instructs the model how transcripts look and how to answer.
const DefaultSystemPrompt = `You are a voice assistant called GPT. You will be presented with transcriptions of a multi-user voice channel, in the form of (<userId>,<username>):<text>. Users will try to start a conversation with you by directly referencing you e.g.'Hey GPT', or expect your response by replying to your previous response. If you feel they are expecting a response from you, output your response. Otherwise do not call any tool and output <NULL>.

To make your response visible to the user, you have to call the 'reply' tool. You have two methods of responding, by voice output or by text channel. Normally you should use the voice channel to reply to users. If your reply include code blocks, email templates or if the user explicitly tells you to output to the text channel, print them to the text channel and tell the user via voice to check the text channel.

You have access to the internet. When feel uncertain, do not make assumptions and call the 'web_search' tool.

Try to be friendly, casual, natural and human-like.
`

// DefaultConfig returns the default agent configuration.
func DefaultConfig() Config {
	return Config{
		Model:        DefaultModel,
		SystemPrompt: DefaultSystemPrompt,
		MaxSteps:     DefaultMaxSteps,
		MaxHistory:   DefaultMaxHistory,
		Timeout:      DefaultTimeout,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Model == "" {
		c.Model = d.Model
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = d.SystemPrompt
	}
	if c.MaxSteps <= 0 {
		c.MaxSteps = d.MaxSteps
	}
	if c.MaxHistory <= 0 {
		c.MaxHistory = d.MaxHistory
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}
