package agent

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Reply is the decoded argument of a reply action.
type Reply struct {
	Text  *string `json:"text,omitempty"`
	Voice *Voice  `json:"voice,omitempty"`
}

// Voice is the spoken part of a reply.
type Voice struct {
	Recipients    []string `json:"recipients"`
	Transcription string   `json:"transcription"`
}

// HasText reports whether the reply carries non-blank channel text.
func (r Reply) HasText() bool {
	return r.Text != nil && strings.TrimSpace(*r.Text) != ""
}

// HasVoice reports whether the reply carries a non-blank voice transcription.
func (r Reply) HasVoice() bool {
	return r.Voice != nil && strings.TrimSpace(r.Voice.Transcription) != ""
}

const replySchemaJSON = `{
  "type": "object",
  "properties": {
    "text": {
      "type": "string",
      "description": "Your output to the text channel."
    },
    "voice": {
      "type": "object",
      "description": "Your output to the voice channel.",
      "properties": {
        "recipients": {
          "type": "array",
          "items": {"type": "string"},
          "description": "UserIds of users you are replying to."
        },
        "transcription": {
          "type": "string",
          "description": "Content of your voice reply."
        }
      },
      "required": ["recipients", "transcription"]
    }
  }
}`

const webSearchSchemaJSON = `{
  "type": "object",
  "properties": {
    "searchQuery": {
      "type": "string",
      "description": "The search query."
    },
    "responseToUser": {
      "type": "string",
      "description": "A response to the user while the search takes place, e.g. \"Searching the internet for ..., please stand by.\""
    }
  },
  "required": ["searchQuery", "responseToUser"]
}`

var replySchema = mustSchema(replySchemaJSON)

func mustSchema(src string) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in schema: %v", err))
	}
	return s
}

// DecodeReply validates and decodes reply arguments. It returns
// ErrMalformedAction when the arguments violate the reply schema.
func DecodeReply(args json.RawMessage) (Reply, error) {
	result, err := replySchema.Validate(gojsonschema.NewBytesLoader(args))
	if err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedAction, err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return Reply{}, fmt.Errorf("%w: %s", ErrMalformedAction, strings.Join(msgs, "; "))
	}

	var r Reply
	if err := json.Unmarshal(args, &r); err != nil {
		return Reply{}, fmt.Errorf("%w: %v", ErrMalformedAction, err)
	}
	return r, nil
}
