package agent

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var faultyCallPattern = regexp.MustCompile(`functions\.(.*?)[(\n]`)

// repairedCall is a tool call recovered from assistant text.
type repairedCall struct {
	Name string
	Args json.RawMessage
	// Rest is the text left after the call.
	Rest string
}

// repairFunctionCall recovers a tool call the model wrote as text, shaped
// like `functions.reply({voice: {...}})`, often with unquoted keys. It
// reports false when content holds no recoverable call.
func repairFunctionCall(content string) (repairedCall, bool) {
	loc := faultyCallPattern.FindStringSubmatchIndex(content)
	if loc == nil {
		return repairedCall{}, false
	}
	name := strings.TrimSpace(content[loc[2]:loc[3]])
	tail := content[loc[1]:]

	start := strings.IndexAny(tail, "{[")
	if name == "" || start < 0 || strings.TrimSpace(tail[:start]) != "" {
		return repairedCall{}, false
	}
	end := matchBrackets(tail[start:])
	if end < 0 {
		return repairedCall{}, false
	}
	raw := tail[start : start+end]

	fixed, err := jsonrepair.JSONRepair(raw)
	if err != nil || !json.Valid([]byte(fixed)) {
		return repairedCall{}, false
	}

	rest := strings.TrimLeft(tail[start+end:], " \t")
	rest = strings.TrimPrefix(rest, ")")
	return repairedCall{Name: name, Args: json.RawMessage(fixed), Rest: strings.TrimSpace(rest)}, true
}

// matchBrackets returns the length of the balanced {...} or [...] prefix of
// s, skipping brackets inside string literals, or -1 when unbalanced.
func matchBrackets(s string) int {
	depth := 0
	var quote byte
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return -1
}
