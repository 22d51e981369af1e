package agent

import (
	"encoding/json"
	"strings"

	"github.com/google/uuid"

	"github.com/rezkam/codedive/internal/domain"
)

// Small local models frequently ignore the structured tool_calls field and
// emit the call as JSON inside the content text instead, sometimes wrapped in
// a code fence or surrounded by prose. extractToolCallsFromContent recovers
// those calls so they still flow through the normal execution path, where
// the safety gate screens them like any other tool call.
func extractToolCallsFromContent(content string) []domain.ToolCall {
	content = stripCodeFence(strings.TrimSpace(content))

	if calls := decodeToolCalls(content); len(calls) > 0 {
		return calls
	}

	// Prose around the JSON: cut out the first balanced object or array
	// and try again.
	if start, end := jsonSpan(content); start >= 0 {
		return decodeToolCalls(content[start:end])
	}
	return nil
}

// stripCodeFence unwraps a ```...``` block, with or without a language tag.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	lines := strings.Split(s, "\n")
	if len(lines) >= 3 && strings.HasPrefix(lines[len(lines)-1], "```") {
		return strings.TrimSpace(strings.Join(lines[1:len(lines)-1], "\n"))
	}
	return s
}

// jsonSpan finds the first balanced top-level JSON object or array in s,
// respecting string literals. Returns (-1, -1) when there is none.
func jsonSpan(s string) (int, int) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return -1, -1
	}
	open := s[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inStr := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			switch ch {
			case '\\':
				i++
			case '"':
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return start, i + 1
			}
		}
	}
	return -1, -1
}

// rawCall is the shape models emit: the arguments land under either
// "arguments" or "parameters" depending on the model family.
type rawCall struct {
	Name       string         `json:"name"`
	Arguments  map[string]any `json:"arguments"`
	Parameters map[string]any `json:"parameters"`
}

func (rc rawCall) toDomain() domain.ToolCall {
	args := rc.Arguments
	if args == nil {
		args = rc.Parameters
	}
	if args == nil {
		args = make(map[string]any)
	}
	return domain.ToolCall{
		ID:        "extracted_" + uuid.NewString(),
		Name:      canonicalToolName(rc.Name),
		Arguments: args,
	}
}

// decodeToolCalls parses raw as one call or an array of calls. A failed
// parse is retried once with invalid escape sequences repaired, since models
// routinely emit things like \% inside JSON strings.
func decodeToolCalls(raw string) []domain.ToolCall {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var rcs []rawCall
	if raw[0] == '[' {
		if err := json.Unmarshal([]byte(raw), &rcs); err != nil {
			if err := json.Unmarshal([]byte(repairJSONEscapes(raw)), &rcs); err != nil {
				return nil
			}
		}
	} else {
		var rc rawCall
		if err := json.Unmarshal([]byte(raw), &rc); err != nil {
			if err := json.Unmarshal([]byte(repairJSONEscapes(raw)), &rc); err != nil {
				return nil
			}
		}
		rcs = []rawCall{rc}
	}

	var calls []domain.ToolCall
	for _, rc := range rcs {
		if rc.Name == "" {
			continue
		}
		calls = append(calls, rc.toDomain())
	}
	return calls
}

// canonicalToolName folds the spellings models invent (dropped underscores,
// hyphens, generic aliases) onto the registered tool names.
func canonicalToolName(name string) string {
	switch strings.ToLower(name) {
	case "readfile", "read-file":
		return "read_file"
	case "writefile", "write-file":
		return "write_file"
	case "editfile", "edit-file":
		return "edit_file"
	case "listdir", "list-dir":
		return "list_dir"
	case "bash", "exec":
		return "shell"
	}
	return name
}

// stripRolePrefix drops a leaked role label from the front of model output,
// e.g. "assistant\nHello" or "Assistant: Hello".
func stripRolePrefix(content string) string {
	rest := content
	if after, ok := strings.CutPrefix(rest, "assistant"); ok {
		rest = after
	} else if after, ok := strings.CutPrefix(rest, "Assistant"); ok {
		rest = after
	} else {
		return content
	}
	rest = strings.TrimPrefix(rest, ":")
	if len(rest) > 0 && (rest[0] == '\n' || rest[0] == ' ') {
		return strings.TrimSpace(rest)
	}
	return content
}

// repairJSONEscapes rewrites invalid escape sequences inside JSON string
// literals by dropping the backslash. Valid escapes pass through unchanged.
func repairJSONEscapes(s string) string {
	var buf strings.Builder
	buf.Grow(len(s))
	inStr := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if ch == '"' && (i == 0 || s[i-1] != '\\') {
			inStr = !inStr
			buf.WriteByte(ch)
			continue
		}
		if inStr && ch == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '"', '\\', '/', 'b', 'f', 'n', 'r', 't', 'u':
				buf.WriteByte(ch)
			default:
				continue
			}
		} else {
			buf.WriteByte(ch)
		}
	}
	return buf.String()
}
