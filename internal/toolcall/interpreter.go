// Package toolcall parses the tag-delimited tool-call syntax out of
// free-form model output.
//
// The grammar is a single level of tags:
//
//	<tool_call>
//	<tool>web_search</tool>
//	<query>golang mailbox pattern</query>
//	<max_results>3</max_results>
//	</tool_call>
//
// The <tool> tag names the tool; every other tag inside the block is an
// argument. Argument values that look numeric or boolean are coerced,
// everything else stays a string. Repeating the same tag name at more
// than one level is not supported.
package toolcall

import (
	"strconv"
	"strings"
)

// Tag pair delimiting one tool call block.
const (
	OpenTag  = "<tool_call>"
	CloseTag = "</tool_call>"
)

const toolNameTag = "tool"

// Call is one parsed tool invocation.
type Call struct {
	Name string
	Args map[string]any
}

// Issue describes a malformed or partially closed block. Issues are
// returned alongside valid calls so the caller can surface them to the
// model as a visible correction instead of silently dropping markup.
type Issue struct {
	Offset int
	Reason string
}

// HasCalls reports whether the text contains tool-call markup,
// well-formed or not.
func HasCalls(text string) bool {
	return strings.Contains(text, OpenTag)
}

// Parse extracts all tool-call blocks from text. Valid blocks become
// Calls; malformed ones become Issues.
func Parse(text string) ([]Call, []Issue) {
	var calls []Call
	var issues []Issue

	rest := text
	base := 0
	for {
		start := strings.Index(rest, OpenTag)
		if start < 0 {
			break
		}
		bodyStart := start + len(OpenTag)
		end := strings.Index(rest[bodyStart:], CloseTag)
		if end < 0 {
			issues = append(issues, Issue{
				Offset: base + start,
				Reason: "unterminated " + OpenTag + " block",
			})
			break
		}
		body := rest[bodyStart : bodyStart+end]
		call, issue := parseBlock(body, base+start)
		if issue != nil {
			issues = append(issues, *issue)
		} else {
			calls = append(calls, call)
		}
		consumed := bodyStart + end + len(CloseTag)
		rest = rest[consumed:]
		base += consumed
	}
	return calls, issues
}

// parseBlock reads the one-level tag pairs inside a tool_call body.
func parseBlock(body string, offset int) (Call, *Issue) {
	call := Call{Args: make(map[string]any)}
	rest := body
	for {
		open := strings.Index(rest, "<")
		if open < 0 {
			break
		}
		closeAngle := strings.Index(rest[open:], ">")
		if closeAngle < 0 {
			return Call{}, &Issue{Offset: offset, Reason: "unterminated tag in tool call block"}
		}
		name := rest[open+1 : open+closeAngle]
		if name == "" || strings.HasPrefix(name, "/") || strings.ContainsAny(name, " \t\n<") {
			return Call{}, &Issue{Offset: offset, Reason: "malformed tag <" + name + "> in tool call block"}
		}
		closing := "</" + name + ">"
		valueStart := open + closeAngle + 1
		closeIdx := strings.Index(rest[valueStart:], closing)
		if closeIdx < 0 {
			return Call{}, &Issue{Offset: offset, Reason: "missing " + closing + " in tool call block"}
		}
		value := strings.TrimSpace(rest[valueStart : valueStart+closeIdx])
		if name == toolNameTag {
			call.Name = value
		} else {
			call.Args[name] = coerceScalar(value)
		}
		rest = rest[valueStart+closeIdx+len(closing):]
	}
	if call.Name == "" {
		return Call{}, &Issue{Offset: offset, Reason: "tool call block has no <tool> tag"}
	}
	return call, nil
}

// Strip returns the text with all complete tool-call blocks removed and
// whitespace trimmed. Unterminated trailing blocks are removed from the
// opening tag onward.
func Strip(text string) string {
	var sb strings.Builder
	rest := text
	for {
		start := strings.Index(rest, OpenTag)
		if start < 0 {
			sb.WriteString(rest)
			break
		}
		sb.WriteString(rest[:start])
		end := strings.Index(rest[start:], CloseTag)
		if end < 0 {
			break
		}
		rest = rest[start+end+len(CloseTag):]
	}
	return strings.TrimSpace(sb.String())
}

// coerceScalar maps numeric-looking and boolean-looking strings to
// typed values and leaves everything else as a string.
func coerceScalar(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
