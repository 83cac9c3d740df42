package streambridge

import (
	"fmt"
	"sort"
	"strings"
)

// extractRunEvents normalizes a parsed SSE/run-response payload into a
// slice of event objects: a JSON array is used as-is; an object carrying
// one of events/response/result/items as an array uses that; anything
// else is treated as a single event.
func extractRunEvents(parsed any) []map[string]any {
	switch v := parsed.(type) {
	case []any:
		out := make([]map[string]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	case map[string]any:
		for _, key := range []string{"events", "response", "result", "items"} {
			if list, ok := v[key].([]any); ok {
				out := make([]map[string]any, 0, len(list))
				for _, item := range list {
					if m, ok := item.(map[string]any); ok {
						out = append(out, m)
					}
				}
				return out
			}
		}
		return []map[string]any{v}
	default:
		return nil
	}
}

// extractInvocationID tries several key spellings and returns the first
// non-empty, trimmed string found.
func extractInvocationID(event map[string]any) (string, bool) {
	if v, ok := stringField(event, "invocationId"); ok {
		return v, true
	}
	if v, ok := stringField(event, "invocation_id"); ok {
		return v, true
	}
	if meta, ok := event["metadata"].(map[string]any); ok {
		if v, ok := stringField(meta, "invocationId"); ok {
			return v, true
		}
		if v, ok := stringField(meta, "invocation_id"); ok {
			return v, true
		}
	}
	return "", false
}

// extractEventSource returns a trimmed, non-empty author or source field.
func extractEventSource(event map[string]any) (string, bool) {
	if v, ok := stringField(event, "author"); ok {
		return v, true
	}
	if v, ok := stringField(event, "source"); ok {
		return v, true
	}
	return "", false
}

// extractErrorMessage reports whether event.error is present, either as
// a bare string or as an object with a string message field.
func extractErrorMessage(event map[string]any) (string, bool) {
	switch e := event["error"].(type) {
	case string:
		if strings.TrimSpace(e) != "" {
			return e, true
		}
	case map[string]any:
		if v, ok := stringField(e, "message"); ok {
			return v, true
		}
	}
	return "", false
}

var modelRoles = map[string]bool{"model": true, "assistant": true}

// extractModelText concatenates parts[*].text from event.content when
// content.role (or, absent that, event.author) is model/assistant.
func extractModelText(event map[string]any) (text string, source string, ok bool) {
	content, hasContent := event["content"].(map[string]any)
	if !hasContent {
		return "", "", false
	}

	role, hasRole := stringField(content, "role")
	if hasRole {
		if !modelRoles[role] {
			return "", "", false
		}
	} else {
		author, _ := stringField(event, "author")
		if !modelRoles[author] {
			return "", "", false
		}
	}

	parts, _ := content["parts"].([]any)
	var b strings.Builder
	for _, p := range parts {
		part, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if t, ok := part["text"].(string); ok {
			b.WriteString(t)
		}
	}
	combined := b.String()
	if strings.TrimSpace(combined) == "" {
		return "", "", false
	}
	src, _ := extractEventSource(event)
	return combined, src, true
}

// toolSignal is a detected functionCall/functionResponse occurrence.
type toolSignal struct {
	Phase  string
	Name   string
	Query  string
	Detail string
}

// extractToolSignals scans event.content.parts for functionCall (or
// function_call) and functionResponse (or function_response) entries.
func extractToolSignals(event map[string]any) []toolSignal {
	content, ok := event["content"].(map[string]any)
	if !ok {
		return nil
	}
	parts, _ := content["parts"].([]any)

	var signals []toolSignal
	for _, p := range parts {
		part, ok := p.(map[string]any)
		if !ok {
			continue
		}
		if call, ok := firstObject(part, "functionCall", "function_call"); ok {
			name, _ := stringField(call, "name")
			if name == "" {
				name = "tool"
			}
			args, _ := firstObject(call, "args", "arguments")
			query := summarizeQuery(args)
			detail := "args: " + summarizeArgKeys(args)
			if query != "" {
				detail = "query: " + query
			}
			signals = append(signals, toolSignal{Phase: "start", Name: name, Query: query, Detail: detail})
		}
		if resp, ok := firstObject(part, "functionResponse", "function_response"); ok {
			name, _ := stringField(resp, "name")
			if name == "" {
				name = "tool"
			}
			signals = append(signals, toolSignal{Phase: "done", Name: name, Detail: summarizeResponseShape(resp["response"])})
		}
	}
	return signals
}

// summarizeQuery derives a "q1 | q2" style summary from a function
// call's args, scanning recursively up to depth 5 for keys matching
// q/query/queries/*query*, then joining at most 2 results with " | " and
// truncating to 180 characters.
func summarizeQuery(args map[string]any) string {
	if args == nil {
		return ""
	}
	queries := collectQueries(args, 0, nil)
	if len(queries) > 2 {
		queries = queries[:2]
	}
	return truncate(strings.Join(queries, " | "), 180)
}

func collectQueries(v any, depth int, out []string) []string {
	if depth > 5 || len(out) >= 4 {
		return out
	}
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if len(out) >= 4 {
				break
			}
			lower := strings.ToLower(k)
			if k == "q" || lower == "query" || lower == "queries" || strings.Contains(lower, "query") {
				out = collectQueryValue(t[k], out)
				continue
			}
			out = collectQueries(t[k], depth+1, out)
		}
	case []any:
		for _, item := range t {
			if len(out) >= 4 {
				break
			}
			out = collectQueries(item, depth+1, out)
		}
	}
	return out
}

func collectQueryValue(v any, out []string) []string {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) != "" {
			out = append(out, t)
		}
	case []any:
		for _, item := range t {
			if len(out) >= 4 {
				break
			}
			switch iv := item.(type) {
			case string:
				if strings.TrimSpace(iv) != "" {
					out = append(out, iv)
				}
			case map[string]any:
				if q, ok := stringField(iv, "q"); ok {
					out = append(out, q)
				}
			}
		}
	}
	return out
}

func summarizeArgKeys(args map[string]any) string {
	if len(args) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	if len(keys) > 4 {
		keys = keys[:4]
	}
	return strings.Join(keys, ", ")
}

// summarizeResponseShape describes the shape of a functionResponse
// payload: "<n> items returned" for arrays, "<n> fields returned" for
// objects, "no payload" for nil.
func summarizeResponseShape(v any) string {
	switch t := v.(type) {
	case nil:
		return "no payload"
	case []any:
		return fmt.Sprintf("%d items returned", len(t))
	case map[string]any:
		return fmt.Sprintf("%d fields returned", len(t))
	default:
		return "no payload"
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}

func stringField(m map[string]any, key string) (string, bool) {
	v, ok := m[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

func firstObject(m map[string]any, keys ...string) (map[string]any, bool) {
	for _, k := range keys {
		if obj, ok := m[k].(map[string]any); ok {
			return obj, true
		}
	}
	return nil, false
}
