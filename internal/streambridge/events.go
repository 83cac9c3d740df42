// Package streambridge runs one in-flight streaming interaction from a
// frontend request to the agent backend, translating its SSE event
// schema into a normalized, idempotent event stream.
package streambridge

// Emit delivers one normalized frontend event for a request. Callers
// bind it to a channel named "agent-stream:<requestId>" per the command
// surface's broadcast convention.
type Emit func(event any)

// StreamOpen signals that a run has started.
type StreamOpen struct {
	Kind      string `json:"kind"`
	RequestID string `json:"requestId"`
}

// StreamMeta is emitted once per distinct upstream invocation id seen.
type StreamMeta struct {
	Kind         string `json:"kind"`
	RequestID    string `json:"requestId"`
	InvocationID string `json:"invocationId"`
}

// StreamEventRaw passes the untouched upstream event through for
// debugging/display.
type StreamEventRaw struct {
	Kind      string `json:"kind"`
	RequestID string `json:"requestId"`
	Event     any    `json:"event"`
}

// StreamMessage is emitted when the normalized accumulated model text
// changes.
type StreamMessage struct {
	Kind      string `json:"kind"`
	RequestID string `json:"requestId"`
	Text      string `json:"text"`
	Source    string `json:"source,omitempty"`
}

// StreamTool is emitted once per detected function call / function
// response.
type StreamTool struct {
	Kind      string `json:"kind"`
	RequestID string `json:"requestId"`
	Phase     string `json:"phase"`
	Name      string `json:"name"`
	Query     string `json:"query,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

// StreamProgress is emitted only when (percent, stage) changes.
type StreamProgress struct {
	Kind           string `json:"kind"`
	RequestID      string `json:"requestId"`
	Percent        int    `json:"percent"`
	Stage          string `json:"stage"`
	ToolsCompleted int    `json:"toolsCompleted"`
	ToolsTotal     int    `json:"toolsTotal"`
}

// StreamError reports a run-level failure.
type StreamError struct {
	Kind      string `json:"kind"`
	RequestID string `json:"requestId"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// StreamDone is always the last event of a non-orphaned stream.
type StreamDone struct {
	Kind      string `json:"kind"`
	RequestID string `json:"requestId"`
	Usage     any    `json:"usage,omitempty"`
}

func emitOpen(emit Emit, requestID string) {
	emit(StreamOpen{Kind: "stream_open", RequestID: requestID})
}

func emitMeta(emit Emit, requestID, invocationID string) {
	emit(StreamMeta{Kind: "stream_meta", RequestID: requestID, InvocationID: invocationID})
}

func emitRaw(emit Emit, requestID string, event any) {
	emit(StreamEventRaw{Kind: "stream_event_raw", RequestID: requestID, Event: event})
}

func emitMessage(emit Emit, requestID, text, source string) {
	emit(StreamMessage{Kind: "stream_message", RequestID: requestID, Text: text, Source: source})
}

func emitTool(emit Emit, requestID, phase, name, query, detail string) {
	emit(StreamTool{Kind: "stream_tool", RequestID: requestID, Phase: phase, Name: name, Query: query, Detail: detail})
}

func emitProgress(emit Emit, requestID string, percent int, stage string, toolsCompleted, toolsTotal int) {
	emit(StreamProgress{
		Kind: "stream_progress", RequestID: requestID,
		Percent: percent, Stage: stage,
		ToolsCompleted: toolsCompleted, ToolsTotal: toolsTotal,
	})
}

func emitError(emit Emit, requestID, message string, retryable bool) {
	emit(StreamError{Kind: "stream_error", RequestID: requestID, Message: message, Retryable: retryable})
}

func emitDone(emit Emit, requestID string, usage any) {
	emit(StreamDone{Kind: "stream_done", RequestID: requestID, Usage: usage})
}
