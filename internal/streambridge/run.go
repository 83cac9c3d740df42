package streambridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/desktop-core/internal/domain"
	"github.com/ashureev/desktop-core/internal/sessionstore"
	"github.com/google/uuid"
)

const (
	execSessionCreateTimeout = 120 * time.Second
	replayTimeout            = 10 * time.Minute
	sseRunTimeout            = 30 * time.Minute
)

// backend is the subset of *supervisor.Supervisor the bridge needs. It
// is expressed as an interface so tests can drive the bridge against a
// fake backend without a real child process.
type backend interface {
	BaseURL() string
}

// httpDoer lets tests substitute a round tripper without a live server.
type httpDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Outcome is the terminal result of one Run call, used by the command
// surface to decide the session's next phase.
type Outcome struct {
	Completed bool
	Err       error
}

// Runner drives one agent invocation end to end: ensures an execution
// session on the backend, replays recent context, opens the SSE stream
// (falling back to a single non-streaming POST /run when SSE isn't
// supported), and emits normalized frontend events as it goes.
type Runner struct {
	Backend backend
	Client  httpDoer
	Store   *sessionstore.Store
}

// NewRunner wires a Runner against a live backend and session store
// using a plain http.Client tuned for the long-lived SSE connection.
func NewRunner(b backend, store *sessionstore.Store) *Runner {
	return &Runner{
		Backend: b,
		Client:  &http.Client{Timeout: sseRunTimeout},
		Store:   store,
	}
}

// Run executes one turn for sessionID in appName/userID and streams
// normalized events to emit. requestID identifies this run for the
// command surface's broadcast channel naming.
func (r *Runner) Run(ctx context.Context, requestID, appName, userID, sessionID, message string, emit Emit) Outcome {
	emitOpen(emit, requestID)

	execSessionID := "adk-" + newID()
	if _, err := r.createExecSession(ctx, appName, userID, execSessionID); err != nil {
		emitError(emit, requestID, fmt.Sprintf("could not start an execution session: %s", err), true)
		emitDone(emit, requestID, nil)
		return Outcome{Completed: false, Err: err}
	}

	var toolsStarted, toolsCompleted int
	var state domain.StreamingState
	percent, stage := ProgressSnapshot(0, 0, false, false)
	if state.ProgressChanged(percent, stage) {
		emitProgress(emit, requestID, percent, stage, toolsCompleted, toolsStarted)
	}

	r.replayBestEffort(ctx, requestID, sessionID, execSessionID, appName, userID, message, emit)

	sawModelText := false
	seenInvocations := map[string]bool{}
	var lastErr error

	useSSE := true
	resp, err := r.openSSE(ctx, appName, userID, execSessionID, message)
	if err != nil {
		emitError(emit, requestID, fmt.Sprintf("agent backend unreachable: %s", err), true)
		emitDone(emit, requestID, nil)
		return Outcome{Completed: false, Err: err}
	}
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		resp.Body.Close()
		useSSE = false
	} else if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := fmt.Sprintf("agent backend returned status %d", resp.StatusCode)
		resp.Body.Close()
		emitError(emit, requestID, msg, false)
		emitDone(emit, requestID, nil)
		return Outcome{Completed: false, Err: fmt.Errorf("%s", msg)}
	}

	processEvent := func(event map[string]any) {
		emitRaw(emit, requestID, event)

		if invID, ok := extractInvocationID(event); ok && !seenInvocations[invID] {
			seenInvocations[invID] = true
			emitMeta(emit, requestID, invID)
		}

		if msg, source, ok := extractModelText(event); ok {
			sawModelText = true
			if trimmed := strings.TrimSpace(msg); trimmed != state.LastModelText {
				state.LastModelText = trimmed
				emitMessage(emit, requestID, trimmed, source)
			}
		}

		for _, sig := range extractToolSignals(event) {
			if sig.Phase == "start" {
				toolsStarted++
			} else {
				toolsCompleted++
			}
			emitTool(emit, requestID, sig.Phase, sig.Name, sig.Query, sig.Detail)
		}

		if errMsg, ok := extractErrorMessage(event); ok {
			lastErr = fmt.Errorf("%s", errMsg)
			emitError(emit, requestID, errMsg, false)
		}

		percent, stage := ProgressSnapshot(toolsStarted, toolsCompleted, sawModelText, false)
		if state.ProgressChanged(percent, stage) {
			emitProgress(emit, requestID, percent, stage, toolsCompleted, toolsStarted)
		}
	}

	if useSSE {
		defer resp.Body.Close()
		scanErr := scanSSEFrames(resp.Body, func(frame sseFrame) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			if frame.done {
				return nil
			}
			for _, event := range extractRunEvents(frame.payload) {
				processEvent(event)
			}
			return nil
		})
		if scanErr != nil && lastErr == nil {
			lastErr = scanErr
			if errors.Is(scanErr, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
				emitError(emit, requestID, "Run cancelled.", false)
			} else {
				emitError(emit, requestID, fmt.Sprintf("stream interrupted: %s", scanErr), true)
			}
		}
	} else {
		var parsed any
		runBody, _ := json.Marshal(map[string]any{"app_name": appName, "user_id": userID, "session_id": execSessionID, "streaming": false,
			"new_message": map[string]any{"role": "user", "parts": []map[string]any{{"text": message}}}})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.Backend.BaseURL()+"/run", bytes.NewReader(runBody))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
			resp, err = r.Client.Do(req)
		}
		if err == nil {
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				err = fmt.Errorf("fallback /run returned %d", resp.StatusCode)
			} else {
				err = json.NewDecoder(resp.Body).Decode(&parsed)
			}
		}
		if err != nil {
			lastErr = err
			emitError(emit, requestID, fmt.Sprintf("non-streaming fallback failed: %s", err), false)
		} else {
			for _, event := range extractRunEvents(parsed) {
				processEvent(event)
			}
		}
	}

	finalPercent, finalStage := ProgressSnapshot(toolsStarted, toolsCompleted, sawModelText, true)
	if state.ProgressChanged(finalPercent, finalStage) {
		emitProgress(emit, requestID, finalPercent, finalStage, toolsCompleted, toolsStarted)
	}
	emitDone(emit, requestID, nil)

	return Outcome{Completed: lastErr == nil, Err: lastErr}
}

func (r *Runner) createExecSession(ctx context.Context, appName, userID, execSessionID string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, execSessionCreateTimeout)
	defer cancel()

	body, _ := json.Marshal(map[string]any{"sessionId": execSessionID})
	url := fmt.Sprintf("%s/apps/%s/users/%s/sessions", r.Backend.BaseURL(), appName, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend returned %d creating execution session", resp.StatusCode)
	}
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return out, nil
}

// replayText rewrites a prior message's text the way it is resent to the
// backend: non-user roles are clearly marked so the model doesn't mistake
// rehydrated context for fresh user input.
func replayText(role, text string) string {
	switch role {
	case "assistant", "model":
		return "Previous assistant response:\n" + text
	default:
		return "Previous context:\n" + text
	}
}

// replayBestEffort re-sends the replay window to the backend's execution
// session via non-streaming /run calls so the model has context before the
// real run starts. Replay is best-effort: a failure degrades the run with
// a single stream_tool info event rather than failing it (§4.4.1 step 3).
func (r *Runner) replayBestEffort(ctx context.Context, requestID, sessionID, execSessionID, appName, userID, message string, emit Emit) {
	if r.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, replayTimeout)
	defer cancel()

	history, err := r.Store.ReplayMessages(ctx, sessionID, message, sessionstore.ReplayDepth)
	if err != nil {
		emitTool(emit, requestID, "info", "context_replay", "", fmt.Sprintf("Replay degraded: %s", truncate(err.Error(), 200)))
		return
	}

	var degradedErr error
	for _, msg := range history {
		if degradedErr != nil {
			break
		}
		body, _ := json.Marshal(map[string]any{
			"app_name":   appName,
			"user_id":    userID,
			"session_id": execSessionID,
			"streaming":  false,
			"new_message": map[string]any{
				"role":  "user",
				"parts": []map[string]any{{"text": replayText(msg.Role, msg.Text)}},
			},
		})
		url := r.Backend.BaseURL() + "/run"
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			degradedErr = err
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := r.Client.Do(req)
		if err != nil {
			degradedErr = err
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			degradedErr = fmt.Errorf("backend returned %d replaying context", resp.StatusCode)
		}
		resp.Body.Close()
	}
	if degradedErr != nil {
		emitTool(emit, requestID, "info", "context_replay", "", fmt.Sprintf("Replay degraded: %s", truncate(degradedErr.Error(), 200)))
	}
}

func (r *Runner) openSSE(ctx context.Context, appName, userID, execSessionID, message string) (*http.Response, error) {
	body, err := json.Marshal(map[string]any{
		"app_name":   appName,
		"user_id":    userID,
		"session_id": execSessionID,
		"new_message": map[string]any{
			"role":  "user",
			"parts": []map[string]any{{"text": message}},
		},
		"streaming": true,
	})
	if err != nil {
		return nil, err
	}

	url := r.Backend.BaseURL() + "/run_sse"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	return r.Client.Do(req)
}

func newID() string {
	return uuid.NewString()
}
