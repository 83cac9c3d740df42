// Package domain holds the plain data types shared by the session store,
// the backend supervisor and the streaming bridge.
package domain

import "time"

// SessionPhase is the state of a session in the idea -> plan -> approve ->
// complete/failed lifecycle.
type SessionPhase string

const (
	PhaseIdeaInput        SessionPhase = "idea_input"
	PhaseAwaitingApproval SessionPhase = "awaiting_approval"
	PhaseRunning          SessionPhase = "running"
	PhaseCompleted        SessionPhase = "completed"
	PhaseFailed           SessionPhase = "failed"
)

// RunMode is the user's intent for a new run.
type RunMode string

const (
	RunModeIdea     RunMode = "idea"
	RunModeEditPlan RunMode = "edit_plan"
	RunModeApprove  RunMode = "approve"
)

// Session is a conversation thread tracked by the session store.
type Session struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	AppName     string       `json:"appName"`
	UserID      string       `json:"userId"`
	Phase       SessionPhase `json:"phase"`
	ReadOnly    bool         `json:"readOnly"`
	CreatedAtMs int64        `json:"createdAtMs"`
	UpdatedAtMs int64        `json:"updatedAtMs"`
}

// Message is a single turn within a session.
type Message struct {
	ID          string `json:"id"`
	SessionID   string `json:"sessionId"`
	Role        string `json:"role"`
	Text        string `json:"text"`
	Status      string `json:"status"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

// allowedRunModes enumerates the (phase, run_mode) pairs accepted by
// validate_run_mode. All pairs not listed here are rejected.
var allowedRunModes = map[SessionPhase]map[RunMode]bool{
	PhaseIdeaInput: {
		RunModeIdea: true,
	},
	PhaseAwaitingApproval: {
		RunModeEditPlan: true,
		RunModeApprove:  true,
	},
}

// IsRunModeAllowed reports whether a run of the given mode may start from
// the given phase.
func IsRunModeAllowed(phase SessionPhase, mode RunMode) bool {
	modes, ok := allowedRunModes[phase]
	if !ok {
		return false
	}
	return modes[mode]
}

// PhaseAfterRun computes the (phase, read_only) a session transitions to
// once a run of the given mode finishes, successfully or not.
func PhaseAfterRun(mode RunMode, success bool) (SessionPhase, bool) {
	if !success {
		return PhaseFailed, true
	}
	switch mode {
	case RunModeIdea, RunModeEditPlan:
		return PhaseAwaitingApproval, false
	case RunModeApprove:
		return PhaseCompleted, true
	default:
		return PhaseFailed, true
	}
}

// NowMs returns the current time in Unix milliseconds, the timestamp unit
// used throughout the session store's schema.
func NowMs() int64 {
	return time.Now().UnixMilli()
}

// auxiliaryAppNames names app names that never qualify as the default
// app, even when present.
var auxiliaryAppNames = map[string]bool{
	"reports": true,
	"tests":   true,
	"desktop": true,
}

// preferredDefaultApp is chosen over any other app when present.
const preferredDefaultApp = "product_validator_search"

// ChooseDefaultApp applies the default-app selection policy the backend
// supervisor uses to pick an app right after startup: the exact literal
// preferredDefaultApp wins if present; else the first app not in the
// auxiliary set; else the first app; else none.
func ChooseDefaultApp(apps []string) (string, bool) {
	for _, app := range apps {
		if app == preferredDefaultApp {
			return app, true
		}
	}
	for _, app := range apps {
		if !auxiliaryAppNames[app] {
			return app, true
		}
	}
	if len(apps) > 0 {
		return apps[0], true
	}
	return "", false
}
