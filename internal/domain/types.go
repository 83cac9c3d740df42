package domain

// BackendStatus reports the observed state of the supervised child process.
type BackendStatus struct {
	Running   bool   `json:"running"`
	Port      int    `json:"port"`
	Health    bool   `json:"health"`
	AppName   string `json:"appName,omitempty"`
	Host      string `json:"host"`
	BaseURL   string `json:"baseUrl"`
	LastError string `json:"lastError,omitempty"`
}

// KeyEnv is the set of credential values read back from the credential
// store, each absent when unset.
type KeyEnv struct {
	GoogleAPIKey  *string `json:"googleApiKey,omitempty"`
	BraveAPIKey   *string `json:"braveApiKey,omitempty"`
	GeminiAPIKey  *string `json:"geminiApiKey,omitempty"`
}

// KeyPresence reports which credentials are set, each with a masked
// preview of its value.
type KeyPresence struct {
	GoogleAPIKeySet    bool    `json:"googleApiKeySet"`
	BraveAPIKeySet     bool    `json:"braveApiKeySet"`
	GeminiAPIKeySet    bool    `json:"geminiApiKeySet"`
	GoogleAPIKeyMasked *string `json:"googleApiKeyMasked,omitempty"`
	BraveAPIKeyMasked  *string `json:"braveApiKeyMasked,omitempty"`
	GeminiAPIKeyMasked *string `json:"geminiApiKeyMasked,omitempty"`
}

// KeysInput is the payload of keys_set; each field is optional and an
// empty/whitespace value is treated as "not provided".
type KeysInput struct {
	GoogleAPIKey *string `json:"googleApiKey,omitempty"`
	BraveAPIKey  *string `json:"braveApiKey,omitempty"`
	GeminiAPIKey *string `json:"geminiApiKey,omitempty"`
}

// Ack is the generic acknowledgement returned by commands that don't have
// a more specific result shape.
type Ack struct {
	OK      bool    `json:"ok"`
	Message *string `json:"message,omitempty"`
}

// NewAck builds an Ack with an attached message.
func NewAck(ok bool, message string) Ack {
	return Ack{OK: ok, Message: &message}
}

// BackendStartConfig carries optional overrides accepted by backend_start.
type BackendStartConfig struct {
	Host         *string `json:"host,omitempty"`
	Port         *int    `json:"port,omitempty"`
	RepoRoot     *string `json:"repoRoot,omitempty"`
	ForceRestart *bool   `json:"forceRestart,omitempty"`
}

// StreamingState is the per-request in-memory bookkeeping the streaming
// bridge threads through one run's event processing.
type StreamingState struct {
	LastModelText        string
	SawModelText         bool
	SawError             bool
	ToolsStarted         int
	ToolsCompleted       int
	LastProgressPercent  int
	LastProgressStage    string
	LastInvocationID     string
	progressInitialized  bool
}

// ProgressChanged reports whether (percent, stage) differs from the last
// emitted progress, and records the new value as a side effect.
func (s *StreamingState) ProgressChanged(percent int, stage string) bool {
	if s.progressInitialized && percent == s.LastProgressPercent && stage == s.LastProgressStage {
		return false
	}
	s.progressInitialized = true
	s.LastProgressPercent = percent
	s.LastProgressStage = stage
	return true
}
