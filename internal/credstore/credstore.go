// Package credstore persists API credentials in the operating system's
// keychain and exposes the read/set/clear/presence surface the backend
// supervisor and command surface need.
package credstore

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/desktop-core/internal/domain"
	"github.com/zalando/go-keyring"
)

// ServiceName is the fixed keychain service these credentials live under.
const ServiceName = "project-validator-search"

const (
	accountGoogleAPIKey = "google_api_key"
	accountBraveAPIKey  = "brave_search_api_key"
	accountGeminiAPIKey = "gemini_api_key"
)

var accounts = []string{accountGoogleAPIKey, accountBraveAPIKey, accountGeminiAPIKey}

// Store reads and writes the three named secrets under ServiceName.
type Store struct{}

// New returns a Store backed by the host's native keychain.
func New() *Store {
	return &Store{}
}

// SetInput carries the values set() accepts; a nil or blank field is left
// untouched, never deleted.
type SetInput struct {
	GoogleAPIKey *string
	BraveAPIKey  *string
	GeminiAPIKey *string
}

// Set upserts each provided, non-empty value and re-reads the keychain to
// verify the write landed, returning a distinct error per key that was
// submitted but did not come back on read.
func (s *Store) Set(in SetInput) error {
	provided := map[string]string{}
	for account, value := range map[string]*string{
		accountGoogleAPIKey: in.GoogleAPIKey,
		accountBraveAPIKey:  in.BraveAPIKey,
		accountGeminiAPIKey: in.GeminiAPIKey,
	} {
		if value == nil {
			continue
		}
		trimmed := strings.TrimSpace(*value)
		if trimmed == "" {
			continue
		}
		if err := keyring.Set(ServiceName, account, trimmed); err != nil {
			return fmt.Errorf("credstore: set %s: %w", account, err)
		}
		provided[account] = trimmed
	}

	for account := range provided {
		stored, err := s.read(account)
		if err != nil {
			return fmt.Errorf("credstore: verify %s: %w", account, err)
		}
		if stored == "" {
			return fmt.Errorf("credstore: %s was set but is not present on read-back", account)
		}
	}
	return nil
}

// GetEnv returns the three current values, each nil when absent.
func (s *Store) GetEnv() (domain.KeyEnv, error) {
	google, err := s.read(accountGoogleAPIKey)
	if err != nil {
		return domain.KeyEnv{}, err
	}
	brave, err := s.read(accountBraveAPIKey)
	if err != nil {
		return domain.KeyEnv{}, err
	}
	gemini, err := s.read(accountGeminiAPIKey)
	if err != nil {
		return domain.KeyEnv{}, err
	}
	return domain.KeyEnv{
		GoogleAPIKey: optional(google),
		BraveAPIKey:  optional(brave),
		GeminiAPIKey: optional(gemini),
	}, nil
}

// Clear deletes all three entries; a missing entry is not an error.
func (s *Store) Clear() error {
	for _, account := range accounts {
		if err := keyring.Delete(ServiceName, account); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("credstore: clear %s: %w", account, err)
		}
	}
	return nil
}

// Presence reports per-key booleans and masked previews of the stored
// values.
func (s *Store) Presence() (domain.KeyPresence, error) {
	google, err := s.read(accountGoogleAPIKey)
	if err != nil {
		return domain.KeyPresence{}, err
	}
	brave, err := s.read(accountBraveAPIKey)
	if err != nil {
		return domain.KeyPresence{}, err
	}
	gemini, err := s.read(accountGeminiAPIKey)
	if err != nil {
		return domain.KeyPresence{}, err
	}

	p := domain.KeyPresence{
		GoogleAPIKeySet: google != "",
		BraveAPIKeySet:  brave != "",
		GeminiAPIKeySet: gemini != "",
	}
	if google != "" {
		p.GoogleAPIKeyMasked = optional(Mask(google))
	}
	if brave != "" {
		p.BraveAPIKeyMasked = optional(Mask(brave))
	}
	if gemini != "" {
		p.GeminiAPIKeyMasked = optional(Mask(gemini))
	}
	return p, nil
}

// read returns the stored value for account, or "" if absent. "Not
// found" and "stored empty string" both map to absent.
func (s *Store) read(account string) (string, error) {
	value, err := keyring.Get(ServiceName, account)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("credstore: read %s: %w", account, err)
	}
	return strings.TrimSpace(value), nil
}

// Mask returns "***" followed by at most the last 4 characters of secret.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return "***" + secret
	}
	return "***" + secret[len(secret)-4:]
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
