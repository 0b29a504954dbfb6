// Package authstore obtains and persists bearer tokens for HTTP/SSE
// groups that declare oauth_client_id (spec.md §4.5): one JSON file
// per group, PKCE code acquisition with a loopback callback, and
// refresh-before-expiry with a 5-minute grace period.
package authstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// RefreshGracePeriod is how long before expiry a cached token is
// proactively refreshed, so an in-flight request never races an
// expiring token.
const RefreshGracePeriod = 5 * time.Minute

// Record is one group's persisted OAuth state (spec.md §3
// "TokenRecord").
type Record struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        string    `json:"scope,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
}

// NearExpiry reports whether this record should be refreshed now.
func (r *Record) NearExpiry(now time.Time) bool {
	return r.ExpiresAt.Sub(now) < RefreshGracePeriod
}

// recordPath returns the token file path for group under dir.
func recordPath(dir, group string) string {
	return filepath.Join(dir, group+".json")
}

// loadRecord reads a group's token file. A missing or malformed file
// is "no token", never an error (spec.md §4.5): the caller should
// treat both as "acquire a fresh token".
func loadRecord(dir, group string) (*Record, bool) {
	data, err := os.ReadFile(recordPath(dir, group))
	if err != nil {
		return nil, false
	}
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false
	}
	return &r, true
}

// saveRecord writes a group's token file with the most restrictive
// permissions the platform allows.
func saveRecord(dir, group string, r *Record) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	path := recordPath(dir, group)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing token file: %w", err)
	}
	return nil
}

// deleteRecord removes a group's token file. Absence is not an error.
func deleteRecord(dir, group string) {
	_ = os.Remove(recordPath(dir, group))
}
