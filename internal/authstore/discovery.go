package authstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// serverMetadata is RFC 8414 OAuth Authorization Server Metadata,
// trimmed to the fields the acquisition flow needs.
type serverMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	RegistrationEndpoint  string `json:"registration_endpoint,omitempty"`
}

// discoverMetadataURL builds the RFC 8414 well-known URL for upstream,
// inserting /.well-known/oauth-authorization-server between host and
// path per the RFC.
func discoverMetadataURL(upstream string) (string, error) {
	u, err := url.Parse(upstream)
	if err != nil {
		return "", fmt.Errorf("parsing upstream URL: %w", err)
	}
	path := strings.TrimSuffix(u.Path, "/")
	base := fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	return base + "/.well-known/oauth-authorization-server" + path, nil
}

// discover fetches and parses the authorization server metadata.
func discover(ctx context.Context, upstream string) (*serverMetadata, error) {
	metadataURL, err := discoverMetadataURL(upstream)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, metadataURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching oauth metadata: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("oauth metadata endpoint returned %d", resp.StatusCode)
	}

	var meta serverMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("decoding oauth metadata: %w", err)
	}
	if meta.AuthorizationEndpoint == "" || meta.TokenEndpoint == "" {
		return nil, fmt.Errorf("oauth metadata missing authorization_endpoint or token_endpoint")
	}
	return &meta, nil
}
