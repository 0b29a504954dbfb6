package authstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// clientRegistrationRequest is a pared-down RFC 7591 request body: the
// fields a public PKCE client actually needs to declare, not the full
// metadata surface a confidential web client would send.
type clientRegistrationRequest struct {
	ClientName              string   `json:"client_name"`
	ClientURI               string   `json:"client_uri,omitempty"`
	RedirectURIs            []string `json:"redirect_uris"`
	GrantTypes              []string `json:"grant_types"`
	ResponseTypes           []string `json:"response_types"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method"`
	ApplicationType         string   `json:"application_type"`
}

// clientRegistrationResponse is RFC 7591's response, trimmed to the
// fields this flow consumes.
type clientRegistrationResponse struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret,omitempty"`
}

// registerDynamicClient performs RFC 7591 Dynamic Client Registration
// against endpoint, so a group that sets oauth: true without an
// oauth_client_id can still complete the PKCE flow (SPEC_FULL.md §11).
// redirectURI is the loopback callback this proxy will present during
// the authorization step; it must match what registerDynamicClient
// declares here, since most authorization servers reject a redirect
// URI at the authorize step that wasn't registered up front.
func registerDynamicClient(ctx context.Context, endpoint, redirectURI string) (*clientRegistrationResponse, error) {
	reqBody := clientRegistrationRequest{
		ClientName:              "mcpproxy",
		RedirectURIs:            []string{redirectURI},
		GrantTypes:              []string{"authorization_code", "refresh_token"},
		ResponseTypes:           []string{"code"},
		TokenEndpointAuthMethod: "none",
		ApplicationType:         "native",
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling dcr request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dcr request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("dcr endpoint returned %d", resp.StatusCode)
	}

	var out clientRegistrationResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding dcr response: %w", err)
	}
	if out.ClientID == "" {
		return nil, fmt.Errorf("dcr response missing client_id")
	}
	return &out, nil
}
