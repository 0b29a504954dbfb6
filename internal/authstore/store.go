package authstore

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/smart-mcp-proxy/mcpproxy-go/internal/config"

	"go.uber.org/zap"
)

// callbackWait bounds how long Store waits for the user to complete
// the browser authorization step (spec.md §4.5).
const callbackWait = 5 * time.Minute

// Store obtains and persists bearer tokens for every group that
// declares oauth_client_id or sets oauth: true. It implements transport.TokenSource so
// internal/transport can ask it for a live access token without
// importing this package back.
type Store struct {
	dir    string
	logger *zap.Logger

	mu      sync.Mutex
	configs map[string]*config.UpstreamConfig
	flows   map[string]*sync.Mutex // per-group lock, one acquisition flow at a time
}

// New constructs a Store persisting token files under dir (spec.md
// §4.5 "one directory ... one file per group").
func New(dir string, logger *zap.Logger) *Store {
	return &Store{
		dir:     dir,
		logger:  logger.Named("authstore"),
		configs: make(map[string]*config.UpstreamConfig),
		flows:   make(map[string]*sync.Mutex),
	}
}

// Configure registers (or replaces) the OAuth-relevant config for a
// group. ProxyClient calls this before opening an HTTP/SSE transport
// for a group that uses OAuth.
func (s *Store) Configure(group string, cfg *config.UpstreamConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[group] = cfg
	if _, ok := s.flows[group]; !ok {
		s.flows[group] = &sync.Mutex{}
	}
}

// AccessToken implements transport.TokenSource. It returns a cached
// token when still valid, refreshes when near expiry and a refresh
// token is present, and otherwise runs the full PKCE acquisition flow.
func (s *Store) AccessToken(ctx context.Context, group string) (string, error) {
	s.mu.Lock()
	cfg, ok := s.configs[group]
	flowLock := s.flows[group]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("authstore: group %s was never configured", group)
	}

	flowLock.Lock()
	defer flowLock.Unlock()

	record, found := loadRecord(s.dir, group)
	now := time.Now()

	if found && !record.NearExpiry(now) {
		return record.AccessToken, nil
	}

	if found && record.RefreshToken != "" {
		refreshed, err := s.refresh(ctx, cfg, record)
		if err == nil {
			if saveErr := saveRecord(s.dir, group, refreshed); saveErr != nil {
				s.logger.Warn("failed to persist refreshed token", zap.String("group", group), zap.Error(saveErr))
			}
			return refreshed.AccessToken, nil
		}
		s.logger.Warn("token refresh failed, dropping cached token", zap.String("group", group), zap.Error(err))
		deleteRecord(s.dir, group)
	}

	record, err := s.acquire(ctx, group, cfg)
	if err != nil {
		return "", err
	}
	if err := saveRecord(s.dir, group, record); err != nil {
		s.logger.Warn("failed to persist acquired token", zap.String("group", group), zap.Error(err))
	}
	return record.AccessToken, nil
}

// acquire runs the full authorization_code + PKCE flow (spec.md
// §4.5's six steps).
func (s *Store) acquire(ctx context.Context, group string, cfg *config.UpstreamConfig) (*Record, error) {
	meta, err := discover(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("discovering authorization server: %w", err)
	}

	verifier, err := newPKCEVerifier()
	if err != nil {
		return nil, fmt.Errorf("generating pkce verifier: %w", err)
	}
	challenge := pkceChallengeS256(verifier)
	state := newState()

	redirectURI, results, stop, err := loopbackCallback()
	if err != nil {
		return nil, err
	}
	defer stop()

	clientID := cfg.OAuthClientID
	if clientID == "" {
		if meta.RegistrationEndpoint == "" {
			return nil, fmt.Errorf("group %s sets oauth but declares no oauth_client_id, and the authorization server offers no registration_endpoint for dynamic client registration", group)
		}
		registered, err := registerDynamicClient(ctx, meta.RegistrationEndpoint, redirectURI)
		if err != nil {
			return nil, fmt.Errorf("dynamic client registration: %w", err)
		}
		s.logger.Info("registered oauth client dynamically", zap.String("group", group), zap.String("client_id", registered.ClientID))
		clientID = registered.ClientID
		cfg.OAuthClientID = clientID
	}

	authURL := buildAuthorizationURL(meta.AuthorizationEndpoint, clientID, redirectURI, cfg.OAuthScopes, state, challenge)

	if err := openBrowser(authURL, s.logger); err != nil {
		s.logger.Warn("could not open browser automatically, open this URL to authorize",
			zap.String("group", group), zap.String("url", authURL), zap.Error(err))
	} else {
		s.logger.Info("opened browser for oauth authorization", zap.String("group", group))
	}

	waitCtx, cancel := context.WithTimeout(ctx, callbackWait)
	defer cancel()

	result, err := waitForCallback(waitCtx, results)
	if err != nil {
		return nil, fmt.Errorf("waiting for oauth callback: %w", err)
	}
	if result.err != nil {
		return nil, result.err
	}
	if result.state != state {
		return nil, fmt.Errorf("oauth state mismatch: possible CSRF")
	}
	if result.code == "" {
		return nil, fmt.Errorf("oauth callback carried no authorization code")
	}

	return exchangeCode(ctx, meta.TokenEndpoint, cfg.OAuthClientID, redirectURI, result.code, verifier)
}

// refresh exchanges a refresh_token for a new access token.
func (s *Store) refresh(ctx context.Context, cfg *config.UpstreamConfig, record *Record) (*Record, error) {
	meta, err := discover(ctx, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("discovering authorization server: %w", err)
	}
	return exchangeRefreshToken(ctx, meta.TokenEndpoint, cfg.OAuthClientID, record.RefreshToken)
}

func buildAuthorizationURL(endpoint, clientID, redirectURI string, scopes []string, state, challenge string) string {
	v := url.Values{}
	v.Set("response_type", "code")
	v.Set("client_id", clientID)
	v.Set("redirect_uri", redirectURI)
	v.Set("state", state)
	v.Set("code_challenge", challenge)
	v.Set("code_challenge_method", "S256")
	if len(scopes) > 0 {
		v.Set("scope", strings.Join(scopes, " "))
	}

	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return endpoint + sep + v.Encode()
}

func exchangeCode(ctx context.Context, tokenEndpoint, clientID, redirectURI, code, verifier string) (*Record, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("client_id", clientID)
	form.Set("redirect_uri", redirectURI)
	form.Set("code", code)
	form.Set("code_verifier", verifier)
	return postTokenRequest(ctx, tokenEndpoint, form)
}

func exchangeRefreshToken(ctx context.Context, tokenEndpoint, clientID, refreshToken string) (*Record, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("client_id", clientID)
	form.Set("refresh_token", refreshToken)
	return postTokenRequest(ctx, tokenEndpoint, form)
}

func postTokenRequest(ctx context.Context, tokenEndpoint string, form url.Values) (*Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token endpoint returned %d", resp.StatusCode)
	}

	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		Scope        string `json:"scope"`
		TokenType    string `json:"token_type"`
	}
	if err := decodeJSON(resp, &body); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}
	if body.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	expiresIn := 1 * time.Hour
	if body.ExpiresIn > 0 {
		expiresIn = time.Duration(body.ExpiresIn) * time.Second
	}

	return &Record{
		AccessToken:  body.AccessToken,
		RefreshToken: body.RefreshToken,
		ExpiresAt:    time.Now().Add(expiresIn),
		Scope:        body.Scope,
		TokenType:    body.TokenType,
	}, nil
}
