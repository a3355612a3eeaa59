package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/proprioo/mailsync/internal/crypto"
	"github.com/proprioo/mailsync/pkg/models"
)

// DefaultStateMaxAge bounds how long an authorization state parameter stays
// valid, preventing replay of old redirects.
const DefaultStateMaxAge = 10 * time.Minute

// expiryMargin refreshes a token before it expires mid-session rather than
// failing mid-protocol-exchange.
const expiryMargin = 5 * time.Minute

// Config holds the OAuth2 provider endpoints and client credentials.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RevokeURL    string
	UserInfoURL  string
	Scopes       []string
}

// DefaultScopes cover full mailbox access plus basic identity.
var DefaultScopes = []string{
	"https://mail.google.com/",
	"https://www.googleapis.com/auth/userinfo.email",
}

// Manager drives the OAuth2 authorization-code flow against the mail
// provider: authorization URLs, code exchange, refresh, revocation, identity
// lookup, and the signed state parameter carried through the redirect.
type Manager struct {
	config     Config
	codec      *crypto.Codec
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// NewManager creates a Manager. The codec protects the state parameter.
func NewManager(cfg Config, codec *crypto.Codec, logger *slog.Logger) *Manager {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	return &Manager{
		config:     cfg,
		codec:      codec,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.With("component", "oauth"),
		now:        time.Now,
	}
}

// TokenExchangeError reports a failed authorization-code exchange, carrying
// the provider's error code and description.
type TokenExchangeError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("token exchange failed (status %d): %s: %s", e.StatusCode, e.Code, e.Description)
}

// TokenRefreshError reports a failed refresh-token grant.
type TokenRefreshError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *TokenRefreshError) Error() string {
	return fmt.Sprintf("token refresh failed (status %d): %s: %s", e.StatusCode, e.Code, e.Description)
}

// RefreshedToken is the result of a refresh-token grant. Providers do not
// rotate the refresh token on refresh, so callers must retain the original.
type RefreshedToken struct {
	AccessToken string
	ExpiresAt   time.Time
}

// UserInfo is the remote account identity, used to confirm the mailbox
// address matches the connection being configured.
type UserInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Picture       string `json:"picture,omitempty"`
}

// AuthorizationURL builds the authorization-code request URL. access_type and
// prompt force issuance of a refresh token even on re-consent. The state
// parameter carries a freshly minted, encrypted OAuthState.
func (m *Manager) AuthorizationURL(teamID, userID int64, redirectURI string) (string, error) {
	state, err := m.EncryptState(models.OAuthState{
		TeamID:    teamID,
		UserID:    userID,
		Timestamp: m.now().UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to encrypt state: %w", err)
	}

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", m.config.ClientID)
	q.Set("redirect_uri", redirectURI)
	q.Set("scope", strings.Join(m.config.Scopes, " "))
	q.Set("access_type", "offline")
	q.Set("prompt", "consent")
	q.Set("state", state)

	return m.config.AuthURL + "?" + q.Encode(), nil
}

// ExchangeCode exchanges an authorization code for tokens.
func (m *Manager) ExchangeCode(ctx context.Context, code, redirectURI string) (*models.OAuthTokens, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", redirectURI)
	form.Set("client_id", m.config.ClientID)
	form.Set("client_secret", m.config.ClientSecret)

	status, body, err := m.postForm(ctx, m.config.TokenURL, form)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		errCode, desc := parseProviderError(body)
		return nil, &TokenExchangeError{StatusCode: status, Code: errCode, Description: desc}
	}

	var resp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int64  `json:"expires_in"`
		Scope        string `json:"scope"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	return &models.OAuthTokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    m.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		Scope:        resp.Scope,
	}, nil
}

// RefreshAccessToken posts a refresh-token grant and returns the new access
// token with its expiry.
func (m *Manager) RefreshAccessToken(ctx context.Context, refreshToken string) (*RefreshedToken, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", m.config.ClientID)
	form.Set("client_secret", m.config.ClientSecret)

	status, body, err := m.postForm(ctx, m.config.TokenURL, form)
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		errCode, desc := parseProviderError(body)
		return nil, &TokenRefreshError{StatusCode: status, Code: errCode, Description: desc}
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode refresh response: %w", err)
	}

	return &RefreshedToken{
		AccessToken: resp.AccessToken,
		ExpiresAt:   m.now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

// RevokeAccess revokes a token. Best effort: the provider may already
// consider the token revoked, so a non-200 response is a warning, not a
// failure.
func (m *Manager) RevokeAccess(ctx context.Context, token string) error {
	form := url.Values{}
	form.Set("token", token)

	status, _, err := m.postForm(ctx, m.config.RevokeURL, form)
	if err != nil {
		return fmt.Errorf("failed to call revoke endpoint: %w", err)
	}
	if status != http.StatusOK {
		m.logger.Warn("token revocation returned non-200", "status", status)
	}
	return nil
}

// GetUserInfo fetches the remote account's identity.
func (m *Manager) GetUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.config.UserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo endpoint returned status %d", resp.StatusCode)
	}

	var info UserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	return &info, nil
}

// EncryptState serializes and encrypts an OAuthState into an opaque string.
func (m *Manager) EncryptState(state models.OAuthState) (string, error) {
	payload, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return m.codec.Encrypt(string(payload))
}

// DecryptAndValidateState decrypts a state parameter and rejects values older
// than maxAge (DefaultStateMaxAge when zero). Returns nil on any failure;
// callers must treat nil as an authorization failure and restart the flow.
func (m *Manager) DecryptAndValidateState(state string, maxAge time.Duration) *models.OAuthState {
	if maxAge <= 0 {
		maxAge = DefaultStateMaxAge
	}

	payload, err := m.codec.Decrypt(state)
	if err != nil {
		m.logger.Warn("failed to decrypt oauth state", "error", err)
		return nil
	}

	var st models.OAuthState
	if err := json.Unmarshal([]byte(payload), &st); err != nil {
		m.logger.Warn("failed to unmarshal oauth state", "error", err)
		return nil
	}

	age := m.now().Sub(time.UnixMilli(st.Timestamp))
	if age < 0 || age > maxAge {
		m.logger.Warn("oauth state outside validity window", "age", age)
		return nil
	}

	return &st
}

// XOAuth2Token builds the base64-encoded SASL XOAUTH2 initial response for
// the given mailbox address and access token.
func XOAuth2Token(email, accessToken string) string {
	raw := "user=" + email + "\x01auth=Bearer " + accessToken + "\x01\x01"
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// IsTokenExpired reports whether a token expiring at expiresAt should be
// refreshed, applying the safety margin.
func (m *Manager) IsTokenExpired(expiresAt time.Time) bool {
	return !expiresAt.After(m.now().Add(expiryMargin))
}

func (m *Manager) postForm(ctx context.Context, endpoint string, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

// parseProviderError extracts the standard OAuth2 error fields from an error
// response body. Falls back to the raw body when it is not JSON.
func parseProviderError(body []byte) (code, description string) {
	var e struct {
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
		return "unknown_error", strings.TrimSpace(string(body))
	}
	return e.Error, e.Description
}
