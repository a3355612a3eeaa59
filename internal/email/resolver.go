package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/proprioo/mailsync/internal/crypto"
	"github.com/proprioo/mailsync/internal/oauth"
	"github.com/proprioo/mailsync/pkg/models"
)

// ErrMissingCredential is returned when a connection lacks the credential
// material its auth method requires. This is a configuration error; no
// network call is made.
var ErrMissingCredential = errors.New("missing credential for auth method")

const (
	defaultDialTimeout = 30 * time.Second
	defaultAuthTimeout = 10 * time.Second
)

// ServerConfig is a protocol-ready endpoint configuration with decrypted
// credentials. It lives in memory only for the duration of one operation.
type ServerConfig struct {
	Host        string
	Port        int
	TLS         bool
	Username    string
	Method      models.AuthMethod
	Password    string // password auth
	AccessToken string // oauth auth, feeds the XOAUTH2 initial response
	DialTimeout time.Duration
	AuthTimeout time.Duration
}

// Addr returns the host:port dial address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Resolved is the output of config resolution. When an expired OAuth token
// was refreshed during resolution, RefreshedTokens carries the new token set
// so the caller can persist it before acting on the configs; the resolver
// never persists anything itself.
type Resolved struct {
	IMAP            ServerConfig
	SMTP            ServerConfig
	RefreshedTokens *models.OAuthTokens
}

// Resolver turns a persisted connection record into ready-to-use protocol
// configurations, transparently decrypting and refreshing credentials.
type Resolver struct {
	codec       *crypto.Codec
	oauth       *oauth.Manager
	dialTimeout time.Duration
	authTimeout time.Duration
	logger      *slog.Logger
}

// NewResolver creates a Resolver. Zero timeouts fall back to the fixed
// defaults (30s dial, 10s auth).
func NewResolver(codec *crypto.Codec, oauthMgr *oauth.Manager, dialTimeout, authTimeout time.Duration, logger *slog.Logger) *Resolver {
	if dialTimeout <= 0 {
		dialTimeout = defaultDialTimeout
	}
	if authTimeout <= 0 {
		authTimeout = defaultAuthTimeout
	}
	return &Resolver{
		codec:       codec,
		oauth:       oauthMgr,
		dialTimeout: dialTimeout,
		authTimeout: authTimeout,
		logger:      logger.With("component", "resolver"),
	}
}

// Resolve produces IMAP and SMTP configurations for a connection. For OAuth
// connections an expired access token is refreshed first, and the refreshed
// token value is both used in the configs and returned for persistence.
func (r *Resolver) Resolve(ctx context.Context, conn *models.EmailConnection) (*Resolved, error) {
	res := &Resolved{
		IMAP: ServerConfig{
			Host:        conn.IMAPHost,
			Port:        conn.IMAPPort,
			TLS:         conn.IMAPTLS,
			Username:    usernameOrAddress(conn.IMAPUsername, conn.EmailAddress),
			Method:      conn.AuthMethod,
			DialTimeout: r.dialTimeout,
			AuthTimeout: r.authTimeout,
		},
		SMTP: ServerConfig{
			Host:        conn.SMTPHost,
			Port:        conn.SMTPPort,
			TLS:         conn.SMTPTLS,
			Username:    usernameOrAddress(conn.SMTPUsername, conn.EmailAddress),
			Method:      conn.AuthMethod,
			DialTimeout: r.dialTimeout,
			AuthTimeout: r.authTimeout,
		},
	}

	switch conn.AuthMethod {
	case models.AuthMethodPassword:
		if conn.IMAPPasswordEncrypted == "" {
			return nil, fmt.Errorf("%w: imap password not set", ErrMissingCredential)
		}
		imapPassword, err := r.codec.Decrypt(conn.IMAPPasswordEncrypted)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt imap password: %w", err)
		}
		res.IMAP.Password = imapPassword

		if conn.SMTPPasswordEncrypted != "" {
			smtpPassword, err := r.codec.Decrypt(conn.SMTPPasswordEncrypted)
			if err != nil {
				return nil, fmt.Errorf("failed to decrypt smtp password: %w", err)
			}
			res.SMTP.Password = smtpPassword
		}

	case models.AuthMethodOAuth:
		if conn.OAuthAccessEncrypted == "" || conn.OAuthRefreshEncrypted == "" {
			return nil, fmt.Errorf("%w: oauth tokens not set", ErrMissingCredential)
		}
		accessToken, err := r.codec.Decrypt(conn.OAuthAccessEncrypted)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt access token: %w", err)
		}
		refreshToken, err := r.codec.Decrypt(conn.OAuthRefreshEncrypted)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
		}

		if !conn.OAuthTokenExpiresAt.Valid || r.oauth.IsTokenExpired(conn.OAuthTokenExpiresAt.Time) {
			refreshed, err := r.oauth.RefreshAccessToken(ctx, refreshToken)
			if err != nil {
				return nil, fmt.Errorf("failed to refresh access token: %w", err)
			}
			r.logger.Info("refreshed oauth access token",
				"connection_id", conn.ID,
				"expires_at", refreshed.ExpiresAt,
			)
			accessToken = refreshed.AccessToken
			res.RefreshedTokens = &models.OAuthTokens{
				AccessToken:  refreshed.AccessToken,
				RefreshToken: refreshToken,
				ExpiresAt:    refreshed.ExpiresAt,
			}
		}

		res.IMAP.AccessToken = accessToken
		res.SMTP.AccessToken = accessToken

	default:
		return nil, fmt.Errorf("%w: unknown auth method %q", ErrMissingCredential, conn.AuthMethod)
	}

	return res, nil
}

func usernameOrAddress(username, address string) string {
	if username != "" {
		return username
	}
	return address
}
