package models

import (
	"database/sql"
	"time"
)

// AuthMethod is how a connection authenticates against its mail servers.
type AuthMethod string

const (
	AuthMethodPassword AuthMethod = "password"
	AuthMethodOAuth    AuthMethod = "oauth"
)

// EmailConnection represents one mailbox bound to a team.
// Credential fields hold encrypted envelopes, never plaintext.
type EmailConnection struct {
	ID           int64      `db:"id"`
	TeamID       int64      `db:"team_id"`
	Provider     string     `db:"provider"`
	EmailAddress string     `db:"email_address"`
	AuthMethod   AuthMethod `db:"auth_method"`

	IMAPHost     string `db:"imap_host"`
	IMAPPort     int    `db:"imap_port"`
	IMAPTLS      bool   `db:"imap_tls"`
	IMAPUsername string `db:"imap_username"`

	SMTPHost     string `db:"smtp_host"`
	SMTPPort     int    `db:"smtp_port"`
	SMTPTLS      bool   `db:"smtp_tls"`
	SMTPUsername string `db:"smtp_username"`

	IMAPPasswordEncrypted string       `db:"imap_password_encrypted"`
	SMTPPasswordEncrypted string       `db:"smtp_password_encrypted"`
	OAuthAccessEncrypted  string       `db:"oauth_access_token_encrypted"`
	OAuthRefreshEncrypted string       `db:"oauth_refresh_token_encrypted"`
	OAuthTokenExpiresAt   sql.NullTime `db:"oauth_token_expires_at"`

	LastUID      uint32       `db:"last_uid"`
	LastSyncAt   sql.NullTime `db:"last_sync_at"`
	LastError    string       `db:"last_error"`
	SyncFromDate sql.NullTime `db:"sync_from_date"`

	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// OAuthTokens is a decrypted token set. Ephemeral; never persisted as-is.
type OAuthTokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Scope        string
}

// OAuthState is the payload carried through the authorization redirect.
// It is encrypted into an opaque state parameter and only accepted back
// within a bounded age window.
type OAuthState struct {
	TeamID    int64 `json:"team_id"`
	UserID    int64 `json:"user_id"`
	Timestamp int64 `json:"ts"` // unix milliseconds at mint time
}
