package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/proprioo/mailsync/internal/crypto"
	"github.com/proprioo/mailsync/internal/providers"
	"github.com/proprioo/mailsync/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when trying to insert a duplicate record
var ErrAlreadyExists = errors.New("record already exists")

// ErrInvalidCredentials is returned when the supplied credential material
// does not match the declared auth method.
var ErrInvalidCredentials = errors.New("credential material does not match auth method")

// ConnectionStore persists team email connections. Plaintext credentials
// supplied on create are encrypted before they reach storage; they are never
// written to logs.
type ConnectionStore struct {
	db    *DB
	codec *crypto.Codec
}

// NewConnectionStore creates a ConnectionStore.
func NewConnectionStore(db *DB, codec *crypto.Codec) *ConnectionStore {
	return &ConnectionStore{db: db, codec: codec}
}

// CreateConnectionInput carries the caller-supplied fields for a new
// connection. Exactly one credential family must be populated, matching
// AuthMethod.
type CreateConnectionInput struct {
	TeamID       int64
	Provider     string
	EmailAddress string
	AuthMethod   models.AuthMethod

	IMAPHost     string
	IMAPPort     int
	IMAPTLS      bool
	IMAPUsername string
	SMTPHost     string
	SMTPPort     int
	SMTPTLS      bool
	SMTPUsername string

	IMAPPassword string // plaintext, encrypted before persisting
	SMTPPassword string // plaintext, encrypted before persisting
	OAuthTokens  *models.OAuthTokens

	SyncFromDate *time.Time
}

// CreateConnection validates, encrypts, and persists a new connection.
// Missing endpoints are filled from provider presets when possible.
func (s *ConnectionStore) CreateConnection(ctx context.Context, in *CreateConnectionInput) (*models.EmailConnection, error) {
	if err := validateCredentials(in); err != nil {
		return nil, err
	}
	applyPresets(in)

	conn := &models.EmailConnection{
		TeamID:       in.TeamID,
		Provider:     in.Provider,
		EmailAddress: in.EmailAddress,
		AuthMethod:   in.AuthMethod,
		IMAPHost:     in.IMAPHost,
		IMAPPort:     in.IMAPPort,
		IMAPTLS:      in.IMAPTLS,
		IMAPUsername: in.IMAPUsername,
		SMTPHost:     in.SMTPHost,
		SMTPPort:     in.SMTPPort,
		SMTPTLS:      in.SMTPTLS,
		SMTPUsername: in.SMTPUsername,
		IsActive:     true,
	}
	if in.SyncFromDate != nil {
		conn.SyncFromDate = sql.NullTime{Time: *in.SyncFromDate, Valid: true}
	}

	var err error
	switch in.AuthMethod {
	case models.AuthMethodPassword:
		if conn.IMAPPasswordEncrypted, err = s.codec.Encrypt(in.IMAPPassword); err != nil {
			return nil, fmt.Errorf("failed to encrypt imap password: %w", err)
		}
		smtpPassword := in.SMTPPassword
		if smtpPassword == "" {
			smtpPassword = in.IMAPPassword
		}
		if conn.SMTPPasswordEncrypted, err = s.codec.Encrypt(smtpPassword); err != nil {
			return nil, fmt.Errorf("failed to encrypt smtp password: %w", err)
		}
	case models.AuthMethodOAuth:
		if conn.OAuthAccessEncrypted, err = s.codec.Encrypt(in.OAuthTokens.AccessToken); err != nil {
			return nil, fmt.Errorf("failed to encrypt access token: %w", err)
		}
		if conn.OAuthRefreshEncrypted, err = s.codec.Encrypt(in.OAuthTokens.RefreshToken); err != nil {
			return nil, fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		conn.OAuthTokenExpiresAt = sql.NullTime{Time: in.OAuthTokens.ExpiresAt, Valid: true}
	}

	query := `
		INSERT INTO team_email_connections (
			team_id, provider, email_address, auth_method,
			imap_host, imap_port, imap_tls, imap_username,
			smtp_host, smtp_port, smtp_tls, smtp_username,
			imap_password_encrypted, smtp_password_encrypted,
			oauth_access_token_encrypted, oauth_refresh_token_encrypted, oauth_token_expires_at,
			sync_from_date, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		conn.TeamID, conn.Provider, conn.EmailAddress, conn.AuthMethod,
		conn.IMAPHost, conn.IMAPPort, conn.IMAPTLS, conn.IMAPUsername,
		conn.SMTPHost, conn.SMTPPort, conn.SMTPTLS, conn.SMTPUsername,
		conn.IMAPPasswordEncrypted, conn.SMTPPasswordEncrypted,
		conn.OAuthAccessEncrypted, conn.OAuthRefreshEncrypted, conn.OAuthTokenExpiresAt,
		conn.SyncFromDate, conn.IsActive, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	conn.ID = id
	conn.CreatedAt = now
	conn.UpdatedAt = now
	return conn, nil
}

// GetConnectionByID returns a connection by ID
func (s *ConnectionStore) GetConnectionByID(ctx context.Context, id int64) (*models.EmailConnection, error) {
	var conn models.EmailConnection
	query := `SELECT * FROM team_email_connections WHERE id = ?`
	err := s.db.GetContext(ctx, &conn, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection: %w", err)
	}
	return &conn, nil
}

// GetConnectionsByTeam returns all connections for a team
func (s *ConnectionStore) GetConnectionsByTeam(ctx context.Context, teamID int64) ([]*models.EmailConnection, error) {
	var conns []*models.EmailConnection
	query := `SELECT * FROM team_email_connections WHERE team_id = ? ORDER BY created_at DESC`
	err := s.db.SelectContext(ctx, &conns, query, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to get connections: %w", err)
	}
	return conns, nil
}

// GetActiveConnections returns all active connections; this is the entry
// point the external scheduler iterates.
func (s *ConnectionStore) GetActiveConnections(ctx context.Context) ([]*models.EmailConnection, error) {
	var conns []*models.EmailConnection
	query := `SELECT * FROM team_email_connections WHERE is_active = true`
	err := s.db.SelectContext(ctx, &conns, query)
	if err != nil {
		return nil, fmt.Errorf("failed to get active connections: %w", err)
	}
	return conns, nil
}

// UpdateLastUID advances the sync watermark after a successful cycle and
// clears any prior failure state.
func (s *ConnectionStore) UpdateLastUID(ctx context.Context, id int64, uid uint32) error {
	query := `UPDATE team_email_connections SET last_uid = ?, last_sync_at = ?, last_error = '', updated_at = ? WHERE id = ?`
	now := time.Now()
	_, err := s.db.ExecContext(ctx, query, uid, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to update last uid: %w", err)
	}
	return nil
}

// RecordError stores the failure from a sync cycle. The watermark stays
// untouched so the next cycle retries the same range.
func (s *ConnectionStore) RecordError(ctx context.Context, id int64, message string) error {
	query := `UPDATE team_email_connections SET last_error = ?, last_sync_at = ?, updated_at = ? WHERE id = ?`
	now := time.Now()
	_, err := s.db.ExecContext(ctx, query, message, now, now, id)
	if err != nil {
		return fmt.Errorf("failed to record error: %w", err)
	}
	return nil
}

// UpdateOAuthTokens persists a refreshed token set. The refresh token is only
// rewritten when the provider returned a new one.
func (s *ConnectionStore) UpdateOAuthTokens(ctx context.Context, id int64, tokens *models.OAuthTokens) error {
	accessEncrypted, err := s.codec.Encrypt(tokens.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to encrypt access token: %w", err)
	}

	now := time.Now()
	if tokens.RefreshToken != "" {
		refreshEncrypted, err := s.codec.Encrypt(tokens.RefreshToken)
		if err != nil {
			return fmt.Errorf("failed to encrypt refresh token: %w", err)
		}
		query := `UPDATE team_email_connections SET oauth_access_token_encrypted = ?, oauth_refresh_token_encrypted = ?, oauth_token_expires_at = ?, updated_at = ? WHERE id = ?`
		if _, err := s.db.ExecContext(ctx, query, accessEncrypted, refreshEncrypted, tokens.ExpiresAt, now, id); err != nil {
			return fmt.Errorf("failed to update oauth tokens: %w", err)
		}
		return nil
	}

	query := `UPDATE team_email_connections SET oauth_access_token_encrypted = ?, oauth_token_expires_at = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, query, accessEncrypted, tokens.ExpiresAt, now, id); err != nil {
		return fmt.Errorf("failed to update oauth tokens: %w", err)
	}
	return nil
}

// SetConnectionActive sets the active status of a connection
func (s *ConnectionStore) SetConnectionActive(ctx context.Context, id int64, active bool) error {
	query := `UPDATE team_email_connections SET is_active = ?, updated_at = ? WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, active, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to set connection active: %w", err)
	}
	return nil
}

// DeleteConnection deletes a connection
func (s *ConnectionStore) DeleteConnection(ctx context.Context, id int64) error {
	query := `DELETE FROM team_email_connections WHERE id = ?`
	_, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	return nil
}

func validateCredentials(in *CreateConnectionInput) error {
	switch in.AuthMethod {
	case models.AuthMethodPassword:
		if in.IMAPPassword == "" {
			return fmt.Errorf("%w: password auth requires an imap password", ErrInvalidCredentials)
		}
		if in.OAuthTokens != nil {
			return fmt.Errorf("%w: password auth must not carry oauth tokens", ErrInvalidCredentials)
		}
	case models.AuthMethodOAuth:
		if in.OAuthTokens == nil || in.OAuthTokens.AccessToken == "" || in.OAuthTokens.RefreshToken == "" {
			return fmt.Errorf("%w: oauth auth requires access and refresh tokens", ErrInvalidCredentials)
		}
		if in.IMAPPassword != "" || in.SMTPPassword != "" {
			return fmt.Errorf("%w: oauth auth must not carry passwords", ErrInvalidCredentials)
		}
	default:
		return fmt.Errorf("%w: unknown auth method %q", ErrInvalidCredentials, in.AuthMethod)
	}
	return nil
}

// applyPresets fills missing endpoints from provider defaults.
func applyPresets(in *CreateConnectionInput) {
	if in.IMAPHost != "" && in.SMTPHost != "" {
		return
	}
	preset, ok := providers.ForProvider(in.Provider)
	if !ok {
		preset, ok = providers.ForAddress(in.EmailAddress)
	}
	if !ok {
		return
	}
	if in.IMAPHost == "" {
		in.IMAPHost = preset.IMAPHost
		in.IMAPPort = preset.IMAPPort
		in.IMAPTLS = preset.IMAPTLS
	}
	if in.SMTPHost == "" {
		in.SMTPHost = preset.SMTPHost
		in.SMTPPort = preset.SMTPPort
		in.SMTPTLS = preset.SMTPTLS
	}
}
