package database

const schema = `
CREATE TABLE IF NOT EXISTS team_email_connections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    team_id INTEGER NOT NULL,
    provider TEXT NOT NULL DEFAULT '',
    email_address TEXT NOT NULL,
    auth_method TEXT NOT NULL,
    imap_host TEXT NOT NULL DEFAULT '',
    imap_port INTEGER NOT NULL DEFAULT 993,
    imap_tls BOOLEAN NOT NULL DEFAULT true,
    imap_username TEXT NOT NULL DEFAULT '',
    smtp_host TEXT NOT NULL DEFAULT '',
    smtp_port INTEGER NOT NULL DEFAULT 587,
    smtp_tls BOOLEAN NOT NULL DEFAULT false,
    smtp_username TEXT NOT NULL DEFAULT '',
    imap_password_encrypted TEXT NOT NULL DEFAULT '',
    smtp_password_encrypted TEXT NOT NULL DEFAULT '',
    oauth_access_token_encrypted TEXT NOT NULL DEFAULT '',
    oauth_refresh_token_encrypted TEXT NOT NULL DEFAULT '',
    oauth_token_expires_at DATETIME,
    last_uid INTEGER NOT NULL DEFAULT 0,
    last_sync_at DATETIME,
    last_error TEXT NOT NULL DEFAULT '',
    sync_from_date DATETIME,
    is_active BOOLEAN NOT NULL DEFAULT true,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    UNIQUE(team_id, email_address)
);

CREATE INDEX IF NOT EXISTS idx_connections_team ON team_email_connections(team_id);
CREATE INDEX IF NOT EXISTS idx_connections_active ON team_email_connections(is_active);
`
