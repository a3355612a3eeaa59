package config

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/mailsync.db"`

	// Security: 64 hex characters, decoded to the 32-byte AES-256 key
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`

	// OAuth2 provider endpoints (Google defaults)
	OAuthClientID     string `env:"OAUTH_CLIENT_ID,required"`
	OAuthClientSecret string `env:"OAUTH_CLIENT_SECRET,required"`
	OAuthAuthURL      string `env:"OAUTH_AUTH_URL" envDefault:"https://accounts.google.com/o/oauth2/v2/auth"`
	OAuthTokenURL     string `env:"OAUTH_TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	OAuthRevokeURL    string `env:"OAUTH_REVOKE_URL" envDefault:"https://oauth2.googleapis.com/revoke"`
	OAuthUserInfoURL  string `env:"OAUTH_USERINFO_URL" envDefault:"https://www.googleapis.com/oauth2/v2/userinfo"`

	// Sync
	PollInterval time.Duration `env:"SYNC_POLL_INTERVAL" envDefault:"1m"`
	SyncWorkers  int           `env:"SYNC_WORKERS" envDefault:"4"`

	// Mail protocol timeouts
	DialTimeout time.Duration `env:"MAIL_DIAL_TIMEOUT" envDefault:"30s"`
	AuthTimeout time.Duration `env:"MAIL_AUTH_TIMEOUT" envDefault:"10s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Validate encryption key: 64 hex chars / 32 bytes for AES-256
	key, err := hex.DecodeString(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be hex-encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}

	return cfg, nil
}
