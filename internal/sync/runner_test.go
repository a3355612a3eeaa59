package sync

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proprioo/mailsync/internal/crypto"
	"github.com/proprioo/mailsync/internal/database"
	"github.com/proprioo/mailsync/internal/email"
	"github.com/proprioo/mailsync/internal/oauth"
	"github.com/proprioo/mailsync/pkg/models"
)

const testKey = "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func newTestRunner(t *testing.T, handler Handler) (*Runner, *database.ConnectionStore, *database.DB) {
	t.Helper()

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))

	codec, err := crypto.NewCodec(testKey)
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	mgr := oauth.NewManager(oauth.Config{ClientID: "id", ClientSecret: "secret"}, codec, logger)
	resolver := email.NewResolver(codec, mgr, 0, 0, logger)
	fetcher := email.NewFetcher(resolver, email.NewParser(logger), logger)
	store := database.NewConnectionStore(db, codec)

	return NewRunner(store, resolver, fetcher, handler, 2, logger), store, db
}

func TestRunOnceWithoutConnections(t *testing.T) {
	runner, _, _ := newTestRunner(t, nil)
	assert.NoError(t, runner.RunOnce(context.Background()))
}

func TestRunOnceRecordsCredentialErrorWithoutAdvancing(t *testing.T) {
	runner, store, db := newTestRunner(t, nil)
	ctx := context.Background()

	conn, err := store.CreateConnection(ctx, &database.CreateConnectionInput{
		TeamID:       1,
		EmailAddress: "team@agency.test",
		AuthMethod:   models.AuthMethodPassword,
		IMAPPassword: "secret",
		IMAPHost:     "imap.agency.test",
		IMAPPort:     993,
		IMAPTLS:      true,
	})
	require.NoError(t, err)

	// Simulate a record whose credential material went missing: resolution
	// must fail fast, before any connection attempt.
	_, err = db.ExecContext(ctx, `UPDATE team_email_connections SET imap_password_encrypted = '' WHERE id = ?`, conn.ID)
	require.NoError(t, err)

	require.NoError(t, runner.RunOnce(ctx))

	stored, err := store.GetConnectionByID(ctx, conn.ID)
	require.NoError(t, err)
	assert.Contains(t, stored.LastError, "missing credential")
	assert.Equal(t, uint32(0), stored.LastUID)
	assert.True(t, stored.LastSyncAt.Valid)
}
