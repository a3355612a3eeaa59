package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/proprioo/mailsync/internal/database"
	"github.com/proprioo/mailsync/internal/email"
	"github.com/proprioo/mailsync/pkg/models"
)

// Handler consumes the parsed messages of one successful fetch cycle. A
// handler error counts as a failed cycle: the watermark does not advance and
// the same range is retried next time.
type Handler func(ctx context.Context, conn *models.EmailConnection, emails []*models.ParsedEmail) error

// Runner drives sync cycles over all active connections. Connections are
// independent and processed concurrently up to the worker bound; within one
// connection a cycle is strictly sequential.
type Runner struct {
	store    *database.ConnectionStore
	resolver *email.Resolver
	fetcher  *email.Fetcher
	handler  Handler
	workers  int
	logger   *slog.Logger
}

// NewRunner creates a Runner. workers bounds cross-connection concurrency.
func NewRunner(store *database.ConnectionStore, resolver *email.Resolver, fetcher *email.Fetcher, handler Handler, workers int, logger *slog.Logger) *Runner {
	if workers <= 0 {
		workers = 1
	}
	return &Runner{
		store:    store,
		resolver: resolver,
		fetcher:  fetcher,
		handler:  handler,
		workers:  workers,
		logger:   logger.With("component", "sync_runner"),
	}
}

// Run polls on the given interval until the context is cancelled.
func (r *Runner) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("sync runner started", "interval", interval, "workers", r.workers)

	for {
		if err := r.RunOnce(ctx); err != nil {
			r.logger.Error("sync cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.logger.Info("sync runner stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce syncs every active connection once.
func (r *Runner) RunOnce(ctx context.Context) error {
	conns, err := r.store.GetActiveConnections(ctx)
	if err != nil {
		return fmt.Errorf("failed to get active connections: %w", err)
	}
	if len(conns) == 0 {
		return nil
	}

	guard := make(chan struct{}, r.workers)
	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		guard <- struct{}{}
		go func(c *models.EmailConnection) {
			defer wg.Done()
			defer func() { <-guard }()
			r.syncConnection(ctx, c)
		}(conn)
	}
	wg.Wait()

	return nil
}

// syncConnection runs one full cycle: resolve, persist any refreshed tokens,
// fetch, hand off, advance the watermark. Any failure records the error and
// leaves last_uid untouched.
func (r *Runner) syncConnection(ctx context.Context, conn *models.EmailConnection) {
	logger := r.logger.With("connection_id", conn.ID, "email", conn.EmailAddress)

	resolved, err := r.resolver.Resolve(ctx, conn)
	if err != nil {
		logger.Error("failed to resolve connection config", "error", err)
		r.recordError(ctx, conn.ID, err)
		return
	}

	// Persist a refreshed token before connecting, so a failure later in the
	// cycle does not force a redundant refresh next time.
	if resolved.RefreshedTokens != nil {
		if err := r.store.UpdateOAuthTokens(ctx, conn.ID, resolved.RefreshedTokens); err != nil {
			logger.Error("failed to persist refreshed tokens", "error", err)
		}
	}

	result, err := r.fetcher.Fetch(ctx, conn, resolved)
	if err != nil {
		logger.Error("fetch cycle failed", "error", err)
		r.recordError(ctx, conn.ID, err)
		return
	}

	if r.handler != nil && len(result.Emails) > 0 {
		if err := r.handler(ctx, conn, result.Emails); err != nil {
			logger.Error("message handler failed", "error", err)
			r.recordError(ctx, conn.ID, err)
			return
		}
	}

	if err := r.store.UpdateLastUID(ctx, conn.ID, result.MaxUID); err != nil {
		logger.Error("failed to advance watermark", "error", err)
	}
}

func (r *Runner) recordError(ctx context.Context, id int64, cause error) {
	if err := r.store.RecordError(ctx, id, cause.Error()); err != nil {
		r.logger.Error("failed to record sync error", "connection_id", id, "error", err)
	}
}
