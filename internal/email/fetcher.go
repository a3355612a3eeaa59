package email

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/proprioo/mailsync/pkg/models"
)

// FetchResult is the outcome of one fetch cycle. MaxUID reflects the set of
// UIDs that were fetched, not the set that parsed successfully, so a single
// malformed message cannot stall the watermark.
type FetchResult struct {
	Emails          []*models.ParsedEmail
	MaxUID          uint32
	RefreshedTokens *models.OAuthTokens
}

// Fetcher pulls new messages from a connection's inbox incrementally. Each
// cycle opens and fully closes its own IMAP session; nothing is pooled.
type Fetcher struct {
	resolver *Resolver
	parser   *Parser
	logger   *slog.Logger
}

// NewFetcher creates a Fetcher.
func NewFetcher(resolver *Resolver, parser *Parser, logger *slog.Logger) *Fetcher {
	return &Fetcher{
		resolver: resolver,
		parser:   parser,
		logger:   logger.With("component", "fetcher"),
	}
}

// FetchNewEmails resolves the connection's protocol configuration and fetches
// new messages. Credential errors propagate without any connection attempt.
func (f *Fetcher) FetchNewEmails(ctx context.Context, conn *models.EmailConnection) (*FetchResult, error) {
	resolved, err := f.resolver.Resolve(ctx, conn)
	if err != nil {
		return nil, err
	}
	return f.Fetch(ctx, conn, resolved)
}

// Fetch runs one fetch cycle against an already-resolved configuration.
// Search- or fetch-level protocol errors abort the whole call; per-message
// parse failures only drop the offending message.
func (f *Fetcher) Fetch(ctx context.Context, conn *models.EmailConnection, resolved *Resolved) (*FetchResult, error) {
	c, err := f.connect(resolved.IMAP)
	if err != nil {
		return nil, err
	}
	defer c.Logout()

	if _, err := c.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("failed to select INBOX: %w", err)
	}

	uids, err := c.UidSearch(buildSearchCriteria(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	if len(uids) == 0 {
		return &FetchResult{MaxUID: conn.LastUID, RefreshedTokens: resolved.RefreshedTokens}, nil
	}

	// The watermark advances over everything matched in this cycle, computed
	// before parsing.
	maxUID := highestUID(conn.LastUID, uids)

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 100)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqSet, items, messages)
	}()

	emails := f.collectMessages(messages, section, conn)

	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch: %w", err)
	}

	f.logger.Info("fetch cycle complete",
		"connection_id", conn.ID,
		"matched", len(uids),
		"parsed", len(emails),
		"max_uid", maxUID,
	)

	return &FetchResult{
		Emails:          emails,
		MaxUID:          maxUID,
		RefreshedTokens: resolved.RefreshedTokens,
	}, nil
}

// collectMessages drains one fetch's message stream. A message that fails to
// parse is logged and dropped; it does not affect its siblings.
func (f *Fetcher) collectMessages(messages <-chan *imap.Message, section *imap.BodySectionName, conn *models.EmailConnection) []*models.ParsedEmail {
	var emails []*models.ParsedEmail
	for msg := range messages {
		body := msg.GetBody(section)
		if body == nil {
			f.logger.Warn("message has no body section", "uid", msg.Uid, "connection_id", conn.ID)
			continue
		}
		parsed, err := f.parser.Parse(body)
		if err != nil {
			f.logger.Warn("failed to parse message, dropping it",
				"uid", msg.Uid,
				"connection_id", conn.ID,
				"error", err,
			)
			continue
		}
		parsed.UID = msg.Uid
		emails = append(emails, parsed)
	}
	return emails
}

// connect dials, optionally upgrades to TLS, and authenticates.
func (f *Fetcher) connect(cfg ServerConfig) (*client.Client, error) {
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}

	var c *client.Client
	var err error
	if cfg.TLS {
		c, err = client.DialWithDialerTLS(dialer, cfg.Addr(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
	} else {
		c, err = client.DialWithDialer(dialer, cfg.Addr())
		if err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
		if err := c.StartTLS(nil); err != nil {
			c.Logout()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	c.Timeout = cfg.AuthTimeout
	var authErr error
	if cfg.Method == models.AuthMethodOAuth {
		authErr = c.Authenticate(newXOAuth2Client(cfg.Username, cfg.AccessToken))
	} else {
		authErr = c.Login(cfg.Username, cfg.Password)
	}
	if authErr != nil {
		c.Logout()
		return nil, fmt.Errorf("failed to authenticate: %w", authErr)
	}
	c.Timeout = 0

	return c, nil
}

// buildSearchCriteria selects the search strategy in strict priority order:
// UID range past the watermark, then the initial-sync start date, then
// unread messages as a conservative fallback.
func buildSearchCriteria(conn *models.EmailConnection) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	switch {
	case conn.LastUID > 0:
		set := new(imap.SeqSet)
		set.AddRange(conn.LastUID+1, 0) // open-ended upper bound
		criteria.Uid = set
	case conn.SyncFromDate.Valid:
		criteria.Since = conn.SyncFromDate.Time
	default:
		criteria.WithoutFlags = []string{imap.SeenFlag}
	}
	return criteria
}

func highestUID(current uint32, uids []uint32) uint32 {
	highest := current
	for _, uid := range uids {
		if uid > highest {
			highest = uid
		}
	}
	return highest
}
