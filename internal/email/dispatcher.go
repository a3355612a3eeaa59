package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"

	"github.com/proprioo/mailsync/pkg/models"
)

// SendResult is the outcome of a dispatch: the generated Message-ID and, for
// OAuth connections, any token refreshed during resolution (to persist).
type SendResult struct {
	MessageID       string
	RefreshedTokens *models.OAuthTokens
}

// Dispatcher sends outbound mail through a connection's SMTP server. Supplied
// In-Reply-To and References headers are passed through verbatim; that is the
// only mechanism keeping outbound replies attached to their conversation.
type Dispatcher struct {
	resolver *Resolver
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(resolver *Resolver, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		resolver: resolver,
		logger:   logger.With("component", "dispatcher"),
	}
}

// SendEmail dispatches a message from the connection's mailbox address.
func (d *Dispatcher) SendEmail(ctx context.Context, conn *models.EmailConnection, out *models.OutgoingEmail) (*SendResult, error) {
	if len(out.To) == 0 {
		return nil, fmt.Errorf("no recipients")
	}

	resolved, err := d.resolver.Resolve(ctx, conn)
	if err != nil {
		return nil, err
	}
	cfg := resolved.SMTP
	if cfg.Method == models.AuthMethodPassword && cfg.Password == "" {
		return nil, fmt.Errorf("%w: smtp password not set", ErrMissingCredential)
	}

	messageID, raw, err := buildMessage(conn.EmailAddress, out)
	if err != nil {
		return nil, err
	}

	c, err := d.connect(cfg)
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if err := c.Mail(conn.EmailAddress, nil); err != nil {
		return nil, fmt.Errorf("failed to set sender: %w", err)
	}
	for _, rcpt := range out.To {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return nil, fmt.Errorf("failed to add recipient %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return nil, fmt.Errorf("failed to open data stream: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish message: %w", err)
	}

	if err := c.Quit(); err != nil {
		d.logger.Warn("smtp quit failed", "error", err)
	}

	d.logger.Info("sent email",
		"connection_id", conn.ID,
		"message_id", messageID,
		"recipients", len(out.To),
	)

	return &SendResult{MessageID: messageID, RefreshedTokens: resolved.RefreshedTokens}, nil
}

func (d *Dispatcher) connect(cfg ServerConfig) (*smtp.Client, error) {
	dialer := &net.Dialer{Timeout: cfg.DialTimeout}

	var c *smtp.Client
	if cfg.TLS {
		conn, err := tls.DialWithDialer(dialer, "tcp", cfg.Addr(), nil)
		if err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
		c = smtp.NewClient(conn)
	} else {
		conn, err := dialer.Dial("tcp", cfg.Addr())
		if err != nil {
			return nil, fmt.Errorf("failed to connect: %w", err)
		}
		c = smtp.NewClient(conn)
	}

	// Greeting, STARTTLS, and auth all run under the auth-phase bound, the
	// same way the IMAP side bounds its handshake.
	sendTimeout := c.CommandTimeout
	c.CommandTimeout = cfg.AuthTimeout

	if !cfg.TLS {
		if err := c.StartTLS(&tls.Config{ServerName: cfg.Host}); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to start TLS: %w", err)
		}
	}

	var auth sasl.Client
	if cfg.Method == models.AuthMethodOAuth {
		auth = newXOAuth2Client(cfg.Username, cfg.AccessToken)
	} else {
		auth = sasl.NewPlainClient("", cfg.Username, cfg.Password)
	}
	if err := c.Auth(auth); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to authenticate: %w", err)
	}
	c.CommandTimeout = sendTimeout

	return c, nil
}

// buildMessage assembles the outbound MIME message and returns the generated
// Message-ID together with the raw bytes.
func buildMessage(from string, out *models.OutgoingEmail) (string, []byte, error) {
	var h mail.Header
	h.SetDate(time.Now())
	h.SetAddressList("From", []*mail.Address{{Address: from}})

	toList := make([]*mail.Address, 0, len(out.To))
	for _, addr := range out.To {
		toList = append(toList, &mail.Address{Address: addr})
	}
	h.SetAddressList("To", toList)
	h.SetSubject(out.Subject)

	if err := h.GenerateMessageID(); err != nil {
		return "", nil, fmt.Errorf("failed to generate message id: %w", err)
	}
	id, err := h.MessageID()
	if err != nil {
		return "", nil, fmt.Errorf("failed to read message id: %w", err)
	}
	messageID := "<" + id + ">"

	// Threading headers go out exactly as supplied.
	if out.InReplyTo != "" {
		h.Set("In-Reply-To", out.InReplyTo)
	}
	if out.References != "" {
		h.Set("References", out.References)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create mail writer: %w", err)
	}

	iw, err := mw.CreateInline()
	if err != nil {
		return "", nil, fmt.Errorf("failed to create inline writer: %w", err)
	}

	var textHeader mail.InlineHeader
	textHeader.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	pw, err := iw.CreatePart(textHeader)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create text part: %w", err)
	}
	if _, err := io.WriteString(pw, out.Text); err != nil {
		pw.Close()
		return "", nil, fmt.Errorf("failed to write text part: %w", err)
	}
	pw.Close()

	if out.HTML != "" {
		var htmlHeader mail.InlineHeader
		htmlHeader.SetContentType("text/html", map[string]string{"charset": "utf-8"})
		pw, err := iw.CreatePart(htmlHeader)
		if err != nil {
			return "", nil, fmt.Errorf("failed to create html part: %w", err)
		}
		if _, err := io.WriteString(pw, out.HTML); err != nil {
			pw.Close()
			return "", nil, fmt.Errorf("failed to write html part: %w", err)
		}
		pw.Close()
	}

	iw.Close()
	mw.Close()

	return messageID, buf.Bytes(), nil
}
