package email

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/emersion/go-message/mail"

	"github.com/proprioo/mailsync/pkg/models"
)

// Parser turns raw MIME bytes into a structured ParsedEmail, including
// attachments and the threading headers conversation grouping depends on.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a Parser.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: logger.With("component", "parser")}
}

// Parse reads one raw message. When the message has an HTML body but no
// plain-text part, the text field is filled with a text rendering of the
// HTML.
func (p *Parser) Parse(r io.Reader) (*models.ParsedEmail, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail reader: %w", err)
	}

	parsed := &models.ParsedEmail{}
	h := mr.Header

	if id, err := h.MessageID(); err == nil && id != "" {
		parsed.MessageID = "<" + id + ">"
	}
	if ids, err := h.MsgIDList("In-Reply-To"); err == nil && len(ids) > 0 {
		parsed.InReplyTo = "<" + ids[0] + ">"
	}
	parsed.References = joinReferences(h)

	if from, err := h.AddressList("From"); err == nil && len(from) > 0 {
		parsed.From = from[0].String()
	}
	if to, err := h.AddressList("To"); err == nil {
		for _, addr := range to {
			parsed.To = append(parsed.To, addr.String())
		}
	}
	if subject, err := h.Subject(); err == nil {
		parsed.Subject = subject
	}
	if date, err := h.Date(); err == nil {
		parsed.Date = date
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			p.logger.Warn("failed to read message part", "error", err)
			break
		}

		switch header := part.Header.(type) {
		case *mail.InlineHeader:
			ct, _, _ := header.ContentType()
			body, err := io.ReadAll(part.Body)
			if err != nil {
				continue
			}
			switch {
			case strings.HasPrefix(ct, "text/html"):
				parsed.HTML = string(body)
			case strings.HasPrefix(ct, "text/plain"):
				parsed.Text = string(body)
			}

		case *mail.AttachmentHeader:
			filename, _ := header.Filename()
			ct, _, _ := header.ContentType()
			content, err := io.ReadAll(part.Body)
			if err != nil {
				p.logger.Warn("failed to read attachment", "filename", filename, "error", err)
				continue
			}
			parsed.Attachments = append(parsed.Attachments, models.EmailAttachment{
				Filename:    filename,
				ContentType: ct,
				Size:        len(content),
				Content:     content,
			})
		}
	}

	if parsed.Text == "" && parsed.HTML != "" {
		text, err := htmlToText(parsed.HTML)
		if err != nil {
			p.logger.Warn("failed to render html body as text", "error", err)
		} else {
			parsed.Text = text
		}
	}

	return parsed, nil
}

// joinReferences normalizes the References header into a single
// space-joined string even when the source representation is a list.
func joinReferences(h mail.Header) string {
	ids, err := h.MsgIDList("References")
	if err != nil || len(ids) == 0 {
		return ""
	}
	refs := make([]string, len(ids))
	for i, id := range ids {
		refs[i] = "<" + id + ">"
	}
	return strings.Join(refs, " ")
}
