package models

import "time"

// EmailAttachment is a decoded attachment from a fetched message.
type EmailAttachment struct {
	Filename    string
	ContentType string
	Size        int
	Content     []byte
}

// ParsedEmail is a structured message produced from raw MIME bytes.
// Ownership passes to the business layer; the engine does not persist it.
type ParsedEmail struct {
	UID         uint32
	MessageID   string
	InReplyTo   string
	References  string // space-joined even when the source header is a list
	From        string
	To          []string
	Subject     string
	Text        string
	HTML        string
	Date        time.Time
	Attachments []EmailAttachment
}

// OutgoingEmail is a message to dispatch through a connection's SMTP server.
// InReplyTo and References are passed through verbatim so replies stay
// attached to their conversation in the recipient's client.
type OutgoingEmail struct {
	To         []string
	Subject    string
	Text       string
	HTML       string
	InReplyTo  string
	References string
}
