package email

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParser() *Parser {
	return NewParser(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const multipartMessage = "From: Alice Martin <alice@agency.test>\r\n" +
	"To: Bob <bob@provider.test>, carol@tenant.test\r\n" +
	"Subject: Intervention quote approved\r\n" +
	"Message-ID: <msg-3@agency.test>\r\n" +
	"In-Reply-To: <msg-2@provider.test>\r\n" +
	"References: <msg-1@agency.test> <msg-2@provider.test>\r\n" +
	"Date: Tue, 15 Jul 2025 10:30:00 +0000\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/mixed; boundary=\"frontier\"\r\n" +
	"\r\n" +
	"--frontier\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"The quote is approved, please schedule the work.\r\n" +
	"--frontier\r\n" +
	"Content-Type: application/pdf\r\n" +
	"Content-Disposition: attachment; filename=\"quote.pdf\"\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"JVBERi0xLjQ=\r\n" +
	"--frontier--\r\n"

func TestParseMultipartMessage(t *testing.T) {
	parsed, err := newTestParser().Parse(strings.NewReader(multipartMessage))
	require.NoError(t, err)

	assert.Equal(t, "<msg-3@agency.test>", parsed.MessageID)
	assert.Equal(t, "<msg-2@provider.test>", parsed.InReplyTo)
	assert.Equal(t, "<msg-1@agency.test> <msg-2@provider.test>", parsed.References)

	assert.Contains(t, parsed.From, "alice@agency.test")
	require.Len(t, parsed.To, 2)
	assert.Contains(t, parsed.To[0], "bob@provider.test")
	assert.Contains(t, parsed.To[1], "carol@tenant.test")

	assert.Equal(t, "Intervention quote approved", parsed.Subject)
	assert.Equal(t, "The quote is approved, please schedule the work.", strings.TrimSpace(parsed.Text))
	assert.Equal(t, 2025, parsed.Date.Year())

	require.Len(t, parsed.Attachments, 1)
	att := parsed.Attachments[0]
	assert.Equal(t, "quote.pdf", att.Filename)
	assert.Equal(t, "application/pdf", att.ContentType)
	assert.Equal(t, []byte("%PDF-1.4"), att.Content)
	assert.Equal(t, len(att.Content), att.Size)
}

func TestParseHTMLOnlyFallsBackToText(t *testing.T) {
	raw := "From: noreply@portal.test\r\n" +
		"Subject: Notification\r\n" +
		"Date: Tue, 15 Jul 2025 10:30:00 +0000\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<html><body><p>New intervention</p><p>Unit 4B</p></body></html>\r\n"

	parsed, err := newTestParser().Parse(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Contains(t, parsed.HTML, "<p>New intervention</p>")
	assert.Equal(t, "New intervention\nUnit 4B", parsed.Text)
}

func TestParseNoThreadingHeaders(t *testing.T) {
	raw := "From: a@b.test\r\n" +
		"Subject: Standalone\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"hello\r\n"

	parsed, err := newTestParser().Parse(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Empty(t, parsed.InReplyTo)
	assert.Empty(t, parsed.References)
	assert.Equal(t, "hello", strings.TrimSpace(parsed.Text))
}

func TestParseMalformedMessage(t *testing.T) {
	_, err := newTestParser().Parse(strings.NewReader("\x01\x02 garbage without a header colon\r\n\r\n"))
	assert.Error(t, err)
}

func TestHTMLToText(t *testing.T) {
	text, err := htmlToText("<div>Hello <b>world</b></div><script>alert(1)</script><div>Bye</div>")
	require.NoError(t, err)
	assert.Equal(t, "Hello world\nBye", text)

	text, err = htmlToText("")
	require.NoError(t, err)
	assert.Empty(t, text)
}
