package email

import (
	"bytes"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/proprioo/mailsync/pkg/models"
)

func TestBuildMessageThreadingPassthrough(t *testing.T) {
	out := &models.OutgoingEmail{
		To:         []string{"tenant@building.test"},
		Subject:    "Re: Leak in unit 4B",
		Text:       "A plumber will come tomorrow morning.",
		InReplyTo:  "<msg-2@tenant.test>",
		References: "<msg-1@agency.test> <msg-2@tenant.test>",
	}

	messageID, raw, err := buildMessage("team@agency.test", out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(messageID, "<"))
	assert.True(t, strings.HasSuffix(messageID, ">"))

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	h := mr.Header
	assert.Equal(t, "<msg-2@tenant.test>", h.Get("In-Reply-To"))
	assert.Equal(t, "<msg-1@agency.test> <msg-2@tenant.test>", h.Get("References"))

	id, err := h.MessageID()
	require.NoError(t, err)
	assert.Equal(t, messageID, "<"+id+">")

	from, err := h.AddressList("From")
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, "team@agency.test", from[0].Address)

	subject, err := h.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Re: Leak in unit 4B", subject)

	part, err := mr.NextPart()
	require.NoError(t, err)
	_, ok := part.Header.(*mail.InlineHeader)
	require.True(t, ok)
	body, err := io.ReadAll(part.Body)
	require.NoError(t, err)
	assert.Equal(t, "A plumber will come tomorrow morning.", strings.TrimSpace(string(body)))
}

func TestBuildMessageWithHTMLBody(t *testing.T) {
	out := &models.OutgoingEmail{
		To:      []string{"owner@building.test"},
		Subject: "Monthly report",
		Text:    "See attached summary.",
		HTML:    "<p>See attached summary.</p>",
	}

	_, raw, err := buildMessage("team@agency.test", out)
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	var contentTypes []string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		if inline, ok := part.Header.(*mail.InlineHeader); ok {
			ct, _, err := inline.ContentType()
			require.NoError(t, err)
			contentTypes = append(contentTypes, ct)
		}
	}
	assert.Equal(t, []string{"text/plain", "text/html"}, contentTypes)
}

func TestConnectHonorsDialTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// The listener never answers the TLS handshake, so only the dial bound
	// can end the attempt.
	addr := ln.Addr().(*net.TCPAddr)
	cfg := ServerConfig{
		Host:        "127.0.0.1",
		Port:        addr.Port,
		TLS:         true,
		DialTimeout: 100 * time.Millisecond,
		AuthTimeout: 100 * time.Millisecond,
	}

	d := NewDispatcher(nil, discardLogger())
	start := time.Now()
	_, err = d.connect(cfg)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestConnectHonorsAuthTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	// Accept the connection but never send the SMTP greeting.
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(io.Discard, conn)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	cfg := ServerConfig{
		Host:        "127.0.0.1",
		Port:        addr.Port,
		DialTimeout: time.Second,
		AuthTimeout: 100 * time.Millisecond,
	}

	d := NewDispatcher(nil, discardLogger())
	start := time.Now()
	_, err = d.connect(cfg)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestBuildMessageOmitsThreadingWhenAbsent(t *testing.T) {
	out := &models.OutgoingEmail{
		To:      []string{"tenant@building.test"},
		Subject: "Welcome",
		Text:    "Your mailbox is connected.",
	}

	_, raw, err := buildMessage("team@agency.test", out)
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Empty(t, mr.Header.Get("In-Reply-To"))
	assert.Empty(t, mr.Header.Get("References"))
}
