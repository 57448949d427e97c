package email

import (
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

const multipartMessage = "From: Alice <alice@company.com>\r\n" +
	"To: agent@example.com\r\n" +
	"Subject: =?utf-8?q?Caf=C3=A9_plans?=\r\n" +
	"Date: Mon, 1 Jan 2024 10:00:00 +0000\r\n" +
	"Message-Id: <abc123@company.com>\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"XYZ\"\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/html; charset=utf-8\r\n" +
	"\r\n" +
	"<p>Lunch at <b>noon</b>?</p>\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Lunch at noon?\r\n" +
	"--XYZ--\r\n"

func TestConvertMIME_Multipart(t *testing.T) {
	msg, err := convertMIME("42", strings.NewReader(multipartMessage), discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "42", msg.Id)
	assert.Equal(t, "abc123@company.com", msg.ThreadId)
	assert.Equal(t, "Lunch at noon?", msg.Snippet)
	require.Len(t, msg.Payload.Parts, 2)

	parsed := ParseMessage(msg)
	assert.Equal(t, "Alice <alice@company.com>", parsed.From)
	assert.Equal(t, "Café plans", parsed.Subject)
	assert.Equal(t, "Mon, 1 Jan 2024 10:00:00 +0000", parsed.Date)
	assert.Equal(t, "Lunch at noon?", strings.TrimSpace(parsed.Body))
}

func TestConvertMIME_SinglePartHTML(t *testing.T) {
	raw := "From: bob@example.com\r\n" +
		"Subject: Promo\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n" +
		"\r\n" +
		"<div>50% off</div>\r\n"

	msg, err := convertMIME("7", strings.NewReader(raw), discardLogger())
	require.NoError(t, err)

	assert.Equal(t, "50% off", msg.Snippet)
	assert.Equal(t, "50% off", ParseMessage(msg).Body)
}

func TestBuildSearchCriteria(t *testing.T) {
	criteria := buildSearchCriteria("is:unread from:alice@company.com invoice")

	assert.Equal(t, []string{imap.SeenFlag}, criteria.WithoutFlags)
	assert.Equal(t, "alice@company.com", criteria.Header.Get("From"))
	assert.Equal(t, []string{"invoice"}, criteria.Text)
}

func TestBuildSearchCriteria_Empty(t *testing.T) {
	criteria := buildSearchCriteria("")

	assert.Empty(t, criteria.WithoutFlags)
	assert.Empty(t, criteria.WithFlags)
	assert.Empty(t, criteria.Text)
}

func TestBuildRawMessage_Reply(t *testing.T) {
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	raw := string(BuildRawMessage("agent@example.com", OutgoingMessage{
		To:       "Alice <alice@company.com>",
		Subject:  "Re: Lunch",
		Body:     "Sounds good.\nSee you.",
		ThreadID: "abc123@company.com",
	}, now))

	assert.Contains(t, raw, "From: agent@example.com\r\n")
	assert.Contains(t, raw, "To: Alice <alice@company.com>\r\n")
	assert.Contains(t, raw, "Subject: Re: Lunch\r\n")
	assert.Contains(t, raw, "In-Reply-To: <abc123@company.com>\r\n")
	assert.Contains(t, raw, "References: <abc123@company.com>\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\n\r\nSounds good.\r\nSee you.\r\n"))
}

func TestBuildRawMessage_GmailThreadHasNoReplyHeaders(t *testing.T) {
	raw := string(BuildRawMessage("", OutgoingMessage{
		To:       "bob@example.com",
		Subject:  "Hello\r\nBcc: evil@example.com",
		Body:     "hi",
		ThreadID: "18c2f0a1b2c3d4e5",
	}, time.Now()))

	assert.NotContains(t, raw, "From:")
	assert.NotContains(t, raw, "In-Reply-To")
	assert.NotContains(t, raw, "\r\nBcc:")
}

func TestExtractAddress(t *testing.T) {
	assert.Equal(t, "alice@company.com", extractAddress("Alice <alice@company.com>"))
	assert.Equal(t, "bob@example.com", extractAddress("bob@example.com"))
	assert.Equal(t, "not an address", extractAddress(" not an address "))
}
