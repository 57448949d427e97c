package email

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/api/gmail/v1"
)

func encode(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func headers(kv ...string) []*gmail.MessagePartHeader {
	var out []*gmail.MessagePartHeader
	for i := 0; i+1 < len(kv); i += 2 {
		out = append(out, &gmail.MessagePartHeader{Name: kv[i], Value: kv[i+1]})
	}
	return out
}

func TestParseMessage_SinglePartNormalizesCRLF(t *testing.T) {
	msg := &gmail.Message{
		Id:       "msg-1",
		ThreadId: "thread-1",
		Snippet:  "Hello World",
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers:  headers("From", "alice@company.com", "Subject", "Hi", "Date", "Mon, 1 Jan 2024 10:00:00 +0000"),
			Body:     &gmail.MessagePartBody{Data: "SGVsbG8NCldvcmxk"},
		},
	}

	parsed := ParseMessage(msg)

	assert.Equal(t, "msg-1", parsed.ID)
	assert.Equal(t, "thread-1", parsed.ThreadID)
	assert.Equal(t, "alice@company.com", parsed.From)
	assert.Equal(t, "Hi", parsed.Subject)
	assert.Equal(t, "Mon, 1 Jan 2024 10:00:00 +0000", parsed.Date)
	assert.Equal(t, "Hello\nWorld", parsed.Body)
}

func TestParseMessage_PrefersPlainOverHTML(t *testing.T) {
	msg := &gmail.Message{
		Id: "msg-2",
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: encode("<p>html part</p>")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("plain part")}},
			},
		},
	}

	assert.Equal(t, "plain part", ParseMessage(msg).Body)
}

func TestParseMessage_NestedMultipart(t *testing.T) {
	msg := &gmail.Message{
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
			Parts: []*gmail.MessagePart{
				{
					MimeType: "multipart/alternative",
					Parts: []*gmail.MessagePart{
						{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: encode("nested\r\nplain")}},
					},
				},
				{MimeType: "application/pdf", Filename: "a.pdf", Body: &gmail.MessagePartBody{AttachmentId: "att"}},
			},
		},
	}

	assert.Equal(t, "nested\nplain", ParseMessage(msg).Body)
}

func TestParseMessage_HTMLFallback(t *testing.T) {
	msg := &gmail.Message{
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Parts: []*gmail.MessagePart{
				{
					MimeType: "text/html",
					Body: &gmail.MessagePartBody{
						Data: encode("<html><body><p>Hi &amp; bye</p><script>x()</script></body></html>"),
					},
				},
			},
		},
	}

	assert.Equal(t, "Hi & bye", ParseMessage(msg).Body)
}

func TestParseMessage_Sentinels(t *testing.T) {
	testCases := []struct {
		name string
		msg  *gmail.Message
	}{
		{"nil message", nil},
		{"nil payload", &gmail.Message{Id: "x"}},
		{"empty parts", &gmail.Message{Payload: &gmail.MessagePart{MimeType: "multipart/mixed"}}},
		{"undecodable", &gmail.Message{Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Body:     &gmail.MessagePartBody{Data: "!!!not base64!!!"},
		}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, NoBodyText, ParseMessage(tc.msg).Body)
		})
	}
}

func TestParseMessage_HeadersCaseInsensitiveAndSnippetUnescaped(t *testing.T) {
	msg := &gmail.Message{
		Snippet: "Tom &amp; Jerry&#39;s &quot;show&quot;",
		Payload: &gmail.MessagePart{
			Headers: headers("from", "Bob <bob@example.com>", "SUBJECT", "Lower"),
		},
	}

	parsed := ParseMessage(msg)
	assert.Equal(t, "Bob <bob@example.com>", parsed.From)
	assert.Equal(t, "Lower", parsed.Subject)
	assert.Equal(t, "", parsed.Date)
	assert.Equal(t, `Tom & Jerry's "show"`, parsed.Snippet)
}

func TestParseMessage_UnpaddedData(t *testing.T) {
	msg := &gmail.Message{
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Body:     &gmail.MessagePartBody{Data: base64.RawURLEncoding.EncodeToString([]byte("ab"))},
		},
	}

	assert.Equal(t, "ab", ParseMessage(msg).Body)
}
