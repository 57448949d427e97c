package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"google.golang.org/api/gmail/v1"
)

const snippetLength = 200

// IMAPConfig holds IMAP/SMTP mailbox configuration
type IMAPConfig struct {
	Server      string // host:port
	SMTPServer  string // host:port, implicit TLS
	Username    string
	Password    string
	Mailbox     string
	DialTimeout time.Duration
}

// IMAPClient implements Gateway over IMAP for reading and SMTP for sending.
// A fresh connection is opened per operation.
type IMAPClient struct {
	config *IMAPConfig
	logger *slog.Logger
}

// NewIMAPClient creates a new IMAP/SMTP gateway
func NewIMAPClient(config *IMAPConfig, logger *slog.Logger) (*IMAPClient, error) {
	if config.Server == "" {
		return nil, fmt.Errorf("imap server is required")
	}
	if config.Username == "" || config.Password == "" {
		return nil, fmt.Errorf("imap username and password are required")
	}
	if config.Mailbox == "" {
		config.Mailbox = "INBOX"
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 30 * time.Second
	}

	return &IMAPClient{
		config: config,
		logger: logger.With("component", "imap", "server", config.Server),
	}, nil
}

func (c *IMAPClient) connect(ctx context.Context) (*client.Client, error) {
	host, _, err := net.SplitHostPort(c.config.Server)
	if err != nil {
		return nil, fmt.Errorf("invalid imap server %q: %w", c.config.Server, err)
	}

	dialer := &net.Dialer{Timeout: c.config.DialTimeout}
	if deadline, ok := ctx.Deadline(); ok {
		dialer.Deadline = deadline
	}

	imapClient, err := client.DialWithDialerTLS(dialer, c.config.Server, &tls.Config{ServerName: host})
	if err != nil {
		return nil, fmt.Errorf("IMAP dial failed: %w", err)
	}

	if err := imapClient.Login(c.config.Username, c.config.Password); err != nil {
		imapClient.Logout()
		return nil, fmt.Errorf("IMAP login failed: %w", err)
	}

	return imapClient, nil
}

// ListMessages searches the mailbox and returns the newest matches first
func (c *IMAPClient) ListMessages(ctx context.Context, maxResults int64, query string) ([]MessageRef, error) {
	imapClient, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer imapClient.Logout()

	if _, err := imapClient.Select(c.config.Mailbox, true); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", c.config.Mailbox, err)
	}

	uids, err := imapClient.UidSearch(buildSearchCriteria(query))
	if err != nil {
		return nil, fmt.Errorf("IMAP search failed: %w", err)
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] > uids[j] })
	if maxResults > 0 && int64(len(uids)) > maxResults {
		uids = uids[:maxResults]
	}

	refs := make([]MessageRef, 0, len(uids))
	for _, uid := range uids {
		refs = append(refs, MessageRef{ID: strconv.FormatUint(uint64(uid), 10)})
	}

	c.logger.Debug("Listed messages", "query", query, "count", len(refs))
	return refs, nil
}

// GetMessage fetches a message by UID without marking it seen
func (c *IMAPClient) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	uid, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("invalid message id %q: %w", id, err)
	}

	imapClient, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer imapClient.Logout()

	if _, err := imapClient.Select(c.config.Mailbox, true); err != nil {
		return nil, fmt.Errorf("failed to select %s: %w", c.config.Mailbox, err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uint32(uid))

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.UidFetch(seqSet, items, messages)
	}()

	var raw []byte
	for msg := range messages {
		if body := msg.GetBody(section); body != nil {
			raw, err = io.ReadAll(body)
			if err != nil {
				return nil, fmt.Errorf("failed to read message %s: %w", id, err)
			}
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message %s: %w", id, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("message %s not found", id)
	}

	return convertMIME(id, bytes.NewReader(raw), c.logger)
}

// SendMessage delivers a message over SMTP
func (c *IMAPClient) SendMessage(ctx context.Context, out OutgoingMessage) (*SendResult, error) {
	if c.config.SMTPServer == "" {
		return nil, fmt.Errorf("smtp server is not configured")
	}

	host, _, err := net.SplitHostPort(c.config.SMTPServer)
	if err != nil {
		return nil, fmt.Errorf("invalid smtp server %q: %w", c.config.SMTPServer, err)
	}

	dialer := &net.Dialer{Timeout: c.config.DialTimeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", c.config.SMTPServer, &tls.Config{ServerName: host})
	if err != nil {
		return nil, fmt.Errorf("SMTP TLS dial failed: %w", err)
	}

	smtpClient := smtp.NewClient(conn)
	defer smtpClient.Close()

	if err := smtpClient.Auth(sasl.NewPlainClient("", c.config.Username, c.config.Password)); err != nil {
		return nil, fmt.Errorf("SMTP auth failed: %w", err)
	}
	if err := smtpClient.Mail(c.config.Username, nil); err != nil {
		return nil, fmt.Errorf("SMTP MAIL FROM failed: %w", err)
	}
	if err := smtpClient.Rcpt(extractAddress(out.To), nil); err != nil {
		return nil, fmt.Errorf("SMTP RCPT TO failed: %w", err)
	}

	writer, err := smtpClient.Data()
	if err != nil {
		return nil, fmt.Errorf("SMTP DATA failed: %w", err)
	}
	if _, err := writer.Write(BuildRawMessage(c.config.Username, out, time.Now())); err != nil {
		writer.Close()
		return nil, fmt.Errorf("SMTP write failed: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("SMTP DATA close failed: %w", err)
	}
	if err := smtpClient.Quit(); err != nil {
		c.logger.Warn("SMTP QUIT failed", "error", err)
	}

	c.logger.Info("Sent message", "to", out.To, "thread_id", out.ThreadID)
	return &SendResult{ThreadID: out.ThreadID}, nil
}

// HealthCheck logs in and out
func (c *IMAPClient) HealthCheck(ctx context.Context) error {
	imapClient, err := c.connect(ctx)
	if err != nil {
		return err
	}
	defer imapClient.Logout()

	c.logger.Info("Connected to IMAP account", "username", c.config.Username)
	return nil
}

// Close cleans up resources
func (c *IMAPClient) Close() error {
	return nil
}

// buildSearchCriteria maps the supported subset of the Gmail query syntax to
// IMAP search criteria. Unknown terms become full-text searches.
func buildSearchCriteria(query string) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()

	for _, term := range strings.Fields(query) {
		key, value, hasKey := strings.Cut(term, ":")
		switch {
		case hasKey && strings.EqualFold(key, "is") && strings.EqualFold(value, "unread"):
			criteria.WithoutFlags = append(criteria.WithoutFlags, imap.SeenFlag)
		case hasKey && strings.EqualFold(key, "is") && strings.EqualFold(value, "read"):
			criteria.WithFlags = append(criteria.WithFlags, imap.SeenFlag)
		case hasKey && strings.EqualFold(key, "is") && strings.EqualFold(value, "starred"):
			criteria.WithFlags = append(criteria.WithFlags, imap.FlaggedFlag)
		case hasKey && strings.EqualFold(key, "from") && value != "":
			criteria.Header.Add("From", value)
		case hasKey && strings.EqualFold(key, "to") && value != "":
			criteria.Header.Add("To", value)
		case hasKey && strings.EqualFold(key, "subject") && value != "":
			criteria.Header.Add("Subject", value)
		default:
			criteria.Text = append(criteria.Text, term)
		}
	}

	return criteria
}

// convertMIME parses an RFC 5322 message into the Gmail message shape so
// both gateways share one body extractor. Part data is base64url encoded.
func convertMIME(id string, r io.Reader, logger *slog.Logger) (*gmail.Message, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message %s: %w", id, err)
	}

	msg := &gmail.Message{
		Id: id,
		Payload: &gmail.MessagePart{
			MimeType: "multipart/mixed",
		},
	}

	for _, name := range []string{"From", "To", "Subject", "Date", "Message-Id"} {
		value, err := mr.Header.Text(name)
		if err != nil {
			value = mr.Header.Get(name)
		}
		if value != "" {
			msg.Payload.Headers = append(msg.Payload.Headers, &gmail.MessagePartHeader{Name: name, Value: value})
		}
	}

	if messageID, err := mr.Header.MessageID(); err == nil && messageID != "" {
		msg.ThreadId = messageID
	}

	var snippetSource, htmlSource string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warn("failed to read part", "id", id, "error", err)
			break
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}

		contentType, _, _ := inline.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			logger.Warn("failed to read part body", "id", id, "error", err)
			continue
		}

		msg.Payload.Parts = append(msg.Payload.Parts, &gmail.MessagePart{
			MimeType: contentType,
			Body: &gmail.MessagePartBody{
				Data: base64.URLEncoding.EncodeToString(body),
				Size: int64(len(body)),
			},
		})

		switch {
		case strings.EqualFold(contentType, "text/plain") && snippetSource == "":
			snippetSource = string(body)
		case strings.EqualFold(contentType, "text/html") && htmlSource == "":
			htmlSource = string(body)
		}
	}

	if snippetSource == "" && htmlSource != "" {
		snippetSource = htmlToText(htmlSource)
	}
	msg.Snippet = makeSnippet(snippetSource)

	return msg, nil
}

func makeSnippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) > snippetLength {
		return string(runes[:snippetLength])
	}
	return text
}

// extractAddress returns the bare address of a "Name <addr>" string
func extractAddress(value string) string {
	if addrs, err := mail.ParseAddressList(value); err == nil && len(addrs) > 0 {
		return addrs[0].Address
	}
	return strings.TrimSpace(value)
}
