package email

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailClient implements Gateway for the Gmail API
type GmailClient struct {
	service *gmail.Service
	userID  string
	config  *GmailConfig
	logger  *slog.Logger
}

// GmailConfig holds Gmail API configuration
type GmailConfig struct {
	ClientID        string
	ClientSecret    string
	CredentialsFile string
	RefreshToken    string
	TokenFile       string
	UserID          string

	RequestTimeout time.Duration

	// Authorizer is used when no usable token exists. Nil disables the
	// interactive flow.
	Authorizer *Authorizer
}

// GmailScopes are the OAuth2 scopes the agent needs
var GmailScopes = []string{gmail.GmailReadonlyScope, gmail.GmailSendScope}

// OAuthConfig builds the OAuth2 client configuration
func (c *GmailConfig) OAuthConfig() (*oauth2.Config, error) {
	if c.ClientID != "" && c.ClientSecret != "" {
		return &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Scopes:       GmailScopes,
			Endpoint:     google.Endpoint,
			RedirectURL:  "urn:ietf:wg:oauth:2.0:oob",
		}, nil
	}

	if c.CredentialsFile == "" {
		return nil, fmt.Errorf("gmail client_id/client_secret or credentials_file must be provided")
	}

	b, err := os.ReadFile(c.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read client secret file: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(b, GmailScopes...)
	if err != nil {
		return nil, fmt.Errorf("unable to parse client secret file to config: %w", err)
	}
	return oauthConfig, nil
}

// NewGmailClient creates a new Gmail API client
func NewGmailClient(ctx context.Context, config *GmailConfig, logger *slog.Logger) (*GmailClient, error) {
	oauthConfig, err := config.OAuthConfig()
	if err != nil {
		return nil, err
	}

	store := NewTokenStore(config.TokenFile)
	token, err := resolveToken(ctx, config, oauthConfig, store)
	if err != nil {
		return nil, err
	}

	tokenSource := &persistingTokenSource{
		src:     oauthConfig.TokenSource(ctx, token),
		store:   store,
		current: token.AccessToken,
	}
	httpClient := oauth2.NewClient(ctx, tokenSource)
	if config.RequestTimeout > 0 {
		httpClient.Timeout = config.RequestTimeout
	}

	service, err := gmail.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	userID := "me"
	if config.UserID != "" {
		userID = config.UserID
	}

	return &GmailClient{
		service: service,
		userID:  userID,
		config:  config,
		logger:  logger.With("component", "gmail"),
	}, nil
}

// resolveToken loads the persisted token, seeding or reacquiring it as needed
func resolveToken(ctx context.Context, config *GmailConfig, oauthConfig *oauth2.Config, store *TokenStore) (*oauth2.Token, error) {
	token, err := store.Load()
	if err == nil && (token.RefreshToken != "" || token.Valid()) {
		return token, nil
	}
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	if config.RefreshToken != "" {
		seeded := &oauth2.Token{RefreshToken: config.RefreshToken, TokenType: "Bearer", Expiry: time.Now()}
		if err := store.Save(seeded); err != nil {
			return nil, err
		}
		return seeded, nil
	}

	if config.Authorizer == nil {
		return nil, fmt.Errorf("no usable token in %s; run 'mail-agent auth' from a terminal", store.Path())
	}

	token, err = config.Authorizer.Authorize(ctx, oauthConfig)
	if err != nil {
		return nil, err
	}
	if err := store.Save(token); err != nil {
		return nil, err
	}
	return token, nil
}

// ListMessages lists message references matching query
func (g *GmailClient) ListMessages(ctx context.Context, maxResults int64, query string) ([]MessageRef, error) {
	req := g.service.Users.Messages.List(g.userID).Context(ctx)
	if query != "" {
		req = req.Q(query)
	}
	if maxResults > 0 {
		req = req.MaxResults(maxResults)
	}

	resp, err := req.Do()
	if err != nil {
		return nil, fmt.Errorf("gmail list failed: %w", err)
	}

	refs := make([]MessageRef, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		refs = append(refs, MessageRef{ID: msg.Id, ThreadID: msg.ThreadId})
	}

	g.logger.Debug("Listed messages", "query", query, "count", len(refs))
	return refs, nil
}

// GetMessage retrieves the full payload of a specific message
func (g *GmailClient) GetMessage(ctx context.Context, id string) (*gmail.Message, error) {
	msg, err := g.service.Users.Messages.Get(g.userID, id).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", id, err)
	}
	return msg, nil
}

// SendMessage sends an email, threading it when ThreadID is set
func (g *GmailClient) SendMessage(ctx context.Context, out OutgoingMessage) (*SendResult, error) {
	raw := BuildRawMessage("", out, time.Now())

	msg := &gmail.Message{
		Raw:      base64.URLEncoding.EncodeToString(raw),
		ThreadId: out.ThreadID,
	}

	sent, err := g.service.Users.Messages.Send(g.userID, msg).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("unable to send message to %s: %w", out.To, err)
	}

	g.logger.Info("Sent message", "to", out.To, "thread_id", sent.ThreadId, "message_id", sent.Id)
	return &SendResult{ID: sent.Id, ThreadID: sent.ThreadId}, nil
}

// HealthCheck verifies the Gmail connection is working
func (g *GmailClient) HealthCheck(ctx context.Context) error {
	profile, err := g.service.Users.GetProfile(g.userID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get Gmail profile: %w", err)
	}

	g.logger.Info("Connected to Gmail account", "address", profile.EmailAddress)
	return nil
}

// Close cleans up resources
func (g *GmailClient) Close() error {
	// Gmail API client doesn't require explicit cleanup
	return nil
}

// BuildRawMessage renders an RFC 5322 plain-text message. When the thread id
// looks like an RFC Message-ID it is also used for In-Reply-To/References.
func BuildRawMessage(from string, out OutgoingMessage, now time.Time) []byte {
	var b strings.Builder

	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", sanitizeHeader(from))
	}
	fmt.Fprintf(&b, "To: %s\r\n", sanitizeHeader(out.To))
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.BEncoding.Encode("utf-8", sanitizeHeader(out.Subject)))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	if ref := normalizeMessageID(out.ThreadID); strings.Contains(ref, "@") {
		fmt.Fprintf(&b, "In-Reply-To: %s\r\n", ref)
		fmt.Fprintf(&b, "References: %s\r\n", ref)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(normalizeBody(out.Body))
	b.WriteString("\r\n")

	return []byte(b.String())
}

func sanitizeHeader(value string) string {
	value = strings.ReplaceAll(value, "\r", " ")
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.TrimSpace(value)
}

func normalizeBody(body string) string {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	body = strings.ReplaceAll(body, "\r", "\n")
	return strings.ReplaceAll(body, "\n", "\r\n")
}

func normalizeMessageID(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return "<" + strings.Trim(value, "<>") + ">"
}
