package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mail-agent/internal/email"
)

// Classifier maps a message to a free-text intent label
type Classifier interface {
	Classify(ctx context.Context, msg email.ParsedMessage) (string, error)
}

// ReplyGenerator drafts replies to a message
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, msg email.ParsedMessage) (string, error)
	GenerateReplyOptions(ctx context.Context, msg email.ParsedMessage) ([]string, error)
}

// Service is everything the agent needs from a model
type Service interface {
	Classifier
	ReplyGenerator
}

// ErrNoSuggestions is returned when reply options cannot be produced
var ErrNoSuggestions = errors.New("no reply suggestions available")

// maxContentLength bounds the body text sent to the model
const maxContentLength = 4000

// Client implements Service on top of a provider transport
type Client struct {
	completer  completer
	limiter    *RateLimiter
	retryCount int
	retryDelay time.Duration
	logger     *slog.Logger
}

// New creates a model client for config. A "disabled" or empty provider
// returns a NoOpClient.
func New(config *Config, logger *slog.Logger) (Service, error) {
	if config == nil || config.Provider == "" || strings.EqualFold(config.Provider, "disabled") {
		return NewNoOpClient(), nil
	}

	primary, err := buildCompleter(config)
	if err != nil {
		return nil, err
	}

	logger = logger.With("component", "llm", "provider", primary.name())

	if config.Fallback != nil && config.Fallback.Provider != "" && !strings.EqualFold(config.Fallback.Provider, "disabled") {
		secondary, err := buildCompleter(config.Fallback)
		if err != nil {
			return nil, fmt.Errorf("invalid fallback provider: %w", err)
		}
		primary = &fallbackCompleter{primary: primary, secondary: secondary, logger: logger}
	}

	client := &Client{
		completer:  primary,
		retryCount: config.RetryCount,
		retryDelay: time.Second,
		logger:     logger,
	}
	if config.RequestsPerMinute > 0 {
		client.limiter = PerMinute(config.RequestsPerMinute)
	}
	return client, nil
}

func buildCompleter(config *Config) (completer, error) {
	resolved := *config
	resolved.Provider = strings.ToLower(resolved.Provider)
	if resolved.Model == "" {
		resolved.Model = DefaultModel(resolved.Provider)
	}
	if resolved.Endpoint == "" {
		resolved.Endpoint = DefaultEndpoint(resolved.Provider)
	}
	resolved.Endpoint = strings.TrimRight(resolved.Endpoint, "/")
	if resolved.MaxTokens == 0 {
		resolved.MaxTokens = DefaultConfig().MaxTokens
	}
	if resolved.Timeout == 0 {
		resolved.Timeout = DefaultConfig().Timeout
	}
	return newCompleter(&resolved)
}

// Classify asks the model for one of urgent, routine, spam or personal.
// The answer is returned as-is; callers handle labels outside the set.
func (c *Client) Classify(ctx context.Context, msg email.ParsedMessage) (string, error) {
	response, err := c.call(ctx, buildClassifyPrompt(msg))
	if err != nil {
		return "", fmt.Errorf("classification failed: %w", err)
	}
	return strings.TrimSpace(response), nil
}

// GenerateReply drafts a single contextual reply
func (c *Client) GenerateReply(ctx context.Context, msg email.ParsedMessage) (string, error) {
	response, err := c.call(ctx, buildReplyPrompt(msg))
	if err != nil {
		return "", fmt.Errorf("reply generation failed: %w", err)
	}
	return strings.TrimSpace(response), nil
}

// GenerateReplyOptions returns casual, professional and detailed drafts
func (c *Client) GenerateReplyOptions(ctx context.Context, msg email.ParsedMessage) ([]string, error) {
	response, err := c.call(ctx, buildReplyOptionsPrompt(msg))
	if err != nil {
		return nil, fmt.Errorf("reply suggestion failed: %w", err)
	}
	return parseReplyOptions(response)
}

// call runs one prompt with rate limiting and retries
func (c *Client) call(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", fmt.Errorf("rate limiter: %w", err)
			}
		}

		response, err := c.completer.complete(ctx, prompt)
		if err == nil {
			return response, nil
		}

		lastErr = err
		c.logger.Warn("LLM request failed", "attempt", attempt+1, "max_attempts", c.retryCount+1, "error", err)
	}
	return "", lastErr
}

func truncateContent(content string) string {
	if len(content) <= maxContentLength {
		return content
	}
	cut := maxContentLength
	for cut > 0 && !isRuneStart(content[cut]) {
		cut--
	}
	return content[:cut] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}

func describeMessage(msg email.ParsedMessage) string {
	return fmt.Sprintf("From: %s\nSubject: %s\nDate: %s\n\n%s",
		msg.From, msg.Subject, msg.Date, truncateContent(msg.Body))
}

func buildClassifyPrompt(msg email.ParsedMessage) string {
	return fmt.Sprintf(`Classify the following email into exactly one category.

Categories:
- urgent: needs attention today (deadlines, outages, requests from a manager)
- routine: ordinary work or account correspondence
- spam: marketing, promotions, automated bulk mail
- personal: friends and family

Answer with the single category word only.

Email:
%s`, describeMessage(msg))
}

func buildReplyPrompt(msg email.ParsedMessage) string {
	return fmt.Sprintf(`Write a short, friendly reply to the following email. Return only the reply
body, without a subject line or placeholders.

Email:
%s`, describeMessage(msg))
}

func buildReplyOptionsPrompt(msg email.ParsedMessage) string {
	return fmt.Sprintf(`Write three alternative replies to the following email: one casual, one
professional and one detailed. Return ONLY a JSON object:

{"casual": "...", "professional": "...", "detailed": "..."}

Email:
%s`, describeMessage(msg))
}

// parseReplyOptions decodes the JSON reply options, tolerating code fences
func parseReplyOptions(response string) ([]string, error) {
	response = strings.TrimSpace(response)
	if strings.HasPrefix(response, "```") {
		response = strings.TrimPrefix(response, "```json")
		response = strings.TrimPrefix(response, "```")
		response = strings.TrimSuffix(response, "```")
	}
	response = strings.TrimSpace(response)

	var parsed struct {
		Casual       string `json:"casual"`
		Professional string `json:"professional"`
		Detailed     string `json:"detailed"`
	}
	if err := json.Unmarshal([]byte(response), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse reply options: %w", err)
	}

	options := []string{
		strings.TrimSpace(parsed.Casual),
		strings.TrimSpace(parsed.Professional),
		strings.TrimSpace(parsed.Detailed),
	}
	for _, option := range options {
		if option == "" {
			return nil, ErrNoSuggestions
		}
	}
	return options, nil
}

// NoOpClient is used when no model is configured
type NoOpClient struct{}

// NewNoOpClient creates a no-operation model client
func NewNoOpClient() *NoOpClient {
	return &NoOpClient{}
}

// Classify always returns "unknown"
func (n *NoOpClient) Classify(ctx context.Context, msg email.ParsedMessage) (string, error) {
	return "unknown", nil
}

// GenerateReply fails because there is no model to draft with
func (n *NoOpClient) GenerateReply(ctx context.Context, msg email.ParsedMessage) (string, error) {
	return "", fmt.Errorf("LLM provider is disabled")
}

// GenerateReplyOptions fails because there is no model to draft with
func (n *NoOpClient) GenerateReplyOptions(ctx context.Context, msg email.ParsedMessage) ([]string, error) {
	return nil, ErrNoSuggestions
}
