package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"mail-agent/internal/llm"
)

// Config holds all agent configuration
type Config struct {
	Mailbox MailboxConfig `json:"mailbox"`
	Gmail   GmailConfig   `json:"gmail"`
	IMAP    IMAPConfig    `json:"imap"`
	Agent   AgentConfig   `json:"agent"`
	LLM     LLMConfig     `json:"llm"`
	Log     LogConfig     `json:"log"`
	Notify  NotifyConfig  `json:"notify"`
	Server  ServerConfig  `json:"server"`
}

// MailboxConfig selects the mail gateway
type MailboxConfig struct {
	Provider string `json:"provider"` // "gmail" or "imap"
}

// GmailConfig holds Gmail API settings
type GmailConfig struct {
	ClientID        string        `json:"client_id"`
	ClientSecret    string        `json:"client_secret"`
	CredentialsFile string        `json:"credentials_file"`
	RefreshToken    string        `json:"refresh_token"`
	TokenFile       string        `json:"token_file"`
	UserID          string        `json:"user_id"`
	RequestTimeout  time.Duration `json:"request_timeout"`
}

// IMAPConfig holds IMAP/SMTP settings
type IMAPConfig struct {
	Server      string        `json:"server"`
	SMTPServer  string        `json:"smtp_server"`
	Username    string        `json:"username"`
	Password    string        `json:"password"`
	Mailbox     string        `json:"mailbox"`
	DialTimeout time.Duration `json:"dial_timeout"`
}

// AgentConfig holds polling loop and sender list settings
type AgentConfig struct {
	CheckInterval     time.Duration `json:"check_interval"`
	ProcessingTimeout time.Duration `json:"processing_timeout"`
	DryRun            bool          `json:"dry_run"`
	MaxResults        int64         `json:"max_results"`
	Query             string        `json:"query"`
	Whitelist         []string      `json:"whitelist"`
	Blacklist         []string      `json:"blacklist"`

	// Nil keeps the built-in pre-filter lists; an empty list disables them
	SpamKeywords []string `json:"spam_keywords"`
	SpamSenders  []string `json:"spam_senders"`
}

// LLMConfig holds model settings
type LLMConfig struct {
	Provider          string        `json:"provider"`
	Model             string        `json:"model"`
	APIKey            string        `json:"api_key"`
	Endpoint          string        `json:"endpoint"`
	MaxTokens         int           `json:"max_tokens"`
	Temperature       float64       `json:"temperature"`
	Timeout           time.Duration `json:"timeout"`
	RetryCount        int           `json:"retry_count"`
	RequestsPerMinute int           `json:"requests_per_minute"`

	FallbackProvider string `json:"fallback_provider"`
	FallbackModel    string `json:"fallback_model"`
	FallbackAPIKey   string `json:"fallback_api_key"`
	FallbackEndpoint string `json:"fallback_endpoint"`
}

// LogConfig holds logging and audit trail settings
type LogConfig struct {
	Level      string `json:"level"`
	Format     string `json:"format"` // "text" or "json"
	Dir        string `json:"dir"`
	SQLitePath string `json:"sqlite_path"`
}

// NotifyConfig holds Telegram alert settings
type NotifyConfig struct {
	TelegramToken  string `json:"telegram_token"`
	TelegramChatID int64  `json:"telegram_chat_id"`
}

// ServerConfig holds the status endpoint settings
type ServerConfig struct {
	Addr            string        `json:"addr"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

var (
	validProviders    = []string{"gmail", "imap"}
	validLLMProviders = []string{"openai", "anthropic", "ollama", "gemini", "disabled", ""}
	validLogLevels    = []string{"debug", "info", "warn", "error"}
	validLogFormats   = []string{"text", "json"}
)

// validate checks the configuration for errors
func (c *Config) validate() error {
	if !contains(validProviders, c.Mailbox.Provider) {
		return fmt.Errorf("mailbox.provider must be one of %v, got %q", validProviders, c.Mailbox.Provider)
	}

	switch c.Mailbox.Provider {
	case "gmail":
		if c.Gmail.CredentialsFile == "" && (c.Gmail.ClientID == "" || c.Gmail.ClientSecret == "") {
			return fmt.Errorf("gmail.client_id and gmail.client_secret (or gmail.credentials_file) are required")
		}
		if c.Gmail.TokenFile == "" {
			return fmt.Errorf("gmail.token_file is required")
		}
		if c.Gmail.RequestTimeout <= 0 {
			return fmt.Errorf("gmail.request_timeout must be positive")
		}
	case "imap":
		if c.IMAP.Server == "" {
			return fmt.Errorf("imap.server is required")
		}
		if c.IMAP.Username == "" || c.IMAP.Password == "" {
			return fmt.Errorf("imap.username and imap.password are required")
		}
	}

	if c.Agent.CheckInterval < time.Second {
		return fmt.Errorf("agent.check_interval must be at least 1s, got %v", c.Agent.CheckInterval)
	}
	if c.Agent.ProcessingTimeout < 0 {
		return fmt.Errorf("agent.processing_timeout must not be negative")
	}
	if c.Agent.MaxResults <= 0 {
		return fmt.Errorf("agent.max_results must be positive, got %d", c.Agent.MaxResults)
	}

	if !contains(validLLMProviders, c.LLM.Provider) {
		return fmt.Errorf("llm.provider must be one of %v, got %q", validLLMProviders[:5], c.LLM.Provider)
	}
	if c.LLM.FallbackProvider != "" && !contains(validLLMProviders, c.LLM.FallbackProvider) {
		return fmt.Errorf("llm.fallback_provider must be one of %v, got %q", validLLMProviders[:5], c.LLM.FallbackProvider)
	}
	if requiresAPIKey(c.LLM.Provider) && c.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required for provider %s", c.LLM.Provider)
	}
	if requiresAPIKey(c.LLM.FallbackProvider) && c.LLM.FallbackAPIKey == "" {
		return fmt.Errorf("llm.fallback_api_key is required for provider %s", c.LLM.FallbackProvider)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be positive")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("llm.temperature must be between 0 and 2")
	}
	if c.LLM.RetryCount < 0 {
		return fmt.Errorf("llm.retry_count must not be negative")
	}
	if c.LLM.RequestsPerMinute < 0 {
		return fmt.Errorf("llm.requests_per_minute must not be negative")
	}

	if !contains(validLogLevels, strings.ToLower(c.Log.Level)) {
		return fmt.Errorf("log.level must be one of %v, got %q", validLogLevels, c.Log.Level)
	}
	if !contains(validLogFormats, c.Log.Format) {
		return fmt.Errorf("log.format must be one of %v, got %q", validLogFormats, c.Log.Format)
	}
	if c.Log.Dir == "" {
		return fmt.Errorf("log.dir is required")
	}

	if c.Notify.TelegramToken != "" && c.Notify.TelegramChatID == 0 {
		return fmt.Errorf("notify.telegram_chat_id is required when notify.telegram_token is set")
	}

	return nil
}

// SetDefaults fills values derived from other settings
func (c *Config) SetDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "disabled"
	}
	if c.LLM.APIKey == "" {
		c.LLM.APIKey = providerKeyFromEnv(c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		c.LLM.Model = llm.DefaultModel(c.LLM.Provider)
	}
	if c.LLM.FallbackProvider != "" {
		if c.LLM.FallbackAPIKey == "" {
			c.LLM.FallbackAPIKey = providerKeyFromEnv(c.LLM.FallbackProvider)
		}
		if c.LLM.FallbackModel == "" {
			c.LLM.FallbackModel = llm.DefaultModel(c.LLM.FallbackProvider)
		}
	}
	if c.Gmail.UserID == "" {
		c.Gmail.UserID = "me"
	}
	if c.IMAP.Mailbox == "" {
		c.IMAP.Mailbox = "INBOX"
	}
	if c.IMAP.SMTPServer == "" && c.IMAP.Server != "" {
		c.IMAP.SMTPServer = smtpFromIMAP(c.IMAP.Server)
	}
}

// LLMSettings converts the llm section into client configuration
func (c *Config) LLMSettings() *llm.Config {
	cfg := &llm.Config{
		Provider:          c.LLM.Provider,
		Model:             c.LLM.Model,
		APIKey:            c.LLM.APIKey,
		Endpoint:          c.LLM.Endpoint,
		MaxTokens:         c.LLM.MaxTokens,
		Temperature:       c.LLM.Temperature,
		Timeout:           c.LLM.Timeout,
		RetryCount:        c.LLM.RetryCount,
		RequestsPerMinute: c.LLM.RequestsPerMinute,
	}
	if c.LLM.FallbackProvider != "" && c.LLM.FallbackProvider != "disabled" {
		cfg.Fallback = &llm.Config{
			Provider:    c.LLM.FallbackProvider,
			Model:       c.LLM.FallbackModel,
			APIKey:      c.LLM.FallbackAPIKey,
			Endpoint:    c.LLM.FallbackEndpoint,
			MaxTokens:   c.LLM.MaxTokens,
			Temperature: c.LLM.Temperature,
			Timeout:     c.LLM.Timeout,
			RetryCount:  c.LLM.RetryCount,
		}
	}
	return cfg
}

// ToJSON serializes the configuration to JSON with secrets redacted
func (c *Config) ToJSON() (string, error) {
	safe := *c
	safe.Gmail.ClientSecret = redact(safe.Gmail.ClientSecret)
	safe.Gmail.RefreshToken = redact(safe.Gmail.RefreshToken)
	safe.IMAP.Password = redact(safe.IMAP.Password)
	safe.LLM.APIKey = redact(safe.LLM.APIKey)
	safe.LLM.FallbackAPIKey = redact(safe.LLM.FallbackAPIKey)
	safe.Notify.TelegramToken = redact(safe.Notify.TelegramToken)

	data, err := json.MarshalIndent(safe, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return "***"
	}
	return value[:4] + "***" + value[len(value)-4:]
}

func requiresAPIKey(provider string) bool {
	switch provider {
	case "openai", "anthropic", "gemini":
		return true
	default:
		return false
	}
}

// providerKeyFromEnv reads the vendor's conventional key variable
func providerKeyFromEnv(provider string) string {
	switch provider {
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			return key
		}
		return os.Getenv("GOOGLE_API_KEY")
	default:
		return ""
	}
}

// smtpFromIMAP guesses the submission host for well-known providers
func smtpFromIMAP(server string) string {
	host := server
	if i := strings.LastIndex(host, ":"); i >= 0 {
		host = host[:i]
	}
	if strings.HasPrefix(host, "imap.") {
		return "smtp." + strings.TrimPrefix(host, "imap.") + ":465"
	}
	return ""
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
