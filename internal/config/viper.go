package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every structured environment variable
const EnvPrefix = "MAIL_AGENT"

// DefaultBlacklist holds sender fragments that never get an automatic reply
var DefaultBlacklist = []string{"noreply@", "no-reply@", "donotreply@"}

// legacyEnv maps config keys to the short variable names that predate the
// MAIL_AGENT_ prefix. The prefixed name wins when both are set.
var legacyEnv = map[string][]string{
	"mailbox.provider":         {"MAILBOX_PROVIDER"},
	"gmail.client_id":          {"GMAIL_CLIENT_ID"},
	"gmail.client_secret":      {"GMAIL_CLIENT_SECRET"},
	"gmail.credentials_file":   {"GMAIL_CREDENTIALS_FILE"},
	"gmail.refresh_token":      {"GMAIL_REFRESH_TOKEN"},
	"gmail.token_file":         {"GMAIL_TOKEN_FILE"},
	"imap.server":              {"IMAP_SERVER"},
	"imap.smtp_server":         {"SMTP_SERVER"},
	"imap.username":            {"IMAP_USERNAME", "EMAIL_ADDRESS"},
	"imap.password":            {"IMAP_PASSWORD", "EMAIL_PASSWORD"},
	"agent.check_interval":     {"CHECK_INTERVAL"},
	"agent.dry_run":            {"DRY_RUN"},
	"agent.whitelist":          {"WHITELIST"},
	"agent.blacklist":          {"BLACKLIST"},
	"llm.provider":             {"LLM_PROVIDER"},
	"llm.model":                {"LLM_MODEL"},
	"llm.api_key":              {"LLM_API_KEY"},
	"llm.endpoint":             {"LLM_ENDPOINT"},
	"llm.timeout":              {"LLM_TIMEOUT"},
	"llm.retry_count":          {"LLM_RETRY_COUNT"},
	"log.level":                {"LOG_LEVEL"},
	"notify.telegram_token":    {"TELEGRAM_BOT_TOKEN"},
	"notify.telegram_chat_id":  {"TELEGRAM_CHAT_ID"},
	"server.addr":              {"STATUS_ADDR"},
	"llm.fallback_api_key":     {"LLM_FALLBACK_API_KEY"},
	"llm.fallback_provider":    {"LLM_FALLBACK_PROVIDER"},
	"agent.processing_timeout": {"PROCESSING_TIMEOUT"},
}

// Load reads configuration from defaults, an optional config file, an
// optional .env file and the environment. configFile and envFile may be empty.
func Load(configFile, envFile string) (*Config, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return nil, err
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	}
	return LoadWithViper(v)
}

// LoadEnvFile loads variables from a .env file without overriding the
// environment. An empty name reads ./.env when it exists.
func LoadEnvFile(envFile string) error {
	if envFile == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}
		return nil
	}

	if err := godotenv.Load(envFile); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", envFile, err)
	}
	return nil
}

// LoadWithViper loads configuration using the given Viper instance. Callers
// may bind CLI flags on v before calling.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	setupEnvBinding(v)

	if err := loadConfigFile(v); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	config := &Config{}
	if err := unmarshalConfig(v, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.SetDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mailbox.provider", "gmail")

	v.SetDefault("gmail.credentials_file", "")
	v.SetDefault("gmail.token_file", "token.json")
	v.SetDefault("gmail.user_id", "me")
	v.SetDefault("gmail.request_timeout", "30s")

	v.SetDefault("imap.mailbox", "INBOX")
	v.SetDefault("imap.dial_timeout", "30s")

	v.SetDefault("agent.check_interval", "60s")
	v.SetDefault("agent.processing_timeout", "10m")
	v.SetDefault("agent.dry_run", false)
	v.SetDefault("agent.max_results", 100)
	v.SetDefault("agent.query", "is:unread")
	v.SetDefault("agent.blacklist", strings.Join(DefaultBlacklist, ","))

	v.SetDefault("llm.provider", "disabled")
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.temperature", 0.3)
	v.SetDefault("llm.timeout", "60s")
	v.SetDefault("llm.retry_count", 2)
	v.SetDefault("llm.requests_per_minute", 0)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.dir", "logs")

	v.SetDefault("server.shutdown_timeout", "10s")
}

// configKeys lists every key that can come from the environment
var configKeys = []string{
	"mailbox.provider",
	"gmail.client_id", "gmail.client_secret", "gmail.credentials_file",
	"gmail.refresh_token", "gmail.token_file", "gmail.user_id", "gmail.request_timeout",
	"imap.server", "imap.smtp_server", "imap.username", "imap.password",
	"imap.mailbox", "imap.dial_timeout",
	"agent.check_interval", "agent.processing_timeout", "agent.dry_run",
	"agent.max_results", "agent.query", "agent.whitelist", "agent.blacklist",
	"agent.spam_keywords", "agent.spam_senders",
	"llm.provider", "llm.model", "llm.api_key", "llm.endpoint", "llm.max_tokens",
	"llm.temperature", "llm.timeout", "llm.retry_count", "llm.requests_per_minute",
	"llm.fallback_provider", "llm.fallback_model", "llm.fallback_api_key", "llm.fallback_endpoint",
	"log.level", "log.format", "log.dir", "log.sqlite_path",
	"notify.telegram_token", "notify.telegram_chat_id",
	"server.addr", "server.shutdown_timeout",
}

func setupEnvBinding(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)

	for _, key := range configKeys {
		names := []string{key, EnvName(key)}
		names = append(names, legacyEnv[key]...)
		// The first argument is the key; the rest are tried in order.
		v.BindEnv(names...)
	}
}

// EnvName returns the prefixed environment variable for a config key
func EnvName(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func loadConfigFile(v *viper.Viper) error {
	if v.ConfigFileUsed() == "" {
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("$HOME/.mail-agent")
		v.SetConfigName("mail-agent")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return err
		}
	}

	return nil
}

func unmarshalConfig(v *viper.Viper, config *Config) error {
	var err error

	config.Mailbox.Provider = strings.ToLower(v.GetString("mailbox.provider"))

	config.Gmail.ClientID = v.GetString("gmail.client_id")
	config.Gmail.ClientSecret = v.GetString("gmail.client_secret")
	config.Gmail.CredentialsFile = v.GetString("gmail.credentials_file")
	config.Gmail.RefreshToken = v.GetString("gmail.refresh_token")
	config.Gmail.TokenFile = v.GetString("gmail.token_file")
	config.Gmail.UserID = v.GetString("gmail.user_id")
	if config.Gmail.RequestTimeout, err = getDuration(v, "gmail.request_timeout"); err != nil {
		return err
	}

	config.IMAP.Server = v.GetString("imap.server")
	config.IMAP.SMTPServer = v.GetString("imap.smtp_server")
	config.IMAP.Username = v.GetString("imap.username")
	config.IMAP.Password = v.GetString("imap.password")
	config.IMAP.Mailbox = v.GetString("imap.mailbox")
	if config.IMAP.DialTimeout, err = getDuration(v, "imap.dial_timeout"); err != nil {
		return err
	}

	if config.Agent.CheckInterval, err = getDuration(v, "agent.check_interval"); err != nil {
		return err
	}
	if config.Agent.ProcessingTimeout, err = getDuration(v, "agent.processing_timeout"); err != nil {
		return err
	}
	config.Agent.DryRun = v.GetBool("agent.dry_run")
	config.Agent.MaxResults = v.GetInt64("agent.max_results")
	config.Agent.Query = v.GetString("agent.query")
	config.Agent.Whitelist = getStringSlice(v, "agent.whitelist")
	config.Agent.Blacklist = getStringSlice(v, "agent.blacklist")
	config.Agent.SpamKeywords = getStringSlice(v, "agent.spam_keywords")
	config.Agent.SpamSenders = getStringSlice(v, "agent.spam_senders")

	config.LLM.Provider = strings.ToLower(v.GetString("llm.provider"))
	config.LLM.Model = v.GetString("llm.model")
	config.LLM.APIKey = v.GetString("llm.api_key")
	config.LLM.Endpoint = v.GetString("llm.endpoint")
	config.LLM.MaxTokens = v.GetInt("llm.max_tokens")
	config.LLM.Temperature = v.GetFloat64("llm.temperature")
	if config.LLM.Timeout, err = getDuration(v, "llm.timeout"); err != nil {
		return err
	}
	config.LLM.RetryCount = v.GetInt("llm.retry_count")
	config.LLM.RequestsPerMinute = v.GetInt("llm.requests_per_minute")
	config.LLM.FallbackProvider = strings.ToLower(v.GetString("llm.fallback_provider"))
	config.LLM.FallbackModel = v.GetString("llm.fallback_model")
	config.LLM.FallbackAPIKey = v.GetString("llm.fallback_api_key")
	config.LLM.FallbackEndpoint = v.GetString("llm.fallback_endpoint")

	config.Log.Level = strings.ToLower(v.GetString("log.level"))
	config.Log.Format = strings.ToLower(v.GetString("log.format"))
	config.Log.Dir = v.GetString("log.dir")
	config.Log.SQLitePath = v.GetString("log.sqlite_path")

	config.Notify.TelegramToken = v.GetString("notify.telegram_token")
	config.Notify.TelegramChatID = v.GetInt64("notify.telegram_chat_id")

	config.Server.Addr = v.GetString("server.addr")
	if config.Server.ShutdownTimeout, err = getDuration(v, "server.shutdown_timeout"); err != nil {
		return err
	}

	return nil
}

// getDuration parses a Go duration string. Bare integers are seconds.
func getDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// getStringSlice accepts a list from a config file or a comma-separated
// string from the environment. Unset keys return nil.
func getStringSlice(v *viper.Viper, key string) []string {
	switch value := v.Get(key).(type) {
	case nil:
		return nil
	case []string:
		return cleanSlice(value)
	case []interface{}:
		items := make([]string, 0, len(value))
		for _, item := range value {
			items = append(items, fmt.Sprint(item))
		}
		return cleanSlice(items)
	case string:
		return parseStringSlice(value)
	default:
		return parseStringSlice(fmt.Sprint(value))
	}
}

// parseStringSlice parses comma-separated string into slice
func parseStringSlice(s string) []string {
	return cleanSlice(strings.Split(s, ","))
}

func cleanSlice(items []string) []string {
	parts := []string{}
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
