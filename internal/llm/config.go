package llm

import "time"

// Config holds model provider configuration
type Config struct {
	Provider    string        `json:"provider"` // "openai", "anthropic", "ollama", "gemini", "disabled"
	Model       string        `json:"model"`
	APIKey      string        `json:"api_key"`
	Endpoint    string        `json:"endpoint"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Timeout     time.Duration `json:"timeout"`
	RetryCount  int           `json:"retry_count"`

	// RequestsPerMinute caps outgoing calls; zero disables limiting
	RequestsPerMinute int `json:"requests_per_minute"`

	// Fallback is tried when every attempt against the primary fails
	Fallback *Config `json:"fallback,omitempty"`
}

// DefaultConfig returns a configuration with the model disabled
func DefaultConfig() *Config {
	return &Config{
		Provider:    "disabled",
		MaxTokens:   1000,
		Temperature: 0.3,
		Timeout:     60 * time.Second,
		RetryCount:  2,
	}
}

// DefaultModel returns the model used when none is configured
func DefaultModel(provider string) string {
	switch provider {
	case "openai":
		return "gpt-4o-mini"
	case "anthropic":
		return "claude-3-5-haiku-latest"
	case "ollama":
		return "llama3.2"
	case "gemini":
		return "gemini-2.5-flash"
	default:
		return ""
	}
}

// DefaultEndpoint returns the base URL used when none is configured
func DefaultEndpoint(provider string) string {
	switch provider {
	case "openai":
		return "https://api.openai.com/v1"
	case "anthropic":
		return "https://api.anthropic.com/v1"
	case "ollama":
		return "http://localhost:11434"
	case "gemini":
		return "https://generativelanguage.googleapis.com/v1beta"
	default:
		return ""
	}
}
