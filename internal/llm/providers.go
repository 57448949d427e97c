package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// completer sends one prompt to a model and returns its text
type completer interface {
	complete(ctx context.Context, prompt string) (string, error)
	name() string
}

// StatusError is returned when a provider answers with a non-200 status
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Provider, e.StatusCode, e.Body)
}

const maxErrorBody = 300

// postJSON sends body as JSON and decodes a 200 response into out
func postJSON(ctx context.Context, client *http.Client, provider, endpoint string, headers map[string]string, body, out any) error {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		excerpt := string(respBody)
		if len(excerpt) > maxErrorBody {
			excerpt = excerpt[:maxErrorBody]
		}
		return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: strings.TrimSpace(excerpt)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type openAICompleter struct {
	config     *Config
	httpClient *http.Client
}

func (o *openAICompleter) name() string { return "openai" }

func (o *openAICompleter) complete(ctx context.Context, prompt string) (string, error) {
	requestBody := map[string]any{
		"model": o.config.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": o.config.Temperature,
		"max_tokens":  o.config.MaxTokens,
	}

	var resp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}

	headers := map[string]string{"Authorization": "Bearer " + o.config.APIKey}
	if err := postJSON(ctx, o.httpClient, o.name(), o.config.Endpoint+"/chat/completions", headers, requestBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

type anthropicCompleter struct {
	config     *Config
	httpClient *http.Client
}

func (a *anthropicCompleter) name() string { return "anthropic" }

func (a *anthropicCompleter) complete(ctx context.Context, prompt string) (string, error) {
	requestBody := map[string]any{
		"model":      a.config.Model,
		"max_tokens": a.config.MaxTokens,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": a.config.Temperature,
	}

	var resp struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}

	headers := map[string]string{
		"x-api-key":         a.config.APIKey,
		"anthropic-version": "2023-06-01",
	}
	if err := postJSON(ctx, a.httpClient, a.name(), a.config.Endpoint+"/messages", headers, requestBody, &resp); err != nil {
		return "", err
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("anthropic returned no text content")
	}
	return text.String(), nil
}

type ollamaCompleter struct {
	config     *Config
	httpClient *http.Client
}

func (o *ollamaCompleter) name() string { return "ollama" }

func (o *ollamaCompleter) complete(ctx context.Context, prompt string) (string, error) {
	requestBody := map[string]any{
		"model":  o.config.Model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": o.config.Temperature,
			"num_predict": o.config.MaxTokens,
		},
	}

	var resp struct {
		Response string `json:"response"`
		Done     bool   `json:"done"`
	}

	headers := map[string]string{}
	if o.config.APIKey != "" {
		headers["Authorization"] = "Bearer " + o.config.APIKey
	}
	if err := postJSON(ctx, o.httpClient, o.name(), o.config.Endpoint+"/api/generate", headers, requestBody, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

type geminiCompleter struct {
	config     *Config
	httpClient *http.Client
}

func (g *geminiCompleter) name() string { return "gemini" }

func (g *geminiCompleter) complete(ctx context.Context, prompt string) (string, error) {
	requestBody := map[string]any{
		"contents": []map[string]any{
			{"parts": []map[string]string{{"text": prompt}}},
		},
		"generationConfig": map[string]any{
			"temperature":     g.config.Temperature,
			"maxOutputTokens": g.config.MaxTokens,
		},
	}

	var resp struct {
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		g.config.Endpoint, url.PathEscape(g.config.Model), url.QueryEscape(g.config.APIKey))
	if err := postJSON(ctx, g.httpClient, g.name(), endpoint, nil, requestBody, &resp); err != nil {
		return "", err
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	return resp.Candidates[0].Content.Parts[0].Text, nil
}

// newCompleter builds the transport for config.Provider
func newCompleter(config *Config) (completer, error) {
	httpClient := &http.Client{Timeout: config.Timeout}

	switch strings.ToLower(config.Provider) {
	case "openai":
		return &openAICompleter{config: config, httpClient: httpClient}, nil
	case "anthropic":
		return &anthropicCompleter{config: config, httpClient: httpClient}, nil
	case "ollama":
		return &ollamaCompleter{config: config, httpClient: httpClient}, nil
	case "gemini":
		return &geminiCompleter{config: config, httpClient: httpClient}, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", config.Provider)
	}
}
