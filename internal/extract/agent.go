package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultAgentBaseURL = "https://openrouter.ai/api/v1"
	agentSystemPrompt   = "You are a precise data extraction expert. " +
		"Extract ONLY the requested information. " +
		"Return valid JSON. Be accurate and concise."

	maxAgentContentChars = 8000
	agentTemperature     = 0.3
	agentMaxTokens       = 2048
)

// ErrAgentNotConfigured is returned when agent mode is used without an API key.
var ErrAgentNotConfigured = errors.New("agent api key not configured")

type agentClient struct {
	apiKey       string
	baseURL      string
	defaultModel string
	httpClient   *http.Client
}

func newAgentClient(cfg Config) *agentClient {
	baseURL := strings.TrimRight(cfg.AgentBaseURL, "/")
	if baseURL == "" {
		baseURL = defaultAgentBaseURL
	}
	return &agentClient{
		apiKey:       cfg.AgentAPIKey,
		baseURL:      baseURL,
		defaultModel: cfg.DefaultModel,
		httpClient:   &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Instruct sends the page content and a natural-language instruction to the
// configured chat-completions endpoint and returns the model output. Content
// is truncated to fit the model's token budget.
func (e *Extractor) Instruct(ctx context.Context, content, instruction, model string) (string, error) {
	c := e.agent
	if c.apiKey == "" {
		return "", ErrAgentNotConfigured
	}
	if model == "" {
		model = c.defaultModel
	}
	if len(content) > maxAgentContentChars {
		content = content[:maxAgentContentChars]
	}

	body, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: agentSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("%s\n\nPage content:\n%s", instruction, content)},
		},
		Temperature: agentTemperature,
		MaxTokens:   agentMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		c.baseURL+"/chat/completions",
		bytes.NewReader(body),
	)
	if err != nil {
		return "", fmt.Errorf("new chat request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return "", fmt.Errorf("read chat response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat completion status %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat completion error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
