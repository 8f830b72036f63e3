package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/unitedwerise/backend/internal/logger"
	"github.com/unitedwerise/backend/internal/metrics"
	"go.uber.org/zap"
)

const apiVersion = "2024-02-15-preview"

var ErrNotConfigured = errors.New("azure openai not configured")

// Client talks to Azure OpenAI deployments over HTTP.
// One client serves chat (moderation, stance analysis, summaries) and
// embeddings (semantic similarity, topic clustering).
type Client struct {
	endpoint        string
	apiKey          string
	chatDeployment  string
	embedDeployment string
	httpClient      *http.Client
}

// NewClientFromEnv creates a client from AZURE_OPENAI_* environment variables
func NewClientFromEnv() (*Client, error) {
	endpoint := strings.TrimRight(os.Getenv("AZURE_OPENAI_ENDPOINT"), "/")
	apiKey := os.Getenv("AZURE_OPENAI_API_KEY")
	if endpoint == "" || apiKey == "" {
		return nil, ErrNotConfigured
	}

	chatDeployment := os.Getenv("AZURE_OPENAI_CHAT_DEPLOYMENT")
	if chatDeployment == "" {
		chatDeployment = "gpt-4o-mini"
	}
	embedDeployment := os.Getenv("AZURE_OPENAI_EMBED_DEPLOYMENT")
	if embedDeployment == "" {
		embedDeployment = "text-embedding-ada-002"
	}

	return &Client{
		endpoint:        endpoint,
		apiKey:          apiKey,
		chatDeployment:  chatDeployment,
		embedDeployment: embedDeployment,
		httpClient:      &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// NewClient creates a client with explicit settings (used by tests)
func NewClient(endpoint, apiKey, chatDeployment, embedDeployment string) *Client {
	return &Client{
		endpoint:        strings.TrimRight(endpoint, "/"),
		apiKey:          apiKey,
		chatDeployment:  chatDeployment,
		embedDeployment: embedDeployment,
		httpClient:      &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *apiError `json:"error"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ChatCompletion sends a system+user prompt pair and returns the raw reply text
func (c *Client) ChatCompletion(ctx context.Context, system, user string, maxTokens int) (string, error) {
	return c.chat(ctx, system, user, maxTokens, nil)
}

// ChatCompletionJSON forces a JSON object reply and unmarshals it into dest
func (c *Client) ChatCompletionJSON(ctx context.Context, system, user string, maxTokens int, dest interface{}) error {
	reply, err := c.chat(ctx, system, user, maxTokens, &responseFormat{Type: "json_object"})
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(reply), dest); err != nil {
		return fmt.Errorf("ai: unmarshal chat reply: %w", err)
	}
	return nil
}

func (c *Client) chat(ctx context.Context, system, user string, maxTokens int, format *responseFormat) (string, error) {
	reqBody := chatRequest{
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:      maxTokens,
		Temperature:    0.2,
		ResponseFormat: format,
	}

	var result chatResponse
	if err := c.post(ctx, c.chatDeployment, "chat/completions", reqBody, &result); err != nil {
		return "", err
	}

	if result.Error != nil {
		return "", fmt.Errorf("ai: azure openai error: %s: %s", result.Error.Code, result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", errors.New("ai: empty chat response")
	}

	return result.Choices[0].Message.Content, nil
}

// post issues a request against an Azure OpenAI deployment operation
func (c *Client) post(ctx context.Context, deployment, operation string, payload interface{}, dest interface{}) error {
	m := metrics.Get()
	start := time.Now()

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ai: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/openai/deployments/%s/%s?api-version=%s", c.endpoint, deployment, operation, apiVersion)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("ai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		m.ExternalRequestsTotal.WithLabelValues("azure_openai", operation, "error").Inc()
		return fmt.Errorf("ai: send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("ai: read response: %w", err)
	}

	status := "success"
	if resp.StatusCode >= 400 {
		status = "error"
	}
	m.ExternalRequestsTotal.WithLabelValues("azure_openai", operation, status).Inc()
	m.ExternalRequestDuration.WithLabelValues("azure_openai", operation).Observe(time.Since(start).Seconds())

	if resp.StatusCode >= 400 {
		logger.Log.Warn("Azure OpenAI request failed",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
		)
		// Error payloads still decode into dest's Error field when present
	}

	if err := json.Unmarshal(respBody, dest); err != nil {
		return fmt.Errorf("ai: unmarshal response (status %d): %w", resp.StatusCode, err)
	}

	return nil
}
