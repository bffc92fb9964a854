package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yegors/interview-scribe/internal/ai"
	"github.com/yegors/interview-scribe/pkg/logger"
)

// DefaultBaseURL points at Groq's OpenAI-compatible endpoint
const DefaultBaseURL = "https://api.groq.com/openai"

// Client talks to any OpenAI-compatible chat completions API
type Client struct {
	apiKey     string
	logger     *logger.Logger
	baseURL    string
	httpClient *http.Client

	chatCompletionsPath string
}

// NewClient creates a new chat client
func NewClient(apiKey string, log *logger.Logger, baseURL string, timeoutSeconds int) *Client {
	// Determine base URL (prefer explicit parameter, then env, then default)
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		if env := os.Getenv("ANALYSIS_API_BASE"); env != "" {
			base = env
		} else {
			base = DefaultBaseURL
		}
	}
	base = strings.TrimRight(base, "/")

	if timeoutSeconds <= 0 {
		timeoutSeconds = 300
	}

	return &Client{
		apiKey:  apiKey,
		logger:  log.Named("openai"),
		baseURL: base,
		httpClient: &http.Client{
			Timeout: time.Duration(timeoutSeconds) * time.Second,
		},
		chatCompletionsPath: "/v1/chat/completions",
	}
}

// SetChatCompletionsPath overrides the path appended to the base URL
func (c *Client) SetChatCompletionsPath(path string) {
	if path != "" {
		c.chatCompletionsPath = path
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// apiError is the error envelope OpenAI-compatible services return
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// ChatCompletion implements ai.ChatProvider
func (c *Client) ChatCompletion(ctx context.Context, messages []ai.ChatMessage, config ai.ChatConfig) (string, error) {
	payload := chatRequest{
		Model:       config.Model,
		Messages:    make([]chatMessage, len(messages)),
		MaxTokens:   config.MaxTokens,
		Temperature: config.Temperature,
	}
	for i, msg := range messages {
		payload.Messages[i] = chatMessage{Role: msg.Role, Content: msg.Content}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.chatCompletionsPath, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		var apiErr apiError
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("chat completion failed: %s %s", resp.Status, apiErr.Error.Message)
		}
		return "", fmt.Errorf("chat completion failed: %s %s", resp.Status, string(raw))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(result.Choices) == 0 || strings.TrimSpace(result.Choices[0].Message.Content) == "" {
		return "", ai.ErrEmptyResponse
	}

	c.logger.Info("Chat completion finished",
		logger.String("model", config.Model),
		logger.Int("prompt_tokens", result.Usage.PromptTokens),
		logger.Int("completion_tokens", result.Usage.CompletionTokens),
		logger.String("finish_reason", result.Choices[0].FinishReason),
		logger.Duration("elapsed", time.Since(start)))

	return result.Choices[0].Message.Content, nil
}
