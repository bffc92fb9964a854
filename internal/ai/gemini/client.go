package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/yegors/interview-scribe/internal/ai"
	"github.com/yegors/interview-scribe/pkg/logger"
)

// Client represents a Google Gemini API client
type Client struct {
	models *genai.Models
	logger *logger.Logger
}

// NewClient creates a new Gemini client. baseURL is optional and only used to
// point the SDK at a different endpoint.
func NewClient(ctx context.Context, apiKey, baseURL string, log *logger.Logger) (*Client, error) {
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &Client{
		models: client.Models,
		logger: log.Named("gemini"),
	}, nil
}

// ChatCompletion implements ai.ChatProvider on top of GenerateContent
func (c *Client) ChatCompletion(ctx context.Context, messages []ai.ChatMessage, config ai.ChatConfig) (string, error) {
	var contents []*genai.Content
	var system []string

	for _, msg := range messages {
		switch msg.Role {
		case ai.RoleSystem:
			system = append(system, msg.Content)
		case ai.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}

	temperature := float32(config.Temperature)
	gen := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(config.MaxTokens),
	}
	if len(system) > 0 {
		gen.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	c.logger.Debug("Sending generate content",
		logger.String("model", config.Model),
		logger.Int("messages", len(contents)))

	resp, err := c.models.GenerateContent(ctx, config.Model, contents, gen)
	if err != nil {
		return "", fmt.Errorf("gemini generate content failed: %w", err)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", ai.ErrEmptyResponse
	}
	return text, nil
}
