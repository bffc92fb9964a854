package transcription

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yegors/interview-scribe/pkg/logger"
)

// Client sends one audio file to a speech-to-text service
type Client interface {
	Transcribe(ctx context.Context, filename string, audio []byte) (*RawTranscript, error)
}

// DefaultOpenAIBase is used when no base URL is configured
var DefaultOpenAIBase = "https://api.openai.com"

// OpenAIClient calls the OpenAI audio transcription endpoint
type OpenAIClient struct {
	apiKey     string
	model      string
	language   string
	httpClient *http.Client
	logger     *logger.Logger
	// Stored without a trailing slash
	baseURL string
}

// NewOpenAIClient creates a new OpenAI client
// The client will determine the base URL to use in the following order:
// 1. If the optional `baseURL` parameter is provided (non-empty), it will be used.
// 2. If the environment variable OPENAI_API_BASE is set, it will be used.
// 3. Otherwise DefaultOpenAIBase ("https://api.openai.com") is used.
func NewOpenAIClient(apiKey, model, language string, timeoutSeconds int, log *logger.Logger, baseURL string) *OpenAIClient {
	timeout := time.Duration(timeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	if apiKey == "" {
		log.Warn("OpenAI API key is empty - transcription requests will be rejected")
	}
	if model == "" {
		model = "whisper-1"
	}

	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		if env := os.Getenv("OPENAI_API_BASE"); env != "" {
			base = env
		} else {
			base = DefaultOpenAIBase
		}
	}
	base = strings.TrimRight(base, "/")

	return &OpenAIClient{
		apiKey:   apiKey,
		model:    model,
		language: language,
		logger:   log.Named("openai"),
		baseURL:  base,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Transcribe uploads audio as multipart form data and asks for verbose_json
// so the response carries per-segment timestamps
func (c *OpenAIClient) Transcribe(ctx context.Context, filename string, audio []byte) (*RawTranscript, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	fields := map[string]string{
		"model":                     c.model,
		"response_format":           "verbose_json",
		"timestamp_granularities[]": "segment",
	}
	if c.language != "" {
		fields["language"] = c.language
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	apiURL := c.baseURL + "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, "POST", apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))

	c.logger.Debug("Sending transcription request",
		logger.String("file", filename),
		logger.Int("bytes", len(audio)),
		logger.String("model", c.model))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d, response: %s", resp.StatusCode, string(respBody))
	}

	raw, err := decodeVerboseJSON(respBody)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Transcription response received",
		logger.String("file", filename),
		logger.Int("segments", len(raw.Segments)),
		logger.Float("audio_duration", raw.Duration),
		logger.Duration("elapsed", time.Since(start)))

	return raw, nil
}

type verboseJSONResponse struct {
	Text     string              `json:"text"`
	Language string              `json:"language"`
	Duration decimal.NullDecimal `json:"duration"`
	Segments []struct {
		Start decimal.Decimal `json:"start"`
		End   decimal.Decimal `json:"end"`
		Text  string          `json:"text"`
	} `json:"segments"`
}

// decodeVerboseJSON normalizes a verbose_json body. Timestamps may arrive as
// numbers or strings depending on the server, so both are accepted.
//
// A body with text but no segments becomes a single segment starting at 0
// and the transcript is marked Untimed. Merge drops such a segment for every
// window after the first because it starts inside the leading overlap, and
// reports it in MergeStats.Untimed.
func decodeVerboseJSON(body []byte) (*RawTranscript, error) {
	var resp verboseJSONResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	raw := &RawTranscript{
		Text:     strings.TrimSpace(resp.Text),
		Language: resp.Language,
		Segments: make([]Segment, 0, len(resp.Segments)),
	}
	if resp.Duration.Valid {
		raw.Duration = resp.Duration.Decimal.InexactFloat64()
	}

	for _, s := range resp.Segments {
		raw.Segments = append(raw.Segments, Segment{
			Start: s.Start.InexactFloat64(),
			End:   s.End.InexactFloat64(),
			Text:  strings.TrimSpace(s.Text),
		})
	}

	// Plain json responses carry text only
	if len(raw.Segments) == 0 && raw.Text != "" {
		raw.Segments = append(raw.Segments, Segment{Start: 0, End: raw.Duration, Text: raw.Text})
		raw.Untimed = true
	}

	return raw, nil
}
