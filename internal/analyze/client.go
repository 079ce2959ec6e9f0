// Package analyze calls the external structured-extraction service. The
// service speaks an OpenAI-compatible chat-completions protocol and returns
// a schema-validated JSON object plus a confidence signal.
package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/docmill/docmill/internal/logger"
)

// Result is the validated output of one extraction call.
type Result struct {
	DocumentType string          `json:"document_type"`
	Fields       json.RawMessage `json:"fields"`
	Confidence   float64         `json:"confidence"`
}

// Analyzer extracts structured fields from document text.
type Analyzer interface {
	Analyze(ctx context.Context, documentType, text string) (*Result, error)
}

// Config configures the extraction service client.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

// Client is an HTTP client for an OpenAI-compatible extraction endpoint.
type Client struct {
	cfg  Config
	http *http.Client
}

// NewClient creates an extraction client. Timeout bounds every call,
// including the high-latency model round trip.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 90 * time.Second
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

const systemPrompt = "You are a document extraction engine. " +
	"Return ONLY a JSON object with keys document_type (string), fields (object of extracted values) " +
	"and confidence (number between 0 and 1). No prose, no markdown."

// Analyze sends the extracted text to the service and validates the answer.
func (c *Client) Analyze(ctx context.Context, documentType, text string) (*Result, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": fmt.Sprintf("Document type hint: %s\n\nDocument text:\n%s", documentType, text)},
		},
	}

	raw, err := c.post(ctx, strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions", body)
	if err != nil {
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("no choices in extraction response")
	}

	content := []byte(strings.TrimSpace(cc.Choices[0].Message.Content))
	if err := validateResult(content); err != nil {
		return nil, err
	}

	var out Result
	if err := json.Unmarshal(content, &out); err != nil {
		return nil, fmt.Errorf("unmarshal extraction result: %w", err)
	}

	logger.Logger.Info().
		Str("model", c.cfg.Model).
		Str("document_type", out.DocumentType).
		Float64("confidence", out.Confidence).
		Int64("elapsed_ms", time.Since(start).Milliseconds()).
		Msg("Extraction call succeeded")
	return &out, nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction service request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read extraction response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("extraction service status %d", resp.StatusCode)
	}
	return data, nil
}
