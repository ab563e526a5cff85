// Package provider talks to OpenAI-compatible APIs: chat completions for the
// conversation itself and audio transcriptions for voice notes.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"telebridge/internal/domain"
	"telebridge/internal/metrics"
)

// Client implements domain.Provider and domain.Transcriber against a single
// OpenAI-compatible endpoint.
type Client struct {
	apiKey             string
	apiBase            string
	model              string
	transcriptionModel string
	maxTokens          int
	temperature        float64
	client             *http.Client
	logger             *slog.Logger
	recorder           *metrics.Recorder
}

type ClientConfig struct {
	APIKey             string
	APIBase            string
	Model              string
	TranscriptionModel string
	MaxTokens          int
	Temperature        float64
	Timeout            time.Duration
	Logger             *slog.Logger
	Recorder           *metrics.Recorder
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.TranscriptionModel == "" {
		cfg.TranscriptionModel = "gpt-4o-mini-transcribe"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		apiKey:             cfg.APIKey,
		apiBase:            strings.TrimSuffix(cfg.APIBase, "/"),
		model:              cfg.Model,
		transcriptionModel: cfg.TranscriptionModel,
		maxTokens:          cfg.MaxTokens,
		temperature:        cfg.Temperature,
		client:             SharedHTTPClient(cfg.Timeout),
		logger:             cfg.Logger,
		recorder:           cfg.Recorder,
	}
}

func (c *Client) Model() string { return c.model }

// Healthy checks reachability and key validity without spending tokens.
func (c *Client) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.apiBase+"/models", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("openai not reachable: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("openai: invalid API key")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("openai returned %d", resp.StatusCode)
	}
	return nil
}

// Turns marshal straight into the wire shape: content is either a JSON
// string or a part array, depending on what the chat accumulated.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []domain.Turn `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Generate sends the whole conversation and returns the model's reply with
// surrounding whitespace trimmed.
func (c *Client) Generate(ctx context.Context, turns []domain.Turn) (string, error) {
	body := chatRequest{
		Model:    c.model,
		Messages: turns,
	}
	if c.maxTokens > 0 {
		body.MaxTokens = c.maxTokens
	}
	if c.temperature > 0 {
		body.Temperature = &c.temperature
	}

	jsonBody, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.apiBase+"/chat/completions", bytes.NewReader(jsonBody))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("openai %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	elapsed := time.Since(start)
	if c.recorder != nil {
		c.recorder.RecordModelCall(elapsed, parsed.Usage.PromptTokens, parsed.Usage.CompletionTokens)
	}
	c.logger.Debug("chat completion",
		"model", c.model,
		"turns", len(turns),
		"duration_ms", elapsed.Milliseconds(),
		"prompt_tokens", parsed.Usage.PromptTokens,
		"completion_tokens", parsed.Usage.CompletionTokens,
	)

	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
