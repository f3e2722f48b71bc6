// Package narrative asks an OpenAI-compatible chat model for a short market
// commentary.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Placeholder is returned in place of a commentary when no API key is configured.
const Placeholder = "Market commentary unavailable (narrative generator not configured)."

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gpt-4o-mini"

const systemPrompt = "You are a concise markets editor. Given a daily digest of key indicators, " +
	"write at most 3 sentences describing the session in risk-on / risk-off terms. " +
	"Do not give investment advice. Reply in plain text without markdown."

// ErrEmptyResponse is returned when the model answered with no content.
var ErrEmptyResponse = errors.New("empty completion")

// Config holds the narrative generator settings.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client produces narratives. A client without an API key never calls out.
type Client struct {
	api    *openai.Client
	config Config
}

// New creates a narrative client from config.
func New(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.MaxTokens <= 0 {
		config.MaxTokens = 200
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	c := &Client{config: config}
	if config.APIKey == "" {
		return c
	}

	apiConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		apiConfig.BaseURL = strings.TrimRight(config.BaseURL, "/")
	}
	if config.HTTPClient != nil {
		apiConfig.HTTPClient = config.HTTPClient
	}
	c.api = openai.NewClientWithConfig(apiConfig)
	return c
}

// Enabled reports whether the client will call the model.
func (c *Client) Enabled() bool {
	return c.api != nil
}

// Summarize returns the model's commentary for digest, or Placeholder when
// the client has no API key.
func (c *Client) Summarize(ctx context.Context, digest string) (string, error) {
	if c.api == nil {
		return Placeholder, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: digest},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
