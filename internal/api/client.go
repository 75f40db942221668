// Package api talks to the Gemini model through the official genai SDK.
package api

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	apperrors "github.com/diogo/geminichat/internal/errors"
	"github.com/diogo/geminichat/internal/models"
)

// ChatClient is the model capability used by the dispatcher: it takes the
// prior history plus a new message and returns the model's reply text.
// Transient failures are retried inside Send; the returned error is a
// *errors.TransportError carrying the transient/permanent split.
type ChatClient interface {
	Send(ctx context.Context, history []models.Turn, message string, maxTokens int) (string, error)
	ModelName() string
}

// generateFunc matches genai's Models.GenerateContent.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiClient implements ChatClient on top of genai
type GeminiClient struct {
	mu       sync.RWMutex
	model    models.Model
	baseURL  string
	retry    RetryConfig
	generate generateFunc
}

// Ensure GeminiClient implements ChatClient
var _ ChatClient = (*GeminiClient)(nil)

// ClientOption is a function that configures the client
type ClientOption func(*GeminiClient)

// WithModel sets the model for the client
func WithModel(model models.Model) ClientOption {
	return func(c *GeminiClient) {
		c.model = model
	}
}

// WithBaseURL points the client at a different API endpoint
func WithBaseURL(baseURL string) ClientOption {
	return func(c *GeminiClient) {
		c.baseURL = baseURL
	}
}

// WithRetry sets the retry policy for transient failures
func WithRetry(cfg RetryConfig) ClientOption {
	return func(c *GeminiClient) {
		c.retry = cfg
	}
}

// withGenerator replaces the SDK call, used by tests
func withGenerator(fn generateFunc) ClientOption {
	return func(c *GeminiClient) {
		c.generate = fn
	}
}

// NewClient creates a new GeminiClient. An empty API key yields
// ErrModelUnavailable without touching the network.
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*GeminiClient, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, apperrors.ErrModelUnavailable
	}

	client := &GeminiClient{
		model: models.DefaultModel,
		retry: DefaultRetryConfig(),
	}

	for _, opt := range opts {
		opt(client)
	}

	if client.generate == nil {
		sdk, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:      apiKey,
			Backend:     genai.BackendGeminiAPI,
			HTTPOptions: genai.HTTPOptions{BaseURL: client.baseURL},
		})
		if err != nil {
			return nil, errors.Wrap(err, "creating genai client")
		}
		client.generate = sdk.Models.GenerateContent
	}

	log.Debug().Str("model", client.model.Name).Msg("Gemini client ready")
	return client, nil
}

// ModelName returns the configured model name
func (c *GeminiClient) ModelName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.model.Name
}

// SetModel changes the model used by subsequent requests
func (c *GeminiClient) SetModel(model models.Model) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.model = model
}
