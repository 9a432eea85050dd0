package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrGeneration wraps every failure of the text generation service.
var ErrGeneration = errors.New("generation failed")

// Embedder turns text into a fixed-size vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dim() int
}

// Generator produces a response for a system instruction and a user prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Client provides both embedding and generation capabilities
type Client interface {
	Embedder
	Generator
}

// Provider is enumeration of supported AI providers
type Provider string

const (
	ProviderOpenAI   Provider = "openai"
	ProviderVertexAI Provider = "vertexai"
	ProviderStub     Provider = "stub"
)

const (
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 1000
)

// ClientConfig holds configuration for AI clients
type ClientConfig struct {
	Provider    Provider
	APIKey      string
	EmbedModel  string
	GenModel    string
	Dim         int
	ProjectID   string
	Location    string
	Temperature float32
	MaxTokens   int
}

// Validate checks the configuration for the selected provider.
func (c *ClientConfig) Validate() error {
	if c == nil {
		return errors.New("client config is required")
	}
	if c.Dim < 0 {
		return fmt.Errorf("embedding dimension must not be negative, got %d", c.Dim)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be within [0, 2], got %v", c.Temperature)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("max tokens must not be negative, got %d", c.MaxTokens)
	}
	switch c.Provider {
	case ProviderOpenAI:
		if strings.TrimSpace(c.APIKey) == "" {
			return errors.New("openai provider requires an API key")
		}
	case ProviderVertexAI:
		if strings.TrimSpace(c.APIKey) == "" && strings.TrimSpace(c.ProjectID) == "" {
			return errors.New("vertexai provider requires a project ID or an API key")
		}
	case ProviderStub:
	default:
		return errors.New("unsupported provider: " + string(c.Provider))
	}
	return nil
}

func (c *ClientConfig) generationDefaults() {
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
}

// NewClient creates a new AI client based on configuration
func NewClient(ctx context.Context, config *ClientConfig) (Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	switch config.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(config), nil
	case ProviderVertexAI:
		return NewVertexAIClient(ctx, config)
	default:
		return NewStubClient(config.Dim), nil
	}
}

// StubClient returns zero vectors and echoes prompts. It needs no network.
type StubClient struct {
	dim int
}

// NewStubClient creates a new StubClient
func NewStubClient(dim int) *StubClient {
	return &StubClient{dim: dim}
}

// Embed implements Embedder.
func (s *StubClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return make([]float32, s.dim), nil
}

// Generate implements Generator.
func (s *StubClient) Generate(ctx context.Context, system, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	return strings.TrimSpace(prompt), nil
}

// Dim returns the embedding dimension
func (s *StubClient) Dim() int {
	return s.dim
}
