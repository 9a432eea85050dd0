package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
)

// MockTransport implements http.RoundTripper for testing
type MockTransport struct {
	mu        sync.Mutex
	responses map[string]mockResponse
	requests  []*http.Request
	bodies    []string
}

type mockResponse struct {
	status int
	body   string
}

func NewMockTransport() *MockTransport {
	return &MockTransport{responses: make(map[string]mockResponse)}
}

func (m *MockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := req.Context().Err(); err != nil {
		return nil, err
	}

	var body string
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		body = string(b)
	}
	m.requests = append(m.requests, req)
	m.bodies = append(m.bodies, body)

	key := fmt.Sprintf("%s %s", req.Method, req.URL.String())
	r, ok := m.responses[key]
	if !ok {
		r = mockResponse{status: 500, body: `{"error": {"message": "Mock not configured"}}`}
	}
	return &http.Response{
		StatusCode: r.status,
		Status:     fmt.Sprintf("%d %s", r.status, http.StatusText(r.status)),
		Body:       io.NopCloser(strings.NewReader(r.body)),
		Header:     make(http.Header),
	}, nil
}

func (m *MockTransport) AddResponse(method, url string, statusCode int, body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[fmt.Sprintf("%s %s", method, url)] = mockResponse{status: statusCode, body: body}
}

func (m *MockTransport) LastBody() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.bodies) == 0 {
		return ""
	}
	return m.bodies[len(m.bodies)-1]
}

// Helper function to create a client with mock transport
func createMockClient(transport *MockTransport) *OpenAIClient {
	client := NewOpenAIClient(&ClientConfig{
		Provider:  ProviderOpenAI,
		APIKey:    "test-api-key",
		ProjectID: "test-project",
	})
	client.http = &http.Client{Transport: transport}
	return client
}

func TestNewOpenAIClient_Defaults(t *testing.T) {
	tests := []struct {
		name      string
		config    *ClientConfig
		wantEmbed string
		wantGen   string
		wantDim   int
	}{
		{
			name:      "all defaults",
			config:    &ClientConfig{APIKey: "k"},
			wantEmbed: "text-embedding-3-small",
			wantGen:   "gpt-4o",
			wantDim:   1536,
		},
		{
			name:      "large embedding model",
			config:    &ClientConfig{APIKey: "k", EmbedModel: "text-embedding-3-large"},
			wantEmbed: "text-embedding-3-large",
			wantGen:   "gpt-4o",
			wantDim:   3072,
		},
		{
			name:      "explicit values kept",
			config:    &ClientConfig{APIKey: "k", EmbedModel: "custom", GenModel: "gpt-4o-mini", Dim: 256},
			wantEmbed: "custom",
			wantGen:   "gpt-4o-mini",
			wantDim:   256,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewOpenAIClient(tt.config)
			if c.config.EmbedModel != tt.wantEmbed {
				t.Errorf("EmbedModel = %q, want %q", c.config.EmbedModel, tt.wantEmbed)
			}
			if c.config.GenModel != tt.wantGen {
				t.Errorf("GenModel = %q, want %q", c.config.GenModel, tt.wantGen)
			}
			if c.Dim() != tt.wantDim {
				t.Errorf("Dim = %d, want %d", c.Dim(), tt.wantDim)
			}
			if c.config.Temperature != DefaultTemperature || c.config.MaxTokens != DefaultMaxTokens {
				t.Errorf("generation defaults not applied: %+v", c.config)
			}
		})
	}
}

func TestOpenAIClient_Embed(t *testing.T) {
	tests := []struct {
		name         string
		apiKey       string
		statusCode   int
		responseBody string
		errorMsg     string
		expectedLen  int
	}{
		{
			name:     "missing API key",
			errorMsg: "PROVIDER_API_KEY unset",
		},
		{
			name:         "successful embedding",
			apiKey:       "test-key",
			statusCode:   200,
			responseBody: `{"data": [{"embedding": [0.1, 0.2, 0.3]}]}`,
			expectedLen:  3,
		},
		{
			name:         "non-200 status code",
			apiKey:       "test-key",
			statusCode:   400,
			responseBody: `{"error": {"message": "Bad request"}}`,
			errorMsg:     "openai embedding: Bad request",
		},
		{
			name:         "non-200 without message",
			apiKey:       "test-key",
			statusCode:   429,
			responseBody: `{}`,
			errorMsg:     "429 Too Many Requests",
		},
		{
			name:         "invalid JSON response",
			apiKey:       "test-key",
			statusCode:   200,
			responseBody: `invalid json`,
			errorMsg:     "invalid character",
		},
		{
			name:         "empty data array",
			apiKey:       "test-key",
			statusCode:   200,
			responseBody: `{"data": []}`,
			errorMsg:     "no embedding",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := NewMockTransport()
			if tt.statusCode != 0 {
				transport.AddResponse("POST", openAIEmbeddingsURL, tt.statusCode, tt.responseBody)
			}
			client := NewOpenAIClient(&ClientConfig{APIKey: tt.apiKey, Dim: 3})
			client.http = &http.Client{Transport: transport}

			embedding, err := client.Embed(context.Background(), "texto")
			if tt.errorMsg != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errorMsg) {
					t.Fatalf("expected error containing %q, got %v", tt.errorMsg, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(embedding) != tt.expectedLen {
				t.Errorf("expected %d values, got %d", tt.expectedLen, len(embedding))
			}
		})
	}
}

func TestOpenAIClient_Generate(t *testing.T) {
	transport := NewMockTransport()
	transport.AddResponse("POST", openAIChatURL, 200,
		`{"choices": [{"message": {"content": "  Os perfis são três.  "}}]}`)
	client := createMockClient(transport)

	got, err := client.Generate(context.Background(), "Você é um assistente.", "Quais são os perfis?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Os perfis são três." {
		t.Errorf("Generate = %q", got)
	}

	var payload struct {
		Model       string              `json:"model"`
		Temperature float64             `json:"temperature"`
		MaxTokens   int                 `json:"max_tokens"`
		Messages    []map[string]string `json:"messages"`
	}
	if err := json.Unmarshal([]byte(transport.LastBody()), &payload); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if payload.Model != "gpt-4o" || payload.MaxTokens != 1000 {
		t.Errorf("unexpected payload %+v", payload)
	}
	if payload.Temperature < 0.69 || payload.Temperature > 0.71 {
		t.Errorf("temperature = %v", payload.Temperature)
	}
	if len(payload.Messages) != 2 || payload.Messages[0]["role"] != "system" || payload.Messages[1]["content"] != "Quais são os perfis?" {
		t.Errorf("unexpected messages %v", payload.Messages)
	}
}

func TestOpenAIClient_GenerateErrorsWrapErrGeneration(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		errorMsg string
	}{
		{"api error", 500, `{"error": {"message": "overloaded"}}`, "overloaded"},
		{"no choices", 200, `{"choices": []}`, "no choices"},
		{"bad json", 200, `{`, "unexpected EOF"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := NewMockTransport()
			transport.AddResponse("POST", openAIChatURL, tt.status, tt.body)
			client := createMockClient(transport)

			_, err := client.Generate(context.Background(), "", "pergunta")
			if !errors.Is(err, ErrGeneration) {
				t.Fatalf("expected ErrGeneration, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.errorMsg) {
				t.Errorf("expected error containing %q, got %v", tt.errorMsg, err)
			}
		})
	}
}

func TestOpenAIClient_GenerateWithoutSystem(t *testing.T) {
	transport := NewMockTransport()
	transport.AddResponse("POST", openAIChatURL, 200, `{"choices": [{"message": {"content": "ok"}}]}`)
	client := createMockClient(transport)

	if _, err := client.Generate(context.Background(), "", "pergunta"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(transport.LastBody(), `"system"`) {
		t.Errorf("system message sent although empty: %s", transport.LastBody())
	}
}

func TestOpenAIClient_CancelledContext(t *testing.T) {
	transport := NewMockTransport()
	transport.AddResponse("POST", openAIChatURL, 200, `{"choices": [{"message": {"content": "ok"}}]}`)
	client := createMockClient(transport)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Generate(ctx, "", "pergunta")
	if !errors.Is(err, ErrGeneration) || !errors.Is(err, context.Canceled) {
		t.Errorf("expected cancelled generation error, got %v", err)
	}
}

func TestOpenAIClient_setHeaders(t *testing.T) {
	tests := []struct {
		name                string
		apiKey              string
		projectID           string
		expectProjectHeader bool
	}{
		{"standard API key without project", "sk-1234567890", "", false},
		{"project API key with project ID", "sk-proj-1234567890", "proj_test123", true},
		{"project API key without project ID", "sk-proj-1234567890", "", false},
		{"standard API key with project ID", "sk-1234567890", "proj_test123", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewOpenAIClient(&ClientConfig{APIKey: tt.apiKey, ProjectID: tt.projectID})
			req, _ := http.NewRequest("POST", "https://example.com", nil)
			client.setHeaders(req)

			if req.Header.Get("Content-Type") != "application/json" {
				t.Errorf("Expected Content-Type 'application/json', got '%s'", req.Header.Get("Content-Type"))
			}
			if want := "Bearer " + tt.apiKey; req.Header.Get("Authorization") != want {
				t.Errorf("Expected Authorization '%s', got '%s'", want, req.Header.Get("Authorization"))
			}
			projectHeader := req.Header.Get("OpenAI-Project")
			if tt.expectProjectHeader && projectHeader != tt.projectID {
				t.Errorf("Expected OpenAI-Project header '%s', got '%s'", tt.projectID, projectHeader)
			}
			if !tt.expectProjectHeader && projectHeader != "" {
				t.Errorf("Expected no OpenAI-Project header, got '%s'", projectHeader)
			}
		})
	}
}

func TestOpenAIClient_InterfaceCompliance(t *testing.T) {
	var _ Client = (*OpenAIClient)(nil)
}
