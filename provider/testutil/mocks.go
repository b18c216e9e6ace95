package testutil

import (
	"context"
	"sync"

	"gemchat/model"
)

// MockClient implements model.Client for testing. Each func field can
// be replaced per test; defaults succeed with canned output. Call
// counters let tests assert on the number of model invocations.
type MockClient struct {
	GenerateStreamFunc func(ctx context.Context, apiKey string, req model.GenerateRequest, callback model.StreamCallback) error
	GenerateFunc       func(ctx context.Context, apiKey, modelName, prompt string) (string, error)
	GenerateImageFunc  func(ctx context.Context, apiKey, modelName, prompt string) (*model.ImageData, error)

	mu            sync.Mutex
	streamCalls   int
	generateCalls int
	imageCalls    int
	keysTried     []string
	prompts       []string
}

// NewMockClient creates a mock with default implementations.
func NewMockClient() *MockClient {
	m := &MockClient{}
	m.GenerateStreamFunc = func(ctx context.Context, apiKey string, req model.GenerateRequest, callback model.StreamCallback) error {
		if callback != nil {
			callback("Mock response", nil)
		}
		return nil
	}
	m.GenerateFunc = func(ctx context.Context, apiKey, modelName, prompt string) (string, error) {
		return `{"memory": []}`, nil
	}
	m.GenerateImageFunc = func(ctx context.Context, apiKey, modelName, prompt string) (*model.ImageData, error) {
		return &model.ImageData{MIMEType: "image/png", Data: []byte("mock-image")}, nil
	}
	return m
}

func (m *MockClient) GenerateStream(ctx context.Context, apiKey string, req model.GenerateRequest, callback model.StreamCallback) error {
	m.mu.Lock()
	m.streamCalls++
	m.keysTried = append(m.keysTried, apiKey)
	m.mu.Unlock()
	return m.GenerateStreamFunc(ctx, apiKey, req, callback)
}

func (m *MockClient) Generate(ctx context.Context, apiKey, modelName, prompt string) (string, error) {
	m.mu.Lock()
	m.generateCalls++
	m.keysTried = append(m.keysTried, apiKey)
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	return m.GenerateFunc(ctx, apiKey, modelName, prompt)
}

func (m *MockClient) GenerateImage(ctx context.Context, apiKey, modelName, prompt string) (*model.ImageData, error) {
	m.mu.Lock()
	m.imageCalls++
	m.keysTried = append(m.keysTried, apiKey)
	m.mu.Unlock()
	return m.GenerateImageFunc(ctx, apiKey, modelName, prompt)
}

// StreamCalls returns how many streaming calls were made.
func (m *MockClient) StreamCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCalls
}

// GenerateCalls returns how many non-streaming calls were made.
func (m *MockClient) GenerateCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.generateCalls
}

// ImageCalls returns how many image-generation calls were made.
func (m *MockClient) ImageCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.imageCalls
}

// KeysTried returns the API keys passed to calls, in order.
func (m *MockClient) KeysTried() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.keysTried...)
}

// Prompts returns the prompts passed to non-streaming calls, in order.
func (m *MockClient) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}
