// Package llm implements the provider routing layer: a registry of
// language-model backends, a load balancer selecting one per request, and a
// health monitor feeding probe results back into routing decisions.
package llm

import (
	"context"
	"encoding/json"
	"time"
)

// Message is a single chat message sent to a provider.
type Message struct {
	Role    string `json:"role"` // system, user, assistant
	Content string `json:"content"`
}

// ToolDefinition describes a tool a provider may call during generation.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// GenerateRequest is the provider-independent generation request.
type GenerateRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float32
	Tools       []ToolDefinition
}

// GenerateResponse is the provider-independent generation result.
type GenerateResponse struct {
	Content      string
	Model        string
	FinishReason string
	PromptTokens int
	OutputTokens int
}

// Chunk is one streamed fragment of a generation.
type Chunk struct {
	Content string
	Done    bool
}

// Capabilities is the static capability descriptor of a provider.
type Capabilities struct {
	MaxTokens         int  `json:"max_tokens"`
	SupportsTools     bool `json:"supports_tools"`
	SupportsStreaming bool `json:"supports_streaming"`
}

// Provider is the contract every backend adapter implements. A call must
// either resolve with content or fail within the caller-supplied deadline.
type Provider interface {
	GenerateText(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	GenerateWithTools(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	StreamGeneration(ctx context.Context, req *GenerateRequest) (<-chan Chunk, <-chan error)
	Capabilities() Capabilities
}

// ProviderConfig is the administrative configuration for a registered provider.
type ProviderConfig struct {
	Name         string
	Priority     int // lower runs first in tie-breaks
	Enabled      bool
	CostWeight   float64 // relative per-request cost, used by cost_optimized
	Capabilities Capabilities
}

// ProviderStats is the mutable runtime state of a registered provider. It is
// owned by the registry and mutated only through its update API.
type ProviderStats struct {
	IsHealthy           bool
	AverageResponseTime time.Duration
	TotalRequests       int64
	LastUsed            time.Time
}
