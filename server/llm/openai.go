package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-compatible provider adapter. Any vendor
// exposing the OpenAI chat completion API works through a custom BaseURL.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OpenAIProvider adapts the OpenAI chat completion API to the Provider
// contract.
type OpenAIProvider struct {
	client *openai.Client
	config OpenAIConfig
}

// NewOpenAIProvider creates an adapter for an OpenAI-compatible endpoint.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}, nil
}

// Capabilities implements Provider.
func (p *OpenAIProvider) Capabilities() Capabilities {
	return Capabilities{
		MaxTokens:         p.config.MaxTokens,
		SupportsTools:     true,
		SupportsStreaming: true,
	}
}

// GenerateText implements Provider.
func (p *OpenAIProvider) GenerateText(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty chat response")
	}

	choice := resp.Choices[0]
	return &GenerateResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// GenerateWithTools implements Provider.
func (p *OpenAIProvider) GenerateWithTools(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	chatReq := p.buildRequest(req)
	for _, tool := range req.Tools {
		var params map[string]any
		if len(tool.Parameters) > 0 {
			if err := json.Unmarshal(tool.Parameters, &params); err != nil {
				return nil, err
			}
		}
		chatReq.Tools = append(chatReq.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  params,
			},
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("empty chat response")
	}

	choice := resp.Choices[0]
	out := &GenerateResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: string(choice.FinishReason),
		PromptTokens: resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}
	// Tool call payloads are surfaced as content so the caller can parse
	// them; the core does not interpret tool invocations itself.
	if out.Content == "" && len(choice.Message.ToolCalls) > 0 {
		raw, err := json.Marshal(choice.Message.ToolCalls)
		if err == nil {
			out.Content = string(raw)
		}
	}
	return out, nil
}

// StreamGeneration implements Provider.
func (p *OpenAIProvider) StreamGeneration(ctx context.Context, req *GenerateRequest) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk)
	errs := make(chan error, 1)

	go func() {
		defer close(chunks)
		defer close(errs)

		stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req))
		if err != nil {
			errs <- err
			return
		}
		defer stream.Close()

		for {
			resp, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				select {
				case chunks <- Chunk{Done: true}:
				case <-ctx.Done():
				}
				return
			}
			if err != nil {
				errs <- err
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			select {
			case chunks <- Chunk{Content: resp.Choices[0].Delta.Content}:
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			}
		}
	}()

	return chunks, errs
}

func (p *OpenAIProvider) buildRequest(req *GenerateRequest) openai.ChatCompletionRequest {
	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, msg := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > p.config.MaxTokens {
		maxTokens = p.config.MaxTokens
	}

	return openai.ChatCompletionRequest{
		Model:       p.config.Model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
}

var _ Provider = (*OpenAIProvider)(nil)
