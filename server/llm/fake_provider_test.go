package llm

import (
	"context"
	"sync"
	"time"
)

// fakeProvider is a scriptable Provider for tests.
type fakeProvider struct {
	mu      sync.Mutex
	content string
	err     error
	delay   time.Duration
	calls   int
}

func newFakeProvider(content string) *fakeProvider {
	return &fakeProvider{content: content}
}

func (f *fakeProvider) fail(err error) *fakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	return f
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeProvider) GenerateText(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	f.mu.Lock()
	f.calls++
	content, err, delay := f.content, f.err, f.delay
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &GenerateResponse{Content: content, Model: "fake"}, nil
}

func (f *fakeProvider) GenerateWithTools(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	return f.GenerateText(ctx, req)
}

func (f *fakeProvider) StreamGeneration(ctx context.Context, req *GenerateRequest) (<-chan Chunk, <-chan error) {
	chunks := make(chan Chunk, 2)
	errs := make(chan error, 1)
	resp, err := f.GenerateText(ctx, req)
	if err != nil {
		errs <- err
	} else {
		chunks <- Chunk{Content: resp.Content}
		chunks <- Chunk{Done: true}
	}
	close(chunks)
	close(errs)
	return chunks, errs
}

func (f *fakeProvider) Capabilities() Capabilities {
	return Capabilities{MaxTokens: 4096, SupportsStreaming: true}
}
