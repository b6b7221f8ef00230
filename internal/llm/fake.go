package llm

import (
	"context"
	"sync"
)

// FakeClient returns a canned completion, optionally split into fixed-size
// chunks when streaming. Offline/testing only.
type FakeClient struct {
	Response  string
	Err       error
	ChunkSize int

	mu      sync.Mutex
	prompts []string
}

func NewFakeClient(response string) *FakeClient {
	return &FakeClient{Response: response, ChunkSize: 16}
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

// Prompts returns every prompt the fake has seen, in call order.
func (f *FakeClient) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.prompts))
	copy(out, f.prompts)
	return out
}

func (f *FakeClient) record(prompt string) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
}

func (f *FakeClient) Generate(ctx context.Context, prompt string) (string, error) {
	f.record(prompt)
	if f.Err != nil {
		return "", f.Err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return f.Response, nil
}

func (f *FakeClient) GenerateStream(ctx context.Context, prompt string, onChunk func(chunk string)) (string, error) {
	f.record(prompt)
	if f.Err != nil {
		return "", f.Err
	}
	size := f.ChunkSize
	if size <= 0 {
		size = 16
	}
	for i := 0; i < len(f.Response); i += size {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		end := i + size
		if end > len(f.Response) {
			end = len(f.Response)
		}
		if onChunk != nil {
			onChunk(f.Response[i:end])
		}
	}
	return f.Response, nil
}
