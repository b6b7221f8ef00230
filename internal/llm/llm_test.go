package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWrapAppliesMiddlewareLeftToRight(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next Client) Client {
			return &tagged{next: next, name: name, order: &order}
		}
	}
	inner := NewFakeClient("out")
	client := Wrap(inner, tag("outer"), tag("inner"))

	if _, err := client.Generate(context.Background(), "p"); err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Fatalf("unexpected middleware order: %v", order)
	}
}

type tagged struct {
	next  Client
	name  string
	order *[]string
}

func (c *tagged) Name() string { return c.next.Name() }
func (c *tagged) Close() error { return c.next.Close() }

func (c *tagged) Generate(ctx context.Context, prompt string) (string, error) {
	*c.order = append(*c.order, c.name)
	return c.next.Generate(ctx, prompt)
}

func (c *tagged) GenerateStream(ctx context.Context, prompt string, onChunk func(string)) (string, error) {
	*c.order = append(*c.order, c.name)
	return c.next.GenerateStream(ctx, prompt, onChunk)
}

func TestWithTimeoutCancelsSlowCall(t *testing.T) {
	slow := &blockingClient{}
	client := Wrap(slow, WithTimeout(20*time.Millisecond))

	_, err := client.Generate(context.Background(), "p")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

type blockingClient struct{}

func (c *blockingClient) Name() string { return "blocking" }
func (c *blockingClient) Close() error { return nil }

func (c *blockingClient) Generate(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (c *blockingClient) GenerateStream(ctx context.Context, _ string, _ func(string)) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestFakeClientStreamsInOrder(t *testing.T) {
	fake := &FakeClient{Response: "abcdefghij", ChunkSize: 3}
	var chunks []string
	out, err := fake.GenerateStream(context.Background(), "p", func(c string) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if out != "abcdefghij" {
		t.Fatalf("unexpected output %q", out)
	}
	if strings.Join(chunks, "") != out {
		t.Fatalf("chunk concatenation mismatch: %v", chunks)
	}
	if len(chunks) != 4 {
		t.Fatalf("expected 4 chunks, got %d", len(chunks))
	}
}

func TestOpenAICompatGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer key-123" {
			t.Errorf("unexpected auth header %q", got)
		}
		w.Header().Set("Content-Type", "text/event-stream")
		for _, piece := range []string{"<html>", "<body>hi</body>", "</html>"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", piece)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	client, err := NewOpenAICompatClient("key-123", srv.URL, "test-model")
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}

	var chunks []string
	out, err := client.GenerateStream(context.Background(), "prompt", func(c string) {
		chunks = append(chunks, c)
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	if out != "<html><body>hi</body></html>" {
		t.Fatalf("unexpected output %q", out)
	}
	if strings.Join(chunks, "") != out {
		t.Fatalf("chunks must concatenate to output, got %v", chunks)
	}
}

func TestOpenAICompatGenerateNonStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"full response"}}]}`)
	}))
	defer srv.Close()

	client, err := NewOpenAICompatClient("k", srv.URL, "m")
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	out, err := client.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	if out != "full response" {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestOpenAICompatEmptyCompletion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	client, err := NewOpenAICompatClient("k", srv.URL, "m")
	if err != nil {
		t.Fatalf("new client failed: %v", err)
	}
	if _, err := client.Generate(context.Background(), "prompt"); !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("expected ErrEmptyCompletion, got %v", err)
	}
}

func TestFactoryCredentialsAndAliases(t *testing.T) {
	f := NewFactory(FactoryConfig{
		GeminiAPIKey: "g-key",
		GeminiModel:  "gemini-default",
	}, nil)

	if !f.HasCredentials("") {
		t.Fatalf("empty provider should alias to gemini")
	}
	if !f.HasCredentials("gemini") {
		t.Fatalf("expected gemini credentials")
	}
	if f.HasCredentials("openai") {
		t.Fatalf("no openai key configured")
	}

	provider, model := f.Resolve("", "")
	if provider != ProviderGemini || model != "gemini-default" {
		t.Fatalf("unexpected resolution %s/%s", provider, model)
	}
	provider, model = f.Resolve("groq", "custom")
	if provider != ProviderOpenAICompat || model != "custom" {
		t.Fatalf("unexpected resolution %s/%s", provider, model)
	}

	if _, err := f.Client(context.Background(), "openai", ""); !errors.Is(err, ErrNoCredentials) {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}
