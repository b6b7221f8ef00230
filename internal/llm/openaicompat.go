package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"time"
)

// OpenAICompatClient calls any OpenAI-compatible Chat Completions API
// (OpenAI, Groq, local inference servers). Streaming uses the SSE wire
// format those APIs share: "data: {json}" lines terminated by "data: [DONE]".
type OpenAICompatClient struct {
	http    *http.Client
	apiKey  string
	model   string
	baseURL string
}

// NewOpenAICompatClient creates a client. If apiKey is empty it falls back
// to the OPENAI_COMPAT_API_KEY env var; baseURL defaults to api.openai.com.
func NewOpenAICompatClient(apiKey, baseURL, model string) (*OpenAICompatClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_COMPAT_API_KEY")
	}
	baseURL = strings.TrimSuffix(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAICompatClient{
		http:    &http.Client{Timeout: 5 * time.Minute},
		apiKey:  apiKey,
		model:   model,
		baseURL: baseURL + "/chat/completions",
	}, nil
}

func (c *OpenAICompatClient) Name() string { return "OpenAICompat:" + c.model }
func (c *OpenAICompatClient) Close() error { return nil }

type chatReq struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResp struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatStreamResp struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (c *OpenAICompatClient) newRequest(ctx context.Context, prompt string, stream bool) (*http.Request, error) {
	body := chatReq{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
		Stream:      stream,
	}
	b, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

func (c *OpenAICompatClient) Generate(ctx context.Context, prompt string) (string, error) {
	req, err := c.newRequest(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.New("chat completions: unexpected status " + resp.Status)
	}
	var out chatResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return "", ErrEmptyCompletion
	}
	return out.Choices[0].Message.Content, nil
}

func (c *OpenAICompatClient) GenerateStream(ctx context.Context, prompt string, onChunk func(chunk string)) (string, error) {
	req, err := c.newRequest(ctx, prompt, true)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.New("chat completions: unexpected status " + resp.Status)
	}

	var sb strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}
		var chunk chatStreamResp
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		text := chunk.Choices[0].Delta.Content
		if text == "" {
			continue
		}
		sb.WriteString(text)
		if onChunk != nil {
			onChunk(text)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	if sb.Len() == 0 {
		return "", ErrEmptyCompletion
	}
	return sb.String(), nil
}
