package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/recalldev/recall/internal/adapters/circuitbreaker"
	"github.com/recalldev/recall/internal/adapters/retry"
)

// Client talks to one OpenAI-compatible provider endpoint. All calls go
// through the provider's circuit breaker and retry with backoff; a
// weighted semaphore caps concurrent requests per provider.
type Client struct {
	name       string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *circuitbreaker.CircuitBreaker
	retryCfg   retry.BackoffConfig
	inflight   *semaphore.Weighted
}

func NewClient(name, baseURL, apiKey string, maxInflight int) *Client {
	if maxInflight < 1 {
		maxInflight = 1
	}
	return &Client{
		name:    name,
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		breaker:  circuitbreaker.New(5, 30*time.Second),
		retryCfg: retry.HTTPConfig(),
		inflight: semaphore.NewWeighted(int64(maxInflight)),
	}
}

func (c *Client) Name() string {
	return c.name
}

// Available reports whether the breaker would admit a call right now.
func (c *Client) Available() bool {
	return c.breaker.State() != circuitbreaker.StateOpen
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model          string         `json:"model"`
	Messages       []ChatMessage  `json:"messages"`
	MaxTokens      int            `json:"max_tokens,omitempty"`
	Temperature    float32        `json:"temperature"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage usageBlock `json:"usage"`
}

type usageBlock struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage usageBlock `json:"usage"`
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float32 `json:"relevance_score"`
	} `json:"results"`
	Usage usageBlock `json:"usage"`
}

// Chat runs one chat completion. System may be empty.
func (c *Client) Chat(ctx context.Context, model, system, prompt string, maxTokens int, temperature float32, jsonMode bool) (string, usageBlock, error) {
	messages := make([]ChatMessage, 0, 2)
	if system != "" {
		messages = append(messages, ChatMessage{Role: "system", Content: system})
	}
	messages = append(messages, ChatMessage{Role: "user", Content: prompt})

	req := chatCompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	if jsonMode {
		req.ResponseFormat = map[string]any{"type": "json_object"}
	}

	var resp chatCompletionResponse
	if err := c.post(ctx, "chat", "/chat/completions", req, &resp); err != nil {
		return "", usageBlock{}, err
	}
	if len(resp.Choices) == 0 {
		return "", resp.Usage, &ProviderError{Provider: c.name, Operation: "chat", Err: fmt.Errorf("no choices in response")}
	}
	return resp.Choices[0].Message.Content, resp.Usage, nil
}

// Embed returns one vector per input, in input order.
func (c *Client) Embed(ctx context.Context, model string, texts []string) ([][]float32, usageBlock, error) {
	var resp embeddingsResponse
	if err := c.post(ctx, "embed", "/embeddings", embeddingsRequest{Model: model, Input: texts}, &resp); err != nil {
		return nil, usageBlock{}, err
	}
	if len(resp.Data) != len(texts) {
		return nil, resp.Usage, &ProviderError{
			Provider:  c.name,
			Operation: "embed",
			Err:       fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)),
		}
	}
	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(vectors) {
			return nil, resp.Usage, &ProviderError{
				Provider:  c.name,
				Operation: "embed",
				Err:       fmt.Errorf("embedding index %d out of range", d.Index),
			}
		}
		vectors[d.Index] = d.Embedding
	}
	return vectors, resp.Usage, nil
}

// Rerank returns one score per document, in document order.
func (c *Client) Rerank(ctx context.Context, model, query string, documents []string) ([]float32, usageBlock, error) {
	var resp rerankResponse
	if err := c.post(ctx, "rerank", "/rerank", rerankRequest{Model: model, Query: query, Documents: documents}, &resp); err != nil {
		return nil, usageBlock{}, err
	}
	scores := make([]float32, len(documents))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(scores) {
			return nil, resp.Usage, &ProviderError{
				Provider:  c.name,
				Operation: "rerank",
				Err:       fmt.Errorf("rerank index %d out of range", r.Index),
			}
		}
		scores[r.Index] = r.RelevanceScore
	}
	return scores, resp.Usage, nil
}

func (c *Client) post(ctx context.Context, operation, path string, payload, out any) error {
	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return err
	}
	defer c.inflight.Release(1)

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling %s request: %w", operation, err)
	}

	return c.breaker.Execute(func() error {
		var lastStatus int
		err := retry.WithBackoffHTTP(ctx, c.retryCfg, func() (int, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
			if err != nil {
				return 0, err
			}
			req.Header.Set("Content-Type", "application/json")
			if c.apiKey != "" {
				req.Header.Set("Authorization", "Bearer "+c.apiKey)
			}

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return 0, err
			}
			defer resp.Body.Close()
			lastStatus = resp.StatusCode

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
				return resp.StatusCode, nil
			}
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return resp.StatusCode, fmt.Errorf("decoding %s response: %w", operation, err)
			}
			return resp.StatusCode, nil
		})
		if err != nil {
			// Exhausted retries on a retryable status (429/5xx) still
			// qualify for provider fallback, so classify by the last
			// status as well as the error.
			return &ProviderError{
				Provider:  c.name,
				Operation: operation,
				Status:    lastStatus,
				Retryable: retry.IsRetryableHTTPStatus(lastStatus) || retry.IsRetryableError(err),
				Err:       err,
			}
		}
		return nil
	})
}
