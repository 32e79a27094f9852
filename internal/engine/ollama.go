package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultOllamaModel is used when no model is configured.
const DefaultOllamaModel = "llama3:latest"

const ollamaInstructions = "You answer questions about a table of California crime statistics. " +
	"Use only the data description below. Answer briefly; say so when the data cannot answer the question."

// OllamaClient answers questions with a local Ollama chat model. The dataset
// description in System is sent ahead of every question.
type OllamaClient struct {
	Model  string
	System string

	httpClient       *http.Client
	host             string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

// NewOllamaClient creates a new client targeting the given host (e.g., http://127.0.0.1:11434).
func NewOllamaClient(host string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *OllamaClient {
	if host == "" {
		host = "http://127.0.0.1:11434"
	}
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 2
	}
	if baseDelay <= 0 {
		baseDelay = 200 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 1 * time.Second
	}
	return &OllamaClient{
		httpClient:       &http.Client{Timeout: httpTimeout},
		host:             strings.TrimRight(host, "/"),
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

// Structures aligned with Ollama /api/chat
type ollamaChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
}
type ollamaChatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

func (c *OllamaClient) payload(question string, stream bool) ([]byte, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	model := c.Model
	if model == "" {
		model = DefaultOllamaModel
	}
	sys := ollamaInstructions
	if c.System != "" {
		sys += "\n\n" + c.System
	}
	b, err := json.Marshal(ollamaChatRequest{
		Model: model,
		Messages: []ollamaChatMessage{
			{Role: "system", Content: sys},
			{Role: "user", Content: question},
		},
		Stream: stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return b, nil
}

func (c *OllamaClient) statusError(resp *http.Response) error {
	apiErr := readAPIError(resp)
	switch {
	case resp.StatusCode == http.StatusNotFound:
		// Likely missing model
		return &ModelNotFoundError{APIError: apiErr}
	case resp.StatusCode >= 500:
		return &ServerError{APIError: apiErr}
	case resp.StatusCode == http.StatusBadRequest:
		return &BadRequestError{APIError: apiErr}
	}
	return apiErr
}

// Ask sends a non-streaming chat request and returns the reply as text.
func (c *OllamaClient) Ask(ctx context.Context, question string) (*Answer, error) {
	payload, err := c.payload(question, false)
	if err != nil {
		return nil, err
	}
	endpoint := c.host + "/api/chat"
	backoff := c.retryBaseDelay

	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, transportError(ctx, c.host, ctx.Err())
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if isRetryableNetErr(err) && ctx.Err() == nil && attempt < c.retryMaxAttempts {
				if serr := sleepCtx(ctx, withJitter(backoff)); serr != nil {
					return nil, transportError(ctx, c.host, serr)
				}
				backoff *= 2
				continue
			}
			return nil, transportError(ctx, c.host, err)
		}
		var out *Answer
		func() {
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				lastErr = c.statusError(resp)
				return
			}
			var oresp ollamaChatResponse
			if err := json.NewDecoder(resp.Body).Decode(&oresp); err != nil {
				lastErr = &AnswerError{Kind: string(KindText), Err: fmt.Errorf("decode response: %w", err)}
				return
			}
			out = &Answer{
				Kind:      KindText,
				Body:      []byte(strings.TrimSpace(oresp.Message.Content)),
				RequestID: fmt.Sprintf("ollama_%d", time.Now().UnixNano()),
			}
			lastErr = nil
		}()
		if lastErr == nil {
			return out, nil
		}
		var se *ServerError
		if errors.As(lastErr, &se) && attempt < c.retryMaxAttempts {
			delay := withJitter(backoff)
			if c.retryMaxDelay > 0 && delay > c.retryMaxDelay {
				delay = c.retryMaxDelay
			}
			if serr := sleepCtx(ctx, delay); serr != nil {
				return nil, transportError(ctx, c.host, serr)
			}
			backoff *= 2
			continue
		}
		break
	}
	return nil, lastErr
}

// StreamRuntime is implemented by runtimes that can deliver partial answers.
type StreamRuntime interface {
	AskStream(ctx context.Context, question string, onDelta func(string)) error
}

// AskStream streams partial deltas of the reply.
func (c *OllamaClient) AskStream(ctx context.Context, question string, onDelta func(string)) error {
	payload, err := c.payload(question, true)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.host+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return transportError(ctx, c.host, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.statusError(resp)
	}

	dec := json.NewDecoder(resp.Body)
	for {
		if ctx.Err() != nil {
			return transportError(ctx, c.host, ctx.Err())
		}
		var oresp ollamaChatResponse
		if err := dec.Decode(&oresp); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return fmt.Errorf("decode stream: %w", err)
		}
		if msg := oresp.Message.Content; msg != "" {
			onDelta(msg)
		}
		if oresp.Done {
			break
		}
	}
	return nil
}
