package engine

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// QueryClient speaks to a dataframe question-answering service:
// POST {baseURL}/query with {"question": ...}, answered by
// {"type": "text|number|dataframe|json|image", "value": ...}.
type QueryClient struct {
	httpClient       *http.Client
	baseURL          string
	retryMaxAttempts int
	retryBaseDelay   time.Duration
	retryMaxDelay    time.Duration
}

// DefaultQueryURL is where a locally running engine listens.
const DefaultQueryURL = "http://127.0.0.1:8000"

// NewQueryClient allows customizing HTTP timeout and retry/backoff behavior.
func NewQueryClient(baseURL string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *QueryClient {
	if baseURL == "" {
		baseURL = DefaultQueryURL
	}
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	return &QueryClient{
		httpClient:       &http.Client{Timeout: httpTimeout},
		baseURL:          strings.TrimRight(baseURL, "/"),
		retryMaxAttempts: retryMax,
		retryBaseDelay:   baseDelay,
		retryMaxDelay:    maxDelay,
	}
}

type queryRequest struct {
	Question string `json:"question"`
}

type queryResponse struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value"`
}

// Ask forwards the question verbatim and decodes the typed answer.
func (c *QueryClient) Ask(ctx context.Context, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, ErrEmptyQuestion
	}
	payload, err := json.Marshal(queryRequest{Question: question})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := c.baseURL + "/query"
	backoff := c.retryBaseDelay

	var lastErr error
	for attempt := 1; attempt <= c.retryMaxAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, transportError(ctx, c.baseURL, ctx.Err())
		}
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("build request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			if isRetryableNetErr(err) && ctx.Err() == nil && attempt < c.retryMaxAttempts {
				lastErr = err
				if serr := sleepCtx(ctx, c.capDelay(withJitter(backoff))); serr != nil {
					return nil, transportError(ctx, c.baseURL, serr)
				}
				backoff *= 2
				continue
			}
			return nil, transportError(ctx, c.baseURL, err)
		}
		var out *Answer
		retry := false
		func() {
			defer resp.Body.Close()
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				apiErr := readAPIError(resp)
				lastErr = classifyAPIError(apiErr, resp)
				retry = retryableStatus(resp.StatusCode)
				return
			}
			var qr queryResponse
			if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
				lastErr = &AnswerError{Err: fmt.Errorf("decode response: %w", err)}
				return
			}
			out, lastErr = DecodeAnswer(qr.Type, qr.Value)
			if out != nil {
				out.RequestID = extractRequestID(resp)
			}
		}()
		if lastErr == nil {
			return out, nil
		}
		if retry && attempt < c.retryMaxAttempts {
			delay := withJitter(backoff)
			var rl *RateLimitError
			if errors.As(lastErr, &rl) && rl.RetryAfter > 0 {
				delay = rl.RetryAfter
			}
			if serr := sleepCtx(ctx, c.capDelay(delay)); serr != nil {
				return nil, transportError(ctx, c.baseURL, serr)
			}
			backoff *= 2
			continue
		}
		break
	}
	return nil, lastErr
}

func (c *QueryClient) capDelay(d time.Duration) time.Duration {
	if c.retryMaxDelay > 0 && d > c.retryMaxDelay {
		return c.retryMaxDelay
	}
	return d
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

// DecodeAnswer turns a typed engine value into an Answer. Tables become JSON
// documents, numbers become text and figures become PNG bytes.
func DecodeAnswer(typ string, value json.RawMessage) (*Answer, error) {
	typ = strings.ToLower(strings.TrimSpace(typ))
	switch typ {
	case "text", "string", "":
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			if len(value) == 0 {
				return nil, &AnswerError{Kind: "text", Err: errors.New("empty value")}
			}
			// non-string scalar in a text answer
			return &Answer{Kind: KindText, Body: bytes.TrimSpace(value)}, nil
		}
		return &Answer{Kind: KindText, Body: []byte(s)}, nil
	case "number":
		var n json.Number
		if err := json.Unmarshal(value, &n); err != nil {
			return nil, &AnswerError{Kind: typ, Err: err}
		}
		return &Answer{Kind: KindText, Body: []byte(n.String())}, nil
	case "dataframe", "json", "table":
		if !json.Valid(value) {
			return nil, &AnswerError{Kind: typ, Err: errors.New("value is not valid JSON")}
		}
		return &Answer{Kind: KindJSON, Body: bytes.TrimSpace(value)}, nil
	case "image", "plot", "figure":
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return nil, &AnswerError{Kind: typ, Err: err}
		}
		if i := strings.Index(s, "base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
			s = s[i+len("base64,"):]
		}
		b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(s))
		if err != nil {
			return nil, &AnswerError{Kind: typ, Err: err}
		}
		if !bytes.HasPrefix(b, pngSignature) {
			return nil, &AnswerError{Kind: typ, Err: errors.New("image is not a PNG")}
		}
		return &Answer{Kind: KindImage, Body: b}, nil
	}
	return nil, &AnswerError{Kind: typ, Err: errors.New("unsupported answer type")}
}
