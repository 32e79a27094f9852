package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"syscall"
	"testing"
	"time"
)

type ipv4Server struct {
	URL string
	srv *http.Server
	ln  net.Listener
}

func newIPv4Server(t *testing.T, handler http.Handler) *ipv4Server {
	t.Helper()
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
			t.Skipf("skipping test: cannot open local listener (%v)", err)
		}
		t.Fatalf("listen tcp4: %v", err)
	}
	srv := &http.Server{Handler: handler}
	s := &ipv4Server{
		URL: "http://" + ln.Addr().String(),
		srv: srv,
		ln:  ln,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			panic(fmt.Sprintf("test server serve: %v", err))
		}
	}()
	return s
}

func (s *ipv4Server) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func queryServer(t *testing.T, typ string, value any) *ipv4Server {
	t.Helper()
	return newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/query" {
			http.NotFound(w, r)
			return
		}
		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Question == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"type": typ, "value": value})
	}))
}

func TestQueryTextAnswer(t *testing.T) {
	srv := queryServer(t, "text", "Los Angeles had the most robberies.")
	defer srv.Close()
	c := NewQueryClient(srv.URL, 2*time.Second, 1, 0, 0)
	ans, err := c.Ask(context.Background(), "which county had the most robberies?")
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if ans.Kind != KindText || ans.Text() != "Los Angeles had the most robberies." {
		t.Fatalf("unexpected answer: %+v", ans)
	}
	if ans.Kind.ContentType() != "text/plain; charset=utf-8" {
		t.Fatalf("unexpected content type %s", ans.Kind.ContentType())
	}
}

func TestQueryNumberAndDataframe(t *testing.T) {
	srv := queryServer(t, "number", 1523.5)
	defer srv.Close()
	c := NewQueryClient(srv.URL, 2*time.Second, 1, 0, 0)
	ans, err := c.Ask(context.Background(), "total?")
	if err != nil || ans.Kind != KindText || ans.Text() != "1523.5" {
		t.Fatalf("unexpected number answer: %+v %v", ans, err)
	}

	rows := []map[string]any{{"region_name": "Alameda", "rate": 150.0}}
	srv2 := queryServer(t, "dataframe", rows)
	defer srv2.Close()
	c2 := NewQueryClient(srv2.URL, 2*time.Second, 1, 0, 0)
	ans, err = c2.Ask(context.Background(), "rates?")
	if err != nil || ans.Kind != KindJSON {
		t.Fatalf("unexpected dataframe answer: %+v %v", ans, err)
	}
	var got []map[string]any
	if err := json.Unmarshal(ans.Body, &got); err != nil || got[0]["region_name"] != "Alameda" {
		t.Fatalf("unexpected dataframe body %s", ans.Body)
	}
}

func TestQueryImageAnswer(t *testing.T) {
	png := append([]byte("\x89PNG\r\n\x1a\n"), 0, 0, 0, 0)
	srv := queryServer(t, "image", "data:image/png;base64,"+base64.StdEncoding.EncodeToString(png))
	defer srv.Close()
	c := NewQueryClient(srv.URL, 2*time.Second, 1, 0, 0)
	ans, err := c.Ask(context.Background(), "plot it")
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if ans.Kind != KindImage || string(ans.Body) != string(png) || ans.Text() != "" {
		t.Fatalf("unexpected image answer: %+v", ans)
	}
}

func TestDecodeAnswerRejectsUnknownAndBadImage(t *testing.T) {
	var ae *AnswerError
	if _, err := DecodeAnswer("video", json.RawMessage(`"x"`)); !errors.As(err, &ae) {
		t.Fatalf("expected AnswerError, got %v", err)
	}
	notPNG := base64.StdEncoding.EncodeToString([]byte("GIF89a"))
	if _, err := DecodeAnswer("image", json.RawMessage(`"`+notPNG+`"`)); !errors.As(err, &ae) {
		t.Fatalf("expected AnswerError for non-PNG, got %v", err)
	}
}

func TestQueryEmptyQuestion(t *testing.T) {
	c := NewQueryClient("http://127.0.0.1:1", time.Second, 1, 0, 0)
	if _, err := c.Ask(context.Background(), "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestQueryBadRequestIsDataError(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{"detail": "column 'foo' not found"})
	}))
	defer srv.Close()
	c := NewQueryClient(srv.URL, 2*time.Second, 3, time.Millisecond, time.Millisecond)
	_, err := c.Ask(context.Background(), "foo?")
	var br *BadRequestError
	if !errors.As(err, &br) {
		t.Fatalf("expected BadRequestError, got %T %v", err, err)
	}
	if br.Reason() != "column 'foo' not found" {
		t.Fatalf("unexpected reason %q", br.Reason())
	}
}

func TestQueryRetriesUnavailable(t *testing.T) {
	var calls int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"type": "text", "value": "ok"})
	}))
	defer srv.Close()
	c := NewQueryClient(srv.URL, 2*time.Second, 3, time.Millisecond, 5*time.Millisecond)
	ans, err := c.Ask(context.Background(), "q")
	if err != nil || ans.Text() != "ok" {
		t.Fatalf("expected success after retry, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestQueryServerErrorNotRetried(t *testing.T) {
	var calls int32
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "boom"})
	}))
	defer srv.Close()
	c := NewQueryClient(srv.URL, 2*time.Second, 3, time.Millisecond, time.Millisecond)
	_, err := c.Ask(context.Background(), "q")
	var se *ServerError
	if !errors.As(err, &se) || se.Message != "boom" {
		t.Fatalf("expected ServerError, got %v", err)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected a single call, got %d", calls)
	}
}

func TestQueryTimeout(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()
	c := NewQueryClient(srv.URL, 5*time.Second, 1, 0, 0)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Ask(ctx, "slow question")
	var te *TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %T %v", err, err)
	}
}

func TestQueryConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: cannot open local listener (%v)", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	c := NewQueryClient("http://"+addr, time.Second, 1, 0, 0)
	_, err = c.Ask(context.Background(), "anyone there?")
	var ue *UnreachableError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnreachableError, got %T %v", err, err)
	}
	if !errors.Is(err, syscall.ECONNREFUSED) {
		t.Fatalf("expected connection refused to be wrapped, got %v", err)
	}
}

func TestOllamaAskSendsDatasetContext(t *testing.T) {
	var captured ollamaChatRequest
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]any{"role": "assistant", "content": " Alameda. "},
		})
	}))
	defer srv.Close()

	rt, ok := GetRuntime(ProviderOllama, RuntimeConfig{Host: srv.URL, HTTPTimeout: 2 * time.Second, RetryMax: 1, Context: "## Dataset\nrows: 3"})
	if !ok {
		t.Fatalf("ollama runtime not registered")
	}
	ans, err := rt.Ask(context.Background(), "highest rate?")
	if err != nil {
		t.Fatalf("Ask error: %v", err)
	}
	if ans.Text() != "Alameda." {
		t.Fatalf("unexpected answer %q", ans.Text())
	}
	if len(captured.Messages) != 2 || captured.Messages[0].Role != "system" || captured.Messages[1].Content != "highest rate?" {
		t.Fatalf("unexpected messages %+v", captured.Messages)
	}
	if !strings.Contains(captured.Messages[0].Content, "rows: 3") || captured.Model != DefaultOllamaModel {
		t.Fatalf("dataset context or model missing: %+v", captured)
	}
}

func TestOllamaMissingModel(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "model 'x' not found"})
	}))
	defer srv.Close()
	c := NewOllamaClient(srv.URL, 2*time.Second, 1, 0, 0)
	c.Model = "x"
	_, err := c.Ask(context.Background(), "hi")
	var mnf *ModelNotFoundError
	if !errors.As(err, &mnf) {
		t.Fatalf("expected ModelNotFoundError, got %v", err)
	}
}

func TestOllamaStream(t *testing.T) {
	srv := newIPv4Server(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		enc := json.NewEncoder(w)
		_ = enc.Encode(map[string]any{"message": map[string]any{"content": "Ala"}})
		_ = enc.Encode(map[string]any{"message": map[string]any{"content": "meda"}, "done": true})
	}))
	defer srv.Close()
	c := NewOllamaClient(srv.URL, 2*time.Second, 1, 0, 0)
	var b strings.Builder
	if err := c.AskStream(context.Background(), "hi", func(s string) { b.WriteString(s) }); err != nil {
		t.Fatalf("stream error: %v", err)
	}
	if b.String() != "Alameda" {
		t.Fatalf("unexpected stream %q", b.String())
	}
}

func TestProvidersRegistered(t *testing.T) {
	got := strings.Join(Providers(), ",")
	if got != "ollama,pandas" {
		t.Fatalf("unexpected providers %s", got)
	}
	if _, ok := GetRuntime("nope", RuntimeConfig{}); ok {
		t.Fatalf("unknown provider should not resolve")
	}
}
