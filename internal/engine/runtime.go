// Package engine talks to the external question-answering engine that turns
// natural-language questions about the dataset into answers.
package engine

import (
	"context"
	"errors"
	"sort"
	"time"
)

// Provider identifiers used for runtime selection.
const (
	ProviderPandas = "pandas"
	ProviderOllama = "ollama"
)

// Kind is the media type family of an answer.
type Kind string

const (
	KindText  Kind = "text"
	KindJSON  Kind = "json"
	KindImage Kind = "image"
)

// ContentType returns the HTTP Content-Type for the kind.
func (k Kind) ContentType() string {
	switch k {
	case KindJSON:
		return "application/json"
	case KindImage:
		return "image/png"
	}
	return "text/plain; charset=utf-8"
}

// Answer is one engine reply. Body holds UTF-8 text, a JSON document, or PNG
// bytes depending on Kind.
type Answer struct {
	Kind      Kind
	Body      []byte
	RequestID string
}

// Text returns the body as a string for text and JSON answers.
func (a *Answer) Text() string {
	if a == nil || a.Kind == KindImage {
		return ""
	}
	return string(a.Body)
}

// Runtime answers a question. Implementations must honour ctx cancellation
// and deadlines.
type Runtime interface {
	Ask(ctx context.Context, question string) (*Answer, error)
}

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("question cannot be empty")

// RuntimeFactory builds a Runtime from the generic config below.
type RuntimeFactory func(RuntimeConfig) Runtime

// RuntimeConfig carries common knobs used by runtimes.
type RuntimeConfig struct {
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// URL is the pandas engine base URL.
	URL string
	// Ollama
	Host  string
	Model string
	// Context is the dataset summary handed to chat models.
	Context string
}

var registry = map[string]RuntimeFactory{}

// RegisterRuntime registers a provider name with its factory.
func RegisterRuntime(name string, f RuntimeFactory) { registry[name] = f }

// GetRuntime creates a Runtime for the given provider if registered.
func GetRuntime(name string, cfg RuntimeConfig) (Runtime, bool) {
	if f, ok := registry[name]; ok {
		return f(cfg), true
	}
	return nil, false
}

// Providers lists the registered provider names.
func Providers() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	RegisterRuntime(ProviderPandas, func(c RuntimeConfig) Runtime {
		return NewQueryClient(c.URL, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay)
	})
	RegisterRuntime(ProviderOllama, func(c RuntimeConfig) Runtime {
		oc := NewOllamaClient(c.Host, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay)
		oc.Model = c.Model
		oc.System = c.Context
		return oc
	})
}
