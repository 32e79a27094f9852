package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/KaramelBytes/crimescope-cli/internal/analysis"
	cfgpkg "github.com/KaramelBytes/crimescope-cli/internal/config"
	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
	"github.com/KaramelBytes/crimescope-cli/internal/engine"
	"github.com/KaramelBytes/crimescope-cli/internal/logger"
	"github.com/KaramelBytes/crimescope-cli/internal/utils"
)

// maxContextTokens caps the dataset summary sent to chat models.
const maxContextTokens = 6000

// newRuntime builds the configured engine runtime. Chat runtimes get a
// dataset summary as context; ds may be nil.
func newRuntime(conf *cfgpkg.Global, provider string, ds *dataset.Dataset) (engine.Runtime, error) {
	if provider == "" {
		provider = conf.EngineProvider
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	rc := engine.RuntimeConfig{
		HTTPTimeout: conf.HTTPTimeout(),
		RetryMax:    conf.RetryMaxAttempts,
		BaseDelay:   msDuration(conf.RetryBaseDelayMs),
		MaxDelay:    msDuration(conf.RetryMaxDelayMs),
		URL:         conf.EngineURL,
		Host:        conf.OllamaHost,
		Model:       conf.EngineModel,
	}
	if provider == engine.ProviderOllama && ds != nil {
		opt := analysis.DefaultOptions()
		opt.Category = conf.DefaultCategory
		if opt.Category != "" && !ds.HasCategory(opt.Category) {
			opt.Category = ""
		}
		rc.Context = utils.TruncateLines(analysis.Summarize(ds, opt).Markdown(), maxContextTokens)
	}
	rt, ok := engine.GetRuntime(provider, rc)
	if !ok {
		return nil, fmt.Errorf("unknown engine provider %q (use %s)", provider, strings.Join(engine.Providers(), " or "))
	}
	logger.L().Debug("engine_runtime", "provider", provider, "url", conf.EngineURL, "ollama_host", conf.OllamaHost)
	return rt, nil
}

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

func secDuration(s int) time.Duration { return time.Duration(s) * time.Second }
