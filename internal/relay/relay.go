// Package relay is the HTTP service: the choropleth API, the dashboard and
// the /ask endpoint that forwards questions to the engine.
package relay

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/KaramelBytes/crimescope-cli/internal/engine"
	"github.com/KaramelBytes/crimescope-cli/internal/logger"
	"github.com/KaramelBytes/crimescope-cli/internal/metrics"
	"github.com/KaramelBytes/crimescope-cli/internal/pipeline"
	"github.com/KaramelBytes/crimescope-cli/internal/session"
	"github.com/KaramelBytes/crimescope-cli/internal/source"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ViewDefaults are the pipeline settings used when a request and its session
// do not choose otherwise.
type ViewDefaults struct {
	Category    string
	Scale       string
	CustomScale []string
	Window      pipeline.Window
	Override    *pipeline.Range
	Join        pipeline.JoinOptions
	Hover       pipeline.HoverOptions
	StrictHover bool
}

// Options configures a Server.
type Options struct {
	Title string
	// Provider labels engine metrics.
	Provider string
	// EngineTimeout bounds one engine call; 0 leaves only the request context.
	EngineTimeout time.Duration
	// AskRatePerMin limits /ask per client IP; 0 disables the limit.
	AskRatePerMin int
	CORSOrigins   []string
	View          ViewDefaults
}

// Server holds the shared, read-only sources and the mutable session store.
type Server struct {
	opt      Options
	src      *source.Sources
	rt       engine.Runtime
	sessions session.Store
	limiter  *ipLimiter
	log      *slog.Logger
}

// New builds a Server. rt may be nil, in which case /ask answers 503.
func New(src *source.Sources, rt engine.Runtime, sessions session.Store, opt Options) *Server {
	if opt.Provider == "" {
		opt.Provider = "unknown"
	}
	return &Server{
		opt:      opt,
		src:      src,
		rt:       rt,
		sessions: sessions,
		limiter:  newIPLimiter(opt.AskRatePerMin),
		log:      logger.L(),
	}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(logger.AccessMiddleware(s.log))
	r.Use(corsMiddleware(s.opt.CORSOrigins))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.sessionMiddleware)
		r.Get("/", s.handleDashboard)
		r.Post("/ask", s.handleAsk)
		r.Get("/history", s.handleHistory)
		r.Delete("/history", s.handleClearHistory)
		r.Route("/api", func(r chi.Router) {
			r.Get("/years", s.handleYears)
			r.Get("/categories", s.handleCategories)
			r.Get("/view", s.handleView)
			r.Get("/map.geojson", s.handleGeoJSON)
			r.Get("/chart/trend.png", s.handleChart(chartTrend))
			r.Get("/chart/bars.png", s.handleChart(chartBars))
			r.Get("/region", s.handleRegion)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":            "ok",
		"dataset_loaded":    s.src.Dataset.Loaded(),
		"boundaries_loaded": s.src.Boundaries.Loaded(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
