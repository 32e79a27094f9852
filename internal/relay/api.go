package relay

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/KaramelBytes/crimescope-cli/internal/boundary"
	"github.com/KaramelBytes/crimescope-cli/internal/dataset"
	"github.com/KaramelBytes/crimescope-cli/internal/metrics"
	"github.com/KaramelBytes/crimescope-cli/internal/pipeline"
	"github.com/KaramelBytes/crimescope-cli/internal/render"
	"github.com/KaramelBytes/crimescope-cli/internal/session"
)

// badRequest is a parameter error reported to the client as 400.
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func badParam(format string, args ...any) error {
	return &badRequest{msg: fmt.Sprintf(format, args...)}
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	var br *badRequest
	if errors.As(err, &br) {
		writeError(w, http.StatusBadRequest, br.msg)
		return
	}
	if errors.Is(err, pipeline.ErrYearRange) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.log.Error("request failed", "err", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func queryInt(r *http.Request, name string) (int, bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, badParam("invalid %s %q", name, v)
	}
	return n, true, nil
}

// selection is the resolved filter state of one request.
type selection struct {
	Years    dataset.YearRange
	Category string
	Scale    string
}

// selectionFor merges query parameters over the session state over the
// configured defaults. The latest dataset year is used when nothing chooses.
func (s *Server) selectionFor(r *http.Request, ds *dataset.Dataset, st *session.State) (selection, error) {
	sel := selection{Category: s.opt.View.Category, Scale: s.opt.View.Scale}
	if st != nil {
		if st.Year != 0 {
			sel.Years = dataset.SingleYear(st.Year)
		}
		if st.Category != "" {
			sel.Category = st.Category
		}
		if st.Scale != "" {
			sel.Scale = st.Scale
		}
	}

	year, hasYear, err := queryInt(r, "year")
	if err != nil {
		return sel, err
	}
	from, hasFrom, err := queryInt(r, "from")
	if err != nil {
		return sel, err
	}
	to, hasTo, err := queryInt(r, "to")
	if err != nil {
		return sel, err
	}
	switch {
	case hasYear:
		sel.Years = dataset.SingleYear(year)
	case hasFrom || hasTo:
		sel.Years = dataset.YearRange{From: from, To: to}
	}
	if sel.Years.From != 0 && sel.Years.To != 0 && sel.Years.From > sel.Years.To {
		return sel, badParam("invalid year range %d-%d", sel.Years.From, sel.Years.To)
	}
	if sel.Years.IsZero() {
		if ys := ds.Years(); len(ys) > 0 {
			sel.Years = dataset.SingleYear(ys[len(ys)-1])
		}
	}
	if !sel.Years.IsZero() && !sel.Years.Single() {
		return sel, badParam("a view needs a single year, got %d-%d", sel.Years.From, sel.Years.To)
	}

	q := r.URL.Query()
	if c := q.Get("category"); c != "" {
		sel.Category = c
	}
	if sel.Category != "" && !ds.HasCategory(sel.Category) {
		return sel, badParam("unknown category %q", sel.Category)
	}
	if sc := q.Get("scale"); sc != "" {
		sel.Scale = sc
	}
	return sel, nil
}

// remember stores the selection in the session so the next page load
// starts where the visitor left off.
func (s *Server) remember(r *http.Request, sel selection) {
	_, err := s.sessions.Update(r.Context(), sessionID(r), func(st *session.State) error {
		st.Year = sel.Years.From
		st.Category = sel.Category
		st.Scale = sel.Scale
		return nil
	})
	if err != nil {
		s.log.Warn("session update failed", "err", err)
	}
}

func (s *Server) sessionState(r *http.Request) *session.State {
	st, err := s.sessions.Get(r.Context(), sessionID(r))
	if err != nil {
		return nil
	}
	return st
}

// buildView runs the pipeline for the request and records the selection.
func (s *Server) buildView(r *http.Request, output string) (*pipeline.View, *dataset.Dataset, *boundary.Set, error) {
	ds, regions, err := s.src.Both(r.Context())
	if err != nil {
		return nil, nil, nil, err
	}
	sel, err := s.selectionFor(r, ds, s.sessionState(r))
	if err != nil {
		return nil, nil, nil, err
	}
	p, err := s.params(r, sel)
	if err != nil {
		return nil, nil, nil, err
	}
	v, err := pipeline.Build(ds, regions, p)
	if err != nil {
		return nil, nil, nil, err
	}
	s.remember(r, sel)
	metrics.ViewBuildsTotal.WithLabelValues(output).Inc()
	metrics.JoinDroppedTotal.WithLabelValues("records").Add(float64(len(v.DroppedRecords)))
	metrics.JoinDroppedTotal.WithLabelValues("regions").Add(float64(len(v.DroppedRegions)))
	metrics.HoverIssuesTotal.Add(float64(len(v.Issues)))
	return v, ds, regions, nil
}

func (s *Server) params(r *http.Request, sel selection) (pipeline.Params, error) {
	d := s.opt.View
	custom := d.CustomScale
	if sel.Scale != "" && sel.Scale != d.Scale && !strings.EqualFold(sel.Scale, "custom") {
		custom = nil
	}
	sc, err := pipeline.LookupScale(sel.Scale, custom)
	if err != nil {
		return pipeline.Params{}, badParam("%v", err)
	}
	p := pipeline.Params{
		Years:       sel.Years,
		Category:    sel.Category,
		Scale:       sc,
		Window:      d.Window,
		Override:    d.Override,
		Join:        d.Join,
		Hover:       d.Hover,
		StrictHover: d.StrictHover,
	}
	q := r.URL.Query()
	if w := q.Get("window"); w != "" {
		win, err := pipeline.ParseWindow(w)
		if err != nil {
			return p, badParam("%v", err)
		}
		p.Window = win
		p.Override = nil
	}
	if v := q.Get("discrete"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return p, badParam("invalid discrete %q", v)
		}
		p.Discrete = b
	}
	return p, nil
}

type viewResponse struct {
	*pipeline.View
	Issues  []string         `json:"issues"`
	Records []dataset.Record `json:"records,omitempty"`
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	v, ds, _, err := s.buildView(r, "json")
	if err != nil {
		s.fail(w, err)
		return
	}
	resp := viewResponse{View: v, Issues: v.IssueStrings()}
	if r.URL.Query().Get("raw") == "1" {
		resp.Records = dataset.Filter(ds, dataset.Query{Years: v.Years, Category: v.Category})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGeoJSON(w http.ResponseWriter, r *http.Request) {
	v, _, _, err := s.buildView(r, "geojson")
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	if err := render.WriteGeoJSON(w, v); err != nil {
		s.log.Error("write geojson", "err", err)
	}
}

func (s *Server) handleYears(w http.ResponseWriter, r *http.Request) {
	ds, err := s.src.Dataset.Get(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds.Years())
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	ds, err := s.src.Dataset.Get(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ds.Categories())
}

type chartKind int

const (
	chartTrend chartKind = iota
	chartBars
)

func (s *Server) handleChart(kind chartKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ds, err := s.src.Dataset.Get(r.Context())
		if err != nil {
			s.fail(w, err)
			return
		}
		q := r.URL.Query()
		from, _, err := queryInt(r, "from")
		if err != nil {
			s.fail(w, err)
			return
		}
		to, _, err := queryInt(r, "to")
		if err != nil {
			s.fail(w, err)
			return
		}
		width, _, err := queryInt(r, "width")
		if err != nil {
			s.fail(w, err)
			return
		}
		height, _, err := queryInt(r, "height")
		if err != nil {
			s.fail(w, err)
			return
		}
		if width > 4000 || height > 4000 {
			s.fail(w, badParam("chart too large"))
			return
		}
		category := q.Get("category")
		if category == "" {
			category = s.opt.View.Category
		}
		if category == "" {
			category = pipeline.DefaultAggregateCategory
		}
		query := dataset.Query{Years: dataset.YearRange{From: from, To: to}, Category: category, Region: q.Get("region")}
		pts := pipeline.Trend(ds, query)

		opt := render.ChartOptions{Title: category, Width: width, Height: height}
		if query.Region != "" {
			opt.Title = category + " in " + query.Region
		}
		var png []byte
		if kind == chartBars {
			sc, err := pipeline.LookupScale(s.opt.View.Scale, s.opt.View.CustomScale)
			if err == nil {
				opt.Scale = sc
			}
			png, err = render.BarsPNG(pts, opt)
			if err != nil {
				s.chartFail(w, err)
				return
			}
		} else {
			png, err = render.TrendPNG(pts, opt)
			if err != nil {
				s.chartFail(w, err)
				return
			}
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}
}

func (s *Server) chartFail(w http.ResponseWriter, err error) {
	if errors.Is(err, render.ErrNoData) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.fail(w, err)
}

func (s *Server) handleRegion(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lon, err1 := strconv.ParseFloat(q.Get("lon"), 64)
	lat, err2 := strconv.ParseFloat(q.Get("lat"), 64)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "lon and lat are required")
		return
	}
	v, _, regions, err := s.buildView(r, "region")
	if err != nil {
		s.fail(w, err)
		return
	}
	reg, ok := regions.Locate(lon, lat)
	if !ok {
		writeError(w, http.StatusNotFound, "no region at that point")
		return
	}
	for _, jr := range v.Regions {
		if jr.Name == reg.Name {
			writeJSON(w, http.StatusOK, jr)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"name": reg.Name})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ds, err := s.src.Dataset.Get(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	sel, err := s.selectionFor(r, ds, s.sessionState(r))
	if err != nil {
		s.fail(w, err)
		return
	}
	category := sel.Category
	if category == "" {
		category = pipeline.DefaultAggregateCategory
	}
	scales := pipeline.ScaleNames()
	if len(s.opt.View.CustomScale) > 0 {
		scales = append(scales, "custom")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = render.Dashboard(w, render.DashboardData{
		Title:      s.opt.Title,
		Years:      ds.Years(),
		Categories: ds.Categories(),
		Scales:     scales,
		Year:       sel.Years.To,
		Category:   category,
		Scale:      sel.Scale,
	})
	if err != nil {
		s.log.Error("render dashboard", "err", err)
	}
}
