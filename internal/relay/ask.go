package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/KaramelBytes/crimescope-cli/internal/engine"
	"github.com/KaramelBytes/crimescope-cli/internal/metrics"
	"github.com/KaramelBytes/crimescope-cli/internal/session"
)

type askRequest struct {
	Prompt string `json:"prompt"`
}

const (
	msgInvalidJSON = "Invalid JSON body"
	msgNoPrompt    = "No prompt provided"
	msgBusy        = "A question is already being answered"
	msgTimeout     = "Request timed out. Please try again later."
	msgConnect     = "Failed to connect to the server. Please check your network."
	msgRateLimited = "Too many requests"
)

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.allow(r) {
		s.askFail(w, http.StatusTooManyRequests, msgRateLimited)
		return
	}
	var req askRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		s.askFail(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.askFail(w, http.StatusBadRequest, msgNoPrompt)
		return
	}
	if s.rt == nil {
		s.askFail(w, http.StatusServiceUnavailable, msgConnect)
		return
	}

	id := sessionID(r)
	if err := session.Begin(r.Context(), s.sessions, id, s.staleAfter()); err != nil {
		if errors.Is(err, session.ErrBusy) {
			s.askFail(w, http.StatusConflict, msgBusy)
			return
		}
		s.log.Error("session begin failed", "session", id, "err", err)
		s.askFail(w, http.StatusInternalServerError, "An unexpected error occurred: "+err.Error())
		return
	}

	ex := session.Exchange{Question: req.Prompt}
	// The session must be idle again before any response byte is written.
	finished := false
	finish := func() {
		if finished {
			return
		}
		finished = true
		// Record the outcome even if the client went away.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
		defer cancel()
		ex.At = time.Now()
		if err := session.Finish(ctx, s.sessions, id, ex); err != nil {
			s.log.Error("session finish failed", "session", id, "err", err)
		}
	}
	defer finish()

	ctx := r.Context()
	if s.opt.EngineTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opt.EngineTimeout)
		defer cancel()
	}
	start := time.Now()
	ans, err := s.rt.Ask(ctx, req.Prompt)
	metrics.EngineDurationMs.WithLabelValues(s.opt.Provider).Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		status, msg := classify(err)
		s.log.Warn("engine request failed", "session", id, "status", status, "err", err)
		ex.Status, ex.Error = status, msg
		finish()
		s.askFail(w, status, msg)
		return
	}

	ex.Status = http.StatusOK
	ex.Kind = string(ans.Kind)
	ex.Answer = historyAnswer(ans)
	finish()
	metrics.AskRequestsTotal.WithLabelValues(strconv.Itoa(http.StatusOK)).Inc()
	if ans.RequestID != "" {
		w.Header().Set("X-Request-ID", ans.RequestID)
	}
	w.Header().Set("Content-Type", ans.Kind.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(ans.Body)
}

func (s *Server) askFail(w http.ResponseWriter, status int, msg string) {
	metrics.AskRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	writeError(w, status, msg)
}

func (s *Server) staleAfter() time.Duration {
	if s.opt.EngineTimeout <= 0 {
		return 0
	}
	return 2 * s.opt.EngineTimeout
}

func historyAnswer(a *engine.Answer) string {
	if a.Kind == engine.KindImage {
		return "data:image/png;base64," + base64.StdEncoding.EncodeToString(a.Body)
	}
	return string(a.Body)
}

// classify maps an engine failure onto the status and message the client sees.
func classify(err error) (int, string) {
	var (
		te *engine.TimeoutError
		ue *engine.UnreachableError
		br *engine.BadRequestError
		ne net.Error
	)
	switch {
	case errors.As(err, &te), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, msgTimeout
	case errors.As(err, &ne) && ne.Timeout():
		return http.StatusGatewayTimeout, msgTimeout
	case errors.As(err, &ue), errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET):
		return http.StatusServiceUnavailable, msgConnect
	case errors.As(err, &br):
		return http.StatusBadRequest, "Data error: " + br.Reason()
	}
	return http.StatusInternalServerError, "An unexpected error occurred: " + err.Error()
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	st, err := s.sessions.Get(r.Context(), sessionID(r))
	if errors.Is(err, session.ErrNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"history": []session.Exchange{}, "pending": false})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": st.Recent(limit), "pending": st.Pending})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	_, err := s.sessions.Update(r.Context(), sessionID(r), func(st *session.State) error {
		st.History = nil
		return nil
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
