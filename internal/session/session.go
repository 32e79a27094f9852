// Package session keeps per-visitor dashboard state: the selected filters and
// the question history of the chat widget.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// CookieName is the cookie carrying the session id.
const CookieName = "session_id"

var (
	// ErrNotFound is returned when no live state exists for an id.
	ErrNotFound = errors.New("session not found")
	// ErrBusy is returned by Begin while a question is still being answered.
	ErrBusy = errors.New("a question is already being answered")
)

// Exchange is one question and its outcome.
type Exchange struct {
	Question string    `json:"question"`
	Kind     string    `json:"kind,omitempty"`
	Answer   string    `json:"answer,omitempty"`
	Status   int       `json:"status"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// State is everything remembered for one session.
type State struct {
	ID       string `json:"id"`
	Year     int    `json:"year,omitempty"`
	Category string `json:"category,omitempty"`
	Scale    string `json:"scale,omitempty"`
	// History is in arrival order.
	History      []Exchange `json:"history"`
	Pending      bool       `json:"pending"`
	PendingSince time.Time  `json:"pending_since,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// NewID returns a fresh random session id.
func NewID() string { return uuid.NewString() }

// ValidID reports whether id looks like one produced by NewID.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// New returns an idle state with no history.
func New(id string) *State {
	return &State{ID: id, UpdatedAt: time.Now()}
}

// Append records an exchange.
func (s *State) Append(e Exchange) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.History = append(s.History, e)
	s.UpdatedAt = e.At
}

// Recent returns the history most-recent-first. limit <= 0 returns all.
func (s *State) Recent(limit int) []Exchange {
	n := len(s.History)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Exchange, 0, n)
	for i := len(s.History) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.History[i])
	}
	return out
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	c := *s
	c.History = append([]Exchange(nil), s.History...)
	return &c
}

// Store persists states. Update loads (or creates) the state for id, applies
// fn and saves the result atomically with respect to other Update calls.
type Store interface {
	Get(ctx context.Context, id string) (*State, error)
	Update(ctx context.Context, id string, fn func(*State) error) (*State, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

// Begin marks the session as awaiting an answer. A pending flag older than
// staleAfter is treated as abandoned; staleAfter <= 0 never expires it.
func Begin(ctx context.Context, st Store, id string, staleAfter time.Duration) error {
	_, err := st.Update(ctx, id, func(s *State) error {
		if s.Pending && (staleAfter <= 0 || time.Since(s.PendingSince) < staleAfter) {
			return ErrBusy
		}
		s.Pending = true
		s.PendingSince = time.Now()
		return nil
	})
	return err
}

// Finish appends the exchange and returns the session to idle.
func Finish(ctx context.Context, st Store, id string, e Exchange) error {
	_, err := st.Update(ctx, id, func(s *State) error {
		s.Pending = false
		s.PendingSince = time.Time{}
		s.Append(e)
		return nil
	})
	return err
}
