// Package session holds the state of one interactive chat session: the URLs
// the user has collected and whether they have been indexed.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dgallion1/pagechat/internal/pipeline"
)

// DefaultMaxURLs caps how many URLs a session accepts.
const DefaultMaxURLs = 5

var (
	ErrInvalidURL        = errors.New("url is empty")
	ErrInvalidTransition = errors.New("invalid session transition")
)

// State is the lifecycle stage of a session.
type State int

const (
	Collecting State = iota
	ReadyToFinalize
	Indexing
	Ready
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "collecting"
	case ReadyToFinalize:
		return "ready_to_finalize"
	case Indexing:
		return "indexing"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// TransitionError reports an operation attempted in the wrong state.
type TransitionError struct {
	Op    string
	State State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s not allowed while %s", e.Op, e.State)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// ReportSummary is the outcome of the last indexing run.
type ReportSummary struct {
	RunID     string   `json:"run_id,omitempty"`
	Succeeded int      `json:"succeeded"`
	Partial   int      `json:"partial"`
	Failed    int      `json:"failed"`
	Chunks    int      `json:"chunks"`
	Errors    []string `json:"errors"`
}

// Summarize condenses a pipeline report for display.
func Summarize(r pipeline.Report) *ReportSummary {
	s := &ReportSummary{
		RunID:     r.RunID,
		Succeeded: r.Succeeded(),
		Partial:   r.Partial(),
		Failed:    r.Failed(),
		Chunks:    r.ChunksIndexed(),
		Errors:    []string{},
	}
	for _, res := range r.Results {
		for _, e := range res.Errors {
			s.Errors = append(s.Errors, fmt.Sprintf("%s: %s", res.URL, e))
		}
	}
	return s
}

// Snapshot is a point-in-time copy of a session.
type Snapshot struct {
	ID         string                `json:"id"`
	State      State                 `json:"state"`
	URLs       []string              `json:"urls"`
	MaxURLs    int                   `json:"max_urls"`
	Indexed    bool                  `json:"indexed"`
	LastError  string                `json:"last_error,omitempty"`
	LastReport *ReportSummary        `json:"last_report,omitempty"`
	Progress   *pipeline.RunSnapshot `json:"progress,omitempty"`
	UpdatedAt  time.Time             `json:"updated_at"`
}

// Session is safe for concurrent use.
type Session struct {
	mu sync.Mutex

	id        string
	state     State
	urls      []string
	maxURLs   int
	lastErr   error
	report    *ReportSummary
	run       *pipeline.Run
	updatedAt time.Time
}

// New creates an empty session accepting up to maxURLs URLs.
// A non-positive maxURLs falls back to DefaultMaxURLs.
func New(maxURLs int) *Session {
	if maxURLs <= 0 {
		maxURLs = DefaultMaxURLs
	}
	return &Session{
		id:        uuid.NewString(),
		state:     Collecting,
		maxURLs:   maxURLs,
		updatedAt: time.Now(),
	}
}

// ID identifies the session.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AddURL appends url to the session. It returns false without error when the
// session is already at capacity.
func (s *Session) AddURL(url string) (bool, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return false, ErrInvalidURL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Collecting && s.state != ReadyToFinalize {
		return false, &TransitionError{Op: "add url", State: s.state}
	}
	if len(s.urls) >= s.maxURLs {
		return false, nil
	}
	s.urls = append(s.urls, url)
	s.state = ReadyToFinalize
	s.touch()
	return true, nil
}

// BeginFinalize moves the session to Indexing and returns the URLs to index.
// The caller must follow up with CompleteFinalize.
func (s *Session) BeginFinalize() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != ReadyToFinalize {
		return nil, &TransitionError{Op: "finalize", State: s.state}
	}
	s.state = Indexing
	s.lastErr = nil
	s.touch()
	return append([]string(nil), s.urls...), nil
}

// CompleteFinalize ends an indexing run. A nil err moves the session to
// Ready; a non-nil err returns it to ReadyToFinalize with its URLs intact.
func (s *Session) CompleteFinalize(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Indexing {
		return
	}
	if err != nil {
		s.state = ReadyToFinalize
		s.lastErr = err
	} else {
		s.state = Ready
	}
	s.touch()
}

// Finalize runs fn over the collected URLs. Per-URL failures are reported by
// fn through other channels; only a returned error is treated as fatal.
func (s *Session) Finalize(ctx context.Context, fn func(ctx context.Context, urls []string) error) error {
	urls, err := s.BeginFinalize()
	if err != nil {
		return err
	}
	err = fn(ctx, urls)
	s.CompleteFinalize(err)
	return err
}

// Track attaches the progress record of the indexing run in flight.
func (s *Session) Track(run *pipeline.Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = run
}

// SetReport stores the outcome of the last indexing run.
func (s *Session) SetReport(r pipeline.Report) {
	sum := Summarize(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.report = sum
	s.touch()
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:         s.id,
		State:      s.state,
		URLs:       append([]string{}, s.urls...),
		MaxURLs:    s.maxURLs,
		Indexed:    s.state == Ready,
		LastReport: s.report,
		UpdatedAt:  s.updatedAt,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	if s.run != nil {
		p := s.run.Snapshot()
		snap.Progress = &p
	}
	return snap
}

func (s *Session) touch() {
	s.updatedAt = time.Now()
}
