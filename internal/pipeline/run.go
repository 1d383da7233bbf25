package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// URLStatus is the stage a URL has reached within a run.
type URLStatus string

const (
	StatusQueued    URLStatus = "queued"
	StatusFetching  URLStatus = "fetching"
	StatusChunking  URLStatus = "chunking"
	StatusEmbedding URLStatus = "embedding"
	StatusInserting URLStatus = "inserting"
	StatusIndexed   URLStatus = "indexed"
	StatusPartial   URLStatus = "partial"
	StatusFailed    URLStatus = "failed"
)

// Done reports whether the status is terminal.
func (s URLStatus) Done() bool {
	return s == StatusIndexed || s == StatusPartial || s == StatusFailed
}

// URLProgress tracks one URL through the pipeline.
type URLProgress struct {
	URL         string    `json:"url"`
	Status      URLStatus `json:"status"`
	Title       string    `json:"title,omitempty"`
	ContentHash string    `json:"content_hash,omitempty"`
	Chunks      int       `json:"chunks"`
	Embedded    int       `json:"embedded"`
	Inserted    int       `json:"inserted"`
	Errors      []string  `json:"errors"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Run is the thread-safe progress record of one ProcessMany call.
type Run struct {
	mu sync.Mutex

	ID         string
	StartedAt  time.Time
	FinishedAt time.Time

	urls    []*URLProgress
	results []URLResult
	err     error
}

// NewRun creates a run for urls with every URL queued.
func NewRun(urls []string) *Run {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	now := time.Now()
	r := &Run{
		ID:        id.String(),
		StartedAt: now,
		urls:      make([]*URLProgress, len(urls)),
		results:   make([]URLResult, len(urls)),
	}
	for i, u := range urls {
		r.urls[i] = &URLProgress{URL: u, Status: StatusQueued, UpdatedAt: now}
		r.results[i] = URLResult{URL: u, Status: StatusQueued}
	}
	return r
}

// URLs returns the URLs in submission order.
func (r *Run) URLs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.urls))
	for i, p := range r.urls {
		out[i] = p.URL
	}
	return out
}

func (r *Run) update(i int, fn func(p *URLProgress)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.urls[i])
	r.urls[i].UpdatedAt = time.Now()
}

// SetStatus updates the stage of the i-th URL.
func (r *Run) SetStatus(i int, status URLStatus) {
	r.update(i, func(p *URLProgress) { p.Status = status })
}

// AddError records an error against the i-th URL.
func (r *Run) AddError(i int, err error) {
	r.update(i, func(p *URLProgress) { p.Errors = append(p.Errors, err.Error()) })
}

func (r *Run) finishURL(i int, res URLResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results[i] = res
	p := r.urls[i]
	p.Status = res.Status
	p.Chunks = res.Chunks
	p.Inserted = res.Inserted
	p.UpdatedAt = time.Now()
}

func (r *Run) finish(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
	r.FinishedAt = time.Now()
}

// Report builds the batch summary from the results recorded so far.
func (r *Run) Report() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	results := make([]URLResult, len(r.results))
	copy(results, r.results)
	return Report{
		RunID:      r.ID,
		Results:    results,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
}

// RunSnapshot is a read-only, JSON-safe copy of run state.
type RunSnapshot struct {
	ID         string        `json:"run_id"`
	Done       bool          `json:"done"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	URLs       []URLProgress `json:"urls"`
}

// Snapshot returns a JSON-safe copy of the run state.
func (r *Run) Snapshot() RunSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := RunSnapshot{
		ID:        r.ID,
		Done:      !r.FinishedAt.IsZero(),
		StartedAt: r.StartedAt,
		URLs:      make([]URLProgress, len(r.urls)),
	}
	if snap.Done {
		t := r.FinishedAt
		snap.FinishedAt = &t
	}
	if r.err != nil {
		snap.Error = r.err.Error()
	}
	for i, p := range r.urls {
		cp := *p
		cp.Errors = append([]string{}, p.Errors...)
		snap.URLs[i] = cp
	}
	return snap
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
