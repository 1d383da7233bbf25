package pipeline

import (
	"errors"
	"time"
)

// URLResult is the outcome of processing one URL.
type URLResult struct {
	URL         string
	Status      URLStatus
	Title       string
	ContentHash string
	Chunks      int // Chunks produced by the splitter
	Inserted    int // Chunks embedded and stored
	Errors      []error
	Duration    time.Duration
}

// Err joins the errors recorded for the URL.
func (r URLResult) Err() error {
	return errors.Join(r.Errors...)
}

// OK reports whether at least one chunk of the URL was indexed.
func (r URLResult) OK() bool {
	return r.Inserted > 0
}

// Report summarizes a ProcessMany call, one result per URL in input order.
type Report struct {
	RunID      string
	Results    []URLResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Succeeded counts URLs with every chunk indexed.
func (r Report) Succeeded() int {
	return r.count(StatusIndexed)
}

// Partial counts URLs where some chunks failed to embed.
func (r Report) Partial() int {
	return r.count(StatusPartial)
}

// Failed counts URLs with nothing indexed.
func (r Report) Failed() int {
	n := 0
	for _, res := range r.Results {
		if !res.OK() {
			n++
		}
	}
	return n
}

// ChunksIndexed totals inserted chunks across URLs.
func (r Report) ChunksIndexed() int {
	n := 0
	for _, res := range r.Results {
		n += res.Inserted
	}
	return n
}

// AnyIndexed reports whether any URL contributed chunks.
func (r Report) AnyIndexed() bool {
	return r.ChunksIndexed() > 0
}

// Err joins every per-URL error.
func (r Report) Err() error {
	var errs []error
	for _, res := range r.Results {
		errs = append(errs, res.Errors...)
	}
	return errors.Join(errs...)
}

func (r Report) count(s URLStatus) int {
	n := 0
	for _, res := range r.Results {
		if res.Status == s {
			n++
		}
	}
	return n
}
