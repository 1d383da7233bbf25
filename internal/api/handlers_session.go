package api

import (
	"errors"
	"net/http"

	"github.com/dgallion1/pagechat/internal/pipeline"
	"github.com/dgallion1/pagechat/internal/session"
)

type addURLRequest struct {
	URL string `json:"url"`
}

type addURLResponse struct {
	Accepted bool             `json:"accepted"`
	Session  session.Snapshot `json:"session"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session().Snapshot())
}

func (s *Server) handleAddURL(w http.ResponseWriter, r *http.Request) {
	var req addURLRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess := s.session()
	ok, err := sess.AddURL(req.URL)
	switch {
	case errors.Is(err, session.ErrInvalidURL):
		jsonError(w, "url is required", http.StatusBadRequest)
		return
	case errors.Is(err, session.ErrInvalidTransition):
		jsonError(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		s.log.Info("url rejected at session cap", "url", req.URL, "max_urls", sess.Snapshot().MaxURLs)
	}
	writeJSON(w, http.StatusOK, addURLResponse{Accepted: ok, Session: sess.Snapshot()})
}

// handleFinalize starts indexing in the background and returns immediately.
// Progress is visible through GET /api/session.
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	// mu is held until the session is Indexing so a reset cannot swap it out
	// and clear the index under this run.
	s.mu.Lock()
	sess := s.sess
	urls, err := sess.BeginFinalize()
	s.mu.Unlock()
	if err != nil {
		jsonError(w, err.Error(), http.StatusConflict)
		return
	}

	run := pipeline.NewRun(urls)
	sess.Track(run)
	log := s.log.With("session_id", sess.ID(), "run_id", run.ID)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		report, err := s.indexer.Execute(s.bg, run)
		sess.SetReport(report)
		if err != nil {
			// Drop the partial run so a retry does not index chunks twice.
			s.index.Clear()
			log.Error("indexing aborted", "error", err)
		} else {
			log.Info("session indexed",
				"succeeded", report.Succeeded(),
				"partial", report.Partial(),
				"failed", report.Failed(),
				"chunks", report.ChunksIndexed(),
			)
		}
		sess.CompleteFinalize(err)
	}()

	writeJSON(w, http.StatusAccepted, sess.Snapshot())
}

// handleReset discards the session and its index.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.sess.State() == session.Indexing {
		s.mu.Unlock()
		jsonError(w, "cannot reset while indexing", http.StatusConflict)
		return
	}
	s.sess = session.New(s.cfg.MaxSessionURLs)
	sess := s.sess
	s.mu.Unlock()

	s.index.Clear()
	writeJSON(w, http.StatusOK, sess.Snapshot())
}
