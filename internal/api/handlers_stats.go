package api

import (
	"net/http"
)

func (s *Server) handleLLMStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil || s.stats.Metrics() == nil {
		jsonError(w, "llm stats unavailable", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"model":          s.stats.Model(),
		"stats":          s.stats.Metrics().Snapshot(),
		"indexed_chunks": s.index.Len(),
		"dimension":      s.index.Dimension(),
	})
}
