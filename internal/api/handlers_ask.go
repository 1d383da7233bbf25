package api

import (
	"errors"
	"net/http"

	"github.com/dgallion1/pagechat/internal/answer"
	"github.com/dgallion1/pagechat/internal/session"
)

type askRequest struct {
	Question string `json:"question"`
}

type askResponse struct {
	Answer  string   `json:"answer"`
	Sources []string `json:"sources"`
	NoInfo  bool     `json:"no_info"`
}

type askErrorResponse struct {
	Error   string   `json:"error"`
	Sources []string `json:"sources"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	if st := s.session().State(); st != session.Ready {
		jsonError(w, "session is "+st.String()+"; finalize urls before asking", http.StatusConflict)
		return
	}

	var req askRequest
	if err := decodeJSON(w, r, &req); err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.answerer.Answer(r.Context(), req.Question)
	switch {
	case errors.Is(err, answer.ErrEmptyQuestion):
		jsonError(w, "question is required", http.StatusBadRequest)
		return
	case errors.Is(err, answer.ErrGenerationFailed):
		sources := res.Sources
		if sources == nil {
			sources = []string{}
		}
		writeJSON(w, http.StatusBadGateway, askErrorResponse{Error: err.Error(), Sources: sources})
		return
	case errors.Is(err, answer.ErrQueryEmbedding):
		jsonError(w, err.Error(), http.StatusBadGateway)
		return
	case err != nil:
		s.log.Error("answer failed", "error", err)
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, askResponse{Answer: res.Answer, Sources: res.Sources, NoInfo: res.NoInfo})
}
