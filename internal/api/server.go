package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dgallion1/pagechat/internal/answer"
	"github.com/dgallion1/pagechat/internal/config"
	"github.com/dgallion1/pagechat/internal/llm"
	"github.com/dgallion1/pagechat/internal/pipeline"
	"github.com/dgallion1/pagechat/internal/session"
)

// Indexer runs a tracked indexing pass over a session's URLs.
type Indexer interface {
	Execute(ctx context.Context, run *pipeline.Run) (pipeline.Report, error)
}

// Answerer answers questions against the indexed pages.
type Answerer interface {
	Answer(ctx context.Context, question string) (answer.Result, error)
}

// Index is the part of the vector index the server manages directly.
type Index interface {
	Clear()
	Len() int
	Dimension() int
	Sources() []string
}

// StatsSource exposes model call latencies.
type StatsSource interface {
	Model() string
	Metrics() *llm.Metrics
}

// Server is the HTTP front end for one interactive chat session.
type Server struct {
	router   chi.Router
	indexer  Indexer
	answerer Answerer
	index    Index
	stats    StatsSource
	log      *slog.Logger
	cfg      config.Config

	mu   sync.Mutex
	sess *session.Session

	// Background indexing outlives the finalize request.
	bg   context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

// NewServer creates and configures the HTTP server.
func NewServer(indexer Indexer, answerer Answerer, index Index, stats StatsSource, log *slog.Logger, cfg config.Config) *Server {
	bg, stop := context.WithCancel(context.Background())
	s := &Server{
		indexer:  indexer,
		answerer: answerer,
		index:    index,
		stats:    stats,
		log:      log,
		cfg:      cfg,
		sess:     session.New(cfg.MaxSessionURLs),
		bg:       bg,
		stop:     stop,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close cancels any indexing still running and waits for it to stop.
func (s *Server) Close() {
	s.stop()
	s.wg.Wait()
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleIndexPage)

	r.Route("/api", func(r chi.Router) {
		r.Get("/session", s.handleGetSession)
		r.Post("/session/urls", s.handleAddURL)
		r.Post("/session/finalize", s.handleFinalize)
		r.Post("/session/reset", s.handleReset)
		r.Post("/ask", s.handleAsk)
		r.Get("/stats/llm", s.handleLLMStats)
	})

	s.router = r
}

func (s *Server) session() *session.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}
