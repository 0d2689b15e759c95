package gateway

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lumikids/pip/pkg/core"
	"github.com/lumikids/pip/pkg/engine"
	"github.com/lumikids/pip/pkg/session"
	"github.com/lumikids/pip/pkg/story"
	"github.com/lumikids/pip/pkg/therapy"
	"github.com/lumikids/pip/pkg/voice/tts"
)

// Deps are the wired components the server exposes. Tests inject scripted
// providers here.
type Deps struct {
	Provider  core.Provider
	Store     *session.Store
	Narrators map[string]tts.Provider // keyed by session TTS engine preference
	Default   string                  // narrator used when the session has no preference
}

// Server routes the companion's flows. All state mutation happens under a
// per-session lock: the core packages require callers to serialize, and
// the gateway is the caller here.
type Server struct {
	cfg    Config
	logger *slog.Logger
	deps   Deps

	engine  *engine.Engine
	therapy *therapy.Controller
	story   *story.Controller

	metrics  *metrics
	registry *prometheus.Registry
	router   chi.Router

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New assembles the server.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()
	s := &Server{
		cfg:      cfg,
		logger:   logger,
		deps:     deps,
		engine:   engine.New(deps.Provider, cfg.ChatModel, engine.WithLogger(logger)),
		therapy:  therapy.NewController(deps.Provider, cfg.ChatModel, therapy.WithLogger(logger)),
		metrics:  newMetrics(registry),
		registry: registry,
		locks:    map[string]*sync.Mutex{},
	}

	storyOpts := []story.Option{story.WithLogger(logger)}
	if narrator := deps.Narrators[deps.Default]; narrator != nil {
		storyOpts = append(storyOpts, story.WithNarrator(narrator))
	}
	s.story = story.NewController(deps.Provider, cfg.ChatModel, storyOpts...)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if cfg.HandlerTimeout > 0 {
		r.Use(middleware.Timeout(cfg.HandlerTimeout))
	}
	if cfg.MaxBodyBytes > 0 {
		r.Use(middleware.RequestSize(cfg.MaxBodyBytes))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat", s.handleChat)
		r.Post("/practice/task", s.handlePracticeTask)
		r.Post("/practice/assess", s.handlePracticeAssess)
		r.Post("/practice/baseline", s.handlePracticeBaseline)
		r.Post("/story/start", s.handleStoryStart)
		r.Post("/story/continue", s.handleStoryContinue)
		r.Post("/story/audiobook", s.handleStoryAudiobook)
		r.Get("/state", s.handleStateExport)
		r.Put("/state", s.handleStateImport)
	})
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	s.router = r

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// sessionLock returns the mutex guarding one session's document.
func (s *Server) sessionLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// narrator picks the synthesis provider for a session's preference.
func (s *Server) narrator(preference string) (tts.Provider, error) {
	name := preference
	if name == "" {
		name = s.deps.Default
	}
	if p := s.deps.Narrators[name]; p != nil {
		return p, nil
	}
	return nil, fmt.Errorf("no narrator for engine %q", name)
}

func (s *Server) countRequest(route string, code int) {
	s.metrics.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
