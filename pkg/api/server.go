// Package api exposes the knowledge subsystem over HTTP. The server is
// optional; embedders that link memoria directly never need it. Routes
// live under /api and require a bearer token when one is configured.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/docfold/memoria/pkg/assembler"
	"github.com/docfold/memoria/pkg/bus"
	"github.com/docfold/memoria/pkg/cache"
	"github.com/docfold/memoria/pkg/evolution"
	"github.com/docfold/memoria/pkg/interaction"
	"github.com/docfold/memoria/pkg/knowledge"
	"github.com/docfold/memoria/pkg/logging"
)

// Server is the memoria HTTP server.
type Server struct {
	cfg        Config
	store      *knowledge.Store
	cache      *cache.Cache
	assembler  *assembler.Assembler
	engine     *evolution.Engine
	log        *interaction.Log
	bus        bus.Bus
	httpServer *http.Server

	mu            sync.RWMutex
	lastEvolution *evolution.EvolutionResult
	evolutionSub  bus.Subscription
}

// Config configures the API server.
type Config struct {
	// Bind is the listen address (default 127.0.0.1:7731).
	Bind string

	// AuthToken guards /api routes when non-empty.
	AuthToken string

	// PublicMetrics exposes /metrics without authentication.
	PublicMetrics bool

	// Version is reported by /healthz.
	Version string
}

// Deps are the subsystem handles the server exposes. Store, Cache and
// Assembler are required; the rest disable their routes when nil.
type Deps struct {
	Store     *knowledge.Store
	Cache     *cache.Cache
	Assembler *assembler.Assembler
	Engine    *evolution.Engine
	Log       *interaction.Log
	Bus       bus.Bus
}

// NewServer builds the server and its router. When a bus is provided the
// server tracks evolution results published by scheduled runs so
// GET /api/evolution/last reflects them too.
func NewServer(cfg Config, deps Deps) *Server {
	if cfg.Bind == "" {
		cfg.Bind = "127.0.0.1:7731"
	}

	s := &Server{
		cfg:       cfg,
		store:     deps.Store,
		cache:     deps.Cache,
		assembler: deps.Assembler,
		engine:    deps.Engine,
		log:       deps.Log,
		bus:       deps.Bus,
	}

	if s.bus != nil {
		sub, err := s.bus.Subscribe(bus.SubjectEvolutionCompleted, s.onEvolutionEvent)
		if err != nil {
			logging.Warn(logging.CategoryServer, "subscribe_failed", "evolution results will only reflect API-triggered runs", map[string]any{
				"error": err.Error(),
			})
		} else {
			s.evolutionSub = sub
		}
	}

	router := chi.NewRouter()
	router.Use(securityHeadersMiddleware)
	router.Use(s.requestMiddleware)

	router.Get("/healthz", s.handleHealthz)
	router.Get("/metrics", s.handleMetrics)

	api := chi.NewRouter()
	api.Route("/knowledge", func(r chi.Router) {
		r.Post("/", s.handleStoreEntry)
		r.Get("/", s.handleExportEntries)
		r.Get("/stats", s.handleKnowledgeStats)
		r.Post("/query", s.handleQueryEntries)
		r.Post("/invalidate", s.handleInvalidateEntries)
		r.Post("/restore", s.handleRestoreEntries)
		r.Get("/{id}", s.handleGetEntry)
		r.Put("/{id}", s.handleUpdateEntry)
		r.Delete("/{id}", s.handleDeleteEntry)
	})
	api.Route("/context", func(r chi.Router) {
		r.Post("/", s.handleProvideContext)
		r.Post("/task", s.handleTaskContext)
		r.Post("/enrich", s.handleEnrichPrompt)
		r.Post("/multi", s.handleMultiContext)
	})
	api.Get("/symbols/{name}", s.handleSymbolLookup)
	api.Get("/files", s.handleFileLookup)
	api.Delete("/symbols/{name}", s.handleSymbolInvalidate)
	api.Delete("/files", s.handleFileInvalidate)
	api.Route("/interactions", func(r chi.Router) {
		r.Post("/", s.handleRecordInteraction)
		r.Get("/", s.handleListInteractions)
		r.Get("/stats", s.handleInteractionStats)
	})
	api.Route("/cache", func(r chi.Router) {
		r.Get("/stats", s.handleCacheStats)
		r.Post("/invalidate", s.handleCacheInvalidate)
	})
	api.Route("/evolution", func(r chi.Router) {
		r.Post("/run", s.handleEvolveNow)
		r.Get("/last", s.handleLastEvolution)
		r.Post("/update", s.handleUpdateKnowledge)
	})
	api.Post("/ingest", s.handleIngest)

	router.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Mount("/", api)
	})

	// H2C lets gRPC-style clients and proxies reach the server over
	// cleartext HTTP/2.
	h2s := &http2.Server{}
	s.httpServer = &http.Server{
		Addr:              cfg.Bind,
		Handler:           h2c.NewHandler(router, h2s),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		MaxHeaderBytes:    1 << 20,
	}

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	logging.Info(logging.CategoryServer, "listening", "api server started", map[string]any{
		"bind": s.cfg.Bind,
	})
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and releases the bus subscription.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.evolutionSub != nil {
		_ = s.evolutionSub.Unsubscribe()
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) onEvolutionEvent(msg *bus.Message) {
	var result evolution.EvolutionResult
	if err := json.Unmarshal(msg.Data, &result); err != nil {
		logging.Warn(logging.CategoryServer, "decode_failed", "dropping evolution event", map[string]any{
			"error": err.Error(),
		})
		return
	}
	s.setLastEvolution(result)
}

func (s *Server) setLastEvolution(result evolution.EvolutionResult) {
	s.mu.Lock()
	s.lastEvolution = &result
	s.mu.Unlock()
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.cfg.Version,
	})
}
