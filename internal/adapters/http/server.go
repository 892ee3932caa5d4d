package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/recalldev/recall/internal/adapters/http/handlers"
	"github.com/recalldev/recall/internal/adapters/http/middleware"
	"github.com/recalldev/recall/internal/config"
	"github.com/recalldev/recall/internal/ports"
)

type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	service    ports.MemoryService
	units      ports.MemoryUnitRepository
	index      ports.VectorIndex
	retriever  ports.Retriever
}

func NewServer(
	cfg *config.Config,
	service ports.MemoryService,
	units ports.MemoryUnitRepository,
	index ports.VectorIndex,
	retriever ports.Retriever,
) *Server {
	s := &Server{
		config:    cfg,
		service:   service,
		units:     units,
		index:     index,
		retriever: retriever,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recovery)
	r.Use(middleware.CORS(nil))
	r.Use(middleware.Metrics)

	healthHandler := handlers.NewHealthHandler(s.service)
	r.Get("/health", healthHandler.Handle)
	r.Get("/stats", healthHandler.Stats)
	r.Handle("/metrics", promhttp.Handler())

	conversationsHandler := handlers.NewConversationsHandler(s.service)
	r.Post("/conversation/store", conversationsHandler.Store)

	memoriesHandler := handlers.NewMemoriesHandler(s.service, s.units, s.index, s.retriever)
	r.Post("/memory/search", memoriesHandler.Search)
	r.Get("/memory", memoriesHandler.List)
	r.Get("/memory/{id}", memoriesHandler.Get)
	r.Post("/memory/{id}/deactivate", memoriesHandler.Deactivate)

	injectHandler := handlers.NewInjectHandler(s.service)
	r.Post("/memory/inject", injectHandler.Inject)

	s.router = r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	log.Printf("Starting HTTP server on %s", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
