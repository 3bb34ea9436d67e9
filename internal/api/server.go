package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/siriyd/SMART-CDN/internal/applier"
	"github.com/siriyd/SMART-CDN/internal/auth"
	"github.com/siriyd/SMART-CDN/internal/baseline"
	"github.com/siriyd/SMART-CDN/internal/config"
	"github.com/siriyd/SMART-CDN/internal/database"
	"github.com/siriyd/SMART-CDN/internal/edgecache"
	"github.com/siriyd/SMART-CDN/internal/engine"
	"go.uber.org/zap"
)

// decideTimeout bounds one full decision cycle including apply.
const decideTimeout = 30 * time.Second

type Server struct {
	config     *config.Config
	logger     *zap.Logger
	router     *mux.Router
	httpServer *http.Server
	engine     *engine.Engine
	applier    *applier.Applier
	auth       *auth.Service
	db         *database.Postgres
	baseline   *baseline.Cache
	edges      map[string]*edgecache.Cache
	metrics    *Metrics
	limiter    *RateLimiter
	startTime  time.Time
}

// NewServer wires the decision engine, the per-edge caches and the
// optional persistence layer behind the HTTP surface. db may be nil
// when persistence is disabled.
func NewServer(cfg *config.Config, logger *zap.Logger, eng *engine.Engine, app *applier.Applier,
	authSvc *auth.Service, db *database.Postgres, base *baseline.Cache, edges map[string]*edgecache.Cache) *Server {
	s := &Server{
		config:    cfg,
		logger:    logger,
		engine:    eng,
		applier:   app,
		auth:      authSvc,
		db:        db,
		baseline:  base,
		edges:     edges,
		metrics:   NewMetrics(),
		limiter:   NewRateLimiter(),
		router:    mux.NewRouter(),
		startTime: time.Now(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/ready", s.handleReady).Methods("GET")
	s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	s.router.HandleFunc("/version", s.handleVersion).Methods("GET")

	s.router.HandleFunc("/decide", s.handleDecide).Methods("POST")

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/auth/login", s.handleLogin).Methods("POST")
	api.HandleFunc("/auth/verify", s.handleVerify).Methods("GET")
	api.HandleFunc("/requests/log", s.handleRequestLog).Methods("POST")
	api.HandleFunc("/edges", s.handleRegisterEdge).Methods("POST")

	api.HandleFunc("/edges/{edge_id}/cache/stats", s.handleEdgeCacheStats).Methods("GET")
	api.HandleFunc("/edges/{edge_id}/cache/prefetch", s.handleEdgeCachePrefetch).Methods("POST")
	api.HandleFunc("/edges/{edge_id}/cache/{content_id}", s.handleEdgeCacheGet).Methods("GET")
	api.HandleFunc("/edges/{edge_id}/cache/{content_id}", s.handleEdgeCacheDelete).Methods("DELETE")
	api.HandleFunc("/edges/{edge_id}/cache/{content_id}/ttl", s.handleEdgeCacheTTL).Methods("PUT")

	api.HandleFunc("/edges/{edge_id}/baseline/stats", s.handleBaselineStats).Methods("GET")
	api.HandleFunc("/edges/{edge_id}/baseline/evict", s.handleBaselineEvict).Methods("POST")

	protected := api.PathPrefix("/ai").Subrouter()
	protected.Use(s.authMiddleware)
	protected.HandleFunc("/decide-and-apply", s.handleDecideAndApply).Methods("POST")

	s.router.Use(s.loggingMiddleware)
	s.router.Use(mux.MiddlewareFunc(RateLimitMiddleware(s.limiter)))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status":  "healthy",
		"service": "smartcdn",
		"version": "0.1.0",
		"uptime":  time.Since(s.startTime).Seconds(),
	}

	s.writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := map[string]interface{}{
		"ready":     true,
		"memory_mb": getMemoryUsageMB(),
	}

	s.writeJSON(w, http.StatusOK, ready)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	version := map[string]string{
		"version": "0.1.0",
		"go":      runtime.Version(),
	}

	s.writeJSON(w, http.StatusOK, version)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) Start() error {
	s.logger.Info("starting server", zap.Int("port", s.config.Server.Port))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func getMemoryUsageMB() uint64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Alloc / 1024 / 1024
}
