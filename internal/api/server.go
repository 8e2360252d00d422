package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/user/mediarefinery/internal/config"
	"github.com/user/mediarefinery/internal/encoding"
	"github.com/user/mediarefinery/internal/monitoring"
	"github.com/user/mediarefinery/internal/storage"
	"go.uber.org/zap"
)

// Server holds the dependencies for the HTTP server.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	pgStore    *storage.PostgresStore
	queue      *storage.RedisQueue
	engine     *encoding.Engine
	metrics    *monitoring.Metrics
	logger     *zap.Logger
}

func NewServer(cfg *config.Config, ps *storage.PostgresStore, q *storage.RedisQueue,
	engine *encoding.Engine, m *monitoring.Metrics, l *zap.Logger) *Server {
	s := &Server{
		config:  cfg,
		pgStore: ps,
		queue:   q,
		engine:  engine,
		metrics: m,
		logger:  l,
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
