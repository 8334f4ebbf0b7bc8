// Package metaserver implements the standalone metadata tool service. It
// exposes the live database introspection tools the query service's metadata
// client consumes: collection listing, schema inference, document sampling,
// distinct values, field statistics, and index listing.
package metaserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Store is the database surface the tool handlers introspect.
// *storage.DB satisfies it.
type Store interface {
	Ping(ctx context.Context) error
	ListCollections(ctx context.Context) ([]string, error)
	InferSchema(ctx context.Context, collection string) (map[string]any, error)
	SampleDocuments(ctx context.Context, collection string, limit int, filter bson.M) ([]bson.M, error)
	DistinctValues(ctx context.Context, collection, field string, limit int) ([]any, error)
	FieldStatistics(ctx context.Context, collection, field string) (map[string]any, error)
	ListIndexes(ctx context.Context, collection string) ([]bson.M, error)
	CountDocuments(ctx context.Context, collection string) (int64, error)
}

// Server is the metadata tool HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Config holds the metadata server dependencies.
type Config struct {
	Store        Store
	Collection   string
	Version      string
	Logger       *slog.Logger
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New builds the metadata tool server and its routes.
func New(cfg Config) *Server {
	h := &handlers{
		store:      cfg.Store,
		collection: cfg.Collection,
		version:    cfg.Version,
		logger:     cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.HandleFunc("POST /mcp/tools/{tool}", h.handleTool)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      mux,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: mux,
		logger:  cfg.Logger,
	}
}

// Start begins serving HTTP requests. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("metadata server starting", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("metadata server shutting down")
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying handler for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}
