// Package anviksha is the public API for embedding the Anviksha query server.
//
// Consumers import this package to construct and run the server without
// forking it:
//
//	app, err := anviksha.New(
//	    anviksha.WithVersion(version),
//	    anviksha.WithLogger(logger),
//	)
//	if err != nil { ... }
//	if err := app.Run(ctx); err != nil { ... }
//
// The import graph enforces a strict no-cycle rule: anviksha (root) imports
// internal/*, but internal/* never imports anviksha (root).
package anviksha

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/joho/godotenv"

	"github.com/firmsoil/anviksha/internal/config"
	"github.com/firmsoil/anviksha/internal/generate"
	"github.com/firmsoil/anviksha/internal/mcp"
	"github.com/firmsoil/anviksha/internal/metadata"
	"github.com/firmsoil/anviksha/internal/pipeline"
	"github.com/firmsoil/anviksha/internal/server"
	"github.com/firmsoil/anviksha/internal/storage"
	"github.com/firmsoil/anviksha/internal/telemetry"
)

// App is the Anviksha server lifecycle. Construct with New(), run with Run().
type App struct {
	cfg          config.Config
	db           *storage.DB
	meta         *metadata.Client
	srv          *server.Server
	otelShutdown telemetry.Shutdown
	logger       *slog.Logger
	version      string
}

// New initialises the Anviksha server. It connects to the event store,
// probes the metadata service, and wires all subsystems. It does NOT start
// any goroutines or accept HTTP connections — call Run().
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.port != 0 {
		cfg.Port = o.port
	}
	if o.mongoURI != "" {
		cfg.MongoURI = o.mongoURI
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}

	ctx := context.Background()

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	db, err := storage.New(ctx, cfg.MongoURI, cfg.DatabaseName, logger)
	if err != nil {
		_ = otelShutdown(ctx)
		return nil, fmt.Errorf("storage: %w", err)
	}

	meta := metadata.New(metadata.Options{
		BaseURL:  cfg.MetadataURL,
		Enabled:  cfg.MetadataEnabled,
		CacheTTL: cfg.CacheTTL,
	}, logger)

	generator := generate.New(generate.Options{
		BaseURL: cfg.OpenAIURL,
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.OpenAIModel,
	}, logger)
	if !generator.Configured() {
		logger.Warn("OPENAI_API_KEY not set, pipeline generation will return sample data only")
	}

	executor := pipeline.NewExecutor(db, logger)

	mcpSrv := mcp.New(mcp.Config{
		Meta:       meta,
		Generator:  generator,
		Executor:   executor,
		Database:   cfg.DatabaseName,
		Collection: cfg.Collection,
		Version:    version,
		Logger:     logger,
	})

	handlers := server.NewHandlers(server.HandlersDeps{
		DB:                  db,
		Meta:                meta,
		Generator:           generator,
		Executor:            executor,
		Collection:          cfg.Collection,
		Database:            cfg.DatabaseName,
		Logger:              logger,
		Version:             version,
		MaxRequestBodyBytes: cfg.MaxRequestBodyBytes,
	})

	srv := server.New(server.ServerConfig{
		Handlers:     handlers,
		Logger:       logger,
		MCPServer:    mcpSrv.MCPServer(),
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	return &App{
		cfg:          cfg,
		db:           db,
		meta:         meta,
		srv:          srv,
		otelShutdown: otelShutdown,
		logger:       logger,
		version:      version,
	}, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails, then shuts down gracefully.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("anviksha starting", "version", a.version, "port", a.cfg.Port)

	errCh := make(chan error, 1)
	go func() {
		if err := a.srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	return a.Shutdown(context.Background())
}

// Shutdown stops accepting HTTP requests, drains in-flight ones, then
// closes the event store connection and the OTEL providers.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("anviksha shutting down")

	httpCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(httpCtx); err != nil {
		a.logger.Error("http shutdown error", "error", err)
	}

	a.db.Close(ctx)
	if err := a.otelShutdown(ctx); err != nil {
		a.logger.Error("telemetry shutdown error", "error", err)
	}

	a.logger.Info("anviksha stopped")
	return nil
}
