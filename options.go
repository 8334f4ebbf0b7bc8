package anviksha

import "log/slog"

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds the override points after applying defaults.
// Unexported — callers use the With* functions.
type resolvedOptions struct {
	port     int
	mongoURI string
	logger   *slog.Logger
	version  string
}

// WithPort overrides the TCP port from config (ANVIKSHA_PORT env var).
func WithPort(port int) Option {
	return func(o *resolvedOptions) { o.port = port }
}

// WithMongoURI overrides the event store connection string from config
// (MONGO_URI env var).
func WithMongoURI(uri string) Option {
	return func(o *resolvedOptions) { o.mongoURI = uri }
}

// WithLogger sets the structured logger for the App.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version string reported in the health endpoint and logs.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}
