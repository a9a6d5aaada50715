// ABOUTME: Gateway orchestrator wiring the collection store, tool service and MCP transport
// ABOUTME: Owns the HTTP server, broadcasters and journal lifecycle plus health endpoint

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/2389/runi-mcp/internal/auth"
	"github.com/2389/runi-mcp/internal/collection"
	"github.com/2389/runi-mcp/internal/config"
	"github.com/2389/runi-mcp/internal/events"
	"github.com/2389/runi-mcp/internal/httpexec"
	"github.com/2389/runi-mcp/internal/journal"
	"github.com/2389/runi-mcp/internal/mcp"
	"github.com/2389/runi-mcp/internal/stream"
	"github.com/2389/runi-mcp/internal/tools"
)

// Gateway orchestrates the runi-mcp server components.
type Gateway struct {
	config     *config.Config
	store      *collection.Store
	service    *tools.Service
	dispatcher *mcp.Dispatcher
	mcpServer  *mcp.Server
	httpServer *http.Server
	logger     *slog.Logger
	version    string

	// events feeds GET /mcp/sse
	events *events.Broadcaster

	// streams feeds GET /mcp/sse/subscribe
	streams *stream.Broadcaster

	// journal persists every envelope, nil when disabled
	journal *journal.Journal
}

// Option customizes a Gateway.
type Option func(*options)

type options struct {
	version  string
	executor httpexec.Executor
}

// WithVersion sets the version reported by initialize and /health.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithExecutor replaces the outbound HTTP executor.
func WithExecutor(e httpexec.Executor) Option {
	return func(o *options) { o.executor = e }
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	o := options{version: "dev"}
	for _, opt := range opts {
		opt(&o)
	}

	store, err := collection.NewStore(cfg.Collections.Dir, logger)
	if err != nil {
		return nil, fmt.Errorf("opening collection store: %w", err)
	}

	executor := o.executor
	if executor == nil {
		executor = httpexec.NewHTTPExecutor(nil, logger)
	}

	gw := &Gateway{
		config:  cfg,
		store:   store,
		logger:  logger.With("component", "gateway"),
		version: o.version,
		events:  events.NewBroadcaster(events.DefaultCapacity, logger),
		streams: stream.NewBroadcaster(stream.DefaultBufferSize, logger),
	}

	emitter := events.Multi{
		events.NewBroadcastEmitter(gw.events, logger),
		stream.NewEmitter(gw.streams),
	}
	if cfg.Journal.Enabled {
		gw.journal, err = journal.Open(cfg.Journal.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("opening journal: %w", err)
		}
		emitter = append(emitter, gw.journal)
	}

	gw.service, err = tools.NewService(tools.Config{
		Store:    store,
		Executor: executor,
		Emitter:  emitter,
		Logger:   logger,
	})
	if err != nil {
		gw.closeJournal()
		return nil, fmt.Errorf("creating tool service: %w", err)
	}
	gw.dispatcher = mcp.NewDispatcher(gw.service, o.version, logger)

	authenticator, err := newAuthenticator(cfg.Auth, gw.logger)
	if err != nil {
		gw.closeJournal()
		return nil, err
	}

	var limiter *rate.Limiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	}

	gw.mcpServer, err = mcp.NewServer(mcp.Config{
		Dispatcher: gw.dispatcher,
		Events:     gw.events,
		Streams:    gw.streams,
		Auth:       authenticator,
		Limiter:    limiter,
		Logger:     logger,
	})
	if err != nil {
		gw.closeJournal()
		return nil, fmt.Errorf("creating MCP server: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", gw.handleHealth)
	gw.mcpServer.RegisterRoutes(mux)

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// newAuthenticator builds the bearer verifier chain: the JWT verifier when a
// secret is set, then the static token table. No verifiers means no auth.
func newAuthenticator(cfg config.AuthConfig, logger *slog.Logger) (*auth.Authenticator, error) {
	var verifiers []auth.TokenVerifier
	if cfg.JWTSecret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(cfg.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		verifiers = append(verifiers, verifier)
	}
	if len(cfg.Tokens) > 0 {
		static := auth.NewStaticTokens(cfg.Tokens)
		logger.Info("static bearer tokens loaded", "count", static.Count())
		verifiers = append(verifiers, static)
	}
	if len(verifiers) == 0 {
		return nil, nil
	}
	return auth.NewAuthenticator(cfg.RequireAuth, verifiers...), nil
}

// Handler returns the HTTP handler serving all routes.
func (g *Gateway) Handler() http.Handler { return g.httpServer.Handler }

// Dispatcher returns the JSON-RPC dispatcher.
func (g *Gateway) Dispatcher() *mcp.Dispatcher { return g.dispatcher }

// Journal returns the event journal, or nil when disabled.
func (g *Gateway) Journal() *journal.Journal { return g.journal }

// Listen binds the configured HTTP address.
func (g *Gateway) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// Run binds the configured address and serves until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := g.Listen()
	if err != nil {
		g.closeJournal()
		return err
	}
	return g.Serve(ctx, ln)
}

// Serve serves on ln until the context is canceled, then shuts down.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	go g.sweepStreams(sweepCtx)

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}
	stopSweep()

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// sweepStreams periodically drops closed stream subscriptions.
func (g *Gateway) sweepStreams(ctx context.Context) {
	ticker := time.NewTicker(g.config.Streams.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := g.streams.CleanupClosed(); n > 0 {
				g.logger.Debug("swept closed subscriptions", "count", n)
			}
		}
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), g.config.Server.ShutdownTimeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

func (g *Gateway) closeJournal() error {
	if g.journal == nil {
		return nil
	}
	return g.journal.Close()
}

// Shutdown stops the HTTP server and releases resources. Broadcasters close
// first so open SSE streams end and do not hold up the HTTP drain.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	g.events.Close()
	g.streams.Close()

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "journal close", g.closeJournal())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// Health is the /health response body.
type Health struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Sessions      int    `json:"sessions"`
	SSEClients    int    `json:"sse_clients"`
	Subscriptions int    `json:"subscriptions"`
}

// handleHealth reports liveness and connection counts.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := Health{
		Status:        "ok",
		Version:       g.version,
		Sessions:      g.mcpServer.Sessions().Count(),
		SSEClients:    g.events.ReceiverCount(),
		Subscriptions: g.streams.TotalSubscriptions(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h); err != nil {
		g.logger.Warn("failed to encode health", "error", err)
	}
}
