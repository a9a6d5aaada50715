// ABOUTME: Supervisor guaranteeing at most one running MCP server per process
// ABOUTME: Start binds the listener under the same lock that checks for a running server

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/2389/runi-mcp/internal/config"
)

// Supervisor errors
var (
	ErrAlreadyRunning = errors.New("MCP server is already running")
	ErrNotRunning     = errors.New("MCP server is not running")
)

// Handle is a running server.
type Handle struct {
	gw     *Gateway
	addr   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Addr returns the bound listener address.
func (h *Handle) Addr() string { return h.addr }

// Gateway returns the running gateway.
func (h *Handle) Gateway() *Gateway { return h.gw }

// Done is closed once the server has fully shut down.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err returns the serve error after Done is closed.
func (h *Handle) Err() error {
	<-h.done
	return h.err
}

// Supervisor owns the optional running server.
type Supervisor struct {
	mu      sync.Mutex
	running *Handle
	opts    []Option
	logger  *slog.Logger
}

// NewSupervisor creates a supervisor. opts are passed to every New call.
func NewSupervisor(logger *slog.Logger, opts ...Option) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{opts: opts, logger: logger}
}

// Start builds a gateway from cfg and begins serving. The check for an
// existing server and the bind happen under one lock, so concurrent starts
// cannot both bind.
func (s *Supervisor) Start(cfg *config.Config) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running != nil {
		select {
		case <-s.running.done:
			// exited on its own; slot is free
			s.running = nil
		default:
			return nil, ErrAlreadyRunning
		}
	}

	gw, err := New(cfg, s.logger, s.opts...)
	if err != nil {
		return nil, err
	}
	ln, err := gw.Listen()
	if err != nil {
		_ = gw.Shutdown(context.Background())
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		gw:     gw,
		addr:   ln.Addr().String(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		h.err = gw.Serve(ctx, ln)
	}()

	s.running = h
	s.logger.Info("MCP server started", "addr", h.addr)
	return h, nil
}

// Stop shuts the running server down and waits for it to finish or for
// ctx to expire. The lock is released before waiting.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	h := s.running
	s.running = nil
	s.mu.Unlock()

	if h == nil {
		return ErrNotRunning
	}

	h.cancel()
	select {
	case <-h.done:
	case <-ctx.Done():
		return fmt.Errorf("waiting for shutdown: %w", ctx.Err())
	}
	s.logger.Info("MCP server stopped", "addr", h.addr)
	return h.err
}

// Running returns the running server, if any.
func (s *Supervisor) Running() (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running == nil {
		return nil, false
	}
	return s.running, true
}
