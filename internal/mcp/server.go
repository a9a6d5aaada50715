// ABOUTME: MCP HTTP transport: JSON-RPC over POST plus SSE push of broadcast events
// ABOUTME: Manages session headers, body limits, optional bearer auth and rate limiting

package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/tmaxmax/go-sse"
	"golang.org/x/time/rate"

	"github.com/2389/runi-mcp/internal/auth"
	"github.com/2389/runi-mcp/internal/events"
	"github.com/2389/runi-mcp/internal/stream"
)

// MaxRequestBodySize is the maximum allowed size for request bodies (1MB).
const MaxRequestBodySize = 1 << 20

// SessionHeader carries the session id on every exchange after the first.
const SessionHeader = "Mcp-Session-Id"

// SSE event types
const (
	EventEndpoint = "endpoint"
	EventMCP      = "mcp-event"
	EventStream   = "stream-event"
)

// Endpoint is the path clients POST JSON-RPC messages to.
const Endpoint = "/mcp"

// Config holds configuration for the MCP server.
type Config struct {
	Dispatcher *Dispatcher
	Sessions   *SessionManager     // created if nil
	Events     *events.Broadcaster // source for GET /mcp/sse
	Streams    *stream.Broadcaster // optional, enables GET /mcp/sse/subscribe
	Auth       *auth.Authenticator // optional
	Limiter    *rate.Limiter       // optional, applies to POST
	Logger     *slog.Logger
}

// Server implements the MCP HTTP endpoints.
type Server struct {
	dispatcher *Dispatcher
	sessions   *SessionManager
	events     *events.Broadcaster
	streams    *stream.Broadcaster
	auth       *auth.Authenticator
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewServer creates a new MCP server with the given configuration.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}
	if cfg.Events == nil {
		return nil, errors.New("event broadcaster is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = NewSessionManager()
	}

	return &Server{
		dispatcher: cfg.Dispatcher,
		sessions:   sessions,
		events:     cfg.Events,
		streams:    cfg.Streams,
		auth:       cfg.Auth,
		limiter:    cfg.Limiter,
		logger:     logger.With("component", "mcp_server"),
	}, nil
}

// Sessions returns the server's session table.
func (s *Server) Sessions() *SessionManager { return s.sessions }

// RegisterRoutes registers the MCP endpoints on the given ServeMux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc(Endpoint, s.handleMCP)
	mux.HandleFunc(Endpoint+"/sse", s.handleSSE)
	mux.HandleFunc(Endpoint+"/sse/subscribe", s.handleSubscribe)
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handlePost(w, r)
	case http.MethodDelete:
		s.handleDelete(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

// handlePost processes one JSON-RPC message.
func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil && !s.limiter.Allow() {
		http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
		return
	}
	if r = s.authorize(w, r); r == nil {
		return
	}

	principal, _ := auth.PrincipalFromContext(r.Context())
	sessionID := r.Header.Get(SessionHeader)
	if sessionID != "" && !s.sessions.Owned(sessionID, principal) {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxRequestBodySize+1))
	if err != nil {
		http.Error(w, "Bad Request: failed to read body", http.StatusBadRequest)
		return
	}
	if int64(len(body)) > MaxRequestBodySize {
		http.Error(w, "Request Entity Too Large", http.StatusRequestEntityTooLarge)
		return
	}

	// only mint a session once the message is known to be dispatchable
	if sessionID == "" {
		sessionID = s.sessions.Create(principal).ID
		s.logger.Info("MCP session created", "session_id", sessionID, "principal", principal)
	}

	resp := s.dispatcher.Dispatch(WithSession(r.Context(), sessionID), body)

	w.Header().Set(SessionHeader, sessionID)
	if resp == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("failed to encode JSON-RPC response", "error", err)
	}
}

// handleDelete terminates a session.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if r = s.authorize(w, r); r == nil {
		return
	}
	sessionID, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	if !s.sessions.Remove(sessionID) {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}
	s.logger.Info("MCP session terminated", "session_id", sessionID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Session deleted"))
}

// requireSession checks for a session header naming a session the caller
// owns, writing 400 when absent and 404 when unknown. Another principal's
// session is reported as unknown.
func (s *Server) requireSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID := r.Header.Get(SessionHeader)
	if sessionID == "" {
		http.Error(w, "Missing Mcp-Session-Id header", http.StatusBadRequest)
		return "", false
	}
	principal, _ := auth.PrincipalFromContext(r.Context())
	if !s.sessions.Owned(sessionID, principal) {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return "", false
	}
	return sessionID, true
}

// sessionContext returns a context cancelled when either the request ends
// or the session is deleted.
func (s *Server) sessionContext(r *http.Request, sessionID string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r.Context())
	done := s.sessions.Done(sessionID)
	if done == nil {
		cancel()
		return ctx, cancel
	}
	go func() {
		select {
		case <-done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// handleSSE relays every broadcast envelope to the client until it
// disconnects, the session is deleted, or the broadcaster closes.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if r = s.authorize(w, r); r == nil {
		return
	}
	sessionID, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	// subscribe before announcing the endpoint so nothing sent after the
	// client sees it is missed
	rx := s.events.Subscribe()
	defer rx.Close()

	sess, err := s.openStream(w, r)
	if err != nil {
		return
	}

	ctx, cancel := s.sessionContext(r, sessionID)
	defer cancel()

	s.logger.Debug("SSE stream opened", "session_id", sessionID)
	defer s.logger.Debug("SSE stream closed", "session_id", sessionID)

	for {
		env, err := rx.Recv(ctx)
		var lagged *events.LaggedError
		switch {
		case errors.As(err, &lagged):
			s.logger.Warn("SSE client lagged", "session_id", sessionID, "skipped", lagged.Skipped)
			continue
		case err != nil:
			return
		}

		data, err := json.Marshal(env)
		if err != nil {
			s.logger.Warn("failed to encode event", "event", env.Event, "error", err)
			continue
		}
		if err := send(sess, EventMCP, string(data)); err != nil {
			s.logger.Debug("SSE write failed", "session_id", sessionID, "error", err)
			return
		}
	}
}

// handleSubscribe relays named-stream or topic-filtered events.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.streams == nil {
		http.NotFound(w, r)
		return
	}
	if r = s.authorize(w, r); r == nil {
		return
	}
	sessionID, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	ctx, cancel := s.sessionContext(r, sessionID)
	defer cancel()

	var sub *stream.Subscription
	q := r.URL.Query()
	switch {
	case q.Get("stream") != "":
		sub = s.streams.Subscribe(ctx, q.Get("stream"))
	case q.Get("topics") != "":
		var err error
		sub, err = s.streams.SubscribeTopics(ctx, stream.ParseTopics(q.Get("topics")))
		if err != nil {
			http.Error(w, "Bad Request: "+err.Error(), http.StatusBadRequest)
			return
		}
	default:
		http.Error(w, "Bad Request: stream or topics parameter is required", http.StatusBadRequest)
		return
	}
	defer s.streams.Unsubscribe(sub.ID)

	sess, err := s.openStream(w, r)
	if err != nil {
		return
	}

	for {
		select {
		case ev := <-sub.C:
			if err := send(sess, EventStream, ev.Data); err != nil {
				return
			}
		case <-sub.Done():
			return
		case <-ctx.Done():
			return
		}
	}
}

// openStream upgrades the response to SSE and announces the POST endpoint.
func (s *Server) openStream(w http.ResponseWriter, r *http.Request) (*sse.Session, error) {
	sess, err := sse.Upgrade(w, r)
	if err != nil {
		s.logger.Error("failed to upgrade SSE session", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil, err
	}
	if err := send(sess, EventEndpoint, Endpoint); err != nil {
		s.logger.Warn("failed to send endpoint event", "error", err)
		return nil, err
	}
	return sess, nil
}

func send(sess *sse.Session, eventType, data string) error {
	msg := &sse.Message{Type: sse.Type(eventType)}
	msg.AppendData(data)
	if err := sess.Send(msg); err != nil {
		return err
	}
	return sess.Flush()
}

// authorize checks the bearer token when auth is configured, attaching the
// principal to the request context. It writes 401 and returns nil when the
// request must be rejected.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) *http.Request {
	principal, err := s.auth.Authenticate(r)
	if err != nil {
		s.logger.Debug("request rejected", "path", r.URL.Path, "error", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil
	}
	if principal == "" {
		return r
	}
	return r.WithContext(auth.WithPrincipal(r.Context(), principal))
}
