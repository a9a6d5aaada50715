// ABOUTME: JSON-RPC protocol dispatcher routing MCP methods to the tool service
// ABOUTME: Never holds the service lock across network I/O; notifications get no reply

package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/2389/runi-mcp/internal/jsonrpc"
	"github.com/2389/runi-mcp/internal/participant"
	"github.com/2389/runi-mcp/internal/tools"
)

// Protocol constants advertised in initialize responses.
const (
	ProtocolVersion = "2025-11-25"
	ServerName      = "runi"
)

// MCP methods
const (
	MethodInitialize = "initialize"
	MethodToolsList  = "tools/list"
	MethodToolsCall  = "tools/call"
	MethodPing       = "ping"

	NotificationInitialized = "notifications/initialized"
	NotificationCancelled   = "notifications/cancelled"
)

// CallToolParams are the params for tools/call.
type CallToolParams struct {
	Name      string     `json:"name"`
	Arguments tools.Args `json:"arguments,omitempty"`
}

// Dispatcher routes parsed JSON-RPC messages. The tool service sits behind
// a read/write lock: calls take the read side, SetService takes the write
// side.
type Dispatcher struct {
	mu      sync.RWMutex
	svc     *tools.Service
	version string
	logger  *slog.Logger
}

// NewDispatcher creates a dispatcher over svc. Pass nil logger for default.
func NewDispatcher(svc *tools.Service, version string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	return &Dispatcher{
		svc:     svc,
		version: version,
		logger:  logger.With("component", "dispatcher"),
	}
}

// SetService swaps the tool service. In-flight calls finish against the
// service they started with.
func (d *Dispatcher) SetService(svc *tools.Service) {
	d.mu.Lock()
	d.svc = svc
	d.mu.Unlock()
}

// Dispatch handles one raw message and returns the response to send, or nil
// when the message was a notification.
func (d *Dispatcher) Dispatch(ctx context.Context, raw []byte) *jsonrpc.Response {
	req, id, rpcErr := jsonrpc.Parse(raw)
	if rpcErr != nil {
		if rpcErr.Code == jsonrpc.CodeParseError {
			id = nil
		}
		d.logger.Debug("rejected message", "code", rpcErr.Code, "error", rpcErr.Message)
		return jsonrpc.NewError(id, rpcErr)
	}
	return d.Handle(ctx, req)
}

// Handle routes an already parsed request.
func (d *Dispatcher) Handle(ctx context.Context, req *jsonrpc.Request) (resp *jsonrpc.Response) {
	if req.IsNotification() {
		d.logNotification(req.Method)
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic while handling request", "method", req.Method, "panic", r)
			resp = jsonrpc.NewError(req.ID, jsonrpc.InternalError(fmt.Sprint(r)))
		}
	}()

	switch req.Method {
	case MethodInitialize:
		return jsonrpc.NewResult(req.ID, d.initializeResult())
	case MethodToolsList:
		return jsonrpc.NewResult(req.ID, d.listTools())
	case MethodToolsCall:
		return d.callTool(ctx, req)
	case MethodPing:
		return jsonrpc.NewResult(req.ID, struct{}{})
	default:
		return jsonrpc.NewError(req.ID, jsonrpc.MethodNotFound(req.Method))
	}
}

func (d *Dispatcher) logNotification(method string) {
	switch method {
	case NotificationInitialized:
		d.logger.Info("client initialized")
	case NotificationCancelled:
		d.logger.Info("client cancelled a request")
	default:
		d.logger.Debug("ignoring notification", "method", method)
	}
}

func (d *Dispatcher) initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities": map[string]any{
			"tools": map[string]any{},
		},
		"serverInfo": map[string]any{
			"name":    ServerName,
			"version": d.version,
		},
	}
}

func (d *Dispatcher) listTools() map[string]any {
	d.mu.RLock()
	defs := d.svc.Tools()
	d.mu.RUnlock()
	return map[string]any{"tools": defs}
}

func (d *Dispatcher) callTool(ctx context.Context, req *jsonrpc.Request) *jsonrpc.Response {
	if len(req.Params) == 0 {
		return jsonrpc.NewError(req.ID, jsonrpc.InvalidParams("missing params"))
	}
	var params CallToolParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return jsonrpc.NewError(req.ID, jsonrpc.InvalidParams(err.Error()))
	}
	if params.Name == "" {
		return jsonrpc.NewError(req.ID, jsonrpc.InvalidParams("tool name is required"))
	}

	d.logger.Debug("tools/call", "tool_name", params.Name)

	if params.Name == tools.ExecuteRequest {
		return jsonrpc.NewResult(req.ID, d.executeRequest(ctx, params.Arguments))
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	return jsonrpc.NewResult(req.ID, d.svc.CallTool(ctx, params.Name, params.Arguments))
}

// executeRequest splits the call so the lock is free while the HTTP request
// is in flight: prepare under the read lock, perform unlocked, then take
// the read lock again only to record the outcome.
func (d *Dispatcher) executeRequest(ctx context.Context, args tools.Args) *mcpgo.CallToolResult {
	d.mu.RLock()
	svc := d.svc
	ex, err := svc.PrepareExecute(args)
	d.mu.RUnlock()
	if err != nil {
		return mcpgo.NewToolResultError(err.Error())
	}

	outcome := svc.Perform(ctx, ex)

	d.mu.RLock()
	defer d.mu.RUnlock()
	return svc.CommitExecute(ctx, ex, outcome)
}

// WithSession attributes work done under ctx to the AI client owning the
// given session.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return participant.WithActor(ctx, participant.AI(tools.DefaultModel, sessionID))
}
