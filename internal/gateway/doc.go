// Package gateway orchestrates the runi-mcp server components.
//
// # Overview
//
// A Gateway wires together:
//
//   - collection.Store for YAML collection files
//   - httpexec.HTTPExecutor for execute_request
//   - tools.Service, guarded by the mcp.Dispatcher lock
//   - events.Broadcaster feeding GET /mcp/sse
//   - stream.Broadcaster feeding GET /mcp/sse/subscribe
//   - journal.Journal, when enabled, recording every event
//
// Every tool emission fans out to all three sinks through events.Multi.
//
// # Lifecycle
//
// Run binds the configured address and serves until the context is
// canceled. Shutdown closes the broadcasters first so SSE streams end, then
// drains HTTP and closes the journal.
//
// Supervisor holds at most one running Gateway per process. Start fails
// with ErrAlreadyRunning while a server is up; Stop fails with
// ErrNotRunning when none is.
//
// # Health
//
//	GET /health -> {"status":"ok","version":"...","sessions":1,"sse_clients":0,"subscriptions":0}
package gateway
