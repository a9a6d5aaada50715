// Package mcp implements the Model Context Protocol server that lets AI
// clients manage API collections.
//
// # Protocol
//
// JSON-RPC 2.0 messages arrive over HTTP:
//
//   - POST /mcp - one JSON-RPC message per request
//   - DELETE /mcp - terminate a session
//   - GET /mcp/sse - server-sent events for every collection change
//   - GET /mcp/sse/subscribe - events filtered by stream name or topic glob
//
// Supported methods are initialize, tools/list, tools/call and ping.
// Notifications (messages without an id) are accepted with 202 and never
// answered.
//
// # Sessions
//
// The first POST without an Mcp-Session-Id header mints a session and
// returns its id in the response header. Later requests must echo it;
// unknown ids get 404. A session belongs to the principal that created it
// and is unknown to everyone else. Deleting a session also closes its SSE
// streams.
//
// # Locking
//
// The Dispatcher guards the tool service with a read/write lock. Ordinary
// tools run under the read lock. execute_request is split into prepare,
// perform and commit so that no lock is held while the outbound HTTP
// request is in flight.
//
// # Authentication
//
// When an auth.Authenticator is configured, every endpoint checks a bearer
// token:
//
//	Authorization: Bearer <token>
//
// # Client configuration
//
//	{
//	  "mcpServers": {
//	    "runi": {
//	      "url": "http://localhost:7331/mcp"
//	    }
//	  }
//	}
package mcp
