// ABOUTME: Tests for the MCP HTTP transport including sessions, SSE and auth
// ABOUTME: Drives a real httptest server over the dispatcher and event broadcaster

package mcp

import (
	"encoding/json"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmaxmax/go-sse"
	"golang.org/x/time/rate"

	"github.com/2389/runi-mcp/internal/auth"
	"github.com/2389/runi-mcp/internal/events"
	"github.com/2389/runi-mcp/internal/jsonrpc"
	"github.com/2389/runi-mcp/internal/stream"
)

type testServer struct {
	*httptest.Server
	mcp     *Server
	events  *events.Broadcaster
	streams *stream.Broadcaster
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()

	bc := events.NewBroadcaster(16, nil)
	streams := stream.NewBroadcaster(16, nil)
	emitter := events.Multi{events.NewBroadcastEmitter(bc, nil), stream.NewEmitter(streams)}
	d := NewDispatcher(newTestService(t, stubExecutor{}, emitter), "test", nil)

	cfg := Config{Dispatcher: d, Events: bc, Streams: streams}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := NewServer(cfg)
	require.NoError(t, err)

	mux := http.NewServeMux()
	srv.RegisterRoutes(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(func() {
		ts.Close()
		bc.Close()
		streams.Close()
	})
	return &testServer{Server: ts, mcp: srv, events: bc, streams: streams}
}

func (ts *testServer) post(t *testing.T, session, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (ts *testServer) do(t *testing.T, method, path, session string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, nil)
	require.NoError(t, err)
	if session != "" {
		req.Header.Set(SessionHeader, session)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// initialize opens a session and returns its id.
func (ts *testServer) initialize(t *testing.T) string {
	t.Helper()
	resp := ts.post(t, "", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sid := resp.Header.Get(SessionHeader)
	require.NotEmpty(t, sid)
	return sid
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(data)
}

func TestNewServerValidation(t *testing.T) {
	_, err := NewServer(Config{Events: events.NewBroadcaster(1, nil)})
	assert.Error(t, err)

	d := NewDispatcher(newTestService(t, stubExecutor{}, nil), "", nil)
	_, err = NewServer(Config{Dispatcher: d})
	assert.Error(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	sid := ts.initialize(t)
	assert.Equal(t, 1, ts.mcp.Sessions().Count())

	// Reusing the session does not mint a new one.
	resp := ts.post(t, sid, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, sid, resp.Header.Get(SessionHeader))
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Equal(t, 1, ts.mcp.Sessions().Count())

	var rpc jsonrpc.Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rpc))
	assert.Nil(t, rpc.Error)
	assert.Contains(t, string(rpc.Result), "execute_request")

	resp = ts.do(t, http.MethodDelete, "/mcp", sid)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Session deleted", readBody(t, resp))

	resp = ts.post(t, sid, `{"jsonrpc":"2.0","id":3,"method":"ping"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodDelete, "/mcp", sid)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPostErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.post(t, "no-such-session", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Unknown session")

	resp = ts.do(t, http.MethodDelete, "/mcp", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, readBody(t, resp), "Missing Mcp-Session-Id header")

	resp = ts.do(t, http.MethodGet, "/mcp", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	big := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"pad":"` + strings.Repeat("x", MaxRequestBodySize) + `"}}`
	resp = ts.post(t, "", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Empty(t, resp.Header.Get(SessionHeader))
	assert.Equal(t, 0, ts.mcp.Sessions().Count(), "oversized bodies mint no session")
}

func TestNotificationAccepted(t *testing.T) {
	ts := newTestServer(t, nil)
	sid := ts.initialize(t)

	resp := ts.post(t, sid, `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, sid, resp.Header.Get(SessionHeader))
	assert.Empty(t, readBody(t, resp))
}

func TestParseErrorOverHTTP(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.post(t, "", `{"jsonrpc":`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t,
		`{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`,
		readBody(t, resp))
}

func TestAuthRequired(t *testing.T) {
	tokens := auth.NewStaticTokens(map[string]string{"secret-token": "ops", "other-token": "ci"})
	ts := newTestServer(t, func(c *Config) {
		c.Auth = auth.NewAuthenticator(true, tokens)
	})

	resp := ts.post(t, "", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 0, ts.mcp.Sessions().Count(), "rejected requests create no session")

	req, err := http.NewRequest(http.MethodPost, ts.URL+"/mcp", strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-token")
	ok, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer ok.Body.Close()
	assert.Equal(t, http.StatusOK, ok.StatusCode)

	sid := ok.Header.Get(SessionHeader)
	info, found := ts.mcp.Sessions().Get(sid)
	require.True(t, found)
	assert.Equal(t, "ops", info.Principal)

	// Another principal cannot see or delete the session.
	del, err := http.NewRequest(http.MethodDelete, ts.URL+"/mcp", nil)
	require.NoError(t, err)
	del.Header.Set("Authorization", "Bearer other-token")
	del.Header.Set(SessionHeader, sid)
	denied, err := http.DefaultClient.Do(del)
	require.NoError(t, err)
	denied.Body.Close()
	assert.Equal(t, http.StatusNotFound, denied.StatusCode)
	_, found = ts.mcp.Sessions().Get(sid)
	assert.True(t, found)
}

func TestRateLimited(t *testing.T) {
	ts := newTestServer(t, func(c *Config) {
		c.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	})

	resp := ts.post(t, "", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = ts.post(t, "", `{"jsonrpc":"2.0","id":2,"method":"ping"}`)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

// openSSE connects to path and returns a pull iterator over its events.
func openSSE(t *testing.T, ts *testServer, path, session string) (func() (sse.Event, error, bool), *http.Response) {
	t.Helper()
	resp := ts.do(t, http.MethodGet, path, session)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	next, stop := iter.Pull2(sse.Read(resp.Body, nil))
	t.Cleanup(stop)
	return next, resp
}

func TestSSEErrors(t *testing.T) {
	ts := newTestServer(t, nil)

	resp := ts.do(t, http.MethodGet, "/mcp/sse", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/mcp/sse", "nope")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/mcp/sse", "")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestSSEEndpointAndEvents(t *testing.T) {
	ts := newTestServer(t, nil)
	sid := ts.initialize(t)

	next, _ := openSSE(t, ts, "/mcp/sse", sid)

	ev, err, ok := next()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, EventEndpoint, ev.Type)
	assert.Equal(t, "/mcp", ev.Data)

	resp := ts.post(t, sid,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"create_collection","arguments":{"name":"Pets"}}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	ev, err, ok = next()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, EventMCP, ev.Type)

	var env events.Envelope
	require.NoError(t, json.Unmarshal([]byte(ev.Data), &env))
	assert.Equal(t, events.CollectionCreated, env.Event)
	assert.Equal(t, "ai:mcp@"+sid, env.Actor.String())
	assert.Contains(t, string(env.Payload), "Pets")
}

func TestSSEEndsWhenSessionDeleted(t *testing.T) {
	ts := newTestServer(t, nil)
	sid := ts.initialize(t)

	next, _ := openSSE(t, ts, "/mcp/sse", sid)
	_, err, ok := next()
	require.True(t, ok)
	require.NoError(t, err)

	resp := ts.do(t, http.MethodDelete, "/mcp", sid)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, err, ok := next(); !ok || err != nil {
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("SSE stream still open after session deletion")
	}
}

func TestSubscribeByStream(t *testing.T) {
	ts := newTestServer(t, nil)
	sid := ts.initialize(t)

	resp := ts.do(t, http.MethodGet, "/mcp/sse/subscribe", sid)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	next, _ := openSSE(t, ts, "/mcp/sse/subscribe?stream=collection", sid)
	ev, err, ok := next()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, EventEndpoint, ev.Type)

	// Wait for the subscription to register before emitting.
	require.Eventually(t, func() bool {
		return ts.streams.SubscriberCount("collection") == 1
	}, 5*time.Second, 10*time.Millisecond)

	ts.post(t, sid,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"create_collection","arguments":{"name":"Zoo"}}}`)

	ev, err, ok = next()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, EventStream, ev.Type)
	assert.Contains(t, ev.Data, events.CollectionCreated)
}
