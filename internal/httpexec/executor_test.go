// ABOUTME: Tests for the net/http executor against an httptest server
// ABOUTME: Covers headers, bodies, correlation ids, timing, and timeouts

package httpexec

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecute(t *testing.T) {
	var gotMethod, gotBody, gotCorrelation, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotCorrelation = r.Header.Get(CorrelationHeader)
		gotAuth = r.Header.Get("Authorization")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	body := `{"name":"x"}`
	exec := NewHTTPExecutor(nil, nil)
	resp, err := exec.Execute(context.Background(), Params{
		URL:     srv.URL + "/things",
		Method:  "post",
		Headers: map[string]string{"Authorization": "Bearer abc"},
		Body:    &body,
	}, "mcp-col-req")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, body, gotBody)
	assert.Equal(t, "mcp-col-req", gotCorrelation)
	assert.Equal(t, "Bearer abc", gotAuth)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "Created", resp.StatusText)
	assert.Equal(t, `{"ok":true}`, resp.Body)
	assert.Equal(t, "yes", resp.Headers["X-Test"])
	assert.NotNil(t, resp.Timing.FirstByteMS)
	assert.Nil(t, resp.Timing.TLSMS, "plain HTTP has no TLS phase")
}

func TestExecuteDefaultsToGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.Method))
	}))
	defer srv.Close()

	resp, err := NewHTTPExecutor(srv.Client(), nil).Execute(context.Background(), Params{URL: srv.URL}, "")
	require.NoError(t, err)
	assert.Equal(t, "GET", resp.Body)
}

func TestExecuteTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	start := time.Now()
	_, err := NewHTTPExecutor(nil, nil).Execute(context.Background(), Params{URL: srv.URL, TimeoutMS: 50}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out after 50ms")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecuteConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewHTTPExecutor(nil, nil).Execute(context.Background(), Params{URL: url, TimeoutMS: 1000}, "")
	assert.Error(t, err)
}

func TestExecuteBadURL(t *testing.T) {
	_, err := NewHTTPExecutor(nil, nil).Execute(context.Background(), Params{URL: "://nope", Method: "GET"}, "")
	assert.ErrorContains(t, err, "building request")
}
