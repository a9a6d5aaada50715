// ABOUTME: Two-phase execute_request: prepare under lock, perform I/O without it
// ABOUTME: The commit step records request:executed once the HTTP call returns

package tools

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/2389/runi-mcp/internal/collection"
	"github.com/2389/runi-mcp/internal/events"
	"github.com/2389/runi-mcp/internal/httpexec"
)

// Execution is a prepared execute_request call. It holds only copied
// values, so it stays valid after the caller releases any locks.
type Execution struct {
	CollectionID  string
	RequestID     string
	CorrelationID string
	Params        httpexec.Params
}

// Outcome is the result of performing an Execution.
type Outcome struct {
	Response *httpexec.Response
	Err      error
	Elapsed  time.Duration
}

// PrepareExecute validates arguments and builds request parameters from the
// stored request. It performs no network I/O.
func (s *Service) PrepareExecute(args Args) (*Execution, error) {
	if args == nil {
		args = Args{}
	}
	collectionID, err := args.requireString("collection_id")
	if err != nil {
		return nil, err
	}
	requestID, err := args.requireString("request_id")
	if err != nil {
		return nil, err
	}
	timeout, err := args.optionalUint("timeout_ms", httpexec.DefaultTimeoutMS)
	if err != nil {
		return nil, err
	}
	if err := validateCollectionID(collectionID); err != nil {
		return nil, err
	}

	c, err := s.store.Load(collectionID)
	if err != nil {
		return nil, errors.New(describe(err, collectionID))
	}
	r, err := c.FindRequest(requestID)
	if err != nil {
		return nil, fmt.Errorf("Request not found: %s", requestID)
	}

	params, err := buildParams(r, timeout)
	if err != nil {
		return nil, err
	}

	return &Execution{
		CollectionID:  collectionID,
		RequestID:     requestID,
		CorrelationID: fmt.Sprintf("mcp-%s-%s", collectionID, requestID),
		Params:        params,
	}, nil
}

func buildParams(r *collection.Request, timeoutMS uint64) (httpexec.Params, error) {
	target := r.URL
	if len(r.Params) > 0 {
		u, err := url.Parse(r.URL)
		if err != nil {
			return httpexec.Params{}, fmt.Errorf("Invalid request URL: %v", err)
		}
		q := u.Query()
		for _, p := range r.Params {
			if p.Enabled {
				q.Add(p.Key, p.Value)
			}
		}
		u.RawQuery = q.Encode()
		target = u.String()
	}

	headers := make(map[string]string, len(r.Headers))
	for k, v := range r.Headers {
		headers[k] = v
	}

	p := httpexec.Params{
		URL:       target,
		Method:    r.Method,
		Headers:   headers,
		TimeoutMS: timeoutMS,
	}
	if r.Body != nil {
		body := r.Body.Content
		p.Body = &body
	}
	return p, nil
}

// Perform runs the HTTP call. It must be called without holding locks.
func (s *Service) Perform(ctx context.Context, ex *Execution) Outcome {
	start := time.Now()
	resp, err := s.executor.Execute(ctx, ex.Params, ex.CorrelationID)
	return Outcome{Response: resp, Err: err, Elapsed: time.Since(start)}
}

// CommitExecute emits request:executed for a successful outcome and builds
// the tool result. Failed outcomes emit nothing.
func (s *Service) CommitExecute(ctx context.Context, ex *Execution, out Outcome) *mcp.CallToolResult {
	if out.Err != nil {
		s.logger.Warn("request execution failed",
			"correlation_id", ex.CorrelationID,
			"error", out.Err)
		return mcp.NewToolResultError(fmt.Sprintf("HTTP request failed: %v", out.Err))
	}

	s.emit(ctx, events.RequestExecuted, ex.CorrelationID, map[string]any{
		"collection_id": ex.CollectionID,
		"request_id":    ex.RequestID,
		"status":        out.Response.Status,
		"elapsed_ms":    out.Elapsed.Milliseconds(),
	})

	text, err := toJSON(out.Response)
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(text)
}

// Execute runs all three steps back to back. Callers that guard the
// service with a lock should call the steps individually instead.
func (s *Service) Execute(ctx context.Context, args Args) *mcp.CallToolResult {
	ex, err := s.PrepareExecute(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return s.CommitExecute(ctx, ex, s.Perform(ctx, ex))
}
