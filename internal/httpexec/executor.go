// ABOUTME: HTTP execution port used by execute_request plus a net/http adapter
// ABOUTME: Captures DNS, connect, TLS, and first-byte timings through httptrace

package httpexec

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"strings"
	"time"
)

// DefaultTimeoutMS is used when Params.TimeoutMS is zero.
const DefaultTimeoutMS = 30000

// MaxResponseBodySize caps how much of a response body is read.
const MaxResponseBodySize = 10 << 20

// CorrelationHeader carries the correlation id on outgoing requests.
const CorrelationHeader = "X-Correlation-ID"

// Params describe one outgoing request.
type Params struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      *string           `json:"body,omitempty"`
	TimeoutMS uint64            `json:"timeout_ms"`
}

// Timing breaks down where request time went. Phases that did not happen,
// such as TLS on plain HTTP or DNS for a literal IP, are nil.
type Timing struct {
	TotalMS     uint64  `json:"total_ms"`
	DNSMS       *uint64 `json:"dns_ms,omitempty"`
	ConnectMS   *uint64 `json:"connect_ms,omitempty"`
	TLSMS       *uint64 `json:"tls_ms,omitempty"`
	FirstByteMS *uint64 `json:"first_byte_ms,omitempty"`
}

// Response is the outcome of an executed request.
type Response struct {
	Status     int               `json:"status"`
	StatusText string            `json:"status_text"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	Timing     Timing            `json:"timing"`
}

// Executor performs HTTP requests on behalf of tools.
type Executor interface {
	Execute(ctx context.Context, p Params, correlationID string) (*Response, error)
}

// HTTPExecutor implements Executor with net/http.
type HTTPExecutor struct {
	client *http.Client
	logger *slog.Logger
}

// NewHTTPExecutor creates an executor. Pass nil client or logger for defaults.
func NewHTTPExecutor(client *http.Client, logger *slog.Logger) *HTTPExecutor {
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPExecutor{client: client, logger: logger.With("component", "http_executor")}
}

// Execute sends the request and reads the full response. The deadline is
// TimeoutMS (or DefaultTimeoutMS) unless ctx expires first.
func (e *HTTPExecutor) Execute(ctx context.Context, p Params, correlationID string) (*Response, error) {
	timeout := p.TimeoutMS
	if timeout == 0 {
		timeout = DefaultTimeoutMS
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*time.Millisecond)
	defer cancel()

	method := strings.ToUpper(p.Method)
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	if p.Body != nil {
		body = strings.NewReader(*p.Body)
	}

	var tr tracer
	ctx = httptrace.WithClientTrace(ctx, tr.clientTrace())

	req, err := http.NewRequestWithContext(ctx, method, p.URL, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, v := range p.Headers {
		req.Header.Set(k, v)
	}
	if correlationID != "" {
		req.Header.Set(CorrelationHeader, correlationID)
	}

	start := time.Now()
	tr.start = start

	resp, err := e.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("request timed out after %dms: %w", timeout, err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBodySize))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	headers := make(map[string]string, len(resp.Header))
	for k, vs := range resp.Header {
		headers[k] = strings.Join(vs, ", ")
	}

	timing := tr.timing(time.Since(start))

	e.logger.Debug("request executed",
		"correlation_id", correlationID,
		"method", method,
		"status", resp.StatusCode,
		"total_ms", timing.TotalMS,
	)

	return &Response{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    headers,
		Body:       string(data),
		Timing:     timing,
	}, nil
}

// tracer records phase boundaries. httptrace callbacks for a single request
// can arrive from transport goroutines, but each field is written once
// before the response is returned.
type tracer struct {
	start                    time.Time
	dnsStart, dnsDone        time.Time
	connectStart, connectEnd time.Time
	tlsStart, tlsDone        time.Time
	firstByte                time.Time
}

func (t *tracer) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart:             func(httptrace.DNSStartInfo) { t.dnsStart = time.Now() },
		DNSDone:              func(httptrace.DNSDoneInfo) { t.dnsDone = time.Now() },
		ConnectStart:         func(string, string) { t.connectStart = time.Now() },
		ConnectDone:          func(string, string, error) { t.connectEnd = time.Now() },
		TLSHandshakeStart:    func() { t.tlsStart = time.Now() },
		TLSHandshakeDone:     func(tls.ConnectionState, error) { t.tlsDone = time.Now() },
		GotFirstResponseByte: func() { t.firstByte = time.Now() },
	}
}

func (t *tracer) timing(total time.Duration) Timing {
	return Timing{
		TotalMS:     uint64(total.Milliseconds()),
		DNSMS:       span(t.dnsStart, t.dnsDone),
		ConnectMS:   span(t.connectStart, t.connectEnd),
		TLSMS:       span(t.tlsStart, t.tlsDone),
		FirstByteMS: span(t.start, t.firstByte),
	}
}

func span(from, to time.Time) *uint64 {
	if from.IsZero() || to.IsZero() {
		return nil
	}
	ms := uint64(to.Sub(from).Milliseconds())
	return &ms
}
