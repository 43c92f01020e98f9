package telemetry

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// SpanStatus classifies a finished span.
type SpanStatus int

const (
	// SpanStatusUnset is the default status.
	SpanStatusUnset SpanStatus = iota
	// SpanStatusOK indicates the operation completed successfully.
	SpanStatusOK
	// SpanStatusError indicates the operation contained an error.
	SpanStatusError
)

// Span is one request's trace record. Fields mirror what an OTLP span would
// carry, so the JSON form can be shipped to a collector without changing
// call sites.
type Span struct {
	TraceID    string            `json:"trace_id"`
	SpanID     string            `json:"span_id"`
	Name       string            `json:"name"`
	StartTime  time.Time         `json:"start_time"`
	EndTime    time.Time         `json:"end_time"`
	Duration   time.Duration     `json:"duration_ns"`
	StatusCode SpanStatus        `json:"status_code"`
	Attributes map[string]string `json:"attributes"`
}

// JSON serialises the span as a structured JSON string for logging.
func (s *Span) JSON() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// spanLog is an append-only record of finished spans.
type spanLog struct {
	mu    sync.Mutex
	spans []*Span
}

func (l *spanLog) add(s *Span) {
	l.mu.Lock()
	l.spans = append(l.spans, s)
	l.mu.Unlock()
}

func (l *spanLog) all() []*Span {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Span, len(l.spans))
	copy(out, l.spans)
	return out
}

// newSpanIDs returns a 16-byte trace id and an 8-byte span id in hex.
func newSpanIDs() (traceID, spanID string) {
	var buf [24]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:16]), hex.EncodeToString(buf[16:])
}

// routePattern returns the matched route pattern, falling back to the raw
// path when no route matched (404s).
func routePattern(c echo.Context) string {
	if p := c.Path(); p != "" {
		return p
	}
	return c.Request().URL.Path
}

// TracingMiddleware records a span per request, named by method and route
// pattern. Request id and authenticated subject are attached when earlier
// middleware has placed them in the context.
func (tp *TelemetryProvider) TracingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !tp.cfg.tracingOn() {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			end := time.Now()

			req := c.Request()
			route := routePattern(c)
			status := c.Response().Status

			attrs := map[string]string{
				"http.method":      req.Method,
				"http.route":       route,
				"http.status_code": strconv.Itoa(status),
				"http.url":         req.URL.String(),
			}
			if id, _ := c.Get("request_id").(string); id != "" {
				attrs["request.id"] = id
			}
			if sub, _ := c.Get("auth_subject").(string); sub != "" {
				attrs["auth.subject"] = sub
			}

			code := SpanStatusOK
			if status >= http.StatusInternalServerError {
				code = SpanStatusError
			}

			traceID, spanID := newSpanIDs()
			tp.spans.add(&Span{
				TraceID:    traceID,
				SpanID:     spanID,
				Name:       "HTTP " + req.Method + " " + route,
				StartTime:  start,
				EndTime:    end,
				Duration:   end.Sub(start),
				StatusCode: code,
				Attributes: attrs,
			})
			return err
		}
	}
}
