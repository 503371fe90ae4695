package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/dralsallum/theKnot-sub000/pkg/logger"
)

func newTestLogger(w *bytes.Buffer) *slog.Logger {
	return logger.NewWithWriter("cart-session", "debug", w)
}

// logOnce runs RequestLogger around a handler that logs a single line and
// returns that line decoded.
func logOnce(t *testing.T, req *http.Request) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	handler := RequestLogger(newTestLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Info("handler log")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal %q: %v", buf.String(), err)
	}
	return out
}

func TestRequestLogger_IncludesCorrelationID(t *testing.T) {
	ctx := logger.WithCorrelationID(context.Background(), "corr-test-123")
	out := logOnce(t, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil).WithContext(ctx))

	if got := out["correlation_id"]; got != "corr-test-123" {
		t.Errorf("correlation_id = %v", got)
	}
	if got := out["service"]; got != "cart-session" {
		t.Errorf("service = %v", got)
	}
}

func TestRequestLogger_UserIDSources(t *testing.T) {
	fromHeader := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	fromHeader.Header.Set(UserIDHeader, "bride-1")
	if got := logOnce(t, fromHeader)["user_id"]; got != "bride-1" {
		t.Errorf("header user_id = %v", got)
	}

	fromContext := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil).
		WithContext(WithUserID(context.Background(), "groom-1"))
	fromContext.Header.Set(UserIDHeader, "someone-else")
	if got := logOnce(t, fromContext)["user_id"]; got != "groom-1" {
		t.Errorf("context user_id = %v, want context to win", got)
	}

	anonymous := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	if _, ok := logOnce(t, anonymous)["user_id"]; ok {
		t.Error("user_id should be absent")
	}
}

func TestRequestLogger_IncludesTraceFields(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	out := logOnce(t, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil).WithContext(ctx))

	if got := out["trace_id"]; got != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Errorf("trace_id = %v", got)
	}
	if got := out["span_id"]; got != "00f067aa0ba902b7" {
		t.Errorf("span_id = %v", got)
	}
}
