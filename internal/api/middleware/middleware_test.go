package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/notifyhub/notification-scheduler/internal/api/middleware"
)

func TestCorrelationID(t *testing.T) {
	var seen string
	h := middleware.CorrelationID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.GetCorrelationID(r.Context())
	}))

	tests := []struct {
		name   string
		header string
		value  string
		keep   bool
	}{
		{"correlation header echoed", "X-Correlation-ID", "abc-123", true},
		{"request id accepted", "X-Request-ID", "req-9", true},
		{"oversized id replaced", "X-Correlation-ID", strings.Repeat("x", 200), false},
		{"missing id generated", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if seen == "" || rec.Header().Get("X-Correlation-ID") != seen {
				t.Fatalf("id not propagated: ctx=%q header=%q", seen, rec.Header().Get("X-Correlation-ID"))
			}
			if tt.keep && seen != tt.value {
				t.Fatalf("expected %q, got %q", tt.value, seen)
			}
			if !tt.keep && seen == tt.value {
				t.Fatalf("expected a generated id, got %q", seen)
			}
		})
	}
}

func TestRequestLogger_Levels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	status := http.StatusOK
	h := middleware.RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte("hello"))
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if logs.Len() != 0 {
		t.Fatalf("probe traffic should log at debug, got %d entries", logs.Len())
	}

	status = http.StatusUnprocessableEntity
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/notifications", nil))
	entries := logs.TakeAll()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry, got %+v", entries)
	}
	fields := entries[0].ContextMap()
	if fields["status"] != int64(422) || fields["bytes"] != int64(5) {
		t.Fatalf("unexpected fields %v", fields)
	}
}
