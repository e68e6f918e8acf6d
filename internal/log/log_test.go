package log

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{in: "", want: slog.LevelInfo},
		{in: "debug", want: slog.LevelDebug},
		{in: "WARN", want: slog.LevelWarn},
		{in: "error", want: slog.LevelError},
		{in: "loud", want: slog.LevelInfo, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogger_ComponentAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{
		Component: ComponentHTTP,
		Handler:   slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	})

	handler := Middleware(logger)(RequestIDMiddleware(func(*http.Request) string { return "req_1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			LogError(r.Context(), "Request failed", errors.New("boom"), OpRead, ErrorTypeInternal,
				NewFields().WithSite("site-1"))
		})))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	out := buf.String()
	for _, want := range []string{"component=http", "request_id=req_1", "site_id=site-1", "error=boom", "error_type=internal_error"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestFromContext_Default(t *testing.T) {
	if l := FromContext(context.Background()); l.Component() != "unknown" {
		t.Errorf("FromContext() component = %q", l.Component())
	}
}
