package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/rollcall-server/internal/testutil"
)

func TestRouter_Healthz(t *testing.T) {
	t.Parallel()

	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		checks     map[string]Check
		wantStatus int
		wantBody   map[string]string
	}{
		{
			name:       "no dependencies",
			wantStatus: http.StatusOK,
			wantBody:   map[string]string{"status": "ok"},
		},
		{
			name:       "all healthy",
			checks:     map[string]Check{"postgres": ok, "redis": ok},
			wantStatus: http.StatusOK,
			wantBody:   map[string]string{"status": "ok", "postgres": "ok", "redis": "ok"},
		},
		{
			name:       "redis down",
			checks:     map[string]Check{"postgres": ok, "redis": down},
			wantStatus: http.StatusServiceUnavailable,
			wantBody:   map[string]string{"status": "degraded", "postgres": "ok", "redis": "unavailable"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := New(nil, tt.checks, testutil.MakeNoopLogger()).Register()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			assert.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.wantBody, body)
		})
	}
}

func TestRouter_DisplayRoute(t *testing.T) {
	t.Parallel()

	var hit string
	display := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hit = r.URL.Path
		w.WriteHeader(http.StatusTeapot)
	})

	h := New(display, nil, testutil.MakeNoopLogger()).Register()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/display/abc/ws", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "/display/abc/ws", hit)
}
