package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok() Checker { return CheckerFunc(func(context.Context) error { return nil }) }

func failing(msg string) Checker {
	return CheckerFunc(func(context.Context) error { return errors.New(msg) })
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]Checker
		wantStatus int
		wantChecks map[string]string
	}{
		{
			name:       "no dependencies",
			checks:     map[string]Checker{},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{},
		},
		{
			name:       "all healthy",
			checks:     map[string]Checker{"postgres": ok(), "nats": ok()},
			wantStatus: http.StatusOK,
			wantChecks: map[string]string{"postgres": "ok", "nats": "ok"},
		},
		{
			name:       "redis down",
			checks:     map[string]Checker{"postgres": ok(), "redis": failing("refused")},
			wantStatus: http.StatusServiceUnavailable,
			wantChecks: map[string]string{"postgres": "ok", "redis": "error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := chi.NewRouter()
			NewHandler(tt.checks).RegisterRoutes(r)

			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			assert.Equal(t, tt.wantStatus, rec.Code)

			var report Report
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
			assert.Equal(t, tt.wantStatus == http.StatusOK, report.Healthy)
			got := make(map[string]string, len(report.Checks))
			for name, s := range report.Checks {
				got[name] = s.Status
			}
			assert.Equal(t, tt.wantChecks, got)
		})
	}
}
