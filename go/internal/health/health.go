package health

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/trivia/go/internal/httputil"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Checker verifies that an infrastructure dependency is reachable.
type Checker interface {
	Check(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

func (f CheckerFunc) Check(ctx context.Context) error { return f(ctx) }

// Database pings a database/sql pool.
func Database(db *sql.DB) Checker {
	return CheckerFunc(db.PingContext)
}

// NATS reports whether the connection is currently up.
func NATS(nc *nats.Conn) Checker {
	return CheckerFunc(func(ctx context.Context) error {
		if !nc.IsConnected() {
			return errors.New("NATS disconnected")
		}
		return nil
	})
}

// Redis pings a redis client.
func Redis(client *redis.Client) Checker {
	return CheckerFunc(func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
}

// Status is one dependency's result.
type Status struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Report is the health response body.
type Report struct {
	Healthy bool              `json:"healthy"`
	Checks  map[string]Status `json:"checks"`
}

// Handler serves the aggregate health of the registered checks.
type Handler struct {
	checks  map[string]Checker
	timeout time.Duration
}

func NewHandler(checks map[string]Checker) *Handler {
	return &Handler{checks: checks, timeout: 3 * time.Second}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.ServeHTTP)
}

// Run executes every check with a shared timeout.
func (h *Handler) Run(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	report := Report{Healthy: true, Checks: make(map[string]Status, len(names))}
	for _, name := range names {
		if err := h.checks[name].Check(ctx); err != nil {
			log.Error().Err(err).Str("check", name).Msg("health check failed")
			report.Healthy = false
			report.Checks[name] = Status{Status: "error", Error: err.Error()}
			continue
		}
		report.Checks[name] = Status{Status: "ok"}
	}
	return report
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	report := h.Run(r.Context())
	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	httputil.WriteJSON(w, status, report)
}
