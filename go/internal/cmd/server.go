package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mcdev12/trivia/go/internal/config"
	"github.com/mcdev12/trivia/go/internal/game/gateway"
	"github.com/mcdev12/trivia/go/internal/httputil"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *config.Config, services *Services) *http.Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	r.Use(c.Handler)

	// Register services
	registerServices(r, services)

	// Add health check and service info
	services.Health.RegisterRoutes(r)
	r.Get("/info", infoHandler(cfg, services))

	// Setup HTTP/2 server
	return &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           h2c.NewHandler(r, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func registerServices(r chi.Router, services *Services) {
	services.RoomService.RegisterRoutes(r)
	services.Content.RegisterRoutes(r)
	services.Gateway.RegisterRoutes(r, services.Rooms)
}

type info struct {
	Service      string        `json:"service"`
	Transport    string        `json:"transport"`
	ContentStore string        `json:"content_store"`
	ActiveRooms  int           `json:"active_rooms"`
	Gateway      gateway.Stats `json:"gateway"`
}

func infoHandler(cfg *config.Config, services *Services) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, info{
			Service:      "trivia",
			Transport:    cfg.Transport,
			ContentStore: cfg.ContentStore,
			ActiveRooms:  services.Rooms.Count(),
			Gateway:      services.Gateway.GetStats(),
		})
	}
}
