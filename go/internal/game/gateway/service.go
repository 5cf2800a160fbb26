package gateway

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/trivia/go/internal/game/broadcast"
	"github.com/mcdev12/trivia/go/internal/httputil"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Consumer relays events from a shared transport into the gateway.
type Consumer interface {
	Start(ctx context.Context) error
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
	}
}

// Service is the realtime gateway: it owns the WebSocket connections and
// any consumers that feed them.
type Service struct {
	connectionManager *ConnectionManager
	consumers         []Consumer
	delivery          *broadcast.DeliveryStats
}

// NewService creates a new gateway service. delivery may be nil. The room
// store is supplied at route registration because it emits through the
// gateway and so is built after it.
func NewService(config Config, clock clockwork.Clock, delivery *broadcast.DeliveryStats) *Service {
	return &Service{
		connectionManager: NewConnectionManager(config.ConnectionConfig, clock),
		delivery:          delivery,
	}
}

// Publisher is the local delivery target for the broadcaster or for consumers.
func (s *Service) Publisher() broadcast.Publisher {
	return s.connectionManager
}

// AddConsumer registers a consumer to run alongside the connection manager.
func (s *Service) AddConsumer(c Consumer) {
	s.consumers = append(s.consumers, c)
}

// Start runs the connection manager and consumers until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Int("consumers", len(s.consumers)).Msg("starting gateway service")

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.connectionManager.Start(ctx)
		return nil
	})
	for _, c := range s.consumers {
		g.Go(func() error {
			return c.Start(ctx)
		})
	}

	err := g.Wait()
	log.Info().Msg("gateway service stopped")
	return err
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(r chi.Router, commands RoomCommands) {
	wsHandler := NewWebSocketHandler(s.connectionManager, commands)
	r.Get("/ws/rooms/{code}", wsHandler.HandleRoomConnection)
	r.Get("/ws/stats", s.HandleStats)
	log.Info().Msg("gateway routes registered")
}

// Stats is the gateway's operational view.
type Stats struct {
	Connections ConnectionStats          `json:"connections"`
	Delivery    *broadcast.StatsSnapshot `json:"delivery,omitempty"`
}

func (s *Service) GetStats() Stats {
	stats := Stats{Connections: s.connectionManager.GetConnectionStats()}
	if s.delivery != nil {
		snap := s.delivery.Snapshot()
		stats.Delivery = &snap
	}
	return stats
}

func (s *Service) HandleStats(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, s.GetStats())
}
