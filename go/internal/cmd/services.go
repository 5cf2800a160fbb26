package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/trivia/go/internal/config"
	"github.com/mcdev12/trivia/go/internal/content"
	"github.com/mcdev12/trivia/go/internal/game/broadcast"
	"github.com/mcdev12/trivia/go/internal/game/gateway"
	"github.com/mcdev12/trivia/go/internal/game/room"
	"github.com/mcdev12/trivia/go/internal/health"
	"github.com/rs/zerolog/log"
)

// Runner is a long-lived component started by main.
type Runner interface {
	Start(ctx context.Context) error
}

type Services struct {
	Rooms       *room.Store
	RoomService *room.Service
	Content     *content.Service
	Gateway     *gateway.Service
	Broadcaster *broadcast.Broadcaster
	Health      *health.Handler
	Runners     []Runner

	clock   clockwork.Clock
	closers []func()
}

// Close releases connections in reverse order of creation.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func setupServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Content repository → content app → room store → HTTP services
	clock := clockwork.NewRealClock()
	s := &Services{clock: clock}
	checks := map[string]health.Checker{}

	contentApp, err := setupContent(ctx, cfg, s, checks)
	if err != nil {
		s.Close()
		return nil, err
	}

	delivery := broadcast.NewDeliveryStats()
	gatewayConfig := gateway.DefaultConfig()
	s.Gateway = gateway.NewService(gatewayConfig, clock, delivery)

	publisher, err := setupTransport(ctx, cfg, s, gatewayConfig, checks)
	if err != nil {
		s.Close()
		return nil, err
	}

	broadcastConfig := broadcast.DefaultConfig()
	broadcastConfig.Workers = cfg.BroadcastWorkers
	s.Broadcaster = broadcast.NewBroadcaster(publisher, clock, broadcastConfig, delivery)

	s.Rooms = room.NewStore(contentApp, s.Broadcaster, clock, cfg.Game.RoomOptions())
	s.RoomService = room.NewService(s.Rooms, clock)
	s.Content = content.NewService(contentApp)
	s.Health = health.NewHandler(checks)
	s.closers = append(s.closers, s.Rooms.Close)

	return s, nil
}

func setupContent(ctx context.Context, cfg *config.Config, s *Services, checks map[string]health.Checker) (*content.App, error) {
	if cfg.ContentStore == config.ContentMemory {
		repo := content.NewMemoryRepository(s.clock)
		if cfg.SeedFile != "" {
			seed, err := content.LoadSeedFile(cfg.SeedFile)
			if err != nil {
				return nil, err
			}
			if err := repo.Seed(ctx, seed); err != nil {
				return nil, fmt.Errorf("failed to seed questions: %w", err)
			}
			log.Info().Str("file", cfg.SeedFile).Int("categories", len(seed.Categories)).Msg("question bank seeded")
		}
		return content.NewApp(repo), nil
	}

	database, err := setupDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, func() { database.Close() })
	checks["postgres"] = health.Database(database)

	if err := content.EnsureSchema(ctx, database); err != nil {
		return nil, err
	}
	app := content.NewApp(content.NewPostgresRepository(database))

	listenerConfig := content.DefaultListenerConfig()
	listenerConfig.DatabaseURL = cfg.Database.DSN()
	listener, err := content.NewListener(app, listenerConfig)
	if err != nil {
		return nil, err
	}
	s.Runners = append(s.Runners, listener)
	return app, nil
}

// setupTransport picks the broadcaster's publisher. With a shared transport
// the gateway consumes the same stream every instance publishes to.
func setupTransport(ctx context.Context, cfg *config.Config, s *Services, gatewayConfig gateway.Config, checks map[string]health.Checker) (broadcast.Publisher, error) {
	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.New().String()[:8]
	}

	switch cfg.Transport {
	case config.TransportNATS:
		natsConfig := broadcast.DefaultNATSConfig()
		natsConfig.URL = cfg.NATSURL
		nc, err := broadcast.Connect(natsConfig)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, nc.Close)
		checks["nats"] = health.NATS(nc)

		publisher, err := broadcast.NewNATSPublisher(ctx, nc, natsConfig)
		if err != nil {
			return nil, err
		}
		consumerConfig := gatewayConfig.JetStreamConfig
		consumerConfig.ConsumerName = consumerConfig.ConsumerName + "-" + instanceID
		consumer, err := gateway.NewEventConsumer(ctx, nc, s.Gateway.Publisher(), consumerConfig)
		if err != nil {
			return nil, err
		}
		s.Gateway.AddConsumer(consumer)
		return publisher, nil

	case config.TransportRedis:
		client, err := broadcast.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { client.Close() })
		checks["redis"] = health.Redis(client)

		s.Gateway.AddConsumer(gateway.NewRedisConsumer(client, cfg.RedisPrefix, s.Gateway.Publisher()))
		return broadcast.NewRedisPublisher(client, cfg.RedisPrefix), nil

	default:
		return s.Gateway.Publisher(), nil
	}
}
