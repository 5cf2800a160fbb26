package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mcdev12/trivia/go/internal/game/events"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RoomSubject is the JetStream subject for room-wide events.
func RoomSubject(prefix, code string) string {
	return fmt.Sprintf("%s.rooms.%s.events", prefix, code)
}

// PlayerSubject is the JetStream subject for one player's replies.
func PlayerSubject(prefix, code, playerID string) string {
	return fmt.Sprintf("%s.rooms.%s.players.%s", prefix, code, playerID)
}

// NATSConfig holds connection and stream settings for JetStream delivery.
type NATSConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxAge        time.Duration
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		StreamName:    "TRIVIA_EVENTS",
		SubjectPrefix: "trivia",
		MaxAge:        10 * time.Minute,
		MaxReconnects: -1, // Infinite
		ReconnectWait: 2 * time.Second,
	}
}

// Connect dials NATS with reconnect logging.
func Connect(config NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// NATSPublisher publishes envelopes to a JetStream stream. The envelope ID
// is used as the message ID so the server drops duplicates.
type NATSPublisher struct {
	js     jetstream.JetStream
	config NATSConfig
}

// NewNATSPublisher ensures the stream exists and returns a publisher on nc.
func NewNATSPublisher(ctx context.Context, nc *nats.Conn, config NATSConfig) (*NATSPublisher, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        config.StreamName,
		Description: "Trivia room events and player replies",
		Subjects:    []string{config.SubjectPrefix + ".rooms.>"},
		MaxAge:      config.MaxAge,
		Storage:     jetstream.MemoryStorage,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure stream %s: %w", config.StreamName, err)
	}

	log.Info().
		Str("stream", config.StreamName).
		Str("subject_prefix", config.SubjectPrefix).
		Msg("JetStream publisher ready")

	return &NATSPublisher{js: js, config: config}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, env *events.Envelope) error {
	subject := RoomSubject(p.config.SubjectPrefix, env.RoomCode)
	if env.Direct {
		subject = PlayerSubject(p.config.SubjectPrefix, env.RoomCode, env.PlayerID)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if _, err := p.js.Publish(ctx, subject, data, jetstream.WithMsgID(env.ID)); err != nil {
		return fmt.Errorf("%w: publish %s: %v", models.ErrTransportUnavailable, subject, err)
	}
	return nil
}

// RoomChannel is the Redis pub/sub channel for room-wide events.
func RoomChannel(prefix, code string) string {
	return fmt.Sprintf("%s:room:%s", prefix, code)
}

// PlayerChannel is the Redis pub/sub channel for one player's replies.
func PlayerChannel(prefix, code, playerID string) string {
	return fmt.Sprintf("%s:room:%s:player:%s", prefix, code, playerID)
}

// RedisPublisher publishes envelopes over Redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
	prefix string
}

func NewRedisPublisher(client *redis.Client, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, env *events.Envelope) error {
	channel := RoomChannel(p.prefix, env.RoomCode)
	if env.Direct {
		channel = PlayerChannel(p.prefix, env.RoomCode, env.PlayerID)
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("%w: publish %s: %v", models.ErrTransportUnavailable, channel, err)
	}
	return nil
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info().Str("addr", opt.Addr).Int("db", opt.DB).Msg("connected to Redis")
	return client, nil
}
