package gateway

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mcdev12/trivia/go/internal/game/broadcast"
	"github.com/mcdev12/trivia/go/internal/game/events"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisConsumer relays room events published over Redis pub/sub to a local
// sink. One pattern subscription covers room and player channels.
type RedisConsumer struct {
	client *redis.Client
	prefix string
	sink   broadcast.Publisher
}

func NewRedisConsumer(client *redis.Client, prefix string, sink broadcast.Publisher) *RedisConsumer {
	return &RedisConsumer{
		client: client,
		prefix: prefix,
		sink:   sink,
	}
}

func (rc *RedisConsumer) pattern() string {
	return rc.prefix + ":room:*"
}

// Start subscribes and relays messages until ctx is done.
func (rc *RedisConsumer) Start(ctx context.Context) error {
	pubsub := rc.client.PSubscribe(ctx, rc.pattern())
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", rc.pattern(), err)
	}
	log.Info().Str("pattern", rc.pattern()).Msg("redis event consumer started")

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("redis event consumer shutting down")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription closed")
			}
			if err := rc.processMessage(ctx, msg.Channel, msg.Payload); err != nil {
				log.Error().Err(err).Str("channel", msg.Channel).Msg("failed to process message")
			}
		}
	}
}

func (rc *RedisConsumer) processMessage(ctx context.Context, channel, payload string) error {
	var env events.Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}
	if env.RoomCode == "" {
		return fmt.Errorf("envelope %s has no room code", env.ID)
	}

	log.Debug().
		Str("event_id", env.ID).
		Str("room_code", env.RoomCode).
		Str("event_type", string(env.Type)).
		Str("channel", channel).
		Msg("processing redis event")

	if err := rc.sink.Publish(ctx, &env); err != nil {
		log.Warn().Err(err).Str("room_code", env.RoomCode).Msg("local delivery dropped event")
	}
	return nil
}
