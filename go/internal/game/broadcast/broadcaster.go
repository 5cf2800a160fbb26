package broadcast

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/trivia/go/internal/game/events"
	"github.com/rs/zerolog/log"
)

// Publisher delivers an envelope to subscribers. Implementations must not
// retry; clients recover missed events through snapshots.
type Publisher interface {
	Publish(ctx context.Context, env *events.Envelope) error
}

// Config holds delivery settings for the broadcaster.
type Config struct {
	// Workers is the number of delivery goroutines. Rooms are pinned to a
	// worker so per-room order holds. Zero delivers synchronously.
	Workers        int
	QueueSize      int
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Workers:        4,
		QueueSize:      1024,
		PublishTimeout: 5 * time.Second,
	}
}

// Broadcaster assigns per-room sequence numbers and hands envelopes to a
// Publisher without ever blocking the caller.
type Broadcaster struct {
	publisher Publisher
	clock     clockwork.Clock
	config    Config
	metrics   MetricsCollector

	mu     sync.Mutex
	seqs   map[string]uint64
	queues []chan *events.Envelope
	wg     sync.WaitGroup
}

// NewBroadcaster creates a broadcaster. Call Start before emitting when
// Workers is non-zero.
func NewBroadcaster(publisher Publisher, clock clockwork.Clock, config Config, metrics MetricsCollector) *Broadcaster {
	if metrics == nil {
		metrics = &NoOpMetricsCollector{}
	}
	b := &Broadcaster{
		publisher: publisher,
		clock:     clock,
		config:    config,
		metrics:   metrics,
		seqs:      make(map[string]uint64),
	}
	for i := 0; i < config.Workers; i++ {
		b.queues = append(b.queues, make(chan *events.Envelope, config.QueueSize))
	}
	return b
}

// Start runs the delivery workers until ctx is cancelled.
func (b *Broadcaster) Start(ctx context.Context) {
	log.Info().Int("workers", len(b.queues)).Msg("broadcaster started")

	for i, q := range b.queues {
		b.wg.Add(1)
		go b.worker(ctx, i, q)
	}
	<-ctx.Done()
	b.wg.Wait()
	log.Info().Msg("broadcaster stopped")
}

func (b *Broadcaster) worker(ctx context.Context, workerID int, queue <-chan *events.Envelope) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Int("worker_id", workerID).Msg("broadcast worker shutting down")
			return
		case env := <-queue:
			b.deliver(ctx, env)
		}
	}
}

// EmitRoom publishes a room-wide event and returns its sequence number.
func (b *Broadcaster) EmitRoom(code string, eventType events.EventType, payload any) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	env, ok := b.envelope(code, eventType, payload)
	if !ok {
		return b.seqs[code]
	}
	b.seqs[code]++
	env.Seq = b.seqs[code]
	b.dispatch(env)
	return env.Seq
}

// EmitPlayer publishes a reply to a single player. The envelope carries the
// room's current sequence number without consuming a new one.
func (b *Broadcaster) EmitPlayer(code, playerID string, eventType events.EventType, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	env, ok := b.envelope(code, eventType, payload)
	if !ok {
		return
	}
	env.Seq = b.seqs[code]
	env.Direct = true
	env.PlayerID = playerID
	b.dispatch(env)
}

// Seq returns the last sequence number assigned for a room.
func (b *Broadcaster) Seq(code string) uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seqs[code]
}

// Forget drops sequence state for a retired room.
func (b *Broadcaster) Forget(code string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.seqs, code)
}

func (b *Broadcaster) envelope(code string, eventType events.EventType, payload any) (*events.Envelope, bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("room_code", code).Str("event_type", string(eventType)).Msg("failed to marshal event payload")
		return nil, false
	}
	return &events.Envelope{
		ID:        uuid.New().String(),
		RoomCode:  code,
		Type:      eventType,
		Timestamp: b.clock.Now(),
		Data:      data,
	}, true
}

// dispatch must be called with b.mu held so queue order matches sequence order.
func (b *Broadcaster) dispatch(env *events.Envelope) {
	if len(b.queues) == 0 {
		b.deliver(context.Background(), env)
		return
	}

	q := b.queues[shard(env.RoomCode, len(b.queues))]
	select {
	case q <- env:
	default:
		b.metrics.RecordDropped(string(env.Type))
		log.Warn().
			Str("room_code", env.RoomCode).
			Str("event_type", string(env.Type)).
			Uint64("seq", env.Seq).
			Msg("broadcast queue full, dropping event")
	}
}

func (b *Broadcaster) deliver(ctx context.Context, env *events.Envelope) {
	if b.config.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.config.PublishTimeout)
		defer cancel()
	}

	start := time.Now()
	err := b.publisher.Publish(ctx, env)
	b.metrics.RecordPublish(string(env.Type), err == nil, time.Since(start))
	if err != nil {
		log.Warn().
			Err(err).
			Str("room_code", env.RoomCode).
			Str("event_type", string(env.Type)).
			Uint64("seq", env.Seq).
			Msg("event delivery failed")
	}
}

func shard(code string, n int) int {
	h := fnv.New32a()
	h.Write([]byte(code))
	return int(h.Sum32() % uint32(n))
}
