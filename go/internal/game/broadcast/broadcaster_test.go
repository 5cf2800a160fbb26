package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/trivia/go/internal/game/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu   sync.Mutex
	envs []*events.Envelope
	err  error
}

func (p *recordingPublisher) Publish(ctx context.Context, env *events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return p.err
}

func (p *recordingPublisher) all() []*events.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*events.Envelope, len(p.envs))
	copy(out, p.envs)
	return out
}

func TestEmitRoomAssignsMonotonicSequencePerRoom(t *testing.T) {
	pub := &recordingPublisher{}
	b := NewBroadcaster(pub, clockwork.NewFakeClock(), Config{}, nil)

	assert.Equal(t, uint64(1), b.EmitRoom("AAAAAA", events.EventTypePlayerJoined, events.PlayerJoinedPayload{}))
	assert.Equal(t, uint64(2), b.EmitRoom("AAAAAA", events.EventTypePlayerLeft, events.PlayerLeftPayload{}))
	assert.Equal(t, uint64(1), b.EmitRoom("BBBBBB", events.EventTypePlayerJoined, events.PlayerJoinedPayload{}))
	assert.Equal(t, uint64(2), b.Seq("AAAAAA"))

	envs := pub.all()
	require.Len(t, envs, 3)
	assert.Equal(t, "AAAAAA", envs[0].RoomCode)
	assert.Equal(t, events.EventTypePlayerLeft, envs[1].Type)
	assert.NotEqual(t, envs[0].ID, envs[1].ID)
}

func TestEmitPlayerDoesNotConsumeSequence(t *testing.T) {
	pub := &recordingPublisher{}
	b := NewBroadcaster(pub, clockwork.NewFakeClock(), Config{}, nil)

	b.EmitRoom("AAAAAA", events.EventTypeGameStarted, events.GameStartedPayload{})
	b.EmitPlayer("AAAAAA", "p1", events.EventTypeAnswerRejected, events.AnswerRejectedPayload{Kind: "DuplicateAnswer"})
	seq := b.EmitRoom("AAAAAA", events.EventTypeQuestionStarted, events.QuestionStartedPayload{})

	assert.Equal(t, uint64(2), seq)
	envs := pub.all()
	require.Len(t, envs, 3)
	reply := envs[1]
	assert.True(t, reply.Direct)
	assert.Equal(t, "p1", reply.PlayerID)
	assert.Equal(t, uint64(1), reply.Seq)

	var payload events.AnswerRejectedPayload
	require.NoError(t, json.Unmarshal(reply.Data, &payload))
	assert.Equal(t, "DuplicateAnswer", payload.Kind)
}

func TestPublishFailureIsRecordedAndDoesNotBlock(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("subscriber gone")}
	stats := NewDeliveryStats()
	b := NewBroadcaster(pub, clockwork.NewFakeClock(), Config{}, stats)

	b.EmitRoom("AAAAAA", events.EventTypeRoomClosed, events.RoomClosedPayload{})

	snap := stats.Snapshot()
	assert.Equal(t, uint64(1), snap.Failed[string(events.EventTypeRoomClosed)])
	assert.Equal(t, uint64(1), b.Seq("AAAAAA"))
}

func TestWorkersPreserveRoomOrder(t *testing.T) {
	pub := &recordingPublisher{}
	b := NewBroadcaster(pub, clockwork.NewRealClock(), Config{Workers: 3, QueueSize: 256}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Start(ctx)
		close(done)
	}()

	for i := 0; i < 50; i++ {
		b.EmitRoom("AAAAAA", events.EventTypeAnswerReceived, events.AnswerReceivedPayload{AnsweredCount: i})
		b.EmitRoom("BBBBBB", events.EventTypeAnswerReceived, events.AnswerReceivedPayload{AnsweredCount: i})
	}

	require.Eventually(t, func() bool { return len(pub.all()) == 100 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done

	last := map[string]uint64{}
	for _, env := range pub.all() {
		assert.Equal(t, last[env.RoomCode]+1, env.Seq, "room %s out of order", env.RoomCode)
		last[env.RoomCode] = env.Seq
	}
}

func TestFullQueueDropsInsteadOfBlocking(t *testing.T) {
	pub := &recordingPublisher{}
	stats := NewDeliveryStats()
	b := NewBroadcaster(pub, clockwork.NewFakeClock(), Config{Workers: 1, QueueSize: 1}, stats)

	// Workers are not started, so the single slot fills immediately.
	b.EmitRoom("AAAAAA", events.EventTypePlayerJoined, events.PlayerJoinedPayload{})
	b.EmitRoom("AAAAAA", events.EventTypePlayerJoined, events.PlayerJoinedPayload{})

	assert.Equal(t, uint64(1), stats.Snapshot().Dropped[string(events.EventTypePlayerJoined)])
	assert.Equal(t, uint64(2), b.Seq("AAAAAA"))
}

func TestForgetResetsRoomSequence(t *testing.T) {
	b := NewBroadcaster(&recordingPublisher{}, clockwork.NewFakeClock(), Config{}, nil)
	b.EmitRoom("AAAAAA", events.EventTypePlayerJoined, events.PlayerJoinedPayload{})

	b.Forget("AAAAAA")

	assert.Equal(t, uint64(0), b.Seq("AAAAAA"))
}

func TestSubjectsAndChannels(t *testing.T) {
	assert.Equal(t, "trivia.rooms.ABC234.events", RoomSubject("trivia", "ABC234"))
	assert.Equal(t, "trivia.rooms.ABC234.players.p1", PlayerSubject("trivia", "ABC234", "p1"))
	assert.Equal(t, "trivia:room:ABC234", RoomChannel("trivia", "ABC234"))
	assert.Equal(t, "trivia:room:ABC234:player:p1", PlayerChannel("trivia", "ABC234", "p1"))
}
