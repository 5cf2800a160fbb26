package room

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/trivia/go/internal/game/events"
	"github.com/mcdev12/trivia/go/internal/game/session"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvent struct {
	code      string
	eventType events.EventType
	playerID  string
	payload   any
}

type fakeEmitter struct {
	mu        sync.Mutex
	seqs      map[string]uint64
	events    []recordedEvent
	forgotten []string
}

func newFakeEmitter() *fakeEmitter {
	return &fakeEmitter{seqs: make(map[string]uint64)}
}

func (e *fakeEmitter) EmitRoom(code string, eventType events.EventType, payload any) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seqs[code]++
	e.events = append(e.events, recordedEvent{code: code, eventType: eventType, payload: payload})
	return e.seqs[code]
}

func (e *fakeEmitter) EmitPlayer(code, playerID string, eventType events.EventType, payload any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, recordedEvent{code: code, eventType: eventType, playerID: playerID, payload: payload})
}

func (e *fakeEmitter) Seq(code string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seqs[code]
}

func (e *fakeEmitter) Forget(code string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.seqs, code)
	e.forgotten = append(e.forgotten, code)
}

func (e *fakeEmitter) count(eventType events.EventType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, ev := range e.events {
		if ev.eventType == eventType && ev.playerID == "" {
			n++
		}
	}
	return n
}

func (e *fakeEmitter) last(eventType events.EventType) (recordedEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := len(e.events) - 1; i >= 0; i-- {
		if e.events[i].eventType == eventType {
			return e.events[i], true
		}
	}
	return recordedEvent{}, false
}

type fakeProvider struct {
	mu        sync.Mutex
	questions []models.Question
	err       error
	calls     int
	lastLimit int
}

func (p *fakeProvider) FetchQuestions(ctx context.Context, source models.QuestionSource) ([]models.Question, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	p.lastLimit = source.Limit
	if p.err != nil {
		return nil, p.err
	}
	if source.IsCustom() {
		return source.Questions, nil
	}
	return p.questions, nil
}

func testQuestion(id string) models.Question {
	return models.Question{
		ID:   id,
		Text: "question " + id,
		Options: []models.AnswerOption{
			{Index: 0, Text: "yes"},
			{Index: 1, Text: "no"},
		},
		CorrectIndex: 0,
	}
}

type storeHarness struct {
	clock    *clockwork.FakeClock
	emitter  *fakeEmitter
	provider *fakeProvider
	store    *Store
}

func newStoreHarness(t *testing.T) *storeHarness {
	t.Helper()
	h := &storeHarness{
		clock:    clockwork.NewFakeClock(),
		emitter:  newFakeEmitter(),
		provider: &fakeProvider{questions: []models.Question{testQuestion("q1"), testQuestion("q2")}},
	}
	h.store = NewStore(h.provider, h.emitter, h.clock, DefaultOptions())
	t.Cleanup(h.store.Close)
	return h
}

func (h *storeHarness) createRoom(t *testing.T) (string, string) {
	t.Helper()
	code, hostID, err := h.store.CreateRoom(context.Background(), CreateRoomRequest{
		HostNickname: "Quizmaster",
		TimerSeconds: 15,
		Source:       models.QuestionSource{CategoryID: "general"},
	})
	require.NoError(t, err)
	return code, hostID
}

func TestCreateRoom(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()

	code, hostID, err := h.store.CreateRoom(ctx, CreateRoomRequest{
		HostNickname: "  Quizmaster ",
		Source:       models.QuestionSource{CategoryID: "general"},
	})
	require.NoError(t, err)
	require.NoError(t, ValidateCode(code, 6))

	room, err := h.store.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStateLobby, room.State)
	assert.Equal(t, hostID, room.HostID)
	require.Len(t, room.Players, 1)
	assert.Equal(t, "Quizmaster", room.Players[0].Nickname)
	assert.Equal(t, models.PlayerRoleHost, room.Players[0].Role)
	assert.Equal(t, 15, room.Config.TimerSeconds)
	assert.Equal(t, 16, room.Config.MaxPlayers)

	// lookups are case-insensitive
	_, err = h.store.GetRoom(ctx, " "+strings.ToLower(code)+" ")
	assert.NoError(t, err)
}

func TestCreateRoomValidation(t *testing.T) {
	h := newStoreHarness(t)
	source := models.QuestionSource{CategoryID: "general"}

	tests := []struct {
		name string
		req  CreateRoomRequest
	}{
		{"timer too short", CreateRoomRequest{HostNickname: "h", TimerSeconds: 4, Source: source}},
		{"timer too long", CreateRoomRequest{HostNickname: "h", TimerSeconds: 61, Source: source}},
		{"blank nickname", CreateRoomRequest{HostNickname: "   ", Source: source}},
		{"long nickname", CreateRoomRequest{HostNickname: "abcdefghijklmnopqrstu", Source: source}},
		{"max players too small", CreateRoomRequest{HostNickname: "h", MaxPlayers: 1, Source: source}},
		{"category and custom", CreateRoomRequest{HostNickname: "h", Source: models.QuestionSource{
			CategoryID: "general",
			Questions:  []models.Question{testQuestion("q1")},
		}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := h.store.CreateRoom(context.Background(), tt.req)
			assert.ErrorIs(t, err, models.ErrInvalidConfig)
		})
	}
	assert.Equal(t, 0, h.store.Count())
}

func TestJoinRoom(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, _ := h.createRoom(t)

	playerID, err := h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)

	room, err := h.store.GetRoom(ctx, code)
	require.NoError(t, err)
	require.Len(t, room.Players, 2)
	assert.Equal(t, playerID, room.Players[1].ID)
	assert.Equal(t, models.PlayerRoleGuest, room.Players[1].Role)
	assert.Equal(t, 1, h.emitter.count(events.EventTypePlayerJoined))

	_, err = h.store.JoinRoom(ctx, code, "ANN")
	assert.ErrorIs(t, err, models.ErrDuplicateNickname)

	_, err = h.store.JoinRoom(ctx, code, "")
	assert.ErrorIs(t, err, models.ErrInvalidNickname)

	_, err = h.store.JoinRoom(ctx, "ZZZZZZ", "Bob")
	assert.ErrorIs(t, err, models.ErrRoomNotFound)

	_, err = h.store.JoinRoom(ctx, "bad", "Bob")
	assert.ErrorIs(t, err, models.ErrRoomNotFound)
}

func TestJoinRoomFull(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, _, err := h.store.CreateRoom(ctx, CreateRoomRequest{
		HostNickname: "Host",
		MaxPlayers:   2,
		Source:       models.QuestionSource{CategoryID: "general"},
	})
	require.NoError(t, err)

	annID, err := h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)
	_, err = h.store.JoinRoom(ctx, code, "Bob")
	assert.ErrorIs(t, err, models.ErrRoomFull)

	// a disconnected player frees the slot and the nickname
	require.NoError(t, h.store.LeaveRoom(ctx, code, annID))
	_, err = h.store.JoinRoom(ctx, code, "Ann")
	assert.NoError(t, err)
}

func TestJoinAfterStartIsRejected(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, hostID := h.createRoom(t)
	_, err := h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)

	_, err = h.store.StartGame(ctx, code, hostID)
	require.NoError(t, err)

	_, err = h.store.JoinRoom(ctx, code, "Carol")
	assert.ErrorIs(t, err, models.ErrRoomClosed)

	room, err := h.store.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Len(t, room.Players, 2)
}

func TestStartGameValidation(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, hostID := h.createRoom(t)

	_, err := h.store.StartGame(ctx, code, hostID)
	assert.ErrorIs(t, err, models.ErrEmptyRoom)

	annID, err := h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)

	_, err = h.store.StartGame(ctx, code, annID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	sess, err := h.store.StartGame(ctx, code, hostID)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseQuestionActive, sess.Phase())
	assert.Equal(t, 1, h.emitter.count(events.EventTypeGameStarted))
	assert.Equal(t, 1, h.emitter.count(events.EventTypeQuestionStarted))

	_, err = h.store.StartGame(ctx, code, hostID)
	assert.ErrorIs(t, err, models.ErrAlreadyStarted)
	assert.Equal(t, 1, h.provider.calls)
}

func TestStartGameProviderFailure(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, hostID := h.createRoom(t)
	_, err := h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)

	h.provider.err = errors.New("database unavailable")
	_, err = h.store.StartGame(ctx, code, hostID)
	require.Error(t, err)

	room, err := h.store.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStateLobby, room.State)

	// the room can still start once the source recovers
	h.provider.err = nil
	_, err = h.store.StartGame(ctx, code, hostID)
	assert.NoError(t, err)
}

func TestStartGameCustomQuestions(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, hostID, err := h.store.CreateRoom(ctx, CreateRoomRequest{HostNickname: "Host"})
	require.NoError(t, err)
	_, err = h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)

	_, err = h.store.StartGame(ctx, code, hostID)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)

	bad := testQuestion("bad")
	bad.CorrectIndex = 7
	assert.ErrorIs(t, h.store.AddRoomQuestion(ctx, code, hostID, bad), models.ErrInvalidConfig)

	q := testQuestion("")
	require.NoError(t, h.store.AddRoomQuestion(ctx, code, hostID, q))

	sess, err := h.store.StartGame(ctx, code, hostID)
	require.NoError(t, err)
	assert.Equal(t, session.PhaseQuestionActive, sess.Phase())

	err = h.store.AddRoomQuestion(ctx, code, hostID, testQuestion("late"))
	assert.ErrorIs(t, err, models.ErrAlreadyStarted)
}

func TestAddRoomQuestionRequiresCustomSource(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, hostID := h.createRoom(t)

	err := h.store.AddRoomQuestion(ctx, code, hostID, testQuestion("q"))
	assert.ErrorIs(t, err, models.ErrInvalidConfig)

	err = h.store.AddRoomQuestion(ctx, code, "someone-else", testQuestion("q"))
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestHostLeavesLobbyPromotesEarliestPlayer(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, hostID := h.createRoom(t)
	annID, err := h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)
	_, err = h.store.JoinRoom(ctx, code, "Bob")
	require.NoError(t, err)

	require.NoError(t, h.store.LeaveRoom(ctx, code, hostID))

	room, err := h.store.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, annID, room.HostID)
	assert.Equal(t, models.PlayerRoleHost, room.Player(annID).Role)
	assert.Equal(t, models.PlayerRoleGuest, room.Player(hostID).Role)
	assert.Equal(t, models.PlayerStatusDisconnected, room.Player(hostID).Status)

	ev, ok := h.emitter.last(events.EventTypeHostChanged)
	require.True(t, ok)
	payload := ev.payload.(events.HostChangedPayload)
	assert.Equal(t, hostID, payload.PreviousHostID)
	assert.Equal(t, annID, payload.NewHostID)
}

func TestLastPlayerLeavingLobbyClosesRoom(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, hostID := h.createRoom(t)

	require.NoError(t, h.store.LeaveRoom(ctx, code, hostID))

	room, err := h.store.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStateEnded, room.State)
	assert.Equal(t, 1, h.emitter.count(events.EventTypeRoomClosed))

	h.clock.Advance(DefaultOptions().GracePeriod)
	require.Eventually(t, func() bool { return h.store.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHostLeavesMidGame(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, hostID := h.createRoom(t)
	annID, err := h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)
	bobID, err := h.store.JoinRoom(ctx, code, "Bob")
	require.NoError(t, err)

	sess, err := h.store.StartGame(ctx, code, hostID)
	require.NoError(t, err)

	require.NoError(t, h.store.LeaveRoom(ctx, code, hostID))

	room, err := h.store.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, hostID, room.HostID, "no promotion while a game is running")
	assert.Equal(t, models.RoomStateInProgress, room.State)
	assert.Equal(t, 0, h.emitter.count(events.EventTypeHostChanged))

	// the remaining players answering closes the question without the host
	now := h.clock.Now()
	require.NoError(t, h.store.SubmitAnswer(ctx, code, annID, 0, now))
	require.NoError(t, h.store.SubmitAnswer(ctx, code, bobID, 1, now))
	assert.Equal(t, session.PhaseQuestionResults, sess.Phase())

	// the departed host keeps its identity and can come back
	require.NoError(t, h.store.ReconnectPlayer(ctx, code, hostID))
	room, err = h.store.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.True(t, room.Player(hostID).Connected())
	assert.Equal(t, 1, h.emitter.count(events.EventTypePlayerReconnected))
}

func TestLeaveAndReconnectUnknownPlayer(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, _ := h.createRoom(t)

	assert.ErrorIs(t, h.store.LeaveRoom(ctx, code, "ghost"), models.ErrUnknownPlayer)
	assert.ErrorIs(t, h.store.ReconnectPlayer(ctx, code, "ghost"), models.ErrUnknownPlayer)
}

func TestReconnectInLobbyWithTakenNickname(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, _ := h.createRoom(t)
	annID, err := h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)
	require.NoError(t, h.store.LeaveRoom(ctx, code, annID))

	_, err = h.store.JoinRoom(ctx, code, "ann")
	require.NoError(t, err)

	err = h.store.ReconnectPlayer(ctx, code, annID)
	assert.ErrorIs(t, err, models.ErrDuplicateNickname)
}

func TestTransferHost(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, hostID := h.createRoom(t)
	annID, err := h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)

	assert.ErrorIs(t, h.store.TransferHost(ctx, code, annID, annID), models.ErrUnauthorized)
	assert.ErrorIs(t, h.store.TransferHost(ctx, code, hostID, "ghost"), models.ErrUnknownPlayer)

	require.NoError(t, h.store.TransferHost(ctx, code, hostID, annID))
	room, err := h.store.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, annID, room.HostID)

	_, err = h.store.StartGame(ctx, code, hostID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestNextQuestionAndAbort(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, hostID := h.createRoom(t)
	annID, err := h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)

	assert.ErrorIs(t, h.store.NextQuestion(ctx, code, hostID), models.ErrWrongState)

	sess, err := h.store.StartGame(ctx, code, hostID)
	require.NoError(t, err)

	assert.ErrorIs(t, h.store.NextQuestion(ctx, code, annID), models.ErrUnauthorized)
	require.NoError(t, h.store.NextQuestion(ctx, code, hostID))
	assert.Equal(t, session.PhaseQuestionResults, sess.Phase())

	assert.ErrorIs(t, h.store.AbortGame(ctx, code, annID), models.ErrUnauthorized)
	require.NoError(t, h.store.AbortGame(ctx, code, hostID))
	assert.Equal(t, session.PhaseGameOver, sess.Phase())

	room, err := h.store.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStateEnded, room.State)
	require.NotNil(t, room.EndedAt)

	ev, ok := h.emitter.last(events.EventTypeGameOver)
	require.True(t, ok)
	assert.Equal(t, events.GameOverAborted, ev.payload.(events.GameOverPayload).Reason)

	assert.ErrorIs(t, h.store.AbortGame(ctx, code, hostID), models.ErrWrongState)
}

func TestAbortLobbyClosesRoom(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, hostID := h.createRoom(t)

	require.NoError(t, h.store.AbortGame(ctx, code, hostID))
	room, err := h.store.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStateEnded, room.State)

	_, err = h.store.JoinRoom(ctx, code, "Ann")
	assert.ErrorIs(t, err, models.ErrRoomClosed)
}

func TestSnapshot(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, hostID := h.createRoom(t)
	annID, err := h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)

	lobby, err := h.store.Snapshot(ctx, code, annID)
	require.NoError(t, err)
	assert.Equal(t, string(models.RoomStateLobby), lobby.RoomState)
	assert.Nil(t, lobby.Game)
	assert.Equal(t, h.emitter.Seq(code), lobby.Seq)
	assert.Len(t, lobby.Players, 2)

	_, err = h.store.Snapshot(ctx, code, "ghost")
	assert.ErrorIs(t, err, models.ErrUnknownPlayer)

	_, err = h.store.StartGame(ctx, code, hostID)
	require.NoError(t, err)
	require.NoError(t, h.store.SubmitAnswer(ctx, code, annID, 0, h.clock.Now()))

	snap, err := h.store.Snapshot(ctx, code, annID)
	require.NoError(t, err)
	require.NotNil(t, snap.Game)
	assert.Equal(t, string(session.PhaseQuestionActive), snap.Game.Phase)
	require.NotNil(t, snap.Game.OwnAnswer)
	assert.Equal(t, 0, snap.Game.OwnAnswer.AnswerIndex)
	assert.Equal(t, h.emitter.Seq(code), snap.Seq)

	again, err := h.store.Snapshot(ctx, code, annID)
	require.NoError(t, err)
	assert.Equal(t, snap, again)
}

func TestLeaderboardBeforeStart(t *testing.T) {
	h := newStoreHarness(t)
	code, _ := h.createRoom(t)

	_, err := h.store.Leaderboard(context.Background(), code)
	assert.ErrorIs(t, err, models.ErrWrongState)
}

func TestCompletedGameIsRetiredAfterGracePeriod(t *testing.T) {
	h := newStoreHarness(t)
	h.provider.questions = []models.Question{testQuestion("only")}
	ctx := context.Background()
	code, hostID := h.createRoom(t)
	annID, err := h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)

	sess, err := h.store.StartGame(ctx, code, hostID)
	require.NoError(t, err)
	now := h.clock.Now()
	require.NoError(t, h.store.SubmitAnswer(ctx, code, hostID, 0, now))
	require.NoError(t, h.store.SubmitAnswer(ctx, code, annID, 0, now))
	require.Equal(t, session.PhaseQuestionResults, sess.Phase())

	h.clock.Advance(session.DefaultRules().ResultsInterval)
	require.Eventually(t, func() bool { return sess.Phase() == session.PhaseGameOver }, time.Second, 5*time.Millisecond)

	// results stay readable during the grace period
	require.Eventually(t, func() bool {
		room, err := h.store.GetRoom(ctx, code)
		return err == nil && room.State == models.RoomStateEnded
	}, time.Second, 5*time.Millisecond)
	board, err := h.store.Leaderboard(ctx, code)
	require.NoError(t, err)
	require.Len(t, board, 2)

	h.clock.Advance(DefaultOptions().GracePeriod)
	require.Eventually(t, func() bool { return h.store.Count() == 0 }, time.Second, 5*time.Millisecond)

	_, err = h.store.GetRoom(ctx, code)
	assert.ErrorIs(t, err, models.ErrRoomNotFound)
	h.emitter.mu.Lock()
	assert.Contains(t, h.emitter.forgotten, code)
	h.emitter.mu.Unlock()
}

func TestCloseAbortsRunningGames(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, hostID := h.createRoom(t)
	_, err := h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)
	sess, err := h.store.StartGame(ctx, code, hostID)
	require.NoError(t, err)

	h.store.Close()

	assert.Equal(t, session.PhaseGameOver, sess.Phase())
	assert.Equal(t, 0, h.store.Count())
	_, _, err = h.store.CreateRoom(ctx, CreateRoomRequest{HostNickname: "late"})
	assert.ErrorIs(t, err, models.ErrRoomClosed)
}

func TestConcurrentLeaveAndReconnectKeepRoomAndSessionInStep(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, hostID := h.createRoom(t)
	annID, err := h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)
	sess, err := h.store.StartGame(ctx, code, hostID)
	require.NoError(t, err)

	for i := 0; i < 200; i++ {
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, h.store.LeaveRoom(ctx, code, annID))
		}()
		go func() {
			defer wg.Done()
			assert.NoError(t, h.store.ReconnectPlayer(ctx, code, annID))
		}()
		wg.Wait()

		room, err := h.store.GetRoom(ctx, code)
		require.NoError(t, err)
		var inSession bool
		for _, le := range sess.Leaderboard() {
			if le.PlayerID == annID {
				inSession = le.Connected
			}
		}
		require.Equal(t, room.Player(annID).Connected(), inSession, "iteration %d", i)
	}
}

func TestIdleLobbyIsClosed(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, _ := h.createRoom(t)

	h.clock.Advance(DefaultOptions().LobbyTimeout)
	require.Eventually(t, func() bool {
		room, err := h.store.GetRoom(ctx, code)
		return err == nil && room.State == models.RoomStateEnded
	}, time.Second, 5*time.Millisecond)

	ev, ok := h.emitter.last(events.EventTypeRoomClosed)
	require.True(t, ok)
	assert.Equal(t, "idle", ev.payload.(events.RoomClosedPayload).Reason)

	_, err := h.store.JoinRoom(ctx, code, "Late")
	assert.ErrorIs(t, err, models.ErrRoomClosed)

	h.clock.Advance(DefaultOptions().GracePeriod)
	require.Eventually(t, func() bool { return h.store.Count() == 0 }, time.Second, 5*time.Millisecond)
}

func TestStartedGameCancelsLobbyExpiry(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, hostID := h.createRoom(t)
	_, err := h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)
	sess, err := h.store.StartGame(ctx, code, hostID)
	require.NoError(t, err)

	h.clock.Advance(DefaultOptions().LobbyTimeout)
	require.Eventually(t, func() bool { return sess.Phase() == session.PhaseQuestionResults }, time.Second, 5*time.Millisecond)

	room, err := h.store.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStateInProgress, room.State)
	assert.Equal(t, 0, h.emitter.count(events.EventTypeRoomClosed))
}

func TestJoinRejectsUnprintableNicknames(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, _ := h.createRoom(t)

	for _, nickname := range []string{"bad\xffname", "tab\tname", "nul\x00", "bell\a"} {
		_, err := h.store.JoinRoom(ctx, code, nickname)
		assert.ErrorIs(t, err, models.ErrInvalidNickname, "%q", nickname)
	}

	_, err := h.store.JoinRoom(ctx, code, "Zoë 🎲")
	assert.NoError(t, err)
}

func customRoom(t *testing.T, h *storeHarness) (string, string) {
	t.Helper()
	code, hostID, err := h.store.CreateRoom(context.Background(), CreateRoomRequest{HostNickname: "Host"})
	require.NoError(t, err)
	return code, hostID
}

func TestRoomQuestionManagement(t *testing.T) {
	h := newStoreHarness(t)
	ctx := context.Background()
	code, hostID := customRoom(t, h)
	annID, err := h.store.JoinRoom(ctx, code, "Ann")
	require.NoError(t, err)

	require.NoError(t, h.store.AddRoomQuestion(ctx, code, hostID, testQuestion("a")))
	require.NoError(t, h.store.AddRoomQuestion(ctx, code, hostID, testQuestion("b")))

	_, err = h.store.ListRoomQuestions(ctx, code, annID)
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	questions, err := h.store.ListRoomQuestions(ctx, code, hostID)
	require.NoError(t, err)
	require.Len(t, questions, 2)
	assert.Equal(t, 0, questions[0].CorrectIndex, "the host sees the answers")

	questions[0].Text = "changed"
	again, err := h.store.ListRoomQuestions(ctx, code, hostID)
	require.NoError(t, err)
	assert.Equal(t, "question a", again[0].Text)

	updated := testQuestion("ignored")
	updated.Text = "rewritten"
	updated.CorrectIndex = 1
	require.NoError(t, h.store.UpdateRoomQuestion(ctx, code, hostID, "a", updated))
	assert.ErrorIs(t, h.store.UpdateRoomQuestion(ctx, code, hostID, "missing", updated), models.ErrInvalidConfig)
	assert.ErrorIs(t, h.store.UpdateRoomQuestion(ctx, code, annID, "a", updated), models.ErrUnauthorized)
	bad := testQuestion("a")
	bad.CorrectIndex = 9
	assert.ErrorIs(t, h.store.UpdateRoomQuestion(ctx, code, hostID, "a", bad), models.ErrInvalidConfig)

	require.NoError(t, h.store.DeleteRoomQuestion(ctx, code, hostID, "b"))
	assert.ErrorIs(t, h.store.DeleteRoomQuestion(ctx, code, hostID, "b"), models.ErrInvalidConfig)

	questions, err = h.store.ListRoomQuestions(ctx, code, hostID)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "a", questions[0].ID)
	assert.Equal(t, "rewritten", questions[0].Text)
	assert.Equal(t, 1, questions[0].CorrectIndex)

	_, err = h.store.StartGame(ctx, code, hostID)
	require.NoError(t, err)
	assert.ErrorIs(t, h.store.UpdateRoomQuestion(ctx, code, hostID, "a", updated), models.ErrAlreadyStarted)
	assert.ErrorIs(t, h.store.DeleteRoomQuestion(ctx, code, hostID, "a"), models.ErrAlreadyStarted)

	// the host can still review the list once the game is running
	questions, err = h.store.ListRoomQuestions(ctx, code, hostID)
	require.NoError(t, err)
	assert.Len(t, questions, 1)
}

func TestCopyCategoryToRoom(t *testing.T) {
	h := newStoreHarness(t)
	h.provider.questions = []models.Question{testQuestion("c1"), testQuestion("c2"), testQuestion("c3")}
	ctx := context.Background()
	code, hostID := h.createRoom(t)

	_, err := h.store.CopyCategoryToRoom(ctx, code, "someone-else", "general", 0)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = h.store.CopyCategoryToRoom(ctx, code, hostID, "", 0)
	assert.ErrorIs(t, err, models.ErrInvalidConfig)

	// a category room becomes a custom room
	n, err := h.store.CopyCategoryToRoom(ctx, code, hostID, "general", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 2, h.provider.lastLimit)

	room, err := h.store.GetRoom(ctx, code)
	require.NoError(t, err)
	assert.True(t, room.Config.Source.IsCustom())

	questions, err := h.store.ListRoomQuestions(ctx, code, hostID)
	require.NoError(t, err)
	require.Len(t, questions, 3)
	assert.NotEqual(t, "c1", questions[0].ID, "copies get their own ids")
	assert.Equal(t, "general", questions[0].CategoryID)

	// copies can be edited and extended like any custom question
	require.NoError(t, h.store.DeleteRoomQuestion(ctx, code, hostID, questions[1].ID))
	require.NoError(t, h.store.AddRoomQuestion(ctx, code, hostID, testQuestion("own")))
	n, err = h.store.CopyCategoryToRoom(ctx, code, hostID, "general", 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	questions, err = h.store.ListRoomQuestions(ctx, code, hostID)
	require.NoError(t, err)
	assert.Len(t, questions, 6)

	h.provider.err = errors.New("content store down")
	_, err = h.store.CopyCategoryToRoom(ctx, code, hostID, "general", 0)
	assert.Error(t, err)
	questions, err = h.store.ListRoomQuestions(ctx, code, hostID)
	require.NoError(t, err)
	assert.Len(t, questions, 6, "a failed copy changes nothing")
}
