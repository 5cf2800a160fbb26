package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/trivia/go/internal/game/events"
	"github.com/mcdev12/trivia/go/internal/game/session"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/rs/zerolog/log"
)

// QuestionProvider resolves a question source into an ordered question set.
// It is called once per game, at start.
type QuestionProvider interface {
	FetchQuestions(ctx context.Context, source models.QuestionSource) ([]models.Question, error)
}

// Emitter is the broadcaster surface used by the store and its sessions.
type Emitter interface {
	session.Emitter
	Forget(code string)
}

// Options holds room limits and game pacing.
type Options struct {
	CodeLength          int
	MinTimerSeconds     int
	MaxTimerSeconds     int
	DefaultTimerSeconds int
	MaxNicknameLength   int
	DefaultMaxPlayers   int
	MaxPlayersLimit     int
	GracePeriod         time.Duration
	LobbyTimeout        time.Duration
	Rules               session.Rules
}

func DefaultOptions() Options {
	return Options{
		CodeLength:          6,
		MinTimerSeconds:     5,
		MaxTimerSeconds:     60,
		DefaultTimerSeconds: 15,
		MaxNicknameLength:   20,
		DefaultMaxPlayers:   16,
		MaxPlayersLimit:     100,
		GracePeriod:         60 * time.Second,
		LobbyTimeout:        30 * time.Minute,
		Rules:               session.DefaultRules(),
	}
}

// CreateRoomRequest carries the host's choices for a new room.
// Zero TimerSeconds and MaxPlayers select the defaults.
type CreateRoomRequest struct {
	HostNickname string                `json:"host_nickname"`
	TimerSeconds int                   `json:"timer_seconds"`
	MaxPlayers   int                   `json:"max_players"`
	Source       models.QuestionSource `json:"source"`
}

type entry struct {
	// presence orders connectivity changes so the room and its session
	// apply them in the same sequence. It is taken before mu.
	presence sync.Mutex

	mu       sync.Mutex
	room     models.Room
	session  *session.Session
	starting bool
	removed  bool
	retire   chan struct{}
	expire   chan struct{}
}

// Store is the authoritative registry of active rooms. The map lock only
// guards lookups; each room serializes its own mutations. When both are
// needed the room lock is taken before the session lock, and session
// mutators are never called with the room lock held.
type Store struct {
	mu     sync.RWMutex
	rooms  map[string]*entry
	closed bool

	provider QuestionProvider
	emitter  Emitter
	clock    session.Clock
	opts     Options
}

func NewStore(provider QuestionProvider, emitter Emitter, clock session.Clock, opts Options) *Store {
	return &Store{
		rooms:    make(map[string]*entry),
		provider: provider,
		emitter:  emitter,
		clock:    clock,
		opts:     opts,
	}
}

func (s *Store) Options() Options {
	return s.opts
}

// CreateRoom registers a room in LOBBY with the host as its first player.
func (s *Store) CreateRoom(ctx context.Context, req CreateRoomRequest) (string, string, error) {
	timer := req.TimerSeconds
	if timer == 0 {
		timer = s.opts.DefaultTimerSeconds
	}
	if timer < s.opts.MinTimerSeconds || timer > s.opts.MaxTimerSeconds {
		return "", "", models.NewError(models.KindInvalidConfig,
			"timer must be between %d and %d seconds", s.opts.MinTimerSeconds, s.opts.MaxTimerSeconds)
	}
	maxPlayers := req.MaxPlayers
	if maxPlayers == 0 {
		maxPlayers = s.opts.DefaultMaxPlayers
	}
	if maxPlayers < 2 || maxPlayers > s.opts.MaxPlayersLimit {
		return "", "", models.NewError(models.KindInvalidConfig,
			"max players must be between 2 and %d", s.opts.MaxPlayersLimit)
	}
	nickname, err := normalizeNickname(req.HostNickname, s.opts.MaxNicknameLength)
	if err != nil {
		return "", "", models.NewError(models.KindInvalidConfig, "invalid host nickname: %v", err)
	}
	if err := req.Source.Validate(); err != nil {
		return "", "", err
	}

	now := s.clock.Now()
	host := models.Player{
		ID:       uuid.New().String(),
		Nickname: nickname,
		Role:     models.PlayerRoleHost,
		Status:   models.PlayerStatusConnected,
		JoinedAt: now,
		LastSeen: now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", "", models.NewError(models.KindRoomClosed, "store is shutting down")
	}

	var code string
	for {
		code, err = generateCode(s.opts.CodeLength)
		if err != nil {
			return "", "", err
		}
		if _, taken := s.rooms[code]; !taken {
			break
		}
	}

	e := &entry{room: models.Room{
		Code:    code,
		HostID:  host.ID,
		Players: []models.Player{host},
		Config: models.RoomConfig{
			TimerSeconds: timer,
			MaxPlayers:   maxPlayers,
			Source:       req.Source.Clone(),
		},
		State:     models.RoomStateLobby,
		CreatedAt: now,
	}}
	s.rooms[code] = e
	s.scheduleLobbyExpiry(e)

	log.Info().
		Str("room_code", code).
		Str("host_id", host.ID).
		Int("timer_seconds", timer).
		Msg("room created")

	return code, host.ID, nil
}

// JoinRoom appends a player in join order. Late joins are rejected.
func (s *Store) JoinRoom(ctx context.Context, code, nickname string) (string, error) {
	e, err := s.entry(code)
	if err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.removed {
		return "", models.NewError(models.KindRoomNotFound, "room %s not found", code)
	}
	if e.room.State != models.RoomStateLobby || e.starting {
		return "", models.NewError(models.KindRoomClosed, "room %s is no longer accepting players", e.room.Code)
	}
	name, err := normalizeNickname(nickname, s.opts.MaxNicknameLength)
	if err != nil {
		return "", err
	}
	if e.room.NicknameTaken(name) {
		return "", models.NewError(models.KindDuplicateNickname, "nickname %q is taken", name)
	}
	if e.room.ConnectedCount() >= e.room.Config.MaxPlayers {
		return "", models.NewError(models.KindRoomFull, "room %s is full", e.room.Code)
	}

	now := s.clock.Now()
	p := models.Player{
		ID:       uuid.New().String(),
		Nickname: name,
		Role:     models.PlayerRoleGuest,
		Status:   models.PlayerStatusConnected,
		JoinedAt: now,
		LastSeen: now,
	}
	e.room.Players = append(e.room.Players, p)

	s.emitter.EmitRoom(e.room.Code, events.EventTypePlayerJoined, events.PlayerJoinedPayload{
		Player:      playerInfo(p, len(e.room.Players)-1, 0),
		PlayerCount: e.room.ConnectedCount(),
	})

	log.Info().
		Str("room_code", e.room.Code).
		Str("player_id", p.ID).
		Str("nickname", name).
		Msg("player joined")

	return p.ID, nil
}

// LeaveRoom soft-leaves a player: the slot and score are kept so the same
// identity can reconnect. Host promotion only happens in LOBBY.
func (s *Store) LeaveRoom(ctx context.Context, code, playerID string) error {
	e, err := s.entry(code)
	if err != nil {
		return err
	}

	e.presence.Lock()
	defer e.presence.Unlock()
	e.mu.Lock()
	p := e.room.Player(playerID)
	if p == nil {
		e.mu.Unlock()
		return models.NewError(models.KindUnknownPlayer, "player %s is not in room %s", playerID, e.room.Code)
	}
	if !p.Connected() {
		e.mu.Unlock()
		return nil
	}

	now := s.clock.Now()
	p.Status = models.PlayerStatusDisconnected
	p.LastSeen = now
	s.emitter.EmitRoom(e.room.Code, events.EventTypePlayerLeft, events.PlayerLeftPayload{
		PlayerID: p.ID,
		Nickname: p.Nickname,
		LeftAt:   now,
	})

	log.Info().
		Str("room_code", e.room.Code).
		Str("player_id", playerID).
		Str("state", string(e.room.State)).
		Msg("player left")

	var sess *session.Session
	switch e.room.State {
	case models.RoomStateLobby:
		if e.room.HostID == playerID {
			s.promoteNextHost(e, "host_left")
		}
		if e.room.ConnectedCount() == 0 && !e.starting {
			s.closeLocked(e, "empty")
		}
	case models.RoomStateInProgress:
		sess = e.session
	}
	e.mu.Unlock()

	if sess != nil {
		if err := sess.SetConnected(playerID, false); err != nil {
			log.Warn().Err(err).Str("room_code", code).Str("player_id", playerID).Msg("failed to mark player disconnected in session")
		}
	}
	return nil
}

// ReconnectPlayer marks a known player CONNECTED again.
func (s *Store) ReconnectPlayer(ctx context.Context, code, playerID string) error {
	e, err := s.entry(code)
	if err != nil {
		return err
	}

	e.presence.Lock()
	defer e.presence.Unlock()
	e.mu.Lock()
	p := e.room.Player(playerID)
	if p == nil {
		e.mu.Unlock()
		return models.NewError(models.KindUnknownPlayer, "player %s is not in room %s", playerID, e.room.Code)
	}
	p.LastSeen = s.clock.Now()
	if p.Connected() {
		e.mu.Unlock()
		return nil
	}
	if e.room.State == models.RoomStateLobby && e.room.NicknameTaken(p.Nickname) {
		e.mu.Unlock()
		return models.NewError(models.KindDuplicateNickname, "nickname %q was taken while you were away", p.Nickname)
	}
	p.Status = models.PlayerStatusConnected
	s.emitter.EmitRoom(e.room.Code, events.EventTypePlayerReconnected, events.PlayerReconnectedPayload{
		PlayerID: p.ID,
		Nickname: p.Nickname,
	})
	var sess *session.Session
	if e.room.State == models.RoomStateInProgress {
		sess = e.session
	}
	e.mu.Unlock()

	log.Info().Str("room_code", code).Str("player_id", playerID).Msg("player reconnected")

	if sess != nil {
		return sess.SetConnected(playerID, true)
	}
	return nil
}

// StartGame snapshots the question source and begins the first question.
// The question fetch happens outside the room lock; the room is re-checked
// afterwards.
func (s *Store) StartGame(ctx context.Context, code, hostID string) (*session.Session, error) {
	e, err := s.entry(code)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if err := s.checkStartable(e, hostID); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	e.starting = true
	source := e.room.Config.Source.Clone()
	e.mu.Unlock()

	questions, fetchErr := s.provider.FetchQuestions(ctx, source)

	e.mu.Lock()
	e.starting = false
	if fetchErr != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("failed to fetch questions: %w", fetchErr)
	}
	if err := s.checkStartable(e, hostID); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if len(questions) == 0 {
		e.mu.Unlock()
		return nil, models.NewError(models.KindInvalidConfig, "question source has no questions")
	}

	rules := s.opts.Rules
	rules.DefaultTimer = time.Duration(e.room.Config.TimerSeconds) * time.Second
	participants := make([]session.Participant, len(e.room.Players))
	for i, p := range e.room.Players {
		participants[i] = session.Participant{
			ID:        p.ID,
			Nickname:  p.Nickname,
			Role:      p.Role,
			Connected: p.Connected(),
		}
	}
	roomCode := e.room.Code
	sess, err := session.New(session.Config{
		RoomCode:     roomCode,
		Questions:    questions,
		Participants: participants,
		Rules:        rules,
		Clock:        s.clock,
		Emitter:      s.emitter,
		OnEnd:        func(summary events.GameOverPayload) { s.handleGameEnd(e, summary) },
	})
	if err != nil {
		e.mu.Unlock()
		return nil, err
	}

	now := s.clock.Now()
	e.room.State = models.RoomStateInProgress
	e.room.StartedAt = &now
	e.session = sess
	stopLobbyExpiry(e)
	e.mu.Unlock()

	log.Info().
		Str("room_code", roomCode).
		Int("questions", len(questions)).
		Int("players", len(participants)).
		Msg("starting game")

	if err := sess.Start(); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *Store) checkStartable(e *entry, hostID string) error {
	if e.removed {
		return models.NewError(models.KindRoomNotFound, "room %s not found", e.room.Code)
	}
	if e.room.HostID != hostID {
		return models.NewError(models.KindUnauthorized, "only the host can start the game")
	}
	if e.room.State != models.RoomStateLobby || e.starting {
		return models.NewError(models.KindAlreadyStarted, "room %s has already started", e.room.Code)
	}
	if e.room.ConnectedGuests() == 0 {
		return models.NewError(models.KindEmptyRoom, "no players have joined")
	}
	return nil
}

// SubmitAnswer routes an answer to the room's session. A member answering
// before the game starts gets the same AnswerRejected reply the session
// sends for its own rejections.
func (s *Store) SubmitAnswer(ctx context.Context, code, playerID string, answerIndex int, at time.Time) error {
	e, err := s.entry(code)
	if err != nil {
		return err
	}
	e.mu.Lock()
	sess := e.session
	if sess == nil {
		err := models.NewError(models.KindWrongState, "game has not started")
		if e.room.Player(playerID) != nil {
			s.emitter.EmitPlayer(e.room.Code, playerID, events.EventTypeAnswerRejected, events.AnswerRejectedPayload{
				Kind:    string(err.Kind),
				Message: err.Message,
			})
		}
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()
	return sess.SubmitAnswer(playerID, answerIndex, at)
}

// NextQuestion is the host's force-advance.
func (s *Store) NextQuestion(ctx context.Context, code, hostID string) error {
	sess, err := s.hostSession(code, hostID)
	if err != nil {
		return err
	}
	return sess.Next()
}

// AbortGame ends a running game, or closes a room still in LOBBY.
func (s *Store) AbortGame(ctx context.Context, code, hostID string) error {
	e, err := s.entry(code)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.room.HostID != hostID {
		e.mu.Unlock()
		return models.NewError(models.KindUnauthorized, "only the host can abort the game")
	}
	switch e.room.State {
	case models.RoomStateLobby:
		if e.starting {
			e.mu.Unlock()
			return models.NewError(models.KindWrongState, "game is starting")
		}
		s.closeLocked(e, "aborted")
		e.mu.Unlock()
		return nil
	case models.RoomStateEnded:
		e.mu.Unlock()
		return models.NewError(models.KindWrongState, "room %s has ended", e.room.Code)
	}
	sess := e.session
	e.mu.Unlock()

	log.Info().Str("room_code", code).Str("host_id", hostID).Msg("host aborted game")
	return sess.Abort()
}

// TransferHost hands the host role to another connected player.
func (s *Store) TransferHost(ctx context.Context, code, hostID, newHostID string) error {
	e, err := s.entry(code)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.room.HostID != hostID {
		return models.NewError(models.KindUnauthorized, "only the host can transfer the host role")
	}
	if e.room.State == models.RoomStateEnded {
		return models.NewError(models.KindRoomClosed, "room %s has ended", e.room.Code)
	}
	target := e.room.Player(newHostID)
	if target == nil {
		return models.NewError(models.KindUnknownPlayer, "player %s is not in room %s", newHostID, e.room.Code)
	}
	if !target.Connected() {
		return models.NewError(models.KindWrongState, "player %s is not connected", newHostID)
	}
	if newHostID == hostID {
		return nil
	}
	s.setHost(e, target, "transferred")
	return nil
}

// AddRoomQuestion appends a question to a room's custom list while in LOBBY.
func (s *Store) AddRoomQuestion(ctx context.Context, code, hostID string, q models.Question) error {
	e, err := s.entry(code)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := checkQuestionEditor(e, hostID); err != nil {
		return err
	}
	if !e.room.Config.Source.IsCustom() {
		return models.NewError(models.KindInvalidConfig, "room plays category %s", e.room.Config.Source.CategoryID)
	}
	if err := q.Validate(); err != nil {
		return err
	}
	if q.ID == "" {
		q.ID = uuid.New().String()
	}
	e.room.Config.Source.Questions = append(e.room.Config.Source.Questions, q.Clone())
	return nil
}

// ListRoomQuestions returns the room's custom questions, correct answers
// included. Only the host may see them.
func (s *Store) ListRoomQuestions(ctx context.Context, code, hostID string) ([]models.Question, error) {
	e, err := s.entry(code)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.room.HostID != hostID {
		return nil, models.NewError(models.KindUnauthorized, "only the host can view the room's questions")
	}
	return e.room.Config.Source.Clone().Questions, nil
}

// UpdateRoomQuestion replaces one custom question, keeping its id.
func (s *Store) UpdateRoomQuestion(ctx context.Context, code, hostID, questionID string, q models.Question) error {
	e, err := s.entry(code)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := checkQuestionEditor(e, hostID); err != nil {
		return err
	}
	i := e.room.Config.Source.QuestionIndex(questionID)
	if i < 0 {
		return models.NewError(models.KindInvalidConfig, "question %s is not in room %s", questionID, e.room.Code)
	}
	if err := q.Validate(); err != nil {
		return err
	}
	q.ID = questionID
	e.room.Config.Source.Questions[i] = q.Clone()
	return nil
}

// DeleteRoomQuestion removes one custom question.
func (s *Store) DeleteRoomQuestion(ctx context.Context, code, hostID, questionID string) error {
	e, err := s.entry(code)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := checkQuestionEditor(e, hostID); err != nil {
		return err
	}
	i := e.room.Config.Source.QuestionIndex(questionID)
	if i < 0 {
		return models.NewError(models.KindInvalidConfig, "question %s is not in room %s", questionID, e.room.Code)
	}
	qs := e.room.Config.Source.Questions
	e.room.Config.Source.Questions = append(qs[:i:i], qs[i+1:]...)
	return nil
}

// CopyCategoryToRoom appends up to limit questions of a category to the
// room's custom list. A room that was playing a category switches to a
// custom list. The fetch happens outside the room lock.
func (s *Store) CopyCategoryToRoom(ctx context.Context, code, hostID, categoryID string, limit int) (int, error) {
	e, err := s.entry(code)
	if err != nil {
		return 0, err
	}
	if categoryID == "" {
		return 0, models.NewError(models.KindInvalidConfig, "category id is required")
	}

	e.mu.Lock()
	err = checkQuestionEditor(e, hostID)
	e.mu.Unlock()
	if err != nil {
		return 0, err
	}

	questions, err := s.provider.FetchQuestions(ctx, models.QuestionSource{CategoryID: categoryID, Limit: limit})
	if err != nil {
		return 0, fmt.Errorf("failed to fetch questions: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := checkQuestionEditor(e, hostID); err != nil {
		return 0, err
	}

	src := &e.room.Config.Source
	if !src.IsCustom() {
		*src = models.QuestionSource{}
	}
	for _, q := range questions {
		q = q.Clone()
		q.ID = uuid.New().String()
		q.CategoryID = categoryID
		src.Questions = append(src.Questions, q)
	}

	log.Info().
		Str("room_code", e.room.Code).
		Str("category_id", categoryID).
		Int("copied", len(questions)).
		Msg("category copied into room")
	return len(questions), nil
}

// checkQuestionEditor allows only the host to edit questions, and only
// before the game starts. Caller holds e.mu.
func checkQuestionEditor(e *entry, hostID string) error {
	if e.removed {
		return models.NewError(models.KindRoomNotFound, "room %s not found", e.room.Code)
	}
	if e.room.HostID != hostID {
		return models.NewError(models.KindUnauthorized, "only the host can manage questions")
	}
	if e.room.State != models.RoomStateLobby || e.starting {
		return models.NewError(models.KindAlreadyStarted, "questions are fixed once the game starts")
	}
	return nil
}

// GetRoom returns a copy of the room.
func (s *Store) GetRoom(ctx context.Context, code string) (models.Room, error) {
	e, err := s.entry(code)
	if err != nil {
		return models.Room{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.room.Clone(), nil
}

// Snapshot returns the full state used to resynchronize playerID. An empty
// playerID yields a snapshot without an own-answer section.
func (s *Store) Snapshot(ctx context.Context, code, playerID string) (events.SnapshotPayload, error) {
	e, err := s.entry(code)
	if err != nil {
		return events.SnapshotPayload{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if playerID != "" && e.room.Player(playerID) == nil {
		return events.SnapshotPayload{}, models.NewError(models.KindUnknownPlayer, "player %s is not in room %s", playerID, e.room.Code)
	}

	snap := events.SnapshotPayload{
		RoomCode:     e.room.Code,
		RoomState:    string(e.room.State),
		HostID:       e.room.HostID,
		TimerSeconds: e.room.Config.TimerSeconds,
	}

	var scores map[string]int
	if e.session != nil {
		game, seq := e.session.Snapshot(playerID)
		snap.Game = &game
		snap.Seq = seq
		scores = e.session.Scores()
	} else {
		snap.Seq = s.emitter.Seq(e.room.Code)
	}
	for i, p := range e.room.Players {
		snap.Players = append(snap.Players, playerInfo(p, i, scores[p.ID]))
	}
	return snap, nil
}

// Leaderboard returns the standings of a started game.
func (s *Store) Leaderboard(ctx context.Context, code string) ([]events.LeaderboardEntry, error) {
	e, err := s.entry(code)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	sess := e.session
	e.mu.Unlock()
	if sess == nil {
		return nil, models.NewError(models.KindWrongState, "game has not started")
	}
	return sess.Leaderboard(), nil
}

// Count returns the number of registered rooms.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// Close aborts running games and removes every room.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	entries := make([]*entry, 0, len(s.rooms))
	for _, e := range s.rooms {
		entries = append(entries, e)
	}
	s.mu.Unlock()

	var sessions []*session.Session
	for _, e := range entries {
		e.mu.Lock()
		if e.room.State == models.RoomStateInProgress && e.session != nil {
			sessions = append(sessions, e.session)
		}
		e.mu.Unlock()
	}
	for _, sess := range sessions {
		_ = sess.Abort()
	}

	s.mu.Lock()
	for code, e := range s.rooms {
		e.mu.Lock()
		e.removed = true
		if e.retire != nil {
			close(e.retire)
			e.retire = nil
		}
		stopLobbyExpiry(e)
		e.mu.Unlock()
		delete(s.rooms, code)
		s.emitter.Forget(code)
	}
	s.mu.Unlock()

	log.Info().Int("rooms", len(entries)).Msg("room store closed")
}

func (s *Store) entry(code string) (*entry, error) {
	code = NormalizeCode(code)
	if err := ValidateCode(code, s.opts.CodeLength); err != nil {
		return nil, err
	}
	s.mu.RLock()
	e, ok := s.rooms[code]
	s.mu.RUnlock()
	if !ok {
		return nil, models.NewError(models.KindRoomNotFound, "room %s not found", code)
	}
	return e, nil
}

func (s *Store) hostSession(code, hostID string) (*session.Session, error) {
	e, err := s.entry(code)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.room.HostID != hostID {
		return nil, models.NewError(models.KindUnauthorized, "only the host can do that")
	}
	if e.session == nil {
		return nil, models.NewError(models.KindWrongState, "game has not started")
	}
	return e.session, nil
}

// promoteNextHost gives the host role to the earliest-joined connected
// player. Caller holds e.mu.
func (s *Store) promoteNextHost(e *entry, reason string) {
	for i := range e.room.Players {
		p := &e.room.Players[i]
		if p.ID != e.room.HostID && p.Connected() {
			s.setHost(e, p, reason)
			return
		}
	}
}

func (s *Store) setHost(e *entry, target *models.Player, reason string) {
	previous := e.room.HostID
	if old := e.room.Player(previous); old != nil {
		old.Role = models.PlayerRoleGuest
	}
	target.Role = models.PlayerRoleHost
	e.room.HostID = target.ID

	s.emitter.EmitRoom(e.room.Code, events.EventTypeHostChanged, events.HostChangedPayload{
		PreviousHostID: previous,
		NewHostID:      target.ID,
		Reason:         reason,
	})

	log.Info().
		Str("room_code", e.room.Code).
		Str("previous_host_id", previous).
		Str("new_host_id", target.ID).
		Str("reason", reason).
		Msg("host changed")
}

// closeLocked ends a room that never started a game. Caller holds e.mu.
func (s *Store) closeLocked(e *entry, reason string) {
	if e.room.State == models.RoomStateEnded {
		return
	}
	now := s.clock.Now()
	e.room.State = models.RoomStateEnded
	e.room.EndedAt = &now
	s.emitter.EmitRoom(e.room.Code, events.EventTypeRoomClosed, events.RoomClosedPayload{
		Reason:   reason,
		ClosedAt: now,
	})
	log.Info().Str("room_code", e.room.Code).Str("reason", reason).Msg("room closed")
	stopLobbyExpiry(e)
	s.scheduleRetire(e)
}

// scheduleLobbyExpiry closes the room if no game has started within
// LobbyTimeout. A zero timeout disables it. Caller holds e.mu or owns e.
func (s *Store) scheduleLobbyExpiry(e *entry) {
	if s.opts.LobbyTimeout <= 0 {
		return
	}
	cancel := make(chan struct{})
	e.expire = cancel
	t := s.clock.NewTimer(s.opts.LobbyTimeout)

	go func() {
		select {
		case <-t.Chan():
		case <-cancel:
			t.Stop()
			return
		}

		e.mu.Lock()
		defer e.mu.Unlock()
		if e.expire != cancel {
			return
		}
		e.expire = nil
		if e.removed || e.room.State != models.RoomStateLobby {
			return
		}
		if e.starting {
			s.scheduleLobbyExpiry(e)
			return
		}
		log.Info().
			Str("room_code", e.room.Code).
			Dur("lobby_timeout", s.opts.LobbyTimeout).
			Msg("lobby idle too long")
		s.closeLocked(e, "idle")
	}()
}

// stopLobbyExpiry cancels a pending lobby expiry. Caller holds e.mu.
func stopLobbyExpiry(e *entry) {
	if e.expire != nil {
		close(e.expire)
		e.expire = nil
	}
}

// handleGameEnd runs after the session has emitted GameOver and released
// its lock.
func (s *Store) handleGameEnd(e *entry, summary events.GameOverPayload) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.removed || e.room.State == models.RoomStateEnded {
		return
	}

	e.room.State = models.RoomStateEnded
	ended := summary.EndedAt
	e.room.EndedAt = &ended
	if summary.Reason == events.GameOverFault {
		s.emitter.EmitRoom(e.room.Code, events.EventTypeRoomClosed, events.RoomClosedPayload{
			Reason:   string(events.GameOverFault),
			ClosedAt: ended,
		})
	}

	log.Info().
		Str("room_code", e.room.Code).
		Str("reason", string(summary.Reason)).
		Dur("grace_period", s.opts.GracePeriod).
		Msg("game ended, room will be retired")

	s.scheduleRetire(e)
}

// scheduleRetire removes the room after the grace period so late result
// fetches still succeed. Caller holds e.mu.
func (s *Store) scheduleRetire(e *entry) {
	if e.retire != nil {
		return
	}
	cancel := make(chan struct{})
	e.retire = cancel
	t := s.clock.NewTimer(s.opts.GracePeriod)
	code := e.room.Code

	go func() {
		select {
		case <-t.Chan():
		case <-cancel:
			t.Stop()
			return
		}
		s.retire(code, e)
	}()
}

func (s *Store) retire(code string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rooms[code] != e {
		return
	}

	e.mu.Lock()
	e.removed = true
	e.retire = nil
	e.mu.Unlock()

	delete(s.rooms, code)
	s.emitter.Forget(code)
	log.Info().Str("room_code", code).Msg("room retired")
}

func playerInfo(p models.Player, order, score int) events.PlayerInfo {
	return events.PlayerInfo{
		ID:        p.ID,
		Nickname:  p.Nickname,
		Role:      string(p.Role),
		Status:    string(p.Status),
		Score:     score,
		JoinOrder: order,
	}
}
