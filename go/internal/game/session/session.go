package session

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/trivia/go/internal/game/events"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Phase is the state of a game session.
type Phase string

const (
	PhaseAwaitingStart   Phase = "AWAITING_START"
	PhaseQuestionActive  Phase = "QUESTION_ACTIVE"
	PhaseQuestionResults Phase = "QUESTION_RESULTS"
	PhaseGameOver        Phase = "GAME_OVER"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// Emitter is what the session needs from the broadcaster.
type Emitter interface {
	EmitRoom(code string, eventType events.EventType, payload any) uint64
	EmitPlayer(code, playerID string, eventType events.EventType, payload any)
	Seq(code string) uint64
}

// Participant is a room member at the moment the game starts.
type Participant struct {
	ID        string
	Nickname  string
	Role      models.PlayerRole
	Connected bool
}

// Config holds everything needed to construct a session.
type Config struct {
	RoomCode     string
	Questions    []models.Question
	Participants []Participant
	Rules        Rules
	Clock        Clock
	Emitter      Emitter
	// OnEnd is called once, without the session lock held, after the
	// GameOver event has been emitted.
	OnEnd func(summary events.GameOverPayload)
}

type playerState struct {
	id         string
	nickname   string
	role       models.PlayerRole
	order      int
	connected  bool
	score      int
	streak     int
	reachedSeq uint64
}

type answer struct {
	index int
	at    time.Time
}

// Session is the authoritative state machine for one room's game. All
// mutations are serialized by mu; timers re-enter through the same lock and
// are ignored once their generation is stale.
type Session struct {
	mu      sync.Mutex
	writing atomic.Bool

	code    string
	rules   Rules
	clock   Clock
	emitter Emitter
	onEnd   func(events.GameOverPayload)

	questions []models.Question
	players   []*playerState
	byID      map[string]*playerState

	phase         Phase
	cursor        int
	questionStart time.Time
	deadline      time.Time
	duration      time.Duration
	answers       map[string]answer
	reached       uint64
	closed        int

	timer       clockwork.Timer
	timerCancel chan struct{}
	generation  uint64

	lastResults *events.QuestionResultsPayload
	summary     *events.GameOverPayload
	pendingEnd  *events.GameOverPayload
}

// New validates cfg and returns a session in AWAITING_START. Questions are
// deep-copied so later edits to the source do not affect the game.
func New(cfg Config) (*Session, error) {
	if len(cfg.Questions) == 0 {
		return nil, models.NewError(models.KindInvalidConfig, "question set is empty")
	}
	if len(cfg.Participants) == 0 {
		return nil, models.NewError(models.KindEmptyRoom, "no participants")
	}
	for _, q := range cfg.Questions {
		if err := q.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	s := &Session{
		code:      cfg.RoomCode,
		rules:     cfg.Rules,
		clock:     cfg.Clock,
		emitter:   cfg.Emitter,
		onEnd:     cfg.OnEnd,
		questions: make([]models.Question, len(cfg.Questions)),
		byID:      make(map[string]*playerState, len(cfg.Participants)),
		phase:     PhaseAwaitingStart,
		answers:   make(map[string]answer),
	}
	for i, q := range cfg.Questions {
		s.questions[i] = q.Clone()
	}
	for i, p := range cfg.Participants {
		ps := &playerState{
			id:        p.ID,
			nickname:  p.Nickname,
			role:      p.Role,
			order:     i,
			connected: p.Connected,
		}
		s.players = append(s.players, ps)
		s.byID[p.ID] = ps
	}
	return s, nil
}

// Start moves the session to the first question.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.unlock()
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	if s.phase != PhaseAwaitingStart {
		return models.NewError(models.KindAlreadyStarted, "session already started")
	}

	now := s.clock.Now()
	s.emitter.EmitRoom(s.code, events.EventTypeGameStarted, events.GameStartedPayload{
		StartedAt:      now,
		TotalQuestions: len(s.questions),
		Players:        s.playerInfos(),
	})

	log.Info().
		Str("room_code", s.code).
		Int("questions", len(s.questions)).
		Int("players", len(s.players)).
		Msg("game session started")

	s.beginQuestion(0)
	return nil
}

// SubmitAnswer records a player's answer for the active question. The
// first submission wins. A timestamp at or after the deadline is stale even
// if the deadline timer has not fired yet.
func (s *Session) SubmitAnswer(playerID string, answerIndex int, at time.Time) error {
	s.mu.Lock()
	defer s.unlock()
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	err := s.submit(playerID, answerIndex, at)
	if err != nil {
		// Contract violations go back to the sender only.
		if _, known := s.byID[playerID]; known {
			s.emitter.EmitPlayer(s.code, playerID, events.EventTypeAnswerRejected, events.AnswerRejectedPayload{
				QuestionIndex: s.cursor,
				Kind:          string(models.KindOf(err)),
				Message:       err.Error(),
			})
		}
		return err
	}
	return nil
}

func (s *Session) submit(playerID string, answerIndex int, at time.Time) error {
	if s.phase != PhaseQuestionActive {
		return models.NewError(models.KindWrongState, "no active question (phase %s)", s.phase)
	}
	p, ok := s.byID[playerID]
	if !ok {
		return models.NewError(models.KindUnknownPlayer, "player %s is not in this game", playerID)
	}
	if _, dup := s.answers[playerID]; dup {
		return models.NewError(models.KindDuplicateAnswer, "already answered question %d", s.cursor)
	}
	if !at.Before(s.deadline) {
		return models.NewError(models.KindStaleSubmission, "answer received after the deadline")
	}
	q := s.questions[s.cursor]
	if answerIndex < 0 || answerIndex >= len(q.Options) {
		return models.NewError(models.KindInvalidConfig, "answer index %d out of range", answerIndex)
	}
	if at.Before(s.questionStart) {
		at = s.questionStart
	}

	s.answers[playerID] = answer{index: answerIndex, at: at}

	s.emitter.EmitPlayer(s.code, playerID, events.EventTypeAnswerAccepted, events.AnswerAcceptedPayload{
		QuestionIndex: s.cursor,
		AnswerIndex:   answerIndex,
		ReceivedAt:    at,
	})
	s.emitter.EmitRoom(s.code, events.EventTypeAnswerReceived, events.AnswerReceivedPayload{
		QuestionIndex:  s.cursor,
		PlayerID:       p.id,
		AnsweredCount:  len(s.answers),
		ConnectedCount: s.connectedCount(),
	})

	if s.allAnswered() {
		s.closeQuestion(events.ResultsReasonAllAnswered)
	}
	return nil
}

// Next is the host's force-advance. During a question it closes the
// question early; during results it moves on without waiting.
func (s *Session) Next() error {
	s.mu.Lock()
	defer s.unlock()
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	switch s.phase {
	case PhaseQuestionActive:
		s.closeQuestion(events.ResultsReasonHostSkip)
	case PhaseQuestionResults:
		s.advance()
	default:
		return models.NewError(models.KindWrongState, "cannot advance in phase %s", s.phase)
	}
	return nil
}

// Abort ends the session immediately. Pending timers are cancelled and
// later submissions are rejected.
func (s *Session) Abort() error {
	s.mu.Lock()
	defer s.unlock()
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	if s.phase == PhaseGameOver {
		return models.NewError(models.KindWrongState, "game already over")
	}
	s.endGame(events.GameOverAborted)
	return nil
}

// SetConnected records a connectivity change. A disconnect can complete
// the all-answered condition for the active question.
func (s *Session) SetConnected(playerID string, connected bool) error {
	s.mu.Lock()
	defer s.unlock()
	if err := s.enter(); err != nil {
		return err
	}
	defer s.leave()

	p, ok := s.byID[playerID]
	if !ok {
		return models.NewError(models.KindUnknownPlayer, "player %s is not in this game", playerID)
	}
	p.connected = connected

	if !connected && s.phase == PhaseQuestionActive && s.allAnswered() {
		s.closeQuestion(events.ResultsReasonAllAnswered)
	}
	return nil
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Leaderboard returns the current standings.
func (s *Session) Leaderboard() []events.LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaderboard()
}

// Scores returns each player's running score keyed by id.
func (s *Session) Scores() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.players))
	for _, p := range s.players {
		out[p.id] = p.score
	}
	return out
}

// Snapshot describes the session for playerID along with the room sequence
// number it reflects. playerID may be empty.
func (s *Session) Snapshot(playerID string) (events.GameSnapshot, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := events.GameSnapshot{
		Phase:          string(s.phase),
		QuestionIndex:  s.cursor,
		TotalQuestions: len(s.questions),
		AnsweredCount:  len(s.answers),
		LastResults:    s.lastResults,
		Leaderboard:    s.leaderboard(),
		Summary:        s.summary,
	}
	if s.phase == PhaseQuestionActive {
		q := s.questionPayload()
		deadline := s.deadline
		snap.Question = &q
		snap.DeadlineAt = &deadline
		if a, ok := s.answers[playerID]; ok {
			snap.OwnAnswer = &events.OwnAnswer{AnswerIndex: a.index, ReceivedAt: a.at}
		}
	}
	return snap, s.emitter.Seq(s.code)
}

// enter asserts a single active writer. Every exported mutator already
// holds mu, so this only trips if a mutation path skips the lock. The game
// is then ended as a fault.
func (s *Session) enter() error {
	if s.writing.CompareAndSwap(false, true) {
		return nil
	}
	log.Error().Str("room_code", s.code).Msg("concurrent session writer detected, ending game")
	if s.phase != PhaseGameOver {
		s.endGame(events.GameOverFault)
	}
	return models.NewError(models.KindWrongState, "session ended after an internal fault")
}

func (s *Session) leave() {
	s.writing.Store(false)
}

// unlock releases mu and then runs the end hook if the game just ended.
func (s *Session) unlock() {
	end := s.pendingEnd
	s.pendingEnd = nil
	s.mu.Unlock()

	if end != nil && s.onEnd != nil {
		s.onEnd(*end)
	}
}

func (s *Session) beginQuestion(index int) {
	q := s.questions[index]
	d := s.rules.DefaultTimer
	if q.TimerSeconds > 0 {
		d = time.Duration(q.TimerSeconds) * time.Second
	}

	now := s.clock.Now()
	s.cursor = index
	s.phase = PhaseQuestionActive
	s.questionStart = now
	s.duration = d
	s.deadline = now.Add(d)

	s.emitter.EmitRoom(s.code, events.EventTypeQuestionStarted, s.questionPayload())

	log.Debug().
		Str("room_code", s.code).
		Int("question_index", index).
		Time("deadline", s.deadline).
		Msg("question started")

	s.schedule(d, func() { s.closeQuestion(events.ResultsReasonDeadline) })
}

func (s *Session) questionPayload() events.QuestionStartedPayload {
	q := s.questions[s.cursor]
	opts := make([]events.OptionInfo, len(q.Options))
	for i, o := range q.Options {
		opts[i] = events.OptionInfo{Index: o.Index, Text: o.Text}
	}
	return events.QuestionStartedPayload{
		QuestionIndex:  s.cursor,
		TotalQuestions: len(s.questions),
		QuestionID:     q.ID,
		Text:           q.Text,
		Options:        opts,
		TimerSeconds:   int(s.duration / time.Second),
		StartedAt:      s.questionStart,
		DeadlineAt:     s.deadline,
	}
}

// closeQuestion scores the active question and enters QUESTION_RESULTS.
// Only the first caller for a question has any effect.
func (s *Session) closeQuestion(reason events.ResultsReason) {
	if s.phase != PhaseQuestionActive {
		return
	}
	s.cancelTimer()

	q := s.questions[s.cursor]

	// Award in receipt order so equal totals are ranked by who got there first.
	answered := make([]*playerState, 0, len(s.answers))
	for id := range s.answers {
		answered = append(answered, s.byID[id])
	}
	sort.Slice(answered, func(i, j int) bool {
		ai, aj := s.answers[answered[i].id], s.answers[answered[j].id]
		if !ai.at.Equal(aj.at) {
			return ai.at.Before(aj.at)
		}
		return answered[i].order < answered[j].order
	})

	awarded := make(map[string]int, len(answered))
	for _, p := range answered {
		a := s.answers[p.id]
		if a.index != q.CorrectIndex {
			p.streak = 0
			continue
		}
		p.streak++
		pts := Points(s.rules, s.deadline.Sub(a.at), s.duration, p.streak)
		p.score += pts
		s.reached++
		p.reachedSeq = s.reached
		awarded[p.id] = pts
	}

	results := make([]events.PlayerResult, 0, len(s.players))
	for _, p := range s.players {
		r := events.PlayerResult{PlayerID: p.id, Nickname: p.nickname, TotalScore: p.score}
		if a, ok := s.answers[p.id]; ok {
			idx := a.index
			r.Answered = true
			r.AnswerIndex = &idx
			r.Correct = idx == q.CorrectIndex
			r.PointsAwarded = awarded[p.id]
		} else {
			p.streak = 0
		}
		r.Streak = p.streak
		results = append(results, r)
	}

	s.phase = PhaseQuestionResults
	s.closed++
	payload := events.QuestionResultsPayload{
		QuestionIndex:  s.cursor,
		QuestionID:     q.ID,
		CorrectIndex:   q.CorrectIndex,
		Reason:         reason,
		Results:        results,
		Leaderboard:    s.leaderboard(),
		LastQuestion:   s.cursor == len(s.questions)-1,
		NextQuestionAt: s.clock.Now().Add(s.rules.ResultsInterval),
	}
	s.lastResults = &payload
	s.emitter.EmitRoom(s.code, events.EventTypeQuestionResults, payload)

	log.Info().
		Str("room_code", s.code).
		Int("question_index", s.cursor).
		Str("reason", string(reason)).
		Int("answers", len(s.answers)).
		Msg("question closed")

	s.schedule(s.rules.ResultsInterval, s.advance)
}

// advance clears the answer set and moves the cursor past the current
// question, ending the game when none remain.
func (s *Session) advance() {
	if s.phase != PhaseQuestionResults {
		return
	}
	s.cancelTimer()
	s.answers = make(map[string]answer)

	next := s.cursor + 1
	if next >= len(s.questions) {
		s.endGame(events.GameOverCompleted)
		return
	}
	s.beginQuestion(next)
}

func (s *Session) endGame(reason events.GameOverReason) {
	s.cancelTimer()

	s.phase = PhaseGameOver
	s.answers = make(map[string]answer)

	summary := events.GameOverPayload{
		Reason:          reason,
		EndedAt:         s.clock.Now(),
		QuestionsPlayed: s.closed,
		TotalQuestions:  len(s.questions),
		Leaderboard:     s.leaderboard(),
	}
	s.summary = &summary
	s.pendingEnd = &summary
	s.emitter.EmitRoom(s.code, events.EventTypeGameOver, summary)

	log.Info().
		Str("room_code", s.code).
		Str("reason", string(reason)).
		Int("questions_played", s.closed).
		Msg("game over")
}

func (s *Session) schedule(d time.Duration, fire func()) {
	s.cancelTimer()

	gen := s.generation
	t := s.clock.NewTimer(d)
	cancel := make(chan struct{})
	s.timer = t
	s.timerCancel = cancel

	go func() {
		select {
		case <-t.Chan():
		case <-cancel:
			return
		}

		s.mu.Lock()
		defer s.unlock()
		if s.generation != gen || s.phase == PhaseGameOver {
			return
		}
		if err := s.enter(); err != nil {
			return
		}
		defer s.leave()
		fire()
	}()
}

// cancelTimer stops the pending timer. Bumping the generation turns a
// timer that already fired but has not taken the lock into a no-op.
func (s *Session) cancelTimer() {
	s.generation++
	if s.timer == nil {
		return
	}
	s.timer.Stop()
	close(s.timerCancel)
	s.timer = nil
	s.timerCancel = nil
}

func (s *Session) connectedCount() int {
	n := 0
	for _, p := range s.players {
		if p.connected {
			n++
		}
	}
	return n
}

// allAnswered requires at least one connected player and an answer from
// every connected player.
func (s *Session) allAnswered() bool {
	connected := 0
	for _, p := range s.players {
		if !p.connected {
			continue
		}
		connected++
		if _, ok := s.answers[p.id]; !ok {
			return false
		}
	}
	return connected > 0
}

// leaderboard orders by score descending, then by who reached their score
// first, then by join order.
func (s *Session) leaderboard() []events.LeaderboardEntry {
	ordered := make([]*playerState, len(s.players))
	copy(ordered, s.players)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.reachedSeq != b.reachedSeq {
			return a.reachedSeq < b.reachedSeq
		}
		return a.order < b.order
	})

	out := make([]events.LeaderboardEntry, len(ordered))
	for i, p := range ordered {
		out[i] = events.LeaderboardEntry{
			Rank:      i + 1,
			PlayerID:  p.id,
			Nickname:  p.nickname,
			Score:     p.score,
			Connected: p.connected,
		}
	}
	return out
}

func (s *Session) playerInfos() []events.PlayerInfo {
	out := make([]events.PlayerInfo, len(s.players))
	for i, p := range s.players {
		status := models.PlayerStatusDisconnected
		if p.connected {
			status = models.PlayerStatusConnected
		}
		out[i] = events.PlayerInfo{
			ID:        p.id,
			Nickname:  p.nickname,
			Role:      string(p.role),
			Status:    string(status),
			Score:     p.score,
			JoinOrder: p.order,
		}
	}
	return out
}
