package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/trivia/go/internal/game/events"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/rs/zerolog/log"
)

// Handlers are invoked from the session's receive loop, never concurrently.
type Handlers struct {
	// OnView is called after the view changes.
	OnView func(View)
	// OnReply receives direct replies: answer acks and rejections, errors.
	OnReply func(*events.Envelope)
	// OnConnected is called once a subscription is open and a snapshot has
	// been requested.
	OnConnected func()
}

// Config holds client session settings.
type Config struct {
	Transport  Transport
	Clock      clockwork.Clock
	MinBackoff time.Duration
	MaxBackoff time.Duration
	Handlers   Handlers
}

func DefaultConfig(transport Transport) Config {
	return Config{
		Transport:  transport,
		Clock:      clockwork.NewRealClock(),
		MinBackoff: 500 * time.Millisecond,
		MaxBackoff: 15 * time.Second,
	}
}

// Stats counts how incoming room events were handled.
type Stats struct {
	Applied    int
	Duplicates int
	Gaps       int
	Snapshots  int
	Reconnects int
}

// Session keeps a player's view of a room consistent across reconnects.
// Room events are applied strictly in sequence; a gap is never filled by
// retransmission, only by a fresh snapshot.
type Session struct {
	cfg Config

	mu          sync.Mutex
	conn        Conn
	view        View
	lastSeq     uint64
	hasSnapshot bool
	awaiting    bool
	pending     []*events.Envelope
	left        bool
	stats       Stats
}

func NewSession(cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	return &Session{cfg: cfg}
}

// View returns a copy of the current view.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.clone()
}

// LastSeq is the sequence number of the last room event reflected in the view.
func (s *Session) LastSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeq
}

func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Run keeps a subscription open until ctx is done, the player leaves, or
// the server refuses the player permanently.
func (s *Session) Run(ctx context.Context) error {
	backoff := s.cfg.MinBackoff
	for attempt := 0; ; attempt++ {
		conn, err := s.cfg.Transport.Dial(ctx)
		if err == nil {
			if attempt > 0 {
				s.mu.Lock()
				s.stats.Reconnects++
				s.mu.Unlock()
			}
			backoff = s.cfg.MinBackoff
			err = s.serve(ctx, conn)
		}

		if ctx.Err() != nil {
			return nil
		}
		if s.hasLeft() {
			return nil
		}
		var dialErr *DialError
		if errors.As(err, &dialErr) && dialErr.Permanent() {
			return err
		}

		log.Warn().Err(err).Dur("backoff", backoff).Msg("room subscription lost, reconnecting")
		select {
		case <-ctx.Done():
			return nil
		case <-s.cfg.Clock.After(backoff):
		}
		backoff = min(backoff*2, s.cfg.MaxBackoff)
	}
}

func (s *Session) hasLeft() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.left
}

// serve subscribes on conn and then immediately asks for a snapshot.
func (s *Session) serve(ctx context.Context, conn Conn) error {
	s.attach(conn)
	defer s.detach(conn)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if s.cfg.Handlers.OnConnected != nil {
		s.cfg.Handlers.OnConnected()
	}

	for {
		env, err := conn.Receive()
		if err != nil {
			return fmt.Errorf("receive: %w", err)
		}
		s.handle(env)
	}
}

func (s *Session) attach(conn Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn = conn
	s.pending = nil
	s.requestSnapshotLocked()
}

func (s *Session) detach(conn Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	s.mu.Unlock()
	conn.Close()
}

// handle routes one envelope: snapshots reset the view, direct replies go
// to OnReply, room events pass through sequence reconciliation.
func (s *Session) handle(env *events.Envelope) {
	s.mu.Lock()
	var changed, reply bool
	switch {
	case env.Type == events.EventTypeSnapshot:
		changed = s.applySnapshotLocked(env)
	case env.Direct:
		reply = true
		changed = s.applyReplyLocked(env)
	default:
		changed = s.applyRoomEventLocked(env)
	}
	view := s.view.clone()
	s.mu.Unlock()

	if reply && s.cfg.Handlers.OnReply != nil {
		s.cfg.Handlers.OnReply(env)
	}
	if changed && s.cfg.Handlers.OnView != nil {
		s.cfg.Handlers.OnView(view)
	}
}

func (s *Session) applyRoomEventLocked(env *events.Envelope) bool {
	if s.awaiting || !s.hasSnapshot {
		s.pending = append(s.pending, env)
		return false
	}
	switch {
	case env.Seq <= s.lastSeq:
		s.stats.Duplicates++
		return false
	case env.Seq == s.lastSeq+1:
		s.applyLocked(env)
		return true
	default:
		log.Debug().
			Str("room_code", env.RoomCode).
			Uint64("last_seq", s.lastSeq).
			Uint64("seq", env.Seq).
			Msg("sequence gap, requesting snapshot")
		s.stats.Gaps++
		s.pending = append(s.pending, env)
		s.requestSnapshotLocked()
		return false
	}
}

func (s *Session) applyLocked(env *events.Envelope) {
	if err := s.view.apply(env); err != nil {
		log.Warn().Err(err).Str("event_type", string(env.Type)).Msg("failed to apply room event")
	}
	s.lastSeq = env.Seq
	s.stats.Applied++
}

// applySnapshotLocked resets the view and replays buffered events newer
// than the snapshot. A snapshot older than the view is ignored unless one
// was requested.
func (s *Session) applySnapshotLocked(env *events.Envelope) bool {
	var snap events.SnapshotPayload
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		log.Warn().Err(err).Msg("failed to decode snapshot")
		return false
	}
	if !s.awaiting && s.hasSnapshot && snap.Seq <= s.lastSeq {
		return false
	}

	s.view = viewFromSnapshot(snap)
	s.lastSeq = snap.Seq
	s.hasSnapshot = true
	s.awaiting = false
	s.stats.Snapshots++

	pending := s.pending
	s.pending = nil
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Seq < pending[j].Seq })
	for i, buffered := range pending {
		switch {
		case buffered.Seq <= s.lastSeq:
			continue
		case buffered.Seq == s.lastSeq+1:
			s.applyLocked(buffered)
		default:
			s.stats.Gaps++
			s.pending = append(s.pending, pending[i:]...)
			s.requestSnapshotLocked()
			return true
		}
	}
	return true
}

// applyReplyLocked records our own accepted answer in the view.
func (s *Session) applyReplyLocked(env *events.Envelope) bool {
	if env.Type != events.EventTypeAnswerAccepted {
		return false
	}
	var p events.AnswerAcceptedPayload
	if err := json.Unmarshal(env.Data, &p); err != nil {
		return false
	}
	if p.QuestionIndex != s.view.QuestionIndex {
		return false
	}
	s.view.OwnAnswer = &events.OwnAnswer{AnswerIndex: p.AnswerIndex, ReceivedAt: p.ReceivedAt}
	return true
}

func (s *Session) requestSnapshotLocked() {
	s.awaiting = true
	if s.conn == nil {
		return
	}
	if err := s.conn.Send(events.ClientMessage{Type: events.ClientRequestSnapshot}); err != nil {
		log.Warn().Err(err).Msg("failed to request snapshot")
	}
}

func (s *Session) send(msg events.ClientMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("%w: not connected", models.ErrTransportUnavailable)
	}
	if err := s.conn.Send(msg); err != nil {
		return fmt.Errorf("%w: %v", models.ErrTransportUnavailable, err)
	}
	return nil
}

// SubmitAnswer sends an answer for the active question. The outcome
// arrives on OnReply as AnswerAccepted or AnswerRejected.
func (s *Session) SubmitAnswer(answerIndex int) error {
	return s.send(events.ClientMessage{Type: events.ClientSubmitAnswer, AnswerIndex: &answerIndex})
}

// RequestSnapshot asks for a fresh snapshot outside the normal resync path.
func (s *Session) RequestSnapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return fmt.Errorf("%w: not connected", models.ErrTransportUnavailable)
	}
	s.requestSnapshotLocked()
	return nil
}

func (s *Session) Next() error {
	return s.send(events.ClientMessage{Type: events.ClientNext})
}

func (s *Session) Abort() error {
	return s.send(events.ClientMessage{Type: events.ClientAbort})
}

// Leave soft-leaves the room and stops Run once the server closes the
// connection.
func (s *Session) Leave() error {
	s.mu.Lock()
	s.left = true
	s.mu.Unlock()
	return s.send(events.ClientMessage{Type: events.ClientLeave})
}
