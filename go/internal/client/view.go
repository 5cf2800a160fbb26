package client

import (
	"fmt"
	"time"

	"github.com/mcdev12/trivia/go/internal/game/events"
	"github.com/mcdev12/trivia/go/internal/game/session"
	"github.com/mcdev12/trivia/go/internal/models"
)

// View is a client's local picture of a room, rebuilt from a snapshot and
// advanced by room events in sequence order.
type View struct {
	RoomCode     string
	RoomState    models.RoomState
	HostID       string
	TimerSeconds int
	Players      []events.PlayerInfo

	Phase          session.Phase
	QuestionIndex  int
	TotalQuestions int
	Question       *events.QuestionStartedPayload
	AnsweredCount  int
	OwnAnswer      *events.OwnAnswer
	LastResults    *events.QuestionResultsPayload
	Leaderboard    []events.LeaderboardEntry
	Summary        *events.GameOverPayload
	ClosedReason   string
}

// TimeRemaining is the time left on the active question as seen from now.
func (v *View) TimeRemaining(now time.Time) time.Duration {
	if v.Phase != session.PhaseQuestionActive || v.Question == nil {
		return 0
	}
	if d := v.Question.DeadlineAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// clone copies the slices so a handed-out view does not alias the one the
// session keeps applying events to. Payload pointers are replaced, never
// mutated, so they are shared.
func (v View) clone() View {
	v.Players = append([]events.PlayerInfo(nil), v.Players...)
	v.Leaderboard = append([]events.LeaderboardEntry(nil), v.Leaderboard...)
	return v
}

// Player returns the member with the given id, or nil.
func (v *View) Player(id string) *events.PlayerInfo {
	for i := range v.Players {
		if v.Players[i].ID == id {
			return &v.Players[i]
		}
	}
	return nil
}

func viewFromSnapshot(snap events.SnapshotPayload) View {
	v := View{
		RoomCode:     snap.RoomCode,
		RoomState:    models.RoomState(snap.RoomState),
		HostID:       snap.HostID,
		TimerSeconds: snap.TimerSeconds,
		Players:      append([]events.PlayerInfo(nil), snap.Players...),
	}
	if g := snap.Game; g != nil {
		v.Phase = session.Phase(g.Phase)
		v.QuestionIndex = g.QuestionIndex
		v.TotalQuestions = g.TotalQuestions
		v.Question = g.Question
		v.AnsweredCount = g.AnsweredCount
		v.OwnAnswer = g.OwnAnswer
		v.LastResults = g.LastResults
		v.Leaderboard = g.Leaderboard
		v.Summary = g.Summary
	}
	return v
}

// apply advances the view by one room event.
func (v *View) apply(env *events.Envelope) error {
	payload, err := events.ParseEventPayload(env)
	if err != nil {
		return err
	}

	switch p := payload.(type) {
	case *events.PlayerJoinedPayload:
		if existing := v.Player(p.Player.ID); existing != nil {
			*existing = p.Player
		} else {
			v.Players = append(v.Players, p.Player)
		}
	case *events.PlayerLeftPayload:
		v.setStatus(p.PlayerID, models.PlayerStatusDisconnected)
	case *events.PlayerReconnectedPayload:
		v.setStatus(p.PlayerID, models.PlayerStatusConnected)
	case *events.HostChangedPayload:
		v.HostID = p.NewHostID
		for i := range v.Players {
			switch v.Players[i].ID {
			case p.NewHostID:
				v.Players[i].Role = string(models.PlayerRoleHost)
			case p.PreviousHostID:
				v.Players[i].Role = string(models.PlayerRoleGuest)
			}
		}
	case *events.GameStartedPayload:
		v.RoomState = models.RoomStateInProgress
		v.Phase = session.PhaseAwaitingStart
		v.TotalQuestions = p.TotalQuestions
		if len(p.Players) > 0 {
			v.Players = append([]events.PlayerInfo(nil), p.Players...)
		}
	case *events.QuestionStartedPayload:
		v.Phase = session.PhaseQuestionActive
		v.QuestionIndex = p.QuestionIndex
		v.TotalQuestions = p.TotalQuestions
		v.Question = p
		v.AnsweredCount = 0
		v.OwnAnswer = nil
	case *events.AnswerReceivedPayload:
		if p.QuestionIndex == v.QuestionIndex {
			v.AnsweredCount = p.AnsweredCount
		}
	case *events.QuestionResultsPayload:
		v.Phase = session.PhaseQuestionResults
		v.LastResults = p
		v.Leaderboard = p.Leaderboard
		for _, r := range p.Results {
			if pl := v.Player(r.PlayerID); pl != nil {
				pl.Score = r.TotalScore
			}
		}
	case *events.GameOverPayload:
		v.Phase = session.PhaseGameOver
		v.RoomState = models.RoomStateEnded
		v.Summary = p
		v.Leaderboard = p.Leaderboard
	case *events.RoomClosedPayload:
		v.RoomState = models.RoomStateEnded
		v.ClosedReason = p.Reason
	default:
		return fmt.Errorf("unexpected room event %s", env.Type)
	}
	return nil
}

func (v *View) setStatus(playerID string, status models.PlayerStatus) {
	if p := v.Player(playerID); p != nil {
		p.Status = string(status)
	}
}
