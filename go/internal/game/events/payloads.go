package events

import (
	"time"
)

// Event payload types shared by the session, the gateway and clients

// PlayerInfo is the public view of a room member.
type PlayerInfo struct {
	ID        string `json:"id"`
	Nickname  string `json:"nickname"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	Score     int    `json:"score"`
	JoinOrder int    `json:"join_order"`
}

// PlayerJoinedPayload is the payload for a PlayerJoined event
type PlayerJoinedPayload struct {
	Player      PlayerInfo `json:"player"`
	PlayerCount int        `json:"player_count"`
}

// PlayerLeftPayload is the payload for a PlayerLeft event
type PlayerLeftPayload struct {
	PlayerID string    `json:"player_id"`
	Nickname string    `json:"nickname"`
	LeftAt   time.Time `json:"left_at"`
}

// PlayerReconnectedPayload is the payload for a PlayerReconnected event
type PlayerReconnectedPayload struct {
	PlayerID string `json:"player_id"`
	Nickname string `json:"nickname"`
}

// HostChangedPayload is the payload for a HostChanged event
type HostChangedPayload struct {
	PreviousHostID string `json:"previous_host_id"`
	NewHostID      string `json:"new_host_id"`
	Reason         string `json:"reason"`
}

// GameStartedPayload is the payload for a GameStarted event
type GameStartedPayload struct {
	StartedAt      time.Time    `json:"started_at"`
	TotalQuestions int          `json:"total_questions"`
	Players        []PlayerInfo `json:"players"`
}

// OptionInfo is an answer option as shown to players.
type OptionInfo struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// QuestionStartedPayload never carries the correct index.
type QuestionStartedPayload struct {
	QuestionIndex  int          `json:"question_index"`
	TotalQuestions int          `json:"total_questions"`
	QuestionID     string       `json:"question_id"`
	Text           string       `json:"text"`
	Options        []OptionInfo `json:"options"`
	TimerSeconds   int          `json:"timer_seconds"`
	StartedAt      time.Time    `json:"started_at"`
	DeadlineAt     time.Time    `json:"deadline_at"`
}

// AnswerReceivedPayload reports progress without revealing choices.
type AnswerReceivedPayload struct {
	QuestionIndex  int    `json:"question_index"`
	PlayerID       string `json:"player_id"`
	AnsweredCount  int    `json:"answered_count"`
	ConnectedCount int    `json:"connected_count"`
}

// ResultsReason records which signal closed a question.
type ResultsReason string

const (
	ResultsReasonAllAnswered ResultsReason = "all_answered"
	ResultsReasonDeadline    ResultsReason = "deadline"
	ResultsReasonHostSkip    ResultsReason = "host_skip"
)

// PlayerResult is one player's outcome for a question. PointsAwarded is
// authoritative; clients never recompute it.
type PlayerResult struct {
	PlayerID      string `json:"player_id"`
	Nickname      string `json:"nickname"`
	Answered      bool   `json:"answered"`
	AnswerIndex   *int   `json:"answer_index,omitempty"`
	Correct       bool   `json:"correct"`
	PointsAwarded int    `json:"points_awarded"`
	Streak        int    `json:"streak"`
	TotalScore    int    `json:"total_score"`
}

// LeaderboardEntry is a ranked score line.
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	PlayerID  string `json:"player_id"`
	Nickname  string `json:"nickname"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}

// QuestionResultsPayload is the payload for a QuestionResults event
type QuestionResultsPayload struct {
	QuestionIndex  int                `json:"question_index"`
	QuestionID     string             `json:"question_id"`
	CorrectIndex   int                `json:"correct_index"`
	Reason         ResultsReason      `json:"reason"`
	Results        []PlayerResult     `json:"results"`
	Leaderboard    []LeaderboardEntry `json:"leaderboard"`
	LastQuestion   bool               `json:"last_question"`
	NextQuestionAt time.Time          `json:"next_question_at"`
}

// GameOverReason records why a session ended.
type GameOverReason string

const (
	GameOverCompleted GameOverReason = "completed"
	GameOverAborted   GameOverReason = "aborted"
	GameOverFault     GameOverReason = "fault"
)

// GameOverPayload is the terminal summary, sent exactly once per session.
type GameOverPayload struct {
	Reason          GameOverReason     `json:"reason"`
	EndedAt         time.Time          `json:"ended_at"`
	QuestionsPlayed int                `json:"questions_played"`
	TotalQuestions  int                `json:"total_questions"`
	Leaderboard     []LeaderboardEntry `json:"leaderboard"`
}

// RoomClosedPayload is the payload for a RoomClosed event
type RoomClosedPayload struct {
	Reason   string    `json:"reason"`
	ClosedAt time.Time `json:"closed_at"`
}

// AnswerAcceptedPayload is sent only to the submitting player.
type AnswerAcceptedPayload struct {
	QuestionIndex int       `json:"question_index"`
	AnswerIndex   int       `json:"answer_index"`
	ReceivedAt    time.Time `json:"received_at"`
}

// AnswerRejectedPayload is sent only to the submitting player.
type AnswerRejectedPayload struct {
	QuestionIndex int    `json:"question_index"`
	Kind          string `json:"kind"`
	Message       string `json:"message"`
}

// ErrorPayload reports a failed client command on the reply path.
type ErrorPayload struct {
	Command string `json:"command,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// OwnAnswer is the requesting player's answer to the active question.
type OwnAnswer struct {
	AnswerIndex int       `json:"answer_index"`
	ReceivedAt  time.Time `json:"received_at"`
}

// GameSnapshot is the session part of a snapshot. DeadlineAt is absolute
// so repeated snapshots stay identical; clients derive the time remaining.
type GameSnapshot struct {
	Phase          string                  `json:"phase"`
	QuestionIndex  int                     `json:"question_index"`
	TotalQuestions int                     `json:"total_questions"`
	Question       *QuestionStartedPayload `json:"question,omitempty"`
	DeadlineAt     *time.Time              `json:"deadline_at,omitempty"`
	OwnAnswer      *OwnAnswer              `json:"own_answer,omitempty"`
	AnsweredCount  int                     `json:"answered_count"`
	LastResults    *QuestionResultsPayload `json:"last_results,omitempty"`
	Leaderboard    []LeaderboardEntry      `json:"leaderboard"`
	Summary        *GameOverPayload        `json:"summary,omitempty"`
}

// SnapshotPayload is a full point-in-time view used to resynchronize a
// client. Seq is the last room sequence the snapshot reflects.
type SnapshotPayload struct {
	RoomCode     string        `json:"room_code"`
	RoomState    string        `json:"room_state"`
	Seq          uint64        `json:"seq"`
	HostID       string        `json:"host_id"`
	TimerSeconds int           `json:"timer_seconds"`
	Players      []PlayerInfo  `json:"players"`
	Game         *GameSnapshot `json:"game,omitempty"`
}
