package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorIsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("join room: %w", NewError(KindRoomClosed, "room %s already started", "ABC234"))

	assert.ErrorIs(t, err, ErrRoomClosed)
	assert.NotErrorIs(t, err, ErrRoomNotFound)
	assert.Equal(t, KindRoomClosed, KindOf(err))
	assert.Equal(t, ErrorKind(""), KindOf(errors.New("plain")))
	assert.Equal(t, "RoomClosed: room ABC234 already started", errors.Unwrap(err).Error())
}

func TestQuestionValidate(t *testing.T) {
	valid := Question{
		Text:         "2 + 2?",
		Options:      []AnswerOption{{Index: 0, Text: "3"}, {Index: 1, Text: "4"}},
		CorrectIndex: 1,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(q *Question)
	}{
		{"blank text", func(q *Question) { q.Text = "  " }},
		{"single option", func(q *Question) { q.Options = q.Options[:1] }},
		{"gap in indexes", func(q *Question) { q.Options[1].Index = 2 }},
		{"correct index out of range", func(q *Question) { q.CorrectIndex = 2 }},
		{"negative timer", func(q *Question) { q.TimerSeconds = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid.Clone()
			tt.mutate(&q)
			assert.ErrorIs(t, q.Validate(), ErrInvalidConfig)
		})
	}
}

func TestQuestionSourceValidate(t *testing.T) {
	q := Question{Text: "x", Options: []AnswerOption{{0, "a"}, {1, "b"}}}

	assert.NoError(t, QuestionSource{CategoryID: "geo"}.Validate())
	assert.NoError(t, QuestionSource{Questions: []Question{q}}.Validate())
	assert.ErrorIs(t, QuestionSource{CategoryID: "geo", Questions: []Question{q}}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, QuestionSource{CategoryID: "geo", Limit: -1}.Validate(), ErrInvalidConfig)
}

func TestRoomCloneIsDeep(t *testing.T) {
	r := Room{
		Code:    "ABC234",
		Players: []Player{{ID: "p1", Nickname: "Ann", Status: PlayerStatusConnected}},
		Config: RoomConfig{Source: QuestionSource{Questions: []Question{{
			Text: "q", Options: []AnswerOption{{0, "a"}, {1, "b"}},
		}}}},
	}

	c := r.Clone()
	c.Players[0].Nickname = "Bob"
	c.Config.Source.Questions[0].Options[0].Text = "changed"

	assert.Equal(t, "Ann", r.Players[0].Nickname)
	assert.Equal(t, "a", r.Config.Source.Questions[0].Options[0].Text)
}

func TestRoomNicknameTakenIgnoresDisconnected(t *testing.T) {
	r := Room{Players: []Player{
		{ID: "p1", Nickname: "Ann", Status: PlayerStatusConnected},
		{ID: "p2", Nickname: "Bob", Status: PlayerStatusDisconnected},
	}}

	assert.True(t, r.NicknameTaken("ANN"))
	assert.False(t, r.NicknameTaken("bob"))
	assert.Equal(t, 1, r.ConnectedCount())
}
