package models

import (
	"strings"
	"time"
)

// Category groups questions in the content store.
type Category struct {
	ID            string    `json:"id" yaml:"id"`
	Name          string    `json:"name" yaml:"name"`
	Description   string    `json:"description,omitempty" yaml:"description"`
	QuestionCount int       `json:"question_count" yaml:"-"`
	CreatedAt     time.Time `json:"created_at" yaml:"-"`
}

// AnswerOption is one selectable answer. Index is zero-based.
type AnswerOption struct {
	Index int    `json:"index" yaml:"index"`
	Text  string `json:"text" yaml:"text"`
}

// Question is a multiple-choice question. TimerSeconds of 0 means the
// room default applies.
type Question struct {
	ID           string         `json:"id" yaml:"id"`
	CategoryID   string         `json:"category_id,omitempty" yaml:"category_id"`
	Text         string         `json:"text" yaml:"text"`
	Options      []AnswerOption `json:"options" yaml:"options"`
	CorrectIndex int            `json:"correct_index" yaml:"correct_index"`
	TimerSeconds int            `json:"timer_seconds,omitempty" yaml:"timer_seconds"`
	CreatedAt    time.Time      `json:"created_at,omitempty" yaml:"-"`
}

// Clone returns a deep copy of q.
func (q Question) Clone() Question {
	out := q
	out.Options = make([]AnswerOption, len(q.Options))
	copy(out.Options, q.Options)
	return out
}

// Validate checks the structural rules every stored or played question obeys.
func (q Question) Validate() error {
	if strings.TrimSpace(q.Text) == "" {
		return NewError(KindInvalidConfig, "question text is required")
	}
	if len(q.Options) < 2 {
		return NewError(KindInvalidConfig, "question needs at least two options")
	}
	for i, opt := range q.Options {
		if opt.Index != i {
			return NewError(KindInvalidConfig, "option indexes must be sequential from zero")
		}
		if strings.TrimSpace(opt.Text) == "" {
			return NewError(KindInvalidConfig, "option text is required")
		}
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return NewError(KindInvalidConfig, "correct index out of range")
	}
	if q.TimerSeconds < 0 {
		return NewError(KindInvalidConfig, "timer seconds must not be negative")
	}
	return nil
}

// QuestionSource selects the questions a room will play: either a stored
// category (optionally limited) or a custom list supplied by the host.
type QuestionSource struct {
	CategoryID string     `json:"category_id,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Questions  []Question `json:"questions,omitempty"`
}

func (s QuestionSource) IsCustom() bool {
	return s.CategoryID == ""
}

func (s QuestionSource) Clone() QuestionSource {
	out := s
	if s.Questions != nil {
		out.Questions = make([]Question, len(s.Questions))
		for i, q := range s.Questions {
			out.Questions[i] = q.Clone()
		}
	}
	return out
}

// QuestionIndex returns the position of a custom question, or -1.
func (s QuestionSource) QuestionIndex(id string) int {
	for i, q := range s.Questions {
		if q.ID == id {
			return i
		}
	}
	return -1
}

// Validate rejects sources that name both a category and custom questions,
// or neither.
func (s QuestionSource) Validate() error {
	if s.Limit < 0 {
		return NewError(KindInvalidConfig, "limit must not be negative")
	}
	if s.CategoryID != "" {
		if len(s.Questions) > 0 {
			return NewError(KindInvalidConfig, "question source must be a category or a custom list, not both")
		}
		return nil
	}
	for _, q := range s.Questions {
		if err := q.Validate(); err != nil {
			return err
		}
	}
	return nil
}
