package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type Category struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description sql.NullString `json:"description"`
	CreatedAt   time.Time      `json:"created_at"`
}

type CategoryWithCount struct {
	ID            uuid.UUID      `json:"id"`
	Name          string         `json:"name"`
	Description   sql.NullString `json:"description"`
	CreatedAt     time.Time      `json:"created_at"`
	QuestionCount int64          `json:"question_count"`
}

type Question struct {
	ID           uuid.UUID             `json:"id"`
	CategoryID   uuid.UUID             `json:"category_id"`
	Text         string                `json:"text"`
	Options      pqtype.NullRawMessage `json:"options"`
	CorrectIndex int32                 `json:"correct_index"`
	TimerSeconds sql.NullInt32         `json:"timer_seconds"`
	Position     int32                 `json:"position"`
	CreatedAt    time.Time             `json:"created_at"`
}
