package db

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const createCategory = `-- name: CreateCategory :one
INSERT INTO trivia_categories (id, name, description)
VALUES ($1, $2, $3)
RETURNING id, name, description, created_at
`

type CreateCategoryParams struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description sql.NullString `json:"description"`
}

func (q *Queries) CreateCategory(ctx context.Context, arg CreateCategoryParams) (Category, error) {
	row := q.db.QueryRowContext(ctx, createCategory, arg.ID, arg.Name, arg.Description)
	var i Category
	err := row.Scan(&i.ID, &i.Name, &i.Description, &i.CreatedAt)
	return i, err
}

const getCategory = `-- name: GetCategory :one
SELECT c.id, c.name, c.description, c.created_at,
       (SELECT count(*) FROM trivia_questions q WHERE q.category_id = c.id) AS question_count
FROM trivia_categories c
WHERE c.id = $1
`

func (q *Queries) GetCategory(ctx context.Context, id uuid.UUID) (CategoryWithCount, error) {
	row := q.db.QueryRowContext(ctx, getCategory, id)
	var i CategoryWithCount
	err := row.Scan(&i.ID, &i.Name, &i.Description, &i.CreatedAt, &i.QuestionCount)
	return i, err
}

const listCategories = `-- name: ListCategories :many
SELECT c.id, c.name, c.description, c.created_at,
       (SELECT count(*) FROM trivia_questions q WHERE q.category_id = c.id) AS question_count
FROM trivia_categories c
ORDER BY c.name
`

func (q *Queries) ListCategories(ctx context.Context) ([]CategoryWithCount, error) {
	rows, err := q.db.QueryContext(ctx, listCategories)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CategoryWithCount
	for rows.Next() {
		var i CategoryWithCount
		if err := rows.Scan(&i.ID, &i.Name, &i.Description, &i.CreatedAt, &i.QuestionCount); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteCategory = `-- name: DeleteCategory :execrows
DELETE FROM trivia_categories WHERE id = $1
`

func (q *Queries) DeleteCategory(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteCategory, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const createQuestion = `-- name: CreateQuestion :one
INSERT INTO trivia_questions (id, category_id, text, options, correct_index, timer_seconds, position)
VALUES ($1, $2, $3, $4, $5, $6,
        (SELECT coalesce(max(position), -1) + 1 FROM trivia_questions WHERE category_id = $2))
RETURNING id, category_id, text, options, correct_index, timer_seconds, position, created_at
`

type CreateQuestionParams struct {
	ID           uuid.UUID             `json:"id"`
	CategoryID   uuid.UUID             `json:"category_id"`
	Text         string                `json:"text"`
	Options      pqtype.NullRawMessage `json:"options"`
	CorrectIndex int32                 `json:"correct_index"`
	TimerSeconds sql.NullInt32         `json:"timer_seconds"`
}

func (q *Queries) CreateQuestion(ctx context.Context, arg CreateQuestionParams) (Question, error) {
	row := q.db.QueryRowContext(ctx, createQuestion,
		arg.ID,
		arg.CategoryID,
		arg.Text,
		arg.Options,
		arg.CorrectIndex,
		arg.TimerSeconds,
	)
	var i Question
	err := row.Scan(
		&i.ID,
		&i.CategoryID,
		&i.Text,
		&i.Options,
		&i.CorrectIndex,
		&i.TimerSeconds,
		&i.Position,
		&i.CreatedAt,
	)
	return i, err
}

const getQuestion = `-- name: GetQuestion :one
SELECT id, category_id, text, options, correct_index, timer_seconds, position, created_at
FROM trivia_questions
WHERE id = $1
`

func (q *Queries) GetQuestion(ctx context.Context, id uuid.UUID) (Question, error) {
	row := q.db.QueryRowContext(ctx, getQuestion, id)
	var i Question
	err := row.Scan(
		&i.ID,
		&i.CategoryID,
		&i.Text,
		&i.Options,
		&i.CorrectIndex,
		&i.TimerSeconds,
		&i.Position,
		&i.CreatedAt,
	)
	return i, err
}

const listQuestionsByCategory = `-- name: ListQuestionsByCategory :many
SELECT id, category_id, text, options, correct_index, timer_seconds, position, created_at
FROM trivia_questions
WHERE category_id = $1
ORDER BY position
LIMIT $2
`

type ListQuestionsByCategoryParams struct {
	CategoryID uuid.UUID     `json:"category_id"`
	Limit      sql.NullInt32 `json:"limit"`
}

func (q *Queries) ListQuestionsByCategory(ctx context.Context, arg ListQuestionsByCategoryParams) ([]Question, error) {
	rows, err := q.db.QueryContext(ctx, listQuestionsByCategory, arg.CategoryID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Question
	for rows.Next() {
		var i Question
		if err := rows.Scan(
			&i.ID,
			&i.CategoryID,
			&i.Text,
			&i.Options,
			&i.CorrectIndex,
			&i.TimerSeconds,
			&i.Position,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const updateQuestion = `-- name: UpdateQuestion :one
UPDATE trivia_questions
SET text = $2, options = $3, correct_index = $4, timer_seconds = $5
WHERE id = $1
RETURNING id, category_id, text, options, correct_index, timer_seconds, position, created_at
`

type UpdateQuestionParams struct {
	ID           uuid.UUID             `json:"id"`
	Text         string                `json:"text"`
	Options      pqtype.NullRawMessage `json:"options"`
	CorrectIndex int32                 `json:"correct_index"`
	TimerSeconds sql.NullInt32         `json:"timer_seconds"`
}

func (q *Queries) UpdateQuestion(ctx context.Context, arg UpdateQuestionParams) (Question, error) {
	row := q.db.QueryRowContext(ctx, updateQuestion,
		arg.ID,
		arg.Text,
		arg.Options,
		arg.CorrectIndex,
		arg.TimerSeconds,
	)
	var i Question
	err := row.Scan(
		&i.ID,
		&i.CategoryID,
		&i.Text,
		&i.Options,
		&i.CorrectIndex,
		&i.TimerSeconds,
		&i.Position,
		&i.CreatedAt,
	)
	return i, err
}

const deleteQuestion = `-- name: DeleteQuestion :execrows
DELETE FROM trivia_questions WHERE id = $1
`

func (q *Queries) DeleteQuestion(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteQuestion, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
