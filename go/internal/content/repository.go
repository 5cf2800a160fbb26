package content

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/trivia/go/internal/content/db"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/mcdev12/trivia/go/internal/sqlutil"
)

//go:embed schema.sql
var schemaSQL string

// Querier defines what the repository needs from the database layer
type Querier interface {
	CreateCategory(ctx context.Context, arg db.CreateCategoryParams) (db.Category, error)
	GetCategory(ctx context.Context, id uuid.UUID) (db.CategoryWithCount, error)
	ListCategories(ctx context.Context) ([]db.CategoryWithCount, error)
	DeleteCategory(ctx context.Context, id uuid.UUID) (int64, error)
	CreateQuestion(ctx context.Context, arg db.CreateQuestionParams) (db.Question, error)
	GetQuestion(ctx context.Context, id uuid.UUID) (db.Question, error)
	ListQuestionsByCategory(ctx context.Context, arg db.ListQuestionsByCategoryParams) ([]db.Question, error)
	UpdateQuestion(ctx context.Context, arg db.UpdateQuestionParams) (db.Question, error)
	DeleteQuestion(ctx context.Context, id uuid.UUID) (int64, error)
}

// PostgresRepository implements content data access on Postgres
type PostgresRepository struct {
	db      *sql.DB
	queries Querier
}

func NewPostgresRepository(conn *sql.DB) *PostgresRepository {
	return &PostgresRepository{
		db:      conn,
		queries: db.New(conn),
	}
}

// SchemaSQL returns the content schema for callers not using database/sql.
func SchemaSQL() string {
	return schemaSQL
}

// EnsureSchema creates the content tables and change-notification
// triggers if they do not exist.
func EnsureSchema(ctx context.Context, conn *sql.DB) error {
	if _, err := conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply content schema: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := r.queries.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	out := make([]models.Category, len(rows))
	for i, row := range rows {
		out[i] = dbCategoryToModel(row)
	}
	return out, nil
}

func (r *PostgresRepository) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	catID, ok := sqlutil.ParseUUID(id)
	if !ok {
		return nil, ErrCategoryNotFound
	}
	row, err := r.queries.GetCategory(ctx, catID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCategoryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	c := dbCategoryToModel(row)
	return &c, nil
}

func (r *PostgresRepository) CreateCategory(ctx context.Context, req CreateCategoryRequest) (*models.Category, error) {
	row, err := r.queries.CreateCategory(ctx, db.CreateCategoryParams{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: sqlutil.ToSqlString(req.Description),
	})
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return nil, fmt.Errorf("%w: %s", ErrCategoryExists, req.Name)
		}
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	return &models.Category{
		ID:          row.ID.String(),
		Name:        row.Name,
		Description: sqlutil.FromSqlString(row.Description),
		CreatedAt:   row.CreatedAt,
	}, nil
}

func (r *PostgresRepository) DeleteCategory(ctx context.Context, id string) error {
	catID, ok := sqlutil.ParseUUID(id)
	if !ok {
		return ErrCategoryNotFound
	}
	n, err := r.queries.DeleteCategory(ctx, catID)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	if n == 0 {
		return ErrCategoryNotFound
	}
	return nil
}

func (r *PostgresRepository) ListQuestions(ctx context.Context, categoryID string, limit int) ([]models.Question, error) {
	if _, err := r.GetCategory(ctx, categoryID); err != nil {
		return nil, err
	}
	catID, _ := sqlutil.ParseUUID(categoryID)
	rows, err := r.queries.ListQuestionsByCategory(ctx, db.ListQuestionsByCategoryParams{
		CategoryID: catID,
		Limit:      sqlutil.ToSqlInt32(limit),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list questions: %w", err)
	}
	out := make([]models.Question, 0, len(rows))
	for _, row := range rows {
		q, err := dbQuestionToModel(row)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func (r *PostgresRepository) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	qid, ok := sqlutil.ParseUUID(id)
	if !ok {
		return nil, ErrQuestionNotFound
	}
	row, err := r.queries.GetQuestion(ctx, qid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get question: %w", err)
	}
	q, err := dbQuestionToModel(row)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// AddQuestions inserts all questions in one transaction, preserving order.
func (r *PostgresRepository) AddQuestions(ctx context.Context, categoryID string, questions []models.Question) ([]models.Question, error) {
	catID, ok := sqlutil.ParseUUID(categoryID)
	if !ok {
		return nil, ErrCategoryNotFound
	}

	out := make([]models.Question, 0, len(questions))
	err := sqlutil.Run(ctx, r.db, db.New(r.db).WithTx, func(q *db.Queries) error {
		for _, question := range questions {
			options, err := sqlutil.ToNullRawMessage(question.Options)
			if err != nil {
				return fmt.Errorf("failed to encode options: %w", err)
			}
			row, err := q.CreateQuestion(ctx, db.CreateQuestionParams{
				ID:           uuid.New(),
				CategoryID:   catID,
				Text:         question.Text,
				Options:      options,
				CorrectIndex: int32(question.CorrectIndex),
				TimerSeconds: sqlutil.ToSqlInt32(question.TimerSeconds),
			})
			if err != nil {
				var pqErr *pq.Error
				if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
					return ErrCategoryNotFound
				}
				return fmt.Errorf("failed to create question: %w", err)
			}
			created, err := dbQuestionToModel(row)
			if err != nil {
				return err
			}
			out = append(out, created)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) UpdateQuestion(ctx context.Context, question models.Question) (*models.Question, error) {
	qid, ok := sqlutil.ParseUUID(question.ID)
	if !ok {
		return nil, ErrQuestionNotFound
	}
	options, err := sqlutil.ToNullRawMessage(question.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to encode options: %w", err)
	}
	row, err := r.queries.UpdateQuestion(ctx, db.UpdateQuestionParams{
		ID:           qid,
		Text:         question.Text,
		Options:      options,
		CorrectIndex: int32(question.CorrectIndex),
		TimerSeconds: sqlutil.ToSqlInt32(question.TimerSeconds),
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update question: %w", err)
	}
	updated, err := dbQuestionToModel(row)
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *PostgresRepository) DeleteQuestion(ctx context.Context, id string) error {
	qid, ok := sqlutil.ParseUUID(id)
	if !ok {
		return ErrQuestionNotFound
	}
	n, err := r.queries.DeleteQuestion(ctx, qid)
	if err != nil {
		return fmt.Errorf("failed to delete question: %w", err)
	}
	if n == 0 {
		return ErrQuestionNotFound
	}
	return nil
}

func dbCategoryToModel(row db.CategoryWithCount) models.Category {
	return models.Category{
		ID:            row.ID.String(),
		Name:          row.Name,
		Description:   strings.TrimSpace(sqlutil.FromSqlString(row.Description)),
		QuestionCount: int(row.QuestionCount),
		CreatedAt:     row.CreatedAt,
	}
}

func dbQuestionToModel(row db.Question) (models.Question, error) {
	q := models.Question{
		ID:           row.ID.String(),
		CategoryID:   row.CategoryID.String(),
		Text:         row.Text,
		CorrectIndex: int(row.CorrectIndex),
		TimerSeconds: sqlutil.FromSqlInt32(row.TimerSeconds),
		CreatedAt:    row.CreatedAt,
	}
	if err := sqlutil.FromNullRawMessage(row.Options, &q.Options); err != nil {
		return models.Question{}, fmt.Errorf("failed to decode options for question %s: %w", q.ID, err)
	}
	return q, nil
}
