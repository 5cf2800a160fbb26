package content

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/rs/zerolog/log"
)

// App handles content business logic on top of a Repository. Full question
// lists are cached per category until a write or a change notification
// invalidates them.
type App struct {
	repo Repository

	mu    sync.RWMutex
	cache map[string][]models.Question
	// versions and epoch move on every invalidation so a read that raced
	// one does not repopulate the cache with what it fetched.
	versions map[string]uint64
	epoch    uint64
}

func NewApp(repo Repository) *App {
	return &App{
		repo:     repo,
		cache:    make(map[string][]models.Question),
		versions: make(map[string]uint64),
	}
}

// FetchQuestions resolves a room's question source. Custom sources are
// returned as-is; category sources read through the cache.
func (a *App) FetchQuestions(ctx context.Context, source models.QuestionSource) ([]models.Question, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	if source.IsCustom() {
		out := make([]models.Question, len(source.Questions))
		for i, q := range source.Questions {
			out[i] = q.Clone()
		}
		return out, nil
	}

	questions, err := a.categoryQuestions(ctx, source.CategoryID)
	if errors.Is(err, ErrCategoryNotFound) {
		return nil, models.NewError(models.KindInvalidConfig, "category %s does not exist", source.CategoryID)
	}
	if err != nil {
		return nil, err
	}
	if source.Limit > 0 && source.Limit < len(questions) {
		questions = questions[:source.Limit]
	}
	out := make([]models.Question, len(questions))
	for i, q := range questions {
		out[i] = q.Clone()
	}
	return out, nil
}

func (a *App) categoryQuestions(ctx context.Context, categoryID string) ([]models.Question, error) {
	a.mu.RLock()
	cached, ok := a.cache[categoryID]
	version, epoch := a.versions[categoryID], a.epoch
	a.mu.RUnlock()
	if ok {
		return cached, nil
	}

	questions, err := a.repo.ListQuestions(ctx, categoryID, 0)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	if a.versions[categoryID] == version && a.epoch == epoch {
		a.cache[categoryID] = questions
	}
	a.mu.Unlock()
	return questions, nil
}

// Invalidate drops the cached questions of one category, or all of them
// when categoryID is empty.
func (a *App) Invalidate(categoryID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if categoryID == "" {
		a.epoch++
		a.cache = make(map[string][]models.Question)
		return
	}
	a.versions[categoryID]++
	delete(a.cache, categoryID)
}

func (a *App) ListCategories(ctx context.Context) ([]models.Category, error) {
	return a.repo.ListCategories(ctx)
}

func (a *App) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	return a.repo.GetCategory(ctx, id)
}

func (a *App) CreateCategory(ctx context.Context, req CreateCategoryRequest) (*models.Category, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" {
		return nil, models.NewError(models.KindInvalidConfig, "category name is required")
	}
	c, err := a.repo.CreateCategory(ctx, req)
	if err != nil {
		return nil, err
	}
	log.Info().Str("category_id", c.ID).Str("name", c.Name).Msg("category created")
	return c, nil
}

func (a *App) DeleteCategory(ctx context.Context, id string) error {
	if err := a.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	a.Invalidate(id)
	log.Info().Str("category_id", id).Msg("category deleted")
	return nil
}

func (a *App) ListQuestions(ctx context.Context, categoryID string, limit int) ([]models.Question, error) {
	if limit < 0 {
		return nil, models.NewError(models.KindInvalidConfig, "limit must not be negative")
	}
	return a.repo.ListQuestions(ctx, categoryID, limit)
}

func (a *App) AddQuestion(ctx context.Context, categoryID string, q models.Question) (*models.Question, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	created, err := a.repo.AddQuestions(ctx, categoryID, []models.Question{q})
	if err != nil {
		return nil, err
	}
	a.Invalidate(categoryID)
	return &created[0], nil
}

// UpdateQuestion replaces a question's content; it cannot move categories.
func (a *App) UpdateQuestion(ctx context.Context, categoryID string, q models.Question) (*models.Question, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	existing, err := a.repo.GetQuestion(ctx, q.ID)
	if err != nil {
		return nil, err
	}
	if existing.CategoryID != categoryID {
		return nil, ErrQuestionNotFound
	}
	updated, err := a.repo.UpdateQuestion(ctx, q)
	if err != nil {
		return nil, err
	}
	a.Invalidate(categoryID)
	return updated, nil
}

func (a *App) DeleteQuestion(ctx context.Context, categoryID, id string) error {
	existing, err := a.repo.GetQuestion(ctx, id)
	if err != nil {
		return err
	}
	if existing.CategoryID != categoryID {
		return ErrQuestionNotFound
	}
	if err := a.repo.DeleteQuestion(ctx, id); err != nil {
		return err
	}
	a.Invalidate(categoryID)
	return nil
}

// CopyQuestions appends every question of one category to another.
func (a *App) CopyQuestions(ctx context.Context, fromCategoryID, toCategoryID string) (int, error) {
	if fromCategoryID == toCategoryID {
		return 0, models.NewError(models.KindInvalidConfig, "source and target category are the same")
	}
	if _, err := a.repo.GetCategory(ctx, toCategoryID); err != nil {
		return 0, err
	}
	questions, err := a.repo.ListQuestions(ctx, fromCategoryID, 0)
	if err != nil {
		return 0, err
	}
	if len(questions) == 0 {
		return 0, nil
	}
	created, err := a.repo.AddQuestions(ctx, toCategoryID, questions)
	if err != nil {
		return 0, fmt.Errorf("failed to copy questions: %w", err)
	}
	a.Invalidate(toCategoryID)

	log.Info().
		Str("from_category_id", fromCategoryID).
		Str("to_category_id", toCategoryID).
		Int("copied", len(created)).
		Msg("questions copied")
	return len(created), nil
}
