package content

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/trivia/go/internal/models"
)

// MemoryRepository keeps content in process memory. Questions are kept in
// insertion order per category.
type MemoryRepository struct {
	mu         sync.RWMutex
	clock      clockwork.Clock
	categories map[string]models.Category
	questions  map[string]models.Question
	order      map[string][]string
}

func NewMemoryRepository(clock clockwork.Clock) *MemoryRepository {
	return &MemoryRepository{
		clock:      clock,
		categories: make(map[string]models.Category),
		questions:  make(map[string]models.Question),
		order:      make(map[string][]string),
	}
}

// Seed loads every category of the seed file. Existing categories with the
// same name are extended rather than duplicated.
func (r *MemoryRepository) Seed(ctx context.Context, seed *SeedFile) error {
	for _, sc := range seed.Categories {
		cat, err := r.categoryByName(sc.Name)
		if err != nil {
			cat, err = r.CreateCategory(ctx, CreateCategoryRequest{Name: sc.Name, Description: sc.Description})
			if err != nil {
				return err
			}
		}
		questions := make([]models.Question, 0, len(sc.Questions))
		for _, sq := range sc.Questions {
			q, err := sq.Question()
			if err != nil {
				return err
			}
			questions = append(questions, q)
		}
		if _, err := r.AddQuestions(ctx, cat.ID, questions); err != nil {
			return err
		}
	}
	return nil
}

func (r *MemoryRepository) categoryByName(name string) (*models.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, c := range r.categories {
		if strings.EqualFold(c.Name, name) {
			out := c
			out.QuestionCount = len(r.order[c.ID])
			return &out, nil
		}
	}
	return nil, ErrCategoryNotFound
}

func (r *MemoryRepository) ListCategories(ctx context.Context) ([]models.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Category, 0, len(r.categories))
	for _, c := range r.categories {
		c.QuestionCount = len(r.order[c.ID])
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *MemoryRepository) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.categories[id]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	c.QuestionCount = len(r.order[id])
	return &c, nil
}

func (r *MemoryRepository) CreateCategory(ctx context.Context, req CreateCategoryRequest) (*models.Category, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.categories {
		if strings.EqualFold(c.Name, req.Name) {
			return nil, fmt.Errorf("%w: %s", ErrCategoryExists, req.Name)
		}
	}
	c := models.Category{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   r.clock.Now(),
	}
	r.categories[c.ID] = c
	return &c, nil
}

func (r *MemoryRepository) DeleteCategory(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.categories[id]; !ok {
		return ErrCategoryNotFound
	}
	for _, qid := range r.order[id] {
		delete(r.questions, qid)
	}
	delete(r.order, id)
	delete(r.categories, id)
	return nil
}

func (r *MemoryRepository) ListQuestions(ctx context.Context, categoryID string, limit int) ([]models.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.categories[categoryID]; !ok {
		return nil, ErrCategoryNotFound
	}
	ids := r.order[categoryID]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]models.Question, len(ids))
	for i, id := range ids {
		out[i] = r.questions[id].Clone()
	}
	return out, nil
}

func (r *MemoryRepository) GetQuestion(ctx context.Context, id string) (*models.Question, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.questions[id]
	if !ok {
		return nil, ErrQuestionNotFound
	}
	q = q.Clone()
	return &q, nil
}

func (r *MemoryRepository) AddQuestions(ctx context.Context, categoryID string, questions []models.Question) ([]models.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.categories[categoryID]; !ok {
		return nil, ErrCategoryNotFound
	}
	now := r.clock.Now()
	out := make([]models.Question, len(questions))
	for i, q := range questions {
		q = q.Clone()
		q.ID = uuid.New().String()
		q.CategoryID = categoryID
		q.CreatedAt = now
		r.questions[q.ID] = q
		r.order[categoryID] = append(r.order[categoryID], q.ID)
		out[i] = q.Clone()
	}
	return out, nil
}

func (r *MemoryRepository) UpdateQuestion(ctx context.Context, q models.Question) (*models.Question, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.questions[q.ID]
	if !ok {
		return nil, ErrQuestionNotFound
	}
	q = q.Clone()
	q.CategoryID = existing.CategoryID
	q.CreatedAt = existing.CreatedAt
	r.questions[q.ID] = q
	out := q.Clone()
	return &out, nil
}

func (r *MemoryRepository) DeleteQuestion(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.questions[id]
	if !ok {
		return ErrQuestionNotFound
	}
	delete(r.questions, id)
	ids := r.order[q.CategoryID]
	for i, qid := range ids {
		if qid == id {
			r.order[q.CategoryID] = append(ids[:i:i], ids[i+1:]...)
			break
		}
	}
	return nil
}
