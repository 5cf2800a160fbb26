package content

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mcdev12/trivia/go/internal/models"
	"gopkg.in/yaml.v3"
)

var (
	ErrCategoryNotFound = errors.New("category not found")
	ErrQuestionNotFound = errors.New("question not found")
	ErrCategoryExists   = errors.New("category already exists")
)

// Repository is the content store contract shared by the memory and
// Postgres implementations.
type Repository interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategory(ctx context.Context, id string) (*models.Category, error)
	CreateCategory(ctx context.Context, req CreateCategoryRequest) (*models.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	ListQuestions(ctx context.Context, categoryID string, limit int) ([]models.Question, error)
	GetQuestion(ctx context.Context, id string) (*models.Question, error)
	AddQuestions(ctx context.Context, categoryID string, questions []models.Question) ([]models.Question, error)
	UpdateQuestion(ctx context.Context, q models.Question) (*models.Question, error)
	DeleteQuestion(ctx context.Context, id string) error
}

type CreateCategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// SeedFile is the YAML question bank format read by the memory repository
// and the seeder.
type SeedFile struct {
	Categories []SeedCategory `yaml:"categories"`
}

type SeedCategory struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Questions   []SeedQuestion `yaml:"questions"`
}

type SeedQuestion struct {
	Text         string   `yaml:"text"`
	Options      []string `yaml:"options"`
	Answer       int      `yaml:"answer"`
	TimerSeconds int      `yaml:"timer_seconds"`
}

// Question converts a seed entry into a validated model.
func (sq SeedQuestion) Question() (models.Question, error) {
	q := models.Question{
		Text:         sq.Text,
		CorrectIndex: sq.Answer,
		TimerSeconds: sq.TimerSeconds,
		Options:      make([]models.AnswerOption, len(sq.Options)),
	}
	for i, text := range sq.Options {
		q.Options[i] = models.AnswerOption{Index: i, Text: text}
	}
	if err := q.Validate(); err != nil {
		return models.Question{}, err
	}
	return q, nil
}

func ParseSeed(data []byte) (*SeedFile, error) {
	var seed SeedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	for _, c := range seed.Categories {
		if c.Name == "" {
			return nil, fmt.Errorf("seed category without a name")
		}
		for i, sq := range c.Questions {
			if _, err := sq.Question(); err != nil {
				return nil, fmt.Errorf("category %q question %d: %w", c.Name, i, err)
			}
		}
	}
	return &seed, nil
}

func LoadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	return ParseSeed(data)
}
