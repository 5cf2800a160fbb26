package content

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/trivia/go/internal/httputil"
	"github.com/mcdev12/trivia/go/internal/models"
)

// ContentApp defines what the HTTP service needs from the content application
type ContentApp interface {
	ListCategories(ctx context.Context) ([]models.Category, error)
	GetCategory(ctx context.Context, id string) (*models.Category, error)
	CreateCategory(ctx context.Context, req CreateCategoryRequest) (*models.Category, error)
	DeleteCategory(ctx context.Context, id string) error
	ListQuestions(ctx context.Context, categoryID string, limit int) ([]models.Question, error)
	AddQuestion(ctx context.Context, categoryID string, q models.Question) (*models.Question, error)
	UpdateQuestion(ctx context.Context, categoryID string, q models.Question) (*models.Question, error)
	DeleteQuestion(ctx context.Context, categoryID, id string) error
	CopyQuestions(ctx context.Context, fromCategoryID, toCategoryID string) (int, error)
}

var _ ContentApp = (*App)(nil)

type CopyQuestionsRequest struct {
	FromCategoryID string `json:"from_category_id"`
}

type CopyQuestionsResponse struct {
	Copied int `json:"copied"`
}

// Service exposes category and question CRUD over HTTP
type Service struct {
	app ContentApp
}

func NewService(app ContentApp) *Service {
	return &Service{app: app}
}

func (s *Service) RegisterRoutes(r chi.Router) {
	r.Route("/api/categories", func(r chi.Router) {
		r.Get("/", s.ListCategories)
		r.Post("/", s.CreateCategory)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.GetCategory)
			r.Delete("/", s.DeleteCategory)
			r.Get("/questions", s.ListQuestions)
			r.Post("/questions", s.AddQuestion)
			r.Post("/copy", s.CopyQuestions)
			r.Put("/questions/{qid}", s.UpdateQuestion)
			r.Delete("/questions/{qid}", s.DeleteQuestion)
		})
	})
}

func (s *Service) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.app.ListCategories(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, categories)
}

func (s *Service) GetCategory(w http.ResponseWriter, r *http.Request) {
	c, err := s.app.GetCategory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, c)
}

func (s *Service) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CreateCategoryRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	c, err := s.app.CreateCategory(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, c)
}

func (s *Service) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) ListQuestions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			httputil.WriteError(w, r, models.NewError(models.KindInvalidConfig, "limit must be a number"))
			return
		}
		limit = n
	}
	questions, err := s.app.ListQuestions(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, questions)
}

func (s *Service) AddQuestion(w http.ResponseWriter, r *http.Request) {
	var q models.Question
	if err := httputil.ReadJSON(r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	created, err := s.app.AddQuestion(r.Context(), chi.URLParam(r, "id"), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (s *Service) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var q models.Question
	if err := httputil.ReadJSON(r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	q.ID = chi.URLParam(r, "qid")
	updated, err := s.app.UpdateQuestion(r.Context(), chi.URLParam(r, "id"), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func (s *Service) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	if err := s.app.DeleteQuestion(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "qid")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) CopyQuestions(w http.ResponseWriter, r *http.Request) {
	var req CopyQuestionsRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	n, err := s.app.CopyQuestions(r.Context(), req.FromCategoryID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CopyQuestionsResponse{Copied: n})
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrCategoryNotFound), errors.Is(err, ErrQuestionNotFound):
		httputil.WriteMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrCategoryExists):
		httputil.WriteMessage(w, http.StatusConflict, err.Error())
	default:
		httputil.WriteError(w, r, err)
	}
}
