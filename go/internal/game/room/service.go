package room

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mcdev12/trivia/go/internal/game/events"
	"github.com/mcdev12/trivia/go/internal/game/session"
	"github.com/mcdev12/trivia/go/internal/httputil"
	"github.com/mcdev12/trivia/go/internal/models"
)

// RoomsApp defines what the HTTP service needs from the room store
type RoomsApp interface {
	CreateRoom(ctx context.Context, req CreateRoomRequest) (string, string, error)
	JoinRoom(ctx context.Context, code, nickname string) (string, error)
	LeaveRoom(ctx context.Context, code, playerID string) error
	StartGame(ctx context.Context, code, hostID string) (*session.Session, error)
	SubmitAnswer(ctx context.Context, code, playerID string, answerIndex int, at time.Time) error
	NextQuestion(ctx context.Context, code, hostID string) error
	AbortGame(ctx context.Context, code, hostID string) error
	TransferHost(ctx context.Context, code, hostID, newHostID string) error
	AddRoomQuestion(ctx context.Context, code, hostID string, q models.Question) error
	ListRoomQuestions(ctx context.Context, code, hostID string) ([]models.Question, error)
	UpdateRoomQuestion(ctx context.Context, code, hostID, questionID string, q models.Question) error
	DeleteRoomQuestion(ctx context.Context, code, hostID, questionID string) error
	CopyCategoryToRoom(ctx context.Context, code, hostID, categoryID string, limit int) (int, error)
	GetRoom(ctx context.Context, code string) (models.Room, error)
	Snapshot(ctx context.Context, code, playerID string) (events.SnapshotPayload, error)
	Leaderboard(ctx context.Context, code string) ([]events.LeaderboardEntry, error)
}

var _ RoomsApp = (*Store)(nil)

type CreateRoomResponse struct {
	Code     string `json:"code"`
	PlayerID string `json:"player_id"`
}

type JoinRoomRequest struct {
	Nickname string `json:"nickname"`
}

type JoinRoomResponse struct {
	Code     string `json:"code"`
	PlayerID string `json:"player_id"`
}

// PlayerRequest identifies the caller for actions that need no other input.
type PlayerRequest struct {
	PlayerID string `json:"player_id"`
}

type SubmitAnswerRequest struct {
	PlayerID    string `json:"player_id"`
	AnswerIndex int    `json:"answer_index"`
}

type TransferHostRequest struct {
	PlayerID  string `json:"player_id"`
	NewHostID string `json:"new_host_id"`
}

type AddQuestionRequest struct {
	PlayerID string          `json:"player_id"`
	Question models.Question `json:"question"`
}

type CopyCategoryRequest struct {
	PlayerID   string `json:"player_id"`
	CategoryID string `json:"category_id"`
	Limit      int    `json:"limit"`
}

type CopyCategoryResponse struct {
	Copied int `json:"copied"`
}

// RoomView is the public room representation; the question source is
// omitted so custom answers are not leaked before the game.
type RoomView struct {
	Code         string              `json:"code"`
	State        models.RoomState    `json:"state"`
	HostID       string              `json:"host_id"`
	TimerSeconds int                 `json:"timer_seconds"`
	MaxPlayers   int                 `json:"max_players"`
	CategoryID   string              `json:"category_id,omitempty"`
	Players      []events.PlayerInfo `json:"players"`
	CreatedAt    time.Time           `json:"created_at"`
	StartedAt    *time.Time          `json:"started_at,omitempty"`
	EndedAt      *time.Time          `json:"ended_at,omitempty"`
}

// Service exposes the room store over HTTP
type Service struct {
	app   RoomsApp
	clock session.Clock
}

func NewService(app RoomsApp, clock session.Clock) *Service {
	return &Service{
		app:   app,
		clock: clock,
	}
}

func (s *Service) RegisterRoutes(r chi.Router) {
	r.Route("/api/rooms", func(r chi.Router) {
		r.Post("/", s.CreateRoom)
		r.Route("/{code}", func(r chi.Router) {
			r.Get("/", s.GetRoom)
			r.Post("/join", s.JoinRoom)
			r.Post("/leave", s.LeaveRoom)
			r.Post("/start", s.StartGame)
			r.Post("/answers", s.SubmitAnswer)
			r.Post("/next", s.NextQuestion)
			r.Post("/abort", s.AbortGame)
			r.Post("/host", s.TransferHost)
			r.Get("/questions", s.ListQuestions)
			r.Post("/questions", s.AddQuestion)
			r.Post("/questions/copy", s.CopyCategory)
			r.Put("/questions/{qid}", s.UpdateQuestion)
			r.Delete("/questions/{qid}", s.DeleteQuestion)
			r.Get("/state", s.GetState)
			r.Get("/leaderboard", s.GetLeaderboard)
		})
	})
}

func (s *Service) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	code, hostID, err := s.app.CreateRoom(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, CreateRoomResponse{Code: code, PlayerID: hostID})
}

func (s *Service) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := s.app.GetRoom(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, roomToView(room))
}

func (s *Service) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	code := NormalizeCode(chi.URLParam(r, "code"))
	playerID, err := s.app.JoinRoom(r.Context(), code, req.Nickname)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, JoinRoomResponse{Code: code, PlayerID: playerID})
}

func (s *Service) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	s.playerAction(w, r, s.app.LeaveRoom)
}

func (s *Service) StartGame(w http.ResponseWriter, r *http.Request) {
	s.playerAction(w, r, func(ctx context.Context, code, playerID string) error {
		_, err := s.app.StartGame(ctx, code, playerID)
		return err
	})
}

func (s *Service) NextQuestion(w http.ResponseWriter, r *http.Request) {
	s.playerAction(w, r, s.app.NextQuestion)
}

func (s *Service) AbortGame(w http.ResponseWriter, r *http.Request) {
	s.playerAction(w, r, s.app.AbortGame)
}

// SubmitAnswer stamps the answer with the server clock on arrival.
func (s *Service) SubmitAnswer(w http.ResponseWriter, r *http.Request) {
	receivedAt := s.clock.Now()
	var req SubmitAnswerRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := s.app.SubmitAnswer(r.Context(), chi.URLParam(r, "code"), req.PlayerID, req.AnswerIndex, receivedAt); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Service) TransferHost(w http.ResponseWriter, r *http.Request) {
	var req TransferHostRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := s.app.TransferHost(r.Context(), chi.URLParam(r, "code"), req.PlayerID, req.NewHostID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) AddQuestion(w http.ResponseWriter, r *http.Request) {
	var req AddQuestionRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := s.app.AddRoomQuestion(r.Context(), chi.URLParam(r, "code"), req.PlayerID, req.Question); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// ListQuestions is the host's view of the room's custom questions.
func (s *Service) ListQuestions(w http.ResponseWriter, r *http.Request) {
	questions, err := s.app.ListRoomQuestions(r.Context(), chi.URLParam(r, "code"), r.URL.Query().Get("player_id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, questions)
}

func (s *Service) UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	var req AddQuestionRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	err := s.app.UpdateRoomQuestion(r.Context(), chi.URLParam(r, "code"), req.PlayerID, chi.URLParam(r, "qid"), req.Question)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	s.playerAction(w, r, func(ctx context.Context, code, playerID string) error {
		return s.app.DeleteRoomQuestion(ctx, code, playerID, chi.URLParam(r, "qid"))
	})
}

func (s *Service) CopyCategory(w http.ResponseWriter, r *http.Request) {
	var req CopyCategoryRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	n, err := s.app.CopyCategoryToRoom(r.Context(), chi.URLParam(r, "code"), req.PlayerID, req.CategoryID, req.Limit)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CopyCategoryResponse{Copied: n})
}

// GetState serves the resync snapshot for clients that lost their stream.
func (s *Service) GetState(w http.ResponseWriter, r *http.Request) {
	snap, err := s.app.Snapshot(r.Context(), chi.URLParam(r, "code"), r.URL.Query().Get("player_id"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}

func (s *Service) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := s.app.Leaderboard(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, board)
}

func (s *Service) playerAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, code, playerID string) error) {
	var req PlayerRequest
	if err := httputil.ReadJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	if err := action(r.Context(), chi.URLParam(r, "code"), req.PlayerID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func roomToView(room models.Room) RoomView {
	view := RoomView{
		Code:         room.Code,
		State:        room.State,
		HostID:       room.HostID,
		TimerSeconds: room.Config.TimerSeconds,
		MaxPlayers:   room.Config.MaxPlayers,
		CategoryID:   room.Config.Source.CategoryID,
		Players:      make([]events.PlayerInfo, len(room.Players)),
		CreatedAt:    room.CreatedAt,
		StartedAt:    room.StartedAt,
		EndedAt:      room.EndedAt,
	}
	for i, p := range room.Players {
		view.Players[i] = playerInfo(p, i, 0)
	}
	return view
}
