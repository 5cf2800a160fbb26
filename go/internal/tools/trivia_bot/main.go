package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcdev12/trivia/go/internal/client"
	"github.com/mcdev12/trivia/go/internal/game/events"
	"github.com/mcdev12/trivia/go/internal/game/room"
	"github.com/mcdev12/trivia/go/internal/game/session"
	"github.com/mcdev12/trivia/go/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type options struct {
	server     string
	code       string
	category   string
	bots       int
	startAfter time.Duration
	maxDelay   time.Duration
	accuracy   float64
	timeout    time.Duration
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var opts options
	flag.StringVar(&opts.server, "server", "http://localhost:8080", "server base URL")
	flag.StringVar(&opts.code, "code", "", "room to join; empty creates a new room")
	flag.StringVar(&opts.category, "category", "", "category id for a new room")
	flag.IntVar(&opts.bots, "bots", 3, "number of bot players")
	flag.DurationVar(&opts.startAfter, "start-after", 3*time.Second, "delay before the host bot starts the game")
	flag.DurationVar(&opts.maxDelay, "max-delay", 4*time.Second, "longest a bot thinks before answering")
	flag.Float64Var(&opts.accuracy, "accuracy", 0.6, "chance a bot picks the first option")
	flag.DurationVar(&opts.timeout, "http-timeout", 10*time.Second, "timeout for REST calls")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("bot run failed")
	}
}

func run(ctx context.Context, opts options) error {
	api := client.NewAPI(opts.server)
	api.SetTimeout(opts.timeout)
	api.SetHeader("User-Agent", "trivia-bot")
	g, ctx := errgroup.WithContext(ctx)

	code := opts.code
	if code == "" {
		created, err := api.CreateRoom(ctx, room.CreateRoomRequest{
			HostNickname: "bot-host",
			Source:       models.QuestionSource{CategoryID: opts.category},
		})
		if err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		code = created.Code
		log.Info().Str("room_code", code).Msg("room created")

		host := newBot(opts, code, created.PlayerID, "bot-host")
		g.Go(func() error { return host.session.Run(ctx) })
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(opts.startAfter):
			}
			if err := api.StartGame(ctx, code, created.PlayerID); err != nil {
				return fmt.Errorf("start game: %w", err)
			}
			log.Info().Str("room_code", code).Msg("game started")
			return nil
		})
	}

	for i := range opts.bots {
		nickname := fmt.Sprintf("bot-%d", i+1)
		joined, err := api.JoinRoom(ctx, code, nickname)
		if err != nil {
			return fmt.Errorf("join %s: %w", nickname, err)
		}
		b := newBot(opts, joined.Code, joined.PlayerID, nickname)
		g.Go(func() error { return b.session.Run(ctx) })
	}

	return g.Wait()
}

type bot struct {
	nickname string
	opts     options
	session  *client.Session
	answered int
}

func newBot(opts options, code, playerID, nickname string) *bot {
	b := &bot{nickname: nickname, opts: opts, answered: -1}
	cfg := client.DefaultConfig(client.NewWebSocketTransport(opts.server, code, playerID))
	cfg.Handlers = client.Handlers{
		OnView:  b.onView,
		OnReply: b.onReply,
	}
	b.session = client.NewSession(cfg)
	return b
}

// onView answers each new question once after a random think time.
func (b *bot) onView(v client.View) {
	switch {
	case v.Phase == session.PhaseQuestionActive && v.OwnAnswer == nil && v.QuestionIndex != b.answered && v.Question != nil:
		b.answered = v.QuestionIndex
		choice := 0
		if rand.Float64() >= b.opts.accuracy {
			choice = rand.IntN(len(v.Question.Options))
		}
		delay := time.Duration(rand.Int64N(int64(b.opts.maxDelay) + 1))
		if remaining := v.TimeRemaining(time.Now()); delay >= remaining {
			delay = remaining / 2
		}
		time.AfterFunc(delay, func() {
			if err := b.session.SubmitAnswer(choice); err != nil {
				log.Warn().Err(err).Str("bot", b.nickname).Msg("submit failed")
			}
		})
	case v.Phase == session.PhaseGameOver && v.Summary != nil:
		for _, entry := range v.Summary.Leaderboard {
			if entry.Nickname == b.nickname {
				log.Info().Str("bot", b.nickname).Int("rank", entry.Rank).Int("score", entry.Score).Msg("game over")
			}
		}
		if err := b.session.Leave(); err != nil {
			log.Debug().Err(err).Str("bot", b.nickname).Msg("leave failed")
		}
	}
}

func (b *bot) onReply(env *events.Envelope) {
	payload, err := events.ParseEventPayload(env)
	if err != nil {
		return
	}
	switch p := payload.(type) {
	case *events.AnswerAcceptedPayload:
		log.Debug().Str("bot", b.nickname).Int("question", p.QuestionIndex).Int("answer", p.AnswerIndex).Msg("answer accepted")
	case *events.AnswerRejectedPayload:
		log.Info().Str("bot", b.nickname).Str("kind", p.Kind).Msg("answer rejected")
	case *events.ErrorPayload:
		log.Warn().Str("bot", b.nickname).Str("kind", p.Kind).Str("message", p.Message).Msg("command failed")
	}
}
