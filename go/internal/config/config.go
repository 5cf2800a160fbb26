package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/mcdev12/trivia/go/internal/dbconfig"
	"github.com/mcdev12/trivia/go/internal/game/room"
	"github.com/mcdev12/trivia/go/internal/game/session"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	TransportLocal = "local"
	TransportNATS  = "nats"
	TransportRedis = "redis"

	ContentMemory   = "memory"
	ContentPostgres = "postgres"
)

// Config is the server configuration.
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`

	// Transport selects how room events reach gateways: in-process, NATS
	// JetStream or Redis pub/sub.
	Transport   string `env:"TRANSPORT" envDefault:"local"`
	NATSURL     string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	RedisURL    string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	RedisPrefix string `env:"REDIS_PREFIX" envDefault:"trivia"`
	InstanceID  string `env:"INSTANCE_ID"`

	ContentStore string `env:"CONTENT_STORE" envDefault:"memory"`
	SeedFile     string `env:"SEED_FILE"`
	RulesFile    string `env:"GAME_RULES_FILE"`

	BroadcastWorkers int           `env:"BROADCAST_WORKERS" envDefault:"4"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`

	Database dbconfig.Config `env:"-"`
	Game     GameRules       `env:"-"`
}

// GameRules are the tunable game constants, optionally read from YAML.
type GameRules struct {
	CodeLength          int           `yaml:"code_length"`
	MinTimerSeconds     int           `yaml:"min_timer_seconds"`
	MaxTimerSeconds     int           `yaml:"max_timer_seconds"`
	DefaultTimerSeconds int           `yaml:"default_timer_seconds"`
	MaxNicknameLength   int           `yaml:"max_nickname_length"`
	DefaultMaxPlayers   int           `yaml:"default_max_players"`
	MaxPlayersLimit     int           `yaml:"max_players_limit"`
	GracePeriod         time.Duration `yaml:"grace_period"`
	LobbyTimeout        time.Duration `yaml:"lobby_timeout"`
	ResultsInterval     time.Duration `yaml:"results_interval"`
	BasePoints          int           `yaml:"base_points"`
	StreakBonus         int           `yaml:"streak_bonus"`
	MaxStreakSteps      int           `yaml:"max_streak_steps"`
}

func DefaultGameRules() GameRules {
	opts := room.DefaultOptions()
	return GameRules{
		CodeLength:          opts.CodeLength,
		MinTimerSeconds:     opts.MinTimerSeconds,
		MaxTimerSeconds:     opts.MaxTimerSeconds,
		DefaultTimerSeconds: opts.DefaultTimerSeconds,
		MaxNicknameLength:   opts.MaxNicknameLength,
		DefaultMaxPlayers:   opts.DefaultMaxPlayers,
		MaxPlayersLimit:     opts.MaxPlayersLimit,
		GracePeriod:         opts.GracePeriod,
		LobbyTimeout:        opts.LobbyTimeout,
		ResultsInterval:     opts.Rules.ResultsInterval,
		BasePoints:          opts.Rules.BasePoints,
		StreakBonus:         opts.Rules.StreakBonus,
		MaxStreakSteps:      opts.Rules.MaxStreakSteps,
	}
}

// LoadGameRules overlays the YAML file at path on the defaults.
func LoadGameRules(path string) (GameRules, error) {
	rules := DefaultGameRules()
	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("failed to read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("failed to parse rules file: %w", err)
	}
	return rules, nil
}

func (g GameRules) Validate() error {
	var errs []error
	if g.CodeLength < 4 {
		errs = append(errs, errors.New("code_length must be at least 4"))
	}
	if g.MinTimerSeconds < 1 || g.MaxTimerSeconds < g.MinTimerSeconds {
		errs = append(errs, errors.New("timer bounds must satisfy 1 <= min <= max"))
	}
	if g.DefaultTimerSeconds < g.MinTimerSeconds || g.DefaultTimerSeconds > g.MaxTimerSeconds {
		errs = append(errs, errors.New("default_timer_seconds must be within the timer bounds"))
	}
	if g.MaxNicknameLength < 1 {
		errs = append(errs, errors.New("max_nickname_length must be positive"))
	}
	if g.DefaultMaxPlayers < 2 || g.DefaultMaxPlayers > g.MaxPlayersLimit {
		errs = append(errs, errors.New("default_max_players must be between 2 and max_players_limit"))
	}
	if g.GracePeriod < 0 || g.LobbyTimeout < 0 || g.ResultsInterval < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	if g.BasePoints < 2 || g.StreakBonus < 0 || g.MaxStreakSteps < 0 {
		errs = append(errs, errors.New("scoring values out of range"))
	}
	return errors.Join(errs...)
}

// RoomOptions converts the rules into store options.
func (g GameRules) RoomOptions() room.Options {
	return room.Options{
		CodeLength:          g.CodeLength,
		MinTimerSeconds:     g.MinTimerSeconds,
		MaxTimerSeconds:     g.MaxTimerSeconds,
		DefaultTimerSeconds: g.DefaultTimerSeconds,
		MaxNicknameLength:   g.MaxNicknameLength,
		DefaultMaxPlayers:   g.DefaultMaxPlayers,
		MaxPlayersLimit:     g.MaxPlayersLimit,
		GracePeriod:         g.GracePeriod,
		LobbyTimeout:        g.LobbyTimeout,
		Rules: session.Rules{
			DefaultTimer:    time.Duration(g.DefaultTimerSeconds) * time.Second,
			ResultsInterval: g.ResultsInterval,
			BasePoints:      g.BasePoints,
			StreakBonus:     g.StreakBonus,
			MaxStreakSteps:  g.MaxStreakSteps,
		},
	}
}

// Load reads .env (if present), the environment and the optional rules
// file, then validates the result.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	cfg.Game = DefaultGameRules()
	if cfg.RulesFile != "" {
		if cfg.Game, err = LoadGameRules(cfg.RulesFile); err != nil {
			return nil, err
		}
	}

	if cfg.ContentStore == ContentPostgres {
		if cfg.Database, err = dbconfig.NewConfigFromEnv(); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	switch c.Transport {
	case TransportLocal, TransportNATS, TransportRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown TRANSPORT %q", c.Transport))
	}
	switch c.ContentStore {
	case ContentMemory, ContentPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown CONTENT_STORE %q", c.ContentStore))
	}
	if c.BroadcastWorkers < 0 {
		errs = append(errs, errors.New("BROADCAST_WORKERS must not be negative"))
	}
	if err := c.Game.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("game rules: %w", err))
	}
	return errors.Join(errs...)
}
