package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, TransportLocal, cfg.Transport)
	assert.Equal(t, ContentMemory, cfg.ContentStore)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, DefaultGameRules(), cfg.Game)
}

func TestLoadRejectsUnknownTransport(t *testing.T) {
	t.Setenv("TRANSPORT", "carrier-pigeon")
	_, err := Load()
	assert.ErrorContains(t, err, "unknown TRANSPORT")
}

func TestLoadGameRulesOverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_timer_seconds: 90\nresults_interval: 3s\nlobby_timeout: 5m\n"), 0o600))

	t.Setenv("GAME_RULES_FILE", path)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90, cfg.Game.MaxTimerSeconds)
	assert.Equal(t, 3*time.Second, cfg.Game.ResultsInterval)
	assert.Equal(t, DefaultGameRules().MinTimerSeconds, cfg.Game.MinTimerSeconds)

	opts := cfg.Game.RoomOptions()
	assert.Equal(t, 90, opts.MaxTimerSeconds)
	assert.Equal(t, 15*time.Second, opts.Rules.DefaultTimer)
	assert.Equal(t, 3*time.Second, opts.Rules.ResultsInterval)
	assert.Equal(t, 5*time.Minute, opts.LobbyTimeout)
}

func TestGameRulesValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*GameRules)
	}{
		{"default outside bounds", func(g *GameRules) { g.DefaultTimerSeconds = 120 }},
		{"inverted bounds", func(g *GameRules) { g.MinTimerSeconds = 30; g.MaxTimerSeconds = 10 }},
		{"short code", func(g *GameRules) { g.CodeLength = 2 }},
		{"max players over limit", func(g *GameRules) { g.DefaultMaxPlayers = 500 }},
		{"negative grace", func(g *GameRules) { g.GracePeriod = -time.Second }},
		{"negative lobby timeout", func(g *GameRules) { g.LobbyTimeout = -time.Minute }},
	}
	require.NoError(t, DefaultGameRules().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := DefaultGameRules()
			tt.modify(&rules)
			assert.Error(t, rules.Validate())
		})
	}
}
