package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultMatchConfig(t *testing.T) {
	mc := DefaultMatchConfig()
	assert.Equal(t, 2, mc.MinReadyPlayers)
	assert.Equal(t, 5, mc.StartingHealth)
	assert.Equal(t, 3.0, mc.RespawnSeconds)
	assert.Equal(t, 1.5, mc.FallReactionSeconds)
	assert.Equal(t, 3, mc.MaxInventory)
	assert.Equal(t, time.Second/30, mc.TickDuration())
	assert.NoError(t, mc.validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("TILEFALL_ADDR", ":9999")
	t.Setenv("TILEFALL_LOG_PRETTY", "true")
	t.Setenv("TILEFALL_MATCH_LOBBY_SECONDS", "2.5")
	t.Setenv("TILEFALL_MATCH_MIN_READY_PLAYERS", "3")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Addr)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, 2.5, cfg.Match.LobbySeconds)
	assert.Equal(t, 3, cfg.Match.MinReadyPlayers)
	assert.Equal(t, 10.0, cfg.Match.VoteSeconds)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("TILEFALL_MATCH_STARTING_HEALTH", "0")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestLoadConfigRejectsInvertedPowerupWindow(t *testing.T) {
	t.Setenv("TILEFALL_MATCH_POWERUP_MIN_SECONDS", "50")
	t.Setenv("TILEFALL_MATCH_POWERUP_MAX_SECONDS", "10")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestTickDurationFallback(t *testing.T) {
	assert.Equal(t, time.Second/30, MatchConfig{}.TickDuration())
	assert.Equal(t, time.Second/60, MatchConfig{TickRate: 60}.TickDuration())
}
