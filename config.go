package main

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rotisserie/eris"
)

// Config is the process configuration, read from TILEFALL_* variables.
type Config struct {
	Addr      string `env:"ADDR" envDefault:":8080"`
	DBPath    string `env:"DB_PATH" envDefault:"tilefall.db"`
	ClientDir string `env:"CLIENT_DIR" envDefault:""`
	PublicURL string `env:"PUBLIC_URL" envDefault:"http://localhost:8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogPretty bool   `env:"LOG_PRETTY" envDefault:"false"`

	Match MatchConfig `envPrefix:"MATCH_"`
}

// MatchConfig holds the tunables of one arena. Durations are in seconds to
// match the countdown values broadcast to clients.
type MatchConfig struct {
	LobbySeconds        float64 `env:"LOBBY_SECONDS" envDefault:"10"`
	VoteSeconds         float64 `env:"VOTE_SECONDS" envDefault:"10"`
	ResultSeconds       float64 `env:"RESULT_SECONDS" envDefault:"10"`
	MinReadyPlayers     int     `env:"MIN_READY_PLAYERS" envDefault:"2"`
	MaxPlayers          int     `env:"MAX_PLAYERS" envDefault:"12"`
	StartingHealth      int     `env:"STARTING_HEALTH" envDefault:"5"`
	RespawnSeconds      float64 `env:"RESPAWN_SECONDS" envDefault:"3"`
	FallReactionSeconds float64 `env:"FALL_REACTION_SECONDS" envDefault:"1.5"`
	TileSize            float64 `env:"TILE_SIZE" envDefault:"5"`
	AttackRange         int     `env:"ATTACK_RANGE" envDefault:"8"`
	PowerupMinSeconds   int     `env:"POWERUP_MIN_SECONDS" envDefault:"15"`
	PowerupMaxSeconds   int     `env:"POWERUP_MAX_SECONDS" envDefault:"45"`
	MaxInventory        int     `env:"MAX_INVENTORY" envDefault:"3"`
	TickRate            int     `env:"TICK_RATE" envDefault:"30"`
}

// LoadConfig parses the environment into a Config.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "TILEFALL_"}); err != nil {
		return Config{}, eris.Wrap(err, "parse env")
	}
	if err := cfg.Match.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultMatchConfig returns the tag defaults without consulting the
// process environment.
func DefaultMatchConfig() MatchConfig {
	var mc MatchConfig
	if err := env.ParseWithOptions(&mc, env.Options{Environment: map[string]string{}}); err != nil {
		panic("match config defaults: " + err.Error())
	}
	return mc
}

// TickDuration is the frame interval of the match loop.
func (mc MatchConfig) TickDuration() time.Duration {
	if mc.TickRate <= 0 {
		return time.Second / 30
	}
	return time.Second / time.Duration(mc.TickRate)
}

func (mc MatchConfig) validate() error {
	switch {
	case mc.MinReadyPlayers < 1:
		return eris.New("MATCH_MIN_READY_PLAYERS must be at least 1")
	case mc.StartingHealth < 1:
		return eris.New("MATCH_STARTING_HEALTH must be at least 1")
	case mc.TileSize <= 0:
		return eris.New("MATCH_TILE_SIZE must be positive")
	case mc.PowerupMinSeconds > mc.PowerupMaxSeconds:
		return eris.New("MATCH_POWERUP_MIN_SECONDS exceeds MATCH_POWERUP_MAX_SECONDS")
	}
	return nil
}
