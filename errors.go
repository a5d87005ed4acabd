package main

import "github.com/rotisserie/eris"

// Rejection reasons for intents and grid operations. Handlers wrap these with
// context; callers compare with eris.Is.
var (
	ErrWrongPhase         = eris.New("intent not allowed in current phase")
	ErrPlayerState        = eris.New("player is not in a state that allows this intent")
	ErrPlayerNotFound     = eris.New("player not found")
	ErrGridNotInitialized = eris.New("grid is not initialized")
	ErrInvalidGridSize    = eris.New("grid dimensions must be at least 1x1")
	ErrNoPowerup          = eris.New("powerup inventory is empty")
	ErrUnknownPowerup     = eris.New("unknown powerup kind")
	ErrInvalidDirection   = eris.New("direction not supported")
	ErrAttackDisabled     = eris.New("attacks are disabled for this player")
	ErrNoTarget           = eris.New("no valid target")
	ErrNothingToParry     = eris.New("no falling tile to parry")
	ErrSessionFull        = eris.New("session full")
)
