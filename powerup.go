package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/rotisserie/eris"
)

// PowerupKind is the closed set of collectible powerups.
type PowerupKind int

const (
	PowerupFourLine PowerupKind = iota + 1
	PowerupShotgun
	PowerupSpeed
	PowerupSlowdown
	PowerupTeleport
	PowerupHealth
	PowerupShield
	PowerupDizzy
	PowerupInvincibility
	PowerupEarthquake
	PowerupRespawnRandomPlayer
	PowerupIncreaseStageSize
	PowerupDisableAttack
	PowerupIncreaseAttackRange
)

// AllPowerups lists every kind in declaration order.
var AllPowerups = []PowerupKind{
	PowerupFourLine, PowerupShotgun, PowerupSpeed, PowerupSlowdown,
	PowerupTeleport, PowerupHealth, PowerupShield, PowerupDizzy,
	PowerupInvincibility, PowerupEarthquake, PowerupRespawnRandomPlayer,
	PowerupIncreaseStageSize, PowerupDisableAttack, PowerupIncreaseAttackRange,
}

func (k PowerupKind) String() string {
	switch k {
	case PowerupFourLine:
		return "four_line"
	case PowerupShotgun:
		return "shotgun"
	case PowerupSpeed:
		return "speed"
	case PowerupSlowdown:
		return "slowdown"
	case PowerupTeleport:
		return "teleport"
	case PowerupHealth:
		return "health"
	case PowerupShield:
		return "shield"
	case PowerupDizzy:
		return "dizzy"
	case PowerupInvincibility:
		return "invincibility"
	case PowerupEarthquake:
		return "earthquake"
	case PowerupRespawnRandomPlayer:
		return "respawn_random_player"
	case PowerupIncreaseStageSize:
		return "increase_stage_size"
	case PowerupDisableAttack:
		return "disable_attack"
	case PowerupIncreaseAttackRange:
		return "increase_attack_range"
	}
	return fmt.Sprintf("PowerupKind(%d)", int(k))
}

// RandomPowerup draws a kind uniformly
func RandomPowerup(rng *rand.Rand) PowerupKind {
	return AllPowerups[rng.IntN(len(AllPowerups))]
}

// Effect tuning.
const (
	speedMultiplier    = 1.5
	speedDuration      = 10.0
	slowdownMultiplier = 0.5
	slowdownDuration   = 8.0
	dizzyDuration      = 8.0
	disableDuration    = 5.0
	shieldDuration     = 15.0
	invincibleDuration = 5.0
	rangeBonus         = 4
	rangeDuration      = 15.0
)

// PowerupContext is what a powerup may act upon.
type PowerupContext struct {
	Grid           *Grid
	User           *GamePlayer
	Others         []*GamePlayer // other participants that are moving
	Origin         GridPosition
	Direction      GridPosition
	StartingHealth int
	Rng            *rand.Rand
}

// Effect describes the player-side outcome of a resolved powerup. Grid-side
// outcomes have already happened by the time it is returned.
type Effect struct {
	Kind      EffectKind `json:"kind,omitempty"`
	Targets   []string   `json:"targets,omitempty"`
	Magnitude float64    `json:"magnitude,omitempty"`
	Duration  float64    `json:"duration,omitempty"`
	Heal      int        `json:"heal,omitempty"`
	Relocate  []string   `json:"relocate,omitempty"`
}

// ResolvePowerup carries out kind on behalf of ctx.User. An error means
// nothing happened and the powerup should stay in the inventory.
func ResolvePowerup(kind PowerupKind, ctx PowerupContext) (Effect, error) {
	if ctx.User == nil {
		return Effect{}, eris.Wrap(ErrPlayerNotFound, "resolve powerup")
	}
	self := []string{ctx.User.ID}

	switch kind {
	case PowerupFourLine:
		if ctx.Grid == nil {
			return Effect{}, eris.Wrap(ErrGridNotInitialized, kind.String())
		}
		for _, d := range []GridPosition{{X: 1, Y: 1}, {X: -1, Y: 1}, {X: 1, Y: -1}, {X: -1, Y: -1}} {
			if _, err := ctx.Grid.LineAttack(ctx.Origin, d, 0, ctx.User.Color, ctx.User.ID); err != nil {
				return Effect{}, err
			}
		}
		return Effect{}, nil

	case PowerupShotgun:
		if ctx.Grid == nil {
			return Effect{}, eris.Wrap(ErrGridNotInitialized, kind.String())
		}
		d := ctx.Direction
		if d.IsZero() || (d.X != 0 && d.Y != 0) {
			return Effect{}, eris.Wrapf(ErrInvalidDirection, "shotgun needs a cardinal direction, got %+v", d)
		}
		side := GridPosition{X: d.Y, Y: d.X}
		for i := -1; i <= 1; i++ {
			origin := ctx.Origin.Add(GridPosition{X: side.X * i, Y: side.Y * i})
			if _, err := ctx.Grid.LineAttack(origin, d, 0, ctx.User.Color, ctx.User.ID); err != nil {
				return Effect{}, err
			}
		}
		return Effect{}, nil

	case PowerupEarthquake:
		if ctx.Grid == nil {
			return Effect{}, eris.Wrap(ErrGridNotInitialized, kind.String())
		}
		if _, err := ctx.Grid.MakeRandomTileFall(); err != nil {
			return Effect{}, err
		}
		return Effect{}, nil

	case PowerupIncreaseStageSize:
		if ctx.Grid == nil {
			return Effect{}, eris.Wrap(ErrGridNotInitialized, kind.String())
		}
		ok, err := ctx.Grid.ExpandMap()
		if err != nil {
			return Effect{}, err
		}
		if !ok {
			return Effect{}, eris.Wrap(ErrNoTarget, "no collapsed ring to restore")
		}
		return Effect{}, nil

	case PowerupSpeed:
		return Effect{Kind: EffectSpeed, Targets: self, Magnitude: speedMultiplier, Duration: speedDuration}, nil

	case PowerupSlowdown:
		return othersEffect(ctx, EffectSlowdown, slowdownMultiplier, slowdownDuration)

	case PowerupDizzy:
		return othersEffect(ctx, EffectDizzy, 1, dizzyDuration)

	case PowerupDisableAttack:
		return othersEffect(ctx, EffectDisableAttack, 1, disableDuration)

	case PowerupShield:
		return Effect{Kind: EffectShield, Targets: self, Magnitude: 1, Duration: shieldDuration}, nil

	case PowerupInvincibility:
		return Effect{Kind: EffectInvincibility, Targets: self, Magnitude: 1, Duration: invincibleDuration}, nil

	case PowerupIncreaseAttackRange:
		return Effect{Kind: EffectAttackRange, Targets: self, Magnitude: rangeBonus, Duration: rangeDuration}, nil

	case PowerupHealth:
		if ctx.User.Health >= ctx.StartingHealth {
			return Effect{}, eris.Wrap(ErrNoTarget, "health already full")
		}
		return Effect{Targets: self, Heal: 1}, nil

	case PowerupTeleport:
		return Effect{Relocate: self}, nil

	case PowerupRespawnRandomPlayer:
		if len(ctx.Others) == 0 {
			return Effect{}, eris.Wrap(ErrNoTarget, "no other moving player")
		}
		victim := ctx.Others[ctx.Rng.IntN(len(ctx.Others))]
		return Effect{Relocate: []string{victim.ID}}, nil
	}
	return Effect{}, eris.Wrapf(ErrUnknownPowerup, "kind %d", int(kind))
}

func othersEffect(ctx PowerupContext, kind EffectKind, magnitude, duration float64) (Effect, error) {
	if len(ctx.Others) == 0 {
		return Effect{}, eris.Wrapf(ErrNoTarget, "%s has nobody to affect", kind)
	}
	ids := make([]string, 0, len(ctx.Others))
	for _, p := range ctx.Others {
		ids = append(ids, p.ID)
	}
	return Effect{Kind: kind, Targets: ids, Magnitude: magnitude, Duration: duration}, nil
}
