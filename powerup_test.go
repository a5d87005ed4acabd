package main

import (
	"math/rand/v2"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func powerupCtx(t *testing.T, others ...*GamePlayer) PowerupContext {
	t.Helper()
	g, _ := newTestGrid(t, 10, 10, 1)
	return PowerupContext{
		Grid:           g,
		User:           &GamePlayer{ID: "u", Health: 5, Effects: map[EffectKind]float64{}},
		Others:         others,
		Origin:         GridPosition{5, 5},
		Direction:      GridPosition{1, 0},
		StartingHealth: 5,
		Rng:            rand.New(rand.NewPCG(1, 2)),
	}
}

func TestPowerupKindNames(t *testing.T) {
	seen := map[string]bool{}
	for _, k := range AllPowerups {
		name := k.String()
		assert.NotContains(t, name, "PowerupKind", "kind %d has no name", int(k))
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
	assert.Len(t, AllPowerups, 14)

	rng := rand.New(rand.NewPCG(3, 4))
	for i := 0; i < 50; i++ {
		assert.Contains(t, AllPowerups, RandomPowerup(rng))
	}
}

func TestResolveFourLine(t *testing.T) {
	ctx := powerupCtx(t)
	eff, err := ResolvePowerup(PowerupFourLine, ctx)
	require.NoError(t, err)
	assert.Equal(t, Effect{}, eff)
	assert.Equal(t, 4, ctx.Grid.AttacksIssued())
	// diagonals from (5,5) on a 10x10 grid: 4 + 4 + 4 + 5
	assert.Equal(t, 17, countState(ctx.Grid, TileFalling))
	assert.Equal(t, TileFalling, ctx.Grid.State(GridPosition{0, 0}))
	assert.Equal(t, TileActive, ctx.Grid.State(GridPosition{6, 5}))
}

func TestResolveShotgun(t *testing.T) {
	ctx := powerupCtx(t)
	_, err := ResolvePowerup(PowerupShotgun, ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, ctx.Grid.AttacksIssued())
	assert.Equal(t, 12, countState(ctx.Grid, TileFalling))
	for _, y := range []int{4, 5, 6} {
		assert.Equal(t, TileFalling, ctx.Grid.State(GridPosition{6, y}))
		assert.Equal(t, TileFalling, ctx.Grid.State(GridPosition{9, y}))
	}

	ctx = powerupCtx(t)
	ctx.Direction = GridPosition{1, 1}
	_, err = ResolvePowerup(PowerupShotgun, ctx)
	assert.True(t, eris.Is(err, ErrInvalidDirection))
	assert.Equal(t, 0, countState(ctx.Grid, TileFalling))

	ctx.Direction = GridPosition{}
	_, err = ResolvePowerup(PowerupShotgun, ctx)
	assert.True(t, eris.Is(err, ErrInvalidDirection))
}

func TestResolveEarthquake(t *testing.T) {
	ctx := powerupCtx(t)
	_, err := ResolvePowerup(PowerupEarthquake, ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, countState(ctx.Grid, TileFalling))
}

func TestResolveIncreaseStageSize(t *testing.T) {
	ctx := powerupCtx(t)
	_, err := ResolvePowerup(PowerupIncreaseStageSize, ctx)
	assert.True(t, eris.Is(err, ErrNoTarget))

	_, err = ctx.Grid.MinimizeMap()
	require.NoError(t, err)
	// 36 ring tiles, the last settles after about 8s
	advanceGrid(ctx.Grid, 10)
	require.Equal(t, 64, ctx.Grid.ActiveCount())

	_, err = ResolvePowerup(PowerupIncreaseStageSize, ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, ctx.Grid.ActiveCount())
}

func TestResolveSelfEffects(t *testing.T) {
	tests := []struct {
		kind PowerupKind
		want EffectKind
	}{
		{PowerupSpeed, EffectSpeed},
		{PowerupShield, EffectShield},
		{PowerupInvincibility, EffectInvincibility},
		{PowerupIncreaseAttackRange, EffectAttackRange},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			eff, err := ResolvePowerup(tt.kind, powerupCtx(t))
			require.NoError(t, err)
			assert.Equal(t, tt.want, eff.Kind)
			assert.Equal(t, []string{"u"}, eff.Targets)
			assert.Positive(t, eff.Duration)
		})
	}
}

func TestResolveOthersEffects(t *testing.T) {
	for _, kind := range []PowerupKind{PowerupSlowdown, PowerupDizzy, PowerupDisableAttack} {
		t.Run(kind.String(), func(t *testing.T) {
			_, err := ResolvePowerup(kind, powerupCtx(t))
			assert.True(t, eris.Is(err, ErrNoTarget))

			eff, err := ResolvePowerup(kind, powerupCtx(t, &GamePlayer{ID: "x"}, &GamePlayer{ID: "y"}))
			require.NoError(t, err)
			assert.Equal(t, []string{"x", "y"}, eff.Targets)
			assert.NotContains(t, eff.Targets, "u")
		})
	}
}

func TestResolveHealth(t *testing.T) {
	ctx := powerupCtx(t)
	_, err := ResolvePowerup(PowerupHealth, ctx)
	assert.True(t, eris.Is(err, ErrNoTarget), "full health cannot be topped up")

	ctx.User.Health = 3
	eff, err := ResolvePowerup(PowerupHealth, ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, eff.Heal)
	assert.Equal(t, []string{"u"}, eff.Targets)
}

func TestResolveRelocation(t *testing.T) {
	eff, err := ResolvePowerup(PowerupTeleport, powerupCtx(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"u"}, eff.Relocate)

	_, err = ResolvePowerup(PowerupRespawnRandomPlayer, powerupCtx(t))
	assert.True(t, eris.Is(err, ErrNoTarget))

	eff, err = ResolvePowerup(PowerupRespawnRandomPlayer, powerupCtx(t, &GamePlayer{ID: "x"}, &GamePlayer{ID: "y"}))
	require.NoError(t, err)
	require.Len(t, eff.Relocate, 1)
	assert.Contains(t, []string{"x", "y"}, eff.Relocate[0])
}

func TestResolveUnknownKind(t *testing.T) {
	_, err := ResolvePowerup(PowerupKind(99), powerupCtx(t))
	assert.True(t, eris.Is(err, ErrUnknownPowerup))

	ctx := powerupCtx(t)
	ctx.User = nil
	_, err = ResolvePowerup(PowerupSpeed, ctx)
	assert.True(t, eris.Is(err, ErrPlayerNotFound))
}

func TestResolveGridPowerupsAfterReset(t *testing.T) {
	ctx := powerupCtx(t)
	ctx.Grid.Reset()
	for _, kind := range []PowerupKind{PowerupFourLine, PowerupShotgun, PowerupEarthquake, PowerupIncreaseStageSize} {
		_, err := ResolvePowerup(kind, ctx)
		assert.True(t, eris.Is(err, ErrGridNotInitialized), kind.String())
	}
}
