package main

import (
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryJoin(t *testing.T) {
	r := NewRegistry(8)
	p := r.Join("a", "Alice")
	assert.Equal(t, "Alice", p.Name)
	assert.Equal(t, GameStateLobby, p.GameState)
	assert.Equal(t, PlayerNone, p.State)
	assert.Equal(t, 8, p.AttackRange)
	assert.Equal(t, playerPalette[0], p.Color)

	again := r.Join("a", "Other")
	assert.Same(t, p, again, "joining twice keeps the first record")
	assert.Equal(t, 1, r.Len())

	b := r.Join("b", "Bob")
	assert.Equal(t, playerPalette[1], b.Color)
}

func TestRegistryPaletteWraps(t *testing.T) {
	r := NewRegistry(8)
	var last *GamePlayer
	for i := 0; i <= len(playerPalette); i++ {
		last = r.Join(GenerateID(4), "P")
	}
	assert.Equal(t, playerPalette[0], last.Color)
}

func TestRegistryLeave(t *testing.T) {
	r := NewRegistry(8)
	r.Join("a", "Alice")

	p, ok := r.Leave("a")
	require.True(t, ok)
	assert.Equal(t, "a", p.ID)
	assert.Equal(t, 0, r.Len())

	_, ok = r.Leave("a")
	assert.False(t, ok)
}

func TestRegistryToggleReadyOnlyInLobby(t *testing.T) {
	r := NewRegistry(8)
	r.Join("a", "Alice")

	ready, err := r.ToggleReady("a", PhaseLobby)
	require.NoError(t, err)
	assert.True(t, ready)

	ready, err = r.ToggleReady("a", PhaseVotingMap)
	require.NoError(t, err)
	assert.True(t, ready, "outside the lobby the flag is reported unchanged")

	ready, err = r.ToggleReady("a", PhaseLobby)
	require.NoError(t, err)
	assert.False(t, ready)

	_, err = r.ToggleReady("ghost", PhaseLobby)
	assert.True(t, eris.Is(err, ErrPlayerNotFound))
}

func TestRegistryFilters(t *testing.T) {
	r := NewRegistry(8)
	a := r.Join("a", "Alice")
	b := r.Join("b", "Bob")
	c := r.Join("c", "Carol")
	a.Ready, c.Ready = true, true
	a.GameState, b.GameState = GameStatePlaying, GameStatePlaying
	a.State, b.State = PlayerMoving, PlayerDead
	a.Health, b.Health = 3, 0

	assert.Equal(t, []*GamePlayer{a, c}, r.Ready())
	assert.Equal(t, []*GamePlayer{a, b}, r.Participants())
	assert.Equal(t, []*GamePlayer{a}, r.Alive())
	assert.Equal(t, []*GamePlayer{a, b, c}, r.All())

	assert.Equal(t, []ReadyEntry{
		{ID: "a", Name: "Alice", Ready: true},
		{ID: "b", Name: "Bob"},
		{ID: "c", Name: "Carol", Ready: true},
	}, r.ReadyList())

	hl := r.HealthList()
	require.Len(t, hl, 2)
	assert.Equal(t, HealthEntry{ID: "a", Name: "Alice", Health: 3, State: "moving", Color: a.Color}, hl[0])
	assert.Equal(t, "dead", hl[1].State)
}

func TestPowerupInventoryDropsOldest(t *testing.T) {
	p := &GamePlayer{}
	require.True(t, p.PushPowerup(PowerupSpeed, 3))
	p.PushPowerup(PowerupShield, 3)
	p.PushPowerup(PowerupDizzy, 3)
	p.PushPowerup(PowerupTeleport, 3)
	assert.Equal(t, []PowerupKind{PowerupShield, PowerupDizzy, PowerupTeleport}, p.Inventory)

	kind, ok := p.PeekPowerup()
	require.True(t, ok)
	assert.Equal(t, PowerupShield, kind)
	assert.Len(t, p.Inventory, 3, "peek does not consume")

	p.PopPowerup()
	assert.Equal(t, []PowerupKind{PowerupDizzy, PowerupTeleport}, p.Inventory)

	assert.False(t, p.PushPowerup(PowerupSpeed, 0))
	empty := &GamePlayer{}
	_, ok = empty.PeekPowerup()
	assert.False(t, ok)
	empty.PopPowerup()
}

func TestPlayerEffectsAndActing(t *testing.T) {
	p := &GamePlayer{AttackRange: 8, Effects: map[EffectKind]float64{}}
	assert.False(t, p.CanAct())

	p.GameState, p.State = GameStatePlaying, PlayerMoving
	assert.True(t, p.CanAct())
	p.State = PlayerRespawning
	assert.False(t, p.CanAct())

	assert.Equal(t, 8, p.EffectiveRange())
	p.Effects[EffectAttackRange] = 4
	assert.True(t, p.HasEffect(EffectAttackRange))
	assert.Equal(t, 12, p.EffectiveRange())

	p.Position = Vec3{X: 10, Z: 5}
	assert.Equal(t, GridPosition{X: 1, Y: 2}, p.Cell(5))
}

func TestResetForLobby(t *testing.T) {
	p := &GamePlayer{
		Ready:     true,
		GameState: GameStatePlaying,
		State:     PlayerDead,
		Health:    2,
		Inventory: []PowerupKind{PowerupSpeed},
		Effects:   map[EffectKind]float64{EffectShield: 1},
		Kills:     3,
	}
	p.resetForLobby()
	assert.False(t, p.Ready)
	assert.Equal(t, GameStateLobby, p.GameState)
	assert.Equal(t, PlayerNone, p.State)
	assert.Empty(t, p.Inventory)
	assert.Empty(t, p.Effects)
	assert.Equal(t, 3, p.Kills, "kills survive until the next match starts")
}
