package main

import (
	"sort"

	"github.com/rs/zerolog/log"
)

// GameState is where a player sits in the arena flow.
type GameState int

const (
	GameStateLobby GameState = iota
	GameStateVoting
	GameStatePlaying
)

func (s GameState) String() string {
	switch s {
	case GameStateLobby:
		return "lobby"
	case GameStateVoting:
		return "voting"
	case GameStatePlaying:
		return "playing"
	}
	return "unknown"
}

// PlayerState is the avatar state inside a match.
type PlayerState int

const (
	PlayerNone PlayerState = iota
	PlayerMoving
	PlayerRespawning
	PlayerDead
)

func (s PlayerState) String() string {
	switch s {
	case PlayerNone:
		return "none"
	case PlayerMoving:
		return "moving"
	case PlayerRespawning:
		return "respawning"
	case PlayerDead:
		return "dead"
	}
	return "unknown"
}

// EffectKind names a timed modifier on a player.
type EffectKind string

const (
	EffectSpeed         EffectKind = "speed"
	EffectSlowdown      EffectKind = "slowdown"
	EffectDizzy         EffectKind = "dizzy"
	EffectDisableAttack EffectKind = "disable_attack"
	EffectShield        EffectKind = "shield"
	EffectInvincibility EffectKind = "invincibility"
	EffectAttackRange   EffectKind = "attack_range"
)

// playerPalette hands out colours by join order.
var playerPalette = []Color{
	{R: 1, G: 0.18, B: 0},
	{R: 0.07, G: 0.12, B: 0.89},
	{R: 0.459, G: 1, B: 0.2},
	{R: 0.9, G: 0.9, B: 0.1},
	{R: 0.9, G: 0.1, B: 0.9},
	{R: 0.1, G: 0.9, B: 0.9},
	{R: 0.9, G: 0.5, B: 0.1},
	{R: 0.5, G: 0, B: 1},
	{R: 1, G: 1, B: 1},
	{R: 0.5, G: 0.5, B: 0.5},
	{R: 0.73, G: 0.32, B: 0},
	{R: 0.2, G: 0.8, B: 0.4},
}

// GamePlayer is one connected participant of an arena.
type GamePlayer struct {
	ID          string
	Name        string
	Color       Color
	Health      int
	Ready       bool
	GameState   GameState
	State       PlayerState
	Inventory   []PowerupKind
	Kills       int
	AttackRange int
	Position    Vec3
	Facing      Vec3
	Effects     map[EffectKind]float64 // magnitude per active effect
	AuthID      int64                  // account id, 0 for guests

	joinSeq int
}

// HasEffect reports whether kind is currently active
func (p *GamePlayer) HasEffect(kind EffectKind) bool {
	_, ok := p.Effects[kind]
	return ok
}

// EffectiveRange is the base attack range plus any active bonus.
func (p *GamePlayer) EffectiveRange() int {
	return p.AttackRange + int(p.Effects[EffectAttackRange])
}

// Cell returns the grid cell under the player's cached position.
func (p *GamePlayer) Cell(tileSize float64) GridPosition {
	return WorldToTile(p.Position, tileSize)
}

// CanAct reports whether the player may attack, parry or use powerups.
func (p *GamePlayer) CanAct() bool {
	return p.GameState == GameStatePlaying && p.State == PlayerMoving
}

// PushPowerup appends kind to the inventory. When the inventory is full the
// oldest entry is dropped. Returns false only for a zero cap.
func (p *GamePlayer) PushPowerup(kind PowerupKind, limit int) bool {
	if limit <= 0 {
		return false
	}
	if len(p.Inventory) >= limit {
		p.Inventory = p.Inventory[1:]
	}
	p.Inventory = append(p.Inventory, kind)
	return true
}

// PeekPowerup returns the oldest inventory entry without removing it.
func (p *GamePlayer) PeekPowerup() (PowerupKind, bool) {
	if len(p.Inventory) == 0 {
		return 0, false
	}
	return p.Inventory[0], true
}

// PopPowerup removes the oldest inventory entry
func (p *GamePlayer) PopPowerup() {
	if len(p.Inventory) > 0 {
		p.Inventory = p.Inventory[1:]
	}
}

// resetForLobby returns the player to the waiting room.
func (p *GamePlayer) resetForLobby() {
	p.Ready = false
	p.GameState = GameStateLobby
	p.State = PlayerNone
	p.Health = 0
	p.Inventory = nil
	p.Effects = make(map[EffectKind]float64)
}

// ReadyEntry is one row of the ready list broadcast
type ReadyEntry struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Ready bool   `json:"ready"`
}

// HealthEntry is one row of the health list broadcast
type HealthEntry struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Health int    `json:"health"`
	State  string `json:"state"`
	Color  Color  `json:"color"`
}

// Registry tracks the players of one arena. It is owned by the arena's
// goroutine and does no locking of its own.
type Registry struct {
	players     map[string]*GamePlayer
	seq         int
	attackRange int
}

// NewRegistry creates an empty registry handing out attackRange as the
// default attack range.
func NewRegistry(attackRange int) *Registry {
	return &Registry{
		players:     make(map[string]*GamePlayer),
		attackRange: attackRange,
	}
}

// Join registers a player. Joining twice returns the existing record.
func (r *Registry) Join(id, name string) *GamePlayer {
	if p, ok := r.players[id]; ok {
		return p
	}
	p := &GamePlayer{
		ID:          id,
		Name:        name,
		Color:       playerPalette[r.seq%len(playerPalette)],
		GameState:   GameStateLobby,
		State:       PlayerNone,
		AttackRange: r.attackRange,
		Effects:     make(map[EffectKind]float64),
		joinSeq:     r.seq,
	}
	r.seq++
	r.players[id] = p
	return p
}

// Leave removes a player. Unknown ids are logged and ignored.
func (r *Registry) Leave(id string) (*GamePlayer, bool) {
	p, ok := r.players[id]
	if !ok {
		log.Warn().Str("player", id).Msg("leave for unknown player")
		return nil, false
	}
	delete(r.players, id)
	return p, true
}

// Get returns the player with id
func (r *Registry) Get(id string) (*GamePlayer, bool) {
	p, ok := r.players[id]
	return p, ok
}

// Len returns the number of registered players
func (r *Registry) Len() int { return len(r.players) }

// ToggleReady flips the ready flag, but only while the arena is in its
// lobby. In any other phase the current value is returned unchanged.
func (r *Registry) ToggleReady(id string, phase Phase) (bool, error) {
	p, ok := r.players[id]
	if !ok {
		return false, ErrPlayerNotFound
	}
	if phase != PhaseLobby {
		return p.Ready, nil
	}
	p.Ready = !p.Ready
	return p.Ready, nil
}

// All returns every player in join order.
func (r *Registry) All() []*GamePlayer {
	out := make([]*GamePlayer, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].joinSeq < out[j].joinSeq })
	return out
}

// Ready returns the players that toggled ready, in join order.
func (r *Registry) Ready() []*GamePlayer {
	var out []*GamePlayer
	for _, p := range r.All() {
		if p.Ready {
			out = append(out, p)
		}
	}
	return out
}

// Participants returns the players taking part in the running match.
func (r *Registry) Participants() []*GamePlayer {
	var out []*GamePlayer
	for _, p := range r.All() {
		if p.GameState == GameStatePlaying {
			out = append(out, p)
		}
	}
	return out
}

// Alive returns participants that are not dead.
func (r *Registry) Alive() []*GamePlayer {
	var out []*GamePlayer
	for _, p := range r.Participants() {
		if p.State != PlayerDead {
			out = append(out, p)
		}
	}
	return out
}

// ReadyList builds the ready list payload
func (r *Registry) ReadyList() []ReadyEntry {
	all := r.All()
	out := make([]ReadyEntry, 0, len(all))
	for _, p := range all {
		out = append(out, ReadyEntry{ID: p.ID, Name: p.Name, Ready: p.Ready})
	}
	return out
}

// HealthList builds the health list payload for match participants
func (r *Registry) HealthList() []HealthEntry {
	parts := r.Participants()
	out := make([]HealthEntry, 0, len(parts))
	for _, p := range parts {
		out = append(out, HealthEntry{ID: p.ID, Name: p.Name, Health: p.Health, State: p.State.String(), Color: p.Color})
	}
	return out
}
