package main

import (
	"fmt"
	"math/rand/v2"

	"github.com/rotisserie/eris"
)

// TileState is the lifecycle state of one floor tile.
type TileState int

const (
	TileActive TileState = iota
	TileFalling
	TileRemoved
	TileCollision
)

func (s TileState) String() string {
	switch s {
	case TileActive:
		return "active"
	case TileFalling:
		return "falling"
	case TileRemoved:
		return "removed"
	case TileCollision:
		return "collision"
	}
	return fmt.Sprintf("TileState(%d)", int(s))
}

// CollisionKind tells why an invisible blocker sits on a cell.
type CollisionKind int

const (
	CollisionBoundary  CollisionKind = iota // ring just outside the grid
	CollisionTerrain                        // procedural wall
	CollisionTemporary                      // a fallen tile that will come back
	CollisionPermanent                      // a collapsed ring
)

// Color is an opaque presentation colour, components in [0,1].
type Color struct {
	R float64 `json:"r" msgpack:"r"`
	G float64 `json:"g" msgpack:"g"`
	B float64 `json:"b" msgpack:"b"`
}

// ColorRGB builds a Color from 0-255 components
func ColorRGB(r, g, b uint8) Color {
	return Color{R: float64(r) / 255, G: float64(g) / 255, B: float64(b) / 255}
}

var (
	defaultTileColor = ColorRGB(112, 77, 77)
	altTileColor     = ColorRGB(200, 200, 200)
	collapseColor    = Color{R: 0.54, G: 0.54, B: 0.54}
)

// TileConfig controls tile size and the base colour of the checkerboard.
type TileConfig struct {
	Size  float64
	Color Color
}

// Pickup is a powerup waiting on a tile.
type Pickup struct {
	ID  string       `json:"id" msgpack:"id"`
	Pos GridPosition `json:"pos" msgpack:"pos"`
}

// Tile is one cell of the arena floor.
type Tile struct {
	Pos      GridPosition
	State    TileState
	Color    Color
	Attacker string // player whose attack made the tile fall
	Pickup   *Pickup
	base     Color
}

// TileEventKind names a visual transition reported to clients.
type TileEventKind string

const (
	TileEventFlash       TileEventKind = "flash"
	TileEventDrop        TileEventKind = "drop"
	TileEventLand        TileEventKind = "land"
	TileEventRestore     TileEventKind = "restore"
	TileEventCollapse    TileEventKind = "collapse"
	TileEventExpand      TileEventKind = "expand"
	TileEventPickupSpawn TileEventKind = "pickup_spawn"
	TileEventPickupTaken TileEventKind = "pickup_taken"
	TileEventPickupLost  TileEventKind = "pickup_lost"
)

// TileEvent is one visual change on the grid
type TileEvent struct {
	Kind     TileEventKind `json:"k"`
	Pos      GridPosition  `json:"p"`
	Color    *Color        `json:"c,omitempty"`
	PickupID string        `json:"id,omitempty"`
}

// GridCallbacks connect the grid to the match that owns it.
type GridCallbacks struct {
	OnTileFell       func(tile *Tile)
	OnPowerupTouched func(playerID string)
	OnTileEvent      func(ev TileEvent)
}

// Grid owns the tile matrix of one match and every deferred tile transition.
// It is not safe for concurrent use; the owning match drives it from its
// own goroutine through Advance.
type Grid struct {
	width, height int
	tiles         [][]*Tile
	config        TileConfig
	procedural    bool
	seed          int64
	rng           *rand.Rand
	timers        *Timers
	falling       map[*Tile]struct{}
	collision     map[GridPosition]CollisionKind
	rings         [][]GridPosition
	cb            GridCallbacks

	attacksIssued int
}

// NewGrid builds a width x height arena. With procedural set, cells are
// classified floor or wall by noise; otherwise every cell starts Active.
func NewGrid(width, height int, config TileConfig, procedural bool, rng *rand.Rand, cb GridCallbacks) (*Grid, error) {
	if width < 1 || height < 1 {
		return nil, eris.Wrapf(ErrInvalidGridSize, "got %dx%d", width, height)
	}
	if config.Size <= 0 {
		config.Size = 5
	}
	if config.Color == (Color{}) {
		config.Color = defaultTileColor
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	g := &Grid{
		width:      width,
		height:     height,
		config:     config,
		procedural: procedural,
		rng:        rng,
		timers:     NewTimers(),
		falling:    make(map[*Tile]struct{}),
		collision:  make(map[GridPosition]CollisionKind),
		cb:         cb,
	}

	var field [][]bool
	if procedural {
		field = g.proceduralField()
	}

	g.tiles = make([][]*Tile, width)
	for x := 0; x < width; x++ {
		g.tiles[x] = make([]*Tile, height)
		for y := 0; y < height; y++ {
			pos := GridPosition{X: x, Y: y}
			base := config.Color
			if (x+y)%2 != 0 {
				base = altTileColor
			}
			t := &Tile{Pos: pos, State: TileActive, Color: base, base: base}
			if field != nil && !field[x][y] {
				t.State = TileCollision
				g.collision[pos] = CollisionTerrain
			}
			g.tiles[x][y] = t
		}
	}

	for x := 0; x < width; x++ {
		g.collision[GridPosition{X: x, Y: -1}] = CollisionBoundary
		g.collision[GridPosition{X: x, Y: height}] = CollisionBoundary
	}
	for y := 0; y < height; y++ {
		g.collision[GridPosition{X: -1, Y: y}] = CollisionBoundary
		g.collision[GridPosition{X: width, Y: y}] = CollisionBoundary
	}
	return g, nil
}

// proceduralField retries a few seeds so that at least a quarter of the
// arena is floor, then falls back to a flat arena.
func (g *Grid) proceduralField() [][]bool {
	minFloor := (g.width * g.height) / 4
	if minFloor < 1 {
		minFloor = 1
	}
	for attempt := 0; attempt < 5; attempt++ {
		g.seed = g.rng.Int64N(10001)
		field := generateTerrain(g.width, g.height, g.seed)
		floor := 0
		for _, col := range field {
			for _, ok := range col {
				if ok {
					floor++
				}
			}
		}
		if floor >= minFloor {
			return field
		}
	}
	return nil
}

// Width returns the number of columns
func (g *Grid) Width() int { return g.width }

// Height returns the number of rows
func (g *Grid) Height() int { return g.height }

// Config returns the tile configuration
func (g *Grid) Config() TileConfig { return g.config }

// Seed returns the terrain seed, zero for flat arenas
func (g *Grid) Seed() int64 { return g.seed }

// Initialized reports whether the grid still holds tiles.
func (g *Grid) Initialized() bool { return g != nil && g.tiles != nil }

// Tile returns the tile at pos, or nil when out of bounds or reset.
func (g *Grid) Tile(pos GridPosition) *Tile {
	if g.tiles == nil || pos.X < 0 || pos.X >= g.width || pos.Y < 0 || pos.Y >= g.height {
		return nil
	}
	return g.tiles[pos.X][pos.Y]
}

// State returns the tile state at pos; out-of-bounds cells are Collision.
func (g *Grid) State(pos GridPosition) TileState {
	if t := g.Tile(pos); t != nil {
		return t.State
	}
	return TileCollision
}

// IsFalling reports whether pos is in the set of parry-able falling tiles.
func (g *Grid) IsFalling(pos GridPosition) bool {
	t := g.Tile(pos)
	if t == nil {
		return false
	}
	_, ok := g.falling[t]
	return ok
}

// IsBlocked reports whether an invisible collision block sits on pos.
func (g *Grid) IsBlocked(pos GridPosition) bool {
	_, ok := g.collision[pos]
	return ok
}

// Collision returns the kind of block at pos
func (g *Grid) Collision(pos GridPosition) (CollisionKind, bool) {
	k, ok := g.collision[pos]
	return k, ok
}

// ActiveCount returns how many tiles are currently Active.
func (g *Grid) ActiveCount() int {
	n := 0
	g.eachTile(func(t *Tile) {
		if t.State == TileActive {
			n++
		}
	})
	return n
}

// Advance runs tile transitions that came due.
func (g *Grid) Advance(dt float64) {
	if g == nil || g.timers == nil {
		return
	}
	g.timers.Advance(dt)
}

// RandomActiveTile picks a random Active tile. It tries random cells first
// and falls back to scanning, reporting false only when none is Active.
func (g *Grid) RandomActiveTile() (GridPosition, bool) {
	return g.randomTile(func(t *Tile) bool { return t.State == TileActive })
}

// RandomSpawnPosition returns the world position of a random Active tile.
func (g *Grid) RandomSpawnPosition() (Vec3, bool) {
	pos, ok := g.RandomActiveTile()
	if !ok {
		return Vec3{}, false
	}
	return TileToWorld(pos, g.config.Size), true
}

func (g *Grid) randomTile(accept func(*Tile) bool) (GridPosition, bool) {
	if g.tiles == nil {
		return GridPosition{}, false
	}
	for attempt := 0; attempt < 100; attempt++ {
		t := g.tiles[g.rng.IntN(g.width)][g.rng.IntN(g.height)]
		if accept(t) {
			return t.Pos, true
		}
	}
	var candidates []GridPosition
	g.eachTile(func(t *Tile) {
		if accept(t) {
			candidates = append(candidates, t.Pos)
		}
	})
	if len(candidates) == 0 {
		return GridPosition{}, false
	}
	return candidates[g.rng.IntN(len(candidates))], true
}

// SpawnPowerupOnTile places a pickup on a random Active tile that has none.
func (g *Grid) SpawnPowerupOnTile() (*Pickup, error) {
	if g.tiles == nil {
		return nil, eris.Wrap(ErrGridNotInitialized, "spawn powerup")
	}
	pos, ok := g.randomTile(func(t *Tile) bool { return t.State == TileActive && t.Pickup == nil })
	if !ok {
		return nil, eris.Wrap(ErrNoTarget, "no free active tile for powerup")
	}
	p := &Pickup{ID: GenerateID(4), Pos: pos}
	g.tiles[pos.X][pos.Y].Pickup = p
	g.emit(TileEvent{Kind: TileEventPickupSpawn, Pos: pos, PickupID: p.ID})
	return p, nil
}

// TouchPickup is called when a player's avatar enters pos. If a pickup is
// there it is removed and the powerup callback fires once.
func (g *Grid) TouchPickup(pos GridPosition, playerID string) bool {
	t := g.Tile(pos)
	if t == nil || t.Pickup == nil || t.State != TileActive {
		return false
	}
	id := t.Pickup.ID
	t.Pickup = nil
	g.emit(TileEvent{Kind: TileEventPickupTaken, Pos: pos, PickupID: id})
	if g.cb.OnPowerupTouched != nil {
		g.cb.OnPowerupTouched(playerID)
	}
	return true
}

// Pickups lists the pickups currently on the grid
func (g *Grid) Pickups() []Pickup {
	var out []Pickup
	g.eachTile(func(t *Tile) {
		if t.Pickup != nil {
			out = append(out, *t.Pickup)
		}
	})
	return out
}

// Reset cancels every pending transition and drops all tiles, blocks and
// pickups. The grid is inert afterwards; a new match builds a new one.
func (g *Grid) Reset() {
	if g == nil {
		return
	}
	if g.timers != nil {
		g.timers.Clear()
	}
	g.tiles = nil
	g.falling = make(map[*Tile]struct{})
	g.collision = make(map[GridPosition]CollisionKind)
	g.rings = nil
}

func (g *Grid) eachTile(fn func(*Tile)) {
	for _, col := range g.tiles {
		for _, t := range col {
			fn(t)
		}
	}
}

func (g *Grid) emit(ev TileEvent) {
	if g.cb.OnTileEvent != nil {
		g.cb.OnTileEvent(ev)
	}
}

// live reports whether t is still the tile the grid holds at its position;
// continuations check this because a reset may have intervened.
func (g *Grid) live(t *Tile) bool {
	return g.Tile(t.Pos) == t
}

func tileOwner(pos GridPosition) string {
	return fmt.Sprintf("tile:%d:%d", pos.X, pos.Y)
}
