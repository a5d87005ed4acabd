package main

import (
	"github.com/rotisserie/eris"
)

// Tile animation timings, in seconds.
const (
	attackFlashStep    = 0.05
	fallStagger        = 0.15
	quakeFlashStep     = 0.25
	fallTravel         = 1.0
	respawnPause       = 1.0
	quakeCountSmall    = 5
	quakeCountLarge    = 8
	quakeWideThreshold = 10
)

var neighbourSteps = []GridPosition{
	{X: -1, Y: -1}, {X: -1, Y: 0}, {X: -1, Y: 1},
	{X: 0, Y: -1}, {X: 0, Y: 1},
	{X: 1, Y: -1}, {X: 1, Y: 0}, {X: 1, Y: 1},
}

// LineAttack walks from origin in steps of delta and drops every consecutive
// Active tile it meets. The walk stops at the first cell that is not Active
// or lies outside the grid, or once maxRange tiles were taken (maxRange <= 0
// means no limit).
func (g *Grid) LineAttack(origin, delta GridPosition, maxRange int, color Color, attackerID string) ([]GridPosition, error) {
	if g.tiles == nil {
		return nil, eris.Wrap(ErrGridNotInitialized, "line attack")
	}
	if delta.IsZero() {
		return nil, nil
	}
	g.attacksIssued++

	var hit []*Tile
	for pos := origin.Add(delta); maxRange <= 0 || len(hit) < maxRange; pos = pos.Add(delta) {
		t := g.Tile(pos)
		if t == nil || t.State != TileActive {
			break
		}
		t.State = TileFalling
		t.Attacker = attackerID
		g.falling[t] = struct{}{}
		hit = append(hit, t)
	}

	n := len(hit)
	out := make([]GridPosition, 0, n)
	for i, t := range hit {
		g.scheduleFlash(t, attackFlashStep*float64(i+1), color)
		g.scheduleFallAndRise(t, attackFlashStep*float64(n+1)+fallStagger*float64(i))
		out = append(out, t.Pos)
	}
	return out, nil
}

// CanParryAt returns the tile next to pos in direction delta if it is
// currently falling and can still be caught.
func (g *Grid) CanParryAt(pos, delta GridPosition) *Tile {
	if delta.IsZero() {
		return nil
	}
	t := g.Tile(pos.Add(delta))
	if t == nil || t.State != TileFalling {
		return nil
	}
	if _, ok := g.falling[t]; !ok {
		return nil
	}
	return t
}

// ParryAttack catches the falling tile next to pos and sends a new line
// attack from it in a random direction that does not point back at pos.
func (g *Grid) ParryAttack(pos, delta GridPosition, maxRange int, color Color, attackerID string) (bool, error) {
	if g.tiles == nil {
		return false, eris.Wrap(ErrGridNotInitialized, "parry")
	}
	t := g.CanParryAt(pos, delta)
	if t == nil {
		return false, nil
	}

	delete(g.falling, t)
	g.timers.CancelOwner(tileOwner(t.Pos))
	g.restoreTile(t)

	back := GridPosition{X: -delta.X, Y: -delta.Y}
	dirs := make([]GridPosition, 0, len(neighbourSteps))
	for _, d := range neighbourSteps {
		if d != back {
			dirs = append(dirs, d)
		}
	}
	dir := dirs[g.rng.IntN(len(dirs))]

	if _, err := g.LineAttack(t.Pos, dir, maxRange, color, attackerID); err != nil {
		return true, err
	}
	return true, nil
}

// MakeRandomTileFall drops a handful of random Active tiles with the same
// recoverable fall a line attack uses.
func (g *Grid) MakeRandomTileFall() ([]GridPosition, error) {
	if g.tiles == nil {
		return nil, eris.Wrap(ErrGridNotInitialized, "earthquake")
	}
	count := quakeCountSmall
	if g.width > quakeWideThreshold {
		count = quakeCountLarge
	}

	var hit []*Tile
	for i := 0; i < count; i++ {
		pos, ok := g.RandomActiveTile()
		if !ok {
			break
		}
		t := g.tiles[pos.X][pos.Y]
		t.State = TileFalling
		t.Attacker = ""
		g.falling[t] = struct{}{}
		hit = append(hit, t)
	}

	n := len(hit)
	out := make([]GridPosition, 0, n)
	for i, t := range hit {
		g.scheduleFlash(t, quakeFlashStep*float64(i+1), collapseColor)
		g.scheduleFallAndRise(t, quakeFlashStep*float64(n+1)+fallStagger*float64(i))
		out = append(out, t.Pos)
	}
	return out, nil
}

// MinimizeMap collapses the outermost ring that still holds an Active tile.
// Collapsed tiles never come back on their own; ExpandMap undoes the latest
// ring once it has settled.
func (g *Grid) MinimizeMap() ([]GridPosition, error) {
	if g.tiles == nil {
		return nil, eris.Wrap(ErrGridNotInitialized, "minimize map")
	}

	var ring []*Tile
	for depth := 0; 2*depth < g.width && 2*depth < g.height; depth++ {
		ring = ring[:0]
		for _, pos := range g.ringPositions(depth) {
			if t := g.tiles[pos.X][pos.Y]; t.State == TileActive {
				ring = append(ring, t)
			}
		}
		if len(ring) > 0 {
			break
		}
	}
	if len(ring) == 0 {
		return nil, nil
	}

	n := len(ring)
	out := make([]GridPosition, 0, n)
	for i, t := range ring {
		t.State = TileFalling
		t.Attacker = ""
		g.scheduleFlash(t, attackFlashStep*float64(i+1), collapseColor)
		g.schedulePermanentFall(t, attackFlashStep*float64(n+1)+fallStagger*float64(i))
		out = append(out, t.Pos)
	}
	g.rings = append(g.rings, out)
	return out, nil
}

// ExpandMap brings back the most recently collapsed ring. It reports false
// when there is none or the ring is still falling.
func (g *Grid) ExpandMap() (bool, error) {
	if g.tiles == nil {
		return false, eris.Wrap(ErrGridNotInitialized, "expand map")
	}
	if len(g.rings) == 0 {
		return false, nil
	}
	last := g.rings[len(g.rings)-1]
	for _, pos := range last {
		if g.tiles[pos.X][pos.Y].State != TileCollision {
			return false, nil
		}
	}
	g.rings = g.rings[:len(g.rings)-1]
	for _, pos := range last {
		t := g.tiles[pos.X][pos.Y]
		delete(g.collision, pos)
		t.State = TileActive
		t.Color = t.base
		c := t.Color
		g.emit(TileEvent{Kind: TileEventExpand, Pos: pos, Color: &c})
	}
	return true, nil
}

// ringPositions lists the cells of the rectangle inset by depth, each once.
func (g *Grid) ringPositions(depth int) []GridPosition {
	x0, y0 := depth, depth
	x1, y1 := g.width-1-depth, g.height-1-depth
	if x0 > x1 || y0 > y1 {
		return nil
	}
	seen := make(map[GridPosition]struct{})
	var out []GridPosition
	add := func(p GridPosition) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for x := x0; x <= x1; x++ {
		add(GridPosition{X: x, Y: y0})
		add(GridPosition{X: x, Y: y1})
	}
	for y := y0 + 1; y < y1; y++ {
		add(GridPosition{X: x0, Y: y})
		add(GridPosition{X: x1, Y: y})
	}
	return out
}

func (g *Grid) scheduleFlash(t *Tile, delay float64, color Color) {
	g.timers.After(TimerKey{Owner: tileOwner(t.Pos), Purpose: "flash"}, delay, func() {
		if !g.live(t) {
			return
		}
		t.Color = color
		c := color
		g.emit(TileEvent{Kind: TileEventFlash, Pos: t.Pos, Color: &c})
	})
}

// scheduleFallAndRise drops t after delay, lands it after the travel time
// and brings it back once the pause is over.
func (g *Grid) scheduleFallAndRise(t *Tile, delay float64) {
	owner := tileOwner(t.Pos)
	g.timers.After(TimerKey{Owner: owner, Purpose: "drop"}, delay, func() {
		if !g.live(t) {
			return
		}
		g.emit(TileEvent{Kind: TileEventDrop, Pos: t.Pos})

		g.timers.After(TimerKey{Owner: owner, Purpose: "land"}, fallTravel, func() {
			if !g.live(t) {
				return
			}
			delete(g.falling, t)
			t.State = TileRemoved
			g.collision[t.Pos] = CollisionTemporary
			g.dropPickup(t)
			g.emit(TileEvent{Kind: TileEventLand, Pos: t.Pos})

			g.timers.After(TimerKey{Owner: owner, Purpose: "restore"}, respawnPause, func() {
				if !g.live(t) || t.State != TileRemoved {
					return
				}
				if g.collision[t.Pos] == CollisionTemporary {
					delete(g.collision, t.Pos)
				}
				g.restoreTile(t)
			})

			if g.cb.OnTileFell != nil {
				g.cb.OnTileFell(t)
			}
		})
	})
}

func (g *Grid) schedulePermanentFall(t *Tile, delay float64) {
	owner := tileOwner(t.Pos)
	g.timers.After(TimerKey{Owner: owner, Purpose: "drop"}, delay, func() {
		if !g.live(t) {
			return
		}
		t.State = TileRemoved
		g.collision[t.Pos] = CollisionPermanent
		g.dropPickup(t)
		g.emit(TileEvent{Kind: TileEventCollapse, Pos: t.Pos})

		g.timers.After(TimerKey{Owner: owner, Purpose: "settle"}, fallTravel, func() {
			if g.live(t) && t.State == TileRemoved {
				t.State = TileCollision
			}
		})

		if g.cb.OnTileFell != nil {
			g.cb.OnTileFell(t)
		}
	})
}

func (g *Grid) restoreTile(t *Tile) {
	t.State = TileActive
	t.Color = t.base
	t.Attacker = ""
	c := t.Color
	g.emit(TileEvent{Kind: TileEventRestore, Pos: t.Pos, Color: &c})
}

func (g *Grid) dropPickup(t *Tile) {
	if t.Pickup == nil {
		return
	}
	id := t.Pickup.ID
	t.Pickup = nil
	g.emit(TileEvent{Kind: TileEventPickupLost, Pos: t.Pos, PickupID: id})
}

// AttacksIssued counts line attacks started on this grid, parry rebounds
// included.
func (g *Grid) AttacksIssued() int { return g.attacksIssued }
