package main

import "math"

// Vec3 is a world-space vector as reported by the client. Y is up; the
// arena floor is the X/Z plane.
type Vec3 struct {
	X float64 `json:"x" msgpack:"x"`
	Y float64 `json:"y" msgpack:"y"`
	Z float64 `json:"z" msgpack:"z"`
}

// GridPosition is an integer tile coordinate.
type GridPosition struct {
	X int `json:"x" msgpack:"x"`
	Y int `json:"y" msgpack:"y"`
}

// Add returns p offset by d
func (p GridPosition) Add(d GridPosition) GridPosition {
	return GridPosition{X: p.X + d.X, Y: p.Y + d.Y}
}

// IsZero reports whether p is the zero delta
func (p GridPosition) IsZero() bool {
	return p.X == 0 && p.Y == 0
}

// WorldToTile maps a world position onto the grid. Grid X runs along world Z
// and grid Y along world X.
func WorldToTile(v Vec3, tileSize float64) GridPosition {
	return GridPosition{
		X: int(math.Round(v.Z / tileSize)),
		Y: int(math.Round(v.X / tileSize)),
	}
}

// TileToWorld returns the world position of a tile's centre on the floor.
func TileToWorld(p GridPosition, tileSize float64) Vec3 {
	return Vec3{X: float64(p.Y) * tileSize, Y: 0, Z: float64(p.X) * tileSize}
}

// WorldDirToGrid converts a world-space facing into one of the eight grid
// steps. The axes swap the same way positions do, so dx follows world Z and
// dy world X. A facing with no horizontal component yields the zero step.
func WorldDirToGrid(dir Vec3) GridPosition {
	l := math.Hypot(dir.X, dir.Z)
	if l < 1e-6 {
		return GridPosition{}
	}
	return GridPosition{X: snapAxis(dir.Z / l), Y: snapAxis(dir.X / l)}
}

// GridDirToWorld is the inverse of WorldDirToGrid.
func GridDirToWorld(d GridPosition) Vec3 {
	return Vec3{X: float64(d.Y), Y: 0, Z: float64(d.X)}
}

// snapAxis rounds one normalised component to -1, 0 or 1 so that facings
// snap to the nearest of the eight compass directions (sin 22.5°).
func snapAxis(v float64) int {
	const cut = 0.3827
	switch {
	case v > cut:
		return 1
	case v < -cut:
		return -1
	}
	return 0
}
