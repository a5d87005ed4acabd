package main

import (
	"github.com/aquilax/go-perlin"
)

const (
	terrainScale     = 6.0  // cells per noise period
	terrainThreshold = 0.37 // normalised noise above this is floor
	terrainAlpha     = 2.0
	terrainBeta      = 2.0
	terrainOctaves   = 3
)

// generateTerrain classifies every cell of a width x height field as floor
// (true) or permanent wall using coherent noise, so procedural arenas get
// irregular, connected-looking shapes instead of a plain rectangle.
func generateTerrain(width, height int, seed int64) [][]bool {
	p := perlin.NewPerlin(terrainAlpha, terrainBeta, terrainOctaves, seed)
	offset := float64(seed % 10000)

	field := make([][]bool, width)
	for x := 0; x < width; x++ {
		field[x] = make([]bool, height)
		for y := 0; y < height; y++ {
			n := p.Noise2D((float64(x)+offset)/terrainScale, (float64(y)+offset)/terrainScale)
			field[x][y] = (n+1)/2 > terrainThreshold
		}
	}
	return field
}
