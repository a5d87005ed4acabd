package main

import (
	"math/rand/v2"
)

// Phase represents the lifecycle of an arena
type Phase int

const (
	PhaseLobby     Phase = 0
	PhaseVotingMap Phase = 1
	PhasePlaying   Phase = 2
	PhaseEnded     Phase = 3
)

func (p Phase) String() string {
	switch p {
	case PhaseLobby:
		return "lobby"
	case PhaseVotingMap:
		return "voting_map"
	case PhasePlaying:
		return "playing"
	case PhaseEnded:
		return "ended"
	}
	return "unknown"
}

// MapType is a votable arena layout
type MapType int

const (
	MapNormal     MapType = 0
	MapLarge      MapType = 1
	MapRandomized MapType = 2
)

// MapCandidates is the declaration order; ties resolve to the earliest.
var MapCandidates = []MapType{MapNormal, MapLarge, MapRandomized}

func (m MapType) String() string {
	switch m {
	case MapNormal:
		return "normal"
	case MapLarge:
		return "large"
	case MapRandomized:
		return "randomized"
	}
	return "unknown"
}

// ParseMapType converts a wire name into a MapType
func ParseMapType(s string) (MapType, bool) {
	for _, m := range MapCandidates {
		if m.String() == s {
			return m, true
		}
	}
	return 0, false
}

// VoteTally counts map votes. A player holds at most one ballot per map.
type VoteTally struct {
	counts  map[MapType]int
	ballots map[string]map[MapType]bool
}

// NewVoteTally creates a tally with every candidate at zero
func NewVoteTally() *VoteTally {
	t := &VoteTally{}
	t.Reset()
	return t
}

// Reset zeroes all counts and forgets every ballot.
func (t *VoteTally) Reset() {
	t.counts = make(map[MapType]int, len(MapCandidates))
	for _, m := range MapCandidates {
		t.counts[m] = 0
	}
	t.ballots = make(map[string]map[MapType]bool)
}

// Vote records playerID's ballot for m. A repeat ballot is ignored.
func (t *VoteTally) Vote(playerID string, m MapType) bool {
	b := t.ballots[playerID]
	if b == nil {
		b = make(map[MapType]bool)
		t.ballots[playerID] = b
	}
	if b[m] {
		return false
	}
	b[m] = true
	t.counts[m]++
	return true
}

// Unvote withdraws playerID's ballot for m. The count entry is deleted once
// it reaches zero.
func (t *VoteTally) Unvote(playerID string, m MapType) bool {
	b := t.ballots[playerID]
	if !b[m] {
		return false
	}
	delete(b, m)
	t.counts[m]--
	if t.counts[m] <= 0 {
		delete(t.counts, m)
	}
	return true
}

// Retract withdraws every ballot playerID holds.
func (t *VoteTally) Retract(playerID string) {
	for m := range t.ballots[playerID] {
		t.Unvote(playerID, m)
	}
	delete(t.ballots, playerID)
}

// Count returns the votes for m
func (t *VoteTally) Count(m MapType) int { return t.counts[m] }

// Counts returns a copy of the tally keyed by map name
func (t *VoteTally) Counts() map[string]int {
	out := make(map[string]int, len(t.counts))
	for m, n := range t.counts {
		out[m.String()] = n
	}
	return out
}

// MostVoted returns the map with the highest count, the first-declared one
// winning ties. With no votes at all that is MapNormal.
func (t *VoteTally) MostVoted() MapType {
	best, bestN := MapCandidates[0], -1
	for _, m := range MapCandidates {
		if n := t.counts[m]; n > bestN {
			best, bestN = m, n
		}
	}
	return best
}

// MapLayout is the concrete arena built for a vote result.
type MapLayout struct {
	Type       MapType
	Width      int
	Height     int
	Tile       TileConfig
	Procedural bool
}

// normalMapSize scales the arena with the number of players.
func normalMapSize(players int) int {
	switch {
	case players <= 2:
		return 6
	case players <= 4:
		return 8
	case players <= 8:
		return 12
	}
	return 16
}

// MapDimensions picks the layout of m for the given number of players.
func MapDimensions(m MapType, players int, tileSize float64, rng *rand.Rand) MapLayout {
	size := normalMapSize(players)
	layout := MapLayout{
		Type:   m,
		Width:  size,
		Height: size,
		Tile:   TileConfig{Size: tileSize, Color: defaultTileColor},
	}
	switch m {
	case MapLarge:
		layout.Width, layout.Height = size*2, size*2
	case MapRandomized:
		layout.Width = 20 + rng.IntN(11)
		layout.Height = 20 + rng.IntN(11)
		layout.Tile = TileConfig{
			Size:  float64(3 + rng.IntN(5)),
			Color: Color{R: rng.Float64(), G: rng.Float64(), B: rng.Float64()},
		}
		layout.Procedural = true
	}
	return layout
}

// GameResultEntry is one row of the final standings
type GameResultEntry struct {
	PlayerID string `json:"id"`
	Name     string `json:"name"`
	Kills    int    `json:"kills"`
	Winner   bool   `json:"winner"`
}

// BuildResults snapshots participants. The winner is the sole survivor, if
// exactly one participant is still alive.
func BuildResults(participants []*GamePlayer) []GameResultEntry {
	var alive []*GamePlayer
	for _, p := range participants {
		if p.State != PlayerDead {
			alive = append(alive, p)
		}
	}
	out := make([]GameResultEntry, 0, len(participants))
	for _, p := range participants {
		out = append(out, GameResultEntry{
			PlayerID: p.ID,
			Name:     p.Name,
			Kills:    p.Kills,
			Winner:   len(alive) == 1 && alive[0] == p,
		})
	}
	return out
}
