package main

import (
	"github.com/rotisserie/eris"
)

// JoinCmd registers a connection as a player
type JoinCmd struct {
	ID     string
	Name   string
	AuthID int64
	Client Broadcaster
	Reply  chan<- JoinResult
}

// JoinResult answers a JoinCmd
type JoinResult struct {
	Player *GamePlayer
	Err    error
}

// LeaveCmd is issued on disconnect or an explicit leave
type LeaveCmd struct {
	PlayerID string
}

// MoveCmd updates the cached avatar position
type MoveCmd struct {
	PlayerID string
	Position Vec3
	Facing   Vec3
}

// AttackCmd starts a line attack from the player's position
type AttackCmd struct {
	PlayerID  string
	Position  Vec3
	Direction Vec3
}

// ParryCmd catches the falling tile next to the player
type ParryCmd struct {
	PlayerID  string
	Position  Vec3
	Direction Vec3
}

// VoteCmd casts or withdraws a map ballot
type VoteCmd struct {
	PlayerID string
	Map      MapType
	Unvote   bool
}

// ReadyCmd toggles the lobby ready flag
type ReadyCmd struct {
	PlayerID string
	Reply    chan<- bool
}

// UsePowerupCmd spends the oldest inventory item
type UsePowerupCmd struct {
	PlayerID  string
	Position  Vec3
	Direction Vec3
}

func (g *Game) join(c JoinCmd) (*GamePlayer, error) {
	if _, ok := g.players.Get(c.ID); !ok && g.cfg.MaxPlayers > 0 && g.players.Len() >= g.cfg.MaxPlayers {
		return nil, ErrSessionFull
	}
	p := g.players.Join(c.ID, c.Name)
	p.AuthID = c.AuthID
	if c.Client != nil {
		g.clients[p.ID] = c.Client
	}
	g.playerCount.Store(int32(g.players.Len()))

	g.sendTo(p.ID, Envelope{T: MsgWelcome, Data: WelcomeMsg{ID: p.ID, Color: p.Color, Phase: g.phase.String()}})
	if g.phase == PhasePlaying || g.phase == PhaseEnded {
		g.sendCamera(p.ID)
		if g.grid.Initialized() {
			if frame, err := EncodeGridSnapshot(SnapshotGrid(g.grid)); err == nil && c.Client != nil {
				c.Client.SendBinary(frame)
			}
		}
	}
	g.broadcastReadyList()
	g.log.Info().Str("player", p.ID).Str("name", p.Name).Msg("player joined")
	g.track(EvtSessionStart, p.AuthID, "")
	return p, nil
}

// leave removes a player. Their ballots are retracted, their timers
// cancelled, and a running match re-checks for a winner.
func (g *Game) leave(id string) {
	p, ok := g.players.Leave(id)
	if !ok {
		return
	}
	delete(g.clients, id)
	g.playerCount.Store(int32(g.players.Len()))
	g.votes.Retract(id)
	g.timers.CancelOwner(playerOwner(id))

	g.broadcastReadyList()
	switch g.phase {
	case PhaseVotingMap:
		g.broadcast(Envelope{T: MsgVotes, Data: VotesMsg{Counts: g.votes.Counts()}})
	case PhasePlaying:
		g.broadcastHealthList()
		g.checkWin()
	}
	g.log.Info().Str("player", id).Msg("player left")
	g.track(EvtSessionEnd, p.AuthID, "")
	if g.players.Len() == 0 && g.OnEmpty != nil {
		g.OnEmpty(g.id)
	}
}

func (g *Game) move(c MoveCmd) error {
	p, ok := g.players.Get(c.PlayerID)
	if !ok {
		return eris.Wrapf(ErrPlayerNotFound, "move %s", c.PlayerID)
	}
	p.Position = c.Position
	if c.Facing != (Vec3{}) {
		p.Facing = c.Facing
	}
	if g.phase != PhasePlaying || !p.CanAct() || !g.grid.Initialized() {
		return nil
	}
	g.grid.TouchPickup(p.Cell(g.layout.Tile.Size), p.ID)
	return nil
}

// actor resolves a player that may act in the running match.
func (g *Game) actor(id, intent string) (*GamePlayer, error) {
	if g.phase != PhasePlaying {
		return nil, eris.Wrapf(ErrWrongPhase, "%s during %s", intent, g.phase)
	}
	p, ok := g.players.Get(id)
	if !ok {
		return nil, eris.Wrapf(ErrPlayerNotFound, "%s by %s", intent, id)
	}
	if !p.CanAct() {
		return nil, eris.Wrapf(ErrPlayerState, "%s while %s/%s", intent, p.GameState, p.State)
	}
	if !g.grid.Initialized() {
		return nil, eris.Wrap(ErrGridNotInitialized, intent)
	}
	return p, nil
}

func (g *Game) attack(c AttackCmd) error {
	p, err := g.actor(c.PlayerID, MsgAttack)
	if err != nil {
		return err
	}
	if p.HasEffect(EffectDisableAttack) {
		return eris.Wrap(ErrAttackDisabled, "attack")
	}
	p.Position = c.Position
	delta := WorldDirToGrid(c.Direction)
	if delta.IsZero() {
		return eris.Wrap(ErrInvalidDirection, "attack without a facing")
	}
	p.Facing = c.Direction

	hit, err := g.grid.LineAttack(p.Cell(g.layout.Tile.Size), delta, p.EffectiveRange(), p.Color, p.ID)
	if err != nil {
		return err
	}
	g.log.Debug().Str("player", p.ID).Int("tiles", len(hit)).Msg("line attack")
	return nil
}

func (g *Game) parry(c ParryCmd) error {
	p, err := g.actor(c.PlayerID, MsgParry)
	if err != nil {
		return err
	}
	if p.HasEffect(EffectDisableAttack) {
		return eris.Wrap(ErrAttackDisabled, "parry")
	}
	p.Position = c.Position
	delta := WorldDirToGrid(c.Direction)
	if delta.IsZero() {
		return eris.Wrap(ErrInvalidDirection, "parry without a facing")
	}
	p.Facing = c.Direction

	ok, err := g.grid.ParryAttack(p.Cell(g.layout.Tile.Size), delta, p.EffectiveRange(), p.Color, p.ID)
	if err != nil {
		return err
	}
	if !ok {
		return eris.Wrap(ErrNothingToParry, "parry")
	}
	g.log.Debug().Str("player", p.ID).Msg("parry")
	return nil
}

func (g *Game) vote(c VoteCmd) error {
	if g.phase != PhaseVotingMap {
		return eris.Wrapf(ErrWrongPhase, "vote during %s", g.phase)
	}
	if _, ok := g.players.Get(c.PlayerID); !ok {
		return eris.Wrapf(ErrPlayerNotFound, "vote by %s", c.PlayerID)
	}
	var changed bool
	if c.Unvote {
		changed = g.votes.Unvote(c.PlayerID, c.Map)
	} else {
		changed = g.votes.Vote(c.PlayerID, c.Map)
	}
	if changed {
		g.broadcast(Envelope{T: MsgVotes, Data: VotesMsg{Counts: g.votes.Counts()}})
	}
	return nil
}

func (g *Game) toggleReady(id string) (bool, error) {
	ready, err := g.players.ToggleReady(id, g.phase)
	if err != nil {
		return false, eris.Wrapf(err, "ready by %s", id)
	}
	g.sendTo(id, Envelope{T: MsgReadyState, Data: ReadyStateMsg{Ready: ready}})
	if g.phase == PhaseLobby {
		g.broadcastReadyList()
	}
	return ready, nil
}

func (g *Game) usePowerup(c UsePowerupCmd) error {
	p, err := g.actor(c.PlayerID, MsgUsePowerup)
	if err != nil {
		return err
	}
	kind, ok := p.PeekPowerup()
	if !ok {
		return eris.Wrap(ErrNoPowerup, "use powerup")
	}
	p.Position = c.Position
	dir := c.Direction
	if dir == (Vec3{}) {
		dir = p.Facing
	}

	var others []*GamePlayer
	for _, o := range g.players.Participants() {
		if o.ID != p.ID && o.State == PlayerMoving {
			others = append(others, o)
		}
	}
	eff, err := ResolvePowerup(kind, PowerupContext{
		Grid:           g.grid,
		User:           p,
		Others:         others,
		Origin:         p.Cell(g.layout.Tile.Size),
		Direction:      WorldDirToGrid(dir),
		StartingHealth: g.cfg.StartingHealth,
		Rng:            g.rng,
	})
	if err != nil {
		return eris.Wrapf(err, "powerup %s", kind)
	}

	p.PopPowerup()
	g.applyEffect(p, eff)
	g.sendTo(p.ID, Envelope{T: MsgUsedPowerup, Data: PowerupMsg{Kind: kind.String(), Inventory: inventoryNames(p.Inventory)}})
	g.log.Debug().Str("player", p.ID).Stringer("powerup", kind).Msg("powerup used")
	g.track(EvtPowerupUsed, p.AuthID, kind.String())
	return nil
}

// grantPowerup is the grid's pickup callback.
func (g *Game) grantPowerup(playerID string) {
	p, ok := g.players.Get(playerID)
	if !ok || !p.CanAct() {
		return
	}
	kind := RandomPowerup(g.rng)
	p.PushPowerup(kind, g.cfg.MaxInventory)
	g.sendTo(p.ID, Envelope{T: MsgGotPowerup, Data: PowerupMsg{Kind: kind.String(), Inventory: inventoryNames(p.Inventory)}})
}

// applyEffect carries out the player-side part of a resolved powerup.
// Timed effects refresh when applied again.
func (g *Game) applyEffect(user *GamePlayer, eff Effect) {
	if eff.Kind != "" {
		kind := eff.Kind
		for _, id := range eff.Targets {
			t, ok := g.players.Get(id)
			if !ok {
				continue
			}
			t.Effects[kind] = eff.Magnitude
			g.timers.After(TimerKey{Owner: playerOwner(id), Purpose: "effect:" + string(kind)}, eff.Duration, func() {
				g.endEffect(t, kind)
			})
			g.broadcast(Envelope{T: MsgEffect, Data: EffectMsg{ID: id, Kind: string(kind), Magnitude: eff.Magnitude, Duration: eff.Duration, Source: user.ID}})
		}
	}
	if eff.Heal > 0 {
		for _, id := range eff.Targets {
			if t, ok := g.players.Get(id); ok {
				t.Health = min(t.Health+eff.Heal, g.cfg.StartingHealth)
			}
		}
		g.broadcastHealthList()
	}
	for _, id := range eff.Relocate {
		t, ok := g.players.Get(id)
		if !ok || t.State != PlayerMoving {
			continue
		}
		g.spawn(t)
	}
}

func (g *Game) endEffect(p *GamePlayer, kind EffectKind) {
	if _, ok := p.Effects[kind]; !ok {
		return
	}
	delete(p.Effects, kind)
	g.broadcast(Envelope{T: MsgEffectEnd, Data: EffectMsg{ID: p.ID, Kind: string(kind)}})
}

// spawn moves p to a random Active tile and tells everyone.
func (g *Game) spawn(p *GamePlayer) bool {
	pos, ok := g.grid.RandomSpawnPosition()
	if !ok {
		g.log.Warn().Str("player", p.ID).Msg("no active tile to spawn on")
		return false
	}
	p.Position = pos
	g.broadcast(Envelope{T: MsgSpawn, Data: SpawnMsg{ID: p.ID, Pos: pos}})
	return true
}

func (g *Game) sendCamera(playerID string) {
	if !g.grid.Initialized() {
		return
	}
	size := g.layout.Tile.Size
	w := float64(g.layout.Width) * size
	h := float64(g.layout.Height) * size
	g.sendTo(playerID, Envelope{T: MsgCameraMap, Data: CameraMsg{
		Center: Vec3{X: float64(g.layout.Height-1) * size / 2, Z: float64(g.layout.Width-1) * size / 2},
		Width:  w,
		Height: h,
	}})
}

func playerOwner(id string) string { return "player:" + id }
