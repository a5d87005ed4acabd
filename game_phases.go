package main

import (
	"encoding/json"
)

// startPhaseCountdown replaces the phase countdown. Ticks are broadcast
// once per whole second; next runs when it reaches zero.
func (g *Game) startPhaseCountdown(name string, seconds float64, next func()) {
	g.timers.Cancel(phaseTimer)
	delete(g.lastTick, phaseTimer)
	g.broadcast(Envelope{T: MsgTimerStart, Data: TimerMsg{Name: name, Seconds: int(seconds)}})
	g.timers.StartCountdown(phaseTimer, seconds, func(s int) {
		if g.tickOnce(phaseTimer, s) {
			g.broadcast(Envelope{T: MsgTimerTick, Data: TimerMsg{Name: name, Seconds: s}})
		}
	}, func() {
		g.broadcast(Envelope{T: MsgTimerEnd, Data: TimerMsg{Name: name}})
		next()
	})
}

// enterLobby starts the waiting room countdown. When it runs out with too
// few ready players the lobby simply starts over.
func (g *Game) enterLobby() {
	g.setPhase(PhaseLobby)
	g.broadcast(Envelope{T: MsgLobby, Data: LobbyMsg{MinReady: g.cfg.MinReadyPlayers}})
	g.broadcastReadyList()
	g.startPhaseCountdown(PhaseLobby.String(), g.cfg.LobbySeconds, func() {
		if len(g.players.Ready()) < g.cfg.MinReadyPlayers {
			g.enterLobby()
			return
		}
		g.enterVoting()
	})
}

func (g *Game) enterVoting() {
	g.setPhase(PhaseVotingMap)
	g.votes.Reset()
	for _, p := range g.players.Ready() {
		p.GameState = GameStateVoting
	}

	candidates := make([]string, 0, len(MapCandidates))
	for _, m := range MapCandidates {
		candidates = append(candidates, m.String())
	}
	g.broadcast(Envelope{T: MsgVoteSession, Data: VoteSessionMsg{Candidates: candidates, Seconds: g.cfg.VoteSeconds}})
	g.log.Info().Int("ready", len(g.players.Ready())).Msg("map vote started")
	g.startPhaseCountdown(PhaseVotingMap.String(), g.cfg.VoteSeconds, g.startMatch)
}

// startMatch builds the voted arena and drops the ready players into it.
func (g *Game) startMatch() {
	var entrants []*GamePlayer
	for _, p := range g.players.Ready() {
		if p.GameState == GameStateVoting {
			entrants = append(entrants, p)
		}
	}
	if len(entrants) < g.cfg.MinReadyPlayers {
		g.log.Info().Int("entrants", len(entrants)).Msg("not enough players left after vote")
		g.resetPlayers()
		g.enterLobby()
		return
	}

	choice := g.votes.MostVoted()
	layout := MapDimensions(choice, len(entrants), g.cfg.TileSize, g.rng)
	grid, err := NewGrid(layout.Width, layout.Height, layout.Tile, layout.Procedural, g.rng, GridCallbacks{
		OnTileFell:       g.onTileFell,
		OnPowerupTouched: g.grantPowerup,
		OnTileEvent:      g.broadcastTileEvent,
	})
	if err != nil {
		g.log.Error().Err(err).Msg("build grid")
		g.resetPlayers()
		g.enterLobby()
		return
	}
	g.grid = grid
	g.layout = layout
	g.startedAt = g.clock.Now()
	g.setPhase(PhasePlaying)
	g.timers.Cancel(phaseTimer)

	g.broadcast(Envelope{T: MsgVoteEnd, Data: VoteEndMsg{Map: choice.String(), Counts: g.votes.Counts()}})

	ids := make([]string, 0, len(entrants))
	for _, p := range entrants {
		p.GameState = GameStatePlaying
		p.State = PlayerMoving
		p.Health = g.cfg.StartingHealth
		p.Kills = 0
		p.Inventory = nil
		p.Effects = make(map[EffectKind]float64)
		ids = append(ids, p.ID)
	}
	g.broadcast(Envelope{T: MsgMatchStart, Data: MatchStartMsg{
		Map:        choice.String(),
		Width:      layout.Width,
		Height:     layout.Height,
		TileSize:   layout.Tile.Size,
		Procedural: layout.Procedural,
		Players:    ids,
	}})
	g.broadcastGrid()
	for _, p := range entrants {
		g.spawn(p)
	}
	for _, p := range g.players.All() {
		if p.GameState != GameStatePlaying {
			g.sendCamera(p.ID)
		}
	}
	g.broadcastHealthList()
	g.armPowerupSpawn()

	g.log.Info().Str("map", choice.String()).Int("w", layout.Width).Int("h", layout.Height).
		Int("players", len(entrants)).Msg("match started")
	g.track(EvtMatchStart, 0, choice.String())
}

// armPowerupSpawn schedules the next pickup somewhere in the spawn window.
func (g *Game) armPowerupSpawn() {
	lo, hi := g.cfg.PowerupMinSeconds, g.cfg.PowerupMaxSeconds
	delay := lo
	if hi > lo {
		delay += g.rng.IntN(hi - lo + 1)
	}
	g.timers.After(powerupTimer, float64(delay), func() {
		if g.phase != PhasePlaying || !g.grid.Initialized() {
			return
		}
		if p, err := g.grid.SpawnPowerupOnTile(); err != nil {
			g.log.Debug().Err(err).Msg("powerup spawn skipped")
		} else {
			g.log.Debug().Str("pickup", p.ID).Int("x", p.Pos.X).Int("y", p.Pos.Y).Msg("powerup spawned")
		}
		g.armPowerupSpawn()
	})
}

// onTileFell is the grid's fall callback: anyone standing on the tile is hit.
func (g *Game) onTileFell(tile *Tile) {
	if g.phase != PhasePlaying {
		return
	}
	size := g.layout.Tile.Size
	for _, p := range g.players.Participants() {
		if p.State == PlayerMoving && p.Cell(size) == tile.Pos {
			g.hitPlayer(p, tile.Attacker)
		}
	}
}

// hitPlayer drops p with the tile. The health point is taken after the fall
// reaction delay.
func (g *Game) hitPlayer(p *GamePlayer, attacker string) {
	if p.HasEffect(EffectInvincibility) {
		return
	}
	if p.HasEffect(EffectShield) {
		g.timers.Cancel(TimerKey{Owner: playerOwner(p.ID), Purpose: "effect:" + string(EffectShield)})
		g.endEffect(p, EffectShield)
		return
	}
	p.State = PlayerRespawning
	g.broadcastHealthList()

	id := p.ID
	g.timers.After(TimerKey{Owner: playerOwner(id), Purpose: "fall"}, g.cfg.FallReactionSeconds, func() {
		g.applyFallDamage(id, attacker)
	})
}

func (g *Game) applyFallDamage(id, attacker string) {
	p, ok := g.players.Get(id)
	if !ok || g.phase != PhasePlaying || p.GameState != GameStatePlaying || p.State == PlayerDead {
		return
	}
	p.Health--
	if p.Health <= 0 {
		p.Health = 0
		p.State = PlayerDead
		g.log.Info().Str("player", id).Str("by", attacker).Msg("player eliminated")
		if a, ok := g.players.Get(attacker); ok && attacker != id {
			a.Kills++
			g.track(EvtPlayerKill, a.AuthID, id)
		}
		g.track(EvtPlayerDeath, p.AuthID, attacker)
		g.broadcastHealthList()
		if _, err := g.grid.MinimizeMap(); err != nil {
			g.log.Error().Err(err).Msg("minimize map")
		}
		g.checkWin()
		return
	}
	g.broadcastHealthList()

	key := TimerKey{Owner: playerOwner(id), Purpose: "respawn"}
	delete(g.lastTick, key)
	g.sendTo(id, Envelope{T: MsgTimerStart, Data: TimerMsg{Name: "respawn", Seconds: int(g.cfg.RespawnSeconds)}})
	g.timers.StartCountdown(key, g.cfg.RespawnSeconds, func(s int) {
		if g.tickOnce(key, s) {
			g.sendTo(id, Envelope{T: MsgTimerTick, Data: TimerMsg{Name: "respawn", Seconds: s}})
		}
	}, func() {
		delete(g.lastTick, key)
		g.sendTo(id, Envelope{T: MsgTimerEnd, Data: TimerMsg{Name: "respawn"}})
		g.respawn(id)
	})
}

func (g *Game) respawn(id string) {
	p, ok := g.players.Get(id)
	if !ok || g.phase != PhasePlaying || p.State != PlayerRespawning {
		return
	}
	p.State = PlayerMoving
	g.spawn(p)
	g.broadcastHealthList()
}

// checkWin ends the match once at most one participant is still alive.
func (g *Game) checkWin() {
	if g.phase != PhasePlaying {
		return
	}
	if len(g.players.Alive()) <= 1 {
		g.endMatch()
	}
}

func (g *Game) endMatch() {
	g.setPhase(PhaseEnded)
	g.timers.Cancel(powerupTimer)
	participants := g.players.Participants()
	for _, p := range participants {
		g.timers.CancelOwner(playerOwner(p.ID))
	}
	g.grid.Reset()

	results := BuildResults(participants)
	msg := MatchEndMsg{Results: results}
	for _, r := range results {
		if r.Winner {
			msg.Winner = r.PlayerID
		}
	}
	g.broadcast(Envelope{T: MsgMatchEnd, Data: msg})
	g.log.Info().Str("winner", msg.Winner).Int("players", len(results)).Msg("match ended")
	g.persist(participants, results)

	g.startPhaseCountdown(PhaseEnded.String(), g.cfg.ResultSeconds, func() {
		g.resetPlayers()
		g.enterLobby()
	})
}

// resetPlayers sends everyone back to the lobby with a clean slate.
func (g *Game) resetPlayers() {
	for _, p := range g.players.All() {
		g.timers.CancelOwner(playerOwner(p.ID))
		p.resetForLobby()
	}
	g.broadcastReadyList()
}

func (g *Game) persist(participants []*GamePlayer, results []GameResultEntry) {
	rec := MatchRecord{
		SessionID: g.id,
		Map:       g.layout.Type.String(),
		StartedAt: g.startedAt,
		EndedAt:   g.clock.Now(),
		Results:   results,
		AuthIDs:   make(map[string]int64),
	}
	for _, p := range participants {
		if p.AuthID != 0 {
			rec.AuthIDs[p.ID] = p.AuthID
		}
	}
	if data, err := json.Marshal(results); err == nil {
		g.track(EvtMatchEnd, 0, string(data))
	}
	if g.recorder == nil {
		return
	}
	logger := g.log
	go func() {
		if err := g.recorder.RecordMatchResult(rec); err != nil {
			logger.Error().Err(err).Msg("record match")
		}
	}()
}
