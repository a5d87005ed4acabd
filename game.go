package main

import (
	"context"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Broadcaster interface for sending messages to clients
type Broadcaster interface {
	SendJSON(msg interface{})
	SendBinary(data []byte)
}

// MatchRecorder persists finished matches.
type MatchRecorder interface {
	RecordMatchResult(rec MatchRecord) error
}

// EventTracker receives analytics events. It must not block.
type EventTracker interface {
	Track(evtType string, playerID int64, sessionID string, data string)
}

// MatchRecord is what gets stored when a match ends.
type MatchRecord struct {
	SessionID string
	Map       string
	StartedAt time.Time
	EndedAt   time.Time
	Results   []GameResultEntry
	AuthIDs   map[string]int64 // in-game id -> account id, guests omitted
}

// GameOptions are the optional collaborators of a Game.
type GameOptions struct {
	Clock     Clock
	Rand      *rand.Rand
	Recorder  MatchRecorder
	Analytics EventTracker
}

const inboxSize = 256

var (
	phaseTimer   = TimerKey{Owner: "match", Purpose: "phase"}
	powerupTimer = TimerKey{Owner: "match", Purpose: "powerup"}
)

// Game is one arena: a lobby, a vote and a match, looping forever. All of
// its state is owned by the goroutine running Run; other goroutines talk to
// it through Submit.
type Game struct {
	id      string
	cfg     MatchConfig
	clock   Clock
	rng     *rand.Rand
	log     zerolog.Logger
	inbox   chan any
	players *Registry
	clients map[string]Broadcaster
	timers  *Timers
	grid    *Grid
	votes   *VoteTally

	phase     Phase
	layout    MapLayout
	startedAt time.Time
	lastFrame time.Time
	lastTick  map[TimerKey]int

	recorder  MatchRecorder
	analytics EventTracker

	// OnEmpty runs on the arena goroutine when the last player leaves.
	OnEmpty func(id string)

	playerCount atomic.Int32
	phaseName   atomic.Value
}

// NewGame creates an arena in its lobby. Run must be started for it to
// advance on its own.
func NewGame(id string, cfg MatchConfig, opts GameOptions) *Game {
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	g := &Game{
		id:        id,
		cfg:       cfg,
		clock:     opts.Clock,
		rng:       opts.Rand,
		log:       log.With().Str("session", id).Logger(),
		inbox:     make(chan any, inboxSize),
		players:   NewRegistry(cfg.AttackRange),
		clients:   make(map[string]Broadcaster),
		timers:    NewTimers(),
		votes:     NewVoteTally(),
		lastTick:  make(map[TimerKey]int),
		recorder:  opts.Recorder,
		analytics: opts.Analytics,
	}
	g.lastFrame = g.clock.Now()
	g.enterLobby()
	return g
}

// ID returns the arena id
func (g *Game) ID() string { return g.id }

// Run drives the arena until ctx is cancelled
func (g *Game) Run(ctx context.Context) {
	ticker := time.NewTicker(g.cfg.TickDuration())
	defer ticker.Stop()
	g.lastFrame = g.clock.Now()

	for {
		select {
		case <-ctx.Done():
			g.shutdown()
			return
		case cmd := <-g.inbox:
			g.handleCommand(cmd)
		case <-ticker.C:
			now := g.clock.Now()
			dt := now.Sub(g.lastFrame).Seconds()
			g.lastFrame = now
			g.step(dt)
		}
	}
}

// Submit queues a command for the arena goroutine. It reports false when
// the inbox is full.
func (g *Game) Submit(cmd any) bool {
	select {
	case g.inbox <- cmd:
		return true
	default:
		g.log.Warn().Msg("inbox full, dropping command")
		return false
	}
}

// PlayerCount returns the number of players. Safe from any goroutine.
func (g *Game) PlayerCount() int {
	return int(g.playerCount.Load())
}

// PhaseName returns the current phase. Safe from any goroutine.
func (g *Game) PhaseName() string {
	if s, ok := g.phaseName.Load().(string); ok {
		return s
	}
	return ""
}

// step advances every timer by dt seconds.
func (g *Game) step(dt float64) {
	g.timers.Advance(dt)
	if g.grid.Initialized() {
		g.grid.Advance(dt)
	}
}

func (g *Game) setPhase(p Phase) {
	g.phase = p
	g.phaseName.Store(p.String())
	g.log = log.With().Str("session", g.id).Str("phase", p.String()).Logger()
}

func (g *Game) shutdown() {
	g.timers.Clear()
	g.grid.Reset()
	g.log.Info().Msg("arena stopped")
}

// handleCommand dispatches one inbox command. Rejected intents are logged
// and dropped; they never reach the sender as anything but silence.
func (g *Game) handleCommand(cmd any) {
	var (
		err    error
		player string
		intent string
	)
	switch c := cmd.(type) {
	case JoinCmd:
		p, jerr := g.join(c)
		if c.Reply != nil {
			c.Reply <- JoinResult{Player: p, Err: jerr}
		}
		player, intent, err = c.ID, MsgJoin, jerr
	case LeaveCmd:
		g.leave(c.PlayerID)
	case MoveCmd:
		player, intent, err = c.PlayerID, MsgMove, g.move(c)
	case AttackCmd:
		player, intent, err = c.PlayerID, MsgAttack, g.attack(c)
	case ParryCmd:
		player, intent, err = c.PlayerID, MsgParry, g.parry(c)
	case VoteCmd:
		player, intent, err = c.PlayerID, MsgVote, g.vote(c)
	case ReadyCmd:
		ready, rerr := g.toggleReady(c.PlayerID)
		if c.Reply != nil {
			c.Reply <- ready
		}
		player, intent, err = c.PlayerID, MsgReady, rerr
	case UsePowerupCmd:
		player, intent, err = c.PlayerID, MsgUsePowerup, g.usePowerup(c)
	default:
		g.log.Error().Type("cmd", cmd).Msg("unknown command")
	}
	if err != nil {
		g.reject(player, intent, err)
	}
}

func (g *Game) reject(player, intent string, err error) {
	ev := g.log.Debug()
	if eris.Is(err, ErrGridNotInitialized) {
		ev = g.log.Error()
	}
	ev.Str("player", player).Str("intent", intent).Err(err).Msg("intent rejected")
}

// broadcast sends msg to every client
func (g *Game) broadcast(msg Envelope) {
	for _, c := range g.clients {
		c.SendJSON(msg)
	}
}

// sendTo sends msg to one player's client
func (g *Game) sendTo(playerID string, msg Envelope) {
	if c, ok := g.clients[playerID]; ok {
		c.SendJSON(msg)
	}
}

func (g *Game) broadcastBinary(data []byte) {
	for _, c := range g.clients {
		c.SendBinary(data)
	}
}

func (g *Game) broadcastReadyList() {
	g.broadcast(Envelope{T: MsgReadyList, Data: g.players.ReadyList()})
}

func (g *Game) broadcastHealthList() {
	g.broadcast(Envelope{T: MsgHealthList, Data: g.players.HealthList()})
}

func (g *Game) broadcastTileEvent(ev TileEvent) {
	g.broadcast(Envelope{T: MsgTile, Data: ev})
}

func (g *Game) broadcastGrid() {
	frame, err := EncodeGridSnapshot(SnapshotGrid(g.grid))
	if err != nil {
		g.log.Error().Err(err).Msg("grid snapshot")
		return
	}
	g.broadcastBinary(frame)
}

func (g *Game) track(evt string, playerID int64, data string) {
	if g.analytics != nil {
		g.analytics.Track(evt, playerID, g.id, data)
	}
}

// tickOnce reports whether seconds differs from the last value reported
// under key, so countdown ticks go out once per whole second.
func (g *Game) tickOnce(key TimerKey, seconds int) bool {
	if last, ok := g.lastTick[key]; ok && last == seconds {
		return false
	}
	g.lastTick[key] = seconds
	return true
}
