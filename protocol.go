package main

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/vmihailenco/msgpack/v5"
)

// Client -> Server message types
const (
	MsgJoin        = "join"
	MsgLeave       = "leave"
	MsgMove        = "move"
	MsgAttack      = "attack"
	MsgParry       = "parry"
	MsgVote        = "vote"
	MsgUnvote      = "unvote"
	MsgReady       = "ready"
	MsgUsePowerup  = "use_powerup"
	MsgCreate      = "create" // create session
	MsgList        = "list"   // list sessions
	MsgRegister    = "register"
	MsgLogin       = "login"
	MsgAuth        = "auth"
	MsgProfile     = "profile"
	MsgLeaderboard = "leaderboard"
)

// Server -> Client message types
const (
	MsgLobby       = "lobby"
	MsgVoteSession = "vote_session"
	MsgVotes       = "votes"
	MsgVoteEnd     = "vote_end"
	MsgMatchStart  = "match_start"
	MsgMatchEnd    = "match_end"
	MsgTimerStart  = "timer_start"
	MsgTimerTick   = "timer_tick"
	MsgTimerEnd    = "timer_end"
	MsgReadyList   = "ready_list"
	MsgReadyState  = "ready_state"
	MsgHealthList  = "health_list"
	MsgGotPowerup  = "got_powerup"
	MsgUsedPowerup = "used_powerup"
	MsgSpawn       = "spawn"
	MsgCameraMap   = "camera_map"
	MsgTile        = "tile"
	MsgEffect      = "effect"
	MsgEffectEnd   = "effect_end"
	MsgWelcome     = "welcome"
	MsgJoined      = "joined"
	MsgSessions    = "sessions"
	MsgCreated     = "created" // session created, client should navigate
	MsgError       = "error"
	MsgAuthOK      = "auth_ok"
	MsgProfileData = "profile"
	MsgBoard       = "leaderboard"
)

// binaryGridSnapshot prefixes msgpack grid frames on the wire.
const binaryGridSnapshot byte = 0x02

// Envelope wraps all outgoing messages with a type field
type Envelope struct {
	T    string      `json:"t"`
	Data interface{} `json:"d,omitempty"`
}

// InEnvelope is used for incoming messages; D stays raw until the type is known
type InEnvelope struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

// JoinMsg is sent when player wants to join a session
type JoinMsg struct {
	Name      string `json:"name"`
	SessionID string `json:"sid"`
}

// CreateMsg is sent when player wants to create a session
type CreateMsg struct {
	Name        string `json:"name"`
	SessionName string `json:"sname"`
}

// MoveMsg reports the avatar's world position and facing
type MoveMsg struct {
	Pos    Vec3 `json:"pos"`
	Facing Vec3 `json:"dir"`
}

// AimMsg carries an attack, parry or powerup use
type AimMsg struct {
	Pos Vec3 `json:"pos"`
	Dir Vec3 `json:"dir"`
}

// VoteMsg names a map candidate
type VoteMsg struct {
	Map string `json:"map"`
}

// RegisterMsg creates an account
type RegisterMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginMsg logs into an account
type LoginMsg struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthMsg resumes a session with a stored token
type AuthMsg struct {
	Token string `json:"token"`
}

// AuthOKMsg confirms authentication
type AuthOKMsg struct {
	Token    string `json:"token"`
	Username string `json:"username"`
	PlayerID int64  `json:"pid"`
}

// ProfileDataMsg is the account profile
type ProfileDataMsg struct {
	Username string `json:"username"`
	Matches  int    `json:"matches"`
	Wins     int    `json:"wins"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
}

// WelcomeMsg is sent to a player when they join
type WelcomeMsg struct {
	ID    string `json:"id"`
	Color Color  `json:"color"`
	Phase string `json:"phase"`
}

// LobbyMsg announces the lobby phase
type LobbyMsg struct {
	MinReady int `json:"minReady"`
}

// VoteSessionMsg opens a map vote
type VoteSessionMsg struct {
	Candidates []string `json:"candidates"`
	Seconds    float64  `json:"seconds"`
}

// VotesMsg is the running tally
type VotesMsg struct {
	Counts map[string]int `json:"counts"`
}

// VoteEndMsg announces the chosen map
type VoteEndMsg struct {
	Map    string         `json:"map"`
	Counts map[string]int `json:"counts"`
}

// MatchStartMsg describes the arena of a new match
type MatchStartMsg struct {
	Map        string   `json:"map"`
	Width      int      `json:"w"`
	Height     int      `json:"h"`
	TileSize   float64  `json:"size"`
	Procedural bool     `json:"procedural"`
	Players    []string `json:"players"`
}

// MatchEndMsg carries the final standings
type MatchEndMsg struct {
	Results []GameResultEntry `json:"results"`
	Winner  string            `json:"winner,omitempty"`
}

// TimerMsg is a countdown notification
type TimerMsg struct {
	Name    string `json:"name"`
	Seconds int    `json:"s"`
}

// ReadyStateMsg answers a ready toggle
type ReadyStateMsg struct {
	Ready bool `json:"ready"`
}

// PowerupMsg reports an inventory change
type PowerupMsg struct {
	Kind      string   `json:"kind"`
	Inventory []string `json:"inv"`
}

// SpawnMsg places a player's avatar
type SpawnMsg struct {
	ID  string `json:"id"`
	Pos Vec3   `json:"pos"`
}

// CameraMsg points an observer camera at the arena
type CameraMsg struct {
	Center Vec3    `json:"center"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

// EffectMsg reports an effect being applied to a player
type EffectMsg struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	Magnitude float64 `json:"mag,omitempty"`
	Duration  float64 `json:"dur,omitempty"`
	Source    string  `json:"src,omitempty"`
}

// SessionInfo is used in the session list
type SessionInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Players int    `json:"players"`
	Phase   string `json:"phase"`
}

// ErrorMsg sends error to client
type ErrorMsg struct {
	Msg string `json:"msg"`
}

// TileSnapshot is one tile of a binary grid frame
type TileSnapshot struct {
	X     int    `msgpack:"x"`
	Y     int    `msgpack:"y"`
	State int    `msgpack:"s"`
	Color Color  `msgpack:"c"`
	Pick  string `msgpack:"p,omitempty"`
}

// GridSnapshot is the whole arena, sent as msgpack when a match starts.
type GridSnapshot struct {
	Width    int            `msgpack:"w"`
	Height   int            `msgpack:"h"`
	TileSize float64        `msgpack:"size"`
	Seed     int64          `msgpack:"seed"`
	Tiles    []TileSnapshot `msgpack:"tiles"`
}

// SnapshotGrid captures the current state of g.
func SnapshotGrid(g *Grid) GridSnapshot {
	snap := GridSnapshot{
		Width:    g.Width(),
		Height:   g.Height(),
		TileSize: g.Config().Size,
		Seed:     g.Seed(),
		Tiles:    make([]TileSnapshot, 0, g.Width()*g.Height()),
	}
	g.eachTile(func(t *Tile) {
		ts := TileSnapshot{X: t.Pos.X, Y: t.Pos.Y, State: int(t.State), Color: t.Color}
		if t.Pickup != nil {
			ts.Pick = t.Pickup.ID
		}
		snap.Tiles = append(snap.Tiles, ts)
	})
	return snap
}

// EncodeGridSnapshot serialises a snapshot into a binary frame.
func EncodeGridSnapshot(snap GridSnapshot) ([]byte, error) {
	body, err := msgpack.Marshal(&snap)
	if err != nil {
		return nil, eris.Wrap(err, "encode grid snapshot")
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, binaryGridSnapshot)
	return append(out, body...), nil
}

// DecodeGridSnapshot is the inverse of EncodeGridSnapshot.
func DecodeGridSnapshot(frame []byte) (GridSnapshot, error) {
	var snap GridSnapshot
	if len(frame) == 0 || frame[0] != binaryGridSnapshot {
		return snap, eris.New("not a grid snapshot frame")
	}
	if err := msgpack.Unmarshal(frame[1:], &snap); err != nil {
		return snap, eris.Wrap(err, "decode grid snapshot")
	}
	return snap, nil
}

func inventoryNames(inv []PowerupKind) []string {
	out := make([]string, 0, len(inv))
	for _, k := range inv {
		out = append(out, k.String())
	}
	return out
}
