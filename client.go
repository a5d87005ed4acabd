package main

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	joinTimeout       = 2 * time.Second
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 50
	maxNameLen        = 16
	maxSessionNameLen = 30

	// binaryFrameMarker tags queued messages that WritePump must send as
	// binary frames. JSON text never starts with this byte.
	binaryFrameMarker = 0xFF
)

// Client represents a WebSocket connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	playerID   string
	sessionID  string
	remoteAddr string
	msgCount   int
	msgResetAt time.Time
	// Auth state
	authPlayerID int64  // 0 = unauthenticated/guest
	authUsername string // "" = unauthenticated
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("addr", c.remoteAddr).Msg("ws read")
			}
			break
		}

		if !c.allowMessage(time.Now()) {
			log.Warn().Str("addr", c.remoteAddr).Str("player", c.playerID).Msg("rate limit exceeded, disconnecting")
			break
		}
		c.handleMessage(message)
	}
}

// allowMessage counts a message against the one-second window
func (c *Client) allowMessage(now time.Time) bool {
	if now.After(c.msgResetAt) {
		c.msgCount = 0
		c.msgResetAt = now.Add(time.Second)
	}
	c.msgCount++
	return c.msgCount <= maxMessagesPerSec
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			frameType := websocket.TextMessage
			if len(message) > 0 && message[0] == binaryFrameMarker {
				frameType, message = websocket.BinaryMessage, message[1:]
			}
			if err := c.conn.WriteMessage(frameType, message); err != nil {
				log.Debug().Err(err).Str("addr", c.remoteAddr).Msg("ws write")
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("marshal outgoing message")
		return
	}
	c.SendRaw(data)
}

// SendRaw queues pre-marshaled JSON for the client
func (c *Client) SendRaw(data []byte) {
	c.enqueue(data)
}

// SendBinary queues a grid frame to go out as a binary WebSocket message
func (c *Client) SendBinary(data []byte) {
	msg := make([]byte, len(data)+1)
	msg[0] = binaryFrameMarker
	copy(msg[1:], data)
	c.enqueue(msg)
}

// enqueue drops the message when the client is too slow. Arenas may still
// hold the client after the hub closed its send channel, hence the recover.
func (c *Client) enqueue(msg []byte) {
	defer func() { recover() }()
	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) sendError(msg string) {
	c.SendJSON(Envelope{T: MsgError, Data: ErrorMsg{Msg: msg}})
}

// handleMessage routes incoming messages (single-pass decode via InEnvelope)
func (c *Client) handleMessage(raw []byte) {
	var env InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Debug().Err(err).Str("addr", c.remoteAddr).Msg("unmarshal incoming message")
		return
	}

	switch env.T {
	case MsgList:
		c.handleList()
	case MsgCreate:
		c.handleCreate(env.D)
	case MsgJoin:
		c.handleJoin(env.D)
	case MsgLeave:
		c.handleLeave()
	case MsgMove:
		c.handleMove(env.D)
	case MsgAttack, MsgParry, MsgUsePowerup:
		c.handleAim(env.T, env.D)
	case MsgVote, MsgUnvote:
		c.handleVote(env.T, env.D)
	case MsgReady:
		c.submit(ReadyCmd{PlayerID: c.playerID})
	case MsgRegister:
		c.handleRegister(env.D)
	case MsgLogin:
		c.handleLogin(env.D)
	case MsgAuth:
		c.handleAuth(env.D)
	case MsgProfile:
		c.handleProfile()
	case MsgLeaderboard:
		c.handleLeaderboard()
	}
}

// submit forwards an intent to the player's arena
func (c *Client) submit(cmd any) {
	if c.sessionID == "" || c.playerID == "" {
		return
	}
	sess := c.hub.sessions.GetSession(c.sessionID)
	if sess == nil {
		return
	}
	sess.Game.Submit(cmd)
}

func (c *Client) handleList() {
	sessions := c.hub.sessions.ListSessions()
	c.SendJSON(Envelope{T: MsgSessions, Data: sessions})
}

func (c *Client) handleCreate(data json.RawMessage) {
	var msg CreateMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	sname := cleanName(msg.SessionName, "Tile Arena", maxSessionNameLen)
	sess := c.hub.sessions.CreateSession(sname)
	if sess == nil {
		c.sendError("too many active sessions")
		return
	}
	c.SendJSON(Envelope{T: MsgCreated, Data: map[string]string{"sid": sess.ID}})
}

func (c *Client) handleJoin(data json.RawMessage) {
	var msg JoinMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	def := c.authUsername
	if def == "" {
		def = GenerateGuestName()
	}
	name := cleanName(msg.Name, def, maxNameLen)

	sess := c.hub.sessions.GetSession(msg.SessionID)
	if sess == nil {
		c.sendError("session not found")
		return
	}
	if c.sessionID != "" {
		c.handleLeave()
	}

	reply := make(chan JoinResult, 1)
	playerID := GenerateID(4)
	if !sess.Game.Submit(JoinCmd{ID: playerID, Name: name, AuthID: c.authPlayerID, Client: c, Reply: reply}) {
		c.sendError("session busy")
		return
	}
	var res JoinResult
	select {
	case res = <-reply:
	case <-time.After(joinTimeout):
		c.sendError("session did not respond")
		return
	}
	if res.Err != nil {
		if eris.Is(res.Err, ErrSessionFull) {
			c.sendError("session full")
		} else {
			c.sendError("could not join")
		}
		return
	}
	c.playerID = playerID
	c.sessionID = sess.ID
	c.SendJSON(Envelope{T: MsgJoined, Data: map[string]string{"sid": sess.ID, "id": playerID}})
}

func (c *Client) handleLeave() {
	if c.sessionID == "" {
		return
	}
	c.hub.sessions.RemovePlayer(c.sessionID, c.playerID)
	c.sessionID = ""
	c.playerID = ""
}

func (c *Client) handleMove(data json.RawMessage) {
	var msg MoveMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	c.submit(MoveCmd{PlayerID: c.playerID, Position: msg.Pos, Facing: msg.Facing})
}

func (c *Client) handleAim(kind string, data json.RawMessage) {
	var msg AimMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	switch kind {
	case MsgAttack:
		c.submit(AttackCmd{PlayerID: c.playerID, Position: msg.Pos, Direction: msg.Dir})
	case MsgParry:
		c.submit(ParryCmd{PlayerID: c.playerID, Position: msg.Pos, Direction: msg.Dir})
	case MsgUsePowerup:
		c.submit(UsePowerupCmd{PlayerID: c.playerID, Position: msg.Pos, Direction: msg.Dir})
	}
}

func (c *Client) handleVote(kind string, data json.RawMessage) {
	var msg VoteMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	m, ok := ParseMapType(msg.Map)
	if !ok {
		c.sendError("unknown map")
		return
	}
	c.submit(VoteCmd{PlayerID: c.playerID, Map: m, Unvote: kind == MsgUnvote})
}

// accountError turns an auth failure into something safe to show
func accountError(err error) string {
	for _, known := range []error{ErrBadCredentials, ErrUsernameTaken, ErrRateLimited, ErrInvalidToken} {
		if eris.Is(err, known) {
			return known.Error()
		}
	}
	if eris.Unwrap(err) == nil {
		return err.Error()
	}
	return "internal error"
}

func (c *Client) handleRegister(data json.RawMessage) {
	if c.hub.auth == nil {
		c.sendError("accounts disabled")
		return
	}
	var msg RegisterMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	acct, err := c.hub.auth.Register(msg.Username, msg.Password)
	if err != nil {
		log.Debug().Err(err).Str("username", msg.Username).Msg("register failed")
		c.sendError(accountError(err))
		return
	}
	c.authenticated(acct)
}

func (c *Client) handleLogin(data json.RawMessage) {
	if c.hub.auth == nil {
		c.sendError("accounts disabled")
		return
	}
	var msg LoginMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	if !c.hub.AllowLogin(c.remoteAddr) {
		c.sendError(ErrRateLimited.Error())
		return
	}
	acct, err := c.hub.auth.Login(msg.Username, msg.Password)
	if err != nil {
		log.Debug().Err(err).Str("username", msg.Username).Msg("login failed")
		c.sendError(accountError(err))
		return
	}
	c.hub.LoginSucceeded(c.remoteAddr)
	c.authenticated(acct)
}

func (c *Client) handleAuth(data json.RawMessage) {
	if c.hub.auth == nil {
		c.sendError("accounts disabled")
		return
	}
	var msg AuthMsg
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	acct, err := c.hub.auth.Resume(msg.Token)
	if err != nil {
		log.Debug().Err(err).Str("addr", c.remoteAddr).Msg("token rejected")
		c.sendError(ErrInvalidToken.Error())
		return
	}
	c.authenticated(acct)
}

func (c *Client) authenticated(acct Account) {
	c.authPlayerID = acct.ID
	c.authUsername = acct.Username
	if c.hub.analytics != nil {
		c.hub.analytics.Track(EvtLogin, acct.ID, c.sessionID, "")
	}
	c.SendJSON(Envelope{T: MsgAuthOK, Data: AuthOKMsg{
		Token:    acct.Token,
		Username: acct.Username,
		PlayerID: acct.ID,
	}})
}

func (c *Client) handleProfile() {
	if c.hub.db == nil || c.authPlayerID == 0 {
		c.sendError("not authenticated")
		return
	}
	stats, err := c.hub.db.GetStats(c.authPlayerID)
	if err != nil || stats == nil {
		c.sendError("profile not found")
		return
	}
	c.SendJSON(Envelope{T: MsgProfileData, Data: ProfileDataMsg{
		Username: c.authUsername,
		Matches:  stats.Matches,
		Wins:     stats.Wins,
		Kills:    stats.Kills,
		Deaths:   stats.Deaths,
	}})
}

func (c *Client) handleLeaderboard() {
	if c.hub.db == nil {
		c.sendError("leaderboard disabled")
		return
	}
	board, err := c.hub.db.GetLeaderboard("wins", 20)
	if err != nil {
		log.Error().Err(err).Msg("leaderboard")
		c.sendError("internal error")
		return
	}
	c.SendJSON(Envelope{T: MsgBoard, Data: board})
}
