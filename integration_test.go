package main

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------- helpers ----------

var uuidRegex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func integrationConfig() Config {
	mc := DefaultMatchConfig()
	mc.LobbySeconds = 60
	mc.PowerupMinSeconds = 1000
	mc.PowerupMaxSeconds = 1000
	return Config{PublicURL: "http://example.test/", Match: mc}
}

// startTestServer spins up an httptest.Server with a Hub and no database.
func startTestServer(t *testing.T) (*httptest.Server, string, *Hub) {
	t.Helper()

	tmpDir := t.TempDir()
	jsDir := filepath.Join(tmpDir, "js")
	require.NoError(t, os.MkdirAll(jsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "index.html"), []byte("<html>test</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(jsDir, "main.js"), []byte("// test"), 0o644))

	hub := NewHub(integrationConfig(), nil, nil)
	go hub.Run()

	srv := httptest.NewServer(SetupRoutes(hub, tmpDir))
	t.Cleanup(func() {
		srv.Close()
		hub.sessions.Close()
	})

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	return srv, wsURL, hub
}

func dialWS(t *testing.T, wsURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntil reads messages until one of type want arrives, skipping
// countdown chatter and binary grid frames.
func readUntil(t *testing.T, conn *websocket.Conn, want string) Envelope {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		msgType, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %s", want)
		if msgType == websocket.BinaryMessage {
			continue
		}
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		if env.T == want {
			return env
		}
	}
}

func sendMsg(t *testing.T, conn *websocket.Conn, msgType string, data interface{}) {
	t.Helper()
	raw, err := json.Marshal(Envelope{T: msgType, Data: data})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func dataMap(t *testing.T, env Envelope) map[string]interface{} {
	t.Helper()
	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

// createAndJoin creates a session then joins it. Returns the session and player IDs.
func createAndJoin(t *testing.T, conn *websocket.Conn, name, sname string) (string, string) {
	t.Helper()
	sendMsg(t, conn, MsgCreate, map[string]string{"name": name, "sname": sname})
	sid := dataMap(t, readUntil(t, conn, MsgCreated))["sid"].(string)
	pid := join(t, conn, name, sid)
	return sid, pid
}

func join(t *testing.T, conn *websocket.Conn, name, sid string) string {
	t.Helper()
	sendMsg(t, conn, MsgJoin, map[string]string{"name": name, "sid": sid})
	welcome := dataMap(t, readUntil(t, conn, MsgWelcome))
	joined := dataMap(t, readUntil(t, conn, MsgJoined))
	assert.Equal(t, sid, joined["sid"])
	assert.Equal(t, welcome["id"], joined["id"])
	return joined["id"].(string)
}

func getJSON(t *testing.T, url string, v interface{}) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// ---------- IDs ----------

func TestGenerateUUIDFormat(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := GenerateUUID()
		assert.Regexp(t, uuidRegex, id)
		assert.False(t, seen[id], "duplicate UUID %s", id)
		seen[id] = true
	}
}

func TestGenerateIDLength(t *testing.T) {
	for _, n := range []int{1, 4, 8} {
		assert.Len(t, GenerateID(n), n*2)
	}
}

func TestCleanName(t *testing.T) {
	assert.Equal(t, "def", cleanName("   ", "def", 5))
	assert.Equal(t, "abcde", cleanName("  abcdefgh ", "def", 5))
	assert.Equal(t, "bob", cleanName("bob", "def", 5))
}

// ---------- session manager ----------

func TestSessionManagerLifecycle(t *testing.T) {
	sm := NewSessionManager(integrationConfig().Match, GameOptions{})
	t.Cleanup(sm.Close)

	sess := sm.CreateSession("Arena")
	require.NotNil(t, sess)
	assert.Regexp(t, uuidRegex, sess.ID)
	assert.Same(t, sess, sm.GetSession(sess.ID))
	assert.Nil(t, sm.GetSession("missing"))
	assert.Equal(t, 1, sm.Count())

	list := sm.ListSessions()
	require.Len(t, list, 1)
	assert.Equal(t, SessionInfo{ID: sess.ID, Name: "Arena", Players: 0, Phase: "lobby"}, list[0])

	reply := make(chan JoinResult, 1)
	require.True(t, sess.Game.Submit(JoinCmd{ID: "p1", Name: "P", Client: &mockBroadcaster{}, Reply: reply}))
	res := <-reply
	require.NoError(t, res.Err)
	assert.Equal(t, 1, sess.Game.PlayerCount())

	// removing a player from an unknown session is a no-op
	sm.RemovePlayer("missing", "p1")

	sm.RemovePlayer(sess.ID, "p1")
	assert.Eventually(t, func() bool { return sm.Count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestSessionManagerClose(t *testing.T) {
	sm := NewSessionManager(integrationConfig().Match, GameOptions{})
	sm.CreateSession("a")
	sm.CreateSession("b")
	assert.Equal(t, 2, sm.Count())
	sm.Close()
	assert.Equal(t, 0, sm.Count())
}

// ---------- HTTP ----------

func TestSPARouting(t *testing.T) {
	srv, _, _ := startTestServer(t)

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/", http.StatusOK, "<html>"},
		{"/" + GenerateUUID(), http.StatusOK, "<html>"},
		{"/js/main.js", http.StatusOK, "// test"},
		{"/not-a-uuid", http.StatusNotFound, "404"},
		{"/js/missing.js", http.StatusNotFound, "404"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(srv.URL + tt.path)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), tt.body)
		})
	}
}

func TestAPISessionsAndStats(t *testing.T) {
	srv, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)
	sid, _ := createAndJoin(t, conn, "Pilot", "Arena")

	var sessions []SessionInfo
	getJSON(t, srv.URL+"/api/sessions", &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, sid, sessions[0].ID)
	assert.Equal(t, "Arena", sessions[0].Name)
	assert.Equal(t, 1, sessions[0].Players)

	var stats ServerStats
	getJSON(t, srv.URL+"/api/stats", &stats)
	assert.Equal(t, 1, stats.Sessions)
	assert.Equal(t, 1, stats.Clients)
	assert.Zero(t, stats.DAU)
}

func TestAPILeaderboardWithoutDatabase(t *testing.T) {
	srv, _, _ := startTestServer(t)
	var board []LeaderboardEntry
	getJSON(t, srv.URL+"/api/leaderboard?sort=kills", &board)
	assert.NotNil(t, board)
	assert.Empty(t, board)
}

func TestQRCode(t *testing.T) {
	srv, _, hub := startTestServer(t)
	sess := hub.sessions.CreateSession("Arena")
	require.NotNil(t, sess)

	resp, err := http.Get(srv.URL + "/qr/" + sess.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	png, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(png), "\x89PNG"))

	missing, err := http.Get(srv.URL + "/qr/" + GenerateUUID())
	require.NoError(t, err)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestWSEndpointRejectsPlainHTTP(t *testing.T) {
	srv, _, _ := startTestServer(t)
	resp, err := http.Get(srv.URL + "/ws")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ---------- WebSocket protocol ----------

func TestCreateAndJoinOverWS(t *testing.T) {
	_, wsURL, hub := startTestServer(t)
	c1 := dialWS(t, wsURL)
	sid, pid := createAndJoin(t, c1, "Pilot", "Arena")
	assert.Regexp(t, uuidRegex, sid)
	assert.Len(t, pid, 8)

	c2 := dialWS(t, wsURL)
	pid2 := join(t, c2, "", sid)
	assert.NotEqual(t, pid, pid2)

	list := readUntil(t, c1, MsgReadyList)
	assert.Equal(t, MsgReadyList, list.T)
	assert.Eventually(t, func() bool {
		return hub.sessions.GetSession(sid).Game.PlayerCount() == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestListSessionsOverWS(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	c1 := dialWS(t, wsURL)
	sid, _ := createAndJoin(t, c1, "Pilot", "Arena One")

	c2 := dialWS(t, wsURL)
	sendMsg(t, c2, MsgList, nil)
	env := readUntil(t, c2, MsgSessions)

	raw, err := json.Marshal(env.Data)
	require.NoError(t, err)
	var list []SessionInfo
	require.NoError(t, json.Unmarshal(raw, &list))
	require.Len(t, list, 1)
	assert.Equal(t, sid, list[0].ID)
	assert.Equal(t, "Arena One", list[0].Name)
	assert.Equal(t, "lobby", list[0].Phase)
}

func TestJoinNonExistentSession(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)
	sendMsg(t, conn, MsgJoin, map[string]string{"name": "P", "sid": GenerateUUID()})
	assert.Equal(t, "session not found", dataMap(t, readUntil(t, conn, MsgError))["msg"])
}

func TestReadyOverWS(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)
	createAndJoin(t, conn, "Pilot", "Arena")

	sendMsg(t, conn, MsgReady, nil)
	assert.Equal(t, true, dataMap(t, readUntil(t, conn, MsgReadyState))["ready"])
	sendMsg(t, conn, MsgReady, nil)
	assert.Equal(t, false, dataMap(t, readUntil(t, conn, MsgReadyState))["ready"])
}

func TestVoteUnknownMap(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)
	createAndJoin(t, conn, "Pilot", "Arena")

	sendMsg(t, conn, MsgVote, map[string]string{"map": "moon"})
	assert.Equal(t, "unknown map", dataMap(t, readUntil(t, conn, MsgError))["msg"])
}

func TestAccountsDisabledWithoutDatabase(t *testing.T) {
	_, wsURL, _ := startTestServer(t)
	conn := dialWS(t, wsURL)
	sendMsg(t, conn, MsgLogin, map[string]string{"username": "alice", "password": "secret"})
	assert.Equal(t, "accounts disabled", dataMap(t, readUntil(t, conn, MsgError))["msg"])
}

func TestLeaveWithoutJoining(t *testing.T) {
	_, wsURL, hub := startTestServer(t)
	conn := dialWS(t, wsURL)

	sendMsg(t, conn, MsgLeave, nil)
	sendMsg(t, conn, MsgAttack, map[string]interface{}{"pos": Vec3{}, "dir": Vec3{X: 1}})
	sendMsg(t, conn, MsgList, nil)

	// the connection survives and still answers
	readUntil(t, conn, MsgSessions)
	assert.Equal(t, 0, hub.sessions.Count())
}

func TestCreateAndLeaveSession(t *testing.T) {
	_, wsURL, hub := startTestServer(t)
	conn := dialWS(t, wsURL)
	sid, _ := createAndJoin(t, conn, "Pilot", "Arena")
	require.NotNil(t, hub.sessions.GetSession(sid))

	sendMsg(t, conn, MsgLeave, nil)
	assert.Eventually(t, func() bool {
		return hub.sessions.GetSession(sid) == nil
	}, 2*time.Second, 10*time.Millisecond)
}

func TestDisconnectCleansUpSession(t *testing.T) {
	_, wsURL, hub := startTestServer(t)
	conn := dialWS(t, wsURL)
	sid, _ := createAndJoin(t, conn, "Pilot", "Arena")

	conn.Close()
	assert.Eventually(t, func() bool {
		return hub.sessions.GetSession(sid) == nil && hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, hub.TotalConns())
}

func TestClientRateWindow(t *testing.T) {
	c := &Client{}
	now := time.Now()
	for i := 0; i < maxMessagesPerSec; i++ {
		require.True(t, c.allowMessage(now))
	}
	assert.False(t, c.allowMessage(now))
	assert.True(t, c.allowMessage(now.Add(1100*time.Millisecond)), "window resets")
}

func TestClientQueuesBinaryFrames(t *testing.T) {
	c := &Client{send: make(chan []byte, 2)}
	c.SendBinary([]byte{0x02, 0x01})
	c.SendJSON(Envelope{T: MsgError})
	assert.Equal(t, []byte{binaryFrameMarker, 0x02, 0x01}, <-c.send)
	assert.Equal(t, byte('{'), (<-c.send)[0])

	close(c.send)
	assert.NotPanics(t, func() { c.SendRaw([]byte("{}")) })
}
