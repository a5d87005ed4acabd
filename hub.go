package main

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	maxConnsPerIP    = 5
	maxTotalConns    = 1000
	loginWindow      = time.Minute
	maxLoginAttempts = 10
)

// Hub manages all connected clients and routes them to sessions
type Hub struct {
	mu         sync.RWMutex
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	sessions   *SessionManager
	// Connection limiting (mutex-protected, accessed from HTTP handlers)
	connMu     sync.Mutex
	ipConns    map[string]int
	totalConns int
	logins     *attemptLimiter
	// Auth, storage and analytics are optional
	db        *DB
	auth      *Auth
	analytics *Analytics
	publicURL string
}

// NewHub creates a new Hub. db and analytics may be nil, in which case
// accounts and persistence are disabled.
func NewHub(cfg Config, db *DB, analytics *Analytics) *Hub {
	opts := GameOptions{}
	if db != nil {
		opts.Recorder = db
	}
	if analytics != nil {
		opts.Analytics = analytics
	}
	h := &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		sessions:   NewSessionManager(cfg.Match, opts),
		ipConns:    make(map[string]int),
		logins:     newAttemptLimiter(maxLoginAttempts, loginWindow, realClock{}),
		db:         db,
		analytics:  analytics,
		publicURL:  cfg.PublicURL,
	}
	if db != nil {
		h.auth = NewAuth(db)
	}
	return h
}

func (h *Hub) CanAccept(ip string) bool {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	if h.totalConns >= maxTotalConns {
		return false
	}
	if h.ipConns[ip] >= maxConnsPerIP {
		return false
	}
	return true
}

func (h *Hub) TrackConnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]++
	h.totalConns++
}

func (h *Hub) TrackDisconnect(ip string) {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	h.ipConns[ip]--
	if h.ipConns[ip] <= 0 {
		delete(h.ipConns, ip)
	}
	h.totalConns--
}

// AllowLogin counts a password attempt against the address. Successful
// logins clear the count.
func (h *Hub) AllowLogin(ip string) bool { return h.logins.Allow(ip) }

// LoginSucceeded forgets earlier failures from the address
func (h *Hub) LoginSucceeded(ip string) { h.logins.Reset(ip) }

// Run processes register/unregister events
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.updateMetrics(n)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.updateMetrics(n)
			// Remove from session if in one
			if client.sessionID != "" {
				h.sessions.RemovePlayer(client.sessionID, client.playerID)
			}
			log.Debug().Str("addr", client.remoteAddr).Msg("client disconnected")
		}
	}
}

func (h *Hub) updateMetrics(clients int) {
	if h.analytics == nil {
		return
	}
	h.analytics.SetConcurrentPeers(clients)
	h.analytics.SetActiveSessions(h.sessions.Count())
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// TotalConns returns the tracked connection count
func (h *Hub) TotalConns() int {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.totalConns
}
