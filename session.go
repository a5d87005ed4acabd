package main

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

const maxSessions = 100

// Session is one arena that players can join
type Session struct {
	ID   string
	Name string
	Game *Game

	cancel context.CancelFunc
}

// SessionManager handles creation and lookup of sessions
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      MatchConfig
	opts     GameOptions
}

// NewSessionManager creates a new SessionManager. Every arena it creates
// uses cfg and shares the collaborators in opts.
func NewSessionManager(cfg MatchConfig, opts GameOptions) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		cfg:      cfg,
		opts:     opts,
	}
}

// CreateSession creates and starts an arena. Returns nil if limit reached.
func (sm *SessionManager) CreateSession(name string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if len(sm.sessions) >= maxSessions {
		return nil
	}

	id := GenerateUUID()
	opts := sm.opts
	opts.Rand = nil // each arena seeds its own source
	game := NewGame(id, sm.cfg, opts)
	ctx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		ID:     id,
		Name:   name,
		Game:   game,
		cancel: cancel,
	}
	game.OnEmpty = sm.removeSession
	sm.sessions[id] = sess
	go game.Run(ctx)
	log.Info().Str("session", id).Str("name", name).Msg("session created")
	return sess
}

// GetSession returns a session by ID
func (sm *SessionManager) GetSession(id string) *Session {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.sessions[id]
}

// RemovePlayer asks a session to drop a player. The arena removes itself
// once its last player is gone.
func (sm *SessionManager) RemovePlayer(sessionID, playerID string) {
	sess := sm.GetSession(sessionID)
	if sess == nil {
		return
	}
	sess.Game.Submit(LeaveCmd{PlayerID: playerID})
}

func (sm *SessionManager) removeSession(id string) {
	sm.mu.Lock()
	sess, ok := sm.sessions[id]
	delete(sm.sessions, id)
	sm.mu.Unlock()
	if ok {
		sess.cancel()
		log.Info().Str("session", id).Msg("session closed")
	}
}

// ListSessions returns info about all active sessions
func (sm *SessionManager) ListSessions() []SessionInfo {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	list := make([]SessionInfo, 0, len(sm.sessions))
	for _, sess := range sm.sessions {
		list = append(list, SessionInfo{
			ID:      sess.ID,
			Name:    sess.Name,
			Players: sess.Game.PlayerCount(),
			Phase:   sess.Game.PhaseName(),
		})
	}
	return list
}

// Count returns the number of sessions
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}

// Close stops every arena
func (sm *SessionManager) Close() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for id, sess := range sm.sessions {
		sess.cancel()
		delete(sm.sessions, id)
	}
}
