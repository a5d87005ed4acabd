package main

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// GenerateID returns a random hex string of the given byte length
func GenerateID(byteLen int) string {
	b := make([]byte, byteLen)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// GenerateUUID returns a random UUID v4 string
func GenerateUUID() string {
	return uuid.NewString()
}

// cleanName trims s and cuts it to max bytes, falling back to def when empty
func cleanName(s, def string, max int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	if len(s) > max {
		s = s[:max]
	}
	return s
}

// attemptLimiter allows max hits per key inside a fixed window that opens on
// the first hit. Expired windows are dropped as the map is walked.
type attemptLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	clock  Clock
	hits   map[string]*attemptWindow
}

type attemptWindow struct {
	count int
	until time.Time
}

func newAttemptLimiter(max int, window time.Duration, clock Clock) *attemptLimiter {
	return &attemptLimiter{max: max, window: window, clock: clock, hits: make(map[string]*attemptWindow)}
}

// Allow records a hit for key and reports whether it is within the limit
func (l *attemptLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	w, ok := l.hits[key]
	if !ok || !now.Before(w.until) {
		l.prune(now)
		l.hits[key] = &attemptWindow{count: 1, until: now.Add(l.window)}
		return true
	}
	w.count++
	return w.count <= l.max
}

// Reset forgets key
func (l *attemptLimiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.hits, key)
}

func (l *attemptLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.hits)
}

func (l *attemptLimiter) prune(now time.Time) {
	for k, w := range l.hits {
		if !now.Before(w.until) {
			delete(l.hits, k)
		}
	}
}
