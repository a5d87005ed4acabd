package main

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	qrcode "github.com/skip2/go-qrcode"
)

var uuidPathRe = regexp.MustCompile(`^/[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

const (
	qrSize        = 256
	statsDays     = 7
	recentMatches = 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true // Non-browser clients don't send Origin
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return u.Host == r.Host
	},
}

func extractIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// staticExists reports whether name resolves to a file or directory under root
func staticExists(root http.Dir, name string) bool {
	f, err := root.Open(name)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("write json response")
	}
}

// SetupRoutes configures HTTP routes
func SetupRoutes(hub *Hub, clientDir string) *http.ServeMux {
	mux := http.NewServeMux()

	// Serve static files with no-cache so browsers always revalidate
	root := http.Dir(clientDir)
	fs := http.FileServer(root)
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-cache")
		// SPA: serve index.html for root and session join links
		if r.URL.Path == "/" || uuidPathRe.MatchString(r.URL.Path) {
			http.ServeFile(w, r, filepath.Join(clientDir, "index.html"))
			return
		}
		// FileServer strips Cache-Control from its own error pages
		if !staticExists(root, r.URL.Path) {
			http.NotFound(w, r)
			return
		}
		fs.ServeHTTP(w, r)
	}))

	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ip := extractIP(r)
		if !hub.CanAccept(ip) {
			http.Error(w, "too many connections", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Str("addr", ip).Msg("upgrade")
			return
		}

		hub.TrackConnect(ip)

		client := NewClient(hub, conn, ip)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()
	})

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, hub.sessions.ListSessions())
	})

	mux.HandleFunc("GET /api/leaderboard", func(w http.ResponseWriter, r *http.Request) {
		if hub.db == nil {
			writeJSON(w, []LeaderboardEntry{})
			return
		}
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 || limit > 100 {
			limit = 20
		}
		board, err := hub.db.GetLeaderboard(r.URL.Query().Get("sort"), limit)
		if err != nil {
			log.Error().Err(err).Msg("leaderboard")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if board == nil {
			board = []LeaderboardEntry{}
		}
		writeJSON(w, board)
	})

	mux.HandleFunc("GET /api/stats", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, collectStats(hub))
	})

	// Join link as a QR code, for players on a phone next to the screen
	mux.HandleFunc("GET /qr/{sid}", func(w http.ResponseWriter, r *http.Request) {
		sid := r.PathValue("sid")
		if hub.sessions.GetSession(sid) == nil {
			http.NotFound(w, r)
			return
		}
		link := strings.TrimRight(hub.publicURL, "/") + "/" + sid
		png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
		if err != nil {
			log.Error().Err(err).Str("session", sid).Msg("encode qr")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-cache")
		w.Write(png)
	})

	return mux
}

// ServerStats is the /api/stats payload
type ServerStats struct {
	Clients  int            `json:"clients"`
	Sessions int            `json:"sessions"`
	DAU      int            `json:"dau"`
	WAU      int            `json:"wau"`
	MAU      int            `json:"mau"`
	Maps     []MapAnalytics `json:"maps,omitempty"`
	Events   map[string]int `json:"events,omitempty"`
	Powerups map[string]int `json:"powerups,omitempty"`
	Daily    []DayCount     `json:"daily,omitempty"`
	Recent   []MatchRow     `json:"recent,omitempty"`
}

func collectStats(hub *Hub) ServerStats {
	st := ServerStats{
		Clients:  hub.ClientCount(),
		Sessions: hub.sessions.Count(),
	}
	if a := hub.analytics; a != nil {
		var err error
		if st.DAU, err = a.DAUCount(); err != nil {
			log.Warn().Err(err).Msg("dau")
		}
		if st.WAU, err = a.WAUCount(); err != nil {
			log.Warn().Err(err).Msg("wau")
		}
		if st.MAU, err = a.MAUCount(); err != nil {
			log.Warn().Err(err).Msg("mau")
		}
		if st.Maps, err = a.MapStats(statsDays); err != nil {
			log.Warn().Err(err).Msg("map stats")
		}
		if st.Events, err = a.EventCounts(statsDays); err != nil {
			log.Warn().Err(err).Msg("event counts")
		}
		if st.Powerups, err = a.PowerupUsage(statsDays); err != nil {
			log.Warn().Err(err).Msg("powerup usage")
		}
		if st.Daily, err = a.DailyActiveHistory(statsDays); err != nil {
			log.Warn().Err(err).Msg("daily active")
		}
	}
	if hub.db != nil {
		recent, err := hub.db.RecentMatches(recentMatches)
		if err != nil {
			log.Warn().Err(err).Msg("recent matches")
		}
		st.Recent = recent
	}
	return st
}
