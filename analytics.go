package main

import (
	"database/sql"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

// Event types recorded by arenas and the transport
const (
	EvtMatchStart   = "match_start"
	EvtMatchEnd     = "match_end"
	EvtPlayerKill   = "player_kill"
	EvtPlayerDeath  = "player_death"
	EvtPowerupUsed  = "powerup_used"
	EvtSessionStart = "session_start"
	EvtSessionEnd   = "session_end"
	EvtLogin        = "login"
)

const (
	analyticsQueueSize = 1024
	analyticsBatchSize = 50
	analyticsFlushTick = 5 * time.Second
)

// AnalyticsEvent is one row of the analytics_events table
type AnalyticsEvent struct {
	Type      string
	PlayerID  int64 // account id, 0 for guests and arena-wide events
	SessionID string
	Data      string
	At        time.Time
}

// Analytics batches events on a background goroutine so arenas never wait
// on SQLite.
type Analytics struct {
	db     *DB
	events chan AnalyticsEvent
	stop   chan struct{}
	wg     sync.WaitGroup

	peers    atomic.Int64
	sessions atomic.Int64
	dropped  atomic.Int64
}

// NewAnalytics starts the background writer
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:     db,
		events: make(chan AnalyticsEvent, analyticsQueueSize),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track queues an event. It never blocks; a full queue drops the event.
func (a *Analytics) Track(evtType string, playerID int64, sessionID string, data string) {
	evt := AnalyticsEvent{Type: evtType, PlayerID: playerID, SessionID: sessionID, Data: data, At: time.Now().UTC()}
	select {
	case a.events <- evt:
	default:
		if a.dropped.Add(1)%100 == 1 {
			log.Warn().Int64("dropped", a.dropped.Load()).Msg("analytics queue full")
		}
	}
}

// SetConcurrentPeers records the number of connected sockets
func (a *Analytics) SetConcurrentPeers(n int) { a.peers.Store(int64(n)) }

// SetActiveSessions records the number of open arenas
func (a *Analytics) SetActiveSessions(n int) { a.sessions.Store(int64(n)) }

// GetLiveMetrics returns (peers, sessions)
func (a *Analytics) GetLiveMetrics() (int, int) {
	return int(a.peers.Load()), int(a.sessions.Load())
}

// Stop flushes whatever is queued and waits for the writer to exit
func (a *Analytics) Stop() {
	close(a.stop)
	a.wg.Wait()
}

func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]AnalyticsEvent, 0, analyticsBatchSize)
	ticker := time.NewTicker(analyticsFlushTick)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := a.flush(batch); err != nil {
			log.Error().Err(err).Int("events", len(batch)).Msg("analytics flush")
		}
		batch = batch[:0]
	}

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= analyticsBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-a.stop:
			for {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (a *Analytics) flush(events []AnalyticsEvent) error {
	if a.db == nil {
		return nil
	}
	tx, err := a.db.conn.Begin()
	if err != nil {
		return eris.Wrap(err, "begin")
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO analytics_events (event_type, player_id, session_id, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "prepare")
	}
	defer stmt.Close()

	for _, evt := range events {
		_, err := stmt.Exec(
			evt.Type,
			sql.NullInt64{Int64: evt.PlayerID, Valid: evt.PlayerID > 0},
			sql.NullString{String: evt.SessionID, Valid: evt.SessionID != ""},
			sql.NullString{String: evt.Data, Valid: evt.Data != ""},
			evt.At.Format(time.RFC3339),
		)
		if err != nil {
			return eris.Wrapf(err, "insert %s", evt.Type)
		}
	}
	return eris.Wrap(tx.Commit(), "commit")
}

// activeAccounts counts distinct accounts with any event since the start of
// the day `days` ago (0 = today).
func (a *Analytics) activeAccounts(days int) (int, error) {
	if a.db == nil {
		return 0, nil
	}
	var count int
	err := a.db.conn.QueryRow(`
		SELECT COUNT(DISTINCT player_id) FROM analytics_events
		WHERE player_id IS NOT NULL AND created_at >= date('now', '-' || ? || ' days')
	`, days).Scan(&count)
	return count, eris.Wrapf(err, "active accounts over %d days", days)
}

// DAUCount returns accounts active today
func (a *Analytics) DAUCount() (int, error) { return a.activeAccounts(0) }

// WAUCount returns accounts active in the last 7 days
func (a *Analytics) WAUCount() (int, error) { return a.activeAccounts(7) }

// MAUCount returns accounts active in the last 30 days
func (a *Analytics) MAUCount() (int, error) { return a.activeAccounts(30) }

// MapAnalytics is how often a map was played and how long matches on it last
type MapAnalytics struct {
	Map         string  `json:"map"`
	Count       int     `json:"count"`
	AvgDuration float64 `json:"avg_duration"`
}

// MapStats aggregates finished matches per map over the last N days
func (a *Analytics) MapStats(days int) ([]MapAnalytics, error) {
	if a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT map, COUNT(*) AS cnt, AVG(duration)
		FROM matches
		WHERE created_at >= datetime('now', '-' || ? || ' days')
		GROUP BY map ORDER BY cnt DESC, map
	`, days)
	if err != nil {
		return nil, eris.Wrap(err, "map stats")
	}
	defer rows.Close()

	var result []MapAnalytics
	for rows.Next() {
		var m MapAnalytics
		var avg sql.NullFloat64
		if err := rows.Scan(&m.Map, &m.Count, &avg); err != nil {
			return nil, eris.Wrap(err, "scan map stats")
		}
		m.AvgDuration = avg.Float64
		result = append(result, m)
	}
	return result, eris.Wrap(rows.Err(), "iterate map stats")
}

// EventCounts counts each event type over the last N days
func (a *Analytics) EventCounts(days int) (map[string]int, error) {
	return a.countBy("event_type", "1 = 1", days)
}

// PowerupUsage counts powerup activations by kind over the last N days
func (a *Analytics) PowerupUsage(days int) (map[string]int, error) {
	return a.countBy("data", "event_type = '"+EvtPowerupUsed+"'", days)
}

// countBy groups analytics_events by a fixed column. col and where are
// never user input.
func (a *Analytics) countBy(col, where string, days int) (map[string]int, error) {
	if a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT `+col+`, COUNT(*) FROM analytics_events
		WHERE `+where+` AND `+col+` IS NOT NULL AND created_at >= date('now', '-' || ? || ' days')
		GROUP BY `+col, days)
	if err != nil {
		return nil, eris.Wrapf(err, "count by %s", col)
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, eris.Wrapf(err, "scan count by %s", col)
		}
		result[key] = count
	}
	return result, eris.Wrap(rows.Err(), "iterate counts")
}

// DayCount is the number of active accounts on one day
type DayCount struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

// DailyActiveHistory returns active accounts per day over the last N days
func (a *Analytics) DailyActiveHistory(days int) ([]DayCount, error) {
	if a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.Query(`
		SELECT date(created_at) AS day, COUNT(DISTINCT player_id)
		FROM analytics_events
		WHERE player_id IS NOT NULL AND created_at >= date('now', '-' || ? || ' days')
		GROUP BY day ORDER BY day
	`, days)
	if err != nil {
		return nil, eris.Wrap(err, "daily active")
	}
	defer rows.Close()

	var result []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, eris.Wrap(err, "scan daily active")
		}
		result = append(result, dc)
	}
	return result, eris.Wrap(rows.Err(), "iterate daily active")
}
