package main

import (
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database connection
type DB struct {
	conn *sql.DB
}

// PlayerRow represents an account in the database
type PlayerRow struct {
	ID        int64
	Username  string
	PassHash  string
	CreatedAt time.Time
}

// StatsRow represents account stats
type StatsRow struct {
	PlayerID int64
	Matches  int
	Wins     int
	Kills    int
	Deaths   int
}

// MatchRow represents a finished match
type MatchRow struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session"`
	Map       string    `json:"map"`
	Duration  float64   `json:"duration"`
	Winner    string    `json:"winner,omitempty"`
	Players   int       `json:"players"`
	CreatedAt time.Time `json:"created_at"`
}

// OpenDB opens (or creates) the SQLite database
func OpenDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, eris.Wrapf(err, "open %s", path)
	}

	// WAL lets the analytics writer and match recorder run alongside reads
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "enable wal")
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, eris.Wrap(err, "enable foreign keys")
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return db, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates tables if they don't exist
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS players (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		pass_hash TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS stats (
		player_id INTEGER PRIMARY KEY REFERENCES players(id),
		matches INTEGER NOT NULL DEFAULT 0,
		wins INTEGER NOT NULL DEFAULT 0,
		kills INTEGER NOT NULL DEFAULT 0,
		deaths INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS matches (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		map TEXT NOT NULL,
		duration REAL NOT NULL DEFAULT 0,
		winner TEXT NOT NULL DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS match_players (
		match_id INTEGER NOT NULL REFERENCES matches(id),
		game_id TEXT NOT NULL,
		name TEXT NOT NULL,
		account_id INTEGER REFERENCES players(id),
		kills INTEGER NOT NULL DEFAULT 0,
		winner INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (match_id, game_id)
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS analytics_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		player_id INTEGER,
		session_id TEXT,
		data TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_match_players_account ON match_players(account_id);
	CREATE INDEX IF NOT EXISTS idx_analytics_type_time ON analytics_events(event_type, created_at);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		log.Error().Err(err).Msg("db migration")
		return eris.Wrap(err, "migrate")
	}
	return nil
}

// CreatePlayer creates a new account (returns account ID)
func (db *DB) CreatePlayer(username, passHash string) (int64, error) {
	res, err := db.conn.Exec("INSERT INTO players (username, pass_hash) VALUES (?, ?)", username, passHash)
	if err != nil {
		return 0, eris.Wrap(err, "insert player")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, eris.Wrap(err, "player id")
	}
	if _, err := db.conn.Exec("INSERT INTO stats (player_id) VALUES (?)", id); err != nil {
		return 0, eris.Wrap(err, "insert stats")
	}
	return id, nil
}

// GetPlayerByUsername returns an account by username, nil if none
func (db *DB) GetPlayerByUsername(username string) (*PlayerRow, error) {
	row := db.conn.QueryRow("SELECT id, username, pass_hash, created_at FROM players WHERE username = ?", username)
	p := &PlayerRow{}
	err := row.Scan(&p.ID, &p.Username, &p.PassHash, &p.CreatedAt)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, eris.Wrap(err, "select player")
}

// UsernameExists checks if a username is taken
func (db *DB) UsernameExists(username string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM players WHERE username = ?", username).Scan(&count)
	return count > 0, eris.Wrap(err, "count players")
}

// GetStats returns account stats, nil if none
func (db *DB) GetStats(playerID int64) (*StatsRow, error) {
	row := db.conn.QueryRow("SELECT player_id, matches, wins, kills, deaths FROM stats WHERE player_id = ?", playerID)
	s := &StatsRow{}
	err := row.Scan(&s.PlayerID, &s.Matches, &s.Wins, &s.Kills, &s.Deaths)
	if eris.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return s, eris.Wrap(err, "select stats")
}

// GetSetting returns a stored setting, "" if unset
func (db *DB) GetSetting(key string) string {
	var v string
	if err := db.conn.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&v); err != nil {
		return ""
	}
	return v
}

// SetSetting stores a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return eris.Wrap(err, "set setting")
}

// RecordMatchResult stores a finished match and folds it into account
// stats, all in one transaction.
func (db *DB) RecordMatchResult(rec MatchRecord) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return eris.Wrap(err, "begin")
	}
	defer tx.Rollback()

	winner := ""
	for _, r := range rec.Results {
		if r.Winner {
			winner = r.PlayerID
		}
	}
	res, err := tx.Exec(
		"INSERT INTO matches (session_id, map, duration, winner, created_at) VALUES (?, ?, ?, ?, ?)",
		rec.SessionID, rec.Map, rec.EndedAt.Sub(rec.StartedAt).Seconds(), winner, rec.EndedAt.UTC(),
	)
	if err != nil {
		return eris.Wrap(err, "insert match")
	}
	matchID, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "match id")
	}

	for _, r := range rec.Results {
		account := sql.NullInt64{}
		if id, ok := rec.AuthIDs[r.PlayerID]; ok {
			account = sql.NullInt64{Int64: id, Valid: true}
		}
		if _, err := tx.Exec(
			"INSERT INTO match_players (match_id, game_id, name, account_id, kills, winner) VALUES (?, ?, ?, ?, ?, ?)",
			matchID, r.PlayerID, r.Name, account, r.Kills, r.Winner,
		); err != nil {
			return eris.Wrapf(err, "insert match player %s", r.PlayerID)
		}
		if !account.Valid {
			continue
		}
		win, death := 0, 1
		if r.Winner {
			win, death = 1, 0
		}
		if _, err := tx.Exec(
			"UPDATE stats SET matches = matches + 1, wins = wins + ?, kills = kills + ?, deaths = deaths + ? WHERE player_id = ?",
			win, r.Kills, death, account.Int64,
		); err != nil {
			return eris.Wrapf(err, "update stats %d", account.Int64)
		}
	}
	return eris.Wrap(tx.Commit(), "commit")
}

// RecentMatches returns the latest finished matches
func (db *DB) RecentMatches(limit int) ([]MatchRow, error) {
	rows, err := db.conn.Query(`
		SELECT m.id, m.session_id, m.map, m.duration, m.winner, m.created_at,
			(SELECT COUNT(*) FROM match_players mp WHERE mp.match_id = m.id)
		FROM matches m ORDER BY m.created_at DESC, m.id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "select matches")
	}
	defer rows.Close()

	var result []MatchRow
	for rows.Next() {
		var m MatchRow
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Map, &m.Duration, &m.Winner, &m.CreatedAt, &m.Players); err != nil {
			return nil, eris.Wrap(err, "scan match")
		}
		result = append(result, m)
	}
	return result, eris.Wrap(rows.Err(), "iterate matches")
}

// LeaderboardEntry represents one row in the leaderboard
type LeaderboardEntry struct {
	Rank     int    `json:"rank"`
	Username string `json:"username"`
	Matches  int    `json:"matches"`
	Wins     int    `json:"wins"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
}

// GetLeaderboard returns top accounts sorted by the given field
func (db *DB) GetLeaderboard(orderBy string, limit int) ([]LeaderboardEntry, error) {
	// Whitelist valid order columns
	validCols := map[string]string{
		"wins": "s.wins", "kills": "s.kills", "matches": "s.matches",
		"kd": "CASE WHEN s.deaths > 0 THEN CAST(s.kills AS REAL)/s.deaths ELSE s.kills END",
	}
	col, ok := validCols[orderBy]
	if !ok {
		col = "s.wins"
	}

	query := `SELECT p.username, s.matches, s.wins, s.kills, s.deaths
		FROM stats s JOIN players p ON p.id = s.player_id
		ORDER BY ` + col + ` DESC, p.username ASC LIMIT ?`

	rows, err := db.conn.Query(query, limit)
	if err != nil {
		return nil, eris.Wrap(err, "select leaderboard")
	}
	defer rows.Close()

	var result []LeaderboardEntry
	rank := 1
	for rows.Next() {
		var e LeaderboardEntry
		if err := rows.Scan(&e.Username, &e.Matches, &e.Wins, &e.Kills, &e.Deaths); err != nil {
			return nil, eris.Wrap(err, "scan leaderboard")
		}
		e.Rank = rank
		rank++
		result = append(result, e)
	}
	return result, eris.Wrap(rows.Err(), "iterate leaderboard")
}
