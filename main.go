package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		SetupLogger("info", true)
		log.Fatal().Err(err).Msg("load config")
	}

	addr := flag.String("addr", cfg.Addr, "HTTP listen address")
	dbPath := flag.String("db", cfg.DBPath, "SQLite database path (empty disables accounts and stats)")
	clientDir := flag.String("client", cfg.ClientDir, "Path to client directory (default: ../client)")
	flag.Parse()

	SetupLogger(cfg.LogLevel, cfg.LogPretty)

	if *clientDir == "" {
		exe, _ := os.Executable()
		*clientDir = filepath.Join(filepath.Dir(exe), "..", "client")
		// Fallback for development
		if _, err := os.Stat(*clientDir); os.IsNotExist(err) {
			*clientDir = "../client"
		}
	}
	cfg.Addr, cfg.DBPath, cfg.ClientDir = *addr, *dbPath, *clientDir

	var db *DB
	if cfg.DBPath != "" {
		db, err = OpenDB(cfg.DBPath)
		if err != nil {
			log.Error().Err(err).Str("path", cfg.DBPath).Msg("database unavailable, running without accounts")
			db = nil
		}
	}
	var analytics *Analytics
	if db != nil {
		analytics = NewAnalytics(db)
	}

	hub := NewHub(cfg, db, analytics)
	go hub.Run()

	mux := SetupRoutes(hub, cfg.ClientDir)

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{Addr: cfg.Addr, Handler: mux}

	go func() {
		log.Info().Str("addr", cfg.Addr).Str("client", cfg.ClientDir).Msg("server starting")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	<-stop
	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		server.Close()
	}
	hub.sessions.Close()
	if analytics != nil {
		analytics.Stop()
	}
	if db != nil {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("close database")
		}
	}
}
