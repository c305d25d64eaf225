package main

import (
	"flag"
	"log"
	"log/slog"
	"os"

	"scout/internal/config"
	server "scout/internal/http"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	cfg := config.Load(*configPath)

	// Set up logger
	level := slog.LevelInfo
	if cfg.Server.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))

	s := server.NewServer(cfg, logger)
	logger.Info("starting", "host", cfg.Server.Host, "port", cfg.Server.Port)
	if err := s.Listen(); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
