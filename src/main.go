package main

import (
	"log"
	"log/slog"
	"os"

	"compliance-stream/logger"
	"compliance-stream/src/config"
	"compliance-stream/src/server"
)

// @title Compliance Task Stream API
// @version 1.0
// @description Authentication and real-time task-status streaming for the compliance platform

// @contact.name   Compliance Platform Team
// @contact.url    https://github.com/your-org/compliance-stream
// @contact.email  compliance-stream@example.com

func main() {
	cfg := loadConfig()
	setupLogging()
	srv := createServer(cfg)
	if err := srv.Run(); err != nil {
		log.Fatalf("Server exited with error: %v", err)
	}
}

func loadConfig() config.GlobalConfig {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	return cfg
}

func setupLogging() {
	logger.Init()
	slogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(slogger)
}

func createServer(cfg config.GlobalConfig) *server.Server {
	srv, err := server.NewServer(&cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}
	return srv
}
