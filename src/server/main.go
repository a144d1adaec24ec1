package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"compliance-stream/src/config"
	"compliance-stream/src/db"
	"compliance-stream/src/rabbitmq"
	"compliance-stream/src/repository"
	"compliance-stream/src/router"
	"compliance-stream/src/service"
)

// tokenPurgeInterval is how often expired access tokens are deleted.
const tokenPurgeInterval = time.Hour

// expiredTokenPurger is the slice of the token repository the purge loop uses.
type expiredTokenPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Server represents the HTTP server
type Server struct {
	config          *config.GlobalConfig
	database        *db.DB
	consumer        *rabbitmq.AMQPConsumer
	publisher       *rabbitmq.AMQPPublisher
	hub             *service.Hub
	http            *http.Server
	shutdownHandler ShutdownHandlerInterface
	purgeInterval   time.Duration
	purgeStop       chan struct{}
}

// NewServer creates a new server instance
func NewServer(cfg *config.GlobalConfig) (*Server, error) {
	// Initialize database connection
	database, err := db.NewDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	consumer, err := rabbitmq.NewAMQPConsumer(cfg.AMQPURL())
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to connect consumer to RabbitMQ: %w", err)
	}

	publisher, err := rabbitmq.NewAMQPPublisher(cfg.AMQPURL())
	if err != nil {
		consumer.Close()
		database.Close()
		return nil, fmt.Errorf("failed to connect publisher to RabbitMQ: %w", err)
	}

	server := &Server{
		config:        cfg,
		database:      database,
		consumer:      consumer,
		publisher:     publisher,
		hub:           service.NewHub(),
		purgeInterval: tokenPurgeInterval,
		purgeStop:     make(chan struct{}),
	}

	// Create and assign shutdown handler
	server.shutdownHandler = NewShutdownHandler(server)

	return server, nil
}

// Run starts the server with graceful shutdown using ShutdownHandler
func (s *Server) Run() error {
	osSignals := make(chan os.Signal, 1)
	signal.Notify(osSignals, syscall.SIGINT, syscall.SIGTERM)

	serverDone := s.startServerGoroutine()

	return s.shutdownHandler.HandleShutdown(serverDone, osSignals)
}

// startServerGoroutine starts the HTTP server in a goroutine and returns a channel for errors
func (s *Server) startServerGoroutine() chan error {
	serverDone := make(chan error, 1)

	go func() {
		// Every task update drained from the broker fans out to the
		// connected stream subscribers.
		if err := s.consumer.Consume(config.TaskUpdatesExchange, s.hub.Broadcast); err != nil {
			serverDone <- fmt.Errorf("failed to start task update consumer: %w", err)
			return
		}

		userRepo := repository.NewUserRepository(s.database)
		tokenRepo := repository.NewTokenRepository(s.database)
		authService := service.NewAuthService(userRepo, tokenRepo)

		go s.purgeExpiredTokens(tokenRepo)

		r := router.NewRouter(s.config, authService, s.hub, s.publisher)

		// Create HTTP server
		httpServer := &http.Server{
			Addr:    fmt.Sprintf("%s:%s", s.config.GetHost(), s.config.GetPort()),
			Handler: r,
		}
		s.http = httpServer

		slog.Info("Starting HTTP server", "addr", httpServer.Addr)

		err := httpServer.ListenAndServe()
		if err == http.ErrServerClosed {
			err = nil
		}
		serverDone <- err
	}()

	return serverDone
}

// purgeExpiredTokens periodically deletes access tokens past their expiry so
// the token table does not grow without bound. It runs until purgeStop closes.
func (s *Server) purgeExpiredTokens(tokens expiredTokenPurger) {
	ticker := time.NewTicker(s.purgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.purgeStop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if _, err := tokens.DeleteExpired(ctx); err != nil {
				slog.Error("Failed to purge expired tokens", "error", err)
			}
			cancel()
		}
	}
}
