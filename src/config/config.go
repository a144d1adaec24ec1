package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// TaskUpdatesExchange is the fanout exchange task workers publish status updates to.
const TaskUpdatesExchange = "task_updates"

// TokenTTL is how long an issued access token (and the client's auth_token
// cookie) stays valid.
const TokenTTL = 24 * time.Hour

type GlobalConfig struct {
	LogLevel          string
	Host              string
	Port              string
	RabbitHost        string
	RabbitPort        int32
	RabbitUser        string
	RabbitPass        string
	DBHost            string
	DBPort            int32
	DBUser            string
	DBPass            string
	DBName            string
	KeepaliveInterval time.Duration
}

func NewConfig() (GlobalConfig, error) {
	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		return GlobalConfig{}, fmt.Errorf("LOG_LEVEL environment variable is required")
	}

	host := os.Getenv("HOST")
	if host == "" {
		return GlobalConfig{}, fmt.Errorf("HOST environment variable is required")
	}

	port := os.Getenv("PORT")
	if port == "" {
		return GlobalConfig{}, fmt.Errorf("PORT environment variable is required")
	}

	// Get RabbitMQ connection details from environment
	rabbitHost := os.Getenv("RABBITMQ_HOST")
	if rabbitHost == "" {
		return GlobalConfig{}, fmt.Errorf("RABBITMQ_HOST environment variable is required")
	}

	rabbitPortStr := os.Getenv("RABBITMQ_PORT")
	if rabbitPortStr == "" {
		return GlobalConfig{}, fmt.Errorf("RABBITMQ_PORT environment variable is required")
	}
	rabbitPort, err := strconv.ParseInt(rabbitPortStr, 10, 32)
	if err != nil {
		return GlobalConfig{}, fmt.Errorf("RABBITMQ_PORT must be a valid integer: %w", err)
	}

	rabbitUser := os.Getenv("RABBITMQ_USER")
	if rabbitUser == "" {
		return GlobalConfig{}, fmt.Errorf("RABBITMQ_USER environment variable is required")
	}

	rabbitPass := os.Getenv("RABBITMQ_PASS")
	if rabbitPass == "" {
		return GlobalConfig{}, fmt.Errorf("RABBITMQ_PASS environment variable is required")
	}

	// Get PostgreSQL connection details from environment
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		return GlobalConfig{}, fmt.Errorf("DB_HOST environment variable is required")
	}

	dbPortStr := os.Getenv("DB_PORT")
	if dbPortStr == "" {
		return GlobalConfig{}, fmt.Errorf("DB_PORT environment variable is required")
	}
	dbPort, err := strconv.ParseInt(dbPortStr, 10, 32)
	if err != nil {
		return GlobalConfig{}, fmt.Errorf("DB_PORT must be a valid integer: %w", err)
	}

	dbUser := os.Getenv("DB_USER")
	if dbUser == "" {
		return GlobalConfig{}, fmt.Errorf("DB_USER environment variable is required")
	}

	dbPass := os.Getenv("DB_PASS")
	if dbPass == "" {
		return GlobalConfig{}, fmt.Errorf("DB_PASS environment variable is required")
	}

	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		return GlobalConfig{}, fmt.Errorf("DB_NAME environment variable is required")
	}

	// Keepalive interval for the task stream is tunable but not required.
	keepalive := 15 * time.Second
	if keepaliveStr := os.Getenv("STREAM_KEEPALIVE_INTERVAL"); keepaliveStr != "" {
		keepalive, err = time.ParseDuration(keepaliveStr)
		if err != nil {
			return GlobalConfig{}, fmt.Errorf("STREAM_KEEPALIVE_INTERVAL must be a valid duration: %w", err)
		}
	}

	return GlobalConfig{
		LogLevel:          logLevel,
		Host:              host,
		Port:              port,
		RabbitHost:        rabbitHost,
		RabbitPort:        int32(rabbitPort),
		RabbitUser:        rabbitUser,
		RabbitPass:        rabbitPass,
		DBHost:            dbHost,
		DBPort:            int32(dbPort),
		DBUser:            dbUser,
		DBPass:            dbPass,
		DBName:            dbName,
		KeepaliveInterval: keepalive,
	}, nil
}

func (c *GlobalConfig) GetHost() string { return c.Host }

func (c *GlobalConfig) GetPort() string { return c.Port }

// AMQPURL builds the connection URL for the RabbitMQ broker.
func (c *GlobalConfig) AMQPURL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%d/", c.RabbitUser, c.RabbitPass, c.RabbitHost, c.RabbitPort)
}
