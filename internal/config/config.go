// Package config loads server configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every tunable for the chat server processes.
type Config struct {
	// WebSocket server.
	WSListenAddr   string        `envconfig:"WS_LISTEN_ADDR" default:":8080"`
	WorkerPoolSize int           `envconfig:"WORKER_POOL_SIZE" default:"256"`
	MaxConnections int           `envconfig:"MAX_CONNECTIONS" default:"100000"`
	ReadTimeout    time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout   time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`

	// REST API server.
	APIListenAddr string `envconfig:"API_LISTEN_ADDR" default:":8081"`

	// Backends.
	MongoURI  string `envconfig:"MONGO_URI" default:"mongodb://localhost:27017"`
	MongoDB   string `envconfig:"MONGO_DB" default:"parley"`
	RedisAddr string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	// NATS_URL empty disables the event feed entirely.
	NATSURL string `envconfig:"NATS_URL"`

	// Authentication.
	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"168h"`

	// ServerName identifies this instance in session records. Falls back to
	// the hostname.
	ServerName string `envconfig:"SERVER_NAME"`
}

// Load reads configuration from the environment and fills in the hostname
// fallback for ServerName.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}

	if cfg.ServerName == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "chat-server"
		}
		cfg.ServerName = host
	}
	return cfg, nil
}
