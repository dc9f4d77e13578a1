package config

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Push backends.
const (
	PushMemory = "memory"
	PushRedis  = "redis"
)

// Store backends.
const (
	StoreMongo  = "mongo"
	StoreMemory = "memory"
)

type Config struct {
	Port      string `env:"PORT,      default=8080"`
	Env       string `env:"ENV,       default=development"`
	JWTSecret string `env:"JWT_SECRET"`
	LogLevel  string `env:"LOG_LEVEL, default=info"`
	Store     string `env:"STORE_BACKEND, default=mongo"`

	TokenTTL      time.Duration `env:"TOKEN_TTL, default=24h"`
	AdminUsername string        `env:"ADMIN_USERNAME"`
	AdminPassword string        `env:"ADMIN_PASSWORD"`
	// SeedClients pre-registers client ids for the memory store backend.
	SeedClients []string `env:"SEED_CLIENTS"`

	Mongo  MongoConfig
	Redis  RedisConfig
	Push   PushConfig
	AMQP   AMQPConfig
	Viewer ViewerConfig
}

type MongoConfig struct {
	URI         string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database    string `env:"MONGO_DB,  default=portal"`
	MaxPoolSize uint64 `env:"MONGO_MAX_POOL_SIZE, default=100"`
}

type RedisConfig struct {
	Addr        string        `env:"REDIS_ADDR, default=localhost:6379"`
	DB          int           `env:"REDIS_DB,   default=0"`
	PoolSize    int           `env:"REDIS_POOL_SIZE, default=20"`
	PresenceTTL time.Duration `env:"PRESENCE_TTL, default=90s"`
}

// PushConfig selects the fan-out used for change events. "memory" keeps it
// inside one process; "redis" shares it across replicas.
type PushConfig struct {
	Backend string `env:"PUSH_BACKEND, default=memory"`
	Workers int    `env:"PUSH_WORKERS, default=8"`
}

// AMQPConfig enables the chat-message consumer when URL is set.
type AMQPConfig struct {
	URL        string `env:"AMQP_URL"`
	Exchange   string `env:"AMQP_EXCHANGE,    default=portal.chat"`
	Queue      string `env:"AMQP_QUEUE,       default=portal.chat.ingest"`
	RoutingKey string `env:"AMQP_ROUTING_KEY, default=chat.message.created"`
	Prefetch   int    `env:"AMQP_PREFETCH,    default=16"`
	Workers    int    `env:"AMQP_WORKERS,     default=4"`
}

// ViewerConfig drives cmd/viewer.
type ViewerConfig struct {
	BaseURL           string        `env:"VIEWER_BASE_URL, default=http://localhost:8080"`
	Username          string        `env:"VIEWER_USERNAME"`
	Password          string        `env:"VIEWER_PASSWORD"`
	ClientID          string        `env:"VIEWER_CLIENT_ID"`
	PollInterval      time.Duration `env:"VIEWER_POLL_INTERVAL,      default=5s"`
	RefreshInterval   time.Duration `env:"VIEWER_REFRESH_INTERVAL,   default=10s"`
	HeartbeatInterval time.Duration `env:"VIEWER_HEARTBEAT_INTERVAL, default=30s"`
	RequestTimeout    time.Duration `env:"VIEWER_REQUEST_TIMEOUT,    default=10s"`
}

// Load reads configuration from environment variables using go-envconfig.
func Load() *Config {
	cfg, err := LoadWith(context.Background(), envconfig.OsLookuper())
	if err != nil {
		panic(fmt.Sprintf("config: failed to load configuration: %v", err))
	}
	return cfg
}

// LoadWith reads configuration through an arbitrary lookuper and validates it.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects unknown backends and a missing JWT secret outside development.
func (c *Config) Validate() error {
	if c.JWTSecret == "" && !c.IsDevelopment() {
		return fmt.Errorf("config: JWT_SECRET is required when ENV=%s", c.Env)
	}
	switch c.Push.Backend {
	case PushMemory, PushRedis:
	default:
		return fmt.Errorf("config: unknown PUSH_BACKEND %q", c.Push.Backend)
	}
	switch c.Store {
	case StoreMongo, StoreMemory:
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.Store)
	}
	return nil
}

// IsDevelopment reports whether the service runs with developer defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
