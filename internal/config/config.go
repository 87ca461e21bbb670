package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "AUCTION_"

type Config struct {
	LogLevel string `koanf:"log_level"`

	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Redis     RedisConfig     `koanf:"redis"`
	Kafka     KafkaConfig     `koanf:"kafka"`
	Auth      AuthConfig      `koanf:"auth"`
	Auction   AuctionConfig   `koanf:"auction"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	WebSocket WebSocketConfig `koanf:"websocket"`
}

type ServerConfig struct {
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig selects the ledger. An empty URL keeps everything in memory.
type DatabaseConfig struct {
	URL      string `koanf:"url"`
	MaxConns int32  `koanf:"max_conns"`
	Migrate  bool   `koanf:"migrate"`
	Seed     bool   `koanf:"seed"`
}

// RedisConfig enables cross-instance fan-out when URL is set
type RedisConfig struct {
	URL           string `koanf:"url"`
	Password      string `koanf:"password"`
	DB            int    `koanf:"db"`
	ChannelPrefix string `koanf:"channel_prefix"`
}

// KafkaConfig enables the bid event stream when Brokers is non-empty
type KafkaConfig struct {
	Brokers []string `koanf:"brokers"`
	Topic   string   `koanf:"topic"`
}

type AuthConfig struct {
	JWTSecret string        `koanf:"jwt_secret"`
	Issuer    string        `koanf:"issuer"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

type AuctionConfig struct {
	MinIncrement     int64         `koanf:"min_increment"`
	AntiSnipeWindow  time.Duration `koanf:"anti_snipe_window"`
	SweepInterval    time.Duration `koanf:"sweep_interval"`
	GracePeriod      time.Duration `koanf:"grace_period"`
	PublicBidderName string        `koanf:"public_bidder_name"`
}

type RateLimitConfig struct {
	BidsPerSecond float64 `koanf:"bids_per_second"`
	Burst         int     `koanf:"burst"`
}

type WebSocketConfig struct {
	PingPeriod     time.Duration `koanf:"ping_period"`
	PongWait       time.Duration `koanf:"pong_wait"`
	WriteWait      time.Duration `koanf:"write_wait"`
	SendBuffer     int           `koanf:"send_buffer"`
	MaxMessageSize int64         `koanf:"max_message_size"`
}

// Defaults returns the configuration used before any file or environment overrides
func Defaults() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 20 * time.Second,
		},
		Database: DatabaseConfig{
			MaxConns: 20,
			Migrate:  true,
			Seed:     true,
		},
		Redis: RedisConfig{
			ChannelPrefix: "auction:",
		},
		Kafka: KafkaConfig{
			Topic: "auction-events",
		},
		Auth: AuthConfig{
			JWTSecret: "dev-secret-change-me",
			Issuer:    "live-auction",
			TokenTTL:  24 * time.Hour,
		},
		Auction: AuctionConfig{
			MinIncrement:     1000,
			AntiSnipeWindow:  2 * time.Minute,
			SweepInterval:    30 * time.Second,
			GracePeriod:      5 * time.Second,
			PublicBidderName: "Bidder",
		},
		RateLimit: RateLimitConfig{
			BidsPerSecond: 2,
			Burst:         5,
		},
		WebSocket: WebSocketConfig{
			PingPeriod:     30 * time.Second,
			PongWait:       60 * time.Second,
			WriteWait:      10 * time.Second,
			SendBuffer:     64,
			MaxMessageSize: 4096,
		},
	}
}

// Load layers struct defaults, an optional YAML file and AUCTION_* environment variables.
// AUCTION_CONFIG_FILE overrides the file path.
func Load() (*Config, error) {
	path := os.Getenv(envPrefix + "CONFIG_FILE")
	if path == "" {
		path = "configs/config.yaml"
	}
	return LoadFrom(path)
}

// LoadFrom is Load with an explicit config file path
func LoadFrom(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps AUCTION_SERVER__READ_TIMEOUT to server.read_timeout. A single underscore
// stays inside the key so multi-word keys remain addressable; double underscore nests.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

// Validate rejects settings the auction engine cannot run with
func (c *Config) Validate() error {
	switch {
	case c.Auction.MinIncrement <= 0:
		return fmt.Errorf("auction.min_increment must be positive")
	case c.Auction.AntiSnipeWindow <= 0:
		return fmt.Errorf("auction.anti_snipe_window must be positive")
	case c.Auction.SweepInterval <= 0:
		return fmt.Errorf("auction.sweep_interval must be positive")
	case c.Auction.GracePeriod < 0:
		return fmt.Errorf("auction.grace_period must not be negative")
	case c.Auth.JWTSecret == "":
		return fmt.Errorf("auth.jwt_secret is required")
	case c.WebSocket.PingPeriod >= c.WebSocket.PongWait:
		return fmt.Errorf("websocket.ping_period must be shorter than websocket.pong_wait")
	}
	return nil
}
