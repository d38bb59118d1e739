// Package config loads the bridge configuration from YAML with BRIDGE_
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DriverKafka = "kafka"
	DriverNats  = "nats"
)

// ServerConfig holds the HTTP/WebSocket listener settings.
type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	HealthAddr string `mapstructure:"health_addr"` // gRPC health service; empty disables it
	WsPath     string `mapstructure:"ws_path"`
	// SendQueue is the per-connection outbound buffer; a full buffer counts as a
	// failed delivery.
	SendQueue      int           `mapstructure:"send_queue"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	// PingInterval is a transport keep-alive, not an idle timeout: a peer that
	// answers pings may stay silent forever, one that does not is dropped after
	// two intervals. Zero turns pings and the read deadline off.
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"`
	ShutdownGrace  time.Duration `mapstructure:"shutdown_grace"`
	// NodeID seeds connection ids; give each bridge instance its own.
	NodeID int64 `mapstructure:"node_id"`
}

// StreamConfig selects the event stream driver.
type StreamConfig struct {
	Driver string `mapstructure:"driver"`
}

type KafkaConfig struct {
	Brokers                 []string `mapstructure:"brokers"`
	GroupID                 string   `mapstructure:"group_id"`
	InboundTopic            string   `mapstructure:"inbound_topic"`
	OutboundTopic           string   `mapstructure:"outbound_topic"`
	Version                 string   `mapstructure:"version"`
	ProducerCompression     string   `mapstructure:"producer_compression"` // none/snappy/lz4/zstd
	ConsumerInitialOffset   string   `mapstructure:"consumer_initial_offset"`
	ProducerRetries         int      `mapstructure:"producer_retries"`
	AutoCreateTopicsOnStart bool     `mapstructure:"auto_create_topics"`
	PartitionsPerTopic      int32    `mapstructure:"partitions_per_topic"`
	ReplicationFactor       int16    `mapstructure:"replication_factor"`
}

type NatsConfig struct {
	Servers         []string      `mapstructure:"servers"`
	Name            string        `mapstructure:"name"`
	InboundSubject  string        `mapstructure:"inbound_subject"`
	OutboundSubject string        `mapstructure:"outbound_subject"`
	Queue           string        `mapstructure:"queue"`
	ReconnectWait   time.Duration `mapstructure:"reconnect_wait"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// RedisConfig configures the optional session mirror.
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	PoolSize  int           `mapstructure:"pool_size"`
	KeyPrefix string        `mapstructure:"key_prefix"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// DatabaseConfig holds the PostgreSQL settings for gameplay metrics.
type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

type AssetsConfig struct {
	Root string `mapstructure:"root"`
}

// SessionConfig bounds the in-memory session records. Zero values keep every
// record for the lifetime of the process.
type SessionConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxEntries int           `mapstructure:"max_entries"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Stream   StreamConfig   `mapstructure:"stream"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Nats     NatsConfig     `mapstructure:"nats"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Assets   AssetsConfig   `mapstructure:"assets"`
	Session  SessionConfig  `mapstructure:"session"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// Validate checks all configuration invariants and reports every violation.
func (c Config) Validate() error {
	var errs []string
	for _, err := range []error{
		validateServer(c.Server),
		validateStream(c),
		validateRedis(c.Redis),
		validateDatabase(c.Database),
		validateSession(c.Session),
		validateLogging(c.Logging),
	} {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Addr == "" {
		errs = append(errs, "server.addr must not be empty")
	}
	if !strings.HasPrefix(s.WsPath, "/") {
		errs = append(errs, fmt.Sprintf("server.ws_path must start with '/', got %q", s.WsPath))
	}
	if s.SendQueue < 1 {
		errs = append(errs, fmt.Sprintf("server.send_queue must be >= 1, got %d", s.SendQueue))
	}
	if s.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}
	if s.PingInterval < 0 {
		errs = append(errs, "server.ping_interval must not be negative")
	}
	if s.PublishTimeout <= 0 {
		errs = append(errs, "server.publish_timeout must be positive")
	}
	if s.NodeID < 0 || s.NodeID > 1023 {
		errs = append(errs, fmt.Sprintf("server.node_id must be 0-1023, got %d", s.NodeID))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateStream(c Config) error {
	switch c.Stream.Driver {
	case DriverKafka:
		var errs []string
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka.brokers must not be empty")
		}
		if c.Kafka.GroupID == "" {
			errs = append(errs, "kafka.group_id must not be empty")
		}
		if c.Kafka.InboundTopic == "" || c.Kafka.OutboundTopic == "" {
			errs = append(errs, "kafka.inbound_topic and kafka.outbound_topic must not be empty")
		}
		validOffsets := map[string]bool{"newest": true, "oldest": true}
		if !validOffsets[c.Kafka.ConsumerInitialOffset] {
			errs = append(errs, fmt.Sprintf("kafka.consumer_initial_offset must be one of [newest, oldest], got %q", c.Kafka.ConsumerInitialOffset))
		}
		if len(errs) > 0 {
			return errors.New(strings.Join(errs, "; "))
		}
		return nil
	case DriverNats:
		if len(c.Nats.Servers) == 0 {
			return errors.New("nats.servers must not be empty")
		}
		if c.Nats.InboundSubject == "" || c.Nats.OutboundSubject == "" {
			return errors.New("nats.inbound_subject and nats.outbound_subject must not be empty")
		}
		return nil
	default:
		return fmt.Errorf("stream.driver must be one of [kafka, nats], got %q", c.Stream.Driver)
	}
}

func validateRedis(r RedisConfig) error {
	if !r.Enabled {
		return nil
	}
	if r.Addr == "" {
		return errors.New("redis.addr must not be empty when redis is enabled")
	}
	if r.TTL < 0 {
		return errors.New("redis.ttl must not be negative")
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	if !d.Enabled {
		return nil
	}
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 || d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must be between 0 and database.max_conns")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateSession(s SessionConfig) error {
	if s.TTL < 0 {
		return errors.New("session.ttl must not be negative")
	}
	if s.MaxEntries < 0 {
		return fmt.Errorf("session.max_entries must be >= 0, got %d", s.MaxEntries)
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from path (optional; empty means defaults and
// environment only), applies BRIDGE_ environment overrides and validates.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":9094")
	v.SetDefault("server.health_addr", ":50052")
	v.SetDefault("server.ws_path", "/ws")
	v.SetDefault("server.send_queue", 64)
	v.SetDefault("server.write_timeout", "5s")
	v.SetDefault("server.ping_interval", "30s")
	v.SetDefault("server.publish_timeout", "10s")
	v.SetDefault("server.shutdown_grace", "5s")
	v.SetDefault("server.node_id", 1)

	v.SetDefault("stream.driver", DriverKafka)

	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.group_id", "game-bridge")
	v.SetDefault("kafka.inbound_topic", "game-assignments")
	v.SetDefault("kafka.outbound_topic", "game-assignments")
	v.SetDefault("kafka.version", "2.1.0")
	v.SetDefault("kafka.producer_compression", "none")
	v.SetDefault("kafka.consumer_initial_offset", "newest")
	v.SetDefault("kafka.producer_retries", 5)
	v.SetDefault("kafka.auto_create_topics", false)
	v.SetDefault("kafka.partitions_per_topic", 3)
	v.SetDefault("kafka.replication_factor", 1)

	v.SetDefault("nats.servers", []string{"nats://127.0.0.1:4222"})
	v.SetDefault("nats.name", "game-bridge")
	v.SetDefault("nats.inbound_subject", "game.assignments")
	v.SetDefault("nats.outbound_subject", "game.assignments")
	v.SetDefault("nats.reconnect_wait", "500ms")
	v.SetDefault("nats.timeout", "3s")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "bridge:session:")
	v.SetDefault("redis.ttl", "24h")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "games")
	v.SetDefault("database.password", "games")
	v.SetDefault("database.name", "games")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("assets.root", "./games")

	v.SetDefault("session.ttl", "0s")
	v.SetDefault("session.max_entries", 0)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}
