package config

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host              string        `mapstructure:"host" yaml:"host" json:"host"`
	Port              int           `mapstructure:"port" yaml:"port" json:"port"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" json:"idle_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" json:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" json:"shutdown_timeout"`
	AllowOrigins      []string      `mapstructure:"allow_origins" yaml:"allow_origins" json:"allow_origins"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LogConfig represents logger configuration
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level"`
	Format string `mapstructure:"format" yaml:"format" json:"format"`
}

// ChainConfig describes the node the gateway talks to and the account it signs with
type ChainConfig struct {
	URL                   string        `mapstructure:"url" yaml:"url" json:"url"`
	AccountID             string        `mapstructure:"account_id" yaml:"account_id" json:"account_id"`
	PrivateKey            string        `mapstructure:"private_key" yaml:"private_key" json:"-"`
	KeystorePath          string        `mapstructure:"keystore_path" yaml:"keystore_path" json:"keystore_path"`
	KeystorePassword      string        `mapstructure:"keystore_password" yaml:"keystore_password" json:"-"`
	RequiredConfirmations uint64        `mapstructure:"required_confirmations" yaml:"required_confirmations" json:"required_confirmations"`
	DialTimeout           time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout" json:"dial_timeout"`
	CallTimeout           time.Duration `mapstructure:"call_timeout" yaml:"call_timeout" json:"call_timeout"`
	GasLimit              uint64        `mapstructure:"gas_limit" yaml:"gas_limit" json:"gas_limit"`
}

// LedgerConfig points at the compiled asset ledger contract used by /deploy
type LedgerConfig struct {
	BytecodeFile string `mapstructure:"bytecode_file" yaml:"bytecode_file" json:"bytecode_file"`
}

// GatewayConfig describes the order gateway contract used for atomic orders
type GatewayConfig struct {
	ID              string        `mapstructure:"id" yaml:"id" json:"id"`
	CreateProxyID   uint32        `mapstructure:"create_proxy_id" yaml:"create_proxy_id" json:"create_proxy_id"`
	TransferProxyID uint32        `mapstructure:"transfer_proxy_id" yaml:"transfer_proxy_id" json:"transfer_proxy_id"`
	OrderTTL        time.Duration `mapstructure:"order_ttl" yaml:"order_ttl" json:"order_ttl"`
}

// MutationConfig controls how submitted transactions are followed
type MutationConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval" json:"poll_interval"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
}

// DatabaseConfig represents the mutation journal database
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver" yaml:"driver" json:"driver"`
	DSN             string        `mapstructure:"dsn" yaml:"dsn" json:"-"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// RedisConfig represents the read cache. An empty address disables caching.
type RedisConfig struct {
	Address  string        `mapstructure:"address" yaml:"address" json:"address"`
	Password string        `mapstructure:"password" yaml:"password" json:"-"`
	DB       int           `mapstructure:"db" yaml:"db" json:"db"`
	Prefix   string        `mapstructure:"prefix" yaml:"prefix" json:"prefix"`
	TTL      time.Duration `mapstructure:"ttl" yaml:"ttl" json:"ttl"`
}

// KafkaConfig represents the mutation event stream. No brokers means log-only events.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers" yaml:"brokers" json:"brokers"`
	Topic   string   `mapstructure:"topic" yaml:"topic" json:"topic"`
}

// AuthConfig guards the mutating routes when JWTSecret is set
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" yaml:"jwt_secret" json:"-"`
	Issuer    string `mapstructure:"issuer" yaml:"issuer" json:"issuer"`
}

// TelemetryConfig switches the OpenTelemetry stdout exporters
type TelemetryConfig struct {
	Tracing     bool   `mapstructure:"tracing" yaml:"tracing" json:"tracing"`
	Metrics     bool   `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name" json:"service_name"`
}

// Config represents the application configuration
type Config struct {
	Environment string          `mapstructure:"environment" yaml:"environment" json:"environment"`
	Server      ServerConfig    `mapstructure:"server" yaml:"server" json:"server"`
	Log         LogConfig       `mapstructure:"log" yaml:"log" json:"log"`
	Chain       ChainConfig     `mapstructure:"chain" yaml:"chain" json:"chain"`
	Ledger      LedgerConfig    `mapstructure:"ledger" yaml:"ledger" json:"ledger"`
	Gateway     GatewayConfig   `mapstructure:"gateway" yaml:"gateway" json:"gateway"`
	Mutation    MutationConfig  `mapstructure:"mutation" yaml:"mutation" json:"mutation"`
	Database    DatabaseConfig  `mapstructure:"database" yaml:"database" json:"database"`
	Redis       RedisConfig     `mapstructure:"redis" yaml:"redis" json:"redis"`
	Kafka       KafkaConfig     `mapstructure:"kafka" yaml:"kafka" json:"kafka"`
	Auth        AuthConfig      `mapstructure:"auth" yaml:"auth" json:"auth"`
	Telemetry   TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry" json:"telemetry"`
}

// Validate rejects configurations the gateway cannot run with
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Chain.URL == "" {
		return fmt.Errorf("chain.url is required")
	}
	if c.Chain.AccountID != "" && !common.IsHexAddress(c.Chain.AccountID) {
		return fmt.Errorf("chain.account_id is not a hex address: %q", c.Chain.AccountID)
	}
	if c.Chain.RequiredConfirmations == 0 {
		return fmt.Errorf("chain.required_confirmations must be at least 1")
	}
	if c.Gateway.ID != "" && !common.IsHexAddress(c.Gateway.ID) {
		return fmt.Errorf("gateway.id is not a hex address: %q", c.Gateway.ID)
	}
	if c.Gateway.OrderTTL <= 0 {
		return fmt.Errorf("gateway.order_ttl must be positive")
	}
	if c.Mutation.PollInterval <= 0 {
		return fmt.Errorf("mutation.poll_interval must be positive")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Redis.Address != "" && c.Redis.TTL <= 0 {
		return fmt.Errorf("redis.ttl must be positive when redis is enabled")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic is required when brokers are set")
	}
	return nil
}
