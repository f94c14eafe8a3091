// Config loader: YAML files merged in order, then ASSETGW_* environment overrides
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g. ASSETGW_CHAIN_URL
const EnvPrefix = "ASSETGW"

// DefaultPaths are searched when Load is called without explicit paths
var DefaultPaths = []string{
	"./config.yaml",
	"./configs/config.yaml",
	"/etc/assetgw/config.yaml",
}

// Load builds the configuration from defaults, the given YAML files (missing files
// are skipped) and environment variables, then validates it.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if len(paths) == 0 {
		paths = DefaultPaths
	}
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// Server
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.idle_timeout", 120*time.Second)
	v.SetDefault("server.read_header_timeout", 10*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.allow_origins", []string{"*"})

	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Chain
	v.SetDefault("chain.url", "http://127.0.0.1:8545")
	v.SetDefault("chain.account_id", "0xe96D860C8BBB30F6831E6E65d327295B7A0C524f")
	v.SetDefault("chain.private_key", "")
	v.SetDefault("chain.keystore_path", "")
	v.SetDefault("chain.keystore_password", "")
	v.SetDefault("chain.required_confirmations", 1)
	v.SetDefault("chain.dial_timeout", 10*time.Second)
	v.SetDefault("chain.call_timeout", 30*time.Second)
	v.SetDefault("chain.gas_limit", 0)

	// Ledger / gateway
	v.SetDefault("ledger.bytecode_file", "")
	v.SetDefault("gateway.id", "")
	v.SetDefault("gateway.create_proxy_id", 0)
	v.SetDefault("gateway.transfer_proxy_id", 1)
	v.SetDefault("gateway.order_ttl", 24*time.Hour)

	// Mutation tracking
	v.SetDefault("mutation.poll_interval", 2*time.Second)
	v.SetDefault("mutation.timeout", 30*time.Minute)

	// Journal
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "assetgw.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", time.Hour)

	// Cache
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "assetgw")
	v.SetDefault("redis.ttl", 30*time.Second)

	// Events
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "asset.mutations")

	// Auth / telemetry
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "")
	v.SetDefault("telemetry.tracing", false)
	v.SetDefault("telemetry.metrics", false)
	v.SetDefault("telemetry.service_name", "assetgw")
}
