package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"exchange-core/internal/core/domain"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Hash     HashConfig     `mapstructure:"hash"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Log      LogConfig      `mapstructure:"log"`
	Admin    AdminConfig    `mapstructure:"admin"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type StorageConfig struct {
	Driver      string `mapstructure:"driver"` // postgres, memory
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

// HashConfig holds the Argon2id work factor.
type HashConfig struct {
	Time    uint32 `mapstructure:"time"`
	Memory  uint32 `mapstructure:"memory"` // KiB
	Threads uint8  `mapstructure:"threads"`
}

type LedgerConfig struct {
	Currencies []string `mapstructure:"currencies"`
}

// AdminConfig seeds one administrator at startup when both fields are set.
type AdminConfig struct {
	Identifier string `mapstructure:"identifier"`
	Password   string `mapstructure:"password"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// Load reads configuration from an optional .env file, a config file and
// environment variables. Environment variables override file values.
// Prefix: EXC_. Nested keys use underscore: EXC_DATABASE_HOST, EXC_JWT_SECRET, etc.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading .env file: %w", err)
	}

	v := viper.New()

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("storage.driver", StorageDriverPostgres)
	v.SetDefault("storage.auto_migrate", true)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "exchange_core")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "15m")
	v.SetDefault("jwt.issuer", "exchange-core")
	v.SetDefault("hash.time", 1)
	v.SetDefault("hash.memory", 64*1024)
	v.SetDefault("hash.threads", 4)
	v.SetDefault("ledger.currencies", []string{"USD", "BTC", "ETH", "USDT", "BNB"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("admin.identifier", "")
	v.SetDefault("admin.password", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// EXC_DATABASE_HOST -> database.host
	v.SetEnvPrefix("EXC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env vars can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

// Validate checks invariants that defaults cannot guarantee.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" && c.Server.Mode != "debug" && c.Server.Mode != "test" {
		return errors.New("jwt.secret must be set outside debug mode")
	}
	if c.JWT.Expiry <= 0 {
		return errors.New("jwt.expiry must be positive")
	}

	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	if c.Hash.Time == 0 || c.Hash.Memory == 0 || c.Hash.Threads == 0 {
		return errors.New("hash.time, hash.memory and hash.threads must be positive")
	}

	if len(c.Ledger.Currencies) == 0 {
		return errors.New("ledger.currencies must not be empty")
	}
	seen := make(map[string]struct{}, len(c.Ledger.Currencies))
	for _, code := range c.Ledger.Currencies {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" {
			return errors.New("ledger.currencies contains an empty code")
		}
		if !domain.ValidCurrencyCode(code) {
			return fmt.Errorf("ledger.currencies has invalid code %q: want 2 to 10 letters", code)
		}
		if _, dup := seen[code]; dup {
			return fmt.Errorf("ledger.currencies lists %s twice", code)
		}
		seen[code] = struct{}{}
	}

	if (c.Admin.Identifier == "") != (c.Admin.Password == "") {
		return errors.New("admin.identifier and admin.password must be set together")
	}

	return nil
}
