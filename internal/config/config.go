// Package config assembles accountkeeper's runtime settings. Sources are
// applied in order, each overriding the previous one: built-in defaults, a
// dotenv file, ACCOUNTS_* environment variables, an optional JSON file
// (-c/-config) and finally command-line flags.
package config

import (
	"fmt"
	"os"

	"github.com/dmitrijs2005/accountkeeper/internal/credential"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Config holds runtime settings.
//
// DatabaseDSN is a file path or DSN for sqlite and a pgx DSN for postgres.
// The Redis* fields are read only with the redis driver. HashPepper is
// required by the argon2id codec and must stay stable for a given store.
type Config struct {
	StoreDriver   string `env:"ACCOUNTS_STORE"`
	DatabaseDSN   string `env:"ACCOUNTS_DATABASE_DSN"`
	RedisAddr     string `env:"ACCOUNTS_REDIS_ADDR"`
	RedisPassword string `env:"ACCOUNTS_REDIS_PASSWORD"`
	RedisDB       int    `env:"ACCOUNTS_REDIS_DB"`
	RedisPrefix   string `env:"ACCOUNTS_REDIS_PREFIX"`
	LogLevel      string `env:"ACCOUNTS_LOG_LEVEL"`
	LogFormat     string `env:"ACCOUNTS_LOG_FORMAT"`
	HashAlgorithm string `env:"ACCOUNTS_HASH_ALGORITHM"`
	HashPepper    string `env:"ACCOUNTS_HASH_PEPPER"`
}

// LoadDefaults populates c with settings suitable for a local single-user run.
func (c *Config) LoadDefaults() {
	c.StoreDriver = DriverSQLite
	c.DatabaseDSN = "accounts.db"
	c.RedisAddr = "127.0.0.1:6379"
	c.RedisPassword = ""
	c.RedisDB = 0
	c.RedisPrefix = "acct"
	c.LogLevel = "info"
	c.LogFormat = logging.FormatText
	c.HashAlgorithm = credential.AlgorithmSHA256
	c.HashPepper = ""
}

// Validate rejects settings no component can work with.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case DriverSQLite, DriverPostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("database DSN is required for the %s store", c.StoreDriver)
		}
	case DriverRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("redis address is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.StoreDriver)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != logging.FormatText && c.LogFormat != logging.FormatJSON {
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	if _, err := credential.NewCodec(c.HashAlgorithm, []byte(c.HashPepper)); err != nil {
		return err
	}
	return nil
}

// Load builds a Config from defaults, the environment and args (without the
// program name).
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()

	if err := loadDotenv(args); err != nil {
		return nil, err
	}
	if err := parseEnv(cfg); err != nil {
		return nil, err
	}
	if err := parseJson(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfig is Load over os.Args. It panics on any configuration error.
func LoadConfig() *Config {
	cfg, err := Load(os.Args[1:])
	if err != nil {
		panic(err)
	}
	return cfg
}
