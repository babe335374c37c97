package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dmitrijs2005/accountkeeper/internal/flagx"
)

// JsonConfig mirrors Config for JSON files. Pointer fields distinguish
// "absent" from an explicit zero value.
type JsonConfig struct {
	StoreDriver   *string `json:"store_driver"`
	DatabaseDSN   *string `json:"database_dsn"`
	RedisAddr     *string `json:"redis_addr"`
	RedisPassword *string `json:"redis_password"`
	RedisDB       *int    `json:"redis_db"`
	RedisPrefix   *string `json:"redis_prefix"`
	LogLevel      *string `json:"log_level"`
	LogFormat     *string `json:"log_format"`
	HashAlgorithm *string `json:"hash_algorithm"`
	HashPepper    *string `json:"hash_pepper"`
}

// parseJson overlays the JSON file named by -c/-config, if any, onto cfg.
func parseJson(cfg *Config, args []string) error {
	path := flagx.ConfigFile(args)
	if path == "" {
		return nil
	}

	file, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	setString(&cfg.StoreDriver, c.StoreDriver)
	setString(&cfg.DatabaseDSN, c.DatabaseDSN)
	setString(&cfg.RedisAddr, c.RedisAddr)
	setString(&cfg.RedisPassword, c.RedisPassword)
	if c.RedisDB != nil {
		cfg.RedisDB = *c.RedisDB
	}
	setString(&cfg.RedisPrefix, c.RedisPrefix)
	setString(&cfg.LogLevel, c.LogLevel)
	setString(&cfg.LogFormat, c.LogFormat)
	setString(&cfg.HashAlgorithm, c.HashAlgorithm)
	setString(&cfg.HashPepper, c.HashPepper)
	return nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
