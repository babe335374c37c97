package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/accountkeeper/internal/flagx"
)

// parseFlags overlays command-line flags onto cfg.
//
//	-s string   store driver: sqlite, postgres or redis
//	-d string   database DSN (sqlite path or postgres DSN)
//	-r string   redis address
//	-n int      redis database number
//	-l string   log level
//	-f string   log format: text or json
//	-a string   hash algorithm: sha256 or argon2id
//
// The redis password and hash pepper are read only from the environment or
// the JSON file.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-s", "-d", "-r", "-n", "-l", "-f", "-a"})

	fs := flag.NewFlagSet("accountkeeper", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.StoreDriver, "s", cfg.StoreDriver, "store driver (sqlite|postgres|redis)")
	fs.StringVar(&cfg.DatabaseDSN, "d", cfg.DatabaseDSN, "database DSN")
	fs.StringVar(&cfg.RedisAddr, "r", cfg.RedisAddr, "redis address")
	fs.IntVar(&cfg.RedisDB, "n", cfg.RedisDB, "redis database number")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "f", cfg.LogFormat, "log format (text|json)")
	fs.StringVar(&cfg.HashAlgorithm, "a", cfg.HashAlgorithm, "hash algorithm (sha256|argon2id)")

	return fs.Parse(args)
}
