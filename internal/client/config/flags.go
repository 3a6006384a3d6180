package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/gophvault/internal/flagx"
)

// parseFlags overrides selected fields from command-line flags:
//
//	-d string   data directory
//	-s string   storage driver (sqlite or bolt)
//	-k string   host key file
//	-l string   log level
//
// Other arguments are filtered out with flagx.FilterArgs first.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-d", "-s", "-k", "-l"})

	fs := flag.NewFlagSet("gophvault", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.StorageDriver, "s", cfg.StorageDriver, "storage driver: sqlite or bolt")
	fs.StringVar(&cfg.HostKeyFile, "k", cfg.HostKeyFile, "host key file")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level: debug, info, warn, error")

	return fs.Parse(args)
}
