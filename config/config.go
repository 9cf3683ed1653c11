// Package config is for app wide settings that are unmarshalled
// from Viper (see: /cmd)
package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config is the root-level settings struct and is a mix of settings
// from the environment and those available from the command line.
type Config struct {
	// DB is the path to the reference database directory, holding the
	// genome metadata store (.gdb) and the signature file (.gs). Set by
	// the --db flag or the GAMBIT_DB_PATH environment variable.
	DB string `mapstructure:"db"`

	// Cores bounds the worker pool used for signature calculation and
	// distance scans. Zero uses all hardware threads.
	Cores int `mapstructure:"cores"`

	// Chunk is the number of reference signatures scanned per batch.
	Chunk int `mapstructure:"chunk"`
}

// New returns a new Config struct populated by Viper settings from
// bound flags and environment variables.
func New() Config {
	var c Config

	if err := viper.Unmarshal(&c); err != nil {
		log.Fatalf("unable to decode settings into struct, %v", err)
	}

	return c
}
