package app

import (
	"fmt"

	"github.com/reparc/reparc/internal/config"
	rerr "github.com/reparc/reparc/internal/errors"
)

// Exit codes for the command-line tools, one per error category.
const (
	ExitOK         = 0
	ExitFailure    = 1
	ExitValidation = 2
	ExitParse      = 3
	ExitStorage    = 4
	ExitArchive    = 5
	ExitManifest   = 6
)

// LoadConfig layers tool configuration the same way for every binary:
// defaults, then an optional config file, then REPARC_* environment
// variables. Flag overrides are applied by the caller afterward.
func LoadConfig(configFile string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.LoadFromFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
		cfg = loaded
	}
	config.LoadFromEnv(cfg)
	return cfg, nil
}

// ExitCode maps an error onto the exit code for its category, so
// scripts can distinguish bad data from a broken disk.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch rerr.GetCategory(err) {
	case rerr.ErrCategoryValidation:
		return ExitValidation
	case rerr.ErrCategoryParse:
		return ExitParse
	case rerr.ErrCategoryStorage:
		return ExitStorage
	case rerr.ErrCategoryArchive:
		return ExitArchive
	case rerr.ErrCategoryManifest:
		return ExitManifest
	}
	return ExitFailure
}
