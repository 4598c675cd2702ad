package commands

import (
	"github.com/campnet/helisync/src/config"
)

// CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Helisync config.Config `mapstructure:",squash"`
}

// NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Helisync: *config.NewDefaultConfig(),
	}
}
