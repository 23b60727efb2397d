package commands

import (
	"github.com/mosaicnetworks/rtcsession/src/config"
)

// CLIConfig contains configuration for the commands
type CLIConfig struct {
	RTC       config.Config `mapstructure:",squash"`
	LogFile   string        `mapstructure:"log-file"`
	Subscribe string        `mapstructure:"subscribe"`
}

// NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		RTC: *config.NewDefaultConfig(),
	}
}
