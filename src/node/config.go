package node

import (
	"testing"
	"time"

	"github.com/campnet/helisync/src/common"
	"github.com/campnet/helisync/src/flight"
	"github.com/campnet/helisync/src/records"
	"github.com/sirupsen/logrus"
)

// Config holds the parameters of a Node.
type Config struct {
	Role           records.Role  `mapstructure:"role"`
	Moniker        string        `mapstructure:"moniker"`
	FlightDuration time.Duration `mapstructure:"flight-duration"`

	// FlightTimer replaces time.After for the landing timer of a helicopter.
	FlightTimer flight.TimerFactory

	// OnLanded replaces the default landing behaviour of a helicopter, which
	// is to push its requests to the air companies.
	OnLanded func(flight.Landing)

	// OnConfirmation is called when a town receives confirmations. By
	// default every confirmed record is logged.
	OnConfirmation func([]*records.Request)

	Logger *logrus.Logger
}

// NewConfig creates a Config.
func NewConfig(role records.Role,
	moniker string,
	flightDuration time.Duration,
	logger *logrus.Logger) *Config {

	return &Config{
		Role:           role,
		Moniker:        moniker,
		FlightDuration: flightDuration,
		Logger:         logger,
	}
}

// DefaultConfig returns the configuration of a camp.
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		Role:           records.Camp,
		FlightDuration: flight.DefaultDuration,
		Logger:         logger,
	}
}

// TestConfig returns a configuration for the given role that logs through t.
func TestConfig(t testing.TB, role records.Role) *Config {
	config := DefaultConfig()
	config.Role = role
	config.Moniker = role.String()
	config.Logger = common.NewTestLogger(t, common.TestLogLevel)
	return config
}
