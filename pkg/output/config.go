package output

import (
	"fmt"

	"github.com/soundweave/snapsink/pkg/codec"
)

// Service advertisement parameters. Fixed: snapcast clients browse for
// this service type, and the daemon registers under its product name.
const (
	ServiceName = "Music Player Daemon"
	ServiceType = "_snapcast._tcp"
)

// DefaultPort is the snapcast TCP port.
const DefaultPort = 1704

// DefaultClientBacklog is the per-session pending cap. A session whose
// backlog exceeds it is dropped rather than allowed to stall the stream.
const DefaultClientBacklog = 16

// Config holds the output configuration.
type Config struct {
	// Port is the TCP listening port.
	// Default: 1704
	Port int `yaml:"port" json:"port"`

	// BindAddresses are the addresses to listen on. Empty means all
	// interfaces. May list several.
	BindAddresses []string `yaml:"bind_to_address" json:"bind_to_address"`

	// Zeroconf enables service advertisement of the bound port.
	// Default: true
	Zeroconf bool `yaml:"zeroconf" json:"zeroconf"`

	// Codec selects the stream encoder: "wave" or "opus".
	// Default: "wave"
	Codec string `yaml:"codec" json:"codec"`

	// ClientBacklog is the per-session pending message cap.
	// Default: 16
	ClientBacklog int `yaml:"client_backlog" json:"client_backlog"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:          DefaultPort,
		Zeroconf:      true,
		Codec:         "wave",
		ClientBacklog: DefaultClientBacklog,
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d", ErrInvalidConfig, c.Port)
	}
	if !codec.Known(c.Codec) {
		return fmt.Errorf("%w: codec %q", ErrInvalidConfig, c.Codec)
	}
	if c.ClientBacklog <= 0 {
		return fmt.Errorf("%w: client_backlog %d", ErrInvalidConfig, c.ClientBacklog)
	}
	return nil
}

// codecName returns the name sent in CodecHeader messages.
func (c *Config) codecName() string {
	if c.Codec == "wav" {
		return "wave"
	}
	return c.Codec
}
