package aflib

import (
	"os"
	"strings"
	"time"

	"google.golang.org/grpc"
)

// DefaultHubbyAddr is where hubby listens for hub firmware connections.
const DefaultHubbyAddr = "unix:///var/run/hubby.sock"

// Config holds client configuration. The zero value is usable: addresses
// fall back to environment variables and then to defaults.
type Config struct {
	// HubbyAddr is the gRPC target of the hubby IPC socket.
	// Falls back to AFLIB_HUBBY_ADDR, then DefaultHubbyAddr.
	HubbyAddr string

	// DeviceID identifies this firmware to hubby in the session hello.
	// Falls back to AFLIB_DEVICE_ID, then the hostname.
	DeviceID string

	// ProfilePath locates the binary profile. Empty means the standard
	// profile file location (used by Run; LoadProfile applies the same
	// fallback on its own).
	ProfilePath string

	// ReconnectMin/ReconnectMax bound the backoff between session
	// attempts after the IPC connection breaks.
	ReconnectMin time.Duration
	ReconnectMax time.Duration

	// DialOptions are appended to the gRPC dial options. Tests use this
	// to dial an in-memory listener.
	DialOptions []grpc.DialOption

	// Logger defaults to a logrus-backed logger.
	Logger Logger

	// Clock defaults to the system clock.
	Clock Clock
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.HubbyAddr) == "" {
		c.HubbyAddr = strings.TrimSpace(os.Getenv("AFLIB_HUBBY_ADDR"))
	}
	if c.HubbyAddr == "" {
		c.HubbyAddr = DefaultHubbyAddr
	}
	if strings.TrimSpace(c.DeviceID) == "" {
		c.DeviceID = strings.TrimSpace(os.Getenv("AFLIB_DEVICE_ID"))
	}
	if c.DeviceID == "" {
		if host, err := os.Hostname(); err == nil {
			c.DeviceID = host
		} else {
			c.DeviceID = "hub"
		}
	}
	if c.ReconnectMin <= 0 {
		c.ReconnectMin = 250 * time.Millisecond
	}
	if c.ReconnectMax <= 0 {
		c.ReconnectMax = 15 * time.Second
	}
	if c.ReconnectMax < c.ReconnectMin {
		c.ReconnectMax = c.ReconnectMin
	}
	if c.Logger == nil {
		c.Logger = NewLogrusLogger(nil)
	}
	if c.Clock == nil {
		c.Clock = NewSystemClock()
	}
	return c
}

// ConfigFromEnv builds a Config from AFLIB_* environment variables.
func ConfigFromEnv() Config {
	return Config{
		HubbyAddr:   strings.TrimSpace(os.Getenv("AFLIB_HUBBY_ADDR")),
		DeviceID:    strings.TrimSpace(os.Getenv("AFLIB_DEVICE_ID")),
		ProfilePath: strings.TrimSpace(os.Getenv("AFLIB_PROFILE")),
	}
}
