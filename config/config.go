// Package config loads the bridging engine's runtime configuration
// from the environment, the way the example pack's registry server
// loads its own HTTP-adjacent config.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every setting the server needs at startup. It carries
// no credential or certificate fields: authorization policy and TLS
// are both out of scope for this bridge.
type Config struct {
	// ListenAddr is the address net/http listens on, e.g. ":8080".
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`

	// BusSocketPath is the unix-domain socket of the system bus this
	// process bridges to.
	BusSocketPath string `envconfig:"BUS_SOCKET_PATH" default:"/var/run/dbus/system_bus_socket"`

	// MapperService and MapperPath locate the well-known ObjectMapper
	// bus service. Overridable so tests (or a non-standard bus
	// layout) can point at a private mapper instance.
	MapperService string `envconfig:"MAPPER_SERVICE" default:"xyz.openbmc_project.ObjectMapper"`
	MapperPath    string `envconfig:"MAPPER_PATH" default:"/xyz/openbmc_project/object_mapper"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads Config from the environment, with the prefix "DBUSREST".
func Load() (Config, error) {
	var c Config
	if err := envconfig.Process("dbusrest", &c); err != nil {
		return Config{}, fmt.Errorf("loading configuration: %w", err)
	}
	return c, nil
}
