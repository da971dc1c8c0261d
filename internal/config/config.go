// Package config holds the per-component configuration structs each
// lxddns-bus/lxddns-http subcommand assembles from CLI flags, and the
// small set of environment-variable overrides recognized alongside them.
package config

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/sethvargo/go-envconfig"

	"github.com/benaryorg/lxddns/internal/lxderr"
)

// EnvDefaults mirrors the handful of flags also accepted as environment
// variables, loaded once at startup and used as flag defaults unless
// overridden explicitly on the command line.
type EnvDefaults struct {
	BusURL       string `env:"LXDDNS_URL,default=amqp://guest:guest@[::1]:5672"`
	HTTPBind     string `env:"LXDDNS_HTTP_BIND,default=[::1]:9132"`
	TLSChainFile string `env:"LXDDNS_HTTP_TLS_CHAIN"`
	TLSKeyFile   string `env:"LXDDNS_HTTP_TLS_KEY"`
	LogLevel     string `env:"LXDDNS_LOG_LEVEL"`
}

// LoadEnvDefaults reads the recognized environment variables into an
// EnvDefaults, applying the documented defaults for the ones that are
// optional.
func LoadEnvDefaults(ctx context.Context) (EnvDefaults, error) {
	var env EnvDefaults
	if err := envconfig.Process(ctx, &env); err != nil {
		return env, lxderr.InvalidConfiguration.New(err)
	}
	return env, nil
}

// PdnsConfig configures the shared Pdns engine.
type PdnsConfig struct {
	Domain     string
	Hostmaster string
	SoaTTL     uint32
	NsTTL      uint32
	AaaaTTL    uint32
}

// Validate ensures the fields every frontend needs are present, reporting
// every missing field at once rather than stopping at the first.
func (c PdnsConfig) Validate() error {
	var result *multierror.Error
	if c.Domain == "" {
		result = multierror.Append(result, fmt.Errorf("domain is required"))
	}
	if c.Hostmaster == "" {
		result = multierror.Append(result, fmt.Errorf("hostmaster is required"))
	}
	return categorize(result)
}

// BusConfig configures a bus-backed RemoteQuery or Responder.
type BusConfig struct {
	URL       string
	Command   string // container manager command, responder only
	Workers   int
	QueueName string // responder only; empty means server-assigned
}

func (c BusConfig) Validate() error {
	var result *multierror.Error
	if c.URL == "" {
		result = multierror.Append(result, fmt.Errorf("bus url is required"))
	}
	return categorize(result)
}

// HTTPQueryConfig configures an HTTP-backed RemoteQuery.
type HTTPQueryConfig struct {
	Peers []string
}

func (c HTTPQueryConfig) Validate() error {
	var result *multierror.Error
	if len(c.Peers) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one remote peer is required"))
	}
	return categorize(result)
}

// HTTPResponderConfig configures the HTTPS responder endpoint.
type HTTPResponderConfig struct {
	Command        string
	Bind           string
	TLSChainFile   string
	TLSKeyFile     string
	MaxConnections int
}

func (c HTTPResponderConfig) Validate() error {
	var result *multierror.Error
	if c.Bind == "" {
		result = multierror.Append(result, fmt.Errorf("https bind address is required"))
	}
	if c.TLSChainFile == "" {
		result = multierror.Append(result, fmt.Errorf("tls chain file is required"))
	}
	if c.TLSKeyFile == "" {
		result = multierror.Append(result, fmt.Errorf("tls key file is required"))
	}
	return categorize(result)
}

// UnixFrontendConfig configures a pdns-over-unix-socket frontend.
type UnixFrontendConfig struct {
	SocketPath string
	Workers    int
}

func (c UnixFrontendConfig) Validate() error {
	var result *multierror.Error
	if c.SocketPath == "" {
		result = multierror.Append(result, fmt.Errorf("socket path is required"))
	}
	return categorize(result)
}

// categorize tags a non-empty multierror as InvalidConfiguration, or
// returns nil if result never had anything appended to it.
func categorize(result *multierror.Error) error {
	if result.ErrorOrNil() == nil {
		return nil
	}
	return lxderr.InvalidConfiguration.New(result.ErrorOrNil())
}
