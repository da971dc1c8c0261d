// Command lxddns-http bridges PowerDNS's remote backend protocol to the
// HTTPS-based peer transport: a fixed list of peer API roots queried in
// parallel instead of a message bus.
package main

import (
	"context"
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/benaryorg/lxddns/internal/config"
	"github.com/benaryorg/lxddns/internal/frontend"
	"github.com/benaryorg/lxddns/internal/httptransport"
	"github.com/benaryorg/lxddns/internal/inventory"
	"github.com/benaryorg/lxddns/internal/logging"
	"github.com/benaryorg/lxddns/internal/pdns"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if root := pkgerrors.Cause(err); root != err {
			fmt.Fprintf(os.Stderr, "root cause: %v\n", root)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var loglevel string

	root := &cobra.Command{
		Use:   "lxddns-http",
		Short: "PowerDNS backend bridging DNS and LXD over HTTPS peer queries",
	}
	root.PersistentFlags().StringVarP(&loglevel, "loglevel", "v", "", "log level (trace, debug, info, warn, error)")

	root.AddCommand(newResponderCommand(&loglevel), newPipeCommand(&loglevel), newUnixCommand(&loglevel))
	return root
}

// baseContext attaches the base logger plus a "component" field
// identifying which subcommand is running (responder, pipe, unix); the
// formatter renders it as a bracketed prefix on every line.
func baseContext(loglevel, component string) context.Context {
	ctx := logging.WithBaseLogger(context.Background(), loglevel)
	return dlog.WithField(ctx, "component", component)
}

// causer is github.com/pkg/errors' Causer interface; lxderr.Category-
// wrapped errors implement it so this can peel one layer at a time
// instead of jumping straight to the root the way pkgerrors.Cause does.
type causer interface{ Cause() error }

// logFatalChain prints the top-level error plus each wrapped ancestor
// ("caused by:"), one line per link.
func logFatalChain(ctx context.Context, err error) {
	dlog.Errorf(ctx, "fatal error: %v", err)
	for {
		c, ok := err.(causer)
		if !ok {
			return
		}
		cause := c.Cause()
		if cause == nil {
			return
		}
		dlog.Errorf(ctx, " caused by: %v", cause)
		err = cause
	}
}

func newResponderCommand(loglevel *string) *cobra.Command {
	var (
		command        string
		bind           string
		tlsChain       string
		tlsKey         string
		maxConnections int
	)

	cmd := &cobra.Command{
		Use:     "responder",
		Aliases: []string{"http-responder"},
		Short:   "Run the HTTPS responder, allowing container names on this host to resolve",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := baseContext(*loglevel, "responder")
			cfg := config.HTTPResponderConfig{
				Command:        command,
				Bind:           bind,
				TLSChainFile:   tlsChain,
				TLSKeyFile:     tlsKey,
				MaxConnections: maxConnections,
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			probe := &inventory.Probe{Command: cfg.Command}
			responder := &httptransport.Responder{
				Bind:           cfg.Bind,
				TLSChainFile:   cfg.TLSChainFile,
				TLSKeyFile:     cfg.TLSKeyFile,
				MaxConnections: cfg.MaxConnections,
				Probe:          probe.Query,
			}

			g := dgroup.NewGroup(ctx, dgroup.GroupConfig{EnableSignalHandling: true})
			g.Go("http-responder", responder.Run)

			if err := g.Wait(); err != nil {
				logFatalChain(ctx, err)
				return err
			}
			return nil
		},
	}

	defaultEnv, _ := config.LoadEnvDefaults(context.Background())
	cmd.Flags().StringVarP(&command, "command", "c", "lxc", "container manager command name")
	cmd.Flags().IntVarP(&maxConnections, "max-connections", "m", 32, "maximum number of connections per worker")
	cmd.Flags().StringVarP(&bind, "https-bind", "b", defaultEnv.HTTPBind, "address-port pair to bind to for incoming HTTPS traffic")
	cmd.Flags().StringVarP(&tlsChain, "tls-chain", "t", defaultEnv.TLSChainFile, "file containing the TLS certificate chain")
	cmd.Flags().StringVarP(&tlsKey, "tls-key", "k", defaultEnv.TLSKeyFile, "file containing the TLS key")
	return cmd
}

func newPipeCommand(loglevel *string) *cobra.Command {
	var remote []string
	pdnsCfg := config.PdnsConfig{}

	cmd := &cobra.Command{
		Use:   "pipe",
		Short: "Run the HTTP remote backend via a stdio pipe for PowerDNS",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := baseContext(*loglevel, "pipe")
			if err := pdnsCfg.Validate(); err != nil {
				return err
			}
			queryCfg := config.HTTPQueryConfig{Peers: remote}
			if err := queryCfg.Validate(); err != nil {
				return err
			}

			query := httptransport.NewRemoteQuery(queryCfg.Peers)
			engine := pdns.NewEngine(pdnsCfg.Domain, pdnsCfg.Hostmaster, query.Query)
			applyTTLOverrides(engine, pdnsCfg)

			err := frontend.RunPipe(ctx, os.Stdin, os.Stdout, engine)
			if err != nil {
				logFatalChain(ctx, err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&remote, "remote", "r", nil, "API root of a remote instance (repeatable)")
	cmd.Flags().StringVar(&pdnsCfg.Hostmaster, "hostmaster", "", "hostmaster to announce in SOA (trailing dot required)")
	cmd.Flags().StringVarP(&pdnsCfg.Domain, "domain", "d", "", "domain under which to run (trailing dot required)")
	addTTLFlags(cmd, &pdnsCfg)
	return cmd
}

func newUnixCommand(loglevel *string) *cobra.Command {
	var (
		remote  []string
		socket  string
		workers int
	)
	pdnsCfg := config.PdnsConfig{}

	cmd := &cobra.Command{
		Use:   "unix",
		Short: "Run the HTTP remote backend via a Unix domain socket for PowerDNS",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := baseContext(*loglevel, "unix")
			if err := pdnsCfg.Validate(); err != nil {
				return err
			}
			queryCfg := config.HTTPQueryConfig{Peers: remote}
			if err := queryCfg.Validate(); err != nil {
				return err
			}
			unixCfg := config.UnixFrontendConfig{SocketPath: socket, Workers: workers}
			if err := unixCfg.Validate(); err != nil {
				return err
			}

			query := httptransport.NewRemoteQuery(queryCfg.Peers)
			engine := pdns.NewEngine(pdnsCfg.Domain, pdnsCfg.Hostmaster, query.Query)
			applyTTLOverrides(engine, pdnsCfg)

			g := dgroup.NewGroup(ctx, dgroup.GroupConfig{EnableSignalHandling: true})
			g.Go("unix", func(ctx context.Context) error {
				return frontend.RunUnix(ctx, unixCfg.SocketPath, unixCfg.Workers, engine)
			})

			if err := g.Wait(); err != nil {
				logFatalChain(ctx, err)
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&remote, "remote", "r", nil, "API root of a remote instance (repeatable)")
	cmd.Flags().StringVar(&pdnsCfg.Hostmaster, "hostmaster", "", "hostmaster to announce in SOA (trailing dot required)")
	cmd.Flags().StringVarP(&pdnsCfg.Domain, "domain", "d", "", "domain under which to run (trailing dot required)")
	cmd.Flags().StringVarP(&socket, "socket", "s", "/var/run/lxddns/lxddns.sock", "location of the unix domain socket to be created")
	cmd.Flags().IntVar(&workers, "unix-workers", 2, "parallel workers for unix domain socket connections (0: unlimited)")
	addTTLFlags(cmd, &pdnsCfg)
	return cmd
}
