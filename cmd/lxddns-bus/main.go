// Command lxddns-bus bridges PowerDNS's remote backend protocol to the
// fanout-exchange RemoteQuery/Responder pair described in the lxddns
// design: a PowerDNS pipe or unix-socket frontend on one side, an AMQP
// bus on the other.
package main

import (
	"context"
	"fmt"
	"os"

	pkgerrors "github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/benaryorg/lxddns/internal/bus"
	"github.com/benaryorg/lxddns/internal/config"
	"github.com/benaryorg/lxddns/internal/frontend"
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
		Use:   "lxddns-bus",
		Short: "PowerDNS backend bridging DNS and LXD over a message bus",
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
		url       string
		command   string
		workers   int
		queueName string
	)

	cmd := &cobra.Command{
		Use:     "responder",
		Aliases: []string{"bus-responder"},
		Short:   "Run the bus responder, allowing container names on this host to resolve",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := baseContext(*loglevel, "responder")
			cfg := config.BusConfig{URL: url, Command: command, Workers: workers, QueueName: queueName}
			if err := cfg.Validate(); err != nil {
				return err
			}

			conn, err := bus.Dial(cfg.URL)
			if err != nil {
				return err
			}
			defer conn.Close()

			probe := &inventory.Probe{Command: cfg.Command}
			responder, err := bus.NewResponder(conn, probe.Query, cfg.Workers, cfg.QueueName)
			if err != nil {
				return err
			}
			defer responder.Close()

			g := dgroup.NewGroup(ctx, dgroup.GroupConfig{EnableSignalHandling: true})
			g.Go("responder", func(ctx context.Context) error {
				return responder.Run(ctx)
			})

			if err := g.Wait(); err != nil {
				logFatalChain(ctx, err)
				return err
			}
			return nil
		},
	}

	defaultEnv, _ := config.LoadEnvDefaults(context.Background())
	cmd.Flags().StringVarP(&url, "url", "u", defaultEnv.BusURL, "connection string for the message queue")
	cmd.Flags().StringVarP(&command, "command", "c", "lxc", "container manager command name")
	cmd.Flags().StringVarP(&queueName, "queue-name", "q", "", "name of queue to be used for query responses; if not specified uses randomly assigned queue name")
	cmd.Flags().IntVar(&workers, "responder-workers", 2, "parallel workers for message queue responses (0: unlimited)")
	return cmd
}

func newPipeCommand(loglevel *string) *cobra.Command {
	var url string
	pdnsCfg := config.PdnsConfig{}

	cmd := &cobra.Command{
		Use:   "pipe",
		Short: "Run the bus remote backend via a stdio pipe for PowerDNS",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := baseContext(*loglevel, "pipe")
			if err := pdnsCfg.Validate(); err != nil {
				return err
			}
			busCfg := config.BusConfig{URL: url}
			if err := busCfg.Validate(); err != nil {
				return err
			}

			conn, err := bus.Dial(busCfg.URL)
			if err != nil {
				return err
			}
			defer conn.Close()

			query, err := bus.NewRemoteQuery(conn, "")
			if err != nil {
				return err
			}
			defer query.Close()

			engine := pdns.NewEngine(pdnsCfg.Domain, pdnsCfg.Hostmaster, query.Query)
			applyTTLOverrides(engine, pdnsCfg)

			err = frontend.RunPipe(ctx, os.Stdin, os.Stdout, engine)
			if err != nil {
				logFatalChain(ctx, err)
				return err
			}
			return nil
		},
	}

	defaultEnv, _ := config.LoadEnvDefaults(context.Background())
	cmd.Flags().StringVarP(&url, "url", "u", defaultEnv.BusURL, "connection string for the message queue")
	cmd.Flags().StringVar(&pdnsCfg.Hostmaster, "hostmaster", "", "hostmaster to announce in SOA (trailing dot required)")
	cmd.Flags().StringVarP(&pdnsCfg.Domain, "domain", "d", "", "domain under which to run (trailing dot required)")
	addTTLFlags(cmd, &pdnsCfg)
	return cmd
}

func newUnixCommand(loglevel *string) *cobra.Command {
	var (
		url, socket string
		workers     int
	)
	pdnsCfg := config.PdnsConfig{}

	cmd := &cobra.Command{
		Use:   "unix",
		Short: "Run the bus remote backend via a Unix domain socket for PowerDNS",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := baseContext(*loglevel, "unix")
			if err := pdnsCfg.Validate(); err != nil {
				return err
			}
			busCfg := config.BusConfig{URL: url}
			if err := busCfg.Validate(); err != nil {
				return err
			}
			unixCfg := config.UnixFrontendConfig{SocketPath: socket, Workers: workers}
			if err := unixCfg.Validate(); err != nil {
				return err
			}

			conn, err := bus.Dial(busCfg.URL)
			if err != nil {
				return err
			}
			defer conn.Close()

			query, err := bus.NewRemoteQuery(conn, "")
			if err != nil {
				return err
			}
			defer query.Close()

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

	defaultEnv, _ := config.LoadEnvDefaults(context.Background())
	cmd.Flags().StringVarP(&url, "url", "u", defaultEnv.BusURL, "connection string for the message queue")
	cmd.Flags().StringVar(&pdnsCfg.Hostmaster, "hostmaster", "", "hostmaster to announce in SOA (trailing dot required)")
	cmd.Flags().StringVarP(&pdnsCfg.Domain, "domain", "d", "", "domain under which to run (trailing dot required)")
	cmd.Flags().StringVarP(&socket, "socket", "s", "/var/run/lxddns/lxddns.sock", "location of the unix domain socket to be created")
	cmd.Flags().IntVar(&workers, "unix-workers", 2, "parallel workers for unix domain socket connections (0: unlimited)")
	addTTLFlags(cmd, &pdnsCfg)
	return cmd
}
