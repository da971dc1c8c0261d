package main

import (
	"github.com/spf13/cobra"

	"github.com/benaryorg/lxddns/internal/config"
	"github.com/benaryorg/lxddns/internal/pdns"
)

// addTTLFlags registers the SOA/NS/AAAA TTL override flags shared by the
// pipe and unix subcommands, defaulting to pdns.DefaultTTLs().
func addTTLFlags(cmd *cobra.Command, cfg *config.PdnsConfig) {
	defaults := pdns.DefaultTTLs()
	cmd.Flags().Uint32Var(&cfg.SoaTTL, "soa-ttl", defaults.SoaTTL, "TTL for SOA records")
	cmd.Flags().Uint32Var(&cfg.NsTTL, "ns-ttl", defaults.NsTTL, "TTL for NS records")
	cmd.Flags().Uint32Var(&cfg.AaaaTTL, "aaaa-ttl", defaults.AaaaTTL, "TTL for AAAA records")
}

// applyTTLOverrides copies a validated PdnsConfig's TTLs onto an engine.
func applyTTLOverrides(engine *pdns.Engine, cfg config.PdnsConfig) {
	engine.TTL = pdns.TtlConfig{SoaTTL: cfg.SoaTTL, NsTTL: cfg.NsTTL, AaaaTTL: cfg.AaaaTTL}
}
