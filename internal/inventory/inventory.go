// Package inventory implements the local container inventory probe:
// given a container name, ask the container manager CLI whether this
// node currently runs it and, if so, what global-scope IPv6 addresses
// it holds.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/netip"
	"strings"

	"github.com/datawire/dlib/dexec"

	"github.com/benaryorg/lxddns/internal/bus"
	"github.com/benaryorg/lxddns/internal/containername"
	"github.com/benaryorg/lxddns/internal/lxderr"
)

// errInstanceGone is the manager's "Error: not found" on a state query: the
// instance disappeared between enumeration and the state lookup. Query
// folds it into "absent" rather than surfacing an error.
var errInstanceGone = lxderr.LocalExecution.Newf("instance not found")

// Probe shells out to a container manager command via sudo to answer
// bus.Inventory queries. Command is the manager binary name, e.g. "lxc"
// or "incus".
type Probe struct {
	Command string
}

// assert that Probe.Query satisfies bus.Inventory's shape.
var _ bus.Inventory = (*Probe)(nil).Query

type address struct {
	Address string `json:"address"`
	Family  string `json:"family"`
	Scope   string `json:"scope"`
}

type netState struct {
	Addresses []address `json:"addresses"`
}

type containerState struct {
	Status  string              `json:"status"`
	Network map[string]netState `json:"network"`
}

// Query implements bus.Inventory: enumerate, match, read runtime state,
// filter to global-scope inet6 addresses.
func (p *Probe) Query(ctx context.Context, name containername.Name) ([]netip.Addr, bool, error) {
	instance, found, err := p.matchInstance(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}

	out, err := p.query(ctx, "/1.0/instances/"+instance+"/state")
	if err != nil {
		if errors.Is(err, errInstanceGone) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var state containerState
	if err := json.Unmarshal(out, &state); err != nil {
		return nil, false, lxderr.LocalOutput.New(err)
	}
	if state.Status != "Running" {
		return nil, false, nil
	}
	if len(state.Network) == 0 {
		return nil, false, nil
	}

	var addrs []netip.Addr
	for _, net := range state.Network {
		for _, addr := range net.Addresses {
			if addr.Scope != "global" || addr.Family != "inet6" {
				continue
			}
			parsed, err := netip.ParseAddr(addr.Address)
			if err != nil {
				continue
			}
			addrs = append(addrs, parsed)
		}
	}

	return addrs, true, nil
}

// matchInstance enumerates /1.0/instances and applies the exact-then-
// numeric-suffix match policy.
func (p *Probe) matchInstance(ctx context.Context, name containername.Name) (string, bool, error) {
	out, err := p.query(ctx, "/1.0/instances")
	if err != nil {
		return "", false, err
	}

	var paths []string
	if err := json.Unmarshal(out, &paths); err != nil {
		return "", false, lxderr.LocalOutput.New(err)
	}

	instance, ok := pickInstance(paths, name.String())
	return instance, ok, nil
}

// pickInstance applies the match policy to the enumerated instance paths:
// an exact name match wins, otherwise the first instance whose name is the
// queried name followed only by ASCII digits (per-host suffix conventions
// like "web1", "web2"). Any other suffix is not a match.
func pickInstance(paths []string, name string) (string, bool) {
	const prefix = "/1.0/instances/"
	var prefixMatch string
	for _, path := range paths {
		instance, ok := strings.CutPrefix(path, prefix)
		if !ok {
			continue
		}
		if instance == name {
			return instance, true
		}
		if remainder, ok := strings.CutPrefix(instance, name); ok && remainder != "" && onlyDigits(remainder) {
			if prefixMatch == "" {
				prefixMatch = instance
			}
		}
	}

	if prefixMatch != "" {
		return prefixMatch, true
	}
	return "", false
}

func onlyDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// query runs `sudo <command> query -- <path>` and returns its stdout.
func (p *Probe) query(ctx context.Context, path string) ([]byte, error) {
	cmd := dexec.CommandContext(ctx, "sudo", p.Command, "query", "--", path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if bytes.Equal(bytes.TrimSpace(stderr.Bytes()), []byte("Error: not found")) {
			return nil, errInstanceGone
		}
		return nil, lxderr.LocalExecution.Newf("%s query %s failed: %v: %s", p.Command, path, err, stderr.String())
	}
	return stdout.Bytes(), nil
}
