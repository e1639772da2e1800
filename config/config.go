// Package config carries the plain-struct configuration the core's
// host process assembles before constructing any oracle or actor
// (spec §6 "Process-level controls"; SPEC_FULL.md AMBIENT STACK). The
// core itself never reads flags or files; it takes a config.Node
// value. cmd/chaincored demonstrates loading one via
// github.com/urfave/cli/v2, grounded on the teacher's own cmd/utils
// flag conventions.
package config

import (
	"time"

	"github.com/openxnode/chaincore/chain"
	"github.com/openxnode/chaincore/otdht"
)

// OTDHT carries the peer actor's tunables, moved out of the package
// defaults per spec §9's open question ("they belong in
// configuration").
type OTDHT struct {
	Endpoint          string
	PingInterval      time.Duration
	RegistrationRetry time.Duration
}

// Resolved fills in SPEC_FULL/§9 defaults for any zero-valued field.
func (o OTDHT) Resolved() OTDHT {
	if o.PingInterval <= 0 {
		o.PingInterval = otdht.DefaultPingInterval
	}
	if o.RegistrationRetry <= 0 {
		o.RegistrationRetry = otdht.DefaultRegistrationRetry
	}
	return o
}

// ChainConfig is one hosted chain's deployment-time configuration:
// which chain, how many peers to target, and where its durable state
// lives (spec §6 "Peer target count per chain comes from
// configuration").
type ChainConfig struct {
	Chain      chain.Chain
	DataDir    string
	PeerTarget int
}

// Node is the full configuration a host process assembles and passes
// to the core (spec §6 Profile enum and per-process controls).
type Node struct {
	Profile chain.Profile
	Chains  []ChainConfig
	OTDHT   []OTDHT
}

// Resolved applies the chain.Params default peer target to any
// ChainConfig that left PeerTarget unset, and resolves each OTDHT
// entry's defaults.
func (n Node) Resolved() Node {
	out := n
	out.Chains = make([]ChainConfig, len(n.Chains))
	for i, c := range n.Chains {
		if c.PeerTarget <= 0 {
			if params, ok := chain.Lookup(c.Chain); ok {
				c.PeerTarget = params.PeerTarget
			}
		}
		out.Chains[i] = c
	}
	out.OTDHT = make([]OTDHT, len(n.OTDHT))
	for i, o := range n.OTDHT {
		out.OTDHT[i] = o.Resolved()
	}
	return out
}
