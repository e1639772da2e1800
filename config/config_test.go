package config

import (
	"testing"

	"github.com/openxnode/chaincore/chain"
	"github.com/stretchr/testify/require"
)

func TestChainConfigResolvedFillsPeerTargetFromParams(t *testing.T) {
	n := Node{Chains: []ChainConfig{{Chain: chain.Bitcoin}}}
	resolved := n.Resolved()
	params, _ := chain.Lookup(chain.Bitcoin)
	require.Equal(t, params.PeerTarget, resolved.Chains[0].PeerTarget)
}

func TestChainConfigResolvedKeepsExplicitPeerTarget(t *testing.T) {
	n := Node{Chains: []ChainConfig{{Chain: chain.Bitcoin, PeerTarget: 3}}}
	resolved := n.Resolved()
	require.Equal(t, 3, resolved.Chains[0].PeerTarget)
}

func TestOTDHTResolvedFillsDefaults(t *testing.T) {
	o := OTDHT{Endpoint: "tcp://remote:9001"}.Resolved()
	require.Equal(t, "tcp://remote:9001", o.Endpoint)
	require.Positive(t, o.PingInterval)
	require.Positive(t, o.RegistrationRetry)
}
