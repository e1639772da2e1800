// Command chaincored is the example host process that assembles a
// config.Node from CLI flags and wires one HeaderOracle, BlockOracle,
// FilterOracle, and OTDHT peer per configured chain (spec §6
// "Process-level controls"; SPEC_FULL.md AMBIENT STACK: "the CLI
// surface demonstrates how a host process assembles one"). It is not
// itself part of the core's public contract — real hosts construct
// config.Node and the oracles directly.
package main

import (
	"fmt"
	"os"

	"github.com/decred/dcrd/gcs/v4"
	"github.com/urfave/cli/v2"

	"github.com/openxnode/chaincore/blockoracle"
	"github.com/openxnode/chaincore/chain"
	"github.com/openxnode/chaincore/config"
	"github.com/openxnode/chaincore/crypto"
	"github.com/openxnode/chaincore/filteroracle"
	"github.com/openxnode/chaincore/headeroracle"
	"github.com/openxnode/chaincore/log"
	"github.com/openxnode/chaincore/otdht"
	"github.com/openxnode/chaincore/storage/kvstore"
)

var (
	chainFlag = &cli.StringFlag{
		Name:  "chain",
		Usage: "chain to host: bitcoin, bitcoincash, litecoin",
		Value: "bitcoin",
	}
	profileFlag = &cli.StringFlag{
		Name:  "profile",
		Usage: "deployment profile: mobile, desktop, desktop_native, server",
		Value: "desktop",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "directory for the pebble-backed header/block/walletdb stores",
		Value: "./chaincore-data",
	}
	peerTargetFlag = &cli.IntFlag{
		Name:  "peer-target",
		Usage: "number of peers to maintain for the hosted chain (0 = chain default)",
	}
	otdhtEndpointFlag = &cli.StringFlag{
		Name:  "otdht-endpoint",
		Usage: "remote OTDHT peer's dealer endpoint (empty disables OTDHT)",
	}
)

func main() {
	app := &cli.App{
		Name:  "chaincored",
		Usage: "run the blockchain node core (HeaderOracle/BlockOracle/wallet) for one chain",
		Flags: []cli.Flag{chainFlag, profileFlag, dataDirFlag, peerTargetFlag, otdhtEndpointFlag},
		Action: func(c *cli.Context) error {
			return run(parseNode(c))
		},
	}
	if err := app.Run(os.Args); err != nil {
		log.Crit("chaincored exited", "err", err)
		os.Exit(1)
	}
}

func parseNode(c *cli.Context) config.Node {
	node := config.Node{
		Profile: parseProfile(c.String("profile")),
		Chains: []config.ChainConfig{{
			Chain:      parseChain(c.String("chain")),
			DataDir:    c.String("datadir"),
			PeerTarget: c.Int("peer-target"),
		}},
	}
	if ep := c.String("otdht-endpoint"); ep != "" {
		node.OTDHT = []config.OTDHT{{Endpoint: ep}}
	}
	return node.Resolved()
}

func parseChain(s string) chain.Chain {
	switch s {
	case "bitcoincash":
		return chain.BitcoinCash
	case "litecoin":
		return chain.Litecoin
	default:
		return chain.Bitcoin
	}
}

func parseProfile(s string) chain.Profile {
	switch s {
	case "mobile":
		return chain.ProfileMobile
	case "desktop_native":
		return chain.ProfileDesktopNative
	case "server":
		return chain.ProfileServer
	default:
		return chain.ProfileDesktop
	}
}

// run constructs the per-chain oracle set from node and blocks until
// the process is killed. It is example wiring, not a supported entry
// point for embedders.
func run(node config.Node) error {
	cc := node.Chains[0]
	params, ok := chain.Lookup(cc.Chain)
	if !ok {
		return fmt.Errorf("chaincored: chain %s has no registered params", cc.Chain)
	}

	store, err := kvstore.OpenPebble(cc.DataDir)
	if err != nil {
		return fmt.Errorf("chaincored: open pebble store at %s: %w", cc.DataDir, err)
	}
	defer store.Close()

	provider := crypto.Secp256k1Provider{}
	genesis := &headeroracle.Header{Hash: params.GenesisHash, Height: params.GenesisHeight, PowTarget: 0x1d00ffff}
	hOracle := headeroracle.New(cc.Chain, params, provider, genesis)

	var validator blockoracle.Validator = blockoracle.AcceptAllValidator{}
	bOracle := blockoracle.New(cc.Chain, node.Profile, provider, store, validator)

	var key [gcs.KeySize]byte
	fOracle := filteroracle.NewGCSOracle(params.DefaultFilter, key, nil)

	log.Info("chaincore starting",
		"chain", cc.Chain.String(), "profile", node.Profile.String(),
		"datadir", cc.DataDir, "peer_target", cc.PeerTarget)

	for _, oc := range node.OTDHT {
		peer := otdht.New(otdht.Config{
			Endpoint:          oc.Endpoint,
			PingInterval:      oc.PingInterval,
			RegistrationRetry: oc.RegistrationRetry,
		})
		if err := peer.Connect(); err != nil {
			log.Warn("otdht connect failed", "endpoint", oc.Endpoint, "err", err)
			continue
		}
		peer.Run()
		defer peer.Stop()
		log.Info("otdht peer connected", "endpoint", oc.Endpoint)
	}

	log.Info("header oracle ready", "best", hOracle.BestChain().String())
	log.Info("block oracle ready", "ibd", bOracle.IsIBD())
	_ = fOracle

	select {} // a real host replaces this with its own lifecycle/signal handling.
}
