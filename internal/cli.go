package drand

import (
	"fmt"
	"sync"

	clock "github.com/jonboulle/clockwork"
	"github.com/urfave/cli/v2"

	"github.com/drand/drand-verify/internal/lib"
)

// Automatically set through -ldflags
// Example: go install -ldflags "-X github.com/drand/drand-verify/internal.buildDate=$(date -u +%d/%m/%Y@%H:%M:%S) -X github.com/drand/drand-verify/internal.gitCommit=$(git rev-parse HEAD)"
var (
	gitCommit = "none"
	buildDate = "unknown"
	version   = "0.1.0"
)

var SetVersionPrinter sync.Once

var roundFlag = &cli.Uint64Flag{
	Name: "round",
	Usage: "Request the public randomness generated at round num. If the drand beacon does not have the requested value," +
		" it returns an error. If not specified, the current randomness is returned.",
	EnvVars: []string{"DRAND_ROUND"},
}

var hashOnly = &cli.BoolFlag{
	Name:    "hash-only",
	Usage:   "Only print the hash of the chain info",
	EnvVars: []string{"DRAND_HASH_ONLY"},
}

var beaconFlag = &cli.StringFlag{
	Name:     "beacon",
	Usage:    "Path to a beacon in JSON as served by the HTTP API, or - to read it from stdin",
	Required: true,
	EnvVars:  []string{"DRAND_BEACON"},
}

var timeFlag = &cli.TimestampFlag{
	Name:    "time",
	Usage:   "RFC3339 time to map to a round, defaults to now",
	Layout:  "2006-01-02T15:04:05Z07:00",
	EnvVars: []string{"DRAND_TIME"},
}

var checkTimeFlag = &cli.BoolFlag{
	Name:  "check-time",
	Usage: "Also reject the beacon if its round is not due yet",
}

var listenFlag = &cli.StringFlag{
	Name:    "listen",
	Usage:   "libp2p multiaddr the relay listens on",
	Value:   "/ip4/0.0.0.0/tcp/44544",
	EnvVars: []string{"DRAND_RELAY_LISTEN"},
}

var peerWithFlag = &cli.StringSliceFlag{
	Name:    "peer-with",
	Usage:   "gossip relay multiaddr(s) to peer with",
	EnvVars: []string{"DRAND_PEER_WITH"},
}

var storeFlag = &cli.StringFlag{
	Name:    "store",
	Usage:   "Directory of the relay peerstore, a temporary one is used when empty",
	EnvVars: []string{"DRAND_RELAY_STORE"},
}

var identityFlag = &cli.StringFlag{
	Name:    "identity",
	Usage:   "Path of the relay libp2p identity key, created when missing",
	Value:   "identity.key",
	EnvVars: []string{"DRAND_RELAY_IDENTITY"},
}

var httpBindFlag = &cli.StringFlag{
	Name:    "http-bind",
	Usage:   "host:port to serve the public HTTP API and metrics on, disabled when empty",
	EnvVars: []string{"DRAND_HTTP_BIND"},
}

var grpcBindFlag = &cli.StringFlag{
	Name:    "grpc-bind",
	Usage:   "host:port to serve the public gRPC API on, disabled when empty",
	EnvVars: []string{"DRAND_GRPC_BIND"},
}

var appCommands = []*cli.Command{
	{
		Name:  "get",
		Usage: "get allows for public information retrieval from drand endpoints.\n",
		Subcommands: []*cli.Command{
			{
				Name: "public",
				Usage: "Get the latest public randomness from the drand " +
					"endpoints and verify it against the collective public key " +
					"of the chain. Endpoints are tried in order until one of them " +
					"returns a beacon that verifies.\n",
				Flags:  append(toArray(roundFlag), lib.ClientFlags...),
				Action: getPublicRandomness,
			},
			{
				Name:   "chain-info",
				Usage:  "Get the binding chain information of the endpoints",
				Flags:  append(toArray(hashOnly), lib.ClientFlags...),
				Action: getChainInfo,
			},
		},
	},
	{
		Name:   "verify",
		Usage:  "Verify a beacon offline against a chain info or group file.\n",
		Flags:  toArray(requiredChainInfo(), beaconFlag, checkTimeFlag),
		Action: verifyCmd,
	},
	{
		Name:   "round",
		Usage:  "Map a time to the round current at that time, or a round to the time it is emitted.\n",
		Flags:  toArray(requiredChainInfo(), timeFlag, roundFlag),
		Action: roundCmd,
	},
	{
		Name:   "schemes",
		Usage:  "List the signature schemes this client can verify.\n",
		Action: schemesCmd,
	},
	{
		Name: "relay",
		Usage: "Follow a chain through the client flags and republish every verified beacon " +
			"on gossipsub, and optionally over HTTP and gRPC.\n",
		Flags: append(toArray(listenFlag, peerWithFlag, storeFlag, identityFlag, httpBindFlag, grpcBindFlag),
			lib.ClientFlags...),
		Action: relayCmd,
	},
}

// clockKey is the app metadata entry holding the clock commands read "now" from.
const clockKey = "clock"

func appClock(c *cli.Context) clock.Clock {
	if clk, ok := c.App.Metadata[clockKey].(clock.Clock); ok {
		return clk
	}
	return clock.NewRealClock()
}

func requiredChainInfo() cli.Flag {
	f := *lib.ChainInfoFlag
	f.Required = true
	return &f
}

// CLI runs the drand app
func CLI() *cli.App {
	app := cli.NewApp()
	app.Name = "drand-verify"

	// See https://cli.urfave.org/v2/examples/bash-completions/#enabling for how to turn on.
	app.EnableBashCompletion = true

	SetVersionPrinter.Do(func() {
		cli.VersionPrinter = func(c *cli.Context) {
			fmt.Fprintf(c.App.Writer, "drand-verify %s (date %v, commit %v)\n", version, buildDate, gitCommit)
		}
	})

	app.ExitErrHandler = func(context *cli.Context, err error) {
		// override to prevent default behavior of calling OS.exit(1),
		// when tests expect to be able to run multiple commands.
	}
	app.Version = version
	app.Metadata = map[string]interface{}{clockKey: clock.NewRealClock()}
	app.Usage = "verifying client for drand randomness beacons"
	// =====Commands=====
	// we need to copy the underlying commands to avoid races, cli sadly doesn't support concurrent executions well
	appComm := make([]*cli.Command, len(appCommands))
	for i, p := range appCommands {
		if p == nil {
			continue
		}
		v := *p
		appComm[i] = &v
	}
	app.Commands = appComm
	// we need to copy the underlying flags to avoid races
	verbFlag := *lib.VerboseFlag
	app.Flags = toArray(&verbFlag)
	return app
}

func toArray(flags ...cli.Flag) []cli.Flag {
	return flags
}
