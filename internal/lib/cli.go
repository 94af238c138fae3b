package lib

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	nhttp "net/http"
	"os"
	"strings"

	clock "github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"

	"github.com/drand/drand-verify/chain"
	pubClient "github.com/drand/drand-verify/client"
	http2 "github.com/drand/drand-verify/client/http"
	gclient "github.com/drand/drand-verify/client/lp2p"
	"github.com/drand/drand-verify/common/log"
	"github.com/drand/drand-verify/drand"
	"github.com/drand/drand-verify/internal/grpc"
)

var (
	// URLFlag is the CLI flag for root URL(s) for fetching randomness.
	URLFlag = &cli.StringSliceFlag{
		Name:    "url",
		Usage:   "root URL(s) for fetching randomness",
		EnvVars: []string{"DRAND_URL"},
	}
	// GRPCConnectFlag is the CLI flag for host:port to dial a gRPC randomness
	// provider.
	GRPCConnectFlag = &cli.StringFlag{
		Name:    "grpc-connect",
		Usage:   "host:port to dial a gRPC randomness provider",
		EnvVars: []string{"DRAND_GRPC_CONNECT"},
	}
	// HashFlag is the CLI flag for the hash (in hex) of the targeted chain.
	HashFlag = &cli.StringFlag{
		Name:    "hash",
		Usage:   "The hash (in hex) of the chain to follow",
		Aliases: []string{"chain-hash"},
		EnvVars: []string{"DRAND_CHAIN_HASH"},
	}
	// ChainInfoFlag is the CLI flag for specifying the path to the drand group
	// configuration (TOML encoded) or chain info (JSON encoded).
	ChainInfoFlag = &cli.PathFlag{
		Name: "chain-info",
		Usage: "Path to a drand group configuration (TOML encoded) or chain info (JSON encoded)," +
			" can be used instead of `-hash` flag to verify the chain.",
		Aliases: []string{"group-conf"},
		EnvVars: []string{"DRAND_CHAIN_INFO"},
	}
	// InsecureFlag is the CLI flag to allow autodetection of the chain
	// information.
	InsecureFlag = &cli.BoolFlag{
		Name:    "insecure",
		Usage:   "Allow autodetection of the chain information",
		EnvVars: []string{"DRAND_INSECURE"},
	}
	// RelayFlag is the CLI flag for relay peer multiaddr(s) to connect with.
	RelayFlag = &cli.StringSliceFlag{
		Name:    "relay",
		Usage:   "relay peer multiaddr(s) to connect with",
		EnvVars: []string{"DRAND_RELAY"},
	}
	// PortFlag is the CLI flag for local address for client to bind to, when
	// connecting to relays. (specified as a numeric port, or a host:port)
	PortFlag = &cli.StringFlag{
		Name:    "port",
		Usage:   "Local (host:)port for constructed libp2p host to listen on",
		EnvVars: []string{"DRAND_PORT"},
	}

	// JSONFlag is the value of the CLI flag `json` enabling JSON output of the loggers
	JSONFlag = &cli.BoolFlag{
		Name:    "json",
		Usage:   "Set the output as json format",
		EnvVars: []string{"DRAND_JSON"},
	}

	VerboseFlag = &cli.BoolFlag{
		Name:    "verbose",
		Usage:   "If set, verbosity is at the debug level",
		EnvVars: []string{"DRAND_VERBOSE"},
	}
)

// ClientFlags is a list of common flags for client creation
var ClientFlags = []cli.Flag{
	URLFlag,
	GRPCConnectFlag,
	HashFlag,
	ChainInfoFlag,
	InsecureFlag,
	RelayFlag,
	PortFlag,
	JSONFlag,
	VerboseFlag,
}

// Logger builds the logger selected by the verbose and json flags.
func Logger(c *cli.Context) log.Logger {
	level := log.WarnLevel
	if c.Bool(VerboseFlag.Name) {
		level = log.DebugLevel
	}
	return log.New(nil, level, c.Bool(JSONFlag.Name))
}

// ChainInfoFromFile reads a group file (TOML) or a chain info (JSON).
func ChainInfoFromFile(l log.Logger, filePath string) (*chain.Info, error) {
	info, err := chain.InfoFromTOML(filePath)
	if err == nil {
		return info, nil
	}
	l.Infow("Got a chain info file that is not a toml file. Trying it as a ChainInfo json file.", "path", filePath)
	f, ferr := os.Open(filePath)
	if ferr != nil {
		return nil, ferr
	}
	defer f.Close()
	info, jerr := chain.InfoFromJSON(f)
	if jerr != nil {
		return nil, fmt.Errorf("failed to decode chain info (%s): %w", filePath, errors.Join(err, jerr))
	}
	return info, nil
}

// Create builds a client, and can be invoked from a cli action supplied
// with ClientFlags
//
//nolint:gocyclo
func Create(c *cli.Context, withInstrumentation bool, opts ...pubClient.Option) (drand.Client, error) {
	clients := make([]drand.Client, 0)
	l := Logger(c)

	var info *chain.Info
	var err error
	var hash []byte
	if infoPath := c.Path(ChainInfoFlag.Name); infoPath != "" {
		info, err = ChainInfoFromFile(l, infoPath)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pubClient.WithChainInfo(info))
	}

	if info != nil {
		hash = info.Hash()
	}

	grc, info, err := buildGrpcClient(c, info)
	if err != nil {
		return nil, err
	}
	if len(grc) > 0 {
		clients = append(clients, grc...)
	}

	if c.String(HashFlag.Name) != "" {
		hash, err = hex.DecodeString(c.String(HashFlag.Name))
		if err != nil {
			return nil, err
		}
		if info != nil && !bytes.Equal(hash, info.Hash()) {
			return nil, fmt.Errorf(
				"%w for beacon %s %v != %v",
				drand.ErrInvalidChainHash,
				info.ID,
				c.String(HashFlag.Name),
				info.HashString(),
			)
		}
		opts = append(opts, pubClient.WithChainHash(hash))
	}

	if c.Bool(InsecureFlag.Name) {
		opts = append(opts, pubClient.Insecurely())
	}

	hc, info, err := buildHTTPClients(c, l, hash, info)
	if err != nil {
		return nil, err
	}
	if len(hc) > 0 {
		clients = append(clients, hc...)
	}
	if info != nil && hash != nil && !bytes.Equal(hash, info.Hash()) {
		return nil, fmt.Errorf(
			"%w for beacon %s : expected %v != info %v",
			drand.ErrInvalidChainHash,
			info.ID,
			hex.EncodeToString(hash),
			info.HashString(),
		)
	}

	gopt, err := buildGossipClient(c, l)
	if err != nil {
		return nil, err
	}
	opts = append(opts, gopt...)

	if withInstrumentation {
		opts = append(opts, pubClient.WithPrometheus(prometheus.DefaultRegisterer))
	}

	opts = append(opts, pubClient.WithLogger(l))
	return pubClient.Wrap(clients, opts...)
}

func buildGrpcClient(c *cli.Context, info *chain.Info) ([]drand.Client, *chain.Info, error) {
	if !c.IsSet(GRPCConnectFlag.Name) {
		return nil, info, nil
	}

	var hash []byte
	if c.IsSet(HashFlag.Name) {
		var err error

		hash, err = hex.DecodeString(c.String(HashFlag.Name))
		if err != nil {
			return nil, nil, err
		}
	}

	if info != nil && len(hash) == 0 {
		hash = info.Hash()
	}

	gc, err := grpc.New(c.String(GRPCConnectFlag.Name), c.Bool(InsecureFlag.Name), hash)
	if err != nil {
		return nil, nil, err
	}

	if info == nil {
		info, err = gc.Info(c.Context)
		if err != nil {
			_ = gc.Close()
			return nil, nil, err
		}
	}

	return []drand.Client{gc}, info, nil
}

func buildHTTPClients(c *cli.Context, l log.Logger, hash []byte, info *chain.Info) ([]drand.Client, *chain.Info, error) {
	ctx := c.Context
	urls := c.StringSlice(URLFlag.Name)
	if len(urls) == 0 {
		return nil, info, nil
	}

	clients := make([]drand.Client, 0, len(urls))
	var skipped []string

	l.Infow("Building HTTP clients", "hash", len(hash), "urls", urls)

	for _, url := range urls {
		var hc drand.Client
		var err error
		if info != nil {
			hc, err = http2.NewWithInfo(l, url, info, nhttp.DefaultTransport)
		} else {
			hc, err = http2.New(ctx, l, url, hash, nhttp.DefaultTransport)
		}
		if err != nil {
			l.Warnw("", "client", "failed to load URL", "url", url, "err", err)
			skipped = append(skipped, url)
			continue
		}
		if info == nil {
			info, err = hc.Info(ctx)
			if err != nil {
				l.Warnw("", "client", "failed to load Info from URL", "url", url, "err", err)
				skipped = append(skipped, url)
				continue
			}
		}
		clients = append(clients, hc)
	}

	if len(skipped) == len(urls) {
		return nil, nil, errors.New("all URLs failed to be used for creating a http client")
	}

	if info != nil {
		if hash != nil && !bytes.Equal(hash, info.Hash()) {
			l.Warnw("mismatch between retrieved chain info hash and provided hash", "chainInfo", info.HashString(), "provided", hex.EncodeToString(hash))
			return nil, nil, fmt.Errorf("%w: mismatch between retrieved chain info and provided hash", drand.ErrInvalidChainHash)
		}

		for _, url := range skipped {
			hc, err := http2.NewWithInfo(l, url, info, nhttp.DefaultTransport)
			if err != nil {
				l.Warnw("", "client", "failed to load URL", "url", url, "err", err)
				continue
			}
			clients = append(clients, hc)
		}
	}

	return clients, info, nil
}

func buildGossipClient(c *cli.Context, l log.Logger) ([]pubClient.Option, error) {
	addrs := c.StringSlice(RelayFlag.Name)
	if len(addrs) == 0 {
		return []pubClient.Option{}, nil
	}
	listen, err := listenMultiaddr(c.String(PortFlag.Name))
	if err != nil {
		return nil, err
	}
	// in-memory peerstore and throwaway identity, nothing is left on disk
	ps, _, err := gclient.NewPubsub(log.ToContext(c.Context, l), listen, addrs)
	if err != nil {
		return nil, err
	}
	return []pubClient.Option{gclient.WithPubsub(l, ps, clock.NewRealClock(), gclient.DefaultBufferSize)}, nil
}

// listenMultiaddr turns a port or host:port into a TCP multiaddr.
func listenMultiaddr(clientListenAddr string) (string, error) {
	if clientListenAddr == "" {
		return "", nil
	}
	bindHost := "0.0.0.0"
	if strings.Contains(clientListenAddr, ":") {
		host, port, err := net.SplitHostPort(clientListenAddr)
		if err != nil {
			return "", err
		}
		bindHost = host
		clientListenAddr = port
	}
	return fmt.Sprintf("/ip4/%s/tcp/%s", bindHost, clientListenAddr), nil
}
