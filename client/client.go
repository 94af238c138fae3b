package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	clock "github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drand/drand-verify/chain"
	"github.com/drand/drand-verify/common/log"
	"github.com/drand/drand-verify/crypto"
	"github.com/drand/drand-verify/drand"
	"github.com/drand/drand-verify/internal/metrics"
)

const ClientStartupTimeout = time.Second * 5

// New creates a verifying client with the specified options.
// It expects to be provided at least 1 valid client, or more using From().
// If not specified, a default context with a timeout of ClientStartupTimeout
// will be used when fetching chain information during client setup.
func New(options ...Option) (drand.Client, error) {
	cfg := clientConfig{}

	for _, opt := range options {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if cfg.log == nil {
		cfg.log = log.DefaultLogger()
	}
	if cfg.clock == nil {
		cfg.clock = clock.NewRealClock()
	}
	if cfg.setupCtx == nil {
		ctx, cancel := context.WithTimeout(context.Background(), ClientStartupTimeout)
		cfg.setupCtx = ctx
		defer cancel()
	}
	return makeClient(&cfg)
}

// Wrap provides a single entrypoint for wrapping concrete client
// implementations with verification and failover.
// It calls New and has the same expectations.
func Wrap(clients []drand.Client, options ...Option) (drand.Client, error) {
	return New(append(options, From(clients...))...)
}

func trySetLog(c any, l log.Logger) {
	if lc, ok := c.(drand.LoggingClient); ok {
		lc.SetLog(l)
	}
}

// makeClient creates a verifying client from a configuration.
func makeClient(cfg *clientConfig) (drand.Client, error) {
	l := cfg.log
	if !cfg.insecure && cfg.chainHash == nil && cfg.chainInfo == nil {
		l.Errorw("no root of trust specified")
		return nil, drand.ErrNoRootOfTrust
	}
	if len(cfg.clients) == 0 && cfg.watcher == nil {
		l.Errorw("no points of contact specified")
		return nil, errors.New("no points of contact specified")
	}

	// try to populate chain info
	if err := cfg.tryPopulateInfo(cfg.setupCtx, cfg.clients...); err != nil {
		return nil, err
	}
	if cfg.chainInfo == nil {
		return nil, errors.New("unable to fetch chain info from any source")
	}
	if cfg.chainHash != nil && !bytes.Equal(cfg.chainInfo.Hash(), cfg.chainHash) {
		l.Errorw("chain info does not match the configured hash", "expected", fmt.Sprintf("%x", cfg.chainHash), "got", cfg.chainInfo.HashString())
		return nil, fmt.Errorf("%w: %x != %x", drand.ErrInvalidChainHash, cfg.chainInfo.Hash(), cfg.chainHash)
	}
	if err := cfg.chainInfo.Validate(); err != nil {
		return nil, err
	}
	sch, err := crypto.SchemeFromName(cfg.chainInfo.Scheme)
	if err != nil {
		return nil, fmt.Errorf("invalid scheme name in makeClient: %w", err)
	}

	// provision watcher client
	var wc drand.Client
	if cfg.watcher != nil {
		wc, err = makeWatcherClient(cfg)
		if err != nil {
			return nil, err
		}
	}

	// bind prometheus metrics if a registerer was provided
	if cfg.prometheus != nil {
		if err := metrics.RegisterClientMetrics(cfg.prometheus); err != nil {
			return nil, err
		}
	}

	for _, c := range cfg.clients {
		trySetLog(c, cfg.log)
	}

	c := newVerifyingClient(l, cfg.clients, wc, cfg.chainInfo, sch, cfg.clock)
	l.Infow("verifying client ready", "chain", cfg.chainInfo.HashString(), "scheme", sch.Name, "sources", len(cfg.clients))
	return c, nil
}

func makeWatcherClient(cfg *clientConfig) (drand.Client, error) {
	if cfg.chainInfo == nil {
		return nil, fmt.Errorf("chain info cannot be nil")
	}

	w, err := cfg.watcher(cfg.log, cfg.chainInfo)
	if err != nil {
		return nil, err
	}
	return &watcherClient{infoClient{cfg.chainInfo}, w}, nil
}

type clientConfig struct {
	// clients is the set of options for fetching randomness
	clients []drand.Client
	// watcher is a constructor function for generating a new partial client of randomness
	watcher WatcherCtor
	// from `chainInfo.Hash()` - serves as a root of trust for a given
	// randomness chain.
	chainHash []byte
	// Full chain information - serves as a root of trust.
	chainInfo *chain.Info
	// insecure indicates the root of trust does not need to be present.
	insecure bool
	// customized client log.
	log log.Logger
	// clock used for latest round computations.
	clock clock.Clock

	// only used during setup to try and fetch chain info if chain info is nil
	setupCtx context.Context

	// prometheus is an interface to a Prometheus system
	prometheus prometheus.Registerer
}

func (c *clientConfig) tryPopulateInfo(ctx context.Context, clients ...drand.Client) error {
	if c.chainInfo != nil {
		return nil
	}
	var merr *multierror.Error
	for _, cli := range clients {
		info, err := cli.Info(ctx)
		if err == nil {
			c.chainInfo = info
			return nil
		}
		// we accumulate errors to try all clients even if the first one fails
		merr = multierror.Append(merr, err)
		if ctx.Err() != nil {
			merr = multierror.Append(merr, ctx.Err())
			break
		}
	}
	return merr.ErrorOrNil()
}

// Option is an option configuring a client.
type Option func(cfg *clientConfig) error

// From constructs the client from a set of clients providing randomness
func From(c ...drand.Client) Option {
	return func(cfg *clientConfig) error {
		cfg.clients = c
		return nil
	}
}

// Insecurely indicates the client should be allowed to provide randomness
// when the root of trust is not fully provided in a validate-able way.
// Beacons are still verified against the chain info the sources advertise.
func Insecurely() Option {
	return func(cfg *clientConfig) error {
		cfg.insecure = true
		return nil
	}
}

// WithChainHash configures the client to root trust with a given randomness
// chain hash, the chain parameters will be fetched from the sources.
func WithChainHash(chainHash []byte) Option {
	return func(cfg *clientConfig) error {
		if cfg.chainInfo != nil && !bytes.Equal(cfg.chainInfo.Hash(), chainHash) {
			return errors.New("refusing to override group with non-matching hash")
		}
		cfg.chainHash = chainHash
		return nil
	}
}

// WithChainInfo configures the client to root trust in the given randomness
// chain information, this prevents the setup of the client from attempting to
// fetch the chain info through the clients from the remotes.
func WithChainInfo(chainInfo *chain.Info) Option {
	return func(cfg *clientConfig) error {
		if cfg.chainHash != nil && !bytes.Equal(cfg.chainHash, chainInfo.Hash()) {
			return errors.New("refusing to override hash with non-matching group")
		}
		cfg.chainInfo = chainInfo
		return nil
	}
}

// WithLogger overrides the logging options for the client,
// allowing specification of additional tags, or redirection / configuration
// of logging level and output. If it is not used to set a specific logger,
// the default logger is used. Sources satisfying the drand.LoggingClient
// interface receive the same logger.
func WithLogger(l log.Logger) Option {
	return func(cfg *clientConfig) error {
		cfg.log = l
		return nil
	}
}

// WithClock sets the clock used to decide which round is the latest one.
func WithClock(clk clock.Clock) Option {
	return func(cfg *clientConfig) error {
		cfg.clock = clk
		return nil
	}
}

// WithSetupCtx allows you to provide a custom setup context that will be used
// if WithChainInfo isn't used and the client setup has to try and fetch the
// ChainInfo from the remotes.
func WithSetupCtx(ctx context.Context) Option {
	return func(cfg *clientConfig) error {
		cfg.setupCtx = ctx
		return nil
	}
}

// Watcher supplies the `Watch` portion of the drand client interface.
type Watcher interface {
	Watch(ctx context.Context) <-chan drand.Result
}

// WatcherCtor creates a Watcher once chain info is known.
type WatcherCtor func(l log.Logger, chainInfo *chain.Info) (Watcher, error)

// WithWatcher specifies a channel that can provide notifications of new
// randomness bootstrapped from the chain info.
func WithWatcher(wc WatcherCtor) Option {
	return func(cfg *clientConfig) error {
		cfg.watcher = wc
		return nil
	}
}

// WithPrometheus specifies a registry into which to report metrics
func WithPrometheus(r prometheus.Registerer) Option {
	return func(cfg *clientConfig) error {
		cfg.prometheus = r
		return nil
	}
}
