package mock

import (
	"context"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	clock "github.com/jonboulle/clockwork"

	"github.com/drand/drand-verify/chain"
	"github.com/drand/drand-verify/client/test/result/mock"
	"github.com/drand/drand-verify/common/testlogger"
	"github.com/drand/drand-verify/crypto"
	"github.com/drand/drand-verify/drand"
	"github.com/drand/drand-verify/internal/httpapi"
)

// ChainRounds is the number of rounds signed by the mock server.
const ChainRounds = 150

// Chain serves pre-signed results of a local chain. The latest round follows
// its clock, and individual rounds can be answered with another round's
// beacon to impersonate a malicious relay.
type Chain struct {
	info    *chain.Info
	results []mock.Result
	clk     clock.Clock

	mu          sync.Mutex
	substitutes map[uint64]uint64
}

// NewChain signs ChainRounds rounds under sch. The chain is timed so that the
// last round is the latest at clk.Now().
func NewChain(sch *crypto.Scheme, clk clock.Clock) *Chain {
	genesis := clk.Now().Unix() - ChainRounds + 1
	info, results := mock.VerifiableResultsAt(ChainRounds, sch, genesis, time.Second)
	return &Chain{
		info:        info,
		results:     results,
		clk:         clk,
		substitutes: make(map[uint64]uint64),
	}
}

// Substitute answers requests for round with the beacon of served.
func (c *Chain) Substitute(round, served uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.substitutes[round] = served
}

// Results returns the signed results, round i at index i-1.
func (c *Chain) Results() []mock.Result {
	return c.results
}

func (c *Chain) String() string {
	return "MockChain"
}

// Get returns the beacon of round, or of the latest round for 0.
func (c *Chain) Get(_ context.Context, round uint64) (drand.Result, error) {
	if round == 0 {
		latest, err := chain.RoundForTime(c.info, c.clk.Now())
		if err != nil {
			return nil, drand.ErrNotFound
		}
		round = latest
	}
	c.mu.Lock()
	if served, ok := c.substitutes[round]; ok {
		round = served
	}
	c.mu.Unlock()
	if round > uint64(len(c.results)) {
		return nil, drand.ErrNotFound
	}
	r := c.results[round-1]
	return &chain.Beacon{
		Round:             r.Rnd,
		Randomness:        r.Rand,
		Signature:         r.Sig,
		PreviousSignature: r.PSig,
	}, nil
}

// Watch is not supported; the HTTP API has no streaming endpoint.
func (c *Chain) Watch(_ context.Context) <-chan drand.Result {
	ch := make(chan drand.Result)
	close(ch)
	return ch
}

// Info returns the chain info.
func (c *Chain) Info(_ context.Context) (*chain.Info, error) {
	return c.info, nil
}

// RoundAt returns the round being produced at t.
func (c *Chain) RoundAt(t time.Time) uint64 {
	r, _ := chain.RoundForTime(c.info, t)
	return r
}

// Close does nothing.
func (c *Chain) Close() error {
	return nil
}

// NewMockHTTPPublicServer creates a mock drand HTTP server for testing. When
// badSecondRound is set, requests for round 2 are answered with round 4.
func NewMockHTTPPublicServer(t *testing.T, badSecondRound bool, sch *crypto.Scheme, clk clock.Clock) (string, *chain.Info, context.CancelFunc, *Chain) {
	t.Helper()
	lg := testlogger.New(t)

	c := NewChain(sch, clk)
	if badSecondRound {
		c.Substitute(2, 4)
	}
	handler := httpapi.New(lg)
	handler.RegisterBeaconHandler(c, c.info.HashString())

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	httpServer := http.Server{Handler: handler, ReadHeaderTimeout: 3 * time.Second}
	go func() { _ = httpServer.Serve(listener) }()

	return listener.Addr().String(), c.info, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = httpServer.Shutdown(ctx)
	}, c
}
