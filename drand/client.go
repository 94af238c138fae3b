package drand

import (
	"context"
	"time"

	"github.com/drand/drand-verify/chain"
	"github.com/drand/drand-verify/common/log"
)

// Result represents the randomness for a single drand round.
type Result interface {
	GetRound() uint64
	GetRandomness() []byte
	GetSignature() []byte
	GetPreviousSignature() []byte
}

// Client represents the drand Client interface.
type Client interface {
	// Get returns the randomness at `round` or an error.
	// Requesting round = 0 will return randomness for the most
	// recent known round.
	Get(ctx context.Context, round uint64) (Result, error)

	// Watch returns new randomness as it becomes available.
	Watch(ctx context.Context) <-chan Result

	// Info returns the parameters of the chain this client is connected
	// to. The public key, when it started, and how frequently it updates.
	Info(ctx context.Context) (*chain.Info, error)

	// RoundAt will return the most recent round of randomness that will be
	// available at time for the current client.
	RoundAt(time time.Time) uint64

	// Close will halt the client, any background processes it runs and any
	// in-flight Get, Watch or Info requests. Behavior for in-flight requests
	// is currently undefined.
	Close() error
}

// LoggingClient sets the logger for use by clients that support it
type LoggingClient interface {
	SetLog(log.Logger)
}
