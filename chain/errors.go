package chain

import "errors"

var (
	// ErrRoundBeforeGenesis is returned for instants at or before genesis: round 1
	// is the first round to exist after genesis.
	ErrRoundBeforeGenesis = errors.New("round before genesis")
	// ErrUnexpectedTime is returned for instants before the Unix epoch.
	ErrUnexpectedTime = errors.New("unexpected time")
	// ErrInvalidPeriod means the chain period is shorter than one second.
	ErrInvalidPeriod = errors.New("invalid chain period")
	// ErrInvalidChainInfo means the chain info failed validation.
	ErrInvalidChainInfo = errors.New("invalid chain info")
	// ErrStaleBeacon means a latest beacon is more than one round behind schedule.
	ErrStaleBeacon = errors.New("beacon is too far in the past")
)
