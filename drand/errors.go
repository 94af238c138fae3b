package drand

import (
	"errors"
)

// ErrInvalidChainHash means there was an error or a mismatch with the chain hash
var ErrInvalidChainHash = errors.New("incorrect chain hash")

// ErrInvalidBeacon means a source answered with a beacon that cannot be the one
// asked for: wrong round, or a latest round too far in the past.
var ErrInvalidBeacon = errors.New("invalid beacon")

// ErrFailedVerification means a beacon did not verify against the chain info.
// The verification error is wrapped alongside it.
var ErrFailedVerification = errors.New("beacon failed verification")

// ErrNotFound means the source does not have the requested round yet.
var ErrNotFound = errors.New("beacon not found")

// ErrNotResponding means the source could not be reached or answered with an
// unexpected status.
var ErrNotResponding = errors.New("source not responding")

// ErrNoRootOfTrust means neither a chain hash nor chain info was configured.
var ErrNoRootOfTrust = errors.New("no root of trust specified")

// ErrWatchUnsupported is returned by sources that cannot stream beacons.
var ErrWatchUnsupported = errors.New("watch is not supported by this source")
