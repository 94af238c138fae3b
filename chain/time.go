package chain

import (
	"fmt"
	"time"
)

func periodSeconds(info *Info) (int64, error) {
	p := int64(info.Period / time.Second)
	if p <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPeriod, info.Period)
	}
	return p, nil
}

// RoundForTime returns the round being produced at t. Genesis itself belongs
// to no round: round 1 covers (genesis, genesis+period].
func RoundForTime(info *Info, t time.Time) (uint64, error) {
	period, err := periodSeconds(info)
	if err != nil {
		return 0, err
	}
	now := t.Unix()
	if now < 0 {
		return 0, ErrUnexpectedTime
	}
	if now <= info.GenesisTime {
		return 0, ErrRoundBeforeGenesis
	}
	return uint64((now-info.GenesisTime)/period) + 1, nil
}

// TimeOfRound returns the Unix time at which round is scheduled. Round 0 and
// round 1 both map to genesis.
func TimeOfRound(info *Info, round uint64) int64 {
	if round == 0 {
		return info.GenesisTime
	}
	period := int64(info.Period / time.Second)
	return info.GenesisTime + int64(round-1)*period
}

// CheckRecent reports whether round is acceptable as the latest round at now.
// The network may lag one period behind while it aggregates signatures, so
// the round preceding the expected one is tolerated.
func CheckRecent(info *Info, round uint64, now time.Time) error {
	expected, err := RoundForTime(info, now)
	if err != nil {
		return err
	}
	// round+1 rather than expected-1 keeps round 1 from wrapping around
	if round+1 < expected {
		return fmt.Errorf("%w: got round %d, expected at least %d", ErrStaleBeacon, round, expected-1)
	}
	return nil
}
