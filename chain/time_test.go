package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func mainnetLike() *Info {
	return &Info{
		Period:      30 * time.Second,
		GenesisTime: 1595431050,
	}
}

func TestRoundForTime(t *testing.T) {
	info := mainnetLike()
	tests := []struct {
		name  string
		t     int64
		round uint64
		err   error
	}{
		{"epoch", 0, 0, ErrRoundBeforeGenesis},
		{"before genesis", 1595431049, 0, ErrRoundBeforeGenesis},
		{"at genesis", 1595431050, 0, ErrRoundBeforeGenesis},
		{"just after genesis", 1595431051, 1, nil},
		{"last second of round 1", 1595431079, 1, nil},
		{"one period after genesis", 1595431080, 2, nil},
		{"two periods after genesis", 1595431110, 3, nil},
		{"far future", 1595431050 + 30*1_000_000, 1_000_001, nil},
		{"before epoch", -1, 0, ErrUnexpectedTime},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			r, err := RoundForTime(info, time.Unix(tt.t, 0))
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.round, r)
		})
	}
}

func TestRoundForTimeInvalidPeriod(t *testing.T) {
	for _, p := range []time.Duration{0, 500 * time.Millisecond, -time.Second} {
		info := &Info{Period: p, GenesisTime: 10}
		_, err := RoundForTime(info, time.Unix(100, 0))
		require.ErrorIs(t, err, ErrInvalidPeriod)
	}
}

func TestRoundForTimeNegativeGenesis(t *testing.T) {
	info := &Info{Period: 3 * time.Second, GenesisTime: -5}
	r, err := RoundForTime(info, time.Unix(0, 0))
	require.NoError(t, err)
	require.Equal(t, uint64(2), r)
}

func TestTimeOfRound(t *testing.T) {
	info := mainnetLike()
	require.Equal(t, info.GenesisTime, TimeOfRound(info, 0))
	require.Equal(t, info.GenesisTime, TimeOfRound(info, 1))
	require.Equal(t, info.GenesisTime+30, TimeOfRound(info, 2))

	// a round is produced at its scheduled time and is current until the next
	for _, round := range []uint64{2, 3, 1000} {
		r, err := RoundForTime(info, time.Unix(TimeOfRound(info, round), 0))
		require.NoError(t, err)
		require.Equal(t, round, r)
	}
}

func TestCheckRecent(t *testing.T) {
	info := mainnetLike()
	// expected round at this instant is 3
	now := time.Unix(info.GenesisTime+60, 0)

	require.NoError(t, CheckRecent(info, 3, now))
	require.NoError(t, CheckRecent(info, 2, now))
	require.NoError(t, CheckRecent(info, 10, now))
	require.ErrorIs(t, CheckRecent(info, 1, now), ErrStaleBeacon)

	// near genesis nothing underflows
	early := time.Unix(info.GenesisTime+1, 0)
	require.NoError(t, CheckRecent(info, 0, early))
	require.NoError(t, CheckRecent(info, 1, early))

	_, err := RoundForTime(info, time.Unix(info.GenesisTime, 0))
	require.ErrorIs(t, err, ErrRoundBeforeGenesis)
	require.ErrorIs(t, CheckRecent(info, 1, time.Unix(info.GenesisTime, 0)), ErrRoundBeforeGenesis)
}
