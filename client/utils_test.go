package client_test

import (
	"testing"
	"time"

	"github.com/drand/kyber/util/random"
	"github.com/stretchr/testify/require"

	"github.com/drand/drand-verify/chain"
	"github.com/drand/drand-verify/crypto"
	"github.com/drand/drand-verify/drand"
)

func testScheme(t *testing.T) *crypto.Scheme {
	t.Helper()
	sch, err := crypto.SchemeFromName(crypto.DefaultSchemeID)
	require.NoError(t, err)
	return sch
}

// fakeChainInfo creates a chain info object for use in tests.
func fakeChainInfo(t *testing.T) *chain.Info {
	t.Helper()
	sch := testScheme(t)
	_, pub := sch.AuthScheme.NewKeyPair(random.New())
	buf, err := pub.MarshalBinary()
	require.NoError(t, err)

	return &chain.Info{
		Period:      time.Second,
		GenesisTime: time.Now().Unix(),
		PublicKey:   buf,
		Scheme:      sch.Name,
	}
}

// nextResult reads the next result from the channel and fails the test if it closes before a value is read.
func nextResult(t *testing.T, ch <-chan drand.Result) drand.Result {
	t.Helper()

	select {
	case r, ok := <-ch:
		if !ok {
			t.Fatal("closed before result")
		}
		return r
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for result.")
		return nil
	}
}

// compareResults asserts that two results are the same.
func compareResults(t *testing.T, expected, actual drand.Result) {
	t.Helper()

	require.NotNil(t, expected)
	require.NotNil(t, actual)
	require.Equal(t, expected.GetRound(), actual.GetRound())
	require.Equal(t, expected.GetRandomness(), actual.GetRandomness())
}
