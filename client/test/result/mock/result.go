package mock

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"testing"
	"time"

	"github.com/drand/kyber/util/random"

	"github.com/drand/drand-verify/chain"
	"github.com/drand/drand-verify/crypto"
)

// NewMockResult creates a mock result for testing. It does not verify.
func NewMockResult(round uint64) Result {
	sig := make([]byte, 8)
	binary.LittleEndian.PutUint64(sig, round)
	return Result{
		Rnd:  round,
		Sig:  sig,
		Rand: crypto.RandomnessFromSignature(sig),
	}
}

// Result is a mock result that can be used for testing.
type Result struct {
	Rnd  uint64
	Rand []byte
	Sig  []byte
	PSig []byte
}

// GetRandomness is a hash of the signature.
func (r *Result) GetRandomness() []byte {
	return r.Rand
}

// GetSignature is the signature of the randomness for this round.
func (r *Result) GetSignature() []byte {
	return r.Sig
}

// GetPreviousSignature is the signature of the previous round.
func (r *Result) GetPreviousSignature() []byte {
	return r.PSig
}

// GetRound is the round number for this random data.
func (r *Result) GetRound() uint64 {
	return r.Rnd
}

// AssertValid checks that this result is a NewMockResult.
func (r *Result) AssertValid(t *testing.T) {
	t.Helper()
	sigTarget := make([]byte, 8)
	binary.LittleEndian.PutUint64(sigTarget, r.Rnd)
	if !bytes.Equal(r.Sig, sigTarget) {
		t.Fatalf("expected sig: %x, got %x", sigTarget, r.Sig)
	}
	randTarget := crypto.RandomnessFromSignature(sigTarget)
	if !bytes.Equal(r.Rand, randTarget) {
		t.Fatalf("expected rand: %x, got %x", randTarget, r.Rand)
	}
}

// VerifiableResults creates rounds 1 to count of a fresh chain under sch,
// signed with a single locally generated key. The chain starts count periods
// of one second before now, so the last result is the latest round.
func VerifiableResults(count int, sch *crypto.Scheme) (*chain.Info, []Result) {
	return VerifiableResultsAt(count, sch, time.Now().Unix()-int64(count), time.Second)
}

// VerifiableResultsAt is VerifiableResults with an explicit genesis and period.
func VerifiableResultsAt(count int, sch *crypto.Scheme, genesis int64, period time.Duration) (*chain.Info, []Result) {
	secret, public := sch.AuthScheme.NewKeyPair(random.New())
	pub, err := public.MarshalBinary()
	if err != nil {
		panic(err)
	}
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		panic(err)
	}

	previous := seed
	out := make([]Result, count)
	for i := range out {
		r := Result{Rnd: uint64(i + 1)}
		if sch.Chained {
			r.PSig = previous
		}
		sig, err := sch.AuthScheme.Sign(secret, sch.DigestBeacon(&r))
		if err != nil {
			panic(err)
		}
		r.Sig = sig
		r.Rand = crypto.RandomnessFromSignature(sig)
		out[i] = r
		previous = sig
	}

	info := chain.Info{
		PublicKey:   pub,
		ID:          chain.DefaultBeaconID,
		Period:      period,
		GenesisTime: genesis,
		GenesisSeed: seed,
		Scheme:      sch.Name,
	}
	return &info, out
}
