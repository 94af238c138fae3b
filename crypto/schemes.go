package crypto

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/drand/kyber"
	bls "github.com/drand/kyber-bls12381"
	"github.com/drand/kyber/pairing"
	"github.com/drand/kyber/sign"
	signBls "github.com/drand/kyber/sign/bls" //nolint:staticcheck
)

// SchemeID identifies the signature convention of a chain, as advertised in
// its chain info.
type SchemeID string

const (
	// DefaultSchemeID is the chained scheme: keys on G1, signatures on G2 and
	// every round signs over the previous signature.
	DefaultSchemeID SchemeID = "pedersen-bls-chained"
	// UnchainedSchemeID only signs over the round number. Same groups as the
	// chained scheme.
	UnchainedSchemeID SchemeID = "pedersen-bls-unchained"
	// SigsOnG1ID swaps the groups (signatures on G1, keys on G2) and hashes to
	// G1 with the RFC 9380 domain separation tag.
	SigsOnG1ID SchemeID = "bls-unchained-g1-rfc9380"
)

// DST of the RFC 9380 hash to curve suites.
var (
	dstG1 = []byte("BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_NUL_")
	dstG2 = []byte("BLS_SIG_BLS12381G2_XMD:SHA-256_SSWU_RO_NUL_")
)

// Scheme holds everything needed to verify beacons of one scheme. Values are
// built once and never mutated, so they are safe for concurrent use.
type Scheme struct {
	// Name is the scheme ID this value implements.
	Name SchemeID
	// Pairing is the pairing suite the groups belong to.
	Pairing pairing.Suite
	// KeyGroup holds the distributed public key.
	KeyGroup kyber.Group
	// SigGroup holds the beacon signatures.
	SigGroup kyber.Group
	// AuthScheme hashes messages to SigGroup and checks the pairing equation.
	AuthScheme sign.Scheme
	// Chained is set when the previous signature is part of the signed message.
	Chained bool

	digest func(round uint64, previousSig []byte) []byte
}

// NewPedersenBLSChained builds the chained scheme.
func NewPedersenBLSChained() *Scheme {
	suite := bls.NewBLS12381Suite()
	return &Scheme{
		Name:       DefaultSchemeID,
		Pairing:    suite,
		KeyGroup:   suite.G1(),
		SigGroup:   suite.G2(),
		AuthScheme: signBls.NewSchemeOnG2(suite),
		Chained:    true,
		digest:     chainedDigest,
	}
}

// NewPedersenBLSUnchained builds the unchained scheme with signatures on G2.
func NewPedersenBLSUnchained() *Scheme {
	suite := bls.NewBLS12381Suite()
	return &Scheme{
		Name:       UnchainedSchemeID,
		Pairing:    suite,
		KeyGroup:   suite.G1(),
		SigGroup:   suite.G2(),
		AuthScheme: signBls.NewSchemeOnG2(suite),
		digest:     unchainedDigest,
	}
}

// NewUnchainedSchemeOnG1RFC9380 builds the unchained scheme with signatures on
// G1 and RFC 9380 compliant hashing to the curve.
func NewUnchainedSchemeOnG1RFC9380() *Scheme {
	suite := bls.NewBLS12381SuiteWithDST(dstG1, dstG2)
	return &Scheme{
		Name:       SigsOnG1ID,
		Pairing:    suite,
		KeyGroup:   suite.G2(),
		SigGroup:   suite.G1(),
		AuthScheme: signBls.NewSchemeOnG1(suite),
		digest:     unchainedDigest,
	}
}

var schemes = []*Scheme{
	NewPedersenBLSChained(),
	NewPedersenBLSUnchained(),
	NewUnchainedSchemeOnG1RFC9380(),
}

// SchemeFromName returns the scheme for id. It never falls back to a default.
func SchemeFromName(id SchemeID) (*Scheme, error) {
	for _, s := range schemes {
		if s.Name == id {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, string(id))
}

// ParseSchemeID validates a scheme name read from the wire.
func ParseSchemeID(name string) (SchemeID, error) {
	s, err := SchemeFromName(SchemeID(name))
	if err != nil {
		return "", err
	}
	return s.Name, nil
}

// ListSchemes returns the supported scheme IDs.
func ListSchemes() []string {
	out := make([]string, 0, len(schemes))
	for _, s := range schemes {
		out = append(out, string(s.Name))
	}
	return out
}

func (s *Scheme) String() string {
	return string(s.Name)
}

// DigestBeacon returns the message signed for b under this scheme:
// H(previousSig || round) when chained, H(round) otherwise.
func (s *Scheme) DigestBeacon(b Beacon) []byte {
	return s.digest(b.GetRound(), b.GetPreviousSignature())
}

func chainedDigest(round uint64, previousSig []byte) []byte {
	h := sha256.New()
	_, _ = h.Write(previousSig)
	_, _ = h.Write(RoundToBytes(round))
	return h.Sum(nil)
}

func unchainedDigest(round uint64, _ []byte) []byte {
	h := sha256.New()
	_, _ = h.Write(RoundToBytes(round))
	return h.Sum(nil)
}

// RoundToBytes serializes a round number as 8 big-endian bytes.
func RoundToBytes(r uint64) []byte {
	var buff [8]byte
	binary.BigEndian.PutUint64(buff[:], r)
	return buff[:]
}

// RandomnessFromSignature derives the round randomness from its signature.
func RandomnessFromSignature(sig []byte) []byte {
	out := sha256.Sum256(sig)
	return out[:]
}
