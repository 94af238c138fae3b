package crypto

import (
	"bytes"

	"github.com/drand/kyber"
	bls "github.com/drand/kyber-bls12381"
)

// Beacon is the read-only view of a beacon the verifier needs.
type Beacon interface {
	GetRound() uint64
	GetRandomness() []byte
	GetSignature() []byte
	GetPreviousSignature() []byte
}

// VerifyBeacon checks b against the distributed public key of a chain using
// scheme id. It returns nil or exactly one of the verification errors of this
// package.
func VerifyBeacon(id SchemeID, publicKey []byte, b Beacon) error {
	sch, err := SchemeFromName(id)
	if err != nil {
		return err
	}
	return sch.VerifyBeacon(b, publicKey)
}

// VerifyBeacon checks b against publicKey. Cheap checks run first so that
// malformed beacons never reach the pairing computation.
func (s *Scheme) VerifyBeacon(b Beacon, publicKey []byte) error {
	sig := b.GetSignature()
	if !bytes.Equal(RandomnessFromSignature(sig), b.GetRandomness()) {
		return ErrInvalidRandomness
	}
	if len(sig) == 0 {
		return ErrInvalidSignatureLength
	}
	if s.Chained && len(b.GetPreviousSignature()) == 0 {
		return ErrChainedBeaconNeedsPreviousSignature
	}

	// a malformed point is reported like a bad signature
	if err := s.SigGroup.Point().UnmarshalBinary(sig); err != nil {
		return ErrSignatureFailedVerification
	}
	pub, err := s.PublicKey(publicKey)
	if err != nil {
		return err
	}

	if err := s.AuthScheme.Verify(pub, s.DigestBeacon(b), sig); err != nil {
		return ErrSignatureFailedVerification
	}
	return nil
}

// PublicKey decodes buff as a point of the key group. The point must be in the
// prime order subgroup and must not be the identity, which would validate any
// signature.
func (s *Scheme) PublicKey(buff []byte) (kyber.Point, error) {
	p := s.KeyGroup.Point()
	if err := p.UnmarshalBinary(buff); err != nil {
		return nil, ErrInvalidPublicKey
	}
	if sg, ok := p.(bls.GroupChecker); ok && !sg.IsInCorrectGroup() {
		return nil, ErrInvalidPublicKey
	}
	if p.Equal(s.KeyGroup.Point().Null()) {
		return nil, ErrInvalidPublicKey
	}
	return p, nil
}
