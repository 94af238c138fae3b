package crypto_test

import (
	"encoding/hex"
	"testing"

	"github.com/drand/kyber/util/random"
	"github.com/stretchr/testify/require"

	"github.com/drand/drand-verify/chain"
	"github.com/drand/drand-verify/crypto"
)

func dehex(t testing.TB, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

const (
	chainedPub  = "88a8227b75dba145599d894d33eebde3b36fef900d456ae2cc4388867adb4769c40359f783750a41b4d17e40f578bfdb"
	chainedSig  = "88ccd9a91946bc0bbef2c6c60a09bbf4a247b1d2059522449aa1a35758feddfad85efe818bbde3e1e4ab0c852d96e65f0b1f97f239bf3fc918860ea846cbb500fcf7c9d0dd3d851320374460b5fc596b8cfd629f4c07c7507c259bf9beca850a"
	chainedPrev = "a2237ee39a1a6569cb8e02c6e979c07efe1f30be0ac501436bd325015f1cd6129dc56fd60efcdf9158d74ebfa34bfcbd17803dbca6d2ae8bc3a968e4dc582f8710c69de80b2e649663fef5742d22fff7d1619b75d5f222e8c9b8840bc2044bce"
	chainedRand = "cd435675735e459fb4d9c68a9d9f7b719e59e0a9f5f86fe6bd86b730d01fba42"

	unchainedPub  = "8d91ae0f4e3cd277cfc46aba26680232b0d5bb4444602cdb23442d62e17f43cdffb1104909e535430c10a6a1ce680a65"
	unchainedSig  = "94da96b5b985a22a3d99fa3051a42feb4da9218763f6c836fca3770292dbf4b01f5d378859a113960548d167eaa144250a2c8e34c51c5270152ac2bc7a52632236f746545e0fae52f69068c017745204240d19dae2b4d038cef3c6047fcd6539"
	unchainedRand = "7731783ab8118d7484d0e8e237f3023a4c7ef4532f35016f2e56e89a7570c796"

	g1Pub  = "83cf0f2896adee7eb8b5f01fcad3912212c437e0073e911fb90022d3e760183c8c4b450b6a0a6c3ac6a5776a2d1064510d1fec758c921cc22b0e17e63aaf4bcb5ed66304de9cf809bd274ca73bab4af5a6e9c76a4bc09e76eae8991ef5ece45a"
	g1Sig  = "b44679b9a59af2ec876b1a6b1ad52ea9b1615fc3982b19576350f93447cb1125e342b73a8dd2bacbe47e4b6b63ed5e39"
	g1Rand = "fe290beca10872ef2fb164d2aa4442de4566183ec51c56ff3cd603d930e54fdd"

	mainnetPub = "868f005eb8e6e4ca0a47c8a77ceaa5309a47978a7c71bc5cce96366b5d7a569937c529eeda66c7293784a9402801af31"
)

// compressed encodings of the point at infinity
var (
	g1Identity = append([]byte{0xc0}, make([]byte, 47)...)
	g2Identity = append([]byte{0xc0}, make([]byte, 95)...)
)

func chainedBeacon(t testing.TB) *chain.Beacon {
	return &chain.Beacon{
		Round:             397089,
		Randomness:        dehex(t, chainedRand),
		Signature:         dehex(t, chainedSig),
		PreviousSignature: dehex(t, chainedPrev),
	}
}

func unchainedBeacon(t testing.TB) *chain.Beacon {
	return &chain.Beacon{
		Round:      397092,
		Randomness: dehex(t, unchainedRand),
		Signature:  dehex(t, unchainedSig),
	}
}

func g1Beacon(t testing.TB) *chain.Beacon {
	return &chain.Beacon{
		Round:      1000,
		Randomness: dehex(t, g1Rand),
		Signature:  dehex(t, g1Sig),
	}
}

func TestVerifyNetworkBeacons(t *testing.T) {
	tests := []struct {
		name   string
		scheme crypto.SchemeID
		pub    string
		beacon *chain.Beacon
	}{
		{"chained", crypto.DefaultSchemeID, chainedPub, chainedBeacon(t)},
		{"unchained", crypto.UnchainedSchemeID, unchainedPub, unchainedBeacon(t)},
		{"g1 rfc9380", crypto.SigsOnG1ID, g1Pub, g1Beacon(t)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, crypto.VerifyBeacon(tt.scheme, dehex(t, tt.pub), tt.beacon))
		})
	}
}

func TestVerifyUnchainedIgnoresPreviousSignature(t *testing.T) {
	b := unchainedBeacon(t)
	b.PreviousSignature = b.Signature
	require.NoError(t, crypto.VerifyBeacon(crypto.UnchainedSchemeID, dehex(t, unchainedPub), b))
}

func TestVerifyWrongRound(t *testing.T) {
	b := chainedBeacon(t)
	b.Round = 1
	err := crypto.VerifyBeacon(crypto.DefaultSchemeID, dehex(t, chainedPub), b)
	require.ErrorIs(t, err, crypto.ErrSignatureFailedVerification)

	b = g1Beacon(t)
	b.Round = 1
	err = crypto.VerifyBeacon(crypto.SigsOnG1ID, dehex(t, g1Pub), b)
	require.ErrorIs(t, err, crypto.ErrSignatureFailedVerification)
}

func TestVerifyInvalidRandomness(t *testing.T) {
	b := chainedBeacon(t)
	b.Randomness[0] ^= 0x70
	err := crypto.VerifyBeacon(crypto.DefaultSchemeID, dehex(t, chainedPub), b)
	require.Equal(t, crypto.ErrInvalidRandomness, err)

	b = unchainedBeacon(t)
	b.Randomness[0] ^= 0xd0
	err = crypto.VerifyBeacon(crypto.UnchainedSchemeID, dehex(t, unchainedPub), b)
	require.Equal(t, crypto.ErrInvalidRandomness, err)
}

func TestVerifyRandomnessCheckedFirst(t *testing.T) {
	// a wrong key and a missing previous signature are not reached
	b := chainedBeacon(t)
	b.PreviousSignature = nil
	b.Randomness = make([]byte, 32)
	err := crypto.VerifyBeacon(crypto.DefaultSchemeID, nil, b)
	require.Equal(t, crypto.ErrInvalidRandomness, err)
}

func TestVerifyEmptySignature(t *testing.T) {
	b := &chain.Beacon{
		Round:      1,
		Randomness: crypto.RandomnessFromSignature(nil),
	}
	err := crypto.VerifyBeacon(crypto.UnchainedSchemeID, dehex(t, unchainedPub), b)
	require.Equal(t, crypto.ErrInvalidSignatureLength, err)
}

func TestVerifyChainedNeedsPreviousSignature(t *testing.T) {
	b := chainedBeacon(t)
	b.PreviousSignature = nil
	err := crypto.VerifyBeacon(crypto.DefaultSchemeID, dehex(t, chainedPub), b)
	require.Equal(t, crypto.ErrChainedBeaconNeedsPreviousSignature, err)
}

func TestVerifyInvalidPublicKey(t *testing.T) {
	tests := []struct {
		name   string
		scheme crypto.SchemeID
		pub    []byte
		beacon *chain.Beacon
	}{
		{"chained corrupted", crypto.DefaultSchemeID, dehex(t, "78a8227b75dba145599d894d33eebde3b36fef900d456ae2cc4388867adb4769c40359f783750a41b4d17e40f578bfdb"), chainedBeacon(t)},
		{"chained empty", crypto.DefaultSchemeID, nil, chainedBeacon(t)},
		{"chained identity", crypto.DefaultSchemeID, g1Identity, chainedBeacon(t)},
		{"unchained empty", crypto.UnchainedSchemeID, []byte{}, unchainedBeacon(t)},
		{"unchained identity", crypto.UnchainedSchemeID, g1Identity, unchainedBeacon(t)},
		{"unchained truncated", crypto.UnchainedSchemeID, dehex(t, unchainedPub)[:47], unchainedBeacon(t)},
		{"g1 empty", crypto.SigsOnG1ID, nil, g1Beacon(t)},
		{"g1 identity", crypto.SigsOnG1ID, g2Identity, g1Beacon(t)},
		{"g1 with a G1 key", crypto.SigsOnG1ID, dehex(t, unchainedPub), g1Beacon(t)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := crypto.VerifyBeacon(tt.scheme, tt.pub, tt.beacon)
			require.Equal(t, crypto.ErrInvalidPublicKey, err)
		})
	}
}

// compressedKey returns a compressed point encoding of the given length with
// a small x coordinate, well formed but not a valid subgroup point.
func compressedKey(size int, x byte) []byte {
	k := make([]byte, size)
	k[0] = 0x80
	k[size-1] = x
	return k
}

func TestVerifyOffCurvePublicKey(t *testing.T) {
	tests := []struct {
		name   string
		scheme crypto.SchemeID
		size   int
		beacon *chain.Beacon
	}{
		{"chained", crypto.DefaultSchemeID, 48, chainedBeacon(t)},
		{"unchained", crypto.UnchainedSchemeID, 48, unchainedBeacon(t)},
		{"g1", crypto.SigsOnG1ID, 96, g1Beacon(t)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			for x := byte(1); x < 20; x++ {
				err := crypto.VerifyBeacon(tt.scheme, compressedKey(tt.size, x), tt.beacon)
				require.Equal(t, crypto.ErrInvalidPublicKey, err, "x=%d", x)
			}
		})
	}
}

func TestVerifyKeyOfAnotherChain(t *testing.T) {
	// a well formed key that did not sign the beacon
	err := crypto.VerifyBeacon(crypto.UnchainedSchemeID, dehex(t, mainnetPub), unchainedBeacon(t))
	require.Equal(t, crypto.ErrSignatureFailedVerification, err)
}

func TestVerifyMalformedSignature(t *testing.T) {
	b := unchainedBeacon(t)
	// a G1 sized signature cannot decode on G2
	b.Signature = dehex(t, g1Sig)
	b.Randomness = crypto.RandomnessFromSignature(b.Signature)
	err := crypto.VerifyBeacon(crypto.UnchainedSchemeID, dehex(t, unchainedPub), b)
	require.Equal(t, crypto.ErrSignatureFailedVerification, err)
}

func TestVerifySignatureBitFlips(t *testing.T) {
	tests := []struct {
		name   string
		scheme crypto.SchemeID
		pub    string
		beacon func(testing.TB) *chain.Beacon
	}{
		{"chained", crypto.DefaultSchemeID, chainedPub, chainedBeacon},
		{"unchained", crypto.UnchainedSchemeID, unchainedPub, unchainedBeacon},
		{"g1 rfc9380", crypto.SigsOnG1ID, g1Pub, g1Beacon},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			pub := dehex(t, tt.pub)
			sigLen := len(tt.beacon(t).Signature)
			bits := []int{0, 1, 2, 3, 7, 8, sigLen*8 - 1}
			if !testing.Short() {
				for i := 11; i < sigLen*8; i += 13 {
					bits = append(bits, i)
				}
			}
			for _, bit := range bits {
				b := tt.beacon(t)
				b.Signature[bit/8] ^= 1 << (7 - bit%8)
				b.Randomness = crypto.RandomnessFromSignature(b.Signature)
				err := crypto.VerifyBeacon(tt.scheme, pub, b)
				require.Equal(t, crypto.ErrSignatureFailedVerification, err, "bit %d", bit)
			}
		})
	}
}

func TestVerifyLocallySignedBeacons(t *testing.T) {
	for _, id := range []crypto.SchemeID{crypto.DefaultSchemeID, crypto.UnchainedSchemeID, crypto.SigsOnG1ID} {
		id := id
		t.Run(string(id), func(t *testing.T) {
			sch, err := crypto.SchemeFromName(id)
			require.NoError(t, err)
			priv, pub := sch.AuthScheme.NewKeyPair(random.New())
			pubBuf, err := pub.MarshalBinary()
			require.NoError(t, err)

			prev := []byte("genesis seed")
			for round := uint64(1); round <= 3; round++ {
				b := &chain.Beacon{Round: round}
				if sch.Chained {
					b.PreviousSignature = prev
				}
				sig, err := sch.AuthScheme.Sign(priv, sch.DigestBeacon(b))
				require.NoError(t, err)
				b.Signature = sig
				b.Randomness = crypto.RandomnessFromSignature(sig)
				require.NoError(t, sch.VerifyBeacon(b, pubBuf))

				// replaying the signature on the next round must fail
				replay := *b
				replay.Round++
				require.Equal(t, crypto.ErrSignatureFailedVerification, sch.VerifyBeacon(&replay, pubBuf))
				prev = sig
			}
		})
	}
}

func TestVerifyNonMatchingSignatureOnMainnet(t *testing.T) {
	// a valid G2 point that was never produced by the mainnet key
	sig := dehex(t, chainedSig)
	b := &chain.Beacon{
		Round:             2,
		Signature:         sig,
		PreviousSignature: dehex(t, chainedPrev),
		Randomness:        crypto.RandomnessFromSignature(sig),
	}
	err := crypto.VerifyBeacon(crypto.DefaultSchemeID, dehex(t, mainnetPub), b)
	require.Equal(t, crypto.ErrSignatureFailedVerification, err)
}

func TestUnknownScheme(t *testing.T) {
	err := crypto.VerifyBeacon("bls-unchained-on-g1", dehex(t, g1Pub), g1Beacon(t))
	require.ErrorIs(t, err, crypto.ErrUnknownScheme)

	_, err = crypto.ParseSchemeID("")
	require.ErrorIs(t, err, crypto.ErrUnknownScheme)

	id, err := crypto.ParseSchemeID("pedersen-bls-unchained")
	require.NoError(t, err)
	require.Equal(t, crypto.UnchainedSchemeID, id)
	require.ElementsMatch(t, []string{
		"pedersen-bls-chained", "pedersen-bls-unchained", "bls-unchained-g1-rfc9380",
	}, crypto.ListSchemes())
}

func TestDigestBeacon(t *testing.T) {
	sch, err := crypto.SchemeFromName(crypto.UnchainedSchemeID)
	require.NoError(t, err)
	b := &chain.Beacon{Round: 1, PreviousSignature: []byte{1, 2, 3}}
	withoutPrev := &chain.Beacon{Round: 1}
	require.Equal(t, sch.DigestBeacon(withoutPrev), sch.DigestBeacon(b))

	chained, err := crypto.SchemeFromName(crypto.DefaultSchemeID)
	require.NoError(t, err)
	require.NotEqual(t, chained.DigestBeacon(withoutPrev), chained.DigestBeacon(b))
	require.Equal(t, []byte{0, 0, 0, 0, 0, 0, 1, 0}, crypto.RoundToBytes(256))
}
