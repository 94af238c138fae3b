package chain

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"

	json "github.com/nikkolasg/hexjson"
)

// Beacon holds the randomness of a round as well as the data to verify it.
type Beacon struct {
	// Round is the round number this beacon is tied to
	Round uint64
	// Randomness is the SHA-256 of Signature
	Randomness []byte
	// Signature is the threshold signature over the round's message
	Signature []byte
	// PreviousSignature is only set by chained schemes
	PreviousSignature []byte
}

type beaconJSON struct {
	Round             uint64 `json:"round"`
	RoundAlias        uint64 `json:"round_number,omitempty"`
	Randomness        []byte `json:"randomness"`
	Signature         []byte `json:"signature"`
	PreviousSignature []byte `json:"previous_signature,omitempty"`
}

// GetRound provides the round of the beacon.
func (b *Beacon) GetRound() uint64 {
	return b.Round
}

// GetRandomness returns the randomness as advertised by the producer.
func (b *Beacon) GetRandomness() []byte {
	return b.Randomness
}

// GetSignature provides the signature over this round's message.
func (b *Beacon) GetSignature() []byte {
	return b.Signature
}

// GetPreviousSignature provides the previous signature provided by the beacon,
// if nil, it's most likely using an unchained scheme.
func (b *Beacon) GetPreviousSignature() []byte {
	return b.PreviousSignature
}

// Equal indicates if two beacons are equal
func (b *Beacon) Equal(b2 *Beacon) bool {
	return b.Round == b2.Round &&
		bytes.Equal(b.Randomness, b2.Randomness) &&
		bytes.Equal(b.Signature, b2.Signature) &&
		bytes.Equal(b.PreviousSignature, b2.PreviousSignature)
}

func (b *Beacon) String() string {
	return fmt.Sprintf("{ round: %d, sig: %s, prevSig: %s }", b.Round, shortSigStr(b.Signature), shortSigStr(b.PreviousSignature))
}

func shortSigStr(sig []byte) string {
	if len(sig) == 0 {
		return "nil"
	}
	max := 3
	if len(sig) < max {
		max = len(sig)
	}
	return hex.EncodeToString(sig[0:max])
}

// MarshalJSON encodes the beacon with hex byte fields.
func (b *Beacon) MarshalJSON() ([]byte, error) {
	return json.Marshal(&beaconJSON{
		Round:             b.Round,
		Randomness:        b.Randomness,
		Signature:         b.Signature,
		PreviousSignature: b.PreviousSignature,
	})
}

// UnmarshalJSON decodes a beacon served by the public API.
func (b *Beacon) UnmarshalJSON(data []byte) error {
	var raw beaconJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	round := raw.Round
	if round == 0 {
		round = raw.RoundAlias
	}
	*b = Beacon{
		Round:             round,
		Randomness:        raw.Randomness,
		Signature:         raw.Signature,
		PreviousSignature: raw.PreviousSignature,
	}
	return nil
}

// BeaconFromJSON decodes a single beacon from r.
func BeaconFromJSON(r io.Reader) (*Beacon, error) {
	b := new(Beacon)
	if err := json.NewDecoder(r).Decode(b); err != nil {
		return nil, err
	}
	return b, nil
}
