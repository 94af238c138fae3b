package chain

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/BurntSushi/toml"
	json "github.com/nikkolasg/hexjson"

	"github.com/drand/drand-verify/crypto"
)

// DefaultBeaconID is the beacon ID of the original drand chain.
const DefaultBeaconID = "default"

// Info represents the public information that is necessary for a client to
// verify any beacon present in a randomness chain. It is never mutated once
// loaded.
type Info struct {
	PublicKey   []byte
	ID          string
	Period      time.Duration
	Scheme      crypto.SchemeID
	GenesisTime int64
	GenesisSeed []byte
	// ChainHash is the hash advertised alongside the info, if any.
	ChainHash []byte
}

// IsDefaultBeaconID reports whether id designates the default beacon.
func IsDefaultBeaconID(id string) bool {
	return id == "" || id == DefaultBeaconID
}

// Hash returns the canonical hash representing the chain information. A hash is
// consistent throughout the entirety of a chain, regardless of the network
// composition, the actual nodes, generating the randomness.
func (c *Info) Hash() []byte {
	h := sha256.New()
	_ = binary.Write(h, binary.BigEndian, uint32(c.Period/time.Second))
	_ = binary.Write(h, binary.BigEndian, c.GenesisTime)
	_, _ = h.Write(c.PublicKey)
	_, _ = h.Write(c.GenesisSeed)
	// chains created before multi-beacon support do not hash their ID
	if !IsDefaultBeaconID(c.ID) {
		_, _ = h.Write([]byte(c.ID))
	}
	return h.Sum(nil)
}

// HashString returns the hex encoded chain hash.
func (c *Info) HashString() string {
	return hex.EncodeToString(c.Hash())
}

// Validate checks the invariants verification relies on.
func (c *Info) Validate() error {
	if len(c.PublicKey) == 0 {
		return fmt.Errorf("%w: empty public key", ErrInvalidChainInfo)
	}
	if _, err := periodSeconds(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChainInfo, err)
	}
	if _, err := crypto.SchemeFromName(c.Scheme); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidChainInfo, err)
	}
	if len(c.ChainHash) > 0 && !bytes.Equal(c.ChainHash, c.Hash()) {
		return fmt.Errorf("%w: advertised hash %x does not match %x", ErrInvalidChainInfo, c.ChainHash, c.Hash())
	}
	return nil
}

// Equal indicates if two Chain Info objects are equivalent
func (c *Info) Equal(c2 *Info) bool {
	return c.GenesisTime == c2.GenesisTime &&
		c.Period == c2.Period &&
		c.Scheme == c2.Scheme &&
		c.ID == c2.ID &&
		bytes.Equal(c.PublicKey, c2.PublicKey) &&
		bytes.Equal(c.GenesisSeed, c2.GenesisSeed)
}

type infoMetadata struct {
	BeaconID      string `json:"beaconID"`
	BeaconIDAlias string `json:"beacon_id,omitempty"`
}

// infoJSON is the document served on /info. The alias fields accept the
// snake case names some relays emit.
type infoJSON struct {
	PublicKey      []byte       `json:"public_key"`
	Period         uint32       `json:"period"`
	PeriodAlias    uint32       `json:"period_seconds,omitempty"`
	GenesisTime    int64        `json:"genesis_time"`
	Hash           []byte       `json:"hash"`
	HashAlias      []byte       `json:"chain_hash,omitempty"`
	GroupHash      []byte       `json:"groupHash"`
	GroupHashAlias []byte       `json:"group_hash,omitempty"`
	SchemeID       string       `json:"schemeID"`
	SchemeIDAlias  string       `json:"scheme_id,omitempty"`
	Metadata       infoMetadata `json:"metadata"`
}

func firstBytes(a, b []byte) []byte {
	if len(a) > 0 {
		return a
	}
	return b
}

func firstString(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// MarshalJSON encodes the info in the wire format served by drand nodes.
func (c *Info) MarshalJSON() ([]byte, error) {
	return json.Marshal(&infoJSON{
		PublicKey:   c.PublicKey,
		Period:      uint32(c.Period / time.Second),
		GenesisTime: c.GenesisTime,
		Hash:        c.Hash(),
		GroupHash:   c.GenesisSeed,
		SchemeID:    string(c.Scheme),
		Metadata:    infoMetadata{BeaconID: c.ID},
	})
}

// UnmarshalJSON decodes the wire format. Unknown scheme IDs are rejected here
// so that verification never sees them.
func (c *Info) UnmarshalJSON(data []byte) error {
	var raw infoJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	scheme, err := crypto.ParseSchemeID(firstString(raw.SchemeID, raw.SchemeIDAlias))
	if err != nil {
		return err
	}
	period := raw.Period
	if period == 0 {
		period = raw.PeriodAlias
	}
	*c = Info{
		PublicKey:   raw.PublicKey,
		ID:          firstString(raw.Metadata.BeaconID, raw.Metadata.BeaconIDAlias),
		Period:      time.Duration(period) * time.Second,
		Scheme:      scheme,
		GenesisTime: raw.GenesisTime,
		GenesisSeed: firstBytes(raw.GroupHash, raw.GroupHashAlias),
		ChainHash:   firstBytes(raw.Hash, raw.HashAlias),
	}
	return nil
}

// InfoFromJSON decodes and validates a chain info document.
func InfoFromJSON(r io.Reader) (*Info, error) {
	info := new(Info)
	if err := json.NewDecoder(r).Decode(info); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidChainInfo, err)
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return info, nil
}

// ToJSON writes the info as JSON to w.
func (c *Info) ToJSON(w io.Writer) error {
	buff, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(buff)
	return err
}

// groupTOML is the subset of a drand group file needed to rebuild the chain
// info. Other keys of the file are ignored.
type groupTOML struct {
	Period      string
	GenesisTime int64
	GenesisSeed string
	SchemeID    string
	ID          string
	PublicKey   *distPublicTOML
}

type distPublicTOML struct {
	Coefficients []string
}

// InfoFromTOML reads the chain info out of a drand group file.
func InfoFromTOML(path string) (*Info, error) {
	gt := new(groupTOML)
	if _, err := toml.DecodeFile(path, gt); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidChainInfo, err)
	}
	if gt.PublicKey == nil || len(gt.PublicKey.Coefficients) == 0 {
		return nil, fmt.Errorf("%w: group file has no distributed public key", ErrInvalidChainInfo)
	}
	pub, err := hex.DecodeString(gt.PublicKey.Coefficients[0])
	if err != nil {
		return nil, fmt.Errorf("%w: public key: %w", ErrInvalidChainInfo, err)
	}
	seed, err := hex.DecodeString(gt.GenesisSeed)
	if err != nil {
		return nil, fmt.Errorf("%w: genesis seed: %w", ErrInvalidChainInfo, err)
	}
	period, err := time.ParseDuration(gt.Period)
	if err != nil {
		return nil, fmt.Errorf("%w: period: %w", ErrInvalidChainInfo, err)
	}
	schemeName := gt.SchemeID
	if schemeName == "" {
		// group files written before scheme IDs existed are chained
		schemeName = string(crypto.DefaultSchemeID)
	}
	scheme, err := crypto.ParseSchemeID(schemeName)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidChainInfo, err)
	}

	info := &Info{
		PublicKey:   pub,
		ID:          gt.ID,
		Period:      period,
		Scheme:      scheme,
		GenesisTime: gt.GenesisTime,
		GenesisSeed: seed,
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return info, nil
}
