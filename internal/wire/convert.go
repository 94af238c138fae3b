// Package wire converts between the protobuf messages of the drand public
// API and the chain types verified by this module.
package wire

import (
	"bytes"
	"fmt"
	"time"

	proto "github.com/drand/drand/v2/protobuf/drand"
	pb "google.golang.org/protobuf/proto"

	"github.com/drand/drand-verify/chain"
	"github.com/drand/drand-verify/crypto"
	"github.com/drand/drand-verify/drand"
)

// InfoFromPacket converts and validates a chain info packet.
func InfoFromPacket(p *proto.ChainInfoPacket) (*chain.Info, error) {
	scheme, err := crypto.ParseSchemeID(p.GetSchemeID())
	if err != nil {
		return nil, err
	}
	info := &chain.Info{
		PublicKey:   p.GetPublicKey(),
		ID:          p.GetMetadata().GetBeaconID(),
		Period:      time.Duration(p.GetPeriod()) * time.Second,
		Scheme:      scheme,
		GenesisTime: p.GetGenesisTime(),
		GenesisSeed: p.GetGroupHash(),
		ChainHash:   p.GetHash(),
	}
	if err := info.Validate(); err != nil {
		return nil, err
	}
	return info, nil
}

// PacketFromInfo converts a chain info into its packet.
func PacketFromInfo(info *chain.Info) *proto.ChainInfoPacket {
	return &proto.ChainInfoPacket{
		PublicKey:   info.PublicKey,
		Period:      uint32(info.Period / time.Second),
		GenesisTime: info.GenesisTime,
		Hash:        info.Hash(),
		GroupHash:   info.GenesisSeed,
		SchemeID:    string(info.Scheme),
		Metadata:    &proto.Metadata{BeaconID: info.ID, ChainHash: info.Hash()},
	}
}

// BeaconFromResponse converts a response into a beacon. The randomness is
// derived from the signature when the peer did not send it.
func BeaconFromResponse(r *proto.PublicRandResponse) *chain.Beacon {
	rand := r.GetRandomness()
	if len(rand) == 0 {
		rand = crypto.RandomnessFromSignature(r.GetSignature())
	}
	return &chain.Beacon{
		Round:             r.GetRound(),
		Randomness:        rand,
		Signature:         r.GetSignature(),
		PreviousSignature: r.GetPreviousSignature(),
	}
}

// ResponseFromResult converts any result into a response.
func ResponseFromResult(r drand.Result, chainHash []byte) *proto.PublicRandResponse {
	return &proto.PublicRandResponse{
		Round:             r.GetRound(),
		Signature:         r.GetSignature(),
		PreviousSignature: r.GetPreviousSignature(),
		Randomness:        r.GetRandomness(),
		Metadata:          &proto.Metadata{ChainHash: chainHash},
	}
}

// MarshalResult encodes r as the gossip payload of a drand relay.
func MarshalResult(r drand.Result, chainHash []byte) ([]byte, error) {
	return pb.Marshal(ResponseFromResult(r, chainHash))
}

// UnmarshalResponse decodes a gossip payload.
func UnmarshalResponse(data []byte) (*proto.PublicRandResponse, error) {
	r := new(proto.PublicRandResponse)
	if err := pb.Unmarshal(data, r); err != nil {
		return nil, err
	}
	return r, nil
}

// CheckChainHash rejects metadata that names another chain. Metadata without
// a chain hash is accepted.
func CheckChainHash(m *proto.Metadata, chainHash []byte) error {
	got := m.GetChainHash()
	if len(got) == 0 || len(chainHash) == 0 {
		return nil
	}
	if !bytes.Equal(got, chainHash) {
		return fmt.Errorf("%w: %x != %x", drand.ErrInvalidChainHash, got, chainHash)
	}
	return nil
}
