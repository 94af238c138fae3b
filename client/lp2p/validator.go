package lp2p

import (
	"bytes"
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru"
	clock "github.com/jonboulle/clockwork"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/drand/drand-verify/chain"
	"github.com/drand/drand-verify/common/log"
	"github.com/drand/drand-verify/crypto"
	"github.com/drand/drand-verify/internal/metrics"
	"github.com/drand/drand-verify/internal/wire"
)

// Validation results as reported to metrics.
const (
	validationAccept = "accept"
	validationIgnore = "ignore"
	validationReject = "reject"
)

func report(r pubsub.ValidationResult) pubsub.ValidationResult {
	switch r {
	case pubsub.ValidationAccept:
		metrics.GossipValidations.WithLabelValues(validationAccept).Inc()
	case pubsub.ValidationIgnore:
		metrics.GossipValidations.WithLabelValues(validationIgnore).Inc()
	default:
		metrics.GossipValidations.WithLabelValues(validationReject).Inc()
	}
	return r
}

// randomnessValidator returns the topic validator. seen maps rounds that were
// already accepted to their signature.
func randomnessValidator(info *chain.Info, seen *lru.Cache, l log.Logger, clk clock.Clock) pubsub.ValidatorEx {
	var scheme *crypto.Scheme
	var chainHash []byte
	if info != nil {
		scheme, _ = crypto.SchemeFromName(info.Scheme)
		chainHash = info.Hash()
	}
	return func(_ context.Context, p peer.ID, m *pubsub.Message) pubsub.ValidationResult {
		rand, err := wire.UnmarshalResponse(m.Data)
		if err != nil {
			l.Warnw("", "gossip validator", "Not validating received randomness due to decoding error", "err", err)
			return report(pubsub.ValidationReject)
		}

		l.Debugw("", "gossip validator", "Received new round", "round", rand.GetRound(), "fromPeerID", p.String())

		if info == nil || scheme == nil {
			l.Warnw("", "gossip validator", "Not validating received randomness due to lack of trust root.")
			return report(pubsub.ValidationAccept)
		}

		if err := wire.CheckChainHash(rand.GetMetadata(), chainHash); err != nil {
			l.Warnw("", "gossip validator", "reject", "err", err)
			return report(pubsub.ValidationReject)
		}

		// Unwilling to relay beacons in the future.
		timeNow := clk.Now()
		timeOfRound := chain.TimeOfRound(info, rand.GetRound())
		if time.Unix(timeOfRound, 0).After(timeNow) {
			l.Warnw("",
				"gossip validator", "Not validating received randomness due to time of round",
				"timeOfRound", timeOfRound,
				"time.Now", timeNow.Unix(),
				"info.Period", info.Period,
				"info.Genesis", info.GenesisTime,
				"round", rand.GetRound(),
			)
			return report(pubsub.ValidationReject)
		}

		if prev, ok := seen.Get(rand.GetRound()); ok {
			if sig, _ := prev.([]byte); bytes.Equal(sig, rand.GetSignature()) {
				return report(pubsub.ValidationIgnore)
			}
			// signatures are unique per round, a different one cannot verify
			l.Warnw("", "gossip validator", "reject", "round", rand.GetRound(), "err", "conflicting signature")
			return report(pubsub.ValidationReject)
		}

		b := wire.BeaconFromResponse(rand)
		if err := scheme.VerifyBeacon(b, info.PublicKey); err != nil {
			l.Warnw("", "gossip validator", "reject", "round", rand.GetRound(), "err", err)
			return report(pubsub.ValidationReject)
		}
		seen.Add(rand.GetRound(), rand.GetSignature())
		return report(pubsub.ValidationAccept)
	}
}
