package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	clock "github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drand/drand-verify/chain"
	"github.com/drand/drand-verify/common/log"
	"github.com/drand/drand-verify/crypto"
	"github.com/drand/drand-verify/drand"
	"github.com/drand/drand-verify/internal/metrics"
)

var tracer = otel.Tracer("github.com/drand/drand-verify/client")

// verifyingClient fetches beacons from its sources in order and only returns
// beacons that verify against the chain info.
type verifyingClient struct {
	sources []drand.Client
	// watcher is used for Watch when set, instead of the first source
	watcher drand.Client
	info    *chain.Info
	scheme  *crypto.Scheme
	clock   clock.Clock
	log     log.Logger
}

func newVerifyingClient(l log.Logger, sources []drand.Client, watcher drand.Client, info *chain.Info, sch *crypto.Scheme, clk clock.Clock) *verifyingClient {
	return &verifyingClient{
		sources: sources,
		watcher: watcher,
		info:    info,
		scheme:  sch,
		clock:   clk,
		log:     l.Named("verifyingClient"),
	}
}

func (v *verifyingClient) String() string {
	return fmt.Sprintf("VerifyingClient(%d sources)", len(v.sources))
}

// SetLog configures the client log output.
func (v *verifyingClient) SetLog(l log.Logger) {
	v.log = l
}

func sourceName(c drand.Client) string {
	if s, ok := c.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", c)
}

// Get returns the verified beacon of round, or of the latest round when round
// is 0. Sources are tried in order until one returns a beacon that verifies.
func (v *verifyingClient) Get(ctx context.Context, round uint64) (drand.Result, error) {
	ctx, span := tracer.Start(ctx, "client.Get", trace.WithAttributes(attribute.Int64("round", int64(round))))
	defer span.End()

	if round == 0 {
		// before genesis there is nothing to ask for
		if _, err := chain.RoundForTime(v.info, v.clock.Now()); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "no latest round")
			return nil, err
		}
	}
	if len(v.sources) == 0 {
		return nil, drand.ErrNotFound
	}

	var merr *multierror.Error
	for _, src := range v.sources {
		name := sourceName(src)
		r, err := v.fetch(ctx, src, round)
		if err != nil {
			metrics.ClientRequests.WithLabelValues(name, metrics.OutcomeUnavailable).Inc()
			v.log.Warnw("", "client", "source failed", "source", name, "round", round, "err", err)
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", name, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		if err := v.check(r, round); err != nil {
			outcome := metrics.OutcomeFailed
			if errors.Is(err, drand.ErrInvalidBeacon) {
				outcome = metrics.OutcomeInvalidBeacon
			}
			metrics.ClientRequests.WithLabelValues(name, outcome).Inc()
			v.log.Warnw("", "client", "rejected beacon", "source", name, "round", round, "got", r.GetRound(), "err", err)
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", name, err))
			continue
		}

		metrics.ClientRequests.WithLabelValues(name, metrics.OutcomeVerified).Inc()
		span.SetAttributes(attribute.Int64("verified_round", int64(r.GetRound())))
		return r, nil
	}

	err := merr.ErrorOrNil()
	span.RecordError(err)
	span.SetStatus(codes.Error, "no source returned a valid beacon")
	return nil, err
}

func (v *verifyingClient) fetch(ctx context.Context, src drand.Client, round uint64) (drand.Result, error) {
	name := sourceName(src)
	inFlight := metrics.ClientInFlight.WithLabelValues(name)
	inFlight.Inc()
	defer inFlight.Dec()

	start := v.clock.Now()
	r, err := src.Get(ctx, round)
	metrics.ClientLatencyVec.WithLabelValues(name).Observe(v.clock.Since(start).Seconds())
	if err == nil && r == nil {
		err = drand.ErrNotFound
	}
	return r, err
}

// check rejects a beacon that does not answer the request before spending a
// pairing on it.
func (v *verifyingClient) check(r drand.Result, requested uint64) error {
	if requested != 0 && r.GetRound() != requested {
		return fmt.Errorf("%w: round mismatch (malicious relay): %d != %d", drand.ErrInvalidBeacon, r.GetRound(), requested)
	}
	if requested == 0 {
		if err := chain.CheckRecent(v.info, r.GetRound(), v.clock.Now()); err != nil {
			if errors.Is(err, chain.ErrStaleBeacon) {
				return fmt.Errorf("%w: %w", drand.ErrInvalidBeacon, err)
			}
			return err
		}
	}
	return v.verify(r)
}

func (v *verifyingClient) verify(r drand.Result) error {
	if err := v.scheme.VerifyBeacon(r, v.info.PublicKey); err != nil {
		metrics.ClientVerifications.WithLabelValues(v.scheme.String(), metrics.OutcomeFailed).Inc()
		return fmt.Errorf("%w: round %d: %w", drand.ErrFailedVerification, r.GetRound(), err)
	}
	metrics.ClientVerifications.WithLabelValues(v.scheme.String(), metrics.OutcomeVerified).Inc()
	return nil
}

// Watch returns verified beacons as they are delivered by the watcher, or by
// the first source when no watcher is configured. Invalid beacons and rounds
// older than the last delivered one are dropped.
func (v *verifyingClient) Watch(ctx context.Context) <-chan drand.Result {
	src := v.watcher
	if src == nil && len(v.sources) > 0 {
		src = v.sources[0]
	}
	outCh := make(chan drand.Result, 1)
	if src == nil {
		close(outCh)
		return outCh
	}

	inCh := src.Watch(ctx)
	go func() {
		defer close(outCh)
		var last uint64
		for {
			var r drand.Result
			var ok bool
			select {
			case r, ok = <-inCh:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
			if r.GetRound() <= last {
				v.log.Debugw("", "client", "dropping already delivered round", "round", r.GetRound(), "last", last)
				continue
			}
			if err := v.verify(r); err != nil {
				v.log.Warnw("", "client", "dropping unverifiable watched beacon", "round", r.GetRound(), "err", err)
				continue
			}
			last = r.GetRound()
			scheduled := time.Unix(chain.TimeOfRound(v.info, r.GetRound()), 0)
			metrics.ClientWatchLatency.Set(v.clock.Since(scheduled).Seconds())
			select {
			case outCh <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return outCh
}

// Info returns the chain info the client verifies against.
func (v *verifyingClient) Info(_ context.Context) (*chain.Info, error) {
	return v.info, nil
}

// RoundAt returns the round being produced at t, or 0 before genesis.
func (v *verifyingClient) RoundAt(t time.Time) uint64 {
	r, err := chain.RoundForTime(v.info, t)
	if err != nil {
		return 0
	}
	return r
}

// Close closes every source and the watcher.
func (v *verifyingClient) Close() error {
	var merr *multierror.Error
	for _, src := range v.sources {
		if err := src.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	if v.watcher != nil {
		if err := v.watcher.Close(); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}
