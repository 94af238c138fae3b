package grpc

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"time"

	proto "github.com/drand/drand/v2/protobuf/drand"
	grpcProm "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	grpcInsec "google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/drand/drand-verify/chain"
	"github.com/drand/drand-verify/common/log"
	"github.com/drand/drand-verify/drand"
	"github.com/drand/drand-verify/internal/wire"
)

const grpcDefaultTimeout = 5 * time.Second

type grpcClient struct {
	address   string
	chainHash []byte
	client    proto.PublicClient
	conn      *grpc.ClientConn
	l         log.Logger
}

// New creates a drand client backed by a GRPC connection.
func New(address string, insecure bool, chainHash []byte) (drand.Client, error) {
	var opts []grpc.DialOption
	if insecure {
		opts = append(opts, grpc.WithTransportCredentials(grpcInsec.NewCredentials()))
	} else {
		opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})))
	}
	opts = append(opts,
		grpc.WithUnaryInterceptor(grpcProm.UnaryClientInterceptor),
		grpc.WithStreamInterceptor(grpcProm.StreamClientInterceptor),
	)
	conn, err := grpc.NewClient(address, opts...)
	if err != nil {
		return nil, err
	}

	return &grpcClient{address, chainHash, proto.NewPublicClient(conn), conn, log.DefaultLogger()}, nil
}

// String returns the name of this client.
func (g *grpcClient) String() string {
	return fmt.Sprintf("GRPC(%q)", g.address)
}

func translateErr(err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%w: %w", drand.ErrNotFound, err)
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %w", drand.ErrNotResponding, err)
	}
	return err
}

// Get returns a the randomness at `round` or an error.
func (g *grpcClient) Get(ctx context.Context, round uint64) (drand.Result, error) {
	curr, err := g.client.PublicRand(ctx, &proto.PublicRandRequest{Round: round, Metadata: g.getMetadata()})
	if err != nil {
		return nil, translateErr(err)
	}
	if len(curr.GetSignature()) == 0 {
		return nil, errors.New("no received randomness - unexpected gPRC response")
	}
	if err := wire.CheckChainHash(curr.GetMetadata(), g.chainHash); err != nil {
		return nil, err
	}

	return wire.BeaconFromResponse(curr), nil
}

// Watch returns new randomness as it becomes available.
func (g *grpcClient) Watch(ctx context.Context) <-chan drand.Result {
	ch := make(chan drand.Result, 1)
	stream, err := g.client.PublicRandStream(ctx, &proto.PublicRandRequest{Round: 0, Metadata: g.getMetadata()})
	if err != nil {
		g.l.Warnw("", "grpc_client", "public rand stream", "err", err)
		close(ch)
		return ch
	}
	go g.translate(ctx, stream, ch)
	return ch
}

// Info returns information about the chain.
func (g *grpcClient) Info(ctx context.Context) (*chain.Info, error) {
	p, err := g.client.ChainInfo(ctx, &proto.ChainInfoRequest{Metadata: g.getMetadata()})
	if err != nil {
		return nil, translateErr(err)
	}
	if len(p.GetPublicKey()) == 0 {
		return nil, errors.New("no received group - unexpected gPRC response")
	}
	return wire.InfoFromPacket(p)
}

func (g *grpcClient) translate(ctx context.Context, stream proto.Public_PublicRandStreamClient, out chan<- drand.Result) {
	defer close(out)
	for {
		next, err := stream.Recv()
		if err != nil || stream.Context().Err() != nil {
			if stream.Context().Err() == nil && !errors.Is(err, io.EOF) {
				g.l.Warnw("", "grpc_client", "public rand stream", "err", err)
			}
			return
		}
		if err := wire.CheckChainHash(next.GetMetadata(), g.chainHash); err != nil {
			g.l.Warnw("", "grpc_client", "public rand stream", "err", err)
			continue
		}
		select {
		case out <- wire.BeaconFromResponse(next):
		case <-ctx.Done():
			return
		}
	}
}

func (g *grpcClient) getMetadata() *proto.Metadata {
	return &proto.Metadata{ChainHash: g.chainHash}
}

func (g *grpcClient) RoundAt(t time.Time) uint64 {
	ctx, cancel := context.WithTimeout(context.Background(), grpcDefaultTimeout)
	defer cancel()

	info, err := g.Info(ctx)
	if err != nil {
		return 0
	}
	r, err := chain.RoundForTime(info, t)
	if err != nil {
		return 0
	}
	return r
}

// SetLog configures the client log output
func (g *grpcClient) SetLog(l log.Logger) {
	g.l = l
}

// Close tears down the gRPC connection and all underlying connections.
func (g *grpcClient) Close() error {
	return g.conn.Close()
}
