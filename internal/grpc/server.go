package grpc

import (
	"context"
	"errors"

	proto "github.com/drand/drand/v2/protobuf/drand"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/drand/drand-verify/chain"
	"github.com/drand/drand-verify/common/log"
	"github.com/drand/drand-verify/drand"
	"github.com/drand/drand-verify/internal/wire"
)

// NewPublicServer returns a gRPC server answering the drand Public service
// from src. The server is not started.
func NewPublicServer(l log.Logger, src drand.Client, opts ...grpc.ServerOption) *grpc.Server {
	srv := grpc.NewServer(opts...)
	proto.RegisterPublicServer(srv, &publicService{src: src, l: l.Named("grpc_server")})
	return srv
}

type publicService struct {
	proto.UnimplementedPublicServer

	src drand.Client
	l   log.Logger
}

// chainInfo fetches the served chain and checks the requested one matches it.
func (p *publicService) chainInfo(ctx context.Context, m *proto.Metadata) (*chain.Info, error) {
	info, err := p.src.Info(ctx)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	if err := wire.CheckChainHash(m, info.Hash()); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return info, nil
}

// PublicRand serves the beacon of the requested round, or the latest for 0.
func (p *publicService) PublicRand(ctx context.Context, req *proto.PublicRandRequest) (*proto.PublicRandResponse, error) {
	info, err := p.chainInfo(ctx, req.GetMetadata())
	if err != nil {
		return nil, err
	}

	r, err := p.src.Get(ctx, req.GetRound())
	switch {
	case errors.Is(err, drand.ErrNotFound):
		return nil, status.Errorf(codes.NotFound, "round %d not found", req.GetRound())
	case err != nil:
		p.l.Warnw("", "grpc_server", "failed to serve beacon", "round", req.GetRound(), "err", err)
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return wire.ResponseFromResult(r, info.Hash()), nil
}

// PublicRandStream streams every new beacon until the client goes away.
func (p *publicService) PublicRandStream(req *proto.PublicRandRequest, stream proto.Public_PublicRandStreamServer) error {
	ctx := stream.Context()
	info, err := p.chainInfo(ctx, req.GetMetadata())
	if err != nil {
		return err
	}

	hash := info.Hash()
	for r := range p.src.Watch(ctx) {
		if err := stream.Send(wire.ResponseFromResult(r, hash)); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// ChainInfo serves the chain parameters.
func (p *publicService) ChainInfo(ctx context.Context, req *proto.ChainInfoRequest) (*proto.ChainInfoPacket, error) {
	info, err := p.chainInfo(ctx, req.GetMetadata())
	if err != nil {
		return nil, err
	}
	return wire.PacketFromInfo(info), nil
}
