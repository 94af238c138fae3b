package mock

import (
	"context"
	"net"

	grpcprometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"google.golang.org/grpc"

	"github.com/drand/drand-verify/common/log"
	"github.com/drand/drand-verify/drand"
	dgrpc "github.com/drand/drand-verify/internal/grpc"
)

// Listener is a running gRPC endpoint.
type Listener interface {
	Start()
	Stop(ctx context.Context)
	Addr() string
}

// NewGRPCListener creates a listener serving the Public API over GRPC from s.
func NewGRPCListener(bindingAddr string, s drand.Client, opts ...grpc.ServerOption) (Listener, error) {
	lis, err := net.Listen("tcp", bindingAddr)
	if err != nil {
		return nil, err
	}

	opts = append(opts,
		grpc.StreamInterceptor(grpcprometheus.StreamServerInterceptor),
		grpc.UnaryInterceptor(grpcprometheus.UnaryServerInterceptor),
	)

	grpcServer := dgrpc.NewPublicServer(log.DefaultLogger(), s, opts...)
	return &grpcListener{grpcServer: grpcServer, lis: lis}, nil
}

type grpcListener struct {
	grpcServer *grpc.Server
	lis        net.Listener
}

func (g *grpcListener) Addr() string {
	return g.lis.Addr().String()
}

func (g *grpcListener) Start() {
	go func() {
		_ = g.grpcServer.Serve(g.lis)
	}()
}

func (g *grpcListener) Stop(_ context.Context) {
	g.grpcServer.Stop()
	_ = g.lis.Close()
}
