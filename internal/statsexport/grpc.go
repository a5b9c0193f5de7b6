package statsexport

import (
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
)

// StatsServiceServer is the server-side contract for the hand-rolled
// stats export service: a single streaming RPC that pushes a
// StatsSnapshot on every tick until the client disconnects.
type StatsServiceServer interface {
	StreamStats(*Empty, StatsService_StreamStatsServer) error
}

// StatsService_StreamStatsServer is the server-stream handle a
// StreamStats implementation sends snapshots on, mirroring the shape
// protoc-gen-go-grpc would generate for a `stream StatsSnapshot`
// response.
type StatsService_StreamStatsServer interface {
	Send(*StatsSnapshot) error
	grpc.ServerStream
}

type statsServiceStreamStatsServer struct {
	grpc.ServerStream
}

func (s *statsServiceStreamStatsServer) Send(m *StatsSnapshot) error {
	return s.ServerStream.SendMsg(m)
}

func statsServiceStreamStatsHandler(srv interface{}, stream grpc.ServerStream) error {
	req := new(Empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(StatsServiceServer).StreamStats(req, &statsServiceStreamStatsServer{stream})
}

// serviceDesc is the hand-registered service descriptor standing in
// for protoc-gen-go-grpc output, naming the single streaming method
// this service exposes.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: "meshcore.stats.v1.StatsService",
	HandlerType: (*StatsServiceServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamStats",
			Handler:       statsServiceStreamStatsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "meshcore/stats.proto",
}

// server implements StatsServiceServer, polling source on a fixed
// interval and pushing a snapshot to every connected stream.
type server struct {
	source   Source
	interval time.Duration
}

// StreamStats implements StatsServiceServer: it pushes one snapshot
// immediately, then one per interval, until the client disconnects or
// the server shuts down.
func (s *server) StreamStats(_ *Empty, stream StatsService_StreamStatsServer) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	snap := s.source.Snapshot()
	if err := stream.Send(&snap); err != nil {
		return err
	}

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			snap := s.source.Snapshot()
			if err := stream.Send(&snap); err != nil {
				return err
			}
		}
	}
}

// GRPCServer wraps a *grpc.Server exposing the stats export service
// over a hand-marshaled, codegen-free codec: no protoc step, messages
// are plain Go structs.
type GRPCServer struct {
	grpcServer *grpc.Server
	listener   net.Listener
}

// NewGRPCServer constructs and starts listening on addr, but does not
// begin serving until Serve is called.
func NewGRPCServer(addr string, source Source, interval time.Duration) (*GRPCServer, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("statsexport: failed to listen on %s: %w", addr, err)
	}

	gs := grpc.NewServer(grpc.ForceServerCodec(jsonCodec{}))
	gs.RegisterService(&serviceDesc, &server{source: source, interval: interval})

	return &GRPCServer{grpcServer: gs, listener: lis}, nil
}

// Serve blocks, serving RPCs until Stop is called.
func (g *GRPCServer) Serve() error {
	return g.grpcServer.Serve(g.listener)
}

// Stop gracefully stops the gRPC server.
func (g *GRPCServer) Stop() {
	g.grpcServer.GracefulStop()
}
