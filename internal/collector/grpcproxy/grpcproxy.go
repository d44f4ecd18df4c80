// Package grpcproxy implements the "proxy" transport collector named in the
// spec's out-of-scope list, given a concrete in-tree body: a gRPC server that
// accepts a client-streaming RPC of raw trace bytes relayed by a remote
// capture agent, and exposes the reassembled byte stream as an io.Reader for
// the wire parser.
//
// No .proto/codegen toolchain runs in this environment. The single RPC is
// registered directly against a hand-built grpc.ServiceDesc — grpc-go
// supports this; codegen is a convenience layer on top of it, not a
// requirement — so the service is fully functional against any client that
// speaks the same wire contract (a stream of wrapperspb.BytesValue frames).
package grpcproxy

import (
	"context"
	"fmt"
	"io"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/matgreaves/run"
)

// ServiceName is the fully-qualified gRPC service name clients dial.
const ServiceName = "rtrace.collector.v1.TraceRelay"

// StreamName is the client-streaming RPC a capture agent calls to relay
// trace bytes.
const StreamName = "StreamTraceBytes"

// Collector receives relayed trace bytes over a gRPC client-streaming RPC
// and exposes them as an io.Reader. Construct with New, start its Runner in
// a run.Group alongside the import loop, and read from Reader().
type Collector struct {
	addr string
	srv  *grpc.Server
	pr   *io.PipeReader
	pw   *io.PipeWriter
}

// New builds a Collector that will listen on addr once its Runner starts.
func New(addr string) *Collector {
	pr, pw := io.Pipe()
	c := &Collector{addr: addr, pr: pr, pw: pw}
	c.srv = grpc.NewServer()
	c.srv.RegisterService(&serviceDesc, c)
	return c
}

// Reader returns the byte stream the wire parser should read from. Valid for
// the lifetime of the Collector; it returns io.EOF/io.ErrClosedPipe once the
// Collector's Runner stops.
func (c *Collector) Reader() io.Reader { return c.pr }

// Runner returns a run.Runner that serves the gRPC listener until ctx is
// cancelled.
func (c *Collector) Runner() run.Runner {
	return run.Func(func(ctx context.Context) error {
		lis, err := net.Listen("tcp", c.addr)
		if err != nil {
			return fmt.Errorf("grpcproxy: listen on %s: %w", c.addr, err)
		}

		done := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				c.srv.GracefulStop()
			case <-done:
			}
		}()

		err = c.srv.Serve(lis)
		close(done)
		c.pw.CloseWithError(io.EOF)
		if err != nil && ctx.Err() == nil {
			return fmt.Errorf("grpcproxy: serve: %w", err)
		}
		return nil
	})
}

// streamTraceBytes handles one StreamTraceBytes RPC: it reads a sequence of
// wrapperspb.BytesValue frames from the client and writes each payload into
// the collector's pipe, replying with an empty ack once the client closes
// its send side.
func (c *Collector) streamTraceBytes(stream grpc.ServerStream) error {
	for {
		var chunk wrapperspb.BytesValue
		if err := stream.RecvMsg(&chunk); err != nil {
			if err == io.EOF {
				return stream.SendMsg(&emptypb.Empty{})
			}
			c.pw.CloseWithError(err)
			return err
		}
		if _, err := c.pw.Write(chunk.Value); err != nil {
			return err
		}
	}
}

func streamTraceBytesHandler(srv any, stream grpc.ServerStream) error {
	return srv.(*Collector).streamTraceBytes(stream)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    StreamName,
			Handler:       streamTraceBytesHandler,
			ClientStreams: true,
		},
	},
}
