package grpc_control

// Server and client bindings for control.proto. The messages are the protobuf
// well-known types, so only the service plumbing lives here.

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

const ControlServiceName = "market_streamer.Control"

// ControlServer is the server API for the Control service.
type ControlServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListSymbols(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	TokenInfo(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	HistoricalBars(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LiveQuotes(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarketSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Earnings(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// UnimplementedControlServer answers every call with codes.Unimplemented.
type UnimplementedControlServer struct{}

func (UnimplementedControlServer) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStatus not implemented")
}
func (UnimplementedControlServer) ListSymbols(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method ListSymbols not implemented")
}
func (UnimplementedControlServer) TokenInfo(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method TokenInfo not implemented")
}
func (UnimplementedControlServer) HistoricalBars(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method HistoricalBars not implemented")
}
func (UnimplementedControlServer) LiveQuotes(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method LiveQuotes not implemented")
}
func (UnimplementedControlServer) MarketSnapshot(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method MarketSnapshot not implemented")
}
func (UnimplementedControlServer) Earnings(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method Earnings not implemented")
}

// -----------------------------------------------------------------------------

func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&ControlServiceDesc, srv)
}

func unaryMethod[In any](method string, newIn func() In, call func(ControlServer, context.Context, In) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newIn()
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(ControlServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ControlServiceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(ControlServer), ctx, req.(In))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

func newEmpty() *emptypb.Empty   { return new(emptypb.Empty) }
func newStruct() *structpb.Struct { return new(structpb.Struct) }

// ControlServiceDesc is the grpc.ServiceDesc for the Control service.
var ControlServiceDesc = grpc.ServiceDesc{
	ServiceName: ControlServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("GetStatus", newEmpty, ControlServer.GetStatus),
		unaryMethod("ListSymbols", newEmpty, ControlServer.ListSymbols),
		unaryMethod("TokenInfo", newEmpty, ControlServer.TokenInfo),
		unaryMethod("HistoricalBars", newStruct, ControlServer.HistoricalBars),
		unaryMethod("LiveQuotes", newStruct, ControlServer.LiveQuotes),
		unaryMethod("MarketSnapshot", newStruct, ControlServer.MarketSnapshot),
		unaryMethod("Earnings", newStruct, ControlServer.Earnings),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "control.proto",
}

// -----------------------------------------------------------------------------

// ControlClient is the client API for the Control service.
type ControlClient struct {
	cc grpc.ClientConnInterface
}

func NewControlClient(cc grpc.ClientConnInterface) *ControlClient {
	return &ControlClient{cc: cc}
}

func (c *ControlClient) invoke(ctx context.Context, method string, in any, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ControlServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ControlClient) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "GetStatus", &emptypb.Empty{}, opts...)
}

func (c *ControlClient) ListSymbols(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "ListSymbols", &emptypb.Empty{}, opts...)
}

func (c *ControlClient) TokenInfo(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "TokenInfo", &emptypb.Empty{}, opts...)
}

func (c *ControlClient) HistoricalBars(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "HistoricalBars", in, opts...)
}

func (c *ControlClient) LiveQuotes(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "LiveQuotes", in, opts...)
}

func (c *ControlClient) MarketSnapshot(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "MarketSnapshot", in, opts...)
}

func (c *ControlClient) Earnings(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Earnings", in, opts...)
}
