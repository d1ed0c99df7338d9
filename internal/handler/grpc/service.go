package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "geolookup.v1.Lookup"

const (
	getMethod     = "/" + ServiceName + "/Get"
	countryMethod = "/" + ServiceName + "/Country"
)

// LookupServer is the server API for the geolookup.v1.Lookup service.
//
// The service only uses well-known protobuf types, so no generated code is
// needed:
//
//	service Lookup {
//	  rpc Get(google.protobuf.StringValue) returns (google.protobuf.Value);
//	  rpc Country(google.protobuf.StringValue) returns (google.protobuf.StringValue);
//	}
type LookupServer interface {
	Get(context.Context, *wrapperspb.StringValue) (*structpb.Value, error)
	Country(context.Context, *wrapperspb.StringValue) (*wrapperspb.StringValue, error)
}

// ServiceDesc describes the geolookup.v1.Lookup service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LookupServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: getHandler},
		{MethodName: "Country", Handler: countryHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "geolookup/v1/lookup.proto",
}

// Register registers srv on s.
func Register(s grpc.ServiceRegistrar, srv LookupServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func getHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LookupServer).Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LookupServer).Get(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

func countryHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.StringValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(LookupServer).Country(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: countryMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(LookupServer).Country(ctx, req.(*wrapperspb.StringValue))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls the geolookup.v1.Lookup service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a new Client using cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Get returns the record stored for ip.
func (c *Client) Get(ctx context.Context, ip string, opts ...grpc.CallOption) (*structpb.Value, error) {
	out := new(structpb.Value)
	if err := c.cc.Invoke(ctx, getMethod, wrapperspb.String(ip), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Country returns the ISO-3166 country code for ip.
func (c *Client) Country(ctx context.Context, ip string, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, countryMethod, wrapperspb.String(ip), out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}

// UnaryLogger logs each call with method, code and duration at a level
// chosen by the status code.
func UnaryLogger() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		level := slog.LevelInfo
		switch {
		case err == nil:
		case code == codes.Internal || code == codes.Unknown:
			level = slog.LevelError
		default:
			level = slog.LevelWarn
		}

		slog.Log(ctx, level, "grpc request",
			"method", info.FullMethod,
			"code", code.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return resp, err
	}
}
