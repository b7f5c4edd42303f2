package grpcapi

import (
	"context"

	"google.golang.org/grpc"

	"github.com/TinoTau/lingua-1-sub000/internal/models"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "lingua.aggregator.v1.AggregatorService"

const (
	methodProcessJob    = "/" + ServiceName + "/ProcessJob"
	methodEndSession    = "/" + ServiceName + "/EndSession"
	methodLastCommitted = "/" + ServiceName + "/LastCommitted"
)

// AggregatorServer is the server API for the aggregator service.
type AggregatorServer interface {
	ProcessJob(context.Context, *models.ProcessJobRequest) (*models.JobResponse, error)
	EndSession(context.Context, *models.EndSessionRequest) (*models.EndSessionResponse, error)
	LastCommitted(context.Context, *models.LastCommittedRequest) (*models.LastCommittedResponse, error)
}

// ServiceDesc describes the aggregator service for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AggregatorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ProcessJob", Handler: processJobHandler},
		{MethodName: "EndSession", Handler: endSessionHandler},
		{MethodName: "LastCommitted", Handler: lastCommittedHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "lingua/aggregator/v1",
}

func processJobHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(models.ProcessJobRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AggregatorServer).ProcessJob(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodProcessJob}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AggregatorServer).ProcessJob(ctx, req.(*models.ProcessJobRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func endSessionHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(models.EndSessionRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AggregatorServer).EndSession(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodEndSession}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AggregatorServer).EndSession(ctx, req.(*models.EndSessionRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func lastCommittedHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(models.LastCommittedRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(AggregatorServer).LastCommitted(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodLastCommitted}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(AggregatorServer).LastCommitted(ctx, req.(*models.LastCommittedRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls the aggregator service.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient creates a client over an established connection.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ProcessJob(ctx context.Context, in *models.ProcessJobRequest, opts ...grpc.CallOption) (*models.JobResponse, error) {
	out := new(models.JobResponse)
	if err := c.cc.Invoke(ctx, methodProcessJob, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) EndSession(ctx context.Context, in *models.EndSessionRequest, opts ...grpc.CallOption) (*models.EndSessionResponse, error) {
	out := new(models.EndSessionResponse)
	if err := c.cc.Invoke(ctx, methodEndSession, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) LastCommitted(ctx context.Context, in *models.LastCommittedRequest, opts ...grpc.CallOption) (*models.LastCommittedResponse, error) {
	out := new(models.LastCommittedResponse)
	if err := c.cc.Invoke(ctx, methodLastCommitted, in, out, withCodec(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func withCodec(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
}
