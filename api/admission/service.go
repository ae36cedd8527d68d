// Package admission defines the gRPC surface of the admission flow.
//
// Two services are exposed. HostService is for the host only and is served
// on a local listener: it issues pins and decides requests. AdmissionService
// is what requesters reach over TLS: it submits requests and reports their
// status. Messages travel as google.protobuf.Struct values; the typed views
// in messages.go convert them.
package admission

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	HostServiceName      = "dchat.admission.v1.HostService"
	AdmissionServiceName = "dchat.admission.v1.AdmissionService"
)

type HostServiceServer interface {
	IssuePin(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPendingRequests(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AcceptRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RejectRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type AdmissionServiceServer interface {
	SubmitRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRequest(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

var HostServiceDesc = grpc.ServiceDesc{
	ServiceName: HostServiceName,
	HandlerType: (*HostServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "IssuePin", Handler: hostHandler("IssuePin", HostServiceServer.IssuePin)},
		{MethodName: "ListPendingRequests", Handler: hostHandler("ListPendingRequests", HostServiceServer.ListPendingRequests)},
		{MethodName: "AcceptRequest", Handler: hostHandler("AcceptRequest", HostServiceServer.AcceptRequest)},
		{MethodName: "RejectRequest", Handler: hostHandler("RejectRequest", HostServiceServer.RejectRequest)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/admission/admission.proto",
}

var AdmissionServiceDesc = grpc.ServiceDesc{
	ServiceName: AdmissionServiceName,
	HandlerType: (*AdmissionServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SubmitRequest", Handler: admissionHandler("SubmitRequest", AdmissionServiceServer.SubmitRequest)},
		{MethodName: "GetRequest", Handler: admissionHandler("GetRequest", AdmissionServiceServer.GetRequest)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "api/admission/admission.proto",
}

func RegisterHostServiceServer(s grpc.ServiceRegistrar, srv HostServiceServer) {
	s.RegisterService(&HostServiceDesc, srv)
}

func RegisterAdmissionServiceServer(s grpc.ServiceRegistrar, srv AdmissionServiceServer) {
	s.RegisterService(&AdmissionServiceDesc, srv)
}

type unaryCall func(context.Context, *structpb.Struct) (*structpb.Struct, error)

func hostHandler(method string, call func(HostServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return methodHandler(HostServiceName, method, func(srv any) unaryCall {
		return func(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return call(srv.(HostServiceServer), ctx, in)
		}
	})
}

func admissionHandler(method string, call func(AdmissionServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return methodHandler(AdmissionServiceName, method, func(srv any) unaryCall {
		return func(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
			return call(srv.(AdmissionServiceServer), ctx, in)
		}
	})
}

func methodHandler(service, method string, bind func(srv any) unaryCall) grpc.MethodHandler {
	fullMethod := "/" + service + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		call := bind(srv)
		if interceptor == nil {
			return call(ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(ctx, req.(*structpb.Struct))
		})
	}
}

type HostServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewHostServiceClient(cc grpc.ClientConnInterface) *HostServiceClient {
	return &HostServiceClient{cc: cc}
}

func (c *HostServiceClient) IssuePin(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke(ctx, c.cc, HostServiceName, "IssuePin", in, opts)
}

func (c *HostServiceClient) ListPendingRequests(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke(ctx, c.cc, HostServiceName, "ListPendingRequests", in, opts)
}

func (c *HostServiceClient) AcceptRequest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke(ctx, c.cc, HostServiceName, "AcceptRequest", in, opts)
}

func (c *HostServiceClient) RejectRequest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke(ctx, c.cc, HostServiceName, "RejectRequest", in, opts)
}

type AdmissionServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAdmissionServiceClient(cc grpc.ClientConnInterface) *AdmissionServiceClient {
	return &AdmissionServiceClient{cc: cc}
}

func (c *AdmissionServiceClient) SubmitRequest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke(ctx, c.cc, AdmissionServiceName, "SubmitRequest", in, opts)
}

func (c *AdmissionServiceClient) GetRequest(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return invoke(ctx, c.cc, AdmissionServiceName, "GetRequest", in, opts)
}

func invoke(ctx context.Context, cc grpc.ClientConnInterface, service, method string, in *structpb.Struct, opts []grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, "/"+service+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
