package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "recruiting.lifecycle.v1.LifecycleService"

// LifecycleServer is the server API of LifecycleService. Every method takes
// and returns a google.protobuf.Struct whose fields follow the REST JSON
// shapes.
type LifecycleServer interface {
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Transition(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetApplication(context.Context, *structpb.Struct) (*structpb.Struct, error)
	History(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ScheduleInterview(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ConfirmInterview(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RescheduleInterview(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelInterview(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteInterview(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UnreadNotifications(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkNotificationRead(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(LifecycleServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(LifecycleServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: "/" + ServiceName + "/" + name,
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(LifecycleServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc is the grpc.ServiceDesc for LifecycleService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LifecycleServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Submit", LifecycleServer.Submit),
		unary("Transition", LifecycleServer.Transition),
		unary("GetApplication", LifecycleServer.GetApplication),
		unary("History", LifecycleServer.History),
		unary("ScheduleInterview", LifecycleServer.ScheduleInterview),
		unary("ConfirmInterview", LifecycleServer.ConfirmInterview),
		unary("RescheduleInterview", LifecycleServer.RescheduleInterview),
		unary("CancelInterview", LifecycleServer.CancelInterview),
		unary("CompleteInterview", LifecycleServer.CompleteInterview),
		unary("UnreadNotifications", LifecycleServer.UnreadNotifications),
		unary("MarkNotificationRead", LifecycleServer.MarkNotificationRead),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "recruiting/lifecycle/v1/lifecycle.proto",
}
