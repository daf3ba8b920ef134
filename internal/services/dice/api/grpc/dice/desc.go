// Package dice serves dice.v1.DiceService.
//
// Messages are google.protobuf.Struct values, so the service descriptor is
// declared here instead of generated from a .proto file.
package dice

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name.
	ServiceName = "dice.v1.DiceService"

	rollMethod = "/" + ServiceName + "/Roll"
)

// DiceServiceServer is the server API for dice.v1.DiceService.
type DiceServiceServer interface {
	Roll(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// ServiceDesc describes dice.v1.DiceService for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DiceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Roll",
			Handler:    rollHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "dice/v1/dice.proto",
}

// RegisterDiceServiceServer registers srv on the registrar.
func RegisterDiceServiceServer(registrar grpc.ServiceRegistrar, srv DiceServiceServer) {
	registrar.RegisterService(&ServiceDesc, srv)
}

func rollHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DiceServiceServer).Roll(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: rollMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DiceServiceServer).Roll(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}
