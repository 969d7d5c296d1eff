package umpire

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// serviceName is the fully qualified gRPC service name.
const serviceName = "shopfloor.umpire.v1.Umpire"

// UmpireServer is the server API for the Umpire gRPC service.
//
// We intentionally use protobuf well-known types so this package does not
// require a protoc/codegen toolchain. Rich messages travel as structpb
// documents; types.go defines their shape.
type UmpireServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	AddResource(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetResource(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error)
	StatResource(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	ImportBundle(context.Context, *structpb.Struct) (*wrapperspb.Int64Value, error)
	StageConfig(context.Context, *wrapperspb.Int64Value) (*wrapperspb.Int64Value, error)
	UnstageConfig(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	Deploy(context.Context, *structpb.Struct) (*wrapperspb.Int64Value, error)
	Rollback(context.Context, *structpb.Struct) (*wrapperspb.Int64Value, error)
	GetConfig(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	GetHistory(context.Context, *emptypb.Empty) (*structpb.ListValue, error)
	SubmitBuild(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LeaseBuild(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteBuild(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	FailBuild(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	GetBuild(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error)
	CollectGarbage(context.Context, *emptypb.Empty) (*structpb.Struct, error)
}

// UnimplementedUmpireServer can be embedded to have forward compatible implementations.
type UnimplementedUmpireServer struct{}

func (UnimplementedUmpireServer) GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStatus not implemented")
}
func (UnimplementedUmpireServer) AddResource(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method AddResource not implemented")
}
func (UnimplementedUmpireServer) GetResource(context.Context, *wrapperspb.StringValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetResource not implemented")
}
func (UnimplementedUmpireServer) StatResource(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method StatResource not implemented")
}
func (UnimplementedUmpireServer) ImportBundle(context.Context, *structpb.Struct) (*wrapperspb.Int64Value, error) {
	return nil, status.Error(codes.Unimplemented, "method ImportBundle not implemented")
}
func (UnimplementedUmpireServer) StageConfig(context.Context, *wrapperspb.Int64Value) (*wrapperspb.Int64Value, error) {
	return nil, status.Error(codes.Unimplemented, "method StageConfig not implemented")
}
func (UnimplementedUmpireServer) UnstageConfig(context.Context, *emptypb.Empty) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method UnstageConfig not implemented")
}
func (UnimplementedUmpireServer) Deploy(context.Context, *structpb.Struct) (*wrapperspb.Int64Value, error) {
	return nil, status.Error(codes.Unimplemented, "method Deploy not implemented")
}
func (UnimplementedUmpireServer) Rollback(context.Context, *structpb.Struct) (*wrapperspb.Int64Value, error) {
	return nil, status.Error(codes.Unimplemented, "method Rollback not implemented")
}
func (UnimplementedUmpireServer) GetConfig(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetConfig not implemented")
}
func (UnimplementedUmpireServer) GetHistory(context.Context, *emptypb.Empty) (*structpb.ListValue, error) {
	return nil, status.Error(codes.Unimplemented, "method GetHistory not implemented")
}
func (UnimplementedUmpireServer) SubmitBuild(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method SubmitBuild not implemented")
}
func (UnimplementedUmpireServer) LeaseBuild(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method LeaseBuild not implemented")
}
func (UnimplementedUmpireServer) CompleteBuild(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method CompleteBuild not implemented")
}
func (UnimplementedUmpireServer) FailBuild(context.Context, *structpb.Struct) (*emptypb.Empty, error) {
	return nil, status.Error(codes.Unimplemented, "method FailBuild not implemented")
}
func (UnimplementedUmpireServer) GetBuild(context.Context, *wrapperspb.StringValue) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method GetBuild not implemented")
}
func (UnimplementedUmpireServer) CollectGarbage(context.Context, *emptypb.Empty) (*structpb.Struct, error) {
	return nil, status.Error(codes.Unimplemented, "method CollectGarbage not implemented")
}

// RegisterUmpireServer registers the Umpire service on a gRPC server.
func RegisterUmpireServer(s grpc.ServiceRegistrar, srv UmpireServer) {
	s.RegisterService(&Umpire_ServiceDesc, srv)
}

// UmpireClient is the client API for the Umpire gRPC service.
type UmpireClient interface {
	GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
	AddResource(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetResource(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	StatResource(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	ImportBundle(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error)
	StageConfig(ctx context.Context, in *wrapperspb.Int64Value, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error)
	UnstageConfig(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error)
	Deploy(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error)
	Rollback(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error)
	GetConfig(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	GetHistory(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error)
	SubmitBuild(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	LeaseBuild(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
	CompleteBuild(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	FailBuild(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error)
	GetBuild(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error)
	CollectGarbage(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type umpireClient struct{ cc grpc.ClientConnInterface }

func NewUmpireClient(cc grpc.ClientConnInterface) UmpireClient { return &umpireClient{cc: cc} }

func (c *umpireClient) GetStatus(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetStatus", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *umpireClient) AddResource(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/AddResource", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *umpireClient) GetResource(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetResource", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *umpireClient) StatResource(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/StatResource", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *umpireClient) ImportBundle(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/ImportBundle", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *umpireClient) StageConfig(ctx context.Context, in *wrapperspb.Int64Value, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/StageConfig", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *umpireClient) UnstageConfig(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/UnstageConfig", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *umpireClient) Deploy(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Deploy", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *umpireClient) Rollback(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*wrapperspb.Int64Value, error) {
	out := new(wrapperspb.Int64Value)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/Rollback", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *umpireClient) GetConfig(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetConfig", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *umpireClient) GetHistory(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.ListValue, error) {
	out := new(structpb.ListValue)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetHistory", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *umpireClient) SubmitBuild(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/SubmitBuild", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *umpireClient) LeaseBuild(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/LeaseBuild", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *umpireClient) CompleteBuild(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/CompleteBuild", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *umpireClient) FailBuild(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*emptypb.Empty, error) {
	out := new(emptypb.Empty)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/FailBuild", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *umpireClient) GetBuild(ctx context.Context, in *wrapperspb.StringValue, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/GetBuild", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *umpireClient) CollectGarbage(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+serviceName+"/CollectGarbage", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func unaryHandler[Req any](method string, call func(UmpireServer, context.Context, *Req) (any, error)) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(UmpireServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/" + method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(UmpireServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Umpire_ServiceDesc is the grpc.ServiceDesc for the Umpire service.
var Umpire_ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*UmpireServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: unaryHandler("GetStatus", func(s UmpireServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.GetStatus(ctx, in)
		})},
		{MethodName: "AddResource", Handler: unaryHandler("AddResource", func(s UmpireServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.AddResource(ctx, in)
		})},
		{MethodName: "GetResource", Handler: unaryHandler("GetResource", func(s UmpireServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.GetResource(ctx, in)
		})},
		{MethodName: "StatResource", Handler: unaryHandler("StatResource", func(s UmpireServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.StatResource(ctx, in)
		})},
		{MethodName: "ImportBundle", Handler: unaryHandler("ImportBundle", func(s UmpireServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.ImportBundle(ctx, in)
		})},
		{MethodName: "StageConfig", Handler: unaryHandler("StageConfig", func(s UmpireServer, ctx context.Context, in *wrapperspb.Int64Value) (any, error) {
			return s.StageConfig(ctx, in)
		})},
		{MethodName: "UnstageConfig", Handler: unaryHandler("UnstageConfig", func(s UmpireServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.UnstageConfig(ctx, in)
		})},
		{MethodName: "Deploy", Handler: unaryHandler("Deploy", func(s UmpireServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.Deploy(ctx, in)
		})},
		{MethodName: "Rollback", Handler: unaryHandler("Rollback", func(s UmpireServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.Rollback(ctx, in)
		})},
		{MethodName: "GetConfig", Handler: unaryHandler("GetConfig", func(s UmpireServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.GetConfig(ctx, in)
		})},
		{MethodName: "GetHistory", Handler: unaryHandler("GetHistory", func(s UmpireServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.GetHistory(ctx, in)
		})},
		{MethodName: "SubmitBuild", Handler: unaryHandler("SubmitBuild", func(s UmpireServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.SubmitBuild(ctx, in)
		})},
		{MethodName: "LeaseBuild", Handler: unaryHandler("LeaseBuild", func(s UmpireServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.LeaseBuild(ctx, in)
		})},
		{MethodName: "CompleteBuild", Handler: unaryHandler("CompleteBuild", func(s UmpireServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.CompleteBuild(ctx, in)
		})},
		{MethodName: "FailBuild", Handler: unaryHandler("FailBuild", func(s UmpireServer, ctx context.Context, in *structpb.Struct) (any, error) {
			return s.FailBuild(ctx, in)
		})},
		{MethodName: "GetBuild", Handler: unaryHandler("GetBuild", func(s UmpireServer, ctx context.Context, in *wrapperspb.StringValue) (any, error) {
			return s.GetBuild(ctx, in)
		})},
		{MethodName: "CollectGarbage", Handler: unaryHandler("CollectGarbage", func(s UmpireServer, ctx context.Context, in *emptypb.Empty) (any, error) {
			return s.CollectGarbage(ctx, in)
		})},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "umpire.proto",
}
