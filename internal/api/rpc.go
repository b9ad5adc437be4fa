package api

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Service and method names of the control plane. Messages are protobuf
// well-known types, so no generated code is needed on either side.
const (
	RecordServiceName = "fieldsync.v1.RecordService"
	SyncServiceName   = "fieldsync.v1.SyncService"

	MethodCreateRecord = "/" + RecordServiceName + "/Create"
	MethodUpdateRecord = "/" + RecordServiceName + "/Update"
	MethodDeleteRecord = "/" + RecordServiceName + "/Delete"
	MethodGetRecord    = "/" + RecordServiceName + "/Get"
	MethodListRecords  = "/" + RecordServiceName + "/List"

	MethodGetSyncStatus    = "/" + SyncServiceName + "/GetSyncStatus"
	MethodForceSyncNow     = "/" + SyncServiceName + "/ForceSyncNow"
	MethodClearSyncedItems = "/" + SyncServiceName + "/ClearSyncedItems"
	MethodListQueue        = "/" + SyncServiceName + "/ListQueue"
	MethodRequeueFailed    = "/" + SyncServiceName + "/RequeueFailed"
	MethodGetNetworkStatus = "/" + SyncServiceName + "/GetNetworkStatus"
	MethodWatchSyncStatus  = "/" + SyncServiceName + "/WatchSyncStatus"
)

// RecordServer is the CRUD contract exposed to UI consumers.
type RecordServer interface {
	Create(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Update(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Delete(context.Context, *structpb.Struct) (*emptypb.Empty, error)
	Get(context.Context, *structpb.Struct) (*structpb.Struct, error)
	List(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

// SyncServer is the sync status and control contract.
type SyncServer interface {
	GetSyncStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ForceSyncNow(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ClearSyncedItems(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	ListQueue(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RequeueFailed(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetNetworkStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	WatchSyncStatus(*emptypb.Empty, grpc.ServerStream) error
}

// RecordServiceDesc describes RecordService for grpc.Server.RegisterService.
var RecordServiceDesc = grpc.ServiceDesc{
	ServiceName: RecordServiceName,
	HandlerType: (*RecordServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodCreateRecord, newStruct, func(s RecordServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
			return s.Create(ctx, in)
		}),
		unary(MethodUpdateRecord, newStruct, func(s RecordServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
			return s.Update(ctx, in)
		}),
		unary(MethodDeleteRecord, newStruct, func(s RecordServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
			return s.Delete(ctx, in)
		}),
		unary(MethodGetRecord, newStruct, func(s RecordServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
			return s.Get(ctx, in)
		}),
		unary(MethodListRecords, newStruct, func(s RecordServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
			return s.List(ctx, in)
		}),
	},
	Metadata: "fieldsync/v1/records.proto",
}

// SyncServiceDesc describes SyncService for grpc.Server.RegisterService.
var SyncServiceDesc = grpc.ServiceDesc{
	ServiceName: SyncServiceName,
	HandlerType: (*SyncServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodGetSyncStatus, newEmpty, func(s SyncServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
			return s.GetSyncStatus(ctx, in)
		}),
		unary(MethodForceSyncNow, newEmpty, func(s SyncServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
			return s.ForceSyncNow(ctx, in)
		}),
		unary(MethodClearSyncedItems, newEmpty, func(s SyncServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
			return s.ClearSyncedItems(ctx, in)
		}),
		unary(MethodListQueue, newStruct, func(s SyncServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
			return s.ListQueue(ctx, in)
		}),
		unary(MethodRequeueFailed, newStruct, func(s SyncServer, ctx context.Context, in *structpb.Struct) (proto.Message, error) {
			return s.RequeueFailed(ctx, in)
		}),
		unary(MethodGetNetworkStatus, newEmpty, func(s SyncServer, ctx context.Context, in *emptypb.Empty) (proto.Message, error) {
			return s.GetNetworkStatus(ctx, in)
		}),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchSyncStatus",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(emptypb.Empty)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(SyncServer).WatchSyncStatus(in, stream)
			},
		},
	},
	Metadata: "fieldsync/v1/sync.proto",
}

// RegisterRecordServer registers the record service on s.
func RegisterRecordServer(s grpc.ServiceRegistrar, srv RecordServer) {
	s.RegisterService(&RecordServiceDesc, srv)
}

// RegisterSyncServer registers the sync service on s.
func RegisterSyncServer(s grpc.ServiceRegistrar, srv SyncServer) {
	s.RegisterService(&SyncServiceDesc, srv)
}

func newStruct() *structpb.Struct { return new(structpb.Struct) }
func newEmpty() *emptypb.Empty { return new(emptypb.Empty) }

// unary builds a MethodDesc that decodes the request, runs interceptors and
// dispatches to the typed server.
func unary[S any, Req proto.Message](fullMethod string, newReq func() Req, call func(S, context.Context, Req) (proto.Message, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: fullMethod[strings.LastIndex(fullMethod, "/")+1:],
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := newReq()
			if err := dec(in); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(Req))
			}
			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, handler)
		},
	}
}
