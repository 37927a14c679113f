package grpcx

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName — полное имя gRPC-сервиса комнаты. Сообщения — google.protobuf.Struct
// с теми же полями, что и в JSON HTTP API.
const ServiceName = "poker.v1.RoomService"

const (
	MethodAddParticipant    = "/" + ServiceName + "/AddParticipant"
	MethodRemoveParticipant = "/" + ServiceName + "/RemoveParticipant"
	MethodUpdateVote        = "/" + ServiceName + "/UpdateVote"
	MethodToggleReveal      = "/" + ServiceName + "/ToggleReveal"
	MethodResetAllVotes     = "/" + ServiceName + "/ResetAllVotes"
	MethodClearParticipants = "/" + ServiceName + "/ClearParticipants"
	MethodGetRoom           = "/" + ServiceName + "/GetRoom"
	MethodWatchRoom         = "/" + ServiceName + "/WatchRoom"
)

type RoomServiceServer interface {
	AddParticipant(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveParticipant(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateVote(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ToggleReveal(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ResetAllVotes(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ClearParticipants(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRoom(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchRoom(*structpb.Struct, WatchRoomStream) error
}

// WatchRoomStream: серверная сторона потока WatchRoom.
type WatchRoomStream interface {
	Send(*structpb.Struct) error
	grpc.ServerStream
}

type watchRoomStream struct {
	grpc.ServerStream
}

func (s *watchRoomStream) Send(m *structpb.Struct) error {
	return s.ServerStream.SendMsg(m)
}

func unaryHandler(method string, call func(RoomServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RoomServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RoomServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func watchRoomHandler(srv any, stream grpc.ServerStream) error {
	in := new(structpb.Struct)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(RoomServiceServer).WatchRoom(in, &watchRoomStream{stream})
}

// RoomServiceDesc описывает сервис для grpc.Server.RegisterService.
var RoomServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RoomServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "AddParticipant", Handler: unaryHandler(MethodAddParticipant, RoomServiceServer.AddParticipant)},
		{MethodName: "RemoveParticipant", Handler: unaryHandler(MethodRemoveParticipant, RoomServiceServer.RemoveParticipant)},
		{MethodName: "UpdateVote", Handler: unaryHandler(MethodUpdateVote, RoomServiceServer.UpdateVote)},
		{MethodName: "ToggleReveal", Handler: unaryHandler(MethodToggleReveal, RoomServiceServer.ToggleReveal)},
		{MethodName: "ResetAllVotes", Handler: unaryHandler(MethodResetAllVotes, RoomServiceServer.ResetAllVotes)},
		{MethodName: "ClearParticipants", Handler: unaryHandler(MethodClearParticipants, RoomServiceServer.ClearParticipants)},
		{MethodName: "GetRoom", Handler: unaryHandler(MethodGetRoom, RoomServiceServer.GetRoom)},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "WatchRoom", Handler: watchRoomHandler, ServerStreams: true},
	},
	Metadata: "poker/v1/room.proto",
}

// Client: тонкий клиент поверх соединения для тестов и утилит.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// WatchRoom открывает поток; recv возвращает очередное состояние комнаты.
func (c *Client) WatchRoom(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (recv func() (*structpb.Struct, error), err error) {
	stream, err := c.cc.NewStream(ctx, &RoomServiceDesc.Streams[0], MethodWatchRoom, opts...)
	if err != nil {
		return nil, err
	}
	if err := stream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := stream.CloseSend(); err != nil {
		return nil, err
	}
	return func() (*structpb.Struct, error) {
		out := new(structpb.Struct)
		if err := stream.RecvMsg(out); err != nil {
			return nil, err
		}
		return out, nil
	}, nil
}
