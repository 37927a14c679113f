package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cwrk-planet/poker-service/internal/metrics"
	"github.com/cwrk-planet/poker-service/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultCallTimeout — guard для unary-вызовов без deadline.
const DefaultCallTimeout = 10 * time.Second

// UnaryServerInterceptor: recovery, лог, метрики и deadline guard,
// если у вызова нет своего deadline.
func UnaryServerInterceptor(guard time.Duration) grpc.UnaryServerInterceptor {
	if guard <= 0 {
		guard = DefaultCallTimeout
	}
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, guard)
			defer cancel()
		}

		call := startCall(info.FullMethod, roomOf(req))
		defer func() {
			if r := recover(); r != nil {
				err = call.panicked(r)
			}
			call.finish(ctx, "grpc unary", err)
		}()

		return handler(ctx, req)
	}
}

// StreamServerInterceptor делает то же без guard: WatchRoom живёт до отмены клиентом.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		call := startCall(info.FullMethod, "")
		defer func() {
			if r := recover(); r != nil {
				err = call.panicked(r)
			}
			call.finish(ss.Context(), "grpc stream", err)
		}()

		return handler(srv, ss)
	}
}

type callInfo struct {
	method string
	roomID string
	start  time.Time
}

func startCall(method, roomID string) callInfo {
	return callInfo{method: method, roomID: roomID, start: time.Now()}
}

func (c callInfo) panicked(r any) error {
	slog.Error("grpc panic",
		"method", c.method,
		"panic", r,
		"stack", string(debug.Stack()))
	return status.Error(codes.Internal, "internal server error")
}

func (c callInfo) finish(ctx context.Context, msg string, err error) {
	code := status.Code(err)
	metrics.ObserveGRPC(c.method, code.String())

	attrs := []slog.Attr{
		slog.String("method", c.method),
		slog.String("code", code.String()),
		slog.Int64("dur_ms", time.Since(c.start).Milliseconds()),
		logger.Err(err),
	}
	if c.roomID != "" {
		attrs = append(attrs, logger.Room(c.roomID))
	}
	slog.LogAttrs(ctx, levelFor(code), msg, attrs...)
}

func levelFor(code codes.Code) slog.Level {
	switch code {
	case codes.OK, codes.Canceled:
		return slog.LevelInfo
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// roomOf достаёт room_id из запроса, если он есть.
func roomOf(req any) string {
	s, ok := req.(*structpb.Struct)
	if !ok {
		return ""
	}
	return s.GetFields()["room_id"].GetStringValue()
}
