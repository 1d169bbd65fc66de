package grpcx

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// дефолтный guard для вызовов без deadline
const defaultCallTimeout = 10 * time.Second

// Unary logging + recovery + timeout guard (если у вызова нет deadline)
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		start := time.Now()
		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultCallTimeout)
			defer cancel()
		}

		defer func() {
			if r := recover(); r != nil {
				err = recovered(info.FullMethod, r)
			}
			logCall(ctx, "grpc unary", info.FullMethod, start, err)
		}()

		return handler(ctx, req)
	}
}

// Stream: Watch из health-сервиса живёт долго, поэтому без timeout guard.
func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()

		defer func() {
			if r := recover(); r != nil {
				err = recovered(info.FullMethod, r)
			}
			logCall(ss.Context(), "grpc stream", info.FullMethod, start, err)
		}()

		return handler(srv, ss)
	}
}

func recovered(method string, r any) error {
	slog.Error("grpc panic",
		"method", method,
		"panic", r,
		"stack", string(debug.Stack()))
	return status.Error(codes.Internal, "internal server error")
}

// health и reflection опрашиваются часто, пишем их в debug
func logCall(ctx context.Context, msg, method string, start time.Time, err error) {
	level := slog.LevelInfo
	if strings.HasPrefix(method, "/grpc.health.") || strings.HasPrefix(method, "/grpc.reflection.") {
		level = slog.LevelDebug
	}
	if err != nil {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, msg,
		"method", method,
		"code", status.Code(err).String(),
		"dur_ms", time.Since(start).Milliseconds(),
		"err", errString(err))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
