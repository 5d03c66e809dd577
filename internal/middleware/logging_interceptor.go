package middleware

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// Interceptors for the admin gRPC server. Health probes arrive every few
// seconds, so successful ones are logged at Debug.

func UnaryLoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		logger.Check(rpcLevel(info.FullMethod, err), "admin unary RPC").Write(
			zap.String("method", info.FullMethod),
			zap.String("request_id", incomingRequestID(ctx)),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
			zap.Error(err),
		)
		return resp, err
	}
}

func StreamLoggingInterceptor(logger *zap.Logger) grpc.StreamServerInterceptor {
	return func(
		srv interface{},
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		start := time.Now()
		requestID := incomingRequestID(ss.Context())

		logger.Debug("admin stream RPC started",
			zap.String("method", info.FullMethod),
			zap.String("request_id", requestID),
		)

		err := handler(srv, ss)

		// a watcher hanging up is the normal way a Watch ends
		if status.Code(err) == codes.Canceled {
			err = nil
		}
		logger.Check(rpcLevel(info.FullMethod, err), "admin stream RPC").Write(
			zap.String("method", info.FullMethod),
			zap.String("request_id", requestID),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
			zap.Error(err),
		)
		return err
	}
}

// RecoveryInterceptor turns a handler panic into codes.Internal.
func RecoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic in admin RPC", zap.String("method", info.FullMethod), zap.Any("panic", r))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}

func rpcLevel(method string, err error) zapcore.Level {
	switch {
	case err != nil:
		return zapcore.ErrorLevel
	case strings.HasPrefix(method, "/grpc.health.v1.Health/"):
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

func incomingRequestID(ctx context.Context) string {
	md, _ := metadata.FromIncomingContext(ctx)
	if ids := md.Get("x-request-id"); len(ids) > 0 {
		return ids[0]
	}
	return ""
}
