package interceptors

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/Dhoini/glucose-gateway/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor логирует unary вызовы и гасит паники обработчиков.
type LoggingInterceptor struct {
	log *logger.Logger
}

// NewLoggingInterceptor создает интерцептор логирования
func NewLoggingInterceptor(log *logger.Logger) *LoggingInterceptor {
	return &LoggingInterceptor{log: log}
}

// Unary возвращает UnaryServerInterceptor: метод, код ответа и задержка.
func (i *LoggingInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp interface{}, err error) {
		start := time.Now()

		defer func() {
			if r := recover(); r != nil {
				i.log.Errorw("gRPC handler panicked", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal error")
			}

			code := status.Code(err)
			fields := []any{
				"method", info.FullMethod,
				"code", code.String(),
				"latency_ms", time.Since(start).Milliseconds(),
			}
			if code == codes.Internal || code == codes.Unknown {
				i.log.Errorw("gRPC call handled", append(fields, "error", err)...)
				return
			}
			i.log.Debugw("gRPC call handled", fields...)
		}()

		return handler(ctx, req)
	}
}
