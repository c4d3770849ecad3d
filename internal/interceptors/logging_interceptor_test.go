package interceptors

import (
	"context"
	"testing"

	"github.com/Dhoini/glucose-gateway/pkg/logger"
	"github.com/stretchr/testify/assert"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoggingInterceptor_PassesThrough(t *testing.T) {
	interceptor := NewLoggingInterceptor(logger.NewNop()).Unary()
	info := &grpc.UnaryServerInfo{FullMethod: "/grpc.health.v1.Health/Check"}

	resp, err := interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp)

	_, err = interceptor(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, status.Error(codes.NotFound, "unknown service")
	})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestLoggingInterceptor_RecoversPanic(t *testing.T) {
	interceptor := NewLoggingInterceptor(logger.NewNop()).Unary()
	info := &grpc.UnaryServerInfo{FullMethod: "/test/Panic"}

	_, err := interceptor(context.Background(), nil, info, func(ctx context.Context, req interface{}) (interface{}, error) {
		panic("boom")
	})
	assert.Equal(t, codes.Internal, status.Code(err))
}
