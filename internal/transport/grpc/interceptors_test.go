package grpcx

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestUnaryInterceptor_RecoversPanic(t *testing.T) {
	ic := UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/coop.Relay/Boom"}

	_, err := ic(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		panic("boom")
	})
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestUnaryInterceptor_AddsDeadline(t *testing.T) {
	ic := UnaryServerInterceptor()
	info := &grpc.UnaryServerInfo{FullMethod: "/coop.Relay/Ping"}

	resp, err := ic(context.Background(), nil, info, func(ctx context.Context, req any) (any, error) {
		_, ok := ctx.Deadline()
		return ok, nil
	})
	require.NoError(t, err)
	assert.Equal(t, true, resp)
}
