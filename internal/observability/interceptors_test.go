package observability

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/TinoTau/lingua-1-sub000/internal/observability/metrics"
)

func TestUnaryServerInterceptor_PassesThrough(t *testing.T) {
	icpt := UnaryServerInterceptor(metrics.DefaultMetrics)
	info := &grpc.UnaryServerInfo{FullMethod: "/test/Ok"}

	resp, err := icpt(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "resp", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp != "resp" {
		t.Errorf("expected 'resp', got %v", resp)
	}

	want := status.Error(codes.InvalidArgument, "bad")
	_, err = icpt(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return nil, want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected handler error, got %v", err)
	}
}

func TestRecoveryUnaryInterceptor(t *testing.T) {
	icpt := RecoveryUnaryInterceptor(metrics.DefaultMetrics)
	info := &grpc.UnaryServerInfo{FullMethod: "/test/Panic"}

	resp, err := icpt(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		panic("boom")
	})
	if resp != nil {
		t.Errorf("expected nil response, got %v", resp)
	}
	if status.Code(err) != codes.Internal {
		t.Errorf("expected Internal, got %v", err)
	}

	resp, err = icpt(context.Background(), "req", info, func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	})
	if err != nil || resp != "ok" {
		t.Errorf("expected pass-through, got %v, %v", resp, err)
	}
}

func TestStreamServerInterceptor(t *testing.T) {
	icpt := StreamServerInterceptor(metrics.DefaultMetrics)
	info := &grpc.StreamServerInfo{FullMethod: "/test/Stream"}
	want := errors.New("stream failed")

	err := icpt(nil, nil, info, func(srv interface{}, ss grpc.ServerStream) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("expected stream error, got %v", err)
	}
}
