package grpc

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/identity"
)

type fakeResolver struct {
	resolveFn func(ctx context.Context, id string) (domain.User, error)
}

func (f *fakeResolver) ResolveUser(ctx context.Context, id string) (domain.User, error) {
	if f.resolveFn == nil {
		panic("ResolveUser not configured")
	}
	return f.resolveFn(ctx, id)
}

func roles(m map[string]domain.Role) *fakeResolver {
	return &fakeResolver{resolveFn: func(ctx context.Context, id string) (domain.User, error) {
		r, ok := m[id]
		if !ok {
			return domain.User{}, identity.ErrUnknownUser
		}
		return domain.User{ID: id, Role: r}, nil
	}}
}

func asUser(id string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs(UserIDHeader, id))
}

func TestCaller(t *testing.T) {
	users := roles(map[string]domain.Role{
		"p1": domain.RoleProvider,
		"c1": domain.RoleClient,
		"a1": domain.RoleAdmin,
	})

	tests := []struct {
		name string
		ctx  context.Context
		role domain.Role
		want codes.Code
	}{
		{"missing header", context.Background(), domain.RoleProvider, codes.Unauthenticated},
		{"unknown user", asUser("ghost"), domain.RoleProvider, codes.Unauthenticated},
		{"wrong role", asUser("c1"), domain.RoleProvider, codes.PermissionDenied},
		{"matching role", asUser("p1"), domain.RoleProvider, codes.OK},
		{"admin", asUser("a1"), domain.RoleClient, codes.OK},
		{"no role required", asUser("ghost"), "", codes.OK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := caller(tt.ctx, users, tt.role)
			if got := status.Code(err); got != tt.want {
				t.Fatalf("code = %s, want %s (err %v)", got, tt.want, err)
			}
		})
	}
}

func TestCaller_ResolverFailureIsUnavailable(t *testing.T) {
	users := &fakeResolver{resolveFn: func(ctx context.Context, id string) (domain.User, error) {
		return domain.User{}, errors.New("directory down")
	}}
	_, err := caller(asUser("p1"), users, domain.RoleProvider)
	if status.Code(err) != codes.Unavailable {
		t.Fatalf("code = %s, want Unavailable", status.Code(err))
	}
}

func TestRequestIDInterceptor_KeepsCallerID(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs(RequestIDHeader, " req-1 "))

	var seen string
	_, err := RequestIDInterceptor()(ctx, nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		seen = RequestID(ctx)
		return nil, nil
	})
	if err != nil {
		t.Fatalf("interceptor error: %v", err)
	}
	if seen != "req-1" {
		t.Fatalf("request id = %q, want req-1", seen)
	}
}

func TestRequestIDInterceptor_GeneratesID(t *testing.T) {
	var seen string
	_, _ = RequestIDInterceptor()(context.Background(), nil, &grpc.UnaryServerInfo{}, func(ctx context.Context, req any) (any, error) {
		seen = RequestID(ctx)
		return nil, nil
	})
	if len(seen) != 36 {
		t.Fatalf("generated request id = %q", seen)
	}
}
