package grpc

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"appointly/backend/internal/domain"
	"appointly/backend/internal/identity"
)

const (
	UserIDHeader    = "x-user-id"
	RequestIDHeader = "x-request-id"
)

func headerValue(ctx context.Context, key string) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

type requestIDKey struct{}

// RequestID returns the id RequestIDInterceptor attached to ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestIDInterceptor takes x-request-id from the caller, or generates one,
// and echoes it back in the response headers.
func RequestIDInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		id := headerValue(ctx, RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		_ = grpc.SetHeader(ctx, metadata.Pairs(RequestIDHeader, id))
		return handler(context.WithValue(ctx, requestIDKey{}, id), req)
	}
}

// caller resolves the x-user-id of the request. With a nil resolver the id is
// trusted as is and role is not checked.
func caller(ctx context.Context, users identity.Resolver, role domain.Role) (string, error) {
	id := headerValue(ctx, UserIDHeader)
	if id == "" {
		return "", status.Error(codes.Unauthenticated, "x-user-id is required")
	}
	if users == nil || role == "" {
		return id, nil
	}
	u, err := users.ResolveUser(ctx, id)
	if err != nil {
		if errors.Is(err, identity.ErrUnknownUser) {
			return "", status.Error(codes.Unauthenticated, "unknown user")
		}
		return "", status.Error(codes.Unavailable, "identity lookup failed")
	}
	if u.Role != role && u.Role != domain.RoleAdmin {
		return "", status.Errorf(codes.PermissionDenied, "requires role %s", role)
	}
	return id, nil
}

func rpcLogger(ctx context.Context, base *slog.Logger, rpc string) *slog.Logger {
	log := base.With(slog.String("rpc", rpc))
	if id := RequestID(ctx); id != "" {
		log = log.With(slog.String("request_id", id))
	}
	return log
}
