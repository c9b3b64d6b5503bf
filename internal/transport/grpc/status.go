package grpc

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"appointly/backend/internal/domain"
)

// Code maps a failure kind to the gRPC status code returned to callers.
func Code(err error) codes.Code {
	switch domain.KindOf(err) {
	case domain.KindNotFound, domain.KindProviderNotFound:
		return codes.NotFound
	case domain.KindForbidden:
		return codes.PermissionDenied
	case domain.KindInvalidRange, domain.KindInvalidArgument:
		return codes.InvalidArgument
	case domain.KindSlotUnavailable, domain.KindIllegalTransition, domain.KindIllegalState, domain.KindAlreadyPaid:
		return codes.FailedPrecondition
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	}
	return codes.Internal
}

// statusError logs err at a level matching its code and converts it. Internal
// failures are not echoed to the caller.
func statusError(ctx context.Context, log *slog.Logger, msg string, err error, attrs ...any) error {
	code := Code(err)
	attrs = append(attrs, slog.Any("err", err), slog.String("code", code.String()))
	switch code {
	case codes.Internal:
		log.ErrorContext(ctx, msg+" failed", attrs...)
		return status.Error(codes.Internal, "internal error")
	case codes.InvalidArgument:
		log.WarnContext(ctx, "invalid request", attrs...)
	default:
		log.InfoContext(ctx, msg+" rejected", attrs...)
	}
	return status.Error(code, err.Error())
}
