package handler

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dtroode/rollcall-server/internal/apierrors"
	"github.com/dtroode/rollcall-server/internal/model"
)

// errorCodeKey is the trailer carrying the stable client-facing error code.
const errorCodeKey = "x-error-code"

func handleError(ctx context.Context, err error) error {
	var apiErr *apierrors.APIError
	if errors.As(err, &apiErr) {
		setErrorCode(ctx, apiErr.Code)
		return status.Error(apiErr.GRPCCode, apiErr.Message)
	}

	switch {
	case errors.Is(err, model.ErrNotFound):
		setErrorCode(ctx, "NOT_FOUND")
		return status.Error(codes.NotFound, "not found")
	default:
		setErrorCode(ctx, "INTERNAL")
		return status.Error(codes.Internal, "internal server error")
	}
}

// setErrorCode fails silently outside a server transport, e.g. in unit tests.
func setErrorCode(ctx context.Context, code string) {
	_ = grpc.SetTrailer(ctx, metadata.Pairs(errorCodeKey, code))
}
