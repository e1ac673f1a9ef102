package handler

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dtroode/apiauth-server/internal/model"
)

func handleError(err error) error {
	switch {
	case errors.Is(err, model.ErrNotFound),
		errors.Is(err, model.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, "invalid refresh token")
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}
