package grpc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"clubledger-backend/internal/domain"
)

// GetActorFromContext reads the caller injected by the auth interceptor.
func GetActorFromContext(ctx context.Context) (domain.Actor, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return domain.Actor{}, status.Errorf(codes.Unauthenticated, "metadata is not provided")
	}

	first := func(key string) string {
		if v := md.Get(key); len(v) > 0 {
			return v[0]
		}
		return ""
	}

	actor := domain.Actor{
		UserID:    first("user-id"),
		Role:      domain.Role(first("role")),
		TrainerID: first("trainer-id"),
	}
	if actor.UserID == "" {
		return domain.Actor{}, status.Errorf(codes.Unauthenticated, "user_id is not provided in metadata")
	}
	if !actor.Role.Valid() {
		return domain.Actor{}, status.Errorf(codes.Unauthenticated, "invalid role %q in metadata", actor.Role)
	}
	return actor, nil
}
