package middleware

import (
	"context"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketcart-backend/pkg/errors"
)

// actor is the authenticated caller as seeded by Auth.
type actor struct {
	userID   string
	role     string
	sellerID string
}

type actorKey struct{}

func actorFrom(ctx context.Context) actor {
	if ctx == nil {
		return actor{}
	}
	a, _ := ctx.Value(actorKey{}).(actor)
	return a
}

func withActor(ctx context.Context, edit func(*actor)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	a := actorFrom(ctx)
	edit(&a)
	return context.WithValue(ctx, actorKey{}, a)
}

func UserIDFromContext(ctx context.Context) string   { return actorFrom(ctx).userID }
func RoleFromContext(ctx context.Context) string     { return actorFrom(ctx).role }
func SellerIDFromContext(ctx context.Context) string { return actorFrom(ctx).sellerID }

func WithUserID(ctx context.Context, userID string) context.Context {
	return withActor(ctx, func(a *actor) { a.userID = userID })
}

func WithRole(ctx context.Context, role string) context.Context {
	return withActor(ctx, func(a *actor) { a.role = role })
}

func WithSellerID(ctx context.Context, sellerID string) context.Context {
	return withActor(ctx, func(a *actor) { a.sellerID = sellerID })
}

// UserUUID parses the authenticated user id.
func UserUUID(ctx context.Context) (uuid.UUID, error) {
	return parseID(UserIDFromContext(ctx), pkgerrors.CodeUnauthorized, "user")
}

// SellerUUID parses the seller id carried by a seller token. Missing or
// malformed ids are forbidden, not unauthorized: the caller did authenticate.
func SellerUUID(ctx context.Context) (uuid.UUID, error) {
	return parseID(SellerIDFromContext(ctx), pkgerrors.CodeForbidden, "seller")
}

func parseID(raw string, code pkgerrors.Code, what string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, pkgerrors.New(code, what+" context missing")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(code, err, "invalid "+what+" id")
	}
	return id, nil
}
