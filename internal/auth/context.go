package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxIdentity ctxKey = iota
)

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxIdentity, id)
}

// IdentityFrom returns the authenticated identity stored by the middleware.
func IdentityFrom(ctx context.Context) (Identity, error) {
	v := ctx.Value(ctxIdentity)
	if id, ok := v.(Identity); ok && id.UserID != "" {
		return id, nil
	}
	return Identity{}, errors.New("identity not in context")
}

func UserID(ctx context.Context) (string, error) {
	id, err := IdentityFrom(ctx)
	if err != nil {
		return "", err
	}
	return id.UserID, nil
}

func Role(ctx context.Context) (string, error) {
	id, err := IdentityFrom(ctx)
	if err != nil {
		return "", err
	}
	if id.Role == "" {
		return "", errors.New("role not in context")
	}
	return id.Role, nil
}
