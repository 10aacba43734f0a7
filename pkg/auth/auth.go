package auth

import "context"

// Principal is the authenticated caller.
type Principal struct {
	ID    string
	Name  string
	Email string
	Role  string
}

type ctxKey struct{}

func SetAuthContext(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(Principal)
	return p, ok
}
