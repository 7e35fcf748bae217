package auth

import (
	"context"

	"roomres/pkg/model"
)

type callerKey struct{}

func WithCaller(ctx context.Context, caller *model.Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFromContext returns the authenticated caller, or nil when the request
// carried no credentials.
func CallerFromContext(ctx context.Context) *model.Caller {
	caller, _ := ctx.Value(callerKey{}).(*model.Caller)
	return caller
}
