package gateway

import "context"

type retriedKey struct{}

// markRetried tags a request context as a one-time retry after a refresh.
func markRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey{}, true)
}

func isRetried(ctx context.Context) bool {
	retried, _ := ctx.Value(retriedKey{}).(bool)
	return retried
}
