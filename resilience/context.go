package resilience

import "context"

type contextKey int

const (
	keyContextKey contextKey = iota
	operationContextKey
	tokensContextKey
)

// WithKey returns a context carrying the rate limit key for the call.
func WithKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, keyContextKey, key)
}

// KeyFromContext returns the rate limit key, or DefaultKey when none is set.
func KeyFromContext(ctx context.Context) string {
	if key, ok := ctx.Value(keyContextKey).(string); ok && key != "" {
		return key
	}
	return DefaultKey
}

// WithOperation returns a context naming the operation class of the call.
// Breaker groups pick a breaker by this name.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationContextKey, operation)
}

// OperationFromContext returns the operation class, or DefaultOperation.
func OperationFromContext(ctx context.Context) string {
	if op, ok := ctx.Value(operationContextKey).(string); ok && op != "" {
		return op
	}
	return DefaultOperation
}

// WithTokens returns a context carrying the token cost of the call.
func WithTokens(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, tokensContextKey, n)
}

// TokensFromContext returns the token cost of the call, at least 1.
func TokensFromContext(ctx context.Context) int {
	if n, ok := ctx.Value(tokensContextKey).(int); ok && n > 1 {
		return n
	}
	return 1
}
