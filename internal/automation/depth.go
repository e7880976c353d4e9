package automation

import "context"

// MaxDepth is how deeply commands may dispatch further commands (state
// hooks, door and sensor commands) before the chain is cut.
const MaxDepth = 8

type depthKey struct{}

// Depth returns the dispatch depth carried by ctx (0 at the top level).
func Depth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int) //nolint:errcheck // zero when unset
	return d
}

// Descend returns a context one level deeper than ctx, or a *LookupError
// wrapping ErrRecursionLimit for name when MaxDepth would be exceeded.
func Descend(ctx context.Context, name string) (context.Context, error) {
	d := Depth(ctx) + 1
	if d > MaxDepth {
		return ctx, &LookupError{Name: normaliseName(name), Err: ErrRecursionLimit}
	}
	return context.WithValue(ctx, depthKey{}, d), nil
}
