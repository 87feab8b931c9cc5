package fiber

import (
	"context"
)

type fiberContextKey struct{}

func withFiber[I, O any](ctx context.Context, f *Fiber[I, O]) context.Context {
	return context.WithValue(ctx, fiberContextKey{}, f)
}

// FromContext returns the fiber running with ctx, if it has the given
// I/O types.
func FromContext[I, O any](ctx context.Context) (*Fiber[I, O], bool) {
	val, ok := ctx.Value(fiberContextKey{}).(*Fiber[I, O])
	return val, ok
}

// HandleFromContext returns the fiber running with ctx regardless of
// its I/O types.
func HandleFromContext(ctx context.Context) (Handle, bool) {
	val, ok := ctx.Value(fiberContextKey{}).(Handle)
	return val, ok
}

// MustHandleFromContext is HandleFromContext, panicking if ctx carries
// no fiber.
func MustHandleFromContext(ctx context.Context) Handle {
	val, ok := HandleFromContext(ctx)
	if !ok {
		panic("fiber: no fiber in context")
	}
	return val
}
