package pipeline

import "context"

// Observer receives every Result after the pipeline reaches done.
// Observers run synchronously on the caller's goroutine and must not retain
// the Result's record without cloning it.
type Observer interface {
	Observe(ctx context.Context, res Result)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, res Result)

// Observe calls f(ctx, res).
func (f ObserverFunc) Observe(ctx context.Context, res Result) {
	f(ctx, res)
}
