package lookup

import (
	"context"
	"log/slog"
	"sync"
)

// Result is the outcome of one upstream call whose failure is tolerated.
type Result[T any] struct {
	Value T
	Err   error
}

// Or returns the value if the call succeeded, and fallback otherwise.
func (r Result[T]) Or(fallback T) T {
	if r.Err != nil {
		return fallback
	}
	return r.Value
}

// attempt runs fn and captures its outcome.
func attempt[T any](ctx context.Context, fn func(context.Context) (T, error)) Result[T] {
	v, err := fn(ctx)
	return Result[T]{Value: v, Err: err}
}

// spawn runs fn on its own goroutine. The result may only be read after wg.Wait().
func spawn[T any](ctx context.Context, wg *sync.WaitGroup, fn func(context.Context) (T, error)) *Result[T] {
	var r Result[T]
	wg.Add(1)
	go func() {
		defer wg.Done()
		r = attempt(ctx, fn)
	}()
	return &r
}

// absorb applies the best-effort policy: a failed call is logged as a
// warning and replaced by fallback.
func absorb[T any](logger *slog.Logger, what string, r Result[T], fallback T) T {
	if r.Err != nil {
		logger.Warn("best-effort upstream call failed", "call", what, "err", r.Err)
		bestEffortFailures.WithLabelValues(what).Inc()
	}
	return r.Or(fallback)
}
