package retry

import "context"

// DoWithResultTyped is a type-safe generic wrapper around Retryer.DoWithResult.
//
//	val, err := retry.DoWithResultTyped(ctx, r, func(ctx context.Context) (bool, error) {
//	    return true, nil
//	})
func DoWithResultTyped[T any](ctx context.Context, r Retryer, fn func(ctx context.Context) (T, error)) (T, error) {
	result, err := r.DoWithResult(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}
