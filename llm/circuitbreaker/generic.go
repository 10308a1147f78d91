package circuitbreaker

import "context"

// CallWithResultTyped is a type-safe generic wrapper around CircuitBreaker.CallWithResult.
//
//	mem, err := circuitbreaker.CallWithResultTyped(ctx, cb, func(ctx context.Context) (*types.Memory, error) {
//	    return store.GetMemoryByID(ctx, id)
//	})
func CallWithResultTyped[T any](ctx context.Context, cb CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	result, err := cb.CallWithResult(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	if result == nil {
		var zero T
		return zero, nil
	}
	return result.(T), nil
}
