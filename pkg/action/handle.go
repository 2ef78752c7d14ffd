package action

import (
	"context"
	"fmt"
)

// Reply is what a handler returns on success. A zero Code means 200.
// Handlers may set a 4xx/5xx Code to report a business failure without
// returning an error.
type Reply struct {
	Code    int
	Message string
	Value   any
}

// Ok returns a successful reply carrying value.
func Ok(v any) Reply {
	return Reply{Value: v}
}

// OkMessage returns a successful reply with a message.
func OkMessage(v any, message string) Reply {
	return Reply{Value: v, Message: message}
}

// Fail returns a failed reply with the given code.
func Fail(code int, message string) Reply {
	return Reply{Code: code, Message: message}
}

// Args are converted call arguments in declaration order.
type Args []any

// Fields are converted object fields keyed by name.
type Fields map[string]any

// Arg returns args[i] as T.
func Arg[T any](args Args, i int) (T, error) {
	var zero T
	if i < 0 || i >= len(args) {
		return zero, fmt.Errorf("argument %d out of range (%d arguments)", i, len(args))
	}
	if args[i] == nil {
		return zero, nil
	}
	v, ok := args[i].(T)
	if !ok {
		return zero, fmt.Errorf("argument %d: expected %T, got %T", i, zero, args[i])
	}
	return v, nil
}

// Field returns f[name] as T. A missing field yields T's zero value.
func Field[T any](f Fields, name string) (T, error) {
	var zero T
	raw, ok := f[name]
	if !ok || raw == nil {
		return zero, nil
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("field %q: expected %T, got %T", name, zero, raw)
	}
	return v, nil
}

// Handler runs an action with converted arguments.
type Handler func(ctx context.Context, args Args) (Reply, error)

// Handle binds a handler to the number of arguments it unpacks. The
// registry rejects a handle whose Arity differs from the declared
// parameter count.
type Handle struct {
	Arity int
	Fn    Handler
}

// Bind wraps an untyped handler.
func Bind(arity int, fn Handler) Handle {
	return Handle{Arity: arity, Fn: fn}
}

// Call checks the argument count and runs the handler.
func (h Handle) Call(ctx context.Context, args Args) (Reply, error) {
	if h.Fn == nil {
		return Reply{}, fmt.Errorf("handle has no function")
	}
	if len(args) != h.Arity {
		return Reply{}, fmt.Errorf("expected %d arguments, got %d", h.Arity, len(args))
	}
	return h.Fn(ctx, args)
}

// Func0 adapts a handler without parameters.
func Func0(fn func(ctx context.Context) (Reply, error)) Handle {
	return Bind(0, func(ctx context.Context, _ Args) (Reply, error) {
		return fn(ctx)
	})
}

// Func1 adapts a handler with one typed parameter.
func Func1[A any](fn func(ctx context.Context, a A) (Reply, error)) Handle {
	return Bind(1, func(ctx context.Context, args Args) (Reply, error) {
		a, err := Arg[A](args, 0)
		if err != nil {
			return Reply{}, err
		}
		return fn(ctx, a)
	})
}

// Func2 adapts a handler with two typed parameters.
func Func2[A, B any](fn func(ctx context.Context, a A, b B) (Reply, error)) Handle {
	return Bind(2, func(ctx context.Context, args Args) (Reply, error) {
		a, err := Arg[A](args, 0)
		if err != nil {
			return Reply{}, err
		}
		b, err := Arg[B](args, 1)
		if err != nil {
			return Reply{}, err
		}
		return fn(ctx, a, b)
	})
}

// Func3 adapts a handler with three typed parameters.
func Func3[A, B, C any](fn func(ctx context.Context, a A, b B, c C) (Reply, error)) Handle {
	return Bind(3, func(ctx context.Context, args Args) (Reply, error) {
		a, err := Arg[A](args, 0)
		if err != nil {
			return Reply{}, err
		}
		b, err := Arg[B](args, 1)
		if err != nil {
			return Reply{}, err
		}
		c, err := Arg[C](args, 2)
		if err != nil {
			return Reply{}, err
		}
		return fn(ctx, a, b, c)
	})
}

// Func4 adapts a handler with four typed parameters.
func Func4[A, B, C, D any](fn func(ctx context.Context, a A, b B, c C, d D) (Reply, error)) Handle {
	return Bind(4, func(ctx context.Context, args Args) (Reply, error) {
		a, err := Arg[A](args, 0)
		if err != nil {
			return Reply{}, err
		}
		b, err := Arg[B](args, 1)
		if err != nil {
			return Reply{}, err
		}
		c, err := Arg[C](args, 2)
		if err != nil {
			return Reply{}, err
		}
		d, err := Arg[D](args, 3)
		if err != nil {
			return Reply{}, err
		}
		return fn(ctx, a, b, c, d)
	})
}
