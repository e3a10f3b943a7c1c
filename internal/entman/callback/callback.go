// Package callback provides the side effects the gate triggers after a
// successful access decision, e.g. opening a door.
package callback

import "context"

// Callback is invoked once per granted access, after the decision has been
// recorded. It receives no information about the access itself.
type Callback interface {
	Call(ctx context.Context) error
}

// Func adapts a plain function to Callback.
type Func func(ctx context.Context) error

func (f Func) Call(ctx context.Context) error { return f(ctx) }

// Nop does nothing and never fails.
type Nop struct{}

func (Nop) Call(context.Context) error { return nil }
