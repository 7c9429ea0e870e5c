package executor

import (
	"context"

	"github.com/viant/podwork/model"
)

// Service runs activations. Activation identity travels in the argument, never
// through process-global state, so concurrent activations on one pod cannot
// observe each other's id.
type Service interface {
	// Execute runs the narrowed job bound to the activation
	Execute(ctx context.Context, activation *model.Activation) error

	// Metadata returns the runtime description published by get_metadata
	Metadata(ctx context.Context) (map[string]interface{}, error)
}

// Func adapts a function to Service; Metadata returns an empty map.
type Func func(ctx context.Context, activation *model.Activation) error

// Execute calls fn
func (fn Func) Execute(ctx context.Context, activation *model.Activation) error {
	if activation == nil || activation.Job == nil {
		return ErrNilActivation
	}
	return fn(ctx, activation)
}

// Metadata returns an empty map
func (fn Func) Metadata(context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{}, nil
}
