package registry

import (
	"context"
	"fmt"
)

// Model is a predictive model that can be loaded from an artifact location
// and asked for single predictions.
type Model interface {
	Load(ctx context.Context, location string) error
	Predict(ctx context.Context, input any) (Output, error)
}

// BatchPredictor is implemented by models with a native batch path.
type BatchPredictor interface {
	PredictBatch(ctx context.Context, inputs []any) ([]Output, error)
}

// Unloader is implemented by models holding resources that must be released
// when the handle is evicted.
type Unloader interface {
	Unload() error
}

// Factory constructs a fresh, unloaded model.
type Factory func() Model

// Output is the raw result of one prediction.
type Output struct {
	Prediction any
	Confidence *float64
	Metadata   map[string]any
}

// Confidence returns a pointer to c, for building Output literals.
func Confidence(c float64) *float64 {
	return &c
}

// PredictBatch uses the model's native batch path when it has one and falls
// back to PredictSequential otherwise.
func PredictBatch(ctx context.Context, m Model, inputs []any) ([]Output, error) {
	if bp, ok := m.(BatchPredictor); ok {
		return bp.PredictBatch(ctx, inputs)
	}
	return PredictSequential(ctx, m, inputs)
}

// PredictSequential calls Predict once per input, in order. The first error
// aborts the batch.
func PredictSequential(ctx context.Context, m Model, inputs []any) ([]Output, error) {
	out := make([]Output, 0, len(inputs))
	for i, in := range inputs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o, err := m.Predict(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("input %d: %w", i, err)
		}
		out = append(out, o)
	}
	return out, nil
}
