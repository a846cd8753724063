// Package optimizer provides gradient-based optimizers over tensor
// parameters.
package optimizer

import (
	"fmt"

	"github.com/kaplanlabs/go-dsm/tensor"
)

// Optimizer is the interface all optimizers implement.
type Optimizer interface {
	Step() error      // Updates parameters from their accumulated gradients
	ZeroGrad()        // Resets gradients to zero for all parameters
	GetLR() float64   // Gets current learning rate
	SetLR(lr float64) // Sets learning rate
}

// paramData returns the parameter and gradient slices for an update, or nil
// when the parameter has no gradient and should be skipped.
func paramData(param *tensor.Tensor) ([]float64, []float64, error) {
	if !param.RequiresGrad() || param.Grad() == nil {
		return nil, nil, nil
	}
	if param.DType != tensor.Float64 {
		return nil, nil, fmt.Errorf("optimizer only supports Float64 parameters, got %s", param.DType)
	}

	data, err := param.Float64Data()
	if err != nil {
		return nil, nil, err
	}
	grad, err := param.Grad().Float64Data()
	if err != nil {
		return nil, nil, fmt.Errorf("gradient dtype mismatch: %v", err)
	}
	if len(grad) != len(data) {
		return nil, nil, fmt.Errorf("gradient length mismatch: %d vs %d", len(grad), len(data))
	}
	return data, grad, nil
}
