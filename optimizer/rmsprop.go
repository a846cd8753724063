package optimizer

import (
	"math"

	"github.com/kaplanlabs/go-dsm/tensor"
)

// Default RMSProp hyperparameters.
const (
	rmsPropAlpha = 0.99
	rmsPropEps   = 1e-8
)

// RMSProp implements root-mean-square propagated gradient scaling.
type RMSProp struct {
	parameters []*tensor.Tensor
	lr         float64
	alpha      float64
	eps        float64
	squaredAvg map[*tensor.Tensor][]float64 // running average of squared gradients
}

// NewRMSProp creates a new RMSProp optimizer bound to the given parameters.
func NewRMSProp(parameters []*tensor.Tensor, lr float64) *RMSProp {
	return &RMSProp{
		parameters: parameters,
		lr:         lr,
		alpha:      rmsPropAlpha,
		eps:        rmsPropEps,
		squaredAvg: make(map[*tensor.Tensor][]float64),
	}
}

// Step performs a single optimization step, scaling each gradient by the
// root of its running squared average.
func (rms *RMSProp) Step() error {
	for _, param := range rms.parameters {
		data, grad, err := paramData(param)
		if err != nil {
			return err
		}
		if data == nil {
			continue
		}

		avg := rms.squaredAvg[param]
		if avg == nil {
			avg = make([]float64, len(data))
			rms.squaredAvg[param] = avg
		}

		for i := range data {
			g := grad[i]
			avg[i] = rms.alpha*avg[i] + (1.0-rms.alpha)*g*g
			data[i] -= rms.lr * g / (math.Sqrt(avg[i]) + rms.eps)
		}
	}
	return nil
}

// ZeroGrad resets gradients to zero for all parameters.
func (rms *RMSProp) ZeroGrad() {
	tensor.ZeroGrad(rms.parameters)
}

// GetLR returns the current learning rate.
func (rms *RMSProp) GetLR() float64 {
	return rms.lr
}

// SetLR sets the learning rate.
func (rms *RMSProp) SetLR(lr float64) {
	rms.lr = lr
}
