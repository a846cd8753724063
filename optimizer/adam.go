package optimizer

import (
	"math"

	"github.com/kaplanlabs/go-dsm/tensor"
)

// Default Adam hyperparameters.
const (
	adamBeta1 = 0.9
	adamBeta2 = 0.999
	adamEps   = 1e-8
)

// Adam implements adaptive moment estimation.
type Adam struct {
	parameters []*tensor.Tensor
	lr         float64
	beta1      float64
	beta2      float64
	eps        float64
	step       int64
	m          map[*tensor.Tensor][]float64 // first moment estimates
	v          map[*tensor.Tensor][]float64 // second moment estimates
}

// NewAdam creates a new Adam optimizer bound to the given parameters.
func NewAdam(parameters []*tensor.Tensor, lr float64) *Adam {
	return &Adam{
		parameters: parameters,
		lr:         lr,
		beta1:      adamBeta1,
		beta2:      adamBeta2,
		eps:        adamEps,
		m:          make(map[*tensor.Tensor][]float64),
		v:          make(map[*tensor.Tensor][]float64),
	}
}

// Step performs a single optimization step with bias-corrected moment
// estimates.
func (adam *Adam) Step() error {
	adam.step++

	bias1 := 1.0 - math.Pow(adam.beta1, float64(adam.step))
	bias2 := 1.0 - math.Pow(adam.beta2, float64(adam.step))

	for _, param := range adam.parameters {
		data, grad, err := paramData(param)
		if err != nil {
			return err
		}
		if data == nil {
			continue
		}

		m := adam.m[param]
		v := adam.v[param]
		if m == nil {
			m = make([]float64, len(data))
			v = make([]float64, len(data))
			adam.m[param] = m
			adam.v[param] = v
		}

		for i := range data {
			g := grad[i]
			m[i] = adam.beta1*m[i] + (1.0-adam.beta1)*g
			v[i] = adam.beta2*v[i] + (1.0-adam.beta2)*g*g

			mHat := m[i] / bias1
			vHat := v[i] / bias2
			data[i] -= adam.lr * mHat / (math.Sqrt(vHat) + adam.eps)
		}
	}
	return nil
}

// ZeroGrad resets gradients to zero for all parameters.
func (adam *Adam) ZeroGrad() {
	tensor.ZeroGrad(adam.parameters)
}

// GetLR returns the current learning rate.
func (adam *Adam) GetLR() float64 {
	return adam.lr
}

// SetLR sets the learning rate.
func (adam *Adam) SetLR(lr float64) {
	adam.lr = lr
}
