package optimizer

import (
	"github.com/kaplanlabs/go-dsm/tensor"
)

// SGD implements plain stochastic gradient descent.
type SGD struct {
	parameters   []*tensor.Tensor
	learningRate float64
}

// NewSGD creates a new SGD optimizer bound to the given parameters.
func NewSGD(parameters []*tensor.Tensor, lr float64) *SGD {
	return &SGD{
		parameters:   parameters,
		learningRate: lr,
	}
}

// Step performs a single optimization step: param = param - lr * grad.
func (sgd *SGD) Step() error {
	for _, param := range sgd.parameters {
		data, grad, err := paramData(param)
		if err != nil {
			return err
		}
		if data == nil {
			continue
		}

		for i := range data {
			data[i] -= sgd.learningRate * grad[i]
		}
	}
	return nil
}

// ZeroGrad resets gradients to zero for all parameters.
func (sgd *SGD) ZeroGrad() {
	tensor.ZeroGrad(sgd.parameters)
}

// GetLR returns the current learning rate.
func (sgd *SGD) GetLR() float64 {
	return sgd.learningRate
}

// SetLR sets the learning rate.
func (sgd *SGD) SetLR(lr float64) {
	sgd.learningRate = lr
}
