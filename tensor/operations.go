package tensor

import (
	"fmt"
	"math"
)

func checkFloat64(t *Tensor, op string) error {
	if t.DType != Float64 {
		return fmt.Errorf("%s only supports Float64 tensors, got %s", op, t.DType)
	}
	return nil
}

// binaryOp applies an elementwise function to two tensors, broadcasting them
// to a common shape first.
func binaryOp(t1, t2 *Tensor, name string, fn func(a, b float64) float64) (*Tensor, error) {
	if err := checkFloat64(t1, name); err != nil {
		return nil, err
	}
	if err := checkFloat64(t2, name); err != nil {
		return nil, err
	}

	a, b, err := BroadcastTensorsForOperation(t1, t2)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %v", name, err)
	}

	aData := a.Data.([]float64)
	bData := b.Data.([]float64)
	result := make([]float64, len(aData))
	for i := range result {
		result[i] = fn(aData[i], bData[i])
	}

	return NewTensor(a.Shape, Float64, result)
}

// Add performs elementwise addition with broadcasting.
func Add(t1, t2 *Tensor) (*Tensor, error) {
	return binaryOp(t1, t2, "add", func(a, b float64) float64 { return a + b })
}

// Sub performs elementwise subtraction with broadcasting.
func Sub(t1, t2 *Tensor) (*Tensor, error) {
	return binaryOp(t1, t2, "sub", func(a, b float64) float64 { return a - b })
}

// Mul performs elementwise multiplication with broadcasting.
func Mul(t1, t2 *Tensor) (*Tensor, error) {
	return binaryOp(t1, t2, "mul", func(a, b float64) float64 { return a * b })
}

// Div performs elementwise division with broadcasting.
func Div(t1, t2 *Tensor) (*Tensor, error) {
	return binaryOp(t1, t2, "div", func(a, b float64) float64 { return a / b })
}

// Apply applies an elementwise function to a tensor.
func Apply(t *Tensor, name string, fn func(float64) float64) (*Tensor, error) {
	if err := checkFloat64(t, name); err != nil {
		return nil, err
	}

	data := t.Data.([]float64)
	result := make([]float64, len(data))
	for i, v := range data {
		result[i] = fn(v)
	}

	return NewTensor(t.Shape, Float64, result)
}

// Exp computes the elementwise exponential.
func Exp(t *Tensor) (*Tensor, error) {
	return Apply(t, "exp", math.Exp)
}

// Log computes the elementwise natural logarithm.
func Log(t *Tensor) (*Tensor, error) {
	return Apply(t, "log", math.Log)
}

// Neg negates every element.
func Neg(t *Tensor) (*Tensor, error) {
	return Apply(t, "neg", func(v float64) float64 { return -v })
}

// Sqrt computes the elementwise square root.
func Sqrt(t *Tensor) (*Tensor, error) {
	return Apply(t, "sqrt", math.Sqrt)
}

// Tanh computes the elementwise hyperbolic tangent.
func Tanh(t *Tensor) (*Tensor, error) {
	return Apply(t, "tanh", math.Tanh)
}

// ReLU computes the elementwise rectified linear unit.
func ReLU(t *Tensor) (*Tensor, error) {
	return Apply(t, "relu", func(v float64) float64 {
		if v < 0 {
			return 0
		}
		return v
	})
}
