package tensor

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MatMul performs 2D matrix multiplication, delegating the kernel to gonum.
func MatMul(a, b *Tensor) (*Tensor, error) {
	if err := checkFloat64(a, "matmul"); err != nil {
		return nil, err
	}
	if err := checkFloat64(b, "matmul"); err != nil {
		return nil, err
	}
	if len(a.Shape) != 2 || len(b.Shape) != 2 {
		return nil, fmt.Errorf("matmul requires 2D tensors, got shapes %v and %v", a.Shape, b.Shape)
	}
	if a.Shape[1] != b.Shape[0] {
		return nil, fmt.Errorf("matmul dimension mismatch: %v x %v", a.Shape, b.Shape)
	}

	am := mat.NewDense(a.Shape[0], a.Shape[1], a.Data.([]float64))
	bm := mat.NewDense(b.Shape[0], b.Shape[1], b.Data.([]float64))

	var cm mat.Dense
	cm.Mul(am, bm)

	result := make([]float64, a.Shape[0]*b.Shape[1])
	copy(result, cm.RawMatrix().Data)

	return NewTensor([]int{a.Shape[0], b.Shape[1]}, Float64, result)
}

// Transpose swaps the two dimensions of a 2D tensor.
func Transpose(t *Tensor) (*Tensor, error) {
	if err := checkFloat64(t, "transpose"); err != nil {
		return nil, err
	}
	if len(t.Shape) != 2 {
		return nil, fmt.Errorf("transpose requires a 2D tensor, got shape %v", t.Shape)
	}

	rows, cols := t.Shape[0], t.Shape[1]
	data := t.Data.([]float64)
	result := make([]float64, len(data))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			result[j*rows+i] = data[i*cols+j]
		}
	}

	return NewTensor([]int{cols, rows}, Float64, result)
}
