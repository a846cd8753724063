package tensor

import (
	"fmt"
	"math"
)

// Sum reduces all elements to a single-element tensor.
func Sum(t *Tensor) (*Tensor, error) {
	if err := checkFloat64(t, "sum"); err != nil {
		return nil, err
	}

	data := t.Data.([]float64)
	var sum float64
	for _, v := range data {
		sum += v
	}
	return NewTensor([]int{1}, Float64, []float64{sum})
}

// Mean reduces all elements to their arithmetic mean.
func Mean(t *Tensor) (*Tensor, error) {
	s, err := Sum(t)
	if err != nil {
		return nil, err
	}
	s.Data.([]float64)[0] /= float64(t.NumElems)
	return s, nil
}

// SumDim sums a tensor over one dimension, dropping it from the shape. A
// reduction that would leave no dimensions produces a single-element tensor.
func SumDim(t *Tensor, dim int) (*Tensor, error) {
	if err := checkFloat64(t, "sumdim"); err != nil {
		return nil, err
	}
	if dim < 0 || dim >= len(t.Shape) {
		return nil, fmt.Errorf("dimension %d out of bounds for tensor with %d dimensions", dim, len(t.Shape))
	}

	outputShape := make([]int, 0, len(t.Shape)-1)
	for i, size := range t.Shape {
		if i != dim {
			outputShape = append(outputShape, size)
		}
	}
	if len(outputShape) == 0 {
		return Sum(t)
	}

	result, err := Zeros(outputShape, Float64)
	if err != nil {
		return nil, err
	}

	inputData := t.Data.([]float64)
	outputData := result.Data.([]float64)
	outer := 1
	for i := 0; i < dim; i++ {
		outer *= t.Shape[i]
	}
	reduce := t.Shape[dim]
	inner := 1
	for i := dim + 1; i < len(t.Shape); i++ {
		inner *= t.Shape[i]
	}

	for o := 0; o < outer; o++ {
		for r := 0; r < reduce; r++ {
			base := (o*reduce + r) * inner
			outBase := o * inner
			for i := 0; i < inner; i++ {
				outputData[outBase+i] += inputData[base+i]
			}
		}
	}

	return result, nil
}

func checkRows(t *Tensor, op string) (int, int, error) {
	if err := checkFloat64(t, op); err != nil {
		return 0, 0, err
	}
	if len(t.Shape) != 2 {
		return 0, 0, fmt.Errorf("%s requires a 2D tensor, got shape %v", op, t.Shape)
	}
	return t.Shape[0], t.Shape[1], nil
}

// LogSumExp computes log(sum(exp(x))) over the second dimension of a 2D
// tensor, producing a 1D tensor with one entry per row. Rows are stabilized
// by their maximum before exponentiation.
func LogSumExp(t *Tensor) (*Tensor, error) {
	rows, cols, err := checkRows(t, "logsumexp")
	if err != nil {
		return nil, err
	}

	data := t.Data.([]float64)
	result := make([]float64, rows)
	for i := 0; i < rows; i++ {
		offset := i * cols
		maxVal := data[offset]
		for j := 1; j < cols; j++ {
			if data[offset+j] > maxVal {
				maxVal = data[offset+j]
			}
		}
		var sum float64
		for j := 0; j < cols; j++ {
			sum += math.Exp(data[offset+j] - maxVal)
		}
		result[i] = maxVal + math.Log(sum)
	}

	return NewTensor([]int{rows}, Float64, result)
}

// Softmax normalizes each row of a 2D tensor into a probability distribution.
func Softmax(t *Tensor) (*Tensor, error) {
	rows, cols, err := checkRows(t, "softmax")
	if err != nil {
		return nil, err
	}

	data := t.Data.([]float64)
	result := make([]float64, len(data))
	for i := 0; i < rows; i++ {
		offset := i * cols
		maxVal := data[offset]
		for j := 1; j < cols; j++ {
			if data[offset+j] > maxVal {
				maxVal = data[offset+j]
			}
		}
		var sum float64
		for j := 0; j < cols; j++ {
			e := math.Exp(data[offset+j] - maxVal)
			result[offset+j] = e
			sum += e
		}
		for j := 0; j < cols; j++ {
			result[offset+j] /= sum
		}
	}

	return NewTensor(t.Shape, Float64, result)
}

// LogSoftmax computes the log of Softmax row-wise on a 2D tensor.
func LogSoftmax(t *Tensor) (*Tensor, error) {
	lse, err := LogSumExp(t)
	if err != nil {
		return nil, err
	}

	rows, cols := t.Shape[0], t.Shape[1]
	data := t.Data.([]float64)
	lseData := lse.Data.([]float64)
	result := make([]float64, len(data))
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			result[i*cols+j] = data[i*cols+j] - lseData[i]
		}
	}

	return NewTensor(t.Shape, Float64, result)
}
