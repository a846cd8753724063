package tensor

import (
	"fmt"
	"math"
)

// Reshape returns a tensor with a new shape sharing the same backing data.
// The result is a plain view: autograd bookkeeping is not carried over. Use
// ReshapeAutograd when gradients must flow through the reshape.
func (t *Tensor) Reshape(newShape []int) (*Tensor, error) {
	if err := validateShape(newShape); err != nil {
		return nil, err
	}
	if calculateNumElements(newShape) != t.NumElems {
		return nil, fmt.Errorf("cannot reshape tensor with %d elements to shape %v", t.NumElems, newShape)
	}

	reshaped := &Tensor{
		Shape:    append([]int{}, newShape...),
		Strides:  calculateStrides(newShape),
		DType:    t.DType,
		Data:     t.Data,
		NumElems: t.NumElems,
	}
	return reshaped, nil
}

// Flatten returns a 1D view of the tensor.
func (t *Tensor) Flatten() (*Tensor, error) {
	return t.Reshape([]int{t.NumElems})
}

// Item returns the value of a single-element tensor as float64.
func (t *Tensor) Item() (float64, error) {
	if t.NumElems != 1 {
		return 0, fmt.Errorf("item requires a single-element tensor, got %d elements", t.NumElems)
	}
	return t.at(0)
}

// At returns the element at the given coordinates as float64.
func (t *Tensor) At(indices ...int) (float64, error) {
	if len(indices) != len(t.Shape) {
		return 0, fmt.Errorf("expected %d indices, got %d", len(t.Shape), len(indices))
	}

	flat := 0
	for i, idx := range indices {
		if idx < 0 || idx >= t.Shape[i] {
			return 0, fmt.Errorf("index %d out of range [0, %d) for dimension %d", idx, t.Shape[i], i)
		}
		flat += idx * t.Strides[i]
	}
	return t.at(flat)
}

func (t *Tensor) at(flat int) (float64, error) {
	switch t.DType {
	case Float32:
		return float64(t.Data.([]float32)[flat]), nil
	case Float64:
		return t.Data.([]float64)[flat], nil
	default:
		return 0, fmt.Errorf("unsupported dtype: %s", t.DType)
	}
}

// Float64Data returns the backing slice of a Float64 tensor.
func (t *Tensor) Float64Data() ([]float64, error) {
	if t.DType != Float64 {
		return nil, fmt.Errorf("tensor has dtype %s, not Float64", t.DType)
	}
	return t.Data.([]float64), nil
}

// SliceRows copies rows [start, end) along the first dimension into a new
// tensor. The range must be non-empty; callers partitioning data into batches
// are responsible for skipping empty slices.
func SliceRows(t *Tensor, start, end int) (*Tensor, error) {
	if len(t.Shape) == 0 {
		return nil, fmt.Errorf("cannot slice a tensor with no dimensions")
	}
	n := t.Shape[0]
	if start < 0 || end > n || start >= end {
		return nil, fmt.Errorf("invalid row range [%d, %d) for %d rows", start, end, n)
	}

	rowSize := t.NumElems / n
	newShape := append([]int{end - start}, t.Shape[1:]...)

	switch t.DType {
	case Float32:
		data := t.Data.([]float32)
		sliced := make([]float32, (end-start)*rowSize)
		copy(sliced, data[start*rowSize:end*rowSize])
		return NewTensor(newShape, t.DType, sliced)
	case Float64:
		data := t.Data.([]float64)
		sliced := make([]float64, (end-start)*rowSize)
		copy(sliced, data[start*rowSize:end*rowSize])
		return NewTensor(newShape, t.DType, sliced)
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", t.DType)
	}
}

// Equal reports whether two tensors have identical shape, dtype and values.
// NaN entries are considered equal to each other so padded tensors compare
// predictably.
func (t *Tensor) Equal(other *Tensor) bool {
	if t.DType != other.DType || !shapesEqual(t.Shape, other.Shape) {
		return false
	}

	for i := 0; i < t.NumElems; i++ {
		a, _ := t.at(i)
		b, _ := other.at(i)
		if math.IsNaN(a) && math.IsNaN(b) {
			continue
		}
		if a != b {
			return false
		}
	}
	return true
}
