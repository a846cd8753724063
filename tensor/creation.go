package tensor

import (
	"fmt"
	"math/rand"
)

// NewTensor creates a tensor from a backing slice. The data length must match
// the number of elements implied by the shape.
func NewTensor(shape []int, dtype DType, data interface{}) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	t := &Tensor{
		Shape:    append([]int{}, shape...),
		Strides:  calculateStrides(shape),
		DType:    dtype,
		NumElems: calculateNumElements(shape),
	}

	if err := t.setData(data); err != nil {
		return nil, err
	}

	return t, nil
}

func (t *Tensor) setData(data interface{}) error {
	switch t.DType {
	case Float32:
		typed, ok := data.([]float32)
		if !ok {
			return fmt.Errorf("data type mismatch: expected []float32 for dtype %s", t.DType)
		}
		if len(typed) != t.NumElems {
			return fmt.Errorf("data length mismatch: expected %d elements, got %d", t.NumElems, len(typed))
		}
		t.Data = typed
	case Float64:
		typed, ok := data.([]float64)
		if !ok {
			return fmt.Errorf("data type mismatch: expected []float64 for dtype %s", t.DType)
		}
		if len(typed) != t.NumElems {
			return fmt.Errorf("data length mismatch: expected %d elements, got %d", t.NumElems, len(typed))
		}
		t.Data = typed
	default:
		return fmt.Errorf("unsupported dtype: %s", t.DType)
	}
	return nil
}

// SetData replaces the tensor's backing data in place. The replacement must
// have the dtype and element count of the existing tensor.
func (t *Tensor) SetData(data interface{}) error {
	return t.setData(data)
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape []int, dtype DType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	n := calculateNumElements(shape)
	switch dtype {
	case Float32:
		return NewTensor(shape, dtype, make([]float32, n))
	case Float64:
		return NewTensor(shape, dtype, make([]float64, n))
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}

// Ones creates a tensor filled with ones.
func Ones(shape []int, dtype DType) (*Tensor, error) {
	return Full(shape, 1.0, dtype)
}

// Full creates a tensor filled with a constant value.
func Full(shape []int, value float64, dtype DType) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}

	n := calculateNumElements(shape)
	switch dtype {
	case Float32:
		data := make([]float32, n)
		for i := range data {
			data[i] = float32(value)
		}
		return NewTensor(shape, dtype, data)
	case Float64:
		data := make([]float64, n)
		for i := range data {
			data[i] = value
		}
		return NewTensor(shape, dtype, data)
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}

// FromScalar creates a single-element tensor from a float64 value.
func FromScalar(value float64, dtype DType) *Tensor {
	t, _ := Full([]int{1}, value, dtype)
	return t
}

// RandomNormal creates a tensor with values drawn from a normal distribution.
func RandomNormal(shape []int, mean, std float64, dtype DType, rng *rand.Rand) (*Tensor, error) {
	if err := validateShape(shape); err != nil {
		return nil, err
	}
	if rng == nil {
		return nil, fmt.Errorf("random source must not be nil")
	}

	n := calculateNumElements(shape)
	switch dtype {
	case Float32:
		data := make([]float32, n)
		for i := range data {
			data[i] = float32(rng.NormFloat64()*std + mean)
		}
		return NewTensor(shape, dtype, data)
	case Float64:
		data := make([]float64, n)
		for i := range data {
			data[i] = rng.NormFloat64()*std + mean
		}
		return NewTensor(shape, dtype, data)
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", dtype)
	}
}

// Clone returns a deep copy of the tensor. Autograd bookkeeping (creator,
// gradient) is not carried over.
func (t *Tensor) Clone() (*Tensor, error) {
	switch t.DType {
	case Float32:
		data := t.Data.([]float32)
		cloned := make([]float32, len(data))
		copy(cloned, data)
		return NewTensor(t.Shape, t.DType, cloned)
	case Float64:
		data := t.Data.([]float64)
		cloned := make([]float64, len(data))
		copy(cloned, data)
		return NewTensor(t.Shape, t.DType, cloned)
	default:
		return nil, fmt.Errorf("unsupported dtype: %s", t.DType)
	}
}

// ConvertTo changes the tensor's precision in place, preserving identity so
// that optimizer state and parameter lists keyed by pointer stay valid.
func (t *Tensor) ConvertTo(dtype DType) error {
	if t.DType == dtype {
		return nil
	}

	switch {
	case t.DType == Float32 && dtype == Float64:
		src := t.Data.([]float32)
		dst := make([]float64, len(src))
		for i, v := range src {
			dst[i] = float64(v)
		}
		t.Data = dst
	case t.DType == Float64 && dtype == Float32:
		src := t.Data.([]float64)
		dst := make([]float32, len(src))
		for i, v := range src {
			dst[i] = float32(v)
		}
		t.Data = dst
	default:
		return fmt.Errorf("unsupported conversion: %s to %s", t.DType, dtype)
	}

	t.DType = dtype
	if t.grad != nil {
		if err := t.grad.ConvertTo(dtype); err != nil {
			return err
		}
	}
	return nil
}

// Fill overwrites every element with the given value.
func (t *Tensor) Fill(value float64) {
	switch t.DType {
	case Float32:
		data := t.Data.([]float32)
		for i := range data {
			data[i] = float32(value)
		}
	case Float64:
		data := t.Data.([]float64)
		for i := range data {
			data[i] = value
		}
	}
}
