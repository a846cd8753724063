package tensor

import (
	"fmt"
)

// BroadcastShapes computes the result shape of broadcasting two shapes
// together, following the usual right-aligned rules: trailing dimensions must
// either match or one of them must be 1.
func BroadcastShapes(shape1, shape2 []int) ([]int, error) {
	maxDims := len(shape1)
	if len(shape2) > maxDims {
		maxDims = len(shape2)
	}

	result := make([]int, maxDims)
	for i := 0; i < maxDims; i++ {
		d1, d2 := 1, 1
		if i < len(shape1) {
			d1 = shape1[len(shape1)-1-i]
		}
		if i < len(shape2) {
			d2 = shape2[len(shape2)-1-i]
		}

		switch {
		case d1 == d2:
			result[maxDims-1-i] = d1
		case d1 == 1:
			result[maxDims-1-i] = d2
		case d2 == 1:
			result[maxDims-1-i] = d1
		default:
			return nil, fmt.Errorf("shapes %v and %v are not broadcastable", shape1, shape2)
		}
	}

	return result, nil
}

// AreBroadcastable reports whether two shapes can be broadcast together.
func AreBroadcastable(shape1, shape2 []int) bool {
	_, err := BroadcastShapes(shape1, shape2)
	return err == nil
}

// BroadcastTensor materializes a tensor broadcast to the target shape.
func BroadcastTensor(t *Tensor, targetShape []int) (*Tensor, error) {
	if shapesEqual(t.Shape, targetShape) {
		return t.Clone()
	}

	broadcast, err := BroadcastShapes(t.Shape, targetShape)
	if err != nil {
		return nil, err
	}
	if !shapesEqual(broadcast, targetShape) {
		return nil, fmt.Errorf("cannot broadcast shape %v to %v", t.Shape, targetShape)
	}

	if t.DType != Float64 {
		return nil, fmt.Errorf("broadcast only supports Float64 tensors, got %s", t.DType)
	}

	result, err := Zeros(targetShape, t.DType)
	if err != nil {
		return nil, err
	}

	src := t.Data.([]float64)
	dst := result.Data.([]float64)

	// Source dimensions are right-aligned against the target; size-1 source
	// dimensions contribute stride 0.
	srcStrides := make([]int, len(targetShape))
	offset := len(targetShape) - len(t.Shape)
	for i := range targetShape {
		srcDim := i - offset
		if srcDim < 0 || t.Shape[srcDim] == 1 {
			srcStrides[i] = 0
		} else {
			srcStrides[i] = t.Strides[srcDim]
		}
	}

	coords := make([]int, len(targetShape))
	for dstIdx := 0; dstIdx < result.NumElems; dstIdx++ {
		srcIdx := 0
		for i := range coords {
			srcIdx += coords[i] * srcStrides[i]
		}
		dst[dstIdx] = src[srcIdx]

		for i := len(coords) - 1; i >= 0; i-- {
			coords[i]++
			if coords[i] < targetShape[i] {
				break
			}
			coords[i] = 0
		}
	}

	return result, nil
}

// BroadcastTensorsForOperation broadcasts both operands to their common shape.
func BroadcastTensorsForOperation(a, b *Tensor) (*Tensor, *Tensor, error) {
	if shapesEqual(a.Shape, b.Shape) {
		return a, b, nil
	}

	targetShape, err := BroadcastShapes(a.Shape, b.Shape)
	if err != nil {
		return nil, nil, err
	}

	aBroadcast := a
	if !shapesEqual(a.Shape, targetShape) {
		aBroadcast, err = BroadcastTensor(a, targetShape)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to broadcast first operand: %v", err)
		}
	}

	bBroadcast := b
	if !shapesEqual(b.Shape, targetShape) {
		bBroadcast, err = BroadcastTensor(b, targetShape)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to broadcast second operand: %v", err)
		}
	}

	return aBroadcast, bBroadcast, nil
}

func shapesEqual(shape1, shape2 []int) bool {
	if len(shape1) != len(shape2) {
		return false
	}
	for i := range shape1 {
		if shape1[i] != shape2[i] {
			return false
		}
	}
	return true
}
