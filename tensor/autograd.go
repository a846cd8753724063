package tensor

import (
	"fmt"
	"math"
)

// reduceGradientToShape reduces a gradient tensor to match the target shape.
// This is needed when broadcasting occurred during the forward pass.
func reduceGradientToShape(grad *Tensor, targetShape []int) (*Tensor, error) {
	if shapesEqual(grad.Shape, targetShape) {
		return grad.Clone()
	}

	// Scalar targets collapse to the total sum.
	if len(targetShape) == 1 && targetShape[0] == 1 {
		return Sum(grad)
	}

	result := grad
	var err error

	// Leading broadcast dimensions are summed away first.
	dimsToSum := len(grad.Shape) - len(targetShape)
	for i := 0; i < dimsToSum; i++ {
		result, err = SumDim(result, 0)
		if err != nil {
			return nil, fmt.Errorf("failed to sum over leading dimension: %v", err)
		}
	}

	// Remaining dimensions broadcast from size 1 are summed in place.
	for i := 0; i < len(targetShape); i++ {
		if i < len(result.Shape) && result.Shape[i] != targetShape[i] && targetShape[i] == 1 {
			summed, err := SumDim(result, i)
			if err != nil {
				return nil, fmt.Errorf("failed to sum over broadcast dimension: %v", err)
			}
			// SumDim drops the dimension; restore it at size 1.
			newShape := make([]int, 0, len(result.Shape))
			newShape = append(newShape, result.Shape[:i]...)
			newShape = append(newShape, 1)
			newShape = append(newShape, result.Shape[i+1:]...)
			result, err = summed.Reshape(newShape)
			if err != nil {
				return nil, fmt.Errorf("failed to restore broadcast dimension: %v", err)
			}
		}
	}

	if !shapesEqual(result.Shape, targetShape) {
		result, err = result.Reshape(targetShape)
		if err != nil {
			return nil, fmt.Errorf("failed to reshape gradient: %v", err)
		}
	}

	return result, nil
}

func mustBinary(t1, t2 *Tensor, name string, fn func(a, b float64) float64) *Tensor {
	result, err := binaryOp(t1, t2, name, fn)
	if err != nil {
		panic(fmt.Sprintf("forward pass failed: %v", err))
	}
	return result
}

func setCreator(result *Tensor, op Operation, inputs ...*Tensor) *Tensor {
	result.creator = op
	for _, in := range inputs {
		if in.requiresGrad {
			result.requiresGrad = true
			break
		}
	}
	return result
}

// AddOp implements the Operation interface for tensor addition.
type AddOp struct {
	inputs []*Tensor
}

func (op *AddOp) Inputs() []*Tensor { return op.inputs }

func (op *AddOp) Forward(inputs ...*Tensor) *Tensor {
	op.inputs = inputs
	result := mustBinary(inputs[0], inputs[1], "add", func(a, b float64) float64 { return a + b })
	return setCreator(result, op, inputs...)
}

func (op *AddOp) Backward(gradOut *Tensor) []*Tensor {
	gradA, err := reduceGradientToShape(gradOut, op.inputs[0].Shape)
	if err != nil {
		panic(fmt.Sprintf("failed to reduce gradient for input A: %v", err))
	}
	gradB, err := reduceGradientToShape(gradOut, op.inputs[1].Shape)
	if err != nil {
		panic(fmt.Sprintf("failed to reduce gradient for input B: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

// SubOp implements the Operation interface for tensor subtraction.
type SubOp struct {
	inputs []*Tensor
}

func (op *SubOp) Inputs() []*Tensor { return op.inputs }

func (op *SubOp) Forward(inputs ...*Tensor) *Tensor {
	op.inputs = inputs
	result := mustBinary(inputs[0], inputs[1], "sub", func(a, b float64) float64 { return a - b })
	return setCreator(result, op, inputs...)
}

func (op *SubOp) Backward(gradOut *Tensor) []*Tensor {
	gradA, err := reduceGradientToShape(gradOut, op.inputs[0].Shape)
	if err != nil {
		panic(fmt.Sprintf("failed to reduce gradient for input A: %v", err))
	}

	negGrad, err := Neg(gradOut)
	if err != nil {
		panic(fmt.Sprintf("failed to negate gradient: %v", err))
	}
	gradB, err := reduceGradientToShape(negGrad, op.inputs[1].Shape)
	if err != nil {
		panic(fmt.Sprintf("failed to reduce gradient for input B: %v", err))
	}
	return []*Tensor{gradA, gradB}
}

// MulOp implements the Operation interface for tensor multiplication.
type MulOp struct {
	inputs []*Tensor
}

func (op *MulOp) Inputs() []*Tensor { return op.inputs }

func (op *MulOp) Forward(inputs ...*Tensor) *Tensor {
	op.inputs = inputs
	result := mustBinary(inputs[0], inputs[1], "mul", func(a, b float64) float64 { return a * b })
	return setCreator(result, op, inputs...)
}

func (op *MulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]

	gradAFull, err := Mul(gradOut, b)
	if err != nil {
		panic(fmt.Sprintf("backward pass failed for input A: %v", err))
	}
	gradA, err := reduceGradientToShape(gradAFull, a.Shape)
	if err != nil {
		panic(fmt.Sprintf("failed to reduce gradient for input A: %v", err))
	}

	gradBFull, err := Mul(gradOut, a)
	if err != nil {
		panic(fmt.Sprintf("backward pass failed for input B: %v", err))
	}
	gradB, err := reduceGradientToShape(gradBFull, b.Shape)
	if err != nil {
		panic(fmt.Sprintf("failed to reduce gradient for input B: %v", err))
	}

	return []*Tensor{gradA, gradB}
}

// DivOp implements the Operation interface for tensor division.
type DivOp struct {
	inputs []*Tensor
}

func (op *DivOp) Inputs() []*Tensor { return op.inputs }

func (op *DivOp) Forward(inputs ...*Tensor) *Tensor {
	op.inputs = inputs
	result := mustBinary(inputs[0], inputs[1], "div", func(a, b float64) float64 { return a / b })
	return setCreator(result, op, inputs...)
}

func (op *DivOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]

	// d(a/b)/da = 1/b
	gradAFull, err := Div(gradOut, b)
	if err != nil {
		panic(fmt.Sprintf("backward pass failed for input A: %v", err))
	}
	gradA, err := reduceGradientToShape(gradAFull, a.Shape)
	if err != nil {
		panic(fmt.Sprintf("failed to reduce gradient for input A: %v", err))
	}

	// d(a/b)/db = -a/b^2
	bSquared, err := Mul(b, b)
	if err != nil {
		panic(fmt.Sprintf("backward pass failed for input B: %v", err))
	}
	ratio, err := Div(a, bSquared)
	if err != nil {
		panic(fmt.Sprintf("backward pass failed for input B: %v", err))
	}
	negRatio, err := Neg(ratio)
	if err != nil {
		panic(fmt.Sprintf("backward pass failed for input B: %v", err))
	}
	gradBFull, err := Mul(gradOut, negRatio)
	if err != nil {
		panic(fmt.Sprintf("backward pass failed for input B: %v", err))
	}
	gradB, err := reduceGradientToShape(gradBFull, b.Shape)
	if err != nil {
		panic(fmt.Sprintf("failed to reduce gradient for input B: %v", err))
	}

	return []*Tensor{gradA, gradB}
}

// MatMulOp implements the Operation interface for matrix multiplication.
type MatMulOp struct {
	inputs []*Tensor
}

func (op *MatMulOp) Inputs() []*Tensor { return op.inputs }

func (op *MatMulOp) Forward(inputs ...*Tensor) *Tensor {
	op.inputs = inputs
	result, err := MatMul(inputs[0], inputs[1])
	if err != nil {
		panic(fmt.Sprintf("forward pass failed: %v", err))
	}
	return setCreator(result, op, inputs...)
}

func (op *MatMulOp) Backward(gradOut *Tensor) []*Tensor {
	a, b := op.inputs[0], op.inputs[1]

	// d(A @ B)/dA = gradOut @ B^T, d(A @ B)/dB = A^T @ gradOut
	bT, err := Transpose(b)
	if err != nil {
		panic(fmt.Sprintf("failed to transpose B: %v", err))
	}
	gradA, err := MatMul(gradOut, bT)
	if err != nil {
		panic(fmt.Sprintf("backward pass failed for input A: %v", err))
	}

	aT, err := Transpose(a)
	if err != nil {
		panic(fmt.Sprintf("failed to transpose A: %v", err))
	}
	gradB, err := MatMul(aT, gradOut)
	if err != nil {
		panic(fmt.Sprintf("backward pass failed for input B: %v", err))
	}

	return []*Tensor{gradA, gradB}
}

// ApplyOp implements the Operation interface for a generic differentiable
// elementwise function. The derivative receives the input and output values
// for each element.
type ApplyOp struct {
	inputs []*Tensor
	output *Tensor
	name   string
	fn     func(x float64) float64
	deriv  func(x, y float64) float64
}

func (op *ApplyOp) Inputs() []*Tensor { return op.inputs }

func (op *ApplyOp) Forward(inputs ...*Tensor) *Tensor {
	op.inputs = inputs
	result, err := Apply(inputs[0], op.name, op.fn)
	if err != nil {
		panic(fmt.Sprintf("forward pass failed: %v", err))
	}
	op.output = result
	return setCreator(result, op, inputs...)
}

func (op *ApplyOp) Backward(gradOut *Tensor) []*Tensor {
	inData := op.inputs[0].Data.([]float64)
	outData := op.output.Data.([]float64)
	gradData := gradOut.Data.([]float64)

	grad := make([]float64, len(gradData))
	for i := range grad {
		grad[i] = gradData[i] * op.deriv(inData[i], outData[i])
	}

	result, err := NewTensor(op.inputs[0].Shape, Float64, grad)
	if err != nil {
		panic(fmt.Sprintf("backward pass failed: %v", err))
	}
	return []*Tensor{result}
}

// SumOp implements the Operation interface for full reduction to a scalar.
type SumOp struct {
	inputs []*Tensor
	mean   bool
}

func (op *SumOp) Inputs() []*Tensor { return op.inputs }

func (op *SumOp) Forward(inputs ...*Tensor) *Tensor {
	op.inputs = inputs
	var result *Tensor
	var err error
	if op.mean {
		result, err = Mean(inputs[0])
	} else {
		result, err = Sum(inputs[0])
	}
	if err != nil {
		panic(fmt.Sprintf("forward pass failed: %v", err))
	}
	return setCreator(result, op, inputs...)
}

func (op *SumOp) Backward(gradOut *Tensor) []*Tensor {
	in := op.inputs[0]
	scale := gradOut.Data.([]float64)[0]
	if op.mean {
		scale /= float64(in.NumElems)
	}

	grad, err := Full(in.Shape, scale, Float64)
	if err != nil {
		panic(fmt.Sprintf("backward pass failed: %v", err))
	}
	return []*Tensor{grad}
}

// SumDimOp implements the Operation interface for a single-dimension sum.
type SumDimOp struct {
	inputs []*Tensor
	dim    int
}

func (op *SumDimOp) Inputs() []*Tensor { return op.inputs }

func (op *SumDimOp) Forward(inputs ...*Tensor) *Tensor {
	op.inputs = inputs
	result, err := SumDim(inputs[0], op.dim)
	if err != nil {
		panic(fmt.Sprintf("forward pass failed: %v", err))
	}
	return setCreator(result, op, inputs...)
}

func (op *SumDimOp) Backward(gradOut *Tensor) []*Tensor {
	in := op.inputs[0]
	grad, err := Zeros(in.Shape, Float64)
	if err != nil {
		panic(fmt.Sprintf("backward pass failed: %v", err))
	}

	gradData := grad.Data.([]float64)
	outGrad := gradOut.Data.([]float64)

	outer := 1
	for i := 0; i < op.dim; i++ {
		outer *= in.Shape[i]
	}
	reduce := in.Shape[op.dim]
	inner := 1
	for i := op.dim + 1; i < len(in.Shape); i++ {
		inner *= in.Shape[i]
	}

	for o := 0; o < outer; o++ {
		for r := 0; r < reduce; r++ {
			base := (o*reduce + r) * inner
			outBase := o * inner
			for i := 0; i < inner; i++ {
				gradData[base+i] = outGrad[outBase+i]
			}
		}
	}

	return []*Tensor{grad}
}

// LogSumExpOp implements the Operation interface for row-wise logsumexp on a
// 2D tensor.
type LogSumExpOp struct {
	inputs []*Tensor
}

func (op *LogSumExpOp) Inputs() []*Tensor { return op.inputs }

func (op *LogSumExpOp) Forward(inputs ...*Tensor) *Tensor {
	op.inputs = inputs
	result, err := LogSumExp(inputs[0])
	if err != nil {
		panic(fmt.Sprintf("forward pass failed: %v", err))
	}
	return setCreator(result, op, inputs...)
}

func (op *LogSumExpOp) Backward(gradOut *Tensor) []*Tensor {
	// d logsumexp(x)/dx_j = softmax(x)_j per row.
	soft, err := Softmax(op.inputs[0])
	if err != nil {
		panic(fmt.Sprintf("backward pass failed: %v", err))
	}

	rows, cols := op.inputs[0].Shape[0], op.inputs[0].Shape[1]
	softData := soft.Data.([]float64)
	outGrad := gradOut.Data.([]float64)
	grad := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			grad[i*cols+j] = softData[i*cols+j] * outGrad[i]
		}
	}

	result, err := NewTensor(op.inputs[0].Shape, Float64, grad)
	if err != nil {
		panic(fmt.Sprintf("backward pass failed: %v", err))
	}
	return []*Tensor{result}
}

// LogSoftmaxOp implements the Operation interface for row-wise log-softmax on
// a 2D tensor.
type LogSoftmaxOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *LogSoftmaxOp) Inputs() []*Tensor { return op.inputs }

func (op *LogSoftmaxOp) Forward(inputs ...*Tensor) *Tensor {
	op.inputs = inputs
	result, err := LogSoftmax(inputs[0])
	if err != nil {
		panic(fmt.Sprintf("forward pass failed: %v", err))
	}
	op.output = result
	return setCreator(result, op, inputs...)
}

func (op *LogSoftmaxOp) Backward(gradOut *Tensor) []*Tensor {
	// d logsoftmax(x)_j/dx_k = delta_jk - softmax(x)_k, so the input gradient
	// is g - softmax(x) * rowsum(g).
	rows, cols := op.inputs[0].Shape[0], op.inputs[0].Shape[1]
	outData := op.output.Data.([]float64)
	outGrad := gradOut.Data.([]float64)
	grad := make([]float64, rows*cols)

	for i := 0; i < rows; i++ {
		var rowSum float64
		for j := 0; j < cols; j++ {
			rowSum += outGrad[i*cols+j]
		}
		for j := 0; j < cols; j++ {
			grad[i*cols+j] = outGrad[i*cols+j] - math.Exp(outData[i*cols+j])*rowSum
		}
	}

	result, err := NewTensor(op.inputs[0].Shape, Float64, grad)
	if err != nil {
		panic(fmt.Sprintf("backward pass failed: %v", err))
	}
	return []*Tensor{result}
}

// SoftmaxOp implements the Operation interface for row-wise softmax on a 2D
// tensor.
type SoftmaxOp struct {
	inputs []*Tensor
	output *Tensor
}

func (op *SoftmaxOp) Inputs() []*Tensor { return op.inputs }

func (op *SoftmaxOp) Forward(inputs ...*Tensor) *Tensor {
	op.inputs = inputs
	result, err := Softmax(inputs[0])
	if err != nil {
		panic(fmt.Sprintf("forward pass failed: %v", err))
	}
	op.output = result
	return setCreator(result, op, inputs...)
}

func (op *SoftmaxOp) Backward(gradOut *Tensor) []*Tensor {
	// Input gradient is y * (g - rowsum(g * y)).
	rows, cols := op.inputs[0].Shape[0], op.inputs[0].Shape[1]
	outData := op.output.Data.([]float64)
	outGrad := gradOut.Data.([]float64)
	grad := make([]float64, rows*cols)

	for i := 0; i < rows; i++ {
		var dot float64
		for j := 0; j < cols; j++ {
			dot += outGrad[i*cols+j] * outData[i*cols+j]
		}
		for j := 0; j < cols; j++ {
			grad[i*cols+j] = outData[i*cols+j] * (outGrad[i*cols+j] - dot)
		}
	}

	result, err := NewTensor(op.inputs[0].Shape, Float64, grad)
	if err != nil {
		panic(fmt.Sprintf("backward pass failed: %v", err))
	}
	return []*Tensor{result}
}

// ReshapeOp implements the Operation interface for shape changes, routing
// gradients back to the input's shape.
type ReshapeOp struct {
	inputs []*Tensor
	shape  []int
}

func (op *ReshapeOp) Inputs() []*Tensor { return op.inputs }

func (op *ReshapeOp) Forward(inputs ...*Tensor) *Tensor {
	op.inputs = inputs
	view, err := inputs[0].Reshape(op.shape)
	if err != nil {
		panic(fmt.Sprintf("forward pass failed: %v", err))
	}
	// The view shares data with the input; clone so backward sees a distinct
	// node in the graph.
	result, err := view.Clone()
	if err != nil {
		panic(fmt.Sprintf("forward pass failed: %v", err))
	}
	return setCreator(result, op, inputs...)
}

func (op *ReshapeOp) Backward(gradOut *Tensor) []*Tensor {
	grad, err := gradOut.Reshape(op.inputs[0].Shape)
	if err != nil {
		panic(fmt.Sprintf("backward pass failed: %v", err))
	}
	cloned, err := grad.Clone()
	if err != nil {
		panic(fmt.Sprintf("backward pass failed: %v", err))
	}
	return []*Tensor{cloned}
}

// High-level autograd functions that create and execute operations.

// ReshapeAutograd changes a tensor's shape with automatic differentiation.
func ReshapeAutograd(a *Tensor, shape []int) *Tensor {
	op := &ReshapeOp{shape: append([]int{}, shape...)}
	return op.Forward(a)
}

// AddAutograd performs addition with automatic differentiation.
func AddAutograd(a, b *Tensor) *Tensor {
	op := &AddOp{}
	return op.Forward(a, b)
}

// SubAutograd performs subtraction with automatic differentiation.
func SubAutograd(a, b *Tensor) *Tensor {
	op := &SubOp{}
	return op.Forward(a, b)
}

// MulAutograd performs multiplication with automatic differentiation.
func MulAutograd(a, b *Tensor) *Tensor {
	op := &MulOp{}
	return op.Forward(a, b)
}

// DivAutograd performs division with automatic differentiation.
func DivAutograd(a, b *Tensor) *Tensor {
	op := &DivOp{}
	return op.Forward(a, b)
}

// MatMulAutograd performs matrix multiplication with automatic differentiation.
func MatMulAutograd(a, b *Tensor) *Tensor {
	op := &MatMulOp{}
	return op.Forward(a, b)
}

// ApplyAutograd applies an arbitrary differentiable elementwise function. The
// derivative receives the input and output value for each element.
func ApplyAutograd(a *Tensor, name string, fn func(x float64) float64, deriv func(x, y float64) float64) *Tensor {
	op := &ApplyOp{name: name, fn: fn, deriv: deriv}
	return op.Forward(a)
}

// ExpAutograd computes the elementwise exponential with automatic differentiation.
func ExpAutograd(a *Tensor) *Tensor {
	return ApplyAutograd(a, "exp", math.Exp, func(x, y float64) float64 { return y })
}

// LogAutograd computes the elementwise natural logarithm with automatic differentiation.
func LogAutograd(a *Tensor) *Tensor {
	return ApplyAutograd(a, "log", math.Log, func(x, y float64) float64 { return 1 / x })
}

// NegAutograd negates a tensor with automatic differentiation.
func NegAutograd(a *Tensor) *Tensor {
	return ApplyAutograd(a, "neg",
		func(x float64) float64 { return -x },
		func(x, y float64) float64 { return -1 })
}

// TanhAutograd computes the elementwise hyperbolic tangent with automatic differentiation.
func TanhAutograd(a *Tensor) *Tensor {
	return ApplyAutograd(a, "tanh", math.Tanh, func(x, y float64) float64 { return 1 - y*y })
}

// ReLUAutograd computes the elementwise rectified linear unit with automatic differentiation.
func ReLUAutograd(a *Tensor) *Tensor {
	return ApplyAutograd(a, "relu",
		func(x float64) float64 {
			if x < 0 {
				return 0
			}
			return x
		},
		func(x, y float64) float64 {
			if x <= 0 {
				return 0
			}
			return 1
		})
}

// SumAutograd reduces a tensor to its scalar sum with automatic differentiation.
func SumAutograd(a *Tensor) *Tensor {
	op := &SumOp{}
	return op.Forward(a)
}

// MeanAutograd reduces a tensor to its scalar mean with automatic differentiation.
func MeanAutograd(a *Tensor) *Tensor {
	op := &SumOp{mean: true}
	return op.Forward(a)
}

// SumDimAutograd sums over one dimension with automatic differentiation.
func SumDimAutograd(a *Tensor, dim int) *Tensor {
	op := &SumDimOp{dim: dim}
	return op.Forward(a)
}

// LogSumExpAutograd computes row-wise logsumexp with automatic differentiation.
func LogSumExpAutograd(a *Tensor) *Tensor {
	op := &LogSumExpOp{}
	return op.Forward(a)
}

// LogSoftmaxAutograd computes row-wise log-softmax with automatic differentiation.
func LogSoftmaxAutograd(a *Tensor) *Tensor {
	op := &LogSoftmaxOp{}
	return op.Forward(a)
}

// SoftmaxAutograd computes row-wise softmax with automatic differentiation.
func SoftmaxAutograd(a *Tensor) *Tensor {
	op := &SoftmaxOp{}
	return op.Forward(a)
}

// Backward runs reverse-mode differentiation from a scalar tensor, populating
// the grad field of every tensor in the graph that requires gradients.
func (t *Tensor) Backward() error {
	if t.NumElems != 1 {
		return fmt.Errorf("backward requires a single-element tensor, got shape %v", t.Shape)
	}
	if t.DType != Float64 {
		return fmt.Errorf("backward only supports Float64 tensors, got %s", t.DType)
	}

	// Topological order over the creator graph; gradients are fully
	// accumulated at a node before flowing into its inputs.
	var order []*Tensor
	visited := make(map[*Tensor]bool)
	var build func(n *Tensor)
	build = func(n *Tensor) {
		if visited[n] || !n.requiresGrad {
			return
		}
		visited[n] = true
		if n.creator != nil {
			for _, in := range n.creator.Inputs() {
				build(in)
			}
		}
		order = append(order, n)
	}
	build(t)

	seed, err := Ones([]int{1}, Float64)
	if err != nil {
		return err
	}
	t.grad = seed

	for i := len(order) - 1; i >= 0; i-- {
		node := order[i]
		if node.creator == nil || node.grad == nil {
			continue
		}

		grads := node.creator.Backward(node.grad)
		inputs := node.creator.Inputs()
		for j, in := range inputs {
			if !in.requiresGrad {
				continue
			}
			if err := accumulateGrad(in, grads[j]); err != nil {
				return fmt.Errorf("gradient accumulation failed: %v", err)
			}
		}
	}

	return nil
}

func accumulateGrad(t, grad *Tensor) error {
	if t.grad == nil {
		cloned, err := grad.Clone()
		if err != nil {
			return err
		}
		t.grad = cloned
		return nil
	}

	sum, err := Add(t.grad, grad)
	if err != nil {
		return err
	}
	t.grad = sum
	return nil
}

// ZeroGrad resets gradients to zero for all given tensors.
func ZeroGrad(tensors []*Tensor) {
	for _, t := range tensors {
		if t.requiresGrad && t.grad != nil {
			switch t.grad.DType {
			case Float32:
				data := t.grad.Data.([]float32)
				for i := range data {
					data[i] = 0
				}
			case Float64:
				data := t.grad.Data.([]float64)
				for i := range data {
					data[i] = 0
				}
			}
		}
	}
}
