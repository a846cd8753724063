package tensor

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/diff/fd"
)

func mustTensor(t *testing.T, shape []int, data []float64) *Tensor {
	t.Helper()
	tt, err := NewTensor(shape, Float64, data)
	if err != nil {
		t.Fatalf("failed to create tensor: %v", err)
	}
	return tt
}

// checkGradients compares analytic gradients of a scalar-valued graph against
// central finite differences. The graph is rebuilt for every probe so the
// builder must be a pure function of its parameters.
func checkGradients(t *testing.T, shapes [][]int, x0 []float64, build func(params []*Tensor) *Tensor) {
	t.Helper()

	makeParams := func(x []float64) []*Tensor {
		params := make([]*Tensor, len(shapes))
		offset := 0
		for i, shape := range shapes {
			n := 1
			for _, d := range shape {
				n *= d
			}
			data := make([]float64, n)
			copy(data, x[offset:offset+n])
			offset += n

			p, err := NewTensor(shape, Float64, data)
			if err != nil {
				t.Fatalf("failed to create parameter %d: %v", i, err)
			}
			p.SetRequiresGrad(true)
			params[i] = p
		}
		return params
	}

	params := makeParams(x0)
	out := build(params)
	if err := out.Backward(); err != nil {
		t.Fatalf("backward pass failed: %v", err)
	}

	numerical := fd.Gradient(nil, func(x []float64) float64 {
		v, err := build(makeParams(x)).Item()
		if err != nil {
			t.Fatalf("forward evaluation failed: %v", err)
		}
		return v
	}, x0, &fd.Settings{Formula: fd.Central})

	offset := 0
	for i, p := range params {
		if p.Grad() == nil {
			t.Fatalf("parameter %d received no gradient", i)
		}
		analytic, err := p.Grad().Float64Data()
		if err != nil {
			t.Fatalf("parameter %d gradient: %v", i, err)
		}
		for j, g := range analytic {
			want := numerical[offset+j]
			if math.Abs(g-want) > 1e-5*(1.0+math.Abs(want)) {
				t.Errorf("parameter %d element %d: analytic gradient %g, numerical %g", i, j, g, want)
			}
		}
		offset += len(analytic)
	}
}

func TestArithmeticGradients(t *testing.T) {
	t.Run("add and mul with broadcasting", func(t *testing.T) {
		checkGradients(t,
			[][]int{{2, 3}, {1, 3}},
			[]float64{0.5, -1.2, 2.0, 0.3, 1.1, -0.7, 0.9, -0.4, 1.6},
			func(params []*Tensor) *Tensor {
				return SumAutograd(MulAutograd(AddAutograd(params[0], params[1]), params[0]))
			})
	})

	t.Run("div", func(t *testing.T) {
		checkGradients(t,
			[][]int{{2, 2}, {2, 2}},
			[]float64{1.0, -2.0, 3.0, 0.5, 2.0, 1.5, -1.0, 4.0},
			func(params []*Tensor) *Tensor {
				return MeanAutograd(DivAutograd(params[0], params[1]))
			})
	})

	t.Run("exp log chain", func(t *testing.T) {
		checkGradients(t,
			[][]int{{3}},
			[]float64{0.2, 1.5, 0.8},
			func(params []*Tensor) *Tensor {
				return SumAutograd(LogAutograd(AddAutograd(ExpAutograd(params[0]), FromScalar(1, Float64))))
			})
	})

	t.Run("tanh", func(t *testing.T) {
		checkGradients(t,
			[][]int{{4}},
			[]float64{-1.0, 0.25, 0.75, 2.0},
			func(params []*Tensor) *Tensor {
				return SumAutograd(TanhAutograd(params[0]))
			})
	})

	t.Run("relu away from kink", func(t *testing.T) {
		checkGradients(t,
			[][]int{{4}},
			[]float64{-1.5, 0.5, 2.0, -0.25},
			func(params []*Tensor) *Tensor {
				return SumAutograd(ReLUAutograd(params[0]))
			})
	})
}

func TestMatMulGradients(t *testing.T) {
	checkGradients(t,
		[][]int{{2, 3}, {3, 2}},
		[]float64{0.1, 0.2, -0.3, 0.4, -0.5, 0.6, 1.0, -1.0, 0.5, 0.25, -0.75, 2.0},
		func(params []*Tensor) *Tensor {
			return SumAutograd(MatMulAutograd(params[0], params[1]))
		})
}

func TestReductionGradients(t *testing.T) {
	t.Run("logsumexp", func(t *testing.T) {
		checkGradients(t,
			[][]int{{2, 3}},
			[]float64{1.0, 2.0, 3.0, -1.0, 0.0, 1.0},
			func(params []*Tensor) *Tensor {
				return SumAutograd(LogSumExpAutograd(params[0]))
			})
	})

	t.Run("logsoftmax", func(t *testing.T) {
		checkGradients(t,
			[][]int{{2, 3}},
			[]float64{0.5, -0.5, 1.5, 2.0, 0.0, -1.0},
			func(params []*Tensor) *Tensor {
				weights := mustTensor(t, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
				return SumAutograd(MulAutograd(LogSoftmaxAutograd(params[0]), weights))
			})
	})

	t.Run("softmax", func(t *testing.T) {
		checkGradients(t,
			[][]int{{2, 3}},
			[]float64{0.5, -0.5, 1.5, 2.0, 0.0, -1.0},
			func(params []*Tensor) *Tensor {
				weights := mustTensor(t, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
				return SumAutograd(MulAutograd(SoftmaxAutograd(params[0]), weights))
			})
	})

	t.Run("sumdim", func(t *testing.T) {
		checkGradients(t,
			[][]int{{2, 3}},
			[]float64{1.0, 2.0, 3.0, 4.0, 5.0, 6.0},
			func(params []*Tensor) *Tensor {
				weights := mustTensor(t, []int{2}, []float64{2, -1})
				return SumAutograd(MulAutograd(SumDimAutograd(params[0], 1), weights))
			})
	})
}

func TestReshapeGradientFlowsToParameter(t *testing.T) {
	checkGradients(t,
		[][]int{{3}},
		[]float64{0.1, -0.2, 0.3},
		func(params []*Tensor) *Tensor {
			row := ReshapeAutograd(params[0], []int{1, 3})
			tiled := mustTensor(t, []int{4, 3}, []float64{
				1, 2, 3,
				4, 5, 6,
				7, 8, 9,
				10, 11, 12,
			})
			return SumAutograd(MulAutograd(row, tiled))
		})
}

func TestBackwardAccumulatesSharedInput(t *testing.T) {
	a := mustTensor(t, []int{2}, []float64{1.5, -0.5})
	a.SetRequiresGrad(true)

	out := SumAutograd(AddAutograd(a, a))
	if err := out.Backward(); err != nil {
		t.Fatalf("backward pass failed: %v", err)
	}

	grad, err := a.Grad().Float64Data()
	if err != nil {
		t.Fatalf("gradient: %v", err)
	}
	for i, g := range grad {
		if g != 2.0 {
			t.Errorf("element %d: expected gradient 2, got %g", i, g)
		}
	}
}

func TestBackwardRequiresScalar(t *testing.T) {
	a := mustTensor(t, []int{2, 2}, []float64{1, 2, 3, 4})
	a.SetRequiresGrad(true)

	out := AddAutograd(a, a)
	if err := out.Backward(); err == nil {
		t.Error("expected error for non-scalar backward target")
	}
}

func TestZeroGradResetsAccumulation(t *testing.T) {
	a := mustTensor(t, []int{3}, []float64{1, 2, 3})
	a.SetRequiresGrad(true)

	out := SumAutograd(MulAutograd(a, a))
	if err := out.Backward(); err != nil {
		t.Fatalf("backward pass failed: %v", err)
	}
	if a.Grad() == nil {
		t.Fatal("expected gradient after backward")
	}

	ZeroGrad([]*Tensor{a})
	grad, err := a.Grad().Float64Data()
	if err != nil {
		t.Fatalf("gradient: %v", err)
	}
	for i, g := range grad {
		if g != 0 {
			t.Errorf("element %d: expected zeroed gradient, got %g", i, g)
		}
	}
}

func TestGradientNotTrackedWithoutRequiresGrad(t *testing.T) {
	a := mustTensor(t, []int{2}, []float64{1, 2})
	b := mustTensor(t, []int{2}, []float64{3, 4})
	b.SetRequiresGrad(true)

	out := SumAutograd(MulAutograd(a, b))
	if err := out.Backward(); err != nil {
		t.Fatalf("backward pass failed: %v", err)
	}

	if a.Grad() != nil {
		t.Error("tensor without requiresGrad should not receive a gradient")
	}
	if b.Grad() == nil {
		t.Error("tensor with requiresGrad should receive a gradient")
	}
}
