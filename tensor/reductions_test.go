package tensor

import (
	"math"
	"testing"
)

func TestSumAndMean(t *testing.T) {
	a := mustTensor(t, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})

	sum, err := Sum(a)
	if err != nil {
		t.Fatalf("sum failed: %v", err)
	}
	if v, _ := sum.Item(); v != 21 {
		t.Errorf("expected sum 21, got %g", v)
	}

	mean, err := Mean(a)
	if err != nil {
		t.Fatalf("mean failed: %v", err)
	}
	if v, _ := mean.Item(); v != 3.5 {
		t.Errorf("expected mean 3.5, got %g", v)
	}
}

func TestSumDim(t *testing.T) {
	a := mustTensor(t, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})

	t.Run("rows", func(t *testing.T) {
		got, err := SumDim(a, 0)
		if err != nil {
			t.Fatalf("sumdim failed: %v", err)
		}
		want := mustTensor(t, []int{3}, []float64{5, 7, 9})
		if !got.Equal(want) {
			t.Errorf("expected %v, got %v", want.Data, got.Data)
		}
	})

	t.Run("columns", func(t *testing.T) {
		got, err := SumDim(a, 1)
		if err != nil {
			t.Fatalf("sumdim failed: %v", err)
		}
		want := mustTensor(t, []int{2}, []float64{6, 15})
		if !got.Equal(want) {
			t.Errorf("expected %v, got %v", want.Data, got.Data)
		}
	})

	t.Run("invalid dimension", func(t *testing.T) {
		if _, err := SumDim(a, 2); err == nil {
			t.Error("expected error for out-of-range dimension")
		}
	})
}

func TestLogSumExp(t *testing.T) {
	a := mustTensor(t, []int{2, 2}, []float64{0, 0, 1, 2})

	got, err := LogSumExp(a)
	if err != nil {
		t.Fatalf("logsumexp failed: %v", err)
	}
	data, _ := got.Float64Data()

	want0 := math.Log(2)
	want1 := math.Log(math.Exp(1) + math.Exp(2))
	if math.Abs(data[0]-want0) > 1e-12 {
		t.Errorf("row 0: expected %g, got %g", want0, data[0])
	}
	if math.Abs(data[1]-want1) > 1e-12 {
		t.Errorf("row 1: expected %g, got %g", want1, data[1])
	}
}

func TestLogSumExpIsStableForLargeInputs(t *testing.T) {
	a := mustTensor(t, []int{1, 2}, []float64{1000, 1000})

	got, err := LogSumExp(a)
	if err != nil {
		t.Fatalf("logsumexp failed: %v", err)
	}
	v, _ := got.At(0)
	want := 1000 + math.Log(2)
	if math.IsInf(v, 0) || math.Abs(v-want) > 1e-9 {
		t.Errorf("expected %g, got %g", want, v)
	}
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	a := mustTensor(t, []int{2, 3}, []float64{1, 2, 3, -1, 0, 1})

	got, err := Softmax(a)
	if err != nil {
		t.Fatalf("softmax failed: %v", err)
	}
	data, _ := got.Float64Data()
	for r := 0; r < 2; r++ {
		total := data[r*3] + data[r*3+1] + data[r*3+2]
		if math.Abs(total-1.0) > 1e-12 {
			t.Errorf("row %d sums to %g, expected 1", r, total)
		}
	}
}

func TestLogSoftmaxMatchesSoftmax(t *testing.T) {
	a := mustTensor(t, []int{1, 3}, []float64{0.5, 1.5, -0.5})

	soft, err := Softmax(a)
	if err != nil {
		t.Fatalf("softmax failed: %v", err)
	}
	logSoft, err := LogSoftmax(a)
	if err != nil {
		t.Fatalf("logsoftmax failed: %v", err)
	}

	softData, _ := soft.Float64Data()
	logData, _ := logSoft.Float64Data()
	for i := range softData {
		if math.Abs(math.Log(softData[i])-logData[i]) > 1e-12 {
			t.Errorf("element %d: log(softmax)=%g, logsoftmax=%g", i, math.Log(softData[i]), logData[i])
		}
	}
}

func TestMatMul(t *testing.T) {
	a := mustTensor(t, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})
	b := mustTensor(t, []int{3, 2}, []float64{7, 8, 9, 10, 11, 12})

	got, err := MatMul(a, b)
	if err != nil {
		t.Fatalf("matmul failed: %v", err)
	}
	want := mustTensor(t, []int{2, 2}, []float64{58, 64, 139, 154})
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want.Data, got.Data)
	}

	if _, err := MatMul(a, a); err == nil {
		t.Error("expected error for incompatible shapes")
	}
}

func TestTranspose(t *testing.T) {
	a := mustTensor(t, []int{2, 3}, []float64{1, 2, 3, 4, 5, 6})

	got, err := Transpose(a)
	if err != nil {
		t.Fatalf("transpose failed: %v", err)
	}
	want := mustTensor(t, []int{3, 2}, []float64{1, 4, 2, 5, 3, 6})
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want.Data, got.Data)
	}
}

func TestBroadcastShapes(t *testing.T) {
	tests := []struct {
		name   string
		s1, s2 []int
		want   []int
		ok     bool
	}{
		{"equal", []int{2, 3}, []int{2, 3}, []int{2, 3}, true},
		{"row vector", []int{2, 3}, []int{1, 3}, []int{2, 3}, true},
		{"column against matrix", []int{4, 1}, []int{4, 5}, []int{4, 5}, true},
		{"scalar", []int{1}, []int{3, 4}, []int{3, 4}, true},
		{"trailing mismatch", []int{2, 3}, []int{2, 4}, nil, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := BroadcastShapes(tc.s1, tc.s2)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok {
				if err == nil {
					t.Fatal("expected an error")
				}
				if AreBroadcastable(tc.s1, tc.s2) {
					t.Error("AreBroadcastable disagrees with BroadcastShapes")
				}
				return
			}
			if !shapesEqual(got, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, got)
			}
			if !AreBroadcastable(tc.s1, tc.s2) {
				t.Error("AreBroadcastable disagrees with BroadcastShapes")
			}
		})
	}
}
