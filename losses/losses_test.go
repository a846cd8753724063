package losses

import (
	"math"
	"testing"

	"github.com/kaplanlabs/go-dsm/model"
	"github.com/kaplanlabs/go-dsm/tensor"
)

func doubledModel(t *testing.T, inputDim, k int, hidden []int, dist string) *model.DeepSurvivalMachines {
	t.Helper()
	model.SetRandomSeed(7)
	m, err := model.New(inputDim, k, hidden, dist, "Adam")
	if err != nil {
		t.Fatalf("failed to create model: %v", err)
	}
	if err := m.Double(); err != nil {
		t.Fatalf("double failed: %v", err)
	}
	return m
}

func targets(t *testing.T, times, events []float64) (*tensor.Tensor, *tensor.Tensor) {
	t.Helper()
	tt, err := tensor.NewTensor([]int{len(times)}, tensor.Float64, times)
	if err != nil {
		t.Fatalf("failed to create times: %v", err)
	}
	ee, err := tensor.NewTensor([]int{len(events)}, tensor.Float64, events)
	if err != nil {
		t.Fatalf("failed to create events: %v", err)
	}
	return tt, ee
}

func TestUnconditionalIsFiniteForBothFamilies(t *testing.T) {
	times := []float64{1.0, 2.5, 0.7, 4.2, 3.3}
	events := []float64{1, 0, 1, 1, 0}

	for _, dist := range []string{model.DistWeibull, model.DistLogNormal} {
		t.Run(dist, func(t *testing.T) {
			m := doubledModel(t, 1, 3, nil, dist)
			tt, ee := targets(t, times, events)

			loss, err := Unconditional(m, tt, ee)
			if err != nil {
				t.Fatalf("loss failed: %v", err)
			}
			v, err := loss.Item()
			if err != nil {
				t.Fatalf("item failed: %v", err)
			}
			if math.IsNaN(v) || math.IsInf(v, 0) {
				t.Errorf("expected finite loss, got %g", v)
			}
		})
	}
}

func TestUnconditionalGradientReachesBaseParameters(t *testing.T) {
	m := doubledModel(t, 1, 3, nil, model.DistWeibull)
	tt, ee := targets(t, []float64{1.5, 2.0, 0.5}, []float64{1, 1, 0})

	loss, err := Unconditional(m, tt, ee)
	if err != nil {
		t.Fatalf("loss failed: %v", err)
	}
	if err := loss.Backward(); err != nil {
		t.Fatalf("backward failed: %v", err)
	}

	for _, p := range []*tensor.Tensor{m.Shape, m.Scale} {
		if p.Grad() == nil {
			t.Fatal("base parameter received no gradient")
		}
		grad, err := p.Grad().Float64Data()
		if err != nil {
			t.Fatalf("gradient: %v", err)
		}
		var total float64
		for _, g := range grad {
			total += math.Abs(g)
		}
		if total == 0 {
			t.Error("expected nonzero gradient on base parameter")
		}
	}
}

func TestCensoringChangesTheLoss(t *testing.T) {
	m := doubledModel(t, 1, 2, nil, model.DistWeibull)
	times := []float64{1.0, 2.0, 3.0}

	tt, allObserved := targets(t, times, []float64{1, 1, 1})
	_, allCensored := targets(t, times, []float64{0, 0, 0})

	observedLoss, err := Unconditional(m, tt, allObserved)
	if err != nil {
		t.Fatalf("loss failed: %v", err)
	}
	censoredLoss, err := Unconditional(m, tt, allCensored)
	if err != nil {
		t.Fatalf("loss failed: %v", err)
	}

	a, _ := observedLoss.Item()
	b, _ := censoredLoss.Item()
	if a == b {
		t.Error("censoring indicator has no effect on the loss")
	}
}

func TestConditionalIsFiniteAndDifferentiable(t *testing.T) {
	m := doubledModel(t, 3, 2, []int{4}, model.DistWeibull)

	x, err := tensor.NewTensor([]int{4, 3}, tensor.Float64, []float64{
		0.1, -0.2, 0.3,
		1.0, 0.5, -0.5,
		-1.2, 0.8, 0.2,
		0.4, 0.4, -0.9,
	})
	if err != nil {
		t.Fatalf("failed to create covariates: %v", err)
	}
	tt, ee := targets(t, []float64{1.0, 2.5, 0.7, 4.2}, []float64{1, 0, 1, 1})

	for _, elbo := range []bool{false, true} {
		loss, err := Conditional(m, x, tt, ee, elbo)
		if err != nil {
			t.Fatalf("loss failed (elbo=%v): %v", elbo, err)
		}
		v, err := loss.Item()
		if err != nil {
			t.Fatalf("item failed: %v", err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Errorf("expected finite loss (elbo=%v), got %g", elbo, v)
		}

		if err := loss.Backward(); err != nil {
			t.Fatalf("backward failed (elbo=%v): %v", elbo, err)
		}
		tensor.ZeroGrad(m.Parameters())
	}
}

func TestConditionalCountsObservedRowsAgainstTargets(t *testing.T) {
	m := doubledModel(t, 2, 2, nil, model.DistWeibull)

	nan := math.NaN()
	// Two subjects, three visit slots, four observed visits in total.
	x, err := tensor.NewTensor([]int{2, 3, 2}, tensor.Float64, []float64{
		1, 2, 3, 4, nan, nan,
		5, 6, 7, 8, nan, nan,
	})
	if err != nil {
		t.Fatalf("failed to create covariates: %v", err)
	}

	tt, ee := targets(t, []float64{1, 2, 3, 4}, []float64{1, 1, 0, 1})
	if _, err := Conditional(m, x, tt, ee, false); err != nil {
		t.Fatalf("expected matching rows to succeed: %v", err)
	}

	short, shortE := targets(t, []float64{1, 2}, []float64{1, 1})
	if _, err := Conditional(m, x, short, shortE, false); err == nil {
		t.Error("expected error for target length mismatch")
	}
}

func TestLossesRejectBadTargets(t *testing.T) {
	m := doubledModel(t, 1, 2, nil, model.DistWeibull)

	tt, _ := targets(t, []float64{1, 2}, []float64{1, 1})
	badShape, err := tensor.Ones([]int{2, 1}, tensor.Float64)
	if err != nil {
		t.Fatalf("failed to create tensor: %v", err)
	}
	if _, err := Unconditional(m, tt, badShape); err == nil {
		t.Error("expected error for non-1D events")
	}

	_, longer := targets(t, []float64{1, 2, 3}, []float64{1, 1, 1})
	if _, err := Unconditional(m, tt, longer); err == nil {
		t.Error("expected error for length mismatch")
	}
}

func TestUnknownDistributionIsRejected(t *testing.T) {
	a, err := tensor.Zeros([]int{1, 2}, tensor.Float64)
	if err != nil {
		t.Fatalf("failed to create tensor: %v", err)
	}
	tt, ee := targets(t, []float64{1, 2}, []float64{1, 1})

	if _, err := logLikelihood("Exponential", a, a, tt, ee); err == nil {
		t.Error("expected error for unknown distribution")
	}
}

func TestWeibullLogLikelihoodMatchesClosedForm(t *testing.T) {
	// Single component, k = exp(a), lambda = exp(b).
	a, _ := tensor.NewTensor([]int{1, 1}, tensor.Float64, []float64{0.4})
	b, _ := tensor.NewTensor([]int{1, 1}, tensor.Float64, []float64{1.1})
	tt, ee := targets(t, []float64{2.0}, []float64{1})

	ll, err := logLikelihood(model.DistWeibull, a, b, tt, ee)
	if err != nil {
		t.Fatalf("log likelihood failed: %v", err)
	}
	got, err := ll.Item()
	if err != nil {
		t.Fatalf("item failed: %v", err)
	}

	k := math.Exp(0.4)
	lambda := math.Exp(1.1)
	x := 2.0
	want := math.Log(k/lambda) + (k-1)*math.Log(x/lambda) - math.Pow(x/lambda, k)
	if math.Abs(got-want) > 1e-10 {
		t.Errorf("expected log-likelihood %g, got %g", want, got)
	}
}

func TestLogNormalSurvivalIsNegative(t *testing.T) {
	// log S(t) must be strictly negative for any finite time.
	a, _ := tensor.NewTensor([]int{1, 1}, tensor.Float64, []float64{0.0})
	b, _ := tensor.NewTensor([]int{1, 1}, tensor.Float64, []float64{0.0})
	tt, ee := targets(t, []float64{1.5}, []float64{0})

	ll, err := logLikelihood(model.DistLogNormal, a, b, tt, ee)
	if err != nil {
		t.Fatalf("log likelihood failed: %v", err)
	}
	got, err := ll.Item()
	if err != nil {
		t.Fatalf("item failed: %v", err)
	}
	if got >= 0 {
		t.Errorf("expected negative log-survival, got %g", got)
	}
}
