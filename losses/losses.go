// Package losses implements the likelihood-based training objectives of the
// deep survival machines model for right-censored time-to-event data.
package losses

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kaplanlabs/go-dsm/model"
	"github.com/kaplanlabs/go-dsm/tensor"
)

// Unconditional computes the negative mean mixture log-likelihood of event
// times and censoring indicators from the model's shared shape and scale
// parameters alone, ignoring covariates. Mixture components are weighted
// uniformly.
func Unconditional(m *model.DeepSurvivalMachines, t, e *tensor.Tensor) (*tensor.Tensor, error) {
	if err := checkTargets(t, e); err != nil {
		return nil, err
	}
	if m.Shape.DType != tensor.Float64 {
		return nil, fmt.Errorf("model parameters must be Float64; call Double before computing losses")
	}

	a := tensor.ReshapeAutograd(m.Shape, []int{1, m.K})
	b := tensor.ReshapeAutograd(m.Scale, []int{1, m.K})

	ll, err := logLikelihood(m.Dist, a, b, t, e)
	if err != nil {
		return nil, err
	}

	marginal := tensor.LogSumExpAutograd(ll)
	if m.K > 1 {
		marginal = tensor.SubAutograd(marginal, tensor.FromScalar(math.Log(float64(m.K)), tensor.Float64))
	}

	return tensor.NegAutograd(tensor.MeanAutograd(marginal)), nil
}

// Conditional computes the negative mean covariate-conditioned mixture
// log-likelihood. With elbo set, component log-likelihoods are weighted by
// the gate posterior (a variational lower bound); otherwise the exact
// marginal logsumexp(logsoftmax(gate) + loglik) is used.
func Conditional(m *model.DeepSurvivalMachines, x, t, e *tensor.Tensor, elbo bool) (*tensor.Tensor, error) {
	if err := checkTargets(t, e); err != nil {
		return nil, err
	}

	shape, scale, gate, err := m.Forward(x)
	if err != nil {
		return nil, err
	}
	if shape.Shape[0] != t.NumElems {
		return nil, fmt.Errorf("covariate rows and target length mismatch: %d vs %d", shape.Shape[0], t.NumElems)
	}

	ll, err := logLikelihood(m.Dist, shape, scale, t, e)
	if err != nil {
		return nil, err
	}

	var perRow *tensor.Tensor
	if elbo {
		weights := tensor.SoftmaxAutograd(gate)
		perRow = tensor.SumDimAutograd(tensor.MulAutograd(weights, ll), 1)
	} else {
		perRow = tensor.LogSumExpAutograd(tensor.AddAutograd(tensor.LogSoftmaxAutograd(gate), ll))
	}

	return tensor.NegAutograd(tensor.MeanAutograd(perRow)), nil
}

func checkTargets(t, e *tensor.Tensor) error {
	if t.DType != tensor.Float64 || e.DType != tensor.Float64 {
		return fmt.Errorf("targets must be Float64 tensors")
	}
	if len(t.Shape) != 1 || len(e.Shape) != 1 {
		return fmt.Errorf("targets must be 1D tensors, got shapes %v and %v", t.Shape, e.Shape)
	}
	if t.NumElems != e.NumElems {
		return fmt.Errorf("time and event tensors must have the same length: %d vs %d", t.NumElems, e.NumElems)
	}
	if t.NumElems == 0 {
		return fmt.Errorf("targets must not be empty")
	}
	return nil
}

// logLikelihood computes the per-row, per-component censored log-likelihood
// matrix [rows, K]. Uncensored rows (event=1) contribute the log-density,
// censored rows the log-survival.
func logLikelihood(dist string, a, b, t, e *tensor.Tensor) (*tensor.Tensor, error) {
	rows := t.NumElems
	tCol, err := t.Reshape([]int{rows, 1})
	if err != nil {
		return nil, err
	}
	eCol, err := e.Reshape([]int{rows, 1})
	if err != nil {
		return nil, err
	}

	logT, err := tensor.Log(tCol)
	if err != nil {
		return nil, err
	}

	var logPDF, logSurvival *tensor.Tensor
	switch dist {
	case model.DistWeibull:
		logPDF, logSurvival = weibullLogLik(a, b, logT)
	case model.DistLogNormal:
		logPDF, logSurvival = logNormalLogLik(a, b, logT)
	default:
		return nil, fmt.Errorf("distribution %s is not implemented", dist)
	}

	notCensored, err := tensor.Sub(tensor.FromScalar(1, tensor.Float64), eCol)
	if err != nil {
		return nil, err
	}

	return tensor.AddAutograd(
		tensor.MulAutograd(eCol, logPDF),
		tensor.MulAutograd(notCensored, logSurvival),
	), nil
}

// weibullLogLik evaluates the Weibull log-density and log-survival with
// k = exp(a) and lambda = exp(b):
//
//	log f(t) = a - b + (exp(a)-1)(log t - b) - (t/lambda)^k
//	log S(t) = -(t/lambda)^k
func weibullLogLik(a, b, logT *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor) {
	u := tensor.SubAutograd(logT, b)
	expA := tensor.ExpAutograd(a)
	hazard := tensor.ExpAutograd(tensor.MulAutograd(expA, u))

	one := tensor.FromScalar(1, tensor.Float64)
	powerTerm := tensor.MulAutograd(tensor.SubAutograd(expA, one), u)

	logPDF := tensor.SubAutograd(
		tensor.AddAutograd(tensor.SubAutograd(a, b), powerTerm),
		hazard,
	)
	logSurvival := tensor.NegAutograd(hazard)
	return logPDF, logSurvival
}

// logNormalLogLik evaluates the log-normal log-density and log-survival with
// mu = b and sigma = exp(a). The survival term goes through the standard
// normal survival function, differentiated via its density.
func logNormalLogLik(a, b, logT *tensor.Tensor) (*tensor.Tensor, *tensor.Tensor) {
	sigma := tensor.ExpAutograd(a)
	z := tensor.DivAutograd(tensor.SubAutograd(logT, b), sigma)

	half := tensor.FromScalar(0.5, tensor.Float64)
	halfLog2Pi := tensor.FromScalar(0.5*math.Log(2*math.Pi), tensor.Float64)

	logPDF := tensor.SubAutograd(
		tensor.SubAutograd(
			tensor.SubAutograd(tensor.NegAutograd(logT), a),
			halfLog2Pi,
		),
		tensor.MulAutograd(half, tensor.MulAutograd(z, z)),
	)

	normal := distuv.UnitNormal
	logSurvival := tensor.ApplyAutograd(z, "normlogsf",
		func(x float64) float64 {
			return math.Log(normal.Survival(x))
		},
		func(x, y float64) float64 {
			return -normal.Prob(x) / normal.Survival(x)
		})

	return logPDF, logSurvival
}
