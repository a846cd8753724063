// Package model implements the deep survival machines network: a mixture of
// parametric time-to-event distributions whose parameters are produced by a
// small neural network over covariates.
package model

import (
	"fmt"
	"math"

	"github.com/kaplanlabs/go-dsm/tensor"
)

// Supported latent distribution families.
const (
	DistWeibull   = "Weibull"
	DistLogNormal = "LogNormal"
)

// DeepSurvivalMachines models time-to-event as a K-component mixture of
// parametric distributions. Shape and Scale are shared base parameters of the
// mixture, learned without covariates during pretraining and then shifted
// per subject by the network heads.
type DeepSurvivalMachines struct {
	InputDim int
	K        int
	Hidden   []int  // embedding MLP widths
	Dist     string // distribution family tag
	Optim    string // optimizer kind consumed by the training loop

	Shape *tensor.Tensor // [K] base log-shape parameters
	Scale *tensor.Tensor // [K] base log-scale parameters

	embedding []*Linear
	shapeHead *Linear
	scaleHead *Linear
	gate      *Linear
}

// New creates a deep survival machines model. hidden lists the widths of the
// embedding MLP; an empty list connects the heads directly to the input.
func New(inputDim, k int, hidden []int, dist, optim string) (*DeepSurvivalMachines, error) {
	if inputDim <= 0 {
		return nil, fmt.Errorf("input dimension must be positive, got %d", inputDim)
	}
	if k <= 0 {
		return nil, fmt.Errorf("mixture size must be positive, got %d", k)
	}
	if dist != DistWeibull && dist != DistLogNormal {
		return nil, fmt.Errorf("distribution %s is not implemented", dist)
	}

	shape, err := tensor.Zeros([]int{k}, tensor.Float32)
	if err != nil {
		return nil, fmt.Errorf("failed to create shape parameter: %v", err)
	}
	shape.SetRequiresGrad(true)

	scale, err := tensor.Zeros([]int{k}, tensor.Float32)
	if err != nil {
		return nil, fmt.Errorf("failed to create scale parameter: %v", err)
	}
	scale.SetRequiresGrad(true)

	m := &DeepSurvivalMachines{
		InputDim: inputDim,
		K:        k,
		Hidden:   append([]int(nil), hidden...),
		Dist:     dist,
		Optim:    optim,
		Shape:    shape,
		Scale:    scale,
	}

	lastDim := inputDim
	for _, width := range hidden {
		layer, err := NewLinear(lastDim, width, false)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding layer: %v", err)
		}
		m.embedding = append(m.embedding, layer)
		lastDim = width
	}

	if m.shapeHead, err = NewLinear(lastDim, k, true); err != nil {
		return nil, fmt.Errorf("failed to create shape head: %v", err)
	}
	if m.scaleHead, err = NewLinear(lastDim, k, true); err != nil {
		return nil, fmt.Errorf("failed to create scale head: %v", err)
	}
	if m.gate, err = NewLinear(lastDim, k, false); err != nil {
		return nil, fmt.Errorf("failed to create gate head: %v", err)
	}

	return m, nil
}

// Forward maps covariates to per-row mixture parameters. The input is either
// [n, features] or a padded [n, d, features] sequence tensor; padded rows
// (any feature NaN) are dropped so that every observed visit becomes one
// prediction row. Returns shape shifts, scale shifts and gate logits, each
// [rows, K].
func (m *DeepSurvivalMachines) Forward(x *tensor.Tensor) (shape, scale, gate *tensor.Tensor, err error) {
	if m.Shape.DType != tensor.Float64 {
		return nil, nil, nil, fmt.Errorf("model parameters must be Float64; call Double before the forward pass")
	}

	rep, err := m.flattenObserved(x)
	if err != nil {
		return nil, nil, nil, err
	}

	for _, layer := range m.embedding {
		out, err := layer.Forward(rep)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("embedding forward failed: %v", err)
		}
		rep = tensor.ReLUAutograd(out)
	}

	shapeOut, err := m.shapeHead.Forward(rep)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("shape head forward failed: %v", err)
	}
	scaleOut, err := m.scaleHead.Forward(rep)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("scale head forward failed: %v", err)
	}
	gateOut, err := m.gate.Forward(rep)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("gate forward failed: %v", err)
	}

	baseShape := tensor.ReshapeAutograd(m.Shape, []int{1, m.K})
	baseScale := tensor.ReshapeAutograd(m.Scale, []int{1, m.K})

	shape = tensor.AddAutograd(tensor.TanhAutograd(shapeOut), baseShape)
	scale = tensor.AddAutograd(tensor.TanhAutograd(scaleOut), baseScale)
	return shape, scale, gateOut, nil
}

// flattenObserved reduces the input to a 2D [rows, features] tensor of
// observed visits, dropping sentinel (NaN) rows from padded sequences.
func (m *DeepSurvivalMachines) flattenObserved(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x.DType != tensor.Float64 {
		return nil, fmt.Errorf("model input must be Float64, got %s", x.DType)
	}

	var features int
	switch len(x.Shape) {
	case 2:
		features = x.Shape[1]
	case 3:
		features = x.Shape[2]
	default:
		return nil, fmt.Errorf("model input must be 2D or 3D, got shape %v", x.Shape)
	}
	if features != m.InputDim {
		return nil, fmt.Errorf("feature dimension mismatch: expected %d, got %d", m.InputDim, features)
	}

	data := x.Data.([]float64)
	rows := x.NumElems / features

	kept := make([]float64, 0, x.NumElems)
	keptRows := 0
	for r := 0; r < rows; r++ {
		row := data[r*features : (r+1)*features]
		missing := false
		for _, v := range row {
			if math.IsNaN(v) {
				missing = true
				break
			}
		}
		if missing {
			continue
		}
		kept = append(kept, row...)
		keptRows++
	}

	if keptRows == 0 {
		return nil, fmt.Errorf("input contains no observed rows")
	}

	return tensor.NewTensor([]int{keptRows, features}, tensor.Float64, kept)
}

// Parameters returns every trainable parameter in a fixed order. The order is
// the contract used by snapshots and optimizer state.
func (m *DeepSurvivalMachines) Parameters() []*tensor.Tensor {
	params := []*tensor.Tensor{m.Shape, m.Scale}
	for _, layer := range m.embedding {
		params = append(params, layer.Parameters()...)
	}
	params = append(params, m.shapeHead.Parameters()...)
	params = append(params, m.scaleHead.Parameters()...)
	params = append(params, m.gate.Parameters()...)
	return params
}

// ParameterNames returns a stable name for each parameter, aligned with the
// order of Parameters. The names identify weights in persisted checkpoints.
func (m *DeepSurvivalMachines) ParameterNames() []string {
	names := []string{"shape", "scale"}
	for i, layer := range m.embedding {
		names = append(names, fmt.Sprintf("embedding.%d.weight", i))
		if layer.HasBias() {
			names = append(names, fmt.Sprintf("embedding.%d.bias", i))
		}
	}
	for _, head := range []struct {
		name  string
		layer *Linear
	}{{"shape_head", m.shapeHead}, {"scale_head", m.scaleHead}, {"gate", m.gate}} {
		names = append(names, head.name+".weight")
		if head.layer.HasBias() {
			names = append(names, head.name+".bias")
		}
	}
	return names
}

// Double converts every parameter to double precision in place. Parameter
// identity is preserved so optimizer bindings stay valid.
func (m *DeepSurvivalMachines) Double() error {
	for i, p := range m.Parameters() {
		if err := p.ConvertTo(tensor.Float64); err != nil {
			return fmt.Errorf("failed to convert parameter %d: %v", i, err)
		}
	}
	return nil
}

// StateDict returns a deep-copied snapshot of all parameters, in the same
// order Parameters returns them.
func (m *DeepSurvivalMachines) StateDict() ([]*tensor.Tensor, error) {
	params := m.Parameters()
	snapshot := make([]*tensor.Tensor, len(params))
	for i, p := range params {
		cloned, err := p.Clone()
		if err != nil {
			return nil, fmt.Errorf("failed to snapshot parameter %d: %v", i, err)
		}
		snapshot[i] = cloned
	}
	return snapshot, nil
}

// LoadStateDict overwrites the model's parameters from a snapshot produced by
// StateDict. The parameter storage is reused, so optimizer state keyed by
// parameter identity survives a restore.
func (m *DeepSurvivalMachines) LoadStateDict(snapshot []*tensor.Tensor) error {
	params := m.Parameters()
	if len(snapshot) != len(params) {
		return fmt.Errorf("snapshot has %d parameters, model has %d", len(snapshot), len(params))
	}

	for i, p := range params {
		s := snapshot[i]
		if s.DType != p.DType || s.NumElems != p.NumElems {
			return fmt.Errorf("snapshot parameter %d is incompatible: %s vs %s", i, s, p)
		}
		cloned, err := s.Clone()
		if err != nil {
			return fmt.Errorf("failed to copy snapshot parameter %d: %v", i, err)
		}
		if err := p.SetData(cloned.Data); err != nil {
			return fmt.Errorf("failed to restore parameter %d: %v", i, err)
		}
	}
	return nil
}
