// Package training implements the two-phase fitting procedure for deep
// survival machines: unconditional pretraining of the base distribution
// parameters followed by mini-batched conditional training with early
// stopping on validation cost.
package training

import (
	"errors"
	"fmt"
	"math"

	"github.com/kaplanlabs/go-dsm/tensor"
)

// ErrNoObserved is returned when every value in a padded tensor is the NaN
// sentinel, leaving nothing to train on.
var ErrNoObserved = errors.New("input contains no observed values")

// PadFeatures packs ragged per-subject visit sequences into a dense
// [subjects, maxVisits, features] tensor, padding missing visits with NaN.
func PadFeatures(features [][][]float64) (*tensor.Tensor, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("cannot pad an empty set of sequences")
	}

	maxVisits := 0
	numFeatures := 0
	for _, subject := range features {
		if len(subject) > maxVisits {
			maxVisits = len(subject)
		}
		for _, visit := range subject {
			if numFeatures == 0 {
				numFeatures = len(visit)
			}
			if len(visit) != numFeatures {
				return nil, fmt.Errorf("inconsistent feature count: expected %d, got %d", numFeatures, len(visit))
			}
		}
	}
	if maxVisits == 0 || numFeatures == 0 {
		return nil, fmt.Errorf("sequences contain no visits")
	}

	n := len(features)
	data := make([]float64, n*maxVisits*numFeatures)
	for i := range data {
		data[i] = math.NaN()
	}

	for s, subject := range features {
		for v, visit := range subject {
			base := (s*maxVisits + v) * numFeatures
			copy(data[base:base+numFeatures], visit)
		}
	}

	return tensor.NewTensor([]int{n, maxVisits, numFeatures}, tensor.Float64, data)
}

// PadTargets packs ragged per-subject target sequences (event times or event
// indicators) into a dense [subjects, maxVisits, 1] tensor, padding missing
// visits with NaN.
func PadTargets(targets [][]float64) (*tensor.Tensor, error) {
	if len(targets) == 0 {
		return nil, fmt.Errorf("cannot pad an empty set of sequences")
	}

	maxVisits := 0
	for _, subject := range targets {
		if len(subject) > maxVisits {
			maxVisits = len(subject)
		}
	}
	if maxVisits == 0 {
		return nil, fmt.Errorf("sequences contain no visits")
	}

	n := len(targets)
	data := make([]float64, n*maxVisits)
	for i := range data {
		data[i] = math.NaN()
	}

	for s, subject := range targets {
		copy(data[s*maxVisits:s*maxVisits+len(subject)], subject)
	}

	return tensor.NewTensor([]int{n, maxVisits, 1}, tensor.Float64, data)
}

// UnrollAndStrip flattens a padded tensor and drops every NaN sentinel,
// returning a 1D tensor of the observed values in row-major order. Returns
// ErrNoObserved when nothing remains.
func UnrollAndStrip(t *tensor.Tensor) (*tensor.Tensor, error) {
	data, err := t.Float64Data()
	if err != nil {
		return nil, err
	}

	kept := make([]float64, 0, len(data))
	for _, v := range data {
		if math.IsNaN(v) {
			continue
		}
		kept = append(kept, v)
	}
	if len(kept) == 0 {
		return nil, ErrNoObserved
	}

	return tensor.NewTensor([]int{len(kept)}, tensor.Float64, kept)
}

// batchRange returns the half-open row range [lo, hi) of batch j. The range
// is empty (lo >= hi) for trailing batches past the end of the data.
func batchRange(n, batchSize, j int) (int, int) {
	lo := j * batchSize
	hi := lo + batchSize
	if lo > n {
		lo = n
	}
	if hi > n {
		hi = n
	}
	return lo, hi
}
