// Package checkpoints provides in-memory parameter snapshots for early
// stopping and durable checkpoint persistence in JSON and binary formats.
package checkpoints

import (
	"fmt"

	"github.com/kaplanlabs/go-dsm/tensor"
)

// Snapshot holds a deep copy of model parameters together with the epoch it
// was taken at and the validation cost observed for that epoch.
type Snapshot struct {
	Epoch  int
	Cost   float64
	Params []*tensor.Tensor
}

// History accumulates one snapshot per training epoch so the best set of
// parameters can be restored after early stopping.
type History struct {
	snapshots []Snapshot
}

// NewHistory creates an empty snapshot history.
func NewHistory() *History {
	return &History{}
}

// Append records a snapshot for the given epoch.
func (h *History) Append(epoch int, cost float64, params []*tensor.Tensor) {
	h.snapshots = append(h.snapshots, Snapshot{Epoch: epoch, Cost: cost, Params: params})
}

// Len returns the number of recorded snapshots.
func (h *History) Len() int {
	return len(h.snapshots)
}

// Get returns the snapshot at index i.
func (h *History) Get(i int) (Snapshot, error) {
	if i < 0 || i >= len(h.snapshots) {
		return Snapshot{}, fmt.Errorf("snapshot index %d out of range [0, %d)", i, len(h.snapshots))
	}
	return h.snapshots[i], nil
}

// MaxCost returns the index of the snapshot with the largest recorded cost.
// Ties resolve to the earliest epoch.
func (h *History) MaxCost() (int, error) {
	if len(h.snapshots) == 0 {
		return 0, fmt.Errorf("snapshot history is empty")
	}
	best := 0
	for i, s := range h.snapshots {
		if s.Cost > h.snapshots[best].Cost {
			best = i
		}
	}
	return best, nil
}

// Release drops all recorded snapshots so their parameter copies can be
// garbage collected.
func (h *History) Release() {
	h.snapshots = nil
}
