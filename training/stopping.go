package training

import "math"

// convergenceMonitor detects a plateau in pretraining validation cost: once
// the absolute change stays below the threshold for three consecutive
// observations, the loop is considered converged.
type convergenceMonitor struct {
	thres    float64
	oldCost  float64
	patience int
}

func newConvergenceMonitor(thres float64) *convergenceMonitor {
	return &convergenceMonitor{thres: thres, oldCost: math.Inf(1)}
}

// Observe records a validation cost and reports whether the loop has
// converged. A change at or above the threshold resets the streak.
func (c *convergenceMonitor) Observe(cost float64) bool {
	if math.Abs(cost-c.oldCost) < c.thres {
		c.patience++
	} else {
		c.patience = 0
	}
	c.oldCost = cost
	return c.patience >= 3
}

// earlyStopper implements patience-based early stopping on validation cost.
// An epoch whose cost fails to improve on the previous one counts against
// patience; the third such epoch in a row triggers the stop. The reference
// cost is updated every epoch, improving or not.
type earlyStopper struct {
	oldCost  float64
	patience int
}

func newEarlyStopper() *earlyStopper {
	return &earlyStopper{oldCost: math.Inf(1)}
}

// Observe records an epoch's validation cost and reports whether training
// should stop.
func (e *earlyStopper) Observe(cost float64) bool {
	stop := false
	if cost >= e.oldCost {
		if e.patience == 2 {
			stop = true
		} else {
			e.patience++
		}
	} else {
		e.patience = 0
	}
	e.oldCost = cost
	return stop
}
