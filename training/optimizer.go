package training

import (
	"fmt"

	"github.com/kaplanlabs/go-dsm/model"
	"github.com/kaplanlabs/go-dsm/optimizer"
)

// BuildOptimizer constructs the optimizer named by the model's Optim field,
// bound to the model's parameters.
func BuildOptimizer(m *model.DeepSurvivalMachines, lr float64) (optimizer.Optimizer, error) {
	switch m.Optim {
	case "Adam":
		return optimizer.NewAdam(m.Parameters(), lr), nil
	case "SGD":
		return optimizer.NewSGD(m.Parameters(), lr), nil
	case "RMSProp":
		return optimizer.NewRMSProp(m.Parameters(), lr), nil
	default:
		return nil, fmt.Errorf("optimizer %s is not implemented", m.Optim)
	}
}
