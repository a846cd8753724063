package training

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kaplanlabs/go-dsm/losses"
	"github.com/kaplanlabs/go-dsm/model"
	"github.com/kaplanlabs/go-dsm/tensor"
)

// Pretrain fits a single-component, covariate-free model on the stripped
// event times and indicators, so its base shape and scale can seed the full
// model before conditional training. The loop runs until the validation cost
// plateaus (see convergenceMonitor) or maxIters is reached.
func Pretrain(m *model.DeepSurvivalMachines, tTrain, eTrain, tValid, eValid *tensor.Tensor, maxIters int, lr, thres float64, logger *logrus.Logger) (*model.DeepSurvivalMachines, error) {
	premodel, err := model.New(1, 1, nil, m.Dist, "Adam")
	if err != nil {
		return nil, fmt.Errorf("failed to create pretraining model: %v", err)
	}
	if err := premodel.Double(); err != nil {
		return nil, fmt.Errorf("failed to convert pretraining model: %v", err)
	}

	opt, err := BuildOptimizer(premodel, lr)
	if err != nil {
		return nil, err
	}

	monitor := newConvergenceMonitor(thres)
	for i := 0; i < maxIters; i++ {
		opt.ZeroGrad()

		loss, err := losses.Unconditional(premodel, tTrain, eTrain)
		if err != nil {
			return nil, fmt.Errorf("pretraining loss failed at iteration %d: %v", i, err)
		}
		if err := loss.Backward(); err != nil {
			return nil, fmt.Errorf("pretraining backward pass failed at iteration %d: %v", i, err)
		}
		if err := opt.Step(); err != nil {
			return nil, fmt.Errorf("pretraining step failed at iteration %d: %v", i, err)
		}

		validLoss, err := losses.Unconditional(premodel, tValid, eValid)
		if err != nil {
			return nil, fmt.Errorf("pretraining validation loss failed at iteration %d: %v", i, err)
		}
		cost, err := validLoss.Item()
		if err != nil {
			return nil, err
		}

		logger.WithFields(logrus.Fields{
			"iteration":  i,
			"valid_cost": cost,
		}).Debug("pretraining iteration")

		if monitor.Observe(cost) {
			logger.WithField("iteration", i).Debug("pretraining converged")
			break
		}
	}

	return premodel, nil
}
