package training

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kaplanlabs/go-dsm/checkpoints"
	"github.com/kaplanlabs/go-dsm/losses"
	"github.com/kaplanlabs/go-dsm/model"
	"github.com/kaplanlabs/go-dsm/tensor"
)

// Pretraining hyperparameters, fixed across runs.
const (
	pretrainIters = 10000
	pretrainLR    = 1e-2
	pretrainThres = 1e-4
)

// TrainConfig holds the tunable knobs of the conditional training loop. Zero
// values fall back to the defaults.
type TrainConfig struct {
	MaxIters     int     // maximum epochs (default 10000)
	LearningRate float64 // default 1e-3
	BatchSize    int     // subjects per batch (default 100)
	ELBO         bool    // train on the variational bound instead of the exact marginal
	Logger       *logrus.Logger
}

func (cfg *TrainConfig) applyDefaults() {
	if cfg.MaxIters <= 0 {
		cfg.MaxIters = 10000
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = 1e-3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
}

// Train fits the model on padded longitudinal data. xTrain and xValid are
// [subjects, visits, features] tensors with NaN padding; the t and e tensors
// carry the matching padded event times and indicators.
//
// The procedure pretrains the base shape and scale on the pooled event times,
// seeds the model with them, then runs mini-batched conditional training with
// patience-based early stopping on the validation cost. On an early stop the
// parameters revert to the snapshot whose validation cost was largest.
// Returns the fitted model and the index of the last completed epoch.
func Train(m *model.DeepSurvivalMachines, xTrain, tTrain, eTrain, xValid, tValid, eValid *tensor.Tensor, cfg TrainConfig) (*model.DeepSurvivalMachines, int, error) {
	cfg.applyDefaults()
	logger := cfg.Logger

	// Unknown optimizer names fail here, before any training work.
	if _, err := BuildOptimizer(m, cfg.LearningRate); err != nil {
		return nil, 0, err
	}

	tTrainFlat, err := UnrollAndStrip(tTrain)
	if err != nil {
		return nil, 0, fmt.Errorf("training times: %v", err)
	}
	eTrainFlat, err := UnrollAndStrip(eTrain)
	if err != nil {
		return nil, 0, fmt.Errorf("training events: %v", err)
	}
	tValidFlat, err := UnrollAndStrip(tValid)
	if err != nil {
		return nil, 0, fmt.Errorf("validation times: %v", err)
	}
	eValidFlat, err := UnrollAndStrip(eValid)
	if err != nil {
		return nil, 0, fmt.Errorf("validation events: %v", err)
	}

	premodel, err := Pretrain(m, tTrainFlat, eTrainFlat, tValidFlat, eValidFlat,
		pretrainIters, pretrainLR, pretrainThres, logger)
	if err != nil {
		return nil, 0, fmt.Errorf("pretraining failed: %v", err)
	}

	baseShape, err := premodel.Shape.Item()
	if err != nil {
		return nil, 0, err
	}
	baseScale, err := premodel.Scale.Item()
	if err != nil {
		return nil, 0, err
	}
	m.Shape.Fill(baseShape)
	m.Scale.Fill(baseScale)

	if err := m.Double(); err != nil {
		return nil, 0, fmt.Errorf("failed to convert model: %v", err)
	}

	opt, err := BuildOptimizer(m, cfg.LearningRate)
	if err != nil {
		return nil, 0, err
	}

	n := xTrain.Shape[0]
	nbatches := n/cfg.BatchSize + 1

	history := checkpoints.NewHistory()
	stopper := newEarlyStopper()

	epoch := 0
	for i := 0; i < cfg.MaxIters; i++ {
		epoch = i
		for j := 0; j < nbatches; j++ {
			lo, hi := batchRange(n, cfg.BatchSize, j)
			if lo >= hi {
				continue
			}

			xb, err := tensor.SliceRows(xTrain, lo, hi)
			if err != nil {
				return nil, 0, fmt.Errorf("batch %d features: %v", j, err)
			}
			tbPadded, err := tensor.SliceRows(tTrain, lo, hi)
			if err != nil {
				return nil, 0, fmt.Errorf("batch %d times: %v", j, err)
			}
			ebPadded, err := tensor.SliceRows(eTrain, lo, hi)
			if err != nil {
				return nil, 0, fmt.Errorf("batch %d events: %v", j, err)
			}

			tb, err := UnrollAndStrip(tbPadded)
			if err == ErrNoObserved {
				continue
			}
			if err != nil {
				return nil, 0, err
			}
			eb, err := UnrollAndStrip(ebPadded)
			if err != nil {
				return nil, 0, err
			}

			opt.ZeroGrad()
			loss, err := losses.Conditional(m, xb, tb, eb, cfg.ELBO)
			if err != nil {
				return nil, 0, fmt.Errorf("batch %d loss failed: %v", j, err)
			}
			if err := loss.Backward(); err != nil {
				return nil, 0, fmt.Errorf("batch %d backward pass failed: %v", j, err)
			}
			if err := opt.Step(); err != nil {
				return nil, 0, fmt.Errorf("batch %d step failed: %v", j, err)
			}
		}

		validLoss, err := losses.Conditional(m, xValid, tValidFlat, eValidFlat, false)
		if err != nil {
			return nil, 0, fmt.Errorf("validation loss failed at epoch %d: %v", i, err)
		}
		cost, err := validLoss.Item()
		if err != nil {
			return nil, 0, err
		}

		stop, err := recordAndMaybeStop(m, history, stopper, i, cost, logger)
		if err != nil {
			return nil, 0, err
		}
		if stop {
			return m, i, nil
		}
	}

	history.Release()
	return m, epoch, nil
}

// recordAndMaybeStop snapshots the epoch's parameters and applies early
// stopping. When the stop triggers, the model reverts to the snapshot with
// the highest recorded validation cost and the history is released.
func recordAndMaybeStop(m *model.DeepSurvivalMachines, history *checkpoints.History, stopper *earlyStopper, epoch int, cost float64, logger *logrus.Logger) (bool, error) {
	snapshot, err := m.StateDict()
	if err != nil {
		return false, fmt.Errorf("failed to snapshot epoch %d: %v", epoch, err)
	}
	history.Append(epoch, cost, snapshot)

	logger.WithFields(logrus.Fields{
		"epoch":      epoch,
		"valid_cost": cost,
	}).Debug("training epoch")

	if !stopper.Observe(cost) {
		return false, nil
	}

	best, err := history.MaxCost()
	if err != nil {
		return false, err
	}
	chosen, err := history.Get(best)
	if err != nil {
		return false, err
	}
	if err := m.LoadStateDict(chosen.Params); err != nil {
		return false, fmt.Errorf("failed to restore epoch %d snapshot: %v", chosen.Epoch, err)
	}
	history.Release()

	logger.WithFields(logrus.Fields{
		"stopped_at": epoch,
		"restored":   chosen.Epoch,
	}).Info("early stopping")
	return true, nil
}
