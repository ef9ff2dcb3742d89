package retina

import (
	"context"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Classifier is the external model driven by the Solver, e.g. DRNet
type Classifier interface {
	// Params returns every trainable tensor, tagged with its layer index
	Params() []*Param
	// TrainStep runs forward and backward on b, leaving gradients in Params
	TrainStep(ctx context.Context, b *Batch) (loss float64, err error)
	// Evaluate returns the mean loss and predicted classes of b
	Evaluate(ctx context.Context, b *Batch) (loss float64, pred []int, err error)
	// Predict returns predicted classes for unlabelled images
	Predict(ctx context.Context, b *Batch) ([]int, error)
	Save(path string) error
	Load(path string) error
}

// Solver trains a Classifier with the configured optimizer, schedule and
// freezing
type Solver struct {
	cfg       Config
	model     Classifier
	params    *ParamSet
	optimizer Optimizer
	scheduler Scheduler
	history   *HistoryCallback
}

// NewSolver validates cfg and prepares the optimizer, scheduler and frozen
// layers for model
func NewSolver(cfg Config, model Classifier) (*Solver, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	params := NewParamSet(model.Params())
	if err := params.Configure(cfg.Model); err != nil {
		return nil, err
	}
	opt, err := NewOptimizer(cfg.Control.Optimizer, cfg.Optimizer)
	if err != nil {
		return nil, err
	}
	sched, err := NewScheduler(cfg.Control, cfg.Optimizer.LR)
	if err != nil {
		return nil, err
	}
	logger.Debug("solver ready",
		"optimizer", opt.name(),
		"scheduler", sched.name(),
		"trainable", params.TrainableParameters(),
		"total", params.TotalParameters(),
		"frozen_layers", params.FrozenLayers())
	return &Solver{
		cfg:       cfg,
		model:     model,
		params:    params,
		optimizer: opt,
		scheduler: sched,
		history:   History(),
	}, nil
}

func (s *Solver) Params() *ParamSet             { return s.params }
func (s *Solver) Optimizer() Optimizer          { return s.optimizer }
func (s *Solver) Scheduler() Scheduler          { return s.scheduler }
func (s *Solver) History() map[string][]float64 { return s.history.History }

// Fit trains for NumEpochs and saves the model to ModelPath. With Train
// false the model is only loaded from ModelPath. val may be nil, in which
// case the plateau schedule monitors the training loss.
func (s *Solver) Fit(ctx context.Context, train, val *Loader, callbacks ...Callback) (map[string][]float64, error) {
	mc := s.cfg.Model
	if !mc.Train || !mc.TrainFromScratch {
		if err := s.model.Load(mc.ModelPath); err != nil {
			return nil, errors.Wrapf(err, "retina: failed to load model %q", mc.ModelPath)
		}
		if !mc.Train {
			return s.history.History, nil
		}
	}

	perEpoch, err := train.NumBatches(0)
	if err != nil {
		return nil, err
	}
	callbacks = append([]Callback{
		s.history,
		LogProgress(s.cfg.Training.LogNth, perEpoch*s.cfg.Training.NumEpochs),
	}, callbacks...)

	for _, cb := range callbacks {
		cb.onTrainBegin(nil)
	}

	iteration := 0
	trainable := s.params.Trainable()
	for epoch := range s.cfg.Training.NumEpochs {
		trainLoss, seen := 0.0, 0
		err := train.Epoch(ctx, epoch, func(_ int, b *Batch) error {
			for _, p := range trainable {
				p.ZeroGrad()
			}
			loss, err := s.model.TrainStep(ctx, b)
			if err != nil {
				return errors.Wrapf(err, "retina: train step %d", iteration+1)
			}
			s.optimizer.Step(trainable)

			iteration++
			trainLoss += loss * float64(b.Len())
			seen += b.Len()
			batchLogs := map[string]float64{"loss": loss}
			for _, cb := range callbacks {
				cb.onBatchEnd(iteration, batchLogs)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}

		logs := map[string]float64{
			"train_loss": trainLoss / math.Max(float64(seen), 1),
			"lr":         s.optimizer.LR(),
		}
		monitor := logs["train_loss"]
		if val != nil {
			vl, acc, kappa, err := s.evaluate(ctx, val, epoch)
			if err != nil {
				return nil, err
			}
			logs["val_loss"], logs["val_accuracy"], logs["val_kappa"] = vl, acc, kappa
			monitor = vl
		}

		stop := false
		for _, cb := range callbacks {
			if cb.onEpochEnd(epoch, logs) {
				stop = true
			}
		}
		s.optimizer.SetLR(s.scheduler.Step(epoch+1, monitor))
		if stop {
			logger.Info("stopping early", "epoch", epoch+1)
			break
		}
	}

	for _, cb := range callbacks {
		cb.onTrainEnd(nil)
	}

	if err := os.MkdirAll(filepath.Dir(mc.ModelPath), 0755); err != nil {
		return nil, errors.Wrapf(err, "retina: failed to create model dir for %q", mc.ModelPath)
	}
	if err := s.model.Save(mc.ModelPath); err != nil {
		return nil, errors.Wrapf(err, "retina: failed to save model %q", mc.ModelPath)
	}
	return s.history.History, nil
}

// evaluate returns the sample-weighted loss, accuracy and kappa over val
func (s *Solver) evaluate(ctx context.Context, val *Loader, epoch int) (float64, float64, float64, error) {
	acc := Accuracy()
	kappa := QuadraticKappa(s.cfg.Model.Kwargs.NumClasses)
	acc.reset()
	kappa.reset()

	total, seen := 0.0, 0
	err := val.Epoch(ctx, epoch, func(_ int, b *Batch) error {
		loss, pred, err := s.model.Evaluate(ctx, b)
		if err != nil {
			return errors.Wrap(err, "retina: evaluate")
		}
		if len(pred) != b.Len() {
			return errorf("evaluate returned %d classes for %d images", len(pred), b.Len())
		}
		total += loss * float64(b.Len())
		seen += b.Len()
		acc.update(pred, b.Labels)
		kappa.update(pred, b.Labels)
		return nil
	})
	if err != nil {
		return 0, 0, 0, err
	}
	return total / math.Max(float64(seen), 1), acc.result(), kappa.result(), nil
}

// Prediction is the predicted grade of one test image
type Prediction struct {
	Image string
	Level int
}

// Predict classifies every image of test
func (s *Solver) Predict(ctx context.Context, test *Loader) ([]Prediction, error) {
	var out []Prediction
	err := test.Epoch(ctx, 0, func(_ int, b *Batch) error {
		pred, err := s.model.Predict(ctx, b)
		if err != nil {
			return errors.Wrap(err, "retina: predict")
		}
		if len(pred) != b.Len() {
			return errorf("predict returned %d classes for %d images", len(pred), b.Len())
		}
		for i, name := range b.Names {
			out = append(out, Prediction{Image: name, Level: pred[i]})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
