package retina

import (
	"bytes"
	"encoding/json"
	"os"
	"slices"

	"github.com/pkg/errors"
)

// RebalanceStrategy selects how class imbalance is handled per epoch
type RebalanceStrategy string

const (
	RebalanceEven       RebalanceStrategy = "even"        // same number of samples for each class
	RebalancePosNeg     RebalanceStrategy = "posneg"      // same number for class 0 and all other classes
	RebalanceAlmostEven RebalanceStrategy = "almost_even" // halve the imbalance against the largest class
	RebalanceNone       RebalanceStrategy = "none"
)

// OptimizerKind names one of the supported optimizers
type OptimizerKind string

const (
	OptimizerAdam OptimizerKind = "adam"
	OptimizerSGD  OptimizerKind = "sgd"
)

// SchedulerType names one of the supported learning rate schedules
type SchedulerType string

const (
	SchedulerExp     SchedulerType = "exp"
	SchedulerStep    SchedulerType = "step"
	SchedulerPlateau SchedulerType = "plateau"
	SchedulerNone    SchedulerType = "none"
)

// Device is where the external model runs
type Device string

const (
	DeviceGPU Device = "gpu"
	DeviceCPU Device = "cpu"
)

// Config holds the whole training setup - ALL fields required
type Config struct {
	Data      DataConfig      `json:"data_params"`
	Training  TrainingConfig  `json:"training_params"`
	Control   TrainControl    `json:"train_control"`
	Optimizer OptimizerParams `json:"optimizer_params"`
	Model     ModelConfig     `json:"model_params"`
}

// DataConfig for data loading
type DataConfig struct {
	TrainPath         string            `json:"train_path"`
	TestPath          string            `json:"test_path"`
	LabelPath         string            `json:"label_path"`
	BatchSize         int               `json:"batch_size"`
	SubmissionFile    string            `json:"submission_file"`
	RebalanceStrategy RebalanceStrategy `json:"rebalance_strategy"`
	NumLoadingWorkers int               `json:"num_loading_workers"`
}

// TrainingConfig for the epoch loop
type TrainingConfig struct {
	NumEpochs int `json:"num_epochs"`
	LogNth    int `json:"log_nth"` // log every n-th iteration
}

// TrainControl selects the optimizer and learning rate schedule.
// Only the args of the selected scheduler are used.
type TrainControl struct {
	Optimizer            OptimizerKind        `json:"optimizer"`
	LRSchedulerType      SchedulerType        `json:"lr_scheduler_type"`
	StepSchedulerArgs    StepSchedulerArgs    `json:"step_scheduler_args"`
	ExpSchedulerArgs     ExpSchedulerArgs     `json:"exp_scheduler_args"`
	PlateauSchedulerArgs PlateauSchedulerArgs `json:"plateau_scheduler_args"`
}

type StepSchedulerArgs struct {
	Gamma    float64 `json:"gamma"`     // new_lr = gamma * lr
	StepSize int     `json:"step_size"` // epochs between decays
}

type ExpSchedulerArgs struct {
	Gamma float64 `json:"gamma"` // new_lr = gamma * lr, every epoch
}

type PlateauSchedulerArgs struct {
	Factor    float64 `json:"factor"`    // new_lr = factor * lr
	Patience  int     `json:"patience"`  // epochs without improvement before decay
	Verbose   bool    `json:"verbose"`   // log when the LR changes
	Threshold float64 `json:"threshold"` // relative improvement that counts
	MinLR     float64 `json:"min_lr"`
	Cooldown  int     `json:"cooldown"` // epochs to wait after a decay
}

// OptimizerParams for the selected optimizer
type OptimizerParams struct {
	LR float64 `json:"lr"`
}

// ModelConfig for the external DRNet model
type ModelConfig struct {
	Train            bool        `json:"train"`              // false: load from ModelPath and evaluate
	TrainFromScratch bool        `json:"train_from_scratch"` // false: continue from ModelPath
	ModelPath        string      `json:"model_path"`
	Model            string      `json:"model"`
	Kwargs           ModelKwargs `json:"model_kwargs"`
	PerLayerRates    bool        `json:"per_layer_rates"`
	Device           Device      `json:"pytorch_device"`
	CUDADevice       int         `json:"cuda_device"` // only used on gpu
}

// ModelKwargs are passed through to the model constructor
type ModelKwargs struct {
	FreezeFeatures   bool      `json:"freeze_features"`
	FreezeUntilLayer int       `json:"freeze_until_layer"`
	NetSize          int       `json:"net_size"`
	NumClasses       int       `json:"num_classes"`
	Pretrained       bool      `json:"pretrained"`
	Rates            []float64 `json:"rates"`
}

// NetSizes lists the supported backbone depths
var NetSizes = []int{18, 34, 50, 101, 152}

// DefaultConfig returns the reference DRNet training setup
func DefaultConfig() Config {
	return Config{
		Data: DataConfig{
			TrainPath:         "../data/train_300",
			TestPath:          "../data/test",
			LabelPath:         "../data/trainLabels.csv",
			BatchSize:         128,
			SubmissionFile:    "../data/submission.csv",
			RebalanceStrategy: RebalanceEven,
			NumLoadingWorkers: 8,
		},
		Training: TrainingConfig{
			NumEpochs: 50,
			LogNth:    10,
		},
		Control: TrainControl{
			Optimizer:       OptimizerAdam,
			LRSchedulerType: SchedulerPlateau,
			StepSchedulerArgs: StepSchedulerArgs{
				Gamma:    0.1,
				StepSize: 3,
			},
			ExpSchedulerArgs: ExpSchedulerArgs{
				Gamma: 0.1,
			},
			PlateauSchedulerArgs: PlateauSchedulerArgs{
				Factor:    0.1,
				Patience:  5,
				Verbose:   true,
				Threshold: 0.0001,
				MinLR:     1e-8,
				Cooldown:  0,
			},
		},
		Optimizer: OptimizerParams{
			LR: 0.001,
		},
		Model: ModelConfig{
			Train:            true,
			TrainFromScratch: true,
			ModelPath:        "../models/DRNet.model",
			Model:            "DRNet",
			Kwargs: ModelKwargs{
				FreezeFeatures:   true,
				FreezeUntilLayer: 1,
				NetSize:          18,
				NumClasses:       5,
				Pretrained:       true,
				Rates:            []float64{},
			},
			PerLayerRates: false,
			Device:        DeviceGPU,
			CUDADevice:    0,
		},
	}
}

// LoadConfig reads a JSON config. Unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "retina: failed to read config %q", path)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, errors.Wrapf(err, "retina: failed to decode config %q", path)
	}
	return cfg, nil
}

// Save writes the config as indented JSON
func (c Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return errors.Wrap(err, "retina: failed to encode config")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
		return errors.Wrapf(err, "retina: failed to write config %q", path)
	}
	return nil
}

// ValidateConfig checks every section
func ValidateConfig(cfg Config) error {
	if err := ValidateDataConfig(cfg.Data); err != nil {
		return err
	}
	if err := ValidateTrainingConfig(cfg.Training); err != nil {
		return err
	}
	if err := ValidateTrainControl(cfg.Control); err != nil {
		return err
	}
	if err := ValidateOptimizerParams(cfg.Optimizer); err != nil {
		return err
	}
	return ValidateModelConfig(cfg.Model)
}

// ValidateDataConfig checks all required fields are set
func ValidateDataConfig(cfg DataConfig) error {
	const section = "data_params"
	if cfg.TrainPath == "" {
		return configErrorf(section, "train_path", cfg.TrainPath, "is required")
	}
	if cfg.TestPath == "" {
		return configErrorf(section, "test_path", cfg.TestPath, "is required")
	}
	if cfg.LabelPath == "" {
		return configErrorf(section, "label_path", cfg.LabelPath, "is required")
	}
	if cfg.BatchSize <= 0 {
		return configErrorf(section, "batch_size", cfg.BatchSize, "must be > 0")
	}
	switch cfg.RebalanceStrategy {
	case RebalanceEven, RebalancePosNeg, RebalanceAlmostEven, RebalanceNone:
	default:
		return configErrorf(section, "rebalance_strategy", cfg.RebalanceStrategy,
			"must be one of even, posneg, almost_even, none")
	}
	if cfg.NumLoadingWorkers < 0 {
		return configErrorf(section, "num_loading_workers", cfg.NumLoadingWorkers, "must be >= 0")
	}
	return nil
}

// ValidateTrainingConfig checks all required fields are set
func ValidateTrainingConfig(cfg TrainingConfig) error {
	const section = "training_params"
	if cfg.NumEpochs <= 0 {
		return configErrorf(section, "num_epochs", cfg.NumEpochs, "must be > 0")
	}
	if cfg.LogNth <= 0 {
		return configErrorf(section, "log_nth", cfg.LogNth, "must be > 0")
	}
	return nil
}

// ValidateTrainControl checks the optimizer choice and the args of the
// selected scheduler
func ValidateTrainControl(cfg TrainControl) error {
	const section = "train_control"
	switch cfg.Optimizer {
	case OptimizerAdam, OptimizerSGD:
	default:
		return configErrorf(section, "optimizer", cfg.Optimizer, "must be one of adam, sgd")
	}

	switch cfg.LRSchedulerType {
	case SchedulerStep:
		args := cfg.StepSchedulerArgs
		if args.StepSize <= 0 {
			return configErrorf(section, "step_scheduler_args.step_size", args.StepSize, "must be > 0")
		}
		if args.Gamma <= 0 || args.Gamma > 1 {
			return configErrorf(section, "step_scheduler_args.gamma", args.Gamma, "must be in (0, 1]")
		}
	case SchedulerExp:
		args := cfg.ExpSchedulerArgs
		if args.Gamma <= 0 || args.Gamma > 1 {
			return configErrorf(section, "exp_scheduler_args.gamma", args.Gamma, "must be in (0, 1]")
		}
	case SchedulerPlateau:
		args := cfg.PlateauSchedulerArgs
		if args.Factor <= 0 || args.Factor >= 1 {
			return configErrorf(section, "plateau_scheduler_args.factor", args.Factor, "must be in (0, 1)")
		}
		if args.Patience < 0 {
			return configErrorf(section, "plateau_scheduler_args.patience", args.Patience, "must be >= 0")
		}
		if args.Threshold < 0 {
			return configErrorf(section, "plateau_scheduler_args.threshold", args.Threshold, "must be >= 0")
		}
		if args.MinLR < 0 {
			return configErrorf(section, "plateau_scheduler_args.min_lr", args.MinLR, "must be >= 0")
		}
		if args.Cooldown < 0 {
			return configErrorf(section, "plateau_scheduler_args.cooldown", args.Cooldown, "must be >= 0")
		}
	case SchedulerNone:
	default:
		return configErrorf(section, "lr_scheduler_type", cfg.LRSchedulerType,
			"must be one of exp, step, plateau, none")
	}
	return nil
}

// ValidateOptimizerParams checks all required fields are set
func ValidateOptimizerParams(cfg OptimizerParams) error {
	if cfg.LR <= 0 {
		return configErrorf("optimizer_params", "lr", cfg.LR, "must be > 0")
	}
	return nil
}

// ValidateModelConfig checks all required fields are set
func ValidateModelConfig(cfg ModelConfig) error {
	const section = "model_params"
	if cfg.ModelPath == "" {
		return configErrorf(section, "model_path", cfg.ModelPath, "is required")
	}
	if cfg.Model == "" {
		return configErrorf(section, "model", cfg.Model, "is required")
	}
	kw := cfg.Kwargs
	if kw.NumClasses < 2 {
		return configErrorf(section, "model_kwargs.num_classes", kw.NumClasses, "must be >= 2")
	}
	if kw.FreezeUntilLayer < 0 {
		return configErrorf(section, "model_kwargs.freeze_until_layer", kw.FreezeUntilLayer, "must be >= 0")
	}
	if !slices.Contains(NetSizes, kw.NetSize) {
		return configErrorf(section, "model_kwargs.net_size", kw.NetSize, "must be one of %v", NetSizes)
	}
	for i, r := range kw.Rates {
		if r <= 0 {
			return configErrorf(section, "model_kwargs.rates", kw.Rates, "rate %d must be > 0, got %g", i, r)
		}
	}
	if cfg.PerLayerRates && len(kw.Rates) == 0 {
		return configErrorf(section, "per_layer_rates", cfg.PerLayerRates, "requires model_kwargs.rates")
	}
	switch cfg.Device {
	case DeviceGPU, DeviceCPU:
	default:
		return configErrorf(section, "pytorch_device", cfg.Device, "must be one of gpu, cpu")
	}
	if cfg.CUDADevice < 0 {
		return configErrorf(section, "cuda_device", cfg.CUDADevice, "must be >= 0")
	}
	return nil
}
