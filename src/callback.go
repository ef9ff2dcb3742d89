package retina

import "math"

// Callback is called by the Solver during training at various points
type Callback interface {
	onTrainBegin(logs map[string]float64)
	onTrainEnd(logs map[string]float64)
	onEpochEnd(epoch int, logs map[string]float64) bool // return true to stop training
	onBatchEnd(iteration int, logs map[string]float64)
	name() string
}

// EarlyStoppingCallback stops training when metric stops improving
type EarlyStoppingCallback struct {
	Monitor      string
	MinDelta     float64
	Patience     int
	Mode         string // "min" or "max"
	bestValue    float64
	wait         int
	StoppedEpoch int
}

type EarlyStoppingConfig struct {
	Monitor  string
	MinDelta float64
	Patience int
	Mode     string
}

func EarlyStopping(config EarlyStoppingConfig) *EarlyStoppingCallback {
	e := &EarlyStoppingCallback{
		Monitor:  config.Monitor,
		MinDelta: config.MinDelta,
		Patience: config.Patience,
		Mode:     config.Mode,
	}
	e.onTrainBegin(nil)
	return e
}

func (e *EarlyStoppingCallback) onTrainBegin(logs map[string]float64) {
	e.wait = 0
	e.StoppedEpoch = -1
	if e.Mode == "max" {
		e.bestValue = math.Inf(-1)
	} else {
		e.bestValue = math.Inf(1)
	}
}

func (e *EarlyStoppingCallback) onTrainEnd(logs map[string]float64) {}

func (e *EarlyStoppingCallback) onEpochEnd(epoch int, logs map[string]float64) bool {
	current, ok := logs[e.Monitor]
	if !ok {
		return false
	}

	improved := false
	if e.Mode == "max" {
		improved = current > e.bestValue+e.MinDelta
	} else {
		improved = current < e.bestValue-e.MinDelta
	}

	if improved {
		e.bestValue = current
		e.wait = 0
		return false
	}
	e.wait++
	if e.wait >= e.Patience {
		e.StoppedEpoch = epoch
		return true
	}
	return false
}

func (e *EarlyStoppingCallback) onBatchEnd(iteration int, logs map[string]float64) {}
func (e *EarlyStoppingCallback) name() string                                      { return "early_stopping" }

// LogProgressCallback logs the training loss every LogNth iterations and a
// summary after each epoch
type LogProgressCallback struct {
	LogNth          int
	TotalIterations int
}

func LogProgress(logNth, totalIterations int) *LogProgressCallback {
	return &LogProgressCallback{LogNth: logNth, TotalIterations: totalIterations}
}

func (p *LogProgressCallback) onTrainBegin(logs map[string]float64) {
	logger.Info("training started", "iterations", p.TotalIterations)
}

func (p *LogProgressCallback) onTrainEnd(logs map[string]float64) {
	logger.Info("training complete")
}

func (p *LogProgressCallback) onEpochEnd(epoch int, logs map[string]float64) bool {
	args := []any{"epoch", epoch + 1}
	for _, k := range []string{"train_loss", "val_loss", "val_accuracy", "val_kappa", "lr"} {
		if v, ok := logs[k]; ok {
			args = append(args, k, v)
		}
	}
	logger.Info("epoch done", args...)
	return false
}

func (p *LogProgressCallback) onBatchEnd(iteration int, logs map[string]float64) {
	if p.LogNth > 0 && iteration%p.LogNth == 0 {
		logger.Info("train", "iteration", iteration, "of", p.TotalIterations, "loss", logs["loss"])
	}
}

func (p *LogProgressCallback) name() string { return "log_progress" }

// HistoryCallback records per-epoch logs
type HistoryCallback struct {
	History map[string][]float64
}

func History() *HistoryCallback {
	return &HistoryCallback{
		History: make(map[string][]float64),
	}
}

func (h *HistoryCallback) onTrainBegin(logs map[string]float64) {
	h.History = make(map[string][]float64)
}

func (h *HistoryCallback) onTrainEnd(logs map[string]float64) {}

func (h *HistoryCallback) onEpochEnd(epoch int, logs map[string]float64) bool {
	for k, v := range logs {
		h.History[k] = append(h.History[k], v)
	}
	return false
}

func (h *HistoryCallback) onBatchEnd(iteration int, logs map[string]float64) {}
func (h *HistoryCallback) name() string                                      { return "history" }
