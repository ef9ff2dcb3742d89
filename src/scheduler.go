package retina

import "math"

// Scheduler adjusts the learning rate once per completed epoch. metric is
// the monitored validation loss; only ReduceLROnPlateau reads it.
type Scheduler interface {
	Step(epoch int, metric float64) float64
	LR() float64
	name() string
}

// StepDecayScheduler - drops LR by Gamma every StepSize epochs
type StepDecayScheduler struct {
	StepSize int
	Gamma    float64
	baseLR   float64
	lr       float64
}

func StepDecay(baseLR float64, args StepSchedulerArgs) *StepDecayScheduler {
	return &StepDecayScheduler{
		StepSize: args.StepSize,
		Gamma:    args.Gamma,
		baseLR:   baseLR,
		lr:       baseLR,
	}
}

func (s *StepDecayScheduler) Step(epoch int, _ float64) float64 {
	s.lr = s.baseLR * math.Pow(s.Gamma, float64(epoch/s.StepSize))
	return s.lr
}

func (s *StepDecayScheduler) LR() float64  { return s.lr }
func (s *StepDecayScheduler) name() string { return "step_decay" }

// ExponentialDecayScheduler - decays by Gamma every epoch
type ExponentialDecayScheduler struct {
	Gamma  float64
	baseLR float64
	lr     float64
}

func ExponentialDecay(baseLR float64, args ExpSchedulerArgs) *ExponentialDecayScheduler {
	return &ExponentialDecayScheduler{Gamma: args.Gamma, baseLR: baseLR, lr: baseLR}
}

func (e *ExponentialDecayScheduler) Step(epoch int, _ float64) float64 {
	e.lr = e.baseLR * math.Pow(e.Gamma, float64(epoch))
	return e.lr
}

func (e *ExponentialDecayScheduler) LR() float64  { return e.lr }
func (e *ExponentialDecayScheduler) name() string { return "exponential_decay" }

// PlateauScheduler - reduces LR when the monitored loss stops improving
type PlateauScheduler struct {
	Factor    float64
	Patience  int
	Threshold float64 // relative, a new best must be below best*(1-Threshold)
	MinLR     float64
	Cooldown  int
	Verbose   bool
	lr        float64
	best      float64
	bad       int
	cooldown  int
}

// minLRDelta ignores reductions too small to matter
const minLRDelta = 1e-8

func ReduceLROnPlateau(baseLR float64, args PlateauSchedulerArgs) *PlateauScheduler {
	return &PlateauScheduler{
		Factor:    args.Factor,
		Patience:  args.Patience,
		Threshold: args.Threshold,
		MinLR:     args.MinLR,
		Cooldown:  args.Cooldown,
		Verbose:   args.Verbose,
		lr:        baseLR,
		best:      math.Inf(1),
	}
}

func (p *PlateauScheduler) Step(epoch int, metric float64) float64 {
	if metric < p.best*(1-p.Threshold) {
		p.best = metric
		p.bad = 0
	} else {
		p.bad++
	}

	if p.cooldown > 0 {
		p.cooldown--
		p.bad = 0
	}

	if p.bad > p.Patience {
		newLR := math.Max(p.lr*p.Factor, p.MinLR)
		if p.lr-newLR > minLRDelta {
			if p.Verbose {
				logger.Info("reducing learning rate", "epoch", epoch, "from", p.lr, "to", newLR)
			}
			p.lr = newLR
		}
		p.cooldown = p.Cooldown
		p.bad = 0
	}
	return p.lr
}

func (p *PlateauScheduler) LR() float64  { return p.lr }
func (p *PlateauScheduler) name() string { return "plateau" }

// ConstantScheduler - no change to learning rate
type ConstantScheduler struct {
	lr float64
}

func ConstantLR(baseLR float64) *ConstantScheduler { return &ConstantScheduler{lr: baseLR} }

func (c *ConstantScheduler) Step(int, float64) float64 { return c.lr }
func (c *ConstantScheduler) LR() float64               { return c.lr }
func (c *ConstantScheduler) name() string              { return "constant" }

// NewScheduler builds the scheduler selected by LRSchedulerType
func NewScheduler(ctrl TrainControl, baseLR float64) (Scheduler, error) {
	if err := ValidateTrainControl(ctrl); err != nil {
		return nil, err
	}
	switch ctrl.LRSchedulerType {
	case SchedulerStep:
		return StepDecay(baseLR, ctrl.StepSchedulerArgs), nil
	case SchedulerExp:
		return ExponentialDecay(baseLR, ctrl.ExpSchedulerArgs), nil
	case SchedulerPlateau:
		return ReduceLROnPlateau(baseLR, ctrl.PlateauSchedulerArgs), nil
	default:
		return ConstantLR(baseLR), nil
	}
}
