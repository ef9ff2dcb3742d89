package retina

// Metric accumulates an evaluation score over batches of class predictions
type Metric interface {
	reset()
	update(pred, target []int)
	result() float64
	name() string
}

// AccuracyMetric - classification accuracy
type AccuracyMetric struct {
	correct int
	total   int
}

func Accuracy() Metric {
	return &AccuracyMetric{}
}

func (a *AccuracyMetric) reset() {
	a.correct = 0
	a.total = 0
}

func (a *AccuracyMetric) update(pred, target []int) {
	for i := range min(len(pred), len(target)) {
		if pred[i] == target[i] {
			a.correct++
		}
		a.total++
	}
}

func (a *AccuracyMetric) result() float64 {
	if a.total == 0 {
		return 0
	}
	return float64(a.correct) / float64(a.total)
}

func (a *AccuracyMetric) name() string { return "accuracy" }

// KappaMetric - quadratic weighted kappa between predicted and true grades.
// 1 is perfect agreement, 0 is chance level.
type KappaMetric struct {
	NumClasses int
	confusion  [][]int
}

func QuadraticKappa(numClasses int) Metric {
	k := &KappaMetric{NumClasses: numClasses}
	k.reset()
	return k
}

func (k *KappaMetric) reset() {
	k.confusion = make([][]int, k.NumClasses)
	for i := range k.confusion {
		k.confusion[i] = make([]int, k.NumClasses)
	}
}

func (k *KappaMetric) update(pred, target []int) {
	for i := range min(len(pred), len(target)) {
		p, t := pred[i], target[i]
		if p < 0 || p >= k.NumClasses || t < 0 || t >= k.NumClasses {
			continue
		}
		k.confusion[t][p]++
	}
}

func (k *KappaMetric) result() float64 {
	n := k.NumClasses
	rowSum := make([]float64, n)
	colSum := make([]float64, n)
	total := 0.0
	for i := range n {
		for j := range n {
			c := float64(k.confusion[i][j])
			rowSum[i] += c
			colSum[j] += c
			total += c
		}
	}
	if total == 0 || n < 2 {
		return 0
	}

	observed, expected := 0.0, 0.0
	for i := range n {
		for j := range n {
			w := float64((i-j)*(i-j)) / float64((n-1)*(n-1))
			observed += w * float64(k.confusion[i][j]) / total
			expected += w * rowSum[i] * colSum[j] / (total * total)
		}
	}
	if expected == 0 {
		return 1
	}
	return 1 - observed/expected
}

func (k *KappaMetric) name() string { return "kappa" }

// Score evaluates a metric on one set of predictions
func Score(m Metric, pred, target []int) float64 {
	m.reset()
	m.update(pred, target)
	return m.result()
}
