package manager

import (
	"slices"
	"time"

	"gonum.org/v1/gonum/stat"
)

// throughput keeps tokens/second of the most recent completed generations.
type throughput struct {
	samples []float64
	next    int
	full    bool
}

func newThroughput(n int) throughput { return throughput{samples: make([]float64, n)} }

func (t *throughput) add(tokens int, d time.Duration) {
	if tokens <= 0 || d <= 0 {
		return
	}
	t.samples[t.next] = float64(tokens) / d.Seconds()
	t.next++
	if t.next == len(t.samples) {
		t.next, t.full = 0, true
	}
}

func (t *throughput) values() []float64 {
	if t.full {
		return slices.Clone(t.samples)
	}
	return slices.Clone(t.samples[:t.next])
}

// summary returns the mean and median tokens/second, or zeros when empty.
func (t *throughput) summary() (mean, p50 float64) {
	xs := t.values()
	if len(xs) == 0 {
		return 0, 0
	}
	slices.Sort(xs)
	return stat.Mean(xs, nil), stat.Quantile(0.5, stat.Empirical, xs, nil)
}
