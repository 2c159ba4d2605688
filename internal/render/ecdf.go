package render

import (
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot/plotter"
)

// ecdf returns the empirical cumulative distribution of samples. The
// input slice is sorted in place.
func ecdf(samples []float64) plotter.XYs {
	n := len(samples)
	stat.SortWeighted(samples, nil)
	out := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		out[i].X = samples[i]
		out[i].Y = stat.CDF(samples[i], stat.Empirical, samples, nil)
	}
	return out
}
