// Package series implements the transformations that turn recorded
// cumulative byte counters into plottable throughput data: resampling
// sparse counters onto a uniform time grid, pointwise aggregation of
// multiple streams, and conversion of cumulative counts into rates.
//
// All timestamps are microseconds since the start of the recording.
// Every function in this package is pure; inputs are never modified.
package series

import (
	"math"
	"sort"
)

// Sample is a single measurement point.
type Sample struct {
	// Time is the sample timestamp in microseconds.
	Time uint64
	// Value is the measured value, cumulative bytes for raw streams.
	Value float64
}

// Series is a sequence of samples with non-decreasing timestamps.
type Series []Sample

// Resample maps a sparse series onto a uniform grid of the given interval
// (in microseconds) using linear interpolation. The grid starts at the
// first sample's timestamp rounded down to a multiple of interval and ends
// at the last sample's timestamp rounded up. Values before the first
// sample and after the last are held flat. An empty input yields nil.
func Resample(in Series, interval uint64) Series {
	if len(in) == 0 {
		return nil
	}

	min := in[0].Time / interval * interval
	max := (in[len(in)-1].Time + interval - 1) / interval * interval

	out := make(Series, 0, (max-min)/interval+1)
	for point := min; ; point += interval {
		i := searchTime(in, point)
		var value float64
		switch {
		case i == len(in):
			// The stream has finished; its total holds.
			value = in[len(in)-1].Value
		case in[i].Time == point || i == 0:
			value = in[i].Value
		default:
			span := in[i].Time - in[i-1].Time
			if span == 0 {
				value = in[i].Value
			} else {
				ratio := float64(point-in[i-1].Time) / float64(span)
				value = in[i-1].Value + (in[i].Value-in[i-1].Value)*ratio
			}
		}
		out = append(out, Sample{Time: point, Value: value})
		if point == max {
			break
		}
	}
	return out
}

// ToRates converts a cumulative byte series into throughput in Mbps via
// finite differences. The first point always has rate zero. Non-empty
// output is bracketed by synthetic zero points one microsecond outside the
// measured range (the leading one is omitted when the series starts at
// time zero), so consumers see the throughput drop to zero at the edges.
func ToRates(in Series) Series {
	if len(in) == 0 {
		return nil
	}

	out := make(Series, 0, len(in)+2)
	if in[0].Time > 0 {
		out = append(out, Sample{Time: in[0].Time - 1, Value: 0})
	}
	out = append(out, Sample{Time: in[0].Time, Value: 0})
	for i := 1; i < len(in); i++ {
		bytes := in[i].Value - in[i-1].Value
		seconds := float64(in[i].Time-in[i-1].Time) / 1e6
		mbits := bytes * 8 / (1000 * 1000)
		out = append(out, Sample{Time: in[i].Time, Value: mbits / seconds})
	}
	out = append(out, Sample{Time: in[len(in)-1].Time + 1, Value: 0})
	return out
}

// FloatMax returns the largest finite value in values. Non-finite values
// carry no information and are skipped. If no finite value is present the
// fallback 100.0 is returned, so the result is always usable as an axis
// bound.
func FloatMax(values []float64) float64 {
	max := math.NaN()
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		if math.IsNaN(max) || v > max {
			max = v
		}
	}
	if math.IsNaN(max) {
		return 100.0
	}
	return max
}

// searchTime returns the index of the first sample with Time >= point.
func searchTime(in Series, point uint64) int {
	return sort.Search(len(in), func(i int) bool { return in[i].Time >= point })
}
