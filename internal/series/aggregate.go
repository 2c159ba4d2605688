package series

import "fmt"

// aligned is a series produced by Resample for a given interval. Every
// sample sits exactly on a multiple of that interval, which is what lets
// lookups during aggregation distinguish only three cases: exact hit,
// before the first point, after the last point.
type aligned struct {
	samples Series
}

// at returns the stream's contribution at a grid point: its value on an
// exact hit, zero before it has started, and its final value once it has
// finished. A point strictly between two samples means the grid-alignment
// invariant was broken somewhere upstream and is a bug, not bad input.
func (a aligned) at(point uint64) float64 {
	i := searchTime(a.samples, point)
	switch {
	case i < len(a.samples) && a.samples[i].Time == point:
		return a.samples[i].Value
	case i == 0:
		return 0
	case i == len(a.samples):
		return a.samples[len(a.samples)-1].Value
	default:
		panic(fmt.Sprintf("series: point %dµs falls between grid points of an aligned series", point))
	}
}

// Sum resamples each input series onto the given interval and sums them
// pointwise over the union of their time ranges. Streams that have not yet
// started contribute zero; streams that have finished contribute their
// final total. An empty input list yields nil. Summing a single series is
// identical to resampling it.
func Sum(list []Series, interval uint64) Series {
	if len(list) == 0 {
		return nil
	}

	streams := make([]aligned, len(list))
	var min, max uint64
	for k, s := range list {
		streams[k] = aligned{samples: Resample(s, interval)}
		var first, last uint64
		if n := len(streams[k].samples); n > 0 {
			first = streams[k].samples[0].Time
			last = streams[k].samples[n-1].Time
		}
		if k == 0 || first < min {
			min = first
		}
		if last > max {
			max = last
		}
	}

	out := make(Series, 0, (max-min)/interval+1)
	for point := min; ; point += interval {
		var total float64
		for _, stream := range streams {
			total += stream.at(point)
		}
		out = append(out, Sample{Time: point, Value: total})
		if point == max {
			break
		}
	}
	return out
}
