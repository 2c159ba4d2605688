// Package summary condenses a derived run into the headline numbers the
// CLI prints and the store indexes: throughput statistics per direction
// and latency statistics over the run's ping samples.
package summary

import (
	"math"
	"sort"
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"

	"github.com/loadview/loadview/internal/result"
	"github.com/loadview/loadview/internal/series"
)

const (
	trimFraction  = 0.1
	peakWindowDur = time.Second

	// Latency histogram bounds in microseconds: 1µs to 60s.
	latencyHistMin    = 1
	latencyHistMax    = 60_000_000
	latencyHistSigFig = 3
)

// ThroughputStats describes one direction's combined throughput.
type ThroughputStats struct {
	// AvgMbps is total bytes over total time.
	AvgMbps float64
	// TrimmedMeanMbps is the mean of interval rates with the top and
	// bottom 10% removed.
	TrimmedMeanMbps float64
	// PeakMbps is the sustained peak over a 1s rolling window.
	PeakMbps float64
	// P90Mbps and P80Mbps are percentiles of interval rates.
	P90Mbps float64
	P80Mbps float64
	// Bytes is the total number of bytes transferred.
	Bytes float64
}

// LatencyStats describes the round-trip samples of a run.
type LatencyStats struct {
	Min    time.Duration
	Mean   time.Duration
	Max    time.Duration
	P50    time.Duration
	P90    time.Duration
	P99    time.Duration
	Jitter time.Duration
	// Samples counts probes with a measured round trip; Lost counts
	// probes without one.
	Samples int
	Lost    int
}

// Summary is the condensed view of one derived run.
type Summary struct {
	Download *ThroughputStats
	Upload   *ThroughputStats
	Both     *ThroughputStats
	Latency  LatencyStats
	// PeerLatency is present when the run carries server-side samples.
	PeerLatency *LatencyStats
}

// Summarize computes the summary of a derived run.
func Summarize(derived *result.Derived) Summary {
	s := Summary{Latency: LatencyOf(derived.Pings)}
	if derived.CombinedDownloadBytes != nil {
		stats := ThroughputOf(derived.CombinedDownloadBytes)
		s.Download = &stats
	}
	if derived.CombinedUploadBytes != nil {
		stats := ThroughputOf(derived.CombinedUploadBytes)
		s.Upload = &stats
	}
	if derived.BothBytes != nil {
		stats := ThroughputOf(derived.BothBytes)
		s.Both = &stats
	}
	if derived.PeerPings != nil {
		peer := LatencyOf(derived.PeerPings)
		s.PeerLatency = &peer
	}
	return s
}

// ThroughputOf derives throughput statistics from a cumulative byte
// series. Fewer than two points yield only the byte total.
func ThroughputOf(bytes series.Series) ThroughputStats {
	stats := ThroughputStats{}
	if len(bytes) == 0 {
		return stats
	}
	stats.Bytes = bytes[len(bytes)-1].Value
	if len(bytes) < 2 {
		return stats
	}

	rates := make([]float64, 0, len(bytes)-1)
	cumulativeBytes := make([]float64, 0, len(bytes)-1)
	cumulativeTimes := make([]float64, 0, len(bytes)-1)
	var totalBytes, totalTime float64
	for i := 1; i < len(bytes); i++ {
		seconds := float64(bytes[i].Time-bytes[i-1].Time) / 1e6
		if seconds <= 0 {
			continue
		}
		delta := bytes[i].Value - bytes[i-1].Value
		rates = append(rates, delta*8/seconds/1e6)
		totalBytes += delta
		totalTime += seconds
		cumulativeBytes = append(cumulativeBytes, totalBytes)
		cumulativeTimes = append(cumulativeTimes, totalTime)
	}
	if len(rates) == 0 || totalTime <= 0 {
		return stats
	}

	sort.Float64s(rates)

	stats.AvgMbps = totalBytes * 8 / totalTime / 1e6
	stats.TrimmedMeanMbps = trimmedMean(rates, trimFraction)
	stats.P90Mbps = percentile(rates, 0.90)
	stats.P80Mbps = percentile(rates, 0.80)
	stats.PeakMbps = peakRollingWindow(cumulativeBytes, cumulativeTimes, peakWindowDur) / 1e6
	if stats.PeakMbps == 0 {
		stats.PeakMbps = stats.AvgMbps
	}
	return stats
}

// LatencyOf derives latency statistics from ping samples.
func LatencyOf(pings []result.Ping) LatencyStats {
	stats := LatencyStats{}
	hist := hdrhistogram.New(latencyHistMin, latencyHistMax, latencyHistSigFig)
	for _, ping := range pings {
		if ping.Latency == nil || ping.Latency.Total == nil {
			stats.Lost++
			continue
		}
		us := ping.Latency.Total.Microseconds()
		if us < latencyHistMin {
			us = latencyHistMin
		}
		if us > latencyHistMax {
			us = latencyHistMax
		}
		_ = hist.RecordValue(us)
		stats.Samples++
	}
	if stats.Samples == 0 {
		return stats
	}

	us := func(v int64) time.Duration { return time.Duration(v) * time.Microsecond }
	stats.Min = us(hist.Min())
	stats.Max = us(hist.Max())
	stats.Mean = time.Duration(hist.Mean() * float64(time.Microsecond))
	stats.P50 = us(hist.ValueAtQuantile(50))
	stats.P90 = us(hist.ValueAtQuantile(90))
	stats.P99 = us(hist.ValueAtQuantile(99))
	stats.Jitter = time.Duration(hist.StdDev() * float64(time.Microsecond))
	return stats
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// trimmedMean averages sorted values after cutting frac off each end.
func trimmedMean(values []float64, frac float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if frac <= 0 || frac >= 0.5 {
		return mean(values)
	}
	cut := int(math.Floor(float64(len(values)) * frac))
	start := cut
	end := len(values) - cut
	if start >= end {
		return mean(values)
	}
	sum := 0.0
	for i := start; i < end; i++ {
		sum += values[i]
	}
	return sum / float64(end-start)
}

// percentile picks from sorted values using the nearest-rank method.
func percentile(values []float64, pct float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if pct <= 0 {
		return values[0]
	}
	if pct >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(float64(len(values))*pct)) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}

// peakRollingWindow finds the highest rate in bits/sec sustained over the
// given window, from parallel cumulative byte and elapsed-second arrays.
func peakRollingWindow(bytes []float64, times []float64, window time.Duration) float64 {
	if len(bytes) == 0 || len(times) == 0 || len(bytes) != len(times) {
		return 0
	}
	windowSec := window.Seconds()
	if windowSec <= 0 {
		return 0
	}

	start := 0
	peak := 0.0
	for i := 0; i < len(times); i++ {
		for start+1 <= i && times[i]-times[start+1] >= windowSec {
			start++
		}
		dt := times[i] - times[start]
		if dt < windowSec || dt <= 0 {
			continue
		}
		db := bytes[i] - bytes[start]
		if db < 0 {
			continue
		}
		rate := db * 8 / dt
		if rate > peak {
			peak = rate
		}
	}
	return peak
}
