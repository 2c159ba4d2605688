// Package result models recorded load-test runs and derives the combined,
// time-aligned series that rendering and summarizing operate on.
package result

import (
	"time"

	"github.com/loadview/loadview/internal/series"
)

// RawSample is one cumulative byte counter reading of a single stream.
type RawSample struct {
	// Time is microseconds since the start of the recording.
	Time uint64
	// Bytes is the total number of payload bytes transferred so far.
	Bytes uint64
}

// RawStream is the raw cumulative byte series of one data stream.
type RawStream []RawSample

// Floats widens a raw stream to the float series the pipeline operates on.
func (s RawStream) Floats() series.Series {
	out := make(series.Series, len(s))
	for i, sample := range s {
		out[i] = series.Sample{Time: sample.Time, Value: float64(sample.Bytes)}
	}
	return out
}

// StreamGroup is a set of streams sharing direction and phase. Download
// tells the direction; Both marks streams that ran while the opposite
// direction was also loaded.
type StreamGroup struct {
	Download bool
	Both     bool
	Streams  []RawStream
}

// Category identifies one of the four meaningful (direction, phase)
// combinations a stream group can belong to.
type Category int

const (
	UploadOnly Category = iota
	DownloadOnly
	BothUpload
	BothDownload
	numCategories
)

// CategoryOf maps a stream group's tags to its category.
func CategoryOf(download, both bool) Category {
	switch {
	case download && both:
		return BothDownload
	case download:
		return DownloadOnly
	case both:
		return BothUpload
	default:
		return UploadOnly
	}
}

func (c Category) String() string {
	switch c {
	case UploadOnly:
		return "upload"
	case DownloadOnly:
		return "download"
	case BothUpload:
		return "both-upload"
	case BothDownload:
		return "both-download"
	default:
		return "unknown"
	}
}

// Latency is one round-trip measurement. Up is the client-to-server leg.
// Total is nil when the reply never arrived.
type Latency struct {
	Up    time.Duration
	Total *time.Duration
}

// Down returns the server-to-client leg, or nil when the total is unknown.
func (l *Latency) Down() *time.Duration {
	if l.Total == nil {
		return nil
	}
	down := *l.Total - l.Up
	return &down
}

// Ping is one latency probe. Latency is nil when the probe itself was
// lost on the way to the server.
type Ping struct {
	Index int
	// Sent is the probe send time relative to the start of the recording.
	Sent    time.Duration
	Latency *Latency
}

// RunConfig captures the parameters the probe was started with.
type RunConfig struct {
	// Download, Upload and Both select which test phases ran.
	Download bool
	Upload   bool
	Both     bool
	// Interval is the grid step used for all resampling of this run.
	Interval time.Duration
	// Stagger is the delay between starting consecutive streams.
	Stagger time.Duration
	// LoadDuration is the configured length of each load phase.
	LoadDuration time.Duration
}

// RawRun is a complete recorded test run as produced by the probe.
type RawRun struct {
	Version     int
	GeneratedBy string
	IPv6        bool
	Config      RunConfig
	// Start is the offset of the first load phase within the recording.
	Start time.Duration
	// Duration is the total length of the recording.
	Duration time.Duration
	// ServerLatency is the idle round-trip time measured before the test.
	ServerLatency time.Duration
	StreamGroups  []StreamGroup
	Pings         []Ping
	// PeerPings holds latency samples taken by the server side, if any.
	PeerPings []Ping
}

// Streams reports the total number of data streams across all groups.
func (r *RawRun) Streams() int {
	n := 0
	for _, group := range r.StreamGroups {
		n += len(group.Streams)
	}
	return n
}

// Download reports whether the run includes a download-only phase.
func (r *RawRun) Download() bool { return r.Config.Download }

// Upload reports whether the run includes an upload-only phase.
func (r *RawRun) Upload() bool { return r.Config.Upload }

// Both reports whether the run includes a simultaneous up/down phase.
func (r *RawRun) Both() bool { return r.Config.Both }
