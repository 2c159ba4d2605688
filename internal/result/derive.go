package result

import (
	"fmt"
	"time"

	"github.com/loadview/loadview/internal/series"
)

// DerivedGroup carries the per-stream overlay series of one stream group.
// Streams[i] is the aggregate of raw streams 0..i, so the last entry is
// the group total and earlier entries are the partial sums a stacked
// rendering needs.
type DerivedGroup struct {
	Download bool
	Both     bool
	Streams  []series.Series
}

// Derived is the time-aligned view of a run. It is built once by Derive
// and read-only afterwards. Per-category series are nil when the run has
// no streams in that category.
type Derived struct {
	Run *RawRun

	Start    time.Duration
	Duration time.Duration

	// DownloadBytes and UploadBytes are the merged byte series of the
	// single-direction phases. BothDownloadBytes and BothUploadBytes are
	// their counterparts for the simultaneous phase.
	DownloadBytes     series.Series
	UploadBytes       series.Series
	BothDownloadBytes series.Series
	BothUploadBytes   series.Series

	// CombinedDownloadBytes merges the download-only and both-phase
	// download series; CombinedUploadBytes is symmetric.
	CombinedDownloadBytes series.Series
	CombinedUploadBytes   series.Series

	// BothBytes is the total of both directions during the simultaneous
	// phase, present only when the run has one.
	BothBytes series.Series

	Pings     []Ping
	PeerPings []Ping

	StreamGroups []DerivedGroup
}

// Derive groups a run's raw streams by category, aggregates them onto the
// run's sampling grid and builds the combined and overlay series. A run
// whose Both flag is set but is missing one of the both-phase stream
// groups is malformed; Derive panics rather than producing a partial sum.
func Derive(run *RawRun) *Derived {
	interval := uint64(run.Config.Interval / time.Microsecond)
	if interval == 0 {
		panic("result: run has no sampling interval")
	}

	groups := make([]DerivedGroup, 0, len(run.StreamGroups))
	for _, group := range run.StreamGroups {
		overlays := make([]series.Series, 0, len(group.Streams))
		for i := range group.Streams {
			prefix := make([]series.Series, 0, i+1)
			for _, stream := range group.Streams[:i+1] {
				prefix = append(prefix, stream.Floats())
			}
			overlays = append(overlays, series.Sum(prefix, interval))
		}
		groups = append(groups, DerivedGroup{
			Download: group.Download,
			Both:     group.Both,
			Streams:  overlays,
		})
	}

	var streamsByCat [numCategories][]series.Series
	var present [numCategories]bool
	for _, group := range run.StreamGroups {
		cat := CategoryOf(group.Download, group.Both)
		for _, stream := range group.Streams {
			streamsByCat[cat] = append(streamsByCat[cat], stream.Floats())
		}
		present[cat] = true
	}

	var byCategory [numCategories]series.Series
	for cat, streams := range streamsByCat {
		if present[cat] {
			byCategory[cat] = series.Sum(streams, interval)
		}
	}

	combine := func(a, b Category) series.Series {
		parts := make([]series.Series, 0, 2)
		if present[a] {
			parts = append(parts, byCategory[a])
		}
		if present[b] {
			parts = append(parts, byCategory[b])
		}
		return series.Sum(parts, interval)
	}

	var bothBytes series.Series
	if run.Both() {
		for _, cat := range []Category{BothDownload, BothUpload} {
			if !present[cat] {
				panic(fmt.Sprintf("result: both-phase run has no %s stream group", cat))
			}
		}
		bothBytes = series.Sum([]series.Series{byCategory[BothDownload], byCategory[BothUpload]}, interval)
	}

	return &Derived{
		Run:                   run,
		Start:                 run.Start,
		Duration:              run.Duration,
		DownloadBytes:         byCategory[DownloadOnly],
		UploadBytes:           byCategory[UploadOnly],
		BothDownloadBytes:     byCategory[BothDownload],
		BothUploadBytes:       byCategory[BothUpload],
		CombinedDownloadBytes: combine(DownloadOnly, BothDownload),
		CombinedUploadBytes:   combine(UploadOnly, BothUpload),
		BothBytes:             bothBytes,
		Pings:                 run.Pings,
		PeerPings:             run.PeerPings,
		StreamGroups:          groups,
	}
}
