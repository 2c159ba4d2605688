package result

import (
	"testing"
	"time"

	"github.com/loadview/loadview/internal/series"
)

func testInterval() time.Duration { return 500 * time.Millisecond }

// rampStream returns a stream transferring total bytes linearly over one
// second, starting at the given offset.
func rampStream(offsetUs uint64, total uint64) RawStream {
	return RawStream{
		{Time: offsetUs, Bytes: 0},
		{Time: offsetUs + 1_000_000, Bytes: total},
	}
}

func TestDeriveSingleDownloadStream(t *testing.T) {
	run := &RawRun{
		Config: RunConfig{Download: true, Interval: testInterval()},
		StreamGroups: []StreamGroup{
			{Download: true, Streams: []RawStream{rampStream(0, 1_000_000)}},
		},
		Duration: time.Second,
	}
	derived := Derive(run)

	want := series.Series{
		{Time: 0, Value: 0},
		{Time: 500_000, Value: 500_000},
		{Time: 1_000_000, Value: 1_000_000},
	}
	if len(derived.DownloadBytes) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(derived.DownloadBytes))
	}
	for i := range want {
		if derived.DownloadBytes[i] != want[i] {
			t.Fatalf("point %d: expected %v, got %v", i, want[i], derived.DownloadBytes[i])
		}
	}

	// With only a download-only category, the combined download series
	// equals the category series and upload series are absent.
	for i := range want {
		if derived.CombinedDownloadBytes[i] != want[i] {
			t.Fatalf("combined point %d: expected %v, got %v", i, want[i], derived.CombinedDownloadBytes[i])
		}
	}
	if derived.UploadBytes != nil || derived.CombinedUploadBytes != nil {
		t.Fatalf("expected no upload series, got %v / %v", derived.UploadBytes, derived.CombinedUploadBytes)
	}
	if derived.BothBytes != nil {
		t.Fatalf("expected no both-phase total, got %v", derived.BothBytes)
	}
}

func TestDeriveOverlays(t *testing.T) {
	run := &RawRun{
		Config: RunConfig{Upload: true, Interval: testInterval()},
		StreamGroups: []StreamGroup{
			{Streams: []RawStream{
				rampStream(0, 1_000_000),
				rampStream(0, 500_000),
				rampStream(0, 250_000),
			}},
		},
	}
	derived := Derive(run)

	if len(derived.StreamGroups) != 1 {
		t.Fatalf("expected one derived group, got %d", len(derived.StreamGroups))
	}
	overlays := derived.StreamGroups[0].Streams
	if len(overlays) != 3 {
		t.Fatalf("expected 3 overlay series, got %d", len(overlays))
	}

	// Overlay i is the running sum of streams 0..i; the last one equals
	// the category total.
	finals := []float64{1_000_000, 1_500_000, 1_750_000}
	for i, overlay := range overlays {
		if got := overlay[len(overlay)-1].Value; got != finals[i] {
			t.Fatalf("overlay %d: expected final value %v, got %v", i, finals[i], got)
		}
	}
	total := derived.UploadBytes
	last := overlays[2]
	if len(total) != len(last) {
		t.Fatalf("expected last overlay to match category total length")
	}
	for i := range total {
		if total[i] != last[i] {
			t.Fatalf("point %d: last overlay %v differs from category total %v", i, last[i], total[i])
		}
	}
}

func TestDeriveCombinedAcrossPhases(t *testing.T) {
	run := &RawRun{
		Config: RunConfig{Download: true, Upload: true, Both: true, Interval: testInterval()},
		StreamGroups: []StreamGroup{
			{Download: true, Streams: []RawStream{rampStream(0, 1_000_000)}},
			{Download: true, Both: true, Streams: []RawStream{rampStream(2_000_000, 400_000)}},
			{Both: true, Streams: []RawStream{rampStream(2_000_000, 100_000)}},
			{Streams: []RawStream{rampStream(4_000_000, 200_000)}},
		},
	}
	derived := Derive(run)

	cd := derived.CombinedDownloadBytes
	if cd[0].Time != 0 || cd[len(cd)-1].Time != 3_000_000 {
		t.Fatalf("combined download spans [%d, %d], expected [0, 3000000]", cd[0].Time, cd[len(cd)-1].Time)
	}
	if got := cd[len(cd)-1].Value; got != 1_400_000 {
		t.Fatalf("expected combined download total 1400000, got %v", got)
	}

	cu := derived.CombinedUploadBytes
	if got := cu[len(cu)-1].Value; got != 300_000 {
		t.Fatalf("expected combined upload total 300000, got %v", got)
	}

	both := derived.BothBytes
	if both == nil {
		t.Fatalf("expected a both-phase total")
	}
	if got := both[len(both)-1].Value; got != 500_000 {
		t.Fatalf("expected both-phase total 500000, got %v", got)
	}
	if both[0].Time != 2_000_000 {
		t.Fatalf("expected both-phase total to start at 2000000, got %d", both[0].Time)
	}
}

func TestDeriveBothPhaseMissingGroupPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for both-phase run without both-upload streams")
		}
	}()

	run := &RawRun{
		Config: RunConfig{Both: true, Interval: testInterval()},
		StreamGroups: []StreamGroup{
			{Download: true, Both: true, Streams: []RawStream{rampStream(0, 1000)}},
		},
	}
	Derive(run)
}

func TestDeriveNoInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic for run without sampling interval")
		}
	}()
	Derive(&RawRun{})
}

func TestCategoryOf(t *testing.T) {
	cases := []struct {
		download, both bool
		want           Category
	}{
		{false, false, UploadOnly},
		{true, false, DownloadOnly},
		{false, true, BothUpload},
		{true, true, BothDownload},
	}
	for _, tc := range cases {
		if got := CategoryOf(tc.download, tc.both); got != tc.want {
			t.Fatalf("CategoryOf(%v, %v) = %v, want %v", tc.download, tc.both, got, tc.want)
		}
	}
}
