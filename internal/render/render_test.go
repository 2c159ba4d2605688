package render

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/loadview/loadview/internal/config"
	"github.com/loadview/loadview/internal/result"
)

func testDerived(t *testing.T) *result.Derived {
	t.Helper()
	total := 12 * time.Millisecond
	run := &result.RawRun{
		Version:     2,
		GeneratedBy: "loadview test",
		Config: result.RunConfig{
			Download: true,
			Upload:   true,
			Both:     true,
			Interval: 500 * time.Millisecond,
		},
		Duration: 6 * time.Second,
		StreamGroups: []result.StreamGroup{
			{Download: true, Streams: []result.RawStream{
				{{Time: 0, Bytes: 0}, {Time: 2_000_000, Bytes: 4_000_000}},
				{{Time: 500_000, Bytes: 0}, {Time: 2_000_000, Bytes: 1_000_000}},
			}},
			{Download: true, Both: true, Streams: []result.RawStream{
				{{Time: 4_000_000, Bytes: 0}, {Time: 6_000_000, Bytes: 2_000_000}},
			}},
			{Both: true, Streams: []result.RawStream{
				{{Time: 4_000_000, Bytes: 0}, {Time: 6_000_000, Bytes: 1_000_000}},
			}},
			{Streams: []result.RawStream{
				{{Time: 2_000_000, Bytes: 0}, {Time: 4_000_000, Bytes: 1_000_000}},
			}},
		},
		Pings: []result.Ping{
			{Index: 0, Sent: 100 * time.Millisecond, Latency: &result.Latency{Up: 5 * time.Millisecond, Total: &total}},
			{Index: 1, Sent: 200 * time.Millisecond},
			{Index: 2, Sent: 300 * time.Millisecond, Latency: &result.Latency{Up: 4 * time.Millisecond}},
			{Index: 3, Sent: 400 * time.Millisecond, Latency: &result.Latency{Up: 6 * time.Millisecond, Total: &total}},
		},
	}
	return result.Derive(run)
}

func testPlotConfig() config.PlotConfig {
	cfg := config.Default().Plot
	cfg.WidthPx = 640
	cfg.HeightPx = 360
	return cfg
}

func TestWriteCharts(t *testing.T) {
	cfg := testPlotConfig()
	cfg.Transferred = true
	cfg.LatencyECDF = true
	r := New(cfg)

	base := filepath.Join(t.TempDir(), "run")
	written, err := r.WriteCharts(testDerived(t), base)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	want := []string{".throughput.png", ".latency.png", ".loss.png", ".transferred.png", ".latency_ecdf.png"}
	if len(written) != len(want) {
		t.Fatalf("expected %d charts, got %d: %v", len(want), len(written), written)
	}
	for i, suffix := range want {
		if !strings.HasSuffix(written[i], suffix) {
			t.Fatalf("chart %d: expected suffix %s, got %s", i, suffix, written[i])
		}
		info, err := os.Stat(written[i])
		if err != nil {
			t.Fatalf("missing chart file: %v", err)
		}
		if info.Size() == 0 {
			t.Fatalf("empty chart file %s", written[i])
		}
	}
}

func TestWriteChartsSplit(t *testing.T) {
	cfg := testPlotConfig()
	cfg.SplitThroughput = true
	r := New(cfg)

	base := filepath.Join(t.TempDir(), "run")
	written, err := r.WriteCharts(testDerived(t), base)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	var sawDownload, sawUpload, sawCombined bool
	for _, path := range written {
		sawDownload = sawDownload || strings.HasSuffix(path, ".download_streams.png")
		sawUpload = sawUpload || strings.HasSuffix(path, ".upload_streams.png")
		sawCombined = sawCombined || strings.HasSuffix(path, ".throughput.png")
	}
	if !sawDownload || !sawUpload {
		t.Fatalf("expected split charts, got %v", written)
	}
	if sawCombined {
		t.Fatalf("expected no combined chart in split mode, got %v", written)
	}
}

func TestWriteThroughputPNG(t *testing.T) {
	r := New(testPlotConfig())

	var buf bytes.Buffer
	if err := r.WriteThroughputPNG(testDerived(t), &buf); err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected PNG bytes")
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("expected PNG signature, got %q", buf.Bytes()[:4])
	}
}

func TestSinglePointSeriesRenders(t *testing.T) {
	// A run whose only stream has one sample produces single-point
	// series; these must render as points, not fail.
	run := &result.RawRun{
		Config: result.RunConfig{Download: true, Interval: 500 * time.Millisecond},
		StreamGroups: []result.StreamGroup{
			{Download: true, Streams: []result.RawStream{{{Time: 1_000_000, Bytes: 500}}}},
		},
		Duration: 2 * time.Second,
	}
	r := New(testPlotConfig())

	base := filepath.Join(t.TempDir(), "run")
	if _, err := r.WriteCharts(result.Derive(run), base); err != nil {
		t.Fatalf("render failed on single-point series: %v", err)
	}
}
