// Package render draws charts from a derived run: combined or per-stream
// throughput, latency over time, lost probes, data transferred and the
// latency distribution. It accepts any set of named series, including
// empty ones (skipped) and single-point ones (drawn as a point).
package render

import (
	"fmt"
	"image/color"
	"io"
	"time"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/loadview/loadview/internal/config"
	"github.com/loadview/loadview/internal/result"
	"github.com/loadview/loadview/internal/series"
)

var (
	uploadColor   = color.RGBA{R: 37, G: 83, B: 169, A: 255}
	downloadColor = color.RGBA{R: 95, G: 145, B: 62, A: 255}
	bothColor     = color.RGBA{R: 149, G: 96, B: 153, A: 255}
	totalColor    = color.RGBA{R: 50, G: 50, B: 50, A: 255}

	downloadShades = []color.RGBA{
		{R: 188, G: 203, B: 177, A: 255},
		{R: 215, G: 223, B: 208, A: 255},
	}
	uploadShades = []color.RGBA{
		{R: 159, G: 172, B: 202, A: 255},
		{R: 211, G: 217, B: 231, A: 255},
	}
)

const (
	axisHeadroom = 1.05
	screenDPI    = 96
)

type Renderer struct {
	cfg config.PlotConfig
}

func New(cfg config.PlotConfig) *Renderer {
	return &Renderer{cfg: cfg}
}

// WriteCharts renders every configured chart for the run, writing files
// named base plus a chart suffix. It returns the paths written.
func (r *Renderer) WriteCharts(derived *result.Derived, base string) ([]string, error) {
	type chart struct {
		suffix string
		build  func() (*plot.Plot, error)
		skip   bool
	}
	charts := []chart{
		{suffix: ".throughput.png", build: func() (*plot.Plot, error) { return r.Throughput(derived) },
			skip: r.cfg.SplitThroughput || derived.Run.Streams() == 0},
		{suffix: ".download_streams.png", build: func() (*plot.Plot, error) { return r.StreamThroughput(derived, true) },
			skip: !r.cfg.SplitThroughput || !(derived.Run.Download() || derived.Run.Both())},
		{suffix: ".upload_streams.png", build: func() (*plot.Plot, error) { return r.StreamThroughput(derived, false) },
			skip: !r.cfg.SplitThroughput || !(derived.Run.Upload() || derived.Run.Both())},
		{suffix: ".latency.png", build: func() (*plot.Plot, error) { return r.Latency(derived.Pings, derived, false) }},
		{suffix: ".peer_latency.png", build: func() (*plot.Plot, error) { return r.Latency(derived.PeerPings, derived, true) },
			skip: derived.PeerPings == nil},
		{suffix: ".loss.png", build: func() (*plot.Plot, error) { return r.Loss(derived) }},
		{suffix: ".transferred.png", build: func() (*plot.Plot, error) { return r.Transferred(derived) },
			skip: !r.cfg.Transferred || derived.Run.Streams() == 0},
		{suffix: ".latency_ecdf.png", build: func() (*plot.Plot, error) { return r.LatencyECDF(derived.Pings) },
			skip: !r.cfg.LatencyECDF},
	}

	var written []string
	for _, c := range charts {
		if c.skip {
			continue
		}
		p, err := c.build()
		if err != nil {
			return written, err
		}
		path := base + c.suffix
		if err := p.Save(r.width(), r.height(), path); err != nil {
			return written, fmt.Errorf("save %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

// WriteThroughputPNG renders the combined throughput chart to w, for
// serving without touching the filesystem.
func (r *Renderer) WriteThroughputPNG(derived *result.Derived, w io.Writer) error {
	p, err := r.Throughput(derived)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(r.width(), r.height(), "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// Throughput builds the combined chart: one rate line per present
// direction plus the simultaneous-phase total.
func (r *Renderer) Throughput(derived *result.Derived) (*plot.Plot, error) {
	p, err := r.newChart("Throughput (Mbps)")
	if err != nil {
		return nil, err
	}
	p.Title.Text = r.cfg.Title

	type entry struct {
		name  string
		color color.RGBA
		rates series.Series
	}
	var entries []entry
	if derived.BothBytes != nil {
		entries = append(entries, entry{"Both", bothColor, series.ToRates(derived.BothBytes)})
	}
	if derived.UploadBytes != nil || derived.BothUploadBytes != nil {
		entries = append(entries, entry{"Upload", uploadColor, series.ToRates(derived.CombinedUploadBytes)})
	}
	if derived.DownloadBytes != nil || derived.BothDownloadBytes != nil {
		entries = append(entries, entry{"Download", downloadColor, series.ToRates(derived.CombinedDownloadBytes)})
	}

	var values []float64
	for _, e := range entries {
		for _, s := range e.rates {
			values = append(values, s.Value)
		}
	}
	r.boundAxes(p, derived, values, float64(r.cfg.MaxThroughputBps)/1e6)

	start := derived.Start.Seconds()
	for _, e := range entries {
		if err := addSeries(p, e.name, e.color, rateXYs(e.rates, start)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// StreamThroughput builds one direction's chart with a rate line per
// overlay stream; the full group total is drawn in the direction's main
// color and partial sums in alternating light shades.
func (r *Renderer) StreamThroughput(derived *result.Derived, download bool) (*plot.Plot, error) {
	label := "Upload (Mbps)"
	main := uploadColor
	shades := uploadShades
	if download {
		label = "Download (Mbps)"
		main = downloadColor
		shades = downloadShades
	}
	p, err := r.newChart(label)
	if err != nil {
		return nil, err
	}

	var values []float64
	var groups [][]series.Series
	for _, group := range derived.StreamGroups {
		if group.Download != download {
			continue
		}
		rates := make([]series.Series, 0, len(group.Streams))
		for _, overlay := range group.Streams {
			rates = append(rates, series.ToRates(overlay))
		}
		if n := len(rates); n > 0 {
			for _, s := range rates[n-1] {
				values = append(values, s.Value)
			}
		}
		groups = append(groups, rates)
	}
	r.boundAxes(p, derived, values, float64(r.cfg.MaxThroughputBps)/1e6)

	start := derived.Start.Seconds()
	for _, rates := range groups {
		for i, stream := range rates {
			c := main
			if i != len(rates)-1 {
				c = shades[i%len(shades)]
			}
			if err := addSeries(p, "", c, rateXYs(stream, start)); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// Latency builds the round-trip chart with up, down and total lines.
// Runs of consecutive samples are drawn as line segments; a missing
// sample breaks the line so losses show up as gaps.
func (r *Renderer) Latency(pings []result.Ping, derived *result.Derived, peer bool) (*plot.Plot, error) {
	label := "Latency (ms)"
	if peer {
		label = "Peer latency (ms)"
	}
	p, err := r.newChart(label)
	if err != nil {
		return nil, err
	}

	var values []float64
	for _, ping := range pings {
		if ping.Latency != nil && ping.Latency.Total != nil {
			values = append(values, float64(*ping.Latency.Total)/float64(time.Millisecond))
		}
	}
	r.boundAxes(p, derived, values, r.cfg.MaxLatencyMs)

	start := derived.Start.Seconds()
	type line struct {
		name  string
		color color.RGBA
		pick  func(*result.Latency) *time.Duration
	}
	lines := []line{
		{"Up", uploadColor, func(l *result.Latency) *time.Duration { up := l.Up; return &up }},
		{"Down", downloadColor, (*result.Latency).Down},
		{"Total", totalColor, func(l *result.Latency) *time.Duration { return l.Total }},
	}
	for _, l := range lines {
		segments := latencySegments(pings, start, l.pick)
		for i, segment := range segments {
			name := ""
			if i == 0 {
				name = l.name
			}
			if err := addSeries(p, name, l.color, segment); err != nil {
				return nil, err
			}
		}
	}
	return p, nil
}

// Loss builds a chart marking probes without a round trip: probes lost on
// the way up versus replies lost on the way down.
func (r *Renderer) Loss(derived *result.Derived) (*plot.Plot, error) {
	p, err := r.newChart("Packet loss")
	if err != nil {
		return nil, err
	}
	p.X.Min = 0
	p.X.Max = derived.Duration.Seconds()
	p.Y.Min = 0
	p.Y.Max = 1

	start := derived.Start.Seconds()
	var up, down plotter.XYs
	for _, ping := range derived.Pings {
		x := ping.Sent.Seconds() - start
		switch {
		case ping.Latency == nil:
			up = append(up, plotter.XY{X: x, Y: 0.25})
		case ping.Latency.Total == nil:
			down = append(down, plotter.XY{X: x, Y: 0.75})
		}
	}
	if err := addPoints(p, "Up", uploadColor, up); err != nil {
		return nil, err
	}
	return p, addPoints(p, "Down", downloadColor, down)
}

// Transferred builds the cumulative data chart in GiB.
func (r *Renderer) Transferred(derived *result.Derived) (*plot.Plot, error) {
	p, err := r.newChart("Data transferred (GiB)")
	if err != nil {
		return nil, err
	}

	const gib = 1024 * 1024 * 1024
	type entry struct {
		name  string
		color color.RGBA
		bytes series.Series
	}
	entries := []entry{
		{"Download", downloadColor, derived.CombinedDownloadBytes},
		{"Upload", uploadColor, derived.CombinedUploadBytes},
		{"Both", bothColor, derived.BothBytes},
	}

	var values []float64
	for _, e := range entries {
		for _, s := range e.bytes {
			values = append(values, s.Value/gib)
		}
	}
	r.boundAxes(p, derived, values, 0)

	start := derived.Start.Seconds()
	for _, e := range entries {
		xys := make(plotter.XYs, 0, len(e.bytes))
		for _, s := range e.bytes {
			xys = append(xys, plotter.XY{X: float64(s.Time)/1e6 - start, Y: s.Value / gib})
		}
		if err := addSeries(p, e.name, e.color, xys); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// LatencyECDF builds the empirical distribution of measured round trips.
func (r *Renderer) LatencyECDF(pings []result.Ping) (*plot.Plot, error) {
	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	p.X.Label.Text = "Latency (ms)"
	p.Y.Label.Text = "Fraction of samples"
	p.Y.Min = 0
	p.Y.Max = 1

	var samples []float64
	for _, ping := range pings {
		if ping.Latency != nil && ping.Latency.Total != nil {
			samples = append(samples, float64(*ping.Latency.Total)/float64(time.Millisecond))
		}
	}
	p.X.Min = 0
	p.X.Max = series.FloatMax(samples) * axisHeadroom
	return p, addSeries(p, "Total", totalColor, ecdf(samples))
}

func (r *Renderer) newChart(yLabel string) (*plot.Plot, error) {
	p, err := plot.New()
	if err != nil {
		return nil, err
	}
	p.X.Label.Text = "Elapsed time (seconds)"
	p.Y.Label.Text = yLabel
	p.Legend.Top = true
	return p, nil
}

// boundAxes fixes the x axis to the run duration and the y axis to the
// data maximum with headroom, raised to floor when configured.
func (r *Renderer) boundAxes(p *plot.Plot, derived *result.Derived, values []float64, floor float64) {
	p.X.Min = 0
	p.X.Max = derived.Duration.Seconds()
	p.Y.Min = 0
	max := series.FloatMax(values) * axisHeadroom
	if floor > max {
		max = floor
	}
	p.Y.Max = max
}

func (r *Renderer) width() vg.Length {
	return vg.Length(r.cfg.WidthPx) * vg.Inch / screenDPI
}

func (r *Renderer) height() vg.Length {
	return vg.Length(r.cfg.HeightPx) * vg.Inch / screenDPI
}

// rateXYs shifts a series to seconds relative to the run start.
func rateXYs(s series.Series, start float64) plotter.XYs {
	xys := make(plotter.XYs, 0, len(s))
	for _, sample := range s {
		xys = append(xys, plotter.XY{X: float64(sample.Time)/1e6 - start, Y: sample.Value})
	}
	return xys
}

// latencySegments groups consecutive pings with a value from pick into
// line segments, breaking on lost samples.
func latencySegments(pings []result.Ping, start float64, pick func(*result.Latency) *time.Duration) []plotter.XYs {
	var segments []plotter.XYs
	var current plotter.XYs
	flush := func() {
		if len(current) > 0 {
			segments = append(segments, current)
			current = nil
		}
	}
	for _, ping := range pings {
		if ping.Latency == nil {
			flush()
			continue
		}
		value := pick(ping.Latency)
		if value == nil {
			flush()
			continue
		}
		current = append(current, plotter.XY{
			X: ping.Sent.Seconds() - start,
			Y: float64(*value) / float64(time.Millisecond),
		})
	}
	flush()
	return segments
}

// addSeries draws xys as a line, or a single point when there is only one
// sample. Empty input adds nothing. A non-empty name adds a legend entry.
func addSeries(p *plot.Plot, name string, c color.RGBA, xys plotter.XYs) error {
	if len(xys) == 0 {
		return nil
	}
	if len(xys) == 1 {
		return addPoints(p, name, c, xys)
	}
	line, err := plotter.NewLine(xys)
	if err != nil {
		return err
	}
	line.Color = c
	p.Add(line)
	if name != "" {
		p.Legend.Add(name, line)
	}
	return nil
}

func addPoints(p *plot.Plot, name string, c color.RGBA, xys plotter.XYs) error {
	if len(xys) == 0 {
		return nil
	}
	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	scatter.Color = c
	p.Add(scatter)
	if name != "" {
		p.Legend.Add(name, scatter)
	}
	return nil
}
