package result

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Run files are JSON documents with all durations spelled out in
// microseconds, matching the resolution of the stream counters.

type runFile struct {
	Version         int               `json:"version"`
	GeneratedBy     string            `json:"generated_by"`
	IPv6            bool              `json:"ipv6"`
	Config          runConfigFile     `json:"config"`
	StartUs         int64             `json:"start_us"`
	DurationUs      int64             `json:"duration_us"`
	ServerLatencyUs int64             `json:"server_latency_us"`
	StreamGroups    []streamGroupFile `json:"stream_groups"`
	Pings           []pingFile        `json:"pings"`
	PeerPings       []pingFile        `json:"peer_pings,omitempty"`
}

type runConfigFile struct {
	Download       bool  `json:"download"`
	Upload         bool  `json:"upload"`
	Both           bool  `json:"both"`
	IntervalUs     int64 `json:"interval_us"`
	StaggerUs      int64 `json:"stagger_us"`
	LoadDurationUs int64 `json:"load_duration_us"`
}

type streamGroupFile struct {
	Download bool           `json:"download"`
	Both     bool           `json:"both"`
	Streams  [][]sampleFile `json:"streams"`
}

type sampleFile struct {
	TimeUs uint64 `json:"time_us"`
	Bytes  uint64 `json:"bytes"`
}

type pingFile struct {
	Index   int          `json:"index"`
	SentUs  int64        `json:"sent_us"`
	Latency *latencyFile `json:"latency,omitempty"`
}

type latencyFile struct {
	UpUs    int64  `json:"up_us"`
	TotalUs *int64 `json:"total_us,omitempty"`
}

// DecodeRun reads a run file document from r.
func DecodeRun(r io.Reader) (*RawRun, error) {
	var file runFile
	dec := json.NewDecoder(r)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode run: %w", err)
	}
	return file.toRun(), nil
}

// EncodeRun writes run as a run file document to w.
func EncodeRun(w io.Writer, run *RawRun) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(fromRun(run)); err != nil {
		return fmt.Errorf("encode run: %w", err)
	}
	return nil
}

// LoadRunFile reads and decodes the run file at path.
func LoadRunFile(path string) (*RawRun, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open run file: %w", err)
	}
	defer f.Close()
	run, err := DecodeRun(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return run, nil
}

// SaveRunFile encodes run and writes it to path.
func SaveRunFile(path string, run *RawRun) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create run file: %w", err)
	}
	if err := EncodeRun(f, run); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (file *runFile) toRun() *RawRun {
	run := &RawRun{
		Version:     file.Version,
		GeneratedBy: file.GeneratedBy,
		IPv6:        file.IPv6,
		Config: RunConfig{
			Download:     file.Config.Download,
			Upload:       file.Config.Upload,
			Both:         file.Config.Both,
			Interval:     time.Duration(file.Config.IntervalUs) * time.Microsecond,
			Stagger:      time.Duration(file.Config.StaggerUs) * time.Microsecond,
			LoadDuration: time.Duration(file.Config.LoadDurationUs) * time.Microsecond,
		},
		Start:         time.Duration(file.StartUs) * time.Microsecond,
		Duration:      time.Duration(file.DurationUs) * time.Microsecond,
		ServerLatency: time.Duration(file.ServerLatencyUs) * time.Microsecond,
	}
	for _, group := range file.StreamGroups {
		streams := make([]RawStream, 0, len(group.Streams))
		for _, stream := range group.Streams {
			raw := make(RawStream, len(stream))
			for i, sample := range stream {
				raw[i] = RawSample{Time: sample.TimeUs, Bytes: sample.Bytes}
			}
			streams = append(streams, raw)
		}
		run.StreamGroups = append(run.StreamGroups, StreamGroup{
			Download: group.Download,
			Both:     group.Both,
			Streams:  streams,
		})
	}
	run.Pings = pingsFromFile(file.Pings)
	run.PeerPings = pingsFromFile(file.PeerPings)
	return run
}

func fromRun(run *RawRun) *runFile {
	file := &runFile{
		Version:     run.Version,
		GeneratedBy: run.GeneratedBy,
		IPv6:        run.IPv6,
		Config: runConfigFile{
			Download:       run.Config.Download,
			Upload:         run.Config.Upload,
			Both:           run.Config.Both,
			IntervalUs:     run.Config.Interval.Microseconds(),
			StaggerUs:      run.Config.Stagger.Microseconds(),
			LoadDurationUs: run.Config.LoadDuration.Microseconds(),
		},
		StartUs:         run.Start.Microseconds(),
		DurationUs:      run.Duration.Microseconds(),
		ServerLatencyUs: run.ServerLatency.Microseconds(),
	}
	for _, group := range run.StreamGroups {
		streams := make([][]sampleFile, 0, len(group.Streams))
		for _, stream := range group.Streams {
			samples := make([]sampleFile, len(stream))
			for i, sample := range stream {
				samples[i] = sampleFile{TimeUs: sample.Time, Bytes: sample.Bytes}
			}
			streams = append(streams, samples)
		}
		file.StreamGroups = append(file.StreamGroups, streamGroupFile{
			Download: group.Download,
			Both:     group.Both,
			Streams:  streams,
		})
	}
	file.Pings = pingsToFile(run.Pings)
	file.PeerPings = pingsToFile(run.PeerPings)
	return file
}

func pingsFromFile(in []pingFile) []Ping {
	if in == nil {
		return nil
	}
	out := make([]Ping, 0, len(in))
	for _, ping := range in {
		p := Ping{Index: ping.Index, Sent: time.Duration(ping.SentUs) * time.Microsecond}
		if ping.Latency != nil {
			lat := &Latency{Up: time.Duration(ping.Latency.UpUs) * time.Microsecond}
			if ping.Latency.TotalUs != nil {
				total := time.Duration(*ping.Latency.TotalUs) * time.Microsecond
				lat.Total = &total
			}
			p.Latency = lat
		}
		out = append(out, p)
	}
	return out
}

func pingsToFile(in []Ping) []pingFile {
	if in == nil {
		return nil
	}
	out := make([]pingFile, 0, len(in))
	for _, ping := range in {
		p := pingFile{Index: ping.Index, SentUs: ping.Sent.Microseconds()}
		if ping.Latency != nil {
			lat := &latencyFile{UpUs: ping.Latency.Up.Microseconds()}
			if ping.Latency.Total != nil {
				total := ping.Latency.Total.Microseconds()
				lat.TotalUs = &total
			}
			p.Latency = lat
		}
		out = append(out, p)
	}
	return out
}
