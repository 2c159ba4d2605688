// Package server exposes archived runs over HTTP: a JSON listing, a
// per-run summary, a rendered throughput chart and a websocket that
// pushes the run list whenever it changes.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/loadview/loadview/internal/config"
	"github.com/loadview/loadview/internal/render"
	"github.com/loadview/loadview/internal/result"
	"github.com/loadview/loadview/internal/store"
	"github.com/loadview/loadview/internal/summary"
	"github.com/loadview/loadview/internal/util"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingInterval = 30 * time.Second

	clientSendBuffer = 16
)

type Server struct {
	cfg      config.ServerConfig
	store    *store.Store
	renderer *render.Renderer
	logger   util.Logger

	httpSrv *http.Server

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	send chan []byte
}

func New(cfg config.ServerConfig, st *store.Store, renderer *render.Renderer, logger util.Logger) *Server {
	return &Server{
		cfg:      cfg,
		store:    st,
		renderer: renderer,
		logger:   logger,
		clients:  make(map[*client]struct{}),
	}
}

// Handler returns the HTTP routes of the report server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/", s.handleRun)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// ListenAndServe blocks serving requests until Shutdown is called.
func (s *Server) ListenAndServe() error {
	addr := net.JoinHostPort(s.cfg.BindAddr, strconv.Itoa(s.cfg.BindPort))
	s.httpSrv = &http.Server{Addr: addr, Handler: s.Handler()}
	s.logger.Info("report server listening", "addr", addr)
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// NotifyRunsChanged pushes a fresh run list to every connected websocket
// client. Slow clients are skipped rather than blocked on.
func (s *Server) NotifyRunsChanged() {
	payload, err := s.runListPayload()
	if err != nil {
		s.logger.Warn("run list broadcast failed", "error", err)
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
		}
	}
}

type runEntry struct {
	ID           string   `json:"id"`
	ImportedAt   int64    `json:"imported_at"`
	GeneratedBy  string   `json:"generated_by"`
	DurationMs   int64    `json:"duration_ms"`
	Streams      int      `json:"streams"`
	DownloadMbps *float64 `json:"download_mbps,omitempty"`
	UploadMbps   *float64 `json:"upload_mbps,omitempty"`
	LatencyMs    *float64 `json:"latency_ms,omitempty"`
	LossCount    int      `json:"loss_count"`
}

type runListMessage struct {
	Type string     `json:"type"`
	Runs []runEntry `json:"runs"`
}

type throughputEntry struct {
	AvgMbps         float64 `json:"avg_mbps"`
	TrimmedMeanMbps float64 `json:"trimmed_mean_mbps"`
	PeakMbps        float64 `json:"peak_mbps"`
	P90Mbps         float64 `json:"p90_mbps"`
	P80Mbps         float64 `json:"p80_mbps"`
	Bytes           float64 `json:"bytes"`
}

type latencyEntry struct {
	MinMs    float64 `json:"min_ms"`
	MeanMs   float64 `json:"mean_ms"`
	MaxMs    float64 `json:"max_ms"`
	P50Ms    float64 `json:"p50_ms"`
	P90Ms    float64 `json:"p90_ms"`
	P99Ms    float64 `json:"p99_ms"`
	JitterMs float64 `json:"jitter_ms"`
	Samples  int     `json:"samples"`
	Lost     int     `json:"lost"`
}

type runSummaryResponse struct {
	ID          string           `json:"id"`
	GeneratedBy string           `json:"generated_by"`
	DurationMs  int64            `json:"duration_ms"`
	Streams     int              `json:"streams"`
	Download    *throughputEntry `json:"download,omitempty"`
	Upload      *throughputEntry `json:"upload,omitempty"`
	Both        *throughputEntry `json:"both,omitempty"`
	Latency     latencyEntry     `json:"latency"`
	PeerLatency *latencyEntry    `json:"peer_latency,omitempty"`
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	payload, err := s.runListPayload()
	if err != nil {
		s.logger.Error("run listing failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, "/api/runs/")
	id, resource, _ := strings.Cut(rest, "/")
	if id == "" {
		http.NotFound(w, r)
		return
	}

	run, err := s.store.Get(id)
	if errors.Is(err, store.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("run load failed", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	switch resource {
	case "":
		s.writeRunSummary(w, id, run)
	case "plot":
		derived := result.Derive(run)
		w.Header().Set("Content-Type", "image/png")
		if err := s.renderer.WriteThroughputPNG(derived, w); err != nil {
			s.logger.Error("plot render failed", "id", id, "error", err)
		}
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) writeRunSummary(w http.ResponseWriter, id string, run *result.RawRun) {
	sum := summary.Summarize(result.Derive(run))
	resp := runSummaryResponse{
		ID:          id,
		GeneratedBy: run.GeneratedBy,
		DurationMs:  run.Duration.Milliseconds(),
		Streams:     run.Streams(),
		Download:    throughputJSON(sum.Download),
		Upload:      throughputJSON(sum.Upload),
		Both:        throughputJSON(sum.Both),
		Latency:     latencyJSON(sum.Latency),
	}
	if sum.PeerLatency != nil {
		peer := latencyJSON(*sum.PeerLatency)
		resp.PeerLatency = &peer
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	c := &client{send: make(chan []byte, clientSendBuffer)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	if payload, err := s.runListPayload(); err == nil {
		c.send <- payload
	}

	done := make(chan struct{})
	var closeOnce sync.Once
	cleanup := func() {
		closeOnce.Do(func() {
			close(done)
			_ = conn.Close()
			s.mu.Lock()
			delete(s.clients, c)
			s.mu.Unlock()
		})
	}

	go func() {
		defer cleanup()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer cleanup()
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case data := <-c.send:
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}()
}

func (s *Server) runListPayload() ([]byte, error) {
	infos, err := s.store.List()
	if err != nil {
		return nil, err
	}
	msg := runListMessage{Type: "runs", Runs: make([]runEntry, 0, len(infos))}
	for _, info := range infos {
		msg.Runs = append(msg.Runs, runEntry{
			ID:           info.ID,
			ImportedAt:   info.ImportedAt.UnixMilli(),
			GeneratedBy:  info.GeneratedBy,
			DurationMs:   info.Duration.Milliseconds(),
			Streams:      info.Streams,
			DownloadMbps: info.DownloadMbps,
			UploadMbps:   info.UploadMbps,
			LatencyMs:    info.LatencyMs,
			LossCount:    info.LossCount,
		})
	}
	return json.Marshal(msg)
}

func throughputJSON(stats *summary.ThroughputStats) *throughputEntry {
	if stats == nil {
		return nil
	}
	return &throughputEntry{
		AvgMbps:         stats.AvgMbps,
		TrimmedMeanMbps: stats.TrimmedMeanMbps,
		PeakMbps:        stats.PeakMbps,
		P90Mbps:         stats.P90Mbps,
		P80Mbps:         stats.P80Mbps,
		Bytes:           stats.Bytes,
	}
}

func latencyJSON(stats summary.LatencyStats) latencyEntry {
	ms := func(d time.Duration) float64 { return float64(d) / float64(time.Millisecond) }
	return latencyEntry{
		MinMs:    ms(stats.Min),
		MeanMs:   ms(stats.Mean),
		MaxMs:    ms(stats.Max),
		P50Ms:    ms(stats.P50),
		P90Ms:    ms(stats.P90),
		P99Ms:    ms(stats.P99),
		JitterMs: ms(stats.Jitter),
		Samples:  stats.Samples,
		Lost:     stats.Lost,
	}
}
