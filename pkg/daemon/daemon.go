// Package daemon wires the metric pipeline together: streamed samples
// land in per-source buffers, session logs go to the on-disk store,
// and a Unix-socket API serves queries and pushes live events.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lodestar-sh/lodestar/internal/buildinfo"
	"github.com/lodestar-sh/lodestar/pkg/buffer"
	"github.com/lodestar-sh/lodestar/pkg/config"
	"github.com/lodestar-sh/lodestar/pkg/core"
	"github.com/lodestar-sh/lodestar/pkg/logstore"
	"github.com/lodestar-sh/lodestar/pkg/stream"
	"github.com/lodestar-sh/lodestar/pkg/transport/uds"
)

// Daemon is the main lodestard process.
type Daemon struct {
	cfg     *config.Config
	server  *uds.Server
	streams *stream.Manager
	logs    *logstore.Store
	started time.Time

	mu        sync.RWMutex
	pipelines map[string]*pipeline

	logger *slog.Logger
}

// New creates a daemon from the given config.
func New(cfg *config.Config, logger *slog.Logger) *Daemon {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Daemon{
		cfg:       cfg,
		server:    uds.NewServer(cfg.Socket, logger),
		logs:      logstore.New(cfg.Logs.Dir, cfg.Logs.MaxFileSize, cfg.Logs.MaxAge.Std(), logger),
		started:   time.Now(),
		pipelines: make(map[string]*pipeline),
		logger:    logger,
	}
	d.streams = stream.NewManager(stream.Handler{
		Sample: func(_ string, p core.MetricPoint) { d.Ingest(p) },
		State:  d.onSourceState,
		Error:  d.onStreamError,
	}, stream.Options{
		ReconnectInterval:    cfg.Stream.ReconnectInterval.Std(),
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
	}, logger)
	d.registerHandlers()
	return d
}

// Logs returns the session log store.
func (d *Daemon) Logs() *logstore.Store { return d.logs }

// Streams returns the stream manager.
func (d *Daemon) Streams() *stream.Manager { return d.streams }

// Server returns the underlying control-socket server.
func (d *Daemon) Server() *uds.Server { return d.server }

// Run subscribes the configured sources and serves the control socket
// until the context is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	if removed, err := d.logs.Sweep(); err != nil {
		d.logger.Warn("log sweep failed", "err", err)
	} else if removed > 0 {
		d.logger.Info("log sweep removed expired sessions", "sessions", removed)
	}

	for _, src := range d.cfg.Sources {
		err := d.streams.Subscribe(src.ID, stream.Endpoints{
			PushURL:   src.PushURL,
			SocketURL: src.SocketURL,
		})
		if err != nil {
			d.logger.Warn("subscribe failed", "source", src.ID, "err", err)
		}
	}

	return d.server.Start(ctx)
}

// Shutdown tears down stream connections and the control socket.
func (d *Daemon) Shutdown() {
	d.streams.Close()
	d.server.Shutdown()
}

// Ingest routes one sample into its source pipeline and broadcasts it
// to connected clients. The host collector and the stream manager both
// feed this.
func (d *Daemon) Ingest(point core.MetricPoint) {
	if point.SourceID == "" || point.Kind == "" {
		return
	}
	if point.TsUnixMs == 0 {
		point.TsUnixMs = time.Now().UnixMilli()
	}

	d.pipeline(point.SourceID).ingest(point)

	if evt, err := uds.NewEvent(uds.EventMetricsSample, uds.SampleEvent{Point: point}); err == nil {
		d.server.Broadcast(evt)
	}
}

// pipeline returns the source's pipeline, creating it on first use.
func (d *Daemon) pipeline(sourceID string) *pipeline {
	d.mu.RLock()
	p, ok := d.pipelines[sourceID]
	d.mu.RUnlock()
	if ok {
		return p
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok = d.pipelines[sourceID]; ok {
		return p
	}
	p = newPipeline(d.cfg.Metrics.Capacity)
	d.pipelines[sourceID] = p
	return p
}

func (d *Daemon) onSourceState(state stream.ConnState) {
	d.logger.Info("source state",
		"source", state.SourceID, "state", state.State, "transport", state.Transport, "attempts", state.Attempts)
	if evt, err := uds.NewEvent(uds.EventSourceState, uds.SourceStateEvent{State: state}); err == nil {
		d.server.Broadcast(evt)
	}
}

func (d *Daemon) onStreamError(sourceID string, err error) {
	d.logger.Warn("stream error", "source", sourceID, "err", err)
}

func (d *Daemon) registerHandlers() {
	d.server.Handle(uds.MethodPing, d.handlePing)
	d.server.Handle(uds.MethodStatus, d.handleStatus)
	d.server.Handle(uds.MethodSources, d.handleSources)
	d.server.Handle(uds.MethodSeriesQuery, d.handleSeriesQuery)
	d.server.Handle(uds.MethodMetricsQuery, d.handleMetricsQuery)
	d.server.Handle(uds.MethodLogsStore, d.handleLogsStore)
	d.server.Handle(uds.MethodLogsQuery, d.handleLogsQuery)
	d.server.Handle(uds.MethodLogsExport, d.handleLogsExport)
	d.server.Handle(uds.MethodLogsDelete, d.handleLogsDelete)
}

func (d *Daemon) handlePing(_ context.Context, _ uds.Message) (any, error) {
	return uds.PingResponse{Pong: true}, nil
}

func (d *Daemon) handleStatus(_ context.Context, _ uds.Message) (any, error) {
	d.mu.RLock()
	sources := len(d.pipelines)
	points := 0
	for _, p := range d.pipelines {
		points += p.len()
	}
	d.mu.RUnlock()

	sessions, err := d.logs.Sessions()
	if err != nil {
		d.logger.Warn("list log sessions failed", "err", err)
	}

	return uds.StatusResponse{
		Version:       buildinfo.Version,
		UptimeSeconds: int64(time.Since(d.started).Seconds()),
		Sources:       sources,
		Points:        points,
		LogSessions:   len(sessions),
	}, nil
}

func (d *Daemon) handleSources(_ context.Context, _ uds.Message) (any, error) {
	return uds.SourcesResponse{Sources: d.streams.States()}, nil
}

func (d *Daemon) handleSeriesQuery(_ context.Context, msg uds.Message) (any, error) {
	var req uds.SeriesQueryRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, err
	}
	if req.SourceID == "" || req.Kind == "" {
		return nil, fmt.Errorf("source_id and kind are required")
	}
	maxPoints := req.MaxPoints
	if maxPoints <= 0 {
		maxPoints = d.cfg.Metrics.MaxPoints
	}

	total, points := d.pipeline(req.SourceID).seriesAt(req.Kind, req.FromMs, req.ToMs, maxPoints)
	return uds.SeriesQueryResponse{
		SourceID: req.SourceID,
		Kind:     req.Kind,
		Total:    total,
		Points:   points,
	}, nil
}

func (d *Daemon) handleMetricsQuery(_ context.Context, msg uds.Message) (any, error) {
	var req uds.MetricsQueryRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, err
	}
	f := buffer.Filter{FromMs: req.FromMs, ToMs: req.ToMs, SourceID: req.SourceID, Kind: req.Kind}

	d.mu.RLock()
	targets := make([]*pipeline, 0, len(d.pipelines))
	if req.SourceID != "" {
		if p, ok := d.pipelines[req.SourceID]; ok {
			targets = append(targets, p)
		}
	} else {
		for _, p := range d.pipelines {
			targets = append(targets, p)
		}
	}
	d.mu.RUnlock()

	var resp uds.MetricsQueryResponse
	if req.Aggregate {
		sum := 0.0
		for _, p := range targets {
			agg := p.aggregate(f)
			if agg.Count == 0 {
				continue
			}
			if resp.Count == 0 || agg.Min < resp.Min {
				resp.Min = agg.Min
			}
			if resp.Count == 0 || agg.Max > resp.Max {
				resp.Max = agg.Max
			}
			sum += agg.Average * float64(agg.Count)
			resp.Count += agg.Count
		}
		if resp.Count > 0 {
			resp.Average = sum / float64(resp.Count)
		}
		return resp, nil
	}

	resp.Points = []core.MetricPoint{}
	for _, p := range targets {
		resp.Points = append(resp.Points, p.query(f)...)
	}
	resp.Count = len(resp.Points)
	return resp, nil
}

func (d *Daemon) handleLogsStore(_ context.Context, msg uds.Message) (any, error) {
	var req uds.LogsStoreRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if err := d.logs.Append(req.SessionID, req.Entries); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}

func (d *Daemon) handleLogsQuery(_ context.Context, msg uds.Message) (any, error) {
	var req uds.LogsQueryRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	entries, err := d.logs.Retrieve(req.SessionID, logstore.RetrieveOptions{Tail: req.Tail, Filter: req.Filter})
	if err != nil {
		return nil, err
	}
	return uds.LogsQueryResponse{SessionID: req.SessionID, Entries: entries}, nil
}

func (d *Daemon) handleLogsExport(_ context.Context, msg uds.Message) (any, error) {
	var req uds.LogsExportRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	content, err := d.logs.Export(req.SessionID, req.Format)
	if err != nil {
		return nil, err
	}
	return uds.LogsExportResponse{SessionID: req.SessionID, Format: req.Format, Content: string(content)}, nil
}

func (d *Daemon) handleLogsDelete(_ context.Context, msg uds.Message) (any, error) {
	var req uds.LogsDeleteRequest
	if err := msg.UnmarshalData(&req); err != nil {
		return nil, err
	}
	if req.SessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}
	if err := d.logs.Delete(req.SessionID); err != nil {
		return nil, err
	}
	return map[string]bool{"ok": true}, nil
}
