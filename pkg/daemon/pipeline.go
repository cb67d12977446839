package daemon

import (
	"sync"

	"github.com/lodestar-sh/lodestar/pkg/buffer"
	"github.com/lodestar-sh/lodestar/pkg/core"
	"github.com/lodestar-sh/lodestar/pkg/downsample"
)

// pipeline holds one source's in-memory metric state. A single mutex
// serializes ingest against queries so each source has exactly one
// buffer and one cache, never torn views of either.
type pipeline struct {
	mu      sync.Mutex
	metrics *buffer.MetricsBuffer
	series  map[string]*seriesCache
}

// seriesCache memoizes downsampled resolutions of one metric kind.
// Ingest marks it stale; the next full-range query rebuilds it.
type seriesCache struct {
	multi *downsample.MultiRes
	stale bool
}

func newPipeline(capacity int) *pipeline {
	return &pipeline{
		metrics: buffer.NewMetricsBuffer(capacity),
		series:  make(map[string]*seriesCache),
	}
}

func (p *pipeline) ingest(point core.MetricPoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.metrics.Add(point)
	if c, ok := p.series[point.Kind]; ok {
		c.stale = true
	}
}

func (p *pipeline) query(f buffer.Filter) []core.MetricPoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics.Query(f)
}

func (p *pipeline) aggregate(f buffer.Filter) buffer.Aggregate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics.Aggregate(f)
}

func (p *pipeline) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics.Len()
}

// seriesAt returns the downsampled series of one kind. Full-range
// queries are served from the per-kind resolution cache; ranged
// queries bypass it and downsample the matching slice directly.
func (p *pipeline) seriesAt(kind string, fromMs, toMs int64, threshold int) (int, []downsample.Point) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fromMs != 0 || toMs != 0 {
		data := p.metrics.DataPoints(buffer.Filter{Kind: kind, FromMs: fromMs, ToMs: toMs})
		return len(data), downsample.Downsample(data, threshold)
	}

	c, ok := p.series[kind]
	if !ok {
		c = &seriesCache{multi: downsample.NewMultiRes(nil), stale: true}
		p.series[kind] = c
	}
	if c.stale {
		c.multi.SetData(p.metrics.DataPoints(buffer.Filter{Kind: kind}))
		c.stale = false
	}
	return c.multi.Len(), c.multi.At(threshold)
}
