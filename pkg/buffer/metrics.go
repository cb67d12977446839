package buffer

import (
	"github.com/lodestar-sh/lodestar/pkg/core"
	"github.com/lodestar-sh/lodestar/pkg/downsample"
)

// MetricsBuffer is a ring buffer of metric samples with the range,
// filter, and aggregate queries the downsampler and export paths need.
// Queries are linear scans; capacity is bounded so they stay cheap.
type MetricsBuffer struct {
	ring *Ring[core.MetricPoint]
}

// Aggregate is the result of an aggregate query. A query over an empty
// filtered set returns the zero value rather than an error.
type Aggregate struct {
	Average float64 `json:"average"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Count   int     `json:"count"`
}

// NewMetricsBuffer creates a metrics buffer with the given capacity.
func NewMetricsBuffer(capacity int) *MetricsBuffer {
	return &MetricsBuffer{ring: NewRing[core.MetricPoint](capacity)}
}

// Add appends a sample, overwriting the oldest when full.
func (b *MetricsBuffer) Add(p core.MetricPoint) { b.ring.Push(p) }

// Len returns the number of buffered samples.
func (b *MetricsBuffer) Len() int { return b.ring.Len() }

// Cap returns the buffer capacity.
func (b *MetricsBuffer) Cap() int { return b.ring.Cap() }

// Clear discards all samples.
func (b *MetricsBuffer) Clear() { b.ring.Clear() }

// Points returns all samples, oldest to newest.
func (b *MetricsBuffer) Points() []core.MetricPoint { return b.ring.ToSlice() }

// Filter describes an optional sample filter. Zero fields match
// everything: a zero time range is unbounded, empty strings match any
// source or kind.
type Filter struct {
	FromMs   int64
	ToMs     int64
	SourceID string
	Kind     string
}

func (f Filter) matches(p core.MetricPoint) bool {
	if f.FromMs != 0 && p.TsUnixMs < f.FromMs {
		return false
	}
	if f.ToMs != 0 && p.TsUnixMs > f.ToMs {
		return false
	}
	if f.SourceID != "" && p.SourceID != f.SourceID {
		return false
	}
	if f.Kind != "" && p.Kind != f.Kind {
		return false
	}
	return true
}

// Query returns the samples matching the filter, oldest to newest.
func (b *MetricsBuffer) Query(f Filter) []core.MetricPoint {
	out := []core.MetricPoint{}
	for p := range b.ring.All() {
		if f.matches(p) {
			out = append(out, p)
		}
	}
	return out
}

// Aggregate computes average, min, and max over the matching samples.
func (b *MetricsBuffer) Aggregate(f Filter) Aggregate {
	var agg Aggregate
	sum := 0.0
	for p := range b.ring.All() {
		if !f.matches(p) {
			continue
		}
		if agg.Count == 0 || p.Value < agg.Min {
			agg.Min = p.Value
		}
		if agg.Count == 0 || p.Value > agg.Max {
			agg.Max = p.Value
		}
		sum += p.Value
		agg.Count++
	}
	if agg.Count > 0 {
		agg.Average = sum / float64(agg.Count)
	}
	return agg
}

// DataPoints projects the matching samples into the {x, y} shape the
// downsampling engine consumes: x is the timestamp in milliseconds,
// y the sample value.
func (b *MetricsBuffer) DataPoints(f Filter) []downsample.Point {
	out := []downsample.Point{}
	for p := range b.ring.All() {
		if f.matches(p) {
			out = append(out, downsample.Point{X: float64(p.TsUnixMs), Y: p.Value})
		}
	}
	return out
}
