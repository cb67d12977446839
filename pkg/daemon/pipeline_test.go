package daemon

import (
	"testing"

	"github.com/lodestar-sh/lodestar/pkg/core"
)

func TestPipelineSeriesCacheInvalidation(t *testing.T) {
	p := newPipeline(1000)
	for i := 0; i < 20; i++ {
		p.ingest(core.MetricPoint{TsUnixMs: int64(i + 1), SourceID: "web", Kind: core.KindCPUPercent, Value: float64(i)})
	}

	total, pts := p.seriesAt(core.KindCPUPercent, 0, 0, 10)
	if total != 20 || len(pts) != 10 {
		t.Fatalf("first query: total=%d len=%d", total, len(pts))
	}

	// Cached view until the next sample arrives
	total, _ = p.seriesAt(core.KindCPUPercent, 0, 0, 10)
	if total != 20 {
		t.Fatalf("cached total = %d, want 20", total)
	}

	p.ingest(core.MetricPoint{TsUnixMs: 21, SourceID: "web", Kind: core.KindCPUPercent, Value: 99})
	total, pts = p.seriesAt(core.KindCPUPercent, 0, 0, 10)
	if total != 21 {
		t.Fatalf("total after ingest = %d, want 21", total)
	}
	if pts[len(pts)-1].X != 21 {
		t.Fatalf("last point = %v, want x=21", pts[len(pts)-1])
	}
}

func TestPipelineSeriesUnknownKind(t *testing.T) {
	p := newPipeline(100)
	total, pts := p.seriesAt("nope", 0, 0, 10)
	if total != 0 || len(pts) != 0 {
		t.Fatalf("unknown kind: total=%d len=%d", total, len(pts))
	}
}
