package core

import (
	"fmt"
	"strings"
)

// Metric kinds reported by the built-in collectors. External sources may
// report arbitrary kinds; these are just the well-known ones.
const (
	KindCPUPercent    = "cpu_pct"
	KindMemoryPercent = "mem_pct"
	KindMemoryBytes   = "mem_bytes"
	KindNetworkRx     = "net_rx_bytes"
	KindNetworkTx     = "net_tx_bytes"
)

// MetricPoint is a single tagged sample from a metric stream.
// A point is identified by (source_id, kind, ts_unix_ms) for query
// purposes; uniqueness is not enforced by any buffer.
type MetricPoint struct {
	TsUnixMs int64   `json:"ts_unix_ms"`
	Value    float64 `json:"value"`
	SourceID string  `json:"source_id,omitempty"`
	Kind     string  `json:"kind,omitempty"`
}

// SeriesKey constructs the key identifying one metric series.
// Format: source_id/kind
func SeriesKey(sourceID, kind string) string {
	return fmt.Sprintf("%s/%s", sourceID, kind)
}

// ParseSeriesKey splits a series key into source id and metric kind.
func ParseSeriesKey(key string) (sourceID, kind string, err error) {
	parts := strings.SplitN(key, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid series key %q: expected source_id/kind", key)
	}
	return parts[0], parts[1], nil
}
