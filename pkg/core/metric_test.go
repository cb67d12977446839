package core

import "testing"

func TestSeriesKey(t *testing.T) {
	key := SeriesKey("web", KindCPUPercent)
	if key != "web/cpu_pct" {
		t.Errorf("expected web/cpu_pct, got %s", key)
	}
}

func TestParseSeriesKey(t *testing.T) {
	tests := []struct {
		input      string
		wantSource string
		wantKind   string
		wantError  bool
	}{
		{"web/cpu_pct", "web", "cpu_pct", false},
		{"db/mem_bytes", "db", "mem_bytes", false},
		{"host/net_rx_bytes", "host", "net_rx_bytes", false},
		{"noslash", "", "", true},
		{"/kind", "", "", true},
		{"source/", "", "", true},
		{"a/b/c", "a", "b/c", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			source, kind, err := ParseSeriesKey(tt.input)
			if tt.wantError {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error for %q: %v", tt.input, err)
				return
			}
			if source != tt.wantSource {
				t.Errorf("source: got %q, want %q", source, tt.wantSource)
			}
			if kind != tt.wantKind {
				t.Errorf("kind: got %q, want %q", kind, tt.wantKind)
			}
		})
	}
}

func TestSeriesKeyRoundTrip(t *testing.T) {
	original := SeriesKey("worker", KindMemoryPercent)
	source, kind, err := ParseSeriesKey(original)
	if err != nil {
		t.Fatal(err)
	}
	if SeriesKey(source, kind) != original {
		t.Errorf("round-trip failed for %q", original)
	}
}
