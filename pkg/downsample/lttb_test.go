package downsample

import (
	"math"
	"testing"
)

func linearSeries(n int) []Point {
	pts := make([]Point, n)
	for i := range pts {
		pts[i] = Point{X: float64(i), Y: math.Sin(float64(i) / 10)}
	}
	return pts
}

func TestDownsampleNoOpWhenDataFits(t *testing.T) {
	data := linearSeries(10)
	got := Downsample(data, 10)
	if len(got) != 10 {
		t.Fatalf("length = %d, want 10", len(got))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Errorf("point %d changed: %v != %v", i, got[i], data[i])
		}
	}

	// Must be a copy, not an alias.
	got[0].Y = 999
	if data[0].Y == 999 {
		t.Error("result aliases the input")
	}
}

func TestDownsampleEndpointsPreserved(t *testing.T) {
	for _, threshold := range []int{3, 5, 20, 99} {
		data := linearSeries(100)
		got := Downsample(data, threshold)
		if got[0] != data[0] {
			t.Errorf("threshold %d: first = %v, want %v", threshold, got[0], data[0])
		}
		if got[len(got)-1] != data[99] {
			t.Errorf("threshold %d: last = %v, want %v", threshold, got[len(got)-1], data[99])
		}
	}
}

func TestDownsampleOutputSize(t *testing.T) {
	tests := []struct {
		dataLen   int
		threshold int
		wantLen   int
	}{
		{100, 2, 2},
		{100, 3, 3},
		{100, 50, 50},
		{100, 100, 100},
		{100, 500, 100},
		{5, 3, 3},
		{2, 2, 2},
		{1, 5, 1},
	}

	for _, tt := range tests {
		got := Downsample(linearSeries(tt.dataLen), tt.threshold)
		if len(got) != tt.wantLen {
			t.Errorf("len=%d threshold=%d: got %d points, want %d", tt.dataLen, tt.threshold, len(got), tt.wantLen)
		}
	}
}

func TestDownsampleEmptyInput(t *testing.T) {
	if got := Downsample(nil, 5); len(got) != 0 {
		t.Errorf("nil input produced %v", got)
	}
	if got := Downsample([]Point{}, 2); len(got) != 0 {
		t.Errorf("empty input produced %v", got)
	}
}

func TestDownsampleThresholdTwoKeepsEndpoints(t *testing.T) {
	data := linearSeries(50)
	for _, threshold := range []int{0, 1, 2} {
		got := Downsample(data, threshold)
		if len(got) != 2 {
			t.Fatalf("threshold %d: length = %d, want 2", threshold, len(got))
		}
		if got[0] != data[0] || got[1] != data[49] {
			t.Errorf("threshold %d: got %v, want endpoints", threshold, got)
		}
	}
}

func TestDownsampleSelectsPeak(t *testing.T) {
	data := []Point{
		{X: 0, Y: 0},
		{X: 1, Y: 5},
		{X: 2, Y: 1},
		{X: 3, Y: 6},
		{X: 4, Y: 0},
	}

	got := Downsample(data, 3)
	if len(got) != 3 {
		t.Fatalf("length = %d, want 3", len(got))
	}
	if got[0] != (Point{X: 0, Y: 0}) {
		t.Errorf("first = %v, want {0 0}", got[0])
	}
	if got[2] != (Point{X: 4, Y: 0}) {
		t.Errorf("last = %v, want {4 0}", got[2])
	}
	// The interior slot picks the largest triangle: the peak at x=3.
	if got[1] != (Point{X: 3, Y: 6}) {
		t.Errorf("middle = %v, want {3 6}", got[1])
	}
}

func TestDownsampleResultIsSubsequence(t *testing.T) {
	data := linearSeries(200)
	got := Downsample(data, 30)

	idx := 0
	for _, p := range got {
		for idx < len(data) && data[idx] != p {
			idx++
		}
		if idx == len(data) {
			t.Fatalf("point %v is not in the input (or out of order)", p)
		}
		idx++
	}
}

func TestAdaptiveThreshold(t *testing.T) {
	tests := []struct {
		width     float64
		ratio     float64
		dataLen   int
		maxPoints int
		want      int
	}{
		{100, 1, 10000, 2000, 250},
		{100, 2, 10000, 2000, 500},
		{1000, 2, 10000, 2000, 2000}, // capped by maxPoints
		{1000, 2, 300, 2000, 300},    // capped by data length
		{80, 1, 10000, 0, 200},       // maxPoints unset
	}

	for _, tt := range tests {
		got := AdaptiveThreshold(tt.width, tt.ratio, tt.dataLen, tt.maxPoints)
		if got != tt.want {
			t.Errorf("AdaptiveThreshold(%v,%v,%d,%d) = %d, want %d",
				tt.width, tt.ratio, tt.dataLen, tt.maxPoints, got, tt.want)
		}
	}
}

func TestAdaptive(t *testing.T) {
	data := linearSeries(1000)
	got := Adaptive(data, 40, 1, 500)
	if len(got) != 100 {
		t.Errorf("length = %d, want 100", len(got))
	}
}
