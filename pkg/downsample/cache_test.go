package downsample

import "testing"

func TestMultiResMemoizes(t *testing.T) {
	m := NewMultiRes(linearSeries(100))

	first := m.At(10)
	second := m.At(10)
	if len(first) != 10 {
		t.Fatalf("length = %d, want 10", len(first))
	}
	// Memoized: same backing array, not a recomputation.
	if &first[0] != &second[0] {
		t.Error("second At(10) was not served from the cache")
	}
}

func TestMultiResSeparateThresholds(t *testing.T) {
	m := NewMultiRes(linearSeries(100))
	if len(m.At(10)) != 10 {
		t.Error("At(10) wrong length")
	}
	if len(m.At(25)) != 25 {
		t.Error("At(25) wrong length")
	}
}

func TestMultiResSetDataInvalidates(t *testing.T) {
	m := NewMultiRes(linearSeries(100))
	old := m.At(10)

	m.SetData(linearSeries(50))
	fresh := m.At(10)
	if &old[0] == &fresh[0] {
		t.Error("SetData did not invalidate the cache")
	}
	if m.Len() != 50 {
		t.Errorf("Len = %d, want 50", m.Len())
	}
}

func TestStreamingBoundsGrowth(t *testing.T) {
	s := NewStreaming(100)
	for i := 0; i < 10000; i++ {
		s.Add(Point{X: float64(i), Y: float64(i % 7)})
	}
	if s.Len() > 150 {
		t.Errorf("buffer grew to %d, want at most 150", s.Len())
	}
	if s.Len() < 100 {
		t.Errorf("buffer shrank to %d, want at least the target", s.Len())
	}
}

func TestStreamingKeepsLatestPoint(t *testing.T) {
	s := NewStreaming(50)
	var last Point
	for i := 0; i < 1000; i++ {
		last = Point{X: float64(i), Y: float64(i)}
		s.Add(last)
	}
	pts := s.Points()
	if pts[len(pts)-1] != last {
		t.Errorf("latest point = %v, want %v", pts[len(pts)-1], last)
	}
}

func TestStreamingReset(t *testing.T) {
	s := NewStreaming(10)
	s.Add(Point{X: 1, Y: 1})
	s.Reset()
	if s.Len() != 0 {
		t.Errorf("Len after Reset = %d, want 0", s.Len())
	}
}
