package buffer

import (
	"testing"
	"time"
)

// fakeClock advances manually so expiry is deterministic.
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time               { return c.t }
func (c *fakeClock) advance(d time.Duration)      { c.t = c.t.Add(d) }

func newTestWindow(capacity int, maxAge time.Duration) (*Window[int], *fakeClock) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	w := NewWindow[int](capacity, maxAge)
	w.now = clk.now
	return w, clk
}

func TestWindowEvictsExpired(t *testing.T) {
	w, clk := newTestWindow(10, time.Minute)

	w.Add(1)
	clk.advance(30 * time.Second)
	w.Add(2)
	clk.advance(45 * time.Second) // entry 1 is now 75s old

	got := w.Values()
	if len(got) != 1 || got[0] != 2 {
		t.Errorf("Values = %v, want [2]", got)
	}
}

func TestWindowEvictionStopsAtFirstValid(t *testing.T) {
	w, clk := newTestWindow(10, time.Minute)

	for i := 0; i < 5; i++ {
		w.Add(i)
		clk.advance(10 * time.Second)
	}
	// Ages are now 50,40,30,20,10s: nothing expired.
	if w.Len() != 5 {
		t.Fatalf("Len = %d, want 5", w.Len())
	}

	clk.advance(25 * time.Second)
	// Ages 75,65,55,45,35: first two expired.
	got := w.Values()
	want := []int{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("Values = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Values[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestWindowAddEvictsBeforePush(t *testing.T) {
	w, clk := newTestWindow(2, time.Minute)

	w.Add(1)
	clk.advance(2 * time.Minute)
	w.Add(2) // 1 expired, so capacity is free without overwrite
	w.Add(3)

	got := w.Values()
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("Values = %v, want [2 3]", got)
	}
}

func TestWindowInRange(t *testing.T) {
	w, clk := newTestWindow(10, time.Hour)
	start := clk.t

	for i := 0; i < 4; i++ {
		w.Add(i)
		clk.advance(10 * time.Second)
	}

	got := w.InRange(start.Add(10*time.Second), start.Add(20*time.Second))
	want := []int{1, 2}
	if len(got) != len(want) {
		t.Fatalf("InRange = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("InRange[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestWindowEmpty(t *testing.T) {
	w, _ := newTestWindow(4, time.Minute)
	if w.Len() != 0 {
		t.Errorf("Len = %d, want 0", w.Len())
	}
	if got := w.Values(); len(got) != 0 {
		t.Errorf("Values = %v, want empty", got)
	}
}
