package buffer

import "testing"

func TestRingSizeTracksPushes(t *testing.T) {
	tests := []struct {
		capacity int
		pushes   int
		wantLen  int
	}{
		{1, 0, 0},
		{1, 1, 1},
		{1, 5, 1},
		{3, 2, 2},
		{3, 3, 3},
		{3, 10, 3},
		{100, 50, 50},
	}

	for _, tt := range tests {
		r := NewRing[int](tt.capacity)
		for i := 0; i < tt.pushes; i++ {
			r.Push(i)
		}
		if r.Len() != tt.wantLen {
			t.Errorf("cap=%d pushes=%d: Len=%d, want %d", tt.capacity, tt.pushes, r.Len(), tt.wantLen)
		}
		if len(r.ToSlice()) != tt.wantLen {
			t.Errorf("cap=%d pushes=%d: ToSlice length %d, want %d", tt.capacity, tt.pushes, len(r.ToSlice()), tt.wantLen)
		}
	}
}

func TestRingOverflowEvictsOldest(t *testing.T) {
	r := NewRing[int](3)
	var evicted []int
	r.OnEvict(func(v int) { evicted = append(evicted, v) })

	for _, v := range []int{1, 2, 3, 4} {
		r.Push(v)
	}

	got := r.ToSlice()
	want := []int{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("ToSlice = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ToSlice[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	oldest, ok := r.PeekOldest()
	if !ok || oldest != 2 {
		t.Errorf("PeekOldest = %d (%v), want 2", oldest, ok)
	}
	if len(evicted) != 1 || evicted[0] != 1 {
		t.Errorf("evict hook got %v, want [1]", evicted)
	}
}

func TestRingFullHookFiresOncePerTransition(t *testing.T) {
	r := NewRing[int](2)
	fired := 0
	r.OnFull(func() { fired++ })

	r.Push(1)
	if fired != 0 {
		t.Fatalf("hook fired before full")
	}
	r.Push(2)
	if fired != 1 {
		t.Fatalf("hook fired %d times at transition, want 1", fired)
	}
	r.Push(3) // overwrite, still full: no new transition
	if fired != 1 {
		t.Fatalf("hook fired %d times while staying full, want 1", fired)
	}

	r.Shift()
	r.Push(4) // refill: transitions into full again
	if fired != 2 {
		t.Fatalf("hook fired %d times after refill, want 2", fired)
	}
}

func TestRingShiftEmpty(t *testing.T) {
	r := NewRing[string](2)
	if v, ok := r.Shift(); ok {
		t.Errorf("Shift on empty returned %q, want none", v)
	}
	r.Push("a")
	if v, ok := r.Shift(); !ok || v != "a" {
		t.Errorf("Shift = %q (%v), want a", v, ok)
	}
	if _, ok := r.Shift(); ok {
		t.Error("Shift after draining should report empty")
	}
}

func TestRingPeekNonMutating(t *testing.T) {
	r := NewRing[int](3)
	r.Push(1)
	r.Push(2)
	r.Peek()
	r.PeekOldest()
	if r.Len() != 2 {
		t.Errorf("peeks mutated buffer: Len=%d, want 2", r.Len())
	}
	if newest, _ := r.Peek(); newest != 2 {
		t.Errorf("Peek = %d, want 2", newest)
	}
}

func TestRingRecent(t *testing.T) {
	r := NewRing[int](4)
	for _, v := range []int{1, 2, 3, 4, 5} {
		r.Push(v)
	}

	got := r.Recent(3)
	want := []int{5, 4, 3}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Recent(3)[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	if len(r.Recent(10)) != 4 {
		t.Errorf("Recent(10) length = %d, want clamped to 4", len(r.Recent(10)))
	}
	if len(r.Recent(0)) != 0 {
		t.Error("Recent(0) should be empty")
	}
}

func TestRingRange(t *testing.T) {
	r := NewRing[int](5)
	for _, v := range []int{10, 20, 30, 40} {
		r.Push(v)
	}

	tests := []struct {
		start, end int
		want       []int
	}{
		{0, 4, []int{10, 20, 30, 40}},
		{1, 3, []int{20, 30}},
		{-2, 2, []int{10, 20}},
		{2, 100, []int{30, 40}},
		{3, 3, []int{}},
		{4, 1, []int{}},
	}

	for _, tt := range tests {
		got := r.Range(tt.start, tt.end)
		if len(got) != len(tt.want) {
			t.Errorf("Range(%d,%d) = %v, want %v", tt.start, tt.end, got, tt.want)
			continue
		}
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("Range(%d,%d)[%d] = %d, want %d", tt.start, tt.end, i, got[i], tt.want[i])
			}
		}
	}
}

func TestRingAllIterationOrder(t *testing.T) {
	r := NewRing[int](3)
	for _, v := range []int{1, 2, 3, 4, 5} {
		r.Push(v)
	}

	var got []int
	for v := range r.All() {
		got = append(got, v)
	}
	want := []int{3, 4, 5}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("All()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestRingClear(t *testing.T) {
	r := NewRing[int](3)
	r.Push(1)
	r.Push(2)
	r.Clear()
	if r.Len() != 0 {
		t.Errorf("Len after Clear = %d, want 0", r.Len())
	}
	if r.Cap() != 3 {
		t.Errorf("Cap after Clear = %d, want 3", r.Cap())
	}
	r.Push(9)
	if oldest, _ := r.PeekOldest(); oldest != 9 {
		t.Errorf("PeekOldest after Clear+Push = %d, want 9", oldest)
	}
}

func TestNewRingRejectsZeroCapacity(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for capacity 0")
		}
	}()
	NewRing[int](0)
}
