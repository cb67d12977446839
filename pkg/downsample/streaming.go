package downsample

// Streaming keeps a continuously growing series bounded by re-running
// LTTB whenever the accumulated points exceed 1.5x the target and
// replacing the buffer with the result. Old data loses detail
// gradually while recent points stay raw until the next compaction.
type Streaming struct {
	target int
	points []Point
}

// NewStreaming creates a streaming downsampler aiming at target points.
func NewStreaming(target int) *Streaming {
	if target < 2 {
		target = 2
	}
	return &Streaming{target: target}
}

// Add appends a raw point, compacting if the buffer has outgrown the
// target by more than half.
func (s *Streaming) Add(p Point) {
	s.points = append(s.points, p)
	if len(s.points) > s.target+s.target/2 {
		s.points = Downsample(s.points, s.target)
	}
}

// Points returns a copy of the current buffer, at most 1.5x the target
// in length.
func (s *Streaming) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Len returns the current buffer length.
func (s *Streaming) Len() int { return len(s.points) }

// Reset discards all accumulated points.
func (s *Streaming) Reset() { s.points = nil }
