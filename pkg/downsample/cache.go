package downsample

// MultiRes serves the same series at several resolutions, memoizing one
// result per requested threshold. The cache is invalidated only by
// SetData; callers that mutate the source in place must call SetData
// again to see fresh results.
type MultiRes struct {
	data  []Point
	cache map[int][]Point
}

// NewMultiRes creates a multi-resolution view over data.
func NewMultiRes(data []Point) *MultiRes {
	return &MultiRes{data: data, cache: make(map[int][]Point)}
}

// SetData replaces the source series and drops all cached resolutions.
func (m *MultiRes) SetData(data []Point) {
	m.data = data
	m.cache = make(map[int][]Point)
}

// At returns the series downsampled to the given threshold, computing
// it on first request and serving the memoized result afterwards.
// The returned slice is shared; callers must not modify it.
func (m *MultiRes) At(threshold int) []Point {
	if cached, ok := m.cache[threshold]; ok {
		return cached
	}
	result := Downsample(m.data, threshold)
	m.cache[threshold] = result
	return result
}

// Len returns the length of the source series.
func (m *MultiRes) Len() int { return len(m.data) }
