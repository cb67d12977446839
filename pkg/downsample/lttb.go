// Package downsample compresses large time series into a bounded number
// of visually representative points using Largest-Triangle-Three-Buckets
// (LTTB). The algorithm is domain-agnostic: it only sees {x, y} pairs.
package downsample

import "math"

// Point is one sample on the time/value plane.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Downsample reduces data to at most threshold points with LTTB. The
// first and last points are always preserved; every interior bucket
// contributes the point forming the largest triangle with the
// previously selected point and the next bucket's centroid.
//
// The input must be ordered by x. When the data already fits the
// threshold a copy is returned unchanged; a threshold of 2 or less
// yields just the endpoints. Downsample never fails on boundary input.
func Downsample(data []Point, threshold int) []Point {
	n := len(data)
	if n == 0 {
		return []Point{}
	}
	if threshold >= n {
		out := make([]Point, n)
		copy(out, data)
		return out
	}
	if threshold <= 2 {
		if n == 1 {
			return []Point{data[0]}
		}
		return []Point{data[0], data[n-1]}
	}

	sampled := make([]Point, 0, threshold)
	sampled = append(sampled, data[0])

	// The interior points are split into threshold-2 buckets of equal
	// float width; integer truncation happens only when indexing.
	bucketSize := float64(n-2) / float64(threshold-2)

	for i := 0; i < threshold-2; i++ {
		// Centroid of the next bucket. The final bucket averages all
		// remaining points through the end of the data.
		avgStart := int(float64(i+1)*bucketSize) + 1
		avgEnd := int(float64(i+2)*bucketSize) + 1
		if avgEnd > n {
			avgEnd = n
		}
		var avgX, avgY float64
		for j := avgStart; j < avgEnd; j++ {
			avgX += data[j].X
			avgY += data[j].Y
		}
		count := float64(avgEnd - avgStart)
		avgX /= count
		avgY /= count

		// Candidates in the current bucket. The last data point is
		// reserved for the final output slot.
		rangeStart := int(float64(i)*bucketSize) + 1
		rangeEnd := int(float64(i+1)*bucketSize) + 1
		if rangeEnd > n-1 {
			rangeEnd = n - 1
		}

		prev := sampled[len(sampled)-1]
		maxArea := -1.0
		maxIdx := rangeStart
		for j := rangeStart; j < rangeEnd; j++ {
			area := triangleArea(prev, data[j], Point{X: avgX, Y: avgY})
			if area > maxArea {
				maxArea = area
				maxIdx = j
			}
		}
		sampled = append(sampled, data[maxIdx])
	}

	return append(sampled, data[n-1])
}

// triangleArea is half the magnitude of the 2D cross product.
func triangleArea(a, b, c Point) float64 {
	return math.Abs((a.X-c.X)*(b.Y-a.Y)-(a.X-b.X)*(c.Y-a.Y)) / 2
}

// AdaptiveThreshold derives a point budget from a rendering surface:
// 2.5 points per device pixel of width, never more than the data
// itself or maxPoints.
func AdaptiveThreshold(width, pixelRatio float64, dataLen, maxPoints int) int {
	threshold := int(width * pixelRatio * 2.5)
	if threshold > dataLen {
		threshold = dataLen
	}
	if maxPoints > 0 && threshold > maxPoints {
		threshold = maxPoints
	}
	return threshold
}

// Adaptive downsamples for a rendering surface of the given width and
// device pixel ratio.
func Adaptive(data []Point, width, pixelRatio float64, maxPoints int) []Point {
	return Downsample(data, AdaptiveThreshold(width, pixelRatio, len(data), maxPoints))
}
