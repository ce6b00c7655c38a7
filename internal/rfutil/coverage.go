package rfutil

// Bounds is a world-coordinate bounding box (minX, minY, maxX, maxY).
type Bounds [4]float64

// Covers reports whether outer fully contains inner.
func Covers(outer, inner Bounds) bool {
	return outer[0] <= inner[0] && outer[1] <= inner[1] && outer[2] >= inner[2] && outer[3] >= inner[3]
}
