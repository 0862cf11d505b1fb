package geom

// BoundingBox computes the axis-aligned bounding box of a set of points.
func BoundingBox(points []Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = min(minX, p.X)
		maxX = max(maxX, p.X)
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// PointInPolygon tests if a point is inside a polygon using ray casting.
// Polygons with fewer than three vertices contain nothing.
func PointInPolygon(p Point, polygon []Point) bool {
	if len(polygon) < 3 {
		return false
	}

	inside := false
	n := len(polygon)

	for i := 0; i < n; i++ {
		j := (i + 1) % n
		pi, pj := polygon[i], polygon[j]

		// Check if ray from p going right intersects edge pi-pj
		if ((pi.Y > p.Y) != (pj.Y > p.Y)) &&
			(p.X < (pj.X-pi.X)*(p.Y-pi.Y)/(pj.Y-pi.Y)+pi.X) {
			inside = !inside
		}
	}

	return inside
}

// TranslatePoints returns a copy of points moved by d.
func TranslatePoints(points []Point, d Point) []Point {
	out := make([]Point, len(points))
	for i, p := range points {
		out[i] = p.Add(d)
	}
	return out
}
