package pointing

import (
	"errors"
	"math"

	"github.com/fogleman/delaunay"
)

var errDegenerate = errors.New("points are collinear")

type point struct {
	x, y float64
}

// triangle references three vertices by index.
type triangle struct {
	a, b, c int
}

// triangulate returns the Delaunay triangulation of pts. pts must be free of
// duplicates.
func triangulate(pts []point) ([]triangle, error) {
	in := make([]delaunay.Point, len(pts))
	for i, p := range pts {
		in[i] = delaunay.Point{X: p.x, Y: p.y}
	}
	tri, err := delaunay.Triangulate(in)
	if err != nil {
		return nil, errDegenerate
	}

	hull := polygonArea(tri.ConvexHull)
	minX, minY, maxX, maxY := bounds(pts)
	span := math.Max(maxX-minX, maxY-minY)
	if span == 0 || hull <= 1e-12*span*span {
		return nil, errDegenerate
	}

	tris := make([]triangle, 0, len(tri.Triangles)/3)
	var area float64
	for i := 0; i+2 < len(tri.Triangles); i += 3 {
		t := triangle{tri.Triangles[i], tri.Triangles[i+1], tri.Triangles[i+2]}
		area += math.Abs(signedArea(pts[t.a], pts[t.b], pts[t.c]))
		tris = append(tris, t)
	}
	if math.Abs(area-hull) > 1e-9*hull {
		return nil, errors.New("triangulation does not cover the convex hull")
	}
	return tris, nil
}

// barycentric returns the weights of p with respect to t.
func barycentric(pts []point, t triangle, p point) (w1, w2, w3 float64) {
	p1, p2, p3 := pts[t.a], pts[t.b], pts[t.c]
	det := (p2.y-p3.y)*(p1.x-p3.x) + (p3.x-p2.x)*(p1.y-p3.y)
	w1 = ((p2.y-p3.y)*(p.x-p3.x) + (p3.x-p2.x)*(p.y-p3.y)) / det
	w2 = ((p3.y-p1.y)*(p.x-p3.x) + (p1.x-p3.x)*(p.y-p3.y)) / det
	w3 = 1 - w1 - w2
	return w1, w2, w3
}

func signedArea(a, b, c point) float64 {
	return ((b.x-a.x)*(c.y-a.y) - (c.x-a.x)*(b.y-a.y)) / 2
}

// polygonArea is the shoelace area of a closed ring.
func polygonArea(ring []delaunay.Point) float64 {
	var area float64
	for i := range ring {
		j := (i + 1) % len(ring)
		area += ring[i].X*ring[j].Y - ring[j].X*ring[i].Y
	}
	return math.Abs(area) / 2
}

func bounds(pts []point) (minX, minY, maxX, maxY float64) {
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY = math.Inf(-1), math.Inf(-1)
	for _, p := range pts {
		minX, maxX = math.Min(minX, p.x), math.Max(maxX, p.x)
		minY, maxY = math.Min(minY, p.y), math.Max(maxY, p.y)
	}
	return minX, minY, maxX, maxY
}
