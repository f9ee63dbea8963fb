package occupancy

import (
	"fmt"
	"math"
)

// Point is a 2D position in frame pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) finite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// Region is the fixed area that represents the table.
// Implementations are immutable after construction.
type Region interface {
	// Contains reports whether p lies inside the region or on its boundary.
	Contains(p Point) bool

	// Bounds returns the axis-aligned bounding rectangle.
	Bounds() Rect

	// Vertices returns the closed outline, first vertex not repeated.
	Vertices() []Point
}

// Rect is an axis-aligned rectangle. Both edges are inclusive.
type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// NewRect validates and returns a rectangle region.
// A rectangle with zero width or height is degenerate and rejected.
func NewRect(min, max Point) (Rect, error) {
	if !min.finite() || !max.finite() {
		return Rect{}, &RegionError{Shape: "rect", Reason: "coordinates must be finite"}
	}
	if max.X <= min.X || max.Y <= min.Y {
		return Rect{}, &RegionError{
			Shape:  "rect",
			Reason: fmt.Sprintf("max (%g,%g) must exceed min (%g,%g)", max.X, max.Y, min.X, min.Y),
		}
	}
	return Rect{Min: min, Max: max}, nil
}

// RegionFromBox builds a rectangle from [xmin, ymin, xmax, ymax] table coordinates.
func RegionFromBox(xmin, ymin, xmax, ymax float64) (Rect, error) {
	return NewRect(Point{X: xmin, Y: ymin}, Point{X: xmax, Y: ymax})
}

// Contains implements Region.
func (r Rect) Contains(p Point) bool {
	return r.Min.X <= p.X && p.X <= r.Max.X &&
		r.Min.Y <= p.Y && p.Y <= r.Max.Y
}

// Bounds implements Region.
func (r Rect) Bounds() Rect {
	return r
}

// Vertices implements Region, clockwise in image coordinates starting top-left.
func (r Rect) Vertices() []Point {
	return []Point{
		{X: r.Min.X, Y: r.Min.Y},
		{X: r.Max.X, Y: r.Min.Y},
		{X: r.Max.X, Y: r.Max.Y},
		{X: r.Min.X, Y: r.Max.Y},
	}
}

// Width returns the horizontal extent.
func (r Rect) Width() float64 { return r.Max.X - r.Min.X }

// Height returns the vertical extent.
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

// Polygon is a simple polygon, implicitly closed.
type Polygon struct {
	points []Point
	bounds Rect
}

// edgeEpsilon absorbs float error when testing whether a point lies on an edge.
const edgeEpsilon = 1e-9

// NewPolygon validates and returns a polygon region.
// At least three vertices with non-zero enclosed area are required.
// A trailing vertex equal to the first is dropped.
func NewPolygon(points []Point) (*Polygon, error) {
	pts := make([]Point, len(points))
	copy(pts, points)
	if len(pts) > 1 && pts[0] == pts[len(pts)-1] {
		pts = pts[:len(pts)-1]
	}

	if len(pts) < 3 {
		return nil, &RegionError{
			Shape:  "polygon",
			Reason: fmt.Sprintf("need at least 3 vertices, got %d", len(pts)),
		}
	}

	bounds := Rect{Min: pts[0], Max: pts[0]}
	for _, p := range pts {
		if !p.finite() {
			return nil, &RegionError{Shape: "polygon", Reason: "coordinates must be finite"}
		}
		bounds.Min.X = math.Min(bounds.Min.X, p.X)
		bounds.Min.Y = math.Min(bounds.Min.Y, p.Y)
		bounds.Max.X = math.Max(bounds.Max.X, p.X)
		bounds.Max.Y = math.Max(bounds.Max.Y, p.Y)
	}

	if math.Abs(signedArea(pts)) < edgeEpsilon {
		return nil, &RegionError{Shape: "polygon", Reason: "vertices enclose no area"}
	}

	return &Polygon{points: pts, bounds: bounds}, nil
}

// Contains implements Region using the crossing-number rule.
// Points on an edge or vertex are inside.
func (pg *Polygon) Contains(p Point) bool {
	if !pg.bounds.Contains(p) {
		return false
	}

	inside := false
	n := len(pg.points)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := pg.points[j], pg.points[i]
		if onSegment(p, a, b) {
			return true
		}
		if (b.Y > p.Y) != (a.Y > p.Y) {
			xCross := (a.X-b.X)*(p.Y-b.Y)/(a.Y-b.Y) + b.X
			if p.X < xCross {
				inside = !inside
			}
		}
	}
	return inside
}

// Bounds implements Region.
func (pg *Polygon) Bounds() Rect {
	return pg.bounds
}

// Vertices implements Region.
func (pg *Polygon) Vertices() []Point {
	out := make([]Point, len(pg.points))
	copy(out, pg.points)
	return out
}

// Area returns the enclosed area.
func (pg *Polygon) Area() float64 {
	return math.Abs(signedArea(pg.points))
}

// onSegment reports whether p lies on the closed segment ab.
func onSegment(p, a, b Point) bool {
	cross := (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
	scale := math.Max(1, math.Hypot(b.X-a.X, b.Y-a.Y))
	if math.Abs(cross) > edgeEpsilon*scale {
		return false
	}
	return math.Min(a.X, b.X)-edgeEpsilon <= p.X && p.X <= math.Max(a.X, b.X)+edgeEpsilon &&
		math.Min(a.Y, b.Y)-edgeEpsilon <= p.Y && p.Y <= math.Max(a.Y, b.Y)+edgeEpsilon
}

// signedArea is the shoelace formula.
func signedArea(pts []Point) float64 {
	var sum float64
	n := len(pts)
	for i := 0; i < n; i++ {
		j := (i + 1) % n
		sum += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return sum / 2
}
