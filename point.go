package deepzoom

import "math"

// Point represents a 2D point or vector in world space.
// World space is the pixel coordinate system of the image at native
// resolution; all viewport and focus coordinates use it.
type Point struct {
	X, Y float64
}

// Pt is a convenience function to create a Point.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// Add returns the sum of two points (vector addition).
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns the difference of two points (vector subtraction).
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Mul returns the point scaled by a scalar.
func (p Point) Mul(s float64) Point {
	return Point{X: p.X * s, Y: p.Y * s}
}

// Distance returns the distance between two points.
func (p Point) Distance(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// DistanceSquared returns the squared distance between two points.
// Faster than Distance when only comparing magnitudes.
func (p Point) DistanceSquared(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// Rect is an axis-aligned rectangle in world space.
// Min is the top-left corner, Max the bottom-right; a Rect with
// Max.X <= Min.X or Max.Y <= Min.Y is empty.
type Rect struct {
	Min, Max Point
}

// R is a convenience function to create a Rect from coordinates.
func R(x0, y0, x1, y1 float64) Rect {
	return Rect{Min: Point{X: x0, Y: y0}, Max: Point{X: x1, Y: y1}}
}

// Dx returns the rectangle width.
func (r Rect) Dx() float64 { return r.Max.X - r.Min.X }

// Dy returns the rectangle height.
func (r Rect) Dy() float64 { return r.Max.Y - r.Min.Y }

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.Max.X <= r.Min.X || r.Max.Y <= r.Min.Y
}

// Center returns the rectangle's center point.
func (r Rect) Center() Point {
	return Point{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// Contains reports whether p lies inside the rectangle.
// Points on the Min edges are inside, points on the Max edges are not.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X < r.Max.X && p.Y >= r.Min.Y && p.Y < r.Max.Y
}

// Intersect returns the intersection of two rectangles, taking the
// narrower of the two on each axis. Returns an empty Rect if they do
// not overlap.
func (r Rect) Intersect(s Rect) Rect {
	out := Rect{
		Min: Point{X: math.Max(r.Min.X, s.Min.X), Y: math.Max(r.Min.Y, s.Min.Y)},
		Max: Point{X: math.Min(r.Max.X, s.Max.X), Y: math.Min(r.Max.Y, s.Max.Y)},
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

// Expand returns the rectangle grown by dx and dy on each side.
func (r Rect) Expand(dx, dy float64) Rect {
	return Rect{
		Min: Point{X: r.Min.X - dx, Y: r.Min.Y - dy},
		Max: Point{X: r.Max.X + dx, Y: r.Max.Y + dy},
	}
}
