package occupancy

import (
	"errors"
	"math"
	"testing"
)

func TestNewRect_Validation(t *testing.T) {
	tests := []struct {
		name    string
		min     Point
		max     Point
		wantErr bool
	}{
		{"valid", Point{0, 0}, Point{100, 100}, false},
		{"zero width", Point{10, 0}, Point{10, 100}, true},
		{"zero height", Point{0, 50}, Point{100, 50}, true},
		{"inverted", Point{100, 100}, Point{0, 0}, true},
		{"nan", Point{math.NaN(), 0}, Point{100, 100}, true},
		{"inf", Point{0, 0}, Point{math.Inf(1), 100}, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRect(tc.min, tc.max)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidRegion) {
					t.Fatalf("expected ErrInvalidRegion, got %v", err)
				}
				var re *RegionError
				if !errors.As(err, &re) || re.Shape != "rect" {
					t.Errorf("expected *RegionError for rect, got %T", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestRect_Contains(t *testing.T) {
	r, err := RegionFromBox(300, 200, 600, 500)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"center", Point{450, 350}, true},
		{"top left corner", Point{300, 200}, true},
		{"bottom right corner", Point{600, 500}, true},
		{"left edge", Point{300, 400}, true},
		{"just outside left", Point{299.9, 400}, false},
		{"below", Point{450, 501}, false},
		{"far away", Point{0, 0}, false},
		{"nan", Point{math.NaN(), 350}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Contains(tc.p); got != tc.want {
				t.Errorf("Contains(%v) = %v, want %v", tc.p, got, tc.want)
			}
		})
	}

	if r.Width() != 300 || r.Height() != 300 {
		t.Errorf("size: got %vx%v, want 300x300", r.Width(), r.Height())
	}
	if got := len(r.Vertices()); got != 4 {
		t.Errorf("Vertices: got %d, want 4", got)
	}
}

func TestNewPolygon_Validation(t *testing.T) {
	tests := []struct {
		name   string
		points []Point
	}{
		{"empty", nil},
		{"two points", []Point{{0, 0}, {10, 10}}},
		{"closed triangle missing a vertex", []Point{{0, 0}, {10, 0}, {0, 0}}},
		{"collinear", []Point{{0, 0}, {5, 5}, {10, 10}}},
		{"nan vertex", []Point{{0, 0}, {10, 0}, {math.NaN(), 10}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPolygon(tc.points)
			if !errors.Is(err, ErrInvalidRegion) {
				t.Fatalf("expected ErrInvalidRegion, got %v", err)
			}
		})
	}
}

func TestPolygon_Contains(t *testing.T) {
	// L-shaped (concave) table area.
	pg, err := NewPolygon([]Point{
		{0, 0}, {100, 0}, {100, 40}, {40, 40}, {40, 100}, {0, 100},
	})
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"inside foot", Point{80, 20}, true},
		{"inside stem", Point{20, 80}, true},
		{"in the notch", Point{70, 70}, false},
		{"on outer edge", Point{50, 0}, true},
		{"on inner edge", Point{70, 40}, true},
		{"on reflex vertex", Point{40, 40}, true},
		{"on corner vertex", Point{100, 0}, true},
		{"on inner vertical edge", Point{40, 70}, true},
		{"outside bounds", Point{-1, 50}, false},
		{"just past inner edge", Point{70, 40.001}, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := pg.Contains(tc.p); got != tc.want {
				t.Errorf("Contains(%v) = %v, want %v", tc.p, got, tc.want)
			}
		})
	}

	if got, want := pg.Area(), 100.0*40+40*60; math.Abs(got-want) > 1e-9 {
		t.Errorf("Area: got %v, want %v", got, want)
	}
}

func TestPolygon_SlantedEdgeIsInside(t *testing.T) {
	pg, err := NewPolygon([]Point{{0, 0}, {10, 0}, {0, 10}})
	if err != nil {
		t.Fatal(err)
	}

	if !pg.Contains(Point{5, 5}) {
		t.Error("midpoint of hypotenuse should be inside")
	}
	if !pg.Contains(Point{2.5, 7.5}) {
		t.Error("point on hypotenuse should be inside")
	}
	if pg.Contains(Point{5.1, 5.1}) {
		t.Error("point just beyond hypotenuse should be outside")
	}
}

func TestPolygon_ClosingVertexDropped(t *testing.T) {
	pg, err := NewPolygon([]Point{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}})
	if err != nil {
		t.Fatal(err)
	}
	if got := len(pg.Vertices()); got != 4 {
		t.Errorf("Vertices: got %d, want 4", got)
	}

	b := pg.Bounds()
	if b.Min != (Point{0, 0}) || b.Max != (Point{10, 10}) {
		t.Errorf("Bounds: got %+v", b)
	}
}

func TestPolygon_VerticesAreCopies(t *testing.T) {
	src := []Point{{0, 0}, {10, 0}, {10, 10}}
	pg, err := NewPolygon(src)
	if err != nil {
		t.Fatal(err)
	}

	src[0] = Point{500, 500}
	v := pg.Vertices()
	v[1] = Point{-1, -1}

	if !pg.Contains(Point{9, 1}) {
		t.Error("polygon changed after caller mutated its slices")
	}
}
