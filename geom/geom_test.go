package geom

import "testing"

func TestPointArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		a, b     Point
		wantAdd  Point
		wantSub  Point
	}{
		{"zero", Point{0, 0}, Point{0, 0}, Point{0, 0}, Point{0, 0}},
		{"positive", Point{10, 20}, Point{1, 2}, Point{11, 22}, Point{9, 18}},
		{"negative delta", Point{5, 5}, Point{-5, -5}, Point{0, 0}, Point{10, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Add(tt.b); got != tt.wantAdd {
				t.Errorf("Add() = %v, want %v", got, tt.wantAdd)
			}
			if got := tt.a.Sub(tt.b); got != tt.wantSub {
				t.Errorf("Sub() = %v, want %v", got, tt.wantSub)
			}
		})
	}
}

func TestTransformSwapsDimensions(t *testing.T) {
	tests := []struct {
		t    Transform
		want bool
	}{
		{TransformNormal, false},
		{Transform90, true},
		{Transform180, false},
		{Transform270, true},
		{TransformFlipped, false},
		{TransformFlipped90, true},
		{TransformFlipped180, false},
		{TransformFlipped270, true},
	}
	for _, tt := range tests {
		t.Run(tt.t.String(), func(t *testing.T) {
			if got := tt.t.SwapsDimensions(); got != tt.want {
				t.Errorf("SwapsDimensions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestColorRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		r, g, b, a uint8
	}{
		{"black opaque", 0, 0, 0, 255},
		{"white transparent", 255, 255, 255, 0},
		{"mid", 12, 34, 56, 78},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ColorFromRGBA8(tt.r, tt.g, tt.b, tt.a)
			r, g, b, a := c.RGBA8()
			if r != tt.r || g != tt.g || b != tt.b || a != tt.a {
				t.Errorf("RGBA8() = %d,%d,%d,%d, want %d,%d,%d,%d", r, g, b, a, tt.r, tt.g, tt.b, tt.a)
			}
		})
	}
}

// TestBorderBoxes matches scenario (1) in spec.md §8: a content box of
// (0, 0, 800, 600) with border width w must produce the four
// documented rectangles.
func TestBorderBoxes(t *testing.T) {
	content := Box{X: 0, Y: 0, Width: 800, Height: 600}
	const w = int32(2)

	left, right, top, bottom := BorderBoxes(content, w)

	wantLeft := Box{X: -w, Y: -w, Width: w, Height: 600 + 2*w}
	wantRight := Box{X: 800, Y: -w, Width: w, Height: 600 + 2*w}
	wantTop := Box{X: 0, Y: -w, Width: 800, Height: w}
	wantBottom := Box{X: 0, Y: 600, Width: 800, Height: w}

	if left != wantLeft {
		t.Errorf("left = %+v, want %+v", left, wantLeft)
	}
	if right != wantRight {
		t.Errorf("right = %+v, want %+v", right, wantRight)
	}
	if top != wantTop {
		t.Errorf("top = %+v, want %+v", top, wantTop)
	}
	if bottom != wantBottom {
		t.Errorf("bottom = %+v, want %+v", bottom, wantBottom)
	}
}

func TestEdgesHas(t *testing.T) {
	e := EdgeLeft | EdgeTop
	if !e.Has(EdgeLeft) {
		t.Error("expected EdgeLeft to be set")
	}
	if e.Has(EdgeRight) {
		t.Error("did not expect EdgeRight to be set")
	}
	if !e.Has(EdgeLeft | EdgeTop) {
		t.Error("expected EdgeLeft|EdgeTop to be set")
	}
	if e.Has(EdgeAll) {
		t.Error("did not expect EdgeAll to be set")
	}
}
