package textfx

import "github.com/eleven-am/montage/internal/domain"

// ClipRule tells a rasterizer how to draw a text background.
type ClipRule struct {
	Shape domain.BackgroundShape
	// Radius is the corner radius as a fraction of the box height.
	Radius float64
	// Band limits the fill to the bottom fraction of the box (underline,
	// marker); 1 fills the whole box.
	Band float64
	// Tail adds a pointer below the box.
	Tail bool
	// Skew is a horizontal slant in fractions of the height.
	Skew float64
}

var clipRules = map[domain.BackgroundShape]ClipRule{
	domain.ShapeRectangle: {Band: 1},
	domain.ShapeRounded:   {Radius: 0.2, Band: 1},
	domain.ShapePill:      {Radius: 0.5, Band: 1},
	domain.ShapeBubble:    {Radius: 0.35, Band: 1, Tail: true},
	domain.ShapeMarker:    {Band: 0.6, Skew: 0.05},
	domain.ShapeUnderline: {Band: 0.12},
	domain.ShapeSpeech:    {Radius: 0.25, Band: 1, Tail: true},
}

// Rule returns the clip rule for shape. ok is false for no background.
func Rule(shape domain.BackgroundShape) (ClipRule, bool) {
	r, ok := clipRules[shape]
	if !ok {
		return ClipRule{}, false
	}
	r.Shape = shape
	return r, true
}

// Contains reports whether the point (x, y), in pixels relative to the top
// left of a w by h box, is covered by the background.
func (r ClipRule) Contains(x, y, w, h float64) bool {
	if x < 0 || y < 0 || x >= w || y >= h {
		return false
	}
	top := h * (1 - r.Band)
	if y < top {
		return false
	}
	if r.Skew != 0 {
		shift := r.Skew * h * (h - y) / h
		if x < shift || x >= w-r.Skew*h+shift {
			return false
		}
	}
	rad := r.Radius * (h - top)
	if rad <= 0 {
		return true
	}
	cx, cy := x, y-top
	bh := h - top
	switch {
	case cx < rad && cy < rad:
		return inCircle(cx, cy, rad, rad, rad)
	case cx > w-rad && cy < rad:
		return inCircle(cx, cy, w-rad, rad, rad)
	case cx < rad && cy > bh-rad:
		return inCircle(cx, cy, rad, bh-rad, rad)
	case cx > w-rad && cy > bh-rad:
		return inCircle(cx, cy, w-rad, bh-rad, rad)
	}
	return true
}

func inCircle(x, y, cx, cy, r float64) bool {
	dx, dy := x-cx, y-cy
	return dx*dx+dy*dy <= r*r
}
